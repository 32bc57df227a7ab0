package syncclient

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrValidation        = errors.New("request rejected by validation")
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrForbidden         = errors.New("forbidden")
	ErrServer            = errors.New("server error")
	ErrNetwork           = errors.New("network error")
	ErrNotAuthenticated  = errors.New("not logged in")
	ErrMutationInFlight  = errors.New("another change to this item is still in progress")
	ErrThirdPartyAccount = errors.New("account is managed by a third-party provider")

	errStaleState = errors.New("local state kept changing during the request")
)

// APIError is a non-2xx answer from the server.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

// Unwrap maps the error onto a sentinel by code, falling back to the status.
func (e *APIError) Unwrap() error {
	switch e.Code {
	case "validation":
		return ErrValidation
	case "not_found":
		return ErrNotFound
	case "conflict":
		return ErrConflict
	case "unauthorized":
		return ErrUnauthorized
	case "forbidden":
		return ErrForbidden
	}
	switch e.Status {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return ErrValidation
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusConflict:
		return ErrConflict
	}
	return ErrServer
}

// NetworkError means the server could not be reached or did not answer.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

func (e *NetworkError) Is(target error) bool { return target == ErrNetwork }

// reason is the text shown after a failure prefix such as
// "New Round could not be logged. ".
func reason(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	var netErr *NetworkError
	if errors.As(err, &netErr) {
		return "Could not reach the server."
	}
	switch {
	case errors.Is(err, ErrNotAuthenticated):
		return "Not logged in."
	case errors.Is(err, ErrMutationInFlight):
		return "A previous change is still in progress."
	}
	return err.Error()
}
