package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"

	"speedgolf/internal/store"
)

const requestTimeout = 5 * time.Second

const (
	codeValidation   = "validation"
	codeNotFound     = "not_found"
	codeConflict     = "conflict"
	codeUnauthorized = "unauthorized"
	codeForbidden    = "forbidden"
	codeInternal     = "internal"
)

var errEmptyBody = errors.New("request body is required")

func handlePanic(c *gin.Context, route string) {
	if r := recover(); r != nil {
		log.Error().Interface("panic", r).Str("route", c.FullPath()).Msgf("[%s] panic recovered", route)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal server error", "code": codeInternal})
	}
}

func requestContext(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), requestTimeout)
}

func respondWithError(c *gin.Context, status int, code, route, message string) {
	event := log.Warn()
	if status >= http.StatusInternalServerError {
		event = log.Error()
	}
	event.Int("status", status).Str("route", c.FullPath()).Msgf("[%s] %s", route, message)
	c.AbortWithStatusJSON(status, gin.H{"error": message, "code": code})
}

// respondStoreError maps store sentinels to responses. notFoundStatus lets
// round creation report a missing user as 400.
func respondStoreError(c *gin.Context, route string, err error, notFoundStatus int, notFoundMessage string) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		respondWithError(c, notFoundStatus, codeNotFound, route, notFoundMessage)
	case errors.Is(err, store.ErrConflict):
		respondWithError(c, http.StatusConflict, codeConflict, route, "account identifier is already taken")
	case errors.Is(err, context.DeadlineExceeded):
		respondWithError(c, http.StatusGatewayTimeout, codeInternal, route, "database timeout")
	default:
		log.Error().Err(err).Str("route", c.FullPath()).Msgf("[%s] store failure", route)
		respondWithError(c, http.StatusInternalServerError, codeInternal, route, "db error")
	}
}

func respondValidationError(c *gin.Context, route string, err error) {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		details := make([]string, 0, len(validationErrors))
		for _, fieldError := range validationErrors {
			field := lowerCamel(fieldError.Field())
			switch fieldError.Tag() {
			case "required":
				details = append(details, fmt.Sprintf("%s is required", field))
			case "min", "max":
				details = append(details, fmt.Sprintf("%s must satisfy %s=%s", field, fieldError.Tag(), fieldError.Param()))
			case "datetime":
				details = append(details, fmt.Sprintf("%s must be a YYYY-MM-DD date", field))
			default:
				details = append(details, fmt.Sprintf("%s is invalid", field))
			}
		}
		log.Warn().Strs("details", details).Str("route", c.FullPath()).Msgf("[%s] validation failed", route)
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
			"error":   "validation failed: " + strings.Join(details, "; "),
			"code":    codeValidation,
			"details": details,
		})
		return
	}

	respondWithError(c, http.StatusBadRequest, codeValidation, route, "invalid body: "+err.Error())
}

func lowerCamel(field string) string {
	if field == "" {
		return field
	}
	return strings.ToLower(field[:1]) + field[1:]
}

// readJSONObject reads the body as a JSON object keyed by property name and
// restores it so it can be bound again.
func readJSONObject(c *gin.Context) (map[string]json.RawMessage, error) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, errEmptyBody
	}

	var keys map[string]json.RawMessage
	if err := json.Unmarshal(body, &keys); err != nil {
		return nil, fmt.Errorf("invalid JSON object: %w", err)
	}
	if keys == nil {
		return nil, errEmptyBody
	}

	c.Request.Body = io.NopCloser(bytes.NewReader(body))
	return keys, nil
}
