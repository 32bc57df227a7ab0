package syncclient

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-resty/resty/v2"

	"speedgolf/internal/models"
)

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

type loginResponse struct {
	AccessToken string      `json:"accessToken"`
	User        models.User `json:"user"`
}

type authTestResponse struct {
	IsAuthenticated bool         `json:"isAuthenticated"`
	User            *models.User `json:"user"`
}

type messageResponse struct {
	Message string `json:"message"`
}

type createRoundResponse struct {
	Message      string       `json:"message"`
	Round        models.Round `json:"round"`
	RoundsLogged int          `json:"roundsLogged"`
}

type updateRoundResponse struct {
	Message string       `json:"message"`
	Round   models.Round `json:"round"`
}

type deleteRoundResponse struct {
	Message      string `json:"message"`
	RoundsLogged int    `json:"roundsLogged"`
}

type updateUserResponse struct {
	Message     string      `json:"message"`
	User        models.User `json:"user"`
	AccessToken string      `json:"accessToken"`
}

// call is one request to the server. token may be empty, body and result may
// be nil.
type call struct {
	op         string
	method     string
	path       string
	pathParams map[string]string
	token      string
	body       interface{}
	result     interface{}
}

func (c *Client) do(ctx context.Context, rc call) error {
	var failure errorBody
	req := c.http.R().
		SetContext(ctx).
		SetError(&failure)
	if rc.pathParams != nil {
		req.SetPathParams(rc.pathParams)
	}
	if rc.token != "" {
		req.SetAuthToken(rc.token)
	}
	if rc.body != nil {
		req.SetHeader("Content-Type", "application/json").SetBody(rc.body)
	}
	if rc.result != nil {
		req.SetResult(rc.result)
	}

	resp, err := req.Execute(rc.method, rc.path)
	if err != nil {
		c.logger.Warn().Err(err).Str("op", rc.op).Msg("request failed")
		return &NetworkError{Op: rc.op, Err: err}
	}
	if resp.IsError() {
		apiErr := newAPIError(resp, failure)
		c.logger.Debug().Str("op", rc.op).Int("status", apiErr.Status).Str("code", apiErr.Code).Msg(apiErr.Message)
		return apiErr
	}
	return nil
}

func newAPIError(resp *resty.Response, failure errorBody) *APIError {
	apiErr := &APIError{Status: resp.StatusCode(), Code: failure.Code, Message: failure.Error}
	if apiErr.Message == "" {
		apiErr.Message = strings.TrimSpace(resp.String())
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(apiErr.Status)
	}
	return apiErr
}

func (c *Client) testAuth(ctx context.Context, token string) (authTestResponse, error) {
	var out authTestResponse
	err := c.do(ctx, call{
		op:     "auth test",
		method: http.MethodGet,
		path:   "/auth/test",
		token:  token,
		result: &out,
	})
	return out, err
}

func (c *Client) fetchUser(ctx context.Context, session Session) (models.User, error) {
	var out models.User
	err := c.do(ctx, call{
		op:         "get user",
		method:     http.MethodGet,
		path:       "/users/{id}",
		pathParams: map[string]string{"id": session.AccountID},
		token:      session.Token,
		result:     &out,
	})
	return out, err
}

func (c *Client) fetchRounds(ctx context.Context, session Session) ([]models.Round, error) {
	var out []models.Round
	err := c.do(ctx, call{
		op:         "list rounds",
		method:     http.MethodGet,
		path:       "/rounds/{userId}",
		pathParams: map[string]string{"userId": session.AccountID},
		token:      session.Token,
		result:     &out,
	})
	if out == nil {
		out = []models.Round{}
	}
	return out, err
}
