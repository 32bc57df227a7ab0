package syncclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"speedgolf/internal/cache"
	"speedgolf/internal/models"
)

const accountKey = "account"

// NewAccount is the signup form.
type NewAccount struct {
	ID               string
	Password         string
	SecurityQuestion string
	SecurityAnswer   string
	DisplayName      string
}

type accountUpdateBody struct {
	AccountData   *models.AccountData   `json:"accountData,omitempty"`
	IdentityData  *models.IdentityData  `json:"identityData,omitempty"`
	SpeedgolfData *models.SpeedgolfData `json:"speedgolfData,omitempty"`
}

// Boot restores the session persisted in the cache. The server copy of the
// user wins when it is reachable; otherwise the cached snapshot is shown
// with State.Offline set.
func (c *Client) Boot(ctx context.Context) (string, error) {
	stored, err := c.cache.Session()
	if errors.Is(err, cache.ErrNotFound) {
		return "Not logged in.", nil
	}
	if err != nil {
		return "Could not read the local cache.", err
	}
	session := Session{AccountID: stored.AccountID, Token: stored.Token}

	auth, err := c.testAuth(ctx, session.Token)
	var netErr *NetworkError
	switch {
	case errors.As(err, &netErr):
		return c.bootOffline(session, err)
	case err != nil && !errors.Is(err, ErrUnauthorized):
		return "Could not restore the session. " + reason(err), err
	case err != nil || !auth.IsAuthenticated || auth.User == nil:
		if clearErr := c.clear(); clearErr != nil {
			return "Session expired. Please log in again.", clearErr
		}
		return "Session expired. Please log in again.", ErrUnauthorized
	}

	session.AccountID = auth.User.AccountData.ID
	if err := c.startSession(session, *auth.User); err != nil {
		return "Could not restore the session. " + reason(err), err
	}
	c.logger.Info().Str("accountId", session.AccountID).Msg("session restored")
	return "Welcome back, " + auth.User.IdentityData.DisplayName + ".", nil
}

func (c *Client) bootOffline(session Session, cause error) (string, error) {
	user, err := c.cache.Get(session.AccountID)
	if err != nil {
		return "Server unreachable and no cached data.", cause
	}

	c.mu.Lock()
	c.session = &session
	c.state = State{Authenticated: true, Offline: true, User: user, SelectedRound: -1}
	c.gen++
	c.mu.Unlock()

	c.logger.Warn().Err(cause).Str("accountId", session.AccountID).Msg("server unreachable, using cached snapshot")
	return "Offline. Showing cached data.", nil
}

// Login authenticates with a local account.
func (c *Client) Login(ctx context.Context, username, password string) (string, error) {
	const failure = "Login failed. "

	var out loginResponse
	err := c.do(ctx, call{
		op:     "login",
		method: http.MethodPost,
		path:   "/auth/login",
		body:   map[string]string{"username": username, "password": password},
		result: &out,
	})
	if err != nil {
		return failure + reason(err), err
	}

	session := Session{AccountID: out.User.AccountData.ID, Token: out.AccessToken}
	if err := c.startSession(session, out.User); err != nil {
		return failure + reason(err), err
	}
	c.logger.Info().Str("accountId", session.AccountID).Msg("logged in")
	return "Logged in as " + session.AccountID + ".", nil
}

// LoginWithToken starts a session from a token handed out by a third-party
// login callback.
func (c *Client) LoginWithToken(ctx context.Context, token string) (string, error) {
	const failure = "Login failed. "

	auth, err := c.testAuth(ctx, token)
	if err != nil {
		return failure + reason(err), err
	}
	if !auth.IsAuthenticated || auth.User == nil {
		return failure + "Token rejected.", ErrUnauthorized
	}

	session := Session{AccountID: auth.User.AccountData.ID, Token: token}
	if err := c.startSession(session, *auth.User); err != nil {
		return failure + reason(err), err
	}
	c.logger.Info().Str("accountId", session.AccountID).Msg("logged in with token")
	return "Logged in as " + session.AccountID + ".", nil
}

// Logout ends the session. The server call is best effort; the local cache
// is always cleared.
func (c *Client) Logout(ctx context.Context) (string, error) {
	if session, ok := c.Session(); ok {
		if err := c.do(ctx, call{op: "logout", method: http.MethodPost, path: "/auth/logout", token: session.Token}); err != nil {
			c.logger.Warn().Err(err).Msg("server logout failed")
		}
	}
	if err := c.clear(); err != nil {
		return "Logged out, but the local cache could not be cleared.", err
	}
	return "Logged out.", nil
}

// clear empties the cache and resets the state. The in-memory state is reset
// even when the cache cannot be cleared.
func (c *Client) clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resetLocked()
	if err := c.cache.Clear(); err != nil {
		return fmt.Errorf("cache clear: %w", err)
	}
	return nil
}

// CreateAccount registers a local account. It does not log in.
func (c *Client) CreateAccount(ctx context.Context, account NewAccount) (string, error) {
	const failure = "New account was not created. "

	body := map[string]interface{}{
		"accountData": map[string]string{
			"id":               account.ID,
			"password":         account.Password,
			"securityQuestion": account.SecurityQuestion,
			"securityAnswer":   account.SecurityAnswer,
		},
	}
	if account.DisplayName != "" {
		body["identityData"] = models.IdentityData{DisplayName: account.DisplayName}
	}

	var out messageResponse
	err := c.do(ctx, call{
		op:         "create account",
		method:     http.MethodPost,
		path:       "/users/{id}",
		pathParams: map[string]string{"id": account.ID},
		body:       body,
		result:     &out,
	})
	if err != nil {
		return failure + reason(err), err
	}
	return "New account created with email " + account.ID, nil
}

// AccountExists reports whether an account with id is registered.
func (c *Client) AccountExists(ctx context.Context, id string) (bool, error) {
	err := c.do(ctx, call{
		op:         "account exists",
		method:     http.MethodGet,
		path:       "/users/{id}",
		pathParams: map[string]string{"id": id},
	})
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrNotFound):
		return false, nil
	}
	return false, err
}

// Refresh pulls the owner snapshot from the server and replaces the local one.
func (c *Client) Refresh(ctx context.Context) (string, error) {
	const failure = "Could not refresh account data. "

	session, err := c.currentSession()
	if err != nil {
		return failure + reason(err), err
	}
	since := c.generation()
	user, err := c.fetchUser(ctx, session)
	if err != nil {
		return failure + reason(err), err
	}
	err = c.commitOrReconcile(ctx, session, since, func(current *models.User, _ *State) {
		*current = user
	}, nil)
	if err != nil {
		return failure + reason(err), err
	}
	return "Account data refreshed.", nil
}

// UpdateUserAccount edits the profile of the logged in user. Each given
// section patch is merged field by field onto the cached snapshot and the
// merged section is sent whole. Changing the account id renames the account;
// the cache keeps a single entry under the new identifier and the session
// moves to the new token.
func (c *Client) UpdateUserAccount(ctx context.Context, update AccountUpdate) (string, error) {
	const failure = "User Data Could not be updated. "

	session, err := c.currentSession()
	if err != nil {
		return failure + reason(err), err
	}
	since := c.generation()
	current := c.State().User

	if update.AccountData != nil && !current.AccountData.LocallyOwned() {
		return "Account by third party. Nothing to edit!", ErrThirdPartyAccount
	}
	if update.isEmpty() {
		return failure + "No user data to update.", ErrValidation
	}

	done, err := c.begin(accountKey)
	if err != nil {
		return failure + reason(err), err
	}
	defer done()

	var out updateUserResponse
	err = c.do(ctx, call{
		op:         "update account",
		method:     http.MethodPut,
		path:       "/users/{id}",
		pathParams: map[string]string{"id": session.AccountID},
		token:      session.Token,
		body:       update.body(current),
		result:     &out,
	})
	if err != nil {
		return failure + reason(err), err
	}

	next := Session{AccountID: out.User.AccountData.ID, Token: out.AccessToken}
	if next.Token == "" {
		next.Token = session.Token
	}
	user := out.User
	err = c.commitAccount(session, next, since, user)
	for attempt := 0; errors.Is(err, errStaleState) && attempt < maxReconcile; attempt++ {
		since = c.generation()
		if user, err = c.fetchUser(ctx, next); err != nil {
			break
		}
		err = c.commitAccount(session, next, since, user)
	}
	if err != nil {
		return failure + reason(err), err
	}
	c.logger.Info().Str("accountId", next.AccountID).Msg("account updated")
	return "User Data Updated.", nil
}

// commitAccount stores user, re-keying the cache and moving the session from
// previous to next when the account identifier changed.
func (c *Client) commitAccount(previous, next Session, since uint64, user models.User) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session == nil || c.session.AccountID != previous.AccountID {
		return ErrNotAuthenticated
	}
	if c.gen != since {
		return errStaleState
	}

	state := c.state.clone()
	state.User = user.Clone()
	if state.SelectedRound >= len(state.User.Rounds) {
		state.SelectedRound = -1
	}
	state.Offline = false

	if next.AccountID == previous.AccountID {
		if err := c.cache.Put(state.User); err != nil {
			return fmt.Errorf("cache write: %w", err)
		}
	} else {
		err := c.cache.Rekey(previous.AccountID, state.User, &cache.Session{AccountID: next.AccountID, Token: next.Token})
		if err != nil {
			return fmt.Errorf("cache rekey: %w", err)
		}
		c.session = &next
	}
	c.state = state
	c.gen++
	return nil
}
