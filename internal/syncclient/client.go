// Package syncclient keeps the client-side view of a user in step with the
// server. Every mutation is sent to the server first and is committed to the
// local cache and then to the in-memory state only after the server accepted
// it.
package syncclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"speedgolf/internal/cache"
	"speedgolf/internal/models"
)

const (
	defaultTimeout = 10 * time.Second
	maxReconcile   = 3
)

// Cache is the durable local store of snapshots and the session.
type Cache interface {
	Get(accountID string) (models.User, error)
	Put(user models.User) error
	PutWithSession(user models.User, session cache.Session) error
	Rekey(oldID string, user models.User, session *cache.Session) error
	Session() (cache.Session, error)
	Clear() error
}

// Session is the logged in identity of the client.
type Session struct {
	AccountID string
	Token     string
}

// State is what a UI renders. SelectedRound is -1 when nothing is selected.
type State struct {
	Authenticated bool
	Offline       bool
	User          models.User
	RoundAdded    bool
	SelectedRound int
}

func (s State) clone() State {
	out := s
	out.User = s.User.Clone()
	return out
}

type Option func(*Client)

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

type Client struct {
	http   *resty.Client
	cache  Cache
	logger zerolog.Logger

	timeout    time.Duration
	httpClient *http.Client

	mu      sync.Mutex
	state   State
	session *Session

	// gen counts commits; it lets a commit detect that the data it fetched
	// may predate another commit.
	gen uint64

	flightMu sync.Mutex
	inFlight map[string]struct{}
}

func New(baseURL string, c Cache, opts ...Option) *Client {
	client := &Client{
		cache:    c,
		logger:   zerolog.Nop(),
		timeout:  defaultTimeout,
		state:    State{SelectedRound: -1},
		inFlight: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(client)
	}

	if client.httpClient != nil {
		client.http = resty.NewWithClient(client.httpClient)
	} else {
		client.http = resty.New()
	}
	client.http.
		SetBaseURL(baseURL).
		SetTimeout(client.timeout).
		SetHeader("Accept", "application/json")
	return client
}

// State returns a copy of the current state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.clone()
}

// Session returns the current session, if any.
func (c *Client) Session() (Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return Session{}, false
	}
	return *c.session, true
}

// SelectRound marks round i for editing or deletion; -1 clears the selection.
func (c *Client) SelectRound(i int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if i < -1 || i >= len(c.state.User.Rounds) {
		return fmt.Errorf("round %d: %w", i, ErrNotFound)
	}
	c.state.SelectedRound = i
	return nil
}

// AcknowledgeRoundAdded clears the RoundAdded flag once the UI has shown it.
func (c *Client) AcknowledgeRoundAdded() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.RoundAdded = false
}

func (c *Client) currentSession() (Session, error) {
	s, ok := c.Session()
	if !ok {
		return Session{}, ErrNotAuthenticated
	}
	return s, nil
}

// begin moves the entity named key to the in-flight state. The returned
// function moves it back to idle.
func (c *Client) begin(key string) (func(), error) {
	c.flightMu.Lock()
	defer c.flightMu.Unlock()
	if _, busy := c.inFlight[key]; busy {
		return nil, ErrMutationInFlight
	}
	c.inFlight[key] = struct{}{}
	return func() {
		c.flightMu.Lock()
		delete(c.inFlight, key)
		c.flightMu.Unlock()
	}, nil
}

// commit applies fn to a copy of the user owned by accountID, writes the copy
// to the cache and only then swaps it into the state. It fails with
// errStaleState when another commit happened after generation since, and
// leaves the state as is on any failure.
func (c *Client) commit(accountID string, since uint64, fn func(user *models.User, state *State)) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session == nil || c.session.AccountID != accountID {
		return ErrNotAuthenticated
	}
	if c.gen != since {
		return errStaleState
	}

	next := c.state.clone()
	fn(&next.User, &next)
	if next.SelectedRound >= len(next.User.Rounds) {
		next.SelectedRound = -1
	}
	if err := c.cache.Put(next.User); err != nil {
		return fmt.Errorf("cache write: %w", err)
	}
	next.Offline = false
	c.state = next
	c.gen++
	return nil
}

// commitOrReconcile commits fn when nothing else was committed since the
// operation started. Otherwise the result of fn may be stale, so the owner
// snapshot is pulled again and committed instead; mark still runs on it.
func (c *Client) commitOrReconcile(ctx context.Context, session Session, since uint64, fn, mark func(user *models.User, state *State)) error {
	err := c.commit(session.AccountID, since, func(user *models.User, state *State) {
		fn(user, state)
		if mark != nil {
			mark(user, state)
		}
	})
	for attempt := 0; errors.Is(err, errStaleState) && attempt < maxReconcile; attempt++ {
		since = c.generation()
		fresh, fetchErr := c.fetchUser(ctx, session)
		if fetchErr != nil {
			return fetchErr
		}
		c.logger.Debug().Str("accountId", session.AccountID).Int("attempt", attempt+1).Msg("reconciling with server snapshot")
		err = c.commit(session.AccountID, since, func(user *models.User, state *State) {
			*user = fresh
			if mark != nil {
				mark(user, state)
			}
		})
	}
	return err
}

func (c *Client) generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen
}

// startSession replaces user, state and session after a login.
func (c *Client) startSession(session Session, user models.User) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.cache.PutWithSession(user, cache.Session{AccountID: session.AccountID, Token: session.Token}); err != nil {
		return fmt.Errorf("cache write: %w", err)
	}
	c.session = &session
	c.state = State{Authenticated: true, User: user.Clone(), SelectedRound: -1}
	c.gen++
	return nil
}

func (c *Client) resetLocked() {
	c.session = nil
	c.state = State{SelectedRound: -1}
	c.gen++
}
