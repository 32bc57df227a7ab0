package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"speedgolf/internal/models"
	"speedgolf/internal/store"
	"speedgolf/internal/token"
)

type testEnv struct {
	router *gin.Engine
	store  *store.MemoryStore
	tokens *token.Issuer
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	st := store.NewMemoryStore()
	tokens := token.NewIssuer("test-secret", time.Hour)
	router := NewRouter(Deps{
		Store:       st,
		Tokens:      tokens,
		DeployURL:   "http://api.test",
		FrontendURL: "http://app.test",
		OAuthProviders: map[string]OAuthProviderConfig{
			"github": {ClientID: "client", ClientSecret: "secret"},
		},
	})
	return &testEnv{router: router, store: st, tokens: tokens}
}

func (e *testEnv) do(t *testing.T, method, path, session string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if session != "" {
		req.Header.Set("Authorization", "Bearer "+session)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

// signup creates a local account through the API and returns a session token.
func (e *testEnv) signup(t *testing.T, id, password string) string {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/users/"+id, "", gin.H{
		"accountData":  gin.H{"id": id, "password": password},
		"identityData": gin.H{"displayName": "Ann"},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	session, err := e.tokens.Issue(id)
	require.NoError(t, err)
	return session
}

func fullRound() gin.H {
	return gin.H{
		"date":    "2024-05-01",
		"course":  "Pebble Beach",
		"type":    "practice",
		"holes":   18,
		"strokes": 80,
		"minutes": 55,
		"seconds": 0,
		"notes":   "",
	}
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out), rec.Body.String())
}

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

type createdRound struct {
	Message      string       `json:"message"`
	Round        models.Round `json:"round"`
	RoundsLogged int          `json:"roundsLogged"`
}

func TestCreateRoundAcceptsZeroValuesAndCounts(t *testing.T) {
	env := newTestEnv(t)
	session := env.signup(t, "ann@example.com", "pw")

	rec := env.do(t, http.MethodPost, "/rounds/ann@example.com", session, fullRound())
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var body createdRound
	decode(t, rec, &body)
	assert.Equal(t, 1, body.RoundsLogged)
	assert.False(t, body.Round.ID.IsZero())
	assert.Equal(t, 0, body.Round.Seconds)

	rec = env.do(t, http.MethodGet, "/rounds/ann@example.com", session, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var rounds []models.Round
	decode(t, rec, &rounds)
	require.Len(t, rounds, 1)
	assert.Equal(t, body.Round.ID, rounds[0].ID)
}

func TestCreateRoundListsEveryMissingField(t *testing.T) {
	env := newTestEnv(t)
	session := env.signup(t, "ann@example.com", "pw")

	round := fullRound()
	delete(round, "notes")
	delete(round, "holes")
	rec := env.do(t, http.MethodPost, "/rounds/ann@example.com", session, round)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var body errorBody
	decode(t, rec, &body)
	assert.Equal(t, codeValidation, body.Code)
	assert.Contains(t, body.Error, "Missing: holes, notes.")

	rounds, err := env.store.ListRounds(t.Context(), "ann@example.com")
	require.NoError(t, err)
	assert.Empty(t, rounds)
}

func TestCreateRoundRejectsSchemaViolation(t *testing.T) {
	env := newTestEnv(t)
	session := env.signup(t, "ann@example.com", "pw")

	round := fullRound()
	round["seconds"] = 75
	rec := env.do(t, http.MethodPost, "/rounds/ann@example.com", session, round)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var body errorBody
	decode(t, rec, &body)
	assert.Equal(t, codeValidation, body.Code)
	assert.Contains(t, body.Error, "seconds")
}

func TestCreateRoundForOtherUserIsForbidden(t *testing.T) {
	env := newTestEnv(t)
	session := env.signup(t, "ann@example.com", "pw")
	env.signup(t, "bob@example.com", "pw")

	rec := env.do(t, http.MethodPost, "/rounds/bob@example.com", session, fullRound())
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, http.MethodPost, "/rounds/ann@example.com", "", fullRound())
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCreateRoundForMissingUser(t *testing.T) {
	env := newTestEnv(t)
	session, err := env.tokens.Issue("ghost@example.com")
	require.NoError(t, err)

	rec := env.do(t, http.MethodPost, "/rounds/ghost@example.com", session, fullRound())
	require.Equal(t, http.StatusBadRequest, rec.Code)
	var body errorBody
	decode(t, rec, &body)
	assert.Equal(t, codeNotFound, body.Code)
	assert.Contains(t, body.Error, "does not exist")
}

func TestUpdateRoundRejectsIllegalFieldWithoutEffect(t *testing.T) {
	env := newTestEnv(t)
	session := env.signup(t, "ann@example.com", "pw")
	rec := env.do(t, http.MethodPost, "/rounds/ann@example.com", session, fullRound())
	var created createdRound
	decode(t, rec, &created)

	rec = env.do(t, http.MethodPut, "/rounds/"+created.Round.ID.Hex(), session, gin.H{"strokes": 70, "illegal": 123})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	var body errorBody
	decode(t, rec, &body)
	assert.Contains(t, body.Error, "illegal")

	rounds, err := env.store.ListRounds(t.Context(), "ann@example.com")
	require.NoError(t, err)
	assert.Equal(t, 80, rounds[0].Strokes)
}

func TestUpdateRoundPatchesOwnRoundOnly(t *testing.T) {
	env := newTestEnv(t)
	ann := env.signup(t, "ann@example.com", "pw")
	bob := env.signup(t, "bob@example.com", "pw")
	rec := env.do(t, http.MethodPost, "/rounds/ann@example.com", ann, fullRound())
	var created createdRound
	decode(t, rec, &created)
	path := "/rounds/" + created.Round.ID.Hex()

	rec = env.do(t, http.MethodPut, path, ann, gin.H{"strokes": 70, "notes": "windy"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var updated struct {
		Round models.Round `json:"round"`
	}
	decode(t, rec, &updated)
	assert.Equal(t, 70, updated.Round.Strokes)
	assert.Equal(t, "windy", updated.Round.Notes)
	assert.Equal(t, "Pebble Beach", updated.Round.Course)

	// Same values again is still a success.
	rec = env.do(t, http.MethodPut, path, ann, gin.H{"strokes": 70})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodPut, path, bob, gin.H{"strokes": 60})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodPut, path, ann, "{}")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPut, "/rounds/not-an-id", ann, gin.H{"strokes": 60})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeleteRound(t *testing.T) {
	env := newTestEnv(t)
	session := env.signup(t, "ann@example.com", "pw")
	rec := env.do(t, http.MethodPost, "/rounds/ann@example.com", session, fullRound())
	var created createdRound
	decode(t, rec, &created)
	env.do(t, http.MethodPost, "/rounds/ann@example.com", session, fullRound())

	rec = env.do(t, http.MethodDelete, "/rounds/"+created.Round.ID.Hex(), session, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var body struct {
		RoundsLogged int `json:"roundsLogged"`
	}
	decode(t, rec, &body)
	assert.Equal(t, 1, body.RoundsLogged)

	rec = env.do(t, http.MethodDelete, "/rounds/"+created.Round.ID.Hex(), session, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateUserValidation(t *testing.T) {
	env := newTestEnv(t)
	env.signup(t, "ann@example.com", "pw")

	rec := env.do(t, http.MethodPost, "/users/ann@example.com", "", gin.H{
		"accountData": gin.H{"id": "ann@example.com", "password": "pw"},
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = env.do(t, http.MethodPost, "/users/bob@example.com", "", gin.H{
		"accountData": gin.H{"id": "other@example.com", "password": "pw"},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/users/bob@example.com", "", gin.H{
		"accountData": gin.H{"id": "bob@example.com"},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetUserHidesSnapshotFromOthers(t *testing.T) {
	env := newTestEnv(t)
	session := env.signup(t, "ann@example.com", "pw")

	rec := env.do(t, http.MethodGet, "/users/ann@example.com", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"id":"ann@example.com"}`, rec.Body.String())

	rec = env.do(t, http.MethodGet, "/users/ann@example.com", session, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var user models.User
	decode(t, rec, &user)
	assert.Equal(t, "Ann", user.IdentityData.DisplayName)
	assert.NotEmpty(t, user.AccountData.Password)
	assert.NotNil(t, user.Rounds)

	rec = env.do(t, http.MethodGet, "/users/nobody@example.com", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpdateUserRejectsServerManagedFields(t *testing.T) {
	env := newTestEnv(t)
	session := env.signup(t, "ann@example.com", "pw")

	rec := env.do(t, http.MethodPut, "/users/ann@example.com", session, gin.H{"roundsLogged": 10})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	user, err := env.store.GetUser(t.Context(), "ann@example.com")
	require.NoError(t, err)
	assert.Equal(t, 0, user.RoundsLogged)
}

func TestUpdateUserKeepsPasswordAndRenames(t *testing.T) {
	env := newTestEnv(t)
	session := env.signup(t, "ann@example.com", "pw")
	env.signup(t, "taken@example.com", "pw")
	before, err := env.store.GetUser(t.Context(), "ann@example.com")
	require.NoError(t, err)

	rec := env.do(t, http.MethodPut, "/users/ann@example.com", session, gin.H{
		"accountData": gin.H{"id": "taken@example.com", "password": ""},
	})
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = env.do(t, http.MethodPut, "/users/ann@example.com", session, gin.H{
		"accountData":   gin.H{"id": "anne@example.com", "password": before.AccountData.Password},
		"speedgolfData": gin.H{"bio": "fast", "clubs": []string{"driver"}},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body struct {
		User        models.User `json:"user"`
		AccessToken string      `json:"accessToken"`
	}
	decode(t, rec, &body)
	assert.Equal(t, "anne@example.com", body.User.AccountData.ID)
	assert.Equal(t, before.AccountData.Password, body.User.AccountData.Password)
	assert.Equal(t, "fast", body.User.SpeedgolfData.Bio)
	require.NotEmpty(t, body.AccessToken)

	id, err := env.tokens.Parse(body.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "anne@example.com", id)

	rec = env.do(t, http.MethodPost, "/auth/login?username=anne@example.com&password=pw", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestUpdateUserRefusesThirdPartyAccountData(t *testing.T) {
	env := newTestEnv(t)
	_, _, err := env.store.FindOrCreateOAuthUser(t.Context(), &models.User{AccountData: models.AccountData{ID: "ann@github"}})
	require.NoError(t, err)
	session, err := env.tokens.Issue("ann@github")
	require.NoError(t, err)

	rec := env.do(t, http.MethodPut, "/users/ann@github", session, gin.H{
		"accountData": gin.H{"id": "ann@github", "password": "new"},
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, http.MethodPut, "/users/ann@github", session, gin.H{
		"identityData": gin.H{"displayName": "Ann G"},
	})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestLoginAndSessionTest(t *testing.T) {
	env := newTestEnv(t)
	env.signup(t, "ann@example.com", "pw")

	rec := env.do(t, http.MethodPost, "/auth/login", "", gin.H{"username": "ann@example.com", "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodPost, "/auth/login", "", gin.H{"username": "nobody", "password": "pw"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodPost, "/auth/login", "", gin.H{"username": "ann@example.com", "password": "pw"})
	require.Equal(t, http.StatusOK, rec.Code)
	var login struct {
		AccessToken string      `json:"accessToken"`
		User        models.User `json:"user"`
	}
	decode(t, rec, &login)
	assert.Equal(t, "ann@example.com", login.User.AccountData.ID)
	assert.Contains(t, rec.Header().Get("Set-Cookie"), "sg_session=")

	rec = env.do(t, http.MethodGet, "/auth/test", login.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var status struct {
		IsAuthenticated bool        `json:"isAuthenticated"`
		User            models.User `json:"user"`
	}
	decode(t, rec, &status)
	assert.True(t, status.IsAuthenticated)
	assert.Equal(t, "ann@example.com", status.User.AccountData.ID)

	rec = env.do(t, http.MethodGet, "/auth/test", "", nil)
	assert.JSONEq(t, `{"isAuthenticated":false}`, rec.Body.String())
}

// legacyStore serves documents written before rounds were stored, which
// have no rounds array at all.
type legacyStore struct {
	*store.MemoryStore
}

func (s legacyStore) GetUser(ctx context.Context, accountID string) (*models.User, error) {
	user, err := s.MemoryStore.GetUser(ctx, accountID)
	if err != nil {
		return nil, err
	}
	user.Rounds = nil
	return user, nil
}

func TestLoginAndSessionTestNormalizeMissingRounds(t *testing.T) {
	env := newTestEnv(t)
	env.signup(t, "ann@example.com", "pw")
	env.router = NewRouter(Deps{Store: legacyStore{env.store}, Tokens: env.tokens})

	rec := env.do(t, http.MethodPost, "/auth/login", "", gin.H{"username": "ann@example.com", "password": "pw"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var login struct {
		AccessToken string `json:"accessToken"`
		User        struct {
			Rounds json.RawMessage `json:"rounds"`
		} `json:"user"`
	}
	decode(t, rec, &login)
	assert.JSONEq(t, `[]`, string(login.User.Rounds))

	rec = env.do(t, http.MethodGet, "/auth/test", login.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var status struct {
		User struct {
			Rounds json.RawMessage `json:"rounds"`
		} `json:"user"`
	}
	decode(t, rec, &status)
	assert.JSONEq(t, `[]`, string(status.User.Rounds))
}

func TestOAuthRedirect(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/auth/oauth/google", "", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = env.do(t, http.MethodGet, "/auth/oauth/github", "", nil)
	require.Equal(t, http.StatusFound, rec.Code)
	location := rec.Header().Get("Location")
	assert.Contains(t, location, "github.com")
	assert.Contains(t, location, "state=")
	assert.Contains(t, location, "redirect_uri=http%3A%2F%2Fapi.test%2Fauth%2Foauth%2Fgithub%2Fcallback")

	rec = env.do(t, http.MethodGet, "/auth/oauth/github/callback?state=forged&code=x", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
