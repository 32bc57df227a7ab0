package syncclient

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"speedgolf/internal/cache"
	"speedgolf/internal/handlers"
	"speedgolf/internal/models"
	"speedgolf/internal/store"
	"speedgolf/internal/token"
)

const (
	testAccount  = "ann@example.com"
	testPassword = "s3cret-pass"
)

type testServer struct {
	*httptest.Server
	store  *store.MemoryStore
	tokens *token.Issuer
	router http.Handler

	mu        sync.Mutex
	intercept func(w http.ResponseWriter, r *http.Request) bool
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	ts := &testServer{
		store:  store.NewMemoryStore(),
		tokens: token.NewIssuer("test-secret", time.Hour),
	}
	router := handlers.NewRouter(handlers.Deps{Store: ts.store, Tokens: ts.tokens})
	ts.router = router
	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ts.mu.Lock()
		intercept := ts.intercept
		ts.mu.Unlock()
		if intercept != nil && intercept(w, r) {
			return
		}
		router.ServeHTTP(w, r)
	}))
	t.Cleanup(ts.Close)
	return ts
}

// failWhen answers matching requests with a 500 instead of routing them.
func (ts *testServer) failWhen(match func(r *http.Request) bool) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.intercept = func(w http.ResponseWriter, r *http.Request) bool {
		if !match(r) {
			return false
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"injected failure","code":"internal"}`))
		return true
	}
}

func (ts *testServer) setIntercept(fn func(w http.ResponseWriter, r *http.Request) bool) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.intercept = fn
}

// holdFirstResponse routes the first request matching match right away but
// only delivers its response once release is closed. entered is closed when
// the response is ready.
func (ts *testServer) holdFirstResponse(match func(r *http.Request) bool) (entered, release chan struct{}) {
	entered = make(chan struct{})
	release = make(chan struct{})
	var mu sync.Mutex
	taken := false
	ts.setIntercept(func(w http.ResponseWriter, r *http.Request) bool {
		mu.Lock()
		held := !taken && match(r)
		if held {
			taken = true
		}
		mu.Unlock()
		if !held {
			return false
		}
		rec := httptest.NewRecorder()
		ts.router.ServeHTTP(rec, r)
		close(entered)
		<-release
		for key, values := range rec.Header() {
			w.Header()[key] = values
		}
		w.WriteHeader(rec.Code)
		_, _ = w.Write(rec.Body.Bytes())
		return true
	})
	return entered, release
}

func openCache(t *testing.T, dir string) *cache.Store {
	t.Helper()
	c, err := cache.Open(filepath.Join(dir, "cache.json"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func roundFields(course string) models.RoundFields {
	return models.RoundFields{
		Date:    "2024-05-01",
		Course:  course,
		Type:    "practice",
		Holes:   18,
		Strokes: 80,
		Minutes: 50,
		Seconds: 10,
		Notes:   "",
	}
}

// loggedInClient signs up testAccount, logs in and logs n rounds.
func loggedInClient(t *testing.T, ts *testServer, c Cache, n int) *Client {
	t.Helper()
	client := New(ts.URL, c, WithTimeout(5*time.Second))
	ctx := t.Context()

	_, err := client.CreateAccount(ctx, NewAccount{ID: testAccount, Password: testPassword, DisplayName: "Ann"})
	require.NoError(t, err)
	_, err = client.Login(ctx, testAccount, testPassword)
	require.NoError(t, err)

	for i := 0; i < n; i++ {
		_, err := client.AddRound(ctx, roundFields("Course"))
		require.NoError(t, err)
	}
	return client
}

func TestAddRoundCommitsServerList(t *testing.T) {
	ts := newTestServer(t)
	c := openCache(t, t.TempDir())
	client := loggedInClient(t, ts, c, 3)

	msg, err := client.AddRound(t.Context(), roundFields("Pebble Beach"))
	require.NoError(t, err)
	assert.Equal(t, "New round logged.", msg)

	state := client.State()
	assert.True(t, state.RoundAdded)
	require.Len(t, state.User.Rounds, 4)
	assert.Equal(t, 4, state.User.RoundsLogged)
	assert.Equal(t, "Pebble Beach", state.User.Rounds[3].Course)
	assert.False(t, state.User.Rounds[3].ID.IsZero())

	cached, err := c.Get(testAccount)
	require.NoError(t, err)
	assert.Equal(t, state.User.Rounds, cached.Rounds)
	assert.Equal(t, 4, cached.RoundsLogged)

	client.AcknowledgeRoundAdded()
	assert.False(t, client.State().RoundAdded)
}

func TestAddRoundFailureAfterCreateLeavesStateAndCacheUntouched(t *testing.T) {
	ts := newTestServer(t)
	dir := t.TempDir()
	c := openCache(t, dir)
	client := loggedInClient(t, ts, c, 3)

	before := client.State()
	rawBefore, err := os.ReadFile(filepath.Join(dir, "cache.json"))
	require.NoError(t, err)

	ts.failWhen(func(r *http.Request) bool {
		return r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/rounds/")
	})

	msg, err := client.AddRound(t.Context(), roundFields("Ghost Course"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrServer)
	assert.Equal(t, "New Round could not be logged. injected failure", msg)

	assert.Equal(t, before, client.State())
	rawAfter, err := os.ReadFile(filepath.Join(dir, "cache.json"))
	require.NoError(t, err)
	assert.Equal(t, rawBefore, rawAfter)
}

func TestAddRoundValidationMessageEmbedsServerText(t *testing.T) {
	ts := newTestServer(t)
	client := loggedInClient(t, ts, openCache(t, t.TempDir()), 0)

	fields := roundFields("Course")
	fields.Holes = 19
	msg, err := client.AddRound(t.Context(), fields)
	require.ErrorIs(t, err, ErrValidation)
	assert.True(t, strings.HasPrefix(msg, "New Round could not be logged. "), msg)
	assert.Contains(t, msg, "holes")
	assert.Empty(t, client.State().User.Rounds)
}

func TestAddRoundRejectsConcurrentMutation(t *testing.T) {
	ts := newTestServer(t)
	client := loggedInClient(t, ts, openCache(t, t.TempDir()), 0)

	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	ts.setIntercept(func(w http.ResponseWriter, r *http.Request) bool {
		if r.Method == http.MethodPost && strings.HasPrefix(r.URL.Path, "/rounds/") {
			once.Do(func() { close(entered) })
			<-release
		}
		return false
	})

	done := make(chan error, 1)
	go func() {
		_, err := client.AddRound(context.Background(), roundFields("First"))
		done <- err
	}()

	<-entered
	msg, err := client.AddRound(t.Context(), roundFields("Second"))
	assert.ErrorIs(t, err, ErrMutationInFlight)
	assert.True(t, strings.HasPrefix(msg, "New Round could not be logged. "), msg)

	close(release)
	require.NoError(t, <-done)
	require.Len(t, client.State().User.Rounds, 1)
	assert.Equal(t, "First", client.State().User.Rounds[0].Course)
}

func TestCommitFailsWhenCacheWriteFails(t *testing.T) {
	ts := newTestServer(t)
	fc := &failingCache{Store: openCache(t, t.TempDir())}
	client := loggedInClient(t, ts, fc, 1)

	before := client.State()
	fc.failPut = true

	_, err := client.AddRound(t.Context(), roundFields("Unsaved"))
	require.Error(t, err)
	assert.Equal(t, before, client.State())
}

func TestAddRoundDoesNotRestoreRoundDeletedMeanwhile(t *testing.T) {
	ts := newTestServer(t)
	c := openCache(t, t.TempDir())
	client := loggedInClient(t, ts, c, 2)
	deleted := client.State().User.Rounds[0]

	entered, release := ts.holdFirstResponse(func(r *http.Request) bool {
		return r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/rounds/")
	})
	done := make(chan error, 1)
	go func() {
		_, err := client.AddRound(context.Background(), roundFields("Late"))
		done <- err
	}()

	<-entered
	_, err := client.DeleteRound(t.Context(), deleted.ID)
	require.NoError(t, err)
	close(release)
	require.NoError(t, <-done)

	server, err := ts.store.GetUser(t.Context(), testAccount)
	require.NoError(t, err)
	state := client.State()
	assert.Equal(t, server.Rounds, state.User.Rounds)
	assert.Equal(t, server.RoundsLogged, state.User.RoundsLogged)
	assert.Equal(t, 2, state.User.RoundsLogged)
	assert.Equal(t, -1, state.User.RoundIndex(deleted.ID))
	assert.True(t, state.RoundAdded)

	cached, err := c.Get(testAccount)
	require.NoError(t, err)
	assert.Equal(t, server.Rounds, cached.Rounds)
	assert.Equal(t, server.RoundsLogged, cached.RoundsLogged)
}

func TestUpdateRoundReplacesLocalRound(t *testing.T) {
	ts := newTestServer(t)
	client := loggedInClient(t, ts, openCache(t, t.TempDir()), 2)

	target := client.State().User.Rounds[1]
	fields := target.RoundFields
	fields.Course = "Augusta"
	fields.Strokes = 72

	msg, err := client.UpdateRound(t.Context(), target.ID, fields)
	require.NoError(t, err)
	assert.Equal(t, "Round 1 updated.", msg)

	updated := client.State().User.Rounds[1]
	assert.Equal(t, target.ID, updated.ID)
	assert.Equal(t, "Augusta", updated.Course)
	assert.Equal(t, 72, updated.Strokes)

	rounds, err := ts.store.ListRounds(t.Context(), testAccount)
	require.NoError(t, err)
	assert.Equal(t, "Augusta", rounds[1].Course)
}

func TestUpdateRoundUnknownRound(t *testing.T) {
	ts := newTestServer(t)
	client := loggedInClient(t, ts, openCache(t, t.TempDir()), 1)

	msg, err := client.UpdateRound(t.Context(), primitive.NewObjectID(), roundFields("Nowhere"))
	assert.ErrorIs(t, err, ErrNotFound)
	assert.True(t, strings.HasPrefix(msg, "No rounds was updated. "), msg)
}

func TestDeleteRound(t *testing.T) {
	ts := newTestServer(t)
	client := loggedInClient(t, ts, openCache(t, t.TempDir()), 3)

	target := client.State().User.Rounds[1]
	require.NoError(t, client.SelectRound(2))

	msg, err := client.DeleteRound(t.Context(), target.ID)
	require.NoError(t, err)
	assert.Equal(t, "round id="+target.ID.Hex()+" deleted successfully", msg)

	state := client.State()
	require.Len(t, state.User.Rounds, 2)
	assert.Equal(t, 2, state.User.RoundsLogged)
	assert.Equal(t, -1, state.User.RoundIndex(target.ID))
	assert.Equal(t, 1, state.SelectedRound)
}

func TestDeleteRoundNotFoundIsTerminal(t *testing.T) {
	ts := newTestServer(t)
	client := loggedInClient(t, ts, openCache(t, t.TempDir()), 2)
	before := client.State()

	msg, err := client.DeleteRound(t.Context(), primitive.NewObjectID())
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, "Error: round not deleted", msg)
	assert.Equal(t, before, client.State())
}

func TestUpdateUserAccountKeepsPasswordWhenEmpty(t *testing.T) {
	ts := newTestServer(t)
	client := loggedInClient(t, ts, openCache(t, t.TempDir()), 0)

	msg, err := client.UpdateUserAccount(t.Context(), AccountUpdate{
		AccountData:  &AccountDataPatch{SecurityQuestion: strPtr("Pet?"), SecurityAnswer: strPtr("Rex")},
		IdentityData: &IdentityDataPatch{DisplayName: strPtr("Annie"), ProfilePic: strPtr("pic.png")},
	})
	require.NoError(t, err)
	assert.Equal(t, "User Data Updated.", msg)

	state := client.State()
	assert.Equal(t, "Annie", state.User.IdentityData.DisplayName)
	assert.Equal(t, "Pet?", state.User.AccountData.SecurityQuestion)

	fresh := New(ts.URL, openCache(t, t.TempDir()))
	_, err = fresh.Login(t.Context(), testAccount, testPassword)
	require.NoError(t, err, "original password must still work")
}

func TestUpdateUserAccountMergesSectionFields(t *testing.T) {
	ts := newTestServer(t)
	client := loggedInClient(t, ts, openCache(t, t.TempDir()), 0)

	_, err := client.UpdateUserAccount(t.Context(), AccountUpdate{
		IdentityData: &IdentityDataPatch{DisplayName: strPtr("Ann"), ProfilePic: strPtr("pic.png")},
	})
	require.NoError(t, err)
	_, err = client.UpdateUserAccount(t.Context(), AccountUpdate{
		IdentityData: &IdentityDataPatch{DisplayName: strPtr("Annie")},
	})
	require.NoError(t, err)

	identity := client.State().User.IdentityData
	assert.Equal(t, "Annie", identity.DisplayName)
	assert.Equal(t, "pic.png", identity.ProfilePic)

	server, err := ts.store.GetUser(t.Context(), testAccount)
	require.NoError(t, err)
	assert.Equal(t, identity, server.IdentityData)
}

func TestUpdateUserAccountChangesPassword(t *testing.T) {
	ts := newTestServer(t)
	client := loggedInClient(t, ts, openCache(t, t.TempDir()), 0)

	msg, err := client.UpdateUserAccount(t.Context(), AccountUpdate{
		AccountData: &AccountDataPatch{Password: strPtr("n3w-pass")},
	})
	require.NoError(t, err)
	assert.Equal(t, "User Data Updated.", msg)

	other := New(ts.URL, openCache(t, t.TempDir()))
	_, err = other.Login(t.Context(), testAccount, testPassword)
	assert.ErrorIs(t, err, ErrUnauthorized)
	_, err = other.Login(t.Context(), testAccount, "n3w-pass")
	require.NoError(t, err)
}

func TestUpdateUserAccountRenameRekeysCache(t *testing.T) {
	ts := newTestServer(t)
	c := openCache(t, t.TempDir())
	client := loggedInClient(t, ts, c, 1)

	const renamed = "annie@example.com"
	_, err := client.UpdateUserAccount(t.Context(), AccountUpdate{
		AccountData: &AccountDataPatch{ID: strPtr(renamed)},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{renamed}, c.Keys())
	session, ok := client.Session()
	require.True(t, ok)
	assert.Equal(t, renamed, session.AccountID)

	stored, err := c.Session()
	require.NoError(t, err)
	assert.Equal(t, renamed, stored.AccountID)
	assert.Equal(t, session.Token, stored.Token)

	_, err = client.AddRound(t.Context(), roundFields("After rename"))
	require.NoError(t, err)
	assert.Len(t, client.State().User.Rounds, 2)
}

func TestUpdateUserAccountRenameConflict(t *testing.T) {
	ts := newTestServer(t)
	client := loggedInClient(t, ts, openCache(t, t.TempDir()), 0)
	_, err := client.CreateAccount(t.Context(), NewAccount{ID: "bob@example.com", Password: "pw"})
	require.NoError(t, err)

	msg, err := client.UpdateUserAccount(t.Context(), AccountUpdate{
		AccountData: &AccountDataPatch{ID: strPtr("bob@example.com")},
	})
	assert.ErrorIs(t, err, ErrConflict)
	assert.True(t, strings.HasPrefix(msg, "User Data Could not be updated. "), msg)
	assert.Equal(t, testAccount, client.State().User.AccountData.ID)
}

func TestUpdateUserAccountRefusesThirdPartyAccount(t *testing.T) {
	ts := newTestServer(t)
	_, _, err := ts.store.FindOrCreateOAuthUser(t.Context(), &models.User{
		AccountData:  models.AccountData{ID: "ann@github"},
		IdentityData: models.IdentityData{DisplayName: "Ann"},
	})
	require.NoError(t, err)
	raw, err := ts.tokens.Issue("ann@github")
	require.NoError(t, err)

	client := New(ts.URL, openCache(t, t.TempDir()))
	_, err = client.LoginWithToken(t.Context(), raw)
	require.NoError(t, err)

	msg, err := client.UpdateUserAccount(t.Context(), AccountUpdate{
		AccountData: &AccountDataPatch{ID: strPtr("other@github")},
	})
	assert.ErrorIs(t, err, ErrThirdPartyAccount)
	assert.Equal(t, "Account by third party. Nothing to edit!", msg)

	_, err = client.UpdateUserAccount(t.Context(), AccountUpdate{
		SpeedgolfData: &SpeedgolfDataPatch{HomeCourse: strPtr("St Andrews")},
	})
	require.NoError(t, err)
	assert.Equal(t, "St Andrews", client.State().User.SpeedgolfData.HomeCourse)
}

func TestLogoutClearsCache(t *testing.T) {
	ts := newTestServer(t)
	c := openCache(t, t.TempDir())
	client := loggedInClient(t, ts, c, 1)

	msg, err := client.Logout(t.Context())
	require.NoError(t, err)
	assert.Equal(t, "Logged out.", msg)

	assert.Empty(t, c.Keys())
	_, err = c.Session()
	assert.ErrorIs(t, err, cache.ErrNotFound)
	assert.Equal(t, State{SelectedRound: -1}, client.State())

	_, err = client.AddRound(t.Context(), roundFields("Course"))
	assert.ErrorIs(t, err, ErrNotAuthenticated)
}

func TestBootRestoresSession(t *testing.T) {
	ts := newTestServer(t)
	dir := t.TempDir()
	first := loggedInClient(t, ts, openCache(t, dir), 2)
	require.NoError(t, first.cache.(*cache.Store).Close())

	client := New(ts.URL, openCache(t, dir))
	_, err := client.Boot(t.Context())
	require.NoError(t, err)

	state := client.State()
	assert.True(t, state.Authenticated)
	assert.False(t, state.Offline)
	assert.Len(t, state.User.Rounds, 2)
}

func TestBootOfflineUsesCachedSnapshot(t *testing.T) {
	ts := newTestServer(t)
	dir := t.TempDir()
	first := loggedInClient(t, ts, openCache(t, dir), 2)
	require.NoError(t, first.cache.(*cache.Store).Close())
	ts.Close()

	client := New(ts.URL, openCache(t, dir), WithTimeout(time.Second))
	msg, err := client.Boot(t.Context())
	require.NoError(t, err)
	assert.Equal(t, "Offline. Showing cached data.", msg)

	state := client.State()
	assert.True(t, state.Offline)
	assert.Len(t, state.User.Rounds, 2)
}

func TestBootExpiredSessionClearsCache(t *testing.T) {
	ts := newTestServer(t)
	c := openCache(t, t.TempDir())
	require.NoError(t, c.PutWithSession(
		models.User{AccountData: models.AccountData{ID: testAccount}},
		cache.Session{AccountID: testAccount, Token: "not-a-token"},
	))

	client := New(ts.URL, c)
	_, err := client.Boot(t.Context())
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.Empty(t, c.Keys())
	assert.False(t, client.State().Authenticated)
}

func TestBootWithoutSession(t *testing.T) {
	ts := newTestServer(t)
	client := New(ts.URL, openCache(t, t.TempDir()))
	msg, err := client.Boot(t.Context())
	require.NoError(t, err)
	assert.Equal(t, "Not logged in.", msg)
}

func TestLoginWrongPassword(t *testing.T) {
	ts := newTestServer(t)
	client := loggedInClient(t, ts, openCache(t, t.TempDir()), 0)

	other := New(ts.URL, openCache(t, t.TempDir()))
	_, err := other.Login(t.Context(), testAccount, "wrong")
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.False(t, other.State().Authenticated)
	assert.True(t, client.State().Authenticated)
}

func TestAccountExists(t *testing.T) {
	ts := newTestServer(t)
	client := loggedInClient(t, ts, openCache(t, t.TempDir()), 0)

	exists, err := client.AccountExists(t.Context(), testAccount)
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = client.AccountExists(t.Context(), "nobody@example.com")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestCreateAccountDuplicate(t *testing.T) {
	ts := newTestServer(t)
	client := loggedInClient(t, ts, openCache(t, t.TempDir()), 0)

	msg, err := client.CreateAccount(t.Context(), NewAccount{ID: testAccount, Password: "x"})
	assert.ErrorIs(t, err, ErrConflict)
	assert.True(t, strings.HasPrefix(msg, "New account was not created. "), msg)
}

func TestRefreshPullsServerSnapshot(t *testing.T) {
	ts := newTestServer(t)
	client := loggedInClient(t, ts, openCache(t, t.TempDir()), 1)

	_, _, err := ts.store.AppendRound(t.Context(), testAccount, roundFields("Elsewhere"))
	require.NoError(t, err)

	_, err = client.Refresh(t.Context())
	require.NoError(t, err)
	assert.Len(t, client.State().User.Rounds, 2)
	assert.Equal(t, 2, client.State().User.RoundsLogged)
}

func TestSelectRoundBounds(t *testing.T) {
	ts := newTestServer(t)
	client := loggedInClient(t, ts, openCache(t, t.TempDir()), 1)

	require.NoError(t, client.SelectRound(0))
	assert.Equal(t, 0, client.State().SelectedRound)
	assert.ErrorIs(t, client.SelectRound(1), ErrNotFound)
	require.NoError(t, client.SelectRound(-1))
	assert.Equal(t, -1, client.State().SelectedRound)
}

func TestStateIsACopy(t *testing.T) {
	ts := newTestServer(t)
	client := loggedInClient(t, ts, openCache(t, t.TempDir()), 1)

	state := client.State()
	state.User.Rounds[0].Course = "mutated"
	assert.NotEqual(t, "mutated", client.State().User.Rounds[0].Course)
}

type failingCache struct {
	*cache.Store
	failPut bool
}

func (f *failingCache) Put(user models.User) error {
	if f.failPut {
		return errors.New("disk full")
	}
	return f.Store.Put(user)
}
