package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
	"golang.org/x/oauth2/google"

	"speedgolf/internal/metrics"
	"speedgolf/internal/models"
	"speedgolf/internal/store"
)

// OAuthProviderConfig holds OAuth client credentials for a single provider.
type OAuthProviderConfig struct {
	ClientID     string
	ClientSecret string
}

// StateIssuer signs the OAuth state parameter.
type StateIssuer interface {
	IssueState(provider string) (string, error)
	VerifyState(raw string) (string, error)
}

// OAuthIdentity is what a provider tells us about the signed-in user.
type OAuthIdentity struct {
	Username    string
	DisplayName string
	ProfilePic  string
}

// AccountID follows the <username>@<provider> convention.
func (i OAuthIdentity) AccountID(provider string) string {
	return i.Username + "@" + provider
}

type userInfoFetcher func(ctx context.Context, client *http.Client) (OAuthIdentity, error)

// OAuth serves the third-party login redirect and callback.
type OAuth struct {
	configs     map[string]*oauth2.Config
	fetchers    map[string]userInfoFetcher
	state       StateIssuer
	sessions    Sessions
	store       store.UserStore
	frontendURL string
}

// NewOAuth builds configs for the providers with credentials. Callback URLs
// are derived from deployURL.
func NewOAuth(st store.UserStore, sessions Sessions, state StateIssuer, providers map[string]OAuthProviderConfig, deployURL, frontendURL string) *OAuth {
	return &OAuth{
		configs:     buildOAuthConfigs(providers, deployURL),
		fetchers:    map[string]userInfoFetcher{"github": fetchGitHubIdentity, "google": fetchGoogleIdentity},
		state:       state,
		sessions:    sessions,
		store:       st,
		frontendURL: strings.TrimRight(frontendURL, "/"),
	}
}

func buildOAuthConfigs(providers map[string]OAuthProviderConfig, deployURL string) map[string]*oauth2.Config {
	base := strings.TrimRight(deployURL, "/")
	cfgs := make(map[string]*oauth2.Config)
	for name, p := range providers {
		if p.ClientID == "" || p.ClientSecret == "" {
			continue
		}
		var endpoint oauth2.Endpoint
		var scopes []string
		switch name {
		case "github":
			endpoint = github.Endpoint
			scopes = []string{"read:user"}
		case "google":
			endpoint = google.Endpoint
			scopes = []string{"openid", "email", "profile"}
		default:
			continue
		}
		cfgs[name] = &oauth2.Config{
			ClientID:     p.ClientID,
			ClientSecret: p.ClientSecret,
			RedirectURL:  base + "/auth/oauth/" + name + "/callback",
			Scopes:       scopes,
			Endpoint:     endpoint,
		}
	}
	return cfgs
}

// Redirect handles GET /auth/oauth/:provider.
func (o *OAuth) Redirect(c *gin.Context) {
	const route = "AUTH"
	provider := c.Param("provider")
	cfg, ok := o.configs[provider]
	if !ok {
		respondWithError(c, http.StatusUnprocessableEntity, codeValidation, route, fmt.Sprintf("OAuth provider %q not configured", provider))
		return
	}

	state, err := o.state.IssueState(provider)
	if err != nil {
		respondWithError(c, http.StatusInternalServerError, codeInternal, route, "failed to generate OAuth state")
		return
	}
	c.Redirect(http.StatusFound, cfg.AuthCodeURL(state, oauth2.AccessTypeOnline))
}

// Callback handles GET /auth/oauth/:provider/callback. The session token is
// handed to the frontend in the URL fragment.
func (o *OAuth) Callback(c *gin.Context) {
	const route = "AUTH"
	defer handlePanic(c, route)

	provider := c.Param("provider")
	cfg, ok := o.configs[provider]
	if !ok {
		respondWithError(c, http.StatusUnprocessableEntity, codeValidation, route, fmt.Sprintf("OAuth provider %q not configured", provider))
		return
	}

	gotProvider, err := o.state.VerifyState(c.Query("state"))
	if err != nil || gotProvider != provider {
		metrics.RecordLogin(provider, false)
		respondWithError(c, http.StatusBadRequest, codeValidation, route, "invalid OAuth state")
		return
	}

	code := c.Query("code")
	if code == "" {
		errMsg := c.Query("error_description")
		if errMsg == "" {
			errMsg = c.Query("error")
		}
		metrics.RecordLogin(provider, false)
		respondWithError(c, http.StatusBadRequest, codeValidation, route, "OAuth authorization failed: "+errMsg)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	oauthToken, err := cfg.Exchange(ctx, code)
	if err != nil {
		metrics.RecordLogin(provider, false)
		log.Error().Err(err).Str("provider", provider).Msg("[AUTH] oauth code exchange failed")
		respondWithError(c, http.StatusBadRequest, codeValidation, route, "OAuth code exchange failed")
		return
	}

	identity, err := o.fetchers[provider](ctx, cfg.Client(ctx, oauthToken))
	if err != nil || identity.Username == "" {
		metrics.RecordLogin(provider, false)
		log.Error().Err(err).Str("provider", provider).Msg("[AUTH] fetch oauth user info failed")
		respondWithError(c, http.StatusInternalServerError, codeInternal, route, "failed to fetch user info from provider")
		return
	}

	user, created, err := o.store.FindOrCreateOAuthUser(ctx, newOAuthUser(provider, identity))
	if err != nil {
		metrics.RecordLogin(provider, false)
		respondStoreError(c, route, err, http.StatusInternalServerError, "failed to process OAuth login")
		return
	}

	accessToken, err := o.sessions.start(c, user.AccountData.ID)
	if err != nil {
		metrics.RecordLogin(provider, false)
		respondWithError(c, http.StatusInternalServerError, codeInternal, route, "token generation failed")
		return
	}

	metrics.RecordLogin(provider, true)
	log.Info().Str("accountId", user.AccountData.ID).Bool("created", created).Msg("[AUTH] oauth login succeeded")
	c.Redirect(http.StatusFound, o.frontendURL+"/oauth/callback#token="+url.QueryEscape(accessToken))
}

// newOAuthUser is the document created on first third-party login. It has no
// password, which marks it as not locally owned.
func newOAuthUser(provider string, identity OAuthIdentity) *models.User {
	now := time.Now()
	displayName := identity.DisplayName
	if displayName == "" {
		displayName = identity.Username
	}
	return &models.User{
		AccountData: models.AccountData{ID: identity.AccountID(provider)},
		IdentityData: models.IdentityData{
			DisplayName: displayName,
			ProfilePic:  identity.ProfilePic,
		},
		SpeedgolfData: models.SpeedgolfData{Clubs: models.StringList{}},
		Rounds:        []models.Round{},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func fetchGitHubIdentity(ctx context.Context, client *http.Client) (OAuthIdentity, error) {
	var info struct {
		Login     string `json:"login"`
		Name      string `json:"name"`
		AvatarURL string `json:"avatar_url"`
	}
	if err := getJSON(ctx, client, "https://api.github.com/user", &info); err != nil {
		return OAuthIdentity{}, fmt.Errorf("github user info: %w", err)
	}
	return OAuthIdentity{Username: info.Login, DisplayName: info.Name, ProfilePic: info.AvatarURL}, nil
}

func fetchGoogleIdentity(ctx context.Context, client *http.Client) (OAuthIdentity, error) {
	var info struct {
		Email   string `json:"email"`
		Name    string `json:"name"`
		Picture string `json:"picture"`
	}
	if err := getJSON(ctx, client, "https://www.googleapis.com/oauth2/v3/userinfo", &info); err != nil {
		return OAuthIdentity{}, fmt.Errorf("google user info: %w", err)
	}
	username, _, _ := strings.Cut(info.Email, "@")
	return OAuthIdentity{Username: username, DisplayName: info.Name, ProfilePic: info.Picture}, nil
}

func getJSON(ctx context.Context, client *http.Client, endpoint string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
