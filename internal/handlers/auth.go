package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"

	"speedgolf/internal/metrics"
	"speedgolf/internal/middleware"
	"speedgolf/internal/models"
	"speedgolf/internal/store"
)

// TokenIssuer signs and verifies session tokens.
type TokenIssuer interface {
	Issue(accountID string) (string, error)
	Parse(raw string) (string, error)
	TTL() time.Duration
}

// Sessions starts and ends browser and API sessions.
type Sessions struct {
	Tokens       TokenIssuer
	SecureCookie bool
}

// start issues a token for accountID and sets the session cookie.
func (s Sessions) start(c *gin.Context, accountID string) (string, error) {
	raw, err := s.Tokens.Issue(accountID)
	if err != nil {
		return "", err
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middleware.SessionCookie, raw, int(s.Tokens.TTL().Seconds()), "/", "", s.SecureCookie, true)
	return raw, nil
}

func (s Sessions) end(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middleware.SessionCookie, "", -1, "/", "", s.SecureCookie, true)
}

type loginRequest struct {
	Username string `form:"username" json:"username" binding:"required"`
	Password string `form:"password" json:"password" binding:"required"`
}

// Login checks local credentials. Credentials are accepted as JSON or as
// form/query parameters.
func Login(st store.UserStore, sessions Sessions) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "AUTH"
		defer handlePanic(c, route)

		var req loginRequest
		if err := c.ShouldBind(&req); err != nil {
			metrics.RecordLogin("local", false)
			respondValidationError(c, route, err)
			return
		}
		username := strings.TrimSpace(req.Username)

		ctx, cancel := requestContext(c)
		defer cancel()

		user, err := st.GetUser(ctx, username)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			metrics.RecordLogin("local", false)
			respondStoreError(c, route, err, http.StatusUnauthorized, "invalid credentials")
			return
		}
		if err != nil || !user.AccountData.LocallyOwned() ||
			bcrypt.CompareHashAndPassword([]byte(user.AccountData.Password), []byte(req.Password)) != nil {
			metrics.RecordLogin("local", false)
			respondWithError(c, http.StatusUnauthorized, codeUnauthorized, route, "invalid credentials")
			return
		}

		accessToken, err := sessions.start(c, user.AccountData.ID)
		if err != nil {
			metrics.RecordLogin("local", false)
			log.Error().Err(err).Msg("[AUTH] token generation failed")
			respondWithError(c, http.StatusInternalServerError, codeInternal, route, "token generation failed")
			return
		}

		metrics.RecordLogin("local", true)
		log.Info().Str("accountId", user.AccountData.ID).Msg("[AUTH] login succeeded")
		c.JSON(http.StatusOK, gin.H{
			"accessToken": accessToken,
			"user":        ownerSnapshot(user),
		})
	}
}

// TestAuth reports whether the request carries a valid session and, if so,
// returns the owner snapshot. It must run after OptionalSession.
func TestAuth(st store.UserStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "AUTH"
		defer handlePanic(c, route)

		accountID := middleware.AccountID(c)
		if accountID == "" {
			c.JSON(http.StatusOK, gin.H{"isAuthenticated": false})
			return
		}

		ctx, cancel := requestContext(c)
		defer cancel()

		user, err := st.GetUser(ctx, accountID)
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusOK, gin.H{"isAuthenticated": false})
			return
		}
		if err != nil {
			respondStoreError(c, route, err, http.StatusNotFound, "user not found")
			return
		}
		c.JSON(http.StatusOK, gin.H{"isAuthenticated": true, "user": ownerSnapshot(user)})
	}
}

// Logout clears the session cookie. Bearer tokens expire on their own.
func Logout(sessions Sessions) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessions.end(c)
		c.JSON(http.StatusOK, gin.H{"message": "logged out"})
	}
}

func hashPassword(plain string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// resolvePassword keeps the stored hash when the submitted value is empty or
// is that hash, and hashes anything else.
func resolvePassword(stored, submitted string) (string, error) {
	if submitted == "" || submitted == stored {
		return stored, nil
	}
	return hashPassword(submitted)
}

func ownerSnapshot(user *models.User) *models.User {
	if user.Rounds == nil {
		user.Rounds = []models.Round{}
	}
	return user
}
