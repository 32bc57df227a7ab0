package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

const (
	// SessionCookie carries the session token for browser clients.
	SessionCookie = "sg_session"
	// AccountIDKey is the gin context key holding the session account id.
	AccountIDKey = "accountId"
)

// SessionParser turns a raw session token into an account id.
type SessionParser interface {
	Parse(raw string) (string, error)
}

// SessionAuth validates the session token and injects the accountId into the
// context. Requests without a valid session are rejected with 401.
func SessionAuth(tokens SessionParser) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, ok := sessionToken(c)
		if !ok {
			log.Warn().Str("route", c.FullPath()).Msg("[AUTH] missing token")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing token", "code": "unauthorized"})
			return
		}

		accountID, err := tokens.Parse(raw)
		if err != nil {
			log.Warn().Err(err).Str("route", c.FullPath()).Msg("[AUTH] token validation failed")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "code": "unauthorized"})
			return
		}

		c.Set(AccountIDKey, accountID)
		c.Next()
	}
}

// OptionalSession sets the accountId when a valid session is present and
// never aborts.
func OptionalSession(tokens SessionParser) gin.HandlerFunc {
	return func(c *gin.Context) {
		if raw, ok := sessionToken(c); ok {
			if accountID, err := tokens.Parse(raw); err == nil {
				c.Set(AccountIDKey, accountID)
			}
		}
		c.Next()
	}
}

// AccountID returns the session account id, or "" when unauthenticated.
func AccountID(c *gin.Context) string {
	return c.GetString(AccountIDKey)
}

func sessionToken(c *gin.Context) (string, bool) {
	if raw := strings.TrimSpace(c.GetHeader("Authorization")); raw != "" {
		parts := strings.Fields(raw)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			return "", false
		}
		return parts[1], true
	}
	if cookie, err := c.Cookie(SessionCookie); err == nil && strings.TrimSpace(cookie) != "" {
		return cookie, true
	}
	return "", false
}
