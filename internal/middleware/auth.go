package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// RequireOwner rejects requests whose route parameter param differs from the
// session account. It must run after SessionAuth.
func RequireOwner(param string) gin.HandlerFunc {
	return func(c *gin.Context) {
		accountID := AccountID(c)
		if accountID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "code": "unauthorized"})
			return
		}
		if c.Param(param) != accountID {
			log.Warn().
				Str("accountId", accountID).
				Str("target", c.Param(param)).
				Str("route", c.FullPath()).
				Msg("[AUTH] owner mismatch")
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden", "code": "forbidden"})
			return
		}
		c.Next()
	}
}
