package handlers

import (
	"net/http"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"

	"speedgolf/internal/metrics"
	"speedgolf/internal/middleware"
	"speedgolf/internal/store"
)

// Issuer signs session and OAuth state tokens.
type Issuer interface {
	TokenIssuer
	StateIssuer
}

// Deps is everything NewRouter wires into the routes.
type Deps struct {
	Store        store.UserStore
	Tokens       Issuer
	SecureCookie bool
	CORSOrigins  []string

	LoginRateLimitRPS   float64
	LoginRateLimitBurst int

	OAuthProviders map[string]OAuthProviderConfig
	DeployURL      string
	FrontendURL    string
}

var registerTagNames sync.Once

// NewRouter builds the HTTP API.
func NewRouter(deps Deps) *gin.Engine {
	registerTagNames.Do(useJSONFieldNames)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger())
	r.Use(metrics.Middleware())
	if len(deps.CORSOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     deps.CORSOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "Accept"},
			ExposeHeaders:    []string{"Content-Length"},
			AllowCredentials: !containsWildcard(deps.CORSOrigins),
			MaxAge:           12 * time.Hour,
		}))
	}
	r.Use(func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, 1<<20)
		c.Next()
	})

	sessions := Sessions{Tokens: deps.Tokens, SecureCookie: deps.SecureCookie}
	requireSession := middleware.SessionAuth(deps.Tokens)
	optionalSession := middleware.OptionalSession(deps.Tokens)

	r.GET("/healthz", Health(deps.Store))
	r.GET("/metrics", metrics.Handler())

	r.POST("/rounds/:userId", requireSession, middleware.RequireOwner("userId"), CreateRound(deps.Store))
	r.GET("/rounds/:userId", requireSession, middleware.RequireOwner("userId"), ListRounds(deps.Store))
	r.PUT("/rounds/:roundId", requireSession, UpdateRound(deps.Store))
	r.DELETE("/rounds/:roundId", requireSession, DeleteRound(deps.Store))

	r.POST("/users/:id", CreateUser(deps.Store))
	r.GET("/users/:id", optionalSession, GetUser(deps.Store))
	r.PUT("/users/:id", requireSession, middleware.RequireOwner("id"), UpdateUser(deps.Store, sessions))

	auth := r.Group("/auth")
	{
		login := []gin.HandlerFunc{}
		if deps.LoginRateLimitRPS > 0 && deps.LoginRateLimitBurst > 0 {
			login = append(login, middleware.RateLimiter(deps.LoginRateLimitRPS, deps.LoginRateLimitBurst))
		}
		login = append(login, Login(deps.Store, sessions))
		auth.POST("/login", login...)
		auth.POST("/logout", Logout(sessions))
		auth.GET("/test", optionalSession, TestAuth(deps.Store))

		oauth := NewOAuth(deps.Store, sessions, deps.Tokens, deps.OAuthProviders, deps.DeployURL, deps.FrontendURL)
		auth.GET("/oauth/:provider", oauth.Redirect)
		auth.GET("/oauth/:provider/callback", oauth.Callback)
	}

	return r
}

// Health reports 503 when the store cannot be reached.
func Health(st store.UserStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := st.Ping(c.Request.Context()); err != nil {
			log.Error().Err(err).Msg("[HEALTH] store ping failed")
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug().
			Str("method", c.Request.Method).
			Str("route", c.FullPath()).
			Int("status", c.Writer.Status()).
			Dur("duration", time.Since(start)).
			Msg("[HTTP] request")
	}
}

func containsWildcard(origins []string) bool {
	for _, origin := range origins {
		if origin == "*" {
			return true
		}
	}
	return false
}

// useJSONFieldNames makes validation errors report JSON property names.
func useJSONFieldNames() {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return
	}
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return field.Name
		}
		return name
	})
}
