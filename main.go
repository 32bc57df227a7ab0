package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"speedgolf/internal/config"
	"speedgolf/internal/database"
	"speedgolf/internal/handlers"
	"speedgolf/internal/store"
	"speedgolf/internal/token"
)

func main() {
	config.Load()
	cfg := config.AppEnv
	setupLogging(cfg)

	if cfg.JWTSecret == "" {
		log.Fatal().Msg("[CONFIG] JWT_SECRET is required")
	}

	st, closeStore := openStore(cfg)
	defer closeStore()

	if !cfg.IsDev() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := handlers.NewRouter(handlers.Deps{
		Store:               st,
		Tokens:              token.NewIssuer(cfg.JWTSecret, cfg.AccessTokenTTL),
		SecureCookie:        !cfg.IsDev(),
		CORSOrigins:         cfg.CORSOrigins,
		LoginRateLimitRPS:   cfg.LoginRateLimitRPS,
		LoginRateLimitBurst: cfg.LoginRateLimitBurst,
		OAuthProviders: map[string]handlers.OAuthProviderConfig{
			"google": {ClientID: cfg.Google.ClientID, ClientSecret: cfg.Google.ClientSecret},
			"github": {ClientID: cfg.GitHub.ClientID, ClientSecret: cfg.GitHub.ClientSecret},
		},
		DeployURL:   cfg.DeployURL,
		FrontendURL: cfg.FrontendURL,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Info().Str("port", cfg.Port).Str("store", cfg.Store).Msg("[SERVER] listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("[SERVER] serve error")
		}
	}()

	<-quit
	log.Info().Msg("[SERVER] shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("[SERVER] shutdown error")
	}
	log.Info().Msg("[SERVER] stopped")
}

func setupLogging(cfg config.Config) {
	zerolog.TimeFieldFormat = time.RFC3339
	if cfg.IsDev() {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
		return
	}
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
}

// openStore returns the configured store and a function releasing it.
func openStore(cfg config.Config) (store.UserStore, func()) {
	if cfg.Store == "memory" {
		log.Warn().Msg("[DB] using in-memory store, data is lost on restart")
		return store.NewMemoryStore(), func() {}
	}

	ctx := context.Background()
	client, err := database.Connect(ctx, cfg.MongoURI)
	if err != nil {
		log.Fatal().Err(err).Msg("[DB] connect failed")
	}

	db := client.Database(cfg.DBName)
	log.Info().Str("db", db.Name()).Msg("[DB] MongoDB connected")

	if err := database.EnsureUserIndexes(ctx, db); err != nil {
		log.Warn().Err(err).Msg("[DB] user index warning")
	}

	return store.NewMongoStore(db), func() {
		disconnectCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Disconnect(disconnectCtx); err != nil {
			log.Error().Err(err).Msg("[DB] disconnect failed")
		}
	}
}
