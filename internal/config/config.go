package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

var AppEnv Config

type OAuthProvider struct {
	ClientID     string
	ClientSecret string
}

// Configured reports whether both credentials are present.
func (p OAuthProvider) Configured() bool {
	return p.ClientID != "" && p.ClientSecret != ""
}

type Config struct {
	MongoURI       string
	DBName         string
	Store          string
	JWTSecret      string
	AccessTokenTTL time.Duration
	Port           string
	AppEnv         string
	CORSOrigins    []string

	LoginRateLimitRPS   float64
	LoginRateLimitBurst int

	FrontendURL string
	DeployURL   string
	Google      OAuthProvider
	GitHub      OAuthProvider
}

// IsDev reports whether the server runs with APP_ENV=dev.
func (c Config) IsDev() bool {
	return c.AppEnv == "dev"
}

func Load() {
	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("[CONFIG] .env not loaded")
	}
	AppEnv = FromEnv()
}

// FromEnv reads the configuration from the process environment.
func FromEnv() Config {
	return Config{
		MongoURI:       getEnvOrDefault("MONGO_URI", ""),
		DBName:         getEnvOrDefault("DB_NAME", "speedgolf"),
		Store:          strings.ToLower(getEnvOrDefault("STORE", "mongo")),
		JWTSecret:      getEnvOrDefault("JWT_SECRET", ""),
		AccessTokenTTL: getDurationEnv("ACCESS_TOKEN_TTL", 60*24, time.Minute),
		Port:           getEnvOrDefault("PORT", "8080"),
		AppEnv:         getEnvOrDefault("APP_ENV", "production"),
		CORSOrigins:    getListEnv("CORS_ORIGINS", []string{"http://localhost:3000"}),

		LoginRateLimitRPS:   getFloatEnv("LOGIN_RATE_LIMIT_RPS", 1),
		LoginRateLimitBurst: getIntEnv("LOGIN_RATE_LIMIT_BURST", 5),

		FrontendURL: getEnvOrDefault("FRONTEND_URL", "http://localhost:3000"),
		DeployURL:   getEnvOrDefault("DEPLOY_URL", "http://localhost:8080"),
		Google: OAuthProvider{
			ClientID:     getEnvOrDefault("GOOGLE_CLIENT_ID", ""),
			ClientSecret: getEnvOrDefault("GOOGLE_CLIENT_SECRET", ""),
		},
		GitHub: OAuthProvider{
			ClientID:     getEnvOrDefault("GITHUB_CLIENT_ID", ""),
			ClientSecret: getEnvOrDefault("GITHUB_CLIENT_SECRET", ""),
		},
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue int, unit time.Duration) time.Duration {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil && parsed > 0 {
			return time.Duration(parsed) * unit
		}
	}
	return time.Duration(defaultValue) * unit
}

func getIntEnv(key string, defaultValue int) int {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil && parsed > 0 {
			return parsed
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil && parsed > 0 {
			return parsed
		}
	}
	return defaultValue
}

func getListEnv(key string, defaultValue []string) []string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
