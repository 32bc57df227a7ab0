package config

import (
	"os"
	"path/filepath"
	"time"
)

// ClientEnv holds the defaults the CLI applies before flags and the config
// file are layered on top.
type ClientEnv struct {
	Server    string
	CachePath string
	Timeout   time.Duration
}

func LoadClientEnv() ClientEnv {
	return ClientEnv{
		Server:    getEnvOrDefault("SPEEDGOLF_SERVER", "http://localhost:8080"),
		CachePath: getEnvOrDefault("SPEEDGOLF_CACHE", defaultCachePath()),
		Timeout:   getDurationEnv("SPEEDGOLF_TIMEOUT", 10, time.Second),
	}
}

// ConfigDir is where the CLI keeps its config file and cache.
func ConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".speedgolf"
	}
	return filepath.Join(home, ".speedgolf")
}

func defaultCachePath() string {
	return filepath.Join(ConfigDir(), "cache.json")
}
