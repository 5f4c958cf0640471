package config

import (
	"fmt"
	"strconv"
	"time"
)

// DevAPIConfig drives the development backend binary.
type DevAPIConfig struct {
	Port         int
	MasterSecret string
	GinMode      string
	TokenExpiry  time.Duration
	StateFile    string
	LogLevel     string
}

func LoadDevAPIConfig() (DevAPIConfig, error) {
	return LoadDevAPIConfigFromEnv(osEnv{})
}

func LoadDevAPIConfigFromEnv(env Env) (DevAPIConfig, error) {
	cfg := DevAPIConfig{
		Port:        8000,
		GinMode:     "release",
		TokenExpiry: 7 * 24 * time.Hour,
		LogLevel:    "info",
	}

	if raw := env.Getenv("PORT"); raw != "" {
		port, err := strconv.Atoi(raw)
		if err != nil || port <= 0 || port > 65535 {
			return DevAPIConfig{}, fmt.Errorf("invalid PORT")
		}
		cfg.Port = port
	}

	cfg.MasterSecret = env.Getenv("MASTER_SECRET")
	if cfg.MasterSecret == "" {
		return DevAPIConfig{}, fmt.Errorf("MASTER_SECRET is required")
	}

	if raw := env.Getenv("GIN_MODE"); raw != "" {
		cfg.GinMode = raw
	}

	if raw := env.Getenv("TOKEN_EXPIRY_SECONDS"); raw != "" {
		seconds, err := strconv.Atoi(raw)
		if err != nil || seconds <= 0 {
			return DevAPIConfig{}, fmt.Errorf("invalid TOKEN_EXPIRY_SECONDS")
		}
		cfg.TokenExpiry = time.Duration(seconds) * time.Second
	}

	cfg.StateFile = env.Getenv("DEVAPI_STATE_FILE")
	if raw := env.Getenv("LOG_LEVEL"); raw != "" {
		cfg.LogLevel = raw
	}
	return cfg, nil
}
