package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"eventfinder/internal/logging"
)

const (
	TokenStoreMemory = "memory"
	TokenStoreFile   = "file"
	TokenStoreSealed = "sealed"

	DefaultAPIURL = "http://localhost:8000/api"
)

// Config drives the client binary. Values come from defaults, then the
// YAML file named by EVENTFINDER_CONFIG, then the environment.
type Config struct {
	APIURL             string `yaml:"api_url"`
	HTTPTimeoutSeconds int    `yaml:"http_timeout_seconds"`
	TokenStore         string `yaml:"token_store"`
	TokenFile          string `yaml:"token_file"`
	TokenPassphrase    string `yaml:"token_passphrase"`
	Port               int    `yaml:"port"`
	GinMode            string `yaml:"gin_mode"`
	LogLevel           string `yaml:"log_level"`
}

func (c Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTPTimeoutSeconds) * time.Second
}

type Env interface {
	Getenv(key string) string
}

type osEnv struct{}

func (osEnv) Getenv(key string) string { return os.Getenv(key) }

func LoadConfig() (Config, error) {
	return LoadConfigFromEnv(osEnv{})
}

func DefaultConfig(home string) Config {
	return Config{
		APIURL:             DefaultAPIURL,
		HTTPTimeoutSeconds: 15,
		TokenStore:         TokenStoreFile,
		TokenFile:          filepath.Join(home, ".eventfinder", "token.json"),
		Port:               3000,
		GinMode:            "release",
		LogLevel:           "info",
	}
}

// Normalize fills zero values left by a partial YAML file.
func (c *Config) Normalize(home string) {
	def := DefaultConfig(home)
	if c.APIURL == "" {
		c.APIURL = def.APIURL
	}
	c.APIURL = strings.TrimRight(c.APIURL, "/")
	if c.HTTPTimeoutSeconds == 0 {
		c.HTTPTimeoutSeconds = def.HTTPTimeoutSeconds
	}
	if c.TokenStore == "" {
		c.TokenStore = def.TokenStore
	}
	c.TokenStore = strings.ToLower(c.TokenStore)
	if c.TokenFile == "" {
		c.TokenFile = def.TokenFile
	}
	if c.Port == 0 {
		c.Port = def.Port
	}
	if c.GinMode == "" {
		c.GinMode = def.GinMode
	}
	if c.LogLevel == "" {
		c.LogLevel = def.LogLevel
	}
}

func (c Config) Validate() error {
	u, err := url.Parse(c.APIURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid EVENTFINDER_API_URL %q", c.APIURL)
	}
	if c.HTTPTimeoutSeconds <= 0 {
		return fmt.Errorf("invalid EVENTFINDER_HTTP_TIMEOUT_SECONDS")
	}
	switch c.TokenStore {
	case TokenStoreMemory, TokenStoreFile:
	case TokenStoreSealed:
		if c.TokenPassphrase == "" {
			return fmt.Errorf("EVENTFINDER_TOKEN_PASSPHRASE is required for the sealed token store")
		}
	default:
		return fmt.Errorf("invalid EVENTFINDER_TOKEN_STORE %q", c.TokenStore)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid PORT")
	}
	if _, ok := logging.ParseLevel(c.LogLevel); !ok {
		return fmt.Errorf("invalid LOG_LEVEL %q", c.LogLevel)
	}
	return nil
}

func LoadConfigFromEnv(env Env) (Config, error) {
	home := env.Getenv("HOME")
	var cfg Config

	if path := env.Getenv("EVENTFINDER_CONFIG"); path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}
	cfg.Normalize(home)

	if raw := env.Getenv("EVENTFINDER_API_URL"); raw != "" {
		cfg.APIURL = strings.TrimRight(raw, "/")
	}
	if raw := env.Getenv("EVENTFINDER_HTTP_TIMEOUT_SECONDS"); raw != "" {
		seconds, err := strconv.Atoi(raw)
		if err != nil || seconds <= 0 {
			return Config{}, fmt.Errorf("invalid EVENTFINDER_HTTP_TIMEOUT_SECONDS")
		}
		cfg.HTTPTimeoutSeconds = seconds
	}
	if raw := env.Getenv("EVENTFINDER_TOKEN_STORE"); raw != "" {
		cfg.TokenStore = strings.ToLower(raw)
	}
	if raw := env.Getenv("EVENTFINDER_TOKEN_FILE"); raw != "" {
		cfg.TokenFile = raw
	}
	if raw := env.Getenv("EVENTFINDER_TOKEN_PASSPHRASE"); raw != "" {
		cfg.TokenPassphrase = raw
	}
	if raw := env.Getenv("PORT"); raw != "" {
		port, err := strconv.Atoi(raw)
		if err != nil || port <= 0 || port > 65535 {
			return Config{}, fmt.Errorf("invalid PORT")
		}
		cfg.Port = port
	}
	if raw := env.Getenv("GIN_MODE"); raw != "" {
		cfg.GinMode = raw
	}
	if raw := env.Getenv("LOG_LEVEL"); raw != "" {
		cfg.LogLevel = raw
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// loadFile reads a YAML overlay. A missing file leaves cfg untouched.
func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}
