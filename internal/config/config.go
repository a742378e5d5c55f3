// Package config loads the gateway's process-level configuration: the
// listen address, shared-store connection, default policy parameters, and
// logging level. It follows the teacher's two-phase load pattern
// (internal/config.Load/Default): decode a TOML file over sane defaults,
// then apply environment overrides, the env var names matching §6 exactly.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the gateway process's static configuration.
type Config struct {
	Server   ServerConfig `toml:"server"`
	Store    StoreConfig  `toml:"store"`
	Auth     AuthConfig   `toml:"auth"`
	Limits   LimitsConfig `toml:"limits"`
	Routes   RoutesConfig `toml:"routes"`
	LogLevel string       `toml:"log_level"`
}

type ServerConfig struct {
	Addr string `toml:"addr"`
}

type StoreConfig struct {
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
}

type AuthConfig struct {
	JWTSecret string `toml:"jwt_secret"`
	APIKey    string `toml:"api_key"`
}

type LimitsConfig struct {
	DefaultFailureThreshold int           `toml:"default_failure_threshold"`
	DefaultResetTimeout     time.Duration `toml:"default_reset_timeout"`
	DefaultRateLimit        int           `toml:"default_rate_limit"`
	DefaultRateWindow       time.Duration `toml:"default_rate_window"`
	IPBlacklist             []string      `toml:"ip_blacklist"`
	IPWhitelist             []string      `toml:"ip_whitelist"`
}

type RoutesConfig struct {
	Dir string `toml:"dir"`
}

// Default returns the gateway's baseline configuration, the way the
// teacher's config.Default() seeds every field before a file is loaded.
func Default() *Config {
	return &Config{
		Server: ServerConfig{Addr: ":8080"},
		Store:  StoreConfig{Addr: "localhost:6379", DB: 0},
		Auth:   AuthConfig{},
		Limits: LimitsConfig{
			DefaultFailureThreshold: 5,
			DefaultResetTimeout:     30 * time.Second,
			DefaultRateLimit:        100,
			DefaultRateWindow:       60 * time.Second,
		},
		Routes:   RoutesConfig{Dir: "."},
		LogLevel: "info",
	}
}

// Load decodes path over the defaults, then applies environment overrides.
// A missing file is not an error: the defaults (plus env overrides) are
// used as-is, matching the teacher's tolerant config.Load behavior.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if _, err := toml.DecodeFile(path, cfg); err != nil {
				return nil, fmt.Errorf("config: decode %s: %w", path, err)
			}
		}
	}
	applyEnvOverrides(cfg)
	return cfg, nil
}

// applyEnvOverrides mirrors the teacher's substituteEnvVars pass, reading
// the exact environment variable names §6 specifies.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("PORT"); v != "" {
		cfg.Server.Addr = ":" + v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		cfg.Auth.JWTSecret = v
	}
	if v := os.Getenv("API_KEY"); v != "" {
		cfg.Auth.APIKey = v
	}

	host := os.Getenv("STORE_HOST")
	port := os.Getenv("STORE_PORT")
	if host != "" || port != "" {
		if host == "" {
			host = "localhost"
		}
		if port == "" {
			port = "6379"
		}
		cfg.Store.Addr = host + ":" + port
	}
	if v := os.Getenv("STORE_PASSWORD"); v != "" {
		cfg.Store.Password = v
	}
	if v := os.Getenv("STORE_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Store.DB = n
		}
	}

	if v := os.Getenv("DEFAULT_FAILURE_THRESHOLD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Limits.DefaultFailureThreshold = n
		}
	}
	if v := os.Getenv("DEFAULT_RESET_TIMEOUT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Limits.DefaultResetTimeout = time.Duration(n) * time.Millisecond
		}
	}
	if v := os.Getenv("DEFAULT_RATE_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Limits.DefaultRateLimit = n
		}
	}
	if v := os.Getenv("DEFAULT_RATE_WINDOW"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Limits.DefaultRateWindow = time.Duration(n) * time.Second
		}
	}
	if v := os.Getenv("IP_BLACKLIST"); v != "" {
		cfg.Limits.IPBlacklist = splitCSV(v)
	}
	if v := os.Getenv("IP_WHITELIST"); v != "" {
		cfg.Limits.IPWhitelist = splitCSV(v)
	}
}

func splitCSV(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
