package core

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds runtime settings for the registry process.
type Config struct {
	Port                     string        `yaml:"port"`                        // HTTP listen port (e.g., "8080")
	SessionKey               string        `yaml:"session_key"`                 // Cookie signing key
	CookieSecure             bool          `yaml:"cookie_secure"`               // Whether to set Secure flag on session cookie
	CookieSameSite           string        `yaml:"cookie_samesite"`             // SameSite policy: Strict/Lax/None
	LogDir                   string        `yaml:"log_dir"`                     // Directory to write application logs
	DatabaseURL              string        `yaml:"database_url"`                // postgres:// DSN, sqlite:// DSN or sqlite file path
	RedisURL                 string        `yaml:"redis_url"`                   // Redis URL; empty disables access feed and metrics
	AllowedOrigins           []string      `yaml:"allowed_origins"`             // allowed origins for CORS/CSRF origin check
	BcryptCost               int           `yaml:"bcrypt_cost"`                 // work factor for new password hashes
	LockoutThreshold         int           `yaml:"lockout_threshold"`           // consecutive failures before lockout
	LockoutWindow            time.Duration `yaml:"lockout_window"`              // lockout duration
	StoreTimeout             time.Duration `yaml:"store_timeout"`               // per-call credential store timeout
	AccessFeedLimit          int           `yaml:"access_feed_limit"`           // entries kept in the Redis access feed
	BootstrapAdminEnabled    bool          `yaml:"bootstrap_admin"`             // whether to create an admin at startup
	InitialAdminPassword     string        `yaml:"initial_admin_password"`      // password for the bootstrap admin (generated when empty)
	InitialAdminPasswordPath string        `yaml:"initial_admin_password_path"` // where to write a generated admin password (if empty -> log output)
	SeedDemoUser             bool          `yaml:"seed_demo_user"`              // create user/user123 when missing
}

// Defaults returns the configuration used when nothing is set.
func Defaults() Config {
	return Config{
		Port:                  "8080",
		SessionKey:            "change-this-session-key",
		CookieSameSite:        "Strict",
		LogDir:                "./logs",
		DatabaseURL:           "sqlite://registry.db",
		BcryptCost:            DefaultBcryptCost,
		LockoutThreshold:      DefaultLockoutThreshold,
		LockoutWindow:         DefaultLockoutWindow,
		StoreTimeout:          DefaultStoreTimeout,
		AccessFeedLimit:       DefaultAccessFeedLimit,
		BootstrapAdminEnabled: true,
	}
}

// Load starts from Defaults, applies the YAML file named by CONFIG_FILE (if
// any) and finally environment variables, which win.
func Load() (Config, error) {
	cfg := Defaults()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}
	applyEnv(&cfg)
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.Port = firstNonEmpty(os.Getenv("PORT"), cfg.Port)
	cfg.SessionKey = firstNonEmpty(os.Getenv("SESSION_KEY"), cfg.SessionKey)
	cfg.CookieSecure = boolFromEnv("COOKIE_SECURE", cfg.CookieSecure)
	cfg.CookieSameSite = firstNonEmpty(os.Getenv("COOKIE_SAMESITE"), cfg.CookieSameSite)
	cfg.LogDir = firstNonEmpty(os.Getenv("LOG_DIR"), cfg.LogDir)
	cfg.DatabaseURL = firstNonEmpty(os.Getenv("DATABASE_URL"), os.Getenv("POSTGRES_URL"), cfg.DatabaseURL)
	cfg.RedisURL = firstNonEmpty(os.Getenv("REDIS_URL"), cfg.RedisURL)
	if origins := parseCSV(os.Getenv("ALLOWED_ORIGINS")); len(origins) > 0 {
		cfg.AllowedOrigins = origins
	}
	cfg.BcryptCost = intFromEnv("BCRYPT_COST", cfg.BcryptCost)
	cfg.LockoutThreshold = intFromEnv("LOCKOUT_THRESHOLD", cfg.LockoutThreshold)
	cfg.LockoutWindow = durationFromEnv("LOCKOUT_WINDOW", cfg.LockoutWindow)
	cfg.StoreTimeout = durationFromEnv("STORE_TIMEOUT", cfg.StoreTimeout)
	cfg.AccessFeedLimit = intFromEnv("ACCESS_FEED_LIMIT", cfg.AccessFeedLimit)
	cfg.BootstrapAdminEnabled = boolFromEnv("BOOTSTRAP_ADMIN", cfg.BootstrapAdminEnabled)
	cfg.InitialAdminPassword = firstNonEmpty(os.Getenv("INITIAL_ADMIN_PASSWORD"), cfg.InitialAdminPassword)
	cfg.InitialAdminPasswordPath = firstNonEmpty(os.Getenv("INITIAL_ADMIN_PASSWORD_PATH"), cfg.InitialAdminPasswordPath)
	cfg.SeedDemoUser = boolFromEnv("SEED_DEMO_USER", cfg.SeedDemoUser)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// boolFromEnv reads a boolean from env var name, falling back to defaultVal when empty or invalid.
func boolFromEnv(name string, defaultVal bool) bool {
	if v := os.Getenv(name); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultVal
}

// intFromEnv reads an int from env var name, falling back to defaultVal when empty or invalid.
func intFromEnv(name string, defaultVal int) int {
	if v := os.Getenv(name); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

// durationFromEnv accepts Go duration syntax ("15m", "90s").
func durationFromEnv(name string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(name); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return defaultVal
}

// parseCSV splits comma-separated list and trims spaces; empty entries are skipped.
func parseCSV(s string) []string {
	var out []string
	for _, v := range strings.Split(s, ",") {
		if t := strings.TrimSpace(v); t != "" {
			out = append(out, t)
		}
	}
	return out
}
