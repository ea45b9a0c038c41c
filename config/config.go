package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Environment represents the application environment.
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvStaging     Environment = "staging"
	EnvProduction  Environment = "production"
)

// Config holds all application configuration.
type Config struct {
	App           AppConfig
	Database      DatabaseConfig
	Redis         RedisConfig
	Telegram      TelegramConfig
	LLM           LLMConfig
	Artifact      ArtifactConfig
	Admin         AdminConfig
	Features      *FeatureFlags
	Observability ObservabilityConfig
}

// AppConfig holds general application settings.
type AppConfig struct {
	Name            string
	Environment     Environment
	Debug           bool
	Version         string
	Port            int    // PORT — HTTP listen port (default 5000)
	ExternalURL     string // RENDER_EXTERNAL_URL — base URL used to install webhooks
	ShutdownTimeout time.Duration
}

// DatabaseConfig holds PostgreSQL connection settings (kept verbatim from
// the teacher; the bot-factory's five collections all live on this pool).
type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	QueryTimeout    time.Duration
	LogQueries      bool
}

// RedisConfig holds Redis connection settings (kept verbatim from the
// teacher; backs the conversation-state, in-progress, and analytics caches).
type RedisConfig struct {
	URL          string
	Host         string
	Port         int
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	Disabled     bool
}

// TelegramConfig holds the primary bot's Telegram settings (§6 Configuration).
type TelegramConfig struct {
	Token              string        // TELEGRAM_TOKEN
	WebhookInstallTimeouts []time.Duration // 30/45/60s over retries (§5)
	APITimeout         time.Duration // 10s per §5
	WebhookRetrySchedule []time.Duration // 2/4/8s per §4.5
}

// LLMConfig holds the Anthropic LLM provider settings used by C4.
type LLMConfig struct {
	APIKey     string        // ANTHROPIC_API_KEY
	Model      string
	Timeout    time.Duration // >= 60s per §5
	MaxRetries int
}

// ArtifactConfig holds the GitHub-backed artifact store settings used by C2.
type ArtifactConfig struct {
	Token   string // GITHUB_TOKEN
	Owner   string // GITHUB_USER — the repository owner the handlers/ tree lives under
	Repo    string // GITHUB_REPO
	Branch  string // GITHUB_BRANCH
	Timeout time.Duration // 10s per §5
}

// AdminConfig holds the admin identity and dashboard auth settings.
type AdminConfig struct {
	ChatID         int64  // ADMIN_CHAT_ID — exempt from rate limit, receives notifications
	TokenHash      string // DASHBOARD_ADMIN_TOKEN_HASH — bcrypt hash of the admin token, empty if unset
	RawTokenIsSet  bool
}

// ObservabilityConfig holds logging and metrics settings.
type ObservabilityConfig struct {
	LogLevel  string
	LogFormat string
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.App = loadAppConfig()

	var err error
	cfg.Database, err = loadDatabaseConfig()
	if err != nil {
		return nil, fmt.Errorf("database config: %w", err)
	}

	cfg.Redis = loadRedisConfig()
	cfg.Telegram = loadTelegramConfig()
	cfg.LLM = loadLLMConfig()
	cfg.Artifact = loadArtifactConfig()
	cfg.Admin = loadAdminConfig()
	cfg.Features = LoadFeatureFlags()
	cfg.Observability = loadObservabilityConfig()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

func loadAppConfig() AppConfig {
	env := Environment(getEnv("APP_ENV", "development"))

	return AppConfig{
		Name:            getEnv("APP_NAME", "telegram-bot-factory"),
		Environment:     env,
		Debug:           env == EnvDevelopment || getEnvBool("DEBUG", false),
		Version:         getEnv("APP_VERSION", "0.1.0"),
		Port:            getEnvInt("PORT", 5000),
		ExternalURL:     getEnv("RENDER_EXTERNAL_URL", ""),
		ShutdownTimeout: getEnvDuration("APP_SHUTDOWN_TIMEOUT", 30*time.Second),
	}
}

func loadDatabaseConfig() (DatabaseConfig, error) {
	url := getEnv("DATABASE_URL", "")
	if url == "" {
		host := getEnv("DB_HOST", "")
		port := getEnv("DB_PORT", "5432")
		user := getEnv("DB_USER", "")
		pass := getEnv("DB_PASSWORD", "")
		name := getEnv("DB_NAME", "postgres")
		sslmode := getEnv("DB_SSLMODE", "require")

		if host != "" && user != "" {
			url = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
				user, pass, host, port, name, sslmode)
		}
	}

	return DatabaseConfig{
		URL:             url,
		MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
		MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
		ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		ConnMaxIdleTime: getEnvDuration("DB_CONN_MAX_IDLE_TIME", 1*time.Minute),
		QueryTimeout:    getEnvDuration("DB_QUERY_TIMEOUT", 5*time.Second),
		LogQueries:      getEnvBool("DB_LOG_QUERIES", false),
	}, nil
}

func loadRedisConfig() RedisConfig {
	return RedisConfig{
		URL:          getEnv("REDIS_URL", ""),
		Host:         getEnv("REDIS_HOST", "localhost"),
		Port:         getEnvInt("REDIS_PORT", 6379),
		Password:     getEnv("REDIS_PASSWORD", ""),
		DB:           getEnvInt("REDIS_DB", 0),
		PoolSize:     getEnvInt("REDIS_POOL_SIZE", 10),
		MinIdleConns: getEnvInt("REDIS_MIN_IDLE_CONNS", 2),
		DialTimeout:  getEnvDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
		ReadTimeout:  getEnvDuration("REDIS_READ_TIMEOUT", 3*time.Second),
		WriteTimeout: getEnvDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		Disabled:     getEnvBool("REDIS_DISABLED", false),
	}
}

func loadTelegramConfig() TelegramConfig {
	return TelegramConfig{
		Token:                  getEnv("TELEGRAM_TOKEN", ""),
		APITimeout:             getEnvDuration("TELEGRAM_API_TIMEOUT", 10*time.Second),
		WebhookRetrySchedule:   []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second},
		WebhookInstallTimeouts: []time.Duration{30 * time.Second, 45 * time.Second, 60 * time.Second},
	}
}

func loadLLMConfig() LLMConfig {
	return LLMConfig{
		APIKey:     getEnv("ANTHROPIC_API_KEY", ""),
		Model:      getEnv("ANTHROPIC_MODEL", "claude-3-5-sonnet-20241022"),
		Timeout:    getEnvDuration("ANTHROPIC_TIMEOUT", 60*time.Second),
		MaxRetries: getEnvInt("ANTHROPIC_MAX_RETRIES", 2),
	}
}

func loadArtifactConfig() ArtifactConfig {
	return ArtifactConfig{
		Token:   getEnv("GITHUB_TOKEN", ""),
		Owner:   getEnv("GITHUB_USER", ""),
		Repo:    getEnv("GITHUB_REPO", ""),
		Branch:  getEnv("GITHUB_BRANCH", "main"),
		Timeout: getEnvDuration("GITHUB_TIMEOUT", 10*time.Second),
	}
}

func loadAdminConfig() AdminConfig {
	hash := getEnv("DASHBOARD_ADMIN_TOKEN_HASH", "")
	raw := getEnv("DASHBOARD_ADMIN_TOKEN", "")
	return AdminConfig{
		ChatID:        getEnvInt64("ADMIN_CHAT_ID", 0),
		TokenHash:     hash,
		RawTokenIsSet: hash != "" || raw != "",
	}
}

func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	var errs []string

	if c.Telegram.Token == "" {
		errs = append(errs, "TELEGRAM_TOKEN is required")
	}

	if c.App.Environment == EnvProduction {
		if c.Database.URL == "" {
			errs = append(errs, "DATABASE_URL is required in production")
		}
		if c.App.ExternalURL == "" {
			errs = append(errs, "RENDER_EXTERNAL_URL is required in production")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == EnvDevelopment
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.App.Environment == EnvProduction
}

// AdminTokenConfigured reports whether an admin token has been set; per §6
// and DESIGN.md O3, an unset token denies all admin-gated requests unless
// FeatureFlags.DevOpenAdmin is explicitly set, reversing the original
// open-by-default fallback.
func (c *Config) AdminTokenConfigured() bool {
	return c.Admin.RawTokenIsSet
}

// --- Helper functions for environment variable parsing ---

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return defaultVal
	}
	return b
}

func getEnvInt(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvInt64(key string, defaultVal int64) int64 {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	i, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return defaultVal
	}
	return d
}
