// Package config reads the service configuration from the environment.
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"shopify-admin-auth/internal/domain"
	"shopify-admin-auth/internal/infrastructure/idempotency"
	"shopify-admin-auth/internal/infrastructure/repository"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

// Session storage backends
const (
	StorageMemory = "memory"
	StorageMongo  = "mongo"
	StorageRedis  = "redis"
)

// Config is everything cmd/api needs to start
type Config struct {
	App      domain.AppConfig
	Port     string
	LogLevel zerolog.Level
	Storage  StorageConfig
	// HookTTL is how long an after-auth hook result is shared between requests
	HookTTL time.Duration
}

// StorageConfig selects and configures the session store
type StorageConfig struct {
	Kind           string
	MongoURI       string
	MongoDatabase  string
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	RedisKeyPrefix string
}

// LoadDotEnv loads .env files into the process environment. A missing file is only
// logged, the environment may already be set.
func LoadDotEnv(logger zerolog.Logger, filenames ...string) {
	if err := godotenv.Load(filenames...); err != nil {
		logger.Warn().Err(err).Msg(".env file not loaded")
	}
}

// Load builds the configuration from getenv, usually os.Getenv
func Load(getenv func(string) string) (*Config, error) {
	env := reader{getenv: getenv}

	distribution := domain.Distribution(env.str("SHOPIFY_DISTRIBUTION", string(domain.DistributionAppStore)))

	cfg := &Config{
		App: domain.AppConfig{
			APIKey:                      env.str("SHOPIFY_API_KEY", ""),
			APISecret:                   env.str("SHOPIFY_API_SECRET", ""),
			Scopes:                      domain.ParseScopes(env.str("SHOPIFY_SCOPES", "")),
			AppURL:                      strings.TrimRight(env.str("APP_URL", "http://localhost:8080"), "/"),
			APIVersion:                  env.str("SHOPIFY_API_VERSION", ""),
			Distribution:                distribution,
			AdminAPIAccessToken:         env.str("SHOPIFY_ADMIN_API_ACCESS_TOKEN", ""),
			IsEmbeddedApp:               env.boolean("SHOPIFY_EMBEDDED", true),
			UseOnlineTokens:             env.boolean("SHOPIFY_USE_ONLINE_TOKENS", false),
			TokenExchange:               env.boolean("SHOPIFY_TOKEN_EXCHANGE", true),
			ExpiringOfflineAccessTokens: env.boolean("SHOPIFY_EXPIRING_OFFLINE_TOKENS", false),
			CheckAudience:               env.boolean("SHOPIFY_CHECK_AUDIENCE", true),
		}.WithDefaults(),
		Port: env.str("PORT", "8080"),
		Storage: StorageConfig{
			Kind:           strings.ToLower(env.str("SESSION_STORAGE", StorageMemory)),
			MongoURI:       env.str("MONGODB_URI", "mongodb://localhost:27017"),
			MongoDatabase:  env.str("MONGODB_DATABASE", "shopify_app"),
			RedisAddr:      env.str("REDIS_ADDR", "localhost:6379"),
			RedisPassword:  env.str("REDIS_PASSWORD", ""),
			RedisDB:        env.integer("REDIS_DB", 0),
			RedisKeyPrefix: env.str("REDIS_KEY_PREFIX", repository.DefaultRedisKeyPrefix),
		},
		HookTTL: env.duration("AFTER_AUTH_HOOK_TTL", idempotency.DefaultTTL),
	}

	level, err := zerolog.ParseLevel(strings.ToLower(env.str("LOG_LEVEL", "info")))
	if err != nil {
		env.errs = append(env.errs, fmt.Sprintf("LOG_LEVEL: %v", err))
	}
	cfg.LogLevel = level

	switch cfg.Storage.Kind {
	case StorageMemory, StorageMongo, StorageRedis:
	default:
		env.errs = append(env.errs, fmt.Sprintf("SESSION_STORAGE: unknown backend %q", cfg.Storage.Kind))
	}

	if len(env.errs) > 0 {
		return nil, fmt.Errorf("%w: %s", domain.ErrConfiguration, strings.Join(env.errs, "; "))
	}
	return cfg, nil
}

// reader collects parse errors so every bad variable is reported at once
type reader struct {
	getenv func(string) string
	errs   []string
}

func (r *reader) str(key, fallback string) string {
	if value := strings.TrimSpace(r.getenv(key)); value != "" {
		return value
	}
	return fallback
}

func (r *reader) boolean(key string, fallback bool) bool {
	raw := r.str(key, "")
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		r.errs = append(r.errs, fmt.Sprintf("%s: %q is not a boolean", key, raw))
		return fallback
	}
	return value
}

func (r *reader) integer(key string, fallback int) int {
	raw := r.str(key, "")
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		r.errs = append(r.errs, fmt.Sprintf("%s: %q is not an integer", key, raw))
		return fallback
	}
	return value
}

func (r *reader) duration(key string, fallback time.Duration) time.Duration {
	raw := r.str(key, "")
	if raw == "" {
		return fallback
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		r.errs = append(r.errs, fmt.Sprintf("%s: %q is not a duration", key, raw))
		return fallback
	}
	return value
}
