/**
 * @description
 * Configuration for the back-office service. Values come from environment variables, with an
 * optional .env file in the given path, through Viper.
 *
 * @dependencies
 * - github.com/spf13/viper: Environment and .env binding.
 * - go.uber.org/zap: Warnings about coerced values go to the global logger.
 */

package config

import (
	"fmt"
	"net/netip"
	"os"
	"strings"
	"time"

	"github.com/farmacias-vallenar/backoffice-service/internal/authz"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	defaultServerPort           = "8080"
	defaultRedisKeyPrefix       = "backoffice"
	defaultAuditEventsExchange  = "backoffice.events"
	defaultPINMaxAttempts       = 3
	defaultPINLockoutSeconds    = 900
	defaultTxTimeoutSeconds     = 10
	defaultPublicSettingsCacheS = 60
	defaultHTTPRateLimitPerMin  = 120
	defaultAttemptSweepSchedule = "@every 5m"
	defaultCORSAllowedOrigins   = "https://*,http://*"
	defaultLogLevel             = "info"
	defaultServiceName          = "backoffice-service"
)

// Config holds all the configuration variables for the back-office service.
type Config struct {
	ServiceName                string `mapstructure:"SERVICE_NAME"`
	LogLevel                   string `mapstructure:"LOG_LEVEL"`
	ServerPort                 string `mapstructure:"SERVER_PORT"`
	DatabaseURL                string `mapstructure:"DATABASE_URL"`
	RunMigrations              bool   `mapstructure:"RUN_MIGRATIONS"`
	RedisURL                   string `mapstructure:"REDIS_URL"`
	RedisKeyPrefix             string `mapstructure:"REDIS_KEY_PREFIX"`
	RabbitMQURL                string `mapstructure:"RABBITMQ_URL"`
	AuditEventsExchange        string `mapstructure:"AUDIT_EVENTS_EXCHANGE"`
	InternalAPIKey             string `mapstructure:"INTERNAL_API_KEY"`
	SessionJWTSecret           string `mapstructure:"SESSION_JWT_SECRET"`
	PINMaxAttempts             int    `mapstructure:"PIN_MAX_ATTEMPTS"`
	PINLockoutSeconds          int    `mapstructure:"PIN_LOCKOUT_SECONDS"`
	PINThrottlePlaintext       bool   `mapstructure:"PIN_THROTTLE_PLAINTEXT"`
	TxTimeoutSeconds           int    `mapstructure:"TX_TIMEOUT_SECONDS"`
	PublicSettingsCacheSeconds int    `mapstructure:"PUBLIC_SETTINGS_CACHE_SECONDS"`
	SettingsPublicKeys         string `mapstructure:"SETTINGS_PUBLIC_KEYS"`
	SettingsPrivateKeys        string `mapstructure:"SETTINGS_PRIVATE_KEYS"`
	SettingsCriticalKeys       string `mapstructure:"SETTINGS_CRITICAL_KEYS"`
	HTTPRateLimitPerMinute     int    `mapstructure:"HTTP_RATE_LIMIT_PER_MINUTE"`
	AttemptSweepSchedule       string `mapstructure:"ATTEMPT_SWEEP_SCHEDULE"`
	CORSAllowedOrigins         string `mapstructure:"CORS_ALLOWED_ORIGINS"`
	TrustedProxyCIDRs          string `mapstructure:"TRUSTED_PROXY_CIDRS"`
}

// LoadConfig reads configuration from environment variables and an optional .env file in path.
func LoadConfig(path string) (config Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	viper.SetDefault("SERVICE_NAME", defaultServiceName)
	viper.SetDefault("LOG_LEVEL", defaultLogLevel)
	viper.SetDefault("SERVER_PORT", defaultServerPort)
	viper.SetDefault("RUN_MIGRATIONS", false)
	viper.SetDefault("REDIS_KEY_PREFIX", defaultRedisKeyPrefix)
	viper.SetDefault("AUDIT_EVENTS_EXCHANGE", defaultAuditEventsExchange)
	viper.SetDefault("PIN_MAX_ATTEMPTS", defaultPINMaxAttempts)
	viper.SetDefault("PIN_LOCKOUT_SECONDS", defaultPINLockoutSeconds)
	viper.SetDefault("PIN_THROTTLE_PLAINTEXT", true)
	viper.SetDefault("TX_TIMEOUT_SECONDS", defaultTxTimeoutSeconds)
	viper.SetDefault("PUBLIC_SETTINGS_CACHE_SECONDS", defaultPublicSettingsCacheS)
	viper.SetDefault("HTTP_RATE_LIMIT_PER_MINUTE", defaultHTTPRateLimitPerMin)
	viper.SetDefault("ATTEMPT_SWEEP_SCHEDULE", defaultAttemptSweepSchedule)
	viper.SetDefault("CORS_ALLOWED_ORIGINS", defaultCORSAllowedOrigins)

	// Bind explicitly so keys without defaults still appear in Unmarshal.
	_ = viper.BindEnv("SERVICE_NAME")
	_ = viper.BindEnv("LOG_LEVEL")
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("RUN_MIGRATIONS")
	_ = viper.BindEnv("REDIS_URL")
	_ = viper.BindEnv("REDIS_KEY_PREFIX")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("AUDIT_EVENTS_EXCHANGE")
	_ = viper.BindEnv("INTERNAL_API_KEY")
	_ = viper.BindEnv("SESSION_JWT_SECRET")
	_ = viper.BindEnv("PIN_MAX_ATTEMPTS")
	_ = viper.BindEnv("PIN_LOCKOUT_SECONDS")
	_ = viper.BindEnv("PIN_THROTTLE_PLAINTEXT")
	_ = viper.BindEnv("TX_TIMEOUT_SECONDS")
	_ = viper.BindEnv("PUBLIC_SETTINGS_CACHE_SECONDS")
	_ = viper.BindEnv("SETTINGS_PUBLIC_KEYS")
	_ = viper.BindEnv("SETTINGS_PRIVATE_KEYS")
	_ = viper.BindEnv("SETTINGS_CRITICAL_KEYS")
	_ = viper.BindEnv("HTTP_RATE_LIMIT_PER_MINUTE")
	_ = viper.BindEnv("ATTEMPT_SWEEP_SCHEDULE")
	_ = viper.BindEnv("CORS_ALLOWED_ORIGINS")
	_ = viper.BindEnv("TRUSTED_PROXY_CIDRS")

	if err = viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			zap.L().Warn("failed to read config file; using environment values", zap.String("component", "config"), zap.Error(err))
		}
		err = nil
	}

	if err = viper.Unmarshal(&config); err != nil {
		return
	}

	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		config.ServerPort = port
	}
	config.DatabaseURL = strings.TrimSpace(config.DatabaseURL)
	config.RedisURL = strings.TrimSpace(config.RedisURL)
	config.RabbitMQURL = strings.TrimSpace(config.RabbitMQURL)
	config.InternalAPIKey = strings.TrimSpace(config.InternalAPIKey)
	config.SessionJWTSecret = strings.TrimSpace(config.SessionJWTSecret)

	config.RedisKeyPrefix = strings.TrimSpace(config.RedisKeyPrefix)
	if config.RedisKeyPrefix == "" {
		config.RedisKeyPrefix = defaultRedisKeyPrefix
	}
	config.AuditEventsExchange = strings.TrimSpace(config.AuditEventsExchange)
	if config.AuditEventsExchange == "" {
		config.AuditEventsExchange = defaultAuditEventsExchange
	}
	if strings.TrimSpace(config.AttemptSweepSchedule) == "" {
		config.AttemptSweepSchedule = defaultAttemptSweepSchedule
	}

	config.PINMaxAttempts = positiveOrDefault("PIN_MAX_ATTEMPTS", config.PINMaxAttempts, defaultPINMaxAttempts)
	config.PINLockoutSeconds = positiveOrDefault("PIN_LOCKOUT_SECONDS", config.PINLockoutSeconds, defaultPINLockoutSeconds)
	config.TxTimeoutSeconds = positiveOrDefault("TX_TIMEOUT_SECONDS", config.TxTimeoutSeconds, defaultTxTimeoutSeconds)
	config.PublicSettingsCacheSeconds = positiveOrDefault("PUBLIC_SETTINGS_CACHE_SECONDS", config.PublicSettingsCacheSeconds, defaultPublicSettingsCacheS)
	config.HTTPRateLimitPerMinute = positiveOrDefault("HTTP_RATE_LIMIT_PER_MINUTE", config.HTTPRateLimitPerMinute, defaultHTTPRateLimitPerMin)

	if _, err = config.SettingsClassifier(); err != nil {
		return
	}
	if _, err = config.TrustedProxies(); err != nil {
		return
	}
	return
}

func positiveOrDefault(key string, value, fallback int) int {
	if value > 0 {
		return value
	}
	zap.L().Warn("non-positive value configured; using default",
		zap.String("component", "config"),
		zap.String("key", key),
		zap.Int("value", value),
		zap.Int("default", fallback),
	)
	return fallback
}

// SettingsClassifier builds the settings whitelist. Empty lists fall back to the built-in keys
// of that category; overlapping lists are an error.
func (c Config) SettingsClassifier() (*authz.Classifier, error) {
	classifier, err := authz.NewClassifier(
		listOrDefault(c.SettingsPublicKeys, authz.DefaultPublicSettings),
		listOrDefault(c.SettingsPrivateKeys, authz.DefaultPrivateSettings),
		listOrDefault(c.SettingsCriticalKeys, authz.DefaultCriticalSettings),
	)
	if err != nil {
		return nil, fmt.Errorf("invalid settings whitelist: %w", err)
	}
	return classifier, nil
}

func (c Config) PINLockout() time.Duration {
	return time.Duration(c.PINLockoutSeconds) * time.Second
}

func (c Config) TxTimeout() time.Duration {
	return time.Duration(c.TxTimeoutSeconds) * time.Second
}

func (c Config) PublicSettingsCacheTTL() time.Duration {
	return time.Duration(c.PublicSettingsCacheSeconds) * time.Second
}

// AllowedOrigins splits CORS_ALLOWED_ORIGINS.
func (c Config) AllowedOrigins() []string {
	return splitList(c.CORSAllowedOrigins)
}

// TrustedProxies parses TRUSTED_PROXY_CIDRS. Bare addresses are accepted as single-host prefixes.
// Forwarding headers are ignored unless the direct peer falls inside one of these prefixes.
func (c Config) TrustedProxies() ([]netip.Prefix, error) {
	entries := splitList(c.TrustedProxyCIDRs)
	prefixes := make([]netip.Prefix, 0, len(entries))
	for _, entry := range entries {
		if !strings.Contains(entry, "/") {
			addr, err := netip.ParseAddr(entry)
			if err != nil {
				return nil, fmt.Errorf("invalid trusted proxy %q: %w", entry, err)
			}
			prefixes = append(prefixes, netip.PrefixFrom(addr.Unmap(), addr.Unmap().BitLen()))
			continue
		}
		prefix, err := netip.ParsePrefix(entry)
		if err != nil {
			return nil, fmt.Errorf("invalid trusted proxy %q: %w", entry, err)
		}
		prefixes = append(prefixes, prefix.Masked())
	}
	return prefixes, nil
}

func listOrDefault(raw string, fallback []string) []string {
	if list := splitList(raw); len(list) > 0 {
		return list
	}
	return fallback
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
