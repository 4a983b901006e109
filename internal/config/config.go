package config

import (
	"os"
	"strconv"
	"strings"
)

const DefaultTokenTTL = 1800

type AppConfig struct {
	ServiceName string
	Version     string

	Port         string
	DatabaseURL  string
	LoggerConfig LoggerConfig
	RedisConfig  RedisConfig
	KafkaConfig  KafkaConfig
	Credential   CredentialConfig
	Upstream     UpstreamConfig

	// AllowedOrigins holds the parsed origin allow-list, in configured order.
	// Empty means no allow-list: every origin is served without CORS headers.
	AllowedOrigins []string
}

type LogOutputConfig struct {
	Path    string
	Console bool
	File    bool
}

type RedisConfig struct {
	Addr     string `json:"addr"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

type KafkaConfig struct {
	Brokers         []string
	ConsumerGroupID string
	AuditTopic      string
	RotationTopic   string
}

// CredentialConfig selects and parameterizes the credential source.
// TeamID/ServiceID/KeyID/PrivateKeyPEM are only read when Source is "env";
// the mongo and gcp sources load them at import time instead.
type CredentialConfig struct {
	Source        string // env | mongo | gcp
	TeamID        string
	ServiceID     string
	KeyID         string
	PrivateKeyPEM string
	TokenTTL      int

	GCPProject      string
	GCPSecretPrefix string
}

type UpstreamConfig struct {
	BaseURL  string
	DataSets string
	Timezone string
	Country  string
}

// RotationConfig bounds how large and how old log files may grow before
// the writer rolls them over.
type RotationConfig struct {
	MaxSize    int64 // bytes per file before rollover
	MaxAge     int   // days a rotated file is retained
	MaxBackups int   // rotated files kept per stream
	Compress   bool  // gzip rotated files
}

type LoggerConfig struct {
	Summary  LogOutputConfig
	Detail   LogOutputConfig
	Rotation RotationConfig
}

// Load builds the runtime configuration from the environment. Redis and
// Kafka stay zero-valued unless their host variables are set, so callers
// can probe len(Brokers) or Addr to see what was configured.
func Load() *AppConfig {
	cfg := &AppConfig{
		ServiceName: envOr("SERVICE_NAME", "weather-proxy"),
		Version:     envOr("VERSION", "1.0.0"),
		Port:        envOr("PORT", "8080"),
		DatabaseURL: os.Getenv("MONGO_URI"),
		LoggerConfig: LoggerConfig{
			Summary: LogOutputConfig{Path: "./logs/summary/", Console: true, File: true},
			Detail:  LogOutputConfig{Path: "./logs/detail/", Console: true, File: true},
			Rotation: RotationConfig{
				MaxSize:    50 * 1024 * 1024,
				MaxAge:     7,
				MaxBackups: 5,
				Compress:   true,
			},
		},
		Credential:     credentialFromEnv(),
		Upstream:       upstreamFromEnv(),
		AllowedOrigins: splitList(os.Getenv("ALLOWED_ORIGINS")),
	}

	if host := os.Getenv("REDIS_HOST"); host != "" {
		cfg.RedisConfig = RedisConfig{
			Addr:     host,
			Password: os.Getenv("REDIS_PASSWORD"),
		}
	}

	if brokers := splitList(os.Getenv("KAFKA_BROKERS")); len(brokers) > 0 {
		cfg.KafkaConfig = KafkaConfig{
			Brokers:         brokers,
			ConsumerGroupID: envOr("KAFKA_GROUP_ID", cfg.ServiceName),
			AuditTopic:      envOr("KAFKA_AUDIT_TOPIC", "weather.audit"),
			RotationTopic:   envOr("KAFKA_ROTATION_TOPIC", "weather.credential.rotated"),
		}
	}

	return cfg
}

func credentialFromEnv() CredentialConfig {
	return CredentialConfig{
		Source:          envOr("CREDENTIAL_SOURCE", "env"),
		TeamID:          os.Getenv("WEATHER_TEAM_ID"),
		ServiceID:       os.Getenv("WEATHER_SERVICE_ID"),
		KeyID:           os.Getenv("WEATHER_KEY_ID"),
		PrivateKeyPEM:   os.Getenv("WEATHER_PRIVATE_KEY"),
		TokenTTL:        envIntOr("WEATHER_TOKEN_TTL", DefaultTokenTTL),
		GCPProject:      os.Getenv("GCP_PROJECT"),
		GCPSecretPrefix: envOr("GCP_SECRET_PREFIX", "weather"),
	}
}

func upstreamFromEnv() UpstreamConfig {
	return UpstreamConfig{
		BaseURL:  envOr("UPSTREAM_BASE_URL", "https://weatherkit.apple.com/api/v1/weather/en"),
		DataSets: envOr("UPSTREAM_DATA_SETS", "currentWeather,forecastDaily"),
		Timezone: envOr("UPSTREAM_TIMEZONE", "auto"),
		Country:  envOr("UPSTREAM_COUNTRY", "US"),
	}
}

// LoadDefaults fills in any field still empty after env parsing.
func (c *AppConfig) LoadDefaults() error {
	if c.Credential.TokenTTL <= 0 {
		c.Credential.TokenTTL = DefaultTokenTTL
	}
	if c.Upstream.BaseURL == "" {
		c.Upstream.BaseURL = "https://weatherkit.apple.com/api/v1/weather/en"
	}
	if c.Upstream.DataSets == "" {
		c.Upstream.DataSets = "currentWeather,forecastDaily"
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	n, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return n
}

// splitList parses a comma-separated value, dropping empty entries so a
// trailing comma or double comma cannot produce an empty pattern.
func splitList(raw string) []string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func DefaultRotationConfig() RotationConfig {
	return RotationConfig{
		MaxSize:    100 * 1024 * 1024,
		MaxAge:     30,
		MaxBackups: 10,
		Compress:   true,
	}
}

// DefaultConfig is the logger fallback: console only, no files.
func DefaultConfig() *LoggerConfig {
	return &LoggerConfig{
		Summary: LogOutputConfig{
			Path:    "./logs/summary/",
			Console: true,
			File:    false,
		},
		Detail: LogOutputConfig{
			Path:    "./logs/detail/",
			Console: true,
			File:    false,
		},
		Rotation: DefaultRotationConfig(),
	}
}
