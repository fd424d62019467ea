// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Mapping sources accepted by STORY_MAPPINGS_SOURCE.
const (
	MappingSourceFile     = "file"
	MappingSourcePostgres = "postgres"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// GRPCAddr is the address the gRPC event ingress listens on (e.g. :8080).
	GRPCAddr string `mapstructure:"GRPC_ADDR"`
	// HTTPAddr is the address of the browser-facing tracking API (/connect, /track).
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// DatabaseURL is the Postgres DSN for stories, mappings and beacons.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`
	// LogLevel is the zap level name (debug, info, warn, error).
	LogLevel string `mapstructure:"LOG_LEVEL"`

	// MappingSource selects where story mappings are loaded from: "file" or "postgres".
	MappingSource string `mapstructure:"STORY_MAPPINGS_SOURCE"`
	// MappingFile is the YAML story mapping file used when MappingSource is "file".
	MappingFile string `mapstructure:"STORY_MAPPINGS_FILE"`
	// MappingWatch reloads MappingFile on change.
	MappingWatch bool `mapstructure:"STORY_MAPPINGS_WATCH"`

	// EventsAPIKey, when set, is required as x-api-key metadata on EventService calls.
	EventsAPIKey string `mapstructure:"EVENTS_API_KEY"`
	// TrackingAPIKey, when set, must match the apiKey field of tracking beacons.
	TrackingAPIKey string `mapstructure:"TRACKING_API_KEY"`

	// StoryKafkaBrokers is a comma-separated list of Kafka broker addresses. Empty disables the producer.
	StoryKafkaBrokers string `mapstructure:"KAFKA_BROKERS"`
	// StoryKafkaTopic is the topic recorded stories are published to.
	StoryKafkaTopic string `mapstructure:"STORY_KAFKA_TOPIC"`
	// KafkaGroupID is the consumer group ID for the story worker.
	KafkaGroupID string `mapstructure:"KAFKA_GROUP_ID"`
	// LokiURL is where the worker pushes story events (e.g. http://localhost:3100).
	LokiURL string `mapstructure:"LOKI_URL"`

	// OTLPEndpoint is the OTLP gRPC collector; empty keeps no-op providers.
	OTLPEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	// OTLPInsecure forces a plaintext OTLP connection.
	OTLPInsecure bool `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`
	// ServiceName is the OTel service.name resource attribute.
	ServiceName string `mapstructure:"OTEL_SERVICE_NAME"`

	// HealthCheckInterval is how often the health checker pings dependencies (e.g. "15s").
	HealthCheckInterval string `mapstructure:"HEALTH_CHECK_INTERVAL"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("GRPC_ADDR", ":8080")
	v.SetDefault("HTTP_ADDR", ":8081")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("APP_ENV", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("STORY_MAPPINGS_SOURCE", MappingSourceFile)
	v.SetDefault("STORY_MAPPINGS_FILE", "storymappings.yaml")
	v.SetDefault("STORY_MAPPINGS_WATCH", false)
	v.SetDefault("EVENTS_API_KEY", "")
	v.SetDefault("TRACKING_API_KEY", "")
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("STORY_KAFKA_TOPIC", "playground-stories")
	v.SetDefault("KAFKA_GROUP_ID", "playground-story-worker")
	v.SetDefault("LOKI_URL", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)
	v.SetDefault("OTEL_SERVICE_NAME", "playground-flow")
	v.SetDefault("HEALTH_CHECK_INTERVAL", "15s")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.GRPCAddr == "" {
		return nil, errors.New("config: GRPC_ADDR must be set")
	}
	if cfg.HTTPAddr == "" {
		return nil, errors.New("config: HTTP_ADDR must be set")
	}

	cfg.MappingSource = strings.ToLower(strings.TrimSpace(cfg.MappingSource))
	switch cfg.MappingSource {
	case MappingSourceFile:
		if cfg.MappingFile == "" {
			return nil, errors.New("config: STORY_MAPPINGS_FILE must be set when STORY_MAPPINGS_SOURCE=file")
		}
	case MappingSourcePostgres:
		if cfg.DatabaseURL == "" {
			return nil, errors.New("config: DATABASE_URL must be set when STORY_MAPPINGS_SOURCE=postgres")
		}
	default:
		return nil, errors.New("config: STORY_MAPPINGS_SOURCE must be file or postgres")
	}

	if cfg.Env == "production" && cfg.TrackingAPIKey == "" {
		return nil, errors.New("config: TRACKING_API_KEY must be set when APP_ENV=production")
	}

	return &cfg, nil
}

// HealthInterval parses HealthCheckInterval as a time.Duration. Returns 15s if unset or invalid.
func (c *Config) HealthInterval() time.Duration {
	d, err := time.ParseDuration(c.HealthCheckInterval)
	if err != nil || d <= 0 {
		return 15 * time.Second
	}
	return d
}

// StoryKafkaBrokersList returns Kafka broker addresses from the comma-separated config.
// Used to decide if story publishing is enabled (non-empty list) and to create the producer.
func (c *Config) StoryKafkaBrokersList() []string {
	if c == nil || c.StoryKafkaBrokers == "" {
		return nil
	}
	parts := strings.Split(c.StoryKafkaBrokers, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
