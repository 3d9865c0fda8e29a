package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// Remote backends accepted by REMOTE_BACKEND.
const (
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
	BackendObject   = "object"
	BackendNone     = "none"
)

// Config represents the application configuration sourced from the environment.
type Config struct {
	AppName  string
	LogLevel string `validate:"omitempty,oneof=trace debug info warn error fatal panic disabled"`

	LocalStorePath     string `validate:"required_without=LocalStoreInMemory"`
	LocalStoreInMemory bool
	LocalSyncWrites    bool

	RemoteBackend   string `validate:"oneof=postgres redis object none"`
	PostgresURL     string `validate:"required_if=RemoteBackend postgres"`
	RedisAddr       string `validate:"required_if=RemoteBackend redis"`
	RedisPassword   string
	RedisDB         int `validate:"min=0"`
	ObjectEndpoint  string
	ObjectRegion    string
	ObjectBucket    string
	ObjectAccessKey string
	ObjectSecretKey string
	ObjectUseSSL    bool

	UserID          string
	DeviceID        string        `validate:"required"`
	SyncDebounce    time.Duration `validate:"gt=0"`
	SyncPushTimeout time.Duration `validate:"gt=0"`
	ArchiveInterval time.Duration `validate:"gte=0"`

	Timezone    string
	CatalogPath string

	HTTPListenAddr   string `validate:"required"`
	MetricsAddr      string
	ShutdownTimeout  time.Duration `validate:"gt=0"`
	HealthcheckProbe time.Duration `validate:"gt=0"`
	OTLPEndpoint     string
}

// ObjectStorageEnabled reports whether an object store is configured, either
// as the remote backend or for archives.
func (c Config) ObjectStorageEnabled() bool {
	return c.ObjectEndpoint != "" && c.ObjectBucket != ""
}

// Load reads configuration from the environment while applying sensible defaults
// for local development.
func Load() (Config, error) {
	cfg := Config{
		AppName:            getEnv("APP_NAME", "progress-sync"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		LocalStorePath:     getEnv("LOCAL_STORE_PATH", "./data/progress"),
		LocalStoreInMemory: getBool("LOCAL_STORE_IN_MEMORY", false),
		LocalSyncWrites:    getBool("LOCAL_SYNC_WRITES", true),
		RemoteBackend:      getEnv("REMOTE_BACKEND", BackendNone),
		PostgresURL:        os.Getenv("POSTGRES_URL"),
		RedisAddr:          os.Getenv("REDIS_ADDR"),
		RedisPassword:      os.Getenv("REDIS_PASSWORD"),
		RedisDB:            getInt("REDIS_DB", 0),
		ObjectEndpoint:     os.Getenv("OBJECT_ENDPOINT"),
		ObjectRegion:       getEnv("OBJECT_REGION", "us-east-1"),
		ObjectBucket:       getEnv("OBJECT_BUCKET", "progress-sync"),
		ObjectAccessKey:    os.Getenv("OBJECT_ACCESS_KEY"),
		ObjectSecretKey:    os.Getenv("OBJECT_SECRET_KEY"),
		ObjectUseSSL:       getBool("OBJECT_USE_SSL", false),
		UserID:             os.Getenv("USER_ID"),
		DeviceID:           getEnv("DEVICE_ID", uuid.NewString()),
		SyncDebounce:       getDuration("SYNC_DEBOUNCE", time.Second),
		SyncPushTimeout:    getDuration("SYNC_PUSH_TIMEOUT", 10*time.Second),
		ArchiveInterval:    getDuration("ARCHIVE_INTERVAL", 15*time.Minute),
		Timezone:           getEnv("TIMEZONE", "Local"),
		CatalogPath:        os.Getenv("CATALOG_PATH"),
		HTTPListenAddr:     getEnv("HTTP_LISTEN_ADDR", "127.0.0.1:8080"),
		MetricsAddr:        os.Getenv("METRICS_LISTEN_ADDR"),
		ShutdownTimeout:    getDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		HealthcheckProbe:   getDuration("HEALTHCHECK_INTERVAL", 30*time.Second),
		OTLPEndpoint:       os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks field constraints and backend-specific requirements.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.RemoteBackend == BackendObject && !c.ObjectStorageEnabled() {
		return fmt.Errorf("invalid configuration: object backend requires OBJECT_ENDPOINT and OBJECT_BUCKET")
	}
	if c.ObjectStorageEnabled() && (c.ObjectAccessKey == "" || c.ObjectSecretKey == "") {
		return fmt.Errorf("object storage credentials must be provided")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

func getBool(key string, fallback bool) bool {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}
	return v
}

func getDuration(key string, fallback time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}
	return d
}
