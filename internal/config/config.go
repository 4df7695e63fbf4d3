package config

import (
	"errors"
	"os"
	"strconv"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Storage backends.
const (
	StorageLocal = "local"
	StorageHTTP  = "http"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	KafkaBrokers     []string
	KafkaSourceTopic string
	KafkaSinkTopic   string
	KafkaGroupID     string
	HTTPAddr         string
	LogLevel         string
	LogFormat        string
	ShutdownTimeout  time.Duration

	BatchSize          int
	BatchFlushInterval time.Duration

	CatalogPath string

	// Object storage holding the model files the catalog points at.
	StorageBackend     string
	StorageRoot        string
	StorageArchiveRoot string
	StorageURL         string
	StorageTimeout     time.Duration
	StorageCacheSize   int
	StorageCacheTTL    time.Duration

	WorkDir             string
	OutputDir           string
	DomainsFile         string
	InterpolatorCommand string
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	batchSize, err := sharedcfg.ParseBatchSize()
	if err != nil {
		return nil, err
	}

	flushInterval, err := sharedcfg.ParseBatchFlushInterval()
	if err != nil {
		return nil, err
	}

	storageTimeout, err := time.ParseDuration(sharedcfg.EnvOrDefault("STORAGE_TIMEOUT", "30s"))
	if err != nil || storageTimeout <= 0 {
		return nil, errors.New("invalid STORAGE_TIMEOUT")
	}

	cacheSize, err := parseStorageCacheSize()
	if err != nil {
		return nil, err
	}

	cacheTTL, err := time.ParseDuration(sharedcfg.EnvOrDefault("STORAGE_CACHE_TTL", "10m"))
	if err != nil || cacheTTL < 0 {
		return nil, errors.New("invalid STORAGE_CACHE_TTL")
	}

	cfg := &Config{
		KafkaBrokers:       sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaSourceTopic:   sharedcfg.EnvOrDefault("KAFKA_SOURCE_TOPIC", "metget-build-requests"),
		KafkaSinkTopic:     sharedcfg.EnvOrDefault("KAFKA_SINK_TOPIC", "metget-request-status"),
		KafkaGroupID:       sharedcfg.EnvOrDefault("KAFKA_GROUP_ID", "metget-build"),
		HTTPAddr:           sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:           sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:          sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout:    shutdownTimeout,
		BatchSize:          batchSize,
		BatchFlushInterval: flushInterval,

		CatalogPath: sharedcfg.EnvOrDefault("CATALOG_PATH", "metget.db"),

		StorageBackend:     sharedcfg.EnvOrDefault("STORAGE_BACKEND", StorageLocal),
		StorageRoot:        sharedcfg.EnvOrDefault("STORAGE_ROOT", "data"),
		StorageArchiveRoot: os.Getenv("STORAGE_ARCHIVE_ROOT"),
		StorageURL:         os.Getenv("STORAGE_URL"),
		StorageTimeout:     storageTimeout,
		StorageCacheSize:   cacheSize,
		StorageCacheTTL:    cacheTTL,

		WorkDir:             sharedcfg.EnvOrDefault("WORK_DIR", "work"),
		OutputDir:           sharedcfg.EnvOrDefault("OUTPUT_DIR", "output"),
		DomainsFile:         os.Getenv("DOMAINS_FILE"),
		InterpolatorCommand: os.Getenv("INTERPOLATOR_COMMAND"),
	}

	if len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_BROKERS is required")
	}
	if cfg.KafkaSourceTopic == "" {
		return nil, errors.New("KAFKA_SOURCE_TOPIC is required")
	}
	if cfg.KafkaSinkTopic == "" {
		return nil, errors.New("KAFKA_SINK_TOPIC is required")
	}
	switch cfg.StorageBackend {
	case StorageLocal:
	case StorageHTTP:
		if cfg.StorageURL == "" {
			return nil, errors.New("STORAGE_BACKEND is http but STORAGE_URL is not set")
		}
	default:
		return nil, errors.New("invalid STORAGE_BACKEND: must be local or http")
	}

	return cfg, nil
}

func parseStorageCacheSize() (int, error) {
	s := os.Getenv("STORAGE_CACHE_SIZE")
	if s == "" {
		return 1000, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, errors.New("invalid STORAGE_CACHE_SIZE: must be a non-negative integer")
	}
	return n, nil
}
