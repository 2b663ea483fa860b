package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/rescuecom-dashboard/internal/domain"
	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Snapshot backends.
const (
	SnapshotSQLite = "sqlite"
	SnapshotRedis  = "redis"
	SnapshotNone   = "none"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Backend polling.
	BackendURL     string
	BackendTimeout time.Duration
	PollInterval   time.Duration
	DemoMode       bool
	DemoDataPath   string

	// Normalization.
	SeverityScale   domain.Scale
	DisplayLocation *time.Location

	// Snapshot persistence.
	SnapshotBackend string
	SnapshotPath    string
	RedisAddr       string
	RestoreSnapshot bool

	// Kafka push and action topics. Either topic may be empty to disable it.
	KafkaBrokers     []string
	KafkaPushTopic   string
	KafkaActionTopic string
	KafkaGroupID     string

	// Mapbox geocoding configuration.
	MapboxToken     string
	MapboxEnabled   bool
	MapboxTimeout   time.Duration
	MapboxCacheSize int
	// MapboxFailureTTL is how long a failed lookup is answered from cache.
	MapboxFailureTTL time.Duration
}

// KafkaPushEnabled reports whether pushed records are consumed from Kafka.
func (c *Config) KafkaPushEnabled() bool { return c.KafkaPushTopic != "" }

// KafkaActionsEnabled reports whether operator actions are published to Kafka.
func (c *Config) KafkaActionsEnabled() bool { return c.KafkaActionTopic != "" }

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	backendTimeout, err := parsePositiveDuration("BACKEND_TIMEOUT", "5s")
	if err != nil {
		return nil, err
	}
	pollInterval, err := parsePositiveDuration("POLL_INTERVAL", "10s")
	if err != nil {
		return nil, err
	}
	mapboxTimeout, err := parsePositiveDuration("MAPBOX_TIMEOUT", "5s")
	if err != nil {
		return nil, err
	}
	mapboxFailureTTL, err := parsePositiveDuration("MAPBOX_FAILURE_TTL", "1m")
	if err != nil {
		return nil, err
	}

	demoMode, err := parseBool("DEMO_MODE", false)
	if err != nil {
		return nil, err
	}
	restore, err := parseBool("RESTORE_SNAPSHOT", false)
	if err != nil {
		return nil, err
	}

	scale, err := domain.ParseScale(os.Getenv("SEVERITY_SCALE"))
	if err != nil {
		return nil, fmt.Errorf("invalid SEVERITY_SCALE: %w", err)
	}

	location, err := time.LoadLocation(sharedcfg.EnvOrDefault("DISPLAY_TIMEZONE", "Local"))
	if err != nil {
		return nil, fmt.Errorf("invalid DISPLAY_TIMEZONE: %w", err)
	}

	mapboxToken := os.Getenv("MAPBOX_TOKEN")
	mapboxEnabled := mapboxToken != ""
	if v := os.Getenv("MAPBOX_ENABLED"); v != "" {
		mapboxEnabled = v == "true"
	}

	cfg := &Config{
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		BackendURL:     strings.TrimRight(sharedcfg.EnvOrDefault("BACKEND_URL", "http://localhost:5000"), "/"),
		BackendTimeout: backendTimeout,
		PollInterval:   pollInterval,
		DemoMode:       demoMode,
		DemoDataPath:   os.Getenv("DEMO_DATA_PATH"),

		SeverityScale:   scale,
		DisplayLocation: location,

		SnapshotBackend: strings.ToLower(sharedcfg.EnvOrDefault("SNAPSHOT_BACKEND", SnapshotSQLite)),
		SnapshotPath:    sharedcfg.EnvOrDefault("SNAPSHOT_PATH", "rescuecom.db"),
		RedisAddr:       sharedcfg.EnvOrDefault("REDIS_ADDR", "localhost:6379"),
		RestoreSnapshot: restore,

		KafkaBrokers:     sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaPushTopic:   os.Getenv("KAFKA_PUSH_TOPIC"),
		KafkaActionTopic: os.Getenv("KAFKA_ACTION_TOPIC"),
		KafkaGroupID:     sharedcfg.EnvOrDefault("KAFKA_GROUP_ID", "rescuecom-dashboard"),

		MapboxToken:     mapboxToken,
		MapboxEnabled:   mapboxEnabled,
		MapboxTimeout:   mapboxTimeout,
		MapboxCacheSize: parseMapboxCacheSize(),

		MapboxFailureTTL: mapboxFailureTTL,
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if !c.DemoMode {
		u, err := url.Parse(c.BackendURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("invalid BACKEND_URL %q", c.BackendURL)
		}
	}
	switch c.SnapshotBackend {
	case SnapshotSQLite:
		if c.SnapshotPath == "" {
			return errors.New("SNAPSHOT_PATH is required for the sqlite snapshot backend")
		}
	case SnapshotRedis:
		if c.RedisAddr == "" {
			return errors.New("REDIS_ADDR is required for the redis snapshot backend")
		}
	case SnapshotNone:
	default:
		return fmt.Errorf("invalid SNAPSHOT_BACKEND %q", c.SnapshotBackend)
	}
	if (c.KafkaPushEnabled() || c.KafkaActionsEnabled()) && len(c.KafkaBrokers) == 0 {
		return errors.New("KAFKA_BROKERS is required when a Kafka topic is set")
	}
	if c.KafkaPushEnabled() && c.KafkaGroupID == "" {
		return errors.New("KAFKA_GROUP_ID is required when KAFKA_PUSH_TOPIC is set")
	}
	if c.MapboxEnabled && c.MapboxToken == "" {
		return errors.New("MAPBOX_ENABLED is true but MAPBOX_TOKEN is not set")
	}
	return nil
}

func parsePositiveDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, def))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parseBool(key string, def bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %q", key, v)
	}
	return b, nil
}

func parseMapboxCacheSize() int {
	if s := os.Getenv("MAPBOX_CACHE_SIZE"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return 1000
}
