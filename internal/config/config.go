package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the campaign engine and tracking service
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Delivery  DeliveryConfig  `yaml:"delivery"`
	Transport TransportConfig `yaml:"transport"`
	BodyStore BodyStoreConfig `yaml:"body_store"`
	Tracking  TrackingConfig  `yaml:"tracking"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Analytics AnalyticsConfig `yaml:"analytics"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port                int      `yaml:"port"`
	Host                string   `yaml:"host"`
	TrackingPort        int      `yaml:"tracking_port"`
	ReadTimeoutSeconds  int      `yaml:"read_timeout_seconds"`
	WriteTimeoutSeconds int      `yaml:"write_timeout_seconds"`
	AllowedOrigins      []string `yaml:"allowed_origins"`
}

// GetHost returns the server host, with ECS detection
func (c ServerConfig) GetHost() string {
	// On ECS/container, listen on all interfaces
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return "0.0.0.0"
	}
	if host := os.Getenv("SERVER_HOST"); host != "" {
		return host
	}
	return c.Host
}

// Addr returns host:port for the API listener.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.GetHost(), c.Port)
}

// TrackingAddr returns host:port for the tracking listener.
func (c ServerConfig) TrackingAddr() string {
	return fmt.Sprintf("%s:%d", c.GetHost(), c.TrackingPort)
}

func (c ServerConfig) ReadTimeout() time.Duration {
	return time.Duration(c.ReadTimeoutSeconds) * time.Second
}

func (c ServerConfig) WriteTimeout() time.Duration {
	return time.Duration(c.WriteTimeoutSeconds) * time.Second
}

// DatabaseConfig selects the store. Driver "memory" runs without Postgres.
type DatabaseConfig struct {
	Driver             string `yaml:"driver"` // "postgres" or "memory"
	DSN                string `yaml:"dsn"`
	ReplicaDSN         string `yaml:"replica_dsn"` // optional, serves analytics reads
	MaxOpenConns       int    `yaml:"max_open_conns"`
	MaxIdleConns       int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMin int    `yaml:"conn_max_lifetime_minutes"`
}

func (c DatabaseConfig) ConnMaxLifetime() time.Duration {
	return time.Duration(c.ConnMaxLifetimeMin) * time.Minute
}

// RedisConfig holds the optional Redis connection used for locks and the
// shared rate ceiling. Empty URL disables Redis.
type RedisConfig struct {
	URL string `yaml:"url"`
}

// Enabled reports whether a Redis URL is configured.
func (c RedisConfig) Enabled() bool { return c.URL != "" }

// DeliveryConfig tunes the delivery pipeline
type DeliveryConfig struct {
	Workers              int     `yaml:"workers"`
	RatePerSecond        float64 `yaml:"rate_per_second"`
	Burst                int     `yaml:"burst"`
	CallTimeoutSeconds   int     `yaml:"call_timeout_seconds"`
	MaxAttempts          int     `yaml:"max_attempts"`
	BaseBackoffMS        int     `yaml:"base_backoff_ms"`
	MaxBackoffMS         int     `yaml:"max_backoff_ms"`
	FailureThreshold     float64 `yaml:"failure_threshold"`
	DistributedRateLimit bool    `yaml:"distributed_rate_limit"`
}

func (c DeliveryConfig) CallTimeout() time.Duration {
	return time.Duration(c.CallTimeoutSeconds) * time.Second
}

func (c DeliveryConfig) BaseBackoff() time.Duration {
	return time.Duration(c.BaseBackoffMS) * time.Millisecond
}

func (c DeliveryConfig) MaxBackoff() time.Duration {
	return time.Duration(c.MaxBackoffMS) * time.Millisecond
}

// TransportConfig selects the outbound provider
type TransportConfig struct {
	Kind string     `yaml:"kind"` // "ses", "http" or "log"
	SES  SESConfig  `yaml:"ses"`
	HTTP HTTPConfig `yaml:"http"`
}

// SESConfig holds Amazon SES configuration
type SESConfig struct {
	AccessKey        string `yaml:"access_key"`
	SecretKey        string `yaml:"secret_key"`
	Region           string `yaml:"region"`
	ConfigurationSet string `yaml:"configuration_set"`
}

// HTTPConfig holds settings for a generic JSON send API
type HTTPConfig struct {
	Endpoint string `yaml:"endpoint"`
	APIKey   string `yaml:"api_key"`
}

// BodyStoreConfig resolves campaign body references
type BodyStoreConfig struct {
	Kind   string `yaml:"kind"` // "s3" or "inline"
	Bucket string `yaml:"bucket"`
	Region string `yaml:"region"`
	Prefix string `yaml:"prefix"`
}

// TrackingConfig holds signed-link and callback queue settings
type TrackingConfig struct {
	BaseURL     string `yaml:"base_url"`
	Secret      string `yaml:"secret"`
	SQSQueueURL string `yaml:"sqs_queue_url"`
	SQSRegion   string `yaml:"sqs_region"`
}

// SchedulerConfig drives the scheduled-send and stuck-send workers
type SchedulerConfig struct {
	Enabled              bool `yaml:"enabled"`
	PollIntervalSeconds  int  `yaml:"poll_interval_seconds"`
	StuckAfterMinutes    int  `yaml:"stuck_after_minutes"`
	SweepIntervalSeconds int  `yaml:"sweep_interval_seconds"`
}

func (c SchedulerConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

func (c SchedulerConfig) StuckAfter() time.Duration {
	return time.Duration(c.StuckAfterMinutes) * time.Minute
}

func (c SchedulerConfig) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalSeconds) * time.Second
}

// AnalyticsConfig holds report settings
type AnalyticsConfig struct {
	RecentEventsLimit int `yaml:"recent_events_limit"`
}

// LoggingConfig holds logger settings
type LoggingConfig struct {
	Level     string `yaml:"level"`
	RedactPII *bool  `yaml:"redact_pii"`
}

// Redact reports whether PII redaction is on. Defaults to true.
func (c LoggingConfig) Redact() bool {
	return c.RedactPII == nil || *c.RedactPII
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	return &cfg, cfg.Validate()
}

// Default returns a configuration with only defaults applied.
func Default() *Config {
	var cfg Config
	applyDefaults(&cfg)
	return &cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.TrackingPort == 0 {
		cfg.Server.TrackingPort = 8081
	}
	if cfg.Server.ReadTimeoutSeconds == 0 {
		cfg.Server.ReadTimeoutSeconds = 15
	}
	if cfg.Server.WriteTimeoutSeconds == 0 {
		cfg.Server.WriteTimeoutSeconds = 30
	}
	if len(cfg.Server.AllowedOrigins) == 0 {
		cfg.Server.AllowedOrigins = []string{"*"}
	}
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "postgres"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetimeMin == 0 {
		cfg.Database.ConnMaxLifetimeMin = 30
	}
	if cfg.Delivery.Workers == 0 {
		cfg.Delivery.Workers = 8
	}
	if cfg.Delivery.RatePerSecond == 0 {
		cfg.Delivery.RatePerSecond = 50
	}
	if cfg.Delivery.Burst == 0 {
		cfg.Delivery.Burst = 10
	}
	if cfg.Delivery.CallTimeoutSeconds == 0 {
		cfg.Delivery.CallTimeoutSeconds = 10
	}
	if cfg.Delivery.MaxAttempts == 0 {
		cfg.Delivery.MaxAttempts = 4
	}
	if cfg.Delivery.BaseBackoffMS == 0 {
		cfg.Delivery.BaseBackoffMS = 500
	}
	if cfg.Delivery.MaxBackoffMS == 0 {
		cfg.Delivery.MaxBackoffMS = 30000
	}
	if cfg.Delivery.FailureThreshold == 0 {
		cfg.Delivery.FailureThreshold = 0.5
	}
	if cfg.Transport.Kind == "" {
		cfg.Transport.Kind = "log"
	}
	if cfg.Transport.SES.Region == "" {
		cfg.Transport.SES.Region = "us-west-2"
	}
	if cfg.BodyStore.Kind == "" {
		cfg.BodyStore.Kind = "inline"
	}
	if cfg.BodyStore.Region == "" {
		cfg.BodyStore.Region = cfg.Transport.SES.Region
	}
	if cfg.Tracking.BaseURL == "" {
		cfg.Tracking.BaseURL = fmt.Sprintf("http://localhost:%d", cfg.Server.TrackingPort)
	}
	if cfg.Tracking.SQSRegion == "" {
		cfg.Tracking.SQSRegion = cfg.Transport.SES.Region
	}
	if cfg.Scheduler.PollIntervalSeconds == 0 {
		cfg.Scheduler.PollIntervalSeconds = 30
	}
	if cfg.Scheduler.StuckAfterMinutes == 0 {
		cfg.Scheduler.StuckAfterMinutes = 60
	}
	if cfg.Scheduler.SweepIntervalSeconds == 0 {
		cfg.Scheduler.SweepIntervalSeconds = 300
	}
	if cfg.Analytics.RecentEventsLimit == 0 {
		cfg.Analytics.RecentEventsLimit = 50
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
}

// Validate rejects values that would make the engine misbehave.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres", "memory":
	default:
		return fmt.Errorf("config: unknown database driver %q", c.Database.Driver)
	}
	switch c.Transport.Kind {
	case "ses", "http", "log":
	default:
		return fmt.Errorf("config: unknown transport kind %q", c.Transport.Kind)
	}
	if c.Transport.Kind == "http" && c.Transport.HTTP.Endpoint == "" {
		return fmt.Errorf("config: transport.http.endpoint is required")
	}
	switch c.BodyStore.Kind {
	case "s3", "inline":
	default:
		return fmt.Errorf("config: unknown body_store kind %q", c.BodyStore.Kind)
	}
	if c.BodyStore.Kind == "s3" && c.BodyStore.Bucket == "" {
		return fmt.Errorf("config: body_store.bucket is required for s3")
	}
	if c.Delivery.FailureThreshold < 0 || c.Delivery.FailureThreshold > 1 {
		return fmt.Errorf("config: delivery.failure_threshold must be within [0,1]")
	}
	if c.Delivery.Workers < 1 {
		return fmt.Errorf("config: delivery.workers must be positive")
	}
	if c.Delivery.DistributedRateLimit && !c.Redis.Enabled() {
		return fmt.Errorf("config: delivery.distributed_rate_limit requires redis.url")
	}
	return nil
}

// LoadFromEnv loads configuration with environment variable overrides.
// It automatically loads a .env file (if present) before reading env vars,
// so secrets can live in .env locally and in real env vars on ECS.
func LoadFromEnv(path string) (*Config, error) {
	// Load .env file if it exists (no error if missing)
	_ = godotenv.Load()

	var cfg *Config
	if path != "" {
		if _, statErr := os.Stat(path); statErr == nil {
			loaded, err := Load(path)
			if err != nil {
				return nil, err
			}
			cfg = loaded
		}
	}
	if cfg == nil {
		cfg = Default()
	}

	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("DATABASE_REPLICA_URL"); v != "" {
		cfg.Database.ReplicaDSN = v
	}
	if v := os.Getenv("DATABASE_DRIVER"); v != "" {
		cfg.Database.Driver = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Redis.URL = v
	}
	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("TRANSPORT_KIND"); v != "" {
		cfg.Transport.Kind = v
	}
	if v := os.Getenv("AWS_SES_ACCESS_KEY"); v != "" {
		cfg.Transport.SES.AccessKey = v
	}
	if v := os.Getenv("AWS_SES_SECRET_KEY"); v != "" {
		cfg.Transport.SES.SecretKey = v
	}
	if v := os.Getenv("AWS_SES_REGION"); v != "" {
		cfg.Transport.SES.Region = v
	}
	if v := os.Getenv("SES_CONFIGURATION_SET"); v != "" {
		cfg.Transport.SES.ConfigurationSet = v
	}
	if v := os.Getenv("SEND_API_KEY"); v != "" {
		cfg.Transport.HTTP.APIKey = v
	}
	if v := os.Getenv("BODY_STORE_BUCKET"); v != "" {
		cfg.BodyStore.Bucket = v
	}
	if v := os.Getenv("TRACKING_SECRET"); v != "" {
		cfg.Tracking.Secret = v
	}
	if v := os.Getenv("TRACKING_BASE_URL"); v != "" {
		cfg.Tracking.BaseURL = v
	}
	if v := os.Getenv("TRACKING_SQS_QUEUE_URL"); v != "" {
		cfg.Tracking.SQSQueueURL = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	return cfg, cfg.Validate()
}
