package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	StoreBackendMemory   = "memory"
	StoreBackendPostgres = "postgres"
)

// Config is centralized process configuration.
// Keep infra values here and pass typed config into builders.
type Config struct {
	ServiceName  string `yaml:"service_name" mapstructure:"service_name"`
	HTTPPort     string `yaml:"http_port" mapstructure:"http_port"`
	PostgresDSN  string `yaml:"postgres_dsn" mapstructure:"postgres_dsn"`
	StoreBackend string `yaml:"store_backend" mapstructure:"store_backend"`
	AutoMigrate  bool   `yaml:"auto_migrate" mapstructure:"auto_migrate"`
	NATSURL      string `yaml:"nats_url" mapstructure:"nats_url"`

	LeaseTTL             time.Duration `yaml:"lease_ttl" mapstructure:"lease_ttl"`
	LeaseRenewInterval   time.Duration `yaml:"lease_renew_interval" mapstructure:"lease_renew_interval"`
	LeaseReclaimInterval time.Duration `yaml:"lease_reclaim_interval" mapstructure:"lease_reclaim_interval"`
	RequiredReviewers    int           `yaml:"required_reviewers" mapstructure:"required_reviewers"`
	FuzzyMatchThreshold  float64       `yaml:"fuzzy_match_threshold" mapstructure:"fuzzy_match_threshold"`
	IdempotencyTTL       time.Duration `yaml:"idempotency_ttl" mapstructure:"idempotency_ttl"`

	VocabularyFile string `yaml:"vocabulary_file" mapstructure:"vocabulary_file"`
	ExportDir      string `yaml:"export_dir" mapstructure:"export_dir"`

	OutboxBatchSize    int           `yaml:"outbox_batch_size" mapstructure:"outbox_batch_size"`
	WorkerPollInterval time.Duration `yaml:"worker_poll_interval" mapstructure:"worker_poll_interval"`

	LogLevel  string `yaml:"log_level" mapstructure:"log_level"`
	LogFormat string `yaml:"log_format" mapstructure:"log_format"`

	EnableLeaseReclaimer bool `yaml:"enable_lease_reclaimer" mapstructure:"enable_lease_reclaimer"`
	EnableOutboxRelay    bool `yaml:"enable_outbox_relay" mapstructure:"enable_outbox_relay"`

	// ConfigFile is the YAML file the values were read from, if any.
	ConfigFile string `yaml:"-" mapstructure:"-"`
}

// Load reads defaults, then the optional YAML file named by CONFIG_FILE, then
// environment variables. Later sources win.
func Load() (Config, error) {
	return LoadFile(os.Getenv("CONFIG_FILE"))
}

// LoadFile is Load with an explicit config file path. An empty path skips the
// file layer.
func LoadFile(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if path = strings.TrimSpace(path); path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	cfg := Config{
		ServiceName:          strings.TrimSpace(v.GetString("service_name")),
		HTTPPort:             strings.TrimSpace(v.GetString("http_port")),
		PostgresDSN:          strings.TrimSpace(v.GetString("postgres_dsn")),
		StoreBackend:         strings.ToLower(strings.TrimSpace(v.GetString("store_backend"))),
		AutoMigrate:          v.GetBool("auto_migrate"),
		NATSURL:              strings.TrimSpace(v.GetString("nats_url")),
		LeaseTTL:             v.GetDuration("lease_ttl"),
		LeaseRenewInterval:   v.GetDuration("lease_renew_interval"),
		LeaseReclaimInterval: v.GetDuration("lease_reclaim_interval"),
		RequiredReviewers:    v.GetInt("required_reviewers"),
		FuzzyMatchThreshold:  v.GetFloat64("fuzzy_match_threshold"),
		IdempotencyTTL:       v.GetDuration("idempotency_ttl"),
		VocabularyFile:       strings.TrimSpace(v.GetString("vocabulary_file")),
		ExportDir:            strings.TrimSpace(v.GetString("export_dir")),
		OutboxBatchSize:      v.GetInt("outbox_batch_size"),
		WorkerPollInterval:   v.GetDuration("worker_poll_interval"),
		LogLevel:             strings.ToLower(strings.TrimSpace(v.GetString("log_level"))),
		LogFormat:            strings.ToLower(strings.TrimSpace(v.GetString("log_format"))),
		EnableLeaseReclaimer: v.GetBool("enable_lease_reclaimer"),
		EnableOutboxRelay:    v.GetBool("enable_outbox_relay"),
		ConfigFile:           v.ConfigFileUsed(),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("service_name", "review-consensus")
	v.SetDefault("http_port", "8080")
	v.SetDefault("postgres_dsn", "")
	v.SetDefault("store_backend", StoreBackendMemory)
	v.SetDefault("auto_migrate", true)
	v.SetDefault("nats_url", "")
	v.SetDefault("lease_ttl", "60s")
	v.SetDefault("lease_renew_interval", "25s")
	v.SetDefault("lease_reclaim_interval", "15s")
	v.SetDefault("required_reviewers", 2)
	v.SetDefault("fuzzy_match_threshold", 0.80)
	v.SetDefault("idempotency_ttl", "24h")
	v.SetDefault("vocabulary_file", "")
	v.SetDefault("export_dir", "exports")
	v.SetDefault("outbox_batch_size", 100)
	v.SetDefault("worker_poll_interval", "2s")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")
	v.SetDefault("enable_lease_reclaimer", true)
	v.SetDefault("enable_outbox_relay", true)
}

// Validate rejects settings that would break lease or consensus guarantees.
func (c Config) Validate() error {
	var errs []error
	switch c.StoreBackend {
	case StoreBackendMemory:
	case StoreBackendPostgres:
		if c.PostgresDSN == "" {
			errs = append(errs, errors.New("POSTGRES_DSN is required when STORE_BACKEND=postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("STORE_BACKEND must be memory or postgres, got %q", c.StoreBackend))
	}
	if c.HTTPPort == "" {
		errs = append(errs, errors.New("HTTP_PORT is required"))
	}
	if c.LeaseTTL <= 0 || c.LeaseRenewInterval <= 0 {
		errs = append(errs, errors.New("LEASE_TTL and LEASE_RENEW_INTERVAL must be positive"))
	} else if c.LeaseTTL <= 2*c.LeaseRenewInterval {
		errs = append(errs, fmt.Errorf("LEASE_TTL (%s) must exceed twice LEASE_RENEW_INTERVAL (%s)", c.LeaseTTL, c.LeaseRenewInterval))
	}
	if c.LeaseReclaimInterval <= 0 {
		errs = append(errs, errors.New("LEASE_RECLAIM_INTERVAL must be positive"))
	}
	if c.RequiredReviewers < 1 {
		errs = append(errs, errors.New("REQUIRED_REVIEWERS must be at least 1"))
	}
	if c.FuzzyMatchThreshold <= 0 || c.FuzzyMatchThreshold > 1 {
		errs = append(errs, errors.New("FUZZY_MATCH_THRESHOLD must be in (0, 1]"))
	}
	if c.IdempotencyTTL <= 0 {
		errs = append(errs, errors.New("IDEMPOTENCY_TTL must be positive"))
	}
	if c.OutboxBatchSize <= 0 {
		errs = append(errs, errors.New("OUTBOX_BATCH_SIZE must be positive"))
	}
	if c.WorkerPollInterval <= 0 {
		errs = append(errs, errors.New("WORKER_POLL_INTERVAL must be positive"))
	}
	switch c.LogFormat {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("LOG_FORMAT must be json or text, got %q", c.LogFormat))
	}
	return errors.Join(errs...)
}

// Redacted returns a copy safe to print.
func (c Config) Redacted() Config {
	if c.PostgresDSN != "" {
		c.PostgresDSN = "<redacted>"
	}
	return c
}
