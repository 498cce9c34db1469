// Package config loads the service configuration from environment
// variables.
//
// All knobs are flat environment variables rather than nested config files:
// the coordinator and the worker are deployed as containers and configured
// through the environment exclusively. Connection settings are required and
// fail startup when missing; only the tuning knobs have defaults.
package config

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// QueueConfig holds the RabbitMQ connection settings.
type QueueConfig struct {
	Host     string `mapstructure:"queue_host"`
	Port     int    `mapstructure:"queue_port"`
	User     string `mapstructure:"queue_user"`
	Password string `mapstructure:"queue_pass"`
	Name     string `mapstructure:"queue_name"`
}

// URL builds the AMQP connection URL.
func (q QueueConfig) URL() string {
	return fmt.Sprintf("amqp://%s:%s@%s:%d/", q.User, q.Password, q.Host, q.Port)
}

// StoreConfig holds the S3-compatible object store settings.
type StoreConfig struct {
	Endpoint        string `mapstructure:"store_endpoint"`
	AccessKey       string `mapstructure:"store_access_key"`
	SecretKey       string `mapstructure:"store_secret_key"`
	UploadsBucket   string `mapstructure:"store_uploads_bucket"`
	WarehouseBucket string `mapstructure:"store_warehouse_bucket"`
}

// CatalogConfig holds the metadata database settings. URL accepts a
// jdbc:-prefixed value for compatibility with existing deployment manifests;
// the prefix is stripped on load.
type CatalogConfig struct {
	URL      string `mapstructure:"catalog_jdbc_url"`
	User     string `mapstructure:"catalog_user"`
	Password string `mapstructure:"catalog_pass"`
}

// DSN returns a connection string usable by the database driver.
func (c CatalogConfig) DSN() string {
	u := strings.TrimPrefix(c.URL, "jdbc:")
	return u
}

// JobStoreConfig holds the Redis connection settings.
type JobStoreConfig struct {
	Host string `mapstructure:"jobstore_host"`
	Port int    `mapstructure:"jobstore_port"`
}

// Addr returns the host:port address for the Redis client.
func (j JobStoreConfig) Addr() string {
	return fmt.Sprintf("%s:%d", j.Host, j.Port)
}

// Config is the complete configuration shared by the coordinator and the
// worker. Each process reads only the sections it needs.
type Config struct {
	Queue    QueueConfig    `mapstructure:",squash"`
	Store    StoreConfig    `mapstructure:",squash"`
	Catalog  CatalogConfig  `mapstructure:",squash"`
	JobStore JobStoreConfig `mapstructure:",squash"`

	WarehousePath string `mapstructure:"warehouse_path"`

	APIPort        int   `mapstructure:"api_port"`
	FileMaxSize    int64 `mapstructure:"file_max_size"`
	JobTTLSeconds  int   `mapstructure:"job_ttl_seconds"`
	PreviewMaxRows int   `mapstructure:"preview_max_rows"`

	QueryTimeoutSeconds int `mapstructure:"query_timeout_seconds"`
}

// JobTTL returns the job record expiry as a duration.
func (c *Config) JobTTL() time.Duration {
	return time.Duration(c.JobTTLSeconds) * time.Second
}

// QueryTimeout returns the per-query execution deadline.
func (c *Config) QueryTimeout() time.Duration {
	return time.Duration(c.QueryTimeoutSeconds) * time.Second
}

// Only the tuning knobs have defaults; every connection setting must come
// from the environment so a misdeployed container fails at startup instead
// of talking to localhost.
func setDefaults(v *viper.Viper) {
	v.SetDefault("api_port", 8080)
	v.SetDefault("file_max_size", 104857600)
	v.SetDefault("job_ttl_seconds", 3600)
	v.SetDefault("preview_max_rows", 10000)
	v.SetDefault("query_timeout_seconds", 30)
}

// Load reads the configuration from the environment.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	// AutomaticEnv alone does not surface env-only keys through Unmarshal,
	// so bind each key explicitly.
	for _, key := range []string{
		"queue_host", "queue_port", "queue_user", "queue_pass", "queue_name",
		"store_endpoint", "store_access_key", "store_secret_key",
		"store_uploads_bucket", "store_warehouse_bucket",
		"catalog_jdbc_url", "catalog_user", "catalog_pass",
		"jobstore_host", "jobstore_port",
		"warehouse_path",
		"api_port", "file_max_size", "job_ttl_seconds", "preview_max_rows",
		"query_timeout_seconds",
	} {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("binding %s: %w", key, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	required := map[string]bool{
		"QUEUE_HOST":             c.Queue.Host != "",
		"QUEUE_PORT":             c.Queue.Port > 0,
		"QUEUE_USER":             c.Queue.User != "",
		"QUEUE_PASS":             c.Queue.Password != "",
		"QUEUE_NAME":             c.Queue.Name != "",
		"STORE_ENDPOINT":         c.Store.Endpoint != "",
		"STORE_ACCESS_KEY":       c.Store.AccessKey != "",
		"STORE_SECRET_KEY":       c.Store.SecretKey != "",
		"STORE_UPLOADS_BUCKET":   c.Store.UploadsBucket != "",
		"STORE_WAREHOUSE_BUCKET": c.Store.WarehouseBucket != "",
		"CATALOG_JDBC_URL":       c.Catalog.URL != "",
		"CATALOG_USER":           c.Catalog.User != "",
		"CATALOG_PASS":           c.Catalog.Password != "",
		"JOBSTORE_HOST":          c.JobStore.Host != "",
		"JOBSTORE_PORT":          c.JobStore.Port > 0,
		"WAREHOUSE_PATH":         c.WarehousePath != "",
	}
	var missing []string
	for name, ok := range required {
		if !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}

	if c.APIPort <= 0 || c.APIPort > 65535 {
		return fmt.Errorf("api_port out of range: %d", c.APIPort)
	}
	if c.FileMaxSize <= 0 {
		return fmt.Errorf("file_max_size must be positive")
	}
	if c.JobTTLSeconds <= 0 {
		return fmt.Errorf("job_ttl_seconds must be positive")
	}
	if c.PreviewMaxRows < 0 {
		return fmt.Errorf("preview_max_rows must be non-negative")
	}
	return nil
}
