// Package config loads btocore settings from defaults, an optional YAML file,
// a .env file and BTOCORE_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"btocore/internal/blob"
	"btocore/internal/core"
	"btocore/pkg/domain"
)

// EnvPrefix prefixes every environment override, e.g. BTOCORE_STORAGE_DRIVER.
const EnvPrefix = "BTOCORE"

// Config is the root configuration.
type Config struct {
	Storage StorageConfig `mapstructure:"storage"`
	Blob    BlobConfig    `mapstructure:"blob"`
	Log     LogConfig     `mapstructure:"log"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Policy  PolicyConfig  `mapstructure:"policy"`
}

// StorageConfig selects the entity store backend.
type StorageConfig struct {
	Driver        string `mapstructure:"driver"`
	SQLitePath    string `mapstructure:"sqlite_path"`
	PostgresDSN   string `mapstructure:"postgres_dsn"`
	RecordsPrefix string `mapstructure:"records_prefix"`
}

// BlobConfig configures the object store behind the records driver.
type BlobConfig struct {
	Driver string   `mapstructure:"driver"`
	FSRoot string   `mapstructure:"fs_root"`
	S3     S3Config `mapstructure:"s3"`
}

// S3Config holds S3 or MinIO connection settings. Empty keys fall back to the
// default AWS credential chain.
type S3Config struct {
	Bucket          string `mapstructure:"bucket"`
	Region          string `mapstructure:"region"`
	Endpoint        string `mapstructure:"endpoint"`
	PathStyle       bool   `mapstructure:"path_style"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
}

// LogConfig selects the zap encoder and level.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// MetricsConfig controls the Prometheus recorder.
type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Namespace string `mapstructure:"namespace"`
}

// PolicyConfig carries the eligibility thresholds.
type PolicyConfig struct {
	SingleMinAge    int `mapstructure:"single_min_age"`
	MarriedMinAge   int `mapstructure:"married_min_age"`
	MaxOfficerSlots int `mapstructure:"max_officer_slots"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("storage.driver", string(core.StorageSQLite))
	v.SetDefault("storage.sqlite_path", "./btocore.db")
	v.SetDefault("storage.postgres_dsn", "")
	v.SetDefault("storage.records_prefix", "")

	v.SetDefault("blob.driver", string(blob.DriverFilesystem))
	v.SetDefault("blob.fs_root", blob.DefaultFSRoot)
	v.SetDefault("blob.s3.bucket", "")
	v.SetDefault("blob.s3.region", "us-east-1")
	v.SetDefault("blob.s3.endpoint", "")
	v.SetDefault("blob.s3.path_style", false)
	v.SetDefault("blob.s3.access_key_id", "")
	v.SetDefault("blob.s3.secret_access_key", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.namespace", "btocore")

	def := core.DefaultPolicy()
	v.SetDefault("policy.single_min_age", def.SingleMinAge)
	v.SetDefault("policy.married_min_age", def.MarriedMinAge)
	v.SetDefault("policy.max_officer_slots", def.MaxOfficerSlots)
}

// Load reads configuration with precedence env > file > defaults. An empty
// path looks for btocore.yaml in ./config and the working directory; a
// missing file there is not an error. A .env file in the working directory
// is loaded first and never overrides variables already set.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("btocore")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the settings the selected backends depend on.
func (c *Config) Validate() error {
	var errs []error
	switch core.StorageDriver(c.Storage.Driver) {
	case core.StorageMemory:
	case core.StorageSQLite:
		if c.Storage.SQLitePath == "" {
			errs = append(errs, errors.New("storage.sqlite_path is required for the sqlite driver"))
		}
	case core.StoragePostgres:
		if c.Storage.PostgresDSN == "" {
			errs = append(errs, errors.New("storage.postgres_dsn is required for the postgres driver"))
		}
	case core.StorageRecords:
		switch blob.Driver(c.Blob.Driver) {
		case blob.DriverFilesystem, blob.DriverMemory:
		case blob.DriverS3:
			if c.Blob.S3.Bucket == "" {
				errs = append(errs, errors.New("blob.s3.bucket is required for the s3 blob driver"))
			}
		default:
			errs = append(errs, fmt.Errorf("blob.driver %q is not one of fs, s3, memory", c.Blob.Driver))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.driver %q is not one of memory, sqlite, postgres, records", c.Storage.Driver))
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("log.format %q is not json or console", c.Log.Format))
	}
	if c.Metrics.Enabled && c.Metrics.Namespace == "" {
		errs = append(errs, errors.New("metrics.namespace is required when metrics are enabled"))
	}
	if c.Policy.SingleMinAge <= 0 || c.Policy.MarriedMinAge <= 0 {
		errs = append(errs, errors.New("policy ages must be positive"))
	}
	if c.Policy.MaxOfficerSlots < 1 || c.Policy.MaxOfficerSlots > domain.MaxOfficerSlots {
		errs = append(errs, fmt.Errorf("policy.max_officer_slots must be between 1 and %d", domain.MaxOfficerSlots))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// StorageOptions maps the storage and blob sections onto core.StorageOptions.
func (c *Config) StorageOptions() core.StorageOptions {
	return core.StorageOptions{
		Driver:        core.StorageDriver(c.Storage.Driver),
		SQLitePath:    c.Storage.SQLitePath,
		PostgresDSN:   c.Storage.PostgresDSN,
		RecordsPrefix: c.Storage.RecordsPrefix,
		Blob:          c.BlobOptions(),
	}
}

// BlobOptions maps the blob section onto blob.Config.
func (c *Config) BlobOptions() blob.Config {
	return blob.Config{
		Driver: blob.Driver(c.Blob.Driver),
		FSRoot: c.Blob.FSRoot,
		S3: blob.S3Config{
			Region:          c.Blob.S3.Region,
			Bucket:          c.Blob.S3.Bucket,
			Endpoint:        c.Blob.S3.Endpoint,
			AccessKeyID:     c.Blob.S3.AccessKeyID,
			SecretAccessKey: c.Blob.S3.SecretAccessKey,
			PathStyle:       c.Blob.S3.PathStyle,
		},
	}
}

// CorePolicy returns the configured eligibility thresholds.
func (c *Config) CorePolicy() core.Policy {
	return core.Policy{
		SingleMinAge:    c.Policy.SingleMinAge,
		MarriedMinAge:   c.Policy.MarriedMinAge,
		MaxOfficerSlots: c.Policy.MaxOfficerSlots,
	}
}
