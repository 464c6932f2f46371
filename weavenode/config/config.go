package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/LumeraProtocol/weave/pkg/logtrace"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config represents the YAML configuration structure
type Config struct {
	DataDir string `yaml:"data_dir" mapstructure:"data_dir"`

	Log struct {
		Level string `yaml:"level" mapstructure:"level"`
	} `yaml:"log" mapstructure:"log"`

	Storage struct {
		DBPath string `yaml:"db_path" mapstructure:"db_path"`
	} `yaml:"storage" mapstructure:"storage"`

	Cache struct {
		MaxEntries       int64 `yaml:"max_entries" mapstructure:"max_entries"`
		VerifyTTLSeconds int   `yaml:"verify_ttl_seconds" mapstructure:"verify_ttl_seconds"`
	} `yaml:"cache" mapstructure:"cache"`

	Metrics struct {
		Namespace string `yaml:"namespace" mapstructure:"namespace"`
	} `yaml:"metrics" mapstructure:"metrics"`

	Validation struct {
		StrictLeafCheck bool `yaml:"strict_leaf_check" mapstructure:"strict_leaf_check"`
	} `yaml:"validation" mapstructure:"validation"`

	// baseDir is the directory holding the config file; relative paths
	// resolve against it.
	baseDir string
}

// envKeys lists every key that may be overridden from the environment.
var envKeys = []string{
	"data_dir",
	"log.level",
	"storage.db_path",
	"cache.max_entries",
	"cache.verify_ttl_seconds",
	"metrics.namespace",
	"validation.strict_leaf_check",
}

// DefaultConfig returns a configuration populated with defaults, rooted at
// baseDir.
func DefaultConfig(baseDir string) *Config {
	c := &Config{baseDir: baseDir}
	c.DataDir = DefaultDataDir
	c.Log.Level = DefaultLogLevel
	c.Storage.DBPath = filepath.Join(DefaultDataDir, DefaultDBFile)
	c.Cache.MaxEntries = DefaultCacheMaxEntries
	c.Cache.VerifyTTLSeconds = DefaultVerifyTTLSeconds
	c.Metrics.Namespace = DefaultMetricsNamespace
	c.Validation.StrictLeafCheck = DefaultStrictLeafCheck
	return c
}

// LoadConfig reads filename with viper, applies WEAVE_* environment
// overrides and fills in defaults for anything left unset.
func LoadConfig(filename string) (*Config, error) {
	ctx := context.Background()

	absPath, err := filepath.Abs(filename)
	if err != nil {
		return nil, fmt.Errorf("error getting absolute path for config file: %w", err)
	}

	logtrace.Info(ctx, "Loading configuration", logtrace.Fields{
		logtrace.FieldPath: absPath,
	})

	if _, err := os.Stat(absPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file %s does not exist", absPath)
	}

	v := viper.New()
	v.SetConfigFile(absPath)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for _, key := range envKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("bind env for %s: %w", key, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", absPath, err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	config.baseDir = filepath.Dir(absPath)

	config.applyDefaults(ctx)
	if err := config.validate(); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(config.DataDirPath(), 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	logtrace.Info(ctx, "Configuration loaded successfully", logtrace.Fields{})
	return &config, nil
}

func (c *Config) applyDefaults(ctx context.Context) {
	if c.DataDir == "" {
		c.DataDir = DefaultDataDir
		logtrace.Info(ctx, "Using default data directory", logtrace.Fields{
			"dir": c.DataDir,
		})
	}

	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
		logtrace.Info(ctx, "Using default log level", logtrace.Fields{
			"level": c.Log.Level,
		})
	}

	if c.Storage.DBPath == "" {
		c.Storage.DBPath = filepath.Join(c.DataDir, DefaultDBFile)
		logtrace.Info(ctx, "Using default database path", logtrace.Fields{
			logtrace.FieldPath: c.Storage.DBPath,
		})
	}

	if c.Cache.MaxEntries <= 0 {
		c.Cache.MaxEntries = DefaultCacheMaxEntries
		logtrace.Info(ctx, "Using default cache size", logtrace.Fields{
			"max_entries": c.Cache.MaxEntries,
		})
	}

	if c.Cache.VerifyTTLSeconds <= 0 {
		c.Cache.VerifyTTLSeconds = DefaultVerifyTTLSeconds
		logtrace.Info(ctx, "Using default verification cache TTL", logtrace.Fields{
			"ttl_seconds": c.Cache.VerifyTTLSeconds,
		})
	}

	if c.Metrics.Namespace == "" {
		c.Metrics.Namespace = DefaultMetricsNamespace
		logtrace.Info(ctx, "Using default metrics namespace", logtrace.Fields{
			"namespace": c.Metrics.Namespace,
		})
	}
}

func (c *Config) validate() error {
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("invalid log.level %q", c.Log.Level)
	}
	return nil
}

// SaveConfig writes c to filename as YAML, creating parent directories.
func SaveConfig(c *Config, filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(filename), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(filename, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// BaseDir returns the directory relative paths are resolved against.
func (c *Config) BaseDir() string { return c.baseDir }

// DataDirPath returns the absolute data directory.
func (c *Config) DataDirPath() string { return c.resolve(c.DataDir) }

// DBPath returns the absolute database path.
func (c *Config) DBPath() string { return c.resolve(c.Storage.DBPath) }

// VerifyTTL returns the verification cache TTL.
func (c *Config) VerifyTTL() time.Duration {
	return time.Duration(c.Cache.VerifyTTLSeconds) * time.Second
}

func (c *Config) resolve(p string) string {
	if filepath.IsAbs(p) || c.baseDir == "" {
		return p
	}
	return filepath.Join(c.baseDir, p)
}
