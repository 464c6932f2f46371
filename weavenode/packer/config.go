package packer

import "time"

// Config contains settings for the packer service
type Config struct {
	// CacheMaxEntries bounds the content key -> data root cache.
	CacheMaxEntries int64 `mapstructure:"max_entries" json:"max_entries,omitempty"`
	// VerifyTTL is how long a successful chunk verification is remembered.
	VerifyTTL time.Duration `mapstructure:"-" json:"-"`
	// StrictLeafCheck selects merkle.LeafCheckStrict for every validation.
	StrictLeafCheck bool `mapstructure:"strict_leaf_check" json:"strict_leaf_check,omitempty"`
	// MetricsNamespace prefixes every metric name.
	MetricsNamespace string `mapstructure:"namespace" json:"namespace,omitempty"`
	// TaskTimeout releases the in-flight guard of a stuck merklize.
	TaskTimeout time.Duration `mapstructure:"-" json:"-"`
}

const (
	defaultCacheMaxEntries = 256
	defaultVerifyTTL       = 10 * time.Minute
	defaultTaskTimeout     = 30 * time.Minute
)

func (c *Config) withDefaults() Config {
	out := Config{}
	if c != nil {
		out = *c
	}
	if out.CacheMaxEntries <= 0 {
		out.CacheMaxEntries = defaultCacheMaxEntries
	}
	if out.VerifyTTL <= 0 {
		out.VerifyTTL = defaultVerifyTTL
	}
	if out.TaskTimeout <= 0 {
		out.TaskTimeout = defaultTaskTimeout
	}
	return out
}
