package config

// Centralized default values for configuration

const (
	DefaultBaseDir          = ".weave"
	DefaultConfigFile       = "config.yml"
	DefaultDataDir          = "data"
	DefaultDBFile           = "weave.db"
	DefaultLogLevel         = "info"
	DefaultCacheMaxEntries  = 256
	DefaultVerifyTTLSeconds = 600
	DefaultMetricsNamespace = "weave"
	DefaultStrictLeafCheck  = false

	// EnvPrefix prefixes environment overrides, e.g. WEAVE_LOG_LEVEL.
	EnvPrefix = "WEAVE"
)
