// File: internal/config/config.go
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config holds the entire application configuration.
type Config struct {
	Logger LoggerConfig `mapstructure:"logger" yaml:"logger"`
	Engine EngineConfig `mapstructure:"engine" yaml:"engine"`
	Cache  CacheConfig  `mapstructure:"cache" yaml:"cache"`
	Taint  TaintConfig  `mapstructure:"taint" yaml:"taint"`
	Store  StoreConfig  `mapstructure:"store" yaml:"store"`
	// Scan gets its marching orders from CLI flags, not the config file.
	Scan ScanConfig `mapstructure:"-" yaml:"-"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"`
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int    `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int    `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool   `mapstructure:"compress" yaml:"compress"`
}

// EngineConfig bounds the analysis pipeline.
type EngineConfig struct {
	// WorkerConcurrency caps how many files are analyzed in parallel.
	WorkerConcurrency int `mapstructure:"worker_concurrency" yaml:"worker_concurrency"`
	// BatchSize caps how many files one analyzeChanges call will process.
	BatchSize int `mapstructure:"batch_size" yaml:"batch_size"`
	// MaxRecursionDepth guards AST and graph traversals against pathological
	// nesting. Exceeding it truncates deeper structure, it never fails the file.
	MaxRecursionDepth int `mapstructure:"max_recursion_depth" yaml:"max_recursion_depth"`
}

// CacheConfig sizes the two LRU caches.
type CacheConfig struct {
	ASTCapacity   int `mapstructure:"ast_capacity" yaml:"ast_capacity"`
	QueryCapacity int `mapstructure:"query_capacity" yaml:"query_capacity"`
}

// TaintConfig carries the source/sink/sanitizer keyword tables. These are
// hand-curated, language-agnostic configuration data so deployments can tune
// them without a rebuild.
type TaintConfig struct {
	SourceKeywords    []string            `mapstructure:"source_keywords" yaml:"source_keywords"`
	SinkKeywords      map[string][]string `mapstructure:"sink_keywords" yaml:"sink_keywords"`
	SanitizerKeywords []string            `mapstructure:"sanitizer_keywords" yaml:"sanitizer_keywords"`
	// ValidationKeywords feed the missing-security-check detector: a condition
	// containing none of these is reported.
	ValidationKeywords []string `mapstructure:"validation_keywords" yaml:"validation_keywords"`
}

// StoreConfig configures the optional findings store.
type StoreConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	DSN     string `mapstructure:"dsn" yaml:"dsn"`
}

// ScanConfig is populated from CLI flags for a single scan invocation.
type ScanConfig struct {
	Path         string
	ReportFormat string
	OutputFile   string
}

// Load reads configuration from the given file (or ./config.yaml), merges
// environment overrides under the LANCET_ prefix, and unmarshals into Config.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("LANCET")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	SetDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found; proceed with defaults/env vars.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

// Default returns a Config built purely from defaults, bypassing files and
// the environment. Used by tests and as a fallback when loading fails.
func Default() *Config {
	v := viper.New()
	SetDefaults(v)
	var cfg Config
	// Unmarshal of pure defaults cannot fail.
	_ = v.Unmarshal(&cfg)
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// Logger defaults
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "lancet")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// Engine defaults
	v.SetDefault("engine.worker_concurrency", 8)
	v.SetDefault("engine.batch_size", 256)
	v.SetDefault("engine.max_recursion_depth", 200)

	// Cache defaults
	v.SetDefault("cache.ast_capacity", 128)
	v.SetDefault("cache.query_capacity", 1024)

	// Taint defaults. Keyword tables are matched case-insensitively against
	// statement text by the data-flow analyzer.
	v.SetDefault("taint.source_keywords", []string{
		"request.", "req.query", "req.body", "req.params", "req.headers",
		"input(", "raw_input(", "argv", "os.environ", "process.env",
		"getenv", "readline", "stdin", "form[", "params[", "cookies",
		"file.read", "readfile", "fgets", "scanf", "user_input",
	})
	v.SetDefault("taint.sink_keywords", map[string][]string{
		"sql": {
			"execute(", "executemany(", "query(", "db.query", "cursor.execute",
			"raw(", "exec_sql", "prepare(",
		},
		"html": {
			"innerhtml", "outerhtml", "document.write", "insertadjacenthtml",
			"dangerouslysetinnerhtml", "render_template_string",
		},
		"command": {
			"os.system", "subprocess.", "popen", "exec(", "eval(",
			"child_process", "execsync", "spawn(", "shell_exec",
		},
		"path": {
			"open(", "readfile", "writefile", "os.path.join", "sendfile",
			"createreadstream", "fs.read", "file_get_contents",
		},
		"ldap": {
			"ldap.search", "search_s(", "ldapsearch",
		},
		"url": {
			"urlopen", "requests.get", "requests.post", "fetch(", "http.get",
			"axios.",
		},
	})
	v.SetDefault("taint.sanitizer_keywords", []string{
		"escape", "sanitize", "quote", "encodeuri", "htmlspecialchars",
		"parameterize", "prepared", "bleach.clean", "validator",
	})
	v.SetDefault("taint.validation_keywords", []string{
		"valid", "sanitize", "escape", "check", "verify", "whitelist",
		"allowlist", "isinstance", "typeof", "match(",
	})

	// Store defaults
	v.SetDefault("store.enabled", false)
	v.SetDefault("store.dsn", "")
}
