package config

import (
	"fmt"
	"slices"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store       StoreConfig       `yaml:"store" mapstructure:"store"`
	Collections CollectionsConfig `yaml:"collections" mapstructure:"collections"`
	Pipeline    PipelineConfig    `yaml:"pipeline" mapstructure:"pipeline"`
	Retry       RetryConfig       `yaml:"retry" mapstructure:"retry"`
	Server      ServerConfig      `yaml:"server" mapstructure:"server"`
	Log         LogConfig         `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	Database    string `yaml:"database" mapstructure:"database"` // mongo only
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
}

// CollectionsConfig names the input and output collections (tables for the
// SQL backends).
type CollectionsConfig struct {
	CoresRaw  string `yaml:"cores_raw" mapstructure:"cores_raw"`
	MapServer string `yaml:"mapserver" mapstructure:"mapserver"`
	Scraped   string `yaml:"scraped" mapstructure:"scraped"`
	GMU       string `yaml:"gmu" mapstructure:"gmu"`
	Output    string `yaml:"output" mapstructure:"output"`
}

// PipelineConfig configures the enrichment job.
type PipelineConfig struct {
	Concurrency     int          `yaml:"concurrency" mapstructure:"concurrency"`
	TimeoutSecs     int          `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	ReportURLPrefix string       `yaml:"report_url_prefix" mapstructure:"report_url_prefix"`
	MatchPolicy     string       `yaml:"match_policy" mapstructure:"match_policy"`
	MissingURL      string       `yaml:"missing_url" mapstructure:"missing_url"`
	Filter          []FilterRule `yaml:"filter" mapstructure:"filter"`
	InsertBatchSize int          `yaml:"insert_batch_size" mapstructure:"insert_batch_size"`
}

// FilterRule keeps only records whose top-level Field equals Value. Rules are
// a list rather than a map so that field names keep their case and spaces.
type FilterRule struct {
	Field string `yaml:"field" mapstructure:"field"`
	Value any    `yaml:"value" mapstructure:"value"`
}

// RetryConfig configures retries of transient store errors.
type RetryConfig struct {
	MaxAttempts      int `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
}

// ServerConfig configures the read API.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("CRC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "mongo")
	v.SetDefault("store.database_url", "mongodb://localhost:27017")
	v.SetDefault("store.database", "crc")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("collections.cores_raw", "cores_raw")
	v.SetDefault("collections.mapserver", "cores_from_mapserver")
	v.SetDefault("collections.scraped", "scraped_web_pages")
	v.SetDefault("collections.gmu", "gmu_context")
	v.SetDefault("collections.output", "cores")
	v.SetDefault("pipeline.concurrency", 8)
	v.SetDefault("pipeline.timeout_secs", 1800)
	v.SetDefault("pipeline.report_url_prefix", "https://my.usgs.gov/crcwc/core/report/")
	v.SetDefault("pipeline.match_policy", "warn")
	v.SetDefault("pipeline.missing_url", "skip")
	v.SetDefault("pipeline.insert_batch_size", 1000)
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_backoff_ms", 500)
	v.SetDefault("retry.max_backoff_ms", 10000)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

var (
	drivers       = []string{"mongo", "postgres", "sqlite"}
	matchPolicies = []string{"first", "warn", "strict"}
	missingURLs   = []string{"skip", "legacy"}
)

// Validate checks the settings a command mode depends on. Modes: run, plan,
// export, import, runs, serve, migrate.
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "plan":
		// plan never touches the store
	case "run", "export", "import", "runs", "serve", "migrate":
		errs = append(errs, c.validateStore()...)
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	switch mode {
	case "run", "plan":
		errs = append(errs, c.validatePipeline()...)
	case "serve":
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
	}

	if len(errs) > 0 {
		return eris.New("config: " + strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) validateStore() []string {
	var errs []string
	if !slices.Contains(drivers, c.Store.Driver) {
		errs = append(errs, fmt.Sprintf("store.driver must be one of %s", strings.Join(drivers, ", ")))
	}
	if c.Store.DatabaseURL == "" {
		errs = append(errs, "store.database_url is required")
	}
	if c.Store.Driver == "mongo" && c.Store.Database == "" {
		errs = append(errs, "store.database is required for mongo")
	}
	return errs
}

func (c *Config) validatePipeline() []string {
	var errs []string
	if c.Pipeline.Concurrency < 1 || c.Pipeline.Concurrency > 256 {
		errs = append(errs, "pipeline.concurrency must be between 1 and 256")
	}
	if c.Pipeline.TimeoutSecs < 0 {
		errs = append(errs, "pipeline.timeout_secs must be >= 0")
	}
	if !slices.Contains(matchPolicies, c.Pipeline.MatchPolicy) {
		errs = append(errs, fmt.Sprintf("pipeline.match_policy must be one of %s", strings.Join(matchPolicies, ", ")))
	}
	if !slices.Contains(missingURLs, c.Pipeline.MissingURL) {
		errs = append(errs, fmt.Sprintf("pipeline.missing_url must be one of %s", strings.Join(missingURLs, ", ")))
	}
	for i, r := range c.Pipeline.Filter {
		if r.Field == "" {
			errs = append(errs, fmt.Sprintf("pipeline.filter[%d].field is required", i))
		}
	}
	for name, v := range map[string]string{
		"collections.cores_raw": c.Collections.CoresRaw,
		"collections.mapserver": c.Collections.MapServer,
		"collections.scraped":   c.Collections.Scraped,
		"collections.gmu":       c.Collections.GMU,
		"collections.output":    c.Collections.Output,
	} {
		if v == "" {
			errs = append(errs, name+" is required")
		}
	}
	slices.Sort(errs)
	return errs
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
