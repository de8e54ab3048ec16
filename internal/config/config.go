// Package config loads and validates the pipeline's configuration, adapted
// from pkg/config's viper-based loader to the upstream/transform/sink/cache
// shape the pipeline needs.
package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"reorgcdc/core"
	"reorgcdc/internal/sink"
	"reorgcdc/pkg/utils"
)

// Version is the semantic version of this configuration package.
const Version = "v0.1.0"

// UpstreamConfig configures the JSON-RPC view-provider client.
type UpstreamConfig struct {
	URL          string `mapstructure:"url" json:"url"`
	Username     string `mapstructure:"username" json:"username,omitempty"`
	Password     string `mapstructure:"password" json:"password,omitempty"`
	TimeoutSecs  uint64 `mapstructure:"timeout" json:"timeout"`
	MaxRetries   uint32 `mapstructure:"max_retries" json:"max_retries"`
	RetryDelayMS uint64 `mapstructure:"retry_delay" json:"retry_delay"`
}

// TransformConfig points at the sandboxed bytecode module to load.
type TransformConfig struct {
	Path string `mapstructure:"path" json:"path"`
}

// SinkSection is the raw, not-yet-discriminated sink configuration as it
// appears in a config file; Resolve turns it into a sink.Config.
type SinkSection struct {
	Type             string `mapstructure:"type" json:"type"`
	PrettyPrint      bool   `mapstructure:"pretty_print" json:"pretty_print"`
	Path             string `mapstructure:"path" json:"path"`
	Append           bool   `mapstructure:"append" json:"append"`
	ConnectionString string `mapstructure:"connection_string" json:"connection_string"`
	Schema           string `mapstructure:"schema" json:"schema"`
	BootstrapServers string `mapstructure:"bootstrap_servers" json:"bootstrap_servers"`
	Topic            string `mapstructure:"topic" json:"topic"`
	ClientID         string `mapstructure:"client_id" json:"client_id"`
	BatchSize        int    `mapstructure:"batch_size" json:"batch_size"`
	FlushIntervalMS  uint64 `mapstructure:"flush_interval" json:"flush_interval"`
}

// Resolve converts the raw section into a concrete sink.Config, filling
// the standard defaults (batch_size=100, flush_interval=1000ms, schema=public).
func (s SinkSection) Resolve() (sink.Config, error) {
	batchSize := s.BatchSize
	if batchSize == 0 {
		batchSize = 100
	}
	flushInterval := s.FlushIntervalMS
	if flushInterval == 0 {
		flushInterval = 1000
	}

	switch sink.Kind(s.Type) {
	case sink.KindConsole:
		return sink.Config{Kind: sink.KindConsole, Console: sink.ConsoleConfig{PrettyPrint: s.PrettyPrint}}, nil
	case sink.KindFile:
		if s.Path == "" {
			return sink.Config{}, fmt.Errorf("%w: file sink requires a path", core.ErrConfiguration)
		}
		return sink.Config{Kind: sink.KindFile, File: sink.FileConfig{Path: s.Path, Append: s.Append, FlushInterval: flushInterval}}, nil
	case sink.KindPostgres:
		schema := s.Schema
		if schema == "" {
			schema = "public"
		}
		return sink.Config{Kind: sink.KindPostgres, Postgres: sink.PostgresConfig{
			ConnectionString: s.ConnectionString,
			Schema:           schema,
			BatchSize:        batchSize,
			FlushInterval:    flushInterval,
		}}, nil
	case sink.KindKafka:
		return sink.Config{Kind: sink.KindKafka, Kafka: sink.KafkaConfig{
			BootstrapServers: s.BootstrapServers,
			Topic:            s.Topic,
			ClientID:         s.ClientID,
			BatchSize:        batchSize,
			FlushInterval:    flushInterval,
		}}, nil
	default:
		return sink.Config{}, fmt.Errorf("%w: unknown sink type %q", core.ErrConfiguration, s.Type)
	}
}

// Config is the unified pipeline configuration.
type Config struct {
	Upstream    UpstreamConfig  `mapstructure:"metashrew" json:"metashrew"`
	Transform   TransformConfig `mapstructure:"transform" json:"transform"`
	Sink        SinkSection     `mapstructure:"sink" json:"sink"`
	CacheSize   uint32          `mapstructure:"cache_size" json:"cache_size"`
	StartHeight *uint32         `mapstructure:"start_height" json:"start_height,omitempty"`
	LogLevel    string          `mapstructure:"log_level" json:"log_level"`
}

// AppConfig holds the configuration loaded via Load.
var AppConfig Config

// Validate checks the invariants required before the
// synchronizer starts: a non-empty, existing transform path, a sane
// upstream URL/timeout, and a positive cache size.
func (c *Config) Validate() error {
	if _, err := utils.ParseURL(c.Upstream.URL); err != nil {
		return utils.Wrap(err, "invalid upstream url")
	}
	if c.Upstream.TimeoutSecs == 0 {
		return fmt.Errorf("%w: upstream timeout must be greater than 0", core.ErrConfiguration)
	}
	if c.Transform.Path == "" {
		return fmt.Errorf("%w: transform path cannot be empty", core.ErrConfiguration)
	}
	if _, err := os.Stat(c.Transform.Path); err != nil {
		return utils.Wrap(err, "transform file not found")
	}
	if c.CacheSize == 0 {
		return fmt.Errorf("%w: cache size must be greater than 0", core.ErrConfiguration)
	}
	switch sink.Kind(c.Sink.Type) {
	case sink.KindPostgres:
		if c.Sink.ConnectionString == "" {
			return fmt.Errorf("%w: postgres sink requires a connection_string", core.ErrConfiguration)
		}
	case sink.KindKafka:
		if c.Sink.BootstrapServers == "" {
			return fmt.Errorf("%w: kafka sink requires bootstrap_servers", core.ErrConfiguration)
		}
	}
	if c.Sink.BatchSize < 0 {
		return fmt.Errorf("%w: sink batch_size must be at least 1", core.ErrConfiguration)
	}
	return nil
}

// Load reads a JSON/YAML/TOML configuration file (viper auto-detects by
// extension), merges a .env file if present, and validates the result.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	viper.SetDefault("metashrew.timeout", 30)
	viper.SetDefault("metashrew.max_retries", 3)
	viper.SetDefault("metashrew.retry_delay", 1000)
	viper.SetDefault("sink.append", true)
	viper.SetDefault("cache_size", 6)
	viper.SetDefault("log_level", "info")
	viper.SetConfigFile(path)
	if err := viper.ReadInConfig(); err != nil {
		return nil, utils.Wrap(err, "load config")
	}
	viper.AutomaticEnv()

	if err := viper.Unmarshal(&AppConfig); err != nil {
		return nil, utils.Wrap(err, "unmarshal config")
	}
	if err := AppConfig.Validate(); err != nil {
		return nil, err
	}
	return &AppConfig, nil
}

// LoadDefault reads the config path from the REORGCDC_CONFIG environment
// variable, falling back to "config.json" in the working directory,
// mirroring pkg/config's LoadFromEnv(SYNN_ENV) convenience wrapper.
func LoadDefault() (*Config, error) {
	return Load(utils.EnvOrDefault("REORGCDC_CONFIG", "config.json"))
}
