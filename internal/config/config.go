package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/gymdex/gymdex-cli/internal/batch"
	"github.com/gymdex/gymdex-cli/internal/merge"
)

// Config holds the full application configuration.
type Config struct {
	Store  StoreConfig  `yaml:"store" mapstructure:"store"`
	Fetch  FetchConfig  `yaml:"fetch" mapstructure:"fetch"`
	Search SearchConfig `yaml:"search" mapstructure:"search"`
	Batch  BatchConfig  `yaml:"batch" mapstructure:"batch"`
	Merge  MergeConfig  `yaml:"merge" mapstructure:"merge"`
	Server ServerConfig `yaml:"server" mapstructure:"server"`
	Log    LogConfig    `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// FetchConfig configures the HTTP fetcher.
type FetchConfig struct {
	UserAgent   string `yaml:"user_agent" mapstructure:"user_agent"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxRetries  int    `yaml:"max_retries" mapstructure:"max_retries"`
}

// SearchConfig holds the search engine endpoints. Each endpoint is a URL
// template with a %s placeholder for the escaped query.
type SearchConfig struct {
	PrimaryEndpoint   string `yaml:"primary_endpoint" mapstructure:"primary_endpoint"`
	GeneralEndpoint   string `yaml:"general_endpoint" mapstructure:"general_endpoint"`
	BlogEndpoint      string `yaml:"blog_endpoint" mapstructure:"blog_endpoint"`
	AlternateEndpoint string `yaml:"alternate_endpoint" mapstructure:"alternate_endpoint"`
	Gazetteer         string `yaml:"gazetteer" mapstructure:"gazetteer"`

	// QualityThreshold is the confidence a usable result must exceed to stop
	// the fallback chain early.
	QualityThreshold float64 `yaml:"quality_threshold" mapstructure:"quality_threshold"`
}

// BatchConfig configures the adaptive batch processor.
type BatchConfig struct {
	InitialSize            int `yaml:"initial_size" mapstructure:"initial_size"`
	MinSize                int `yaml:"min_size" mapstructure:"min_size"`
	MaxSize                int `yaml:"max_size" mapstructure:"max_size"`
	MaxConsecutiveFailures int `yaml:"max_consecutive_failures" mapstructure:"max_consecutive_failures"`
	BatchDelayMinSecs      int `yaml:"batch_delay_min_secs" mapstructure:"batch_delay_min_secs"`
	BatchDelayMaxSecs      int `yaml:"batch_delay_max_secs" mapstructure:"batch_delay_max_secs"`
	InnerConcurrency       int `yaml:"inner_concurrency" mapstructure:"inner_concurrency"`

	LowSuccessRateDelayMinSecs int     `yaml:"low_success_rate_delay_min_secs" mapstructure:"low_success_rate_delay_min_secs"`
	LowSuccessRateDelayMaxSecs int     `yaml:"low_success_rate_delay_max_secs" mapstructure:"low_success_rate_delay_max_secs"`
	LowSuccessRateThreshold    float64 `yaml:"low_success_rate_threshold" mapstructure:"low_success_rate_threshold"`
}

// ToProcessorConfig converts the yaml-facing batch section into the
// processor's option struct. Zero values fall back to processor defaults.
func (b BatchConfig) ToProcessorConfig() batch.Config {
	cfg := batch.Config{
		InitialBatchSize:       b.InitialSize,
		MinBatchSize:           b.MinSize,
		MaxBatchSize:           b.MaxSize,
		MaxConsecutiveFailures: b.MaxConsecutiveFailures,
	}
	cfg.LowSuccessRateThreshold = b.LowSuccessRateThreshold
	if b.BatchDelayMaxSecs > 0 {
		cfg.BatchDelayMin = time.Duration(b.BatchDelayMinSecs) * time.Second
		cfg.BatchDelayMax = time.Duration(b.BatchDelayMaxSecs) * time.Second
	}
	if b.LowSuccessRateDelayMaxSecs > 0 {
		cfg.LowSuccessRateDelayMin = time.Duration(b.LowSuccessRateDelayMinSecs) * time.Second
		cfg.LowSuccessRateDelayMax = time.Duration(b.LowSuccessRateDelayMaxSecs) * time.Second
	}
	return cfg
}

// MergeConfig configures the data merger.
type MergeConfig struct {
	DuplicateThreshold float64 `yaml:"duplicate_threshold" mapstructure:"duplicate_threshold"`
	MatchChunkSize     int     `yaml:"match_chunk_size" mapstructure:"match_chunk_size"`
	MergeChunkSize     int     `yaml:"merge_chunk_size" mapstructure:"merge_chunk_size"`
}

// ToMergeOptions converts the yaml-facing merge section into merger options.
func (m MergeConfig) ToMergeOptions() merge.Options {
	return merge.Options{
		DuplicateThreshold: m.DuplicateThreshold,
		MatchChunkSize:     m.MatchChunkSize,
		MergeChunkSize:     m.MergeChunkSize,
	}
}

// ServerConfig configures the HTTP API server.
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
	v.SetEnvPrefix("GYMDEX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "gymdex.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("fetch.user_agent", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36")
	v.SetDefault("fetch.timeout_secs", 30)
	v.SetDefault("fetch.max_retries", 3)
	v.SetDefault("search.primary_endpoint", "https://search.naver.com/search.naver?query=%s")
	v.SetDefault("search.general_endpoint", "https://search.naver.com/search.naver?where=nexearch&query=%s")
	v.SetDefault("search.blog_endpoint", "https://search.naver.com/search.naver?where=blog&query=%s")
	v.SetDefault("search.alternate_endpoint", "https://search.daum.net/search?q=%s")
	v.SetDefault("search.quality_threshold", 0.3)
	v.SetDefault("batch.initial_size", 10)
	v.SetDefault("batch.min_size", 1)
	v.SetDefault("batch.max_size", 20)
	v.SetDefault("batch.max_consecutive_failures", 3)
	v.SetDefault("batch.inner_concurrency", 10)
	v.SetDefault("batch.low_success_rate_delay_min_secs", 5)
	v.SetDefault("batch.low_success_rate_delay_max_secs", 10)
	v.SetDefault("batch.low_success_rate_threshold", 80)
	v.SetDefault("merge.duplicate_threshold", 0.8)
	v.SetDefault("merge.match_chunk_size", 5)
	v.SetDefault("merge.merge_chunk_size", 10)

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
