// Package config loads and validates run configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// ErrInvalid tags every validation failure so callers can map it to a usage error.
var ErrInvalid = errors.New("invalid configuration")

// Extractor kinds.
const (
	ExtractorTika  = "tika"
	ExtractorLocal = "local"
)

// Archive kinds.
const (
	ArchiveNone   = "none"
	ArchiveLocal  = "local"
	ArchiveMemory = "memory"
	ArchiveGCS    = "gcs"
)

// Config captures every knob of a run.
type Config struct {
	Run       RunConfig       `mapstructure:"run"`
	Index     IndexConfig     `mapstructure:"index"`
	Extractor ExtractorConfig `mapstructure:"extractor"`
	Archive   ArchiveConfig   `mapstructure:"archive"`
	Ledger    LedgerConfig    `mapstructure:"ledger"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// RunConfig holds the batch-level constants.
type RunConfig struct {
	Team      string `mapstructure:"team"`
	CrawlerID string `mapstructure:"crawler_id"`
	DataDir   string `mapstructure:"data_dir"`
	Verbose   bool   `mapstructure:"verbose"`
	Workers   int    `mapstructure:"workers"`
	DryRun    bool   `mapstructure:"dry_run"`
}

// IndexConfig identifies the index service target.
type IndexConfig struct {
	URL                string  `mapstructure:"url"`
	Name               string  `mapstructure:"name"`
	DocType            string  `mapstructure:"doc_type"`
	TimeoutSeconds     int     `mapstructure:"timeout_seconds"`
	RateLimitPerSecond float64 `mapstructure:"rate_limit_per_second"`
	Burst              int     `mapstructure:"burst"`
}

// Timeout converts TimeoutSeconds.
func (c IndexConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// ExtractorConfig selects the extraction collaborator.
type ExtractorConfig struct {
	Kind           string `mapstructure:"kind"`
	TikaURL        string `mapstructure:"tika_url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// Timeout converts TimeoutSeconds.
func (c ExtractorConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// ArchiveConfig controls where raw bytes of failed files are copied.
type ArchiveConfig struct {
	Kind      string `mapstructure:"kind"`
	BaseDir   string `mapstructure:"base_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// LedgerConfig controls the Postgres run ledger. An empty DSN disables it.
type LedgerConfig struct {
	DSN           string `mapstructure:"dsn"`
	RunsTable     string `mapstructure:"runs_table"`
	FailuresTable string `mapstructure:"failures_table"`
}

// PubSubConfig holds the run-summary notification target.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// Enabled reports whether both project and topic are set.
func (c PubSubConfig) Enabled() bool {
	return c.ProjectID != "" && c.TopicName != ""
}

// MetricsConfig sets the optional listener address.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// FlagKeys maps command-line flag names onto configuration keys.
var FlagKeys = map[string]string{
	"team":         "run.team",
	"crawlerId":    "run.crawler_id",
	"dataDir":      "run.data_dir",
	"url":          "index.url",
	"index":        "index.name",
	"docType":      "index.doc_type",
	"verbose":      "run.verbose",
	"workers":      "run.workers",
	"dry-run":      "run.dry_run",
	"extractor":    "extractor.kind",
	"tika-url":     "extractor.tika_url",
	"archive":      "archive.kind",
	"archive-dir":  "archive.base_dir",
	"metrics-addr": "metrics.addr",
	"rate-limit":   "index.rate_limit_per_second",
}

// Load builds a Config from defaults, an optional file, CCAINDEX_* environment
// variables, and flags, in increasing precedence. With an empty path a
// ccaindex.yaml in the working directory or $HOME/.ccaindex is used if present.
func Load(path string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CCAINDEX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("ccaindex")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.ccaindex")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	if flags != nil {
		for name, key := range FlagKeys {
			flag := flags.Lookup(name)
			if flag == nil {
				continue
			}
			if err := v.BindPFlag(key, flag); err != nil {
				return Config{}, fmt.Errorf("bind flag %s: %w", name, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	// Mandatory keys default to empty so environment variables resolve during Unmarshal.
	for _, key := range []string{"run.team", "run.crawler_id", "run.data_dir", "index.url", "index.name", "index.doc_type"} {
		v.SetDefault(key, "")
	}
	v.SetDefault("run.verbose", false)
	v.SetDefault("run.workers", 4)
	v.SetDefault("run.dry_run", false)
	v.SetDefault("index.timeout_seconds", 30)
	v.SetDefault("index.rate_limit_per_second", 0)
	v.SetDefault("index.burst", 1)
	v.SetDefault("extractor.kind", ExtractorTika)
	v.SetDefault("extractor.tika_url", "http://localhost:9998")
	v.SetDefault("extractor.timeout_seconds", 60)
	v.SetDefault("archive.kind", ArchiveNone)
	v.SetDefault("archive.base_dir", "")
	v.SetDefault("archive.gcs_bucket", "")
	v.SetDefault("archive.prefix", "failed")
	v.SetDefault("ledger.dsn", "")
	v.SetDefault("ledger.runs_table", "ingest_runs")
	v.SetDefault("ledger.failures_table", "ingest_failures")
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic_name", "")
	v.SetDefault("metrics.addr", "")
	v.SetDefault("logging.development", false)
}

// Validate reports every problem at once. Each error wraps ErrInvalid.
func (c Config) Validate() error {
	var errs []error
	invalid := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...))
	}

	required := []struct{ key, value string }{
		{"team", c.Run.Team},
		{"crawlerId", c.Run.CrawlerID},
		{"dataDir", c.Run.DataDir},
		{"url", c.Index.URL},
		{"index", c.Index.Name},
		{"docType", c.Index.DocType},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			invalid("%s is required", r.key)
		}
	}

	if c.Run.Workers <= 0 {
		invalid("workers must be > 0")
	}
	if c.Index.TimeoutSeconds <= 0 {
		invalid("index.timeout_seconds must be > 0")
	}
	if c.Index.RateLimitPerSecond < 0 {
		invalid("index.rate_limit_per_second must be >= 0")
	}
	switch c.Extractor.Kind {
	case ExtractorTika:
		if c.Extractor.TikaURL == "" {
			invalid("extractor.tika_url is required for the tika extractor")
		}
	case ExtractorLocal:
	default:
		invalid("unknown extractor %q", c.Extractor.Kind)
	}
	switch c.Archive.Kind {
	case ArchiveNone, ArchiveMemory:
	case ArchiveLocal:
		if c.Archive.BaseDir == "" {
			invalid("archive.base_dir is required for the local archive")
		}
	case ArchiveGCS:
		if c.Archive.GCSBucket == "" {
			invalid("archive.gcs_bucket is required for the gcs archive")
		}
	default:
		invalid("unknown archive %q", c.Archive.Kind)
	}
	if (c.PubSub.ProjectID == "") != (c.PubSub.TopicName == "") {
		invalid("pubsub.project_id and pubsub.topic_name must be set together")
	}
	return errors.Join(errs...)
}
