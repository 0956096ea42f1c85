package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"
)

func mandatoryFlags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String("team", "", "")
	fs.String("crawlerId", "", "")
	fs.String("dataDir", "", "")
	fs.String("url", "", "")
	fs.String("index", "", "")
	fs.String("docType", "", "")
	fs.Bool("verbose", false, "")
	fs.Int("workers", 4, "")
	fs.Bool("dry-run", false, "")
	fs.String("extractor", "tika", "")
	fs.String("tika-url", "http://localhost:9998", "")
	require.NoError(t, fs.Parse(args))
	return fs
}

func TestLoadFromFlags(t *testing.T) {
	fs := mandatoryFlags(t,
		"--team", "ammo", "--crawlerId", "c-7", "--dataDir", "/data",
		"--url", "http://es:9200", "--index", "pages", "--docType", "page",
		"--workers", "8", "--extractor", "local", "--verbose",
	)
	cfg, err := Load("", fs)
	require.NoError(t, err)
	require.Equal(t, "ammo", cfg.Run.Team)
	require.Equal(t, "c-7", cfg.Run.CrawlerID)
	require.Equal(t, "/data", cfg.Run.DataDir)
	require.Equal(t, "http://es:9200", cfg.Index.URL)
	require.Equal(t, "pages", cfg.Index.Name)
	require.Equal(t, "page", cfg.Index.DocType)
	require.Equal(t, 8, cfg.Run.Workers)
	require.True(t, cfg.Run.Verbose)
	require.Equal(t, ExtractorLocal, cfg.Extractor.Kind)
	require.Equal(t, ArchiveNone, cfg.Archive.Kind)
	require.Equal(t, "failed", cfg.Archive.Prefix)
	require.Equal(t, "ingest_runs", cfg.Ledger.RunsTable)
	require.Equal(t, 30, cfg.Index.TimeoutSeconds)
}

func TestLoadFileAndEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ccaindex.yaml")
	content := []byte(`
run:
  team: file-team
  crawler_id: file-crawler
  data_dir: /file
  workers: 2
index:
  url: http://file:9200
  name: file-index
  doc_type: doc
archive:
  kind: local
  base_dir: /tmp/archive
`)
	require.NoError(t, os.WriteFile(path, content, 0o600))
	t.Setenv("CCAINDEX_RUN_TEAM", "env-team")

	cfg, err := Load(path, mandatoryFlags(t, "--index", "flag-index"))
	require.NoError(t, err)
	require.Equal(t, "env-team", cfg.Run.Team)
	require.Equal(t, "file-crawler", cfg.Run.CrawlerID)
	require.Equal(t, "flag-index", cfg.Index.Name)
	require.Equal(t, 2, cfg.Run.Workers)
	require.Equal(t, ArchiveLocal, cfg.Archive.Kind)
	require.Equal(t, "/tmp/archive", cfg.Archive.BaseDir)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrInvalid)
}

func TestLoadMissingMandatory(t *testing.T) {
	_, err := Load("", mandatoryFlags(t, "--team", "ammo"))
	require.ErrorIs(t, err, ErrInvalid)
	require.ErrorContains(t, err, "crawlerId is required")
	require.ErrorContains(t, err, "docType is required")
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Run:       RunConfig{Team: "t", CrawlerID: "c", DataDir: "/d", Workers: 1},
			Index:     IndexConfig{URL: "http://es", Name: "i", DocType: "d", TimeoutSeconds: 1},
			Extractor: ExtractorConfig{Kind: ExtractorTika, TikaURL: "http://tika"},
			Archive:   ArchiveConfig{Kind: ArchiveNone},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "zero workers", mutate: func(c *Config) { c.Run.Workers = 0 }, wantErr: "workers must be > 0"},
		{name: "unknown extractor", mutate: func(c *Config) { c.Extractor.Kind = "magic" }, wantErr: `unknown extractor "magic"`},
		{name: "tika without url", mutate: func(c *Config) { c.Extractor.TikaURL = "" }, wantErr: "tika_url is required"},
		{name: "unknown archive", mutate: func(c *Config) { c.Archive.Kind = "s3" }, wantErr: `unknown archive "s3"`},
		{name: "gcs without bucket", mutate: func(c *Config) { c.Archive.Kind = ArchiveGCS }, wantErr: "gcs_bucket is required"},
		{name: "local without dir", mutate: func(c *Config) { c.Archive.Kind = ArchiveLocal }, wantErr: "base_dir is required"},
		{name: "half pubsub", mutate: func(c *Config) { c.PubSub.ProjectID = "p" }, wantErr: "must be set together"},
		{name: "negative rate", mutate: func(c *Config) { c.Index.RateLimitPerSecond = -1 }, wantErr: "rate_limit_per_second"},
		{name: "blank team", mutate: func(c *Config) { c.Run.Team = "  " }, wantErr: "team is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, ErrInvalid)
			require.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestPubSubEnabled(t *testing.T) {
	require.False(t, PubSubConfig{}.Enabled())
	require.True(t, PubSubConfig{ProjectID: "p", TopicName: "t"}.Enabled())
}
