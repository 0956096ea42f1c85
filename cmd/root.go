// Package cmd holds the ccaindex command line.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/JakeFAU/cca-esindex/internal/config"
)

const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
)

// usageError marks problems with the invocation itself.
type usageError struct {
	err error
}

func (e *usageError) Error() string { return e.err.Error() }

func (e *usageError) Unwrap() error { return e.err }

// newRootCmd creates the root command. stdout receives the run summary.
func newRootCmd() *cobra.Command {
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "ccaindex",
		Short: "Index a directory of CBOR crawl dumps into Elasticsearch.",
		Long: `ccaindex walks a directory of CBOR-encoded crawl records, extracts the
text of each page, and submits one document per record to an Elasticsearch
index. Every file is reported as either indexed or failed, with the reason.`,
		Args: func(cmd *cobra.Command, args []string) error {
			if err := cobra.NoArgs(cmd, args); err != nil {
				return &usageError{err: err}
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile, cmd.Flags())
			if err != nil {
				return &usageError{err: err}
			}
			return run(cmd.Context(), cfg, cmd.OutOrStdout())
		},
	}
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &usageError{err: err}
	})

	addFlags(cmd.Flags())
	cmd.Flags().StringVar(&cfgFile, "config", "", "config file (default ./ccaindex.yaml or $HOME/.ccaindex/ccaindex.yaml)")
	return cmd
}

func addFlags(fs *pflag.FlagSet) {
	fs.StringP("team", "t", "", "team name stamped on every document (required)")
	fs.StringP("crawlerId", "c", "", "crawler identifier stamped on every document (required)")
	fs.StringP("dataDir", "d", "", "directory of CBOR crawl dumps (required)")
	fs.StringP("url", "u", "", "Elasticsearch URL, userinfo becomes basic auth (required)")
	fs.StringP("index", "i", "", "target index name (required)")
	fs.StringP("docType", "o", "", "target document type (required)")
	fs.BoolP("verbose", "v", false, "log each document and list every failure")
	fs.Int("workers", 4, "number of files processed concurrently")
	fs.Bool("dry-run", false, "build documents without contacting the index")
	fs.String("extractor", config.ExtractorTika, "text extractor: tika or local")
	fs.String("tika-url", "http://localhost:9998", "Tika server URL for the tika extractor")
	fs.String("archive", config.ArchiveNone, "copy failed files to: none, local, memory, or gcs")
	fs.String("archive-dir", "", "base directory for the local archive")
	fs.String("metrics-addr", "", "serve /healthz, /metrics, and /v1/run on this address during the run")
	fs.Float64("rate-limit", 0, "maximum submissions per second, 0 for unthrottled")
}

// Execute runs the command against the process arguments and returns the
// exit status.
func Execute() int {
	return execute(context.Background(), os.Args[1:], os.Stdout, os.Stderr)
}

func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	// Help is a usage outcome: it goes to stderr and exits like a usage error.
	helpShown := false
	cmd.SetHelpFunc(func(c *cobra.Command, _ []string) {
		helpShown = true
		fmt.Fprintf(stderr, "%s\n\n%s", c.Long, c.UsageString())
	})

	err := cmd.ExecuteContext(ctx)
	if err == nil {
		if helpShown {
			return exitUsage
		}
		return exitOK
	}
	var usage *usageError
	if errors.As(err, &usage) {
		fmt.Fprintf(stderr, "Error: %v\n\n%s", err, cmd.UsageString())
		return exitUsage
	}
	fmt.Fprintf(stderr, "Error: %v\n", err)
	return exitFailure
}
