// Package document maps decoded crawl records onto the canonical index schema.
package document

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/JakeFAU/cca-esindex/internal/ingest"
	"github.com/JakeFAU/cca-esindex/internal/metrics"
	"github.com/JakeFAU/cca-esindex/internal/record"
)

var (
	// ErrMissingField means a document field that must be set is empty.
	ErrMissingField = errors.New("missing document field")
	// ErrNoContent means extraction produced no usable text.
	ErrNoContent = errors.New("extraction produced no text")
)

// Builder produces IndexDocuments for one run. Team and crawler are constant
// for the whole batch.
type Builder struct {
	team      string
	crawler   string
	extractor ingest.Extractor
}

// NewBuilder validates the run-level constants and returns a Builder.
func NewBuilder(team, crawler string, extractor ingest.Extractor) (*Builder, error) {
	if strings.TrimSpace(team) == "" {
		return nil, fmt.Errorf("team is required")
	}
	if strings.TrimSpace(crawler) == "" {
		return nil, fmt.Errorf("crawler is required")
	}
	if extractor == nil {
		return nil, fmt.Errorf("extractor is required")
	}
	return &Builder{team: team, crawler: crawler, extractor: extractor}, nil
}

// Build maps rec onto an IndexDocument. Extraction runs for every record and
// any extraction failure, including empty output, fails the record.
func (b *Builder) Build(ctx context.Context, rec ingest.CrawlRecord) (ingest.IndexDocument, error) {
	if rec.URL == "" {
		return ingest.IndexDocument{}, &ingest.BuildError{Err: fmt.Errorf("%w: url", ErrMissingField)}
	}

	doc := ingest.IndexDocument{
		URL:         rec.URL,
		Timestamp:   rec.ImportedAt,
		Team:        b.team,
		Crawler:     b.crawler,
		RawContent:  append([]byte(nil), rec.ResponseBody...),
		ContentType: record.ContentType(rec.ResponseHeaders),
	}

	start := time.Now()
	text, err := b.extractor.Extract(ctx, doc.RawContent, doc.ContentType)
	metrics.ObserveExtract(err == nil, time.Since(start))
	if err != nil {
		return ingest.IndexDocument{}, &ingest.BuildError{Err: fmt.Errorf("extract %s: %w", rec.URL, err)}
	}
	if strings.TrimSpace(text) == "" {
		return ingest.IndexDocument{}, &ingest.BuildError{Err: fmt.Errorf("%w: %s", ErrNoContent, rec.URL)}
	}

	doc.CrawlData = ingest.CrawlData{
		Content: text,
		Images:  []string{},
		Videos:  []string{},
	}
	return doc, nil
}
