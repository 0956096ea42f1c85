// Package ingest defines core types shared across the ingestion pipeline.
package ingest

import (
	"encoding/json"
	"time"
)

// DefaultContentType is used when a record carries no Content-Type header.
const DefaultContentType = "application/octet-stream"

// Header is one (name, value) response header pair, in capture order.
type Header struct {
	Name  string
	Value string
}

// CrawlRecord is one decoded crawl-dump record. It is read-only once decoded.
type CrawlRecord struct {
	URL             string
	ImportedAt      int64
	ResponseHeaders []Header
	ResponseBody    []byte
}

// CrawlData carries the extracted view of a page.
type CrawlData struct {
	Content string   `json:"content"`
	Images  []string `json:"images"`
	Videos  []string `json:"videos"`
}

// IndexDocument is the canonical unit submitted to the index service.
type IndexDocument struct {
	URL         string    `json:"url"`
	Timestamp   int64     `json:"timestamp"`
	Team        string    `json:"team"`
	Crawler     string    `json:"crawler"`
	RawContent  []byte    `json:"-"`
	ContentType string    `json:"content_type"`
	CrawlData   CrawlData `json:"crawl_data"`
}

// MarshalJSON emits raw_content as a string rather than base64 so the index
// stores the page text as captured.
func (d IndexDocument) MarshalJSON() ([]byte, error) {
	type plain IndexDocument
	data := d.CrawlData
	if data.Images == nil {
		data.Images = []string{}
	}
	if data.Videos == nil {
		data.Videos = []string{}
	}
	return json.Marshal(struct {
		plain
		RawContent string    `json:"raw_content"`
		CrawlData  CrawlData `json:"crawl_data"`
	}{
		plain:      plain(d),
		RawContent: string(d.RawContent),
		CrawlData:  data,
	})
}

// Ack is the index service acknowledgment for one submission.
type Ack struct {
	ID      string
	Result  string
	Created bool
}

// Failure records why one file did not make it into the index.
type Failure struct {
	Path   string
	Stage  Stage
	Reason string
	Err    error
}

// Outcome is the batch-level result. Every enumerated file appears exactly
// once in Succeeded or Failed.
type Outcome struct {
	RunID      string
	Root       string
	Enumerated int
	Succeeded  []string
	Failed     []Failure
	StartedAt  time.Time
	FinishedAt time.Time
}

// Processed returns the number of files that reached a terminal state.
func (o Outcome) Processed() int {
	return len(o.Succeeded) + len(o.Failed)
}

// RunSummary is the compact view of an Outcome persisted and published after a run.
type RunSummary struct {
	RunID      string    `json:"run_id"`
	Team       string    `json:"team"`
	Crawler    string    `json:"crawler"`
	Root       string    `json:"root"`
	Index      string    `json:"index"`
	DocType    string    `json:"doc_type"`
	Enumerated int       `json:"enumerated"`
	Succeeded  int       `json:"succeeded"`
	Failed     int       `json:"failed"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Failures   []Failure `json:"-"`
}
