// Package elastic submits documents to an Elasticsearch 7.x index.
package elastic

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	elasticsearch "github.com/elastic/go-elasticsearch/v7"
	"github.com/elastic/go-elasticsearch/v7/esapi"

	"github.com/JakeFAU/cca-esindex/internal/ingest"
	"github.com/JakeFAU/cca-esindex/internal/metrics"
)

// ErrRejected means the index service answered but did not create or update
// the document.
var ErrRejected = errors.New("index rejected document")

const maxErrorBody = 512

// Config captures the index endpoint and target.
type Config struct {
	// URL is the service base URL. Userinfo, when present, becomes basic auth.
	URL       string
	Index     string
	DocType   string
	Timeout   time.Duration
	Transport http.RoundTripper
}

// Submitter implements ingest.Submitter with one index request per document.
type Submitter struct {
	client  *elasticsearch.Client
	index   string
	docType string
	timeout time.Duration
}

// New validates cfg and builds the Elasticsearch client.
func New(cfg Config) (*Submitter, error) {
	if strings.TrimSpace(cfg.Index) == "" {
		return nil, errors.New("index name is required")
	}
	if strings.TrimSpace(cfg.DocType) == "" {
		return nil, errors.New("document type is required")
	}
	address, username, password, err := splitURL(cfg.URL)
	if err != nil {
		return nil, err
	}
	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses:    []string{address},
		Username:     username,
		Password:     password,
		Transport:    cfg.Transport,
		DisableRetry: true,
	})
	if err != nil {
		return nil, fmt.Errorf("new elasticsearch client: %w", err)
	}
	return &Submitter{
		client:  client,
		index:   cfg.Index,
		docType: cfg.DocType,
		timeout: cfg.Timeout,
	}, nil
}

func splitURL(raw string) (address, username, password string, err error) {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", "", "", fmt.Errorf("parse index url: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return "", "", "", fmt.Errorf("index url %q must include scheme and host", raw)
	}
	if parsed.User != nil {
		username = parsed.User.Username()
		password, _ = parsed.User.Password()
		parsed.User = nil
	}
	return strings.TrimRight(parsed.String(), "/"), username, password, nil
}

type indexResponse struct {
	ID      string `json:"_id"`
	Result  string `json:"result"`
	Created *bool  `json:"created"`
}

// Submit posts doc to <index>/<doc type> and parses the acknowledgment.
func (s *Submitter) Submit(ctx context.Context, doc ingest.IndexDocument) (ingest.Ack, error) {
	body, err := json.Marshal(doc)
	if err != nil {
		return ingest.Ack{}, fmt.Errorf("marshal document: %w", err)
	}
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	ack, err := s.do(ctx, body)
	result := "ok"
	if err != nil {
		result = "error"
	}
	metrics.ObserveSubmit(s.index, result, time.Since(start))
	return ack, err
}

func (s *Submitter) do(ctx context.Context, body []byte) (ingest.Ack, error) {
	req := esapi.IndexRequest{
		Index:        s.index,
		DocumentType: s.docType,
		Body:         bytes.NewReader(body),
	}
	res, err := req.Do(ctx, s.client)
	if err != nil {
		return ingest.Ack{}, fmt.Errorf("index request: %w", err)
	}
	defer func() {
		_ = res.Body.Close()
	}()

	if res.IsError() {
		snippet, _ := io.ReadAll(io.LimitReader(res.Body, maxErrorBody))
		return ingest.Ack{}, fmt.Errorf("%w: status %d: %s", ErrRejected, res.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var parsed indexResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return ingest.Ack{}, fmt.Errorf("decode index response: %w", err)
	}
	ack := ingest.Ack{ID: parsed.ID, Result: parsed.Result}
	switch {
	case parsed.Result == "created":
		ack.Created = true
	case parsed.Result == "updated":
	case parsed.Created != nil:
		// Pre-6.0 services report a boolean instead of a result string.
		ack.Created = *parsed.Created
		ack.Result = "updated"
		if ack.Created {
			ack.Result = "created"
		}
	default:
		return ingest.Ack{}, fmt.Errorf("%w: status %d: result %q", ErrRejected, res.StatusCode, parsed.Result)
	}
	return ack, nil
}
