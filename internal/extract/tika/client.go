// Package tika extracts text through an Apache Tika server.
package tika

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/JakeFAU/cca-esindex/internal/ingest"
)

const maxErrorBody = 512

// Config captures the Tika server endpoint.
type Config struct {
	URL     string
	Timeout time.Duration
	// Client overrides the HTTP client (tests).
	Client *http.Client
}

// Client implements ingest.Extractor against the Tika `PUT /tika` endpoint.
type Client struct {
	endpoint string
	http     *http.Client
}

// New creates a Tika client.
func New(cfg Config) (*Client, error) {
	base, err := url.Parse(strings.TrimSpace(cfg.URL))
	if err != nil {
		return nil, fmt.Errorf("parse tika url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("tika url %q must include scheme and host", cfg.URL)
	}
	httpClient := cfg.Client
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = time.Minute
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{
		endpoint: strings.TrimRight(base.String(), "/") + "/tika",
		http:     httpClient,
	}, nil
}

// Extract sends content to Tika and returns the plain text it produces.
func (c *Client) Extract(ctx context.Context, content []byte, contentType string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.endpoint, bytes.NewReader(content))
	if err != nil {
		return "", fmt.Errorf("build tika request: %w", err)
	}
	req.Header.Set("Accept", "text/plain")
	if contentType != "" && contentType != ingest.DefaultContentType {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("tika request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	switch resp.StatusCode {
	case http.StatusOK:
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return "", fmt.Errorf("read tika response: %w", err)
		}
		return string(body), nil
	case http.StatusNoContent:
		return "", nil
	default:
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return "", fmt.Errorf("tika returned %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
}
