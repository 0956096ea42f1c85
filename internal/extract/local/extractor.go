// Package local extracts text in-process for the content types a crawl dump
// usually carries: HTML via goquery, PDF via ledongthuc/pdf, and text as-is.
package local

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"
	pdf "github.com/ledongthuc/pdf"

	"github.com/JakeFAU/cca-esindex/internal/ingest"
)

// ErrUnsupportedType means no in-process extractor handles the content type.
var ErrUnsupportedType = errors.New("unsupported content type")

// Extractor implements ingest.Extractor without any network dependency.
type Extractor struct{}

// New returns a local Extractor.
func New() *Extractor {
	return &Extractor{}
}

// Extract returns the visible text of content.
func (e *Extractor) Extract(ctx context.Context, content []byte, contentType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("extract: %w", err)
	}
	mediaType := parseMediaType(contentType)
	if mediaType == ingest.DefaultContentType || mediaType == "" {
		mediaType = parseMediaType(http.DetectContentType(content))
	}

	switch {
	case mediaType == "text/html" || mediaType == "application/xhtml+xml":
		return extractHTML(content)
	case mediaType == "application/pdf":
		return extractPDF(content)
	case strings.HasPrefix(mediaType, "text/"),
		mediaType == "application/json",
		mediaType == "application/xml":
		return strings.ToValidUTF8(string(content), ""), nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedType, mediaType)
	}
}

func parseMediaType(contentType string) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0]))
	}
	return mediaType
}

func extractHTML(content []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(content))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}
	doc.Find("script, style, noscript, template, svg").Remove()

	var parts []string
	if title := strings.TrimSpace(doc.Find("title").First().Text()); title != "" {
		parts = append(parts, title)
	}
	body := doc.Find("body")
	if body.Length() == 0 {
		body = doc.Selection
	}
	if text := collapseSpace(body.Text()); text != "" {
		parts = append(parts, text)
	}
	return strings.Join(parts, "\n"), nil
}

func extractPDF(content []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("new pdf reader: %w", err)
	}
	var builder strings.Builder
	total := reader.NumPage()
	for page := 1; page <= total; page++ {
		p := reader.Page(page)
		if p.V.IsNull() {
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("pdf page %d: %w", page, err)
		}
		builder.WriteString(text)
		builder.WriteString("\n")
	}
	return builder.String(), nil
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
