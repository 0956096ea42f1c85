// Package record decodes crawl-dump records. Each file holds a CBOR value whose
// payload is a JSON document describing one fetched page.
package record

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/fxamacker/cbor/v2"

	"github.com/JakeFAU/cca-esindex/internal/ingest"
)

var (
	// ErrOuterType means the CBOR layer decoded to something other than text.
	ErrOuterType = errors.New("outer value is not text")
	// ErrMissingField means a required JSON key is absent or null.
	ErrMissingField = errors.New("missing required field")
	// ErrFieldType means a JSON key holds the wrong kind of value.
	ErrFieldType = errors.New("field has wrong type")
)

type wireRecord struct {
	URL      *string       `json:"url"`
	Imported *json.Number  `json:"imported"`
	Response *wireResponse `json:"response"`
}

type wireResponse struct {
	Headers json.RawMessage `json:"headers"`
	Body    json.RawMessage `json:"body"`
}

// Decode turns the raw bytes of one file into a CrawlRecord. Both the CBOR and
// the JSON layer report failures as *ingest.DecodeError.
func Decode(data []byte) (ingest.CrawlRecord, error) {
	inner, err := outer(data)
	if err != nil {
		return ingest.CrawlRecord{}, &ingest.DecodeError{Err: err}
	}
	rec, err := parse(inner)
	if err != nil {
		return ingest.CrawlRecord{}, &ingest.DecodeError{Err: err}
	}
	return rec, nil
}

func outer(data []byte) ([]byte, error) {
	var v any
	if err := cbor.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("cbor: %w", err)
	}
	switch payload := v.(type) {
	case string:
		return []byte(payload), nil
	case []byte:
		return payload, nil
	default:
		return nil, fmt.Errorf("%w: got %T", ErrOuterType, v)
	}
}

func parse(inner []byte) (ingest.CrawlRecord, error) {
	dec := json.NewDecoder(bytes.NewReader(inner))
	dec.UseNumber()
	var wire wireRecord
	if err := dec.Decode(&wire); err != nil {
		return ingest.CrawlRecord{}, fmt.Errorf("json: %w", err)
	}
	var extra json.RawMessage
	if err := dec.Decode(&extra); !errors.Is(err, io.EOF) {
		return ingest.CrawlRecord{}, fmt.Errorf("%w: trailing data after JSON document", ErrFieldType)
	}

	if wire.URL == nil {
		return ingest.CrawlRecord{}, fmt.Errorf("%w: url", ErrMissingField)
	}
	if wire.Imported == nil {
		return ingest.CrawlRecord{}, fmt.Errorf("%w: imported", ErrMissingField)
	}
	imported, err := epochMillis(*wire.Imported)
	if err != nil {
		return ingest.CrawlRecord{}, err
	}
	if wire.Response == nil {
		return ingest.CrawlRecord{}, fmt.Errorf("%w: response", ErrMissingField)
	}
	headers, err := parseHeaders(wire.Response.Headers)
	if err != nil {
		return ingest.CrawlRecord{}, err
	}
	body, err := parseBody(wire.Response.Body)
	if err != nil {
		return ingest.CrawlRecord{}, err
	}

	return ingest.CrawlRecord{
		URL:             *wire.URL,
		ImportedAt:      imported,
		ResponseHeaders: headers,
		ResponseBody:    body,
	}, nil
}

func epochMillis(n json.Number) (int64, error) {
	if v, err := n.Int64(); err == nil {
		return v, nil
	}
	f, err := n.Float64()
	if err != nil || f != math.Trunc(f) || math.Abs(f) > math.MaxInt64 {
		return 0, fmt.Errorf("%w: imported must be an integer, got %s", ErrFieldType, n.String())
	}
	return int64(f), nil
}

func parseHeaders(raw json.RawMessage) ([]ingest.Header, error) {
	if isNull(raw) {
		return nil, nil
	}
	var pairs [][]string
	if err := json.Unmarshal(raw, &pairs); err != nil {
		return nil, fmt.Errorf("%w: response.headers: %v", ErrFieldType, err)
	}
	headers := make([]ingest.Header, 0, len(pairs))
	for i, pair := range pairs {
		if len(pair) != 2 {
			return nil, fmt.Errorf("%w: response.headers[%d] has %d elements, want 2", ErrFieldType, i, len(pair))
		}
		headers = append(headers, ingest.Header{Name: pair[0], Value: pair[1]})
	}
	return headers, nil
}

func parseBody(raw json.RawMessage) ([]byte, error) {
	if isNull(raw) {
		return nil, fmt.Errorf("%w: response.body", ErrMissingField)
	}
	var body string
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, fmt.Errorf("%w: response.body must be a string", ErrFieldType)
	}
	return []byte(body), nil
}

func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// ContentType returns the value of the first header named exactly
// "Content-Type", or ingest.DefaultContentType when there is none.
func ContentType(headers []ingest.Header) string {
	for _, h := range headers {
		if h.Name == "Content-Type" {
			return h.Value
		}
	}
	return ingest.DefaultContentType
}
