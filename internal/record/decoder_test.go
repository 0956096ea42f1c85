package record

import (
	"encoding/json"
	"testing"

	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/cca-esindex/internal/ingest"
)

func encodeRecord(t *testing.T, doc any) []byte {
	t.Helper()
	inner, err := json.Marshal(doc)
	require.NoError(t, err)
	data, err := cbor.Marshal(string(inner))
	require.NoError(t, err)
	return data
}

func TestDecodeWellFormedRecord(t *testing.T) {
	t.Parallel()

	data := encodeRecord(t, map[string]any{
		"url":      "http://www.example.com/guns.html",
		"imported": 1428633845123,
		"response": map[string]any{
			"headers": [][]string{{"Content-Type", "text/html"}, {"Server", "nginx"}},
			"body":    "<html><body>hello</body></html>",
		},
	})

	rec, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, "http://www.example.com/guns.html", rec.URL)
	assert.Equal(t, int64(1428633845123), rec.ImportedAt)
	assert.Equal(t, []ingest.Header{
		{Name: "Content-Type", Value: "text/html"},
		{Name: "Server", Value: "nginx"},
	}, rec.ResponseHeaders)
	assert.Equal(t, []byte("<html><body>hello</body></html>"), rec.ResponseBody)
}

func TestDecodeAcceptsByteStringOuterLayer(t *testing.T) {
	t.Parallel()

	inner := []byte(`{"url":"u","imported":1.0e3,"response":{"body":""}}`)
	data, err := cbor.Marshal(inner)
	require.NoError(t, err)

	rec, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), rec.ImportedAt)
	assert.Empty(t, rec.ResponseHeaders)
	assert.Empty(t, rec.ResponseBody)
}

func TestDecodeFailures(t *testing.T) {
	t.Parallel()

	mapOuter, err := cbor.Marshal(map[string]any{"url": "u"})
	require.NoError(t, err)

	tests := []struct {
		name    string
		data    []byte
		wantErr error
	}{
		{name: "empty file", data: nil},
		{name: "garbage bytes", data: []byte{0xff, 0x00, 0x13, 0x37, 0xde, 0xad}},
		{name: "outer map", data: mapOuter, wantErr: ErrOuterType},
		{name: "inner not json", data: mustCBOR(t, "not json at all")},
		{
			name:    "trailing data after inner document",
			data:    mustCBOR(t, `{"url":"u","imported":1,"response":{"body":"x"}} extra`),
			wantErr: ErrFieldType,
		},
		{
			name:    "second inner document",
			data:    mustCBOR(t, `{"url":"u","imported":1,"response":{"body":"x"}}{}`),
			wantErr: ErrFieldType,
		},
		{
			name:    "missing url",
			data:    encodeRecord(t, map[string]any{"imported": 1, "response": map[string]any{"body": "x"}}),
			wantErr: ErrMissingField,
		},
		{
			name:    "missing imported",
			data:    encodeRecord(t, map[string]any{"url": "u", "response": map[string]any{"body": "x"}}),
			wantErr: ErrMissingField,
		},
		{
			name:    "fractional imported",
			data:    encodeRecord(t, map[string]any{"url": "u", "imported": 1.5, "response": map[string]any{"body": "x"}}),
			wantErr: ErrFieldType,
		},
		{
			name:    "missing response",
			data:    encodeRecord(t, map[string]any{"url": "u", "imported": 1}),
			wantErr: ErrMissingField,
		},
		{
			name:    "missing body",
			data:    encodeRecord(t, map[string]any{"url": "u", "imported": 1, "response": map[string]any{}}),
			wantErr: ErrMissingField,
		},
		{
			name: "numeric body",
			data: encodeRecord(t, map[string]any{
				"url": "u", "imported": 1, "response": map[string]any{"body": 42},
			}),
			wantErr: ErrFieldType,
		},
		{
			name: "short header pair",
			data: encodeRecord(t, map[string]any{
				"url": "u", "imported": 1,
				"response": map[string]any{"headers": [][]string{{"Content-Type"}}, "body": "x"},
			}),
			wantErr: ErrFieldType,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Decode(tt.data)
			require.Error(t, err)
			var decodeErr *ingest.DecodeError
			require.ErrorAs(t, err, &decodeErr)
			require.NotEmpty(t, err.Error())
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestContentType(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		headers []ingest.Header
		want    string
	}{
		{name: "no headers", want: ingest.DefaultContentType},
		{
			name:    "single",
			headers: []ingest.Header{{Name: "Content-Type", Value: "text/html"}},
			want:    "text/html",
		},
		{
			name: "first match wins",
			headers: []ingest.Header{
				{Name: "Server", Value: "nginx"},
				{Name: "Content-Type", Value: "application/pdf"},
				{Name: "Content-Type", Value: "text/html"},
			},
			want: "application/pdf",
		},
		{
			name:    "case sensitive",
			headers: []ingest.Header{{Name: "content-type", Value: "text/html"}},
			want:    ingest.DefaultContentType,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, ContentType(tt.headers))
		})
	}
}

func mustCBOR(t *testing.T, v any) []byte {
	t.Helper()
	data, err := cbor.Marshal(v)
	require.NoError(t, err)
	return data
}

func TestDecodeAllowsTrailingWhitespace(t *testing.T) {
	t.Parallel()

	rec, err := Decode(mustCBOR(t, "{\"url\":\"u\",\"imported\":1,\"response\":{\"body\":\"x\"}}\n  \n"))
	require.NoError(t, err)
	require.Equal(t, "u", rec.URL)
}
