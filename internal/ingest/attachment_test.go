package ingest

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pngBytes is a tiny fake image payload; the codec validates the data URI
// envelope, not the image contents.
var pngBytes = []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A, 0x00, 0x01}

func pngDataURI() string {
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(pngBytes)
}

func TestDecodeAttachment_ValidPNG(t *testing.T) {
	att := DecodeAttachment(pngDataURI(), "req-42", 0)

	require.NotNil(t, att)
	assert.Equal(t, "image/png", att.MimeType)
	assert.Equal(t, pngBytes, att.Bytes)
	assert.Equal(t, "req-42.png", att.Filename)
}

func TestDecodeAttachment_DecodedLengthMatchesPayload(t *testing.T) {
	att := DecodeAttachment(pngDataURI(), "t", 0)

	require.NotNil(t, att)
	assert.Len(t, att.Bytes, len(pngBytes))
}

func TestDecodeAttachment_UnrecognizedSubtypeDefaultsToJpg(t *testing.T) {
	uri := "data:image/x-exotic;base64," + base64.StdEncoding.EncodeToString([]byte("img"))

	att := DecodeAttachment(uri, "t", 0)

	require.NotNil(t, att)
	assert.Equal(t, "t.jpg", att.Filename)
}

func TestDecodeAttachment_JpegExtension(t *testing.T) {
	uri := "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString([]byte("img"))

	att := DecodeAttachment(uri, "t", 0)

	require.NotNil(t, att)
	assert.Equal(t, "t.jpg", att.Filename)
	assert.Equal(t, "image/jpeg", att.MimeType)
}

func TestDecodeAttachment_RejectedShapes(t *testing.T) {
	payload := base64.StdEncoding.EncodeToString([]byte("img"))

	tests := []struct {
		name string
		uri  string
	}{
		{"no data prefix", "https://example.com/a.png"},
		{"non-image mime", "data:text/html;base64," + payload},
		{"missing base64 marker", "data:image/png," + payload},
		{"malformed base64", "data:image/png;base64,!!!not-base64!!!"},
		{"empty payload", "data:image/png;base64,"},
		{"no comma", "data:image/png;base64"},
		{"empty string", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Nil(t, DecodeAttachment(tt.uri, "t", 0))
		})
	}
}

func TestDecodeAttachment_SizeBound(t *testing.T) {
	assert.Nil(t, DecodeAttachment(pngDataURI(), "t", len(pngBytes)-1))
	assert.NotNil(t, DecodeAttachment(pngDataURI(), "t", len(pngBytes)))
}
