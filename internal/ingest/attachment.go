package ingest

import (
	"encoding/base64"
	"strings"

	"beaconrelay/internal/types"
)

// dataURIPrefix is the only attachment shape accepted: a self-describing
// base64 data URI with an image media type.
const dataURIPrefix = "data:"

// extensions maps image subtypes to generated filename extensions.
// Unrecognized subtypes fall back to jpg.
var extensions = map[string]string{
	"jpeg": "jpg",
	"jpg":  "jpg",
	"png":  "png",
	"gif":  "gif",
	"webp": "webp",
}

// DecodeAttachment parses a `data:image/<subtype>;base64,<payload>` URI into
// a decoded attachment. token differentiates generated filenames (request id
// or a timestamp). maxBytes bounds the decoded size; zero means unbounded.
//
// Any shape other than a base64 image data URI yields nil — "no attachment"
// is a normal outcome, never an error that could abort the request.
func DecodeAttachment(uri, token string, maxBytes int) *types.Attachment {
	rest, ok := strings.CutPrefix(uri, dataURIPrefix)
	if !ok {
		return nil
	}

	meta, payload, ok := strings.Cut(rest, ",")
	if !ok || payload == "" {
		return nil
	}

	// meta is "<mime>[;param][;base64]"; base64 must be declared.
	params := strings.Split(meta, ";")
	mime := strings.ToLower(strings.TrimSpace(params[0]))
	if !strings.HasPrefix(mime, "image/") {
		return nil
	}

	isBase64 := false
	for _, p := range params[1:] {
		if strings.TrimSpace(p) == "base64" {
			isBase64 = true
			break
		}
	}
	if !isBase64 {
		return nil
	}

	decoded, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil
	}
	if len(decoded) == 0 || (maxBytes > 0 && len(decoded) > maxBytes) {
		return nil
	}

	subtype := strings.TrimPrefix(mime, "image/")
	ext, ok := extensions[subtype]
	if !ok {
		ext = "jpg"
	}

	return &types.Attachment{
		MimeType: mime,
		Bytes:    decoded,
		Filename: token + "." + ext,
	}
}
