package db

import (
	"bytes"
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"

	"beaconrelay/internal/types"
)

// ReportRepository appends raw telemetry records to the telemetry_reports
// table.
//
// Schema:
//
//	CREATE TABLE telemetry_reports (
//	    id                 TEXT PRIMARY KEY,
//	    received_at        TIMESTAMPTZ NOT NULL,
//	    network_address    TEXT NOT NULL,
//	    user_agent         TEXT NOT NULL,
//	    payload            JSONB,
//	    payload_compressed BYTEA
//	);
//
// Exactly one of payload / payload_compressed is set per row: bodies above
// the configured threshold are stored gzip-compressed.
type ReportRepository struct {
	db                DBTX
	compressThreshold int
}

// NewReportRepository creates a ReportRepository. compressThreshold is the
// serialized payload size in bytes above which rows are stored compressed;
// zero or negative disables compression.
func NewReportRepository(db DBTX, compressThreshold int) *ReportRepository {
	return &ReportRepository{
		db:                db,
		compressThreshold: compressThreshold,
	}
}

// persistedReport is the durable shape of one record. The raw input bag is
// preserved verbatim; attachments are stored by reference only, never inline.
type persistedReport struct {
	*types.TelemetryRecord
	AttachmentMeta *attachmentMeta `json:"attachment,omitempty"`
}

type attachmentMeta struct {
	MimeType  string `json:"mime_type"`
	Filename  string `json:"filename"`
	SizeBytes int    `json:"size_bytes"`
}

// Append inserts one record. The pipeline treats any returned error as
// best-effort: logged, never surfaced to the caller.
func (r *ReportRepository) Append(ctx context.Context, rec *types.TelemetryRecord) error {
	doc := persistedReport{TelemetryRecord: rec}
	if rec.Attachment != nil {
		doc.AttachmentMeta = &attachmentMeta{
			MimeType:  rec.Attachment.MimeType,
			Filename:  rec.Attachment.Filename,
			SizeBytes: len(rec.Attachment.Bytes),
		}
	}

	payload, err := json.Marshal(doc)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to encode report payload", err)
	}

	id := rec.RequestID
	if id == "" {
		id = uuid.New().String()
	}

	var (
		plain      []byte
		compressed []byte
	)
	if r.compressThreshold > 0 && len(payload) > r.compressThreshold {
		compressed, err = compress(payload)
		if err != nil {
			// Fall back to the uncompressed form rather than losing the row.
			compressed = nil
			plain = payload
		}
	} else {
		plain = payload
	}

	_, err = r.db.Exec(ctx,
		`INSERT INTO telemetry_reports
		 (id, received_at, network_address, user_agent, payload, payload_compressed)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		id,
		rec.ReceivedAt.UTC().Truncate(time.Microsecond),
		rec.NetworkAddress,
		rec.UserAgent,
		nilIfEmptyBytes(plain),
		nilIfEmptyBytes(compressed),
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to append telemetry report", err)
	}
	return nil
}

// compress gzips a serialized payload for compact storage.
func compress(payload []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(payload); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// nilIfEmptyBytes maps empty slices to NULL column values.
func nilIfEmptyBytes(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}
