package archive

import (
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"
	"github.com/nlnwa/gowarc"
)

// Writer appends records to a WARC.gz stream, one gzip member per record
type Writer struct {
	w         io.Writer
	marshaler gowarc.Marshaler
	now       func() time.Time
}

// NewWriter creates a writer over w
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w, marshaler: gowarc.NewMarshaler(), now: time.Now}
}

// WriteRecord writes rec, filling in the record id and date when missing.
// Content-Length and the block digest are computed by the record builder.
func (w *Writer) WriteRecord(rec *Record) error {
	recordType, ok := recordTypes[rec.RecordType]
	if !ok {
		return fmt.Errorf("unsupported record type %q", rec.RecordType)
	}

	id := rec.RecordID
	if id == "" {
		id = "<urn:uuid:" + uuid.NewString() + ">"
	}
	date := rec.Date
	if date.IsZero() {
		date = w.now()
	}

	rb := gowarc.NewRecordBuilder(recordType, gowarc.WithSpecViolationPolicy(gowarc.ErrWarn))
	rb.AddWarcHeader(gowarc.WarcRecordID, id)
	rb.AddWarcHeader(gowarc.WarcDate, date.UTC().Format(time.RFC3339))
	if rec.Target != "" {
		rb.AddWarcHeader(gowarc.WarcTargetURI, rec.Target)
	}
	rb.AddWarcHeader(gowarc.ContentType, rec.contentType())
	if _, err := rb.Write(rec.Block); err != nil {
		return fmt.Errorf("failed to buffer record block: %w", err)
	}

	wr, _, err := rb.Build()
	if err != nil {
		return fmt.Errorf("failed to build record: %w", err)
	}
	defer wr.Close()

	gz := gzip.NewWriter(w.w)
	if _, _, err := w.marshaler.Marshal(gz, wr, 0); err != nil {
		return fmt.Errorf("failed to write record: %w", err)
	}
	if err := gz.Close(); err != nil {
		return fmt.Errorf("failed to finish record: %w", err)
	}
	return nil
}
