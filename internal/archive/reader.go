package archive

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/nlnwa/gowarc"
	"github.com/sirupsen/logrus"
)

// DefaultMaxRecordSize bounds the block of a single record read into memory
const DefaultMaxRecordSize = 64 << 20

var (
	// ErrNotWARC is returned when a stream is neither gzip nor starts with a WARC version line
	ErrNotWARC = errors.New("not a WARC record")
	// ErrRecordTooLarge is returned for a record whose block exceeds the reader limit
	ErrRecordTooLarge = errors.New("record exceeds maximum size")
)

// Reader iterates over the records of a WARC or WARC.gz stream
type Reader struct {
	br          *bufio.Reader
	unmarshaler gowarc.Unmarshaler
	maxSize     int64
}

// NewReader wraps r. Compressed input may hold one gzip member per record.
func NewReader(r io.Reader) (*Reader, error) {
	br := bufio.NewReader(r)

	reader := &Reader{
		br: br,
		unmarshaler: gowarc.NewUnmarshaler(
			gowarc.WithSyntaxErrorPolicy(gowarc.ErrWarn),
			gowarc.WithSpecViolationPolicy(gowarc.ErrWarn),
		),
		maxSize: DefaultMaxRecordSize,
	}
	if err := reader.skipSeparators(); err != nil {
		if errors.Is(err, io.EOF) {
			return reader, nil
		}
		return nil, err
	}

	magic, _ := br.Peek(5)
	if len(magic) >= 2 && magic[0] == 0x1f && magic[1] == 0x8b {
		return reader, nil
	}
	if !bytes.HasPrefix(magic, []byte("WARC/")) {
		return nil, fmt.Errorf("%w: unexpected prefix %q", ErrNotWARC, magic)
	}
	return reader, nil
}

// SetMaxRecordSize sets the largest block Next accepts
func (r *Reader) SetMaxRecordSize(n int64) {
	if n > 0 {
		r.maxSize = n
	}
}

// Next returns the next record, or io.EOF when the stream is exhausted
func (r *Reader) Next() (*Record, error) {
	if err := r.skipSeparators(); err != nil {
		return nil, err
	}

	wr, _, _, err := r.unmarshaler.Unmarshal(r.br)
	if err != nil {
		return nil, fmt.Errorf("failed to read record: %w", err)
	}
	defer wr.Close()

	header := wr.WarcHeader()
	if length, err := strconv.ParseInt(header.Get(gowarc.ContentLength), 10, 64); err == nil && length > r.maxSize {
		return nil, fmt.Errorf("%w: Content-Length %d", ErrRecordTooLarge, length)
	}

	raw, err := wr.Block().RawBytes()
	if err != nil {
		return nil, fmt.Errorf("failed to open record block: %w", err)
	}
	block, err := io.ReadAll(io.LimitReader(raw, r.maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read record block: %w", err)
	}
	if int64(len(block)) > r.maxSize {
		return nil, fmt.Errorf("%w: block longer than %d bytes", ErrRecordTooLarge, r.maxSize)
	}

	rec := &Record{
		RecordType: header.Get(gowarc.WarcType),
		Target:     header.Get(gowarc.WarcTargetURI),
		RecordID:   header.Get(gowarc.WarcRecordID),
		Block:      block,
	}
	if date, err := time.Parse(time.RFC3339, header.Get(gowarc.WarcDate)); err == nil {
		rec.Date = date
	}
	return rec, nil
}

// skipSeparators consumes blank lines left between uncompressed records
func (r *Reader) skipSeparators() error {
	for {
		b, err := r.br.Peek(1)
		if err != nil {
			return err
		}
		if b[0] != '\r' && b[0] != '\n' {
			return nil
		}
		r.br.Discard(1)
	}
}

// IsArchiveFile reports whether a file name looks like a WARC capture
func IsArchiveFile(name string) bool {
	return strings.HasSuffix(name, ".warc.gz") || strings.HasSuffix(name, ".warc")
}

// Walk visits every record of every capture file in dir, files in name order.
// A missing directory or an error returned by fn stops the walk; a corrupt
// file is logged and the walk continues with the next file.
func Walk(ctx context.Context, dir string, fn func(*Record) error) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("failed to read archive directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !IsArchiveFile(entry.Name()) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		logrus.Infof("Processing %s", entry.Name())
		if err := walkFile(ctx, filepath.Join(dir, entry.Name()), fn); err != nil {
			return err
		}
	}

	return nil
}

func walkFile(ctx context.Context, path string, fn func(*Record) error) error {
	file, err := os.Open(path)
	if err != nil {
		logrus.Errorf("Failed to open archive %s: %v", path, err)
		return nil
	}
	defer file.Close()

	reader, err := NewReader(file)
	if err != nil {
		logrus.Errorf("Failed to read archive %s: %v", path, err)
		return nil
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		rec, err := reader.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			logrus.Errorf("Corrupt archive %s, skipping remaining records: %v", path, err)
			return nil
		}

		if err := fn(rec); err != nil {
			return err
		}
	}
}
