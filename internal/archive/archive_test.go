package archive

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
)

func writeArchive(t *testing.T, path string, records ...*Record) {
	t.Helper()
	file, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer file.Close()

	w := NewWriter(file)
	for _, rec := range records {
		if err := w.WriteRecord(rec); err != nil {
			t.Fatalf("WriteRecord: %v", err)
		}
	}
}

func requestRecord(uri string) *Record {
	return &Record{
		RecordType: TypeRequest,
		Target:     uri,
		Block:      []byte("GET / HTTP/1.1\r\nHost: example.com\r\n\r\n"),
	}
}

// rawRecord is an uncompressed WARC record with the given Content-Length
func rawRecord(uri, contentLength, block string) string {
	return "WARC/1.0\r\n" +
		"WARC-Type: response\r\n" +
		"WARC-Record-ID: <urn:uuid:6f7c1c0e-6f0e-4a55-9a57-2bd8c1b4a001>\r\n" +
		"WARC-Date: 2024-03-09T07:30:00Z\r\n" +
		"WARC-Target-URI: <" + uri + ">\r\n" +
		"Content-Type: application/http;msgtype=response\r\n" +
		"Content-Length: " + contentLength + "\r\n" +
		"\r\n" + block + "\r\n\r\n"
}

func TestReaderReadsWrittenRecords(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	header := http.Header{"Content-Type": []string{"text/html"}}
	if err := w.WriteRecord(requestRecord("https://example.com/")); err != nil {
		t.Fatalf("WriteRecord: %v", err)
	}
	if err := w.WriteRecord(NewResponseRecord("https://example.com/", 200, header, []byte("<html>hi</html>"))); err != nil {
		t.Fatalf("WriteRecord: %v", err)
	}

	r, err := NewReader(&buf)
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}

	first, err := r.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if first.Type() != TypeRequest {
		t.Errorf("first type = %q", first.Type())
	}

	second, err := r.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if second.Type() != TypeResponse || second.TargetURI() != "https://example.com/" {
		t.Errorf("unexpected second record: %q %q", second.Type(), second.TargetURI())
	}
	if second.RecordID == "" || second.Date.IsZero() {
		t.Error("record id was not filled in")
	}

	payload, err := second.Payload()
	if err != nil {
		t.Fatalf("Payload: %v", err)
	}
	body, _ := io.ReadAll(payload)
	if string(body) != "<html>hi</html>" {
		t.Errorf("payload = %q", body)
	}

	if _, err := r.Next(); !errors.Is(err, io.EOF) {
		t.Errorf("expected io.EOF, got %v", err)
	}
}

func TestReaderUncompressed(t *testing.T) {
	block := "HTTP/1.1 200 OK\r\nContent-Length: 7\r\n\r\n<p>x</p"
	raw := rawRecord("http://plain.example/", strconv.Itoa(len(block)), block)

	r, err := NewReader(strings.NewReader(raw))
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	rec, err := r.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if rec.TargetURI() != "http://plain.example/" {
		t.Errorf("target uri = %q", rec.TargetURI())
	}
	if _, err := r.Next(); !errors.Is(err, io.EOF) {
		t.Errorf("expected io.EOF, got %v", err)
	}
}

func TestPayloadGzipContentEncoding(t *testing.T) {
	var body bytes.Buffer
	gz := gzip.NewWriter(&body)
	gz.Write([]byte("<a href=\"https://x.org\">x</a>"))
	gz.Close()

	block := "HTTP/1.1 200 OK\r\nContent-Encoding: gzip\r\nContent-Length: " +
		strconv.Itoa(body.Len()) + "\r\n\r\n" + body.String()

	rec := &Record{RecordType: TypeResponse, Block: []byte(block)}

	payload, err := rec.Payload()
	if err != nil {
		t.Fatalf("Payload: %v", err)
	}
	got, _ := io.ReadAll(payload)
	if !strings.Contains(string(got), "https://x.org") {
		t.Errorf("payload not decoded: %q", got)
	}
}

func TestPayloadRejectsNonResponse(t *testing.T) {
	if _, err := requestRecord("https://a.com").Payload(); err == nil {
		t.Error("expected error for request record payload")
	}
}

func TestReaderNotWARC(t *testing.T) {
	if _, err := NewReader(strings.NewReader("hello world\r\n")); !errors.Is(err, ErrNotWARC) {
		t.Errorf("expected ErrNotWARC, got %v", err)
	}
}

func TestReaderEmpty(t *testing.T) {
	r, err := NewReader(strings.NewReader(""))
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	if _, err := r.Next(); !errors.Is(err, io.EOF) {
		t.Errorf("expected io.EOF, got %v", err)
	}
}

func TestReaderRejectsHugeContentLength(t *testing.T) {
	r, err := NewReader(strings.NewReader(rawRecord("http://huge.example/", "9223372036854775807", "HTTP/1.1 200 OK\r\n\r\n")))
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	if _, err := r.Next(); err == nil {
		t.Fatal("expected error for oversized Content-Length")
	}
}

func TestReaderMaxRecordSize(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	body := []byte(strings.Repeat("x", 100))
	if err := w.WriteRecord(NewResponseRecord("https://big.example/", 200, nil, body)); err != nil {
		t.Fatalf("WriteRecord: %v", err)
	}

	r, err := NewReader(&buf)
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	r.SetMaxRecordSize(10)
	if _, err := r.Next(); !errors.Is(err, ErrRecordTooLarge) {
		t.Errorf("expected ErrRecordTooLarge, got %v", err)
	}
}

func TestWriterCanonicalHeaderNames(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	if err := w.WriteRecord(NewResponseRecord("https://example.com/", 200, nil, []byte("ok"))); err != nil {
		t.Fatalf("WriteRecord: %v", err)
	}

	gz, err := gzip.NewReader(&buf)
	if err != nil {
		t.Fatalf("gzip.NewReader: %v", err)
	}
	raw, err := io.ReadAll(gz)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}

	head, _, _ := strings.Cut(string(raw), "\r\n\r\n")
	for _, name := range []string{"WARC-Type:", "WARC-Record-ID:", "WARC-Date:", "WARC-Target-URI:", "Content-Length:"} {
		if !strings.Contains(head, name) {
			t.Errorf("header %q missing from %q", name, head)
		}
	}
	if strings.Contains(head, "Warc-") {
		t.Errorf("non canonical header names in %q", head)
	}
}

func TestWalk(t *testing.T) {
	dir := t.TempDir()
	writeArchive(t, filepath.Join(dir, "a.warc.gz"),
		NewResponseRecord("https://a.com/", 200, nil, []byte("a")))
	writeArchive(t, filepath.Join(dir, "b.warc.gz"),
		requestRecord("https://b.com/"),
		NewResponseRecord("https://b.com/", 200, nil, []byte("b")))
	os.WriteFile(filepath.Join(dir, "c.warc.gz"), []byte("garbage"), 0644)
	os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0644)

	var seen []string
	err := Walk(context.Background(), dir, func(rec *Record) error {
		seen = append(seen, rec.Type()+" "+rec.TargetURI())
		return nil
	})
	if err != nil {
		t.Fatalf("Walk: %v", err)
	}

	want := []string{
		"response https://a.com/",
		"request https://b.com/",
		"response https://b.com/",
	}
	if strings.Join(seen, "|") != strings.Join(want, "|") {
		t.Errorf("seen = %v, want %v", seen, want)
	}
}

func TestWalkSkipsOversizedRecord(t *testing.T) {
	dir := t.TempDir()
	huge := rawRecord("http://huge.example/", "9223372036854775807", "HTTP/1.1 200 OK\r\n\r\n")
	if err := os.WriteFile(filepath.Join(dir, "a.warc"), []byte(huge), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	writeArchive(t, filepath.Join(dir, "b.warc.gz"),
		NewResponseRecord("https://b.com/", 200, nil, []byte("b")))

	var seen []string
	err := Walk(context.Background(), dir, func(rec *Record) error {
		seen = append(seen, rec.TargetURI())
		return nil
	})
	if err != nil {
		t.Fatalf("Walk: %v", err)
	}
	if len(seen) != 1 || seen[0] != "https://b.com/" {
		t.Errorf("seen = %v, want only the record after the corrupt file", seen)
	}
}

func TestWalkMissingDirectory(t *testing.T) {
	err := Walk(context.Background(), filepath.Join(t.TempDir(), "missing"), func(*Record) error { return nil })
	if err == nil {
		t.Fatal("expected error for missing directory")
	}
}

func TestWalkStopsOnCallbackError(t *testing.T) {
	dir := t.TempDir()
	writeArchive(t, filepath.Join(dir, "a.warc.gz"),
		NewResponseRecord("https://a.com/", 200, nil, nil),
		NewResponseRecord("https://a.com/2", 200, nil, nil))

	boom := errors.New("boom")
	calls := 0
	err := Walk(context.Background(), dir, func(*Record) error {
		calls++
		return boom
	})
	if !errors.Is(err, boom) {
		t.Errorf("expected boom, got %v", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}
