package archive

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/nlnwa/gowarc"
)

// Record types that matter to the pipeline
const (
	TypeResponse = "response"
	TypeRequest  = "request"
	TypeWarcinfo = "warcinfo"
	TypeMetadata = "metadata"
)

var recordTypes = map[string]gowarc.RecordType{
	TypeResponse: gowarc.Response,
	TypeRequest:  gowarc.Request,
	TypeWarcinfo: gowarc.Warcinfo,
	TypeMetadata: gowarc.Metadata,
}

// Record is one WARC record held in memory. Block is the raw record block,
// for response records the full HTTP message.
type Record struct {
	RecordType string
	Target     string
	RecordID   string
	Date       time.Time
	Block      []byte
}

// NewResponseRecord builds a response record from a decoded HTTP exchange
func NewResponseRecord(targetURI string, statusCode int, header http.Header, body []byte) *Record {
	return &Record{
		RecordType: TypeResponse,
		Target:     targetURI,
		Block:      httpResponseBlock(statusCode, header, body),
	}
}

// Type returns the WARC-Type of the record
func (r *Record) Type() string {
	return r.RecordType
}

// TargetURI returns the WARC-Target-URI of the record
func (r *Record) TargetURI() string {
	return strings.Trim(r.Target, "<>")
}

// Payload returns the HTTP entity body of a response record with transfer
// and content encodings removed
func (r *Record) Payload() (io.Reader, error) {
	if r.Type() != TypeResponse {
		return nil, fmt.Errorf("record type %q has no http payload", r.Type())
	}

	resp, err := http.ReadResponse(bufio.NewReader(bytes.NewReader(r.Block)), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to read http response: %w", err)
	}

	switch strings.ToLower(resp.Header.Get("Content-Encoding")) {
	case "gzip", "x-gzip":
		zr, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to open gzip payload: %w", err)
		}
		return zr, nil
	case "deflate":
		zr, err := zlib.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to open deflate payload: %w", err)
		}
		return zr, nil
	}

	return resp.Body, nil
}

// contentType is the block media type written for rec
func (r *Record) contentType() string {
	switch r.RecordType {
	case TypeResponse:
		return "application/http;msgtype=response"
	case TypeRequest:
		return "application/http;msgtype=request"
	case TypeWarcinfo:
		return "application/warc-fields"
	}
	return "application/octet-stream"
}

// httpResponseBlock serializes a status line, headers and body as stored in a
// response record. Encoding headers are dropped since the body is stored decoded.
func httpResponseBlock(statusCode int, header http.Header, body []byte) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "HTTP/1.1 %d %s\r\n", statusCode, http.StatusText(statusCode))

	h := header.Clone()
	if h == nil {
		h = make(http.Header)
	}
	h.Del("Content-Encoding")
	h.Del("Transfer-Encoding")
	h.Set("Content-Length", fmt.Sprint(len(body)))
	_ = h.Write(&buf)

	buf.WriteString("\r\n")
	buf.Write(body)
	return buf.Bytes()
}
