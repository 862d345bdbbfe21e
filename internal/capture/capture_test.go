package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/alvmarrod/linkscope/internal/archive"
)

func htmlHandler(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, body)
	}
}

func readCapture(t *testing.T, dir string) map[string]string {
	t.Helper()
	pages := make(map[string]string)
	err := archive.Walk(context.Background(), dir, func(rec *archive.Record) error {
		payload, err := rec.Payload()
		if err != nil {
			return err
		}
		body, err := io.ReadAll(payload)
		if err != nil {
			return err
		}
		pages[rec.TargetURI()] = string(body)
		return nil
	})
	if err != nil {
		t.Fatalf("Walk: %v", err)
	}
	return pages
}

func TestCaptureSeedsOnly(t *testing.T) {
	external := httptest.NewServer(htmlHandler(`<html><body>external</body></html>`))
	defer external.Close()

	mux := http.NewServeMux()
	mux.Handle("/", htmlHandler(`<html><body><a href="`+external.URL+`/page">x</a><a href="/local">y</a></body></html>`))
	mux.Handle("/broken", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	seed := httptest.NewServer(mux)
	defer seed.Close()

	dir := t.TempDir()
	c := New(Options{Dir: dir, Workers: 2, RequestTimeout: 5 * time.Second, UserAgent: "linkscope-test"})

	stats, err := c.Run(context.Background(), []string{seed.URL + "/", seed.URL + "/broken"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.Pages != 1 || stats.Failed != 1 || stats.Path == "" {
		t.Errorf("unexpected stats %+v", stats)
	}

	pages := readCapture(t, dir)
	if len(pages) != 1 || !strings.Contains(pages[seed.URL+"/"], external.URL) {
		t.Errorf("unexpected capture %v", pages)
	}
}

func TestCaptureFollowsExternalLinks(t *testing.T) {
	external := httptest.NewServer(htmlHandler(`<html><body>external</body></html>`))
	defer external.Close()

	seed := httptest.NewServer(htmlHandler(`<html><body>
		<a href="` + external.URL + `/page">x</a>
		<a href="/local">same host</a>
		<a href="mailto:someone@example.com">mail</a>
	</body></html>`))
	defer seed.Close()

	dir := t.TempDir()
	c := New(Options{Dir: dir, Workers: 2, MaxDepth: 2, MaxHostsPerRoot: 5})

	stats, err := c.Run(context.Background(), []string{seed.URL + "/"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.Pages != 2 {
		t.Errorf("Pages = %d, want 2", stats.Pages)
	}

	var uris []string
	for uri := range readCapture(t, dir) {
		uris = append(uris, uri)
	}
	sort.Strings(uris)
	want := []string{seed.URL + "/", external.URL + "/page"}
	sort.Strings(want)
	if strings.Join(uris, ",") != strings.Join(want, ",") {
		t.Errorf("captured %v, want %v", uris, want)
	}
}

func TestCaptureCancelled(t *testing.T) {
	seed := httptest.NewServer(htmlHandler(`<html></html>`))
	defer seed.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	dir := t.TempDir()
	stats, err := New(Options{Dir: dir}).Run(ctx, []string{seed.URL})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if stats.Pages != 0 || stats.Path != "" {
		t.Errorf("unexpected stats %+v", stats)
	}
}

func TestHostLimiter(t *testing.T) {
	hl := NewHostLimiter(2)
	if !hl.Add("example.com", "a.example.com") || !hl.Add("example.com", "b.example.com") {
		t.Fatal("first two hosts must be accepted")
	}
	if !hl.Add("example.com", "a.example.com") {
		t.Error("known host must be accepted again")
	}
	if hl.Add("example.com", "c.example.com") {
		t.Error("third host must be rejected")
	}
	if hl.Count("example.com") != 2 {
		t.Errorf("Count = %d", hl.Count("example.com"))
	}

	unlimited := NewHostLimiter(0)
	for i := 0; i < 10; i++ {
		if !unlimited.Add("example.com", fmt.Sprintf("h%d.example.com", i)) {
			t.Fatal("limit 0 must not reject hosts")
		}
	}
}

func TestRootDomain(t *testing.T) {
	tests := map[string]string{
		"blog.example.com": "example.com",
		"example.com":      "example.com",
		"localhost":        "localhost",
	}
	for in, want := range tests {
		if got := RootDomain(in); got != want {
			t.Errorf("RootDomain(%q) = %q, want %q", in, got, want)
		}
	}
}
