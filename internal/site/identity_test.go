package site

import (
	"errors"
	"net/url"
	"testing"
)

func TestSplit(t *testing.T) {
	tests := []struct {
		name       string
		url        string
		primary    string
		subsection string
	}{
		{"root", "https://a.com", "https://a.com", ""},
		{"root slash", "https://a.com/", "https://a.com", "/"},
		{"path", "https://a.com/x/y", "https://a.com", "/x/y"},
		{"query dropped", "http://b.org/p?q=1#frag", "http://b.org", "/p"},
		{"port kept", "http://b.org:8080/p", "http://b.org:8080", "/p"},
		{"userinfo dropped", "https://user:pw@c.net/p", "https://c.net", "/p"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			primary, sub, err := Split(tt.url)
			if err != nil {
				t.Fatalf("Split(%q): %v", tt.url, err)
			}
			if primary != tt.primary {
				t.Errorf("primary = %q, want %q", primary, tt.primary)
			}
			if sub != tt.subsection {
				t.Errorf("subsection = %q, want %q", sub, tt.subsection)
			}

			p, _ := PrimaryLink(tt.url)
			s, _ := Subsection(tt.url)
			if p != primary || s != sub {
				t.Errorf("PrimaryLink/Subsection disagree with Split: %q %q", p, s)
			}
		})
	}
}

func TestPrimaryLinkPlusSubsectionReconstructsPath(t *testing.T) {
	urls := []string{
		"https://example.com/a/b/c",
		"http://example.com:81/",
		"https://example.com",
		"https://sub.example.co.uk/news/2024/story.html?x=1",
	}
	for _, raw := range urls {
		primary, sub, err := Split(raw)
		if err != nil {
			t.Fatalf("Split(%q): %v", raw, err)
		}
		u, _ := url.Parse(raw)
		want := u.Scheme + "://" + u.Host + u.Path
		if primary+sub != want {
			t.Errorf("%q: reconstructed %q, want %q", raw, primary+sub, want)
		}
	}
}

func TestIsHomepage(t *testing.T) {
	tests := []struct {
		url  string
		want bool
	}{
		{"https://a.com", true},
		{"https://a.com/", true},
		{"https://a.com/?ref=x", true},
		{"https://a.com/x", false},
		{"https://a.com//", false},
		{"https://a.com/index.html", false},
		{"http://[::1", false},
	}
	for _, tt := range tests {
		if got := IsHomepage(tt.url); got != tt.want {
			t.Errorf("IsHomepage(%q) = %v, want %v", tt.url, got, tt.want)
		}
	}
}

func TestInvalidURL(t *testing.T) {
	if _, err := PrimaryLink("http://[::1"); !errors.Is(err, ErrInvalidURL) {
		t.Errorf("expected ErrInvalidURL, got %v", err)
	}
	if _, err := Subsection("%zz"); !errors.Is(err, ErrInvalidURL) {
		t.Errorf("expected ErrInvalidURL, got %v", err)
	}
}

func TestHost(t *testing.T) {
	host, err := Host("https://WWW.Example.com:443/path")
	if err != nil {
		t.Fatalf("Host: %v", err)
	}
	if host != "www.example.com" {
		t.Errorf("host = %q", host)
	}
	if _, err := Host("mailto:someone@example.com"); !errors.Is(err, ErrInvalidURL) {
		t.Errorf("expected ErrInvalidURL for host-less url, got %v", err)
	}
}
