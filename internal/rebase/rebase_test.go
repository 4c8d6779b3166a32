package rebase

import (
	"strings"
	"testing"
)

func testMapping(t *testing.T) *Mapping {
	t.Helper()
	m, err := NewMapping("https://example.pub", "https://origin.example/base")
	if err != nil {
		t.Fatalf("NewMapping: %v", err)
	}
	return m
}

func TestNewMapping(t *testing.T) {
	tests := []struct {
		name         string
		publicOrigin string
		originURL    string
		wantHost     string
		wantBase     string
		wantPublic   string
		wantErr      bool
	}{
		{
			name:         "with base path",
			publicOrigin: "https://example.pub",
			originURL:    "https://origin.example/base",
			wantHost:     "origin.example",
			wantBase:     "/base",
			wantPublic:   "https://example.pub",
		},
		{
			name:         "trailing slashes normalized",
			publicOrigin: "https://example.pub/",
			originURL:    "https://origin.example/base/",
			wantHost:     "origin.example",
			wantBase:     "/base",
			wantPublic:   "https://example.pub",
		},
		{
			name:         "root origin has empty base",
			publicOrigin: "https://example.pub",
			originURL:    "https://origin.example/",
			wantHost:     "origin.example",
			wantBase:     "",
			wantPublic:   "https://example.pub",
		},
		{
			name:         "origin with port",
			publicOrigin: "http://localhost:9000",
			originURL:    "https://origin.example:8443/base",
			wantHost:     "origin.example:8443",
			wantBase:     "/base",
			wantPublic:   "http://localhost:9000",
		},
		{
			name:         "relative origin rejected",
			publicOrigin: "https://example.pub",
			originURL:    "/base",
			wantErr:      true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := NewMapping(tt.publicOrigin, tt.originURL)
			if tt.wantErr {
				if err == nil {
					t.Fatal("NewMapping() expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("NewMapping() error = %v", err)
			}
			if m.Host != tt.wantHost {
				t.Errorf("Host = %q, want %q", m.Host, tt.wantHost)
			}
			if m.BasePath != tt.wantBase {
				t.Errorf("BasePath = %q, want %q", m.BasePath, tt.wantBase)
			}
			if m.PublicOrigin != tt.wantPublic {
				t.Errorf("PublicOrigin = %q, want %q", m.PublicOrigin, tt.wantPublic)
			}
		})
	}
}

func TestRebase(t *testing.T) {
	m := testMapping(t)

	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "absolute under base path",
			in:   "https://origin.example/base/page",
			want: "https://example.pub/page",
		},
		{
			name: "absolute outside base path",
			in:   "https://origin.example/asset.png",
			want: "https://example.pub/base/asset.png",
		},
		{
			name: "protocol-relative under base with query",
			in:   "//origin.example/base/x?y=1",
			want: "https://example.pub/x?y=1",
		},
		{
			name: "bare base path maps to public root",
			in:   "https://origin.example/base",
			want: "https://example.pub/",
		},
		{
			name: "query preserved verbatim",
			in:   "https://origin.example/base/search?q=a%20b&x=1",
			want: "https://example.pub/search?q=a%20b&x=1",
		},
		{
			name: "fragment preserved",
			in:   "https://origin.example/base/page#section-2",
			want: "https://example.pub/page#section-2",
		},
		{
			name: "query and fragment together",
			in:   "https://origin.example/base/p?a=1#frag",
			want: "https://example.pub/p?a=1#frag",
		},
		{
			name: "host compared case-insensitively",
			in:   "https://ORIGIN.EXAMPLE/base/page",
			want: "https://example.pub/page",
		},
		{
			name: "relative path resolved against origin",
			in:   "/base/page",
			want: "https://example.pub/page",
		},
		{
			name: "relative path outside base prefixed",
			in:   "/shared/logo.svg",
			want: "https://example.pub/base/shared/logo.svg",
		},
		{
			name: "third-party host untouched",
			in:   "https://other.example/base/page",
			want: "https://other.example/base/page",
		},
		{
			name: "protocol-relative third-party untouched",
			in:   "//cdn.example/lib.js",
			want: "//cdn.example/lib.js",
		},
		{
			name: "unparseable input untouched",
			in:   "https://origin.example/%zz",
			want: "https://origin.example/%zz",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := m.Rebase(tt.in)
			if got != tt.want {
				t.Errorf("Rebase(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

// Rebased origin URLs must never leak the origin host, and re-resolving the
// public path back through the base path must reconstruct the origin path.
func TestRebase_RoundTrip(t *testing.T) {
	m := testMapping(t)

	paths := []string{
		"/base/page",
		"/base/a/b/c.html",
		"/base/x?y=1&z=2",
	}

	for _, p := range paths {
		t.Run(p, func(t *testing.T) {
			in := "https://origin.example" + p
			out := m.Rebase(in)

			if strings.Contains(out, "origin.example") {
				t.Fatalf("Rebase(%q) = %q still contains the origin host", in, out)
			}
			if !strings.HasPrefix(out, m.PublicOrigin) {
				t.Fatalf("Rebase(%q) = %q not under public origin", in, out)
			}

			reconstructed := m.BasePath + strings.TrimPrefix(out, m.PublicOrigin)
			if reconstructed != p {
				t.Errorf("round trip of %q: got %q, want %q", in, reconstructed, p)
			}
		})
	}
}

func TestRebase_RootBasePath(t *testing.T) {
	m, err := NewMapping("https://example.pub", "https://origin.example")
	if err != nil {
		t.Fatalf("NewMapping: %v", err)
	}

	tests := []struct {
		in   string
		want string
	}{
		{"https://origin.example/page", "https://example.pub/page"},
		{"https://origin.example", "https://example.pub/"},
		{"//origin.example/x", "https://example.pub/x"},
		{"https://other.example/page", "https://other.example/page"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := m.Rebase(tt.in)
			if got != tt.want {
				t.Errorf("Rebase(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestMapInboundPath(t *testing.T) {
	m := testMapping(t)

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain path prefixed", "/page", "/base/page"},
		{"root prefixed", "/", "/base/"},
		{"already prefixed is idempotent", "/base/page", "/base/page"},
		{"bare base path unchanged", "/base", "/base"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := m.MapInboundPath(tt.in)
			if got != tt.want {
				t.Errorf("MapInboundPath(%q) = %q, want %q", tt.in, got, tt.want)
			}

			// Mapping the result again must not double-prefix.
			if again := m.MapInboundPath(got); again != got {
				t.Errorf("MapInboundPath not idempotent: %q -> %q", got, again)
			}
		})
	}
}
