// Package rebase maps URLs between the origin's address space and the
// public address space the proxy presents to clients.
package rebase

import (
	"fmt"
	"net/url"
	"strings"
)

// Mapping describes how one origin site is exposed under a public domain.
// It is built once at startup and read-only afterwards, so a single value
// can be shared across concurrent requests without locking.
type Mapping struct {
	// PublicOrigin is the externally visible origin, e.g. "https://example.pub".
	// Never carries a trailing slash.
	PublicOrigin string

	// Scheme and Host identify the origin server.
	Scheme string
	Host   string

	// BasePath is the path prefix under which the origin serves the mirrored
	// content. Normalized to a leading slash with no trailing slash; empty
	// when the origin serves from its root.
	BasePath string
}

// NewMapping builds a Mapping from the public origin and the full origin
// base URL (scheme + host + base path), e.g.
// NewMapping("https://example.pub", "https://origin.example/base").
func NewMapping(publicOrigin, originURL string) (*Mapping, error) {
	u, err := url.Parse(originURL)
	if err != nil {
		return nil, fmt.Errorf("parse origin URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("origin URL %q must be absolute", originURL)
	}

	base := strings.TrimSuffix(u.EscapedPath(), "/")
	if base != "" && !strings.HasPrefix(base, "/") {
		base = "/" + base
	}

	return &Mapping{
		PublicOrigin: strings.TrimSuffix(publicOrigin, "/"),
		Scheme:       u.Scheme,
		Host:         u.Host,
		BasePath:     base,
	}, nil
}

// Rebase rewrites an origin-space URL into public space. The input may be
// absolute, protocol-relative, or relative to the origin. URLs pointing at
// other hosts and strings that fail to parse are returned unchanged; Rebase
// never fails. Query string and fragment are preserved verbatim.
func (m *Mapping) Rebase(raw string) string {
	s := raw
	if strings.HasPrefix(s, "//") {
		s = "https:" + s
	}

	u, err := url.Parse(s)
	if err != nil {
		return raw
	}
	if u.Host == "" {
		u = (&url.URL{Scheme: m.Scheme, Host: m.Host}).ResolveReference(u)
	}
	if !strings.EqualFold(u.Host, m.Host) {
		return raw
	}

	p := u.EscapedPath()
	if strings.HasPrefix(p, m.BasePath) {
		// Under the base path: strip the prefix so the origin's layout
		// never shows through. A bare base path maps to the public root.
		p = strings.TrimPrefix(p, m.BasePath)
		if p == "" {
			p = "/"
		}
	} else {
		// On the origin host but outside the base path (shared assets);
		// route it back through the proxy by prefixing the base path.
		p = m.BasePath + p
	}

	var b strings.Builder
	b.WriteString(m.PublicOrigin)
	b.WriteString(p)
	if u.RawQuery != "" {
		b.WriteByte('?')
		b.WriteString(u.RawQuery)
	}
	if f := u.EscapedFragment(); f != "" {
		b.WriteByte('#')
		b.WriteString(f)
	}
	return b.String()
}

// MapInboundPath converts a public-space request path into the origin-space
// path by prefixing the base path. Paths that already carry the prefix are
// returned as-is, so the mapping is idempotent and never double-prefixes.
func (m *Mapping) MapInboundPath(p string) string {
	if m.BasePath == "" || strings.HasPrefix(p, m.BasePath) {
		return p
	}
	return m.BasePath + p
}

// OriginBase returns "scheme://host" for the origin, the base against which
// outbound request URLs are built.
func (m *Mapping) OriginBase() string {
	return m.Scheme + "://" + m.Host
}
