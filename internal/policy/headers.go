// Package policy builds outbound request headers and rewrites inbound
// response headers so neither direction leaks the origin behind the proxy.
package policy

import (
	"net/http"
	"strings"

	"mirror-proxy-go/internal/rebase"
)

// ProxyMarkerHeader identifies responses that passed through the proxy.
const ProxyMarkerHeader = "X-Proxied-By"

// ProxyMarkerValue is the fixed marker value set on every response.
const ProxyMarkerValue = "mirror-proxy"

// deniedRequestHeaders are never forwarded to the origin: hop-by-hop
// headers, client-identifying forwarding headers, and headers the transport
// recomputes itself.
var deniedRequestHeaders = []string{
	"Host",
	"X-Forwarded-For",
	"X-Forwarded-Host",
	"X-Forwarded-Proto",
	"X-Real-Ip",
	"Cf-Connecting-Ip",
	"Content-Length",
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Trailers",
	"Transfer-Encoding",
	"Upgrade",
}

// cspHeaders are removed from every response: the origin's policy references
// the origin host and would block the rewritten content.
var cspHeaders = []string{
	"Content-Security-Policy",
	"Content-Security-Policy-Report-Only",
	"X-Content-Security-Policy",
}

// Policy rewrites headers for one domain mapping. Extra denied request
// headers from configuration are merged with the built-in deny list.
type Policy struct {
	mapping *rebase.Mapping
	denied  map[string]bool
}

// New creates a Policy. extraDenied lists additional request header names to
// strip before forwarding; names are matched case-insensitively.
func New(m *rebase.Mapping, extraDenied []string) *Policy {
	denied := make(map[string]bool, len(deniedRequestHeaders)+len(extraDenied))
	for _, h := range deniedRequestHeaders {
		denied[http.CanonicalHeaderKey(h)] = true
	}
	for _, h := range extraDenied {
		denied[http.CanonicalHeaderKey(h)] = true
	}
	return &Policy{mapping: m, denied: denied}
}

// OutboundRequestHeaders copies src minus the deny list. The Host header is
// handled by the caller via http.Request.Host, which this package exposes
// through OriginHost.
func (p *Policy) OutboundRequestHeaders(src http.Header) http.Header {
	dst := make(http.Header, len(src))
	for key, vals := range src {
		if p.denied[http.CanonicalHeaderKey(key)] {
			continue
		}
		dst[http.CanonicalHeaderKey(key)] = vals
	}
	return dst
}

// OriginHost returns the Host header value for outbound requests.
func (p *Policy) OriginHost() string {
	return p.mapping.Host
}

// ApplyResponseHeaders mutates h in place for delivery to the client:
// CSP headers are removed, the proxy marker is set, and CORS headers are
// pinned to the public origin.
func (p *Policy) ApplyResponseHeaders(h http.Header) {
	for _, key := range cspHeaders {
		h.Del(key)
	}
	h.Set(ProxyMarkerHeader, ProxyMarkerValue)
	h.Set("Access-Control-Allow-Origin", p.mapping.PublicOrigin)
	h.Set("Access-Control-Allow-Credentials", "true")
}

// RedirectHeaders builds the header set for a redirect response: only the
// rebased Location header survives, plus the uniform response policy. A
// redirect without a Location header yields just the policy headers, and the
// caller passes the status through untouched.
func (p *Policy) RedirectHeaders(src http.Header) http.Header {
	dst := make(http.Header, 4)
	if loc := src.Get("Location"); loc != "" {
		dst.Set("Location", p.mapping.Rebase(loc))
	}
	p.ApplyResponseHeaders(dst)
	return dst
}

// TransformedContentType normalizes a transformable content type to carry an
// explicit UTF-8 charset, e.g. "text/html" → "text/html; charset=utf-8".
func TransformedContentType(ct string) string {
	mediaType := ct
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		mediaType = ct[:i]
	}
	return strings.TrimSpace(mediaType) + "; charset=utf-8"
}
