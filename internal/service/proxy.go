// Package service implements the request dispatcher: it maps inbound paths
// into origin space, issues the origin fetch, and branches on the response.
package service

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"

	"mirror-proxy-go/internal/client"
	"mirror-proxy-go/internal/config"
	"mirror-proxy-go/internal/metrics"
	"mirror-proxy-go/internal/model"
	"mirror-proxy-go/internal/policy"
	"mirror-proxy-go/internal/rebase"
	"mirror-proxy-go/internal/rewrite"
)

// ProxyService dispatches proxy requests. It holds no per-request state;
// a single instance serves all requests concurrently.
type ProxyService struct {
	client  *client.OriginClient
	cfg     *config.Config
	mapping *rebase.Mapping
	engine  *rewrite.Engine
	policy  *policy.Policy
	logger  *slog.Logger
	metrics *metrics.Metrics

	contentTypes []string // lowercased transformable media types
}

// NewProxyService creates a ProxyService. The metrics parameter is optional;
// pass nil to disable dispatch metrics.
func NewProxyService(c *client.OriginClient, cfg *config.Config, m *rebase.Mapping, e *rewrite.Engine, p *policy.Policy, logger *slog.Logger, mx *metrics.Metrics) *ProxyService {
	types := make([]string, 0, len(cfg.Rewrite.ContentTypes))
	for _, t := range cfg.Rewrite.ContentTypes {
		types = append(types, strings.ToLower(strings.TrimSpace(t)))
	}

	return &ProxyService{
		client:       c,
		cfg:          cfg,
		mapping:      m,
		engine:       e,
		policy:       p,
		logger:       logger.With("component", "proxy_service"),
		metrics:      mx,
		contentTypes: types,
	}
}

// Forward sends a ProxyRequest to the origin and returns the response to
// deliver: a rewritten redirect, a body-rewriting stream, or an untouched
// passthrough. The caller is responsible for closing the response body.
func (s *ProxyService) Forward(pr *model.ProxyRequest) (*model.ProxyResponse, error) {
	originURL := s.buildOriginURL(pr.Path, pr.RawQuery)
	header := s.policy.OutboundRequestHeaders(pr.Header)

	var body io.Reader
	if pr.Method != http.MethodGet && pr.Method != http.MethodHead {
		body = pr.Body
	}

	s.logger.Debug("forwarding request",
		"method", pr.Method,
		"path", pr.Path,
		"origin_url", originURL,
	)

	resp, err := s.client.DoStream(pr.Ctx, pr.Method, originURL, s.policy.OriginHost(), header, body)
	if err != nil {
		return nil, fmt.Errorf("forward to origin: %w", err)
	}

	var out *model.ProxyResponse
	switch {
	case resp.StatusCode >= 300 && resp.StatusCode < 400:
		out = s.handleRedirect(resp)
	case s.transformable(resp.Header.Get("Content-Type")):
		out = s.handleTransform(resp)
	default:
		out = s.handlePassthrough(resp)
	}

	if s.metrics != nil {
		s.metrics.DispatchBranches.WithLabelValues(string(out.Branch)).Inc()
	}
	return out, nil
}

// buildOriginURL maps the inbound path into origin space and appends the
// query verbatim.
func (s *ProxyService) buildOriginURL(path, rawQuery string) string {
	u := s.mapping.OriginBase() + s.mapping.MapInboundPath(path)
	if rawQuery != "" {
		u += "?" + rawQuery
	}
	return u
}

// handleRedirect rebuilds a redirect response: the status code plus the
// rebased Location header. All other origin headers and the body are
// dropped as uninteresting for a pure redirect.
func (s *ProxyService) handleRedirect(resp *client.OriginResponse) *model.ProxyResponse {
	_ = resp.Body.Close()

	h := s.policy.RedirectHeaders(resp.Header)
	if s.metrics != nil && h.Get("Location") != "" {
		s.metrics.RedirectsRewritten.Inc()
	}

	return &model.ProxyResponse{
		StatusCode: resp.StatusCode,
		Header:     h,
		Body:       io.NopCloser(strings.NewReader("")),
		Branch:     model.BranchRedirect,
	}
}

// handleTransform wraps the origin body in the rewriting stream. Bodies
// compressed by the origin are decompressed first; an encoding we cannot
// decode falls back to passthrough rather than corrupting the stream.
func (s *ProxyService) handleTransform(resp *client.OriginResponse) *model.ProxyResponse {
	decoded, ok := s.decodeBody(resp)
	if !ok {
		// decoded still carries the full body, including any bytes the
		// decode probe buffered.
		resp.Body = decoded
		return s.handlePassthrough(resp)
	}

	body := io.ReadCloser(rewrite.NewTransformer(decoded, s.engine, s.cfg.Rewrite.CarryBytes))
	if s.metrics != nil {
		body = &meteredBody{rc: body, add: s.metrics.TransformedBytes.Add}
	}

	h := resp.Header.Clone()
	// The rewritten length is unknown and the encoding has been undone.
	h.Del("Content-Length")
	h.Del("Content-Encoding")
	h.Set("Content-Type", policy.TransformedContentType(resp.Header.Get("Content-Type")))
	s.policy.ApplyResponseHeaders(h)

	return &model.ProxyResponse{
		StatusCode: resp.StatusCode,
		Header:     h,
		Body:       body,
		Branch:     model.BranchTransform,
	}
}

// handlePassthrough forwards the origin body byte-for-byte; only the
// uniform response header policy is applied.
func (s *ProxyService) handlePassthrough(resp *client.OriginResponse) *model.ProxyResponse {
	h := resp.Header.Clone()
	s.policy.ApplyResponseHeaders(h)

	return &model.ProxyResponse{
		StatusCode: resp.StatusCode,
		Header:     h,
		Body:       resp.Body,
		Branch:     model.BranchPassthrough,
	}
}

// transformable reports whether a Content-Type header value belongs to the
// configured transformable set. Charset parameters are ignored and matching
// is case-insensitive; a "type/*" entry matches the whole type family.
func (s *ProxyService) transformable(ct string) bool {
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	ct = strings.ToLower(strings.TrimSpace(ct))
	if ct == "" {
		return false
	}

	for _, t := range s.contentTypes {
		if wild, found := strings.CutSuffix(t, "/*"); found {
			if strings.HasPrefix(ct, wild+"/") {
				return true
			}
			continue
		}
		if ct == t {
			return true
		}
	}
	return false
}

// gzipProbeLen bounds the header bytes peeked when validating a gzip body.
// The fixed gzip header is 10 bytes; the rest covers optional name and
// extra fields.
const gzipProbeLen = 512

// decodeBody undoes the origin's content encoding so the rewrite engine
// sees plain text. When it reports false the returned reader still yields
// the complete, untouched body.
func (s *ProxyService) decodeBody(resp *client.OriginResponse) (io.ReadCloser, bool) {
	switch strings.ToLower(resp.Header.Get("Content-Encoding")) {
	case "", "identity":
		return resp.Body, true
	case "gzip":
		// Validate the header against peeked bytes first: a mislabeled
		// plain body must fall back to passthrough with nothing consumed.
		br := bufio.NewReaderSize(resp.Body, gzipProbeLen)
		peek, _ := br.Peek(gzipProbeLen)
		if _, err := gzip.NewReader(bytes.NewReader(peek)); err != nil {
			s.logger.Warn("gzip origin body", "err", err)
			return &decodedBody{Reader: br, closers: []io.Closer{resp.Body}}, false
		}
		zr, err := gzip.NewReader(br)
		if err != nil {
			s.logger.Warn("gzip origin body", "err", err)
			return &decodedBody{Reader: br, closers: []io.Closer{resp.Body}}, false
		}
		return &decodedBody{Reader: zr, closers: []io.Closer{zr, resp.Body}}, true
	case "zstd":
		zr, err := zstd.NewReader(resp.Body)
		if err != nil {
			s.logger.Warn("zstd origin body", "err", err)
			return resp.Body, false
		}
		rc := zr.IOReadCloser()
		return &decodedBody{Reader: rc, closers: []io.Closer{rc, resp.Body}}, true
	default:
		return resp.Body, false
	}
}

// decodedBody reads decompressed bytes and closes both the decompressor and
// the underlying origin body.
type decodedBody struct {
	io.Reader
	closers []io.Closer
}

func (d *decodedBody) Close() error {
	var first error
	for _, c := range d.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// meteredBody counts delivered bytes into a metrics callback.
type meteredBody struct {
	rc  io.ReadCloser
	add func(float64)
}

func (m *meteredBody) Read(p []byte) (int, error) {
	n, err := m.rc.Read(p)
	if n > 0 {
		m.add(float64(n))
	}
	return n, err
}

func (m *meteredBody) Close() error { return m.rc.Close() }
