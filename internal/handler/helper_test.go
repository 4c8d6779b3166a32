package handler

import (
	"io"
	"log/slog"
	"testing"

	"mirror-proxy-go/internal/client"
	"mirror-proxy-go/internal/config"
	"mirror-proxy-go/internal/policy"
	"mirror-proxy-go/internal/rebase"
	"mirror-proxy-go/internal/rewrite"
	"mirror-proxy-go/internal/service"
)

// newTestConfig builds a config pointing at an httptest origin, with /base
// as the origin base path.
func newTestConfig(originURL string) *config.Config {
	return &config.Config{
		Upstream: config.UpstreamConfig{
			BaseURL:         originURL + "/base",
			TimeoutSeconds:  10,
			IdleConnections: 10,
		},
		Proxy: config.ProxyConfig{
			PublicOrigin: "https://example.pub",
		},
		Rewrite: config.RewriteConfig{
			CarryBytes:   1024,
			ContentTypes: []string{"text/*", "application/json"},
		},
	}
}

func newTestService(t *testing.T, cfg *config.Config) *service.ProxyService {
	t.Helper()

	m, err := rebase.NewMapping(cfg.Proxy.PublicOrigin, cfg.Upstream.BaseURL)
	if err != nil {
		t.Fatalf("NewMapping: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	oc := client.NewOriginClient(cfg, logger, nil)
	return service.NewProxyService(oc, cfg, m, rewrite.NewEngine(m), policy.New(m, cfg.Proxy.DeniedRequestHeaders), logger, nil)
}
