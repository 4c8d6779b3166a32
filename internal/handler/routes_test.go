package handler

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestRegisterRoutes_Wiring(t *testing.T) {
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = io.WriteString(w, "<p>origin</p>")
	}))
	defer origin.Close()

	cfg := newTestConfig(origin.URL)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	proxy := NewProxyHandler(newTestService(t, cfg), logger)
	health := NewHealthHandler(cfg, "test")

	e := echo.New()
	RegisterRoutes(e, proxy, health)

	tests := []struct {
		name       string
		method     string
		path       string
		wantStatus int
	}{
		{"GET /healthz", http.MethodGet, "/healthz", http.StatusOK},
		{"GET /proxy/status", http.MethodGet, "/proxy/status", http.StatusOK},
		{"GET / proxied", http.MethodGet, "/", http.StatusOK},
		{"GET arbitrary path proxied", http.MethodGet, "/any/deep/path", http.StatusOK},
		{"POST arbitrary path proxied", http.MethodPost, "/form", http.StatusOK},
		{"DELETE proxied", http.MethodDelete, "/thing/1", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, http.NoBody)
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}
