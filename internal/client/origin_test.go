package client

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"mirror-proxy-go/internal/config"
)

func testConfig() *config.Config {
	return &config.Config{
		Upstream: config.UpstreamConfig{
			TimeoutSeconds:  5,
			IdleConnections: 4,
		},
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDoStream_OK(t *testing.T) {
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Host != "origin.example" {
			t.Errorf("Host = %q, want %q", r.Host, "origin.example")
		}
		if got := r.Header.Get("X-Custom"); got != "yes" {
			t.Errorf("X-Custom = %q, want %q", got, "yes")
		}
		w.Header().Set("Content-Type", "text/plain")
		_, _ = io.WriteString(w, "hello")
	}))
	defer origin.Close()

	c := NewOriginClient(testConfig(), testLogger(), nil)

	header := http.Header{"X-Custom": {"yes"}}
	resp, err := c.DoStream(context.Background(), http.MethodGet, origin.URL+"/path", "origin.example", header, nil)
	if err != nil {
		t.Fatalf("DoStream() error = %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("reading body: %v", err)
	}
	if string(body) != "hello" {
		t.Errorf("body = %q, want %q", body, "hello")
	}
}

func TestDoStream_RedirectNotFollowed(t *testing.T) {
	hits := 0
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		if r.URL.Path == "/start" {
			w.Header().Set("Location", "/elsewhere")
			w.WriteHeader(http.StatusFound)
			return
		}
		t.Errorf("unexpected request to %q", r.URL.Path)
	}))
	defer origin.Close()

	c := NewOriginClient(testConfig(), testLogger(), nil)

	resp, err := c.DoStream(context.Background(), http.MethodGet, origin.URL+"/start", "", nil, nil)
	if err != nil {
		t.Fatalf("DoStream() error = %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusFound {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusFound)
	}
	if got := resp.Header.Get("Location"); got != "/elsewhere" {
		t.Errorf("Location = %q, want %q", got, "/elsewhere")
	}
	if hits != 1 {
		t.Errorf("origin hits = %d, want 1", hits)
	}
}

func TestDoStream_RequestBody(t *testing.T) {
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if string(body) != "payload" {
			t.Errorf("origin body = %q, want %q", body, "payload")
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer origin.Close()

	c := NewOriginClient(testConfig(), testLogger(), nil)

	resp, err := c.DoStream(context.Background(), http.MethodPost, origin.URL+"/submit", "", nil, strings.NewReader("payload"))
	if err != nil {
		t.Fatalf("DoStream() error = %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusCreated)
	}
}

func TestDoStream_ContextCanceled(t *testing.T) {
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer origin.Close()

	c := NewOriginClient(testConfig(), testLogger(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.DoStream(ctx, http.MethodGet, origin.URL, "", nil, nil)
	if err == nil {
		t.Fatal("expected an error for a canceled context")
	}
	if !strings.Contains(err.Error(), "context canceled") {
		t.Errorf("err = %v, want context cancellation", err)
	}
}

func TestDoStream_Unreachable(t *testing.T) {
	c := NewOriginClient(testConfig(), testLogger(), nil)

	_, err := c.DoStream(context.Background(), http.MethodGet, "http://127.0.0.1:1/", "", nil, nil)
	if err == nil {
		t.Fatal("expected an error for an unreachable origin")
	}
}

func TestDoStream_BadURL(t *testing.T) {
	c := NewOriginClient(testConfig(), testLogger(), nil)

	_, err := c.DoStream(context.Background(), "bad method", "http://origin.example/", "", nil, nil)
	if err == nil {
		t.Fatal("expected an error for an invalid method")
	}
}
