// Package model defines shared types for the proxy.
package model

import (
	"context"
	"io"
	"net/http"
)

// Branch labels how the dispatcher handled a response.
type Branch string

// Dispatcher branches.
const (
	BranchRedirect    Branch = "redirect"
	BranchTransform   Branch = "transform"
	BranchPassthrough Branch = "passthrough"
)

// ProxyRequest represents a client request to be forwarded to the origin.
// RawQuery is carried verbatim so the origin sees the query exactly as the
// client sent it.
type ProxyRequest struct {
	Ctx      context.Context
	Method   string
	Path     string
	RawQuery string
	Header   http.Header
	Body     io.ReadCloser
}

// ProxyResponse represents the origin response to be streamed back.
// For transformed responses, Body is the rewriting stream, not the raw
// origin body.
type ProxyResponse struct {
	StatusCode int
	Header     http.Header
	Body       io.ReadCloser
	Branch     Branch
}
