// Package server exposes the daemon's admin HTTP surface: liveness,
// metrics, redacted diagnostics, and a few operational endpoints.
package server

import (
	"context"
	"net/http"
	"time"
)

// HTTPServer serves health, metrics, and the admin endpoints.
type HTTPServer struct {
	Server *http.Server
}

func NewHTTPServer(addr string, handler http.Handler) *HTTPServer {
	return &HTTPServer{Server: &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}}
}

func (s *HTTPServer) ListenAndServe() error {
	return s.Server.ListenAndServe()
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	return s.Server.Shutdown(ctx)
}
