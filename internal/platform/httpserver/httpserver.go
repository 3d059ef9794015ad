package httpserver

import (
	"fmt"
	"net"
	"net/http"
	"time"

	"docguard/internal/platform/config"
)

// New builds the agent API server. The API carries no authentication, so it
// only binds to loopback addresses.
//
// No WriteTimeout: opening a session streams the artifact download inside the
// request and is bounded by the route's own timeout instead.
func New(cfg config.Server, handler http.Handler) (*http.Server, error) {
	if err := RequireLoopback(cfg.Addr); err != nil {
		return nil, err
	}
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}, nil
}

// RequireLoopback rejects listen addresses reachable from other hosts.
func RequireLoopback(addr string) error {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("listen address %q: %w", addr, err)
	}
	if host == "localhost" {
		return nil
	}
	ip := net.ParseIP(host)
	if ip == nil || !ip.IsLoopback() {
		return fmt.Errorf("listen address %q is not loopback", addr)
	}
	return nil
}
