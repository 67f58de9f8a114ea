package httpserver

import (
	"net/http"
	"time"
)

// New builds the ledger's HTTP server. Timeouts are tight because every
// endpoint is a single unit of work against the substrate.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}
