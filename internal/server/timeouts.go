// internal/server/timeouts.go
//
// http.Server with production timeouts.
//
//   • ReadHeaderTimeout  slow-loris headers (5 s)
//   • ReadTimeout        whole request (10 s)
//   • IdleTimeout        keep-alive clients (60 s)
//
// WriteTimeout is longer than usual because POST /runs waits for a whole
// poll pass.
package server

import (
	"net/http"
	"time"
)

// WriteTimeout caps one response, including a synchronous run trigger.
const WriteTimeout = 5 * time.Minute

// New constructs an *http.Server with the defaults above.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      WriteTimeout,
		IdleTimeout:       60 * time.Second,
	}
}
