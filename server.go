package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/halcyon-imaging/bartbridge/internal/journal"
	"github.com/halcyon-imaging/bartbridge/internal/version"
)

// newAdminMux assembles the daemon's HTTP surface: journal debug routes plus
// health and version probes.
func newAdminMux(jnl *journal.Journal) *http.ServeMux {
	mux := http.NewServeMux()
	jnl.AttachAdminRoutes(mux)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, "ok")
	})
	mux.HandleFunc("/version", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, version.String())
	})
	return mux
}

// serveAdmin runs the admin HTTP server until the context ends, then shuts
// it down gracefully.
func serveAdmin(ctx context.Context, jnl *journal.Journal, listen string) error {
	mux := newAdminMux(jnl)
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log.Printf("got request %q", r.URL.Path)
		mux.ServeHTTP(w, r)
	})
	server := &http.Server{Addr: listen, Handler: h}

	errc := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errc <- err
		}
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	log.Println("shutting down HTTP server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
