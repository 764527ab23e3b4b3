// Package server is the bridge between the kiosk UI and the import
// machinery: a small JSON API, a server-sent event stream and a status
// page.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/jareddonovan/creative-coding-showcase/internal/config"
	"github.com/jareddonovan/creative-coding-showcase/internal/events"
	"github.com/jareddonovan/creative-coding-showcase/internal/metrics"
	"github.com/jareddonovan/creative-coding-showcase/internal/utils"
	"github.com/jareddonovan/creative-coding-showcase/pkg/catalog"
	"github.com/jareddonovan/creative-coding-showcase/pkg/ledger"
	"github.com/jareddonovan/creative-coding-showcase/pkg/polling"
	"github.com/jareddonovan/creative-coding-showcase/pkg/storage"
)

type Server struct {
	Opts    config.Options
	Ledger  *ledger.Ledger
	Catalog *catalog.Store
	Events  *events.Broadcaster

	// Poller is nil when sketch imports are disabled.
	Poller *polling.Poller
	// History is optional.
	History *storage.DB

	started time.Time
}

func New(opts config.Options, l *ledger.Ledger, c *catalog.Store, b *events.Broadcaster) *Server {
	return &Server{
		Opts:    opts,
		Ledger:  l,
		Catalog: c,
		Events:  b,
		started: time.Now(),
	}
}

// Router returns the HTTP handler with every route mounted.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(metrics.Middleware)

	r.Route("/api", func(r chi.Router) {
		r.Get("/opts", s.handleOpts)
		r.Get("/codes", s.handleListCodes)
		r.Post("/codes", s.handleNewCode)
		r.Post("/imports/run", s.handleRunImports)
		r.Get("/catalog", s.handleCatalog)
		r.Get("/status", s.handleStatus)
		r.Get("/history", s.handleHistory)
		r.Get("/events", s.handleEvents)
	})
	r.Get("/status", s.handleStatusPage)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", metrics.Handler())
	return r
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		// Open event streams end when ctx does.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	errc := make(chan error, 1)
	go func() {
		utils.Log.Infof("Starting server on %s", addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
