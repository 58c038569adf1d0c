package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"marketpicture/internal/export"
	"marketpicture/internal/history"
	"marketpicture/internal/job"
	"marketpicture/internal/narrative"
	"marketpicture/internal/search"
	"marketpicture/internal/snapshot"
)

// Services bundles everything the HTTP layer serves.
type Services struct {
	History   *history.Service
	Jobs      *job.Service
	Snapshots *snapshot.Service
	Summaries *narrative.Service
	Search    *search.Service
	Exporter  *export.Exporter
}

type Server struct {
	srv *http.Server
}

// New creates a server. The baseCtx is used as the base context for all
// incoming requests (via BaseContext). Cancelling it causes in-flight
// provider calls to stop promptly during graceful shutdown.
func New(baseCtx context.Context, port int, svcs Services) *Server {
	return &Server{
		srv: &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: newMux(svcs),
			BaseContext: func(_ net.Listener) context.Context {
				return baseCtx
			},
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 60 * time.Second,
			IdleTimeout:  120 * time.Second,
		},
	}
}

func (s *Server) Start() error {
	slog.Info("starting server", "addr", s.srv.Addr)
	return s.srv.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("shutting down server")
	return s.srv.Shutdown(ctx)
}
