package rest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rocketscienceinc/tictactoe-hotseat/internal/view"
)

const shutdownTimeout = 5 * time.Second

type sessionUseCase interface {
	State(ctx context.Context, id string) (view.State, error)
	EndSession(ctx context.Context, id string) error
}

type Server struct {
	logger   *slog.Logger
	sessions sessionUseCase
	gatherer prometheus.Gatherer
}

func New(logger *slog.Logger, sessions sessionUseCase, gatherer prometheus.Gatherer) *Server {
	return &Server{
		logger:   logger.With("component", "rest"),
		sessions: sessions,
		gatherer: gatherer,
	}
}

// Handler - routes of the HTTP API.
func (that *Server) Handler() http.Handler {
	mux := httprouter.New()

	mux.PanicHandler = func(w http.ResponseWriter, r *http.Request, recovered any) {
		that.logger.Error("panic while serving request", "path", r.URL.Path, "error", recovered)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}

	mux.GET("/ping", pingHandler)
	mux.GET("/api/v1/sessions/:id", that.getSession)
	mux.DELETE("/api/v1/sessions/:id", that.deleteSession)
	mux.Handler(http.MethodGet, "/metrics", promhttp.HandlerFor(that.gatherer, promhttp.HandlerOpts{}))

	return mux
}

// Start - serves the HTTP API until ctx is done.
func (that *Server) Start(ctx context.Context, port string) error {
	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      that.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}

	return nil
}
