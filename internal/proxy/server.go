package proxy

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/muimsd/esri-go/internal/config"
)

// Router assembles the proxy's HTTP surface.
func Router(h *Handler, log zerolog.Logger, ready http.HandlerFunc) http.Handler {
	r := chi.NewRouter()
	r.Use(recoverer(log))
	r.Use(requestLogging(log))
	r.Use(cors())

	r.Get("/healthz", Liveness())
	r.Get("/readyz", ready)
	r.Handle("/metrics", promhttp.Handler())

	for _, endpoint := range []string{"query", "identify", "find", "export", "legend", "metadata"} {
		r.Get("/"+endpoint, h.Forward(endpoint))
	}
	return r
}

// Run serves handler on cfg.Addr until ctx is canceled.
func Run(ctx context.Context, cfg config.Config, log zerolog.Logger, handler http.Handler) error {
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.Addr).Msg("http listen")
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		return err
	}
}
