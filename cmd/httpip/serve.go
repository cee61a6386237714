package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/abczzz13/httpip"
	httpipprom "github.com/abczzz13/httpip/prometheus"
	"github.com/go-chi/chi/v5"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v3"
)

const shutdownTimeout = 5 * time.Second

func newServeCommand(logger *slog.Logger) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the resolved client address of each request over HTTP",
		Flags: []cli.Flag{
			newConfigFlag(),
			newTrustedFlag(),
			newPolicyFlag(),
			&cli.StringFlag{
				Name:    "addr",
				Value:   "127.0.0.1:8080",
				Usage:   "Listen address",
				Sources: cli.EnvVars("HTTPIP_ADDR"),
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return runServe(ctx, cmd, logger)
		},
	}
}

func runServe(ctx context.Context, cmd *cli.Command, logger *slog.Logger) error {
	opts, err := resolverOptions(cmd, logger)
	if err != nil {
		return err
	}

	registry := prom.NewRegistry()
	resolver, err := httpip.New(append(opts, httpipprom.WithRegisterer(registry))...)
	if err != nil {
		return err
	}

	listener, err := net.Listen("tcp", cmd.String("addr"))
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}

	srv := &http.Server{
		Handler:           newRouter(resolver, registry),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return serve(ctx, srv, listener, logger)
}

// serve runs srv on listener until ctx is done, then shuts it down.
func serve(ctx context.Context, srv *http.Server, listener net.Listener, logger *slog.Logger) error {
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(listener) }()

	logger.InfoContext(ctx, "server listening", "addr", listener.Addr().String())

	var runErr error
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.ErrorContext(ctx, "server shutdown failed", "error", err)
		}
		runErr = <-errCh
	case runErr = <-errCh:
	}

	if runErr != nil && !errors.Is(runErr, http.ErrServerClosed) {
		return fmt.Errorf("server failed: %w", runErr)
	}

	logger.InfoContext(ctx, "server stopped")
	return nil
}

type addrResponse struct {
	IP          string `json:"ip"`
	Source      string `json:"source"`
	TrustedHops int    `json:"trusted_hops"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// newRouter serves the resolution of each request on "/", a health check on
// "/healthz" and the resolver metrics gathered by registry on "/metrics".
func newRouter(resolver *httpip.Resolver, registry *prom.Registry) http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	r.Group(func(r chi.Router) {
		r.Use(httpip.Middleware(resolver))

		r.Get("/", func(w http.ResponseWriter, req *http.Request) {
			resolution, ok := httpip.ResolutionFromContext(req.Context())
			if !ok {
				writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: "client address could not be resolved"})
				return
			}

			writeJSON(w, http.StatusOK, addrResponse{
				IP:          resolution.Addr.String(),
				Source:      resolution.Source,
				TrustedHops: resolution.TrustedHops,
			})
		})
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
