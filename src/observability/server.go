package observability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsServer serves Prometheus metrics and a liveness probe on a separate port.
type MetricsServer struct {
	server *http.Server
	logger *slog.Logger
}

// HealthFunc reports whether the process is healthy. A nil HealthFunc is always healthy.
type HealthFunc func() error

func NewMetricsServer(port int, path string, provider *Provider, health HealthFunc, logger *slog.Logger) *MetricsServer {
	if logger == nil {
		logger = slog.Default()
	}

	router := mux.NewRouter()
	if provider.MetricsEnabled() {
		router.Handle(path, promhttp.Handler()).Methods(http.MethodGet)
	}
	router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if health != nil {
			if err := health(); err != nil {
				http.Error(w, err.Error(), http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)

	return &MetricsServer{
		server: &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           router,
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger.With("component", "metrics"),
	}
}

// Handler exposes the router, mainly for tests.
func (ms *MetricsServer) Handler() http.Handler {
	return ms.server.Handler
}

// Start serves until Shutdown. It returns nil after a graceful shutdown.
func (ms *MetricsServer) Start() error {
	ln, err := net.Listen("tcp", ms.server.Addr)
	if err != nil {
		return fmt.Errorf("metrics server listen: %w", err)
	}
	ms.logger.Info("Starting metrics server", "addr", ln.Addr().String())

	if err := ms.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (ms *MetricsServer) Shutdown(ctx context.Context) error {
	return ms.server.Shutdown(ctx)
}
