package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/matheus3301/rentchat/internal/engine"
	"github.com/matheus3301/rentchat/internal/status"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// MetricsServer serves /metrics and /healthz over HTTP.
type MetricsServer struct {
	srv    *http.Server
	logger *zap.Logger
}

// NewMetricsServer creates the listener for addr. connectivity reports the
// channel states behind /healthz.
func NewMetricsServer(addr string, connectivity func(context.Context) engine.Connectivity, logger *zap.Logger) *MetricsServer {
	return &MetricsServer{
		srv: &http.Server{
			Addr:              addr,
			Handler:           NewRouter(connectivity),
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger,
	}
}

// NewRouter builds the metrics router.
func NewRouter(connectivity func(context.Context) engine.Connectivity) *chi.Mux {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		ctx, cancel := context.WithTimeout(req.Context(), 2*time.Second)
		defer cancel()
		c := connectivity(ctx)

		body := map[string]string{
			"status":    "ok",
			"messaging": string(c.Messaging.State),
		}
		if c.Presence.Channel != "" {
			body["presence"] = string(c.Presence.State)
		}
		code := http.StatusOK
		if c.Messaging.State != status.Open {
			body["status"] = "degraded"
			code = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(body)
	})
	return r
}

// Start blocks serving until Stop.
func (m *MetricsServer) Start() error {
	m.logger.Info("metrics server starting", zap.String("addr", m.srv.Addr))
	if err := m.srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (m *MetricsServer) Stop(ctx context.Context) error {
	return m.srv.Shutdown(ctx)
}
