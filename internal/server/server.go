package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"botrelay/internal/domain"
	"botrelay/internal/metrics"
	"botrelay/internal/relay"
)

// maxBodySize caps inbound webhook payloads. Platform updates are small;
// anything larger is junk.
const maxBodySize = 1 << 20

// Config configures the webhook HTTP server.
type Config struct {
	Host            string
	Port            int
	MetricsEnabled  bool
	MetricsEndpoint string
	Logger          *slog.Logger
}

// Server accepts tenant-scoped webhook calls and hands them to the relay.
type Server struct {
	addr            string
	metricsEnabled  bool
	metricsEndpoint string
	orch            *relay.Orchestrator
	dispatcher      domain.Dispatcher
	logger          *slog.Logger
	server          *http.Server
}

// New creates the webhook server. The orchestrator does the actual work;
// the server's only contract is the ack.
func New(cfg Config, orch *relay.Orchestrator, dispatcher domain.Dispatcher) *Server {
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.MetricsEndpoint == "" {
		cfg.MetricsEndpoint = "/metrics"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Server{
		addr:            fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		metricsEnabled:  cfg.MetricsEnabled,
		metricsEndpoint: cfg.MetricsEndpoint,
		orch:            orch,
		dispatcher:      dispatcher,
		logger:          cfg.Logger,
	}
}

// Handler builds the route table. Exposed for tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /webhook/{platform}/{schoolId}", s.handleUpdate)
	mux.HandleFunc("GET /webhook/{platform}/{schoolId}", s.handleStatus)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	if s.metricsEnabled {
		mux.Handle("GET "+s.metricsEndpoint, metrics.Collector.Handler())
	}
	return s.recover(mux)
}

// Run serves until ctx is cancelled, then drains gracefully.
func (s *Server) Run(ctx context.Context) error {
	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	s.logger.Info("webhook server starting", "addr", s.addr)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("webhook server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return fmt.Errorf("webhook server: %w", err)
	}
}

// handleUpdate is the inbound hot path. Whatever happens downstream the
// platform gets 200 {"ok":true}; anything else invites a retry storm.
func (s *Server) handleUpdate(rw http.ResponseWriter, r *http.Request) {
	schoolID := r.PathValue("schoolId")
	platform, known := domain.ParsePlatform(r.PathValue("platform"))
	if !known {
		s.logger.Warn("webhook for unknown platform", "platform", r.PathValue("platform"), "school_id", schoolID)
		s.ack(rw)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	r.Body.Close()
	if err != nil {
		s.logger.Warn("webhook body read failed", "platform", platform, "school_id", schoolID, "error", err)
		s.ack(rw)
		return
	}

	s.logger.Debug("webhook received",
		"platform", platform,
		"school_id", schoolID,
		"body_len", len(body),
	)

	// Accept decodes synchronously and queues the rest; the ack does not
	// wait for the AI round trip. Queued work runs under the relay's
	// lifecycle context, not this request's.
	s.orch.Accept(r.Context(), platform, schoolID, body)
	s.ack(rw)
}

func (s *Server) handleStatus(rw http.ResponseWriter, r *http.Request) {
	writeJSON(rw, http.StatusOK, map[string]any{
		"status":    "ok",
		"service":   "botrelay",
		"school_id": r.PathValue("schoolId"),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleHealth(rw http.ResponseWriter, r *http.Request) {
	status := "ok"
	code := http.StatusOK
	var aiErr string
	if s.dispatcher != nil {
		if err := s.dispatcher.Healthy(r.Context()); err != nil {
			status = "degraded"
			code = http.StatusServiceUnavailable
			aiErr = err.Error()
		}
	}
	payload := map[string]any{
		"status":    status,
		"service":   "botrelay",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if aiErr != "" {
		payload["ai"] = aiErr
	}
	writeJSON(rw, code, payload)
}

func (s *Server) ack(rw http.ResponseWriter) {
	writeJSON(rw, http.StatusOK, map[string]any{"ok": true})
}

// recover keeps a panicking handler from taking the ack contract with it.
func (s *Server) recover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("handler panic", "path", r.URL.Path, "panic", rec)
				writeJSON(rw, http.StatusOK, map[string]any{"ok": true})
			}
		}()
		next.ServeHTTP(rw, r)
	})
}

func writeJSON(rw http.ResponseWriter, code int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(code)
	json.NewEncoder(rw).Encode(v)
}
