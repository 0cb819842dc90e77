// Command forged runs the relicforge engine daemon: persistent storage, a
// queue-backed entropy source, Prometheus metrics, and a small HTTP surface
// for supply inspection and entropy fulfillment delivery.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"expvar"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"relicforge/internal/adapters/entropy"
	"relicforge/internal/blob"
	"relicforge/internal/core"
	"relicforge/pkg/domain"
)

// Config holds daemon settings. Storage and blob backends read their own
// variables inside their factories.
type Config struct {
	HTTPAddr        string        `env:"RELICFORGE_HTTP_ADDR" envDefault:":8080"`
	LogLevel        string        `env:"RELICFORGE_LOG_LEVEL" envDefault:"info"`
	ShutdownTimeout time.Duration `env:"RELICFORGE_SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	logger := newLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	schedule := domain.DefaultSchedule()
	engine := core.NewDefaultRulesEngine(schedule)
	store, err := core.OpenPersistentStore(engine)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}

	blobStore, err := blob.Open(ctx)
	if err != nil {
		return fmt.Errorf("open blob store: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	metrics, err := core.NewPrometheusMetricsRecorder(registry)
	if err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	source := entropy.NewQueueSource()
	svc := core.NewService(store,
		core.WithSchedule(schedule),
		core.WithEntropySource(source),
		core.WithReceiptArchive(core.NewBlobArchive(blobStore)),
		core.WithLogger(logger),
		core.WithMetricsRecorder(metrics),
	)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.Handle("/debug/vars", expvar.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	api := apiServer{svc: svc, logger: logger}
	mux.HandleFunc("GET /v1/supply", api.handleSupply)
	mux.HandleFunc("GET /v1/assets", api.handleListAssets)
	mux.HandleFunc("GET /v1/assets/{id}", api.handleGetAsset)
	mux.HandleFunc("POST /v1/fulfillments", api.handleFulfillment)

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.HTTPAddr, "storage", os.Getenv("RELICFORGE_STORAGE_DRIVER"))
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
	}
	return nil
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

type apiServer struct {
	svc    *core.Service
	logger *slog.Logger
}

func (a apiServer) handleSupply(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, a.svc.Supply())
}

func (a apiServer) handleListAssets(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, a.svc.Store().ListAssets())
}

func (a apiServer) handleGetAsset(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid asset id")
		return
	}
	asset, ok := a.svc.GetAsset(id)
	if !ok {
		writeError(w, http.StatusNotFound, "asset not found")
		return
	}
	writeJSON(w, http.StatusOK, asset)
}

type fulfillmentRequest struct {
	CorrelationID string `json:"correlation_id"`
	Payload       []byte `json:"payload"`
}

func (a apiServer) handleFulfillment(w http.ResponseWriter, r *http.Request) {
	var req fulfillmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if req.CorrelationID == "" {
		writeError(w, http.StatusBadRequest, "correlation_id required")
		return
	}
	receipt, err := a.svc.OnEntropyFulfilled(r.Context(), req.CorrelationID, req.Payload)
	if err != nil {
		// The pending record is consumed even on failure; surface the receipt
		// so the caller can trigger compensation.
		a.logger.Warn("fulfillment failed", "correlation_id", req.CorrelationID, "error", err)
		writeJSON(w, http.StatusConflict, receipt)
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
