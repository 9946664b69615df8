// Package main runs the mention service:
// - Cycle (scheduled): scan new posts → price backfill → max-since
// - HTTP: /health, /metrics, /status, /ws/progress
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"mention-lab/internal/app"
	"mention-lab/internal/config"
	"mention-lab/internal/logging"
	"mention-lab/internal/observability"
	"mention-lab/internal/orchestrator"
	"mention-lab/internal/progress"
)

// Server holds the scheduled cycle and its status.
type Server struct {
	app    *app.App
	hub    *progress.Hub
	logger *zap.Logger

	mu          sync.Mutex
	started     time.Time
	running     bool
	cycles      int
	failures    int
	lastRun     time.Time
	lastErr     string
	lastResult  *orchestrator.CycleResult
	lastSkipped time.Time
}

func main() {
	configPath := flag.String("config", os.Getenv("MENTIONLAB_CONFIG"), "Path to TOML config file")
	runNow := flag.Bool("run-now", false, "Run one cycle immediately at startup")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(logging.Config{
		Level:    cfg.Log.Level,
		Encoding: cfg.Log.Encoding,
		Sampling: cfg.Log.Sampling,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "build logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	hub := progress.NewHub(logger.Named("ws"))
	a, err := app.Build(ctx, cfg, logger, app.Hooks{OnProgress: hub.Progress, OnItem: hub.Item})
	if err != nil {
		logger.Fatal("wire application", zap.Error(err))
	}
	defer a.Close()

	s := &Server{app: a, hub: hub, logger: logger, started: time.Now()}

	scheduler := cron.New(cron.WithSeconds())
	if _, err := scheduler.AddFunc(cfg.Server.Schedule, func() { s.runCycle(ctx) }); err != nil {
		logger.Fatal("invalid schedule", zap.String("schedule", cfg.Server.Schedule), zap.Error(err))
	}
	scheduler.Start()
	logger.Info("scheduler started", zap.String("schedule", cfg.Server.Schedule))

	if *runNow {
		go s.runCycle(ctx)
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			cancel()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	stopped := scheduler.Stop()
	hub.Close()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	select {
	case <-stopped.Done():
	case <-shutdownCtx.Done():
		logger.Warn("running cycle did not finish before shutdown timeout")
	}
	logger.Info("shutdown complete")
}

// runCycle runs one cycle unless another is still running.
func (s *Server) runCycle(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.lastSkipped = time.Now()
		s.mu.Unlock()
		s.logger.Warn("previous cycle still running, skipping")
		return
	}
	s.running = true
	s.mu.Unlock()

	res, err := s.app.Orchestrator.RunCycle(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
	s.cycles++
	s.lastRun = time.Now()
	s.lastResult = res
	s.lastErr = ""
	if err != nil {
		s.failures++
		s.lastErr = err.Error()
		if ctx.Err() == nil {
			s.logger.Error("cycle failed", zap.Error(err))
		}
	}
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		checks := s.app.Ping(r.Context(), 3*time.Second)
		status := http.StatusOK
		for _, v := range checks {
			if v != "ok" {
				status = http.StatusServiceUnavailable
			}
		}
		writeJSON(w, status, map[string]interface{}{"status": http.StatusText(status), "checks": checks})
	})

	mux.Handle("/metrics", observability.Handler())
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/ws/progress", s.hub.HandleWS)

	return mux
}

// StatusResponse is the JSON response for /status.
type StatusResponse struct {
	Status      string                    `json:"status"`
	Uptime      string                    `json:"uptime"`
	Running     bool                      `json:"running"`
	Cycles      int                       `json:"cycles"`
	Failures    int                       `json:"failures"`
	LastRun     time.Time                 `json:"last_run,omitempty"`
	LastError   string                    `json:"last_error,omitempty"`
	LastSkipped time.Time                 `json:"last_skipped,omitempty"`
	LastCycle   *orchestrator.CycleResult `json:"last_cycle,omitempty"`
	WSClients   int                       `json:"ws_clients"`
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	resp := StatusResponse{
		Status:      "running",
		Uptime:      time.Since(s.started).Round(time.Second).String(),
		Running:     s.running,
		Cycles:      s.cycles,
		Failures:    s.failures,
		LastRun:     s.lastRun,
		LastError:   s.lastErr,
		LastSkipped: s.lastSkipped,
		LastCycle:   s.lastResult,
	}
	s.mu.Unlock()
	resp.WSClients = s.hub.Clients()

	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
