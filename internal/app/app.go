// Package app wires the repository, services, background loops and the
// admin HTTP surface into one runnable unit.
package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/example/babylog-bot/internal/config"
	"github.com/example/babylog-bot/internal/pool"
	"github.com/example/babylog-bot/internal/repository"
	"github.com/example/babylog-bot/internal/service"
	"github.com/example/babylog-bot/internal/worker"
	"github.com/example/babylog-bot/pkg/openai"
	"github.com/example/babylog-bot/pkg/twilio"
)

// Loop names, also the admin trigger identifiers.
const (
	LoopReminder = "reminder_scheduler"
	LoopCleanup  = "cleanup_service"
	LoopHealth   = "health_check_service"
)

// Error cooldowns per loop. A failing cycle retries on these instead
// of the regular interval.
const (
	reminderCooldown = 5 * time.Minute
	cleanupCooldown  = 30 * time.Minute
	healthCooldown   = 5 * time.Minute
)

// App coordinates the data store, background loops and HTTP server.
type App struct {
	cfg  config.Config
	log  *zap.Logger
	repo repository.Store
	pool *pool.Pool
	sup  *worker.Supervisor
}

func New(cfg config.Config, log *zap.Logger) *App {
	return &App{cfg: cfg, log: log}
}

// Run starts everything and blocks until SIGINT/SIGTERM or a fatal
// startup error.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, pl, err := repository.Open(ctx, repository.Config{
		DatabaseURL: a.cfg.DatabaseURL,
		SQLitePath:  a.cfg.SQLitePath,
		Pool:        a.cfg.PoolConfig(),
	}, a.log)
	if err != nil {
		return err
	}
	defer store.Close()
	a.repo = store
	a.pool = pl

	loc := a.cfg.Location()
	quota := service.NewQuotaService(store, loc)
	sender := twilio.NewClient(a.cfg.TwilioAccountSID, a.cfg.TwilioAuthToken, a.cfg.TwilioWhatsAppNumber)
	models := openai.NewClient(a.cfg.OpenAIAPIKey, a.cfg.OpenAIBaseURL)
	if !sender.Configured() {
		a.log.Warn("twilio credentials missing, reminder delivery will fail")
	}

	reminderSvc := worker.NewReminderService(store, quota, sender, loc, a.log)
	cleanupSvc := worker.NewCleanupService(store, loc, a.log)
	healthSvc := worker.NewHealthService(store, pl, sender, models, a.log)

	reminderLoop := worker.NewLoop(LoopReminder, a.cfg.ReminderCheckInterval, reminderCooldown, reminderSvc.CheckDueReminders, a.log)
	cleanupLoop := worker.NewLoop(LoopCleanup, a.cfg.CleanupCheckInterval, cleanupCooldown, cleanupSvc.RunCleanup, a.log)
	healthLoop := worker.NewLoop(LoopHealth, a.cfg.HealthCheckInterval, healthCooldown, healthSvc.RunHealthChecks, a.log)
	healthSvc.WatchLoops(reminderLoop, cleanupLoop)

	a.sup = worker.NewSupervisor(a.log, reminderLoop, cleanupLoop, healthLoop)
	a.sup.Start(ctx)

	srv := &http.Server{Addr: a.cfg.HTTPAddr, Handler: a.routes()}
	srvErr := make(chan error, 1)
	go func() {
		a.log.Info("http server listening", zap.String("addr", a.cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			srvErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		a.log.Info("shutdown signal received")
	case err := <-srvErr:
		a.log.Error("http server failed", zap.Error(err))
	}

	a.sup.Stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Warn("http shutdown incomplete", zap.Error(err))
	}
	return nil
}

func (a *App) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", a.handleHealthz)
	mux.HandleFunc("GET /internal/status", a.handleStatus)
	mux.HandleFunc("POST /internal/check-reminders", a.triggerHandler(LoopReminder))
	mux.HandleFunc("POST /internal/cleanup", a.triggerHandler(LoopCleanup))
	mux.HandleFunc("POST /internal/health-check", a.triggerHandler(LoopHealth))
	return mux
}

func (a *App) handleHealthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := a.repo.Ping(ctx); err != nil {
		http.Error(w, "database unreachable", http.StatusServiceUnavailable)
		return
	}
	w.Write([]byte("ok"))
}

func (a *App) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"services":  a.sup.Status(),
		"database":  a.repo.Kind(),
		"pool":      a.pool.Stats(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// triggerHandler runs one loop cycle on demand. The cycle runs inline
// so the response reports its outcome.
func (a *App) triggerHandler(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		loop := a.sup.Loop(name)
		if loop == nil {
			http.Error(w, "unknown service", http.StatusNotFound)
			return
		}
		a.log.Info("manual trigger", zap.String("loop", name))
		if err := loop.RunOnce(r.Context()); err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]any{
				"service": name, "status": "failed", "error": err.Error(),
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"service": name, "status": "completed"})
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
