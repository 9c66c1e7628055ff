package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"keyrelay/internal/auth"
	"keyrelay/internal/config"
	"keyrelay/internal/domain"
	"keyrelay/internal/observability/logging"
	"keyrelay/internal/observability/metrics"
	"keyrelay/internal/service"
	"keyrelay/internal/store"
	httptransport "keyrelay/internal/transport/http"
	"keyrelay/pkg/db"
)

func main() {
	cfg := config.Load()

	logging.Setup(logging.Config{
		ServiceName: "keyrelay",
		Environment: cfg.Environment,
		Level:       cfg.LogLevel,
	})
	metrics.MustRegister("keyrelay")

	gdb, err := db.OpenGorm(db.Config{DSN: cfg.DatabaseURL, LogSQL: cfg.LogSQL})
	if err != nil {
		slog.Error("gorm open failed", "error", err)
		os.Exit(1)
	}
	if err := gdb.AutoMigrate(domain.All()...); err != nil {
		slog.Error("automigrate failed", "error", err)
		os.Exit(1)
	}

	st := store.New(gdb)
	svc := service.New(st, cfg.DeviceKeepCount)
	router := httptransport.NewRouter(svc, auth.NewVerifier(cfg.AuthJWTSecret), cfg.RateLimit)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go sweepEnvelopes(ctx, svc, cfg.EnvelopeRetention, cfg.SweepInterval)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("keyrelay listening", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown failed", "error", err)
	}
}

// sweepEnvelopes periodically removes ciphertext envelopes past the retention
// window. Best-effort hygiene: failures are logged and retried next tick.
func sweepEnvelopes(ctx context.Context, svc *service.Service, retention, interval time.Duration) {
	if retention <= 0 || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := svc.SweepExpiredEnvelopes(ctx, retention)
			if err != nil {
				slog.Warn("envelope sweep failed", "error", err)
				continue
			}
			if removed > 0 {
				slog.Info("expired envelopes removed", "count", removed, "retention", retention.String())
			}
		}
	}
}
