package main

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/pressly/goose/v3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/subosito/gotenv"

	"github.com/sinhadeepak1115/MilTrack/internal/adapter/handler"
	"github.com/sinhadeepak1115/MilTrack/internal/adapter/lock"
	"github.com/sinhadeepak1115/MilTrack/internal/adapter/storage"
	"github.com/sinhadeepak1115/MilTrack/internal/config"
	"github.com/sinhadeepak1115/MilTrack/internal/core/service"
	"github.com/sinhadeepak1115/MilTrack/internal/infra/logger"
	"github.com/sinhadeepak1115/MilTrack/internal/infra/metrics"
	"github.com/sinhadeepak1115/MilTrack/internal/port"
)

func runMigrations(dsn string) error {
	sqlDB, err := goose.OpenDBWithDriver("mysql", dsn)
	if err != nil {
		return err
	}
	defer func() { _ = sqlDB.Close() }()
	return goose.Up(sqlDB, "migrations")
}

func main() {
	_ = gotenv.Load()

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/example.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		panic(err)
	}

	log := logger.New(cfg.App.Env)

	if err := runMigrations(cfg.MySQL.DSN); err != nil {
		log.Error("migrations failed", "err", err)
		return
	}
	log.Info("migrations applied")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := sql.Open("mysql", cfg.MySQL.DSN)
	if err != nil {
		log.Error("mysql open failed", "err", err)
		return
	}
	defer db.Close()
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		log.Error("mysql ping failed", "err", err)
		return
	}
	log.Info("connected to mysql")

	store := storage.NewMySQLAdapter(db)

	var locker port.KeyLocker = lock.NewMemoryLocker()
	var fence port.IdempotencyFence
	if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, PoolSize: 100})
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Error("redis ping failed", "err", err)
			return
		}
		defer rdb.Close()
		log.Info("connected to redis")

		locker = lock.NewRedisLocker(rdb, cfg.Redis.LockTTL)
		fence = storage.NewRedisAdapter(rdb)
	}

	opts := []service.ProcessorOption{
		service.WithRetryPolicy(cfg.Ledger.MaxAttempts, cfg.Ledger.RetryBackoff),
	}
	if fence != nil {
		opts = append(opts, service.WithIdempotencyFence(fence))
	}
	if cfg.Metrics.Enabled {
		opts = append(opts, service.WithMetrics(metrics.New(prometheus.DefaultRegisterer)))
	}

	processor := service.NewTransactionProcessor(store, store, store, locker, log, opts...)
	reconciler := service.NewReconciliationService(store, store)

	mux := http.NewServeMux()
	httpHandler := handler.NewHTTPHandler(processor, reconciler, store, store, store, log)
	httpHandler.Register(mux)
	if cfg.Metrics.Enabled {
		mux.Handle("/metrics", promhttp.Handler())
	}

	httpServer := &http.Server{
		Addr:    cfg.HTTP.Addr,
		Handler: mux,
	}

	go func() {
		log.Info("HTTP server listening", "addr", cfg.HTTP.Addr)
		if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
			log.Error("HTTP server error", "err", err)
		}
	}()

	go reconcileLoop(ctx, reconciler, cfg.Ledger.ReconcileInterval, log)

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(shutdownCtx)
	log.Info("graceful shutdown complete")
}

// reconcileLoop replays the audit log on a fixed interval and logs any
// drift. Discrepancies flagged while traffic is live may just be the scan
// racing commits; persistent ones need an audited ADJUSTMENT.
func reconcileLoop(ctx context.Context, reconciler *service.ReconciliationService, interval time.Duration, log *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			discrepancies, err := reconciler.Reconcile(ctx)
			if err != nil {
				log.Error("reconciliation failed", "err", err)
				continue
			}
			if len(discrepancies) == 0 {
				log.Info("reconciliation clean")
				continue
			}
			for _, d := range discrepancies {
				log.Warn("balance drift detected",
					"base", d.BaseID, "asset_type", d.AssetTypeID,
					"expected", d.Expected, "actual", d.Actual)
			}
		}
	}
}
