package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"carbon-scribe/marketplace/marketplace-backend/internal/reconcile"
)

const runTimeout = 2 * time.Minute

func main() {
	once := flag.Bool("once", false, "run a single reconciliation pass and exit")
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	_ = godotenv.Load()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		dbURL = "postgres://localhost/carbonscribe_marketplace?sslmode=disable"
	}

	db, err := sqlx.Connect("postgres", dbURL)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	reconciler := reconcile.NewReconciler(db, logger)

	if *once {
		ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
		defer cancel()

		drifts, err := reconciler.Run(ctx)
		if err != nil {
			logger.Error("Reconciliation failed", zap.Error(err))
			logger.Sync()
			os.Exit(1)
		}
		logDrifts(logger, drifts)
		if len(drifts) > 0 {
			logger.Sync()
			os.Exit(2)
		}
		logger.Info("Ledger is consistent")
		return
	}

	schedule := os.Getenv("RECONCILE_SCHEDULE")
	if schedule == "" {
		schedule = "0 */5 * * * *" // every five minutes
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	scheduler := cron.New(cron.WithSeconds())
	_, err = scheduler.AddFunc(schedule, func() {
		runCtx, cancelRun := context.WithTimeout(ctx, runTimeout)
		defer cancelRun()

		drifts, err := reconciler.Run(runCtx)
		if err != nil {
			logger.Error("Reconciliation failed", zap.Error(err))
			return
		}
		logDrifts(logger, drifts)
	})
	if err != nil {
		logger.Fatal("Invalid reconcile schedule", zap.String("schedule", schedule), zap.Error(err))
	}

	scheduler.Start()
	logger.Info("Reconciliation worker started", zap.String("schedule", schedule))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	logger.Info("Received shutdown signal")

	cancel()
	stopCtx := scheduler.Stop()
	<-stopCtx.Done()
	logger.Info("Worker stopped")
}

func logDrifts(logger *zap.Logger, drifts []reconcile.Drift) {
	for _, drift := range drifts {
		logger.Error("Ledger drift detected",
			zap.String("check", drift.Check),
			zap.String("detail", drift.Detail))
	}
}
