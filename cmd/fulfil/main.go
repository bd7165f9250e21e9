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

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/klyraworks/fulfil/internal/app"
	"github.com/klyraworks/fulfil/internal/catalog"
	"github.com/klyraworks/fulfil/internal/credit"
	"github.com/klyraworks/fulfil/internal/inventory"
	"github.com/klyraworks/fulfil/internal/invoicing"
	"github.com/klyraworks/fulfil/internal/observability"
	"github.com/klyraworks/fulfil/internal/payments"
	"github.com/klyraworks/fulfil/internal/platform/cache"
	"github.com/klyraworks/fulfil/internal/platform/db"
	"github.com/klyraworks/fulfil/internal/sales"
	"github.com/klyraworks/fulfil/internal/sequence"
	"github.com/klyraworks/fulfil/internal/shared"
	"github.com/klyraworks/fulfil/jobs"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	jobsClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init jobs client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobsClient.Close(); err != nil {
			logger.Warn("jobs client close", slog.Any("error", err))
		}
	}()

	seq := sequence.NewGenerator()
	guard := credit.NewGuard(credit.NewRepository())
	stockLedger := inventory.NewLedger(inventory.NewRepository(), seq)
	paymentLedger := payments.NewLedger(payments.NewRepository(), guard, seq)
	metrics := observability.NewMetrics()

	salesService := sales.NewService(sales.ServiceConfig{
		DB:        pool,
		Runner:    db.NewRunner(pool, cfg.LockTimeout),
		Store:     sales.NewRepository(),
		Credit:    guard,
		Inventory: stockLedger,
		Payments:  paymentLedger,
		Sequence:  seq,
		Catalog:   catalog.NewRepository(),
		Invoicer:  invoicing.NewClient(cfg.InvoicingURL, cfg.InvoicingTimeout),
		Notifier:  jobs.NewNotifier(jobsClient),
		Locks:     shared.NewSaleMutex(redisClient, cfg.SaleLockTTL),
		Audit:     shared.NewAuditLogger(pool),
		Metrics:   metrics,
		Logger:    logger,
	})
	salesHandler := sales.NewHandler(logger, salesService)

	router := app.NewRouter(app.RouterParams{
		Logger:       logger,
		Config:       cfg,
		SalesHandler: salesHandler,
		Pool:         pool,
		Metrics:      metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("server exited", slog.Any("error", err))
		os.Exit(1)
	}
}
