package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/tillbook/tillbook/internal/accounts"
	"github.com/tillbook/tillbook/internal/app"
	"github.com/tillbook/tillbook/internal/balance"
	"github.com/tillbook/tillbook/internal/cashier"
	"github.com/tillbook/tillbook/internal/ledger"
	"github.com/tillbook/tillbook/internal/periods"
	"github.com/tillbook/tillbook/internal/platform/cache"
	"github.com/tillbook/tillbook/internal/platform/db"
	"github.com/tillbook/tillbook/internal/reconcile"
	"github.com/tillbook/tillbook/internal/variance"
	"github.com/tillbook/tillbook/jobs"
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

	pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
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

	asynqClient := asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := asynqClient.Close(); err != nil {
			logger.Warn("asynq close", slog.Any("error", err))
		}
	}()

	txRunner := db.NewRunner(pool)

	accountsRepo := accounts.NewRepository(pool)
	accountsService := accounts.NewService(accountsRepo, accounts.NewWriter(pool))
	methodConfig := accounts.NewMethodConfig(pool)

	balanceService := balance.NewService(
		balance.NewRepository(pool),
		accountsRepo,
		balance.NewRedisCache(redisClient, cfg.BalanceCacheTTL),
	)

	ledgerService := ledger.NewService(ledger.NewRepository(pool), balanceService)

	poster := variance.NewPoster(
		ledgerService,
		methodConfig,
		jobs.NewEnqueuer(asynqClient),
		cfg.AlertThreshold(),
	)

	reconcileService := reconcile.NewService(reconcile.NewRepository(pool), accountsRepo, balanceService, poster, txRunner)

	cashierRepo := cashier.NewRepository(pool)
	cashierService := cashier.NewService(cashierRepo, methodConfig, balanceService, reconcileService, poster, txRunner)

	periodsService := periods.NewService(periods.NewRepository(pool), methodConfig, reconcileService, cashierRepo)

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		AccountsHandler:  accounts.NewHandler(logger, accountsService),
		LedgerHandler:    ledger.NewHandler(logger, ledgerService),
		BalanceHandler:   balance.NewHandler(logger, balanceService),
		CashierHandler:   cashier.NewHandler(logger, cashierService),
		ReconcileHandler: reconcile.NewHandler(logger, reconcileService),
		PeriodsHandler:   periods.NewHandler(logger, periodsService),
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
