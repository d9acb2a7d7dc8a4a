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

	"github.com/varejo-erp/varejo-erp/internal/app"
	"github.com/varejo-erp/varejo-erp/internal/catalog"
	"github.com/varejo-erp/varejo-erp/internal/ledger"
	"github.com/varejo-erp/varejo-erp/internal/observability"
	"github.com/varejo-erp/varejo-erp/internal/platform/cache"
	"github.com/varejo-erp/varejo-erp/internal/platform/db"
	"github.com/varejo-erp/varejo-erp/internal/sales"
	"github.com/varejo-erp/varejo-erp/internal/shared"
	"github.com/varejo-erp/varejo-erp/jobs"
)

// cacheInvalidator drops the cached quantity after a committed aggregate
// change so the stock endpoint never serves a stale value for long.
type cacheInvalidator struct {
	cache  *cache.StockCache
	logger *slog.Logger
}

func (c cacheInvalidator) HandleAggregateChanged(ctx context.Context, evt ledger.AggregateChangedEvent) error {
	if err := c.cache.Invalidate(ctx, evt.TenantID, evt.ProductID); err != nil {
		c.logger.Warn("stock cache invalidate",
			slog.Int64("tenant_id", evt.TenantID),
			slog.Int64("product_id", evt.ProductID),
			slog.Any("error", err))
	}
	return nil
}

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis connect", slog.Any("error", err))
	}
	defer func() {
		if redisClient != nil {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}
	}()

	metrics := observability.NewMetrics()
	auditLogger := shared.NewAuditLogger(dbpool)
	idemStore := shared.NewIdempotencyStore(dbpool)
	stockCache := cache.NewStockCache(redisClient, cfg.StockCacheTTL)

	ledgerRepo := ledger.NewRepository(dbpool)
	ledgerService := ledger.NewService(ledgerRepo, auditLogger, metrics,
		cacheInvalidator{cache: stockCache, logger: logger}, logger)

	catalogRepo := catalog.NewRepository(dbpool)
	catalogService := catalog.NewService(catalogRepo, ledgerService, logger)
	catalogHandler := catalog.NewHandler(logger, catalogService)

	ledgerHandler := ledger.NewHandler(logger, ledgerService, stockCache, catalogService)

	salesRepo := sales.NewRepository(dbpool)
	salesService := sales.NewService(salesRepo, ledgerService, idemStore, auditLogger, logger)
	salesHandler := sales.NewHandler(logger, salesService)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, jobClient, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		LedgerHandler:  ledgerHandler,
		CatalogHandler: catalogHandler,
		SalesHandler:   salesHandler,
		JobHandler:     jobHandler,
		Metrics:        metrics,
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
