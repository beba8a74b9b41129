package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/sudo-init-do/gamevault/internal/admin"
	"github.com/sudo-init-do/gamevault/internal/alerts"
	"github.com/sudo-init-do/gamevault/internal/authz"
	"github.com/sudo-init-do/gamevault/internal/cache"
	"github.com/sudo-init-do/gamevault/internal/config"
	"github.com/sudo-init-do/gamevault/internal/ledger"
	"github.com/sudo-init-do/gamevault/internal/logger"
	"github.com/sudo-init-do/gamevault/internal/marketplace"
	"github.com/sudo-init-do/gamevault/internal/metrics"
	"github.com/sudo-init-do/gamevault/internal/store"
	"github.com/sudo-init-do/gamevault/internal/store/memstore"
	"github.com/sudo-init-do/gamevault/internal/store/pgstore"
	"github.com/sudo-init-do/gamevault/internal/utils"
	"github.com/sudo-init-do/gamevault/internal/wallet"
)

// accountStore is what the server needs from either store implementation.
type accountStore interface {
	store.Store
	store.CatalogWriter
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logg, err := logger.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logg.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx, cfg, logg)
	if err != nil {
		logg.Fatal("open store", zap.Error(err))
	}
	defer st.Close()

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer rdb.Close()

	queue := asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer queue.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	engine := ledger.New(st, logg,
		ledger.WithCache(cache.NewBalanceCache(rdb, cfg.BalanceCacheTTL, logg)),
		ledger.WithRecorder(m),
	)
	notifier := alerts.NewTaskNotifier(queue)

	wallets := wallet.NewService(engine, st, notifier, logg, wallet.WithDefaultCurrency(cfg.DefaultCurrency))
	market := marketplace.NewService(engine, st, marketplace.StoreCatalog{Reader: st}, notifier, logg,
		marketplace.WithAutoConfirm(alerts.NewScheduler(queue), cfg.AutoConfirmAfter))
	tokens := authz.NewTokens(cfg.JWTSecret)

	e := echo.New()
	e.HideBanner = true
	e.Validator = utils.NewRequestValidator()
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(logger.RequestLogger(logg))
	e.Use(m.Middleware())

	// Ops
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, echo.Map{"status": "ok"})
	})
	e.GET("/ready", func(c echo.Context) error {
		if p, ok := st.(interface{ Ping(context.Context) error }); ok {
			if err := p.Ping(c.Request().Context()); err != nil {
				return c.JSON(http.StatusServiceUnavailable, echo.Map{"status": "not_ready", "error": "db unreachable"})
			}
		}
		if err := rdb.Ping(c.Request().Context()).Err(); err != nil {
			return c.JSON(http.StatusServiceUnavailable, echo.Map{"status": "not_ready", "error": "redis unreachable"})
		}
		return c.JSON(http.StatusOK, echo.Map{"status": "ready"})
	})
	e.GET("/metrics", m.Handler())

	// Public catalog
	mh := marketplace.NewHandler(market)
	e.GET("/products/:id", mh.Product)

	// Authenticated routes
	api := e.Group("")
	api.Use(tokens.Middleware())
	api.Use(authz.RequireAuth)

	wh := wallet.NewHandler(wallets)
	api.GET("/wallet", wh.Balance)
	api.GET("/wallet/:currency", wh.Balance)
	api.GET("/wallet/:currency/entries", wh.History)
	api.POST("/wallet/deposits", wh.SubmitDeposit)
	api.POST("/wallet/withdrawals", wh.SubmitWithdrawal)

	api.POST("/orders", mh.Checkout)
	api.GET("/orders/:id", mh.Get)
	api.POST("/orders/:id/fund", mh.Fund)
	api.POST("/orders/:id/deliver", mh.MarkDelivered)
	api.POST("/orders/:id/confirm", mh.ConfirmDelivery)
	api.POST("/orders/:id/cancel", mh.Cancel)
	api.POST("/orders/:id/dispute", mh.RaiseDispute)
	api.POST("/orders/:id/review", mh.AttachReview)

	api.GET("/notifications", alerts.NewHandler(st).ListNotifications)

	// Admin routes
	adminGroup := e.Group("/admin")
	adminGroup.Use(tokens.Middleware())
	admin.NewHandler(wallets, market, st, st).Register(adminGroup)

	go func() {
		logg.Info("http server starting", zap.String("port", cfg.ServerPort), zap.String("store", cfg.Store))
		if err := e.Start(":" + cfg.ServerPort); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Fatal("server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logg.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logg.Error("shutdown", zap.Error(err))
	}
}

func openStore(ctx context.Context, cfg *config.Config, logg *zap.Logger) (accountStore, error) {
	if cfg.Store == "memory" {
		logg.Warn("using the in-memory store; balances are lost on restart")
		return memstore.New(), nil
	}
	return pgstore.Open(ctx, cfg.DSN(), cfg.DBMaxConns, logg)
}
