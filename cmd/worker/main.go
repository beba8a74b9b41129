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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/sudo-init-do/gamevault/internal/alerts"
	"github.com/sudo-init-do/gamevault/internal/cache"
	"github.com/sudo-init-do/gamevault/internal/config"
	"github.com/sudo-init-do/gamevault/internal/ledger"
	"github.com/sudo-init-do/gamevault/internal/logger"
	"github.com/sudo-init-do/gamevault/internal/marketplace"
	"github.com/sudo-init-do/gamevault/internal/metrics"
	"github.com/sudo-init-do/gamevault/internal/store/pgstore"
)

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

	// The worker settles orders the API created, so both must share a database.
	if cfg.Store != "postgres" {
		logg.Fatal("worker requires STORE=postgres", zap.String("store", cfg.Store))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := pgstore.Open(ctx, cfg.DSN(), cfg.DBMaxConns, logg)
	if err != nil {
		logg.Fatal("open store", zap.Error(err))
	}
	defer st.Close()

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer rdb.Close()

	redisOpt := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	queue := asynq.NewClient(redisOpt)
	defer queue.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	engine := ledger.New(st, logg,
		ledger.WithCache(cache.NewBalanceCache(rdb, cfg.BalanceCacheTTL, logg)),
		ledger.WithRecorder(m),
	)
	market := marketplace.NewService(engine, st, marketplace.StoreCatalog{Reader: st}, alerts.NewTaskNotifier(queue), logg)

	var relay alerts.Notifier = alerts.Nop{}
	if cfg.RabbitMQURL != "" {
		pub, err := alerts.NewEventPublisher(cfg.RabbitMQURL, cfg.SettlementExchange, logg)
		if err != nil {
			logg.Fatal("connect rabbitmq", zap.Error(err))
		}
		defer pub.Close()
		relay = pub
	} else {
		logg.Warn("RABBITMQ_URL not set; settlement events stay in-app only")
	}

	processor := alerts.NewProcessor(st, market, relay, logg)
	srv := alerts.NewServer(redisOpt, cfg.WorkerConcurrency, logg)

	ops := echo.New()
	ops.HideBanner = true
	ops.HidePort = true
	ops.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, echo.Map{"status": "ok"})
	})
	ops.GET("/metrics", m.Handler())
	go func() {
		if err := ops.Start(":" + cfg.WorkerMetricsPort); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error("metrics server error", zap.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		logg.Info("shutting down worker")
		srv.Shutdown()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := ops.Shutdown(shutdownCtx); err != nil {
			logg.Error("metrics shutdown", zap.Error(err))
		}
	}()

	logg.Info("worker starting", zap.Int("concurrency", cfg.WorkerConcurrency), zap.String("metrics_port", cfg.WorkerMetricsPort))
	if err := srv.Run(processor.Mux()); err != nil {
		logg.Fatal("worker error", zap.Error(err))
	}
}
