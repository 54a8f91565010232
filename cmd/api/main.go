package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/tipbot/ledger/internal/config"
	"github.com/tipbot/ledger/internal/handler"
	"github.com/tipbot/ledger/internal/lock"
	"github.com/tipbot/ledger/internal/logging"
	"github.com/tipbot/ledger/internal/metrics"
	"github.com/tipbot/ledger/internal/repository"
	"github.com/tipbot/ledger/internal/service"
	"github.com/tipbot/ledger/internal/service/ledger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logging.Init("tip-ledger", cfg.LogLevel, cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := repository.NewPostgresDB(ctx, cfg.DatabaseURL, repository.PoolConfig{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
		ConnMaxIdleTime: cfg.DBConnMaxIdleTime,
	}, cfg.DBConnectAttempts)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	recorder := metrics.NewLedger(reg)

	health := handler.NewHealthHandler(db, nil)

	var locker ledger.Locker
	if cfg.RedisURL != "" {
		client, err := lock.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			slog.Error("failed to connect to redis", "error", err)
			os.Exit(1)
		}
		defer client.Close()
		locker = lock.NewRedisLock(client, cfg.LockTTL, cfg.LockWait)
		health = handler.NewHealthHandler(db, handler.PingFunc(func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		}))
		slog.Info("using redis account lock")
	} else {
		locker = lock.NewKeyedMutex(cfg.LockWait)
		slog.Info("using in-process account lock")
	}

	var observers ledger.Observers
	if len(cfg.KafkaBrokers) > 0 {
		publisher := service.NewEventPublisher(
			service.NewKafkaWriter(cfg.KafkaBrokers, cfg.KafkaTopic),
			recorder,
			cfg.KafkaTimeout,
		)
		defer func() {
			if err := publisher.Close(); err != nil {
				slog.Error("failed to close event publisher", "error", err)
			}
		}()
		observers = append(observers, publisher)
		slog.Info("publishing ledger events", "topic", cfg.KafkaTopic)
	}

	engine := ledger.NewEngine(
		repository.NewAccountRepository(db),
		repository.NewActionRepository(db),
		repository.NewSettlementRepository(db),
		repository.NewWithdrawalIntentRepository(db),
		db,
		locker,
		observers,
		recorder,
		ledger.Settings{
			WithdrawalMemo: cfg.WithdrawalMemo,
			SettleTimeout:  cfg.SettleTimeout,
		},
	)

	gateway := service.NewGatewayClient(
		cfg.GatewayURL,
		cfg.GatewayAddress,
		cfg.AssetCode,
		cfg.WithdrawalMemo,
		cfg.SettleTimeout,
	)

	sweeper := service.NewWithdrawalSweeper(engine, slog.Default(), cfg.SweepInterval, cfg.StaleIntentAfter)
	go sweeper.Start(ctx)

	if _, err := engine.CountUnresolvedWithdrawals(ctx); err != nil {
		slog.Warn("failed to count unresolved withdrawals", "error", err)
	}

	router := newRouter(routes{
		health:    health,
		accounts:  handler.NewAccountHandler(engine),
		transfers: handler.NewTransferHandler(engine),
		withdraws: handler.NewWithdrawalHandler(engine, gateway),
		webhooks:  handler.NewWebhookHandler(engine, cfg.DepositWebhookSecret),
		metrics:   metrics.Handler(reg),
		jwtSecret: cfg.JWTSecret,
	})

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      cfg.SettleTimeout + 15*time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		slog.Info("server started", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()

	slog.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}
	slog.Info("server stopped")
}
