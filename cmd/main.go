package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"AquaWallet/internal/auth"
	"AquaWallet/internal/config"
	"AquaWallet/internal/events"
	"AquaWallet/internal/handler"
	"AquaWallet/internal/realtime"
	"AquaWallet/internal/repository"
	"AquaWallet/internal/service"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load(".")
	if err != nil {
		panic(err)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	walletRepo, notificationRepo, closeStore := openStores(ctx, cfg, logger)
	defer closeStore()

	// Live delivery goes through Redis when configured so every instance
	// reaches its own connections; otherwise straight to the local hub.
	hub := realtime.NewHub(logger)
	var pusher service.Pusher = hub
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Fatal("invalid REDIS_URL", zap.Error(err))
		}
		rdb := redis.NewClient(opts)
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Fatal("redis ping failed", zap.Error(err))
		}
		if err := realtime.NewSubscriber(rdb, cfg.RedisChannel, hub, logger).Start(ctx); err != nil {
			logger.Fatal("redis subscribe failed", zap.Error(err))
		}
		pusher = realtime.NewRedisPusher(rdb, cfg.RedisChannel, logger)
	}

	walletService := service.NewWalletService(walletRepo, logger)
	notificationService := service.NewNotificationService(notificationRepo, pusher, service.NotificationOptions{
		Workers:             cfg.DeliveryWorkers,
		LowBalanceThreshold: cfg.LowBalance(),
	}, logger)
	defer notificationService.Shutdown()

	flows := service.NewPaymentFlows(walletService, notificationService, service.CashbackRule{
		MinOrder: cfg.CashbackMin(),
		Percent:  cfg.CashbackRate(),
	}, logger)
	processor := events.NewProcessor(flows, notificationService, logger)

	if cfg.RabbitMQURL != "" {
		consumer, err := events.NewConsumer(cfg.RabbitMQURL, cfg.EventExchange, cfg.EventQueue, processor, logger)
		if err != nil {
			logger.Fatal("rabbitmq connection failed", zap.Error(err))
		}
		defer consumer.Close()
		go func() {
			if err := consumer.Run(ctx); err != nil {
				logger.Error("event consumer stopped", zap.Error(err))
			}
		}()
	}

	reconciler := service.NewReconciler(walletRepo, walletService, logger)
	if err := reconciler.Start(cfg.ReconcileSchedule); err != nil {
		logger.Fatal("failed to schedule reconciliation", zap.Error(err))
	}
	defer reconciler.Stop()

	verifier := auth.NewHMACVerifier(cfg.JWTSecret)
	router := handler.NewRouter(handler.RouterConfig{
		Wallets:        handler.NewWalletHandler(walletService, flows, logger),
		Notifications:  handler.NewNotificationHandler(notificationService),
		Events:         handler.NewEventHandler(processor),
		Realtime:       realtime.NewGateway(ctx, hub, verifier, notificationService, cfg.OriginAllowed, handler.WriteError, logger),
		Verifier:       verifier,
		InternalAPIKey: cfg.InternalAPIKey,
		AllowedOrigins: cfg.Origins(),
	})

	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("server started", zap.String("addr", server.Addr), zap.String("store", cfg.StoreDriver))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}
	hub.Close()
	logger.Info("server exiting")
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.IsDevelopment() {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func openStores(ctx context.Context, cfg *config.Config, logger *zap.Logger) (repository.WalletRepository, repository.NotificationRepository, func()) {
	if cfg.StoreDriver == config.DriverMemory {
		logger.Warn("using in-memory store, data is lost on restart")
		return repository.NewMemoryWalletRepository(), repository.NewMemoryNotificationRepository(), func() {}
	}

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("database connection failed", zap.Error(err))
	}

	db.SetMaxOpenConns(cfg.DBMaxOpenConns)
	db.SetMaxIdleConns(cfg.DBMaxIdleConns)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		logger.Fatal("database ping failed", zap.Error(err))
	}

	walletRepo := repository.NewPostgresRepository(db)
	if err := walletRepo.RunMigrations(ctx, cfg.MigrationsDir); err != nil {
		logger.Fatal("failed to run migrations", zap.Error(err))
	}

	return walletRepo, repository.NewPostgresNotificationRepository(db), func() { db.Close() }
}
