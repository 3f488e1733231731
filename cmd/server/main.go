package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/rl1809/grocery-store/internal/adapter/handler"
	"github.com/rl1809/grocery-store/internal/adapter/messaging"
	"github.com/rl1809/grocery-store/internal/adapter/storage"
	"github.com/rl1809/grocery-store/internal/auth"
	"github.com/rl1809/grocery-store/internal/config"
	"github.com/rl1809/grocery-store/internal/core/service"
	"github.com/rl1809/grocery-store/internal/platform/observability"
	"github.com/rl1809/grocery-store/internal/port"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server exited", zap.Error(err))
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownOTel, err := observability.Setup(ctx, cfg.OTelEndpoint, cfg.ServiceName)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := shutdownOTel(shutdownCtx); err != nil {
			logger.Warn("otel shutdown", zap.Error(err))
		}
	}()

	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	var cache port.CacheRepository
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			PoolSize: cfg.RedisPoolSize,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			return err
		}
		defer rdb.Close()
		cache = storage.NewRedisAdapter(rdb)
		logger.Info("connected to redis", zap.String("addr", cfg.RedisAddr))
	}

	var publisher port.EventPublisher
	if len(cfg.KafkaBrokers) > 0 {
		publisher = messaging.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		logger.Info("publishing order events to kafka",
			zap.Strings("brokers", cfg.KafkaBrokers),
			zap.String("topic", cfg.KafkaTopic),
		)
	} else {
		publisher = messaging.NewLogPublisher(logger)
	}
	defer publisher.Close()

	orderService := service.NewOrderService(store, service.OrderOptions{
		Cache:     cache,
		Logger:    logger,
		TxTimeout: cfg.TxTimeout,
		QueueSize: cfg.EventQueueSize,
	})
	inventoryService := service.NewInventoryService(store, logger)
	workers := service.StartEventWorkers(orderService.Events(), publisher, cfg.EventWorkers, logger)

	authn := auth.NewJWTAuthenticator(cfg.JWTSecret, cfg.SessionExpiry)

	grpcServer := handler.NewGRPCServer(handler.NewGRPCHandler(orderService, inventoryService, logger), authn)
	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return err
	}
	go func() {
		logger.Info("gRPC server listening", zap.String("addr", cfg.GRPCAddr))
		if err := grpcServer.Serve(lis); err != nil {
			logger.Error("gRPC server error", zap.Error(err))
		}
	}()

	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: handler.NewRouter(handler.NewHTTPHandler(orderService, inventoryService, logger), authn, cfg.ServiceName),
	}
	go func() {
		logger.Info("HTTP server listening", zap.String("addr", cfg.HTTPAddr))
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP shutdown", zap.Error(err))
	}
	logger.Info("HTTP server stopped")

	grpcServer.GracefulStop()
	logger.Info("gRPC server stopped")

	orderService.Close()
	workers.Wait()
	logger.Info("event workers stopped")

	return nil
}

func openStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (port.Store, func(), error) {
	if strings.EqualFold(cfg.StoreDriver, config.StoreMemory) {
		logger.Warn("using in-memory store, data is lost on exit")
		return storage.NewMemoryAdapter(), func() {}, nil
	}

	if cfg.MigrateOnStart {
		if err := storage.Migrate(cfg.MySQLDSN); err != nil {
			return nil, nil, err
		}
		logger.Info("schema migrated")
	}

	db, err := sqlx.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		return nil, nil, err
	}
	db.SetMaxOpenConns(cfg.MySQLMaxOpen)
	db.SetMaxIdleConns(cfg.MySQLMaxIdle)
	db.SetConnMaxLifetime(cfg.MySQLMaxLife)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, nil, err
	}
	logger.Info("connected to mysql")

	return storage.NewMySQLAdapter(db), func() { db.Close() }, nil
}
