package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/rl1809/stock-ledger/internal/adapter/catalog"
	"github.com/rl1809/stock-ledger/internal/adapter/handler"
	"github.com/rl1809/stock-ledger/internal/adapter/notifier"
	"github.com/rl1809/stock-ledger/internal/adapter/storage"
	"github.com/rl1809/stock-ledger/internal/config"
	"github.com/rl1809/stock-ledger/internal/core/service"
	"github.com/rl1809/stock-ledger/internal/platform/logging"
	"github.com/rl1809/stock-ledger/internal/platform/shutdown"
	"github.com/rl1809/stock-ledger/internal/platform/tracing"
	"github.com/rl1809/stock-ledger/internal/port"
)

const serviceName = "stock-ledger"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(logging.Config{
		ServiceName: serviceName,
		Env:         cfg.Env,
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer logging.Sync(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited", zap.Error(err))
		logging.Sync(logger)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	ctx := context.Background()
	logger.Info("starting", cfg.Fields()...)

	sd := shutdown.New(cfg.ShutdownTimeout, logger)

	traceShutdown, err := tracing.Init(ctx, tracing.Config{
		Enabled:       cfg.Tracing.Enabled,
		OTLPEndpoint:  cfg.Tracing.OTLPEndpoint,
		SamplingRatio: cfg.Tracing.SamplingRatio,
		ServiceName:   serviceName,
		Environment:   cfg.Env,
	})
	if err != nil {
		return err
	}
	sd.Add("tracing", traceShutdown)

	var rdb *redis.Client
	if cfg.Storage.Driver == config.DriverRedis || cfg.Notifier.Sink == config.SinkRedis {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		logger.Info("connected to redis", zap.String("addr", cfg.Redis.Addr))
		sd.Add("redis", shutdown.Close(rdb))
	}

	store, err := openStore(ctx, cfg, rdb, sd, logger)
	if err != nil {
		return err
	}

	publisher, err := newPublisher(cfg, rdb, sd, logger)
	if err != nil {
		return err
	}
	dispatcher := notifier.NewDispatcher(publisher, notifier.DispatcherConfig{
		Workers:        cfg.Notifier.Workers,
		QueueSize:      cfg.Notifier.QueueSize,
		PublishTimeout: cfg.Notifier.PublishTimeout,
	}, logger)
	sd.Add("notifier", func(context.Context) error {
		dispatcher.Close()
		return nil
	})
	logger.Info("started notifier workers", zap.Int("workers", cfg.Notifier.Workers), zap.String("sink", cfg.Notifier.Sink))

	catalogClient := catalog.NewClient(catalog.Config{
		BaseURL:         cfg.Catalog.BaseURL,
		APIKey:          cfg.Catalog.APIKey,
		Timeout:         cfg.Catalog.Timeout,
		MaxRetries:      cfg.Catalog.MaxRetries,
		InitialInterval: cfg.Catalog.RetryBackoff,
	}, logger)

	inventoryService := service.NewInventoryService(store, catalogClient, dispatcher, logger)
	purchaseService := service.NewPurchaseService(store, dispatcher, logger)

	grpcServer := grpc.NewServer(grpc.UnaryInterceptor(handler.UnaryLoggingInterceptor(logger)))
	handler.RegisterInventoryServer(grpcServer, handler.NewGRPCHandler(inventoryService, purchaseService))
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return fmt.Errorf("listen grpc: %w", err)
	}
	go func() {
		logger.Info("gRPC server listening", zap.String("addr", cfg.GRPCAddr))
		if err := grpcServer.Serve(lis); err != nil {
			logger.Error("gRPC server error", zap.Error(err))
		}
	}()
	sd.Add("grpc", shutdown.ShutdownGRPCServer(grpcServer))

	httpHandler := handler.NewHTTPHandler(inventoryService, purchaseService, store.Ping, logger)
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           otelhttp.NewHandler(handler.NewRouter(httpHandler), "http-server"),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("HTTP server listening", zap.String("addr", cfg.HTTPAddr))
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server error", zap.Error(err))
		}
	}()
	sd.Add("http", shutdown.ShutdownHTTPServer(httpServer))

	// registered last so it runs first: callers see NOT_SERVING while the servers drain
	sd.Add("health", shutdown.SetHealthNotServing(healthServer))

	sd.Wait(ctx)
	return nil
}

func openStore(ctx context.Context, cfg config.Config, rdb *redis.Client, sd *shutdown.Manager, logger *zap.Logger) (port.Store, error) {
	switch cfg.Storage.Driver {
	case config.DriverMySQL:
		db, err := sqlx.Open("mysql", cfg.MySQL.DSN)
		if err != nil {
			return nil, fmt.Errorf("open mysql: %w", err)
		}
		db.SetMaxOpenConns(cfg.MySQL.MaxOpenConns)
		db.SetMaxIdleConns(cfg.MySQL.MaxIdleConns)
		db.SetConnMaxLifetime(cfg.MySQL.ConnMaxLifetime)

		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("ping mysql: %w", err)
		}
		logger.Info("connected to mysql")
		sd.Add("mysql", shutdown.Close(db))

		if cfg.MySQL.Migrate {
			if err := storage.MigrateMySQL(db.DB); err != nil {
				return nil, err
			}
			logger.Info("mysql migrations applied")
		}
		return storage.NewMySQLStore(db), nil

	case config.DriverRedis:
		return storage.NewRedisStore(rdb, cfg.Storage.RedisMaxCASRetries), nil

	default:
		logger.Warn("using in-memory store, stock is lost on restart")
		return storage.NewMemoryStore(), nil
	}
}

func newPublisher(cfg config.Config, rdb *redis.Client, sd *shutdown.Manager, logger *zap.Logger) (port.EventPublisher, error) {
	switch cfg.Notifier.Sink {
	case config.SinkKafka:
		p := notifier.NewKafkaPublisher(logger, cfg.Kafka.Brokers, cfg.Kafka.Topic)
		sd.Add("kafka", shutdown.Close(p))
		return p, nil
	case config.SinkRedis:
		return notifier.NewRedisPublisher(rdb, cfg.Redis.NotifyChannel), nil
	case config.SinkLog:
		return notifier.NewLogPublisher(logger), nil
	default:
		return nil, fmt.Errorf("unknown notifier sink %q", cfg.Notifier.Sink)
	}
}
