package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/orchai-labs/oracle-hub/cmd/hub/internal/api"
	"github.com/orchai-labs/oracle-hub/cmd/hub/internal/dispatch"
	"github.com/orchai-labs/oracle-hub/cmd/hub/internal/health"
	"github.com/orchai-labs/oracle-hub/cmd/hub/internal/ingest"
	"github.com/orchai-labs/oracle-hub/cmd/hub/internal/ledger"
	"github.com/orchai-labs/oracle-hub/cmd/hub/internal/metrics"
	"github.com/orchai-labs/oracle-hub/cmd/hub/internal/registry"
	"github.com/orchai-labs/oracle-hub/cmd/hub/internal/round"
	"github.com/orchai-labs/oracle-hub/cmd/hub/internal/validate"
	"github.com/orchai-labs/oracle-hub/pkg/config"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	logger, err := config.NewLogger(cfg.App)
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	metrics.Register()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}

	ledgerStore := ledger.NewRedisStore(rdb)
	registryStore := registry.NewRedisStore(rdb)
	healthStore := health.NewRedisStore(rdb)
	history := round.NewRedisHistory(rdb, cfg.Hub.ReportHistory)

	validator, err := validate.New(cfg.Hub.SourceToken, cfg.Hub.PriceCeiling)
	if err != nil {
		logger.Fatal("Bad price ceiling", zap.Error(err))
	}

	manager := health.NewManager(healthStore, cfg.Hub.QuarantineThreshold, cfg.Hub.QuarantineCooldown, health.RealClock{}, logger)
	deliverer := dispatch.NewWebhookDeliverer(&http.Client{})
	dispatcher := dispatch.NewDispatcher(registryStore, manager, deliverer, cfg.Hub.DeliveryTimeout, logger)
	controller := round.NewController(ledgerStore, validator, dispatcher, history, logger)

	server := api.NewServer(
		controller,
		ledgerStore,
		registryStore,
		manager,
		validator,
		history,
		func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
		cfg.Hub,
		logger,
	)

	srv := &http.Server{Addr: cfg.App.Port, Handler: server.Router()}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var reader *kafka.Reader
	if cfg.Kafka.Enabled {
		reader = kafka.NewReader(kafka.ReaderConfig{
			Brokers:           cfg.Kafka.Brokers,
			Topic:             cfg.Kafka.Topic,
			GroupID:           cfg.Kafka.GroupID,
			MinBytes:          200,
			MaxBytes:          10e6,
			MaxWait:           200 * time.Millisecond,
			HeartbeatInterval: 3 * time.Second,
			SessionTimeout:    10 * time.Second,
		})
		consumer := ingest.NewConsumer(reader, controller, logger)
		go func() {
			if err := consumer.Run(ctx); err != nil {
				logger.Error("Ingest stopped", zap.Error(err))
			}
		}()
	}

	go func() {
		logger.Info("Server Started", zap.String("port", cfg.App.Port))
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			logger.Fatal("HTTP Error", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	logger.Info("Shutdown signal received")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	srv.Shutdown(shutdownCtx)

	if reader != nil {
		if err := reader.Close(); err != nil {
			logger.Error("Error closing reader", zap.Error(err))
		}
	}
	rdb.Close()
	logger.Info("Shutdown Complete")
}
