package main

import (
	"context"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/orchai-labs/oracle-hub/cmd/feeder/internal/feeder"
	"github.com/orchai-labs/oracle-hub/pkg/config"
)

// basePrices seeds the random walk per key; unknown keys start at the
// feeder's default.
var basePrices = map[string]uint64{
	"BTC/USD":  6_000_000_000_000, // 8 decimal places
	"ETH/USD":  300_000_000_000,
	"ATOM/USD": 900_000_000,
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		panic(err)
	}

	logger, err := config.NewLogger(cfg.App)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	// Ensure the topic exists before the first publish.
	creator := feeder.NewTopicCreator(logger, &feeder.RealKafkaDialer{Dialer: kafka.DefaultDialer}, feeder.RealClock{})
	creator.Create(cfg.Kafka.Brokers, cfg.Kafka.Topic)

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Kafka.Brokers...),
		Topic:        cfg.Kafka.Topic,
		Balancer:     &kafka.LeastBytes{},
		BatchSize:    1, // one batch per message, flushed promptly
		BatchTimeout: 10 * time.Millisecond,
	}

	f := feeder.NewFeeder(
		logger,
		writer,
		cfg.Hub.SourceToken,
		cfg.Feeder.Keys,
		basePrices,
		cfg.Feeder.Interval,
		feeder.RealRand{Rand: rand.New(rand.NewSource(time.Now().UnixNano()))},
		feeder.RealClock{},
	)

	ctx, cancel := context.WithCancel(context.Background())
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go f.Run(ctx)

	<-sigChan
	logger.Info("Shutdown signal received")
	cancel()

	if err := writer.Close(); err != nil {
		logger.Error("Error closing Kafka writer", zap.Error(err))
	} else {
		logger.Info("Kafka writer closed cleanly")
	}
}
