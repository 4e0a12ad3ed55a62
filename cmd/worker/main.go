package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/AgenticFinLab/FinMycelium/internal/config"
	"github.com/AgenticFinLab/FinMycelium/internal/queue"
	"github.com/AgenticFinLab/FinMycelium/internal/storage"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/AgenticFinLab/FinMycelium/pkg/leaselock"
	"github.com/AgenticFinLab/FinMycelium/pkg/logger"
	"github.com/AgenticFinLab/FinMycelium/pkg/logger/console"
	"github.com/AgenticFinLab/FinMycelium/pkg/oracle"
	loracle "github.com/AgenticFinLab/FinMycelium/pkg/oracle/ollama"
	goracle "github.com/AgenticFinLab/FinMycelium/pkg/oracle/openai"
	cascadestore "github.com/AgenticFinLab/FinMycelium/pkg/store/pgx"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvec "github.com/pgvector/pgvector-go/pgx"
)

func newOracleClient(cfg config.OracleConfig) oracle.Client {
	var client oracle.Client

	switch cfg.Adapter {
	case "ollama":
		inner, err := loracle.NewOllamaOracle(loracle.NewOllamaOracleParams{
			Model:          cfg.Model,
			EmbeddingModel: cfg.EmbeddingModel,
			Temperature:    cfg.Temperature,
			BaseURL:        cfg.BaseURL,
			APIKey:         cfg.APIKey,
		})
		if err != nil {
			logger.Fatal("Could not create Ollama client", "err", err)
		}
		client = inner
	default:
		client = goracle.NewOpenAIOracle(goracle.NewOpenAIOracleParams{
			Model:          cfg.Model,
			EmbeddingModel: cfg.EmbeddingModel,
			Temperature:    cfg.Temperature,
			BaseURL:        cfg.BaseURL,
			APIKey:         cfg.APIKey,
		})
	}

	return oracle.NewGuard(client, oracle.GuardParams{
		CallTimeout:       cfg.CallTimeout,
		MaxTries:          cfg.MaxTries,
		RequestsPerMinute: cfg.RequestsPerMin,
		BreakerName:       cfg.Adapter,
	})
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		consoleLogger := console.NewConsoleLogger(console.ConsoleLoggerParams{})
		logger.Init(consoleLogger)
		logger.Fatal("Invalid configuration", "err", err)
	}

	consoleLogger := console.NewConsoleLogger(console.ConsoleLoggerParams{
		Debug: cfg.Debug,
	})
	logger.Init(consoleLogger)

	docStore, err := storage.NewDocumentStore(ctx, cfg.Storage)
	if err != nil {
		logger.Fatal("Could not create document store", "err", err)
	}

	oracleClient := newOracleClient(cfg.Oracle)

	poolCfg, err := pgxpool.ParseConfig(cfg.Database.URL)
	if err != nil {
		logger.Fatal("Invalid database URL", "err", err)
	}
	poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}
	pgConn, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		logger.Fatal("Unable to connect to database", "err", err)
	}
	defer pgConn.Close()

	db := cascadestore.NewCascadeDBStorageWithConnection(pgConn)
	locks := leaselock.New(pgConn)

	conn := queue.Init(cfg.Queue.URL)
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		logger.Fatal("Failed to open channel", "err", err)
	}
	defer ch.Close()

	queues := []string{queue.ReconstructQueue}
	if err := queue.SetupQueues(ch, queues); err != nil {
		logger.Fatal("Failed to set up queues", "err", err)
	}

	logger.Info("Listening for messages")

	consumerCh, err := conn.Channel()
	if err != nil {
		logger.Fatal("Failed to open consumer channel", "err", err)
	}
	defer consumerCh.Close()

	// prefetch=1, one build at a time per worker
	if err := consumerCh.Qos(1, 0, true); err != nil {
		logger.Fatal("Failed to set QoS", "err", err)
	}

	msgs, err := consumerCh.Consume(
		queue.ReconstructQueue,
		queue.ReconstructQueue+"_consumer",
		false, // autoAck
		false, // exclusive
		false, // noLocal
		false, // noWait
		nil,   // args
	)
	if err != nil {
		logger.Fatal("Failed to start consuming", "err", err)
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				logger.Info("Stopping message processor")
				return
			case msg, ok := <-msgs:
				if !ok {
					logger.Info("Message channel closed")
					return
				}
				startTime := time.Now()
				logger.Info("Received message", "queue", queue.ReconstructQueue)

				processingErr := queue.ProcessReconstructMessage(ctx, docStore, oracleClient, db, locks, cfg.Pipeline, string(msg.Body))
				if processingErr != nil {
					logger.Error("Error processing message", "err", processingErr)
					handleProcessingError(consumerCh, msg, queue.ReconstructQueue)
				} else {
					if err := msg.Ack(false); err != nil {
						logger.Error("Failed to ack message", "err", err)
					}
					logger.Info("Message processed successfully")
				}

				usage := oracleClient.GetUsage()
				modelDuration := time.Duration(usage.DurationMs) * time.Millisecond
				logger.Info(
					"Model usage",
					"input_tokens", usage.InputTokens,
					"output_tokens", usage.OutputTokens,
					"total_tokens", usage.TotalTokens,
					"duration", formatDuration(modelDuration),
				)
				logger.Info("Processing time", "duration", formatDuration(time.Since(startTime)))
				logger.Info("Waiting for next message")
				oracleClient.ResetUsage()
			}
		}
	}()

	<-ctx.Done()
	logger.Info("Shutdown signal received, exiting...")
}

func formatDuration(d time.Duration) string {
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d:%02d", hours, minutes, seconds)
}

func handleProcessingError(ch *amqp.Channel, msg amqp.Delivery, queueName string) {
	retries := 0
	if val, ok := msg.Headers["x-retries"]; ok {
		if v, ok := val.(int32); ok {
			retries = int(v)
		}
	}

	// After 10 attempts the message goes to the dead-letter queue
	if retries >= 10 {
		dlqName := queueName + "_dlq"
		logger.Info("Sending message to DLQ", "dlq", dlqName)
		pubErr := ch.Publish(
			"",
			dlqName,
			false,
			false,
			amqp.Publishing{
				ContentType: "application/json",
				Body:        msg.Body,
				Headers:     msg.Headers,
			},
		)
		if pubErr != nil {
			logger.Error("Failed to publish to DLQ", "dlq", dlqName, "err", pubErr)
			msg.Nack(false, true)
			return
		}
		msg.Ack(false)
		return
	}

	retryName := queueName + "_retry"
	headers := msg.Headers
	if headers == nil {
		headers = amqp.Table{}
	}
	headers["x-retries"] = retries + 1

	pubErr := ch.Publish(
		"",
		retryName,
		false,
		false,
		amqp.Publishing{
			ContentType: "application/json",
			Body:        msg.Body,
			Headers:     headers,
		},
	)
	if pubErr != nil {
		logger.Error("Failed to publish to retry queue", "retry_queue", retryName, "err", pubErr)
		msg.Nack(false, true)
		return
	}
	msg.Ack(false)
}
