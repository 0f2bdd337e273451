package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/tmalik/banking-core/internal/config"
	"github.com/tmalik/banking-core/internal/queue"
)

// The processor drains the transaction-event queue and emits structured
// audit logs, keeping monitoring off the request path.
func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logrus.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("failed to load config: %v", err)
	}

	// Connect to RabbitMQ
	logrus.Info("connecting to RabbitMQ...")
	rabbitmq, err := queue.NewRabbitMQ(cfg.RabbitMQURI)
	if err != nil {
		logrus.Fatalf("failed to connect to RabbitMQ: %v", err)
	}
	defer rabbitmq.Close()

	events, err := rabbitmq.ConsumeEvents(ctx)
	if err != nil {
		logrus.Fatalf("failed to consume events: %v", err)
	}

	go func() {
		for event := range events {
			logrus.WithFields(logrus.Fields{
				"transaction_id": event.TransactionID,
				"type":           event.Type,
				"source":         event.Source,
				"destination":    event.Destination,
				"amount":         event.Amount,
				"occurred_at":    event.OccurredAt,
			}).Info("movement completed")
		}
	}()

	logrus.Info("event processor started")

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logrus.Info("shutting down processor...")
	cancel()
	logrus.Info("processor shut down successfully")
}
