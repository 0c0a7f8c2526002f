// Package worker consumes usage events published by the API and lands them
// in the analytics sink: one usage_events row per event plus a per-type
// counter in Redis.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/IBM/sarama"

	"github.com/illegalcall/quick-ai/internal/config"
	"github.com/illegalcall/quick-ai/internal/models"
	"github.com/illegalcall/quick-ai/pkg/database"
)

type Worker struct {
	cfg      *config.Config
	db       *database.Clients
	consumer sarama.ConsumerGroup
	ready    chan bool
}

func NewWorker(cfg *config.Config, db *database.Clients, consumer sarama.ConsumerGroup) *Worker {
	return &Worker{
		cfg:      cfg,
		db:       db,
		consumer: consumer,
		ready:    make(chan bool),
	}
}

func (w *Worker) Start(ctx context.Context) error {
	topics := []string{w.cfg.Kafka.Topic}
	slog.Info("Starting usage worker", "topics", topics)

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Log consumer errors
	go func() {
		for err := range w.consumer.Errors() {
			slog.Error("Kafka consumer error received", "error", err)
		}
	}()

	// Start consuming messages
	go func() {
		for {
			if err := w.consumer.Consume(ctx, topics, w); err != nil {
				slog.Error("Error from consumer.Consume", "error", err)
			}
			if ctx.Err() != nil {
				return
			}
			// Reset the ready channel after a new session is created
			w.ready = make(chan bool)
		}
	}()

	<-w.ready // Wait till the consumer has been set up
	slog.Info("Worker setup complete; consumer ready")

	select {
	case sig := <-sigChan:
		slog.Info("Received shutdown signal", "signal", sig)
	case <-ctx.Done():
		slog.Info("Context cancelled; shutting down worker")
	}

	return nil
}

// Setup is run at the beginning of a new session, before ConsumeClaim.
func (w *Worker) Setup(sarama.ConsumerGroupSession) error {
	close(w.ready)
	return nil
}

// Cleanup is run at the end of a session, once all ConsumeClaim goroutines have exited.
func (w *Worker) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

// ConsumeClaim processes usage events from one partition claim.
func (w *Worker) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for message := range claim.Messages() {
		if err := w.ProcessEvent(session.Context(), message.Value); err != nil {
			slog.Error("Failed to process usage event", "error", err, "offset", message.Offset)
		}
		session.MarkMessage(message, "")
	}
	return nil
}

// ProcessEvent records one usage event: an analytics row in Postgres and a
// per-type counter bump in Redis. Events are fire-and-forget from the API's
// perspective, so a failure here only loses analytics, never user state.
func (w *Worker) ProcessEvent(ctx context.Context, payload []byte) error {
	var event models.UsageEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return fmt.Errorf("failed to unmarshal usage event: %w", err)
	}

	if _, err := w.db.DB.ExecContext(ctx,
		"INSERT INTO usage_events (user_id, creation_id, type, plan, created_at) VALUES ($1, $2, $3, $4, $5)",
		event.UserID, event.CreationID, event.Type, event.Plan, event.CreatedAt,
	); err != nil {
		return fmt.Errorf("failed to insert usage event: %w", err)
	}

	counterKey := fmt.Sprintf("stats:usage:%s", event.Type)
	if err := w.db.Redis.Incr(ctx, counterKey).Err(); err != nil {
		return fmt.Errorf("failed to bump usage counter: %w", err)
	}

	return nil
}
