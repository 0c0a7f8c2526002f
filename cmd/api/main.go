package main

import (
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"github.com/illegalcall/quick-ai/internal/api"
	"github.com/illegalcall/quick-ai/internal/config"
	"github.com/illegalcall/quick-ai/pkg/database"
	"github.com/illegalcall/quick-ai/pkg/kafka"
)

func main() {
	// Load .env when present; real deployments use the environment directly
	_ = godotenv.Load()

	cfg := config.LoadConfig()

	// Initialize database clients
	db, err := database.NewClients(cfg.Database.URL, cfg.Redis.Addr)
	if err != nil {
		slog.Error("Failed to initialize database clients", "error", err)
		os.Exit(1)
	}
	defer db.DB.Close()
	slog.Info("✅ Connected to databases")

	if err := db.CreateCreationsTable(); err != nil {
		slog.Error("Failed to prepare schema", "error", err)
		os.Exit(1)
	}

	// Initialize Kafka producer for usage events
	producer, err := kafka.NewProducer(cfg.Kafka.Broker, cfg.Kafka.RetryMax, cfg.Kafka.RetryBackoff)
	if err != nil {
		slog.Error("Failed to create Kafka producer", "error", err)
		os.Exit(1)
	}
	defer producer.Close()
	slog.Info("✅ Connected to Kafka")

	// Create and start server
	server, err := api.NewServer(cfg, db, producer)
	if err != nil {
		slog.Error("Failed to create server", "error", err)
		os.Exit(1)
	}
	if err := server.Start(); err != nil {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}
}
