package database

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
)

type Clients struct {
	DB    *sqlx.DB
	Redis *redis.Client
}

func NewClients(dbURL, redisAddr string) (*Clients, error) {
	// Connect to PostgreSQL
	db, err := sqlx.Connect("postgres", dbURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Initialize Redis client
	redisClient := redis.NewClient(&redis.Options{
		Addr:     redisAddr,
		Password: "",
		DB:       0,
	})

	ctx := context.Background()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Clients{
		DB:    db,
		Redis: redisClient,
	}, nil
}

// CreateCreationsTable sets up the generation ledger.
func (c *Clients) CreateCreationsTable() error {
	schema := `CREATE TABLE IF NOT EXISTS creations (
		id SERIAL PRIMARY KEY,
		user_id TEXT NOT NULL,
		prompt TEXT NOT NULL,
		content TEXT NOT NULL,
		type TEXT NOT NULL,
		publish BOOLEAN NOT NULL DEFAULT FALSE,
		likes TEXT[] NOT NULL DEFAULT '{}',
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);`

	if _, err := c.DB.Exec(schema); err != nil {
		return fmt.Errorf("failed to create creations table: %w", err)
	}

	slog.Info("✅ Creations table is ready!")
	return nil
}

// CreateUsageEventsTable sets up the analytics sink written by the worker.
func (c *Clients) CreateUsageEventsTable() error {
	schema := `CREATE TABLE IF NOT EXISTS usage_events (
		id SERIAL PRIMARY KEY,
		user_id TEXT NOT NULL,
		creation_id INT NOT NULL,
		type TEXT NOT NULL,
		plan TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);`

	if _, err := c.DB.Exec(schema); err != nil {
		return fmt.Errorf("failed to create usage_events table: %w", err)
	}

	slog.Info("✅ Usage events table is ready!")
	return nil
}
