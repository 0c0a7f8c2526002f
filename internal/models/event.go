package models

import "time"

// UsageEvent is published to Kafka after every successful generation and
// consumed by the analytics worker. Emission is best effort; the request
// pipeline never fails because of it.
type UsageEvent struct {
	UserID     string    `json:"user_id" db:"user_id"`
	CreationID int       `json:"creation_id" db:"creation_id"`
	Type       string    `json:"type" db:"type"`
	Plan       Plan      `json:"plan" db:"plan"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}
