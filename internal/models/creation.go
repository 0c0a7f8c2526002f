package models

import (
	"time"

	"github.com/lib/pq"
)

// Plan is the billing tier resolved for a request. Anything other than
// premium is metered against the free-usage counter.
type Plan string

const (
	PlanFree    Plan = "free"
	PlanPremium Plan = "premium"
)

// Creation is one row of the generation ledger. Rows are append-only;
// only the likes column is ever updated after insert.
type Creation struct {
	ID        int            `json:"id" db:"id"`
	UserID    string         `json:"user_id" db:"user_id"`
	Prompt    string         `json:"prompt" db:"prompt"`
	Content   string         `json:"content" db:"content"`
	Type      string         `json:"type" db:"type"`
	Publish   bool           `json:"publish" db:"publish"`
	Likes     pq.StringArray `json:"likes" db:"likes"`
	CreatedAt time.Time      `json:"created_at" db:"created_at"`
}
