// Package pipeline implements the metered generation workflow shared by
// every AI endpoint: quota gate, provider invocation, ledger insert,
// counter update, usage event. Steps run strictly in that order for a
// request; a failed step prevents every later side effect.
package pipeline

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/IBM/sarama"
	"github.com/lib/pq"

	"github.com/illegalcall/quick-ai/internal/models"
)

// QuotaStore reads and writes the per-user free-usage counter held by the
// identity provider. Implementations must hit the provider on every call;
// the pipeline never caches usage across requests.
type QuotaStore interface {
	Usage(ctx context.Context, userID string) (int, error)
	SetUsage(ctx context.Context, userID string, usage int) error
}

// Ledger persists creation rows.
type Ledger interface {
	Insert(ctx context.Context, c *models.Creation) (int, error)
}

type Pipeline struct {
	quota      QuotaStore
	ledger     Ledger
	producer   sarama.SyncProducer
	topic      string
	textLimit  int
	imageLimit int
}

func New(quota QuotaStore, ledger Ledger, producer sarama.SyncProducer, topic string, textLimit, imageLimit int) *Pipeline {
	return &Pipeline{
		quota:      quota,
		ledger:     ledger,
		producer:   producer,
		topic:      topic,
		textLimit:  textLimit,
		imageLimit: imageLimit,
	}
}

// Request is one invocation of the workflow. Invoke performs the actual
// provider call and returns the content to persist (generated text or an
// artifact URL).
type Request struct {
	UserID  string
	Plan    models.Plan
	Op      models.Operation
	Prompt  string
	Publish bool
	Invoke  func(ctx context.Context) (string, error)
}

// Run executes the workflow and returns the generated content.
//
// Two concurrent requests from the same user can both read the counter
// before either writes it back, letting a user briefly overshoot the limit
// by the number of in-flight requests. The counter lives in the identity
// provider's metadata blob, which offers no compare-and-swap, so this race
// is accepted rather than closed.
func (p *Pipeline) Run(ctx context.Context, req Request) (string, error) {
	usage := 0
	if req.Plan != models.PlanPremium {
		u, err := p.quota.Usage(ctx, req.UserID)
		if err != nil {
			// Degrade-to-free-trial policy: when the stored counter cannot
			// be read, reset it and let the request through as a fresh
			// free-tier user.
			slog.Warn("Usage lookup failed; resetting counter", "op", req.Op.Name, "user_id", req.UserID, "error", err)
			if serr := p.quota.SetUsage(ctx, req.UserID, 0); serr != nil {
				slog.Error("Failed to reset usage counter", "user_id", req.UserID, "error", serr)
			}
			u = 0
		}
		usage = u

		if usage >= req.Op.Limit(p.textLimit, p.imageLimit) {
			return "", ErrQuotaExceeded
		}
	}

	content, err := req.Invoke(ctx)
	if err != nil {
		return "", &ProviderError{Err: err}
	}

	creation := &models.Creation{
		UserID:  req.UserID,
		Prompt:  req.Prompt,
		Content: content,
		Type:    req.Op.CreationType,
		Publish: req.Publish && req.Op.PublishAllowed,
		Likes:   pq.StringArray{},
	}
	id, err := p.ledger.Insert(ctx, creation)
	if err != nil {
		return "", &PersistenceError{Err: err}
	}

	// The counter moves only after the row is durable.
	if req.Plan != models.PlanPremium {
		if err := p.quota.SetUsage(ctx, req.UserID, usage+1); err != nil {
			slog.Error("Failed to update usage counter", "user_id", req.UserID, "error", err)
			return "", err
		}
	}

	p.emitEvent(req, id)

	return content, nil
}

// emitEvent publishes a usage event for the analytics worker. Best effort:
// a broker failure is logged and the request still succeeds.
func (p *Pipeline) emitEvent(req Request, creationID int) {
	if p.producer == nil {
		return
	}

	event := models.UsageEvent{
		UserID:     req.UserID,
		CreationID: creationID,
		Type:       req.Op.CreationType,
		Plan:       req.Plan,
		CreatedAt:  time.Now().UTC(),
	}
	eventBytes, err := json.Marshal(event)
	if err != nil {
		slog.Error("Failed to marshal usage event", "error", err)
		return
	}

	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Value: sarama.StringEncoder(eventBytes),
	}
	if _, _, err := p.producer.SendMessage(msg); err != nil {
		slog.Error("Failed to publish usage event", "op", req.Op.Name, "error", err, "user_id", req.UserID)
	}
}
