package pipeline

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/IBM/sarama"
	"github.com/stretchr/testify/assert"

	"github.com/illegalcall/quick-ai/internal/models"
)

type fakeQuota struct {
	usage   int
	readErr error
	reads   int
	writes  []int
}

func (f *fakeQuota) Usage(_ context.Context, userID string) (int, error) {
	f.reads++
	if f.readErr != nil {
		return 0, f.readErr
	}
	return f.usage, nil
}

func (f *fakeQuota) SetUsage(_ context.Context, userID string, usage int) error {
	f.writes = append(f.writes, usage)
	f.usage = usage
	return nil
}

type fakeLedger struct {
	inserted []*models.Creation
	err      error
	nextID   int
}

func (f *fakeLedger) Insert(_ context.Context, c *models.Creation) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.nextID++
	c.ID = f.nextID
	f.inserted = append(f.inserted, c)
	return f.nextID, nil
}

type fakeProducer struct {
	sarama.SyncProducer
	messages []*sarama.ProducerMessage
	err      error
}

func (f *fakeProducer) SendMessage(msg *sarama.ProducerMessage) (int32, int64, error) {
	if f.err != nil {
		return 0, 0, f.err
	}
	f.messages = append(f.messages, msg)
	return 0, 0, nil
}

func (f *fakeProducer) Close() error { return nil }

func newTestPipeline(quota *fakeQuota, ledger *fakeLedger, producer sarama.SyncProducer) *Pipeline {
	return New(quota, ledger, producer, "usage-events", 10, 3)
}

func request(plan models.Plan, op models.Operation, invoke func(context.Context) (string, error)) Request {
	return Request{
		UserID: "u1",
		Plan:   plan,
		Op:     op,
		Prompt: "prompt",
		Invoke: invoke,
	}
}

func TestRunSuccessFreeTier(t *testing.T) {
	quota := &fakeQuota{usage: 9}
	ledger := &fakeLedger{}
	producer := &fakeProducer{}
	p := newTestPipeline(quota, ledger, producer)

	invoked := 0
	content, err := p.Run(context.Background(), request(models.PlanFree, models.OpArticle,
		func(context.Context) (string, error) {
			invoked++
			return "the article", nil
		}))

	assert.NoError(t, err)
	assert.Equal(t, "the article", content)
	assert.Equal(t, 1, invoked)

	// One row, with the operation's type tag
	assert.Len(t, ledger.inserted, 1)
	assert.Equal(t, "Article", ledger.inserted[0].Type)
	assert.False(t, ledger.inserted[0].Publish)

	// Counter moved by exactly one, once
	assert.Equal(t, []int{10}, quota.writes)

	// Usage event emitted after everything succeeded
	assert.Len(t, producer.messages, 1)
}

func TestRunQuotaExceeded(t *testing.T) {
	quota := &fakeQuota{usage: 10}
	ledger := &fakeLedger{}
	p := newTestPipeline(quota, ledger, &fakeProducer{})

	invoked := 0
	_, err := p.Run(context.Background(), request(models.PlanFree, models.OpArticle,
		func(context.Context) (string, error) {
			invoked++
			return "", nil
		}))

	assert.ErrorIs(t, err, ErrQuotaExceeded)
	assert.Equal(t, 0, invoked)
	assert.Empty(t, ledger.inserted)
	assert.Empty(t, quota.writes)
}

func TestRunImageClassLimit(t *testing.T) {
	// Usage 3 is under the text limit but at the image limit
	quota := &fakeQuota{usage: 3}
	p := newTestPipeline(quota, &fakeLedger{}, &fakeProducer{})

	_, err := p.Run(context.Background(), request(models.PlanFree, models.OpImage,
		func(context.Context) (string, error) { return "url", nil }))
	assert.ErrorIs(t, err, ErrQuotaExceeded)

	_, err = p.Run(context.Background(), request(models.PlanFree, models.OpBlogTitle,
		func(context.Context) (string, error) { return "title", nil }))
	assert.NoError(t, err)
}

func TestRunPremiumSkipsQuota(t *testing.T) {
	quota := &fakeQuota{usage: 1000}
	ledger := &fakeLedger{}
	p := newTestPipeline(quota, ledger, &fakeProducer{})

	content, err := p.Run(context.Background(), request(models.PlanPremium, models.OpImage,
		func(context.Context) (string, error) { return "url", nil }))

	assert.NoError(t, err)
	assert.Equal(t, "url", content)
	assert.Equal(t, 0, quota.reads)
	assert.Empty(t, quota.writes)
	assert.Len(t, ledger.inserted, 1)
}

func TestRunProviderFailure(t *testing.T) {
	quota := &fakeQuota{usage: 2}
	ledger := &fakeLedger{}
	producer := &fakeProducer{}
	p := newTestPipeline(quota, ledger, producer)

	provErr := fmt.Errorf("upstream 503")
	_, err := p.Run(context.Background(), request(models.PlanFree, models.OpArticle,
		func(context.Context) (string, error) { return "", provErr }))

	var providerErr *ProviderError
	assert.True(t, errors.As(err, &providerErr))
	assert.ErrorIs(t, err, provErr)

	// Nothing after the failed step ran
	assert.Empty(t, ledger.inserted)
	assert.Empty(t, quota.writes)
	assert.Empty(t, producer.messages)
}

func TestRunPersistenceFailure(t *testing.T) {
	quota := &fakeQuota{usage: 2}
	ledger := &fakeLedger{err: fmt.Errorf("connection reset")}
	producer := &fakeProducer{}
	p := newTestPipeline(quota, ledger, producer)

	_, err := p.Run(context.Background(), request(models.PlanFree, models.OpArticle,
		func(context.Context) (string, error) { return "text", nil }))

	var persistErr *PersistenceError
	assert.True(t, errors.As(err, &persistErr))
	assert.Empty(t, quota.writes)
	assert.Empty(t, producer.messages)
}

func TestRunUsageReadFailureDegrades(t *testing.T) {
	quota := &fakeQuota{usage: 8, readErr: fmt.Errorf("metadata unavailable")}
	ledger := &fakeLedger{}
	p := newTestPipeline(quota, ledger, &fakeProducer{})

	_, err := p.Run(context.Background(), request(models.PlanFree, models.OpArticle,
		func(context.Context) (string, error) { return "text", nil }))

	assert.NoError(t, err)
	// Reset to a fresh free trial, then metered as usual
	assert.Equal(t, []int{0, 1}, quota.writes)
}

func TestRunPublishOnlyWhereAllowed(t *testing.T) {
	tests := []struct {
		name        string
		op          models.Operation
		publish     bool
		wantPublish bool
	}{
		{"image generation honors publish", models.OpImage, true, true},
		{"image generation defaults private", models.OpImage, false, false},
		{"text ops never publish", models.OpArticle, true, false},
		{"background removal never publishes", models.OpRemoveBackground, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ledger := &fakeLedger{}
			p := newTestPipeline(&fakeQuota{}, ledger, &fakeProducer{})

			req := request(models.PlanFree, tt.op, func(context.Context) (string, error) { return "x", nil })
			req.Publish = tt.publish
			_, err := p.Run(context.Background(), req)

			assert.NoError(t, err)
			assert.Len(t, ledger.inserted, 1)
			assert.Equal(t, tt.wantPublish, ledger.inserted[0].Publish)
		})
	}
}

func TestRunEventFailureDoesNotFailRequest(t *testing.T) {
	quota := &fakeQuota{usage: 0}
	p := newTestPipeline(quota, &fakeLedger{}, &fakeProducer{err: fmt.Errorf("broker down")})

	content, err := p.Run(context.Background(), request(models.PlanFree, models.OpArticle,
		func(context.Context) (string, error) { return "text", nil }))

	assert.NoError(t, err)
	assert.Equal(t, "text", content)
	assert.Equal(t, []int{1}, quota.writes)
}
