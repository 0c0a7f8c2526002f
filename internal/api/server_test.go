package api

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/IBM/sarama"
	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"

	"github.com/illegalcall/quick-ai/internal/config"
	"github.com/illegalcall/quick-ai/internal/ledger"
	"github.com/illegalcall/quick-ai/internal/models"
	"github.com/illegalcall/quick-ai/internal/pipeline"
	"github.com/illegalcall/quick-ai/internal/providers"
	"github.com/illegalcall/quick-ai/internal/storage"
	"github.com/illegalcall/quick-ai/pkg/database"
)

const testUserID = "0b9fbb65-ecb9-4f5d-8f8f-47dca6e0f3e4"

// mockProducer simulates the Kafka producer for testing
type mockProducer struct {
	sarama.SyncProducer
	messages []*sarama.ProducerMessage
}

func (m *mockProducer) SendMessage(msg *sarama.ProducerMessage) (partition int32, offset int64, err error) {
	m.messages = append(m.messages, msg)
	return 0, 0, nil
}

func (m *mockProducer) Close() error {
	return nil
}

// fakeQuota is an in-memory QuotaStore recording its calls.
type fakeQuota struct {
	usage    map[string]int
	failRead bool
	getCalls int
	setCalls int
}

func (f *fakeQuota) Usage(_ context.Context, userID string) (int, error) {
	f.getCalls++
	if f.failRead {
		return 0, fmt.Errorf("metadata unavailable")
	}
	return f.usage[userID], nil
}

func (f *fakeQuota) SetUsage(_ context.Context, userID string, usage int) error {
	f.setCalls++
	f.usage[userID] = usage
	return nil
}

type fakeCompleter struct {
	content string
	err     error
	calls   int
}

func (f *fakeCompleter) Complete(_ context.Context, prompt string, maxTokens int) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.content, nil
}

type fakeImages struct {
	data  []byte
	err   error
	calls int
}

func (f *fakeImages) Generate(_ context.Context, prompt string) ([]byte, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.data, nil
}

type fakeMedia struct {
	result      providers.UploadResult
	err         error
	uploadCalls int
	lastEffect  string
}

func (f *fakeMedia) UploadBytes(_ context.Context, data []byte, transformation string) (providers.UploadResult, error) {
	f.uploadCalls++
	f.lastEffect = transformation
	return f.result, f.err
}

func (f *fakeMedia) UploadFile(_ context.Context, path, transformation string) (providers.UploadResult, error) {
	f.uploadCalls++
	f.lastEffect = transformation
	return f.result, f.err
}

func (f *fakeMedia) URL(publicID, transformation string) string {
	return fmt.Sprintf("https://res.cloudinary.test/demo/image/upload/%s/%s", transformation, publicID)
}

type testEnv struct {
	server    *Server
	mock      sqlmock.Sqlmock
	redis     *miniredis.Miniredis
	producer  *mockProducer
	quota     *fakeQuota
	completer *fakeCompleter
	images    *fakeImages
	media     *fakeMedia
	plan      models.Plan
}

// setupTestServer wires a Server against sqlmock, miniredis and fake
// providers, with the JWT middleware replaced by a stub identity.
func setupTestServer(t *testing.T) *testEnv {
	t.Helper()

	mockDB, mock, err := sqlmock.New()
	assert.NoError(t, err)
	db := sqlx.NewDb(mockDB, "sqlmock")

	miniRedis, err := miniredis.Run()
	assert.NoError(t, err)
	t.Cleanup(miniRedis.Close)

	redisClient := redis.NewClient(&redis.Options{
		Addr: miniRedis.Addr(),
	})

	cfg := &config.Config{
		Server: config.ServerConfig{
			Port:            ":8080",
			Environment:     "development",
			CacheExpiration: 30 * time.Second,
		},
		Supabase: config.SupabaseConfig{JWTSecret: "test-secret"},
		Kafka:    config.KafkaConfig{Topic: "usage-events"},
		Quota:    config.QuotaConfig{TextLimit: 10, ImageLimit: 3},
		Storage: config.StorageConfig{
			TempDir:       t.TempDir(),
			ResumeMaxSize: 5 * 1024 * 1024,
		},
	}

	localStorage, err := storage.NewLocalStorage(cfg.Storage.TempDir)
	assert.NoError(t, err)

	env := &testEnv{
		mock:      mock,
		redis:     miniRedis,
		producer:  &mockProducer{},
		quota:     &fakeQuota{usage: map[string]int{}},
		completer: &fakeCompleter{content: "generated text"},
		images:    &fakeImages{data: []byte("png-bytes")},
		media: &fakeMedia{result: providers.UploadResult{
			PublicID:  "abc123",
			SecureURL: "https://res.cloudinary.test/demo/image/upload/abc123",
		}},
		plan: models.PlanFree,
	}

	clients := &database.Clients{DB: db, Redis: redisClient}
	ledgerStore := ledger.NewStore(db)

	server := &Server{
		app:       fiber.New(fiber.Config{BodyLimit: 20 * 1024 * 1024}),
		cfg:       cfg,
		db:        clients,
		producer:  env.producer,
		storage:   localStorage,
		ledger:    ledgerStore,
		quota:     env.quota,
		completer: env.completer,
		images:    env.images,
		media:     env.media,
	}
	server.pipeline = pipeline.New(env.quota, ledgerStore, env.producer, cfg.Kafka.Topic, cfg.Quota.TextLimit, cfg.Quota.ImageLimit)
	env.server = server

	// Stub identity instead of the JWT middleware
	server.app.Use(func(c *fiber.Ctx) error {
		c.Locals(localUserID, testUserID)
		c.Locals(localPlan, env.plan)
		return c.Next()
	})

	server.app.Post("/api/ai/generate-article", server.handleGenerateArticle)
	server.app.Post("/api/ai/generate-title", server.handleGenerateTitle)
	server.app.Post("/api/ai/generate-image", server.handleGenerateImage)
	server.app.Post("/api/ai/remove-image-background", server.handleRemoveBackground)
	server.app.Post("/api/ai/remove-image-object", server.handleRemoveObject)
	server.app.Post("/api/ai/resume-review", server.handleResumeReview)
	server.app.Get("/api/user/get-user-creations", server.handleGetUserCreations)
	server.app.Get("/api/user/get-published-creation", server.handleGetPublishedCreations)
	server.app.Post("/api/user/toggle-like-creation", server.handleToggleLike)
	server.app.Get("/api/user/usage", server.handleGetUsage)

	return env
}

func jsonRequest(t *testing.T, method, target string, body []byte) *http.Request {
	t.Helper()
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

// multipartRequest builds a multipart upload with one file part plus extra
// string fields.
func multipartRequest(t *testing.T, target, fileField, filename string, content []byte, fields map[string]string) *http.Request {
	t.Helper()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	for k, v := range fields {
		assert.NoError(t, writer.WriteField(k, v))
	}
	part, err := writer.CreateFormFile(fileField, filename)
	assert.NoError(t, err)
	_, err = io.Copy(part, bytes.NewReader(content))
	assert.NoError(t, err)
	assert.NoError(t, writer.Close())

	req := httptest.NewRequest("POST", target, &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}
