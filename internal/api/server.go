package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/IBM/sarama"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	jwtware "github.com/gofiber/jwt/v3"

	"github.com/illegalcall/quick-ai/internal/config"
	"github.com/illegalcall/quick-ai/internal/ledger"
	"github.com/illegalcall/quick-ai/internal/pipeline"
	"github.com/illegalcall/quick-ai/internal/providers"
	"github.com/illegalcall/quick-ai/internal/quota"
	"github.com/illegalcall/quick-ai/internal/storage"
	"github.com/illegalcall/quick-ai/pkg/database"
)

// Completer is the text-completion capability.
type Completer interface {
	Complete(ctx context.Context, prompt string, maxTokens int) (string, error)
}

// ImageGenerator synthesizes an image for a prompt.
type ImageGenerator interface {
	Generate(ctx context.Context, prompt string) ([]byte, error)
}

// MediaStore uploads artifacts to the CDN and builds transformed URLs.
type MediaStore interface {
	UploadBytes(ctx context.Context, data []byte, transformation string) (providers.UploadResult, error)
	UploadFile(ctx context.Context, path, transformation string) (providers.UploadResult, error)
	URL(publicID, transformation string) string
}

type Server struct {
	app      *fiber.App
	cfg      *config.Config
	db       *database.Clients
	producer sarama.SyncProducer
	storage  storage.Storage
	ledger   *ledger.Store
	quota    pipeline.QuotaStore
	pipeline *pipeline.Pipeline

	completer Completer
	images    ImageGenerator
	media     MediaStore
}

func NewServer(cfg *config.Config, db *database.Clients, producer sarama.SyncProducer) (*Server, error) {
	localStorage, err := storage.NewLocalStorage(cfg.Storage.TempDir)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	app := fiber.New(fiber.Config{
		BodyLimit: int(cfg.Storage.MaxUploadSize),
	})

	// Middleware
	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${ip} ${method} ${path} ${status}\n",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.Server.AllowOrigins,
		AllowCredentials: true,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
	}))
	app.Use(limiter.New(limiter.Config{
		Max:        cfg.Server.MaxRequests,
		Expiration: cfg.Server.RequestTimeout,
	}))

	quotaStore := quota.NewSupabaseStore(cfg.Supabase.URL, cfg.Supabase.ServiceKey)
	ledgerStore := ledger.NewStore(db.DB)

	server := &Server{
		app:       app,
		cfg:       cfg,
		db:        db,
		producer:  producer,
		storage:   localStorage,
		ledger:    ledgerStore,
		quota:     quotaStore,
		completer: providers.NewGeminiClient(cfg.Gemini.APIKey, cfg.Gemini.Model),
		images:    providers.NewClipDropClient(cfg.ClipDrop.URL, cfg.ClipDrop.APIKey),
		media:     providers.NewCloudinaryClient(cfg.Cloudinary.CloudName, cfg.Cloudinary.APIKey, cfg.Cloudinary.APISecret),
	}
	server.pipeline = pipeline.New(quotaStore, ledgerStore, producer, cfg.Kafka.Topic, cfg.Quota.TextLimit, cfg.Quota.ImageLimit)

	// Routes
	server.setupRoutes()

	return server, nil
}

func (s *Server) setupRoutes() {
	s.app.Get("/", func(c *fiber.Ctx) error {
		return c.SendString("Server is Healthy!")
	})

	api := s.app.Group("/api")

	// Every API route requires a bearer identity
	protected := api.Use(jwtware.New(jwtware.Config{
		SigningKey: []byte(s.cfg.Supabase.JWTSecret),
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"success": false,
				"error":   "Unauthorized",
			})
		},
	}), s.requireIdentity)

	ai := protected.Group("/ai")
	ai.Post("/generate-article", s.handleGenerateArticle)
	ai.Post("/generate-title", s.handleGenerateTitle)
	ai.Post("/generate-image", s.handleGenerateImage)
	ai.Post("/remove-image-background", s.handleRemoveBackground)
	ai.Post("/remove-image-object", s.handleRemoveObject)
	ai.Post("/resume-review", s.handleResumeReview)

	user := protected.Group("/user")
	user.Get("/get-user-creations", s.handleGetUserCreations)
	user.Get("/get-published-creation", s.handleGetPublishedCreations)
	user.Post("/toggle-like-creation", s.handleToggleLike)
	user.Get("/usage", s.handleGetUsage)
}

func (s *Server) Start() error {
	return s.app.Listen(s.cfg.Server.Port)
}

// respondError converts a pipeline or store failure into the flat
// {success, error} envelope with the matching HTTP status.
func (s *Server) respondError(c *fiber.Ctx, err error) error {
	var invalid *pipeline.InvalidInputError

	switch {
	case errors.Is(err, pipeline.ErrQuotaExceeded):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"success": false,
			"error":   "You have exceeded your free usage limit. Please upgrade to premium.",
		})
	case errors.As(err, &invalid):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   invalid.Reason,
		})
	case errors.Is(err, ledger.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"success": false,
			"error":   "Creation not found",
		})
	case errors.Is(err, providers.ErrCreditsExhausted):
		return c.Status(fiber.StatusPaymentRequired).JSON(fiber.Map{
			"success": false,
			"error":   "Provider API credits exhausted. Please check your API billing.",
		})
	default:
		slog.Error("Request failed", "path", c.Path(), "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   err.Error(),
		})
	}
}
