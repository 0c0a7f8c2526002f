package api

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"github.com/illegalcall/quick-ai/internal/models"
)

// publishedCacheKey holds the cached JSON of the public feed. Invalidated
// whenever a publish-visible row is inserted or a like toggled.
const publishedCacheKey = "creations:published"

// handleGetUserCreations handles GET /api/user/get-user-creations
func (s *Server) handleGetUserCreations(c *fiber.Ctx) error {
	userID, _ := identity(c)

	creations, err := s.ledger.ListByUser(c.Context(), userID)
	if err != nil {
		return s.respondError(c, err)
	}
	if creations == nil {
		creations = []models.Creation{}
	}

	return c.JSON(fiber.Map{"success": true, "creations": creations})
}

// handleGetPublishedCreations handles GET /api/user/get-published-creation.
// The feed is identical for every caller, so it is served from a short-TTL
// Redis cache in front of Postgres.
func (s *Server) handleGetPublishedCreations(c *fiber.Ctx) error {
	if cached, err := s.db.Redis.Get(c.Context(), publishedCacheKey).Result(); err == nil {
		var creations []models.Creation
		if err := json.Unmarshal([]byte(cached), &creations); err == nil {
			return c.JSON(fiber.Map{"success": true, "creations": creations})
		}
	}

	creations, err := s.ledger.ListPublished(c.Context())
	if err != nil {
		return s.respondError(c, err)
	}
	if creations == nil {
		creations = []models.Creation{}
	}

	if encoded, err := json.Marshal(creations); err == nil {
		if err := s.db.Redis.Set(c.Context(), publishedCacheKey, encoded, s.cfg.Server.CacheExpiration).Err(); err != nil {
			slog.Error("Failed to cache published feed", "error", err)
		}
	}

	return c.JSON(fiber.Map{"success": true, "creations": creations})
}

// handleToggleLike handles POST /api/user/toggle-like-creation
func (s *Server) handleToggleLike(c *fiber.Ctx) error {
	var req struct {
		ID int `json:"id"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "Invalid request body",
		})
	}

	userID, _ := identity(c)
	liked, err := s.ledger.ToggleLike(c.Context(), req.ID, userID)
	if err != nil {
		return s.respondError(c, err)
	}

	s.invalidatePublishedCache(c.Context())

	message := "Creation unliked successfully"
	if liked {
		message = "Creation liked successfully"
	}
	return c.JSON(fiber.Map{"success": true, "message": message})
}

// handleGetUsage handles GET /api/user/usage, surfacing the caller's plan
// and remaining free-tier allowance.
func (s *Server) handleGetUsage(c *fiber.Ctx) error {
	userID, plan := identity(c)

	if plan == models.PlanPremium {
		return c.JSON(fiber.Map{"success": true, "plan": plan})
	}

	usage, err := s.quota.Usage(c.Context(), userID)
	if err != nil {
		return s.respondError(c, err)
	}

	return c.JSON(fiber.Map{
		"success":     true,
		"plan":        plan,
		"usage":       usage,
		"text_limit":  s.cfg.Quota.TextLimit,
		"image_limit": s.cfg.Quota.ImageLimit,
	})
}

func (s *Server) invalidatePublishedCache(ctx context.Context) {
	if err := s.db.Redis.Del(ctx, publishedCacheKey).Err(); err != nil {
		slog.Error("Failed to invalidate published feed cache", "error", err)
	}
}
