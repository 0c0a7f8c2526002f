package api

import (
	"context"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/illegalcall/quick-ai/internal/models"
	"github.com/illegalcall/quick-ai/internal/pipeline"
	"github.com/illegalcall/quick-ai/internal/providers"
)

const (
	defaultArticleTokens = 800
	blogTitleTokens      = 100
	resumeReviewTokens   = 1000
)

// handleGenerateArticle handles POST /api/ai/generate-article
func (s *Server) handleGenerateArticle(c *fiber.Ctx) error {
	var req struct {
		Prompt string `json:"prompt"`
		Length int    `json:"length"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "Invalid request body",
		})
	}
	if req.Prompt == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "Prompt is required",
		})
	}
	if req.Length <= 0 {
		req.Length = defaultArticleTokens
	}

	userID, plan := identity(c)
	content, err := s.pipeline.Run(c.Context(), pipeline.Request{
		UserID: userID,
		Plan:   plan,
		Op:     models.OpArticle,
		Prompt: req.Prompt,
		Invoke: func(ctx context.Context) (string, error) {
			return s.completer.Complete(ctx, req.Prompt, req.Length)
		},
	})
	if err != nil {
		return s.respondError(c, err)
	}

	return c.JSON(fiber.Map{"success": true, "content": content})
}

// handleGenerateTitle handles POST /api/ai/generate-title
func (s *Server) handleGenerateTitle(c *fiber.Ctx) error {
	var req struct {
		Prompt string `json:"prompt"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "Invalid request body",
		})
	}
	if req.Prompt == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "Prompt is required",
		})
	}

	userID, plan := identity(c)
	content, err := s.pipeline.Run(c.Context(), pipeline.Request{
		UserID: userID,
		Plan:   plan,
		Op:     models.OpBlogTitle,
		Prompt: req.Prompt,
		Invoke: func(ctx context.Context) (string, error) {
			prompt := fmt.Sprintf("Generate a blog title for an article about %s", req.Prompt)
			return s.completer.Complete(ctx, prompt, blogTitleTokens)
		},
	})
	if err != nil {
		return s.respondError(c, err)
	}

	return c.JSON(fiber.Map{"success": true, "content": content})
}

// handleGenerateImage handles POST /api/ai/generate-image. The generated
// image is uploaded to the CDN and the creation stores its URL; this is the
// only operation honoring the caller's publish flag.
func (s *Server) handleGenerateImage(c *fiber.Ctx) error {
	var req struct {
		Prompt  string `json:"prompt"`
		Publish bool   `json:"publish"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "Invalid request body",
		})
	}
	if req.Prompt == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "Prompt is required",
		})
	}

	userID, plan := identity(c)
	imageURL, err := s.pipeline.Run(c.Context(), pipeline.Request{
		UserID:  userID,
		Plan:    plan,
		Op:      models.OpImage,
		Prompt:  req.Prompt,
		Publish: req.Publish,
		Invoke: func(ctx context.Context) (string, error) {
			data, err := s.images.Generate(ctx, req.Prompt)
			if err != nil {
				return "", err
			}
			result, err := s.media.UploadBytes(ctx, data, "")
			if err != nil {
				return "", err
			}
			return result.SecureURL, nil
		},
	})
	if err != nil {
		return s.respondError(c, err)
	}

	if req.Publish {
		s.invalidatePublishedCache(c.Context())
	}

	return c.JSON(fiber.Map{"success": true, "imageUrl": imageURL})
}

// handleRemoveBackground handles POST /api/ai/remove-image-background
// (multipart: image).
func (s *Server) handleRemoveBackground(c *fiber.Ctx) error {
	file, err := c.FormFile("image")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "Image file is required",
		})
	}

	path, err := s.storage.StoreUpload(c.Context(), file)
	if err != nil {
		return s.respondError(c, err)
	}
	defer s.storage.Delete(context.Background(), path)

	userID, plan := identity(c)
	content, err := s.pipeline.Run(c.Context(), pipeline.Request{
		UserID: userID,
		Plan:   plan,
		Op:     models.OpRemoveBackground,
		Prompt: "Remove background from image",
		Invoke: func(ctx context.Context) (string, error) {
			result, err := s.media.UploadFile(ctx, path, "e_background_removal")
			if err != nil {
				return "", err
			}
			return result.SecureURL, nil
		},
	})
	if err != nil {
		return s.respondError(c, err)
	}

	return c.JSON(fiber.Map{"success": true, "content": content})
}

// handleRemoveObject handles POST /api/ai/remove-image-object (multipart:
// image, object). The object name must be a single token; multi-word input
// is rejected before anything is stored or any provider is called.
func (s *Server) handleRemoveObject(c *fiber.Ctx) error {
	object := strings.TrimSpace(c.FormValue("object"))
	if object == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "Object name is required",
		})
	}
	if len(strings.Fields(object)) > 1 {
		return s.respondError(c, &pipeline.InvalidInputError{Reason: "Please enter a single object name"})
	}

	file, err := c.FormFile("image")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "Image file is required",
		})
	}

	path, err := s.storage.StoreUpload(c.Context(), file)
	if err != nil {
		return s.respondError(c, err)
	}
	defer s.storage.Delete(context.Background(), path)

	userID, plan := identity(c)
	content, err := s.pipeline.Run(c.Context(), pipeline.Request{
		UserID: userID,
		Plan:   plan,
		Op:     models.OpRemoveObject,
		Prompt: fmt.Sprintf("Remove %s from image", object),
		Invoke: func(ctx context.Context) (string, error) {
			result, err := s.media.UploadFile(ctx, path, "")
			if err != nil {
				return "", err
			}
			return s.media.URL(result.PublicID, "e_gen_remove:"+object), nil
		},
	})
	if err != nil {
		return s.respondError(c, err)
	}

	return c.JSON(fiber.Map{"success": true, "content": content})
}

// handleResumeReview handles POST /api/ai/resume-review (multipart: resume).
func (s *Server) handleResumeReview(c *fiber.Ctx) error {
	file, err := c.FormFile("resume")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "Resume file is required",
		})
	}
	if file.Size > s.cfg.Storage.ResumeMaxSize {
		return s.respondError(c, &pipeline.InvalidInputError{Reason: "Resume file size exceeds the 5MB limit."})
	}

	path, err := s.storage.StoreUpload(c.Context(), file)
	if err != nil {
		return s.respondError(c, err)
	}
	defer s.storage.Delete(context.Background(), path)

	userID, plan := identity(c)
	content, err := s.pipeline.Run(c.Context(), pipeline.Request{
		UserID: userID,
		Plan:   plan,
		Op:     models.OpResumeReview,
		Prompt: "Review the uploaded resume",
		Invoke: func(ctx context.Context) (string, error) {
			text, err := providers.ExtractPDFText(path)
			if err != nil {
				return "", err
			}
			prompt := fmt.Sprintf("Review the following resume and provide constructive feedback on its strengths, weaknesses, and areas for improvement. Resume content:\n\n%s", text)
			return s.completer.Complete(ctx, prompt, resumeReviewTokens)
		},
	})
	if err != nil {
		return s.respondError(c, err)
	}

	return c.JSON(fiber.Map{"success": true, "content": content})
}
