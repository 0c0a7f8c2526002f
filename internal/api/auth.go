package api

import (
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v4"

	"github.com/illegalcall/quick-ai/internal/models"
)

const (
	localUserID = "userID"
	localPlan   = "plan"
)

// requireIdentity runs after JWT verification. It pulls the user id from
// the token's sub claim and resolves the plan tier from the app_metadata
// entitlement claim; anything other than an explicit premium entitlement
// is treated as free.
func (s *Server) requireIdentity(c *fiber.Ctx) error {
	token, ok := c.Locals("user").(*jwt.Token)
	if !ok {
		return unauthorized(c)
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return unauthorized(c)
	}

	sub, _ := claims["sub"].(string)
	if sub == "" {
		return unauthorized(c)
	}

	plan := models.PlanFree
	if meta, ok := claims["app_metadata"].(map[string]interface{}); ok {
		if p, _ := meta["plan"].(string); p == string(models.PlanPremium) {
			plan = models.PlanPremium
		}
	}

	c.Locals(localUserID, sub)
	c.Locals(localPlan, plan)
	return c.Next()
}

// identity returns the caller established by requireIdentity.
func identity(c *fiber.Ctx) (string, models.Plan) {
	userID, _ := c.Locals(localUserID).(string)
	plan, ok := c.Locals(localPlan).(models.Plan)
	if !ok {
		plan = models.PlanFree
	}
	return userID, plan
}

func unauthorized(c *fiber.Ctx) error {
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
		"success": false,
		"error":   "Unauthorized",
	})
}
