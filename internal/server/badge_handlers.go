package server

import (
	"softspot/internal/models"

	"github.com/gofiber/fiber/v2"
)

// GetBadges handles GET /api/badges. It lists every badge definition and,
// for a signed-in caller or ?user_id=, the badges earned.
func (s *Server) GetBadges(c *fiber.Ctx) error {
	userID := c.Query("user_id")
	if userID == "" {
		userID, _ = c.Locals("userID").(string)
	}

	resp := fiber.Map{"definitions": s.badgeService.Definitions()}
	if userID != "" {
		earned, err := s.badgeService.Ledger(c.UserContext(), userID)
		if err != nil {
			return models.RespondWithAppError(c, err)
		}
		resp["earned"] = earned
	}
	return c.JSON(resp)
}

// EvaluateBadges handles POST /api/badges/evaluate and returns newly earned badges.
func (s *Server) EvaluateBadges(c *fiber.Ctx) error {
	userID, _ := c.Locals("userID").(string)
	awarded, err := s.badgeService.Evaluate(c.UserContext(), userID)
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(fiber.Map{"awarded": awarded})
}
