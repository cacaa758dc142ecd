package server

import (
	"softspot/internal/forms"
	"softspot/internal/models"

	"github.com/gofiber/fiber/v2"
)

// SignIn handles POST /api/session. The caller's user row is created or
// synced before the session is recorded.
func (s *Server) SignIn(c *fiber.Ctx) error {
	session, err := s.userService.SignIn(c.UserContext())
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(session)
}

// GetSession handles GET /api/session
func (s *Server) GetSession(c *fiber.Ctx) error {
	session, err := s.userService.Session(c.UserContext())
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(session)
}

// SignOut handles DELETE /api/session
func (s *Server) SignOut(c *fiber.Ctx) error {
	if err := s.userService.SignOut(c.UserContext()); err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// GetProfile handles GET /api/profile. Another user's profile can be read
// with ?user_id=.
func (s *Server) GetProfile(c *fiber.Ctx) error {
	userID := c.Query("user_id")
	if userID == "" {
		userID, _ = c.Locals("userID").(string)
	}
	profile, err := s.userService.GetProfile(c.UserContext(), userID)
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(profile)
}

// UpdateProfile handles PUT /api/profile
func (s *Server) UpdateProfile(c *fiber.Ctx) error {
	profile, err := submitForm(c, forms.ProfileSettings, s.userService.UpdateProfile, nil)
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(profile)
}

// CompleteOnboarding handles POST /api/onboarding
func (s *Server) CompleteOnboarding(c *fiber.Ctx) error {
	profile, err := submitForm(c, forms.Onboarding, s.userService.CompleteOnboarding, nil)
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(profile)
}
