package server

import (
	"errors"
	"strconv"

	"softspot/internal/models"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// GetOutbox handles GET /api/admin/outbox. ?unresolved=true hides processed events.
func (s *Server) GetOutbox(c *fiber.Ctx) error {
	ctx := c.UserContext()
	page := parsePagination(c, 50)

	stats, err := s.box.Stats(ctx)
	if err != nil {
		return models.RespondWithAppError(c, models.NewInternalError(err))
	}
	events, err := s.box.List(ctx, c.QueryBool("unresolved", false), page.Limit, page.Offset)
	if err != nil {
		return models.RespondWithAppError(c, models.NewInternalError(err))
	}
	return c.JSON(fiber.Map{"stats": stats, "events": events})
}

// GetDLQ handles GET /api/admin/dlq
func (s *Server) GetDLQ(c *fiber.Ctx) error {
	page := parsePagination(c, 50)
	entries, err := s.box.UnresolvedDLQ(c.UserContext(), page.Limit)
	if err != nil {
		return models.RespondWithAppError(c, models.NewInternalError(err))
	}
	return c.JSON(entries)
}

// RetryDLQ handles POST /api/admin/dlq/:id/retry
func (s *Server) RetryDLQ(c *fiber.Ctx) error {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || id <= 0 {
		return models.RespondWithAppError(c, models.NewValidationError("Invalid DLQ entry id"))
	}
	if err := s.worker.RetryDLQEntry(c.UserContext(), id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.RespondWithAppError(c, models.NewNotFoundError("DLQ entry", id))
		}
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(fiber.Map{"id": id, "resolved": true})
}

// GetFeatureFlags handles GET /api/admin/feature-flags
func (s *Server) GetFeatureFlags(c *fiber.Ctx) error {
	userID, _ := c.Locals("userID").(string)
	return c.JSON(fiber.Map{
		"flags":     s.featureFlags.Raw(),
		"effective": s.featureFlags.Snapshot(userID),
	})
}
