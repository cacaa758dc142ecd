package server

import (
	"softspot/internal/forms"
	"softspot/internal/models"

	"github.com/gofiber/fiber/v2"
)

// GetTrades handles GET /api/trades?direction=incoming|outgoing
func (s *Server) GetTrades(c *fiber.Ctx) error {
	page := parsePagination(c, 20)
	trades, err := s.tradeService.List(c.UserContext(), c.Query("direction"), page.Limit, page.Offset)
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(trades)
}

// CreateTrade handles POST /api/trades
func (s *Server) CreateTrade(c *fiber.Ctx) error {
	trade, err := submitForm(c, forms.TradeOffer, s.tradeService.Create, nil)
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(trade)
}

// RespondTrade handles POST /api/trades/:id/respond with {"accept": bool}
func (s *Server) RespondTrade(c *fiber.Ctx) error {
	var req struct {
		Accept *bool `json:"accept"`
	}
	if err := c.BodyParser(&req); err != nil || req.Accept == nil {
		return models.RespondWithAppError(c, models.NewFieldValidationError(map[string]string{"accept": "Choose accept or decline"}))
	}
	trade, err := s.tradeService.Respond(c.UserContext(), c.Params("id"), *req.Accept)
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(trade)
}

// CancelTrade handles POST /api/trades/:id/cancel
func (s *Server) CancelTrade(c *fiber.Ctx) error {
	trade, err := s.tradeService.Cancel(c.UserContext(), c.Params("id"))
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(trade)
}
