package server

import (
	"softspot/internal/forms"
	"softspot/internal/models"

	"github.com/gofiber/fiber/v2"
)

// GetWishlist handles GET /api/wishlist
func (s *Server) GetWishlist(c *fiber.Ctx) error {
	page, err := s.wishlistService.List(c.UserContext())
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(page)
}

// AddWishlistItem handles POST /api/wishlist
func (s *Server) AddWishlistItem(c *fiber.Ctx) error {
	item, err := submitForm(c, forms.Wishlist, s.wishlistService.Add, nil)
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(item)
}

// UpdateWishlistItem handles PATCH /api/wishlist/:id. Priority and status
// may be changed in one request.
func (s *Server) UpdateWishlistItem(c *fiber.Ctx) error {
	var req struct {
		Priority *string `json:"priority"`
		Status   *string `json:"status"`
	}
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithAppError(c, models.NewValidationError("Invalid request body"))
	}
	if req.Priority == nil && req.Status == nil {
		return models.RespondWithAppError(c, models.NewValidationError("Nothing to update"))
	}

	ctx := c.UserContext()
	itemID := c.Params("id")
	var (
		item *models.WishlistItem
		err  error
	)
	if req.Priority != nil {
		if item, err = s.wishlistService.UpdatePriority(ctx, itemID, *req.Priority); err != nil {
			return models.RespondWithAppError(c, err)
		}
	}
	if req.Status != nil {
		if item, err = s.wishlistService.UpdateStatus(ctx, itemID, *req.Status); err != nil {
			return models.RespondWithAppError(c, err)
		}
	}
	return c.JSON(item)
}

// RemoveWishlistItem handles DELETE /api/wishlist/:id
func (s *Server) RemoveWishlistItem(c *fiber.Ctx) error {
	if err := s.wishlistService.Remove(c.UserContext(), c.Params("id")); err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
