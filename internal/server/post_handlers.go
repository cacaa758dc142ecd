package server

import (
	"context"

	"softspot/internal/forms"
	"softspot/internal/models"
	"softspot/internal/service"

	"github.com/gofiber/fiber/v2"
)

// CreatePost handles POST /api/posts
func (s *Server) CreatePost(c *fiber.Ctx) error {
	post, err := submitForm(c, postSchema(c), s.postService.AddPost, nil)
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(post)
}

// GetPosts handles GET /api/posts
func (s *Server) GetPosts(c *fiber.Ctx) error {
	page, err := s.postService.GetPosts(c.UserContext(), postFilter(c, false))
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(page)
}

// GetPost handles GET /api/posts/:id
func (s *Server) GetPost(c *fiber.Ctx) error {
	post, err := s.postService.GetPost(c.UserContext(), c.Params("id"))
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(post)
}

// UpdatePost handles PUT /api/posts/:id
func (s *Server) UpdatePost(c *fiber.Ctx) error {
	postID := c.Params("id")
	post, err := submitForm(c, postSchema(c), func(ctx context.Context, in service.PostInput) (*models.Post, error) {
		return s.postService.UpdatePost(ctx, postID, in)
	}, nil)
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(post)
}

// DeletePost handles DELETE /api/posts/:id
func (s *Server) DeletePost(c *fiber.Ctx) error {
	if err := s.postService.DeletePost(c.UserContext(), c.Params("id")); err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// ToggleLike handles POST /api/posts/:id/like
func (s *Server) ToggleLike(c *fiber.Ctx) error {
	res, err := s.postService.ToggleLike(c.UserContext(), c.Params("id"))
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(res)
}

// MarkSold handles POST /api/posts/:id/sold
func (s *Server) MarkSold(c *fiber.Ctx) error {
	post, err := s.postService.MarkSold(c.UserContext(), c.Params("id"))
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(post)
}

// GetListings handles GET /api/marketplace/listings
func (s *Server) GetListings(c *fiber.Ctx) error {
	page, err := s.postService.GetMarketplaceListings(c.UserContext(), postFilter(c, true))
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(page)
}

// CreateListing handles POST /api/marketplace/listings. The body is always
// validated as a sell-item form.
func (s *Server) CreateListing(c *fiber.Ctx) error {
	post, err := submitForm(c, forms.SellItem, s.postService.AddPost, map[string]any{"for_sale": true})
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(post)
}

// PlaceBid handles POST /api/marketplace/listings/:id/bids
func (s *Server) PlaceBid(c *fiber.Ctx) error {
	listingID := c.Params("id")
	bid, err := submitForm(c, forms.Bid, func(ctx context.Context, in service.BidInput) (*models.ListingBid, error) {
		return s.postService.PlaceBid(ctx, listingID, in)
	}, nil)
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(bid)
}
