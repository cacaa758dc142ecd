package server

import (
	"log/slog"
	"strings"

	"softspot/internal/middleware"
	"softspot/internal/models"
	"softspot/internal/search"

	"github.com/gofiber/fiber/v2"
)

// Search result sources.
const (
	sourceIndex = "index"
	sourceStore = "store"
)

type searchResponse struct {
	*search.Result
	Source string `json:"source"`
	Stale  bool   `json:"stale,omitempty"`
}

// SearchListings handles GET /api/marketplace/search?q=...
// The search index serves the query when configured; otherwise, or when the
// index fails, the listings read path is filtered by text.
func (s *Server) SearchListings(c *fiber.Ctx) error {
	ctx := c.UserContext()
	q := strings.TrimSpace(c.Query("q"))
	f := postFilter(c, true)

	if s.searcher != nil {
		res, err := s.searcher.Search(ctx, search.Query{
			Text:        q,
			Species:     f.Species,
			Condition:   f.Condition,
			MinPrice:    f.MinPrice,
			MaxPrice:    f.MaxPrice,
			IncludeSold: f.IncludeSold,
			Limit:       f.Limit,
			Offset:      f.Offset,
		})
		if err == nil {
			return c.JSON(searchResponse{Result: res, Source: sourceIndex})
		}
		middleware.Logger.WarnContext(ctx, "Search index failed, filtering store listings", slog.String("error", err.Error()))
	}

	limit, offset := f.Limit, f.Offset
	f.Limit, f.Offset = maxPaginationLimit, 0
	page, err := s.postService.GetMarketplaceListings(ctx, f)
	if err != nil {
		return models.RespondWithAppError(c, err)
	}

	matched := make([]search.Hit, 0, len(page.Posts))
	for _, p := range page.Posts {
		if matchesText(p, q) {
			matched = append(matched, search.Hit{ID: p.ID, Doc: search.BuildListingDoc(p)})
		}
	}
	res := &search.Result{Total: int64(len(matched)), Hits: []search.Hit{}}
	if offset < len(matched) {
		end := offset + limit
		if end > len(matched) {
			end = len(matched)
		}
		res.Hits = matched[offset:end]
	}
	return c.JSON(searchResponse{Result: res, Source: sourceStore, Stale: page.Stale})
}

func matchesText(p models.Post, q string) bool {
	if q == "" {
		return true
	}
	q = strings.ToLower(q)
	if strings.Contains(strings.ToLower(p.Title), q) || strings.Contains(strings.ToLower(p.Description), q) {
		return true
	}
	for _, tag := range p.Tags {
		if strings.EqualFold(tag, q) {
			return true
		}
	}
	return false
}
