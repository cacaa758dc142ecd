package server

import (
	"strconv"
	"strings"

	"softspot/internal/forms"
	"softspot/internal/models"
	"softspot/internal/repository"

	"github.com/gofiber/fiber/v2"
)

// Pagination holds parsed limit/offset query parameters.
type Pagination struct {
	Limit  int
	Offset int
}

const (
	maxPaginationLimit = 100
)

// parsePagination extracts limit and offset query parameters with the given default limit.
func parsePagination(c *fiber.Ctx, defaultLimit int) Pagination {
	limit := c.QueryInt("limit", defaultLimit)
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxPaginationLimit {
		limit = maxPaginationLimit
	}

	offset := c.QueryInt("offset", 0)
	if offset < 0 {
		offset = 0
	}

	return Pagination{
		Limit:  limit,
		Offset: offset,
	}
}

// parseFloatQuery reads a non-negative number, treating junk as absent.
func parseFloatQuery(c *fiber.Ctx, key string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(c.Query(key)), 64)
	if err != nil || v < 0 {
		return 0
	}
	return v
}

// postFilter reads the shared feed and marketplace filters.
func postFilter(c *fiber.Ctx, listingsOnly bool) repository.PostFilter {
	page := parsePagination(c, 20)
	return repository.PostFilter{
		UserID:       c.Query("user_id"),
		ListingsOnly: listingsOnly || c.QueryBool("listings", false),
		IncludeSold:  c.QueryBool("include_sold", false),
		Species:      strings.TrimSpace(c.Query("species")),
		Condition:    strings.TrimSpace(c.Query("condition")),
		MinPrice:     parseFloatQuery(c, "min_price"),
		MaxPrice:     parseFloatQuery(c, "max_price"),
		Limit:        page.Limit,
		Offset:       page.Offset,
	}
}

// bodyDraft decodes a JSON object body into a form draft. An empty body is an
// empty draft.
func bodyDraft(c *fiber.Ctx) (map[string]any, error) {
	draft := map[string]any{}
	if len(c.Body()) == 0 {
		return draft, nil
	}
	if err := c.BodyParser(&draft); err != nil {
		return nil, models.NewValidationError("Invalid request body")
	}
	return draft, nil
}

// submitForm runs the request body through a form controller bound to submit.
func submitForm[T, R any](c *fiber.Ctx, schema forms.Schema, submit forms.SubmitFunc[T, R], preset map[string]any) (R, error) {
	draft, err := bodyDraft(c)
	if err != nil {
		var zero R
		return zero, err
	}
	for k, v := range preset {
		draft[k] = v
	}
	return forms.NewController(schema, submit).Submit(c.UserContext(), draft)
}

// draftForSale reports whether the draft asks for a listing.
func draftForSale(c *fiber.Ctx) bool {
	var probe struct {
		ForSale any `json:"for_sale"`
	}
	if len(c.Body()) == 0 || c.BodyParser(&probe) != nil {
		return false
	}
	switch v := probe.ForSale.(type) {
	case bool:
		return v
	case string:
		b, _ := strconv.ParseBool(v)
		return b
	default:
		return false
	}
}

// postSchema picks the sell-item form for listings and the post-draft form otherwise.
func postSchema(c *fiber.Ctx) forms.Schema {
	if draftForSale(c) {
		return forms.SellItem
	}
	return forms.PostDraft
}
