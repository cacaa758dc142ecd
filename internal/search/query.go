package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	es "github.com/elastic/go-elasticsearch/v8"
)

// Query is a marketplace search request.
type Query struct {
	Text        string
	Species     string
	Condition   string
	MinPrice    float64
	MaxPrice    float64
	IncludeSold bool
	Limit       int
	Offset      int
}

// Hit is one matched listing.
type Hit struct {
	ID    string     `json:"id"`
	Score float64    `json:"score"`
	Doc   ListingDoc `json:"listing"`
}

// Result is a page of hits.
type Result struct {
	Total int64 `json:"total"`
	Hits  []Hit `json:"hits"`
}

// Searcher runs listing queries.
type Searcher struct {
	es *es.Client
}

// NewSearcher returns a searcher over c.
func NewSearcher(c *es.Client) *Searcher {
	return &Searcher{es: c}
}

func buildQuery(q Query) map[string]any {
	var must []any
	if q.Text != "" {
		must = append(must, map[string]any{
			"multi_match": map[string]any{
				"query":  q.Text,
				"fields": []string{"title^3", "description", "tags^2", "brand"},
			},
		})
	}

	var filter []any
	if q.Species != "" {
		filter = append(filter, map[string]any{"term": map[string]any{"species": q.Species}})
	}
	if q.Condition != "" {
		filter = append(filter, map[string]any{"term": map[string]any{"condition": q.Condition}})
	}
	if q.MinPrice > 0 || q.MaxPrice > 0 {
		rng := map[string]any{}
		if q.MinPrice > 0 {
			rng["gte"] = q.MinPrice
		}
		if q.MaxPrice > 0 {
			rng["lte"] = q.MaxPrice
		}
		filter = append(filter, map[string]any{"range": map[string]any{"price": rng}})
	}
	if !q.IncludeSold {
		filter = append(filter, map[string]any{"term": map[string]any{"sold": false}})
	}

	boolQ := map[string]any{}
	if len(must) > 0 {
		boolQ["must"] = must
	} else {
		boolQ["must"] = []any{map[string]any{"match_all": map[string]any{}}}
	}
	if len(filter) > 0 {
		boolQ["filter"] = filter
	}

	limit := q.Limit
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	body := map[string]any{
		"query": map[string]any{"bool": boolQ},
		"from":  q.Offset,
		"size":  limit,
	}
	if q.Text == "" {
		body["sort"] = []any{map[string]any{"created_at": "desc"}}
	}
	return body
}

// Search runs q against the listings index.
func (s *Searcher) Search(ctx context.Context, q Query) (*Result, error) {
	body, err := json.Marshal(buildQuery(q))
	if err != nil {
		return nil, err
	}
	res, err := s.es.Search(
		s.es.Search.WithContext(ctx),
		s.es.Search.WithIndex(IdxListings),
		s.es.Search.WithBody(bytes.NewReader(body)),
	)
	if err != nil {
		return nil, fmt.Errorf("search listings: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, responseError("search listings", res)
	}

	var parsed struct {
		Hits struct {
			Total struct {
				Value int64 `json:"value"`
			} `json:"total"`
			Hits []struct {
				ID     string     `json:"_id"`
				Score  float64    `json:"_score"`
				Source ListingDoc `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	out := &Result{Total: parsed.Hits.Total.Value, Hits: make([]Hit, 0, len(parsed.Hits.Hits))}
	for _, h := range parsed.Hits.Hits {
		out.Hits = append(out.Hits, Hit{ID: h.ID, Score: h.Score, Doc: h.Source})
	}
	return out, nil
}
