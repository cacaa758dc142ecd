package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"softspot/internal/models"

	es "github.com/elastic/go-elasticsearch/v8"
)

// Sink keeps the listings index in step with acknowledged post writes.
type Sink struct {
	es *es.Client
}

// NewSink returns a sink writing through c.
func NewSink(c *es.Client) *Sink {
	return &Sink{es: c}
}

// Handle mirrors one acknowledged outbox event.
func (s *Sink) Handle(ctx context.Context, e models.OutboxEvent) error {
	if e.Table != models.TablePosts {
		return nil
	}

	switch e.Op {
	case models.OpUpsert:
		var p models.Post
		if err := json.Unmarshal(e.Payload, &p); err != nil {
			return fmt.Errorf("decode post: %w", err)
		}
		if !p.IsListing() {
			return s.remove(ctx, e.EntityID)
		}
		return s.index(ctx, e.EntityID, BuildListingDoc(p))

	case models.OpUpdate:
		var values map[string]any
		if err := json.Unmarshal(e.Payload, &values); err != nil {
			return fmt.Errorf("decode update: %w", err)
		}
		if forSale, ok := values["for_sale"].(bool); ok && !forSale {
			return s.remove(ctx, e.EntityID)
		}
		return s.update(ctx, e.EntityID, partialDoc(values))

	case models.OpDelete:
		return s.remove(ctx, e.EntityID)
	}
	return nil
}

func (s *Sink) index(ctx context.Context, id string, doc ListingDoc) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	res, err := s.es.Index(IdxListings, bytes.NewReader(body),
		s.es.Index.WithDocumentID(id),
		s.es.Index.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("index listing %s: %w", id, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return responseError("index listing", res)
	}
	return nil
}

func (s *Sink) update(ctx context.Context, id string, doc map[string]any) error {
	if len(doc) == 0 {
		return nil
	}
	body, err := json.Marshal(map[string]any{"doc": doc, "doc_as_upsert": true})
	if err != nil {
		return err
	}
	res, err := s.es.Update(IdxListings, id, bytes.NewReader(body), s.es.Update.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("update listing %s: %w", id, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return responseError("update listing", res)
	}
	return nil
}

func (s *Sink) remove(ctx context.Context, id string) error {
	res, err := s.es.Delete(IdxListings, id, s.es.Delete.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("delete listing %s: %w", id, err)
	}
	defer res.Body.Close()
	if res.IsError() && res.StatusCode != http.StatusNotFound {
		return responseError("delete listing", res)
	}
	return nil
}
