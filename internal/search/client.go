// Package search mirrors marketplace listings into Elasticsearch and serves
// listing search from it.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	es "github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

// IdxListings holds one document per for-sale post.
const IdxListings = "listings_v1"

const listingsMapping = `{"settings":{"number_of_shards":1},"mappings":{"dynamic":"strict","properties":{
	"title":{"type":"text"},"description":{"type":"text"},"tags":{"type":"keyword"},
	"species":{"type":"keyword"},"condition":{"type":"keyword"},"brand":{"type":"keyword"},
	"size":{"type":"keyword"},"price":{"type":"double"},"sold":{"type":"boolean"},
	"user_id":{"type":"keyword"},"username":{"type":"keyword"},
	"image":{"type":"keyword","index":false},"created_at":{"type":"date"}
}}}`

// Connect returns a client for addr.
func Connect(addr string) (*es.Client, error) {
	client, err := es.NewClient(es.Config{Addresses: []string{addr}})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Elasticsearch: %w", err)
	}
	return client, nil
}

// EnsureIndex creates the listings index when it does not exist.
func EnsureIndex(ctx context.Context, c *es.Client) error {
	exists, err := c.Indices.Exists([]string{IdxListings}, c.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("check index %s: %w", IdxListings, err)
	}
	defer exists.Body.Close()
	if exists.StatusCode == http.StatusOK {
		return nil
	}

	res, err := c.Indices.Create(IdxListings,
		c.Indices.Create.WithBody(bytes.NewBufferString(listingsMapping)),
		c.Indices.Create.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("create index %s: %w", IdxListings, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return responseError("create index", res)
	}
	return nil
}

func responseError(op string, res *esapi.Response) error {
	body, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
	var parsed struct {
		Error struct {
			Type   string `json:"type"`
			Reason string `json:"reason"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &parsed) == nil && parsed.Error.Reason != "" {
		return fmt.Errorf("%s: %s: %s", op, parsed.Error.Type, parsed.Error.Reason)
	}
	return fmt.Errorf("%s: status=%d", op, res.StatusCode)
}
