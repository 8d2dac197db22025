// Package resource is the thin CRUD surface over the Dataverse-backed
// platform API. Records stay in the application-defined map
// representation; the console never models the Dataverse schema.
package resource

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/DDownesK12Solutions/PIPSPlus-Sync-UI-sub000/internal/auth"
	"github.com/DDownesK12Solutions/PIPSPlus-Sync-UI-sub000/internal/version"
)

// Record is one platform record in its wire representation.
type Record map[string]any

// ID returns the record's identifier under whichever key the collection
// uses.
func (r Record) ID() string {
	for _, key := range []string{"id", "Id", "ID"} {
		if v, ok := r[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

// Collections the console edits. The API accepts any collection name;
// this list only drives CLI help and validation.
var Collections = []string{
	"clients",
	"connections",
	"endpoints",
	"mappings",
	"rules",
	"webhook-subscriptions",
}

// Client performs record CRUD against the platform API.
type Client struct {
	baseURL string
	client  *http.Client
	tokens  auth.TokenSource
}

// New constructs a client for the given base URL.
func New(baseURL string, tokens auth.TokenSource, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		tokens:  tokens,
	}
}

// List fetches all records of a collection.
func (c *Client) List(ctx context.Context, collection string) ([]Record, error) {
	body, status, err := c.do(ctx, http.MethodGet, "/"+url.PathEscape(collection), nil)
	if err != nil {
		return nil, err
	}
	if status < 200 || status > 299 {
		return nil, fmt.Errorf("list %s: http %d", collection, status)
	}
	var records []Record
	if err := json.Unmarshal(body, &records); err != nil {
		return nil, fmt.Errorf("list %s: %w", collection, err)
	}
	return records, nil
}

// Get fetches a single record.
func (c *Client) Get(ctx context.Context, collection, id string) (Record, error) {
	body, status, err := c.do(ctx, http.MethodGet, recordPath(collection, id), nil)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, fmt.Errorf("get %s/%s: not found", collection, id)
	}
	if status < 200 || status > 299 {
		return nil, fmt.Errorf("get %s/%s: http %d", collection, id, status)
	}
	return decodeRecord(body, collection)
}

// Create posts a new record and returns the stored representation.
func (c *Client) Create(ctx context.Context, collection string, record Record) (Record, error) {
	payload, err := json.Marshal(record)
	if err != nil {
		return nil, err
	}
	body, status, err := c.do(ctx, http.MethodPost, "/"+url.PathEscape(collection), payload)
	if err != nil {
		return nil, err
	}
	if status < 200 || status > 299 {
		return nil, fmt.Errorf("create %s: http %d", collection, status)
	}
	return decodeRecord(body, collection)
}

// Update replaces a record and returns the stored representation.
func (c *Client) Update(ctx context.Context, collection, id string, record Record) (Record, error) {
	payload, err := json.Marshal(record)
	if err != nil {
		return nil, err
	}
	body, status, err := c.do(ctx, http.MethodPut, recordPath(collection, id), payload)
	if err != nil {
		return nil, err
	}
	if status < 200 || status > 299 {
		return nil, fmt.Errorf("update %s/%s: http %d", collection, id, status)
	}
	return decodeRecord(body, collection)
}

// Delete removes a record.
func (c *Client) Delete(ctx context.Context, collection, id string) error {
	_, status, err := c.do(ctx, http.MethodDelete, recordPath(collection, id), nil)
	if err != nil {
		return err
	}
	if status < 200 || status > 299 {
		return fmt.Errorf("delete %s/%s: http %d", collection, id, status)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, payload []byte) ([]byte, int, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, 0, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("User-Agent", version.Version)
	if c.tokens != nil {
		token, err := c.tokens.Token()
		if err != nil {
			return nil, 0, err
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return body, resp.StatusCode, nil
}

func recordPath(collection, id string) string {
	return "/" + url.PathEscape(collection) + "/" + url.PathEscape(id)
}

func decodeRecord(body []byte, collection string) (Record, error) {
	var record Record
	if err := json.Unmarshal(body, &record); err != nil {
		return nil, fmt.Errorf("decode %s record: %w", collection, err)
	}
	return record, nil
}
