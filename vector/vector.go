// Package vector is a thin client for a REST vector index in the Upstash
// Vector style: POST {url}/upsert[/{namespace}] and POST
// {url}/query[/{namespace}] with a bearer token, answers wrapped in
// {"result": ...}.
package vector

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/ggoodman/registry-mcp/internal/httpx"
)

const serviceName = "vector"

// ErrNotConfigured is returned when the index URL or token is missing.
var ErrNotConfigured = errors.New("vector: url and token are required")

// Record is one embedding with its metadata. Upsert is idempotent by ID.
type Record struct {
	ID       string         `json:"id"`
	Vector   []float32      `json:"vector"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Match is a ranked query hit.
type Match struct {
	ID       string         `json:"id"`
	Score    float64        `json:"score"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Query selects the TopK nearest neighbors of Vector. Filter is passed to
// the index verbatim.
type Query struct {
	Vector []float32
	TopK   int
	Filter string
}

// Config locates the index.
type Config struct {
	URL       string
	Token     string
	Namespace string
}

// Configured reports whether URL and Token are set.
func (c Config) Configured() bool {
	return c.URL != "" && c.Token != ""
}

// Client talks to one index namespace.
type Client struct {
	base   string
	token  string
	ns     string
	client *http.Client
}

// NewClient returns a Client or ErrNotConfigured.
func NewClient(cfg Config, httpClient *http.Client) (*Client, error) {
	if !cfg.Configured() {
		return nil, ErrNotConfigured
	}
	if httpClient == nil {
		httpClient = httpx.NewClient(0)
	}
	return &Client{
		base:   strings.TrimRight(cfg.URL, "/"),
		token:  cfg.Token,
		ns:     cfg.Namespace,
		client: httpClient,
	}, nil
}

func (c *Client) endpoint(op string) string {
	if c.ns == "" {
		return c.base + "/" + op
	}
	return c.base + "/" + op + "/" + url.PathEscape(c.ns)
}

type envelope struct {
	Result json.RawMessage `json:"result"`
	Error  string          `json:"error,omitempty"`
}

func (c *Client) post(ctx context.Context, op string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(op), bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	res, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", serviceName, op, err)
	}
	defer res.Body.Close()

	if err := httpx.CheckResponse(serviceName, res); err != nil {
		return err
	}
	var env envelope
	if err := httpx.DecodeJSON(res, &env); err != nil {
		return fmt.Errorf("%s %s: %w", serviceName, op, err)
	}
	if env.Error != "" {
		return fmt.Errorf("%s %s: %s", serviceName, op, env.Error)
	}
	if out == nil || len(env.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Result, out); err != nil {
		return fmt.Errorf("%s %s: decode result: %w", serviceName, op, err)
	}
	return nil
}

// Upsert writes records, replacing any with the same ID.
func (c *Client) Upsert(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	return c.post(ctx, "upsert", records, nil)
}

// Query returns matches ranked by descending score.
func (c *Client) Query(ctx context.Context, q Query) ([]Match, error) {
	body := struct {
		Vector          []float32 `json:"vector"`
		TopK            int       `json:"topK"`
		IncludeMetadata bool      `json:"includeMetadata"`
		Filter          string    `json:"filter,omitempty"`
	}{
		Vector:          q.Vector,
		TopK:            q.TopK,
		IncludeMetadata: true,
		Filter:          q.Filter,
	}
	var matches []Match
	if err := c.post(ctx, "query", body, &matches); err != nil {
		return nil, err
	}
	if matches == nil {
		matches = []Match{}
	}
	return matches, nil
}
