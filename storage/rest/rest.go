// Package rest implements storage.Store against a REST command endpoint in
// the Upstash style: each operation POSTs a JSON command array such as
// ["SET","key","value","EX","60"] to the base URL with a bearer token and
// reads back {"result": ...}.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ggoodman/registry-mcp/internal/httpx"
	"github.com/ggoodman/registry-mcp/storage"
)

const serviceName = "cache"

// Config configures a Store.
type Config struct {
	URL       string
	Token     string
	KeyPrefix string
	// HTTPClient defaults to httpx.NewClient(0).
	HTTPClient *http.Client
}

// Store implements storage.Store over HTTP.
type Store struct {
	url       string
	token     string
	keyPrefix string
	client    *http.Client
}

var _ storage.Store = (*Store)(nil)

// New validates cfg and returns a Store. No request is made.
func New(cfg Config) (*Store, error) {
	if cfg.URL == "" {
		return nil, errors.New("rest store: url is required")
	}
	if cfg.Token == "" {
		return nil, errors.New("rest store: token is required")
	}
	client := cfg.HTTPClient
	if client == nil {
		client = httpx.NewClient(0)
	}
	return &Store{
		url:       strings.TrimRight(cfg.URL, "/"),
		token:     cfg.Token,
		keyPrefix: cfg.KeyPrefix,
		client:    client,
	}, nil
}

type commandResponse struct {
	Result json.RawMessage `json:"result"`
	Error  string          `json:"error,omitempty"`
}

func (s *Store) do(ctx context.Context, cmd ...string) (json.RawMessage, error) {
	body, err := json.Marshal(cmd)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+s.token)
	req.Header.Set("Content-Type", "application/json")

	res, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", serviceName, cmd[0], err)
	}
	defer res.Body.Close()

	if err := httpx.CheckResponse(serviceName, res); err != nil {
		return nil, err
	}
	var out commandResponse
	if err := httpx.DecodeJSON(res, &out); err != nil {
		return nil, fmt.Errorf("%s %s: %w", serviceName, cmd[0], err)
	}
	if out.Error != "" {
		return nil, fmt.Errorf("%s %s: %s", serviceName, cmd[0], out.Error)
	}
	return out.Result, nil
}

// Get retrieves data for key.
func (s *Store) Get(ctx context.Context, key string) (*storage.Item, error) {
	raw, err := s.do(ctx, "GET", s.keyPrefix+key)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	var v string
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("%s GET: unexpected result: %w", serviceName, err)
	}
	return &storage.Item{Data: []byte(v)}, nil
}

// Set stores data for key with the optional TTL (whole seconds, rounded up).
func (s *Store) Set(ctx context.Context, key string, data []byte, opts ...storage.Option) error {
	options := storage.ApplyOptions(opts...)
	cmd := []string{"SET", s.keyPrefix + key, string(data)}
	if options.TTL > 0 {
		secs := int64((options.TTL + time.Second - 1) / time.Second)
		cmd = append(cmd, "EX", strconv.FormatInt(secs, 10))
	}
	_, err := s.do(ctx, cmd...)
	return err
}

// Delete removes key.
func (s *Store) Delete(ctx context.Context, key string) error {
	_, err := s.do(ctx, "DEL", s.keyPrefix+key)
	return err
}

// Close is a no-op; the HTTP client is shared.
func (s *Store) Close() error { return nil }
