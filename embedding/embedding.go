// Package embedding turns text into vectors through an external provider.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"

	"github.com/ggoodman/registry-mcp/internal/httpx"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "text-embedding-3-small"

// ErrNotConfigured is returned when no API key is set.
var ErrNotConfigured = errors.New("embedding: api key is required")

// Embedder embeds a batch of texts. The result has one vector per input, in
// input order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Config selects the provider account and model.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
}

// Configured reports whether an API key is present.
func (c Config) Configured() bool { return c.APIKey != "" }

// OpenAI is an Embedder backed by the OpenAI embeddings API (or any
// compatible endpoint via BaseURL).
type OpenAI struct {
	client openai.Client
	model  string
}

var _ Embedder = (*OpenAI)(nil)

// NewOpenAI returns an OpenAI embedder or ErrNotConfigured. Requests are not
// retried.
func NewOpenAI(cfg Config, httpClient *http.Client) (*OpenAI, error) {
	if !cfg.Configured() {
		return nil, ErrNotConfigured
	}
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if httpClient != nil {
		opts = append(opts, option.WithHTTPClient(httpClient))
	}
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	return &OpenAI{client: openai.NewClient(opts...), model: model}, nil
}

// Model returns the configured model name.
func (o *OpenAI) Model() string { return o.model }

func (o *OpenAI) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	res, err := o.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		Model: openai.EmbeddingModel(o.model),
	})
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return nil, &httpx.StatusError{
				Service:    "embedding",
				StatusCode: apiErr.StatusCode,
				Body:       httpx.Truncate(apiErr.Message, httpx.MaxErrorBody),
			}
		}
		return nil, fmt.Errorf("embedding request: %w", err)
	}
	if len(res.Data) != len(texts) {
		return nil, fmt.Errorf("embedding: got %d vectors for %d inputs", len(res.Data), len(texts))
	}

	data := res.Data
	sort.Slice(data, func(i, j int) bool { return data[i].Index < data[j].Index })

	out := make([][]float32, len(data))
	for i, d := range data {
		v := make([]float32, len(d.Embedding))
		for j, f := range d.Embedding {
			v[j] = float32(f)
		}
		out[i] = v
	}
	return out, nil
}
