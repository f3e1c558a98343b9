package cache

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/ggoodman/registry-mcp/storage"
	"github.com/ggoodman/registry-mcp/storage/memory"
	"github.com/ggoodman/registry-mcp/storage/redis"
	"github.com/ggoodman/registry-mcp/storage/rest"
)

const defaultMemoryItems = 1024

// OpenStore selects a backend from the URL scheme:
//
//	redis://, rediss://   go-redis (token ignored; put credentials in the URL)
//	https://, http://     REST command endpoint, requires token
//	memory://?size=N      in-process LRU
//
// An empty URL, or a REST URL without a token, returns a nil store so the
// cache runs disabled.
func OpenStore(ctx context.Context, rawURL, token string, client *http.Client) (storage.Store, error) {
	if rawURL == "" {
		return nil, nil
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid cache url: %w", err)
	}

	switch u.Scheme {
	case "redis", "rediss":
		s, err := redis.Open(ctx, rawURL, "")
		if err != nil {
			return nil, err
		}
		return s, nil
	case "https", "http":
		if token == "" {
			return nil, nil
		}
		s, err := rest.New(rest.Config{URL: rawURL, Token: token, HTTPClient: client})
		if err != nil {
			return nil, err
		}
		return s, nil
	case "memory":
		size := defaultMemoryItems
		if s := u.Query().Get("size"); s != "" {
			n, err := strconv.Atoi(s)
			if err != nil || n <= 0 {
				return nil, fmt.Errorf("invalid memory cache size %q", s)
			}
			size = n
		}
		s, err := memory.New(size)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unsupported cache url scheme %q", u.Scheme)
	}
}
