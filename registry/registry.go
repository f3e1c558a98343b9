// Package registry fetches business-registry records: entities with their
// sub-entities, role assignments and authority grants. Every lookup is
// validated before any network call and memoized through the cache layer
// under a versioned key that carries every parameter affecting the result.
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ggoodman/registry-mcp/cache"
	"github.com/ggoodman/registry-mcp/internal/httpx"
	"github.com/ggoodman/registry-mcp/oauth"
)

const (
	DefaultBaseURL           = "https://data.brreg.no/enhetsregisteret/api"
	DefaultAuthorizedBaseURL = "https://data.brreg.no/enhetsregisteret/autorisert-api"
	DefaultCacheTTL          = time.Hour

	subEntityPageSize = 100
)

var (
	// ErrInvalidOrgNumber is returned for identifiers that do not contain
	// exactly nine digits.
	ErrInvalidOrgNumber = errors.New("registry: organization number must be exactly 9 digits")
	// ErrGrantsNotConfigured is returned when the authority-grants base URL
	// or token is missing.
	ErrGrantsNotConfigured = errors.New("registry: authority grants integration is not configured")
)

// Mode selects the roles endpoint.
type Mode string

const (
	ModeOpen       Mode = "open"
	ModeAuthorized Mode = "authorized"
)

// ParseMode accepts "open" and "authorized" (case-insensitive). Empty means
// open.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeOpen:
		return ModeOpen, nil
	case ModeAuthorized:
		return ModeAuthorized, nil
	default:
		return "", fmt.Errorf("registry: unknown auth mode %q", s)
	}
}

// NormalizeOrgNumber strips every non-digit and requires nine digits to
// remain.
func NormalizeOrgNumber(s string) (string, error) {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	if b.Len() != 9 {
		return "", fmt.Errorf("%w: %q", ErrInvalidOrgNumber, s)
	}
	return b.String(), nil
}

// Config locates the upstream APIs.
type Config struct {
	BaseURL           string
	AuthorizedBaseURL string
	Mode              Mode

	// AuthorityBaseURL and AuthorityToken configure the authority-grants
	// integration, which uses a static bearer token instead of OAuth.
	AuthorityBaseURL string
	AuthorityToken   string

	// CacheTTL applies to every cached lookup. Non-positive stores without
	// expiry.
	CacheTTL time.Duration
}

// Client is safe for concurrent use.
type Client struct {
	cfg    Config
	http   *http.Client
	cache  *cache.Cache
	tokens oauth.TokenSource
	log    *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the outbound HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		if c != nil {
			cl.http = c
		}
	}
}

// WithCache memoizes lookups. Without it every call goes upstream.
func WithCache(c *cache.Cache) Option {
	return func(cl *Client) { cl.cache = c }
}

// WithTokenSource supplies bearer tokens for authorized mode.
func WithTokenSource(ts oauth.TokenSource) Option {
	return func(cl *Client) { cl.tokens = ts }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(cl *Client) {
		if l != nil {
			cl.log = l
		}
	}
}

// New returns a Client, filling unset base URLs, mode and TTL with defaults.
func New(cfg Config, opts ...Option) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.AuthorizedBaseURL == "" {
		cfg.AuthorizedBaseURL = DefaultAuthorizedBaseURL
	}
	if cfg.Mode == "" {
		cfg.Mode = ModeOpen
	}
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = DefaultCacheTTL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	cfg.AuthorizedBaseURL = strings.TrimRight(cfg.AuthorizedBaseURL, "/")
	cfg.AuthorityBaseURL = strings.TrimRight(cfg.AuthorityBaseURL, "/")

	c := &Client{
		cfg:  cfg,
		http: httpx.NewClient(30 * time.Second),
		log:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Mode returns the configured roles mode.
func (c *Client) Mode() Mode { return c.cfg.Mode }

// getJSON GETs rawURL, attaching bearer when non-empty, and decodes into out.
func (c *Client) getJSON(ctx context.Context, service, rawURL, bearer string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	start := time.Now()
	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s request: %w", service, err)
	}
	defer res.Body.Close()

	if err := httpx.CheckResponse(service, res); err != nil {
		c.log.WarnContext(ctx, "registry.fetch.err",
			slog.String("service", service),
			slog.Int("status", res.StatusCode),
			slog.Int64("dur_ms", time.Since(start).Milliseconds()),
		)
		return err
	}
	if err := httpx.DecodeJSON(res, out); err != nil {
		return fmt.Errorf("%s response: %w", service, err)
	}
	c.log.DebugContext(ctx, "registry.fetch.ok",
		slog.String("service", service),
		slog.Int64("dur_ms", time.Since(start).Milliseconds()),
	)
	return nil
}

// EntityResult is an entity record plus, when requested, the first page of
// its sub-entities.
type EntityResult struct {
	Entity           json.RawMessage   `json:"entity"`
	SubEntities      []json.RawMessage `json:"subEntities,omitempty"`
	SubEntitiesTotal *int              `json:"subEntitiesTotal,omitempty"`
}

// GetEntity fetches the entity identified by orgnr. With includeSubEntities
// it also fetches one page (up to 100) of sub-entities; further pages are
// not followed.
func (c *Client) GetEntity(ctx context.Context, orgnr string, includeSubEntities bool) (*EntityResult, error) {
	id, err := NormalizeOrgNumber(orgnr)
	if err != nil {
		return nil, err
	}
	key := fmt.Sprintf("entity:v2:%s:subunits=%t", id, includeSubEntities)

	return cache.Fetch(ctx, c.cache, key, c.cfg.CacheTTL, func(ctx context.Context) (*EntityResult, error) {
		var res EntityResult
		if err := c.getJSON(ctx, "registry entity", c.cfg.BaseURL+"/enheter/"+id, "", &res.Entity); err != nil {
			return nil, err
		}
		if !includeSubEntities {
			return &res, nil
		}

		q := url.Values{}
		q.Set("overordnetEnhet", id)
		q.Set("size", fmt.Sprint(subEntityPageSize))
		var page struct {
			Embedded struct {
				SubEntities []json.RawMessage `json:"underenheter"`
			} `json:"_embedded"`
			Page struct {
				TotalElements int `json:"totalElements"`
			} `json:"page"`
		}
		if err := c.getJSON(ctx, "registry sub-entities", c.cfg.BaseURL+"/underenheter?"+q.Encode(), "", &page); err != nil {
			return nil, err
		}
		res.SubEntities = page.Embedded.SubEntities
		if res.SubEntities == nil {
			res.SubEntities = []json.RawMessage{}
		}
		total := page.Page.TotalElements
		res.SubEntitiesTotal = &total
		return &res, nil
	})
}

// RolesResult carries the role assignments and the mode they were read in.
type RolesResult struct {
	Mode  Mode            `json:"mode"`
	Roles json.RawMessage `json:"roles"`
}

// GetRoles fetches role assignments for orgnr from the open or authorized
// endpoint according to the configured mode. Authorized requests carry a
// bearer token from the token source.
func (c *Client) GetRoles(ctx context.Context, orgnr string) (*RolesResult, error) {
	id, err := NormalizeOrgNumber(orgnr)
	if err != nil {
		return nil, err
	}
	mode := c.cfg.Mode
	if mode == ModeAuthorized && c.tokens == nil {
		return nil, fmt.Errorf("registry: authorized mode requires a token source: %w", oauth.ErrNotConfigured)
	}
	key := fmt.Sprintf("roles:v1:%s:%s", mode, id)

	return cache.Fetch(ctx, c.cache, key, c.cfg.CacheTTL, func(ctx context.Context) (*RolesResult, error) {
		base, bearer := c.cfg.BaseURL, ""
		if mode == ModeAuthorized {
			tok, err := c.tokens.Token(ctx)
			if err != nil {
				return nil, err
			}
			base, bearer = c.cfg.AuthorizedBaseURL, tok
		}

		res := &RolesResult{Mode: mode}
		err := c.getJSON(ctx, "registry roles", base+"/enheter/"+id+"/roller", bearer, &res.Roles)
		if err != nil {
			var se *httpx.StatusError
			if mode == ModeAuthorized && errors.As(err, &se) && se.StatusCode == http.StatusUnauthorized {
				// Drop the rejected token so the next call fetches a fresh one.
				if inv, ok := c.tokens.(interface{ Invalidate() }); ok {
					inv.Invalidate()
				}
			}
			return nil, err
		}
		return res, nil
	})
}

// GrantsResult carries the authority grants for an entity.
type GrantsResult struct {
	Grants json.RawMessage `json:"grants"`
}

// GetAuthorityGrants fetches authority grants using the static
// authority-grants token.
func (c *Client) GetAuthorityGrants(ctx context.Context, orgnr string) (*GrantsResult, error) {
	if c.cfg.AuthorityBaseURL == "" || c.cfg.AuthorityToken == "" {
		return nil, ErrGrantsNotConfigured
	}
	id, err := NormalizeOrgNumber(orgnr)
	if err != nil {
		return nil, err
	}
	key := "grants:v1:" + id

	return cache.Fetch(ctx, c.cache, key, c.cfg.CacheTTL, func(ctx context.Context) (*GrantsResult, error) {
		res := &GrantsResult{}
		u := c.cfg.AuthorityBaseURL + "/organizations/" + id + "/grants"
		if err := c.getJSON(ctx, "authority grants", u, c.cfg.AuthorityToken, &res.Grants); err != nil {
			return nil, err
		}
		return res, nil
	})
}
