package oauth

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/ggoodman/registry-mcp/internal/httpx"
	"golang.org/x/sync/singleflight"
)

const (
	serviceName = "oauth token"

	// refreshMargin is how much lifetime must remain for a cached token to
	// be reused.
	refreshMargin = 5 * time.Second
	// minTokenLifetime floors expires_in so a misbehaving server cannot
	// force a token request per call.
	minTokenLifetime = 60 * time.Second
)

// TokenSource yields a bearer token for outbound requests.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// CachedToken is a bearer token held in process memory.
type CachedToken struct {
	AccessToken string
	ExpiresAt   time.Time
}

// Valid reports whether more than the refresh margin remains at now.
func (t CachedToken) Valid(now time.Time) bool {
	return t.AccessToken != "" && t.ExpiresAt.Sub(now) > refreshMargin
}

type cacheKey struct {
	clientID string
	scope    string
}

// Manager issues and caches tokens for one client registration. It is safe
// for concurrent use.
type Manager struct {
	cfg    Config
	client *http.Client
	now    func() time.Time
	log    *slog.Logger

	group singleflight.Group

	mu       sync.Mutex
	key      *rsa.PrivateKey
	tokenURL string
	tokens   map[cacheKey]CachedToken
}

var _ TokenSource = (*Manager)(nil)

// Option configures a Manager.
type Option func(*Manager)

// WithHTTPClient sets the client used for discovery and token requests.
func WithHTTPClient(c *http.Client) Option {
	return func(m *Manager) {
		if c != nil {
			m.client = c
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.log = l
		}
	}
}

// NewManager returns a Manager for cfg. Configuration is validated lazily on
// the first Token call so a server can start without OAuth settings.
func NewManager(cfg Config, opts ...Option) *Manager {
	m := &Manager{
		cfg:      cfg,
		client:   httpx.NewClient(30 * time.Second),
		now:      time.Now,
		log:      slog.Default(),
		tokenURL: cfg.TokenURL,
		tokens:   make(map[cacheKey]CachedToken),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Configured reports whether the required settings are present.
func (m *Manager) Configured() bool {
	return m.cfg.Validate() == nil
}

// Token returns a cached bearer token, fetching a new one when the cached
// token is missing or within the refresh margin of expiry.
func (m *Manager) Token(ctx context.Context) (string, error) {
	if err := m.cfg.Validate(); err != nil {
		return "", err
	}
	k := m.cacheKey()

	m.mu.Lock()
	tok, ok := m.tokens[k]
	m.mu.Unlock()
	if ok && tok.Valid(m.now()) {
		return tok.AccessToken, nil
	}
	return m.fetchShared(ctx, k, false)
}

// Refresh discards any cached token and fetches a new one.
func (m *Manager) Refresh(ctx context.Context) (string, error) {
	if err := m.cfg.Validate(); err != nil {
		return "", err
	}
	k := m.cacheKey()
	m.Invalidate()
	return m.fetchShared(ctx, k, true)
}

// Invalidate drops the cached token, e.g. after the upstream rejected it.
func (m *Manager) Invalidate() {
	m.mu.Lock()
	delete(m.tokens, m.cacheKey())
	m.mu.Unlock()
}

func (m *Manager) cacheKey() cacheKey {
	return cacheKey{clientID: m.cfg.ClientID, scope: m.cfg.Scope}
}

func (m *Manager) fetchShared(ctx context.Context, k cacheKey, force bool) (string, error) {
	sfKey := k.clientID + "\x00" + k.scope
	v, err, _ := m.group.Do(sfKey, func() (any, error) {
		// Another caller may have refreshed while we waited.
		if !force {
			m.mu.Lock()
			tok, ok := m.tokens[k]
			m.mu.Unlock()
			if ok && tok.Valid(m.now()) {
				return tok.AccessToken, nil
			}
		}
		tok, err := m.fetch(ctx)
		if err != nil {
			return "", err
		}
		m.mu.Lock()
		m.tokens[k] = tok
		m.mu.Unlock()
		return tok.AccessToken, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

func (m *Manager) fetch(ctx context.Context) (CachedToken, error) {
	start := time.Now()

	key, err := m.privateKey()
	if err != nil {
		return CachedToken{}, err
	}
	tokenURL, err := m.resolveTokenURL(ctx)
	if err != nil {
		return CachedToken{}, err
	}

	now := m.now()
	assertion, err := signAssertion(key, m.cfg.issuer(), m.cfg.ClientID, tokenURL, now)
	if err != nil {
		return CachedToken{}, fmt.Errorf("oauth: sign client assertion: %w", err)
	}

	form := url.Values{
		"grant_type":            {"client_credentials"},
		"client_assertion_type": {ClientAssertionType},
		"client_assertion":      {assertion},
	}
	if m.cfg.Scope != "" {
		form.Set("scope", m.cfg.Scope)
	}
	if m.cfg.Resource != "" {
		form.Set("resource", m.cfg.Resource)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return CachedToken{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	res, err := m.client.Do(req)
	if err != nil {
		return CachedToken{}, fmt.Errorf("oauth: token request: %w", err)
	}
	defer res.Body.Close()

	if err := httpx.CheckResponse(serviceName, res); err != nil {
		m.log.WarnContext(ctx, "oauth.token.fetch.err", slog.String("err", err.Error()))
		return CachedToken{}, err
	}
	var body tokenResponse
	if err := httpx.DecodeJSON(res, &body); err != nil {
		return CachedToken{}, fmt.Errorf("oauth: token response: %w", err)
	}
	if body.AccessToken == "" {
		return CachedToken{}, errors.New("oauth: token response missing access_token")
	}

	lifetime := time.Duration(body.ExpiresIn) * time.Second
	if lifetime < minTokenLifetime {
		lifetime = minTokenLifetime
	}
	m.log.InfoContext(ctx, "oauth.token.fetch.ok",
		slog.String("client_id", m.cfg.ClientID),
		slog.Int64("expires_in", body.ExpiresIn),
		slog.Int64("dur_ms", time.Since(start).Milliseconds()),
	)
	return CachedToken{AccessToken: body.AccessToken, ExpiresAt: now.Add(lifetime)}, nil
}

func (m *Manager) privateKey() (*rsa.PrivateKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.key != nil {
		return m.key, nil
	}
	key, err := ParsePrivateKey(m.cfg.PrivateKey)
	if err != nil {
		return nil, err
	}
	m.key = key
	return key, nil
}

func (m *Manager) resolveTokenURL(ctx context.Context) (string, error) {
	m.mu.Lock()
	u := m.tokenURL
	m.mu.Unlock()
	if u != "" {
		return u, nil
	}

	u, err := discoverTokenURL(ctx, m.client, m.cfg.DiscoveryURL)
	if err != nil {
		return "", err
	}
	m.log.InfoContext(ctx, "oauth.discovery.ok", slog.String("token_url", u))
	m.mu.Lock()
	m.tokenURL = u
	m.mu.Unlock()
	return u, nil
}
