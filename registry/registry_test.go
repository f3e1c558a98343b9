package registry

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/ggoodman/registry-mcp/cache"
	"github.com/ggoodman/registry-mcp/oauth"
	"github.com/ggoodman/registry-mcp/storage/memory"
)

// upstream records every request path and serves canned registry payloads.
type upstream struct {
	mu    sync.Mutex
	paths []string
	auth  []string
}

func (u *upstream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	u.mu.Lock()
	u.paths = append(u.paths, r.URL.RequestURI())
	u.auth = append(u.auth, r.Header.Get("Authorization"))
	u.mu.Unlock()

	w.Header().Set("Content-Type", "application/vnd.brreg.enhetsregisteret.enhet.v2+json;charset=UTF-8")
	switch r.URL.Path {
	case "/api/enheter/123456789":
		_, _ = io.WriteString(w, `{"organisasjonsnummer":"123456789","navn":"ACME AS"}`)
	case "/api/underenheter":
		_, _ = io.WriteString(w, `{"_embedded":{"underenheter":[{"organisasjonsnummer":"987654321"}]},"page":{"totalElements":1}}`)
	case "/api/enheter/123456789/roller":
		_, _ = io.WriteString(w, `{"rollegrupper":[{"type":{"kode":"DAGL"}}]}`)
	case "/authorized/enheter/123456789/roller":
		if r.Header.Get("Authorization") != "Bearer tok-1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = io.WriteString(w, `{"rollegrupper":[{"type":{"kode":"STYR"}}]}`)
	case "/authority/organizations/123456789/grants":
		if r.Header.Get("Authorization") != "Bearer static-secret" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		_, _ = io.WriteString(w, `[{"right":"sign"}]`)
	default:
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"feilmelding":"not found"}`)
	}
}

func (u *upstream) calls() []string {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]string(nil), u.paths...)
}

func (u *upstream) authHeaders() []string {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]string(nil), u.auth...)
}

type staticTokens struct {
	token       string
	invalidated int
}

func (s *staticTokens) Token(context.Context) (string, error) { return s.token, nil }
func (s *staticTokens) Invalidate()                           { s.invalidated++ }

func newTestClient(t *testing.T, cfg Config, opts ...Option) (*Client, *upstream) {
	t.Helper()
	up := &upstream{}
	srv := httptest.NewServer(up)
	t.Cleanup(srv.Close)
	cfg.BaseURL = srv.URL + "/api"
	cfg.AuthorizedBaseURL = srv.URL + "/authorized"
	if cfg.AuthorityToken != "" {
		cfg.AuthorityBaseURL = srv.URL + "/authority"
	}
	return New(cfg, append([]Option{WithHTTPClient(srv.Client())}, opts...)...), up
}

func TestNormalizeOrgNumber(t *testing.T) {
	cases := []struct {
		in, want string
		ok       bool
	}{
		{"123456789", "123456789", true},
		{"12 345-6789", "123456789", true},
		{"NO 123 456 789 MVA", "123456789", true},
		{"12345", "", false},
		{"1234567890", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, err := NormalizeOrgNumber(tc.in)
		if tc.ok && (err != nil || got != tc.want) {
			t.Fatalf("NormalizeOrgNumber(%q) = %q, %v", tc.in, got, err)
		}
		if !tc.ok && !errors.Is(err, ErrInvalidOrgNumber) {
			t.Fatalf("NormalizeOrgNumber(%q): expected ErrInvalidOrgNumber, got %v", tc.in, err)
		}
	}
}

func TestGetEntityNormalizesAndFetches(t *testing.T) {
	c, up := newTestClient(t, Config{})

	res, err := c.GetEntity(context.Background(), "12 345-6789", false)
	if err != nil {
		t.Fatalf("get entity: %v", err)
	}
	var ent map[string]string
	_ = json.Unmarshal(res.Entity, &ent)
	if ent["navn"] != "ACME AS" {
		t.Fatalf("unexpected entity %s", res.Entity)
	}
	if res.SubEntities != nil || res.SubEntitiesTotal != nil {
		t.Fatalf("did not ask for sub-entities: %+v", res)
	}
	if calls := up.calls(); len(calls) != 1 || calls[0] != "/api/enheter/123456789" {
		t.Fatalf("unexpected upstream calls %v", calls)
	}
}

func TestGetEntityRejectsBeforeNetwork(t *testing.T) {
	c, up := newTestClient(t, Config{})
	if _, err := c.GetEntity(context.Background(), "12345", true); !errors.Is(err, ErrInvalidOrgNumber) {
		t.Fatalf("expected ErrInvalidOrgNumber, got %v", err)
	}
	if _, err := c.GetRoles(context.Background(), "abc"); !errors.Is(err, ErrInvalidOrgNumber) {
		t.Fatalf("expected ErrInvalidOrgNumber, got %v", err)
	}
	if calls := up.calls(); len(calls) != 0 {
		t.Fatalf("expected zero network calls, got %v", calls)
	}
}

func TestGetEntityWithSubEntitiesIsCached(t *testing.T) {
	store, _ := memory.New(16)
	cc := cache.New(store)
	defer cc.Close()
	c, up := newTestClient(t, Config{}, WithCache(cc))
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		res, err := c.GetEntity(ctx, "123456789", true)
		if err != nil {
			t.Fatalf("get entity: %v", err)
		}
		if len(res.SubEntities) != 1 || res.SubEntitiesTotal == nil || *res.SubEntitiesTotal != 1 {
			t.Fatalf("unexpected sub-entities %+v", res)
		}
	}
	calls := up.calls()
	if len(calls) != 2 {
		t.Fatalf("expected entity + one sub-entity page, then cache hits; got %v", calls)
	}
	if calls[1] != "/api/underenheter?overordnetEnhet=123456789&size=100" {
		t.Fatalf("unexpected sub-entity request %q", calls[1])
	}

	// The flag is part of the key.
	if _, err := c.GetEntity(ctx, "123456789", false); err != nil {
		t.Fatalf("get entity: %v", err)
	}
	if n := len(up.calls()); n != 3 {
		t.Fatalf("expected a fresh fetch without sub-entities, got %d calls", n)
	}
}

func TestGetRolesModes(t *testing.T) {
	store, _ := memory.New(16)
	cc := cache.New(store)
	defer cc.Close()
	ctx := context.Background()

	open, up := newTestClient(t, Config{Mode: ModeOpen}, WithCache(cc))
	res, err := open.GetRoles(ctx, "123456789")
	if err != nil {
		t.Fatalf("open roles: %v", err)
	}
	if res.Mode != ModeOpen || up.authHeaders()[0] != "" {
		t.Fatalf("unexpected open result %+v auth=%q", res, up.authHeaders()[0])
	}

	tokens := &staticTokens{token: "tok-1"}
	authz, up2 := newTestClient(t, Config{Mode: ModeAuthorized}, WithCache(cc), WithTokenSource(tokens))
	res, err = authz.GetRoles(ctx, "123456789")
	if err != nil {
		t.Fatalf("authorized roles: %v", err)
	}
	if res.Mode != ModeAuthorized || string(res.Roles) != `{"rollegrupper":[{"type":{"kode":"STYR"}}]}` {
		t.Fatalf("expected authorized payload, not cross-mode cache: %+v", res)
	}
	if calls := up2.calls(); len(calls) != 1 || calls[0] != "/authorized/enheter/123456789/roller" {
		t.Fatalf("unexpected authorized calls %v", calls)
	}
}

func TestGetRolesAuthorizedFailures(t *testing.T) {
	ctx := context.Background()

	c, _ := newTestClient(t, Config{Mode: ModeAuthorized})
	if _, err := c.GetRoles(ctx, "123456789"); !errors.Is(err, oauth.ErrNotConfigured) {
		t.Fatalf("expected oauth.ErrNotConfigured, got %v", err)
	}

	tokens := &staticTokens{token: "stale"}
	c, _ = newTestClient(t, Config{Mode: ModeAuthorized}, WithTokenSource(tokens))
	if _, err := c.GetRoles(ctx, "123456789"); err == nil {
		t.Fatalf("expected 401 error")
	}
	if tokens.invalidated != 1 {
		t.Fatalf("expected rejected token to be invalidated")
	}
}

func TestGetAuthorityGrants(t *testing.T) {
	ctx := context.Background()

	unconfigured, up := newTestClient(t, Config{})
	if _, err := unconfigured.GetAuthorityGrants(ctx, "123456789"); !errors.Is(err, ErrGrantsNotConfigured) {
		t.Fatalf("expected ErrGrantsNotConfigured, got %v", err)
	}
	if len(up.calls()) != 0 {
		t.Fatalf("expected no network calls")
	}

	c, up := newTestClient(t, Config{AuthorityToken: "static-secret"})
	res, err := c.GetAuthorityGrants(ctx, "123 456 789")
	if err != nil {
		t.Fatalf("grants: %v", err)
	}
	if string(res.Grants) != `[{"right":"sign"}]` {
		t.Fatalf("unexpected grants %s", res.Grants)
	}
	if up.authHeaders()[0] != "Bearer static-secret" {
		t.Fatalf("expected static bearer token, got %q", up.authHeaders()[0])
	}
}

func TestUpstreamErrorCarriesStatus(t *testing.T) {
	c, _ := newTestClient(t, Config{})
	_, err := c.GetEntity(context.Background(), "999999999", false)
	if err == nil {
		t.Fatalf("expected 404 error")
	}
	if want := "registry entity request failed: HTTP 404: {\"feilmelding\":\"not found\"}"; err.Error() != want {
		t.Fatalf("got %q want %q", err.Error(), want)
	}
}

func TestParseMode(t *testing.T) {
	if m, err := ParseMode(""); err != nil || m != ModeOpen {
		t.Fatalf("empty: %v %v", m, err)
	}
	if m, err := ParseMode("Authorized"); err != nil || m != ModeAuthorized {
		t.Fatalf("authorized: %v %v", m, err)
	}
	if _, err := ParseMode("maybe"); err == nil {
		t.Fatalf("expected error")
	}
}
