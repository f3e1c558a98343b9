// Package config loads process configuration from the environment.
//
// An optional .env file in the working directory is applied first; values
// already present in the environment win. Struct tags carry the variable
// names and defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"

	"github.com/ggoodman/registry-mcp/browserprobe"
	"github.com/ggoodman/registry-mcp/docindex"
	"github.com/ggoodman/registry-mcp/embedding"
	"github.com/ggoodman/registry-mcp/oauth"
	"github.com/ggoodman/registry-mcp/registry"
	"github.com/ggoodman/registry-mcp/vector"
)

// Config is the full process configuration.
type Config struct {
	// ENV: OPENAI_API_KEY, OPENAI_BASE_URL, EMBEDDING_MODEL
	OpenAIAPIKey   string `env:"OPENAI_API_KEY"`
	OpenAIBaseURL  string `env:"OPENAI_BASE_URL"`
	EmbeddingModel string `env:"EMBEDDING_MODEL,default=text-embedding-3-small"`

	VectorURL   string `env:"VECTOR_URL"`
	VectorToken string `env:"VECTOR_TOKEN"`
	VectorIndex string `env:"VECTOR_INDEX"`

	// CacheURL selects the backend by scheme: redis://, rediss://,
	// https:// (REST, needs CacheToken) or memory://. Empty disables caching.
	CacheURL        string `env:"CACHE_URL"`
	CacheToken      string `env:"CACHE_TOKEN"`
	CacheTTLSeconds int    `env:"CACHE_TTL_SECONDS,default=3600"`
	CacheKeyPrefix  string `env:"CACHE_KEY_PREFIX,default=registry-mcp:"`

	DocsRoot     string `env:"DOCS_ROOT,default=./docs"`
	ChunkSize    int    `env:"CHUNK_SIZE,default=1200"`
	ChunkOverlap int    `env:"CHUNK_OVERLAP,default=200"`

	RegistryBaseURL           string `env:"REGISTRY_BASE_URL,default=https://data.brreg.no/enhetsregisteret/api"`
	RegistryAuthorizedBaseURL string `env:"REGISTRY_AUTHORIZED_BASE_URL,default=https://data.brreg.no/enhetsregisteret/autorisert-api"`
	RegistryAuthMode          string `env:"REGISTRY_AUTH_MODE,default=open"`

	OAuthTokenURL     string `env:"OAUTH_TOKEN_URL"`
	OAuthDiscoveryURL string `env:"OAUTH_DISCOVERY_URL"`
	OAuthClientID     string `env:"OAUTH_CLIENT_ID"`
	OAuthScope        string `env:"OAUTH_SCOPE"`
	OAuthResource     string `env:"OAUTH_RESOURCE"`
	OAuthIssuer       string `env:"OAUTH_ISSUER"`
	// OAuthPrivateKey is base64 PKCS8 DER (PEM is also accepted).
	OAuthPrivateKey string `env:"OAUTH_PRIVATE_KEY"`

	AuthorityBaseURL string `env:"AUTHORITY_BASE_URL"`
	AuthorityToken   string `env:"AUTHORITY_TOKEN"`

	// BrowserAllowedHosts is a comma separated host list; "*.example.com"
	// allows subdomains.
	BrowserAllowedHosts string `env:"BROWSER_ALLOWED_HOSTS"`
	BrowserExecPath     string `env:"BROWSER_EXEC_PATH"`
	BrowserHeadless     bool   `env:"BROWSER_HEADLESS,default=true"`

	ShutdownGrace      time.Duration `env:"SHUTDOWN_GRACE,default=5s"`
	MaxConcurrentCalls int           `env:"MAX_CONCURRENT_CALLS,default=0"`
	HTTPTimeout        time.Duration `env:"HTTP_TIMEOUT,default=30s"`

	OTLPEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`

	LogLevel  string `env:"LOG_LEVEL,default=info"`
	LogFormat string `env:"LOG_FORMAT,default=text"`
}

// Load reads .env (if present) and decodes the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("config: load .env: %w", err)
	}
	return Decode()
}

// Decode decodes the current environment without touching .env files.
func Decode() (*Config, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that cannot be expressed as tags.
func (c *Config) Validate() error {
	if _, err := registry.ParseMode(c.RegistryAuthMode); err != nil {
		return fmt.Errorf("config: REGISTRY_AUTH_MODE: %w", err)
	}
	if c.ChunkSize <= 0 {
		return fmt.Errorf("config: CHUNK_SIZE must be positive, got %d", c.ChunkSize)
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("config: CHUNK_OVERLAP must be in [0, CHUNK_SIZE), got %d", c.ChunkOverlap)
	}
	if c.MaxConcurrentCalls < 0 {
		return fmt.Errorf("config: MAX_CONCURRENT_CALLS must not be negative, got %d", c.MaxConcurrentCalls)
	}
	return nil
}

// AllowedHosts splits BrowserAllowedHosts.
func (c *Config) AllowedHosts() []string {
	var out []string
	for _, h := range strings.Split(c.BrowserAllowedHosts, ",") {
		if h = strings.TrimSpace(h); h != "" {
			out = append(out, h)
		}
	}
	return out
}

// CacheTTL returns the default cache TTL. Non-positive means no expiry.
func (c *Config) CacheTTL() time.Duration {
	if c.CacheTTLSeconds <= 0 {
		return -1
	}
	return time.Duration(c.CacheTTLSeconds) * time.Second
}

func (c *Config) Embedding() embedding.Config {
	return embedding.Config{APIKey: c.OpenAIAPIKey, BaseURL: c.OpenAIBaseURL, Model: c.EmbeddingModel}
}

func (c *Config) Vector() vector.Config {
	return vector.Config{URL: c.VectorURL, Token: c.VectorToken, Namespace: c.VectorIndex}
}

func (c *Config) DocIndex() docindex.Config {
	return docindex.Config{Root: c.DocsRoot, ChunkSize: c.ChunkSize, ChunkOverlap: c.ChunkOverlap}
}

func (c *Config) OAuth() oauth.Config {
	return oauth.Config{
		TokenURL:     c.OAuthTokenURL,
		DiscoveryURL: c.OAuthDiscoveryURL,
		ClientID:     c.OAuthClientID,
		Scope:        c.OAuthScope,
		Resource:     c.OAuthResource,
		Issuer:       c.OAuthIssuer,
		PrivateKey:   c.OAuthPrivateKey,
	}
}

func (c *Config) Registry() registry.Config {
	mode, _ := registry.ParseMode(c.RegistryAuthMode)
	return registry.Config{
		BaseURL:           c.RegistryBaseURL,
		AuthorizedBaseURL: c.RegistryAuthorizedBaseURL,
		Mode:              mode,
		AuthorityBaseURL:  c.AuthorityBaseURL,
		AuthorityToken:    c.AuthorityToken,
		CacheTTL:          c.CacheTTL(),
	}
}

func (c *Config) Browser() browserprobe.Config {
	return browserprobe.Config{
		AllowedHosts: c.AllowedHosts(),
		ExecPath:     c.BrowserExecPath,
		Headless:     c.BrowserHeadless,
	}
}
