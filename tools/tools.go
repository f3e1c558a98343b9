// Package tools defines the fixed tool catalog served over call_tool.
package tools

import (
	"context"
	"errors"
	"log/slog"

	"github.com/ggoodman/registry-mcp/browserprobe"
	"github.com/ggoodman/registry-mcp/docindex"
	"github.com/ggoodman/registry-mcp/mcpservice"
	"github.com/ggoodman/registry-mcp/registry"
	"github.com/ggoodman/registry-mcp/vector"
)

const defaultTopK = 5

// Tool names.
const (
	IndexDocsSemantic  = "index_docs_semantic"
	SearchDocsSemantic = "search_docs_semantic"
	GetEntity          = "get_entity"
	GetRoles           = "get_roles"
	GetAuthorityGrants = "get_authority_grants"
	BrowserProbe       = "browser_probe"
)

// ErrUnavailable is returned by a tool whose backing service was not wired.
var ErrUnavailable = errors.New("tools: service not available")

// Docs is the document indexing and search service.
type Docs interface {
	IndexDir(ctx context.Context, sub string) (docindex.Stats, error)
	Search(ctx context.Context, query string, topK int, filter string) ([]vector.Match, error)
}

// Registry is the business-registry lookup service.
type Registry interface {
	GetEntity(ctx context.Context, orgnr string, includeSubEntities bool) (*registry.EntityResult, error)
	GetRoles(ctx context.Context, orgnr string) (*registry.RolesResult, error)
	GetAuthorityGrants(ctx context.Context, orgnr string) (*registry.GrantsResult, error)
}

// Prober runs browser probes.
type Prober interface {
	Probe(ctx context.Context, req browserprobe.Request) (*browserprobe.Result, error)
}

var (
	_ Docs     = (*docindex.Indexer)(nil)
	_ Registry = (*registry.Client)(nil)
	_ Prober   = (*browserprobe.Prober)(nil)
)

// Deps are the services the catalog binds to. Any of them may be nil; the
// affected tools then fail with ErrUnavailable.
type Deps struct {
	Docs     Docs
	Registry Registry
	Prober   Prober
	Log      *slog.Logger
}

type IndexArgs struct {
	Root string `json:"root,omitempty" jsonschema_description:"Subdirectory of the documents root to index; defaults to the whole root"`
}

type SearchArgs struct {
	Query  string `json:"query" jsonschema:"required" jsonschema_description:"Natural language search query"`
	TopK   int    `json:"topK,omitempty" jsonschema:"minimum=1,maximum=10,default=5" jsonschema_description:"Number of matches to return"`
	Filter string `json:"filter,omitempty" jsonschema_description:"Metadata filter expression passed to the vector index"`
}

// SearchResult is the search_docs_semantic result.
type SearchResult struct {
	Matches []vector.Match `json:"matches"`
}

type EntityArgs struct {
	OrgNr           string `json:"orgnr" jsonschema:"required" jsonschema_description:"Nine digit organization number; spaces and punctuation are ignored"`
	IncludeSubunits bool   `json:"includeSubunits,omitempty" jsonschema_description:"Also return the first page of sub-entities"`
}

type OrgArgs struct {
	OrgNr string `json:"orgnr" jsonschema:"required" jsonschema_description:"Nine digit organization number; spaces and punctuation are ignored"`
}

// Catalog returns every tool in listing order.
func Catalog(d Deps) []mcpservice.Tool {
	log := d.Log
	if log == nil {
		log = slog.Default()
	}
	return []mcpservice.Tool{
		mcpservice.NewTool(IndexDocsSemantic, func(ctx context.Context, a IndexArgs) (any, error) {
			if d.Docs == nil {
				return nil, ErrUnavailable
			}
			stats, err := d.Docs.IndexDir(ctx, a.Root)
			if err != nil {
				return nil, err
			}
			log.InfoContext(ctx, "tools.index_docs.done",
				slog.Int("files", stats.FilesProcessed),
				slog.Int("chunks", stats.ChunksIndexed),
				slog.Int("skipped", stats.Skipped),
			)
			return stats, nil
		}, mcpservice.WithToolDescription("Chunk, embed and upsert the documents under the configured root into the vector index.")),

		mcpservice.NewTool(SearchDocsSemantic, func(ctx context.Context, a SearchArgs) (any, error) {
			if d.Docs == nil {
				return nil, ErrUnavailable
			}
			k := a.TopK
			if k == 0 {
				k = defaultTopK
			}
			matches, err := d.Docs.Search(ctx, a.Query, docindex.ClampTopK(k), a.Filter)
			if err != nil {
				return nil, err
			}
			if matches == nil {
				matches = []vector.Match{}
			}
			return SearchResult{Matches: matches}, nil
		}, mcpservice.WithToolDescription("Semantic search over the indexed documents. Returns ranked chunk ids with scores and metadata.")),

		mcpservice.NewTool(GetEntity, func(ctx context.Context, a EntityArgs) (any, error) {
			if d.Registry == nil {
				return nil, ErrUnavailable
			}
			return d.Registry.GetEntity(ctx, a.OrgNr, a.IncludeSubunits)
		}, mcpservice.WithToolDescription("Look up a registered entity by organization number, optionally with its sub-entities.")),

		mcpservice.NewTool(GetRoles, func(ctx context.Context, a OrgArgs) (any, error) {
			if d.Registry == nil {
				return nil, ErrUnavailable
			}
			return d.Registry.GetRoles(ctx, a.OrgNr)
		}, mcpservice.WithToolDescription("List role assignments (board, CEO, auditor, ...) for an entity.")),

		mcpservice.NewTool(GetAuthorityGrants, func(ctx context.Context, a OrgArgs) (any, error) {
			if d.Registry == nil {
				return nil, ErrUnavailable
			}
			return d.Registry.GetAuthorityGrants(ctx, a.OrgNr)
		}, mcpservice.WithToolDescription("List authority grants held by an entity.")),

		mcpservice.NewTool(BrowserProbe, func(ctx context.Context, a browserprobe.Request) (any, error) {
			if d.Prober == nil {
				return nil, ErrUnavailable
			}
			return d.Prober.Probe(ctx, a)
		}, mcpservice.WithToolDescription("Open an allowlisted page in a headless browser, run scripted actions and report title, HTML, console output, failed requests and a screenshot.")),
	}
}

// NewRegistry builds the immutable registry over Catalog(d).
func NewRegistry(d Deps) (*mcpservice.Registry, error) {
	return mcpservice.NewRegistry(Catalog(d)...)
}
