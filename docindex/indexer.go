package docindex

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ggoodman/registry-mcp/embedding"
	"github.com/ggoodman/registry-mcp/vector"
)

const (
	DefaultChunkSize    = 1200
	DefaultChunkOverlap = 200
	DefaultBatchSize    = 10
	DefaultMaxFileSize  = 512 * 1024

	snippetRunes = 200
)

// ErrNotConfigured is returned when the embedder or vector store is missing.
var ErrNotConfigured = errors.New("docindex: embedding provider and vector store must be configured")

// Extensions lists the file extensions that are indexed.
var Extensions = map[string]bool{
	".md":   true,
	".mdx":  true,
	".txt":  true,
	".json": true,
}

// VectorStore is the subset of the vector client the pipeline needs.
type VectorStore interface {
	Upsert(ctx context.Context, records []vector.Record) error
	Query(ctx context.Context, q vector.Query) ([]vector.Match, error)
}

var _ VectorStore = (*vector.Client)(nil)

// Config controls what is indexed and how.
type Config struct {
	Root         string
	ChunkSize    int
	ChunkOverlap int
	BatchSize    int
	MaxFileSize  int64
}

func (c *Config) applyDefaults() {
	if c.ChunkSize <= 0 {
		c.ChunkSize = DefaultChunkSize
	}
	if c.ChunkOverlap < 0 {
		c.ChunkOverlap = 0
	}
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.MaxFileSize <= 0 {
		c.MaxFileSize = DefaultMaxFileSize
	}
}

// Stats summarizes an indexing run.
type Stats struct {
	FilesProcessed int `json:"filesProcessed"`
	ChunksIndexed  int `json:"chunksIndexed"`
	Skipped        int `json:"skipped"`
}

// Indexer runs indexing and search. Embedder and store may be nil, in which
// case every operation fails with ErrNotConfigured.
type Indexer struct {
	cfg   Config
	emb   embedding.Embedder
	store VectorStore
	log   *slog.Logger
}

// Option configures an Indexer.
type Option func(*Indexer)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(ix *Indexer) {
		if l != nil {
			ix.log = l
		}
	}
}

// New returns an Indexer.
func New(cfg Config, emb embedding.Embedder, store VectorStore, opts ...Option) *Indexer {
	cfg.applyDefaults()
	ix := &Indexer{cfg: cfg, emb: emb, store: store, log: slog.Default()}
	for _, opt := range opts {
		opt(ix)
	}
	return ix
}

// Root returns the configured documents root.
func (ix *Indexer) Root() string { return ix.cfg.Root }

func (ix *Indexer) configured() error {
	if ix.emb == nil || ix.store == nil {
		return ErrNotConfigured
	}
	return nil
}

// Index indexes the whole root.
func (ix *Indexer) Index(ctx context.Context) (Stats, error) {
	return ix.IndexDir(ctx, "")
}

type pendingChunk struct {
	id   string
	text string
	meta map[string]any
}

// IndexDir indexes the subtree sub (relative to the root, "" for all of it).
// Chunk ids stay relative to the root so they match a full run.
func (ix *Indexer) IndexDir(ctx context.Context, sub string) (Stats, error) {
	var stats Stats
	if err := ix.configured(); err != nil {
		return stats, err
	}
	start := time.Now()

	root, err := filepath.Abs(ix.cfg.Root)
	if err != nil {
		return stats, fmt.Errorf("docindex: resolve root: %w", err)
	}
	dir, err := resolveInside(root, sub)
	if err != nil {
		return stats, err
	}

	var batch []pendingChunk
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := ix.upsertBatch(ctx, batch); err != nil {
			return err
		}
		stats.ChunksIndexed += len(batch)
		batch = batch[:0]
		return nil
	}

	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && skipDir(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || !Extensions[strings.ToLower(filepath.Ext(path))] {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if info.Size() > ix.cfg.MaxFileSize {
			ix.log.DebugContext(ctx, "docindex.index.skip_large", slog.String("path", rel), slog.Int64("size", info.Size()))
			stats.Skipped++
			return nil
		}

		content, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("docindex: read %s: %w", rel, err)
		}
		stats.FilesProcessed++

		for i, text := range ChunkText(string(content), ix.cfg.ChunkSize, ix.cfg.ChunkOverlap) {
			batch = append(batch, pendingChunk{
				id:   fmt.Sprintf("%s#%d", rel, i),
				text: text,
				meta: map[string]any{
					"path":    rel,
					"chunk":   i,
					"snippet": snippet(text),
				},
			})
			if len(batch) >= ix.cfg.BatchSize {
				if err := flush(); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err == nil {
		err = flush()
	}
	if err != nil {
		ix.log.ErrorContext(ctx, "docindex.index.err",
			slog.Int("files", stats.FilesProcessed),
			slog.Int("chunks", stats.ChunksIndexed),
			slog.String("err", err.Error()),
		)
		return stats, err
	}

	ix.log.InfoContext(ctx, "docindex.index.ok",
		slog.Int("files", stats.FilesProcessed),
		slog.Int("chunks", stats.ChunksIndexed),
		slog.Int("skipped", stats.Skipped),
		slog.Int64("dur_ms", time.Since(start).Milliseconds()),
	)
	return stats, nil
}

func (ix *Indexer) upsertBatch(ctx context.Context, batch []pendingChunk) error {
	texts := make([]string, len(batch))
	for i, c := range batch {
		texts[i] = c.text
	}
	vecs, err := ix.emb.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("docindex: embed batch: %w", err)
	}
	if len(vecs) != len(batch) {
		return fmt.Errorf("docindex: embedder returned %d vectors for %d chunks", len(vecs), len(batch))
	}
	records := make([]vector.Record, len(batch))
	for i, c := range batch {
		records[i] = vector.Record{ID: c.id, Vector: vecs[i], Metadata: c.meta}
	}
	if err := ix.store.Upsert(ctx, records); err != nil {
		return fmt.Errorf("docindex: upsert batch: %w", err)
	}
	ix.log.DebugContext(ctx, "docindex.index.batch", slog.Int("size", len(records)), slog.String("first_id", records[0].ID))
	return nil
}

// ClampTopK bounds k to [1, 10].
func ClampTopK(k int) int {
	switch {
	case k < 1:
		return 1
	case k > 10:
		return 10
	default:
		return k
	}
}

// Search embeds query with the indexing model and returns the nearest
// chunks, best first.
func (ix *Indexer) Search(ctx context.Context, query string, topK int, filter string) ([]vector.Match, error) {
	if err := ix.configured(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(query) == "" {
		return nil, errors.New("docindex: query is required")
	}
	vecs, err := ix.emb.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("docindex: embed query: %w", err)
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("docindex: embedder returned %d vectors for 1 query", len(vecs))
	}
	return ix.store.Query(ctx, vector.Query{Vector: vecs[0], TopK: ClampTopK(topK), Filter: filter})
}

// resolveInside joins sub onto root and rejects results outside root.
func resolveInside(root, sub string) (string, error) {
	if sub == "" {
		return root, nil
	}
	p := sub
	if !filepath.IsAbs(p) {
		p = filepath.Join(root, sub)
	}
	p = filepath.Clean(p)
	rel, err := filepath.Rel(root, p)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("docindex: %q is outside the documents root", sub)
	}
	return p, nil
}

func skipDir(name string) bool {
	return name == "node_modules" || strings.HasPrefix(name, ".")
}

func snippet(text string) string {
	if utf8.RuneCountInString(text) <= snippetRunes {
		return text
	}
	return text[:runeOffset(text, snippetRunes)]
}
