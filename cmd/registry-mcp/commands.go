package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/ggoodman/registry-mcp/config"
	"github.com/ggoodman/registry-mcp/docindex"
	"github.com/ggoodman/registry-mcp/mcp"
	"github.com/ggoodman/registry-mcp/stdio"
	"github.com/ggoodman/registry-mcp/tools"
)

type rootOptions struct {
	docsRoot     string
	chunkSize    int
	chunkOverlap int
	logLevel     string
	logFormat    string
}

// applyFlags copies explicitly set flags over the environment values.
func applyFlags(fs *pflag.FlagSet, opts *rootOptions, cfg *config.Config) error {
	if fs.Changed("docs-root") {
		cfg.DocsRoot = opts.docsRoot
	}
	if fs.Changed("chunk-size") {
		cfg.ChunkSize = opts.chunkSize
	}
	if fs.Changed("chunk-overlap") {
		cfg.ChunkOverlap = opts.chunkOverlap
	}
	if fs.Changed("log-level") {
		cfg.LogLevel = opts.logLevel
	}
	if fs.Changed("log-format") {
		cfg.LogFormat = opts.logFormat
	}
	return cfg.Validate()
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	// setup loads configuration and wires services for any subcommand.
	setup := func(cmd *cobra.Command) (*app, error) {
		cfg, err := config.Load()
		if err != nil {
			return nil, err
		}
		if err := applyFlags(cmd.Flags(), opts, cfg); err != nil {
			return nil, err
		}
		log, err := newLogger(cmd.ErrOrStderr(), cfg.LogLevel, cfg.LogFormat)
		if err != nil {
			return nil, err
		}
		return newApp(cmd.Context(), cfg, log)
	}

	serve := func(cmd *cobra.Command, args []string) error {
		a, err := setup(cmd)
		if err != nil {
			return err
		}
		defer a.close()
		return runServe(cmd, a)
	}

	root := &cobra.Command{
		Use:           "registry-mcp",
		Short:         "Business registry, document search and browser probe tools over stdio JSON-RPC",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          serve,
	}
	pf := root.PersistentFlags()
	pf.StringVar(&opts.docsRoot, "docs-root", "", "documents root (overrides DOCS_ROOT)")
	pf.IntVar(&opts.chunkSize, "chunk-size", docindex.DefaultChunkSize, "chunk size in characters (overrides CHUNK_SIZE)")
	pf.IntVar(&opts.chunkOverlap, "chunk-overlap", docindex.DefaultChunkOverlap, "chunk overlap in characters (overrides CHUNK_OVERLAP)")
	pf.StringVar(&opts.logLevel, "log-level", "info", "log level: debug|info|warn|error (overrides LOG_LEVEL)")
	pf.StringVar(&opts.logFormat, "log-format", "text", "log format: text|json (overrides LOG_FORMAT)")

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Serve tools over stdin/stdout (default)",
		Args:  cobra.NoArgs,
		RunE:  serve,
	})
	root.AddCommand(newIndexCmd(setup))
	root.AddCommand(newSearchCmd(setup))
	return root
}

func runServe(cmd *cobra.Command, a *app) error {
	reg, err := tools.NewRegistry(a.deps())
	if err != nil {
		return err
	}
	h := stdio.NewHandler(reg,
		stdio.WithIO(cmd.InOrStdin(), cmd.OutOrStdout()),
		stdio.WithLogger(a.log),
		stdio.WithServerInfo(mcp.ImplementationInfo{Name: "registry-mcp", Version: version}),
		stdio.WithShutdownGrace(a.cfg.ShutdownGrace),
		stdio.WithMaxConcurrentCalls(a.cfg.MaxConcurrentCalls),
	)
	err = h.Serve(cmd.Context())
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

type setupFunc func(cmd *cobra.Command) (*app, error)

func newIndexCmd(setup setupFunc) *cobra.Command {
	var (
		watch    bool
		debounce time.Duration
		sub      string
	)
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Index the documents root into the vector store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(cmd)
			if err != nil {
				return err
			}
			defer a.close()
			ctx := cmd.Context()

			stats, err := a.indexer.IndexDir(ctx, sub)
			if err != nil {
				return err
			}
			if err := printJSON(cmd, stats); err != nil {
				return err
			}
			if !watch {
				return nil
			}
			a.log.InfoContext(ctx, "index.watch.start", slog.String("root", a.indexer.Root()))
			err = a.indexer.Watch(ctx, debounce, func(s docindex.Stats, err error) {
				if err != nil {
					a.log.ErrorContext(ctx, "index.watch.failed", slog.String("err", err.Error()))
					return
				}
				_ = printJSON(cmd, s)
			})
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "re-index when files under the root change")
	cmd.Flags().DurationVar(&debounce, "debounce", 2*time.Second, "quiet period before re-indexing in watch mode")
	cmd.Flags().StringVar(&sub, "dir", "", "subdirectory of the root to index")
	return cmd
}

func newSearchCmd(setup setupFunc) *cobra.Command {
	var (
		topK   int
		filter string
		output string
	)
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Run a semantic search against the indexed documents",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			matches, err := a.indexer.Search(cmd.Context(), strings.Join(args, " "), topK, filter)
			if err != nil {
				return err
			}
			switch strings.ToLower(strings.TrimSpace(output)) {
			case "", "text":
				w := cmd.OutOrStdout()
				for i, m := range matches {
					fmt.Fprintf(w, "%2d. %.4f  %s\n", i+1, m.Score, m.ID)
					if s, ok := m.Metadata["snippet"].(string); ok && s != "" {
						fmt.Fprintf(w, "    %s\n", strings.ReplaceAll(s, "\n", " "))
					}
				}
				return nil
			case "json":
				return printJSON(cmd, tools.SearchResult{Matches: matches})
			default:
				return fmt.Errorf("unsupported output %q (expected text or json)", output)
			}
		},
	}
	cmd.Flags().IntVarP(&topK, "top-k", "k", 5, "number of matches (1-10)")
	cmd.Flags().StringVar(&filter, "filter", "", "metadata filter expression")
	cmd.Flags().StringVarP(&output, "output", "o", "text", "output format (text|json)")
	return cmd
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
