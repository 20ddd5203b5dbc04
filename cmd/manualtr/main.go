// Command manualtr exports and imports translations of technical manuals.
//
// Usage:
//
//	manualtr serve -config manualtr.yaml             # HTTP API (+ MCP on stdio with -mcp-stdio)
//	manualtr export -doc 1 -o fr.csv                 # write the exchange file
//	manualtr import -doc 1 fr.csv                    # apply a filled-in exchange file
//	manualtr languages [-id 3 -name German]          # list or upsert catalog entries
//	manualtr seed manual.json                        # store a document tree from JSON
//	manualtr documents                               # list stored documents
//	manualtr runs [-doc 1]                           # recent exports and imports
//	manualtr prune                                   # drop run-log entries past retention
//
// export and import read the tree from the database, or from -tree file.json.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	_ "modernc.org/sqlite"

	"github.com/hazyhaar/manualtr/doctree"
	"github.com/hazyhaar/manualtr/idgen"
	"github.com/hazyhaar/manualtr/kit"
	"github.com/hazyhaar/manualtr/observability"
	"github.com/hazyhaar/manualtr/overlay"
	"github.com/hazyhaar/manualtr/translation"
	"github.com/hazyhaar/manualtr/treestore"
)

const version = "0.3.0"

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1], os.Args[2:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		fmt.Fprintln(os.Stderr, "manualtr:", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: manualtr <serve|export|import|languages|seed|documents|runs|prune> [flags]")
}

// app is what every subcommand needs once flags are parsed.
type app struct {
	cfg    *translation.Config
	logger *slog.Logger
	svc    *translation.Service
	trees  *treestore.Store
	close  func() error
}

type commonFlags struct {
	config   *string
	db       *string
	logLevel *string
	tree     *string
}

func addCommon(fs *flag.FlagSet) commonFlags {
	return commonFlags{
		config:   fs.String("config", "", "path to manualtr.yaml or manualtr.toml"),
		db:       fs.String("db", "", "database path or DSN (overrides config)"),
		logLevel: fs.String("log-level", "", "log level: debug, info, warn, error"),
		tree:     fs.String("tree", "", "read the document tree from this JSON file instead of the database"),
	}
}

func (c commonFlags) open() (*app, error) {
	cfg, err := translation.LoadConfigFile(*c.config)
	if err != nil {
		return nil, err
	}
	if *c.db != "" {
		cfg.DBPath = *c.db
	}
	if *c.logLevel != "" {
		cfg.Log.Level = *c.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	level, _ := observability.ParseLevel(cfg.Log.Level)
	logger := observability.NewLogger(os.Stderr, level, cfg.Log.Format)
	slog.SetDefault(logger)

	db, err := translation.OpenDB(cfg)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	trees := treestore.New(db, cfg.Dialect())
	var src translation.TreeSource = trees
	if *c.tree != "" {
		src = translation.FileSource{Path: *c.tree}
	}
	svc, err := translation.New(cfg, db, src, logger)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init: %w", err)
	}
	return &app{cfg: cfg, logger: logger, svc: svc, trees: trees, close: db.Close}, nil
}

func run(ctx context.Context, cmd string, args []string) error {
	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	common := addCommon(fs)

	switch cmd {
	case "serve":
		mcpStdio := fs.Bool("mcp-stdio", false, "also serve MCP tools on stdin/stdout")
		if err := fs.Parse(args); err != nil {
			return err
		}
		return withApp(common, func(a *app) error { return serve(ctx, a, *mcpStdio) })

	case "export":
		docID := fs.Int64("doc", 0, "document id")
		out := fs.String("o", "", "output file (default stdout)")
		markdown := fs.Bool("markdown", false, "add the originalMarkdown preview column")
		if err := fs.Parse(args); err != nil {
			return err
		}
		return withApp(common, func(a *app) error { return export(cliContext(ctx), a, *docID, *out, *markdown) })

	case "import":
		docID := fs.Int64("doc", 0, "document id")
		if err := fs.Parse(args); err != nil {
			return err
		}
		if fs.NArg() != 1 {
			return errors.New("import: exactly one CSV file expected")
		}
		return withApp(common, func(a *app) error { return importFile(cliContext(ctx), a, *docID, fs.Arg(0)) })

	case "languages":
		id := fs.Int64("id", 0, "language id to create or update")
		name := fs.String("name", "", "language name")
		active := fs.Bool("active", true, "whether the language is a translation target")
		if err := fs.Parse(args); err != nil {
			return err
		}
		return withApp(common, func(a *app) error {
			if *id != 0 {
				l := overlay.Language{ID: *id, Name: *name, IsActive: *active}
				if err := a.svc.Overlay().PutLanguage(ctx, l); err != nil {
					return err
				}
			}
			langs, err := a.svc.Languages(ctx)
			if err != nil {
				return err
			}
			return printJSON(langs)
		})

	case "seed":
		if err := fs.Parse(args); err != nil {
			return err
		}
		if fs.NArg() != 1 {
			return errors.New("seed: exactly one JSON file expected")
		}
		return withApp(common, func(a *app) error { return seed(ctx, a, fs.Arg(0)) })

	case "documents":
		if err := fs.Parse(args); err != nil {
			return err
		}
		return withApp(common, func(a *app) error {
			docs, err := a.trees.Documents(ctx)
			if err != nil {
				return err
			}
			return printJSON(docs)
		})

	case "runs":
		docID := fs.Int64("doc", 0, "document id (default all)")
		limit := fs.Int("limit", 20, "max runs")
		if err := fs.Parse(args); err != nil {
			return err
		}
		return withApp(common, func(a *app) error {
			runs, err := a.svc.Runs(ctx, *docID, *limit)
			if err != nil {
				return err
			}
			return printJSON(runs)
		})

	case "prune":
		if err := fs.Parse(args); err != nil {
			return err
		}
		return withApp(common, func(a *app) error {
			n, err := a.svc.PruneRuns(ctx)
			if err != nil {
				return err
			}
			a.logger.Info("manualtr: pruned runs", "deleted", n)
			return nil
		})

	case "version":
		fmt.Fprintln(stdout, version)
		return nil
	}
	usage()
	return fmt.Errorf("unknown command %q", cmd)
}

func withApp(c commonFlags, fn func(*app) error) error {
	a, err := c.open()
	if err != nil {
		return err
	}
	defer a.close()
	return fn(a)
}

func cliContext(ctx context.Context) context.Context {
	ctx = kit.WithTransport(ctx, "cli")
	return kit.WithRequestID(ctx, idgen.Prefixed("cli_", idgen.Default)())
}

func serve(ctx context.Context, a *app, mcpStdio bool) error {
	if mcpStdio {
		mcpSrv := mcp.NewServer(&mcp.Implementation{Name: "manualtr", Version: version}, nil)
		a.svc.RegisterMCP(mcpSrv)
		go func() {
			a.logger.Info("manualtr: MCP on stdio")
			if err := mcpSrv.Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
				a.logger.Error("manualtr: MCP", "error", err)
			}
		}()
	}

	srv := &http.Server{
		Addr:              a.cfg.Listen,
		Handler:           a.svc.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      120 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		a.logger.Info("manualtr: listening", "addr", a.cfg.Listen, "db", a.cfg.DBPath)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errc <- err
		}
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	a.logger.Info("manualtr: shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func export(ctx context.Context, a *app, docID int64, out string, markdown bool) error {
	if docID <= 0 {
		return errors.New("export: -doc is required")
	}
	w := stdout
	if out != "" {
		f, err := os.Create(out)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}
	stats, err := a.svc.Export(ctx, docID, w, translation.ExportOptions{MarkdownPreview: markdown})
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}
	a.logger.Info("manualtr: exported", "document_id", docID, "rows", stats.Rows, "missing", stats.Missing)
	return nil
}

func importFile(ctx context.Context, a *app, docID int64, path string) error {
	if docID <= 0 {
		return errors.New("import: -doc is required")
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	rep, err := a.svc.Import(ctx, docID, f)
	if err != nil {
		return fmt.Errorf("import: %w", err)
	}
	return printJSON(rep)
}

func seed(ctx context.Context, a *app, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	tree, err := doctree.ReadJSON(f)
	if err != nil {
		return err
	}
	if err := a.trees.Save(ctx, tree); err != nil {
		return fmt.Errorf("seed: %w", err)
	}
	a.logger.Info("manualtr: seeded", "document_id", tree.Document.ID,
		"sections", len(tree.Sections), "modules", len(tree.Modules), "components", len(tree.Components))
	return nil
}

// stdout receives command output.
var stdout io.Writer = os.Stdout

func printJSON(v any) error {
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
