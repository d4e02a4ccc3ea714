package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/archtools/archidx/internal/build"
	"github.com/archtools/archidx/internal/config"
	"github.com/archtools/archidx/internal/fstree"
	"github.com/archtools/archidx/internal/indexdoc"
	"github.com/archtools/archidx/internal/metrics"
	"github.com/archtools/archidx/internal/model"
	"github.com/archtools/archidx/internal/notify"
)

var CLI struct {
	Config  string `short:"c" help:"Configuration file path" default:"config.yaml"`
	Verbose bool   `short:"v" help:"Enable verbose logging"`

	Build struct {
		ForceFull      bool `help:"Regenerate every page regardless of the last-build marker"`
		ExcludeMissing bool `help:"Omit files that have no index entry instead of listing them"`
		NotifySearch   bool `help:"Trigger the search reindex call after a successful build"`
	} `cmd:"" help:"Build the archive index pages"`

	Check struct{} `cmd:"" help:"Parse the index document and correlate it against the tree without writing output"`

	Purge struct {
		Paths []string `arg:"" help:"Generated page names to purge from the CDN cache"`
	} `cmd:"" help:"Manually purge cached copies of generated pages"`
}

func main() {
	ctx := kong.Parse(&CLI)

	logLevel := slog.LevelInfo
	if CLI.Verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load(CLI.Config)
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	runCtx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	switch ctx.Command() {
	case "build":
		if err := runBuild(runCtx, cfg, logger); err != nil {
			logger.Error("build failed", "error", err)
			if errors.Is(err, build.ErrLockHeld) {
				os.Exit(2)
			}
			os.Exit(1)
		}
	case "check":
		if err := runCheck(cfg, logger); err != nil {
			logger.Error("check failed", "error", err)
			os.Exit(1)
		}
	case "purge <paths>":
		notifier := notify.New(cfg.Notify, nil, logger)
		notifier.PurgePages(runCtx, CLI.Purge.Paths)
	}
}

func runBuild(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	var rec metrics.Recorder = metrics.NoopRecorder{}
	var prom *metrics.PrometheusRecorder
	if cfg.Metrics.Textfile != "" {
		prom = metrics.NewPrometheusRecorder()
		rec = prom
	}

	c := &build.Coordinator{
		Config:  cfg,
		Metrics: rec,
		Logger:  logger,
	}
	opts := build.Options{
		ForceFull:           CLI.Build.ForceFull,
		ExcludeUndocumented: CLI.Build.ExcludeMissing || cfg.Build.ExcludeUndocumented,
		NotifySearch:        CLI.Build.NotifySearch,
	}
	if err := c.Run(ctx, opts); err != nil {
		return err
	}

	if prom != nil {
		if err := prom.WriteTextfile(cfg.Metrics.Textfile); err != nil {
			logger.Warn("metrics textfile write failed", "error", err)
		}
	}
	return nil
}

// runCheck parses the index document and correlates it against the tree,
// reporting problems without touching any persisted state.
func runCheck(cfg *config.Config, logger *slog.Logger) error {
	doc, err := os.Open(cfg.Archive.IndexDocument)
	if err != nil {
		return err
	}
	defer doc.Close()

	parser := &indexdoc.Parser{RootName: cfg.Archive.RootName}
	sections, err := parser.Parse(doc)
	if err != nil {
		return err
	}
	logger.Info("index document parsed", "sections", len(sections))

	walker := &fstree.Walker{
		TreeDir:  cfg.Archive.Tree,
		RootName: cfg.Archive.RootName,
		Reserved: cfg.Build.Reserved,
		Logger:   logger,
	}
	tree, err := walker.Walk()
	if err != nil {
		return err
	}

	resolver := &model.Resolver{Logger: logger}
	res := resolver.Resolve(tree, sections)

	files := 0
	undocumented := 0
	for _, dir := range res.Tree.SortedDirs() {
		for _, f := range dir.Files {
			files++
			if !f.Documented {
				undocumented++
			}
		}
	}
	logger.Info("check complete",
		"directories", len(res.Tree.Dirs),
		"files", files,
		"undocumented", undocumented,
		"dropped_entries", resolver.Dropped)
	return nil
}
