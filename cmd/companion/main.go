// Package main is the companion CLI entry point.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/hyperjump/companion/internal/cli"
	"github.com/hyperjump/companion/internal/config"
	"github.com/hyperjump/companion/internal/embedding"
	"github.com/hyperjump/companion/internal/extract"
	"github.com/hyperjump/companion/internal/generate"
	"github.com/hyperjump/companion/internal/indexer"
	"github.com/hyperjump/companion/internal/memory"
	"github.com/hyperjump/companion/internal/models"
	"github.com/hyperjump/companion/internal/server"
	"github.com/hyperjump/companion/internal/sourceid"
	"github.com/hyperjump/companion/internal/storage"
	"github.com/hyperjump/companion/internal/vector"
	"github.com/hyperjump/companion/internal/watcher"
	"github.com/hyperjump/companion/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/companion/config.yaml"

// loadConfig loads config from path. When path is the default, it first looks for
// config.yaml in the current directory (for development); if that exists it is used.
// Returns the config and the path that was actually loaded.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "serve", "server":
		runServer()
	case "companion":
		runCompanion()
	case "ingest":
		runIngest()
	case "clear":
		runClear()
	case "history":
		runHistory()
	case "chat":
		runChat()
	case "version", "--version", "-v":
		fmt.Printf("companion version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

// setup loads the config, creates the logger and initializes all components.
// The caller must Sync the logger and Close the components.
func setup(configPath string, debugFlag bool) (*config.Config, string, *zap.Logger, *Components) {
	cfg, resolvedConfigPath, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || debugFlag
	logger, err := utils.NewLogger(debugMode, zap.String("version", version))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	components, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	return cfg, resolvedConfigPath, logger, components
}

func runServer() {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging (file watching, ingestion, etc.)")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, logger, components := setup(*configPath, *debug)
	defer logger.Sync()
	defer components.Close()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", cfg.Debug || *debug),
	)

	watchCtx, watchCancel := context.WithCancel(context.Background())
	defer watchCancel()
	if cfg.Watch.Directory != "" {
		watchSvc := newKnowledgeWatcher(cfg, components.Pipeline, logger)
		if err := watchSvc.Start(watchCtx); err != nil {
			logger.Fatal("Failed to start watcher", zap.Error(err))
		}
		defer watchSvc.Stop()
		watchSvc.SyncExistingFiles()
	}

	srv := server.NewServer(
		components.Storage,
		components.Pipeline,
		components.Coordinator,
		components.Generator,
		cfg,
		logger,
	)
	go func() {
		if err := srv.Start(); err != nil {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	watchCancel()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(ctx)
}

// newKnowledgeWatcher ingests files dropped into <watch dir>/<companion id>/ and removes the
// knowledge of files deleted from there.
func newKnowledgeWatcher(cfg *config.Config, pipeline *indexer.Pipeline, logger *zap.Logger) *watcher.Watcher {
	return watcher.NewWatcher(
		cfg.Watch.Directory,
		cfg.Watch.Extensions,
		func(companionID, path string) {
			if _, err := pipeline.ReingestFile(context.Background(), companionID, path); err != nil {
				logger.Warn("watch ingest file failed",
					zap.String("companion_id", companionID), zap.String("path", path), zap.Error(err))
			}
		},
		func(companionID, path string) {
			absPath, err := filepath.Abs(path)
			if err != nil {
				absPath = path
			}
			if _, err := pipeline.DeleteSource(context.Background(), companionID, sourceid.File(absPath)); err != nil {
				logger.Warn("watch delete file failed",
					zap.String("companion_id", companionID), zap.String("path", path), zap.Error(err))
			}
		},
		watcher.WithLogger(logger),
	)
}

// companionProfile is the YAML form of a companion accepted by "companion import".
type companionProfile struct {
	ID           string          `yaml:"id"`
	OwnerID      string          `yaml:"owner_id"`
	Name         string          `yaml:"name"`
	Instructions string          `yaml:"instructions"`
	Seed         string          `yaml:"seed"`
	Sources      []profileSource `yaml:"sources"`
}

type profileSource struct {
	Type    string `yaml:"type"`
	Title   string `yaml:"title"`
	Content string `yaml:"content"`
	URL     string `yaml:"url"`
	Path    string `yaml:"path"`
}

// parseProfile decodes a companion profile. Relative source paths are resolved against baseDir.
func parseProfile(r io.Reader, baseDir string) (*models.Companion, error) {
	var p companionProfile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("parse profile: %w", err)
	}
	if p.ID == "" || p.Name == "" {
		return nil, errors.New("profile requires id and name")
	}
	if err := models.ValidateCompanionID(p.ID); err != nil {
		return nil, err
	}
	c := &models.Companion{
		ID:           p.ID,
		OwnerID:      p.OwnerID,
		Name:         p.Name,
		Instructions: p.Instructions,
		Seed:         p.Seed,
	}
	for _, ps := range p.Sources {
		typ, err := models.ParseSourceType(ps.Type)
		if err != nil {
			return nil, err
		}
		src := models.Source{Type: typ, Title: ps.Title, Content: ps.Content, URL: ps.URL, Path: ps.Path}
		if src.Path != "" && !filepath.IsAbs(src.Path) {
			src.Path = filepath.Join(baseDir, src.Path)
		}
		if err := src.Validate(); err != nil {
			return nil, err
		}
		src.ID = sourceid.For(src)
		c.Sources = append(c.Sources, src)
	}
	return c, nil
}

func runCompanion() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: companion companion <import|list|delete> [flags]")
		fmt.Println("  companion companion import <profile.yaml>  Create or replace a companion and ingest its sources")
		fmt.Println("  companion companion list                   List companions")
		fmt.Println("  companion companion delete <id>            Delete a companion and its knowledge")
		os.Exit(1)
	}
	sub := os.Args[2]
	fs := flag.NewFlagSet("companion", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[3:])

	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	_, _, logger, components := setup(*configPath, false)
	defer logger.Sync()
	defer components.Close()
	ctx := context.Background()

	switch sub {
	case "import":
		if fs.NArg() < 1 {
			fmt.Println("Usage: companion companion import [flags] <profile.yaml>")
			os.Exit(1)
		}
		f, err := os.Open(fs.Arg(0))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Open profile failed: %v\n", err)
			os.Exit(1)
		}
		absProfile, _ := filepath.Abs(fs.Arg(0))
		c, err := parseProfile(f, filepath.Dir(absProfile))
		_ = f.Close()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Invalid profile: %v\n", err)
			os.Exit(1)
		}
		if _, err := components.Pipeline.Clear(ctx, c.ID); err != nil {
			fmt.Fprintf(os.Stderr, "Clear knowledge failed: %v\n", err)
			os.Exit(1)
		}
		if err := components.Storage.SaveCompanion(ctx, c); err != nil {
			fmt.Fprintf(os.Stderr, "Save companion failed: %v\n", err)
			os.Exit(1)
		}
		results := components.Pipeline.IngestBatch(ctx, c.ID, c.Sources)
		if err := cli.WriteIngestResults(os.Stdout, results, format); err != nil {
			fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
			os.Exit(1)
		}
	case "list":
		list, err := components.Storage.ListCompanions(ctx, 0, 1000)
		if err != nil {
			fmt.Fprintf(os.Stderr, "List failed: %v\n", err)
			os.Exit(1)
		}
		if format == cli.OutputJSON {
			if err := cli.WriteJSON(os.Stdout, list); err != nil {
				fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
				os.Exit(1)
			}
			return
		}
		for _, c := range list {
			fmt.Printf("%s\t%s\t%d source(s)\n", c.ID, c.Name, len(c.Sources))
		}
	case "delete":
		if fs.NArg() < 1 {
			fmt.Println("Usage: companion companion delete [flags] <id>")
			os.Exit(1)
		}
		id := fs.Arg(0)
		if _, err := components.Pipeline.Clear(ctx, id); err != nil {
			fmt.Fprintf(os.Stderr, "Clear knowledge failed: %v\n", err)
			os.Exit(1)
		}
		if err := components.Storage.DeleteCompanion(ctx, id); err != nil {
			fmt.Fprintf(os.Stderr, "Delete failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Companion deleted: %s\n", id)
	default:
		fmt.Printf("Unknown companion subcommand: %s\n", sub)
		os.Exit(1)
	}
}

// isURL reports whether arg is an absolute http(s) URL rather than a local path.
func isURL(arg string) bool {
	u, err := url.Parse(arg)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// sourceFromArg builds the source named by a CLI argument. typeFlag forces the source
// type; TEXT treats arg as the content itself.
func sourceFromArg(arg, typeFlag, title string) (models.Source, error) {
	if typeFlag != "" {
		typ, err := models.ParseSourceType(typeFlag)
		if err != nil {
			return models.Source{}, err
		}
		src := models.Source{Type: typ, Title: title}
		switch {
		case typ == models.SourceText:
			src.Content = arg
		case typ == models.SourceLink && isURL(arg):
			src.URL = arg
		default:
			absPath, err := filepath.Abs(arg)
			if err != nil {
				return models.Source{}, err
			}
			src.Path = absPath
		}
		return src, src.Validate()
	}
	if isURL(arg) {
		return models.Source{Type: models.SourceLink, Title: title, URL: arg}, nil
	}
	src, err := indexer.SourceFromFile(arg)
	if err != nil {
		return models.Source{}, err
	}
	if title != "" {
		src.Title = title
	}
	return src, nil
}

func runIngest() {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	companionID := fs.String("companion", "", "companion id (required)")
	sourceType := fs.String("type", "", "source type: TEXT, LINK, PDF, DOCX, TXT, CSV, JSON (default: from URL or file extension)")
	title := fs.String("title", "", "source title")
	outputFormat := fs.String("output", "text", "output format: text or json")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	if *companionID == "" || fs.NArg() < 1 {
		fmt.Println("Usage: companion ingest --companion <id> [flags] <file|directory|url|text>")
		os.Exit(1)
	}
	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	arg := fs.Arg(0)

	cfg, _, logger, components := setup(*configPath, *debug)
	defer logger.Sync()
	defer components.Close()
	ctx := context.Background()

	var results []models.IngestResult
	if info, statErr := os.Stat(arg); statErr == nil && info.IsDir() && *sourceType == "" {
		results, err = components.Pipeline.IngestDirectory(ctx, *companionID, arg, cfg.Watch.Extensions)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Ingesting directory failed: %v\n", err)
			os.Exit(1)
		}
	} else {
		src, err := sourceFromArg(arg, *sourceType, *title)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Invalid source: %v\n", err)
			os.Exit(1)
		}
		results = components.Pipeline.IngestBatch(ctx, *companionID, []models.Source{src})
	}
	if err := cli.WriteIngestResults(os.Stdout, results, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
	for _, res := range results {
		if !res.OK() {
			os.Exit(2)
		}
	}
}

func runClear() {
	fs := flag.NewFlagSet("clear", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	companionID := fs.String("companion", "", "companion id (required)")
	sourceID := fs.String("source", "", "only remove this source id")
	_ = fs.Parse(os.Args[2:])

	if *companionID == "" {
		fmt.Println("Usage: companion clear --companion <id> [--source <source-id>]")
		os.Exit(1)
	}

	_, _, logger, components := setup(*configPath, false)
	defer logger.Sync()
	defer components.Close()
	ctx := context.Background()

	var (
		n   int
		err error
	)
	if *sourceID != "" {
		n, err = components.Pipeline.DeleteSource(ctx, *companionID, *sourceID)
	} else {
		n, err = components.Pipeline.Clear(ctx, *companionID)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Clear failed: %v\n", err)
		os.Exit(1)
	}

	// Forget the cleared sources too, otherwise the next turn ingests them again.
	c, err := components.Storage.GetCompanion(ctx, *companionID)
	switch {
	case errors.Is(err, models.ErrCompanionNotFound):
	case err != nil:
		fmt.Fprintf(os.Stderr, "Get companion failed: %v\n", err)
		os.Exit(1)
	default:
		c.Sources = removeSources(c.Sources, *sourceID)
		if err := components.Storage.SaveCompanion(ctx, c); err != nil {
			fmt.Fprintf(os.Stderr, "Save companion failed: %v\n", err)
			os.Exit(1)
		}
	}
	fmt.Printf("Removed %d chunk(s) from %s\n", n, *companionID)
}

// removeSources drops the source with sourceID, or every source when sourceID is empty.
func removeSources(sources []models.Source, sourceID string) []models.Source {
	if sourceID == "" {
		return nil
	}
	kept := sources[:0:0]
	for _, src := range sources {
		if src.ID != sourceID {
			kept = append(kept, src)
		}
	}
	return kept
}

func runHistory() {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	companionID := fs.String("companion", "", "companion id (required)")
	userID := fs.String("user", "", "user id (required)")
	model := fs.String("model", "", "model name (default from config)")
	limit := fs.Int("limit", 0, "number of most recent entries (default from config)")
	clearLog := fs.Bool("clear", false, "delete the conversation instead of printing it")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	cfg, _, logger, components := setup(*configPath, false)
	defer logger.Sync()
	defer components.Close()

	key := models.CompanionKey{CompanionID: *companionID, UserID: *userID, ModelName: *model}
	if key.ModelName == "" {
		key.ModelName = cfg.Memory.ModelName
	}
	if err := key.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid key: %v\n", err)
		os.Exit(1)
	}
	ctx := context.Background()
	if *clearLog {
		n, err := components.Storage.Clear(ctx, key)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Clear history failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Removed %d entr(ies) from %s\n", n, key.HistoryKey())
		return
	}
	n := *limit
	if n <= 0 {
		n = cfg.Memory.RecentLimit
	}
	entries, err := components.Storage.ReadRecent(ctx, key, n)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Read history failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteHistory(os.Stdout, key, entries, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

// reorderArgs moves flags (and their values) that appear after the positional arguments
// to the front, since flag.Parse stops at the first non-flag argument.
func reorderArgs(args []string) []string {
	for i, a := range args {
		if len(a) > 0 && a[0] == '-' {
			if i == 0 {
				return args
			}
			reordered := make([]string, 0, len(args))
			reordered = append(reordered, args[i:]...)
			reordered = append(reordered, args[:i]...)
			return reordered
		}
	}
	return args
}

func runChat() {
	fs := flag.NewFlagSet("chat", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	companionID := fs.String("companion", "", "companion id (required)")
	userID := fs.String("user", "", "user id (required)")
	tone := fs.String("tone", "", "reply tone, e.g. \"short and cheerful\"")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(reorderArgs(os.Args[2:]))

	prompt := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if *companionID == "" || *userID == "" || prompt == "" {
		fmt.Println("Usage: companion chat --companion <id> --user <id> [flags] <message>")
		os.Exit(1)
	}

	cfg, _, logger, components := setup(*configPath, *debug)
	defer logger.Sync()
	defer components.Close()
	ctx := context.Background()

	c, err := components.Storage.GetCompanion(ctx, *companionID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Get companion failed: %v\n", err)
		os.Exit(1)
	}
	key := models.CompanionKey{CompanionID: c.ID, UserID: *userID, ModelName: cfg.Memory.ModelName}
	reply, err := components.Coordinator.Respond(ctx, components.Generator, key, c, prompt, *tone)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Chat failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("%s: %s\n", c.Name, reply)
}

// Components holds initialized services.
type Components struct {
	Storage     storage.Storage
	Embedder    embedding.Embedder
	Index       vector.KnowledgeIndex
	Pipeline    *indexer.Pipeline
	Coordinator *memory.Coordinator
	Generator   generate.Generator
}

// Close releases every component. Closing the index persists the memory backend.
func (c *Components) Close() {
	if c.Storage != nil {
		_ = c.Storage.Close()
	}
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
	if c.Index != nil {
		_ = c.Index.Close()
	}
	if closer, ok := c.Generator.(io.Closer); ok {
		_ = closer.Close()
	}
}

func initializeComponents(cfg *config.Config, logger *zap.Logger) (*Components, error) {
	ctx := context.Background()
	store, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	c := &Components{Storage: store}

	c.Embedder, err = embedding.New(ctx, cfg.Embedding, cfg.Secrets, logger)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}

	c.Index, err = vector.NewKnowledgeIndex(cfg.Storage.KnowledgeBackend, cfg.Storage.KnowledgePath, c.Embedder.Dimensions())
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to initialize knowledge index: %w", err)
	}
	logger.Info("knowledge index initialized",
		zap.String("backend", cfg.Storage.KnowledgeBackend),
		zap.String("path", cfg.Storage.KnowledgePath))

	c.Generator, err = generate.New(ctx, cfg.Generation, cfg.Secrets, logger)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to initialize generator: %w", err)
	}

	loader := extract.NewLoader(
		extract.WithFetchLimits(cfg.Ingestion.FetchTimeout, cfg.Ingestion.MaxFetchBytes),
		extract.WithLogger(logger),
	)
	c.Pipeline = indexer.NewPipeline(c.Index, c.Embedder, loader,
		cfg.Ingestion.ChunkSize, cfg.Ingestion.ChunkOverlap, indexer.WithLogger(logger))

	c.Coordinator = memory.NewCoordinator(store, c.Index, c.Embedder, c.Pipeline,
		memory.WithRecentLimit(cfg.Memory.RecentLimit),
		memory.WithTopK(cfg.Memory.RetrievalTopK),
		memory.WithSeedDelimiter(cfg.Memory.SeedDelimiter),
		memory.WithLogger(logger),
	)
	return c, nil
}

func printUsage() {
	fmt.Println(`companion - Persona chat with per-user memory and companion knowledge

Usage:
  companion serve [flags]                       Start the HTTP server (and the knowledge watcher)
  companion companion <import|list|delete>      Manage companion profiles
  companion ingest [flags] <path|url|text>      Ingest a knowledge source into a companion
  companion clear [flags]                       Remove a companion's knowledge
  companion history [flags]                     Show or clear one user's conversation
  companion chat [flags] <message>              Send one message and print the reply
  companion version                             Show version
  companion help                                Show this help

Common Flags:
  --config string    Config file path (default: /usr/local/etc/companion/config.yaml)

Serve Flags:
  --debug            Enable debug logging

Ingest Flags:
  --companion string Companion id (required)
  --type string      Source type: TEXT, LINK, PDF, DOCX, TXT, CSV, JSON (default: from URL or extension)
  --title string     Source title
  --output string    Output format: text or json (default: text)

Clear Flags:
  --companion string Companion id (required)
  --source string    Only remove this source id

History Flags:
  --companion string Companion id (required)
  --user string      User id (required)
  --model string     Model name (default from config)
  --limit int        Number of most recent entries (default from config)
  --clear            Delete the conversation
  --output string    Output format: text or json (default: text)

Chat Flags:
  --companion string Companion id (required)
  --user string      User id (required)
  --tone string      Reply tone

Examples:
  companion serve
  companion companion import elon.yaml
  companion ingest --companion elon ./notes/
  companion ingest --companion elon https://example.com/about
  companion ingest --companion elon --type TEXT "Elon likes rockets."
  companion chat --companion elon --user u1 "What are you building?"
  companion history --companion elon --user u1 --output json`)
}
