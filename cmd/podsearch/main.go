// Package main is the podsearch CLI entry point.
package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/podsearch/internal/cli"
	"github.com/hyperjump/podsearch/internal/config"
	"github.com/hyperjump/podsearch/internal/extract"
	"github.com/hyperjump/podsearch/internal/federation"
	"github.com/hyperjump/podsearch/internal/fetch"
	"github.com/hyperjump/podsearch/internal/indexer"
	"github.com/hyperjump/podsearch/internal/metrics"
	"github.com/hyperjump/podsearch/internal/models"
	"github.com/hyperjump/podsearch/internal/podstore"
	"github.com/hyperjump/podsearch/internal/search"
	"github.com/hyperjump/podsearch/internal/server"
	"github.com/hyperjump/podsearch/internal/storage"
	"github.com/hyperjump/podsearch/internal/vectorizer"
	"github.com/hyperjump/podsearch/internal/vocab"
	"github.com/hyperjump/podsearch/internal/watcher"
	"github.com/hyperjump/podsearch/pkg/utils"
)

var version = "dev"

const (
	defaultConfigPath = "/usr/local/etc/podsearch/config.yaml"
	defaultServerURL  = "http://localhost:8080"
)

// loadConfig loads config from path. When path is the default, config.yaml in the
// current directory wins if it exists. Returns the config and the path loaded.
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
	case "server":
		runServer()
	case "search":
		runSearch()
	case "index":
		runIndex()
	case "delete":
		runDelete()
	case "pods":
		runPods()
	case "status":
		runStatus()
	case "version", "--version", "-v":
		fmt.Printf("podsearch version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

// Components holds initialized services.
type Components struct {
	Catalog     *storage.SQLiteCatalog
	Pods        *podstore.Store
	Vectorizers *vectorizer.Set
	Indexer     *indexer.Indexer
	Engine      *search.Engine
	Federation  *federation.Client
}

func (c *Components) Close() {
	if c.Catalog != nil {
		_ = c.Catalog.Close()
	}
}

// initializeComponents wires the pipeline. The federation client is only built
// when federate is set and federation is enabled in cfg.
func initializeComponents(cfg *config.Config, logger *zap.Logger, m *metrics.Metrics, federate bool) (*Components, error) {
	reg, err := vocab.LoadRegistry(cfg.Languages.Dir, cfg.Languages.Installed, cfg.Languages.Default, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to load languages: %w", err)
	}
	set := vectorizer.NewSet(reg, cfg.Vectorizer.LogprobPower, cfg.Vectorizer.TopWords,
		vectorizer.WithQueryCache(cfg.Vectorizer.QueryCacheSize))

	catalog, err := storage.NewSQLiteCatalog(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize catalog: %w", err)
	}
	pods, err := podstore.Open(cfg.Storage.PodsDir, catalog, podstore.WithLogger(logger))
	if err != nil {
		_ = catalog.Close()
		return nil, fmt.Errorf("failed to open pod store: %w", err)
	}

	fetcher := fetch.New(cfg.Instance.UserAgent, cfg.Indexer.FetchTimeout, cfg.Indexer.MaxBodyBytes, fetch.WithLogger(logger))
	idx := indexer.NewIndexer(catalog, pods, set, fetcher, extract.NewExtractor(cfg.Indexer.SnippetWords),
		indexer.WithLogger(logger),
		indexer.WithMetrics(m),
		indexer.WithWorkers(cfg.Indexer.Workers),
	)

	c := &Components{Catalog: catalog, Pods: pods, Vectorizers: set, Indexer: idx}
	engineOpts := []search.Option{
		search.WithLogger(logger),
		search.WithMetrics(m),
		search.WithMaxNeighbors(cfg.Vectorizer.MaxNeighbors),
	}
	if federate && cfg.Federation.Enabled {
		peers, err := federation.LoadPeers(cfg.Federation.PeersFile)
		if err != nil {
			_ = catalog.Close()
			return nil, fmt.Errorf("failed to load peers: %w", err)
		}
		c.Federation = federation.NewClient(&cfg.Federation, &cfg.Instance, peers, set,
			federation.WithLogger(logger), federation.WithMetrics(m))
		engineOpts = append(engineOpts, search.WithFederator(c.Federation))
		logger.Info("federation enabled", zap.Int("peers", len(peers)))
	}
	c.Engine = search.NewEngine(pods, catalog, set, &cfg.Search, engineOpts...)
	return c, nil
}

// setup loads config and logger and wires the components for a direct command.
func setup(configPath string, federate bool) (*config.Config, *zap.Logger, *Components) {
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		fatalf("Failed to load config: %v", err)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		fatalf("Failed to create logger: %v", err)
	}
	components, err := initializeComponents(cfg, logger, nil, federate)
	if err != nil {
		fatalf("Failed to initialize: %v", err)
	}
	return cfg, logger, components
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fatalf("Failed to load config: %v", err)
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()
	logger.Info("config loaded", zap.String("config_path", resolvedConfigPath), zap.Bool("debug", debugMode))

	m := metrics.New()
	components, err := initializeComponents(cfg, logger, m, true)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := components.Indexer.Verify(ctx); err != nil {
		logger.Error("pod store is inconsistent with the catalog; run maintenance before trusting results", zap.Error(err))
	}

	inbox := watcher.NewInbox(components.Indexer, &cfg.Watch, logger)
	if err := inbox.Start(ctx); err != nil {
		logger.Fatal("Failed to start inbox watcher", zap.Error(err))
	}
	go inbox.SyncExistingFiles()

	opts := []server.Option{
		server.WithLogger(logger),
		server.WithMetrics(m),
		server.WithWatch(inbox),
	}
	if components.Federation != nil {
		opts = append(opts, server.WithFederation(components.Federation.Registry()))
	}
	srv := server.NewServer(components.Engine, components.Indexer, components.Catalog, cfg, opts...)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = srv.Stop(shutdownCtx)
}

func printSearchUsage(fs *flag.FlagSet) {
	fmt.Fprintf(fs.Output(), "Usage: podsearch search [flags] <query>\n\n")
	fmt.Fprintf(fs.Output(), "Query is all remaining arguments joined by spaces. End it with -xx to search language xx.\n\n")
	fs.PrintDefaults()
	fmt.Fprintf(fs.Output(), `
Examples:
  podsearch search black cat
  podsearch search "chat noir -fr"
  podsearch search -local -json tomato soup
`)
}

// buildSearchQuery joins all positional args with spaces so multi-word queries
// work the same with or without shell quoting.
func buildSearchQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// searchArgsReorder moves flags that appear after the query to the front so that
// flag.Parse sees them. A trailing "-xx" language suffix stays with the query.
func searchArgsReorder(args []string) []string {
	for i, a := range args {
		if len(a) > 0 && a[0] == '-' && !isLanguageSuffix(a) {
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

func isLanguageSuffix(a string) bool {
	if len(a) != 3 || a[0] != '-' {
		return false
	}
	for _, c := range a[1:] {
		if c < 'a' || c > 'z' {
			return false
		}
	}
	return true
}

func outputFormat(asJSON bool) cli.OutputFormat {
	if asJSON {
		return cli.OutputJSON
	}
	return cli.OutputText
}

func runSearch() {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (direct mode)")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = search the local pods directly)")
	asJSON := fs.Bool("json", false, "print JSON")
	local := fs.Bool("local", false, "skip peer instances")
	fs.Usage = func() { printSearchUsage(fs) }
	_ = fs.Parse(searchArgsReorder(os.Args[2:]))

	query := buildSearchQuery(fs.Args())
	if query == "" {
		printSearchUsage(fs)
		os.Exit(1)
	}

	var response *models.SearchResponse
	if *serverURL != "" {
		var err error
		response, err = searchViaHTTP(*serverURL, query, *local)
		if err != nil {
			fatalf("Search failed: %v", err)
		}
	} else {
		_, logger, components := setup(*configPath, !*local)
		defer logger.Sync()
		defer components.Close()
		var err error
		if *local {
			response, err = components.Engine.LocalSearch(context.Background(), query)
		} else {
			response, err = components.Engine.Search(context.Background(), query)
		}
		if err != nil {
			fatalf("Search failed: %v", err)
		}
	}
	if err := cli.WriteSearchResults(os.Stdout, response, outputFormat(*asJSON)); err != nil {
		fatalf("Output failed: %v", err)
	}
}

func getJSON(target string, v any) error {
	resp, err := http.Get(target)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func searchViaHTTP(serverURL, query string, local bool) (*models.SearchResponse, error) {
	target := serverURL + "/api/v1/search?q=" + url.QueryEscape(query)
	if local {
		target += "&local=true"
	}
	var response models.SearchResponse
	if err := getJSON(target, &response); err != nil {
		return nil, err
	}
	return &response, nil
}

// parseBatch reads "url;theme;lang;note;contributor" lines. Empty fields take the
// value from defaults; blank lines and lines starting with # are skipped.
func parseBatch(r io.Reader, defaults models.IndexRequest) ([]*models.IndexRequest, error) {
	var reqs []*models.IndexRequest
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		fields := strings.Split(text, ";")
		if len(fields) > 5 {
			return nil, fmt.Errorf("line %d: expected at most 5 fields, got %d", line, len(fields))
		}
		for len(fields) < 5 {
			fields = append(fields, "")
		}
		for i := range fields {
			fields[i] = strings.TrimSpace(fields[i])
		}
		if fields[0] == "" {
			return nil, fmt.Errorf("line %d: url is required", line)
		}
		req := defaults
		req.URL = fields[0]
		if fields[1] != "" {
			req.Theme = fields[1]
		}
		if fields[2] != "" {
			req.Language = fields[2]
		}
		if fields[3] != "" {
			req.Note = fields[3]
		}
		if fields[4] != "" {
			req.Contributor = fields[4]
		}
		reqs = append(reqs, &req)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return reqs, nil
}

func runIndex() {
	fs := flag.NewFlagSet("index", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	theme := fs.String("theme", "", "pod theme")
	contributor := fs.String("contributor", "", "contributor name")
	lang := fs.String("lang", "", "document language (detected when empty)")
	note := fs.String("note", "", "note stored with the document")
	title := fs.String("title", "", "title for -text")
	docURL := fs.String("url", "", "URL to fetch and index")
	text := fs.String("text", "", "text to index without fetching")
	file := fs.String("file", "", "local file or directory to index")
	batch := fs.String("batch", "", "file of url;theme;lang;note;contributor lines")
	serverURL := fs.String("server", "", "send -url, -text and -batch items to a running server")
	asJSON := fs.Bool("json", false, "print JSON")
	_ = fs.Parse(os.Args[2:])

	defaults := models.IndexRequest{Theme: *theme, Language: *lang, Note: *note, Contributor: *contributor}
	var reqs []*models.IndexRequest
	switch {
	case *batch != "":
		f, err := os.Open(*batch)
		if err != nil {
			fatalf("Failed to open batch file: %v", err)
		}
		reqs, err = parseBatch(f, defaults)
		_ = f.Close()
		if err != nil {
			fatalf("Invalid batch file: %v", err)
		}
	case *docURL != "" || *text != "":
		req := defaults
		req.URL, req.Text, req.Title = *docURL, *text, *title
		reqs = append(reqs, &req)
	case *file == "":
		fmt.Println("Usage: podsearch index -theme T -contributor C [-lang L] [-note N] (-url U | -text T | -file F | -batch FILE)")
		os.Exit(1)
	}

	var outcomes []*models.IndexOutcome
	if *serverURL != "" && *file == "" {
		if err := postJSON(*serverURL+"/api/v1/index", reqs, &outcomes); err != nil {
			fatalf("Indexing failed: %v", err)
		}
		if err := cli.WriteIndexReport(os.Stdout, outcomes, outputFormat(*asJSON)); err != nil {
			fatalf("Output failed: %v", err)
		}
		return
	}

	cfg, logger, components := setup(*configPath, false)
	defer logger.Sync()
	defer components.Close()
	ctx := context.Background()

	if *file != "" {
		outcomes = indexPath(ctx, components.Indexer, cfg, *file, *theme, *contributor)
	} else {
		outcomes = components.Indexer.IndexBatch(ctx, reqs)
	}
	if err := cli.WriteIndexReport(os.Stdout, outcomes, outputFormat(*asJSON)); err != nil {
		fatalf("Output failed: %v", err)
	}
}

// indexPath indexes a single file under theme, or every allowed file of a directory
// using its sub-directories as themes.
func indexPath(ctx context.Context, idx *indexer.Indexer, cfg *config.Config, path, theme, contributor string) []*models.IndexOutcome {
	if contributor == "" {
		contributor = cfg.Watch.Contributor
	}
	info, err := os.Stat(path)
	if err != nil {
		fatalf("Failed to stat path: %v", err)
	}
	if info.IsDir() {
		if theme == "" {
			theme = cfg.Watch.DefaultTheme
		}
		outcomes, err := idx.IndexDirectory(ctx, path, theme, contributor, cfg.Watch.Extensions)
		if err != nil {
			fatalf("Indexing directory failed: %v", err)
		}
		return outcomes
	}
	if theme == "" {
		fatalf("-theme is required for a single file")
	}
	return []*models.IndexOutcome{idx.IndexFile(ctx, path, theme, contributor)}
}

func runDelete() {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	docURL := fs.String("url", "", "indexed URL to delete")
	_ = fs.Parse(os.Args[2:])
	if *docURL == "" {
		fmt.Println("Usage: podsearch delete -url <url>")
		os.Exit(1)
	}

	_, logger, components := setup(*configPath, false)
	defer logger.Sync()
	defer components.Close()
	if err := components.Indexer.DeleteURL(context.Background(), *docURL); err != nil {
		fatalf("Deletion failed: %v", err)
	}
	fmt.Printf("Document deleted: %s\n", *docURL)
}

func runPods() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: podsearch pods <list|rename|delete> [flags]")
		fmt.Println("  podsearch pods list")
		fmt.Println("  podsearch pods rename -theme T -lang L -contributor C -to NEW")
		fmt.Println("  podsearch pods delete -theme T -lang L -contributor C")
		os.Exit(1)
	}
	sub := os.Args[2]
	fs := flag.NewFlagSet("pods", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	theme := fs.String("theme", "", "pod theme")
	lang := fs.String("lang", "", "pod language")
	contributor := fs.String("contributor", "", "pod contributor")
	to := fs.String("to", "", "new theme (rename)")
	asJSON := fs.Bool("json", false, "print JSON")
	_ = fs.Parse(os.Args[3:])

	key := models.PodKey{Theme: *theme, Language: *lang, Contributor: *contributor}
	requireKey := func() {
		if key.Theme == "" || key.Language == "" || key.Contributor == "" {
			fatalf("-theme, -lang and -contributor are required")
		}
	}

	_, logger, components := setup(*configPath, false)
	defer logger.Sync()
	defer components.Close()
	ctx := context.Background()

	switch sub {
	case "list":
		pods, err := components.Catalog.ListPods(ctx)
		if err != nil {
			fatalf("List failed: %v", err)
		}
		if err := cli.WritePods(os.Stdout, pods, outputFormat(*asJSON)); err != nil {
			fatalf("Output failed: %v", err)
		}
	case "rename":
		requireKey()
		if *to == "" {
			fatalf("-to is required")
		}
		if err := components.Indexer.RenamePod(ctx, key, *to); err != nil {
			fatalf("Rename failed: %v", err)
		}
		fmt.Printf("Renamed %s to %s.u.%s\n", key.Name(), *to, key.Contributor)
	case "delete":
		requireKey()
		n, err := components.Indexer.DeletePod(ctx, key)
		if err != nil {
			fatalf("Delete failed: %v", err)
		}
		fmt.Printf("Deleted %s (%d documents)\n", key.Name(), n)
	default:
		fatalf("Unknown pods subcommand: %s", sub)
	}
}

// statusResponse is the shape of GET /api/v1/status.
type statusResponse struct {
	Instance       string   `json:"instance"`
	Documents      int64    `json:"documents"`
	Pods           int      `json:"pods"`
	Languages      []string `json:"languages"`
	DiskUsageBytes *int64   `json:"disk_usage_bytes,omitempty"`
	Federation     *struct {
		Peers  []string          `json:"peers"`
		Errors map[string]string `json:"errors"`
	} `json:"federation,omitempty"`
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (direct mode)")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = read the local catalog directly)")
	asJSON := fs.Bool("json", false, "print JSON")
	_ = fs.Parse(os.Args[2:])

	var status statusResponse
	if *serverURL != "" {
		if err := getJSON(*serverURL+"/api/v1/status", &status); err != nil {
			fatalf("Status failed: %v", err)
		}
	} else {
		cfg, logger, components := setup(*configPath, false)
		defer logger.Sync()
		defer components.Close()
		ctx := context.Background()
		docs, err := components.Catalog.CountDocuments(ctx)
		if err != nil {
			fatalf("Count documents failed: %v", err)
		}
		pods, err := components.Catalog.ListPods(ctx)
		if err != nil {
			fatalf("List pods failed: %v", err)
		}
		status = statusResponse{
			Instance:  cfg.Instance.SiteName,
			Documents: docs,
			Pods:      len(pods),
			Languages: components.Engine.Languages(),
		}
		if diskBytes, err := storage.InstanceUsage(cfg.Storage.DatabasePath, cfg.Storage.PodsDir); err == nil {
			status.DiskUsageBytes = &diskBytes
		}
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(status); err != nil {
			fatalf("Output failed: %v", err)
		}
		return
	}
	fmt.Printf("instance:           %s\n", status.Instance)
	fmt.Printf("documents:          %d\n", status.Documents)
	fmt.Printf("pods:               %d\n", status.Pods)
	fmt.Printf("languages:          %s\n", strings.Join(status.Languages, ", "))
	if status.DiskUsageBytes != nil {
		fmt.Printf("disk_usage_bytes:   %d\n", *status.DiskUsageBytes)
	}
	if status.Federation != nil {
		fmt.Printf("peers:              %s\n", strings.Join(status.Federation.Peers, ", "))
		for lang, msg := range status.Federation.Errors {
			fmt.Printf("federation error:   [%s] %s\n", lang, msg)
		}
	}
}

func postJSON(target string, body, v any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return err
	}
	resp, err := http.Post(target, "application/json", bytes.NewReader(b))
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

func printUsage() {
	fmt.Println(`podsearch - federated pod search engine

Usage:
  podsearch server [flags]              Start the HTTP server
  podsearch search [flags] <query>      Search local pods and peers
  podsearch index [flags]               Index a URL, text, file, directory or batch
  podsearch delete -url <url>           Delete an indexed document
  podsearch pods <list|rename|delete>   Maintain pods
  podsearch status [flags]              Show instance status
  podsearch version                     Show version
  podsearch help                        Show this help

Server Flags:
  --config string    Config file path (default: /usr/local/etc/podsearch/config.yaml)
  --debug            Enable debug logging

Search Flags:
  --server string    Server URL (default: http://localhost:8080). Empty searches the local pods directly.
  --local            Skip peer instances
  --json             Print JSON

Index Flags:
  --theme, --contributor, --lang, --note
  --url U | --text T [--title] | --file F | --batch FILE (url;theme;lang;note;contributor lines)

Examples:
  podsearch server
  podsearch search black cat
  podsearch search "chat noir -fr"
  podsearch index -theme cats -contributor alice -url https://example.org/cats
  podsearch index -batch urls.txt -contributor alice
  podsearch pods rename -theme cats -lang en -contributor alice -to felines
  podsearch status --json`)
}
