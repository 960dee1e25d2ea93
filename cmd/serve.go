package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/akfldk1028/ARR-sub002/core/agent"
	"github.com/akfldk1028/ARR-sub002/core/agent/httpapi"
	"github.com/akfldk1028/ARR-sub002/core/collab"
	"github.com/akfldk1028/ARR-sub002/core/config"
	"github.com/akfldk1028/ARR-sub002/core/embed"
	"github.com/akfldk1028/ARR-sub002/core/expansion"
	"github.com/akfldk1028/ARR-sub002/core/graph"
	"github.com/akfldk1028/ARR-sub002/core/graph/sqlitegraph"
	"github.com/akfldk1028/ARR-sub002/core/router"
	"github.com/akfldk1028/ARR-sub002/core/search"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the search agent HTTP server",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		setupLogging(cfg.Logging)
		return runServe(cmd.Context(), cfg)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func setupLogging(cfg config.LoggingConfig) {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}

// nodeLister is satisfied by both repository backends.
type nodeLister interface {
	ListNodes(ctx context.Context) ([]*graph.Node, error)
}

func runServe(ctx context.Context, cfg *config.Config) error {
	logger := slog.Default().With("component", "serve")

	repo, closeRepo, err := openRepository(cfg.Graph)
	if err != nil {
		return err
	}
	defer closeRepo()

	embedder, err := buildEmbedder(cfg.Embedding)
	if err != nil {
		return err
	}

	exact, err := buildExactSearcher(ctx, repo)
	if err != nil {
		return err
	}

	orch := search.NewOrchestrator(repo, embedder, exact, search.Options{
		StageTimeout:        cfg.Search.StageTimeout,
		SimilarityThreshold: cfg.Search.SimilarityThreshold,
		SeedCount:           cfg.Search.SeedCount,
		RRFK:                cfg.Search.RRFK,
		DiversityEnabled:    cfg.Search.DiversityEnabled,
	})

	rt, err := router.NewRouter(repo, embedder, router.Options{
		CentroidWeight: cfg.Router.CentroidWeight,
		LexicalWeight:  cfg.Router.LexicalWeight,
		DomainTTL:      cfg.Router.DomainTTL,
		RouteCacheTTL:  cfg.Router.RouteCacheTTL,
	})
	if err != nil {
		return err
	}
	defer rt.Close()

	coordinator, err := buildCoordinator(cfg.Collab)
	if err != nil {
		return err
	}

	engine := agent.NewEngine(rt, coordinator, agent.Options{
		RouteTopN:    cfg.Router.TopN,
		DefaultLimit: cfg.Search.DefaultLimit,
	})
	engine.RegisterExpander(expansion.NewCostExpander(repo))

	domains, err := repo.GetDomains(ctx)
	if err != nil {
		return fmt.Errorf("load domains: %w", err)
	}
	for _, d := range domains {
		engine.RegisterDomain(d.ID, orch)
	}
	logger.Info("domains registered", "count", len(domains))

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           httpapi.NewServer(engine).Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.Server.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func openRepository(cfg config.GraphConfig) (graph.Repository, func(), error) {
	switch cfg.Backend {
	case "sqlite":
		store, err := sqlitegraph.Open(cfg.Path)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { store.Close() }, nil
	default:
		return graph.NewMemoryRepository(), func() {}, nil
	}
}

func buildEmbedder(cfg config.EmbeddingConfig) (embed.Embedder, error) {
	inner, err := embed.NewOpenAIEmbedder(embed.Config{
		BaseURL: cfg.BaseURL,
		Token:   cfg.Token,
		Model:   cfg.Model,
	})
	if err != nil {
		return nil, fmt.Errorf("build embedder: %w", err)
	}
	return embed.NewCachingEmbedder(inner, cfg.CacheSize, cfg.CacheTTL), nil
}

func buildExactSearcher(ctx context.Context, repo graph.Repository) (*search.ExactSearcher, error) {
	lister, ok := repo.(nodeLister)
	if !ok {
		return nil, nil
	}

	nodes, err := lister.ListNodes(ctx)
	if err != nil {
		return nil, fmt.Errorf("list nodes for index: %w", err)
	}

	index, err := search.BuildUnitIndex(nodes)
	if err != nil {
		return nil, fmt.Errorf("build text index: %w", err)
	}
	return search.NewExactSearcher(index, repo), nil
}

func buildCoordinator(cfg config.CollabConfig) (*collab.Coordinator, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	var decider collab.Decider
	switch cfg.Decider {
	case "anthropic":
		d, err := collab.NewAnthropicDecider(collab.AnthropicConfig{
			APIKey:    cfg.Anthropic.APIKey,
			Model:     cfg.Anthropic.Model,
			MaxTokens: cfg.Anthropic.MaxTokens,
		})
		if err != nil {
			return nil, err
		}
		decider = d
	default:
		decider = collab.NewHeuristicDecider()
	}

	coordinator := collab.NewCoordinator(decider, collab.Options{
		DecisionTimeout: cfg.DecisionTimeout,
		PeerTimeout:     cfg.PeerTimeout,
		MaxTargets:      cfg.MaxTargets,
	})
	for _, p := range cfg.Peers {
		coordinator.RegisterPeer(graph.DomainID(p.Domain), agent.NewPeerClient(p.URL, p.Timeout))
	}
	return coordinator, nil
}
