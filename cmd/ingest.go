package cmd

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/akfldk1028/ARR-sub002/core/graph"
	"github.com/akfldk1028/ARR-sub002/core/graph/sqlitegraph"
)

var ingestDB string

// corpusFile is the on-disk ingest format: one JSON document holding the
// whole graph.
type corpusFile struct {
	Domains []graph.Domain `json:"domains"`
	Nodes   []*graph.Node  `json:"nodes"`
	Edges   []*graph.Edge  `json:"edges"`
}

var ingestCmd = &cobra.Command{
	Use:   "ingest [corpus.json]",
	Short: "Load a corpus file into a SQLite graph database",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runIngest(cmd, args[0])
	},
}

func init() {
	ingestCmd.Flags().StringVar(&ingestDB, "db", "normgraph.db", "SQLite database path")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, corpusPath string) error {
	logger := slog.Default().With("component", "ingest")

	data, err := os.ReadFile(corpusPath)
	if err != nil {
		return fmt.Errorf("read corpus: %w", err)
	}

	var corpus corpusFile
	if err := json.Unmarshal(data, &corpus); err != nil {
		return fmt.Errorf("parse corpus %s: %w", corpusPath, err)
	}

	store, err := sqlitegraph.Open(ingestDB)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := cmd.Context()
	for _, d := range corpus.Domains {
		if err := store.PutDomain(ctx, d); err != nil {
			return err
		}
	}
	for _, n := range corpus.Nodes {
		if err := store.PutNode(ctx, n); err != nil {
			return err
		}
	}
	for _, e := range corpus.Edges {
		if err := store.PutEdge(ctx, e); err != nil {
			return err
		}
	}

	if err := store.RecomputeCentroids(ctx); err != nil {
		return fmt.Errorf("recompute centroids: %w", err)
	}

	logger.Info("corpus loaded",
		"domains", len(corpus.Domains),
		"nodes", len(corpus.Nodes),
		"edges", len(corpus.Edges),
		"db", ingestDB)
	return nil
}
