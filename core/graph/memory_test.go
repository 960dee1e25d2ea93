package graph

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedRepo(t *testing.T) *MemoryRepository {
	t.Helper()
	repo := NewMemoryRepository()

	repo.AddNode(&Node{ID: "Act::Ch1", Level: LevelChapter, Ordinal: 1})
	repo.AddNode(&Node{ID: "Act::Ch1::Art1", Level: LevelArticle, Ordinal: 1, Embedding: []float32{1, 0, 0}})
	repo.AddNode(&Node{ID: "Act::Ch1::Art2", Level: LevelArticle, Ordinal: 2, Embedding: []float32{0, 1, 0}})

	repo.AddEdge(&Edge{SourceID: "Act::Ch1", TargetID: "Act::Ch1::Art1", Type: EdgeContains})
	repo.AddEdge(&Edge{SourceID: "Act::Ch1", TargetID: "Act::Ch1::Art2", Type: EdgeContains})
	repo.AddEdge(&Edge{SourceID: "Act::Ch1::Art1", TargetID: "Act::Ch1::Art2", Type: EdgeNext, Embedding: []float32{1, 1, 0}})

	return repo
}

func TestMemoryRepository_GetNode(t *testing.T) {
	repo := seedRepo(t)
	ctx := context.Background()

	node, err := repo.GetNode(ctx, "Act::Ch1::Art1")
	require.NoError(t, err)
	assert.Equal(t, LevelArticle, node.Level)

	_, err = repo.GetNode(ctx, "Act::Missing")
	assert.ErrorIs(t, err, ErrNodeNotFound)
}

func TestMemoryRepository_GetNeighbors(t *testing.T) {
	repo := seedRepo(t)
	ctx := context.Background()

	out, err := repo.GetNeighbors(ctx, "Act::Ch1", NeighborOptions{Direction: DirectionOutgoing, EdgeTypes: []EdgeType{EdgeContains}})
	require.NoError(t, err)
	assert.Len(t, out, 2)

	in, err := repo.GetNeighbors(ctx, "Act::Ch1::Art1", NeighborOptions{Direction: DirectionIncoming})
	require.NoError(t, err)
	require.Len(t, in, 1)
	assert.Equal(t, NodeID("Act::Ch1"), in[0].Node.ID)

	both, err := repo.GetNeighbors(ctx, "Act::Ch1::Art1", NeighborOptions{Direction: DirectionBoth})
	require.NoError(t, err)
	assert.Len(t, both, 2)
}

func TestMemoryRepository_DanglingEdgeSkipped(t *testing.T) {
	repo := NewMemoryRepository()
	repo.AddNode(&Node{ID: "a"})
	repo.AddEdge(&Edge{SourceID: "a", TargetID: "ghost", Type: EdgeNext})

	neighbors, err := repo.GetNeighbors(context.Background(), "a", NeighborOptions{})
	require.NoError(t, err)
	assert.Empty(t, neighbors)
}

func TestMemoryRepository_VectorSearchNodes(t *testing.T) {
	repo := seedRepo(t)

	hits, err := repo.VectorSearchNodes(context.Background(), []float32{1, 0, 0}, 10)
	require.NoError(t, err)
	// The chapter node has no embedding and must be excluded.
	require.Len(t, hits, 2)
	assert.Equal(t, NodeID("Act::Ch1::Art1"), hits[0].Node.ID)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-6)
}

func TestMemoryRepository_VectorSearchEdges(t *testing.T) {
	repo := seedRepo(t)

	hits, err := repo.VectorSearchEdges(context.Background(), []float32{1, 1, 0}, 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, EdgeNext, hits[0].Edge.Type)
	assert.Equal(t, NodeID("Act::Ch1::Art1"), hits[0].From.ID)
}

func TestMemoryRepository_WriteEmbeddings(t *testing.T) {
	repo := seedRepo(t)

	failed, err := repo.WriteEmbeddings(context.Background(), map[NodeID][]float32{
		"Act::Ch1":  {0.5, 0.5, 0},
		"Act::Nope": {1, 0, 0},
	})
	require.NoError(t, err)
	assert.Equal(t, []NodeID{"Act::Nope"}, failed)

	node, err := repo.GetNode(context.Background(), "Act::Ch1")
	require.NoError(t, err)
	assert.True(t, node.HasEmbedding())
}
