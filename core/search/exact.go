package search

import (
	"context"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"

	"github.com/akfldk1028/ARR-sub002/core/graph"
)

// BleveIndex is the subset of the bleve index the exact stage needs,
// abstracted for testing.
type BleveIndex interface {
	SearchInContext(ctx context.Context, req *bleve.SearchRequest) (*bleve.SearchResult, error)
}

// unitDocument is the shape indexed per node for lexical search.
type unitDocument struct {
	ID      string `json:"id"`
	Content string `json:"content"`
	Path    string `json:"path"`
	SubType string `json:"sub_type"`
	Domain  string `json:"domain"`
}

// NewUnitIndexMapping returns the bleve mapping for unit documents.
func NewUnitIndexMapping() mapping.IndexMapping {
	m := bleve.NewIndexMapping()
	doc := bleve.NewDocumentMapping()

	text := bleve.NewTextFieldMapping()
	doc.AddFieldMappingsAt("content", text)
	doc.AddFieldMappingsAt("path", text)

	keyword := bleve.NewKeywordFieldMapping()
	doc.AddFieldMappingsAt("sub_type", keyword)
	doc.AddFieldMappingsAt("domain", keyword)

	m.DefaultMapping = doc
	return m
}

// BuildUnitIndex creates an in-memory bleve index over every node with
// content, using the node's identifier path as an additional lexical field
// so article-number tokens in queries hit structural identifiers.
func BuildUnitIndex(nodes []*graph.Node) (bleve.Index, error) {
	idx, err := bleve.NewMemOnly(NewUnitIndexMapping())
	if err != nil {
		return nil, err
	}

	batch := idx.NewBatch()
	for _, n := range nodes {
		if n.Content == "" {
			continue
		}
		doc := unitDocument{
			ID:      string(n.ID),
			Content: n.Content,
			Path:    strings.Join(n.ID.PathSegments(), " "),
			SubType: n.SubType,
			Domain:  string(n.Domain),
		}
		if err := batch.Index(doc.ID, doc); err != nil {
			return nil, err
		}
	}
	if err := idx.Batch(batch); err != nil {
		return nil, err
	}

	return idx, nil
}

// ExactSearcher runs the literal/lexical stage against structural
// identifiers and content. Degrades to empty results on failure.
type ExactSearcher struct {
	index BleveIndex
	repo  graph.Repository
}

// NewExactSearcher creates an ExactSearcher over the given index. The
// repository resolves matched identifiers back to nodes.
func NewExactSearcher(index BleveIndex, repo graph.Repository) *ExactSearcher {
	return &ExactSearcher{index: index, repo: repo}
}

// Execute searches content and identifier-path fields for the query terms.
// A nil index or empty query yields empty results, not an error.
func (es *ExactSearcher) Execute(ctx context.Context, query string, limit int) ([]Result, error) {
	if es.index == nil || strings.TrimSpace(query) == "" {
		return []Result{}, nil
	}
	if limit <= 0 {
		limit = 10
	}

	req := bleve.NewSearchRequestOptions(es.buildQuery(query), limit, 0, false)
	res, err := es.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, err
	}

	return es.toResults(ctx, res), nil
}

// buildQuery matches content and the identifier path. Structural tokens like
// "Article36" hit the path field even when the content lacks them.
func (es *ExactSearcher) buildQuery(queryText string) query.Query {
	content := bleve.NewMatchQuery(queryText)
	content.SetField("content")

	path := bleve.NewMatchQuery(queryText)
	path.SetField("path")

	return bleve.NewDisjunctionQuery(content, path)
}

// toResults resolves matched identifiers back to nodes. Bleve scores are
// unbounded, so similarity is normalized against the top hit.
func (es *ExactSearcher) toResults(ctx context.Context, res *bleve.SearchResult) []Result {
	if res == nil || len(res.Hits) == 0 {
		return []Result{}
	}

	top := res.Hits[0].Score
	if top <= 0 {
		top = 1
	}

	results := make([]Result, 0, len(res.Hits))
	for _, hit := range res.Hits {
		node, err := es.repo.GetNode(ctx, graph.NodeID(hit.ID))
		if err != nil {
			continue
		}
		results = append(results, resultFromNode(node, hit.Score/top, StageExact))
	}
	return results
}
