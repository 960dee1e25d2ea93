// Package sqlitegraph persists the legal norm graph in SQLite. Vector scans
// are brute force over stored embeddings, which is adequate for corpora in
// the tens of thousands of units.
package sqlitegraph

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/akfldk1028/ARR-sub002/core/graph"
	"github.com/akfldk1028/ARR-sub002/core/vecmath"
)

const schema = `
CREATE TABLE IF NOT EXISTS nodes (
	id        TEXT PRIMARY KEY,
	level     INTEGER NOT NULL,
	content   TEXT NOT NULL DEFAULT '',
	embedding BLOB,
	path      TEXT NOT NULL DEFAULT '',
	ordinal   INTEGER NOT NULL DEFAULT 0,
	sub_type  TEXT NOT NULL DEFAULT '',
	domain    TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS edges (
	id        INTEGER PRIMARY KEY AUTOINCREMENT,
	source_id TEXT NOT NULL,
	target_id TEXT NOT NULL,
	type      TEXT NOT NULL,
	base_cost REAL NOT NULL DEFAULT 0,
	embedding BLOB,
	rules     TEXT NOT NULL DEFAULT '[]'
);
CREATE INDEX IF NOT EXISTS idx_edges_source ON edges(source_id);
CREATE INDEX IF NOT EXISTS idx_edges_target ON edges(target_id);

CREATE TABLE IF NOT EXISTS domains (
	id         TEXT PRIMARY KEY,
	centroid   BLOB,
	keywords   TEXT NOT NULL DEFAULT '[]',
	node_count INTEGER NOT NULL DEFAULT 0
);
`

// Store is a graph.Repository backed by SQLite.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens or creates the database at path and applies the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// modernc sqlite serializes writes itself; one connection avoids
	// SQLITE_BUSY under concurrent stages.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{
		db:     db,
		logger: slog.Default().With("component", "sqlite-graph"),
	}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// === Vector encoding ===

// encodeVector packs float32s little-endian. Nil stays nil so absent
// embeddings round-trip as NULL.
func encodeVector(vec []float32) []byte {
	if vec == nil {
		return nil
	}
	data := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(data[i*4:], math.Float32bits(v))
	}
	return data
}

func decodeVector(data []byte) []float32 {
	if len(data) == 0 || len(data)%4 != 0 {
		return nil
	}
	vec := make([]float32, len(data)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return vec
}

// === Writes ===

// PutNode inserts or replaces a node.
func (s *Store) PutNode(ctx context.Context, n *graph.Node) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO nodes (id, level, content, embedding, path, ordinal, sub_type, domain)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		string(n.ID), int(n.Level), n.Content, encodeVector(n.Embedding),
		strings.Join(n.Path, "/"), n.Ordinal, n.SubType, string(n.Domain))
	if err != nil {
		return fmt.Errorf("put node %s: %w", n.ID, err)
	}
	return nil
}

// PutEdge inserts an edge and fills in its assigned ID.
func (s *Store) PutEdge(ctx context.Context, e *graph.Edge) error {
	rules, err := json.Marshal(e.Rules)
	if err != nil {
		return fmt.Errorf("marshal rules: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO edges (source_id, target_id, type, base_cost, embedding, rules)
		VALUES (?, ?, ?, ?, ?, ?)`,
		string(e.SourceID), string(e.TargetID), string(e.Type), e.BaseCost,
		encodeVector(e.Embedding), string(rules))
	if err != nil {
		return fmt.Errorf("put edge %s->%s: %w", e.SourceID, e.TargetID, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("edge id: %w", err)
	}
	e.ID = id
	return nil
}

// PutDomain inserts or replaces a domain.
func (s *Store) PutDomain(ctx context.Context, d graph.Domain) error {
	keywords, err := json.Marshal(d.Keywords)
	if err != nil {
		return fmt.Errorf("marshal keywords: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO domains (id, centroid, keywords, node_count)
		VALUES (?, ?, ?, ?)`,
		string(d.ID), encodeVector(d.Centroid), string(keywords), d.NodeCount)
	if err != nil {
		return fmt.Errorf("put domain %s: %w", d.ID, err)
	}
	return nil
}

// === Reads ===

// ListNodes returns every node sorted by ID, for bulk consumers like index
// builders.
func (s *Store) ListNodes(ctx context.Context) ([]*graph.Node, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, level, content, embedding, path, ordinal, sub_type, domain
		FROM nodes ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list nodes: %w", err)
	}
	defer rows.Close()

	var nodes []*graph.Node
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, fmt.Errorf("scan node: %w", err)
		}
		nodes = append(nodes, n)
	}
	return nodes, rows.Err()
}

func (s *Store) GetNode(ctx context.Context, id graph.NodeID) (*graph.Node, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, level, content, embedding, path, ordinal, sub_type, domain
		FROM nodes WHERE id = ?`, string(id))

	n, err := scanNode(row)
	if err == sql.ErrNoRows {
		return nil, graph.ErrNodeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get node %s: %w", id, err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNode(row rowScanner) (*graph.Node, error) {
	var n graph.Node
	var id, path, domain string
	var level int
	var embedding []byte

	if err := row.Scan(&id, &level, &n.Content, &embedding, &path, &n.Ordinal, &n.SubType, &domain); err != nil {
		return nil, err
	}

	n.ID = graph.NodeID(id)
	n.Level = graph.UnitLevel(level)
	n.Embedding = decodeVector(embedding)
	n.Domain = graph.DomainID(domain)
	if path != "" {
		n.Path = strings.Split(path, "/")
	}
	return &n, nil
}

func scanEdge(row rowScanner) (*graph.Edge, error) {
	var e graph.Edge
	var source, target, typ, rules string
	var embedding []byte

	if err := row.Scan(&e.ID, &source, &target, &typ, &e.BaseCost, &embedding, &rules); err != nil {
		return nil, err
	}

	e.SourceID = graph.NodeID(source)
	e.TargetID = graph.NodeID(target)
	e.Type = graph.EdgeType(typ)
	e.Embedding = decodeVector(embedding)
	if err := json.Unmarshal([]byte(rules), &e.Rules); err != nil {
		return nil, fmt.Errorf("unmarshal rules for edge %d: %w", e.ID, err)
	}
	return &e, nil
}

func (s *Store) GetNeighbors(ctx context.Context, id graph.NodeID, opts graph.NeighborOptions) ([]graph.Neighbor, error) {
	if _, err := s.GetNode(ctx, id); err != nil {
		return nil, err
	}

	var clauses []string
	var args []any
	switch opts.Direction {
	case graph.DirectionIncoming:
		clauses = append(clauses, "target_id = ?")
		args = append(args, string(id))
	case graph.DirectionBoth:
		clauses = append(clauses, "(source_id = ? OR target_id = ?)")
		args = append(args, string(id), string(id))
	default:
		clauses = append(clauses, "source_id = ?")
		args = append(args, string(id))
	}

	if len(opts.EdgeTypes) > 0 {
		placeholders := make([]string, len(opts.EdgeTypes))
		for i, t := range opts.EdgeTypes {
			placeholders[i] = "?"
			args = append(args, string(t))
		}
		clauses = append(clauses, fmt.Sprintf("type IN (%s)", strings.Join(placeholders, ",")))
	}

	query := `SELECT id, source_id, target_id, type, base_cost, embedding, rules
		FROM edges WHERE ` + strings.Join(clauses, " AND ") + ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("get neighbors %s: %w", id, err)
	}
	defer rows.Close()

	var neighbors []graph.Neighbor
	for rows.Next() {
		edge, err := scanEdge(rows)
		if err != nil {
			return nil, fmt.Errorf("scan edge: %w", err)
		}

		otherID := edge.TargetID
		if otherID == id {
			otherID = edge.SourceID
		}
		node, err := s.GetNode(ctx, otherID)
		if err == graph.ErrNodeNotFound {
			// Dangling edge, skip.
			continue
		}
		if err != nil {
			return nil, err
		}
		neighbors = append(neighbors, graph.Neighbor{Node: node, Edge: edge})
	}
	return neighbors, rows.Err()
}

func (s *Store) VectorSearchNodes(ctx context.Context, query []float32, limit int) ([]graph.NodeHit, error) {
	if len(query) == 0 || limit <= 0 {
		return []graph.NodeHit{}, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, level, content, embedding, path, ordinal, sub_type, domain
		FROM nodes WHERE embedding IS NOT NULL`)
	if err != nil {
		return nil, fmt.Errorf("vector scan nodes: %w", err)
	}
	defer rows.Close()

	var hits []graph.NodeHit
	for rows.Next() {
		node, err := scanNode(rows)
		if err != nil {
			return nil, fmt.Errorf("scan node: %w", err)
		}
		if !node.HasEmbedding() {
			continue
		}
		hits = append(hits, graph.NodeHit{
			Node:  node,
			Score: vecmath.CosineSimilarity(query, node.Embedding),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Node.ID < hits[j].Node.ID
	})
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func (s *Store) VectorSearchEdges(ctx context.Context, query []float32, limit int) ([]graph.EdgeHit, error) {
	if len(query) == 0 || limit <= 0 {
		return []graph.EdgeHit{}, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, source_id, target_id, type, base_cost, embedding, rules
		FROM edges WHERE embedding IS NOT NULL`)
	if err != nil {
		return nil, fmt.Errorf("vector scan edges: %w", err)
	}
	defer rows.Close()

	var edges []*graph.Edge
	for rows.Next() {
		edge, err := scanEdge(rows)
		if err != nil {
			return nil, fmt.Errorf("scan edge: %w", err)
		}
		if len(edge.Embedding) > 0 {
			edges = append(edges, edge)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var hits []graph.EdgeHit
	for _, edge := range edges {
		from, err := s.GetNode(ctx, edge.SourceID)
		if err != nil {
			continue
		}
		to, err := s.GetNode(ctx, edge.TargetID)
		if err != nil {
			continue
		}
		hits = append(hits, graph.EdgeHit{
			Edge:  edge,
			From:  from,
			To:    to,
			Score: vecmath.CosineSimilarity(query, edge.Embedding),
		})
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Edge.ID < hits[j].Edge.ID
	})
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func (s *Store) GetDomains(ctx context.Context) ([]graph.Domain, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, centroid, keywords, node_count FROM domains ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("get domains: %w", err)
	}
	defer rows.Close()

	var domains []graph.Domain
	for rows.Next() {
		var d graph.Domain
		var id, keywords string
		var centroid []byte
		if err := rows.Scan(&id, &centroid, &keywords, &d.NodeCount); err != nil {
			return nil, fmt.Errorf("scan domain: %w", err)
		}
		d.ID = graph.DomainID(id)
		d.Centroid = decodeVector(centroid)
		if err := json.Unmarshal([]byte(keywords), &d.Keywords); err != nil {
			return nil, fmt.Errorf("unmarshal keywords for %s: %w", id, err)
		}
		domains = append(domains, d)
	}
	return domains, rows.Err()
}
