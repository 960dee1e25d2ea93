package sqlitegraph

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"sort"

	"gonum.org/v1/gonum/floats"

	"github.com/akfldk1028/ARR-sub002/core/graph"
)

// WriteEmbeddings implements graph.EmbeddingWriter: write the batch, verify
// each row round-trips, retry the failed subset once, and report whatever
// still failed.
func (s *Store) WriteEmbeddings(ctx context.Context, batch map[graph.NodeID][]float32) ([]graph.NodeID, error) {
	if len(batch) == 0 {
		return nil, nil
	}

	if err := s.writeBatch(ctx, batch); err != nil {
		return nil, err
	}

	failed, err := s.verify(ctx, batch)
	if err != nil {
		return nil, err
	}
	if len(failed) == 0 {
		return nil, nil
	}

	s.logger.Warn("embedding verify failed, retrying subset", "count", len(failed))

	retry := make(map[graph.NodeID][]float32, len(failed))
	for _, id := range failed {
		retry[id] = batch[id]
	}
	if err := s.writeBatch(ctx, retry); err != nil {
		return failed, err
	}

	stillFailed, err := s.verify(ctx, retry)
	if err != nil {
		return failed, err
	}
	sort.Slice(stillFailed, func(i, j int) bool { return stillFailed[i] < stillFailed[j] })
	return stillFailed, nil
}

func (s *Store) writeBatch(ctx context.Context, batch map[graph.NodeID][]float32) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin embedding batch: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `UPDATE nodes SET embedding = ? WHERE id = ?`)
	if err != nil {
		return fmt.Errorf("prepare embedding update: %w", err)
	}
	defer stmt.Close()

	for id, vec := range batch {
		if _, err := stmt.ExecContext(ctx, encodeVector(vec), string(id)); err != nil {
			return fmt.Errorf("write embedding %s: %w", id, err)
		}
	}
	return tx.Commit()
}

// verify reads each written row back and compares bytes. Unknown node IDs
// count as failures.
func (s *Store) verify(ctx context.Context, batch map[graph.NodeID][]float32) ([]graph.NodeID, error) {
	var failed []graph.NodeID
	for id, vec := range batch {
		var stored []byte
		err := s.db.QueryRowContext(ctx,
			`SELECT embedding FROM nodes WHERE id = ?`, string(id)).Scan(&stored)
		if err == sql.ErrNoRows {
			failed = append(failed, id)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("verify embedding %s: %w", id, err)
		}
		if !bytes.Equal(stored, encodeVector(vec)) {
			failed = append(failed, id)
		}
	}
	return failed, nil
}

// RecomputeCentroids rebuilds every domain's centroid as the mean of its
// member node embeddings and refreshes node counts.
func (s *Store) RecomputeCentroids(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT domain, embedding FROM nodes
		WHERE embedding IS NOT NULL AND domain != ''`)
	if err != nil {
		return fmt.Errorf("scan embeddings: %w", err)
	}
	defer rows.Close()

	sums := make(map[string][]float64)
	counts := make(map[string]int)
	for rows.Next() {
		var domain string
		var blob []byte
		if err := rows.Scan(&domain, &blob); err != nil {
			return fmt.Errorf("scan embedding row: %w", err)
		}
		vec := decodeVector(blob)
		if len(vec) == 0 {
			continue
		}

		wide := make([]float64, len(vec))
		for i, v := range vec {
			wide[i] = float64(v)
		}

		if sum, ok := sums[domain]; ok {
			if len(sum) != len(wide) {
				s.logger.Warn("dimension mismatch, skipping node", "domain", domain)
				continue
			}
			floats.Add(sum, wide)
		} else {
			sums[domain] = wide
		}
		counts[domain]++
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for domain, sum := range sums {
		floats.Scale(1/float64(counts[domain]), sum)

		centroid := make([]float32, len(sum))
		for i, v := range sum {
			centroid[i] = float32(v)
		}

		_, err := s.db.ExecContext(ctx, `
			UPDATE domains SET centroid = ?, node_count = ? WHERE id = ?`,
			encodeVector(centroid), counts[domain], domain)
		if err != nil {
			return fmt.Errorf("update centroid %s: %w", domain, err)
		}
	}
	return nil
}
