package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/weeeopen/tarallo/common/db"
	"github.com/weeeopen/tarallo/common/tree"
)

// ancestorRows returns the closure rows whose descendant is code, self row included
func ancestorRows(ctx context.Context, q db.Querier, code string) ([]tree.Edge, error) {
	return queryEdges(ctx, q, `
		SELECT ancestor, descendant, depth
		FROM tree
		WHERE descendant = $1
		ORDER BY depth
	`, code)
}

// subtreeRows returns the closure rows whose ancestor is code, self row included
func subtreeRows(ctx context.Context, q db.Querier, code string) ([]tree.Edge, error) {
	return queryEdges(ctx, q, `
		SELECT ancestor, descendant, depth
		FROM tree
		WHERE ancestor = $1
		ORDER BY depth, descendant
	`, code)
}

func queryEdges(ctx context.Context, q db.Querier, query string, args ...any) ([]tree.Edge, error) {
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to read closure rows: %w", err)
	}
	defer rows.Close()

	var edges []tree.Edge
	for rows.Next() {
		var e tree.Edge
		if err := rows.Scan(&e.Ancestor, &e.Descendant, &e.Depth); err != nil {
			return nil, fmt.Errorf("failed to scan closure row: %w", err)
		}
		edges = append(edges, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read closure rows: %w", err)
	}
	return edges, nil
}

func splitEdges(edges []tree.Edge) (ancestors, descendants []string, depths []int32) {
	ancestors = make([]string, len(edges))
	descendants = make([]string, len(edges))
	depths = make([]int32, len(edges))
	for i, e := range edges {
		ancestors[i] = e.Ancestor
		descendants[i] = e.Descendant
		depths[i] = int32(e.Depth)
	}
	return ancestors, descendants, depths
}

func insertEdges(ctx context.Context, q db.Querier, edges []tree.Edge) error {
	if len(edges) == 0 {
		return nil
	}
	a, d, depth := splitEdges(edges)
	_, err := q.Exec(ctx, `
		INSERT INTO tree (ancestor, descendant, depth)
		SELECT * FROM unnest($1::varchar[], $2::varchar[], $3::int[])
	`, a, d, depth)
	if err != nil {
		return fmt.Errorf("failed to insert closure rows: %w", err)
	}
	return nil
}

func deleteEdges(ctx context.Context, q db.Querier, edges []tree.Edge) error {
	if len(edges) == 0 {
		return nil
	}
	a, d, _ := splitEdges(edges)
	_, err := q.Exec(ctx, `
		DELETE FROM tree t
		USING unnest($1::varchar[], $2::varchar[]) AS drop_row(ancestor, descendant)
		WHERE t.ancestor = drop_row.ancestor AND t.descendant = drop_row.descendant
	`, a, d)
	if err != nil {
		return fmt.Errorf("failed to delete closure rows: %w", err)
	}
	return nil
}

// detach drops every non-self row of a leaf
func detach(ctx context.Context, q db.Querier, code string) error {
	if _, err := q.Exec(ctx, `DELETE FROM tree WHERE descendant = $1 AND depth > 0`, code); err != nil {
		return fmt.Errorf("failed to detach %s: %w", code, err)
	}
	if _, err := q.Exec(ctx, `UPDATE item SET parent = NULL WHERE code = $1`, code); err != nil {
		return fmt.Errorf("failed to clear parent of %s: %w", code, err)
	}
	return nil
}

func hasContents(ctx context.Context, q db.Querier, code string) (bool, error) {
	var exists bool
	err := q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM tree WHERE ancestor = $1 AND depth > 0)`, code).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check contents of %s: %w", code, err)
	}
	return exists, nil
}

// TreeRepository checks the closure table against parent pointers
type TreeRepository struct {
	db *db.DB
}

// NewTreeRepository creates a new tree repository
func NewTreeRepository(db *db.DB) *TreeRepository {
	return &TreeRepository{db: db}
}

// Verify reads every parent pointer and closure row in one snapshot and
// reports the rows that disagree
func (r *TreeRepository) Verify(ctx context.Context) ([]tree.Problem, error) {
	var problems []tree.Problem
	err := r.db.WithTx(ctx, func(tx pgx.Tx) error {
		parents := make(map[string]string)
		rows, err := tx.Query(ctx, `SELECT code, COALESCE(parent, '') FROM item`)
		if err != nil {
			return fmt.Errorf("failed to read parents: %w", err)
		}
		for rows.Next() {
			var code, parent string
			if err := rows.Scan(&code, &parent); err != nil {
				rows.Close()
				return fmt.Errorf("failed to scan parent: %w", err)
			}
			parents[code] = parent
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return fmt.Errorf("failed to read parents: %w", err)
		}

		edges, err := queryEdges(ctx, tx, `SELECT ancestor, descendant, depth FROM tree`)
		if err != nil {
			return err
		}

		problems, err = tree.Verify(parents, edges)
		return err
	})
	if err != nil {
		return nil, translate("verify closure", err)
	}
	return problems, nil
}
