package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/weeeopen/tarallo/cmd/tarallo/models"
	"github.com/weeeopen/tarallo/common/db"
	"github.com/weeeopen/tarallo/common/feature"
)

// sqlBuilder collects positional arguments while fragments are assembled.
// User input only ever enters a query through arg.
type sqlBuilder struct {
	args []any
}

func newSQLBuilder(args ...any) *sqlBuilder {
	return &sqlBuilder{args: args}
}

func (b *sqlBuilder) arg(v any) string {
	b.args = append(b.args, v)
	return "$" + strconv.Itoa(len(b.args))
}

// compare renders "<alias>.<column> <op> $n" for a feature comparison
func (b *sqlBuilder) compare(alias string, p models.FeaturePredicate) (string, error) {
	if p.Value == nil {
		return "", &models.InvalidArgumentError{Argument: p.Name, Reason: "missing value"}
	}
	kind := p.Value.Kind()
	if !p.Operator.Supports(kind) {
		return "", &feature.UnsupportedOperatorError{Name: p.Name, Type: kind, Operator: p.Operator}
	}
	return fmt.Sprintf("%s.%s %s %s", alias, valueColumn(kind), p.Operator.SQL(), b.arg(p.Value.Native())), nil
}

// predicate renders one condition on item.code
func (b *sqlBuilder) predicate(p models.Predicate) (string, error) {
	switch p := p.(type) {
	case models.FeaturePredicate:
		name := b.arg(p.Name)
		cmp, err := b.compare("f", p)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("item.code IN (SELECT f.code FROM item_feature f WHERE f.feature = %s AND %s)", name, cmp), nil

	case models.LocationPredicate:
		return fmt.Sprintf("item.code IN (SELECT descendant FROM tree WHERE ancestor = %s)", b.arg(p.Code)), nil

	case models.AncestorPredicate:
		name := b.arg(p.Name)
		cmp, err := b.compare("f", p.FeaturePredicate)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf(
			"item.code IN (SELECT t.descendant FROM tree t JOIN item_feature f ON f.code = t.ancestor WHERE f.feature = %s AND %s)",
			name, cmp), nil

	case models.CodePredicate:
		return fmt.Sprintf(`item.code LIKE %s ESCAPE '\'`, b.arg(GlobToLike(p.Pattern))), nil
	}
	return "", fmt.Errorf("unknown predicate %T", p)
}

// where renders the conjunction of every predicate. Deleted items never match.
func (b *sqlBuilder) where(q models.Query) (string, error) {
	parts := []string{"item.deleted_at IS NULL"}
	for _, p := range q.Predicates {
		frag, err := b.predicate(p)
		if err != nil {
			return "", err
		}
		parts = append(parts, frag)
	}
	return strings.Join(parts, " AND "), nil
}

// GlobToLike turns a code glob into a LIKE pattern using backslash escapes.
// A pattern without * or ? matches any code containing it.
func GlobToLike(pattern string) string {
	var b strings.Builder
	wild := strings.ContainsAny(pattern, "*?")
	if !wild {
		b.WriteByte('%')
	}
	for _, r := range pattern {
		switch r {
		case '*':
			b.WriteByte('%')
		case '?':
			b.WriteByte('_')
		case '%', '_', '\\':
			b.WriteByte('\\')
			b.WriteRune(r)
		default:
			b.WriteRune(r)
		}
	}
	if !wild {
		b.WriteByte('%')
	}
	return b.String()
}

// SearchRepository persists search result sets
type SearchRepository struct {
	db        *db.DB
	retention time.Duration
}

// NewSearchRepository creates a new search repository
func NewSearchRepository(db *db.DB, retention time.Duration) *SearchRepository {
	return &SearchRepository{db: db, retention: retention}
}

// Search runs q and stores its results. With previous set, the stored
// results of that search are narrowed to those still matching q instead.
func (r *SearchRepository) Search(ctx context.Context, owner string, q models.Query, previous *int64) (int64, error) {
	var id int64
	err := r.db.WithTx(ctx, func(tx pgx.Tx) error {
		expires := time.Now().Add(r.retention)

		if previous == nil {
			err := tx.QueryRow(ctx, `INSERT INTO search (owner, expires_at) VALUES ($1, $2) RETURNING id`,
				owner, expires).Scan(&id)
			if err != nil {
				return fmt.Errorf("failed to create search: %w", err)
			}

			b := newSQLBuilder(id)
			where, err := b.where(q)
			if err != nil {
				return err
			}
			query := `
				INSERT INTO search_result (search_id, code, position)
				SELECT $1, item.code, ROW_NUMBER() OVER (ORDER BY item.code)
				FROM item
				WHERE ` + where
			if _, err := tx.Exec(ctx, query, b.args...); err != nil {
				return fmt.Errorf("failed to store results: %w", err)
			}
			return nil
		}

		id = *previous
		if err := lockOwnedSearch(ctx, tx, id, owner); err != nil {
			return err
		}

		b := newSQLBuilder(id)
		where, err := b.where(q)
		if err != nil {
			return err
		}
		query := `
			DELETE FROM search_result
			WHERE search_id = $1 AND code NOT IN (SELECT item.code FROM item WHERE ` + where + `)`
		if _, err := tx.Exec(ctx, query, b.args...); err != nil {
			return fmt.Errorf("failed to refine results: %w", err)
		}

		if _, err := tx.Exec(ctx, `UPDATE search SET expires_at = $2 WHERE id = $1`, id, expires); err != nil {
			return fmt.Errorf("failed to extend search: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, translate("search", err)
	}
	return id, nil
}

func lockOwnedSearch(ctx context.Context, q db.Querier, id int64, owner string) error {
	var current string
	err := q.QueryRow(ctx, `SELECT owner FROM search WHERE id = $1 FOR UPDATE`, id).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) || (err == nil && current != owner) {
		return &models.NotFoundError{Kind: "search", ID: strconv.FormatInt(id, 10)}
	}
	if err != nil {
		return fmt.Errorf("failed to get search %d: %w", id, err)
	}
	return nil
}

func requireSearch(ctx context.Context, q db.Querier, id int64) error {
	var exists bool
	if err := q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM search WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("failed to get search %d: %w", id, err)
	}
	if !exists {
		return &models.NotFoundError{Kind: "search", ID: strconv.FormatInt(id, 10)}
	}
	return nil
}

// GetResults returns one page of hydrated results in stored order
func (r *SearchRepository) GetResults(ctx context.Context, id int64, page, perPage, depth int) ([]*models.Item, error) {
	switch {
	case id <= 0:
		return nil, &models.InvalidArgumentError{Argument: "id", Reason: "must be positive"}
	case page <= 0:
		return nil, &models.InvalidArgumentError{Argument: "page", Reason: "must be positive"}
	case perPage <= 0:
		return nil, &models.InvalidArgumentError{Argument: "per_page", Reason: "must be positive"}
	case depth < 0:
		return nil, &models.InvalidArgumentError{Argument: "depth", Reason: "must not be negative"}
	}

	var items []*models.Item
	err := r.db.WithTx(ctx, func(tx pgx.Tx) error {
		if err := requireSearch(ctx, tx, id); err != nil {
			return err
		}

		query := `
			SELECT code
			FROM search_result
			WHERE search_id = $1
			ORDER BY position
			LIMIT $2 OFFSET $3
		`
		rows, err := tx.Query(ctx, query, id, perPage, (page-1)*perPage)
		if err != nil {
			return fmt.Errorf("failed to read results: %w", err)
		}
		codes, err := pgx.CollectRows(rows, pgx.RowTo[string])
		if err != nil {
			return fmt.Errorf("failed to read results: %w", err)
		}

		items, err = loadItems(ctx, tx, codes, depth)
		return err
	})
	if err != nil {
		return nil, translate("get results", err)
	}
	return items, nil
}

// GetResultsCount returns how many results a search holds
func (r *SearchRepository) GetResultsCount(ctx context.Context, id int64) (int64, error) {
	if id <= 0 {
		return 0, &models.InvalidArgumentError{Argument: "id", Reason: "must be positive"}
	}

	var count int64
	err := r.db.WithTx(ctx, func(tx pgx.Tx) error {
		if err := requireSearch(ctx, tx, id); err != nil {
			return err
		}
		return tx.QueryRow(ctx, `SELECT COUNT(*) FROM search_result WHERE search_id = $1`, id).Scan(&count)
	})
	if err != nil {
		return 0, translate("count results", err)
	}
	return count, nil
}

// PurgeExpired deletes searches past their expiry along with their results
func (r *SearchRepository) PurgeExpired(ctx context.Context) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM search WHERE expires_at < now()`)
	if err != nil {
		return 0, translate("purge searches", err)
	}
	return tag.RowsAffected(), nil
}
