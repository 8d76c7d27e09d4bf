package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/weeeopen/tarallo/cmd/tarallo/models"
	"github.com/weeeopen/tarallo/common/db"
	"github.com/weeeopen/tarallo/common/feature"
)

// StatsRepository runs read-only aggregate queries
type StatsRepository struct {
	db      *db.DB
	catalog *feature.Catalog
}

// NewStatsRepository creates a new stats repository
func NewStatsRepository(db *db.DB, catalog *feature.Catalog) *StatsRepository {
	return &StatsRepository{db: db, catalog: catalog}
}

// filter renders StatsFilter as conditions on column, each prefixed with AND
func (b *sqlBuilder) filter(column string, f models.StatsFilter) string {
	var parts []string
	if f.Location != nil {
		parts = append(parts, fmt.Sprintf("%s IN (SELECT descendant FROM tree WHERE ancestor = %s)", column, b.arg(*f.Location)))
	}
	if f.CreatedAfter != nil {
		parts = append(parts, fmt.Sprintf("%s IN (SELECT code FROM item WHERE created_at >= %s)", column, b.arg(*f.CreatedAfter)))
	}
	if !f.IncludeDeleted {
		parts = append(parts, fmt.Sprintf("%s NOT IN (SELECT code FROM item WHERE deleted_at IS NOT NULL)", column))
	}
	if len(parts) == 0 {
		return ""
	}
	return " AND " + strings.Join(parts, " AND ")
}

// featureMatch renders "<column> IN (items having feature = value)"
func (b *sqlBuilder) featureMatch(column string, f feature.Feature) string {
	return fmt.Sprintf("%s IN (SELECT code FROM item_feature WHERE feature = %s AND %s = %s)",
		column, b.arg(f.Name), valueColumn(f.Value.Kind()), b.arg(f.Value.Native()))
}

func requireLimit(limit int) error {
	if limit <= 0 {
		return &models.InvalidArgumentError{Argument: "limit", Reason: "must be positive"}
	}
	return nil
}

func collectCounts(rows pgx.Rows) ([]models.CountEntry, error) {
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.CountEntry, error) {
		var e models.CountEntry
		err := row.Scan(&e.Key, &e.Count)
		return e, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read counts: %w", err)
	}
	return out, nil
}

// LocationsByItems counts the items inside every location
func (r *StatsRepository) LocationsByItems(ctx context.Context) ([]models.CountEntry, error) {
	query := `
		SELECT f.code, COUNT(*) - 1 AS quantity
		FROM item_feature f
		JOIN item i ON i.code = f.code
		JOIN tree t ON t.ancestor = f.code
		WHERE f.feature = 'type' AND f.value_enum = 'location' AND i.deleted_at IS NULL
		GROUP BY f.code
		ORDER BY quantity DESC, f.code ASC
	`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, translate("locations by items", err)
	}
	out, err := collectCounts(rows)
	return out, translate("locations by items", err)
}

// DuplicateSerials lists serial numbers carried by more than one item, deleted ones included
func (r *StatsRepository) DuplicateSerials(ctx context.Context) ([]models.CountEntry, error) {
	query := `
		SELECT value_text, COUNT(*) AS quantity
		FROM item_feature
		WHERE feature = 'sn'
		GROUP BY value_text
		HAVING COUNT(*) > 1
		ORDER BY quantity DESC, value_text ASC
	`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, translate("duplicate serials", err)
	}
	out, err := collectCounts(rows)
	return out, translate("duplicate serials", err)
}

// ModifiedItems returns items of itemType ordered by the latest audit entry
// anywhere in their subtree, most recent first when recent is set.
// Items restricted as in use are left out.
func (r *StatsRepository) ModifiedItems(ctx context.Context, itemType string, f models.StatsFilter, recent bool, limit int) ([]models.ModifiedItem, error) {
	if err := requireLimit(limit); err != nil {
		return nil, err
	}

	b := newSQLBuilder()
	typeArg := b.arg(itemType)
	filters := b.filter("t.ancestor", f)
	direction := "ASC"
	if recent {
		direction = "DESC"
	}

	query := fmt.Sprintf(`
		SELECT t.ancestor, MAX(a.created_at) AS last_modified
		FROM audit a
		JOIN tree t ON t.descendant = a.code
		WHERE t.ancestor IN (SELECT code FROM item_feature WHERE feature = 'type' AND value_enum = %s)
		AND t.ancestor NOT IN (SELECT code FROM item_feature WHERE feature = 'restrictions' AND value_enum = 'in-use')
		%s
		GROUP BY t.ancestor
		ORDER BY last_modified %s, t.ancestor ASC
		LIMIT %s
	`, typeArg, filters, direction, b.arg(limit))

	rows, err := r.db.Query(ctx, query, b.args...)
	if err != nil {
		return nil, translate("modified items", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.ModifiedItem, error) {
		var m models.ModifiedItem
		err := row.Scan(&m.Code, &m.LastModified)
		return m, err
	})
	if err != nil {
		return nil, translate("modified items", fmt.Errorf("failed to read modified items: %w", err))
	}
	return out, nil
}

// CountByFeature counts items per value of name, optionally restricted to
// items that also match match
func (r *StatsRepository) CountByFeature(ctx context.Context, name string, match *feature.Feature, f models.StatsFilter) ([]models.CountEntry, error) {
	t, err := r.catalog.ResolveType(name)
	if err != nil {
		return nil, err
	}
	column := "f." + valueColumn(t)

	b := newSQLBuilder()
	conditions := fmt.Sprintf("f.feature = %s", b.arg(name))
	if match != nil {
		conditions += " AND " + b.featureMatch("f.code", *match)
	}
	conditions += b.filter("f.code", f)

	query := fmt.Sprintf(`
		SELECT %[1]s::text AS value, COUNT(*) AS quantity
		FROM item_feature f
		WHERE %[2]s
		GROUP BY %[1]s
		ORDER BY quantity DESC, value ASC
	`, column, conditions)

	rows, err := r.db.Query(ctx, query, b.args...)
	if err != nil {
		return nil, translate("count by feature", err)
	}
	out, err := collectCounts(rows)
	return out, translate("count by feature", err)
}

// ItemsByFeature lists codes of items having the given feature value
func (r *StatsRepository) ItemsByFeature(ctx context.Context, match feature.Feature, f models.StatsFilter, limit int) ([]string, error) {
	if err := requireLimit(limit); err != nil {
		return nil, err
	}

	b := newSQLBuilder()
	query := fmt.Sprintf(`
		SELECT item.code
		FROM item
		WHERE %s%s
		ORDER BY item.code
		LIMIT %s
	`, b.featureMatch("item.code", match), b.filter("item.code", f), b.arg(limit))

	return r.codes(ctx, "items by feature", query, b.args)
}

// ItemsWithoutFeature lists codes of items matching match that lack the feature missing
func (r *StatsRepository) ItemsWithoutFeature(ctx context.Context, match feature.Feature, missing string, f models.StatsFilter, limit int) ([]string, error) {
	if err := requireLimit(limit); err != nil {
		return nil, err
	}
	if _, err := r.catalog.ResolveType(missing); err != nil {
		return nil, err
	}

	b := newSQLBuilder()
	query := fmt.Sprintf(`
		SELECT item.code
		FROM item
		WHERE %s
		AND item.code NOT IN (SELECT code FROM item_feature WHERE feature = %s)%s
		ORDER BY item.code
		LIMIT %s
	`, b.featureMatch("item.code", match), b.arg(missing), b.filter("item.code", f), b.arg(limit))

	return r.codes(ctx, "items without feature", query, b.args)
}

func (r *StatsRepository) codes(ctx context.Context, op, query string, args []any) ([]string, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, translate(op, err)
	}
	out, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, translate(op, fmt.Errorf("failed to read codes: %w", err))
	}
	return out, nil
}

// RollupCountByFeature counts items grouped by every prefix of names.
// A nil value in a row marks the subtotal over that feature.
func (r *StatsRepository) RollupCountByFeature(ctx context.Context, match *feature.Feature, names []string, f models.StatsFilter) ([]models.RollupRow, error) {
	if len(names) == 0 {
		return nil, &models.InvalidArgumentError{Argument: "features", Reason: "at least one feature is required"}
	}

	b := newSQLBuilder()
	columns := make([]string, len(names))
	joins := make([]string, 0, len(names)-1)
	conditions := make([]string, 0, len(names)+1)
	for i, name := range names {
		t, err := r.catalog.ResolveType(name)
		if err != nil {
			return nil, err
		}
		alias := fmt.Sprintf("f%d", i)
		columns[i] = alias + "." + valueColumn(t)
		if i > 0 {
			joins = append(joins, fmt.Sprintf("JOIN item_feature %[1]s ON %[1]s.code = f0.code", alias))
		}
		conditions = append(conditions, fmt.Sprintf("%s.feature = %s", alias, b.arg(name)))
	}
	if match != nil {
		conditions = append(conditions, b.featureMatch("f0.code", *match))
	}

	query := fmt.Sprintf(`
		SELECT %[1]s, COUNT(*) AS quantity
		FROM item_feature f0
		%[2]s
		WHERE %[3]s%[4]s
		GROUP BY ROLLUP (%[1]s)
		ORDER BY quantity DESC, %[1]s
	`, strings.Join(columns, ", "), strings.Join(joins, "\n"), strings.Join(conditions, " AND "), b.filter("f0.code", f))

	rows, err := r.db.Query(ctx, query, b.args...)
	if err != nil {
		return nil, translate("rollup count by feature", err)
	}
	defer rows.Close()

	var out []models.RollupRow
	for rows.Next() {
		values := make([]any, len(names))
		dest := make([]any, len(names)+1)
		for i := range values {
			dest[i] = &values[i]
		}
		row := models.RollupRow{Values: make(map[string]any, len(names))}
		dest[len(names)] = &row.Count
		if err := rows.Scan(dest...); err != nil {
			return nil, translate("rollup count by feature", fmt.Errorf("failed to scan rollup: %w", err))
		}
		for i, name := range names {
			row.Values[name] = values[i]
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, translate("rollup count by feature", err)
	}
	return out, nil
}
