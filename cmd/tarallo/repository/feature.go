package repository

import (
	"context"
	"fmt"

	"github.com/weeeopen/tarallo/common/db"
	"github.com/weeeopen/tarallo/common/feature"
)

// storedValue mirrors the kind-discriminated value columns of item_feature and product_feature
type storedValue struct {
	Kind   string
	Text   *string
	Int    *int64
	Double *float64
	Enum   *string
}

func encodeValue(v feature.Value) storedValue {
	s := storedValue{Kind: string(v.Kind())}
	switch tv := v.(type) {
	case feature.StringValue:
		text := string(tv)
		s.Text = &text
	case feature.IntValue:
		n := int64(tv)
		s.Int = &n
	case feature.DoubleValue:
		f := float64(tv)
		s.Double = &f
	case feature.EnumValue:
		e := string(tv)
		s.Enum = &e
	}
	return s
}

func (s *storedValue) targets() []any {
	return []any{&s.Kind, &s.Text, &s.Int, &s.Double, &s.Enum}
}

func (s storedValue) decode() (feature.Value, error) {
	switch feature.Type(s.Kind) {
	case feature.TypeString:
		if s.Text != nil {
			return feature.StringValue(*s.Text), nil
		}
	case feature.TypeInteger:
		if s.Int != nil {
			return feature.IntValue(*s.Int), nil
		}
	case feature.TypeDouble:
		if s.Double != nil {
			return feature.DoubleValue(*s.Double), nil
		}
	case feature.TypeEnum:
		if s.Enum != nil {
			return feature.EnumValue(*s.Enum), nil
		}
	}
	return nil, fmt.Errorf("corrupt feature value of kind %q", s.Kind)
}

// valueColumn is the column a value of type t lives in
func valueColumn(t feature.Type) string {
	switch t {
	case feature.TypeInteger:
		return "value_int"
	case feature.TypeDouble:
		return "value_double"
	case feature.TypeEnum:
		return "value_enum"
	default:
		return "value_text"
	}
}

func upsertItemFeatures(ctx context.Context, q db.Querier, code string, set feature.Set) error {
	query := `
		INSERT INTO item_feature (code, feature, kind, value_text, value_int, value_double, value_enum)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (code, feature) DO UPDATE
		SET kind = EXCLUDED.kind, value_text = EXCLUDED.value_text, value_int = EXCLUDED.value_int,
		    value_double = EXCLUDED.value_double, value_enum = EXCLUDED.value_enum
	`
	for _, name := range sortedNames(set) {
		s := encodeValue(set[name])
		if _, err := q.Exec(ctx, query, code, name, s.Kind, s.Text, s.Int, s.Double, s.Enum); err != nil {
			return fmt.Errorf("failed to set feature %s of %s: %w", name, code, err)
		}
	}
	return nil
}

func deleteItemFeatures(ctx context.Context, q db.Querier, code string, names []string) (int64, error) {
	tag, err := q.Exec(ctx, `DELETE FROM item_feature WHERE code = $1 AND feature = ANY($2)`, code, names)
	if err != nil {
		return 0, fmt.Errorf("failed to delete features of %s: %w", code, err)
	}
	return tag.RowsAffected(), nil
}

// loadItemFeatures returns the features of every code, keyed by code
func loadItemFeatures(ctx context.Context, q db.Querier, codes []string) (map[string]feature.Set, error) {
	query := `
		SELECT code, feature, kind, value_text, value_int, value_double, value_enum
		FROM item_feature
		WHERE code = ANY($1)
	`
	rows, err := q.Query(ctx, query, codes)
	if err != nil {
		return nil, fmt.Errorf("failed to load features: %w", err)
	}
	defer rows.Close()

	out := make(map[string]feature.Set, len(codes))
	for rows.Next() {
		var (
			code, name string
			s          storedValue
		)
		if err := rows.Scan(append([]any{&code, &name}, s.targets()...)...); err != nil {
			return nil, fmt.Errorf("failed to scan feature: %w", err)
		}
		v, err := s.decode()
		if err != nil {
			return nil, fmt.Errorf("feature %s of %s: %w", name, code, err)
		}
		if out[code] == nil {
			out[code] = make(feature.Set)
		}
		out[code][name] = v
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to load features: %w", err)
	}
	return out, nil
}
