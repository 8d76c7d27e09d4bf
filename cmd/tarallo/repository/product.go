package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/weeeopen/tarallo/cmd/tarallo/models"
	"github.com/weeeopen/tarallo/common/db"
	"github.com/weeeopen/tarallo/common/feature"
)

// ProductRepository handles database operations for products
type ProductRepository struct {
	db *db.DB
}

// NewProductRepository creates a new product repository
func NewProductRepository(db *db.DB) *ProductRepository {
	return &ProductRepository{db: db}
}

// Create inserts a product with its features
func (r *ProductRepository) Create(ctx context.Context, p *models.Product) error {
	err := r.db.WithTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `INSERT INTO product (brand, model, variant) VALUES ($1, $2, $3)`,
			p.Brand, p.Model, p.Variant)
		if err != nil {
			if isUniqueViolation(err) {
				return &models.ValidationError{Reason: fmt.Sprintf("product %s %s %s already exists", p.Brand, p.Model, p.Variant)}
			}
			return fmt.Errorf("failed to create product: %w", err)
		}

		query := `
			INSERT INTO product_feature (brand, model, variant, feature, kind, value_text, value_int, value_double, value_enum)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`
		for _, name := range sortedNames(p.Features) {
			s := encodeValue(p.Features[name])
			if _, err := tx.Exec(ctx, query, p.Brand, p.Model, p.Variant, name, s.Kind, s.Text, s.Int, s.Double, s.Enum); err != nil {
				return fmt.Errorf("failed to set product feature %s: %w", name, err)
			}
		}
		return nil
	})
	return translate("create product", err)
}

// Get retrieves a product by its key
func (r *ProductRepository) Get(ctx context.Context, ref models.ProductRef) (*models.Product, error) {
	p, err := loadProduct(ctx, r.db, ref)
	if err != nil {
		return nil, translate("get product", err)
	}
	if p == nil {
		return nil, &models.NotFoundError{Kind: "product", ID: ref.Brand + "/" + ref.Model + "/" + ref.Variant}
	}
	return p, nil
}

// loadProduct returns nil without error when the product does not exist
func loadProduct(ctx context.Context, q db.Querier, ref models.ProductRef) (*models.Product, error) {
	var one int
	err := q.QueryRow(ctx, `SELECT 1 FROM product WHERE brand = $1 AND model = $2 AND variant = $3`,
		ref.Brand, ref.Model, ref.Variant).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get product: %w", err)
	}

	query := `
		SELECT feature, kind, value_text, value_int, value_double, value_enum
		FROM product_feature
		WHERE brand = $1 AND model = $2 AND variant = $3
	`
	rows, err := q.Query(ctx, query, ref.Brand, ref.Model, ref.Variant)
	if err != nil {
		return nil, fmt.Errorf("failed to get product features: %w", err)
	}
	defer rows.Close()

	p := &models.Product{ProductRef: ref, Features: make(feature.Set)}
	for rows.Next() {
		var (
			name string
			s    storedValue
		)
		if err := rows.Scan(append([]any{&name}, s.targets()...)...); err != nil {
			return nil, fmt.Errorf("failed to scan product feature: %w", err)
		}
		v, err := s.decode()
		if err != nil {
			return nil, fmt.Errorf("product feature %s: %w", name, err)
		}
		p.Features[name] = v
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to get product features: %w", err)
	}
	return p, nil
}

// productRefOf extracts the product key from an item's own features
func productRefOf(set feature.Set) (models.ProductRef, bool) {
	brand, okB := set["brand"]
	model, okM := set["model"]
	variant, okV := set["variant"]
	if !okB || !okM || !okV {
		return models.ProductRef{}, false
	}
	return models.ProductRef{Brand: brand.String(), Model: model.String(), Variant: variant.String()}, true
}
