package models

import (
	"encoding/json"

	"github.com/weeeopen/tarallo/common/feature"
)

// Product is a template of default features shared by many items.
// Maps to: product, product_feature
type Product struct {
	ProductRef
	Features feature.Set
}

// MarshalJSON flattens the typed features
func (p *Product) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		ProductRef
		Features map[string]any `json:"features,omitempty"`
	}{p.ProductRef, p.Features.Natives()})
}

// ProductInput is the JSON body accepted when creating products
type ProductInput struct {
	Brand    string         `json:"brand"`
	Model    string         `json:"model"`
	Variant  string         `json:"variant"`
	Features map[string]any `json:"features,omitempty"`
}
