package models

import (
	"time"

	"github.com/weeeopen/tarallo/common/feature"
)

// Predicate is one independently satisfiable search condition.
// Implemented by FeaturePredicate, LocationPredicate, AncestorPredicate and CodePredicate.
type Predicate interface {
	predicate()
}

// FeaturePredicate matches items whose own feature compares true against Value
type FeaturePredicate struct {
	Name     string
	Operator feature.Operator
	Value    feature.Value
}

// LocationPredicate matches Code and everything below it
type LocationPredicate struct {
	Code string
}

// AncestorPredicate matches items having an ancestor, or themselves, satisfying the feature predicate
type AncestorPredicate struct {
	FeaturePredicate
}

// CodePredicate matches codes against a glob where * and ? are wildcards.
// Without wildcards it matches any code containing Pattern.
type CodePredicate struct {
	Pattern string
}

func (FeaturePredicate) predicate()  {}
func (LocationPredicate) predicate() {}
func (AncestorPredicate) predicate() {}
func (CodePredicate) predicate()     {}

// Sort orders results by a feature value. Accepted and recorded, not applied:
// results are always in code order.
type Sort struct {
	Feature    string
	Descending bool
}

// Query is a validated set of predicates, all of which must hold
type Query struct {
	Predicates []Predicate
	Sort       *Sort
}

// Search is a persisted result set.
// Maps to: search table
type Search struct {
	ID        int64     `json:"id"`
	Owner     string    `json:"owner"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
	Count     int64     `json:"count"`
}

// PredicateInput is a feature comparison in a search request
type PredicateInput struct {
	Name     string `json:"name"`
	Operator string `json:"op"`
	Value    any    `json:"value"`
}

// SortInput is the sort clause of a search request
type SortInput struct {
	Feature    string `json:"feature"`
	Descending bool   `json:"desc,omitempty"`
}

// SearchInput is the JSON body of a search request
type SearchInput struct {
	Features  []PredicateInput `json:"features,omitempty"`
	Locations []string         `json:"locations,omitempty"`
	Ancestors []PredicateInput `json:"ancestors,omitempty"`
	Code      *string          `json:"code,omitempty"`
	Sort      *SortInput       `json:"sort,omitempty"`
	Previous  *int64           `json:"previous,omitempty"`
}
