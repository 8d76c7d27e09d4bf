package models

import "time"

// StatsFilter narrows every stats query. Zero value means everything except deleted items.
type StatsFilter struct {
	Location       *string
	CreatedAfter   *time.Time
	IncludeDeleted bool
}

// CountEntry is one row of a ranked count, ordered by count desc then key asc
type CountEntry struct {
	Key   string `json:"key"`
	Count int64  `json:"count"`
}

// ModifiedItem is an item with the time of the latest audit entry in its subtree
type ModifiedItem struct {
	Code         string    `json:"code"`
	LastModified time.Time `json:"last_modified"`
}

// RollupRow is one grouping of a rollup. A nil value marks a subtotal over that feature.
type RollupRow struct {
	Values map[string]any `json:"values"`
	Count  int64          `json:"count"`
}

// FeatureMatch is a raw name = value filter of a stats request, validated by the service
type FeatureMatch struct {
	Name  string
	Value string
}
