package models

import (
	"encoding/json"
	"time"

	"github.com/weeeopen/tarallo/common/feature"
)

// ProductRef points at the product supplying an item's default features
type ProductRef struct {
	Brand   string `json:"brand"`
	Model   string `json:"model"`
	Variant string `json:"variant"`
}

// Item is a node of the inventory forest as read back from the store.
// Maps to: item, item_feature, tree
type Item struct {
	Code            string
	Features        feature.Set
	DefaultFeatures feature.Set
	Product         *ProductRef
	// Location is the ancestor path, outermost first
	Location  []string
	Contents  []*Item
	Token     *string
	CreatedAt time.Time
	DeletedAt *time.Time
	LostAt    *time.Time
}

// Placed reports whether the item sits in the tree, i.e. is neither deleted nor lost
func (i *Item) Placed() bool {
	return i.DeletedAt == nil && i.LostAt == nil
}

type itemJSON struct {
	Code            string         `json:"code"`
	Features        map[string]any `json:"features,omitempty"`
	DefaultFeatures map[string]any `json:"features_default,omitempty"`
	Product         *ProductRef    `json:"default,omitempty"`
	Location        []string       `json:"location,omitempty"`
	Contents        []*Item        `json:"contents,omitempty"`
	DeletedAt       *time.Time     `json:"deleted_at,omitempty"`
	LostAt          *time.Time     `json:"lost_at,omitempty"`
}

// MarshalJSON omits location and contents for deleted or lost items
func (i *Item) MarshalJSON() ([]byte, error) {
	out := itemJSON{
		Code:      i.Code,
		Product:   i.Product,
		DeletedAt: i.DeletedAt,
		LostAt:    i.LostAt,
	}
	if len(i.Features) > 0 {
		out.Features = i.Features.Natives()
	}
	if len(i.DefaultFeatures) > 0 {
		out.DefaultFeatures = i.DefaultFeatures.Natives()
	}
	if i.Placed() {
		out.Location = i.Location
		out.Contents = i.Contents
	}
	return json.Marshal(out)
}

// NewItem is a validated item ready to insert, possibly with contents.
// Code is empty when it must be generated; AddItem fills it in.
type NewItem struct {
	Code     string
	Features feature.Set
	Token    *string
	Contents []*NewItem
}

// Type returns the value of the "type" feature, or "" when absent
func (n *NewItem) Type() string {
	if v, ok := n.Features["type"]; ok {
		return v.String()
	}
	return ""
}

// ItemInput is the JSON body accepted when creating items
type ItemInput struct {
	Code     string         `json:"code,omitempty"`
	Features map[string]any `json:"features,omitempty"`
	Token    *string        `json:"token,omitempty"`
	Contents []*ItemInput   `json:"contents,omitempty"`
}
