package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	jsonpatch "github.com/evanphx/json-patch/v5"
	"github.com/weeeopen/tarallo/cmd/tarallo/models"
	"github.com/weeeopen/tarallo/common/cache"
	"github.com/weeeopen/tarallo/common/feature"
	"github.com/weeeopen/tarallo/common/logger"
	"github.com/weeeopen/tarallo/common/telemetry"
	"github.com/weeeopen/tarallo/common/tree"
)

// ItemStore is the item tree store
type ItemStore interface {
	AddItem(ctx context.Context, actor string, item *models.NewItem, parent *string) error
	MoveItem(ctx context.Context, actor, code, newParent string) error
	DeleteItem(ctx context.Context, actor, code string) error
	LoseItem(ctx context.Context, actor, code string) error
	Undelete(ctx context.Context, actor, code string) error
	GetItem(ctx context.Context, code string, depth int, token *string) (*models.Item, error)
	Features(ctx context.Context, code string) (feature.Set, error)
	UpdateFeatures(ctx context.Context, actor, code string, set feature.Set, remove []string) (bool, error)
}

// HistoryStore reads the audit log
type HistoryStore interface {
	History(ctx context.Context, code string, limit int) ([]models.AuditEntry, error)
}

// ClosureVerifier checks closure rows against parent pointers
type ClosureVerifier interface {
	Verify(ctx context.Context) ([]tree.Problem, error)
}

// ItemService validates input and drives the item tree store
type ItemService struct {
	store    ItemStore
	history  HistoryStore
	verifier ClosureVerifier
	catalog  *feature.Catalog
	cache    cache.Cache
	log      *logger.Logger
	tel      *telemetry.Telemetry
}

// NewItemService creates a new item service. cache and tel may be nil.
func NewItemService(store ItemStore, history HistoryStore, verifier ClosureVerifier, catalog *feature.Catalog, c cache.Cache, log *logger.Logger, tel *telemetry.Telemetry) *ItemService {
	return &ItemService{
		store:    store,
		history:  history,
		verifier: verifier,
		catalog:  catalog,
		cache:    c,
		log:      log,
		tel:      tel,
	}
}

// AddItem validates the whole input tree, then inserts it under parent.
// It returns the code of the root item, generated when the input had none.
func (s *ItemService) AddItem(ctx context.Context, actor string, in *models.ItemInput, parent *string) (code string, err error) {
	defer func(start time.Time) { observe(ctx, s.log, s.tel, "add_item", start, err) }(time.Now())

	item, err := s.toNewItem(in)
	if err != nil {
		return "", err
	}

	if err := s.store.AddItem(ctx, actor, item, parent); err != nil {
		return "", err
	}
	invalidateStats(ctx, s.cache, s.log)

	s.log.WithContext(ctx).WithUser(actor).WithItem(item.Code).Info("added item", "parent", parent)
	return item.Code, nil
}

func (s *ItemService) toNewItem(in *models.ItemInput) (*models.NewItem, error) {
	if in == nil {
		return nil, &models.InvalidArgumentError{Argument: "item", Reason: "missing"}
	}

	features, err := s.catalog.ValidateSet(in.Features)
	if err != nil {
		return nil, err
	}

	item := &models.NewItem{
		Code:     in.Code,
		Features: features,
		Token:    in.Token,
		Contents: make([]*models.NewItem, 0, len(in.Contents)),
	}
	for _, child := range in.Contents {
		c, err := s.toNewItem(child)
		if err != nil {
			return nil, err
		}
		item.Contents = append(item.Contents, c)
	}
	return item, nil
}

// GetItem loads an item with depth levels of contents
func (s *ItemService) GetItem(ctx context.Context, code string, depth int, token *string) (item *models.Item, err error) {
	defer func(start time.Time) { observe(ctx, s.log, s.tel, "get_item", start, err) }(time.Now())
	return s.store.GetItem(ctx, code, depth, token)
}

// MoveItem moves an item with everything inside it
func (s *ItemService) MoveItem(ctx context.Context, actor, code, newParent string) (err error) {
	defer func(start time.Time) { observe(ctx, s.log, s.tel, "move_item", start, err) }(time.Now())

	if err := s.store.MoveItem(ctx, actor, code, newParent); err != nil {
		return err
	}
	invalidateStats(ctx, s.cache, s.log)

	s.log.WithContext(ctx).WithUser(actor).WithItem(code).Info("moved item", "to", newParent)
	return nil
}

// DeleteItem soft-deletes a leaf item
func (s *ItemService) DeleteItem(ctx context.Context, actor, code string) (err error) {
	defer func(start time.Time) { observe(ctx, s.log, s.tel, "delete_item", start, err) }(time.Now())

	if err := s.store.DeleteItem(ctx, actor, code); err != nil {
		return err
	}
	invalidateStats(ctx, s.cache, s.log)

	s.log.WithContext(ctx).WithUser(actor).WithItem(code).Info("deleted item")
	return nil
}

// LoseItem marks a leaf item as lost
func (s *ItemService) LoseItem(ctx context.Context, actor, code string) (err error) {
	defer func(start time.Time) { observe(ctx, s.log, s.tel, "lose_item", start, err) }(time.Now())

	if err := s.store.LoseItem(ctx, actor, code); err != nil {
		return err
	}
	invalidateStats(ctx, s.cache, s.log)

	s.log.WithContext(ctx).WithUser(actor).WithItem(code).Info("lost item")
	return nil
}

// Undelete restores a deleted item, detached
func (s *ItemService) Undelete(ctx context.Context, actor, code string) (err error) {
	defer func(start time.Time) { observe(ctx, s.log, s.tel, "undelete_item", start, err) }(time.Now())

	if err := s.store.Undelete(ctx, actor, code); err != nil {
		return err
	}
	invalidateStats(ctx, s.cache, s.log)

	s.log.WithContext(ctx).WithUser(actor).WithItem(code).Info("restored item")
	return nil
}

// PatchFeatures applies a JSON merge patch to the item's own features.
// A null member removes the feature, any other member sets it.
// It returns the features after the patch.
func (s *ItemService) PatchFeatures(ctx context.Context, actor, code string, patch []byte) (result feature.Set, err error) {
	defer func(start time.Time) { observe(ctx, s.log, s.tel, "patch_features", start, err) }(time.Now())

	current, err := s.store.Features(ctx, code)
	if err != nil {
		return nil, err
	}

	set, remove, result, err := s.diffPatch(current, patch)
	if err != nil {
		return nil, err
	}

	changed, err := s.store.UpdateFeatures(ctx, actor, code, set, remove)
	if err != nil {
		return nil, err
	}
	if changed {
		invalidateStats(ctx, s.cache, s.log)
	}

	s.log.WithContext(ctx).WithUser(actor).WithItem(code).Info("patched features",
		"set", len(set),
		"removed", len(remove),
	)
	return result, nil
}

// diffPatch merges patch into current and splits the outcome into
// features to write and features to drop
func (s *ItemService) diffPatch(current feature.Set, patch []byte) (set feature.Set, remove []string, result feature.Set, err error) {
	doc, err := json.Marshal(current.Natives())
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to encode features: %w", err)
	}

	merged, err := jsonpatch.MergePatch(doc, patch)
	if err != nil {
		return nil, nil, nil, &models.InvalidArgumentError{Argument: "patch", Reason: err.Error()}
	}

	var raw map[string]any
	dec := json.NewDecoder(bytes.NewReader(merged))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil || raw == nil {
		return nil, nil, nil, &models.InvalidArgumentError{Argument: "patch", Reason: "must be a JSON object"}
	}

	result, err = s.catalog.ValidateSet(raw)
	if err != nil {
		return nil, nil, nil, err
	}

	set = make(feature.Set)
	for name, v := range result {
		if old, ok := current[name]; !ok || old != v {
			set[name] = v
		}
	}
	for name := range current {
		if _, kept := result[name]; !kept {
			remove = append(remove, name)
		}
	}
	sort.Strings(remove)
	return set, remove, result, nil
}

// History returns the audit entries of an item, newest first
func (s *ItemService) History(ctx context.Context, code string, limit int) (entries []models.AuditEntry, err error) {
	defer func(start time.Time) { observe(ctx, s.log, s.tel, "history", start, err) }(time.Now())

	if limit <= 0 {
		return nil, &models.InvalidArgumentError{Argument: "limit", Reason: "must be positive"}
	}
	return s.history.History(ctx, code, limit)
}

// VerifyClosure reports closure rows that disagree with parent pointers
func (s *ItemService) VerifyClosure(ctx context.Context) (problems []tree.Problem, err error) {
	defer func(start time.Time) { observe(ctx, s.log, s.tel, "verify_closure", start, err) }(time.Now())

	problems, err = s.verifier.Verify(ctx)
	if err != nil {
		return nil, err
	}
	if len(problems) > 0 {
		s.log.WithContext(ctx).Warn("closure table drift", "problems", len(problems))
	}
	return problems, nil
}
