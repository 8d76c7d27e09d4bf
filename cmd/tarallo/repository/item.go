package repository

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/weeeopen/tarallo/cmd/tarallo/models"
	"github.com/weeeopen/tarallo/common/db"
	"github.com/weeeopen/tarallo/common/feature"
	"github.com/weeeopen/tarallo/common/tree"
)

var codePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,189}$`)

// ItemRepository is the item tree store. Every mutation runs in one
// transaction that updates item rows, closure rows and the audit log together.
type ItemRepository struct {
	db      *db.DB
	catalog *feature.Catalog
}

// NewItemRepository creates a new item repository
func NewItemRepository(db *db.DB, catalog *feature.Catalog) *ItemRepository {
	return &ItemRepository{db: db, catalog: catalog}
}

type itemRow struct {
	code      string
	parent    *string
	token     *string
	createdAt time.Time
	deletedAt *time.Time
	lostAt    *time.Time
}

func (row *itemRow) toModel() *models.Item {
	return &models.Item{
		Code:      row.code,
		Token:     row.token,
		CreatedAt: row.createdAt,
		DeletedAt: row.deletedAt,
		LostAt:    row.lostAt,
	}
}

// getItemRow returns nil without error when the item does not exist
func getItemRow(ctx context.Context, q db.Querier, code string, forUpdate bool) (*itemRow, error) {
	query := `
		SELECT code, parent, token, created_at, deleted_at, lost_at
		FROM item
		WHERE code = $1
	`
	if forUpdate {
		query += " FOR UPDATE"
	}

	row := &itemRow{}
	err := q.QueryRow(ctx, query, code).Scan(&row.code, &row.parent, &row.token, &row.createdAt, &row.deletedAt, &row.lostAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get item %s: %w", code, err)
	}
	return row, nil
}

// activeItem locks an item that must exist and not be deleted
func activeItem(ctx context.Context, q db.Querier, code string) (*itemRow, error) {
	row, err := getItemRow(ctx, q, code, true)
	if err != nil {
		return nil, err
	}
	if row == nil || row.deletedAt != nil {
		return nil, models.ItemNotFound(code)
	}
	return row, nil
}

// AddItem inserts item and its contents under parent, or as a root when parent is nil.
// Items without a code get the next free code for their type prefix; the
// generated codes are written back into item once the transaction commits.
func (r *ItemRepository) AddItem(ctx context.Context, actor string, item *models.NewItem, parent *string) error {
	reserved := make(map[string]struct{})
	if err := r.checkNewTree(item, reserved); err != nil {
		return err
	}

	assigned := make(map[*models.NewItem]string)
	err := r.db.WithTx(ctx, func(tx pgx.Tx) error {
		clear(assigned)

		var parentRows []tree.Edge
		if parent != nil {
			row, err := activeItem(ctx, tx, *parent)
			if err != nil {
				return err
			}
			if row.lostAt != nil {
				return &models.ValidationError{Code: *parent, Reason: "cannot place items inside a lost item"}
			}
			if parentRows, err = ancestorRows(ctx, tx, *parent); err != nil {
				return err
			}
		}

		return r.insertTree(ctx, tx, actor, item, parentRows, reserved, assigned)
	})
	if err != nil {
		return translate("add item", err)
	}

	for n, code := range assigned {
		n.Code = code
	}
	return nil
}

// checkNewTree rejects bad input before anything is written
func (r *ItemRepository) checkNewTree(n *models.NewItem, reserved map[string]struct{}) error {
	if n.Code != "" {
		if !codePattern.MatchString(n.Code) {
			return &models.ValidationError{Code: n.Code, Reason: "invalid item code"}
		}
		if _, dup := reserved[n.Code]; dup {
			return &models.DuplicateCodeError{Code: n.Code}
		}
		reserved[n.Code] = struct{}{}
	} else {
		itemType := n.Type()
		if itemType == "" {
			return &models.ValidationError{Reason: "an item without code needs a type to generate one"}
		}
		if _, ok := r.catalog.CodePrefix(itemType); !ok {
			return &models.ValidationError{Reason: fmt.Sprintf("cannot generate codes for items of type %s", itemType)}
		}
	}

	for _, child := range n.Contents {
		if err := r.checkNewTree(child, reserved); err != nil {
			return err
		}
	}
	return nil
}

func (r *ItemRepository) insertTree(ctx context.Context, tx pgx.Tx, actor string, n *models.NewItem, parentRows []tree.Edge, reserved map[string]struct{}, assigned map[*models.NewItem]string) error {
	code := n.Code
	if code == "" {
		prefix, _ := r.catalog.CodePrefix(n.Type())
		generated, err := nextCode(ctx, tx, prefix, reserved)
		if err != nil {
			return err
		}
		code = generated
		assigned[n] = code
	} else {
		existing, err := getItemRow(ctx, tx, code, false)
		if err != nil {
			return err
		}
		if existing != nil {
			return &models.DuplicateCodeError{Code: code}
		}
	}

	var parentCode *string
	for _, p := range parentRows {
		if p.Depth == 0 {
			c := p.Ancestor
			parentCode = &c
		}
	}

	_, err := tx.Exec(ctx, `INSERT INTO item (code, parent, token) VALUES ($1, $2, $3)`, code, parentCode, n.Token)
	if err != nil {
		switch {
		case isUniqueViolation(err):
			return &models.DuplicateCodeError{Code: code}
		case isForeignKeyViolation(err) && parentCode != nil:
			return models.ItemNotFound(*parentCode)
		}
		return fmt.Errorf("failed to insert item %s: %w", code, err)
	}

	if err := upsertItemFeatures(ctx, tx, code, n.Features); err != nil {
		return err
	}

	rows := tree.AttachRows(code, parentRows)
	if err := insertEdges(ctx, tx, rows); err != nil {
		return err
	}

	if err := insertAudit(ctx, tx, code, models.ChangeCreate, nil, parentCode, actor); err != nil {
		return err
	}

	for _, child := range n.Contents {
		if err := r.insertTree(ctx, tx, actor, child, rows, reserved, assigned); err != nil {
			return err
		}
	}
	return nil
}

// nextCode advances the prefix counter past every code already taken
func nextCode(ctx context.Context, q db.Querier, prefix string, reserved map[string]struct{}) (string, error) {
	_, err := q.Exec(ctx, `INSERT INTO code_prefix (prefix, counter) VALUES ($1, 0) ON CONFLICT (prefix) DO NOTHING`, prefix)
	if err != nil {
		return "", fmt.Errorf("failed to init prefix %s: %w", prefix, err)
	}

	var counter int64
	err = q.QueryRow(ctx, `SELECT counter FROM code_prefix WHERE prefix = $1 FOR UPDATE`, prefix).Scan(&counter)
	if err != nil {
		return "", fmt.Errorf("failed to read prefix %s: %w", prefix, err)
	}

	for {
		counter++
		code := prefix + strconv.FormatInt(counter, 10)
		if _, taken := reserved[code]; taken {
			continue
		}

		var exists bool
		err := q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM item WHERE code = $1)`, code).Scan(&exists)
		if err != nil {
			return "", fmt.Errorf("failed to check code %s: %w", code, err)
		}
		if exists {
			continue
		}

		if _, err := q.Exec(ctx, `UPDATE code_prefix SET counter = $2 WHERE prefix = $1`, prefix, counter); err != nil {
			return "", fmt.Errorf("failed to advance prefix %s: %w", prefix, err)
		}
		return code, nil
	}
}

// SetCodeCounter moves a prefix counter, used when importing existing inventories
func (r *ItemRepository) SetCodeCounter(ctx context.Context, prefix string, counter int64) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO code_prefix (prefix, counter) VALUES ($1, $2)
		ON CONFLICT (prefix) DO UPDATE SET counter = EXCLUDED.counter
	`, prefix, counter)
	if err != nil {
		return translate("set code counter", fmt.Errorf("failed to set counter of %s: %w", prefix, err))
	}
	return nil
}

// MoveItem places the subtree rooted at code under newParent.
// Moving a lost item finds it again.
func (r *ItemRepository) MoveItem(ctx context.Context, actor, code, newParent string) error {
	err := r.db.WithTx(ctx, func(tx pgx.Tx) error {
		item, err := activeItem(ctx, tx, code)
		if err != nil {
			return err
		}
		target, err := activeItem(ctx, tx, newParent)
		if err != nil {
			return err
		}
		if target.lostAt != nil {
			return &models.ValidationError{Code: newParent, Reason: "cannot place items inside a lost item"}
		}

		subtree, err := subtreeRows(ctx, tx, code)
		if err != nil {
			return err
		}
		oldAncestors, err := ancestorRows(ctx, tx, code)
		if err != nil {
			return err
		}
		newParentRows, err := ancestorRows(ctx, tx, newParent)
		if err != nil {
			return err
		}

		remove, add, err := tree.MoveDelta(code, subtree, oldAncestors, newParentRows)
		if errors.Is(err, tree.ErrCycle) {
			return &models.ValidationError{Code: code, Reason: fmt.Sprintf("cannot move into %s, which is inside it", newParent)}
		}
		if err != nil {
			return err
		}

		if err := deleteEdges(ctx, tx, remove); err != nil {
			return err
		}
		if err := insertEdges(ctx, tx, add); err != nil {
			return err
		}

		if _, err := tx.Exec(ctx, `UPDATE item SET parent = $2, lost_at = NULL WHERE code = $1`, code, newParent); err != nil {
			return fmt.Errorf("failed to update parent of %s: %w", code, err)
		}

		return insertAudit(ctx, tx, code, models.ChangeMove, item.parent, &newParent, actor)
	})
	return translate("move item", err)
}

// DeleteItem marks a leaf as deleted and detaches it. History is kept.
func (r *ItemRepository) DeleteItem(ctx context.Context, actor, code string) error {
	err := r.db.WithTx(ctx, func(tx pgx.Tx) error {
		item, err := activeItem(ctx, tx, code)
		if err != nil {
			return err
		}
		if item.lostAt != nil {
			return &models.ValidationError{Code: code, Reason: "item is lost, find it before deleting it"}
		}
		if err := requireLeaf(ctx, tx, code); err != nil {
			return err
		}

		if err := detach(ctx, tx, code); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `UPDATE item SET deleted_at = now() WHERE code = $1`, code); err != nil {
			return fmt.Errorf("failed to delete %s: %w", code, err)
		}

		return insertAudit(ctx, tx, code, models.ChangeDelete, item.parent, nil, actor)
	})
	return translate("delete item", err)
}

// LoseItem marks a leaf as lost and detaches it
func (r *ItemRepository) LoseItem(ctx context.Context, actor, code string) error {
	err := r.db.WithTx(ctx, func(tx pgx.Tx) error {
		item, err := activeItem(ctx, tx, code)
		if err != nil {
			return err
		}
		if item.lostAt != nil {
			return models.ItemNotFound(code)
		}
		if err := requireLeaf(ctx, tx, code); err != nil {
			return err
		}

		if err := detach(ctx, tx, code); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `UPDATE item SET lost_at = now() WHERE code = $1`, code); err != nil {
			return fmt.Errorf("failed to mark %s lost: %w", code, err)
		}

		return insertAudit(ctx, tx, code, models.ChangeLost, item.parent, nil, actor)
	})
	return translate("lose item", err)
}

func requireLeaf(ctx context.Context, q db.Querier, code string) error {
	nonLeaf, err := hasContents(ctx, q, code)
	if err != nil {
		return err
	}
	if nonLeaf {
		return &models.ValidationError{Code: code, Reason: "item has contents, only leaf items can be removed"}
	}
	return nil
}

// Undelete clears the deletion mark. The item stays detached until moved.
func (r *ItemRepository) Undelete(ctx context.Context, actor, code string) error {
	err := r.db.WithTx(ctx, func(tx pgx.Tx) error {
		item, err := getItemRow(ctx, tx, code, true)
		if err != nil {
			return err
		}
		if item == nil || item.deletedAt == nil {
			return models.ItemNotFound(code)
		}

		if _, err := tx.Exec(ctx, `UPDATE item SET deleted_at = NULL WHERE code = $1`, code); err != nil {
			return fmt.Errorf("failed to undelete %s: %w", code, err)
		}

		return insertAudit(ctx, tx, code, models.ChangeRestore, nil, nil, actor)
	})
	return translate("undelete item", err)
}

// GetItem loads an item with depth levels of contents.
// A non-nil token must match the item's token; callers that already
// authenticated the user pass nil.
func (r *ItemRepository) GetItem(ctx context.Context, code string, depth int, token *string) (*models.Item, error) {
	if depth < 0 {
		return nil, &models.InvalidArgumentError{Argument: "depth", Reason: "must not be negative"}
	}

	var item *models.Item
	err := r.db.WithTx(ctx, func(tx pgx.Tx) error {
		row, err := getItemRow(ctx, tx, code, false)
		if err != nil {
			return err
		}
		if row == nil {
			return models.ItemNotFound(code)
		}
		if token != nil && (row.token == nil || *row.token != *token) {
			return models.ItemNotFound(code)
		}

		items, err := loadItems(ctx, tx, []string{code}, depth)
		if err != nil {
			return err
		}
		if len(items) == 0 {
			return models.ItemNotFound(code)
		}
		item = items[0]
		return nil
	})
	if err != nil {
		return nil, translate("get item", err)
	}
	return item, nil
}

// ItemExists ignores deletion
func (r *ItemRepository) ItemExists(ctx context.Context, code string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM item WHERE code = $1)`, code).Scan(&exists)
	if err != nil {
		return false, translate("item exists", err)
	}
	return exists, nil
}

// ItemVisible is false for missing and deleted items
func (r *ItemRepository) ItemVisible(ctx context.Context, code string) (bool, error) {
	var visible bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM item WHERE code = $1 AND deleted_at IS NULL)`, code).Scan(&visible)
	if err != nil {
		return false, translate("item visible", err)
	}
	return visible, nil
}

// ItemDeletedAt returns nil for items that are not deleted
func (r *ItemRepository) ItemDeletedAt(ctx context.Context, code string) (*time.Time, error) {
	row, err := getItemRow(ctx, r.db, code, false)
	if err != nil {
		return nil, translate("item deleted at", err)
	}
	if row == nil {
		return nil, models.ItemNotFound(code)
	}
	return row.deletedAt, nil
}

// Features returns the item's own features
func (r *ItemRepository) Features(ctx context.Context, code string) (feature.Set, error) {
	row, err := getItemRow(ctx, r.db, code, false)
	if err != nil {
		return nil, translate("get features", err)
	}
	if row == nil || row.deletedAt != nil {
		return nil, models.ItemNotFound(code)
	}

	sets, err := loadItemFeatures(ctx, r.db, []string{code})
	if err != nil {
		return nil, translate("get features", err)
	}
	if sets[code] == nil {
		return feature.Set{}, nil
	}
	return sets[code], nil
}

// UpdateFeatures sets and removes features in one transaction and writes
// a single update entry when anything changed
func (r *ItemRepository) UpdateFeatures(ctx context.Context, actor, code string, set feature.Set, remove []string) (bool, error) {
	changed := false
	err := r.db.WithTx(ctx, func(tx pgx.Tx) error {
		changed = false
		if _, err := activeItem(ctx, tx, code); err != nil {
			return err
		}

		if len(set) > 0 {
			if err := upsertItemFeatures(ctx, tx, code, set); err != nil {
				return err
			}
			changed = true
		}
		if len(remove) > 0 {
			n, err := deleteItemFeatures(ctx, tx, code, remove)
			if err != nil {
				return err
			}
			changed = changed || n > 0
		}

		if !changed {
			return nil
		}
		return insertAudit(ctx, tx, code, models.ChangeUpdate, nil, nil, actor)
	})
	if err != nil {
		return false, translate("update features", err)
	}
	return changed, nil
}

// SetFeatures upserts features and records an update
func (r *ItemRepository) SetFeatures(ctx context.Context, actor, code string, set feature.Set) error {
	_, err := r.UpdateFeatures(ctx, actor, code, set, nil)
	return err
}

// DeleteFeatures removes features without an audit entry.
// Removing features an item does not have is not an error.
func (r *ItemRepository) DeleteFeatures(ctx context.Context, code string, names []string) error {
	if len(names) == 0 {
		return nil
	}
	_, err := deleteItemFeatures(ctx, r.db, code, names)
	return translate("delete features", err)
}

// loadItems hydrates codes in the given order, each with depth levels of contents.
// Codes that vanished are skipped.
func loadItems(ctx context.Context, q db.Querier, codes []string, depth int) ([]*models.Item, error) {
	if len(codes) == 0 {
		return []*models.Item{}, nil
	}

	rootRows, err := loadItemRows(ctx, q, codes)
	if err != nil {
		return nil, err
	}

	roots := make(map[string]*models.Item, len(codes))
	result := make([]*models.Item, 0, len(codes))
	all := make([]*models.Item, 0, len(codes))
	var placed []string
	for _, code := range uniqueStrings(codes) {
		row, ok := rootRows[code]
		if !ok {
			continue
		}
		item := row.toModel()
		roots[code] = item
		all = append(all, item)
		if item.Placed() {
			placed = append(placed, code)
		}
	}
	for _, code := range codes {
		if item, ok := roots[code]; ok {
			result = append(result, item)
		}
	}

	if len(placed) > 0 {
		if err := loadLocations(ctx, q, placed, roots); err != nil {
			return nil, err
		}
		if depth > 0 {
			contents, err := loadContents(ctx, q, placed, depth, roots)
			if err != nil {
				return nil, err
			}
			all = append(all, contents...)
		}
	}

	if err := attachFeatures(ctx, q, all); err != nil {
		return nil, err
	}
	return result, nil
}

func loadItemRows(ctx context.Context, q db.Querier, codes []string) (map[string]*itemRow, error) {
	query := `
		SELECT code, parent, token, created_at, deleted_at, lost_at
		FROM item
		WHERE code = ANY($1)
	`
	rows, err := q.Query(ctx, query, codes)
	if err != nil {
		return nil, fmt.Errorf("failed to load items: %w", err)
	}
	defer rows.Close()

	out := make(map[string]*itemRow, len(codes))
	for rows.Next() {
		row := &itemRow{}
		if err := rows.Scan(&row.code, &row.parent, &row.token, &row.createdAt, &row.deletedAt, &row.lostAt); err != nil {
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}
		out[row.code] = row
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to load items: %w", err)
	}
	return out, nil
}

func loadLocations(ctx context.Context, q db.Querier, codes []string, roots map[string]*models.Item) error {
	query := `
		SELECT descendant, ancestor
		FROM tree
		WHERE descendant = ANY($1) AND depth > 0
		ORDER BY descendant, depth DESC
	`
	rows, err := q.Query(ctx, query, codes)
	if err != nil {
		return fmt.Errorf("failed to load locations: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var code, ancestor string
		if err := rows.Scan(&code, &ancestor); err != nil {
			return fmt.Errorf("failed to scan location: %w", err)
		}
		roots[code].Location = append(roots[code].Location, ancestor)
	}
	return rows.Err()
}

// loadContents fills Contents of every root and returns the nodes it created
func loadContents(ctx context.Context, q db.Querier, codes []string, depth int, roots map[string]*models.Item) ([]*models.Item, error) {
	query := `
		SELECT t.ancestor, i.code, i.parent, i.token, i.created_at, i.deleted_at, i.lost_at
		FROM tree t
		JOIN item i ON i.code = t.descendant
		WHERE t.ancestor = ANY($1) AND t.depth BETWEEN 1 AND $2
		ORDER BY t.ancestor, t.depth, i.code
	`
	rows, err := q.Query(ctx, query, codes, depth)
	if err != nil {
		return nil, fmt.Errorf("failed to load contents: %w", err)
	}
	defer rows.Close()

	nodes := make(map[string]map[string]*models.Item, len(codes))
	var created []*models.Item
	for rows.Next() {
		var (
			root string
			row  itemRow
		)
		if err := rows.Scan(&root, &row.code, &row.parent, &row.token, &row.createdAt, &row.deletedAt, &row.lostAt); err != nil {
			return nil, fmt.Errorf("failed to scan contents: %w", err)
		}
		if row.parent == nil {
			return nil, fmt.Errorf("closure lists %s under %s but it has no parent", row.code, root)
		}

		byCode := nodes[root]
		if byCode == nil {
			byCode = map[string]*models.Item{root: roots[root]}
			nodes[root] = byCode
		}
		parent, ok := byCode[*row.parent]
		if !ok {
			return nil, fmt.Errorf("closure lists %s under %s but its parent %s is not there", row.code, root, *row.parent)
		}

		child := row.toModel()
		parent.Contents = append(parent.Contents, child)
		byCode[child.Code] = child
		created = append(created, child)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to load contents: %w", err)
	}
	return created, nil
}

// attachFeatures fills own features and product defaults of every item
func attachFeatures(ctx context.Context, q db.Querier, items []*models.Item) error {
	codes := make([]string, 0, len(items))
	for _, item := range items {
		codes = append(codes, item.Code)
	}

	sets, err := loadItemFeatures(ctx, q, uniqueStrings(codes))
	if err != nil {
		return err
	}

	products := make(map[models.ProductRef]*models.Product)
	for _, item := range items {
		item.Features = sets[item.Code]

		ref, ok := productRefOf(item.Features)
		if !ok {
			continue
		}
		p, seen := products[ref]
		if !seen {
			if p, err = loadProduct(ctx, q, ref); err != nil {
				return err
			}
			products[ref] = p
		}
		if p != nil {
			refCopy := ref
			item.Product = &refCopy
			item.DefaultFeatures = p.Features
		}
	}
	return nil
}
