package repository

import (
	"context"
	"fmt"

	"github.com/weeeopen/tarallo/cmd/tarallo/models"
	"github.com/weeeopen/tarallo/common/db"
)

func insertAudit(ctx context.Context, q db.Querier, code string, change models.ChangeKind, from, to *string, actor string) error {
	query := `
		INSERT INTO audit (code, change, from_code, to_code, actor)
		VALUES ($1, $2, $3, $4, $5)
	`
	if _, err := q.Exec(ctx, query, code, string(change), from, to, actor); err != nil {
		return fmt.Errorf("failed to write audit entry for %s: %w", code, err)
	}
	return nil
}

// AuditRepository reads the audit log
type AuditRepository struct {
	db *db.DB
}

// NewAuditRepository creates a new audit repository
func NewAuditRepository(db *db.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// History returns the entries of one item, newest first
func (r *AuditRepository) History(ctx context.Context, code string, limit int) ([]models.AuditEntry, error) {
	var exists bool
	if err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM item WHERE code = $1)`, code).Scan(&exists); err != nil {
		return nil, translate("history", err)
	}
	if !exists {
		return nil, models.ItemNotFound(code)
	}

	query := `
		SELECT id, code, change, from_code, to_code, actor, created_at
		FROM audit
		WHERE code = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`
	rows, err := r.db.Query(ctx, query, code, limit)
	if err != nil {
		return nil, translate("history", fmt.Errorf("failed to query history: %w", err))
	}
	defer rows.Close()

	entries := make([]models.AuditEntry, 0)
	for rows.Next() {
		var (
			e      models.AuditEntry
			change string
		)
		if err := rows.Scan(&e.ID, &e.Code, &change, &e.From, &e.To, &e.Actor, &e.CreatedAt); err != nil {
			return nil, translate("history", fmt.Errorf("failed to scan audit entry: %w", err))
		}
		e.Change = models.ChangeKind(change)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, translate("history", err)
	}
	return entries, nil
}
