package models

import "time"

// ChangeKind is the kind of mutation an audit entry records
type ChangeKind string

const (
	ChangeCreate  ChangeKind = "C"
	ChangeUpdate  ChangeKind = "U"
	ChangeMove    ChangeKind = "M"
	ChangeDelete  ChangeKind = "D"
	ChangeLost    ChangeKind = "L"
	ChangeRestore ChangeKind = "R"
)

// AuditEntry is an append-only record of one mutation.
// Maps to: audit table
type AuditEntry struct {
	ID     int64      `json:"id"`
	Code   string     `json:"code"`
	Change ChangeKind `json:"change"`

	// Previous and new parent of a move
	From *string `json:"from,omitempty"`
	To   *string `json:"to,omitempty"`

	Actor     string    `json:"actor"`
	CreatedAt time.Time `json:"created_at"`
}
