// Package contract defines the document aggregate: the unit a caller loads,
// mutates through the revision engine, and saves.
package contract

import (
	"time"

	"clauseguard/api/internal/clause"
	"clauseguard/api/internal/ledger"
	"clauseguard/api/internal/util"
)

// Document composes the full contract text, the ordered clause list, and the
// version ledger. It is owned by the session that loaded it; concurrent
// mutation is serialized above this package.
type Document struct {
	ID          string
	Title       string
	CurrentText string
	// SourceObject is the blob storage key of the uploaded source file,
	// empty when the caller supplied bare text.
	SourceObject string
	CreatedBy    string
	CreatedAt    time.Time
	UpdatedAt    time.Time

	Clauses  *clause.Store
	Versions *ledger.Ledger
}

// New creates a document at upload time: current text is the extracted text
// and the ledger is seeded with version 1.0 snapshotting it.
func New(title, text, author string, clauses *clause.Store) *Document {
	now := time.Now().UTC()
	return &Document{
		ID:          util.NewID("doc"),
		Title:       title,
		CurrentText: text,
		CreatedBy:   author,
		CreatedAt:   now,
		UpdatedAt:   now,
		Clauses:     clauses,
		Versions:    ledger.NewSeeded(text, author),
	}
}
