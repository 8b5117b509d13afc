// Package revision owns the accept/reject transitions for clause
// suggestions and the splice of accepted replacements into the document.
package revision

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"clauseguard/api/internal/clause"
	"clauseguard/api/internal/contract"
	"clauseguard/api/internal/ledger"
)

var (
	// ErrNoSaferAlternative means accept was attempted on a clause the
	// analysis produced no replacement for.
	ErrNoSaferAlternative = errors.New("clause has no safer alternative")
	// ErrSubstitutionNotFound means the clause's original text is no longer
	// present in the document, so the splice cannot be applied. The clause
	// is left in its pre-acceptance state.
	ErrSubstitutionNotFound = errors.New("original text not found in document")
	// ErrConflict means the caller's expected version sequence no longer
	// matches the ledger; the caller must refetch and retry.
	ErrConflict = errors.New("document version conflict")
)

// Result is the outcome of an accept.
type Result struct {
	Clause  *clause.Clause
	Version *ledger.Version
	Change  *ledger.ClauseChange
	// NoOp is set when the clause was already accepted: state is returned
	// unchanged and no version was committed.
	NoOp bool
}

// RejectResult is the transient marker a reject produces. It is never
// persisted; rejecting changes nothing that needs an audit trail.
type RejectResult struct {
	ClauseID string
	Rejected bool
}

// Engine applies accept/reject decisions to a document.
type Engine struct{}

// Accept replaces the clause's current text with its safer alternative,
// splices the replacement into the document text, and commits a new version.
// The clause's original text is captured before the first mutation and is
// never reassigned here or anywhere else.
//
// expected, when non-nil, is an optimistic concurrency check against the
// ledger's current sequence.
//
// Accepting an already-accepted clause is a no-op: same text, same ledger
// length, no duplicate version.
func (Engine) Accept(doc *contract.Document, clauseID, author string, expected *ledger.Sequence) (Result, error) {
	c, err := doc.Clauses.Get(clauseID)
	if err != nil {
		return Result{}, err
	}

	current, err := doc.Versions.Current()
	if err != nil {
		return Result{}, fmt.Errorf("read current version: %w", err)
	}
	if expected != nil && *expected != current.Sequence {
		return Result{}, fmt.Errorf("%w: expected %s, ledger at %s",
			ErrConflict, expected, current.Sequence)
	}

	if c.Accepted {
		return Result{Clause: c, Version: current, NoOp: true}, nil
	}
	if !c.HasSaferAlternative() {
		return Result{}, fmt.Errorf("%w: %s", ErrNoSaferAlternative, clauseID)
	}

	// First occurrence only: replacing every match would corrupt repeated
	// boilerplate belonging to other clauses.
	idx := strings.Index(doc.CurrentText, c.OriginalText)
	if idx < 0 {
		return Result{}, fmt.Errorf("%w: %s", ErrSubstitutionNotFound, clauseID)
	}
	newText := doc.CurrentText[:idx] + c.SaferAlternative + doc.CurrentText[idx+len(c.OriginalText):]

	change := &ledger.ClauseChange{
		ClauseID:     c.ID,
		OriginalText: c.OriginalText,
		NewText:      c.SaferAlternative,
	}
	description := "Accepted safer alternative for " + describeClause(c)
	version, err := doc.Versions.Commit(newText, change, author, description)
	if err != nil {
		return Result{}, fmt.Errorf("commit version: %w", err)
	}

	// Mutate the clause only after the commit cannot fail anymore, so a
	// failed accept leaves everything untouched.
	c.CurrentText = c.SaferAlternative
	c.Accepted = true
	doc.CurrentText = version.Snapshot
	doc.UpdatedAt = time.Now().UTC()

	return Result{Clause: c, Version: version, Change: change}, nil
}

// Reject records the user's decision without touching the document: no
// clause mutation, no version commit. The asymmetry with Accept is
// deliberate.
func (Engine) Reject(doc *contract.Document, clauseID string) (RejectResult, error) {
	if _, err := doc.Clauses.Get(clauseID); err != nil {
		return RejectResult{}, err
	}
	return RejectResult{ClauseID: clauseID, Rejected: true}, nil
}

func describeClause(c *clause.Clause) string {
	if c.Title != "" {
		return c.Title
	}
	return c.ID
}
