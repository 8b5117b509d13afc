package clause

import (
	"fmt"
	"strings"
)

// Store holds the ordered clause list for one document. Order is extraction
// order and identity is stable: clause-1, clause-2, ... by position.
type Store struct {
	clauses []*Clause
	byID    map[string]int
}

// NewStore builds a store from already-normalized clauses, e.g. when a
// document is loaded back from persistence.
func NewStore(clauses []*Clause) *Store {
	s := &Store{
		clauses: clauses,
		byID:    make(map[string]int, len(clauses)),
	}
	for i, c := range clauses {
		s.byID[c.ID] = i
	}
	return s
}

// Ingest normalizes raw analysis records into clauses.
//
// Original text resolution, per record:
//   - an explicit original_text is authoritative;
//   - accepted with no original_text means the pre-edit text is gone — the
//     record is flagged degraded and its current text doubles as the
//     original, with a warning, rather than guessing silently;
//   - otherwise the current text IS the original by definition.
func Ingest(raw []Raw) (*Store, []Warning) {
	clauses := make([]*Clause, 0, len(raw))
	var warnings []Warning

	for i, r := range raw {
		id := fmt.Sprintf("clause-%d", i+1)
		accepted := r.Accepted != nil && *r.Accepted
		safer := ""
		if r.SaferAlternative != nil {
			safer = *r.SaferAlternative
		}

		c := &Clause{
			ID:               id,
			Title:            strings.TrimSpace(r.Label),
			Risk:             ParseRiskLevel(r.RiskLevel),
			SaferAlternative: safer,
			Confidence:       normalizeConfidence(r.Confidence),
			Explanation:      r.RuleSummary,
			Accepted:         accepted,
		}

		switch {
		case r.OriginalText != nil && *r.OriginalText != "":
			c.OriginalText = *r.OriginalText
		case accepted:
			c.OriginalText = r.Text
			c.Degraded = true
			warnings = append(warnings, Warning{
				ClauseID: id,
				Message:  "accepted clause arrived without original_text; pre-edit text is unrecoverable",
			})
		default:
			c.OriginalText = r.Text
		}

		if accepted && safer != "" {
			c.CurrentText = safer
		} else {
			c.CurrentText = r.Text
		}

		clauses = append(clauses, c)
	}

	return NewStore(clauses), warnings
}

// Get returns the clause with the given id.
func (s *Store) Get(id string) (*Clause, error) {
	i, ok := s.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return s.clauses[i], nil
}

// List returns clauses in extraction order. The slice is shared; callers
// must not reorder it.
func (s *Store) List() []*Clause {
	return s.clauses
}

// Len returns the number of clauses.
func (s *Store) Len() int {
	return len(s.clauses)
}

// The analysis service reports confidence as a 0-100 percentage; stored
// values are 0-1.
func normalizeConfidence(v float64) float64 {
	if v > 1 {
		v = v / 100
	}
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
