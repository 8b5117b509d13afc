package contract

import (
	"strings"
	"testing"

	"clauseguard/api/internal/clause"
)

func TestNewSeedsAggregate(t *testing.T) {
	clauses, warnings := clause.Ingest([]clause.Raw{
		{Text: "Either party may terminate at will.", Label: "Termination", RiskLevel: "high"},
	})
	if len(warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", warnings)
	}

	doc := New("Master Services Agreement", "Either party may terminate at will.", "Avery", clauses)

	if !strings.HasPrefix(doc.ID, "doc_") {
		t.Fatalf("unexpected document id %q", doc.ID)
	}
	if doc.CurrentText != "Either party may terminate at will." {
		t.Fatalf("unexpected current text %q", doc.CurrentText)
	}
	if doc.CreatedAt.IsZero() || !doc.CreatedAt.Equal(doc.UpdatedAt) {
		t.Fatal("expected createdAt and updatedAt set to the same instant")
	}

	seed, err := doc.Versions.Current()
	if err != nil {
		t.Fatalf("Current() error = %v", err)
	}
	if got := seed.Sequence.String(); got != "1.0" {
		t.Fatalf("seed sequence = %q, want 1.0", got)
	}
	if seed.Snapshot != doc.CurrentText {
		t.Fatal("seed snapshot must equal the document text")
	}
	if seed.Author != "Avery" {
		t.Fatalf("seed author = %q", seed.Author)
	}
}
