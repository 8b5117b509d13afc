package export

import (
	"strings"
	"testing"

	"clauseguard/api/internal/clause"
	"clauseguard/api/internal/contract"
)

func testDocument(t *testing.T) *contract.Document {
	t.Helper()
	safer := "Either party may terminate with 30 days written notice."
	raw := []clause.Raw{
		{
			Text:             "Either party may terminate at will.",
			Label:            "Termination",
			RiskLevel:        "High",
			Confidence:       0.91,
			SaferAlternative: &safer,
		},
		{
			Text:       "Governing law is the State of Delaware.",
			Label:      "Governing Law",
			RiskLevel:  "Low",
			Confidence: 0.55,
		},
	}
	store, warnings := clause.Ingest(raw)
	if len(warnings) != 0 {
		t.Fatalf("unexpected ingest warnings: %v", warnings)
	}
	text := "Either party may terminate at will. Governing law is the State of Delaware."
	return contract.New("Master Services Agreement", text, "Avery", store)
}

func TestRenderReportHTML(t *testing.T) {
	doc := testDocument(t)
	data := buildReportData(doc)

	html, err := RenderReportHTML(data)
	if err != nil {
		t.Fatalf("RenderReportHTML() error = %v", err)
	}

	for _, want := range []string{
		"Master Services Agreement",
		"Version 1.0",
		"Termination",
		"clause-1",
		"Governing Law",
		"Document uploaded and analyzed",
	} {
		if !strings.Contains(html, want) {
			t.Errorf("rendered report missing %q", want)
		}
	}
	if !strings.Contains(html, "risk-high") {
		t.Error("expected high-risk styling class in report")
	}
}

func TestExportHTMLFormat(t *testing.T) {
	svc := NewService()
	result, err := svc.Export(testDocument(t), FormatHTML)
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if result.Filename != "Master-Services-Agreement.html" {
		t.Errorf("unexpected filename %q", result.Filename)
	}
	if result.MimeType != "text/html; charset=utf-8" {
		t.Errorf("unexpected mime type %q", result.MimeType)
	}
	if !strings.Contains(string(result.Data), "Master Services Agreement") {
		t.Error("expected rendered HTML body")
	}
}

func TestExportUnsupportedFormat(t *testing.T) {
	svc := NewService()
	if _, err := svc.Export(testDocument(t), Format("odt")); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Master Services Agreement", "Master-Services-Agreement"},
		{"NDA (v2)", "NDA-v2"},
		{"", "document"},
		{"///", "document"},
	}
	for _, tt := range tests {
		if got := sanitizeFilename(tt.in); got != tt.want {
			t.Errorf("sanitizeFilename(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestPercentEncodeForDataURL(t *testing.T) {
	got := percentEncodeForDataURL("a b<c>")
	if strings.Contains(got, "+") {
		t.Errorf("spaces must encode as %%20, got %q", got)
	}
	if !strings.Contains(got, "%20") {
		t.Errorf("expected %%20 in %q", got)
	}
	if strings.Contains(got, "<") || strings.Contains(got, ">") {
		t.Errorf("angle brackets must be percent-encoded, got %q", got)
	}
}
