package export

import (
	"fmt"

	"clauseguard/api/internal/contract"
)

// Service renders contract revision reports.
type Service struct{}

// NewService creates a new export service
func NewService() *Service {
	return &Service{}
}

// Export renders the document's revision report in the requested format.
func (s *Service) Export(doc *contract.Document, format Format) (*Result, error) {
	data := buildReportData(doc)

	html, err := RenderReportHTML(data)
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}

	switch format {
	case FormatPDF:
		return exportPDF(html, doc.Title)
	case FormatDOCX:
		return exportDOCX(html, doc.Title)
	case FormatHTML:
		return &Result{
			Data:     []byte(html),
			Filename: sanitizeFilename(doc.Title) + ".html",
			MimeType: "text/html; charset=utf-8",
		}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
}

func buildReportData(doc *contract.Document) TemplateData {
	data := TemplateData{
		Title:     doc.Title,
		Author:    doc.CreatedBy,
		UpdatedAt: doc.UpdatedAt,
		Text:      doc.CurrentText,
	}

	if current, err := doc.Versions.Current(); err == nil {
		data.Sequence = current.Sequence.String()
	}

	for _, c := range doc.Clauses.List() {
		data.Clauses = append(data.Clauses, ReportClause{
			ID:               c.ID,
			Title:            c.Title,
			RiskLevel:        string(c.Risk),
			OriginalText:     c.OriginalText,
			CurrentText:      c.CurrentText,
			SaferAlternative: c.SaferAlternative,
			Confidence:       c.Confidence,
			Accepted:         c.Accepted,
			Degraded:         c.Degraded,
		})
	}

	versions := doc.Versions.List()
	// newest first reads better in a report
	for i := len(versions) - 1; i >= 0; i-- {
		v := versions[i]
		data.Versions = append(data.Versions, ReportVersion{
			Sequence:    v.Sequence.String(),
			Status:      string(v.Status),
			Author:      v.Author,
			Description: v.ChangeDescription,
			Timestamp:   v.Timestamp,
		})
	}

	return data
}
