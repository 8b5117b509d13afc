// Package export renders a revision report for a contract document as PDF
// or DOCX.
package export

import (
	"errors"
	"time"
)

// Format represents the export output format
type Format string

const (
	FormatPDF  Format = "pdf"
	FormatDOCX Format = "docx"
	FormatHTML Format = "html"
)

// Request contains parameters for an export operation
type Request struct {
	DocumentID string
	Format     Format
}

// Result contains the export output
type Result struct {
	Data     []byte
	Filename string
	MimeType string
}

var (
	// ErrPDFDependencyMissing indicates PDF export runtime dependencies are unavailable.
	ErrPDFDependencyMissing = errors.New("export pdf dependency missing")
	// ErrDOCXDependencyMissing indicates DOCX export runtime dependencies are unavailable.
	ErrDOCXDependencyMissing = errors.New("export docx dependency missing")
	// ErrUnsupportedFormat indicates the requested format is not one of pdf, docx, html.
	ErrUnsupportedFormat = errors.New("unsupported export format")
)

// ReportClause is one row of the clause table in the report.
type ReportClause struct {
	ID               string
	Title            string
	RiskLevel        string
	OriginalText     string
	CurrentText      string
	SaferAlternative string
	Confidence       float64
	Accepted         bool
	Degraded         bool
}

// ReportVersion is one row of the version history table.
type ReportVersion struct {
	Sequence    string
	Status      string
	Author      string
	Description string
	Timestamp   time.Time
}
