// Package export renders document content to HTML and PDF.
package export

import (
	"encoding/json"
	"errors"
	"time"
)

// Format represents the export output format
type Format string

const (
	FormatHTML Format = "html"
	FormatPDF  Format = "pdf"
)

// ParseFormat maps a query value to a Format. Empty means PDF.
func ParseFormat(raw string) (Format, bool) {
	switch Format(raw) {
	case "", FormatPDF:
		return FormatPDF, true
	case FormatHTML:
		return FormatHTML, true
	default:
		return "", false
	}
}

// ImageResolver maps an image src found in content to the URL written into
// the rendered page. Returning "" drops the image.
type ImageResolver func(src string) string

// Request contains parameters for an export operation
type Request struct {
	Title          string
	Summary        string
	DocumentNumber int64
	Version        int
	UpdatedAt      time.Time
	Content        json.RawMessage
	Format         Format
	Images         ImageResolver
}

// Result contains the export output
type Result struct {
	Data     []byte
	Filename string
	MimeType string
}

var (
	// ErrUnsupportedFormat is returned for formats other than html and pdf.
	ErrUnsupportedFormat = errors.New("export format unsupported")
	// ErrPDFDependencyMissing indicates PDF export runtime dependencies are unavailable.
	ErrPDFDependencyMissing = errors.New("export pdf dependency missing")
)
