package export

import (
	"context"
	"fmt"
	"html/template"
	"time"
)

const defaultPDFTimeout = 30 * time.Second

// Service renders export requests. The browser is only resolved when a PDF
// is asked for.
type Service struct {
	chromePath string
	timeout    time.Duration
}

// NewService creates an export service. chromePath may be empty to search
// PATH for a Chromium binary.
func NewService(chromePath string) *Service {
	return &Service{chromePath: chromePath, timeout: defaultPDFTimeout}
}

// Export generates an export in the requested format
func (s *Service) Export(ctx context.Context, req Request) (*Result, error) {
	page, err := RenderDocumentHTML(TemplateData{
		Title:          req.Title,
		Summary:        req.Summary,
		DocumentNumber: req.DocumentNumber,
		Version:        req.Version,
		UpdatedAt:      req.UpdatedAt,
		ContentHTML:    template.HTML(RenderHTML(req.Content, req.Images)),
	})
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}

	switch req.Format {
	case FormatHTML:
		return &Result{
			Data:     []byte(page),
			Filename: sanitizeFilename(req.Title) + ".html",
			MimeType: "text/html; charset=utf-8",
		}, nil
	case FormatPDF:
		chrome, err := findChrome(s.chromePath)
		if err != nil {
			return nil, err
		}
		data, err := printPDF(ctx, chrome, page, s.timeout)
		if err != nil {
			return nil, err
		}
		return &Result{
			Data:     data,
			Filename: sanitizeFilename(req.Title) + ".pdf",
			MimeType: "application/pdf",
		}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, req.Format)
	}
}
