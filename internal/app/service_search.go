package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"odocs/api/internal/export"
	"odocs/api/internal/search"
)

func (s *Service) Search(ctx context.Context, actor Actor, workspaceID string, q search.Query) (search.Response, error) {
	if _, err := s.assertMember(ctx, actor, workspaceID); err != nil {
		return search.Response{}, err
	}
	q.WorkspaceID = workspaceID
	q.Text = strings.TrimSpace(q.Text)
	if s.search == nil || q.Text == "" {
		return search.Response{Results: []search.Result{}, Query: q.Text}, nil
	}
	return s.search.Search(ctx, q), nil
}

// ExportDocument renders the latest revision. Images that reference assets
// of the document are signed so the rendered page can load them.
func (s *Service) ExportDocument(ctx context.Context, actor Actor, workspaceID, documentID string, format export.Format) (*export.Result, error) {
	_, doc, err := s.memberDocument(ctx, actor, workspaceID, documentID)
	if err != nil {
		return nil, err
	}
	if s.exporter == nil {
		return nil, errExportUnavailable
	}
	rev, err := s.store.GetLatestRevision(ctx, doc.ID)
	if err != nil {
		return nil, err
	}
	if rev == nil {
		return nil, errRevisionNotFound
	}

	images := map[string]string{}
	if s.assets != nil {
		if sources := export.ImageSources(rev.Content); len(sources) > 0 {
			images, err = s.assets.ResolveURLs(ctx, workspaceID, doc.ID, sources)
			if err != nil {
				return nil, fmt.Errorf("resolve export images: %w", err)
			}
		}
	}

	result, err := s.exporter.Export(ctx, export.Request{
		Title:          doc.Title,
		Summary:        doc.Summary,
		DocumentNumber: doc.DocumentNumber,
		Version:        rev.Version,
		UpdatedAt:      doc.UpdatedAt,
		Content:        rev.Content,
		Format:         format,
		Images: func(src string) string {
			if signed, ok := images[src]; ok {
				return signed
			}
			if strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://") || strings.HasPrefix(src, "data:") {
				return src
			}
			return ""
		},
	})
	if errors.Is(err, export.ErrPDFDependencyMissing) {
		return nil, errExportUnavailable
	}
	if errors.Is(err, export.ErrUnsupportedFormat) {
		return nil, invalid("format", "must be html or pdf")
	}
	return result, err
}
