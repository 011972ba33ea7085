package app

import (
	"context"
	"log"
	"time"

	"odocs/api/internal/store"
)

// SoftDeleteDocument moves the document to the trash root. Its slug stays
// reserved until it is permanently deleted.
func (s *Service) SoftDeleteDocument(ctx context.Context, actor Actor, workspaceID, documentID string) (*store.Document, error) {
	acc, err := s.requireMembership(ctx, actor, workspaceID)
	if err != nil {
		return nil, err
	}
	doc, err := s.loadDocument(ctx, workspaceID, documentID)
	if err != nil {
		return nil, err
	}
	deleted, err := s.store.SoftDeleteDocument(ctx, doc.ID, acc.membership.ID)
	if err != nil {
		return nil, err
	}
	if deleted == nil {
		return nil, errDocumentNotFound
	}
	s.unindexDocument(doc.ID)
	return deleted, nil
}

// RestoreDocument reattaches a trashed document to its original folder when
// the whole ancestor chain is still live and inside the workspace. Otherwise
// it is restored to the root.
func (s *Service) RestoreDocument(ctx context.Context, actor Actor, workspaceID, documentID string) (*store.Document, error) {
	if _, err := s.assertMember(ctx, actor, workspaceID); err != nil {
		return nil, err
	}
	doc, err := s.loadTrashedDocument(ctx, workspaceID, documentID)
	if err != nil {
		return nil, err
	}

	var target *string
	if doc.OriginalFolderID != nil {
		ok, err := s.folders.ValidPath(ctx, *doc.OriginalFolderID, workspaceID)
		if err != nil {
			log.Printf("folders: restore %s to trash root: %v", doc.ID, err)
		}
		if ok {
			target = doc.OriginalFolderID
		}
	}

	restored, err := s.store.RestoreDocument(ctx, doc.ID, target)
	if err != nil {
		return nil, err
	}
	if restored == nil {
		return nil, errDocumentNotFound
	}
	s.reindexLatest(ctx, *restored)
	return restored, nil
}

// PermanentDeleteDocument only accepts documents already in the trash.
func (s *Service) PermanentDeleteDocument(ctx context.Context, actor Actor, workspaceID, documentID string) error {
	if _, err := s.assertMember(ctx, actor, workspaceID); err != nil {
		return err
	}
	doc, err := s.loadTrashedDocument(ctx, workspaceID, documentID)
	if err != nil {
		return err
	}
	deleted, err := s.store.PermanentDeleteDocument(ctx, doc.ID)
	if err != nil {
		return err
	}
	if !deleted {
		return errDocumentNotFound
	}
	s.unindexDocument(doc.ID)
	return nil
}

func (s *Service) ListTrashedDocuments(ctx context.Context, actor Actor, workspaceID string) ([]store.Document, error) {
	if _, err := s.assertMember(ctx, actor, workspaceID); err != nil {
		return nil, err
	}
	return s.store.ListTrashedDocuments(ctx, workspaceID)
}

// PurgeTrash permanently deletes documents trashed before olderThan.
func (s *Service) PurgeTrash(ctx context.Context, olderThan time.Time) (int64, error) {
	return s.store.DeleteTrashedBefore(ctx, olderThan)
}
