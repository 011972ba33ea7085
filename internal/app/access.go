package app

import (
	"context"
	"fmt"

	"odocs/api/internal/rbac"
	"odocs/api/internal/store"
)

type access struct {
	workspace *store.Workspace
	// nil when the workspace owner account has no membership row
	membership *store.Membership
}

func (a access) membershipID() string {
	if a.membership == nil {
		return ""
	}
	return a.membership.ID
}

// assertMember passes for the workspace owner account and for any member.
// A missing or deleted workspace is reported before access is checked.
func (s *Service) assertMember(ctx context.Context, actor Actor, workspaceID string) (access, error) {
	if actor.AccountID == "" {
		return access{}, errForbidden
	}
	workspace, err := s.store.GetWorkspace(ctx, workspaceID)
	if err != nil {
		return access{}, fmt.Errorf("load workspace: %w", err)
	}
	if workspace == nil || workspace.DeletedAt != nil {
		return access{}, errWorkspaceNotFound
	}
	membership, err := s.store.GetMembership(ctx, workspaceID, actor.AccountID)
	if err != nil {
		return access{}, fmt.Errorf("load membership: %w", err)
	}
	if membership == nil && workspace.OwnerAccountID != actor.AccountID {
		return access{}, errForbidden
	}
	return access{workspace: workspace, membership: membership}, nil
}

// requireMembership is assertMember for operations that attribute a record
// to the acting membership.
func (s *Service) requireMembership(ctx context.Context, actor Actor, workspaceID string) (access, error) {
	acc, err := s.assertMember(ctx, actor, workspaceID)
	if err != nil {
		return access{}, err
	}
	if acc.membership == nil {
		return access{}, errForbidden
	}
	return acc, nil
}

// manages reports whether the membership may manage doc: workspace owners
// and admins, and the membership that owns the document.
func manages(acc access, doc *store.Document) bool {
	if acc.membership == nil {
		return false
	}
	return rbac.Can(rbac.Normalize(acc.membership.Role), rbac.ActionManage) || acc.membership.ID == doc.OwnerMembershipID
}

// managerDocument loads a live document the actor may manage.
func (s *Service) managerDocument(ctx context.Context, actor Actor, workspaceID, documentID string) (access, *store.Document, error) {
	acc, err := s.requireMembership(ctx, actor, workspaceID)
	if err != nil {
		return access{}, nil, err
	}
	doc, err := s.loadDocument(ctx, workspaceID, documentID)
	if err != nil {
		return access{}, nil, err
	}
	if !manages(acc, doc) {
		return access{}, nil, errForbidden
	}
	return acc, doc, nil
}

// loadDocument returns a live document of the workspace.
func (s *Service) loadDocument(ctx context.Context, workspaceID, documentID string) (*store.Document, error) {
	doc, err := s.store.GetDocument(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("load document: %w", err)
	}
	if doc == nil || doc.WorkspaceID != workspaceID || doc.DeletedAt != nil {
		return nil, errDocumentNotFound
	}
	return doc, nil
}

func (s *Service) loadTrashedDocument(ctx context.Context, workspaceID, documentID string) (*store.Document, error) {
	doc, err := s.store.GetDocument(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("load document: %w", err)
	}
	if doc == nil || doc.WorkspaceID != workspaceID || doc.DeletedAt == nil {
		return nil, errDocumentNotFound
	}
	return doc, nil
}

// memberDocument combines the membership check with loading a live document.
func (s *Service) memberDocument(ctx context.Context, actor Actor, workspaceID, documentID string) (access, *store.Document, error) {
	acc, err := s.assertMember(ctx, actor, workspaceID)
	if err != nil {
		return access{}, nil, err
	}
	doc, err := s.loadDocument(ctx, workspaceID, documentID)
	if err != nil {
		return access{}, nil, err
	}
	return acc, doc, nil
}
