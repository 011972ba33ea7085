package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"golang.org/x/sync/errgroup"

	"odocs/api/internal/audit"
	"odocs/api/internal/metrics"
	"odocs/api/internal/store"
	"odocs/api/internal/util"
)

const (
	shareTokenBytes   = 24
	defaultAccessType = "link"
	publicAccessType  = "public"
)

var (
	accessLevels = []any{"viewer", "commenter"}
	accessTypes  = []any{"private", "link", "public"}
)

type CreateShareLinkInput struct {
	AccessLevel string     `json:"accessLevel"`
	ExpiresAt   *time.Time `json:"expiresAt"`
	Password    *string    `json:"password"`
	AccessType  string     `json:"accessType"`
}

func (in *CreateShareLinkInput) normalize() {
	in.AccessLevel = strings.TrimSpace(in.AccessLevel)
	in.AccessType = strings.TrimSpace(in.AccessType)
	if in.AccessType == "" {
		in.AccessType = defaultAccessType
	}
	if in.Password != nil && *in.Password == "" {
		in.Password = nil
	}
}

func (in CreateShareLinkInput) validate(now time.Time) error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.AccessLevel, validation.Required, validation.In(accessLevels...)),
		validation.Field(&in.ExpiresAt, validation.By(after(now))),
		validation.Field(&in.Password, validation.RuneLength(4, 32)),
		validation.Field(&in.AccessType, validation.In(accessTypes...)),
	)
}

func after(now time.Time) validation.RuleFunc {
	return func(value any) error {
		var t time.Time
		switch v := value.(type) {
		case *time.Time:
			if v == nil {
				return nil
			}
			t = *v
		case time.Time:
			t = v
		default:
			return nil
		}
		if !t.After(now) {
			return errors.New("must be in the future")
		}
		return nil
	}
}

type UpdateShareLinkInput struct {
	AllowExternalEdit *bool   `json:"allowExternalEdit"`
	AccessType        *string `json:"accessType"`
}

func (in UpdateShareLinkInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.AccessType, validation.NilOrNotEmpty, validation.In(accessTypes...)),
	)
}

// ShareResolution is what a valid share token grants.
type ShareResolution struct {
	Link     *store.ShareLink
	Document *store.Document
	Revision *store.DocumentRevision
}

// AuthorDocument is one entry of the author's public documents.
type AuthorDocument struct {
	Document          *store.Document
	ShareLink         store.ShareLink
	Revision          *store.DocumentRevision
	IsCurrentDocument bool
	AuthorName        string
}

func (s *Service) ListShareLinks(ctx context.Context, actor Actor, workspaceID, documentID string) ([]store.ShareLink, error) {
	_, doc, err := s.managerDocument(ctx, actor, workspaceID, documentID)
	if err != nil {
		return nil, err
	}
	return s.store.ListShareLinks(ctx, doc.ID)
}

// CreateShareLink shares the document. A document that was shared before
// gets its newest record reactivated, so its token never changes.
func (s *Service) CreateShareLink(ctx context.Context, actor Actor, workspaceID, documentID string, input CreateShareLinkInput) (*store.ShareLink, error) {
	acc, doc, err := s.managerDocument(ctx, actor, workspaceID, documentID)
	if err != nil {
		return nil, err
	}
	input.normalize()
	if err := validationError(input.validate(s.now())); err != nil {
		return nil, err
	}

	var passwordHash *string
	if input.Password != nil {
		hash, err := s.hasher.Hash(*input.Password)
		if err != nil {
			return nil, err
		}
		passwordHash = &hash
	}

	existing, err := s.store.GetLatestShareLinkForDocument(ctx, doc.ID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		link, err := s.store.ReactivateShareLink(ctx, existing.ID, store.ShareLinkReactivation{
			AccessLevel:  input.AccessLevel,
			ExpiresAt:    input.ExpiresAt,
			PasswordHash: passwordHash,
			AccessType:   input.AccessType,
		})
		if err != nil {
			return nil, err
		}
		if link == nil {
			return nil, errShareLinkNotFound
		}
		s.audit.Record(ctx, audit.Event{
			WorkspaceID:  workspaceID,
			MembershipID: acc.membership.ID,
			Action:       "share_link.updated",
			EntityType:   "share_link",
			EntityID:     link.ID,
			Metadata: map[string]any{
				"reactivated": true,
				"accessLevel": link.AccessLevel,
				"accessType":  link.AccessType,
				"expiresAt":   link.ExpiresAt,
			},
		})
		return link, nil
	}

	token, err := util.RandomToken(shareTokenBytes)
	if err != nil {
		return nil, err
	}
	link, err := s.store.InsertShareLink(ctx, store.ShareLink{
		ID:                    util.NewID(),
		DocumentID:            doc.ID,
		WorkspaceID:           workspaceID,
		Token:                 token,
		AccessLevel:           input.AccessLevel,
		PasswordHash:          passwordHash,
		ExpiresAt:             input.ExpiresAt,
		CreatedByMembershipID: acc.membership.ID,
		AccessType:            input.AccessType,
	})
	if err != nil {
		return nil, err
	}
	s.audit.Record(ctx, audit.Event{
		WorkspaceID:  workspaceID,
		MembershipID: acc.membership.ID,
		Action:       "share_link.created",
		EntityType:   "share_link",
		EntityID:     link.ID,
		Metadata: map[string]any{
			"accessLevel": link.AccessLevel,
			"accessType":  link.AccessType,
			"expiresAt":   link.ExpiresAt,
			"hasPassword": link.PasswordHash != nil,
		},
	})
	return link, nil
}

// managedLink loads a share link of the workspace whose document the actor
// may manage. The document may already be in the trash.
func (s *Service) managedLink(ctx context.Context, actor Actor, workspaceID, linkID string) (access, *store.ShareLink, error) {
	acc, err := s.requireMembership(ctx, actor, workspaceID)
	if err != nil {
		return access{}, nil, err
	}
	link, err := s.store.GetShareLink(ctx, linkID)
	if err != nil {
		return access{}, nil, err
	}
	if link == nil || link.WorkspaceID != workspaceID {
		return access{}, nil, errShareLinkNotFound
	}
	doc, err := s.store.GetDocument(ctx, link.DocumentID)
	if err != nil {
		return access{}, nil, fmt.Errorf("load document: %w", err)
	}
	if doc == nil {
		return access{}, nil, errShareLinkNotFound
	}
	if !manages(acc, doc) {
		return access{}, nil, errForbidden
	}
	return acc, link, nil
}

func (s *Service) UpdateShareLink(ctx context.Context, actor Actor, workspaceID, linkID string, input UpdateShareLinkInput) (*store.ShareLink, error) {
	acc, link, err := s.managedLink(ctx, actor, workspaceID, linkID)
	if err != nil {
		return nil, err
	}
	if input.AccessType != nil {
		trimmed := strings.TrimSpace(*input.AccessType)
		input.AccessType = &trimmed
	}
	if input.AllowExternalEdit == nil && input.AccessType == nil {
		return nil, invalid("body", "at least one field is required")
	}
	if err := validationError(input.Validate()); err != nil {
		return nil, err
	}

	updated, err := s.store.UpdateShareLinkOptions(ctx, link.ID, input.AllowExternalEdit, input.AccessType)
	if err != nil {
		return nil, err
	}
	if updated == nil {
		return nil, errShareLinkNotFound
	}
	metadata := map[string]any{}
	if input.AllowExternalEdit != nil {
		metadata["allowExternalEdit"] = *input.AllowExternalEdit
	}
	if input.AccessType != nil {
		metadata["accessType"] = *input.AccessType
	}
	s.audit.Record(ctx, audit.Event{
		WorkspaceID:  workspaceID,
		MembershipID: acc.membership.ID,
		Action:       "share_link.updated",
		EntityType:   "share_link",
		EntityID:     link.ID,
		Metadata:     metadata,
	})
	return updated, nil
}

// RevokeShareLink revokes the link and every guest session issued under it.
func (s *Service) RevokeShareLink(ctx context.Context, actor Actor, workspaceID, linkID string) (*store.ShareLink, error) {
	acc, link, err := s.managedLink(ctx, actor, workspaceID, linkID)
	if err != nil {
		return nil, err
	}
	revoked, err := s.store.RevokeShareLink(ctx, link.ID)
	if err != nil {
		return nil, err
	}
	if revoked == nil {
		return nil, errShareLinkNotFound
	}
	s.evictGuestSessions(ctx, link.ID)
	s.audit.Record(ctx, audit.Event{
		WorkspaceID:  workspaceID,
		MembershipID: acc.membership.ID,
		Action:       "share_link.revoked",
		EntityType:   "share_link",
		EntityID:     link.ID,
	})
	return revoked, nil
}

// RevokeGuestSessions ends every guest session of the link while leaving
// the link itself usable.
func (s *Service) RevokeGuestSessions(ctx context.Context, actor Actor, workspaceID, linkID string) (int64, error) {
	acc, link, err := s.managedLink(ctx, actor, workspaceID, linkID)
	if err != nil {
		return 0, err
	}
	count, err := s.store.RevokeShareLinkSessions(ctx, link.ID)
	if err != nil {
		return 0, err
	}
	s.evictGuestSessions(ctx, link.ID)
	s.audit.Record(ctx, audit.Event{
		WorkspaceID:  workspaceID,
		MembershipID: acc.membership.ID,
		Action:       "share_link.external_sessions_revoked",
		EntityType:   "share_link",
		EntityID:     link.ID,
		Metadata:     map[string]any{"count": count},
	})
	return count, nil
}

func (s *Service) evictGuestSessions(ctx context.Context, linkID string) {
	if s.guests == nil {
		return
	}
	if err := s.guests.RevokeShareLink(ctx, linkID); err != nil {
		log.Printf("session: evict guest sessions of %s: %v", linkID, err)
	}
}

// verifyShareToken checks that token names an active link, that password
// matches when the link has one, and that its document is live.
func (s *Service) verifyShareToken(ctx context.Context, token, password string) (*store.ShareLink, *store.Document, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		metrics.ShareLinkResolutions.WithLabelValues("not_found").Inc()
		return nil, nil, errShareLinkNotFound
	}
	link, err := s.store.GetShareLinkByToken(ctx, token)
	if err != nil {
		return nil, nil, err
	}
	if link == nil || !link.Active(s.now()) {
		metrics.ShareLinkResolutions.WithLabelValues("not_found").Inc()
		return nil, nil, errShareLinkNotFound
	}
	if link.PasswordHash != nil {
		if password == "" {
			metrics.ShareLinkResolutions.WithLabelValues("password_required").Inc()
			return nil, nil, errPasswordRequired
		}
		ok, err := s.hasher.Verify(*link.PasswordHash, password)
		if err != nil {
			return nil, nil, err
		}
		if !ok {
			metrics.ShareLinkResolutions.WithLabelValues("password_required").Inc()
			return nil, nil, errPasswordRequired
		}
	}
	doc, err := s.store.GetDocument(ctx, link.DocumentID)
	if err != nil {
		return nil, nil, fmt.Errorf("load document: %w", err)
	}
	if doc == nil || doc.DeletedAt != nil {
		metrics.ShareLinkResolutions.WithLabelValues("document_missing").Inc()
		return nil, nil, errDocumentNotFound
	}
	return link, doc, nil
}

// ResolveShareLink counts a view and returns the document with the count
// already incremented, together with its latest revision.
func (s *Service) ResolveShareLink(ctx context.Context, token, password string) (*ShareResolution, error) {
	link, doc, err := s.verifyShareToken(ctx, token, password)
	if err != nil {
		return nil, err
	}
	views, err := s.store.IncrementViewCount(ctx, doc.ID)
	if err != nil {
		return nil, err
	}
	doc.ViewCount = views
	rev, err := s.store.GetLatestRevision(ctx, doc.ID)
	if err != nil {
		return nil, err
	}
	metrics.ShareLinkResolutions.WithLabelValues("ok").Inc()
	return &ShareResolution{Link: link, Document: doc, Revision: rev}, nil
}

// AuthorPublicDocuments lists the active public links created by the
// author of the token's link. The token's own document is always included
// and comes first when its link is not public itself.
func (s *Service) AuthorPublicDocuments(ctx context.Context, token, password string) ([]AuthorDocument, error) {
	current, _, err := s.verifyShareToken(ctx, token, password)
	if err != nil {
		return nil, err
	}

	authorName := ""
	author, err := s.store.GetMembershipByID(ctx, current.CreatedByMembershipID)
	if err != nil {
		return nil, err
	}
	if author != nil {
		authorName = author.DisplayName
	}

	links, err := s.store.ListPublicShareLinksByMembership(ctx, current.CreatedByMembershipID)
	if err != nil {
		return nil, err
	}
	included := false
	for _, link := range links {
		if link.DocumentID == current.DocumentID {
			included = true
			break
		}
	}
	if !included {
		links = append([]store.ShareLink{*current}, links...)
	}

	entries := make([]*AuthorDocument, len(links))
	g, gctx := errgroup.WithContext(ctx)
	for i, link := range links {
		g.Go(func() error {
			doc, err := s.store.GetDocument(gctx, link.DocumentID)
			if err != nil {
				return err
			}
			if doc == nil || doc.DeletedAt != nil {
				return nil
			}
			rev, err := s.store.GetLatestRevision(gctx, doc.ID)
			if err != nil {
				return err
			}
			entries[i] = &AuthorDocument{
				Document:          doc,
				ShareLink:         link,
				Revision:          rev,
				IsCurrentDocument: link.DocumentID == current.DocumentID,
				AuthorName:        authorName,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]AuthorDocument, 0, len(entries))
	for _, entry := range entries {
		if entry != nil {
			out = append(out, *entry)
		}
	}
	return out, nil
}
