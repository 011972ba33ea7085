package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"

	"odocs/api/internal/audit"
	"odocs/api/internal/auth"
	"odocs/api/internal/metrics"
	"odocs/api/internal/session"
	"odocs/api/internal/store"
	"odocs/api/internal/util"
)

const guestTokenBytes = 32

type AcceptGuestInput struct {
	Email       string  `json:"email"`
	DisplayName *string `json:"displayName"`
	Password    string  `json:"password"`
}

func (in *AcceptGuestInput) normalize() {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if in.DisplayName != nil {
		trimmed := strings.TrimSpace(*in.DisplayName)
		if trimmed == "" {
			in.DisplayName = nil
		} else {
			in.DisplayName = &trimmed
		}
	}
}

func (in AcceptGuestInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Email, validation.Required, is.EmailFormat),
		validation.Field(&in.DisplayName, validation.RuneLength(1, 80)),
	)
}

// GuestGrant is returned once when a guest accepts a share link. The
// session token is never retrievable again.
type GuestGrant struct {
	DocumentID     string    `json:"documentId"`
	WorkspaceID    string    `json:"workspaceId"`
	AccessLevel    string    `json:"accessLevel"`
	SessionToken   string    `json:"sessionToken"`
	ExpiresAt      time.Time `json:"expiresAt"`
	CollaboratorID string    `json:"collaboratorId"`
}

// AcceptGuest turns a share link that allows external edits into a guest
// session for the collaborator identified by email.
func (s *Service) AcceptGuest(ctx context.Context, token string, input AcceptGuestInput) (*GuestGrant, error) {
	input.normalize()
	if err := validationError(input.Validate()); err != nil {
		return nil, err
	}
	link, doc, err := s.verifyShareToken(ctx, token, input.Password)
	if err != nil {
		return nil, err
	}
	if !link.AllowExternalEdit {
		return nil, errEditNotAllowed
	}

	collaborator, err := s.store.EnsureCollaborator(ctx, util.NewID(), input.Email, input.DisplayName)
	if err != nil {
		return nil, err
	}
	plaintext, guest, err := s.issueGuestSession(ctx, link, doc, collaborator.ID)
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, audit.Event{
		WorkspaceID:    link.WorkspaceID,
		ActorType:      audit.ActorExternal,
		CollaboratorID: collaborator.ID,
		Action:         "share_link.external_accepted",
		EntityType:     "share_link",
		EntityID:       link.ID,
		Metadata:       map[string]any{"accessLevel": link.AccessLevel},
	})
	return &GuestGrant{
		DocumentID:     doc.ID,
		WorkspaceID:    doc.WorkspaceID,
		AccessLevel:    link.AccessLevel,
		SessionToken:   plaintext,
		ExpiresAt:      guest.ExpiresAt,
		CollaboratorID: collaborator.ID,
	}, nil
}

// issueGuestSession stores the hash of a fresh session token and returns
// the plaintext.
func (s *Service) issueGuestSession(ctx context.Context, link *store.ShareLink, doc *store.Document, collaboratorID string) (string, session.GuestSession, error) {
	plaintext, err := util.RandomToken(guestTokenBytes)
	if err != nil {
		return "", session.GuestSession{}, err
	}
	tokenHash := auth.HashToken(plaintext)
	row, err := s.store.InsertShareLinkSession(ctx, store.ShareLinkSession{
		ID:             util.NewID(),
		ShareLinkID:    link.ID,
		CollaboratorID: collaboratorID,
		TokenHash:      tokenHash,
		ExpiresAt:      s.now().Add(s.cfg.GuestSessionTTL),
	})
	if err != nil {
		return "", session.GuestSession{}, err
	}
	guest := session.GuestSession{
		SessionID:      row.ID,
		ShareLinkID:    link.ID,
		CollaboratorID: collaboratorID,
		DocumentID:     doc.ID,
		WorkspaceID:    doc.WorkspaceID,
		AccessLevel:    link.AccessLevel,
		ExpiresAt:      row.ExpiresAt,
	}
	if s.guests != nil {
		if err := s.guests.Save(ctx, tokenHash, guest); err != nil {
			log.Printf("session: cache guest session %s: %v", row.ID, err)
		}
	}
	metrics.GuestSessionsIssued.Inc()
	return plaintext, guest, nil
}

// AuthenticateGuest resolves a guest bearer token. The session row stays
// authoritative: a cache hit only spares rebuilding the session, so a
// revocation that failed to evict still takes effect.
func (s *Service) AuthenticateGuest(ctx context.Context, token string) (*session.GuestSession, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, errGuestUnauthorized
	}
	tokenHash := auth.HashToken(token)
	now := s.now()

	var (
		cached session.GuestSession
		hit    bool
	)
	if s.guests != nil {
		var err error
		cached, err = s.guests.Lookup(ctx, tokenHash)
		switch {
		case err == nil:
			hit = true
		case errors.Is(err, session.ErrSessionNotFound):
		default:
			log.Printf("session: lookup guest session: %v", err)
		}
	}

	row, err := s.store.GetShareLinkSessionByTokenHash(ctx, tokenHash)
	if err != nil {
		return nil, err
	}
	if row == nil || row.RevokedAt != nil || !row.ExpiresAt.After(now) {
		if hit {
			s.forgetGuestSession(ctx, tokenHash)
		}
		return nil, errGuestUnauthorized
	}
	link, err := s.activeGuestLink(ctx, row.ShareLinkID, now)
	if err != nil {
		if hit && errors.Is(err, errGuestUnauthorized) {
			s.forgetGuestSession(ctx, tokenHash)
		}
		return nil, err
	}
	guest := session.GuestSession{
		SessionID:      row.ID,
		ShareLinkID:    link.ID,
		CollaboratorID: row.CollaboratorID,
		DocumentID:     link.DocumentID,
		WorkspaceID:    link.WorkspaceID,
		AccessLevel:    link.AccessLevel,
		ExpiresAt:      row.ExpiresAt,
	}
	if s.guests != nil && (!hit || cached.AccessLevel != guest.AccessLevel) {
		if err := s.guests.Save(ctx, tokenHash, guest); err != nil {
			log.Printf("session: cache guest session %s: %v", row.ID, err)
		}
	}
	return &guest, nil
}

func (s *Service) forgetGuestSession(ctx context.Context, tokenHash string) {
	if err := s.guests.Delete(ctx, tokenHash); err != nil {
		log.Printf("session: evict guest session: %v", err)
	}
}

func (s *Service) activeGuestLink(ctx context.Context, linkID string, now time.Time) (*store.ShareLink, error) {
	link, err := s.store.GetShareLink(ctx, linkID)
	if err != nil {
		return nil, fmt.Errorf("load share link: %w", err)
	}
	if link == nil || !link.Active(now) {
		return nil, errGuestUnauthorized
	}
	doc, err := s.store.GetDocument(ctx, link.DocumentID)
	if err != nil {
		return nil, fmt.Errorf("load document: %w", err)
	}
	if doc == nil || doc.DeletedAt != nil {
		return nil, errGuestUnauthorized
	}
	return link, nil
}
