package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"odocs/api/internal/store"
	"odocs/api/internal/util"
)

const maxRevisionAttempts = 3

type AppendRevisionInput struct {
	Content json.RawMessage `json:"content"`
	Summary *string         `json:"summary"`
}

func (in AppendRevisionInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Content, validation.By(requiredContent), validation.By(contentTree)),
		validation.Field(&in.Summary, validation.RuneLength(0, maxSummaryLength)),
	)
}

func requiredContent(value any) error {
	raw, _ := value.(json.RawMessage)
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return errors.New("cannot be blank")
	}
	return nil
}

// AppendRevision promotes draft assets referenced by the content, then
// stores it as latest+1. A version taken by a concurrent writer is retried
// with a fresh read of the latest revision.
func (s *Service) AppendRevision(ctx context.Context, actor Actor, workspaceID, documentID string, input AppendRevisionInput) (*store.DocumentRevision, error) {
	acc, err := s.requireMembership(ctx, actor, workspaceID)
	if err != nil {
		return nil, err
	}
	doc, err := s.loadDocument(ctx, workspaceID, documentID)
	if err != nil {
		return nil, err
	}
	if input.Summary != nil {
		trimmed := strings.TrimSpace(*input.Summary)
		input.Summary = &trimmed
		if trimmed == "" {
			input.Summary = nil
		}
	}
	if err := validationError(input.Validate()); err != nil {
		return nil, err
	}

	content := input.Content
	if s.assets != nil {
		content = s.assets.Promote(ctx, workspaceID, doc.ID, content)
	}
	content, size, err := compactContent(content)
	if err != nil {
		return nil, err
	}

	for attempt := 0; attempt < maxRevisionAttempts; attempt++ {
		latest, err := s.store.GetLatestRevision(ctx, doc.ID)
		if err != nil {
			return nil, err
		}
		next := 1
		if latest != nil {
			next = latest.Version + 1
		}
		rev, err := s.store.AppendRevision(ctx, store.DocumentRevision{
			ID:                    util.NewID(),
			DocumentID:            doc.ID,
			Version:               next,
			Content:               content,
			ContentSize:           size,
			Summary:               input.Summary,
			CreatedByMembershipID: acc.membership.ID,
		})
		if errors.Is(err, store.ErrConflict) {
			continue
		}
		if err != nil {
			return nil, err
		}
		doc.ContentSize = size
		s.indexDocument(*doc, rev.Content)
		return rev, nil
	}
	return nil, errRevisionConflict
}

func (s *Service) GetLatestRevision(ctx context.Context, actor Actor, workspaceID, documentID string) (*store.DocumentRevision, error) {
	_, doc, err := s.memberDocument(ctx, actor, workspaceID, documentID)
	if err != nil {
		return nil, err
	}
	rev, err := s.store.GetLatestRevision(ctx, doc.ID)
	if err != nil {
		return nil, err
	}
	if rev == nil {
		return nil, errRevisionNotFound
	}
	return rev, nil
}

func (s *Service) ListRevisions(ctx context.Context, actor Actor, workspaceID, documentID string) ([]store.DocumentRevision, error) {
	_, doc, err := s.memberDocument(ctx, actor, workspaceID, documentID)
	if err != nil {
		return nil, err
	}
	return s.store.ListRevisions(ctx, doc.ID)
}

func (s *Service) GetRevision(ctx context.Context, actor Actor, workspaceID, documentID string, version int) (*store.DocumentRevision, error) {
	_, doc, err := s.memberDocument(ctx, actor, workspaceID, documentID)
	if err != nil {
		return nil, err
	}
	if version < 1 {
		return nil, errRevisionNotFound
	}
	rev, err := s.store.GetRevision(ctx, doc.ID, version)
	if err != nil {
		return nil, err
	}
	if rev == nil {
		return nil, errRevisionNotFound
	}
	return rev, nil
}
