package app

import (
	"context"
	"errors"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"odocs/api/internal/store"
	"odocs/api/internal/util"
)

type TagInput struct {
	Name string `json:"name"`
}

func (in TagInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Name, validation.Required, validation.RuneLength(1, 40)),
	)
}

func (s *Service) ListTags(ctx context.Context, actor Actor, workspaceID, documentID string) ([]store.DocumentTag, error) {
	_, doc, err := s.memberDocument(ctx, actor, workspaceID, documentID)
	if err != nil {
		return nil, err
	}
	return s.store.ListTags(ctx, doc.ID)
}

func (s *Service) AddTag(ctx context.Context, actor Actor, workspaceID, documentID string, input TagInput) (*store.DocumentTag, error) {
	_, doc, err := s.memberDocument(ctx, actor, workspaceID, documentID)
	if err != nil {
		return nil, err
	}
	input.Name = strings.TrimSpace(input.Name)
	if err := validationError(input.Validate()); err != nil {
		return nil, err
	}
	tag, err := s.store.InsertTag(ctx, store.DocumentTag{ID: util.NewID(), DocumentID: doc.ID, Name: input.Name})
	if errors.Is(err, store.ErrConflict) {
		return nil, errTagExists
	}
	return tag, err
}

func (s *Service) RemoveTag(ctx context.Context, actor Actor, workspaceID, documentID, name string) error {
	_, doc, err := s.memberDocument(ctx, actor, workspaceID, documentID)
	if err != nil {
		return err
	}
	deleted, err := s.store.DeleteTag(ctx, doc.ID, strings.TrimSpace(name))
	if err != nil {
		return err
	}
	if !deleted {
		return errTagNotFound
	}
	return nil
}
