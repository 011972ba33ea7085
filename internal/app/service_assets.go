package app

import (
	"context"
	"errors"
	"net/http"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"odocs/api/internal/assets"
)

const maxResolveRefs = 200

var errAssetsUnavailable = domainError(http.StatusServiceUnavailable, "ASSETS_UNAVAILABLE", "Asset storage is not configured", nil)

type AssetUploadInput struct {
	MimeType string `json:"mimeType"`
}

func (in AssetUploadInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.MimeType, validation.Required, validation.RuneLength(1, 255)),
	)
}

func (s *Service) assetDocument(ctx context.Context, actor Actor, workspaceID, documentID string) error {
	if s.assets == nil {
		return errAssetsUnavailable
	}
	_, _, err := s.memberDocument(ctx, actor, workspaceID, documentID)
	return err
}

// CreateAssetUploadURL issues a presigned upload for a file-scoped asset.
func (s *Service) CreateAssetUploadURL(ctx context.Context, actor Actor, workspaceID, documentID string, input AssetUploadInput) (assets.UploadTicket, error) {
	if err := s.assetDocument(ctx, actor, workspaceID, documentID); err != nil {
		return assets.UploadTicket{}, err
	}
	input.MimeType = strings.TrimSpace(input.MimeType)
	if err := validationError(input.Validate()); err != nil {
		return assets.UploadTicket{}, err
	}
	return s.assets.UploadURL(ctx, workspaceID, documentID, input.MimeType)
}

// CreateDraftUploadURL issues a presigned upload into the draft namespace.
// The next saved revision that references it promotes it.
func (s *Service) CreateDraftUploadURL(ctx context.Context, actor Actor, workspaceID, documentID string, input AssetUploadInput) (assets.UploadTicket, error) {
	if err := s.assetDocument(ctx, actor, workspaceID, documentID); err != nil {
		return assets.UploadTicket{}, err
	}
	input.MimeType = strings.TrimSpace(input.MimeType)
	if err := validationError(input.Validate()); err != nil {
		return assets.UploadTicket{}, err
	}
	return s.assets.DraftUploadURL(ctx, workspaceID, documentID, input.MimeType)
}

// GetAssetViewURL signs a view URL for a promoted asset of the document.
func (s *Service) GetAssetViewURL(ctx context.Context, actor Actor, workspaceID, documentID, assetID string) (string, error) {
	if err := s.assetDocument(ctx, actor, workspaceID, documentID); err != nil {
		return "", err
	}
	ref := s.assets.Scheme().Ref(assets.Ref{Kind: assets.KindDocument, WorkspaceID: workspaceID, DocumentID: documentID, AssetID: assetID})
	signed, err := s.assets.ViewURL(ctx, workspaceID, documentID, ref)
	if errors.Is(err, assets.ErrInvalidReference) || errors.Is(err, assets.ErrForeignReference) {
		return "", invalid("assetId", "is not a valid asset id")
	}
	return signed, err
}

type ResolveAssetsInput struct {
	Refs []string `json:"refs"`
}

func (in ResolveAssetsInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Refs, validation.Length(0, maxResolveRefs)),
	)
}

func (s *Service) ResolveAssetURLs(ctx context.Context, actor Actor, workspaceID, documentID string, input ResolveAssetsInput) (map[string]string, error) {
	if err := s.assetDocument(ctx, actor, workspaceID, documentID); err != nil {
		return nil, err
	}
	if err := validationError(input.Validate()); err != nil {
		return nil, err
	}
	return s.assets.ResolveURLs(ctx, workspaceID, documentID, input.Refs)
}

type CloneAssetInput struct {
	SourceRef string `json:"sourceRef"`
}

// CloneAsset copies a promoted or file-scoped asset of the workspace into
// the target document.
func (s *Service) CloneAsset(ctx context.Context, actor Actor, workspaceID, documentID string, input CloneAssetInput) (string, error) {
	if err := s.assetDocument(ctx, actor, workspaceID, documentID); err != nil {
		return "", err
	}
	ref, err := s.assets.Clone(ctx, workspaceID, documentID, strings.TrimSpace(input.SourceRef))
	if errors.Is(err, assets.ErrInvalidReference) {
		return "", invalid("sourceRef", "is not a valid asset reference")
	}
	if errors.Is(err, assets.ErrForeignReference) {
		return "", errForbidden
	}
	return ref, err
}
