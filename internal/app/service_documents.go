package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"regexp"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"odocs/api/internal/export"
	"odocs/api/internal/search"
	"odocs/api/internal/store"
	"odocs/api/internal/util"
)

const (
	defaultTitle      = "Untitled"
	defaultStatus     = "draft"
	defaultVisibility = "private"
	maxTitleLength    = 160
	maxSlugLength     = 160
	maxSummaryLength  = 280
)

var defaultContent = json.RawMessage(`{"type":"doc","content":[]}`)

var (
	documentStatuses     = []any{"draft", "published", "archived"}
	documentVisibilities = []any{"private", "workspace", "shared", "public"}
)

type CreateDocumentInput struct {
	Title           string          `json:"title"`
	Slug            string          `json:"slug"`
	FolderID        *string         `json:"folderId"`
	Status          string          `json:"status"`
	Visibility      string          `json:"visibility"`
	Summary         string          `json:"summary"`
	SortOrder       int             `json:"sortOrder"`
	Content         json.RawMessage `json:"content"`
	RevisionSummary *string         `json:"revisionSummary"`
}

func (in *CreateDocumentInput) normalize() {
	in.Title = strings.TrimSpace(in.Title)
	in.Slug = strings.TrimSpace(in.Slug)
	in.Summary = strings.TrimSpace(in.Summary)
	if in.Status == "" {
		in.Status = defaultStatus
	}
	if in.Visibility == "" {
		in.Visibility = defaultVisibility
	}
	if in.FolderID != nil && strings.TrimSpace(*in.FolderID) == "" {
		in.FolderID = nil
	}
}

func (in CreateDocumentInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Title, validation.RuneLength(1, maxTitleLength)),
		validation.Field(&in.Slug, validation.RuneLength(1, maxSlugLength)),
		validation.Field(&in.Status, validation.In(documentStatuses...)),
		validation.Field(&in.Visibility, validation.In(documentVisibilities...)),
		validation.Field(&in.Summary, validation.RuneLength(0, maxSummaryLength)),
		validation.Field(&in.Content, validation.By(contentTree)),
		validation.Field(&in.RevisionSummary, validation.RuneLength(0, maxSummaryLength)),
	)
}

// UpdateDocumentInput leaves nil fields unchanged. FolderID is kept raw so
// an explicit null (move to root) differs from an absent key.
type UpdateDocumentInput struct {
	Title      *string         `json:"title"`
	Slug       *string         `json:"slug"`
	Status     *string         `json:"status"`
	Visibility *string         `json:"visibility"`
	Summary    *string         `json:"summary"`
	SortOrder  *int            `json:"sortOrder"`
	FolderID   json.RawMessage `json:"folderId"`
}

func (in *UpdateDocumentInput) normalize() {
	for _, field := range []*string{in.Title, in.Slug, in.Summary} {
		if field != nil {
			*field = strings.TrimSpace(*field)
		}
	}
}

func (in UpdateDocumentInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Title, validation.NilOrNotEmpty, validation.RuneLength(1, maxTitleLength)),
		validation.Field(&in.Slug, validation.NilOrNotEmpty, validation.RuneLength(1, maxSlugLength)),
		validation.Field(&in.Status, validation.NilOrNotEmpty, validation.In(documentStatuses...)),
		validation.Field(&in.Visibility, validation.NilOrNotEmpty, validation.In(documentVisibilities...)),
		validation.Field(&in.Summary, validation.RuneLength(0, maxSummaryLength)),
	)
}

// folderMove reports whether the update moves the document and where to.
func (in UpdateDocumentInput) folderMove() (bool, *string, error) {
	raw := bytes.TrimSpace(in.FolderID)
	if len(raw) == 0 {
		return false, nil, nil
	}
	if bytes.Equal(raw, []byte("null")) {
		return true, nil, nil
	}
	var folderID string
	if err := json.Unmarshal(raw, &folderID); err != nil {
		return false, nil, invalid("folderId", "must be a string or null")
	}
	folderID = strings.TrimSpace(folderID)
	if folderID == "" {
		return true, nil, nil
	}
	return true, &folderID, nil
}

func (in UpdateDocumentInput) empty() bool {
	return in.Title == nil && in.Slug == nil && in.Status == nil && in.Visibility == nil &&
		in.Summary == nil && in.SortOrder == nil && len(bytes.TrimSpace(in.FolderID)) == 0
}

// contentTree accepts an absent value or a JSON object or array.
func contentTree(value any) error {
	raw, _ := value.(json.RawMessage)
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	if (raw[0] != '{' && raw[0] != '[') || !json.Valid(raw) {
		return errors.New("must be a JSON object or array")
	}
	return nil
}

// compactContent returns the stored form of content and its size in bytes.
// Absent content becomes the empty document.
func compactContent(content json.RawMessage) (json.RawMessage, int64, error) {
	raw := bytes.TrimSpace(content)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		raw = defaultContent
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return nil, 0, invalid("content", "must be valid JSON")
	}
	return json.RawMessage(buf.Bytes()), int64(buf.Len()), nil
}

var slugSeparators = regexp.MustCompile(`[^a-z0-9]+`)

func slugify(value string) string {
	slug := slugSeparators.ReplaceAllString(strings.ToLower(value), "-")
	slug = strings.Trim(slug, "-")
	if len(slug) > maxSlugLength {
		slug = strings.TrimRight(slug[:maxSlugLength], "-")
	}
	if slug == "" {
		return "untitled"
	}
	return slug
}

// slugAttempts bounds how often a derived slug is re-resolved after losing
// an insert race.
const slugAttempts = 3

// resolveSlug formats raw as a slug. In strict mode a taken slug is a
// conflict; otherwise -2, -3, ... is appended until a free slug is found.
// Soft-deleted documents keep their slug reserved.
func (s *Service) resolveSlug(ctx context.Context, workspaceID, raw string, strict bool, excludeDocumentID string) (string, error) {
	base := slugify(raw)
	candidate := base
	for n := 2; ; n++ {
		exists, err := s.store.SlugExists(ctx, workspaceID, candidate, excludeDocumentID)
		if err != nil {
			return "", err
		}
		if !exists {
			return candidate, nil
		}
		if strict {
			return "", errSlugConflict
		}
		suffix := fmt.Sprintf("-%d", n)
		trimmed := base
		if len(trimmed)+len(suffix) > maxSlugLength {
			trimmed = strings.TrimRight(trimmed[:maxSlugLength-len(suffix)], "-")
		}
		candidate = trimmed + suffix
	}
}

// uniqueTitle appends " (n)" to base until it differs, case-insensitively,
// from every document title and folder name in the same folder.
func (s *Service) uniqueTitle(ctx context.Context, workspaceID string, folderID *string, base string) (string, error) {
	names, err := s.store.ListSiblingNames(ctx, workspaceID, folderID)
	if err != nil {
		return "", err
	}
	taken := make(map[string]struct{}, len(names))
	for _, name := range names {
		taken[strings.ToLower(name)] = struct{}{}
	}
	if _, ok := taken[strings.ToLower(base)]; !ok {
		return base, nil
	}
	for n := 1; ; n++ {
		candidate := fmt.Sprintf("%s (%d)", base, n)
		if _, ok := taken[strings.ToLower(candidate)]; !ok {
			return candidate, nil
		}
	}
}

func (s *Service) ensureFolder(ctx context.Context, workspaceID, folderID string) error {
	folder, err := s.store.GetFolder(ctx, folderID)
	if err != nil {
		return fmt.Errorf("load folder: %w", err)
	}
	if folder == nil || folder.WorkspaceID != workspaceID || folder.DeletedAt != nil {
		return errFolderNotFound
	}
	return nil
}

func (s *Service) CreateDocument(ctx context.Context, actor Actor, workspaceID string, input CreateDocumentInput) (*store.Document, *store.DocumentRevision, error) {
	acc, err := s.requireMembership(ctx, actor, workspaceID)
	if err != nil {
		return nil, nil, err
	}
	input.normalize()
	if err := validationError(input.Validate()); err != nil {
		return nil, nil, err
	}
	if input.FolderID != nil {
		if err := s.ensureFolder(ctx, workspaceID, *input.FolderID); err != nil {
			return nil, nil, err
		}
	}

	baseTitle := input.Title
	if baseTitle == "" {
		baseTitle = defaultTitle
	}
	title, err := s.uniqueTitle(ctx, workspaceID, input.FolderID, baseTitle)
	if err != nil {
		return nil, nil, fmt.Errorf("unique title: %w", err)
	}

	content, size, err := compactContent(input.Content)
	if err != nil {
		return nil, nil, err
	}

	strict := input.Slug != ""
	slugSource := input.Slug
	if !strict {
		slugSource = title
	}
	var (
		doc *store.Document
		rev *store.DocumentRevision
	)
	for attempt := 1; ; attempt++ {
		slug, err := s.resolveSlug(ctx, workspaceID, slugSource, strict, "")
		if err != nil {
			return nil, nil, err
		}
		doc, rev, err = s.store.CreateDocument(ctx, store.Document{
			ID:                util.NewID(),
			WorkspaceID:       workspaceID,
			FolderID:          input.FolderID,
			OwnerMembershipID: acc.membership.ID,
			Title:             title,
			Slug:              slug,
			Status:            input.Status,
			Visibility:        input.Visibility,
			Summary:           input.Summary,
			ContentSize:       size,
			SortOrder:         input.SortOrder,
		}, store.DocumentRevision{
			ID:                    util.NewID(),
			Version:               1,
			Content:               content,
			ContentSize:           size,
			Summary:               input.RevisionSummary,
			CreatedByMembershipID: acc.membership.ID,
		})
		if err == nil {
			break
		}
		if !errors.Is(err, store.ErrConflict) {
			return nil, nil, err
		}
		// Only a derived slug is re-resolved after losing an insert race.
		if strict || attempt == slugAttempts {
			return nil, nil, errSlugConflict
		}
	}

	s.indexDocument(*doc, rev.Content)
	return doc, rev, nil
}

func (s *Service) ListDocuments(ctx context.Context, actor Actor, workspaceID string, folderID *string) ([]store.Document, error) {
	if _, err := s.assertMember(ctx, actor, workspaceID); err != nil {
		return nil, err
	}
	return s.store.ListDocuments(ctx, workspaceID, folderID)
}

// GetDocument returns the document and its latest revision, which may be nil.
func (s *Service) GetDocument(ctx context.Context, actor Actor, workspaceID, documentID string) (*store.Document, *store.DocumentRevision, error) {
	_, doc, err := s.memberDocument(ctx, actor, workspaceID, documentID)
	if err != nil {
		return nil, nil, err
	}
	rev, err := s.store.GetLatestRevision(ctx, doc.ID)
	if err != nil {
		return nil, nil, err
	}
	return doc, rev, nil
}

func (s *Service) UpdateDocument(ctx context.Context, actor Actor, workspaceID, documentID string, input UpdateDocumentInput) (*store.Document, error) {
	_, doc, err := s.memberDocument(ctx, actor, workspaceID, documentID)
	if err != nil {
		return nil, err
	}
	input.normalize()
	if input.empty() {
		return nil, invalid("body", "at least one field is required")
	}
	if err := validationError(input.Validate()); err != nil {
		return nil, err
	}
	move, folderID, err := input.folderMove()
	if err != nil {
		return nil, err
	}

	patch := store.DocumentPatch{
		Title:      input.Title,
		Status:     input.Status,
		Visibility: input.Visibility,
		Summary:    input.Summary,
		SortOrder:  input.SortOrder,
		MoveFolder: move,
		FolderID:   folderID,
	}
	if input.Slug != nil {
		slug, err := s.resolveSlug(ctx, workspaceID, *input.Slug, true, doc.ID)
		if err != nil {
			return nil, err
		}
		patch.Slug = &slug
	}
	if move && folderID != nil {
		if err := s.ensureFolder(ctx, workspaceID, *folderID); err != nil {
			return nil, err
		}
	}

	updated, err := s.store.UpdateDocument(ctx, doc.ID, patch)
	if errors.Is(err, store.ErrConflict) {
		return nil, errSlugConflict
	}
	if err != nil {
		return nil, err
	}
	if updated == nil {
		return nil, errDocumentNotFound
	}

	s.reindexLatest(ctx, *updated)
	return updated, nil
}

func (s *Service) indexDocument(doc store.Document, content json.RawMessage) {
	if s.search == nil {
		return
	}
	s.search.IndexDocument(search.DocumentRecord{
		ID:          doc.ID,
		WorkspaceID: doc.WorkspaceID,
		Title:       doc.Title,
		Slug:        doc.Slug,
		Summary:     doc.Summary,
		Body:        export.PlainText(content),
		Status:      doc.Status,
		Visibility:  doc.Visibility,
	})
}

// reindexLatest indexes doc with the content of its latest revision.
func (s *Service) reindexLatest(ctx context.Context, doc store.Document) {
	if s.search == nil {
		return
	}
	rev, err := s.store.GetLatestRevision(ctx, doc.ID)
	if err != nil {
		log.Printf("search: load latest revision of %s: %v", doc.ID, err)
		return
	}
	var content json.RawMessage
	if rev != nil {
		content = rev.Content
	}
	s.indexDocument(doc, content)
}

func (s *Service) unindexDocument(documentID string) {
	if s.search != nil {
		s.search.DeleteDocument(documentID)
	}
}
