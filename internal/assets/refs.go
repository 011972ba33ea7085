package assets

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var (
	ErrInvalidReference = errors.New("assets: invalid asset reference")
	ErrForeignReference = errors.New("assets: reference belongs to another document")
)

type Kind string

const (
	// KindDraft lives under documents/{doc}/asset-drafts until promotion.
	KindDraft Kind = "draft"
	// KindDocument is a promoted asset under documents/{doc}/assets.
	KindDocument Kind = "document"
	// KindFile is the file-scoped variant issued by direct uploads.
	KindFile Kind = "file"
)

type Ref struct {
	Kind        Kind
	WorkspaceID string
	DocumentID  string
	AssetID     string
}

func (r Ref) Key() string {
	switch r.Kind {
	case KindDraft:
		return DraftKey(r.WorkspaceID, r.DocumentID, r.AssetID)
	case KindFile:
		return FileKey(r.WorkspaceID, r.DocumentID, r.AssetID)
	default:
		return DocumentKey(r.WorkspaceID, r.DocumentID, r.AssetID)
	}
}

func DraftKey(workspaceID, documentID, assetID string) string {
	return fmt.Sprintf("workspaces/%s/documents/%s/asset-drafts/%s", workspaceID, documentID, assetID)
}

func DocumentKey(workspaceID, documentID, assetID string) string {
	return fmt.Sprintf("workspaces/%s/documents/%s/assets/%s", workspaceID, documentID, assetID)
}

func FileKey(workspaceID, fileID, assetID string) string {
	return fmt.Sprintf("workspaces/%s/files/%s/assets/%s", workspaceID, fileID, assetID)
}

var refPath = regexp.MustCompile(`^workspaces/([^/]+)/(documents|files)/([^/]+)/(assets|asset-drafts)/([a-zA-Z0-9-]+)$`)

// Scheme formats and parses content references of the form
// {scheme}://workspaces/{ws}/....
type Scheme string

func (s Scheme) prefix() string {
	return string(s) + "://"
}

func (s Scheme) Ref(ref Ref) string {
	return s.prefix() + ref.Key()
}

func (s Scheme) Parse(raw string) (Ref, error) {
	path, ok := strings.CutPrefix(strings.TrimSpace(raw), s.prefix())
	if !ok {
		return Ref{}, ErrInvalidReference
	}
	match := refPath.FindStringSubmatch(path)
	if match == nil {
		return Ref{}, ErrInvalidReference
	}
	ref := Ref{WorkspaceID: match[1], DocumentID: match[3], AssetID: match[5]}
	switch {
	case match[2] == "files" && match[4] == "assets":
		ref.Kind = KindFile
	case match[2] == "documents" && match[4] == "assets":
		ref.Kind = KindDocument
	case match[2] == "documents" && match[4] == "asset-drafts":
		ref.Kind = KindDraft
	default:
		return Ref{}, ErrInvalidReference
	}
	return ref, nil
}
