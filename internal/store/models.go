package store

import (
	"encoding/json"
	"time"
)

type Workspace struct {
	ID              string
	Name            string
	OwnerAccountID  string
	DocumentCounter int64
	DeletedAt       *time.Time
	CreatedAt       time.Time
}

type Membership struct {
	ID          string
	WorkspaceID string
	AccountID   string
	Role        string
	DisplayName string
	CreatedAt   time.Time
}

type Folder struct {
	ID          string
	WorkspaceID string
	ParentID    *string
	Name        string
	DeletedAt   *time.Time
}

type Document struct {
	ID                    string
	WorkspaceID           string
	FolderID              *string
	OriginalFolderID      *string
	OwnerMembershipID     string
	Title                 string
	Slug                  string
	DocumentNumber        int64
	Status                string
	Visibility            string
	Summary               string
	ContentSize           int64
	ViewCount             int64
	SortOrder             int
	DeletedAt             *time.Time
	DeletedByMembershipID *string
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// DocumentPatch carries the fields of an update; nil means unchanged.
// MoveFolder distinguishes "move to root" (FolderID nil) from "keep folder".
type DocumentPatch struct {
	Title      *string
	Slug       *string
	Status     *string
	Visibility *string
	Summary    *string
	SortOrder  *int
	MoveFolder bool
	FolderID   *string
}

type DocumentRevision struct {
	ID                    string
	DocumentID            string
	Version               int
	Content               json.RawMessage
	ContentSize           int64
	Summary               *string
	CreatedByMembershipID string
	CreatedAt             time.Time
}

type DocumentTag struct {
	ID         string
	DocumentID string
	Name       string
	CreatedAt  time.Time
}

type ShareLink struct {
	ID                    string
	DocumentID            string
	WorkspaceID           string
	Token                 string
	AccessLevel           string
	PasswordHash          *string
	ExpiresAt             *time.Time
	RevokedAt             *time.Time
	CreatedByMembershipID string
	AllowExternalEdit     bool
	AccessType            string
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// Active reports whether the link is unrevoked and not yet expired at now.
func (l ShareLink) Active(now time.Time) bool {
	if l.RevokedAt != nil {
		return false
	}
	return l.ExpiresAt == nil || l.ExpiresAt.After(now)
}

// ShareLinkReactivation is applied to an existing record when a document is
// shared again. A nil PasswordHash keeps the stored hash.
type ShareLinkReactivation struct {
	AccessLevel  string
	ExpiresAt    *time.Time
	PasswordHash *string
	AccessType   string
}

type ExternalCollaborator struct {
	ID          string
	Email       string
	DisplayName *string
	CreatedAt   time.Time
}

type ShareLinkSession struct {
	ID             string
	ShareLinkID    string
	CollaboratorID string
	TokenHash      string
	ExpiresAt      time.Time
	RevokedAt      *time.Time
	CreatedAt      time.Time
}

type AuditEvent struct {
	ID                  string
	WorkspaceID         string
	ActorType           string
	ActorMembershipID   *string
	ActorCollaboratorID *string
	Action              string
	EntityType          string
	EntityID            string
	Metadata            map[string]any
	CreatedAt           time.Time
}
