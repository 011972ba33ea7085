package app

import (
	"context"
	"time"

	"odocs/api/internal/assets"
	"odocs/api/internal/audit"
	"odocs/api/internal/authpw"
	"odocs/api/internal/config"
	"odocs/api/internal/export"
	"odocs/api/internal/folders"
	"odocs/api/internal/search"
	"odocs/api/internal/session"
	"odocs/api/internal/store"
)

// Actor is an authenticated workspace account.
type Actor struct {
	AccountID string
	Name      string
}

type dataStore interface {
	Ping(context.Context) error
	GetWorkspace(context.Context, string) (*store.Workspace, error)
	GetMembership(context.Context, string, string) (*store.Membership, error)
	GetMembershipByID(context.Context, string) (*store.Membership, error)
	GetFolder(context.Context, string) (*store.Folder, error)
	ListSiblingNames(context.Context, string, *string) ([]string, error)

	GetDocument(context.Context, string) (*store.Document, error)
	ListDocuments(context.Context, string, *string) ([]store.Document, error)
	ListTrashedDocuments(context.Context, string) ([]store.Document, error)
	SlugExists(context.Context, string, string, string) (bool, error)
	CreateDocument(context.Context, store.Document, store.DocumentRevision) (*store.Document, *store.DocumentRevision, error)
	UpdateDocument(context.Context, string, store.DocumentPatch) (*store.Document, error)
	SoftDeleteDocument(context.Context, string, string) (*store.Document, error)
	RestoreDocument(context.Context, string, *string) (*store.Document, error)
	PermanentDeleteDocument(context.Context, string) (bool, error)
	DeleteTrashedBefore(context.Context, time.Time) (int64, error)
	IncrementViewCount(context.Context, string) (int64, error)

	GetLatestRevision(context.Context, string) (*store.DocumentRevision, error)
	GetRevision(context.Context, string, int) (*store.DocumentRevision, error)
	ListRevisions(context.Context, string) ([]store.DocumentRevision, error)
	AppendRevision(context.Context, store.DocumentRevision) (*store.DocumentRevision, error)

	GetShareLink(context.Context, string) (*store.ShareLink, error)
	GetLatestShareLinkForDocument(context.Context, string) (*store.ShareLink, error)
	GetShareLinkByToken(context.Context, string) (*store.ShareLink, error)
	ListShareLinks(context.Context, string) ([]store.ShareLink, error)
	ListPublicShareLinksByMembership(context.Context, string) ([]store.ShareLink, error)
	InsertShareLink(context.Context, store.ShareLink) (*store.ShareLink, error)
	ReactivateShareLink(context.Context, string, store.ShareLinkReactivation) (*store.ShareLink, error)
	UpdateShareLinkOptions(context.Context, string, *bool, *string) (*store.ShareLink, error)
	RevokeShareLink(context.Context, string) (*store.ShareLink, error)

	EnsureCollaborator(context.Context, string, string, *string) (*store.ExternalCollaborator, error)
	InsertShareLinkSession(context.Context, store.ShareLinkSession) (*store.ShareLinkSession, error)
	GetShareLinkSessionByTokenHash(context.Context, string) (*store.ShareLinkSession, error)
	RevokeShareLinkSessions(context.Context, string) (int64, error)

	ListTags(context.Context, string) ([]store.DocumentTag, error)
	InsertTag(context.Context, store.DocumentTag) (*store.DocumentTag, error)
	DeleteTag(context.Context, string, string) (bool, error)

	InsertAuditEvent(context.Context, store.AuditEvent) error
}

type passwordHasher interface {
	Hash(plaintext string) (string, error)
	Verify(hash, plaintext string) (bool, error)
}

type guestCache interface {
	Save(ctx context.Context, tokenHash string, guest session.GuestSession) error
	Lookup(ctx context.Context, tokenHash string) (session.GuestSession, error)
	Delete(ctx context.Context, tokenHash string) error
	RevokeShareLink(ctx context.Context, shareLinkID string) error
}

type searchIndex interface {
	Search(ctx context.Context, q search.Query) search.Response
	IndexDocument(doc search.DocumentRecord)
	DeleteDocument(id string)
}

type documentExporter interface {
	Export(ctx context.Context, req export.Request) (*export.Result, error)
}

type Service struct {
	cfg      config.Config
	store    dataStore
	assets   *assets.Pipeline
	folders  *folders.Checker
	audit    *audit.Recorder
	hasher   passwordHasher
	guests   guestCache
	search   searchIndex
	exporter documentExporter
	now      func() time.Time
}

type Option func(*Service)

// WithGuestCache puts a cache in front of guest session lookups.
func WithGuestCache(cache guestCache) Option {
	return func(s *Service) { s.guests = cache }
}

func WithSearch(index searchIndex) Option {
	return func(s *Service) { s.search = index }
}

func WithExporter(exporter documentExporter) Option {
	return func(s *Service) { s.exporter = exporter }
}

func WithPasswordHasher(hasher passwordHasher) Option {
	return func(s *Service) { s.hasher = hasher }
}

func New(cfg config.Config, dataStore *store.PostgresStore, pipeline *assets.Pipeline, opts ...Option) *Service {
	return newService(cfg, dataStore, pipeline, opts...)
}

func newService(cfg config.Config, ds dataStore, pipeline *assets.Pipeline, opts ...Option) *Service {
	if cfg.GuestSessionTTL <= 0 {
		cfg.GuestSessionTTL = 7 * 24 * time.Hour
	}
	s := &Service{
		cfg:     cfg,
		store:   ds,
		assets:  pipeline,
		folders: folders.NewChecker(ds).WithMaxDepth(cfg.FolderMaxDepth),
		audit:   audit.NewRecorder(ds),
		hasher:  authpw.NewHasher(0),
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) JWTSecret() []byte {
	return []byte(s.cfg.JWTSecret)
}
