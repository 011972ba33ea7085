package app

import (
	"context"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"odocs/api/internal/assets"
	"odocs/api/internal/config"
	"odocs/api/internal/storage"
	"odocs/api/internal/store"
)

const (
	testWorkspace = "ws-1"
	ownerAccount  = "acct-owner"
	memberAccount = "acct-member"
	adminAccount  = "acct-admin"
)

var (
	ownerActor    = Actor{AccountID: ownerAccount, Name: "Olive"}
	memberActor   = Actor{AccountID: memberAccount, Name: "Mia"}
	adminActor    = Actor{AccountID: adminAccount, Name: "Ada"}
	outsiderActor = Actor{AccountID: "acct-outsider", Name: "Oscar"}
)

// memStore is an in-memory dataStore. Hooks override single methods.
type memStore struct {
	mu            sync.Mutex
	seq           int
	workspaces    map[string]*store.Workspace
	memberships   map[string]*store.Membership
	folders       map[string]*store.Folder
	documents     map[string]*store.Document
	revisions     map[string][]store.DocumentRevision
	links         map[string]*store.ShareLink
	collaborators map[string]*store.ExternalCollaborator
	sessions      map[string]*store.ShareLinkSession
	tags          map[string][]store.DocumentTag
	audits        []store.AuditEvent

	pingFn           func(context.Context) error
	appendRevisionFn func(context.Context, store.DocumentRevision) (*store.DocumentRevision, error)
	insertAuditFn    func(context.Context, store.AuditEvent) error
	slugExistsFn     func(workspaceID, slug string) (bool, bool)
}

func newMemStore() *memStore {
	ms := &memStore{
		workspaces:    map[string]*store.Workspace{},
		memberships:   map[string]*store.Membership{},
		folders:       map[string]*store.Folder{},
		documents:     map[string]*store.Document{},
		revisions:     map[string][]store.DocumentRevision{},
		links:         map[string]*store.ShareLink{},
		collaborators: map[string]*store.ExternalCollaborator{},
		sessions:      map[string]*store.ShareLinkSession{},
		tags:          map[string][]store.DocumentTag{},
	}
	ms.workspaces[testWorkspace] = &store.Workspace{ID: testWorkspace, Name: "Acme", OwnerAccountID: ownerAccount}
	ms.memberships["m-owner"] = &store.Membership{ID: "m-owner", WorkspaceID: testWorkspace, AccountID: ownerAccount, Role: "owner", DisplayName: "Olive"}
	ms.memberships["m-member"] = &store.Membership{ID: "m-member", WorkspaceID: testWorkspace, AccountID: memberAccount, Role: "member", DisplayName: "Mia"}
	ms.memberships["m-admin"] = &store.Membership{ID: "m-admin", WorkspaceID: testWorkspace, AccountID: adminAccount, Role: "admin", DisplayName: "Ada"}
	return ms
}

// tick returns a strictly increasing timestamp so ordering by creation
// time is deterministic.
func (m *memStore) tick() time.Time {
	m.seq++
	return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(m.seq) * time.Second)
}

func (m *memStore) addFolder(id, workspaceID string, parentID *string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.folders[id] = &store.Folder{ID: id, WorkspaceID: workspaceID, ParentID: parentID, Name: id}
}

func (m *memStore) deleteFolder(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.tick()
	m.folders[id].DeletedAt = &now
}

func (m *memStore) document(id string) store.Document {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.documents[id]
}

func (m *memStore) auditActions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	actions := make([]string, 0, len(m.audits))
	for _, event := range m.audits {
		actions = append(actions, event.Action)
	}
	return actions
}

func (m *memStore) Ping(ctx context.Context) error {
	if m.pingFn != nil {
		return m.pingFn(ctx)
	}
	return nil
}

func (m *memStore) GetWorkspace(_ context.Context, id string) (*store.Workspace, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ws, ok := m.workspaces[id]
	if !ok {
		return nil, nil
	}
	copied := *ws
	return &copied, nil
}

func (m *memStore) GetMembership(_ context.Context, workspaceID, accountID string) (*store.Membership, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, membership := range m.memberships {
		if membership.WorkspaceID == workspaceID && membership.AccountID == accountID {
			copied := *membership
			return &copied, nil
		}
	}
	return nil, nil
}

func (m *memStore) GetMembershipByID(_ context.Context, id string) (*store.Membership, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	membership, ok := m.memberships[id]
	if !ok {
		return nil, nil
	}
	copied := *membership
	return &copied, nil
}

func (m *memStore) GetFolder(_ context.Context, id string) (*store.Folder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	folder, ok := m.folders[id]
	if !ok {
		return nil, nil
	}
	copied := *folder
	return &copied, nil
}

func sameFolder(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func (m *memStore) ListSiblingNames(_ context.Context, workspaceID string, folderID *string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var names []string
	for _, doc := range m.documents {
		if doc.WorkspaceID == workspaceID && doc.DeletedAt == nil && sameFolder(doc.FolderID, folderID) {
			names = append(names, doc.Title)
		}
	}
	for _, folder := range m.folders {
		if folder.WorkspaceID == workspaceID && folder.DeletedAt == nil && sameFolder(folder.ParentID, folderID) {
			names = append(names, folder.Name)
		}
	}
	return names, nil
}

func (m *memStore) GetDocument(_ context.Context, id string) (*store.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.documents[id]
	if !ok {
		return nil, nil
	}
	copied := *doc
	return &copied, nil
}

func (m *memStore) listDocuments(keep func(*store.Document) bool) []store.Document {
	items := make([]store.Document, 0)
	for _, doc := range m.documents {
		if keep(doc) {
			items = append(items, *doc)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].CreatedAt.Before(items[j].CreatedAt) })
	return items
}

func (m *memStore) ListDocuments(_ context.Context, workspaceID string, folderID *string) ([]store.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listDocuments(func(doc *store.Document) bool {
		return doc.WorkspaceID == workspaceID && doc.DeletedAt == nil && sameFolder(doc.FolderID, folderID)
	}), nil
}

func (m *memStore) ListTrashedDocuments(_ context.Context, workspaceID string) ([]store.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listDocuments(func(doc *store.Document) bool {
		return doc.WorkspaceID == workspaceID && doc.DeletedAt != nil
	}), nil
}

func (m *memStore) SlugExists(_ context.Context, workspaceID, slug, excludeDocumentID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.slugExistsFn != nil {
		if exists, handled := m.slugExistsFn(workspaceID, slug); handled {
			return exists, nil
		}
	}
	for _, doc := range m.documents {
		if doc.WorkspaceID == workspaceID && doc.Slug == slug && doc.ID != excludeDocumentID {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) CreateDocument(_ context.Context, doc store.Document, rev store.DocumentRevision) (*store.Document, *store.DocumentRevision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.documents {
		if existing.WorkspaceID == doc.WorkspaceID && existing.Slug == doc.Slug {
			return nil, nil, store.ErrConflict
		}
	}
	ws := m.workspaces[doc.WorkspaceID]
	ws.DocumentCounter++
	doc.DocumentNumber = ws.DocumentCounter
	doc.CreatedAt = m.tick()
	doc.UpdatedAt = doc.CreatedAt
	rev.DocumentID = doc.ID
	rev.CreatedAt = doc.CreatedAt
	stored := doc
	m.documents[doc.ID] = &stored
	m.revisions[doc.ID] = []store.DocumentRevision{rev}
	return &doc, &rev, nil
}

func (m *memStore) UpdateDocument(_ context.Context, id string, patch store.DocumentPatch) (*store.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.documents[id]
	if !ok || doc.DeletedAt != nil {
		return nil, nil
	}
	if patch.Title != nil {
		doc.Title = *patch.Title
	}
	if patch.Slug != nil {
		doc.Slug = *patch.Slug
	}
	if patch.Status != nil {
		doc.Status = *patch.Status
	}
	if patch.Visibility != nil {
		doc.Visibility = *patch.Visibility
	}
	if patch.Summary != nil {
		doc.Summary = *patch.Summary
	}
	if patch.SortOrder != nil {
		doc.SortOrder = *patch.SortOrder
	}
	if patch.MoveFolder {
		doc.FolderID = patch.FolderID
	}
	doc.UpdatedAt = m.tick()
	copied := *doc
	return &copied, nil
}

func (m *memStore) SoftDeleteDocument(_ context.Context, id, membershipID string) (*store.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.documents[id]
	if !ok || doc.DeletedAt != nil {
		return nil, nil
	}
	now := m.tick()
	doc.DeletedAt = &now
	doc.DeletedByMembershipID = &membershipID
	doc.OriginalFolderID = doc.FolderID
	doc.FolderID = nil
	copied := *doc
	return &copied, nil
}

func (m *memStore) RestoreDocument(_ context.Context, id string, folderID *string) (*store.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.documents[id]
	if !ok || doc.DeletedAt == nil {
		return nil, nil
	}
	doc.DeletedAt = nil
	doc.DeletedByMembershipID = nil
	doc.OriginalFolderID = nil
	doc.FolderID = folderID
	copied := *doc
	return &copied, nil
}

func (m *memStore) PermanentDeleteDocument(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.documents[id]
	if !ok || doc.DeletedAt == nil {
		return false, nil
	}
	delete(m.documents, id)
	delete(m.revisions, id)
	return true, nil
}

func (m *memStore) DeleteTrashedBefore(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var count int64
	for id, doc := range m.documents {
		if doc.DeletedAt != nil && doc.DeletedAt.Before(cutoff) {
			delete(m.documents, id)
			delete(m.revisions, id)
			count++
		}
	}
	return count, nil
}

func (m *memStore) IncrementViewCount(_ context.Context, id string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.documents[id]
	if !ok {
		return 0, nil
	}
	doc.ViewCount++
	return doc.ViewCount, nil
}

func (m *memStore) GetLatestRevision(_ context.Context, documentID string) (*store.DocumentRevision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	revs := m.revisions[documentID]
	if len(revs) == 0 {
		return nil, nil
	}
	latest := revs[len(revs)-1]
	return &latest, nil
}

func (m *memStore) GetRevision(_ context.Context, documentID string, version int) (*store.DocumentRevision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rev := range m.revisions[documentID] {
		if rev.Version == version {
			copied := rev
			return &copied, nil
		}
	}
	return nil, nil
}

func (m *memStore) ListRevisions(_ context.Context, documentID string) ([]store.DocumentRevision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	revs := m.revisions[documentID]
	items := make([]store.DocumentRevision, 0, len(revs))
	for i := len(revs) - 1; i >= 0; i-- {
		rev := revs[i]
		rev.Content = nil
		items = append(items, rev)
	}
	return items, nil
}

func (m *memStore) AppendRevision(ctx context.Context, rev store.DocumentRevision) (*store.DocumentRevision, error) {
	if m.appendRevisionFn != nil {
		return m.appendRevisionFn(ctx, rev)
	}
	return m.appendRevision(rev)
}

func (m *memStore) appendRevision(rev store.DocumentRevision) (*store.DocumentRevision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.revisions[rev.DocumentID] {
		if existing.Version == rev.Version {
			return nil, store.ErrConflict
		}
	}
	rev.CreatedAt = m.tick()
	m.revisions[rev.DocumentID] = append(m.revisions[rev.DocumentID], rev)
	if doc, ok := m.documents[rev.DocumentID]; ok {
		doc.ContentSize = rev.ContentSize
	}
	return &rev, nil
}

func (m *memStore) GetShareLink(_ context.Context, id string) (*store.ShareLink, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	link, ok := m.links[id]
	if !ok {
		return nil, nil
	}
	copied := *link
	return &copied, nil
}

func (m *memStore) GetLatestShareLinkForDocument(_ context.Context, documentID string) (*store.ShareLink, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest *store.ShareLink
	for _, link := range m.links {
		if link.DocumentID == documentID && (latest == nil || link.CreatedAt.After(latest.CreatedAt)) {
			latest = link
		}
	}
	if latest == nil {
		return nil, nil
	}
	copied := *latest
	return &copied, nil
}

func (m *memStore) GetShareLinkByToken(_ context.Context, token string) (*store.ShareLink, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, link := range m.links {
		if link.Token == token && link.RevokedAt == nil {
			copied := *link
			return &copied, nil
		}
	}
	return nil, nil
}

func (m *memStore) sortedLinks(keep func(*store.ShareLink) bool) []store.ShareLink {
	items := make([]store.ShareLink, 0)
	for _, link := range m.links {
		if keep(link) {
			items = append(items, *link)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].CreatedAt.After(items[j].CreatedAt) })
	return items
}

func (m *memStore) ListShareLinks(_ context.Context, documentID string) ([]store.ShareLink, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sortedLinks(func(link *store.ShareLink) bool { return link.DocumentID == documentID }), nil
}

func (m *memStore) ListPublicShareLinksByMembership(_ context.Context, membershipID string) ([]store.ShareLink, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	return m.sortedLinks(func(link *store.ShareLink) bool {
		return link.CreatedByMembershipID == membershipID && link.AccessType == "public" &&
			link.PasswordHash == nil && link.Active(now)
	}), nil
}

func (m *memStore) InsertShareLink(_ context.Context, link store.ShareLink) (*store.ShareLink, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	link.CreatedAt = m.tick()
	link.UpdatedAt = link.CreatedAt
	stored := link
	m.links[link.ID] = &stored
	return &link, nil
}

func (m *memStore) ReactivateShareLink(_ context.Context, id string, in store.ShareLinkReactivation) (*store.ShareLink, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	link, ok := m.links[id]
	if !ok {
		return nil, nil
	}
	link.RevokedAt = nil
	link.AccessLevel = in.AccessLevel
	link.ExpiresAt = in.ExpiresAt
	if in.PasswordHash != nil {
		link.PasswordHash = in.PasswordHash
	}
	link.AccessType = in.AccessType
	link.UpdatedAt = m.tick()
	copied := *link
	return &copied, nil
}

func (m *memStore) UpdateShareLinkOptions(_ context.Context, id string, allowExternalEdit *bool, accessType *string) (*store.ShareLink, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	link, ok := m.links[id]
	if !ok {
		return nil, nil
	}
	if allowExternalEdit != nil {
		link.AllowExternalEdit = *allowExternalEdit
	}
	if accessType != nil {
		link.AccessType = *accessType
	}
	copied := *link
	return &copied, nil
}

func (m *memStore) RevokeShareLink(_ context.Context, id string) (*store.ShareLink, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	link, ok := m.links[id]
	if !ok {
		return nil, nil
	}
	now := m.tick()
	if link.RevokedAt == nil {
		link.RevokedAt = &now
	}
	m.revokeSessions(id, now)
	copied := *link
	return &copied, nil
}

func (m *memStore) revokeSessions(linkID string, now time.Time) int64 {
	var count int64
	for _, sess := range m.sessions {
		if sess.ShareLinkID == linkID && sess.RevokedAt == nil {
			sess.RevokedAt = &now
			count++
		}
	}
	return count
}

func (m *memStore) EnsureCollaborator(_ context.Context, id, email string, displayName *string) (*store.ExternalCollaborator, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.collaborators[email]; ok {
		copied := *existing
		return &copied, nil
	}
	collaborator := &store.ExternalCollaborator{ID: id, Email: email, DisplayName: displayName, CreatedAt: m.tick()}
	m.collaborators[email] = collaborator
	copied := *collaborator
	return &copied, nil
}

func (m *memStore) InsertShareLinkSession(_ context.Context, sess store.ShareLinkSession) (*store.ShareLinkSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess.CreatedAt = m.tick()
	stored := sess
	m.sessions[sess.TokenHash] = &stored
	return &sess, nil
}

func (m *memStore) GetShareLinkSessionByTokenHash(_ context.Context, tokenHash string) (*store.ShareLinkSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[tokenHash]
	if !ok {
		return nil, nil
	}
	copied := *sess
	return &copied, nil
}

func (m *memStore) RevokeShareLinkSessions(_ context.Context, linkID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.revokeSessions(linkID, m.tick()), nil
}

func (m *memStore) ListTags(_ context.Context, documentID string) ([]store.DocumentTag, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	items := append([]store.DocumentTag(nil), m.tags[documentID]...)
	sort.Slice(items, func(i, j int) bool { return items[i].Name < items[j].Name })
	return items, nil
}

func (m *memStore) InsertTag(_ context.Context, tag store.DocumentTag) (*store.DocumentTag, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.tags[tag.DocumentID] {
		if strings.EqualFold(existing.Name, tag.Name) {
			return nil, store.ErrConflict
		}
	}
	tag.CreatedAt = m.tick()
	m.tags[tag.DocumentID] = append(m.tags[tag.DocumentID], tag)
	return &tag, nil
}

func (m *memStore) DeleteTag(_ context.Context, documentID, name string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tags := m.tags[documentID]
	for i, tag := range tags {
		if tag.Name == name {
			m.tags[documentID] = append(tags[:i], tags[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) InsertAuditEvent(ctx context.Context, event store.AuditEvent) error {
	if m.insertAuditFn != nil {
		return m.insertAuditFn(ctx, event)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audits = append(m.audits, event)
	return nil
}

type memObjects struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newMemObjects() *memObjects {
	return &memObjects{objects: map[string][]byte{}}
}

func (o *memObjects) has(key string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.objects[key]
	return ok
}

func (o *memObjects) Put(_ context.Context, key string, body []byte, _ string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.objects[key] = body
	return nil
}

func (o *memObjects) Get(_ context.Context, key string) ([]byte, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	body, ok := o.objects[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return body, nil
}

func (o *memObjects) Copy(_ context.Context, src, dst string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	body, ok := o.objects[src]
	if !ok {
		return storage.ErrNotFound
	}
	o.objects[dst] = body
	return nil
}

func (o *memObjects) Move(ctx context.Context, src, dst string) error {
	if err := o.Copy(ctx, src, dst); err != nil {
		return err
	}
	return o.Delete(ctx, src)
}

func (o *memObjects) Delete(_ context.Context, key string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.objects, key)
	return nil
}

func (o *memObjects) PresignPut(_ context.Context, key, _ string, _ time.Duration) (string, error) {
	return "https://blob.test/" + key + "?put", nil
}

func (o *memObjects) PresignGet(_ context.Context, key string, _ time.Duration) (string, error) {
	return "https://blob.test/" + key + "?get", nil
}

// plainHasher stands in for bcrypt.
type plainHasher struct{}

func (plainHasher) Hash(plaintext string) (string, error) { return "plain:" + plaintext, nil }

func (plainHasher) Verify(hash, plaintext string) (bool, error) {
	return hash == "plain:"+plaintext, nil
}

type testEnv struct {
	svc     *Service
	store   *memStore
	objects *memObjects
}

func newTestEnv(t *testing.T, opts ...Option) *testEnv {
	t.Helper()
	ms := newMemStore()
	objects := newMemObjects()
	pipeline := assets.NewPipeline(objects, assets.Options{Scheme: "odocs"})
	cfg := config.Config{JWTSecret: "test-secret", GuestSessionTTL: 7 * 24 * time.Hour}
	opts = append([]Option{WithPasswordHasher(plainHasher{})}, opts...)
	return &testEnv{
		svc:     newService(cfg, ms, pipeline, opts...),
		store:   ms,
		objects: objects,
	}
}

func (e *testEnv) createDocument(t *testing.T, actor Actor, input CreateDocumentInput) *store.Document {
	t.Helper()
	doc, _, err := e.svc.CreateDocument(context.Background(), actor, testWorkspace, input)
	if err != nil {
		t.Fatalf("create document: %v", err)
	}
	return doc
}

func errorCode(err error) string {
	_, code, _, _ := mapError(err)
	return code
}
