package store

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
)

func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet sql expectations: %v", err)
		}
		_ = db.Close()
	})
	return NewPostgresStore(db), mock
}

var documentColumnNames = []string{
	"id", "workspace_id", "folder_id", "original_folder_id", "owner_membership_id", "title", "slug",
	"document_number", "status", "visibility", "summary", "content_size", "view_count", "sort_order",
	"deleted_at", "deleted_by_membership_id", "created_at", "updated_at",
}

func documentRows(id string, folderID any, deletedAt any) *sqlmock.Rows {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return sqlmock.NewRows(documentColumnNames).AddRow(
		id, "ws-1", folderID, nil, "mem-1", "Roadmap", "roadmap",
		int64(3), "draft", "private", "", int64(27), int64(0), 0,
		deletedAt, nil, now, now,
	)
}

var shareLinkColumnNames = []string{
	"id", "document_id", "workspace_id", "token", "access_level", "password_hash", "expires_at", "revoked_at",
	"created_by_membership_id", "allow_external_edit", "access_type", "created_at", "updated_at",
}

func TestGetDocumentMissingReturnsNil(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(regexp.QuoteMeta("FROM documents WHERE id=$1")).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(documentColumnNames))

	doc, err := s.GetDocument(context.Background(), "missing")
	if err != nil {
		t.Fatalf("GetDocument() error = %v", err)
	}
	if doc != nil {
		t.Fatalf("expected nil document, got %+v", doc)
	}
}

func TestGetDocumentScansNullableColumns(t *testing.T) {
	s, mock := newMockStore(t)
	deletedAt := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("FROM documents WHERE id=$1")).
		WithArgs("doc-1").
		WillReturnRows(documentRows("doc-1", nil, deletedAt))

	doc, err := s.GetDocument(context.Background(), "doc-1")
	if err != nil {
		t.Fatalf("GetDocument() error = %v", err)
	}
	if doc.FolderID != nil {
		t.Fatalf("expected root folder, got %v", *doc.FolderID)
	}
	if doc.DeletedAt == nil || !doc.DeletedAt.Equal(deletedAt) {
		t.Fatalf("expected deletedAt %v, got %v", deletedAt, doc.DeletedAt)
	}
	if doc.DocumentNumber != 3 || doc.ContentSize != 27 {
		t.Fatalf("unexpected numbers: %+v", doc)
	}
}

func TestUpdateDocumentOnlySetsPatchedColumns(t *testing.T) {
	s, mock := newMockStore(t)
	title := "Roadmap"
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE documents SET title=$1, folder_id=$2, updated_at=NOW() WHERE id=$3 AND deleted_at IS NULL")).
		WithArgs("Roadmap", sqlmock.AnyArg(), "doc-1").
		WillReturnRows(documentRows("doc-1", nil, nil))

	doc, err := s.UpdateDocument(context.Background(), "doc-1", DocumentPatch{Title: &title, MoveFolder: true})
	if err != nil {
		t.Fatalf("UpdateDocument() error = %v", err)
	}
	if doc == nil || doc.Title != "Roadmap" {
		t.Fatalf("unexpected document %+v", doc)
	}
}

func TestUpdateDocumentSlugConflict(t *testing.T) {
	s, mock := newMockStore(t)
	slug := "taken"
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE documents SET slug=$1, updated_at=NOW()")).
		WithArgs("taken", "doc-1").
		WillReturnError(&pgconn.PgError{Code: "23505"})

	_, err := s.UpdateDocument(context.Background(), "doc-1", DocumentPatch{Slug: &slug})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestCreateDocumentWritesFirstRevisionInTransaction(t *testing.T) {
	s, mock := newMockStore(t)
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE workspaces SET document_counter = document_counter + 1")).
		WithArgs("ws-1").
		WillReturnRows(sqlmock.NewRows([]string{"document_counter"}).AddRow(int64(3)))
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO documents")).
		WillReturnRows(documentRows("doc-1", nil, nil))
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO document_revisions")).
		WithArgs("rev-1", "doc-1", int64(1), `{"type":"doc","content":[]}`, int64(27), sqlmock.AnyArg(), "mem-1").
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(created))
	mock.ExpectCommit()

	doc, rev, err := s.CreateDocument(context.Background(), Document{
		ID:                "doc-1",
		WorkspaceID:       "ws-1",
		OwnerMembershipID: "mem-1",
		Title:             "Roadmap",
		Slug:              "roadmap",
		Status:            "draft",
		Visibility:        "private",
		ContentSize:       27,
	}, DocumentRevision{
		ID:                    "rev-1",
		Version:               1,
		Content:               []byte(`{"type":"doc","content":[]}`),
		ContentSize:           27,
		CreatedByMembershipID: "mem-1",
	})
	if err != nil {
		t.Fatalf("CreateDocument() error = %v", err)
	}
	if doc.DocumentNumber != 3 {
		t.Fatalf("expected document number 3, got %d", doc.DocumentNumber)
	}
	if rev.DocumentID != "doc-1" || !rev.CreatedAt.Equal(created) {
		t.Fatalf("unexpected revision %+v", rev)
	}
}

func TestAppendRevisionMapsVersionCollisionToConflict(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO document_revisions")).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "document_revisions_document_id_version_key"})
	mock.ExpectRollback()

	_, err := s.AppendRevision(context.Background(), DocumentRevision{
		ID:         "rev-2",
		DocumentID: "doc-1",
		Version:    2,
		Content:    []byte(`{}`),
	})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestAppendRevisionRefreshesContentSize(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO document_revisions")).
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(time.Now()))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE documents SET content_size=$2")).
		WithArgs("doc-1", int64(14)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	rev, err := s.AppendRevision(context.Background(), DocumentRevision{
		ID:          "rev-2",
		DocumentID:  "doc-1",
		Version:     2,
		Content:     []byte(`{"type":"doc"}`),
		ContentSize: 14,
	})
	if err != nil {
		t.Fatalf("AppendRevision() error = %v", err)
	}
	if rev.Version != 2 {
		t.Fatalf("expected version 2, got %d", rev.Version)
	}
}

func TestGetLatestRevisionNoneReturnsNil(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY version DESC LIMIT 1")).
		WithArgs("doc-1").
		WillReturnError(sql.ErrNoRows)

	rev, err := s.GetLatestRevision(context.Background(), "doc-1")
	if err != nil || rev != nil {
		t.Fatalf("expected nil, nil; got %+v, %v", rev, err)
	}
}

func TestIncrementViewCountReturnsStoredCount(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE documents SET view_count = view_count + 1")).
		WithArgs("doc-1").
		WillReturnRows(sqlmock.NewRows([]string{"view_count"}).AddRow(int64(8)))

	count, err := s.IncrementViewCount(context.Background(), "doc-1")
	if err != nil {
		t.Fatalf("IncrementViewCount() error = %v", err)
	}
	if count != 8 {
		t.Fatalf("expected 8, got %d", count)
	}
}

func TestPermanentDeleteDocumentRequiresTrash(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM documents WHERE id=$1 AND deleted_at IS NOT NULL")).
		WithArgs("doc-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	deleted, err := s.PermanentDeleteDocument(context.Background(), "doc-1")
	if err != nil {
		t.Fatalf("PermanentDeleteDocument() error = %v", err)
	}
	if deleted {
		t.Fatal("expected live document to survive")
	}
}

func TestRevokeShareLinkRevokesSessions(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now().UTC()
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE document_share_links SET revoked_at=COALESCE(revoked_at, NOW())")).
		WithArgs("link-1").
		WillReturnRows(sqlmock.NewRows(shareLinkColumnNames).AddRow(
			"link-1", "doc-1", "ws-1", "tok", "viewer", nil, nil, now,
			"mem-1", true, "link", now, now,
		))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE document_share_link_sessions SET revoked_at=NOW()")).
		WithArgs("link-1").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	link, err := s.RevokeShareLink(context.Background(), "link-1")
	if err != nil {
		t.Fatalf("RevokeShareLink() error = %v", err)
	}
	if link.RevokedAt == nil || link.Active(time.Now()) {
		t.Fatalf("expected revoked link, got %+v", link)
	}
}

func TestReactivateShareLinkKeepsHashWhenNoneGiven(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now().UTC()
	mock.ExpectQuery(regexp.QuoteMeta("password_hash=COALESCE($4, password_hash)")).
		WithArgs("link-1", "commenter", sqlmock.AnyArg(), sqlmock.AnyArg(), "public").
		WillReturnRows(sqlmock.NewRows(shareLinkColumnNames).AddRow(
			"link-1", "doc-1", "ws-1", "tok", "commenter", "old-hash", nil, nil,
			"mem-1", false, "public", now, now,
		))

	link, err := s.ReactivateShareLink(context.Background(), "link-1", ShareLinkReactivation{
		AccessLevel: "commenter",
		AccessType:  "public",
	})
	if err != nil {
		t.Fatalf("ReactivateShareLink() error = %v", err)
	}
	if link.Token != "tok" || link.PasswordHash == nil || *link.PasswordHash != "old-hash" {
		t.Fatalf("unexpected link %+v", link)
	}
}

func TestInsertTagDuplicateIsConflict(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO document_tags")).
		WithArgs("tag-1", "doc-1", "design").
		WillReturnError(&pgconn.PgError{Code: "23505"})

	_, err := s.InsertTag(context.Background(), DocumentTag{ID: "tag-1", DocumentID: "doc-1", Name: "design"})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestInsertAuditEventEncodesMetadata(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO audit_events")).
		WithArgs("evt-1", "ws-1", "membership", sqlmock.AnyArg(), sqlmock.AnyArg(), "share_link.updated", "document_share_link", "link-1", `{"reactivated":true}`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	membershipID := "mem-1"
	err := s.InsertAuditEvent(context.Background(), AuditEvent{
		ID:                "evt-1",
		WorkspaceID:       "ws-1",
		ActorType:         "membership",
		ActorMembershipID: &membershipID,
		Action:            "share_link.updated",
		EntityType:        "document_share_link",
		EntityID:          "link-1",
		Metadata:          map[string]any{"reactivated": true},
	})
	if err != nil {
		t.Fatalf("InsertAuditEvent() error = %v", err)
	}
}

func TestShareLinkActive(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Minute)
	future := now.Add(time.Hour)

	cases := []struct {
		name string
		link ShareLink
		want bool
	}{
		{name: "open", link: ShareLink{}, want: true},
		{name: "future expiry", link: ShareLink{ExpiresAt: &future}, want: true},
		{name: "expired", link: ShareLink{ExpiresAt: &past}, want: false},
		{name: "revoked", link: ShareLink{RevokedAt: &past}, want: false},
		{name: "expires now", link: ShareLink{ExpiresAt: &now}, want: false},
	}
	for _, tc := range cases {
		if got := tc.link.Active(now); got != tc.want {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, got)
		}
	}
}
