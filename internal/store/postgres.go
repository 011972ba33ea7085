package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *PostgresStore) GetWorkspace(ctx context.Context, workspaceID string) (*Workspace, error) {
	var item Workspace
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, owner_account_id, document_counter, deleted_at, created_at
		FROM workspaces
		WHERE id=$1
	`, workspaceID).Scan(&item.ID, &item.Name, &item.OwnerAccountID, &item.DocumentCounter, &item.DeletedAt, &item.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get workspace: %w", err)
	}
	return &item, nil
}

const membershipColumns = `id, workspace_id, account_id, role, display_name, created_at`

func scanMembership(row rowScanner) (*Membership, error) {
	var item Membership
	if err := row.Scan(&item.ID, &item.WorkspaceID, &item.AccountID, &item.Role, &item.DisplayName, &item.CreatedAt); err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *PostgresStore) GetMembership(ctx context.Context, workspaceID, accountID string) (*Membership, error) {
	item, err := scanMembership(s.db.QueryRowContext(ctx, `
		SELECT `+membershipColumns+`
		FROM workspace_memberships
		WHERE workspace_id=$1 AND account_id=$2
	`, workspaceID, accountID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get membership: %w", err)
	}
	return item, nil
}

func (s *PostgresStore) GetMembershipByID(ctx context.Context, membershipID string) (*Membership, error) {
	item, err := scanMembership(s.db.QueryRowContext(ctx, `
		SELECT `+membershipColumns+`
		FROM workspace_memberships
		WHERE id=$1
	`, membershipID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get membership by id: %w", err)
	}
	return item, nil
}

func (s *PostgresStore) GetFolder(ctx context.Context, folderID string) (*Folder, error) {
	var item Folder
	err := s.db.QueryRowContext(ctx, `
		SELECT id, workspace_id, parent_id, name, deleted_at
		FROM folders
		WHERE id=$1
	`, folderID).Scan(&item.ID, &item.WorkspaceID, &item.ParentID, &item.Name, &item.DeletedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get folder: %w", err)
	}
	return &item, nil
}

// ListSiblingNames returns the titles of live documents and the names of
// live folders that sit directly under folderID (the root when nil).
func (s *PostgresStore) ListSiblingNames(ctx context.Context, workspaceID string, folderID *string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT title FROM documents
		WHERE workspace_id=$1 AND folder_id IS NOT DISTINCT FROM $2 AND deleted_at IS NULL
		UNION ALL
		SELECT name FROM folders
		WHERE workspace_id=$1 AND parent_id IS NOT DISTINCT FROM $2 AND deleted_at IS NULL
	`, workspaceID, folderID)
	if err != nil {
		return nil, fmt.Errorf("list sibling names: %w", err)
	}
	defer rows.Close()

	names := make([]string, 0)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan sibling name: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sibling names: %w", err)
	}
	return names, nil
}

const documentColumns = `id, workspace_id, folder_id, original_folder_id, owner_membership_id, title, slug,
	document_number, status, visibility, summary, content_size, view_count, sort_order,
	deleted_at, deleted_by_membership_id, created_at, updated_at`

func scanDocument(row rowScanner) (*Document, error) {
	var item Document
	if err := row.Scan(
		&item.ID,
		&item.WorkspaceID,
		&item.FolderID,
		&item.OriginalFolderID,
		&item.OwnerMembershipID,
		&item.Title,
		&item.Slug,
		&item.DocumentNumber,
		&item.Status,
		&item.Visibility,
		&item.Summary,
		&item.ContentSize,
		&item.ViewCount,
		&item.SortOrder,
		&item.DeletedAt,
		&item.DeletedByMembershipID,
		&item.CreatedAt,
		&item.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &item, nil
}

func scanDocuments(rows *sql.Rows) ([]Document, error) {
	defer rows.Close()
	items := make([]Document, 0)
	for rows.Next() {
		item, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		items = append(items, *item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return items, nil
}

// GetDocument returns the document whether or not it is soft-deleted.
func (s *PostgresStore) GetDocument(ctx context.Context, documentID string) (*Document, error) {
	item, err := scanDocument(s.db.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE id=$1`, documentID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get document: %w", err)
	}
	return item, nil
}

func (s *PostgresStore) ListDocuments(ctx context.Context, workspaceID string, folderID *string) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+documentColumns+`
		FROM documents
		WHERE workspace_id=$1 AND folder_id IS NOT DISTINCT FROM $2 AND deleted_at IS NULL
		ORDER BY sort_order ASC, updated_at DESC
	`, workspaceID, folderID)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	return scanDocuments(rows)
}

func (s *PostgresStore) ListTrashedDocuments(ctx context.Context, workspaceID string) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+documentColumns+`
		FROM documents
		WHERE workspace_id=$1 AND deleted_at IS NOT NULL
		ORDER BY deleted_at DESC
	`, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("list trashed documents: %w", err)
	}
	return scanDocuments(rows)
}

// SlugExists checks every document of the workspace, trashed ones included.
func (s *PostgresStore) SlugExists(ctx context.Context, workspaceID, slug, excludeDocumentID string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM documents WHERE workspace_id=$1 AND slug=$2 AND id<>$3)
	`, workspaceID, slug, excludeDocumentID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check slug: %w", err)
	}
	return exists, nil
}

// CreateDocument assigns the next workspace document number and writes the
// document together with its first revision in one transaction.
func (s *PostgresStore) CreateDocument(ctx context.Context, doc Document, rev DocumentRevision) (*Document, *DocumentRevision, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("begin create document: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := tx.QueryRowContext(ctx, `
		UPDATE workspaces SET document_counter = document_counter + 1
		WHERE id=$1
		RETURNING document_counter
	`, doc.WorkspaceID).Scan(&doc.DocumentNumber); err != nil {
		return nil, nil, fmt.Errorf("next document number: %w", err)
	}

	created, err := scanDocument(tx.QueryRowContext(ctx, `
		INSERT INTO documents (id, workspace_id, folder_id, owner_membership_id, title, slug, document_number, status, visibility, summary, content_size, sort_order)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING `+documentColumns,
		doc.ID, doc.WorkspaceID, doc.FolderID, doc.OwnerMembershipID, doc.Title, doc.Slug, doc.DocumentNumber,
		doc.Status, doc.Visibility, doc.Summary, doc.ContentSize, doc.SortOrder,
	))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, nil, ErrConflict
		}
		return nil, nil, fmt.Errorf("insert document: %w", err)
	}

	if err := tx.QueryRowContext(ctx, `
		INSERT INTO document_revisions (id, document_id, version, content, content_size, summary, created_by_membership_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`, rev.ID, created.ID, rev.Version, string(rev.Content), rev.ContentSize, rev.Summary, rev.CreatedByMembershipID).Scan(&rev.CreatedAt); err != nil {
		return nil, nil, fmt.Errorf("insert first revision: %w", err)
	}
	rev.DocumentID = created.ID

	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("commit create document: %w", err)
	}
	return created, &rev, nil
}

func (s *PostgresStore) UpdateDocument(ctx context.Context, documentID string, patch DocumentPatch) (*Document, error) {
	sets := make([]string, 0, 8)
	args := make([]any, 0, 9)
	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s=$%d", column, len(args)))
	}
	if patch.Title != nil {
		add("title", *patch.Title)
	}
	if patch.Slug != nil {
		add("slug", *patch.Slug)
	}
	if patch.Status != nil {
		add("status", *patch.Status)
	}
	if patch.Visibility != nil {
		add("visibility", *patch.Visibility)
	}
	if patch.Summary != nil {
		add("summary", *patch.Summary)
	}
	if patch.SortOrder != nil {
		add("sort_order", *patch.SortOrder)
	}
	if patch.MoveFolder {
		add("folder_id", patch.FolderID)
	}
	sets = append(sets, "updated_at=NOW()")
	args = append(args, documentID)

	query := fmt.Sprintf(`UPDATE documents SET %s WHERE id=$%d AND deleted_at IS NULL RETURNING %s`,
		strings.Join(sets, ", "), len(args), documentColumns)
	item, err := scanDocument(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrConflict
		}
		return nil, fmt.Errorf("update document: %w", err)
	}
	return item, nil
}

// SoftDeleteDocument moves a live document to the trash root, remembering
// the folder it came from.
func (s *PostgresStore) SoftDeleteDocument(ctx context.Context, documentID, membershipID string) (*Document, error) {
	item, err := scanDocument(s.db.QueryRowContext(ctx, `
		UPDATE documents
		SET original_folder_id=folder_id, folder_id=NULL, deleted_at=NOW(), deleted_by_membership_id=$2, updated_at=NOW()
		WHERE id=$1 AND deleted_at IS NULL
		RETURNING `+documentColumns,
		documentID, membershipID,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("soft delete document: %w", err)
	}
	return item, nil
}

func (s *PostgresStore) RestoreDocument(ctx context.Context, documentID string, folderID *string) (*Document, error) {
	item, err := scanDocument(s.db.QueryRowContext(ctx, `
		UPDATE documents
		SET folder_id=$2, original_folder_id=NULL, deleted_at=NULL, deleted_by_membership_id=NULL, updated_at=NOW()
		WHERE id=$1 AND deleted_at IS NOT NULL
		RETURNING `+documentColumns,
		documentID, folderID,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("restore document: %w", err)
	}
	return item, nil
}

// PermanentDeleteDocument only removes trashed documents; it reports whether
// a row was deleted.
func (s *PostgresStore) PermanentDeleteDocument(ctx context.Context, documentID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id=$1 AND deleted_at IS NOT NULL`, documentID)
	if err != nil {
		return false, fmt.Errorf("permanent delete document: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("permanent delete rows: %w", err)
	}
	return affected > 0, nil
}

func (s *PostgresStore) DeleteTrashedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE deleted_at IS NOT NULL AND deleted_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge trash: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purge trash rows: %w", err)
	}
	return affected, nil
}

func (s *PostgresStore) IncrementViewCount(ctx context.Context, documentID string) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `
		UPDATE documents SET view_count = view_count + 1 WHERE id=$1 RETURNING view_count
	`, documentID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("increment view count: %w", err)
	}
	return count, nil
}
