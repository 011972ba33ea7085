package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

func scanRevision(row rowScanner) (*DocumentRevision, error) {
	var (
		item    DocumentRevision
		content []byte
	)
	if err := row.Scan(&item.ID, &item.DocumentID, &item.Version, &content, &item.ContentSize, &item.Summary, &item.CreatedByMembershipID, &item.CreatedAt); err != nil {
		return nil, err
	}
	item.Content = content
	return &item, nil
}

const revisionColumns = `id, document_id, version, content, content_size, summary, created_by_membership_id, created_at`

func (s *PostgresStore) GetLatestRevision(ctx context.Context, documentID string) (*DocumentRevision, error) {
	item, err := scanRevision(s.db.QueryRowContext(ctx, `
		SELECT `+revisionColumns+`
		FROM document_revisions
		WHERE document_id=$1
		ORDER BY version DESC
		LIMIT 1
	`, documentID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get latest revision: %w", err)
	}
	return item, nil
}

func (s *PostgresStore) GetRevision(ctx context.Context, documentID string, version int) (*DocumentRevision, error) {
	item, err := scanRevision(s.db.QueryRowContext(ctx, `
		SELECT `+revisionColumns+`
		FROM document_revisions
		WHERE document_id=$1 AND version=$2
	`, documentID, version))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get revision: %w", err)
	}
	return item, nil
}

// ListRevisions returns revision metadata newest first; Content is left empty.
func (s *PostgresStore) ListRevisions(ctx context.Context, documentID string) ([]DocumentRevision, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, document_id, version, content_size, summary, created_by_membership_id, created_at
		FROM document_revisions
		WHERE document_id=$1
		ORDER BY version DESC
	`, documentID)
	if err != nil {
		return nil, fmt.Errorf("list revisions: %w", err)
	}
	defer rows.Close()

	items := make([]DocumentRevision, 0)
	for rows.Next() {
		var item DocumentRevision
		if err := rows.Scan(&item.ID, &item.DocumentID, &item.Version, &item.ContentSize, &item.Summary, &item.CreatedByMembershipID, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan revision: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate revisions: %w", err)
	}
	return items, nil
}

// AppendRevision inserts rev and refreshes the document's cached content
// size. A version already taken by another writer yields ErrConflict.
func (s *PostgresStore) AppendRevision(ctx context.Context, rev DocumentRevision) (*DocumentRevision, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin append revision: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := tx.QueryRowContext(ctx, `
		INSERT INTO document_revisions (id, document_id, version, content, content_size, summary, created_by_membership_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`, rev.ID, rev.DocumentID, rev.Version, string(rev.Content), rev.ContentSize, rev.Summary, rev.CreatedByMembershipID).Scan(&rev.CreatedAt); err != nil {
		if isUniqueViolation(err) {
			return nil, ErrConflict
		}
		return nil, fmt.Errorf("insert revision: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE documents SET content_size=$2, updated_at=NOW() WHERE id=$1
	`, rev.DocumentID, rev.ContentSize); err != nil {
		return nil, fmt.Errorf("update content size: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit append revision: %w", err)
	}
	return &rev, nil
}
