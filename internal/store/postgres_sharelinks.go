package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const shareLinkColumns = `id, document_id, workspace_id, token, access_level, password_hash, expires_at, revoked_at,
	created_by_membership_id, allow_external_edit, access_type, created_at, updated_at`

func scanShareLink(row rowScanner) (*ShareLink, error) {
	var item ShareLink
	if err := row.Scan(
		&item.ID,
		&item.DocumentID,
		&item.WorkspaceID,
		&item.Token,
		&item.AccessLevel,
		&item.PasswordHash,
		&item.ExpiresAt,
		&item.RevokedAt,
		&item.CreatedByMembershipID,
		&item.AllowExternalEdit,
		&item.AccessType,
		&item.CreatedAt,
		&item.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *PostgresStore) getShareLink(ctx context.Context, op, where string, args ...any) (*ShareLink, error) {
	item, err := scanShareLink(s.db.QueryRowContext(ctx, `SELECT `+shareLinkColumns+` FROM document_share_links WHERE `+where, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return item, nil
}

func (s *PostgresStore) GetShareLink(ctx context.Context, linkID string) (*ShareLink, error) {
	return s.getShareLink(ctx, "get share link", `id=$1`, linkID)
}

// GetLatestShareLinkForDocument returns the newest record for the document,
// revoked or not.
func (s *PostgresStore) GetLatestShareLinkForDocument(ctx context.Context, documentID string) (*ShareLink, error) {
	return s.getShareLink(ctx, "get document share link", `document_id=$1 ORDER BY created_at DESC LIMIT 1`, documentID)
}

// GetShareLinkByToken ignores revoked links; expiry is left to the caller.
func (s *PostgresStore) GetShareLinkByToken(ctx context.Context, token string) (*ShareLink, error) {
	return s.getShareLink(ctx, "get share link by token", `token=$1 AND revoked_at IS NULL`, token)
}

func (s *PostgresStore) ListShareLinks(ctx context.Context, documentID string) ([]ShareLink, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+shareLinkColumns+`
		FROM document_share_links
		WHERE document_id=$1
		ORDER BY created_at DESC
	`, documentID)
	if err != nil {
		return nil, fmt.Errorf("list share links: %w", err)
	}
	return scanShareLinks(rows)
}

// ListPublicShareLinksByMembership returns the active, password-free public
// links created by one membership.
func (s *PostgresStore) ListPublicShareLinksByMembership(ctx context.Context, membershipID string) ([]ShareLink, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+shareLinkColumns+`
		FROM document_share_links
		WHERE created_by_membership_id=$1
		  AND access_type='public'
		  AND password_hash IS NULL
		  AND revoked_at IS NULL
		  AND (expires_at IS NULL OR expires_at > NOW())
		ORDER BY created_at DESC
	`, membershipID)
	if err != nil {
		return nil, fmt.Errorf("list public share links: %w", err)
	}
	return scanShareLinks(rows)
}

func scanShareLinks(rows *sql.Rows) ([]ShareLink, error) {
	defer rows.Close()
	items := make([]ShareLink, 0)
	for rows.Next() {
		item, err := scanShareLink(rows)
		if err != nil {
			return nil, fmt.Errorf("scan share link: %w", err)
		}
		items = append(items, *item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate share links: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) InsertShareLink(ctx context.Context, link ShareLink) (*ShareLink, error) {
	item, err := scanShareLink(s.db.QueryRowContext(ctx, `
		INSERT INTO document_share_links (id, document_id, workspace_id, token, access_level, password_hash, expires_at, created_by_membership_id, allow_external_edit, access_type)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING `+shareLinkColumns,
		link.ID, link.DocumentID, link.WorkspaceID, link.Token, link.AccessLevel, link.PasswordHash, link.ExpiresAt,
		link.CreatedByMembershipID, link.AllowExternalEdit, link.AccessType,
	))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrConflict
		}
		return nil, fmt.Errorf("insert share link: %w", err)
	}
	return item, nil
}

// ReactivateShareLink clears revocation and applies the new options while
// keeping the token and the external-edit flag.
func (s *PostgresStore) ReactivateShareLink(ctx context.Context, linkID string, in ShareLinkReactivation) (*ShareLink, error) {
	item, err := scanShareLink(s.db.QueryRowContext(ctx, `
		UPDATE document_share_links
		SET revoked_at=NULL,
			access_level=$2,
			expires_at=$3,
			password_hash=COALESCE($4, password_hash),
			access_type=$5,
			updated_at=NOW()
		WHERE id=$1
		RETURNING `+shareLinkColumns,
		linkID, in.AccessLevel, in.ExpiresAt, in.PasswordHash, in.AccessType,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reactivate share link: %w", err)
	}
	return item, nil
}

func (s *PostgresStore) UpdateShareLinkOptions(ctx context.Context, linkID string, allowExternalEdit *bool, accessType *string) (*ShareLink, error) {
	item, err := scanShareLink(s.db.QueryRowContext(ctx, `
		UPDATE document_share_links
		SET allow_external_edit=COALESCE($2, allow_external_edit),
			access_type=COALESCE($3, access_type),
			updated_at=NOW()
		WHERE id=$1
		RETURNING `+shareLinkColumns,
		linkID, allowExternalEdit, accessType,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("update share link options: %w", err)
	}
	return item, nil
}

// RevokeShareLink revokes the link and every live guest session under it.
func (s *PostgresStore) RevokeShareLink(ctx context.Context, linkID string) (*ShareLink, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin revoke share link: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	item, err := scanShareLink(tx.QueryRowContext(ctx, `
		UPDATE document_share_links
		SET revoked_at=COALESCE(revoked_at, NOW()), updated_at=NOW()
		WHERE id=$1
		RETURNING `+shareLinkColumns,
		linkID,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("revoke share link: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE document_share_link_sessions SET revoked_at=NOW()
		WHERE share_link_id=$1 AND revoked_at IS NULL
	`, linkID); err != nil {
		return nil, fmt.Errorf("revoke share link sessions: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit revoke share link: %w", err)
	}
	return item, nil
}

// EnsureCollaborator creates the collaborator for email if none exists. A
// concurrent insert for the same email falls through to the existing row.
func (s *PostgresStore) EnsureCollaborator(ctx context.Context, id, email string, displayName *string) (*ExternalCollaborator, error) {
	var item ExternalCollaborator
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO external_collaborators (id, email, display_name)
		VALUES ($1, $2, $3)
		ON CONFLICT (email) DO UPDATE SET email=EXCLUDED.email
		RETURNING id, email, display_name, created_at
	`, id, email, displayName).Scan(&item.ID, &item.Email, &item.DisplayName, &item.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("ensure collaborator: %w", err)
	}
	return &item, nil
}

func (s *PostgresStore) InsertShareLinkSession(ctx context.Context, session ShareLinkSession) (*ShareLinkSession, error) {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO document_share_link_sessions (id, share_link_id, collaborator_id, token_hash, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`, session.ID, session.ShareLinkID, session.CollaboratorID, session.TokenHash, session.ExpiresAt).Scan(&session.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert share link session: %w", err)
	}
	return &session, nil
}

func (s *PostgresStore) GetShareLinkSessionByTokenHash(ctx context.Context, tokenHash string) (*ShareLinkSession, error) {
	var item ShareLinkSession
	err := s.db.QueryRowContext(ctx, `
		SELECT id, share_link_id, collaborator_id, token_hash, expires_at, revoked_at, created_at
		FROM document_share_link_sessions
		WHERE token_hash=$1
	`, tokenHash).Scan(&item.ID, &item.ShareLinkID, &item.CollaboratorID, &item.TokenHash, &item.ExpiresAt, &item.RevokedAt, &item.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get share link session: %w", err)
	}
	return &item, nil
}

func (s *PostgresStore) RevokeShareLinkSessions(ctx context.Context, linkID string) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE document_share_link_sessions SET revoked_at=$2
		WHERE share_link_id=$1 AND revoked_at IS NULL
	`, linkID, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("revoke share link sessions: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("revoke share link sessions rows: %w", err)
	}
	return affected, nil
}
