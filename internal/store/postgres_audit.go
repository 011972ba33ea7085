package store

import (
	"context"
	"encoding/json"
	"fmt"
)

// InsertAuditEvent appends to audit_events. The table rejects UPDATE and
// DELETE at the database level.
func (s *PostgresStore) InsertAuditEvent(ctx context.Context, event AuditEvent) error {
	var metadata any
	if len(event.Metadata) > 0 {
		encoded, err := json.Marshal(event.Metadata)
		if err != nil {
			return fmt.Errorf("encode audit metadata: %w", err)
		}
		metadata = string(encoded)
	}
	var entityID any
	if event.EntityID != "" {
		entityID = event.EntityID
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_events (id, workspace_id, actor_type, actor_membership_id, actor_collaborator_id, action, entity_type, entity_id, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, event.ID, event.WorkspaceID, event.ActorType, event.ActorMembershipID, event.ActorCollaboratorID,
		event.Action, event.EntityType, entityID, metadata)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListTags(ctx context.Context, documentID string) ([]DocumentTag, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, document_id, name, created_at
		FROM document_tags
		WHERE document_id=$1
		ORDER BY name ASC
	`, documentID)
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	defer rows.Close()

	items := make([]DocumentTag, 0)
	for rows.Next() {
		var item DocumentTag
		if err := rows.Scan(&item.ID, &item.DocumentID, &item.Name, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan tag: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tags: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) InsertTag(ctx context.Context, tag DocumentTag) (*DocumentTag, error) {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO document_tags (id, document_id, name) VALUES ($1, $2, $3)
		RETURNING created_at
	`, tag.ID, tag.DocumentID, tag.Name).Scan(&tag.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrConflict
		}
		return nil, fmt.Errorf("insert tag: %w", err)
	}
	return &tag, nil
}

func (s *PostgresStore) DeleteTag(ctx context.Context, documentID, name string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM document_tags WHERE document_id=$1 AND name=$2`, documentID, name)
	if err != nil {
		return false, fmt.Errorf("delete tag: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete tag rows: %w", err)
	}
	return affected > 0, nil
}
