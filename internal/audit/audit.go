// Package audit records workspace events on a best-effort basis.
package audit

import (
	"context"
	"log"
	"time"

	"odocs/api/internal/store"
	"odocs/api/internal/util"
)

const (
	ActorMembership = "membership"
	ActorExternal   = "external"
)

type Sink interface {
	InsertAuditEvent(ctx context.Context, event store.AuditEvent) error
}

type Event struct {
	WorkspaceID    string
	ActorType      string
	MembershipID   string
	CollaboratorID string
	Action         string
	EntityType     string
	EntityID       string
	Metadata       map[string]any
}

type Recorder struct {
	sink    Sink
	timeout time.Duration
}

func NewRecorder(sink Sink) *Recorder {
	return &Recorder{sink: sink, timeout: 3 * time.Second}
}

// Record writes the event and logs any failure. It never reports an error
// to the caller and does not inherit the caller's cancellation.
func (r *Recorder) Record(ctx context.Context, event Event) {
	if r == nil || r.sink == nil {
		return
	}
	if event.ActorType == "" {
		event.ActorType = ActorMembership
	}

	row := store.AuditEvent{
		ID:          util.NewID(),
		WorkspaceID: event.WorkspaceID,
		ActorType:   event.ActorType,
		Action:      event.Action,
		EntityType:  event.EntityType,
		EntityID:    event.EntityID,
		Metadata:    event.Metadata,
	}
	if event.MembershipID != "" {
		row.ActorMembershipID = &event.MembershipID
	}
	if event.CollaboratorID != "" {
		row.ActorCollaboratorID = &event.CollaboratorID
	}

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
	defer cancel()
	if err := r.sink.InsertAuditEvent(writeCtx, row); err != nil {
		log.Printf("audit: record %s on %s %s: %v", event.Action, event.EntityType, event.EntityID, err)
	}
}
