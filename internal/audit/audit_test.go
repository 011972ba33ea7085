package audit

import (
	"context"
	"errors"
	"testing"

	"odocs/api/internal/store"
)

type fakeSink struct {
	events []store.AuditEvent
	err    error
}

func (f *fakeSink) InsertAuditEvent(ctx context.Context, event store.AuditEvent) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	f.events = append(f.events, event)
	return f.err
}

func TestRecordMapsActor(t *testing.T) {
	sink := &fakeSink{}
	NewRecorder(sink).Record(context.Background(), Event{
		WorkspaceID:    "ws-1",
		ActorType:      ActorExternal,
		CollaboratorID: "collab-1",
		Action:         "share_link.external_accepted",
		EntityType:     "document_share_link",
		EntityID:       "link-1",
	})

	if len(sink.events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(sink.events))
	}
	got := sink.events[0]
	if got.ID == "" || got.ActorType != ActorExternal || got.ActorMembershipID != nil {
		t.Fatalf("unexpected event %+v", got)
	}
	if got.ActorCollaboratorID == nil || *got.ActorCollaboratorID != "collab-1" {
		t.Fatalf("expected collaborator actor, got %+v", got.ActorCollaboratorID)
	}
}

func TestRecordDefaultsToMembershipActor(t *testing.T) {
	sink := &fakeSink{}
	NewRecorder(sink).Record(context.Background(), Event{MembershipID: "mem-1", Action: "share_link.revoked"})
	if sink.events[0].ActorType != ActorMembership {
		t.Fatalf("expected membership actor, got %s", sink.events[0].ActorType)
	}
}

func TestRecordSwallowsSinkFailure(t *testing.T) {
	sink := &fakeSink{err: errors.New("db down")}
	NewRecorder(sink).Record(context.Background(), Event{Action: "share_link.created"})
	if len(sink.events) != 1 {
		t.Fatal("expected the write to be attempted")
	}
}

func TestRecordSurvivesCancelledRequest(t *testing.T) {
	sink := &fakeSink{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	NewRecorder(sink).Record(ctx, Event{Action: "share_link.revoked"})
	if len(sink.events) != 1 {
		t.Fatal("expected the event to be written after the request ended")
	}
}

func TestNilRecorderIsNoop(t *testing.T) {
	var r *Recorder
	r.Record(context.Background(), Event{Action: "noop"})
}
