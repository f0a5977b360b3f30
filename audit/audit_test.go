package audit_test

import (
	"context"
	"errors"
	"testing"

	"github.com/hazyhaar/fieldback/audit"
	"github.com/hazyhaar/fieldback/dbopen"
	_ "modernc.org/sqlite"
)

func newLogger(t *testing.T) *audit.Logger {
	t.Helper()
	db := dbopen.OpenMemory(t, dbopen.WithSchema(audit.Schema))
	l := audit.NewLogger(db, 16, nil)
	t.Cleanup(l.Close)
	return l
}

func TestRecordAndRecent(t *testing.T) {
	ctx := context.Background()
	l := newLogger(t)

	l.Record(audit.EventInsightCreated, map[string]string{"kind": "FIELD_INSIGHT"},
		audit.ForTenant("ten_1"), audit.ByActor("usr_1"), audit.OnEntity("ins_1"))
	l.Record(audit.EventInsightEnriched, nil, audit.OnEntity("ins_1"))
	l.Close()

	events, err := l.Recent(ctx, "", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 2 {
		t.Fatalf("events = %d, want 2", len(events))
	}

	created, err := l.Recent(ctx, audit.EventInsightCreated, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(created) != 1 {
		t.Fatalf("filtered = %d, want 1", len(created))
	}
	e := created[0]
	if e.TenantID != "ten_1" || e.ActorID != "usr_1" || e.EntityID != "ins_1" {
		t.Fatalf("event = %+v", e)
	}
	if e.Details != `{"kind":"FIELD_INSIGHT"}` {
		t.Fatalf("Details = %q", e.Details)
	}
	if !e.Success {
		t.Fatal("Success = false")
	}
}

func TestRecordFailure(t *testing.T) {
	ctx := context.Background()
	l := newLogger(t)

	l.Record(audit.EventReportGenerated, nil, audit.Failed(errors.New("render: boom")))
	l.Close()

	events, err := l.Recent(ctx, audit.EventReportGenerated, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 {
		t.Fatalf("events = %d", len(events))
	}
	if events[0].Success {
		t.Fatal("Success = true, want false")
	}
	if events[0].ErrorMsg != "render: boom" {
		t.Fatalf("ErrorMsg = %q", events[0].ErrorMsg)
	}
}

func TestCloseDrainsBuffer(t *testing.T) {
	ctx := context.Background()
	l := newLogger(t)

	for range 10 {
		l.Record(audit.EventQuestionAsked, nil)
	}
	l.Close()

	events, err := l.Recent(ctx, audit.EventQuestionAsked, 100)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 10 {
		t.Fatalf("events = %d, want 10", len(events))
	}
}
