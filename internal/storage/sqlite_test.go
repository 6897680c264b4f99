package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	logx "eventpush/pkg/logx"
)

func openTestStore(t *testing.T) Store {
	t.Helper()
	st, err := Open(Config{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "events.db")}, logx.Nop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestCreateAndListOrderedByEventDatetime(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	later, err := st.CreateEvent(ctx, NewEvent{Name: "B", EventDatetime: "2024-06-02 10:00", PublishDatetime: "2024-06-01 09:00", DisplayText: "b"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	earlier, err := st.CreateEvent(ctx, NewEvent{Name: "A", EventDatetime: "2024-06-01 10:00", PublishDatetime: "2024-06-01 09:00", DisplayText: "a", Deadline: "2024-06-01"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if later.Sent || earlier.Sent {
		t.Fatalf("new events must be unsent")
	}
	if later.Deadline != nil {
		t.Fatalf("empty deadline should be stored as null, got %q", *later.Deadline)
	}
	if earlier.Deadline == nil || *earlier.Deadline != "2024-06-01" {
		t.Fatalf("deadline not kept: %v", earlier.Deadline)
	}
	if earlier.CreatedAt.IsZero() {
		t.Fatalf("created_at not set")
	}

	all, err := st.ListEvents(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 2 || all[0].ID != earlier.ID || all[1].ID != later.ID {
		t.Fatalf("unexpected order: %+v", all)
	}
}

func TestMarkSentExcludesFromPending(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	ev, err := st.CreateEvent(ctx, NewEvent{Name: "X", EventDatetime: "2024-01-01 10:00", PublishDatetime: "2024-01-01 09:00", DisplayText: "x"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	pending, err := st.ListPending(ctx)
	if err != nil || len(pending) != 1 {
		t.Fatalf("pending before: %v %v", pending, err)
	}

	at := time.Date(2024, 1, 1, 9, 0, 5, 0, time.UTC)
	ok, err := st.MarkSent(ctx, ev.ID, at)
	if err != nil || !ok {
		t.Fatalf("mark sent: ok=%v err=%v", ok, err)
	}
	ok, err = st.MarkSent(ctx, ev.ID, at)
	if err != nil || ok {
		t.Fatalf("second mark sent should be a no-op: ok=%v err=%v", ok, err)
	}

	pending, err = st.ListPending(ctx)
	if err != nil || len(pending) != 0 {
		t.Fatalf("pending after: %v %v", pending, err)
	}
	n, err := st.CountPending(ctx)
	if err != nil || n != 0 {
		t.Fatalf("count pending: %d %v", n, err)
	}

	got, err := st.GetEvent(ctx, ev.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !got.Sent || got.SentAt == nil || !got.SentAt.Equal(at) {
		t.Fatalf("sent state: %+v", got)
	}
}

func TestDeleteMissingAndMarkSentAfterDelete(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	if err := st.DeleteEvent(ctx, 999); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := st.GetEvent(ctx, 999); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	ev, err := st.CreateEvent(ctx, NewEvent{Name: "gone", EventDatetime: "2024-01-01 10:00", PublishDatetime: "2024-01-01 09:00", DisplayText: "g"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := st.DeleteEvent(ctx, ev.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	ok, err := st.MarkSent(ctx, ev.ID, time.Now())
	if err != nil || ok {
		t.Fatalf("mark sent on deleted row: ok=%v err=%v", ok, err)
	}
	all, err := st.ListEvents(ctx)
	if err != nil || len(all) != 0 {
		t.Fatalf("deleted row resurrected: %v %v", all, err)
	}
}

func TestAuditPrune(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	now := time.Now()

	for _, at := range []time.Time{now.Add(-48 * time.Hour), now.Add(-time.Hour)} {
		if err := st.AppendAudit(ctx, AuditEntry{At: at, Actor: "admin", Action: "event.create", EventID: 1, OK: true}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	n, err := st.PruneAudit(ctx, now.Add(-24*time.Hour))
	if err != nil || n != 1 {
		t.Fatalf("prune: n=%d err=%v", n, err)
	}
}

func TestDedupRoundTrip(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	if _, ok, err := st.GetDedup(ctx, "k"); err != nil || ok {
		t.Fatalf("missing key: ok=%v err=%v", ok, err)
	}
	until := time.UnixMilli(time.Now().Add(time.Minute).UnixMilli())
	if err := st.PutDedup(ctx, "k", until); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, ok, err := st.GetDedup(ctx, "k")
	if err != nil || !ok || !got.Equal(until) {
		t.Fatalf("get: %v %v %v", got, ok, err)
	}
}

func TestClosedStore(t *testing.T) {
	st := openTestStore(t)
	if err := st.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := st.ListEvents(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	if _, err := Open(Config{Driver: "postgres", Path: "x"}, logx.Nop()); err == nil {
		t.Fatal("expected error")
	}
}
