// Package db tests run against a temp-file SQLite database.
package db

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	d, err := Open(context.Background(), filepath.Join(t.TempDir(), "events.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func TestRecordAndListEvents(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()

	id1, err := d.RecordEvent(ctx, EventLoginFailure, "remaining=4", "127.0.0.1")
	if err != nil {
		t.Fatalf("RecordEvent: %v", err)
	}
	id2, err := d.RecordEvent(ctx, EventLoginSuccess, "", "127.0.0.1")
	if err != nil {
		t.Fatalf("RecordEvent: %v", err)
	}
	if id1 == id2 {
		t.Fatalf("event ids must be unique")
	}

	events, err := d.ListEvents(ctx, 10)
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	kinds := map[string]bool{}
	for _, e := range events {
		kinds[e.Kind] = true
		if e.CreatedAt == 0 {
			t.Fatalf("event missing created_at: %+v", e)
		}
	}
	if !kinds[EventLoginFailure] || !kinds[EventLoginSuccess] {
		t.Fatalf("unexpected kinds: %+v", kinds)
	}
}

func TestRecordEventRequiresKind(t *testing.T) {
	d := openTestDB(t)
	if _, err := d.RecordEvent(context.Background(), "", "", ""); err == nil {
		t.Fatalf("expected error for empty kind")
	}
}

func TestListEventsLimit(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if _, err := d.RecordEvent(ctx, EventLoginFailure, "", ""); err != nil {
			t.Fatalf("RecordEvent: %v", err)
		}
	}
	events, err := d.ListEvents(ctx, 3)
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
}

func TestPruneEvents(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()
	if _, err := d.RecordEvent(ctx, EventLoginSuccess, "", ""); err != nil {
		t.Fatalf("RecordEvent: %v", err)
	}
	// Nothing is older than an hour yet.
	n, err := d.PruneEvents(ctx, time.Hour)
	if err != nil {
		t.Fatalf("PruneEvents: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected 0 pruned, got %d", n)
	}
	// A zero cutoff removes everything recorded before "now".
	n, err = d.PruneEvents(ctx, -time.Second)
	if err != nil {
		t.Fatalf("PruneEvents: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 pruned, got %d", n)
	}
}
