package roster

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"herald/internal/broadcast"
	"herald/pkg/logx"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := Open(Config{
		Path:        filepath.Join(t.TempDir(), "roster.db"),
		BusyTimeout: 5 * time.Second,
	}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestOpenRequiresPath(t *testing.T) {
	t.Parallel()
	if _, err := Open(Config{}, logx.Nop()); err == nil {
		t.Fatal("empty path accepted")
	}
}

func TestUpsertAndSnapshot(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()

	for _, r := range []broadcast.Recipient{
		{ID: "100", Handle: "alice"},
		{ID: "200"},
		{ID: "300", Handle: "carol"},
	} {
		if err := st.Upsert(ctx, r); err != nil {
			t.Fatalf("Upsert(%s): %v", r.ID, err)
		}
	}

	got, err := st.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("snapshot size = %d, want 3", len(got))
	}
	// Insertion order is the dispatch order.
	for i, want := range []string{"100", "200", "300"} {
		if got[i].ID != want {
			t.Fatalf("snapshot[%d] = %s, want %s", i, got[i].ID, want)
		}
	}
	if got[0].Handle != "alice" || got[1].Handle != "" {
		t.Fatalf("handles = %q/%q", got[0].Handle, got[1].Handle)
	}
}

func TestUpsertRefreshesHandle(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()

	if err := st.Upsert(ctx, broadcast.Recipient{ID: "100", Handle: "old"}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if err := st.Upsert(ctx, broadcast.Recipient{ID: " 100 ", Handle: " new "}); err != nil {
		t.Fatalf("Upsert (refresh): %v", err)
	}

	got, err := st.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("snapshot size = %d, want 1 (same id)", len(got))
	}
	if got[0].Handle != "new" {
		t.Fatalf("handle = %q, want refreshed value", got[0].Handle)
	}
}

func TestUpsertRejectsBlankID(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	if err := st.Upsert(context.Background(), broadcast.Recipient{ID: "  "}); err == nil {
		t.Fatal("blank id accepted")
	}
}

func TestRemoveAndCount(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"1", "2", "3"} {
		if err := st.Upsert(ctx, broadcast.Recipient{ID: id}); err != nil {
			t.Fatalf("Upsert: %v", err)
		}
	}
	if err := st.Remove(ctx, "2"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	n, err := st.Count(ctx)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 2 {
		t.Fatalf("count = %d, want 2", n)
	}
	// Removing an unknown id is a no-op.
	if err := st.Remove(ctx, "nope"); err != nil {
		t.Fatalf("Remove(unknown): %v", err)
	}
}

func TestSnapshotIsPointInTime(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()

	if err := st.Upsert(ctx, broadcast.Recipient{ID: "1"}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	snap, err := st.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if err := st.Upsert(ctx, broadcast.Recipient{ID: "2"}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if len(snap) != 1 {
		t.Fatalf("earlier snapshot grew to %d entries", len(snap))
	}
}
