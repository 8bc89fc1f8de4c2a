// SPDX-License-Identifier: Apache-2.0

package plancache

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/rendez-ai/rendez/pkg/core"
)

func testEntry(conversationID, key string) Entry {
	when := time.Date(2026, 3, 11, 19, 0, 0, 0, time.UTC)
	return Entry{
		ConversationID: conversationID,
		IdempotencyKey: key,
		Intent: core.Intent{
			Activity:     core.ActivityRestaurant,
			Participants: []string{"ana", "bo"},
			When:         &when,
			Confidence:   0.9,
		},
		Tools: []core.ToolCall{
			core.NewToolCall("restaurant_search", "find dinner", map[string]any{"location": "Soho"}),
		},
	}
}

func openStores(t *testing.T, ttl time.Duration) map[string]Store {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "plans.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	sqlite, err := NewSQLiteStore(db, ttl)
	if err != nil {
		t.Fatal(err)
	}
	return map[string]Store{
		"memory": NewMemoryStore(ttl),
		"sqlite": sqlite,
	}
}

func TestStoreRoundTrip(t *testing.T) {
	for name, store := range openStores(t, time.Minute) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			want := testEntry("conv-1", "key-1")
			if err := store.Put(ctx, want); err != nil {
				t.Fatalf("put: %v", err)
			}

			got, ok, err := store.Get(ctx, "conv-1")
			if err != nil || !ok {
				t.Fatalf("get: ok=%v err=%v", ok, err)
			}
			if got.IdempotencyKey != "key-1" {
				t.Errorf("key = %q", got.IdempotencyKey)
			}
			if len(got.Tools) != 1 || got.Tools[0].Tool != "restaurant_search" {
				t.Errorf("tools = %+v", got.Tools)
			}
			if got.Tools[0].ActionID != want.Tools[0].ActionID {
				t.Error("action id not preserved")
			}
			if got.Intent.Activity != core.ActivityRestaurant {
				t.Errorf("intent activity = %s", got.Intent.Activity)
			}
			if got.CreatedAt.IsZero() {
				t.Error("created_at not stamped")
			}

			if _, ok, _ := store.Get(ctx, "conv-other"); ok {
				t.Error("unrelated conversation must be absent")
			}
		})
	}
}

func TestStorePutReplaces(t *testing.T) {
	for name, store := range openStores(t, time.Minute) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if err := store.Put(ctx, testEntry("conv-1", "key-1")); err != nil {
				t.Fatal(err)
			}
			if err := store.Put(ctx, testEntry("conv-1", "key-2")); err != nil {
				t.Fatal(err)
			}
			got, ok, err := store.Get(ctx, "conv-1")
			if err != nil || !ok {
				t.Fatalf("get: ok=%v err=%v", ok, err)
			}
			if got.IdempotencyKey != "key-2" {
				t.Errorf("key = %q, want key-2", got.IdempotencyKey)
			}
		})
	}
}

func TestStoreDelete(t *testing.T) {
	for name, store := range openStores(t, time.Minute) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if err := store.Put(ctx, testEntry("conv-1", "key-1")); err != nil {
				t.Fatal(err)
			}
			if err := store.Delete(ctx, "conv-1"); err != nil {
				t.Fatal(err)
			}
			if _, ok, _ := store.Get(ctx, "conv-1"); ok {
				t.Error("deleted entry still present")
			}
		})
	}
}

func TestReadTimeEviction(t *testing.T) {
	base := time.Date(2026, 3, 11, 12, 0, 0, 0, time.UTC)

	mem := NewMemoryStore(15 * time.Minute)
	mem.now = func() time.Time { return base }

	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "plans.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	sqlite, err := NewSQLiteStore(db, 15*time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	sqlite.now = func() time.Time { return base }

	for name, store := range map[string]Store{"memory": mem, "sqlite": sqlite} {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			entry := testEntry("conv-1", "key-1")
			entry.CreatedAt = base.Add(-16 * time.Minute)
			if err := store.Put(ctx, entry); err != nil {
				t.Fatal(err)
			}

			if _, ok, err := store.Get(ctx, "conv-1"); ok || err != nil {
				t.Fatalf("expired entry must read as absent: ok=%v err=%v", ok, err)
			}

			// Entry within TTL stays readable.
			fresh := testEntry("conv-2", "key-2")
			fresh.CreatedAt = base.Add(-14 * time.Minute)
			if err := store.Put(ctx, fresh); err != nil {
				t.Fatal(err)
			}
			if _, ok, _ := store.Get(ctx, "conv-2"); !ok {
				t.Error("unexpired entry evicted")
			}
		})
	}
}

func TestDeleteExpired(t *testing.T) {
	base := time.Date(2026, 3, 11, 12, 0, 0, 0, time.UTC)
	store := NewMemoryStore(15 * time.Minute)
	store.now = func() time.Time { return base }

	ctx := context.Background()
	old := testEntry("conv-old", "k")
	old.CreatedAt = base.Add(-time.Hour)
	fresh := testEntry("conv-fresh", "k")
	fresh.CreatedAt = base
	store.Put(ctx, old)
	store.Put(ctx, fresh)

	removed, err := store.DeleteExpired(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}
	if _, ok, _ := store.Get(ctx, "conv-fresh"); !ok {
		t.Error("fresh entry swept")
	}
}

func TestSweeperRemovesExpired(t *testing.T) {
	store := NewMemoryStore(time.Millisecond)
	ctx := context.Background()
	entry := testEntry("conv-1", "k")
	entry.CreatedAt = time.Now().Add(-time.Hour)
	store.Put(ctx, entry)

	sweeper := NewSweeper(store, 10*time.Millisecond)
	sweeper.Start()
	defer sweeper.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		store.mu.Lock()
		n := len(store.entries)
		store.mu.Unlock()
		if n == 0 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("sweeper did not remove the expired entry")
}

func TestSweeperDisabledAtZeroInterval(t *testing.T) {
	sweeper := NewSweeper(NewMemoryStore(0), 0)
	sweeper.Start()
	// Stop on a never-started sweeper must be a no-op.
	sweeper.Stop()
}
