// SPDX-License-Identifier: Apache-2.0

package conversation

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/rendez-ai/rendez/pkg/core"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "conversation.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func testStores(t *testing.T) map[string]MessageStore {
	t.Helper()
	sqlite, err := NewSQLiteStore(openTestDB(t))
	if err != nil {
		t.Fatalf("new sqlite store: %v", err)
	}
	return map[string]MessageStore{
		"memory": NewMemoryStore(),
		"sqlite": sqlite,
	}
}

func TestMessageStoreWindow(t *testing.T) {
	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for i, text := range []string{"first", "second", "third"} {
				msg := core.Message{
					MessageID: int64(i + 1),
					SenderID:  int64(i + 1),
					Username:  "user",
					Text:      text,
					Timestamp: base.Add(time.Duration(i) * 30 * time.Minute),
					Source:    "telegram",
					IsMention: i == 2,
				}
				if err := store.AppendMessage(ctx, "conv-1", msg); err != nil {
					t.Fatalf("append: %v", err)
				}
			}
			// A different conversation must stay isolated.
			if err := store.AppendMessage(ctx, "conv-2", core.Message{Text: "other", Timestamp: base}); err != nil {
				t.Fatal(err)
			}

			got, err := store.MessagesSince(ctx, "conv-1", base.Add(15*time.Minute))
			if err != nil {
				t.Fatalf("messages since: %v", err)
			}
			if len(got) != 2 {
				t.Fatalf("got %d messages, want 2", len(got))
			}
			if got[0].Text != "second" || got[1].Text != "third" {
				t.Errorf("order = %q, %q", got[0].Text, got[1].Text)
			}
			if !got[1].IsMention {
				t.Error("mention flag lost")
			}
			if !got[0].Timestamp.Equal(base.Add(30 * time.Minute)) {
				t.Errorf("timestamp = %v", got[0].Timestamp)
			}
		})
	}
}

func TestMessageStoreDeleteOlderThan(t *testing.T) {
	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for i := 0; i < 4; i++ {
				msg := core.Message{Text: "m", Timestamp: base.Add(time.Duration(i) * time.Hour)}
				if err := store.AppendMessage(ctx, "conv-1", msg); err != nil {
					t.Fatal(err)
				}
			}

			removed, err := store.DeleteOlderThan(ctx, "conv-1", base.Add(2*time.Hour))
			if err != nil {
				t.Fatalf("delete: %v", err)
			}
			if removed != 2 {
				t.Errorf("removed = %d, want 2", removed)
			}

			remaining, err := store.MessagesSince(ctx, "conv-1", time.Time{})
			if err != nil {
				t.Fatal(err)
			}
			if len(remaining) != 2 {
				t.Errorf("remaining = %d, want 2", len(remaining))
			}
		})
	}
}

func TestMemoryStoreSortsOutOfOrderDelivery(t *testing.T) {
	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	store := NewMemoryStore()
	ctx := context.Background()

	store.AppendMessage(ctx, "c", core.Message{Text: "late", Timestamp: base.Add(time.Hour)})
	store.AppendMessage(ctx, "c", core.Message{Text: "early", Timestamp: base})

	got, err := store.MessagesSince(ctx, "c", time.Time{})
	if err != nil {
		t.Fatal(err)
	}
	if got[0].Text != "early" || got[1].Text != "late" {
		t.Errorf("order = %q, %q", got[0].Text, got[1].Text)
	}
}
