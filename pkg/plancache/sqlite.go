// SPDX-License-Identifier: Apache-2.0

package plancache

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rendez-ai/rendez/pkg/core"

	_ "modernc.org/sqlite"
)

const planTable = "plan_cache"

// SQLiteStore persists proposed plans in a SQLite database so proposals
// survive process restarts within their TTL.
type SQLiteStore struct {
	db  *sql.DB
	ttl time.Duration
	now func() time.Time
}

// NewSQLiteStore creates a SQLite-backed plan cache and ensures schema.
// Non-positive ttl falls back to DefaultTTL.
func NewSQLiteStore(db *sql.DB, ttl time.Duration) (*SQLiteStore, error) {
	if db == nil {
		return nil, fmt.Errorf("db is nil")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	_, err := db.Exec(fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		conversation_id TEXT PRIMARY KEY,
		idempotency_key TEXT NOT NULL,
		payload BLOB NOT NULL,
		created_at INTEGER NOT NULL
	);`, planTable))
	if err != nil {
		return nil, err
	}
	return &SQLiteStore{db: db, ttl: ttl, now: time.Now}, nil
}

type planPayload struct {
	Intent core.Intent     `json:"intent"`
	Tools  []core.ToolCall `json:"tools"`
}

func (s *SQLiteStore) Put(ctx context.Context, entry Entry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.now()
	}
	payload, err := json.Marshal(planPayload{Intent: entry.Intent, Tools: entry.Tools})
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		fmt.Sprintf(`INSERT INTO %s (conversation_id, idempotency_key, payload, created_at) VALUES (?, ?, ?, ?)
			ON CONFLICT(conversation_id) DO UPDATE SET
			idempotency_key = excluded.idempotency_key,
			payload = excluded.payload,
			created_at = excluded.created_at`, planTable),
		entry.ConversationID, entry.IdempotencyKey, payload, entry.CreatedAt.UTC().UnixMilli())
	return err
}

func (s *SQLiteStore) Get(ctx context.Context, conversationID string) (Entry, bool, error) {
	var (
		key     string
		payload []byte
		created int64
	)
	err := s.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT idempotency_key, payload, created_at FROM %s WHERE conversation_id = ?", planTable),
		conversationID).Scan(&key, &payload, &created)
	if err != nil {
		if err == sql.ErrNoRows {
			return Entry{}, false, nil
		}
		return Entry{}, false, err
	}

	entry := Entry{
		ConversationID: conversationID,
		IdempotencyKey: key,
		CreatedAt:      time.UnixMilli(created).UTC(),
	}
	if entry.Expired(s.now(), s.ttl) {
		// Read-time eviction; a failure here only delays the sweeper.
		_, _ = s.db.ExecContext(ctx,
			fmt.Sprintf("DELETE FROM %s WHERE conversation_id = ?", planTable), conversationID)
		return Entry{}, false, nil
	}

	var body planPayload
	if err := json.Unmarshal(payload, &body); err != nil {
		return Entry{}, false, err
	}
	entry.Intent = body.Intent
	entry.Tools = body.Tools
	return entry, true, nil
}

func (s *SQLiteStore) Delete(ctx context.Context, conversationID string) error {
	_, err := s.db.ExecContext(ctx,
		fmt.Sprintf("DELETE FROM %s WHERE conversation_id = ?", planTable), conversationID)
	return err
}

func (s *SQLiteStore) DeleteExpired(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-s.ttl).UTC().UnixMilli()
	result, err := s.db.ExecContext(ctx,
		fmt.Sprintf("DELETE FROM %s WHERE created_at < ?", planTable), cutoff)
	if err != nil {
		return 0, err
	}
	affected, err := result.RowsAffected()
	return int(affected), err
}

var _ Store = (*SQLiteStore)(nil)
