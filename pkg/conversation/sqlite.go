// SPDX-License-Identifier: Apache-2.0

package conversation

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rendez-ai/rendez/pkg/core"

	_ "modernc.org/sqlite"
)

const messageTable = "conversation_messages"

// SQLiteStore persists conversation messages in a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a SQLite-backed message store and ensures schema.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	if db == nil {
		return nil, fmt.Errorf("db is nil")
	}
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			conversation_id TEXT NOT NULL,
			message_id INTEGER NOT NULL DEFAULT 0,
			sender_id INTEGER NOT NULL DEFAULT 0,
			username TEXT NOT NULL DEFAULT '',
			first_name TEXT NOT NULL DEFAULT '',
			last_name TEXT NOT NULL DEFAULT '',
			text TEXT NOT NULL,
			timestamp INTEGER NOT NULL,
			source TEXT NOT NULL DEFAULT '',
			is_mention INTEGER NOT NULL DEFAULT 0
		);`, messageTable),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_window ON %s(conversation_id, timestamp);`, messageTable, messageTable),
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return nil, err
		}
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) AppendMessage(ctx context.Context, conversationID string, msg core.Message) error {
	_, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`INSERT INTO %s
			(conversation_id, message_id, sender_id, username, first_name, last_name, text, timestamp, source, is_mention)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, messageTable),
		conversationID, msg.MessageID, msg.SenderID, msg.Username, msg.FirstName, msg.LastName,
		msg.Text, msg.Timestamp.UTC().UnixMilli(), msg.Source, boolToInt(msg.IsMention))
	return err
}

func (s *SQLiteStore) MessagesSince(ctx context.Context, conversationID string, cutoff time.Time) ([]core.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT message_id, sender_id, username, first_name, last_name, text, timestamp, source, is_mention
			FROM %s WHERE conversation_id = ? AND timestamp >= ? ORDER BY timestamp ASC, rowid ASC`, messageTable),
		conversationID, cutoff.UTC().UnixMilli())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []core.Message
	for rows.Next() {
		var msg core.Message
		var ts int64
		var mention int
		if err := rows.Scan(&msg.MessageID, &msg.SenderID, &msg.Username, &msg.FirstName, &msg.LastName,
			&msg.Text, &ts, &msg.Source, &mention); err != nil {
			return nil, err
		}
		msg.Timestamp = time.UnixMilli(ts).UTC()
		msg.IsMention = mention != 0
		out = append(out, msg)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) DeleteOlderThan(ctx context.Context, conversationID string, cutoff time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		fmt.Sprintf("DELETE FROM %s WHERE conversation_id = ? AND timestamp < ?", messageTable),
		conversationID, cutoff.UTC().UnixMilli())
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

var _ MessageStore = (*SQLiteStore)(nil)
