// SPDX-License-Identifier: Apache-2.0

package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rendez-ai/rendez/pkg/core"

	_ "modernc.org/sqlite"
)

const auditTable = "agent_audit_records"

// SQLiteStore persists audit records in SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a SQLite-backed audit store and ensures schema.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	if db == nil {
		return nil, errors.New("db is nil")
	}
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL,
			trigger_source TEXT NOT NULL DEFAULT '',
			action_type TEXT NOT NULL,
			intent_json BLOB NOT NULL,
			tool_calls_json BLOB,
			response_text TEXT NOT NULL DEFAULT '',
			success INTEGER NOT NULL,
			duration_ms INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL
		);`, auditTable),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_conversation ON %s(conversation_id, created_at);`, auditTable, auditTable),
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return nil, err
		}
	}
	return &SQLiteStore{db: db}, nil
}

// Record stores a single audit record.
func (s *SQLiteStore) Record(ctx context.Context, rec Record) error {
	rec = Normalize(rec)

	intentJSON, err := json.Marshal(rec.Intent)
	if err != nil {
		return err
	}
	var callsJSON []byte
	if len(rec.ToolCalls) > 0 {
		callsJSON, err = json.Marshal(rec.ToolCalls)
		if err != nil {
			return err
		}
	}

	_, err = s.db.ExecContext(ctx,
		fmt.Sprintf(`INSERT INTO %s
			(id, conversation_id, trigger_source, action_type, intent_json, tool_calls_json, response_text, success, duration_ms, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, auditTable),
		rec.ID, rec.ConversationID, rec.TriggerSource, rec.ActionType,
		intentJSON, callsJSON, rec.ResponseText, boolToInt(rec.Success),
		rec.DurationMs, rec.CreatedAt.UTC().UnixMilli())
	return err
}

// List returns records matching the filter, oldest first.
func (s *SQLiteStore) List(ctx context.Context, filter Filter) ([]Record, error) {
	query := fmt.Sprintf(`SELECT id, conversation_id, trigger_source, action_type, intent_json, tool_calls_json, response_text, success, duration_ms, created_at FROM %s`, auditTable)
	var args []any
	where := ""
	addFilter := func(clause string, value any) {
		if where == "" {
			where = " WHERE " + clause
		} else {
			where += " AND " + clause
		}
		args = append(args, value)
	}
	if filter.ConversationID != "" {
		addFilter("conversation_id = ?", filter.ConversationID)
	}
	if filter.ActionType != "" {
		addFilter("action_type = ?", filter.ActionType)
	}
	query += where + " ORDER BY created_at ASC, rowid ASC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			rec       Record
			intentRaw []byte
			callsRaw  []byte
			success   int
			created   int64
		)
		if err := rows.Scan(&rec.ID, &rec.ConversationID, &rec.TriggerSource, &rec.ActionType,
			&intentRaw, &callsRaw, &rec.ResponseText, &success, &rec.DurationMs, &created); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(intentRaw, &rec.Intent); err != nil {
			return nil, err
		}
		if len(callsRaw) > 0 {
			var calls []core.ToolCall
			if err := json.Unmarshal(callsRaw, &calls); err != nil {
				return nil, err
			}
			rec.ToolCalls = calls
		}
		rec.Success = success != 0
		rec.CreatedAt = time.UnixMilli(created).UTC()
		out = append(out, rec)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

var _ Store = (*SQLiteStore)(nil)
