package chatstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"github.com/go-go-golems/pinchchat/pkg/history"
)

type SQLiteCacheStore struct {
	db  *sql.DB
	now func() time.Time
}

var _ CacheStore = &SQLiteCacheStore{}

func NewSQLiteCacheStore(dsn string) (*SQLiteCacheStore, error) {
	if dsn == "" {
		return nil, errors.New("sqlite cache store: empty dsn")
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	s := &SQLiteCacheStore{db: db, now: time.Now}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteCacheStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteCacheStore) migrate() error {
	if s == nil || s.db == nil {
		return errors.New("sqlite cache store: db is nil")
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS history_messages (
		  session_key TEXT NOT NULL,
		  position INTEGER NOT NULL,
		  message_id TEXT NOT NULL,
		  role TEXT NOT NULL,
		  timestamp_ms INTEGER NOT NULL,
		  is_archived INTEGER NOT NULL DEFAULT 0,
		  is_separator INTEGER NOT NULL DEFAULT 0,
		  content_hash TEXT NOT NULL,
		  message_json TEXT NOT NULL,
		  PRIMARY KEY (session_key, position),
		  UNIQUE (session_key, message_id)
		);`,
		`CREATE TABLE IF NOT EXISTS history_sessions (
		  session_key TEXT PRIMARY KEY,
		  created_at_ms INTEGER NOT NULL,
		  updated_at_ms INTEGER NOT NULL,
		  message_count INTEGER NOT NULL DEFAULT 0,
		  archived_count INTEGER NOT NULL DEFAULT 0,
		  last_compacted_ms INTEGER NOT NULL DEFAULT 0
		);`,
		`CREATE INDEX IF NOT EXISTS history_sessions_by_updated
		  ON history_sessions(updated_at_ms DESC, session_key ASC);`,
	}
	for _, st := range stmts {
		if _, err := s.db.Exec(st); err != nil {
			return errors.Wrap(err, "sqlite cache store: migrate")
		}
	}
	return nil
}

func (s *SQLiteCacheStore) Load(ctx context.Context, sessionKey string) ([]history.Message, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("sqlite cache store: db is nil")
	}
	sessionKey = normalizeSessionKey(sessionKey)
	if sessionKey == "" {
		return nil, errors.New("sqlite cache store: session key is empty")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT message_json
		FROM history_messages
		WHERE session_key = ?
		ORDER BY position ASC
	`, sessionKey)
	if err != nil {
		return nil, errors.Wrap(err, "sqlite cache store: query history")
	}
	defer func() { _ = rows.Close() }()

	out := []history.Message{}
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, errors.Wrap(err, "sqlite cache store: scan message")
		}
		var m history.Message
		if err := json.Unmarshal([]byte(raw), &m); err != nil {
			return nil, errors.Wrap(err, "sqlite cache store: unmarshal message")
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "sqlite cache store: iterate history")
	}
	return out, nil
}

func (s *SQLiteCacheStore) Save(ctx context.Context, sessionKey string, messages []history.Message) error {
	if s == nil || s.db == nil {
		return errors.New("sqlite cache store: db is nil")
	}
	sessionKey = normalizeSessionKey(sessionKey)
	if sessionKey == "" {
		return errors.New("sqlite cache store: session key is empty")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	msgs := history.DedupeByID(messages)
	now := s.now().UnixMilli()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	existing, found, err := getSessionRecord(ctx, tx, sessionKey)
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM history_messages WHERE session_key = ?`, sessionKey); err != nil {
		return errors.Wrap(err, "sqlite cache store: clear history")
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO history_messages(
			session_key, position, message_id, role, timestamp_ms,
			is_archived, is_separator, content_hash, message_json
		) VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return errors.Wrap(err, "sqlite cache store: prepare insert")
	}
	defer func() { _ = stmt.Close() }()

	for i, m := range msgs {
		raw, err := json.Marshal(m)
		if err != nil {
			return errors.Wrapf(err, "sqlite cache store: marshal message %q", m.ID)
		}
		hash, err := MessageContentHash(m)
		if err != nil {
			return errors.Wrapf(err, "sqlite cache store: hash message %q", m.ID)
		}
		if _, err := stmt.ExecContext(ctx,
			sessionKey, i, m.ID, string(m.Role), m.Timestamp,
			boolToInt(m.IsArchived), boolToInt(m.IsCompactionSeparator), hash, string(raw),
		); err != nil {
			return errors.Wrapf(err, "sqlite cache store: insert message %q", m.ID)
		}
	}

	rec := nextSessionRecord(existing, found, sessionKey, msgs, now)
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO history_sessions(
			session_key, created_at_ms, updated_at_ms, message_count, archived_count, last_compacted_ms
		) VALUES(?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_key) DO UPDATE SET
			updated_at_ms = excluded.updated_at_ms,
			message_count = excluded.message_count,
			archived_count = excluded.archived_count,
			last_compacted_ms = excluded.last_compacted_ms
	`, rec.SessionKey, rec.CreatedAtMs, rec.UpdatedAtMs, rec.MessageCount, rec.ArchivedCount, rec.LastCompactedMs); err != nil {
		return errors.Wrap(err, "sqlite cache store: upsert session")
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "sqlite cache store: commit")
	}
	return nil
}

func (s *SQLiteCacheStore) Delete(ctx context.Context, sessionKey string) error {
	if s == nil || s.db == nil {
		return errors.New("sqlite cache store: db is nil")
	}
	sessionKey = normalizeSessionKey(sessionKey)
	if sessionKey == "" {
		return errors.New("sqlite cache store: session key is empty")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.ExecContext(ctx, `DELETE FROM history_messages WHERE session_key = ?`, sessionKey); err != nil {
		return errors.Wrap(err, "sqlite cache store: delete history")
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM history_sessions WHERE session_key = ?`, sessionKey); err != nil {
		return errors.Wrap(err, "sqlite cache store: delete session")
	}
	return tx.Commit()
}

func (s *SQLiteCacheStore) GetSession(ctx context.Context, sessionKey string) (SessionRecord, bool, error) {
	if s == nil || s.db == nil {
		return SessionRecord{}, false, errors.New("sqlite cache store: db is nil")
	}
	sessionKey = normalizeSessionKey(sessionKey)
	if sessionKey == "" {
		return SessionRecord{}, false, errors.New("sqlite cache store: session key is empty")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return getSessionRecord(ctx, s.db, sessionKey)
}

func (s *SQLiteCacheStore) ListSessions(ctx context.Context, limit int, sinceMs int64) ([]SessionRecord, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("sqlite cache store: db is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if limit <= 0 {
		limit = 200
	}

	query := `
		SELECT session_key, created_at_ms, updated_at_ms, message_count, archived_count, last_compacted_ms
		FROM history_sessions
	`
	args := make([]any, 0, 2)
	if sinceMs > 0 {
		query += ` WHERE updated_at_ms >= ?`
		args = append(args, sinceMs)
	}
	query += ` ORDER BY updated_at_ms DESC, session_key ASC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "sqlite cache store: list sessions")
	}
	defer func() { _ = rows.Close() }()

	records := make([]SessionRecord, 0, limit)
	for rows.Next() {
		var rec SessionRecord
		if err := rows.Scan(
			&rec.SessionKey,
			&rec.CreatedAtMs,
			&rec.UpdatedAtMs,
			&rec.MessageCount,
			&rec.ArchivedCount,
			&rec.LastCompactedMs,
		); err != nil {
			return nil, errors.Wrap(err, "sqlite cache store: scan session")
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "sqlite cache store: iterate sessions")
	}
	return records, nil
}

type rowQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getSessionRecord(ctx context.Context, q rowQuerier, sessionKey string) (SessionRecord, bool, error) {
	var rec SessionRecord
	err := q.QueryRowContext(ctx, `
		SELECT session_key, created_at_ms, updated_at_ms, message_count, archived_count, last_compacted_ms
		FROM history_sessions
		WHERE session_key = ?
	`, sessionKey).Scan(
		&rec.SessionKey,
		&rec.CreatedAtMs,
		&rec.UpdatedAtMs,
		&rec.MessageCount,
		&rec.ArchivedCount,
		&rec.LastCompactedMs,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return SessionRecord{}, false, nil
	}
	if err != nil {
		return SessionRecord{}, false, errors.Wrap(err, "sqlite cache store: get session")
	}
	return rec, true, nil
}

// SQLiteCacheDSNForFile builds a DSN for a file-backed cache database.
func SQLiteCacheDSNForFile(path string) (string, error) {
	if path == "" {
		return "", errors.New("sqlite cache store: empty path")
	}
	// WAL for concurrent readers + writer. busy_timeout to avoid transient SQLITE_BUSY.
	return fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on", path), nil
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
