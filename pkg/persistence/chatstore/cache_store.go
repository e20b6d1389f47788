package chatstore

import (
	"context"
	"strings"

	"github.com/go-go-golems/pinchchat/pkg/history"
)

// SessionRecord captures per-session metadata kept next to the cached
// history, used for listing sessions and for sync diagnostics.
type SessionRecord struct {
	SessionKey      string `json:"session_key"`
	CreatedAtMs     int64  `json:"created_at_ms"`
	UpdatedAtMs     int64  `json:"updated_at_ms"`
	MessageCount    int    `json:"message_count"`
	ArchivedCount   int    `json:"archived_count"`
	LastCompactedMs int64  `json:"last_compacted_ms,omitempty"`
}

// CacheStore persists the last known full ordered history per session key.
//
// Save replaces the stored sequence. Stores de-duplicate by id on Save
// (first occurrence wins) so every sequence handed back by Load is id-unique.
// Load of an unknown session returns an empty slice and no error.
type CacheStore interface {
	Load(ctx context.Context, sessionKey string) ([]history.Message, error)
	Save(ctx context.Context, sessionKey string, messages []history.Message) error
	Delete(ctx context.Context, sessionKey string) error
	GetSession(ctx context.Context, sessionKey string) (SessionRecord, bool, error)
	ListSessions(ctx context.Context, limit int, sinceMs int64) ([]SessionRecord, error)
	Close() error
}

func normalizeSessionKey(key string) string {
	return strings.TrimSpace(key)
}

func countArchived(messages []history.Message) int {
	n := 0
	for _, m := range messages {
		if m.IsArchived {
			n++
		}
	}
	return n
}

// nextSessionRecord derives the record written alongside a Save.
func nextSessionRecord(existing SessionRecord, found bool, sessionKey string, messages []history.Message, now int64) SessionRecord {
	rec := SessionRecord{
		SessionKey:    sessionKey,
		CreatedAtMs:   now,
		UpdatedAtMs:   now,
		MessageCount:  len(messages),
		ArchivedCount: countArchived(messages),
	}
	if found {
		if existing.CreatedAtMs > 0 {
			rec.CreatedAtMs = existing.CreatedAtMs
		}
		rec.LastCompactedMs = existing.LastCompactedMs
		if existing.UpdatedAtMs > now {
			rec.UpdatedAtMs = existing.UpdatedAtMs
		}
	}
	if rec.ArchivedCount > 0 && (!found || rec.ArchivedCount > existing.ArchivedCount) {
		rec.LastCompactedMs = now
	}
	return rec
}
