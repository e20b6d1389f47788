package chatstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/go-go-golems/pinchchat/pkg/history"
)

// InMemoryCacheStore is a size-limited, in-memory CacheStore implementation.
// When more than maxSessions sessions are stored, the least recently saved
// session is dropped.
type InMemoryCacheStore struct {
	mu          sync.Mutex
	maxSessions int
	histories   map[string][]history.Message
	sessions    map[string]SessionRecord
	now         func() time.Time
}

var _ CacheStore = &InMemoryCacheStore{}

func NewInMemoryCacheStore(maxSessions int) *InMemoryCacheStore {
	if maxSessions <= 0 {
		maxSessions = 1000
	}
	return &InMemoryCacheStore{
		maxSessions: maxSessions,
		histories:   map[string][]history.Message{},
		sessions:    map[string]SessionRecord{},
		now:         time.Now,
	}
}

func (s *InMemoryCacheStore) Close() error { return nil }

func (s *InMemoryCacheStore) Load(_ context.Context, sessionKey string) ([]history.Message, error) {
	if s == nil {
		return nil, errors.New("in-memory cache store: nil store")
	}
	sessionKey = normalizeSessionKey(sessionKey)
	if sessionKey == "" {
		return nil, errors.New("in-memory cache store: session key is empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs, ok := s.histories[sessionKey]
	if !ok {
		return []history.Message{}, nil
	}
	return history.Clone(msgs), nil
}

func (s *InMemoryCacheStore) Save(_ context.Context, sessionKey string, messages []history.Message) error {
	if s == nil {
		return errors.New("in-memory cache store: nil store")
	}
	sessionKey = normalizeSessionKey(sessionKey)
	if sessionKey == "" {
		return errors.New("in-memory cache store: session key is empty")
	}
	msgs := history.Clone(history.DedupeByID(messages))
	if msgs == nil {
		msgs = []history.Message{}
	}
	now := s.now().UnixMilli()

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, found := s.sessions[sessionKey]
	s.histories[sessionKey] = msgs
	s.sessions[sessionKey] = nextSessionRecord(existing, found, sessionKey, msgs, now)

	if len(s.sessions) > s.maxSessions {
		records := make([]SessionRecord, 0, len(s.sessions))
		for _, r := range s.sessions {
			records = append(records, r)
		}
		sort.Slice(records, func(i, j int) bool {
			if records[i].UpdatedAtMs == records[j].UpdatedAtMs {
				return records[i].SessionKey < records[j].SessionKey
			}
			return records[i].UpdatedAtMs < records[j].UpdatedAtMs
		})
		toDrop := len(s.sessions) - s.maxSessions
		for i := 0; i < len(records) && toDrop > 0; i++ {
			if records[i].SessionKey == sessionKey {
				continue
			}
			delete(s.histories, records[i].SessionKey)
			delete(s.sessions, records[i].SessionKey)
			toDrop--
		}
	}
	return nil
}

func (s *InMemoryCacheStore) Delete(_ context.Context, sessionKey string) error {
	if s == nil {
		return errors.New("in-memory cache store: nil store")
	}
	sessionKey = normalizeSessionKey(sessionKey)
	if sessionKey == "" {
		return errors.New("in-memory cache store: session key is empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.histories, sessionKey)
	delete(s.sessions, sessionKey)
	return nil
}

func (s *InMemoryCacheStore) GetSession(_ context.Context, sessionKey string) (SessionRecord, bool, error) {
	if s == nil {
		return SessionRecord{}, false, errors.New("in-memory cache store: nil store")
	}
	sessionKey = normalizeSessionKey(sessionKey)
	if sessionKey == "" {
		return SessionRecord{}, false, errors.New("in-memory cache store: session key is empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.sessions[sessionKey]
	return rec, ok, nil
}

func (s *InMemoryCacheStore) ListSessions(_ context.Context, limit int, sinceMs int64) ([]SessionRecord, error) {
	if s == nil {
		return nil, errors.New("in-memory cache store: nil store")
	}
	if limit <= 0 {
		limit = 200
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	records := make([]SessionRecord, 0, len(s.sessions))
	for _, record := range s.sessions {
		if sinceMs > 0 && record.UpdatedAtMs < sinceMs {
			continue
		}
		records = append(records, record)
	}
	sort.Slice(records, func(i, j int) bool {
		if records[i].UpdatedAtMs == records[j].UpdatedAtMs {
			return records[i].SessionKey < records[j].SessionKey
		}
		return records[i].UpdatedAtMs > records[j].UpdatedAtMs
	})
	if len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}
