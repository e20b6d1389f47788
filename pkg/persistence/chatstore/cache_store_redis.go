package chatstore

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/go-go-golems/pinchchat/pkg/history"
)

const defaultRedisKeyPrefix = "pinchchat:"

// RedisCacheStore keeps each session's history as one JSON document and a
// session index (hash of records plus a sorted set by update time).
//
// Keys:
//   - <prefix>history:<session>   JSON array of messages
//   - <prefix>sessions            hash session -> SessionRecord JSON
//   - <prefix>sessions:updated    zset session scored by updated_at_ms
type RedisCacheStore struct {
	client redis.UniversalClient
	prefix string
	now    func() time.Time
}

var _ CacheStore = &RedisCacheStore{}

// NewRedisCacheStore wraps an existing client. The store owns the client
// and closes it on Close.
func NewRedisCacheStore(client redis.UniversalClient, prefix string) (*RedisCacheStore, error) {
	if client == nil {
		return nil, errors.New("redis cache store: client is nil")
	}
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = defaultRedisKeyPrefix
	}
	if !strings.HasSuffix(prefix, ":") {
		prefix += ":"
	}
	return &RedisCacheStore{client: client, prefix: prefix, now: time.Now}, nil
}

// NewRedisCacheStoreForAddr dials addr and verifies the connection.
func NewRedisCacheStoreForAddr(ctx context.Context, addr, prefix string) (*RedisCacheStore, error) {
	if strings.TrimSpace(addr) == "" {
		return nil, errors.New("redis cache store: empty addr")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "redis cache store: ping")
	}
	return NewRedisCacheStore(client, prefix)
}

func (s *RedisCacheStore) historyKey(sessionKey string) string {
	return s.prefix + "history:" + sessionKey
}

func (s *RedisCacheStore) sessionsKey() string { return s.prefix + "sessions" }

func (s *RedisCacheStore) sessionsByUpdatedKey() string { return s.prefix + "sessions:updated" }

func (s *RedisCacheStore) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

func (s *RedisCacheStore) Load(ctx context.Context, sessionKey string) ([]history.Message, error) {
	if s == nil || s.client == nil {
		return nil, errors.New("redis cache store: client is nil")
	}
	sessionKey = normalizeSessionKey(sessionKey)
	if sessionKey == "" {
		return nil, errors.New("redis cache store: session key is empty")
	}
	raw, err := s.client.Get(ctx, s.historyKey(sessionKey)).Bytes()
	if errors.Is(err, redis.Nil) {
		return []history.Message{}, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "redis cache store: get history")
	}
	out := []history.Message{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, errors.Wrap(err, "redis cache store: unmarshal history")
	}
	return out, nil
}

func (s *RedisCacheStore) Save(ctx context.Context, sessionKey string, messages []history.Message) error {
	if s == nil || s.client == nil {
		return errors.New("redis cache store: client is nil")
	}
	sessionKey = normalizeSessionKey(sessionKey)
	if sessionKey == "" {
		return errors.New("redis cache store: session key is empty")
	}
	msgs := history.DedupeByID(messages)
	if msgs == nil {
		msgs = []history.Message{}
	}
	raw, err := json.Marshal(msgs)
	if err != nil {
		return errors.Wrap(err, "redis cache store: marshal history")
	}

	existing, found, err := s.GetSession(ctx, sessionKey)
	if err != nil {
		return err
	}
	rec := nextSessionRecord(existing, found, sessionKey, msgs, s.now().UnixMilli())
	recRaw, err := json.Marshal(rec)
	if err != nil {
		return errors.Wrap(err, "redis cache store: marshal session")
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.historyKey(sessionKey), raw, 0)
		pipe.HSet(ctx, s.sessionsKey(), sessionKey, string(recRaw))
		pipe.ZAdd(ctx, s.sessionsByUpdatedKey(), redis.Z{Score: float64(rec.UpdatedAtMs), Member: sessionKey})
		return nil
	})
	if err != nil {
		return errors.Wrap(err, "redis cache store: save")
	}
	return nil
}

func (s *RedisCacheStore) Delete(ctx context.Context, sessionKey string) error {
	if s == nil || s.client == nil {
		return errors.New("redis cache store: client is nil")
	}
	sessionKey = normalizeSessionKey(sessionKey)
	if sessionKey == "" {
		return errors.New("redis cache store: session key is empty")
	}
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.historyKey(sessionKey))
		pipe.HDel(ctx, s.sessionsKey(), sessionKey)
		pipe.ZRem(ctx, s.sessionsByUpdatedKey(), sessionKey)
		return nil
	})
	if err != nil {
		return errors.Wrap(err, "redis cache store: delete")
	}
	return nil
}

func (s *RedisCacheStore) GetSession(ctx context.Context, sessionKey string) (SessionRecord, bool, error) {
	if s == nil || s.client == nil {
		return SessionRecord{}, false, errors.New("redis cache store: client is nil")
	}
	sessionKey = normalizeSessionKey(sessionKey)
	if sessionKey == "" {
		return SessionRecord{}, false, errors.New("redis cache store: session key is empty")
	}
	raw, err := s.client.HGet(ctx, s.sessionsKey(), sessionKey).Result()
	if errors.Is(err, redis.Nil) {
		return SessionRecord{}, false, nil
	}
	if err != nil {
		return SessionRecord{}, false, errors.Wrap(err, "redis cache store: get session")
	}
	var rec SessionRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return SessionRecord{}, false, errors.Wrap(err, "redis cache store: unmarshal session")
	}
	return rec, true, nil
}

func (s *RedisCacheStore) ListSessions(ctx context.Context, limit int, sinceMs int64) ([]SessionRecord, error) {
	if s == nil || s.client == nil {
		return nil, errors.New("redis cache store: client is nil")
	}
	if limit <= 0 {
		limit = 200
	}
	minScore := "-inf"
	if sinceMs > 0 {
		minScore = strconv.FormatInt(sinceMs, 10)
	}
	keys, err := s.client.ZRevRangeByScore(ctx, s.sessionsByUpdatedKey(), &redis.ZRangeBy{
		Min:   minScore,
		Max:   "+inf",
		Count: int64(limit),
	}).Result()
	if err != nil {
		return nil, errors.Wrap(err, "redis cache store: list sessions")
	}
	if len(keys) == 0 {
		return []SessionRecord{}, nil
	}
	vals, err := s.client.HMGet(ctx, s.sessionsKey(), keys...).Result()
	if err != nil {
		return nil, errors.Wrap(err, "redis cache store: get sessions")
	}
	records := make([]SessionRecord, 0, len(vals))
	for _, v := range vals {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var rec SessionRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return nil, errors.Wrap(err, "redis cache store: unmarshal session")
		}
		records = append(records, rec)
	}
	return records, nil
}
