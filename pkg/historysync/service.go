// Package historysync drives reconciliation for sessions: it fetches the
// gateway window, reconciles it against the cached history, persists the
// result and announces it on the event bus.
package historysync

import (
	"context"
	"strings"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/go-go-golems/pinchchat/pkg/gateway"
	"github.com/go-go-golems/pinchchat/pkg/history"
	"github.com/go-go-golems/pinchchat/pkg/persistence/chatstore"
)

const (
	SourceGateway = "gateway"
	SourceClient  = "client"

	defaultParallelism = 4
)

// ErrNoGateway is returned by Refresh when the service has no gateway client.
var ErrNoGateway = errors.New("history sync: no gateway client configured")

var ErrEmptySessionKey = errors.New("history sync: session key is empty")

type Config struct {
	Store   chatstore.CacheStore
	Gateway gateway.Client
	// Publisher is optional; without it results are persisted but not announced.
	Publisher   message.Publisher
	Logger      zerolog.Logger
	Parallelism int
	Now         func() time.Time
}

type Service struct {
	store       chatstore.CacheStore
	gateway     gateway.Client
	publisher   message.Publisher
	logger      zerolog.Logger
	parallelism int
	now         func() time.Time
	locks       *keyLocks
}

func NewService(cfg Config) (*Service, error) {
	if cfg.Store == nil {
		return nil, errors.New("history sync: store is required")
	}
	parallelism := cfg.Parallelism
	if parallelism <= 0 {
		parallelism = defaultParallelism
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		store:       cfg.Store,
		gateway:     cfg.Gateway,
		publisher:   cfg.Publisher,
		logger:      cfg.Logger.With().Str("component", "historysync").Logger(),
		parallelism: parallelism,
		now:         now,
		locks:       newKeyLocks(),
	}, nil
}

// History returns the cached history for a session.
func (s *Service) History(ctx context.Context, sessionKey string) ([]history.Message, error) {
	sessionKey, err := validKey(sessionKey)
	if err != nil {
		return nil, err
	}
	return s.store.Load(ctx, sessionKey)
}

// Sessions lists the cached sessions, most recently updated first.
func (s *Service) Sessions(ctx context.Context, limit int) ([]chatstore.SessionRecord, error) {
	return s.store.ListSessions(ctx, limit, 0)
}

// Refresh pulls the current window from the gateway and reconciles it.
func (s *Service) Refresh(ctx context.Context, sessionKey string) (history.Result, error) {
	if s.gateway == nil {
		return history.Result{}, ErrNoGateway
	}
	sessionKey, err := validKey(sessionKey)
	if err != nil {
		return history.Result{}, err
	}
	return s.withKey(ctx, sessionKey, func() (history.Result, error) {
		window, err := s.gateway.Fetch(ctx, sessionKey)
		if err != nil {
			return history.Result{}, errors.Wrapf(err, "fetch gateway window for %q", sessionKey)
		}
		return s.reconcileLocked(ctx, sessionKey, window, SourceGateway)
	})
}

// Apply reconciles a window that was fetched elsewhere, typically by the browser.
func (s *Service) Apply(ctx context.Context, sessionKey string, window []history.Message) (history.Result, error) {
	sessionKey, err := validKey(sessionKey)
	if err != nil {
		return history.Result{}, err
	}
	return s.withKey(ctx, sessionKey, func() (history.Result, error) {
		return s.reconcileLocked(ctx, sessionKey, window, SourceClient)
	})
}

// RefreshAll refreshes keys concurrently, at most Parallelism at a time.
// The first failure cancels the remaining refreshes.
func (s *Service) RefreshAll(ctx context.Context, sessionKeys []string) (map[string]history.Result, error) {
	results := make([]history.Result, len(sessionKeys))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.parallelism)
	for i, key := range sessionKeys {
		g.Go(func() error {
			res, err := s.Refresh(gctx, key)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	out := make(map[string]history.Result, len(sessionKeys))
	for i, key := range sessionKeys {
		out[strings.TrimSpace(key)] = results[i]
	}
	return out, nil
}

func (s *Service) withKey(ctx context.Context, sessionKey string, fn func() (history.Result, error)) (history.Result, error) {
	release, err := s.locks.acquire(ctx, sessionKey)
	if err != nil {
		return history.Result{}, err
	}
	defer release()
	return fn()
}

// reconcileLocked must run while holding the session's key lock so that it
// always sees the most recently persisted cache.
func (s *Service) reconcileLocked(ctx context.Context, sessionKey string, window []history.Message, source string) (history.Result, error) {
	cached, err := s.store.Load(ctx, sessionKey)
	if err != nil {
		return history.Result{}, errors.Wrapf(err, "load cached history for %q", sessionKey)
	}

	res := history.Reconcile(history.DedupeByID(window), cached)
	if res.Messages == nil {
		res.Messages = []history.Message{}
	}
	if err := s.store.Save(ctx, sessionKey, res.Messages); err != nil {
		return history.Result{}, errors.Wrapf(err, "save reconciled history for %q", sessionKey)
	}

	archived := 0
	for _, m := range res.Messages {
		if m.IsArchived {
			archived++
		}
	}
	logEvent := s.logger.Debug()
	if res.WasCompacted {
		logEvent = s.logger.Info()
	}
	logEvent.
		Str("session_key", sessionKey).
		Str("source", source).
		Bool("was_compacted", res.WasCompacted).
		Int("archived", archived).
		Int("messages", len(res.Messages)).
		Msg("history reconciled")

	s.publish(HistoryReconciled{
		SessionKey:    sessionKey,
		Source:        source,
		WasCompacted:  res.WasCompacted,
		ArchivedCount: archived,
		Messages:      res.Messages,
		AtMs:          s.now().UnixMilli(),
	})
	return res, nil
}

// publish is best effort: the history is already persisted.
func (s *Service) publish(ev HistoryReconciled) {
	if s.publisher == nil {
		return
	}
	msg, err := NewEventMessage(ev)
	if err != nil {
		s.logger.Warn().Err(err).Str("session_key", ev.SessionKey).Msg("encode history event failed")
		return
	}
	if err := s.publisher.Publish(TopicHistoryReconciled, msg); err != nil {
		s.logger.Warn().Err(err).Str("session_key", ev.SessionKey).Msg("publish history event failed")
	}
}

func validKey(sessionKey string) (string, error) {
	sessionKey = strings.TrimSpace(sessionKey)
	if sessionKey == "" {
		return "", ErrEmptySessionKey
	}
	return sessionKey, nil
}
