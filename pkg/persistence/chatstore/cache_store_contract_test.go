package chatstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/pinchchat/pkg/history"
)

func contractMsg(id string, role history.Role, ts int64) history.Message {
	return history.Message{ID: id, Role: role, Content: "msg-" + id, Timestamp: ts, Blocks: []history.Block{}}
}

// runCacheStoreContract exercises the behavior every CacheStore must share.
func runCacheStoreContract(t *testing.T, newStore func(t *testing.T) CacheStore) {
	t.Run("load unknown session is empty", func(t *testing.T) {
		s := newStore(t)
		msgs, err := s.Load(context.Background(), "missing")
		require.NoError(t, err)
		require.NotNil(t, msgs)
		require.Len(t, msgs, 0)

		_, found, err := s.GetSession(context.Background(), "missing")
		require.NoError(t, err)
		require.False(t, found)
	})

	t.Run("empty session key is rejected", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Load(context.Background(), "  ")
		require.Error(t, err)
		require.Error(t, s.Save(context.Background(), "", nil))
	})

	t.Run("save and load preserve order and flags", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		res := history.Reconcile(
			[]history.Message{contractMsg("c", history.RoleUser, 3000)},
			[]history.Message{
				contractMsg("b", history.RoleAssistant, 2000),
				contractMsg("a", history.RoleUser, 1000),
				contractMsg("c", history.RoleUser, 3000),
			},
		)
		require.True(t, res.WasCompacted)
		require.NoError(t, s.Save(ctx, "s1", res.Messages))

		loaded, err := s.Load(ctx, "s1")
		require.NoError(t, err)
		require.Equal(t, res.Messages, loaded)

		rec, found, err := s.GetSession(ctx, "s1")
		require.NoError(t, err)
		require.True(t, found)
		require.Equal(t, "s1", rec.SessionKey)
		require.Equal(t, 4, rec.MessageCount)
		require.Equal(t, 2, rec.ArchivedCount)
		require.NotZero(t, rec.LastCompactedMs)
	})

	t.Run("save replaces previous history", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.Save(ctx, "s1", []history.Message{contractMsg("a", history.RoleUser, 1), contractMsg("b", history.RoleUser, 2)}))
		require.NoError(t, s.Save(ctx, "s1", []history.Message{contractMsg("z", history.RoleAssistant, 9)}))

		loaded, err := s.Load(ctx, "s1")
		require.NoError(t, err)
		require.Len(t, loaded, 1)
		require.Equal(t, "z", loaded[0].ID)
	})

	t.Run("save de-duplicates by id", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.Save(ctx, "s1", []history.Message{
			contractMsg("a", history.RoleUser, 1),
			contractMsg("b", history.RoleAssistant, 2),
			contractMsg("a", history.RoleAssistant, 3),
		}))
		loaded, err := s.Load(ctx, "s1")
		require.NoError(t, err)
		require.Len(t, loaded, 2)
		require.Equal(t, "a", loaded[0].ID)
		require.Equal(t, history.RoleUser, loaded[0].Role)
		require.Equal(t, "b", loaded[1].ID)
	})

	t.Run("sessions are isolated and listable", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.Save(ctx, "s1", []history.Message{contractMsg("a", history.RoleUser, 1)}))
		require.NoError(t, s.Save(ctx, "s2", []history.Message{contractMsg("b", history.RoleUser, 1), contractMsg("c", history.RoleUser, 2)}))

		l1, err := s.Load(ctx, "s1")
		require.NoError(t, err)
		require.Len(t, l1, 1)

		records, err := s.ListSessions(ctx, 10, 0)
		require.NoError(t, err)
		require.Len(t, records, 2)
		keys := []string{records[0].SessionKey, records[1].SessionKey}
		require.ElementsMatch(t, []string{"s1", "s2"}, keys)
	})

	t.Run("delete removes history and session", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.Save(ctx, "s1", []history.Message{contractMsg("a", history.RoleUser, 1)}))
		require.NoError(t, s.Delete(ctx, "s1"))

		loaded, err := s.Load(ctx, "s1")
		require.NoError(t, err)
		require.Len(t, loaded, 0)
		_, found, err := s.GetSession(ctx, "s1")
		require.NoError(t, err)
		require.False(t, found)
	})

	t.Run("loaded history is detached from the store", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.Save(ctx, "s1", []history.Message{contractMsg("a", history.RoleUser, 1)}))

		loaded, err := s.Load(ctx, "s1")
		require.NoError(t, err)
		loaded[0].Content = "changed"

		again, err := s.Load(ctx, "s1")
		require.NoError(t, err)
		require.Equal(t, "msg-a", again[0].Content)
	})
}
