package history

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func makeMsg(id string, role Role, ts int64) Message {
	return Message{ID: id, Role: role, Content: "msg-" + id, Timestamp: ts, Blocks: []Block{}}
}

func ids(messages []Message) []string {
	out := make([]string, 0, len(messages))
	for _, m := range messages {
		out = append(out, m.ID)
	}
	return out
}

func TestReconcile_EmptyCacheReturnsGateway(t *testing.T) {
	gateway := []Message{makeMsg("a", RoleUser, 1), makeMsg("b", RoleAssistant, 2)}

	res := Reconcile(gateway, nil)
	require.False(t, res.WasCompacted)
	require.Equal(t, gateway, res.Messages)

	res = Reconcile(gateway, []Message{})
	require.False(t, res.WasCompacted)
	require.Equal(t, gateway, res.Messages)
}

func TestReconcile_SameMessagesPassThrough(t *testing.T) {
	msgs := []Message{makeMsg("a", RoleUser, 1), makeMsg("b", RoleAssistant, 2)}

	res := Reconcile(msgs, msgs)
	require.False(t, res.WasCompacted)
	require.Equal(t, msgs, res.Messages)
}

func TestReconcile_AppendOnlyGrowthPassesThrough(t *testing.T) {
	cached := []Message{makeMsg("a", RoleUser, 1)}
	gateway := []Message{makeMsg("a", RoleUser, 1), makeMsg("b", RoleAssistant, 2), makeMsg("c", RoleUser, 3)}

	res := Reconcile(gateway, cached)
	require.False(t, res.WasCompacted)
	require.Equal(t, []string{"a", "b", "c"}, ids(res.Messages))
	for _, m := range res.Messages {
		require.Equal(t, KindLive, m.Kind())
	}
}

func TestReconcile_EchoOfCacheIsNotCompaction(t *testing.T) {
	cached := []Message{makeMsg("b", RoleUser, 2)}
	gateway := []Message{makeMsg("b", RoleUser, 2)}

	res := Reconcile(gateway, append([]Message{}, cached...))
	require.False(t, res.WasCompacted)
	require.Equal(t, []string{"b"}, ids(res.Messages))
}

func TestReconcile_DetectsCompactionAndMergesOldMessages(t *testing.T) {
	old1 := makeMsg("old1", RoleUser, 1000)
	old2 := makeMsg("old2", RoleAssistant, 2000)
	current := makeMsg("new1", RoleUser, 5000)

	res := Reconcile([]Message{current}, []Message{old1, old2, current})
	require.True(t, res.WasCompacted)
	require.Len(t, res.Messages, 4)

	require.Equal(t, "old1", res.Messages[0].ID)
	require.True(t, res.Messages[0].IsArchived)
	require.Equal(t, "old2", res.Messages[1].ID)
	require.True(t, res.Messages[1].IsArchived)
	require.True(t, res.Messages[2].IsCompactionSeparator)
	require.Equal(t, "new1", res.Messages[3].ID)
	require.False(t, res.Messages[3].IsArchived)
}

func TestReconcile_SeparatorTimestampJustBeforeFirstGatewayMessage(t *testing.T) {
	res := Reconcile(
		[]Message{makeMsg("new", RoleUser, 5000)},
		[]Message{makeMsg("old", RoleUser, 1000)},
	)

	var sep *Message
	for i := range res.Messages {
		if res.Messages[i].IsCompactionSeparator {
			sep = &res.Messages[i]
		}
	}
	require.NotNil(t, sep)
	require.Equal(t, int64(4999), sep.Timestamp)
	require.Equal(t, "compaction-4999", sep.ID)
	require.Empty(t, sep.Content)
	require.Empty(t, sep.Blocks)
	require.False(t, sep.IsArchived)
	require.Equal(t, KindSeparator, sep.Kind())
}

func TestReconcile_EmptyGatewayWithNonEmptyCache(t *testing.T) {
	res := Reconcile(nil, []Message{makeMsg("old", RoleUser, 1000)})
	require.True(t, res.WasCompacted)
	require.Len(t, res.Messages, 2)
	require.Equal(t, "old", res.Messages[0].ID)
	require.True(t, res.Messages[0].IsArchived)
	require.True(t, res.Messages[1].IsCompactionSeparator)
	require.Equal(t, int64(1001), res.Messages[1].Timestamp)
}

func TestReconcile_ArchivalPrefixKeepsCachedOrder(t *testing.T) {
	cached := []Message{
		makeMsg("c", RoleUser, 30),
		makeMsg("a", RoleAssistant, 10),
		makeMsg("keep", RoleUser, 40),
		makeMsg("b", RoleAssistant, 20),
	}
	gateway := []Message{makeMsg("keep", RoleUser, 40), makeMsg("next", RoleAssistant, 50)}

	res := Reconcile(gateway, cached)
	require.True(t, res.WasCompacted)
	require.Equal(t, 3+1+2, len(res.Messages))
	require.Equal(t, []string{"c", "a", "b", "compaction-39", "keep", "next"}, ids(res.Messages))
	for _, m := range res.Messages[:3] {
		require.True(t, m.IsArchived)
		require.Equal(t, KindArchived, m.Kind())
	}
	require.Equal(t, int64(39), res.Messages[3].Timestamp)
}

func TestReconcile_DoesNotMutateInputs(t *testing.T) {
	cached := []Message{makeMsg("old", RoleUser, 1), makeMsg("new", RoleUser, 2)}
	gateway := []Message{makeMsg("new", RoleUser, 2)}
	cachedCopy := append([]Message{}, cached...)
	gatewayCopy := append([]Message{}, gateway...)

	res := Reconcile(gateway, cached)
	require.True(t, res.WasCompacted)
	require.Equal(t, cachedCopy, cached)
	require.Equal(t, gatewayCopy, gateway)
	require.False(t, cached[0].IsArchived)
}

func TestReconcile_OutputIsIdempotent(t *testing.T) {
	cached := []Message{makeMsg("a", RoleUser, 1), makeMsg("b", RoleAssistant, 2), makeMsg("c", RoleUser, 3)}
	gateway := []Message{makeMsg("c", RoleUser, 3)}

	first := Reconcile(gateway, cached)
	require.True(t, first.WasCompacted)

	again := Reconcile(first.Messages, first.Messages)
	require.False(t, again.WasCompacted)
	require.Equal(t, first.Messages, again.Messages)
}

func TestReconcile_ArchivedStaysArchivedAcrossRounds(t *testing.T) {
	// round 1: a and b are compacted away
	cached := []Message{makeMsg("a", RoleUser, 1), makeMsg("b", RoleAssistant, 2), makeMsg("c", RoleUser, 3)}
	r1 := Reconcile([]Message{makeMsg("c", RoleUser, 3), makeMsg("d", RoleAssistant, 4)}, cached)
	require.Equal(t, []string{"a", "b", "compaction-2", "c", "d"}, ids(r1.Messages))

	// round 2: the gateway compacts again, dropping c
	r2 := Reconcile([]Message{makeMsg("d", RoleAssistant, 4), makeMsg("e", RoleUser, 5)}, r1.Messages)
	require.True(t, r2.WasCompacted)
	require.Equal(t, []string{"a", "b", "c", "compaction-3", "d", "e"}, ids(r2.Messages))
	for _, m := range r2.Messages[:3] {
		require.True(t, m.IsArchived)
	}

	separators := 0
	for _, m := range r2.Messages {
		if m.IsCompactionSeparator {
			separators++
			require.False(t, m.IsArchived)
		}
	}
	require.Equal(t, 1, separators)
}

func TestReconcile_RefreshAfterCompactionIsStable(t *testing.T) {
	cached := []Message{makeMsg("a", RoleUser, 1), makeMsg("b", RoleAssistant, 2)}
	window := []Message{makeMsg("b", RoleAssistant, 2)}

	r1 := Reconcile(window, cached)
	require.Equal(t, []string{"a", "compaction-1", "b"}, ids(r1.Messages))

	// same window again, reconciled against the persisted result
	r2 := Reconcile(window, r1.Messages)
	require.True(t, r2.WasCompacted)
	require.Equal(t, r1.Messages, r2.Messages)
}

func TestReconcile_ConcreteScenarioCachedSupersetOfGateway(t *testing.T) {
	// gateway=[b], cached=[a,b] by id: a is missing, so this is a compaction
	a := makeMsg("a", RoleUser, 1)
	b := makeMsg("b", RoleAssistant, 2)

	res := Reconcile([]Message{b}, []Message{b})
	require.False(t, res.WasCompacted)
	require.Equal(t, []Message{b}, res.Messages)

	res = Reconcile([]Message{b}, []Message{a, b})
	require.True(t, res.WasCompacted)
	require.Equal(t, []string{"a", "compaction-1", "b"}, ids(res.Messages))
}

func TestDedupeByID_KeepsFirstOccurrence(t *testing.T) {
	in := []Message{makeMsg("a", RoleUser, 1), makeMsg("b", RoleUser, 2), makeMsg("a", RoleAssistant, 3)}
	out := DedupeByID(in)
	require.Equal(t, []string{"a", "b"}, ids(out))
	require.Equal(t, RoleUser, out[0].Role)
	require.Len(t, in, 3)
}

func TestMessageText_PrefersTextBlocks(t *testing.T) {
	m := Message{Content: "fallback", Blocks: []Block{
		{Type: BlockThinking, Text: "hmm"},
		{Type: BlockText, Text: "one"},
		{Type: BlockText, Text: "two"},
	}}
	require.Equal(t, "one\ntwo", m.Text())
	require.Equal(t, "fallback", Message{Content: "fallback"}.Text())
}

func TestParseRole(t *testing.T) {
	r, err := ParseRole(" Assistant ")
	require.NoError(t, err)
	require.Equal(t, RoleAssistant, r)

	_, err = ParseRole("tool")
	require.Error(t, err)
}
