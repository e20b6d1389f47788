package chatstore

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/pinchchat/pkg/history"
)

func TestMessageContentHash_DeterministicAcrossMapOrder(t *testing.T) {
	a := history.Message{Role: history.RoleAssistant, Blocks: []history.Block{{
		Type: history.BlockToolUse, Name: "exec",
		Input: map[string]any{"command": "ls", "opts": map[string]any{"b": 2, "a": 1}},
	}}}
	b := history.Message{Role: history.RoleAssistant, Blocks: []history.Block{{
		Type: history.BlockToolUse, Name: "exec",
		Input: map[string]any{"opts": map[string]any{"a": 1, "b": 2}, "command": "ls"},
	}}}

	hashA, err := MessageContentHash(a)
	require.NoError(t, err)
	hashB, err := MessageContentHash(b)
	require.NoError(t, err)
	require.Equal(t, hashA, hashB)
}

func TestMessageContentHash_IgnoresReconciliationFlags(t *testing.T) {
	live := history.Message{ID: "m1", Role: history.RoleUser, Content: "hi", Timestamp: 10}
	archived := live
	archived.IsArchived = true
	archived.Timestamp = 99

	h1, err := MessageContentHash(live)
	require.NoError(t, err)
	h2, err := MessageContentHash(archived)
	require.NoError(t, err)
	require.Equal(t, h1, h2)
}

func TestMessageContentHash_NilAndEmptyBlocksMatch(t *testing.T) {
	h1, err := MessageContentHash(history.Message{Role: history.RoleUser, Content: "x"})
	require.NoError(t, err)
	h2, err := MessageContentHash(history.Message{Role: history.RoleUser, Content: "x", Blocks: []history.Block{}})
	require.NoError(t, err)
	require.Equal(t, h1, h2)
}

func TestMessageContentHash_ContentChangesProduceDifferentHashes(t *testing.T) {
	base := history.Message{Role: history.RoleAssistant, Blocks: []history.Block{{
		Type: history.BlockToolUse, Name: "weather", Input: map[string]any{"city": "Paris"},
	}}}
	changed := history.Message{Role: history.RoleAssistant, Blocks: []history.Block{{
		Type: history.BlockToolUse, Name: "weather", Input: map[string]any{"city": "Berlin"},
	}}}

	h1, err := MessageContentHash(base)
	require.NoError(t, err)
	h2, err := MessageContentHash(changed)
	require.NoError(t, err)
	require.NotEqual(t, h1, h2)
}

func TestCanonicalMessageMaterialJSON_NormalizesNonStringMapKeys(t *testing.T) {
	m := history.Message{Role: history.RoleAssistant, Blocks: []history.Block{{
		Type:  history.BlockToolUse,
		Input: map[string]any{"map_any": map[any]any{1: "one", "b": true}},
	}}}

	b, err := CanonicalMessageMaterialJSON(m)
	require.NoError(t, err)
	require.Contains(t, string(b), `"1":"one"`)
	require.Contains(t, string(b), `"b":true`)
}
