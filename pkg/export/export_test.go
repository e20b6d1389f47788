package export

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/go-go-golems/pinchchat/pkg/history"
	"github.com/go-go-golems/pinchchat/pkg/i18n"
)

var english = i18n.NewRegistry("en")

func makeMsg(role history.Role, content string, blocks ...history.Block) history.Message {
	if blocks == nil {
		blocks = []history.Block{}
	}
	return history.Message{ID: "msg-" + content, Role: role, Content: content, Timestamp: 1700000000000, Blocks: blocks}
}

func TestMarkdown_BasicExchange(t *testing.T) {
	md := Markdown([]history.Message{
		makeMsg(history.RoleUser, "Hello"),
		makeMsg(history.RoleAssistant, "Hi there!"),
	}, "", english)

	require.Contains(t, md, "# Conversation")
	require.Contains(t, md, "### 👤 User")
	require.Contains(t, md, "Hello")
	require.Contains(t, md, "### 🤖 Assistant")
	require.Contains(t, md, "Hi there!")
	require.Contains(t, md, "2023-11-14 22:13:20 UTC")
}

func TestMarkdown_UsesLabelAsTitle(t *testing.T) {
	md := Markdown(nil, "My Session", english)
	require.True(t, strings.HasPrefix(md, "# My Session\n"))
}

func TestMarkdown_TextBlocks(t *testing.T) {
	md := Markdown([]history.Message{
		makeMsg(history.RoleAssistant, "", history.Block{Type: history.BlockText, Text: "Block content"}),
	}, "", english)
	require.Contains(t, md, "Block content")
}

func TestMarkdown_ThinkingInDetails(t *testing.T) {
	md := Markdown([]history.Message{
		makeMsg(history.RoleAssistant, "", history.Block{Type: history.BlockThinking, Text: "Deep thought"}),
	}, "", english)
	require.Contains(t, md, "<details>")
	require.Contains(t, md, "💭 Thinking")
	require.Contains(t, md, "Deep thought")
	require.Contains(t, md, "</details>")
}

func TestMarkdown_ToolUseAsJSON(t *testing.T) {
	md := Markdown([]history.Message{
		makeMsg(history.RoleAssistant, "", history.Block{
			Type: history.BlockToolUse, ID: "t1", Name: "exec", Input: map[string]any{"command": "ls"},
		}),
	}, "", english)
	require.Contains(t, md, "**🔧 Tool: `exec`**")
	require.Contains(t, md, `"command": "ls"`)
}

func TestMarkdown_ToolResultTruncated(t *testing.T) {
	long := strings.Repeat("x", 3000)
	md := Markdown([]history.Message{
		makeMsg(history.RoleAssistant, "", history.Block{Type: history.BlockToolResult, ToolUseID: "t1", Content: long}),
	}, "", english)
	require.Contains(t, md, "**📋 Result:**")
	require.Contains(t, md, "...(truncated)")

	var resultLine string
	for _, l := range strings.Split(md, "\n") {
		if strings.HasPrefix(l, "xxx") {
			resultLine = l
		}
	}
	require.NotEmpty(t, resultLine)
	require.LessOrEqual(t, len(resultLine), MaxToolResultChars)
}

func TestMarkdown_ShortToolResultNotTruncated(t *testing.T) {
	md := Markdown([]history.Message{
		makeMsg(history.RoleAssistant, "", history.Block{Type: history.BlockToolResult, Content: "ok"}),
	}, "", english)
	require.NotContains(t, md, "truncated")
}

func TestMarkdown_CompactionSeparator(t *testing.T) {
	md := Markdown([]history.Message{history.NewSeparator(0)}, "", english)
	require.Contains(t, md, "---")
	require.Contains(t, md, "*Context compacted*")
	require.NotContains(t, md, "###")
}

func TestMarkdown_ArchivedMarker(t *testing.T) {
	old := makeMsg(history.RoleUser, "old")
	old.IsArchived = true
	md := Markdown([]history.Message{old, makeMsg(history.RoleUser, "new")}, "", english)
	require.Equal(t, 1, strings.Count(md, "*(archived)*"))
	require.Contains(t, md, "### 👤 User *(archived)*")
}

func TestMarkdown_FallsBackToContent(t *testing.T) {
	md := Markdown([]history.Message{makeMsg(history.RoleUser, "Plain text")}, "", english)
	require.Contains(t, md, "Plain text")
}

func TestMarkdown_SystemRoleAndFrench(t *testing.T) {
	md := Markdown([]history.Message{makeMsg(history.RoleSystem, "boot")}, "", i18n.NewRegistry("fr"))
	require.Contains(t, md, "### ⚙️ Système")
}

func TestYAML_KeepsFlags(t *testing.T) {
	res := history.Reconcile(
		[]history.Message{makeMsg(history.RoleUser, "b")},
		[]history.Message{makeMsg(history.RoleUser, "a"), makeMsg(history.RoleUser, "b")},
	)
	out, err := YAML(res.Messages)
	require.NoError(t, err)

	var decoded []map[string]any
	require.NoError(t, yaml.Unmarshal(out, &decoded))
	require.Len(t, decoded, 3)
	require.Equal(t, true, decoded[0]["isArchived"])
	require.Equal(t, true, decoded[1]["isCompactionSeparator"])
	require.NotContains(t, decoded[2], "isArchived")
}

func TestYAML_EmptyIsList(t *testing.T) {
	out, err := YAML(nil)
	require.NoError(t, err)
	require.Equal(t, "[]\n", string(out))
}

func TestPretty_RendersPlainStyle(t *testing.T) {
	out, err := Pretty(Markdown([]history.Message{makeMsg(history.RoleUser, "Hello")}, "Demo", english), "notty")
	require.NoError(t, err)
	require.Contains(t, out, "Demo")
	require.Contains(t, out, "Hello")
}

type wordCounter struct{}

func (wordCounter) Count(text string) int { return len(strings.Fields(text)) }

func TestComputeStats_SplitsByKind(t *testing.T) {
	res := history.Reconcile(
		[]history.Message{makeMsg(history.RoleUser, "three word message")},
		[]history.Message{makeMsg(history.RoleUser, "two words"), makeMsg(history.RoleUser, "three word message")},
	)
	s := ComputeStats(res.Messages, wordCounter{})
	require.Equal(t, Stats{
		Messages:       3,
		Live:           1,
		Archived:       1,
		Separators:     1,
		LiveTokens:     3,
		ArchivedTokens: 2,
	}, s)
	require.Equal(t, 5, s.Tokens())
}

func TestComputeStats_CountsBlocks(t *testing.T) {
	m := makeMsg(history.RoleAssistant, "ignored",
		history.Block{Type: history.BlockText, Text: "a b"},
		history.Block{Type: history.BlockToolResult, Content: "c"},
	)
	s := ComputeStats([]history.Message{m}, wordCounter{})
	require.Equal(t, 3, s.LiveTokens)
}

func TestApproxCounter(t *testing.T) {
	require.Equal(t, 0, ApproxCounter{}.Count(""))
	require.Equal(t, 1, ApproxCounter{}.Count("abcd"))
	require.Equal(t, 2, ApproxCounter{}.Count("abcde"))
}
