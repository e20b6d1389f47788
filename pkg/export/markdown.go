// Package export renders cached histories for people: Markdown for the
// browser download, YAML for tooling, and glamour output for terminals.
package export

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-go-golems/pinchchat/pkg/history"
	"github.com/go-go-golems/pinchchat/pkg/i18n"
)

// MaxToolResultChars bounds how much of a tool result is exported.
const MaxToolResultChars = 2000

// Markdown renders messages as a Markdown document titled label, or the
// translated "Conversation" when label is empty. A nil tr uses the
// process-wide registry.
func Markdown(messages []history.Message, label string, tr i18n.Translator) string {
	if tr == nil {
		tr = i18n.Default()
	}
	title := strings.TrimSpace(label)
	if title == "" {
		title = tr.T("export.title")
	}

	var b strings.Builder
	b.WriteString("# " + title + "\n\n")
	for _, m := range messages {
		if m.Kind() == history.KindSeparator {
			b.WriteString("---\n\n*" + tr.T("export.compacted") + "*\n\n---\n\n")
			continue
		}

		b.WriteString("### " + roleHeading(m.Role, tr))
		if m.Kind() == history.KindArchived {
			b.WriteString(" *(" + tr.T("export.archived") + ")*")
		}
		b.WriteString("\n\n")
		if m.Timestamp > 0 {
			b.WriteString("_" + formatTimestamp(m.Timestamp) + "_\n\n")
		}
		writeBody(&b, m, tr)
	}
	return b.String()
}

func roleHeading(role history.Role, tr i18n.Translator) string {
	switch role {
	case history.RoleUser:
		return "👤 " + tr.T("export.user")
	case history.RoleSystem:
		return "⚙️ " + tr.T("export.system")
	default:
		return "🤖 " + tr.T("export.assistant")
	}
}

func formatTimestamp(ms int64) string {
	return time.UnixMilli(ms).UTC().Format("2006-01-02 15:04:05 UTC")
}

func writeBody(b *strings.Builder, m history.Message, tr i18n.Translator) {
	if len(m.Blocks) == 0 {
		if m.Content != "" {
			b.WriteString(m.Content + "\n\n")
		}
		return
	}
	for _, block := range m.Blocks {
		switch block.Type {
		case history.BlockText:
			if block.Text != "" {
				b.WriteString(block.Text + "\n\n")
			}
		case history.BlockThinking:
			b.WriteString("<details>\n<summary>💭 " + tr.T("export.thinking") + "</summary>\n\n")
			b.WriteString(block.Text + "\n\n</details>\n\n")
		case history.BlockToolUse:
			fmt.Fprintf(b, "**🔧 %s: `%s`**\n\n", tr.T("export.tool"), block.Name)
			b.WriteString("```json\n" + toolInputJSON(block.Input) + "\n```\n\n")
		case history.BlockToolResult:
			b.WriteString("**📋 " + tr.T("export.result") + ":**\n\n```\n")
			content, truncated := truncateRunes(block.Content, MaxToolResultChars)
			b.WriteString(content + "\n")
			if truncated {
				b.WriteString("...(" + tr.T("export.truncated") + ")\n")
			}
			b.WriteString("```\n\n")
		}
	}
}

func toolInputJSON(input map[string]any) string {
	if input == nil {
		return "{}"
	}
	out, err := json.MarshalIndent(input, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(out)
}

func truncateRunes(s string, max int) (string, bool) {
	if len(s) <= max {
		return s, false
	}
	r := []rune(s)
	if len(r) <= max {
		return s, false
	}
	return string(r[:max]), true
}
