// Package history holds the conversation record model shared by the cache
// stores, the sync service and the HTTP layer, plus the reconciliation
// engine that merges a gateway window with the locally cached history.
package history

import (
	"strings"

	"github.com/pkg/errors"
)

// Role identifies who produced a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// ParseRole validates a wire role string.
func ParseRole(s string) (Role, error) {
	switch r := Role(strings.TrimSpace(strings.ToLower(s))); r {
	case RoleUser, RoleAssistant, RoleSystem:
		return r, nil
	default:
		return "", errors.Errorf("unknown role %q", s)
	}
}

// BlockType is the variant tag of a content block.
type BlockType string

const (
	BlockText       BlockType = "text"
	BlockThinking   BlockType = "thinking"
	BlockToolUse    BlockType = "tool_use"
	BlockToolResult BlockType = "tool_result"
)

// Block is one structured piece of a message body. Only the fields relevant
// to Type are populated:
//   - text, thinking: Text
//   - tool_use: ID, Name, Input
//   - tool_result: ToolUseID, Content
type Block struct {
	Type      BlockType      `json:"type" yaml:"type"`
	Text      string         `json:"text,omitempty" yaml:"text,omitempty"`
	ID        string         `json:"id,omitempty" yaml:"id,omitempty"`
	Name      string         `json:"name,omitempty" yaml:"name,omitempty"`
	Input     map[string]any `json:"input,omitempty" yaml:"input,omitempty"`
	ToolUseID string         `json:"toolUseId,omitempty" yaml:"toolUseId,omitempty"`
	Content   string         `json:"content,omitempty" yaml:"content,omitempty"`
}

// Message is one conversation turn as seen by the browser client.
//
// IsArchived and IsCompactionSeparator are only ever set by Reconcile on
// records it produces; gateway and client records carry them as false.
type Message struct {
	ID        string  `json:"id" yaml:"id"`
	Role      Role    `json:"role" yaml:"role"`
	Content   string  `json:"content" yaml:"content"`
	Timestamp int64   `json:"timestamp" yaml:"timestamp"`
	Blocks    []Block `json:"blocks" yaml:"blocks,omitempty"`

	IsArchived            bool `json:"isArchived,omitempty" yaml:"isArchived,omitempty"`
	IsCompactionSeparator bool `json:"isCompactionSeparator,omitempty" yaml:"isCompactionSeparator,omitempty"`
}

// Kind is the closed set of presentation variants a Message can take.
type Kind int

const (
	KindLive Kind = iota
	KindArchived
	KindSeparator
)

func (k Kind) String() string {
	switch k {
	case KindLive:
		return "live"
	case KindArchived:
		return "archived"
	case KindSeparator:
		return "separator"
	default:
		return "unknown"
	}
}

// Kind folds the two reconciliation flags into a single variant.
func (m Message) Kind() Kind {
	switch {
	case m.IsCompactionSeparator:
		return KindSeparator
	case m.IsArchived:
		return KindArchived
	default:
		return KindLive
	}
}

// Text returns the readable body of the message: the concatenated text
// blocks, or Content when no text block is present.
func (m Message) Text() string {
	var parts []string
	for _, b := range m.Blocks {
		if b.Type == BlockText && b.Text != "" {
			parts = append(parts, b.Text)
		}
	}
	if len(parts) == 0 {
		return m.Content
	}
	return strings.Join(parts, "\n")
}

// DedupeByID drops every record whose id already appeared earlier in the
// sequence. Order of the survivors is preserved. The input is not modified.
func DedupeByID(messages []Message) []Message {
	if len(messages) == 0 {
		return messages
	}
	seen := make(map[string]struct{}, len(messages))
	out := make([]Message, 0, len(messages))
	for _, m := range messages {
		if _, ok := seen[m.ID]; ok {
			continue
		}
		seen[m.ID] = struct{}{}
		out = append(out, m)
	}
	return out
}

// Clone returns a copy of the sequence whose records and block slices can be
// modified without affecting messages. Block inputs are copied one level deep.
func Clone(messages []Message) []Message {
	if messages == nil {
		return nil
	}
	out := make([]Message, len(messages))
	for i, m := range messages {
		if m.Blocks != nil {
			blocks := make([]Block, len(m.Blocks))
			for j, b := range m.Blocks {
				if b.Input != nil {
					input := make(map[string]any, len(b.Input))
					for k, v := range b.Input {
						input[k] = v
					}
					b.Input = input
				}
				blocks[j] = b
			}
			m.Blocks = blocks
		}
		out[i] = m
	}
	return out
}
