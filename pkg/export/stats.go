package export

import (
	"encoding/json"
	"strings"

	"github.com/pkg/errors"
	"github.com/weaviate/tiktoken-go"

	"github.com/go-go-golems/pinchchat/pkg/history"
)

// TokenCounter counts tokens in a piece of text.
type TokenCounter interface {
	Count(text string) int
}

type tiktokenCounter struct {
	enc *tiktoken.Tiktoken
}

// NewTiktokenCounter loads the named encoding, e.g. "cl100k_base".
func NewTiktokenCounter(encoding string) (TokenCounter, error) {
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, errors.Wrapf(err, "load tiktoken encoding %q", encoding)
	}
	return tiktokenCounter{enc: enc}, nil
}

func (c tiktokenCounter) Count(text string) int {
	return len(c.enc.Encode(text, nil, nil))
}

// ApproxCounter estimates four characters per token. It is used when no
// encoding can be loaded.
type ApproxCounter struct{}

func (ApproxCounter) Count(text string) int {
	n := len([]rune(text))
	return (n + 3) / 4
}

// Stats summarises a cached history.
type Stats struct {
	Messages       int `json:"messages" yaml:"messages"`
	Live           int `json:"live" yaml:"live"`
	Archived       int `json:"archived" yaml:"archived"`
	Separators     int `json:"separators" yaml:"separators"`
	LiveTokens     int `json:"liveTokens" yaml:"liveTokens"`
	ArchivedTokens int `json:"archivedTokens" yaml:"archivedTokens"`
}

func (s Stats) Tokens() int {
	return s.LiveTokens + s.ArchivedTokens
}

// ComputeStats counts records by kind and estimates the tokens each kind
// carries. A nil counter uses ApproxCounter.
func ComputeStats(messages []history.Message, counter TokenCounter) Stats {
	if counter == nil {
		counter = ApproxCounter{}
	}
	var s Stats
	for _, m := range messages {
		s.Messages++
		switch m.Kind() {
		case history.KindSeparator:
			s.Separators++
		case history.KindArchived:
			s.Archived++
			s.ArchivedTokens += counter.Count(tokenText(m))
		case history.KindLive:
			s.Live++
			s.LiveTokens += counter.Count(tokenText(m))
		}
	}
	return s
}

// tokenText is everything in a record that would be sent back to a model.
func tokenText(m history.Message) string {
	if len(m.Blocks) == 0 {
		return m.Content
	}
	parts := make([]string, 0, len(m.Blocks))
	for _, b := range m.Blocks {
		switch b.Type {
		case history.BlockText, history.BlockThinking:
			parts = append(parts, b.Text)
		case history.BlockToolUse:
			parts = append(parts, b.Name)
			if b.Input != nil {
				if raw, err := json.Marshal(b.Input); err == nil {
					parts = append(parts, string(raw))
				}
			}
		case history.BlockToolResult:
			parts = append(parts, b.Content)
		}
	}
	return strings.Join(parts, "\n")
}
