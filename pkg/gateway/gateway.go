// Package gateway defines how the current authoritative message window for a
// session is obtained. Live transports plug in through Client; this package
// ships the in-process and file-backed sources used by the CLI and tests.
package gateway

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"github.com/go-go-golems/pinchchat/pkg/history"
)

// Client returns the gateway's current window for a session. The window may
// be shorter than the full conversation after the gateway compacted it.
type Client interface {
	Fetch(ctx context.Context, sessionKey string) ([]history.Message, error)
}

// ClientFunc adapts a function to Client.
type ClientFunc func(ctx context.Context, sessionKey string) ([]history.Message, error)

func (f ClientFunc) Fetch(ctx context.Context, sessionKey string) ([]history.Message, error) {
	return f(ctx, sessionKey)
}

// StaticClient serves windows held in memory. Unknown sessions yield an
// empty window.
type StaticClient struct {
	mu      sync.RWMutex
	windows map[string][]history.Message
}

var _ Client = &StaticClient{}

func NewStaticClient() *StaticClient {
	return &StaticClient{windows: map[string][]history.Message{}}
}

// SetWindow replaces the window returned for sessionKey.
func (c *StaticClient) SetWindow(sessionKey string, window []history.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.windows[sessionKey] = history.Clone(window)
}

func (c *StaticClient) Fetch(ctx context.Context, sessionKey string) ([]history.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	w, ok := c.windows[sessionKey]
	if !ok {
		return []history.Message{}, nil
	}
	return history.Clone(w), nil
}

// FileClient reads windows from <Dir>/<sessionKey>.json. Each file holds
// either a JSON array of messages or an object with a "messages" array,
// matching the shape of a chat.history response.
type FileClient struct {
	Dir string
}

var _ Client = FileClient{}

func (c FileClient) Fetch(ctx context.Context, sessionKey string) ([]history.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := c.pathFor(sessionKey)
	if err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return []history.Message{}, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "gateway file: read %s", path)
	}
	return DecodeWindow(raw)
}

func (c FileClient) pathFor(sessionKey string) (string, error) {
	key := strings.TrimSpace(sessionKey)
	if key == "" {
		return "", errors.New("gateway file: session key is empty")
	}
	if strings.ContainsAny(key, `/\`) || key == "." || key == ".." {
		return "", errors.Errorf("gateway file: invalid session key %q", sessionKey)
	}
	return filepath.Join(c.Dir, key+".json"), nil
}

// DecodeWindow parses a window document: a bare array of messages or an
// object carrying them under "messages".
func DecodeWindow(raw []byte) ([]history.Message, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" {
		return []history.Message{}, nil
	}
	if strings.HasPrefix(trimmed, "[") {
		var msgs []history.Message
		if err := json.Unmarshal(raw, &msgs); err != nil {
			return nil, errors.Wrap(err, "gateway: decode window array")
		}
		return msgs, nil
	}
	var doc struct {
		Messages []history.Message `json:"messages"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, errors.Wrap(err, "gateway: decode window document")
	}
	if doc.Messages == nil {
		return []history.Message{}, nil
	}
	return doc.Messages, nil
}
