package webchat

import (
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const defaultPoolIdleTimeout = time.Minute

// StreamHub maps session keys to the connection pools watching them. Pools
// are created on first attach and dropped once idle.
type StreamHub struct {
	mu          sync.Mutex
	pools       map[string]*hubEntry
	idleTimeout time.Duration
}

type hubEntry struct {
	pool *ConnectionPool
	// attaching counts Attach calls between lookup and add; guarded by StreamHub.mu.
	attaching int
}

func NewStreamHub(idleTimeout time.Duration) *StreamHub {
	if idleTimeout <= 0 {
		idleTimeout = defaultPoolIdleTimeout
	}
	return &StreamHub{pools: map[string]*hubEntry{}, idleTimeout: idleTimeout}
}

func (h *StreamHub) reserve(sessionKey string) *hubEntry {
	h.mu.Lock()
	defer h.mu.Unlock()
	e, ok := h.pools[sessionKey]
	if !ok {
		e = &hubEntry{}
		e.pool = NewConnectionPool(sessionKey, h.idleTimeout, func() { h.dropIfIdle(sessionKey, e) })
		h.pools[sessionKey] = e
	}
	e.attaching++
	return e
}

func (h *StreamHub) release(e *hubEntry) {
	h.mu.Lock()
	e.attaching--
	h.mu.Unlock()
}

func (h *StreamHub) dropIfIdle(sessionKey string, e *hubEntry) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if cur, ok := h.pools[sessionKey]; ok && cur == e && e.attaching == 0 && e.pool.IsEmpty() {
		delete(h.pools, sessionKey)
	}
}

// Attach registers conn for sessionKey after sending it the hello frame.
// On failure conn is closed.
func (h *StreamHub) Attach(sessionKey string, conn *websocket.Conn, hello func() ([]byte, error)) (*ConnectionPool, error) {
	e := h.reserve(strings.TrimSpace(sessionKey))
	defer h.release(e)
	if err := e.pool.AddWithHello(conn, hello); err != nil {
		e.pool.Remove(conn)
		return nil, err
	}
	return e.pool, nil
}

// Broadcast sends data to every connection watching sessionKey. Sessions
// nobody watches are ignored.
func (h *StreamHub) Broadcast(sessionKey string, data []byte) {
	h.mu.Lock()
	e, ok := h.pools[strings.TrimSpace(sessionKey)]
	h.mu.Unlock()
	if ok {
		e.pool.Broadcast(data)
	}
}

func (h *StreamHub) Count(sessionKey string) int {
	h.mu.Lock()
	e, ok := h.pools[sessionKey]
	h.mu.Unlock()
	if !ok {
		return 0
	}
	return e.pool.Count()
}

func (h *StreamHub) Sessions() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.pools)
}

func (h *StreamHub) CloseAll() {
	h.mu.Lock()
	entries := make([]*hubEntry, 0, len(h.pools))
	for _, e := range h.pools {
		entries = append(entries, e)
	}
	h.pools = map[string]*hubEntry{}
	h.mu.Unlock()
	for _, e := range entries {
		e.pool.CloseAll()
	}
}
