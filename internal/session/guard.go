package session

import "sync"

// RequestGuard hands out monotonically increasing tickets per scope so that
// slow responses can be recognized as stale. A caller takes a ticket before
// starting an async operation and checks it before applying the result; if a
// newer request began in the meantime the result is dropped on the floor.
type RequestGuard struct {
	mu     sync.Mutex
	latest map[string]uint64
}

// NewRequestGuard creates an empty guard.
func NewRequestGuard() *RequestGuard {
	return &RequestGuard{latest: make(map[string]uint64)}
}

// Begin registers a new request in a scope and returns its ticket.
func (g *RequestGuard) Begin(scope string) uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.latest[scope]++
	return g.latest[scope]
}

// Current reports whether the ticket still belongs to the newest request in
// its scope.
func (g *RequestGuard) Current(scope string, ticket uint64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.latest[scope] == ticket
}
