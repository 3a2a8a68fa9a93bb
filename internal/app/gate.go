package app

import (
	"sync"
	"time"
)

// Gate guards destructive actions behind a second confirmation that must
// arrive within a fixed window after the first.
type Gate struct {
	mu     sync.Mutex
	window time.Duration
	now    func() time.Time
	armed  map[string]time.Time
}

func NewGate(window time.Duration, now func() time.Time) *Gate {
	if now == nil {
		now = time.Now
	}
	return &Gate{window: window, now: now, armed: make(map[string]time.Time)}
}

// Confirm reports whether action was armed within the window. If it was not,
// Confirm arms it and returns false.
func (g *Gate) Confirm(action string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	now := g.now()
	if at, ok := g.armed[action]; ok && now.Sub(at) <= g.window {
		delete(g.armed, action)
		return true
	}
	g.armed[action] = now
	return false
}

// Armed reports whether action is waiting for its second confirmation.
func (g *Gate) Armed(action string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	at, ok := g.armed[action]
	return ok && g.now().Sub(at) <= g.window
}

func (g *Gate) Disarm(action string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.armed, action)
}
