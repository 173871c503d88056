package sequence

import (
	"sync"
	"time"
)

// Guard enforces strictly increasing timestamps per asset.
type Guard struct {
	mu   sync.Mutex
	last map[string]time.Time
}

func NewGuard() *Guard {
	return &Guard{last: make(map[string]time.Time)}
}

// Check accepts ts when it is later than the last accepted timestamp for
// asset, recording it. On rejection prev is the timestamp that blocked it.
func (g *Guard) Check(asset string, ts time.Time) (prev time.Time, accepted bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	prev, seen := g.last[asset]
	if seen && !ts.After(prev) {
		return prev, false
	}
	g.last[asset] = ts
	return prev, true
}

// Last reports the last accepted timestamp for asset.
func (g *Guard) Last(asset string) (time.Time, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	t, ok := g.last[asset]
	return t, ok
}
