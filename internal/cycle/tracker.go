package cycle

import (
	"sync"
	"time"
)

// Tracker remembers per-market exit history that gates re-entry. One
// tracker exists per mode; it is cleared on paper reset.
type Tracker struct {
	mu         sync.Mutex
	tookProfit map[string]bool
	freeRolled map[string]bool
	edgeExitAt map[string]time.Time
	edgeExits  map[string]int
}

// NewTracker returns an empty tracker.
func NewTracker() *Tracker {
	t := &Tracker{}
	t.Reset()
	return t
}

// Reset forgets everything.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.tookProfit = make(map[string]bool)
	t.freeRolled = make(map[string]bool)
	t.edgeExitAt = make(map[string]time.Time)
	t.edgeExits = make(map[string]int)
}

// MarkTookProfit blocks further entries in marketID.
func (t *Tracker) MarkTookProfit(marketID string) {
	t.mu.Lock()
	t.tookProfit[marketID] = true
	t.mu.Unlock()
}

func (t *Tracker) TookProfit(marketID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.tookProfit[marketID]
}

// MarkFreeRolled records that half the position in marketID was sold.
func (t *Tracker) MarkFreeRolled(marketID string) {
	t.mu.Lock()
	t.freeRolled[marketID] = true
	t.mu.Unlock()
}

func (t *Tracker) FreeRolled(marketID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.freeRolled[marketID]
}

// MarkEdgeExit records an edge exit in marketID at ts.
func (t *Tracker) MarkEdgeExit(marketID string, ts time.Time) {
	t.mu.Lock()
	t.edgeExitAt[marketID] = ts
	t.edgeExits[marketID]++
	t.mu.Unlock()
}

// LastEdgeExit returns the time of the last edge exit and how many edge
// exits marketID has seen.
func (t *Tracker) LastEdgeExit(marketID string) (time.Time, int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.edgeExitAt[marketID], t.edgeExits[marketID]
}

// Forget drops state for a settled market.
func (t *Tracker) Forget(marketID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.tookProfit, marketID)
	delete(t.freeRolled, marketID)
	delete(t.edgeExitAt, marketID)
	delete(t.edgeExits, marketID)
}
