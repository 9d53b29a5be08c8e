package httpapi

import (
	"context"
	"sync"
)

// TurnRegistry tracks in-flight voice turns so a client can cancel one
// (barge-in) and shutdown can drain them. When draining is enabled, new
// turns are rejected while in-flight turns finish naturally.
//
// The mu mutex makes the draining check and wg.Add atomic in Add.
type TurnRegistry struct {
	mu       sync.Mutex
	draining bool
	wg       sync.WaitGroup
	active   map[string]activeTurn
}

type activeTurn struct {
	owner  string
	cancel context.CancelFunc
}

// NewTurnRegistry creates a new TurnRegistry.
func NewTurnRegistry() *TurnRegistry {
	return &TurnRegistry{active: make(map[string]activeTurn)}
}

// Add registers a running turn. Returns false if the registry is draining,
// meaning the turn must not start.
func (tr *TurnRegistry) Add(turnID, owner string, cancel context.CancelFunc) bool {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	if tr.draining {
		return false
	}
	tr.wg.Add(1)
	tr.active[turnID] = activeTurn{owner: owner, cancel: cancel}
	return true
}

// Done marks a turn as finished. Must be called exactly once per successful Add.
func (tr *TurnRegistry) Done(turnID string) {
	tr.mu.Lock()
	delete(tr.active, turnID)
	tr.mu.Unlock()
	tr.wg.Done()
}

// Cancel stops the owner's turn. It reports whether such a turn was running.
func (tr *TurnRegistry) Cancel(owner, turnID string) bool {
	tr.mu.Lock()
	t, ok := tr.active[turnID]
	tr.mu.Unlock()
	if !ok || t.owner != owner {
		return false
	}
	t.cancel()
	return true
}

// StartDraining sets the draining flag so that future Add calls return false.
func (tr *TurnRegistry) StartDraining() {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.draining = true
}

// IsDraining reports whether the registry is in draining mode.
func (tr *TurnRegistry) IsDraining() bool {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return tr.draining
}

// ActiveCount returns the number of running turns.
func (tr *TurnRegistry) ActiveCount() int {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return len(tr.active)
}

// Wait blocks until every registered turn is done.
func (tr *TurnRegistry) Wait() {
	tr.wg.Wait()
}

// CancelAll stops every running turn, used when draining takes too long.
func (tr *TurnRegistry) CancelAll() {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	for _, t := range tr.active {
		t.cancel()
	}
}
