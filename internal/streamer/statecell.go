// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package streamer

import "sync"

// StateCell holds the current state and notifies subscribers of every change.
// Subscribers are called synchronously and must not call back into the cell.
type StateCell struct {
	mu     sync.Mutex
	state  State
	nextID int
	subs   map[int]func(State)
}

// NewStateCell returns a cell holding initial.
func NewStateCell(initial State) *StateCell {
	return &StateCell{state: initial, subs: make(map[int]func(State))}
}

// Get returns the current state.
func (c *StateCell) Get() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Set stores s and notifies subscribers.
func (c *StateCell) Set(s State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = s
	for id := 0; id < c.nextID; id++ {
		if fn, ok := c.subs[id]; ok {
			fn(s)
		}
	}
}

// Subscribe delivers the current state to fn, then every later change, until
// the returned function is called.
func (c *StateCell) Subscribe(fn func(State)) (unsubscribe func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextID
	c.nextID++
	c.subs[id] = fn
	fn(c.state)
	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subs, id)
			c.mu.Unlock()
		})
	}
}
