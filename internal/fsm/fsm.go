// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package fsm is a small, strict finite state machine: unknown transitions are
// errors.
package fsm

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var ErrInvalidTransition = errors.New("fsm: invalid transition")

// Transition describes a single edge. Guard may reject the transition; Action
// performs side effects before the state changes.
type Transition[S ~string, E ~string] struct {
	From   S
	Event  E
	To     S
	Guard  func(ctx context.Context, from S, event E) error
	Action func(ctx context.Context, from, to S, event E) error
}

// Observer is called after every applied transition, outside the lock.
type Observer[S ~string, E ~string] func(from, to S, event E)

// Machine applies events to a current state.
type Machine[S ~string, E ~string] struct {
	mu        sync.Mutex
	state     S
	index     map[string]Transition[S, E]
	anyState  map[E]Transition[S, E]
	observers []Observer[S, E]
}

// Any is a From value matching every state that has no explicit edge for the
// event.
const Any = "*"

func New[S ~string, E ~string](initial S, transitions []Transition[S, E]) (*Machine[S, E], error) {
	m := &Machine[S, E]{
		state:    initial,
		index:    make(map[string]Transition[S, E], len(transitions)),
		anyState: make(map[E]Transition[S, E]),
	}
	for _, t := range transitions {
		if string(t.From) == Any {
			if _, exists := m.anyState[t.Event]; exists {
				return nil, fmt.Errorf("duplicate transition: %s -> %s", t.From, t.Event)
			}
			m.anyState[t.Event] = t
			continue
		}
		k := key(t.From, t.Event)
		if _, exists := m.index[k]; exists {
			return nil, fmt.Errorf("duplicate transition: %s -> %s", t.From, t.Event)
		}
		m.index[k] = t
	}
	return m, nil
}

// Observe registers fn for every later transition.
func (m *Machine[S, E]) Observe(fn Observer[S, E]) {
	m.mu.Lock()
	m.observers = append(m.observers, fn)
	m.mu.Unlock()
}

func (m *Machine[S, E]) State() S {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Machine[S, E]) lookup(from S, event E) (Transition[S, E], bool) {
	if t, ok := m.index[key(from, event)]; ok {
		return t, true
	}
	t, ok := m.anyState[event]
	return t, ok
}

// Fire applies event atomically. Guard and Action run outside the lock.
func (m *Machine[S, E]) Fire(ctx context.Context, event E) (S, error) {
	m.mu.Lock()
	from := m.state
	t, ok := m.lookup(from, event)
	if !ok {
		m.mu.Unlock()
		return from, fmt.Errorf("%w: state=%s event=%s", ErrInvalidTransition, from, event)
	}
	to := t.To
	m.mu.Unlock()

	if t.Guard != nil {
		if err := t.Guard(ctx, from, event); err != nil {
			return from, err
		}
	}
	if t.Action != nil {
		if err := t.Action(ctx, from, to, event); err != nil {
			return from, err
		}
	}

	m.mu.Lock()
	if m.state != from {
		cur := m.state
		m.mu.Unlock()
		return cur, fmt.Errorf("concurrent transition detected: from=%s cur=%s event=%s", from, cur, event)
	}
	m.state = to
	observers := m.observers
	m.mu.Unlock()

	for _, fn := range observers {
		fn(from, to, event)
	}
	return to, nil
}

func key[S ~string, E ~string](from S, event E) string {
	return string(from) + "|" + string(event)
}
