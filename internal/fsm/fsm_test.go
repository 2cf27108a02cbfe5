// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package fsm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type state string
type event string

func machine(t *testing.T, guard error) *Machine[state, event] {
	t.Helper()
	m, err := New[state, event]("idle", []Transition[state, event]{
		{From: "idle", Event: "check", To: "checking"},
		{From: "checking", Event: "live", To: "capturing", Guard: func(context.Context, state, event) error { return guard }},
		{From: "checking", Event: "offline", To: "idle"},
		{From: Any, Event: "cancel", To: "cancelled"},
	})
	require.NoError(t, err)
	return m
}

func TestMachine_Fire(t *testing.T) {
	m := machine(t, nil)
	var seen []string
	m.Observe(func(from, to state, ev event) { seen = append(seen, string(from)+">"+string(to)) })

	to, err := m.Fire(context.Background(), "check")
	require.NoError(t, err)
	assert.Equal(t, state("checking"), to)

	_, err = m.Fire(context.Background(), "live")
	require.NoError(t, err)
	assert.Equal(t, state("capturing"), m.State())
	assert.Equal(t, []string{"idle>checking", "checking>capturing"}, seen)
}

func TestMachine_InvalidTransition(t *testing.T) {
	m := machine(t, nil)
	from, err := m.Fire(context.Background(), "live")
	require.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, state("idle"), from)
}

func TestMachine_GuardRejects(t *testing.T) {
	denied := errors.New("no slot")
	m := machine(t, denied)
	_, err := m.Fire(context.Background(), "check")
	require.NoError(t, err)
	_, err = m.Fire(context.Background(), "live")
	require.ErrorIs(t, err, denied)
	assert.Equal(t, state("checking"), m.State())
}

func TestMachine_AnyState(t *testing.T) {
	for _, path := range [][]event{nil, {"check"}, {"check", "live"}} {
		m := machine(t, nil)
		for _, ev := range path {
			_, err := m.Fire(context.Background(), ev)
			require.NoError(t, err)
		}
		to, err := m.Fire(context.Background(), "cancel")
		require.NoError(t, err)
		assert.Equal(t, state("cancelled"), to)
	}
}

func TestNew_RejectsDuplicates(t *testing.T) {
	_, err := New[state, event]("a", []Transition[state, event]{
		{From: "a", Event: "x", To: "b"},
		{From: "a", Event: "x", To: "c"},
	})
	assert.Error(t, err)
}
