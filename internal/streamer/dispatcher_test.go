// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package streamer_test

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ManuGH/streamrec/internal/streamer"
)

func TestDispatcher_DeliversInOrder(t *testing.T) {
	rec := &recorder{}
	d := streamer.NewDispatcher(rec)
	s := streamer.Streamer{Name: "alice"}

	var want []string
	for i := 0; i < 100; i++ {
		d.Emit(func(l streamer.Listener) { l.OnCancelled(s, fmt.Sprint(i)) })
		want = append(want, fmt.Sprintf("cancelled=%d", i))
	}
	d.Close()

	assert.Equal(t, want, rec.Events())
}

func TestDispatcher_RecoversListenerPanic(t *testing.T) {
	rec := &recorder{}
	panicky := streamer.ListenerFuncs{
		LiveStatus: func(streamer.Streamer, bool) { panic("boom") },
	}
	d := streamer.NewDispatcher(panicky, rec)
	s := streamer.Streamer{Name: "bob"}

	d.Emit(func(l streamer.Listener) { l.OnLiveStatus(s, true) })
	d.Emit(func(l streamer.Listener) { l.OnLiveStatus(s, false) })
	d.Close()

	assert.Equal(t, []string{"live=true", "live=false"}, rec.Events())
}

func TestDispatcher_EmitAfterCloseIsDropped(t *testing.T) {
	rec := &recorder{}
	d := streamer.NewDispatcher(rec)
	d.Close()
	d.Close()

	d.Emit(func(l streamer.Listener) { l.OnCancelled(streamer.Streamer{}, "late") })
	assert.Empty(t, rec.Events())
}

func TestDispatcher_ConcurrentEmitters(t *testing.T) {
	rec := &recorder{}
	d := streamer.NewDispatcher(rec)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				d.Emit(func(l streamer.Listener) { l.OnLiveStatus(streamer.Streamer{}, true) })
			}
		}()
	}
	wg.Wait()
	d.Close()

	assert.Len(t, rec.Events(), 400)
}
