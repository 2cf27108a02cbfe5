// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package streamer

import (
	"sync"

	"github.com/rs/zerolog"

	xglog "github.com/ManuGH/streamrec/internal/log"
)

// Dispatcher delivers notifications to listeners on one goroutine, in the
// order they were emitted. Emit never blocks on listeners.
type Dispatcher struct {
	log zerolog.Logger

	mu        sync.Mutex
	listeners []Listener
	queue     []func(Listener)
	closed    bool

	wake chan struct{}
	done chan struct{}
}

// NewDispatcher starts the delivery goroutine.
func NewDispatcher(listeners ...Listener) *Dispatcher {
	d := &Dispatcher{
		log:       xglog.WithComponent("dispatcher"),
		listeners: listeners,
		wake:      make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
	go d.loop()
	return d
}

// Emit queues fn to be called once per listener.
func (d *Dispatcher) Emit(fn func(Listener)) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.queue = append(d.queue, fn)
	select {
	case d.wake <- struct{}{}:
	default:
	}
	d.mu.Unlock()
}

// Close delivers everything already queued and stops the goroutine.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		<-d.done
		return
	}
	d.closed = true
	close(d.wake)
	d.mu.Unlock()
	<-d.done
}

func (d *Dispatcher) loop() {
	defer close(d.done)
	for {
		d.mu.Lock()
		batch := d.queue
		d.queue = nil
		listeners := d.listeners
		closed := d.closed
		d.mu.Unlock()

		for _, fn := range batch {
			for _, l := range listeners {
				d.deliver(fn, l)
			}
		}
		if len(batch) > 0 {
			continue
		}
		if closed {
			return
		}
		<-d.wake
	}
}

func (d *Dispatcher) deliver(fn func(Listener), l Listener) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error().Interface("panic", r).Msg("listener panicked")
		}
	}()
	fn(l)
}
