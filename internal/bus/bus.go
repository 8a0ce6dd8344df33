// Package bus is the in-memory message bus scenario code publishes through.
// Destinations are plain names, payloads opaque bytes. Each payload is
// consumed by exactly one listener; payloads published before anyone listens
// stay queued on the destination.
package bus

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/tradelab/internal/errs"
)

// Filter decides whether a listener wants a payload.
type Filter func(payload []byte) bool

type waiter struct {
	filter Filter
	ch     chan []byte
}

type destination struct {
	queue   [][]byte
	waiters []*waiter
}

// Bus routes payloads between publishers and blocking listeners.
type Bus struct {
	mu    sync.Mutex
	dests map[string]*destination
	log   zerolog.Logger
}

// New builds an empty bus.
func New(log zerolog.Logger) *Bus {
	return &Bus{
		dests: make(map[string]*destination),
		log:   log.With().Str("component", "bus").Logger(),
	}
}

func (b *Bus) dest(name string) *destination {
	d, ok := b.dests[name]
	if !ok {
		d = &destination{}
		b.dests[name] = d
	}
	return d
}

// Publish hands the payload to the first waiting listener whose filter
// accepts it, queueing it on the destination otherwise.
func (b *Bus) Publish(destName string, payload []byte) {
	b.mu.Lock()
	d := b.dest(destName)
	for i, w := range d.waiters {
		if w.filter != nil && !w.filter(payload) {
			continue
		}
		d.waiters = append(d.waiters[:i], d.waiters[i+1:]...)
		b.mu.Unlock()
		w.ch <- payload
		return
	}
	d.queue = append(d.queue, payload)
	depth := len(d.queue)
	b.mu.Unlock()
	b.log.Debug().Str("destination", destName).Int("depth", depth).Msg("payload queued")
}

// Listen blocks until a payload arrives on the destination or the timeout
// elapses.
func (b *Bus) Listen(destName string, timeout time.Duration) ([]byte, error) {
	return b.ListenFilter(destName, nil, timeout)
}

// ListenFilter blocks until a payload matching the filter arrives. Queued
// payloads the filter declines stay queued for other listeners.
func (b *Bus) ListenFilter(destName string, filter Filter, timeout time.Duration) ([]byte, error) {
	b.mu.Lock()
	d := b.dest(destName)
	for i, payload := range d.queue {
		if filter != nil && !filter(payload) {
			continue
		}
		d.queue = append(d.queue[:i], d.queue[i+1:]...)
		b.mu.Unlock()
		return payload, nil
	}
	w := &waiter{filter: filter, ch: make(chan []byte, 1)}
	d.waiters = append(d.waiters, w)
	b.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case payload := <-w.ch:
		return payload, nil
	case <-timer.C:
		b.removeWaiter(destName, w)
		// A payload may have been handed over just as the timer fired.
		select {
		case payload := <-w.ch:
			return payload, nil
		default:
		}
		return nil, fmt.Errorf("destination %q: nothing arrived within %s: %w", destName, timeout, errs.ErrTimeout)
	}
}

// Pending returns how many payloads sit unconsumed on the destination.
func (b *Bus) Pending(destName string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if d, ok := b.dests[destName]; ok {
		return len(d.queue)
	}
	return 0
}

// Clear drops every queued payload on every destination. Waiting listeners
// are left waiting.
func (b *Bus) Clear() {
	b.mu.Lock()
	for _, d := range b.dests {
		d.queue = nil
	}
	b.mu.Unlock()
}

func (b *Bus) removeWaiter(destName string, target *waiter) {
	b.mu.Lock()
	defer b.mu.Unlock()
	d, ok := b.dests[destName]
	if !ok {
		return
	}
	for i, w := range d.waiters {
		if w == target {
			d.waiters = append(d.waiters[:i], d.waiters[i+1:]...)
			return
		}
	}
}
