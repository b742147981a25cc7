// Package events fans out solve progress to stream subscribers.
package events

import (
	"sync"
)

const (
	SolveStarted   = "solve.started"
	SolveImproved  = "solve.improved"
	SolveCompleted = "solve.completed"
	SolveFailed    = "solve.failed"
)

type Event struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data,omitempty"`
}

// Terminal reports whether no further events follow for the solve.
func (e Event) Terminal() bool { return e.Type == SolveCompleted || e.Type == SolveFailed }

// EventBroker delivers events published for a solve ID to its current subscribers.
// Slow subscribers drop progress events rather than block publishers; terminal events
// are always delivered.
type EventBroker interface {
	Subscribe(solveID string) chan Event
	Unsubscribe(solveID string, ch chan Event)
	Publish(solveID string, evt Event)
}

// Broker is the in-process EventBroker.
type Broker struct {
	mu   sync.Mutex
	subs map[string]map[chan Event]struct{} // solveID -> set of channels
}

func NewBroker() *Broker {
	return &Broker{subs: map[string]map[chan Event]struct{}{}}
}

func (b *Broker) Subscribe(solveID string) chan Event {
	ch := make(chan Event, 8)
	b.mu.Lock()
	if b.subs[solveID] == nil {
		b.subs[solveID] = map[chan Event]struct{}{}
	}
	b.subs[solveID][ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

func (b *Broker) Unsubscribe(solveID string, ch chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	m := b.subs[solveID]
	if _, ok := m[ch]; !ok {
		return
	}
	delete(m, ch)
	if len(m) == 0 {
		delete(b.subs, solveID)
	}
	close(ch)
}

func (b *Broker) Publish(solveID string, evt Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs[solveID] {
		deliver(ch, evt)
	}
}

// deliver never blocks. A full buffer drops non-terminal events; a terminal event evicts
// the oldest queued one instead, since streams close only when they see it.
func deliver(ch chan Event, evt Event) {
	select {
	case ch <- evt:
		return
	default:
	}
	if !evt.Terminal() {
		return
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- evt:
	default:
	}
}
