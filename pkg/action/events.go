package action

import (
	"sync"
	"time"
)

// EventType classifies executor events.
type EventType int

const (
	Queued EventType = iota
	Started
	Finished
	Canceled
	Suspended
	Idle
)

var eventNames = [...]string{"queued", "started", "finished", "canceled", "suspended", "idle"}

func (t EventType) String() string {
	if t < 0 || int(t) >= len(eventNames) {
		return "unknown"
	}
	return eventNames[t]
}

// Event reports a change in the executor. Command is zero for Suspended and
// Idle.
type Event struct {
	Type    EventType
	Command Command
	Time    time.Time
	Err     error
}

// Observer receives events on the goroutine that produced them. It may be
// called concurrently and must not block or call back into the executor.
type Observer func(Event)

type observers struct {
	mu   sync.RWMutex
	next int
	subs map[int]Observer
}

func (o *observers) add(fn Observer) func() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.subs == nil {
		o.subs = make(map[int]Observer)
	}
	id := o.next
	o.next++
	o.subs[id] = fn
	return func() {
		o.mu.Lock()
		delete(o.subs, id)
		o.mu.Unlock()
	}
}

func (o *observers) emit(ev Event) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	for _, fn := range o.subs {
		fn(ev)
	}
}
