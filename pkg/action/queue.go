package action

import (
	"context"
	"time"
)

// DefaultQueueSize is the capacity of the command queue.
const DefaultQueueSize = 10

// Queue is a bounded FIFO of commands, safe for many producers and one
// consumer.
type Queue struct {
	ch chan Command
}

// NewQueue creates a queue holding up to size commands.
func NewQueue(size int) *Queue {
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &Queue{ch: make(chan Command, size)}
}

// Push appends cmd, blocking while the queue is full.
func (q *Queue) Push(ctx context.Context, cmd Command) error {
	select {
	case q.ch <- cmd:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pop removes the oldest command. It returns false if none arrives within
// timeout or ctx is done first.
func (q *Queue) Pop(ctx context.Context, timeout time.Duration) (Command, bool) {
	select {
	case cmd := <-q.ch:
		return cmd, true
	default:
	}

	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case cmd := <-q.ch:
		return cmd, true
	case <-t.C:
		return Command{}, false
	case <-ctx.Done():
		return Command{}, false
	}
}

// Reset drops every pending command and returns them in queue order.
func (q *Queue) Reset() []Command {
	var dropped []Command
	for {
		select {
		case cmd := <-q.ch:
			dropped = append(dropped, cmd)
		default:
			return dropped
		}
	}
}

func (q *Queue) Len() int { return len(q.ch) }
func (q *Queue) Cap() int { return cap(q.ch) }
