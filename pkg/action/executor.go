package action

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/edaniels/golog"
	"github.com/google/uuid"

	"github.com/gwillem/cyberdog/pkg/clock"
	"github.com/gwillem/cyberdog/pkg/gait"
)

// Executor timing defaults.
const (
	DefaultIdleTimeout = 1000 * time.Millisecond
	DefaultSettle      = 200 * time.Millisecond
)

// ErrClosed is returned by Enqueue after Close.
var ErrClosed = errors.New("executor closed")

// State is the lifecycle of the consumer goroutine.
type State int32

const (
	StateIdle     State = iota // no consumer
	StateRunning               // playing a gait
	StateDraining              // waiting for the next command
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	}
	return "unknown"
}

// Body is the motion group an executor drives.
type Body interface {
	gait.Mover
	Home(ctx context.Context) error
	IsResting() bool
	Attach()
	Detach()
}

// Config configures an Executor.
type Config struct {
	Body   Body
	Clock  clock.Clock
	Logger golog.Logger

	QueueSize   int
	IdleTimeout time.Duration
	Settle      time.Duration

	// HomeOnIdle homes the body before the consumer exits.
	HomeOnIdle bool
	// ReleaseOnIdle detaches every servo before the consumer exits. They are
	// attached again before the next gait.
	ReleaseOnIdle bool
}

// Executor owns the command queue and the consumer goroutine.
type Executor struct {
	body          Body
	clock         clock.Clock
	logger        golog.Logger
	queue         *Queue
	idleTimeout   time.Duration
	settle        time.Duration
	homeOnIdle    bool
	releaseOnIdle bool

	state     atomic.Int32
	observers observers

	// suspendMu serializes Suspend and Close.
	suspendMu sync.Mutex

	mu         sync.Mutex
	running    bool
	suspending bool
	closed     bool
	cancel     context.CancelFunc
	done       chan struct{}

	// released is owned by whoever owns the body: the consumer, or Suspend
	// after joining it.
	released bool
}

// New creates an idle executor.
func New(cfg Config) *Executor {
	if cfg.Clock == nil {
		cfg.Clock = clock.Real{}
	}
	if cfg.Logger == nil {
		cfg.Logger = golog.Global()
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.Settle < 0 {
		cfg.Settle = 0
	}
	return &Executor{
		body:          cfg.Body,
		clock:         cfg.Clock,
		logger:        cfg.Logger,
		queue:         NewQueue(cfg.QueueSize),
		idleTimeout:   cfg.IdleTimeout,
		settle:        cfg.Settle,
		homeOnIdle:    cfg.HomeOnIdle,
		releaseOnIdle: cfg.ReleaseOnIdle,
	}
}

// Subscribe registers fn for executor events and returns a function that
// removes it.
func (e *Executor) Subscribe(fn Observer) func() {
	return e.observers.add(fn)
}

// State returns the consumer state.
func (e *Executor) State() State { return State(e.state.Load()) }

// Pending returns the number of queued commands.
func (e *Executor) Pending() int { return e.queue.Len() }

// IsResting reports whether the body sits in its neutral pose.
func (e *Executor) IsResting() bool { return e.body.IsResting() }

// Enqueue clamps cmd and appends it to the queue, blocking while the queue is
// full. A Stop command suspends the executor instead. The returned command is
// the one that was queued.
func (e *Executor) Enqueue(ctx context.Context, cmd Command) (Command, error) {
	if cmd.ID == uuid.Nil {
		cmd.ID = uuid.New()
	}
	if cmd.Kind == Stop {
		return cmd, e.Suspend(ctx)
	}
	cmd = cmd.Clamp(e.logger)

	e.mu.Lock()
	closed := e.closed
	e.mu.Unlock()
	if closed {
		return cmd, ErrClosed
	}

	if err := e.queue.Push(ctx, cmd); err != nil {
		return cmd, fmt.Errorf("enqueue %s: %w", cmd.Kind, err)
	}
	e.logger.Infow("action queued", "id", cmd.ID, "action", cmd.Kind, "steps", cmd.Steps, "speed", cmd.Speed)
	e.emit(Queued, cmd, nil)

	e.mu.Lock()
	if !e.running && !e.suspending && !e.closed {
		e.startLocked()
	}
	e.mu.Unlock()
	return cmd, nil
}

// Suspend cancels the running gait at its next safe boundary, waits for the
// consumer to exit, drops every queued command and homes the body.
func (e *Executor) Suspend(ctx context.Context) error {
	e.suspendMu.Lock()
	defer e.suspendMu.Unlock()

	e.join(func() { e.suspending = true })
	for _, cmd := range e.queue.Reset() {
		e.emit(Canceled, cmd, context.Canceled)
	}
	e.logger.Infow("executor suspended")

	if e.released {
		e.body.Attach()
		e.released = false
	}
	err := e.body.Home(ctx)
	e.emit(Suspended, Command{}, err)

	e.mu.Lock()
	e.suspending = false
	if e.queue.Len() > 0 && !e.closed {
		e.startLocked()
	}
	e.mu.Unlock()

	if err != nil {
		return fmt.Errorf("home after suspend: %w", err)
	}
	return nil
}

// Close stops the consumer and drops pending commands. Further Enqueue calls
// fail with ErrClosed.
func (e *Executor) Close() error {
	e.suspendMu.Lock()
	defer e.suspendMu.Unlock()

	e.join(func() { e.closed = true })
	for _, cmd := range e.queue.Reset() {
		e.emit(Canceled, cmd, ErrClosed)
	}
	return nil
}

// Wait blocks until the queue is empty and the consumer has exited.
func (e *Executor) Wait(ctx context.Context) error {
	for {
		e.mu.Lock()
		running, done := e.running, e.done
		pending := e.queue.Len()
		e.mu.Unlock()

		if !running && pending == 0 {
			return nil
		}
		if done == nil {
			// Queued while Suspend holds the consumer back.
			select {
			case <-time.After(10 * time.Millisecond):
			case <-ctx.Done():
				return ctx.Err()
			}
			continue
		}
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// join marks the executor with mark, cancels the consumer and waits for it to
// exit.
func (e *Executor) join(mark func()) {
	e.mu.Lock()
	mark()
	cancel, done := e.cancel, e.done
	e.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	e.state.Store(int32(StateIdle))
}

func (e *Executor) startLocked() {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	e.running = true
	e.cancel = cancel
	e.done = done
	e.state.Store(int32(StateDraining))
	go e.run(ctx, cancel, done)
}

func (e *Executor) run(ctx context.Context, cancel context.CancelFunc, done chan struct{}) {
	defer func() {
		cancel()
		e.mu.Lock()
		if e.done == done {
			e.running = false
			e.cancel = nil
			e.done = nil
		}
		e.mu.Unlock()
		close(done)
	}()
	e.logger.Debugw("consumer started")

	for {
		e.state.Store(int32(StateDraining))
		cmd, ok := e.queue.Pop(ctx, e.idleTimeout)
		if ctx.Err() != nil {
			if ok {
				e.emit(Canceled, cmd, ctx.Err())
			}
			return
		}
		if !ok {
			if e.idle(ctx) {
				return
			}
			continue
		}

		e.execute(ctx, cmd)
		if err := e.clock.Sleep(ctx, e.settle); err != nil {
			return
		}
	}
}

func (e *Executor) execute(ctx context.Context, cmd Command) {
	g, ok := cmd.Kind.Gait()
	if !ok {
		e.logger.Errorw("no gait for action", "id", cmd.ID, "action", cmd.Kind)
		e.emit(Finished, cmd, fmt.Errorf("no gait for %s", cmd.Kind))
		return
	}
	if e.released {
		e.body.Attach()
		e.released = false
	}

	e.state.Store(int32(StateRunning))
	e.logger.Infow("executing action", "id", cmd.ID, "action", cmd.Kind, "steps", cmd.Steps, "speed", cmd.Speed)
	e.emit(Started, cmd, nil)

	err := g.Run(ctx, e.body, e.clock, cmd.Steps, cmd.StepTime())
	switch {
	case err == nil:
		e.emit(Finished, cmd, nil)
	case ctx.Err() != nil:
		e.logger.Infow("action canceled", "id", cmd.ID, "action", cmd.Kind)
		e.emit(Canceled, cmd, err)
	default:
		e.logger.Errorw("action failed", "id", cmd.ID, "action", cmd.Kind, "error", err)
		e.emit(Finished, cmd, err)
	}
}

// idle runs the optional idle work and reports whether the consumer may exit.
// It returns false if a command arrived meanwhile.
func (e *Executor) idle(ctx context.Context) bool {
	if e.queue.Len() > 0 {
		return false
	}
	if e.homeOnIdle {
		if err := e.body.Home(ctx); err != nil {
			return true
		}
	}
	if e.releaseOnIdle && !e.released && e.queue.Len() == 0 {
		e.body.Detach()
		e.released = true
		e.logger.Debugw("servos released")
	}

	e.mu.Lock()
	if e.queue.Len() > 0 {
		e.mu.Unlock()
		return false
	}
	e.running = false
	e.cancel = nil
	e.done = nil
	e.state.Store(int32(StateIdle))
	e.logger.Infow("action queue empty, consumer exiting")
	e.emit(Idle, Command{}, nil)
	e.mu.Unlock()
	return true
}

func (e *Executor) emit(t EventType, cmd Command, err error) {
	e.observers.emit(Event{Type: t, Command: cmd, Time: e.clock.Now(), Err: err})
}
