package action

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/edaniels/golog"

	"github.com/gwillem/cyberdog/pkg/clock"
	"github.com/gwillem/cyberdog/pkg/motion"
)

type fakeBody struct {
	mu       sync.Mutex
	moves    []motion.Pose
	homes    int
	resting  bool
	attached bool
	attaches int

	// When block is set, MoveServos signals entered and waits for block to
	// close or ctx to end.
	block   chan struct{}
	entered chan struct{}
}

func newFakeBody() *fakeBody {
	return &fakeBody{attached: true, entered: make(chan struct{}, 100)}
}

func (b *fakeBody) MoveServos(ctx context.Context, d time.Duration, target motion.Pose) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	b.resting = false
	b.moves = append(b.moves, target)
	attached := b.attached
	block := b.block
	b.mu.Unlock()

	if !attached {
		return errors.New("move on detached body")
	}
	if block != nil {
		b.entered <- struct{}{}
		select {
		case <-block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (b *fakeBody) Home(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.homes++
	b.resting = true
	return ctx.Err()
}

func (b *fakeBody) IsResting() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.resting
}

func (b *fakeBody) Attach() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.attached = true
	b.attaches++
}

func (b *fakeBody) Detach() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.attached = false
}

func (b *fakeBody) snapshot() (homes int, attached bool, attaches int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.homes, b.attached, b.attaches
}

type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) observe(ev Event) {
	l.mu.Lock()
	l.events = append(l.events, ev)
	l.mu.Unlock()
}

func (l *eventLog) of(t EventType) []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []Event
	for _, ev := range l.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

func newTestExecutor(t *testing.T, body *fakeBody, mod func(*Config)) (*Executor, *eventLog) {
	t.Helper()
	cfg := Config{
		Body:        body,
		Clock:       clock.NewFake(),
		Logger:      golog.NewTestLogger(t),
		IdleTimeout: 20 * time.Millisecond,
		Settle:      DefaultSettle,
	}
	if mod != nil {
		mod(&cfg)
	}
	e := New(cfg)
	log := &eventLog{}
	e.Subscribe(log.observe)
	t.Cleanup(func() { e.Close() })
	return e, log
}

func waitCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestExecutor_FIFOAcrossProducers(t *testing.T) {
	e, log := newTestExecutor(t, newFakeBody(), nil)
	ctx := waitCtx(t)

	order := []Kind{Forward, Sway, Sit}
	for _, k := range order {
		var wg sync.WaitGroup
		wg.Add(1)
		go func(k Kind) {
			defer wg.Done()
			if _, err := e.Enqueue(ctx, NewCommand(k, 1, 800)); err != nil {
				t.Errorf("Enqueue(%s) error: %v", k, err)
			}
		}(k)
		wg.Wait()
	}

	if err := e.Wait(ctx); err != nil {
		t.Fatalf("Wait() error: %v", err)
	}
	started := log.of(Started)
	if len(started) != len(order) {
		t.Fatalf("started %d actions, want %d", len(started), len(order))
	}
	for i, ev := range started {
		if ev.Command.Kind != order[i] {
			t.Errorf("action %d = %s, want %s", i, ev.Command.Kind, order[i])
		}
	}
	if n := len(log.of(Finished)); n != len(order) {
		t.Errorf("finished %d actions, want %d", n, len(order))
	}
}

func TestExecutor_ConcurrentProducersKeepOrder(t *testing.T) {
	e, log := newTestExecutor(t, newFakeBody(), func(c *Config) { c.QueueSize = 3 })
	ctx := waitCtx(t)

	const producers, perProducer = 4, 6
	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				// Steps encodes the per-producer sequence number.
				cmd := NewCommand(Kinds()[p], i+1, 500)
				if _, err := e.Enqueue(ctx, cmd); err != nil {
					t.Errorf("Enqueue() error: %v", err)
				}
			}
		}(p)
	}
	wg.Wait()
	if err := e.Wait(ctx); err != nil {
		t.Fatal(err)
	}

	started := log.of(Started)
	if len(started) != producers*perProducer {
		t.Fatalf("started %d actions, want %d", len(started), producers*perProducer)
	}
	last := make(map[Kind]int)
	for _, ev := range started {
		if ev.Command.Steps <= last[ev.Command.Kind] {
			t.Fatalf("%s step %d ran after step %d", ev.Command.Kind, ev.Command.Steps, last[ev.Command.Kind])
		}
		last[ev.Command.Kind] = ev.Command.Steps
	}
}

func TestExecutor_LazyLifecycle(t *testing.T) {
	e, log := newTestExecutor(t, newFakeBody(), nil)
	ctx := waitCtx(t)

	if e.State() != StateIdle {
		t.Fatalf("State() = %s before first command, want idle", e.State())
	}

	for round := 1; round <= 2; round++ {
		if _, err := e.Enqueue(ctx, NewCommand(Wave, 1, 1000)); err != nil {
			t.Fatal(err)
		}
		if err := e.Wait(ctx); err != nil {
			t.Fatal(err)
		}
		if e.State() != StateIdle {
			t.Errorf("round %d: State() = %s after Wait, want idle", round, e.State())
		}
		if n := len(log.of(Idle)); n != round {
			t.Errorf("round %d: idle events = %d, want %d", round, n, round)
		}
	}
}

func TestExecutor_Suspend(t *testing.T) {
	body := newFakeBody()
	body.block = make(chan struct{})
	e, log := newTestExecutor(t, body, nil)
	ctx := waitCtx(t)

	for _, k := range []Kind{Forward, Backward, TurnLeft} {
		if _, err := e.Enqueue(ctx, NewCommand(k, 3, 1000)); err != nil {
			t.Fatal(err)
		}
	}
	<-body.entered
	if e.State() != StateRunning {
		t.Errorf("State() = %s mid-gait, want running", e.State())
	}

	if err := e.Suspend(ctx); err != nil {
		t.Fatalf("Suspend() error: %v", err)
	}
	if n := e.Pending(); n != 0 {
		t.Errorf("Pending() = %d after Suspend, want 0", n)
	}
	if !e.IsResting() {
		t.Error("IsResting() = false after Suspend")
	}
	if e.State() != StateIdle {
		t.Errorf("State() = %s after Suspend, want idle", e.State())
	}

	canceled := log.of(Canceled)
	if len(canceled) != 3 {
		t.Fatalf("canceled %d actions, want 3", len(canceled))
	}
	if canceled[0].Command.Kind != Forward {
		t.Errorf("first canceled = %s, want the running forward", canceled[0].Command.Kind)
	}
	if n := len(log.of(Suspended)); n != 1 {
		t.Errorf("suspended events = %d, want 1", n)
	}
	if n := len(log.of(Finished)); n != 0 {
		t.Errorf("finished events = %d, want 0", n)
	}

	// The executor keeps working after a suspend.
	close(body.block)
	if _, err := e.Enqueue(ctx, NewCommand(Sit, 1, 1000)); err != nil {
		t.Fatal(err)
	}
	if err := e.Wait(ctx); err != nil {
		t.Fatal(err)
	}
	if n := len(log.of(Finished)); n != 1 {
		t.Errorf("finished events after resume = %d, want 1", n)
	}
}

func TestExecutor_SuspendWhenIdle(t *testing.T) {
	body := newFakeBody()
	e, _ := newTestExecutor(t, body, nil)

	if err := e.Suspend(context.Background()); err != nil {
		t.Fatal(err)
	}
	if homes, _, _ := body.snapshot(); homes != 1 {
		t.Errorf("homes = %d, want 1", homes)
	}
	if !e.IsResting() {
		t.Error("IsResting() = false after Suspend")
	}
}

func TestExecutor_StopSuspends(t *testing.T) {
	body := newFakeBody()
	e, log := newTestExecutor(t, body, nil)

	if _, err := e.Enqueue(context.Background(), NewCommand(Stop, 0, 0)); err != nil {
		t.Fatalf("Enqueue(stop) error: %v", err)
	}
	if homes, _, _ := body.snapshot(); homes != 1 {
		t.Errorf("homes = %d, want 1", homes)
	}
	if n := len(log.of(Queued)); n != 0 {
		t.Errorf("stop was queued %d times", n)
	}
}

func TestExecutor_Backpressure(t *testing.T) {
	body := newFakeBody()
	body.block = make(chan struct{})
	e, _ := newTestExecutor(t, body, func(c *Config) { c.QueueSize = 1 })
	ctx := waitCtx(t)

	if _, err := e.Enqueue(ctx, NewCommand(Forward, 1, 1000)); err != nil {
		t.Fatal(err)
	}
	<-body.entered // first command popped and running
	if _, err := e.Enqueue(ctx, NewCommand(Backward, 1, 1000)); err != nil {
		t.Fatal(err)
	}

	short, cancel := context.WithTimeout(ctx, 30*time.Millisecond)
	defer cancel()
	if _, err := e.Enqueue(short, NewCommand(Sit, 1, 1000)); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Enqueue() on full queue err = %v, want deadline exceeded", err)
	}

	blocked := make(chan error, 1)
	go func() {
		_, err := e.Enqueue(ctx, NewCommand(Rest, 1, 1000))
		blocked <- err
	}()
	select {
	case err := <-blocked:
		t.Fatalf("Enqueue() returned %v while queue full", err)
	case <-time.After(30 * time.Millisecond):
	}

	close(body.block)
	if err := <-blocked; err != nil {
		t.Fatalf("Enqueue() after space freed: %v", err)
	}
	if err := e.Wait(ctx); err != nil {
		t.Fatal(err)
	}
}

func TestExecutor_IdleHomeAndRelease(t *testing.T) {
	body := newFakeBody()
	e, _ := newTestExecutor(t, body, func(c *Config) {
		c.HomeOnIdle = true
		c.ReleaseOnIdle = true
	})
	ctx := waitCtx(t)

	if _, err := e.Enqueue(ctx, NewCommand(TurnRight, 1, 600)); err != nil {
		t.Fatal(err)
	}
	if err := e.Wait(ctx); err != nil {
		t.Fatal(err)
	}
	homes, attached, _ := body.snapshot()
	if homes != 1 {
		t.Errorf("homes after idle = %d, want 1", homes)
	}
	if attached {
		t.Error("servos still attached after idle release")
	}

	// The next command re-attaches before moving.
	if _, err := e.Enqueue(ctx, NewCommand(TurnLeft, 1, 600)); err != nil {
		t.Fatal(err)
	}
	if err := e.Wait(ctx); err != nil {
		t.Fatal(err)
	}
	if _, _, attaches := body.snapshot(); attaches != 1 {
		t.Errorf("attaches = %d, want 1", attaches)
	}
}

func TestExecutor_Close(t *testing.T) {
	e, _ := newTestExecutor(t, newFakeBody(), nil)
	if err := e.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := e.Enqueue(context.Background(), NewCommand(Forward, 1, 1000)); !errors.Is(err, ErrClosed) {
		t.Errorf("Enqueue() after Close err = %v, want ErrClosed", err)
	}
}

func TestExecutor_ClampsOnEnqueue(t *testing.T) {
	logger, logs := golog.NewObservedTestLogger(t)
	e, log := newTestExecutor(t, newFakeBody(), func(c *Config) { c.Logger = logger })
	ctx := waitCtx(t)

	cmd, err := e.Enqueue(ctx, NewCommand(Kind(42), 99, 10))
	if err != nil {
		t.Fatal(err)
	}
	if cmd.Kind != Rest || cmd.Steps != MaxSteps || cmd.Speed != MinSpeed {
		t.Errorf("queued %+v, want rest/%d/%d", cmd, MaxSteps, MinSpeed)
	}
	if n := logs.FilterMessageSnippet("clamped").Len(); n != 3 {
		t.Errorf("clamp warnings = %d, want 3", n)
	}
	if err := e.Wait(ctx); err != nil {
		t.Fatal(err)
	}
	if started := log.of(Started); len(started) != 1 || started[0].Command.ID != cmd.ID {
		t.Errorf("started events = %+v", started)
	}
}
