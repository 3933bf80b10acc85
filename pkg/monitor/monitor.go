// Package monitor samples the dog's state for live displays.
package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gwillem/cyberdog/pkg/action"
	"github.com/gwillem/cyberdog/pkg/motion"
	"github.com/gwillem/cyberdog/pkg/robot"
)

// State is one sample of the dog.
type State struct {
	Positions motion.Pose
	Resting   bool
	Executor  action.State
	Pending   int
	Current   *action.Command
	Timestamp time.Time
}

// Monitor polls the dog at a fixed rate and turns executor events into log
// lines.
type Monitor struct {
	dog *robot.Dog
	hz  int

	mu          sync.RWMutex
	running     bool
	current     *action.Command
	unsubscribe func()
	stateCh     chan State
	logCh       chan string
}

// Config holds configuration for the monitor.
type Config struct {
	Dog *robot.Dog
	Hz  int
}

// New creates a monitor and subscribes it to the dog's executor.
func New(cfg Config) *Monitor {
	if cfg.Hz <= 0 {
		cfg.Hz = 30
	}
	m := &Monitor{
		dog:     cfg.Dog,
		hz:      cfg.Hz,
		stateCh: make(chan State, 1),
		logCh:   make(chan string, 10),
	}
	m.unsubscribe = cfg.Dog.Executor().Subscribe(m.observe)
	return m
}

// Close unsubscribes from the executor.
func (m *Monitor) Close() error {
	m.mu.Lock()
	m.running = false
	m.mu.Unlock()
	m.unsubscribe()
	return nil
}

// States returns a channel that receives state updates.
func (m *Monitor) States() <-chan State {
	return m.stateCh
}

// Logs returns a channel that receives log messages.
func (m *Monitor) Logs() <-chan string {
	return m.logCh
}

// Hz returns the sampling frequency.
func (m *Monitor) Hz() int {
	return m.hz
}

// Logf adds a line to the log stream.
func (m *Monitor) Logf(format string, args ...any) {
	msg := fmt.Sprintf("[%s] %s", time.Now().Format("15:04:05"), fmt.Sprintf(format, args...))
	select {
	case m.logCh <- msg:
	default:
		// Drop if channel full
	}
}

// Start samples until ctx is done.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return fmt.Errorf("already running")
	}
	m.running = true
	m.mu.Unlock()

	m.Logf("Monitoring at %d Hz", m.hz)

	ticker := time.NewTicker(time.Second / time.Duration(m.hz))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.mu.Lock()
			m.running = false
			m.mu.Unlock()
			return ctx.Err()
		case <-ticker.C:
			m.sendState(m.Sample())
		}
	}
}

// Sample reads the current state.
func (m *Monitor) Sample() State {
	ex := m.dog.Executor()
	m.mu.RLock()
	current := m.current
	m.mu.RUnlock()
	return State{
		Positions: m.dog.Positions(),
		Resting:   m.dog.IsResting(),
		Executor:  ex.State(),
		Pending:   ex.Pending(),
		Current:   current,
		Timestamp: time.Now(),
	}
}

func (m *Monitor) observe(ev action.Event) {
	cmd := ev.Command
	switch ev.Type {
	case action.Queued:
		m.Logf("Queued %s (%d steps, speed %d)", cmd.Kind, cmd.Steps, cmd.Speed)
	case action.Started:
		m.setCurrent(&cmd)
		m.Logf("Started %s", cmd.Kind)
	case action.Finished:
		m.setCurrent(nil)
		if ev.Err != nil {
			m.Logf("Failed %s: %v", cmd.Kind, ev.Err)
		} else {
			m.Logf("Finished %s", cmd.Kind)
		}
	case action.Canceled:
		m.clearIf(cmd)
		m.Logf("Canceled %s", cmd.Kind)
	case action.Suspended:
		m.setCurrent(nil)
		if ev.Err != nil {
			m.Logf("Suspended, home failed: %v", ev.Err)
		} else {
			m.Logf("Suspended, at rest")
		}
	case action.Idle:
		m.Logf("Queue empty, idle")
	}
}

func (m *Monitor) setCurrent(cmd *action.Command) {
	m.mu.Lock()
	m.current = cmd
	m.mu.Unlock()
}

func (m *Monitor) clearIf(cmd action.Command) {
	m.mu.Lock()
	if m.current != nil && m.current.ID == cmd.ID {
		m.current = nil
	}
	m.mu.Unlock()
}

func (m *Monitor) sendState(s State) {
	select {
	case m.stateCh <- s:
	default:
		// Drop old state if channel full, replace with new
		select {
		case <-m.stateCh:
		default:
		}
		m.stateCh <- s
	}
}
