package hw

import (
	"fmt"
	"sync"

	"github.com/gwillem/cyberdog/pkg/pwm"
)

// DutyWrite is a single recorded SetDuty call.
type DutyWrite struct {
	Channel pwm.Channel
	Duty    uint32
}

// Sim is an in-memory pulse-output backend. It records every duty write and
// is used for dry runs and tests.
type Sim struct {
	mu     sync.Mutex
	pins   map[pwm.Channel]int
	duty   map[pwm.Channel]uint32
	writes []DutyWrite
	err    error
}

// NewSim creates an empty simulated backend.
func NewSim() *Sim {
	return &Sim{
		pins: make(map[pwm.Channel]int),
		duty: make(map[pwm.Channel]uint32),
	}
}

func (s *Sim) Configure(ch pwm.Channel, pin int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if owner, ok := s.pins[ch]; ok && owner != pin {
		return fmt.Errorf("channel %d already bound to pin %d", ch, owner)
	}
	s.pins[ch] = pin
	s.duty[ch] = 0
	return nil
}

func (s *Sim) SetDuty(ch pwm.Channel, duty uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return s.err
	}
	if _, ok := s.pins[ch]; !ok {
		return fmt.Errorf("channel %d not configured", ch)
	}
	s.duty[ch] = duty
	s.writes = append(s.writes, DutyWrite{Channel: ch, Duty: duty})
	return nil
}

func (s *Sim) Stop(ch pwm.Channel) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.pins, ch)
	delete(s.duty, ch)
	return nil
}

// Close is a no-op; it lets Sim stand in for closable backends.
func (s *Sim) Close() error {
	return nil
}

// Fail makes every following SetDuty return err. Pass nil to recover.
func (s *Sim) Fail(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

// Duty returns the last duty committed to ch.
func (s *Sim) Duty(ch pwm.Channel) (uint32, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.duty[ch]
	return d, ok
}

// Pin returns the pin ch is bound to.
func (s *Sim) Pin(ch pwm.Channel) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pins[ch]
	return p, ok
}

// Writes returns a copy of every recorded duty write.
func (s *Sim) Writes() []DutyWrite {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]DutyWrite, len(s.writes))
	copy(out, s.writes)
	return out
}

// ResetWrites clears the write history.
func (s *Sim) ResetWrites() {
	s.mu.Lock()
	s.writes = nil
	s.mu.Unlock()
}
