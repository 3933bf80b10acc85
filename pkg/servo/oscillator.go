// Package servo drives a single hobby servo from a leased pwm channel.
//
// An Oscillator supports two modes: direct positioning via SetPosition, and
// periodic waveform generation via Refresh, which samples
// amplitude*sin(phase+phase0)+offset around the neutral angle.
package servo

import (
	"math"
	"sync/atomic"
	"time"

	"github.com/edaniels/golog"

	"github.com/gwillem/cyberdog/pkg/clock"
	"github.com/gwillem/cyberdog/pkg/pwm"
)

// Waveform defaults.
const (
	DefaultPeriod         = 2000 * time.Millisecond
	DefaultSamplingPeriod = 30 * time.Millisecond
	DefaultAmplitude      = 45
	Center                = 90
)

// Config holds the collaborators of an Oscillator.
type Config struct {
	Name      string
	Allocator *pwm.Allocator
	Driver    pwm.Driver
	Clock     clock.Clock
	Logger    golog.Logger
	Trim      int
}

// Oscillator owns at most one channel lease and converts logical angles into
// duty values on it. It is not safe for concurrent use, except for the
// Position and Angle readouts.
type Oscillator struct {
	name   string
	alloc  *pwm.Allocator
	driver pwm.Driver
	clock  clock.Clock
	logger golog.Logger

	pin      int
	reversed bool
	channel  pwm.Channel
	attached bool

	pos   atomic.Int32 // logical position before trim
	angle atomic.Int32 // last effective angle committed to hardware
	trim  int
	limit int // degrees per second, 0 = unlimited

	amplitude int
	offset    int
	period    time.Duration
	sampling  time.Duration
	samples   float64
	inc       float64
	phase0    float64
	phase     float64
	stopped   bool

	lastSample  time.Time
	lastCommand time.Time
}

// New creates a detached oscillator at the neutral position.
func New(cfg Config) *Oscillator {
	if cfg.Clock == nil {
		cfg.Clock = clock.Real{}
	}
	if cfg.Logger == nil {
		cfg.Logger = golog.Global()
	}
	o := &Oscillator{
		name:      cfg.Name,
		alloc:     cfg.Allocator,
		driver:    cfg.Driver,
		clock:     cfg.Clock,
		logger:    cfg.Logger,
		pin:       -1,
		channel:   pwm.NoChannel,
		trim:      cfg.Trim,
		amplitude: DefaultAmplitude,
		sampling:  DefaultSamplingPeriod,
	}
	o.pos.Store(Center)
	o.angle.Store(Center)
	o.SetPeriod(DefaultPeriod)
	return o
}

// Attach leases a channel and binds it to pin. An attached oscillator is
// detached first. When no channel is available the error is logged and the
// oscillator stays detached, ignoring position writes.
func (o *Oscillator) Attach(pin int, reversed bool) {
	if o.attached {
		o.Detach()
	}
	o.pin = pin
	o.reversed = reversed

	ch, err := o.alloc.Allocate()
	if err != nil {
		o.logger.Errorw("cannot attach servo", "servo", o.name, "pin", pin, "error", err)
		return
	}
	if err := o.driver.Configure(ch, pin); err != nil {
		o.alloc.Free(ch)
		o.logger.Errorw("cannot configure channel", "servo", o.name, "pin", pin, "channel", ch, "error", err)
		return
	}

	o.channel = ch
	o.attached = true
	now := o.clock.Now()
	o.lastCommand = now
	o.lastSample = now
	o.phase = 0
	o.logger.Infow("servo attached", "servo", o.name, "pin", pin, "channel", ch, "reversed", reversed)
}

// Detach stops the channel and returns it to the pool.
func (o *Oscillator) Detach() {
	if !o.attached {
		return
	}
	if err := o.driver.Stop(o.channel); err != nil {
		o.logger.Warnw("stop channel failed", "servo", o.name, "channel", o.channel, "error", err)
	}
	o.alloc.Free(o.channel)
	o.logger.Debugw("servo detached", "servo", o.name, "channel", o.channel)
	o.channel = pwm.NoChannel
	o.attached = false
}

func (o *Oscillator) SetTrim(trim int) { o.trim = trim }
func (o *Oscillator) SetAmplitude(a int) { o.amplitude = a }
func (o *Oscillator) SetOffset(offset int) { o.offset = offset }
func (o *Oscillator) SetPhaseOrigin(p float64) { o.phase0 = p }

// SetPeriod sets the waveform period and recomputes the per-sample phase step.
func (o *Oscillator) SetPeriod(period time.Duration) {
	o.period = period
	o.samples = max(1, float64(period)/float64(o.sampling))
	o.inc = 2 * math.Pi / o.samples
}

// SetLimiter bounds angular speed to degPerSec. Zero disables the limiter.
func (o *Oscillator) SetLimiter(degPerSec int) { o.limit = max(0, degPerSec) }
func (o *Oscillator) DisableLimiter() { o.limit = 0 }

// Stop pauses waveform generation without resetting the phase.
func (o *Oscillator) Stop() { o.stopped = true }

// Play resumes waveform generation.
func (o *Oscillator) Play() { o.stopped = false }

// ResetPhase zeroes the phase accumulator.
func (o *Oscillator) ResetPhase() { o.phase = 0 }

// SetPosition moves towards angle, subject to the rate limiter.
func (o *Oscillator) SetPosition(angle int) {
	if !o.attached {
		return
	}
	now := o.clock.Now()
	pos := int(o.pos.Load())

	if o.limit > 0 {
		elapsed := int(now.Sub(o.lastCommand).Milliseconds())
		step := max(1, elapsed*o.limit/1000)
		if abs(angle-pos) > step {
			if angle < pos {
				pos -= step
			} else {
				pos += step
			}
		} else {
			pos = angle
		}
	} else {
		pos = angle
	}

	o.lastCommand = now
	o.pos.Store(int32(pos))
	o.Write(pos)
}

// Write commits angle plus trim, clamped to [0, 180], to the leased channel.
// Hardware errors are logged and dropped.
func (o *Oscillator) Write(angle int) {
	if !o.attached {
		return
	}
	eff := min(max(angle+o.trim, 0), pwm.MaxAngle)
	o.angle.Store(int32(eff))

	if err := o.driver.SetDuty(o.channel, pwm.DutyForAngle(eff)); err != nil {
		werr := &WriteError{Servo: o.name, Channel: o.channel, Err: err}
		o.logger.Warnw("duty write failed", "servo", o.name, "error", werr)
	}
}

// Refresh advances the waveform by one sample once the sampling interval has
// elapsed. It is a no-op while stopped.
func (o *Oscillator) Refresh() {
	if o.stopped || !o.nextSample() {
		return
	}
	pos := int(math.Round(float64(o.amplitude)*math.Sin(o.phase+o.phase0) + float64(o.offset)))
	if o.reversed {
		pos = -pos
	}
	o.SetPosition(pos + Center)
	o.phase += o.inc
}

func (o *Oscillator) nextSample() bool {
	now := o.clock.Now()
	if now.Sub(o.lastSample) > o.sampling {
		o.lastSample = now
		return true
	}
	return false
}

// Position returns the logical position in degrees, before trim.
func (o *Oscillator) Position() int { return int(o.pos.Load()) }

// Angle returns the last effective angle written to hardware.
func (o *Oscillator) Angle() int { return int(o.angle.Load()) }

func (o *Oscillator) Name() string { return o.name }
func (o *Oscillator) Trim() int { return o.trim }
func (o *Oscillator) Attached() bool { return o.attached }
func (o *Oscillator) Channel() pwm.Channel { return o.channel }
func (o *Oscillator) Pin() int { return o.pin }
func (o *Oscillator) Phase() float64 { return o.phase }
func (o *Oscillator) Period() time.Duration { return o.period }
func (o *Oscillator) Limit() int { return o.limit }

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
