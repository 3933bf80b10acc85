// Package motion coordinates a fixed set of servos so that multi-limb moves
// complete together.
//
// A Group is owned by a single goroutine at a time; only IsResting and
// Positions may be called concurrently with a running motion. Blocking
// primitives take a context and stop at the next safe boundary (between
// poses, samples or corrective passes) once it is canceled.
package motion

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/edaniels/golog"

	"github.com/gwillem/cyberdog/pkg/clock"
	"github.com/gwillem/cyberdog/pkg/pwm"
	"github.com/gwillem/cyberdog/pkg/servo"
)

// Timing of the motion primitives.
const (
	HomeDuration      = 3000 * time.Millisecond
	HomeSettle        = 100 * time.Millisecond
	CorrectionTick    = 10 * time.Millisecond
	MaxCorrections    = 10
	OscillateTick     = 5 * time.Millisecond
	OscillateSettle   = 10 * time.Millisecond
	InterpolateTick   = 10 * time.Millisecond
	ZeroStagger       = 20 * time.Millisecond
	ZeroSettle        = 500 * time.Millisecond
	DefaultSpeedLimit = 240 // degrees per second
)

// Config holds the collaborators of a Group.
type Config struct {
	Allocator *pwm.Allocator
	Driver    pwm.Driver
	Clock     clock.Clock
	Logger    golog.Logger

	// Interpolate enables stepped interpolation inside MoveServos. When off,
	// targets are written at once and the corrective passes close any gap.
	Interpolate bool
}

// Group owns Count oscillators.
type Group struct {
	servos   [Count]*servo.Oscillator
	pins     [Count]int
	reversed [Count]bool

	clock       clock.Clock
	logger      golog.Logger
	interpolate bool

	resting atomic.Bool
}

// New creates a group of detached oscillators.
func New(cfg Config) *Group {
	if cfg.Clock == nil {
		cfg.Clock = clock.Real{}
	}
	if cfg.Logger == nil {
		cfg.Logger = golog.Global()
	}
	g := &Group{
		clock:       cfg.Clock,
		logger:      cfg.Logger,
		interpolate: cfg.Interpolate,
	}
	for _, l := range Limbs() {
		g.pins[l] = NoPin
		g.servos[l] = servo.New(servo.Config{
			Name:      l.String(),
			Allocator: cfg.Allocator,
			Driver:    cfg.Driver,
			Clock:     cfg.Clock,
			Logger:    cfg.Logger.Named(l.String()),
		})
	}
	return g
}

// SetReversed marks l as mounted mirrored. It takes effect on the next Attach.
func (g *Group) SetReversed(l Limb, reversed bool) {
	if l.Valid() {
		g.reversed[l] = reversed
	}
}

// Init binds each limb to its pin and attaches it. Limbs with NoPin stay
// unconnected.
func (g *Group) Init(pins [Count]int) {
	g.pins = pins
	g.Attach()
	g.resting.Store(false)
}

// Attach attaches every connected limb.
func (g *Group) Attach() {
	for _, l := range g.connected() {
		g.servos[l].Attach(g.pins[l], g.reversed[l])
	}
}

// Detach releases the channel of every connected limb.
func (g *Group) Detach() {
	for _, l := range g.connected() {
		g.servos[l].Detach()
	}
}

// SetTrims applies per-limb calibration offsets.
func (g *Group) SetTrims(trims Pose) {
	for _, l := range g.connected() {
		g.servos[l].SetTrim(trims.At(l))
	}
}

// EnableLimiter bounds the angular speed of every limb.
func (g *Group) EnableLimiter(degPerSec int) {
	for _, l := range g.connected() {
		g.servos[l].SetLimiter(degPerSec)
	}
}

func (g *Group) DisableLimiter() {
	for _, l := range g.connected() {
		g.servos[l].DisableLimiter()
	}
}

// IsResting reports whether the group sits in the neutral pose with no motion
// pending.
func (g *Group) IsResting() bool {
	return g.resting.Load()
}

// Positions returns the logical position of every limb.
func (g *Group) Positions() Pose {
	var p Pose
	for _, l := range Limbs() {
		p[l] = g.servos[l].Position()
	}
	return p
}

// Servo returns the oscillator of l, or nil for an invalid limb.
func (g *Group) Servo(l Limb) *servo.Oscillator {
	if !l.Valid() {
		return nil
	}
	return g.servos[l]
}

// Home moves every limb to the neutral pose unless the group is already
// resting, then waits a short settle delay.
func (g *Group) Home(ctx context.Context) error {
	if !g.resting.Load() {
		if err := g.MoveServos(ctx, HomeDuration, Neutral); err != nil {
			return err
		}
		g.resting.Store(true)
		g.logger.Infow("at rest position")
	}
	return g.clock.Sleep(ctx, HomeSettle)
}

// MoveServos drives every limb to target and blocks for d. Afterwards up to
// MaxCorrections passes re-issue the target to limbs that did not converge.
// A group that still has not converged is logged and left as is.
func (g *Group) MoveServos(ctx context.Context, d time.Duration, target Pose) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	g.resting.Store(false)
	g.logger.Debugw("move servos", "duration", d, "target", target, "now", g.Positions())

	if g.interpolate && d > InterpolateTick {
		if err := g.interpolateTo(ctx, d, target); err != nil {
			return err
		}
	} else {
		g.setAll(target)
		if err := g.clock.Sleep(ctx, d); err != nil {
			return err
		}
	}

	for attempt := 0; attempt < MaxCorrections; attempt++ {
		if g.converged(target) {
			return nil
		}
		g.setAll(target)
		if err := g.clock.Sleep(ctx, CorrectionTick); err != nil {
			return err
		}
	}
	if !g.converged(target) {
		g.logger.Warnw("servos did not converge", "target", target, "positions", g.Positions(), "attempts", MaxCorrections)
	}
	return nil
}

func (g *Group) interpolateTo(ctx context.Context, d time.Duration, target Pose) error {
	steps := float64(d) / float64(InterpolateTick)
	var pos, inc [Count]float64
	for _, l := range g.connected() {
		pos[l] = float64(g.servos[l].Position())
		inc[l] = (float64(target[l]) - pos[l]) / steps
	}

	final := g.clock.Now().Add(d)
	for g.clock.Now().Before(final) {
		for _, l := range g.connected() {
			pos[l] += inc[l]
			g.servos[l].SetPosition(int(pos[l] + 0.5))
		}
		if err := g.clock.Sleep(ctx, InterpolateTick); err != nil {
			return err
		}
	}
	return nil
}

// MoveSingle moves one limb. Angles outside [0, 180] fall back to neutral.
func (g *Group) MoveSingle(l Limb, angle int) {
	if angle < 0 || angle > pwm.MaxAngle {
		angle = NeutralAngle
	}
	g.resting.Store(false)
	if l.Valid() && g.pins[l] != NoPin {
		g.servos[l].SetPosition(angle)
	}
}

// Zero writes the neutral angle to each limb in turn. It is meant for power-on
// centring before the first Home.
func (g *Group) Zero(ctx context.Context) error {
	for _, l := range g.connected() {
		g.servos[l].SetPosition(NeutralAngle)
		if err := g.clock.Sleep(ctx, ZeroStagger); err != nil {
			return err
		}
	}
	return g.clock.Sleep(ctx, ZeroSettle)
}

// OscillateServos runs a sinusoid on every limb for cycles periods, refreshing
// at OscillateTick.
func (g *Group) OscillateServos(ctx context.Context, w Waveform, cycles float64) error {
	g.resting.Store(false)
	for _, l := range g.connected() {
		s := g.servos[l]
		s.SetOffset(w.Offset[l])
		s.SetAmplitude(w.Amplitude[l])
		s.SetPeriod(w.Period)
		s.SetPhaseOrigin(w.Phase[l])
	}

	end := g.clock.Now().Add(time.Duration(float64(w.Period) * cycles))
	for g.clock.Now().Before(end) {
		for _, l := range g.connected() {
			g.servos[l].Refresh()
		}
		if err := g.clock.Sleep(ctx, OscillateTick); err != nil {
			return err
		}
	}
	return g.clock.Sleep(ctx, OscillateSettle)
}

// Execute oscillates for a possibly fractional number of steps: every whole
// step is one full period, the remainder a proportionally shorter one.
func (g *Group) Execute(ctx context.Context, w Waveform, steps float64) error {
	g.resting.Store(false)

	cycles := int(steps)
	for i := 0; i < cycles; i++ {
		if err := g.OscillateServos(ctx, w, 1); err != nil {
			return err
		}
	}
	if rest := steps - float64(cycles); rest > 0 {
		if err := g.OscillateServos(ctx, w, rest); err != nil {
			return err
		}
	}
	return g.clock.Sleep(ctx, OscillateSettle)
}

func (g *Group) setAll(target Pose) {
	for _, l := range g.connected() {
		g.servos[l].SetPosition(target[l])
	}
}

func (g *Group) converged(target Pose) bool {
	for _, l := range g.connected() {
		if g.servos[l].Position() != target[l] {
			return false
		}
	}
	return true
}

func (g *Group) connected() []Limb {
	limbs := make([]Limb, 0, Count)
	for _, l := range Limbs() {
		if g.pins[l] != NoPin {
			limbs = append(limbs, l)
		}
	}
	return limbs
}
