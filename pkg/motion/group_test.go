package motion

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/edaniels/golog"

	"github.com/gwillem/cyberdog/pkg/clock"
	"github.com/gwillem/cyberdog/pkg/hw"
	"github.com/gwillem/cyberdog/pkg/pwm"
)

var testPins = [Count]int{17, 18, 8, 9}

type fixture struct {
	group *Group
	sim   *hw.Sim
	clk   *clock.Fake
	alloc *pwm.Allocator
}

func newFixture(t *testing.T, logger golog.Logger, interpolate bool) *fixture {
	t.Helper()
	if logger == nil {
		logger = golog.NewTestLogger(t)
	}
	f := &fixture{
		sim:   hw.NewSim(),
		clk:   clock.NewFake(),
		alloc: pwm.NewServoAllocator(),
	}
	f.group = New(Config{
		Allocator:   f.alloc,
		Driver:      f.sim,
		Clock:       f.clk,
		Logger:      logger,
		Interpolate: interpolate,
	})
	f.group.Init(testPins)
	return f
}

func TestGroup_Init(t *testing.T) {
	f := newFixture(t, nil, false)

	if n := f.alloc.InUse(); n != Count {
		t.Fatalf("InUse() = %d, want %d", n, Count)
	}
	for _, l := range Limbs() {
		s := f.group.Servo(l)
		if !s.Attached() {
			t.Errorf("%s not attached", l)
		}
		if s.Pin() != testPins[l] {
			t.Errorf("%s pin = %d, want %d", l, s.Pin(), testPins[l])
		}
	}
	if f.group.IsResting() {
		t.Error("IsResting() = true before Home")
	}
	if f.group.Servo(Limb(7)) != nil {
		t.Error("Servo(7) != nil")
	}
}

func TestGroup_UnconnectedLimb(t *testing.T) {
	f := newFixture(t, nil, false)
	f.group.Detach()

	f.group.Init([Count]int{17, NoPin, 8, 9})
	if n := f.alloc.InUse(); n != 3 {
		t.Fatalf("InUse() = %d, want 3", n)
	}

	ctx := context.Background()
	if err := f.group.MoveServos(ctx, 100*time.Millisecond, Pose{10, 20, 30, 40}); err != nil {
		t.Fatalf("MoveServos() error: %v", err)
	}
	got := f.group.Positions()
	want := Pose{10, NeutralAngle, 30, 40}
	if got != want {
		t.Errorf("Positions() = %v, want %v", got, want)
	}
}

func TestGroup_MoveServos(t *testing.T) {
	f := newFixture(t, nil, false)
	ctx := context.Background()
	target := Pose{90, 130, 50, 90}

	start := f.clk.Slept()
	if err := f.group.MoveServos(ctx, 100*time.Millisecond, target); err != nil {
		t.Fatalf("MoveServos() error: %v", err)
	}
	if got := f.group.Positions(); got != target {
		t.Errorf("Positions() = %v, want %v", got, target)
	}
	if elapsed := f.clk.Slept() - start; elapsed != 100*time.Millisecond {
		t.Errorf("MoveServos blocked %v, want 100ms", elapsed)
	}

	for _, l := range Limbs() {
		duty, _ := f.sim.Duty(f.group.Servo(l).Channel())
		if duty != pwm.DutyForAngle(target[l]) {
			t.Errorf("%s duty = %d, want %d", l, duty, pwm.DutyForAngle(target[l]))
		}
	}
}

func TestGroup_MoveServosCorrectionTerminates(t *testing.T) {
	logger, logs := golog.NewObservedTestLogger(t)
	f := newFixture(t, logger, false)
	f.group.EnableLimiter(10)

	start := f.clk.Slept()
	err := f.group.MoveServos(context.Background(), 100*time.Millisecond, Uniform(180))
	if err != nil {
		t.Fatalf("MoveServos() error: %v", err)
	}

	want := 100*time.Millisecond + MaxCorrections*CorrectionTick
	if elapsed := f.clk.Slept() - start; elapsed != want {
		t.Errorf("MoveServos blocked %v, want %v", elapsed, want)
	}
	if got := f.group.Positions().At(LeftFront); got != NeutralAngle+1+MaxCorrections {
		t.Errorf("limited position = %d, want %d", got, NeutralAngle+1+MaxCorrections)
	}
	if n := logs.FilterMessageSnippet("did not converge").Len(); n != 1 {
		t.Errorf("convergence failures logged = %d, want 1", n)
	}
}

func TestGroup_MoveServosCanceled(t *testing.T) {
	f := newFixture(t, nil, false)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := f.group.MoveServos(ctx, 100*time.Millisecond, Uniform(10))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("MoveServos() err = %v, want context.Canceled", err)
	}
	if n := len(f.sim.Writes()); n != 0 {
		t.Errorf("canceled move issued %d writes", n)
	}
}

func TestGroup_HomeIdempotent(t *testing.T) {
	f := newFixture(t, nil, false)
	ctx := context.Background()

	if err := f.group.MoveServos(ctx, 10*time.Millisecond, Uniform(45)); err != nil {
		t.Fatal(err)
	}
	f.sim.ResetWrites()

	if err := f.group.Home(ctx); err != nil {
		t.Fatalf("Home() error: %v", err)
	}
	first := len(f.sim.Writes())
	if first != Count {
		t.Errorf("first Home() wrote %d duties, want %d", first, Count)
	}
	if !f.group.IsResting() {
		t.Fatal("IsResting() = false after Home")
	}

	before := f.clk.Slept()
	if err := f.group.Home(ctx); err != nil {
		t.Fatalf("second Home() error: %v", err)
	}
	if n := len(f.sim.Writes()); n != first {
		t.Errorf("second Home() wrote %d more duties", n-first)
	}
	if elapsed := f.clk.Slept() - before; elapsed != HomeSettle {
		t.Errorf("second Home() blocked %v, want %v", elapsed, HomeSettle)
	}
	if got := f.group.Positions(); got != Neutral {
		t.Errorf("Positions() = %v, want %v", got, Neutral)
	}

	// Any commanded move wakes the group.
	f.group.MoveSingle(LeftFront, 100)
	if f.group.IsResting() {
		t.Error("IsResting() = true after MoveSingle")
	}
}

func TestGroup_MoveSingle(t *testing.T) {
	f := newFixture(t, nil, false)

	tests := []struct {
		angle int
		want  int
	}{
		{120, 120},
		{181, NeutralAngle},
		{-1, NeutralAngle},
		{0, 0},
	}
	for _, tt := range tests {
		f.group.MoveSingle(RightBehind, tt.angle)
		if got := f.group.Positions().At(RightBehind); got != tt.want {
			t.Errorf("MoveSingle(%d) position = %d, want %d", tt.angle, got, tt.want)
		}
	}
	f.group.MoveSingle(Limb(9), 10) // ignored
}

func TestGroup_Trims(t *testing.T) {
	f := newFixture(t, nil, false)
	f.group.SetTrims(Pose{5, -5, 0, 10})

	if err := f.group.MoveServos(context.Background(), time.Millisecond, Neutral); err != nil {
		t.Fatal(err)
	}
	want := Pose{95, 85, 90, 100}
	for _, l := range Limbs() {
		if got := f.group.Servo(l).Angle(); got != want[l] {
			t.Errorf("%s effective angle = %d, want %d", l, got, want[l])
		}
	}
}

func TestGroup_Zero(t *testing.T) {
	f := newFixture(t, nil, false)
	f.group.MoveSingle(LeftFront, 10)

	if err := f.group.Zero(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := f.group.Positions(); got != Neutral {
		t.Errorf("Positions() = %v, want %v", got, Neutral)
	}
}

func TestGroup_Interpolate(t *testing.T) {
	f := newFixture(t, nil, true)
	ctx := context.Background()

	if err := f.group.MoveServos(ctx, 200*time.Millisecond, Uniform(130)); err != nil {
		t.Fatal(err)
	}
	if got := f.group.Positions(); got != Uniform(130) {
		t.Fatalf("Positions() = %v, want all 130", got)
	}

	// 40 degrees over 20 ticks: no single write jumps more than a few degrees.
	ch := f.group.Servo(LeftFront).Channel()
	last := pwm.DutyForAngle(NeutralAngle)
	for _, w := range f.sim.Writes() {
		if w.Channel != ch {
			continue
		}
		if diff := int(w.Duty) - int(last); diff > int(pwm.DutyForAngle(3)-pwm.DutyForAngle(0)) {
			t.Fatalf("interpolated write jumped %d duty units", diff)
		}
		last = w.Duty
	}
}

func TestGroup_OscillateServos(t *testing.T) {
	f := newFixture(t, nil, false)
	w := Waveform{
		Amplitude: [Count]int{30, 30, 30, 30},
		Phase:     [Count]float64{0, 3.141592653589793, 3.141592653589793, 0},
		Period:    400 * time.Millisecond,
	}

	start := f.clk.Slept()
	if err := f.group.OscillateServos(context.Background(), w, 1); err != nil {
		t.Fatal(err)
	}
	if elapsed := f.clk.Slept() - start; elapsed != 400*time.Millisecond+OscillateSettle {
		t.Errorf("OscillateServos blocked %v, want %v", elapsed, 400*time.Millisecond+OscillateSettle)
	}
	if len(f.sim.Writes()) == 0 {
		t.Fatal("OscillateServos wrote nothing")
	}
	for _, l := range Limbs() {
		if p := f.group.Servo(l).Position(); p < 60 || p > 120 {
			t.Errorf("%s position %d outside waveform range", l, p)
		}
	}
}

func TestGroup_ExecuteFractional(t *testing.T) {
	f := newFixture(t, nil, false)
	period := time.Second
	w := Waveform{Amplitude: [Count]int{20, 20, 20, 20}, Period: period}

	start := f.clk.Slept()
	if err := f.group.Execute(context.Background(), w, 2.5); err != nil {
		t.Fatal(err)
	}
	elapsed := f.clk.Slept() - start

	// Two full periods, one half period, plus the fixed settle delays.
	want := 2*period + period/2 + 4*OscillateSettle
	if elapsed != want {
		t.Errorf("Execute(2.5) blocked %v, want %v", elapsed, want)
	}
}

func TestGroup_ExecuteCanceled(t *testing.T) {
	f := newFixture(t, nil, false)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	w := Waveform{Period: time.Second}
	if err := f.group.Execute(ctx, w, 3); !errors.Is(err, context.Canceled) {
		t.Errorf("Execute() err = %v, want context.Canceled", err)
	}
}

func TestLimb_String(t *testing.T) {
	tests := []struct {
		limb Limb
		want string
	}{
		{LeftFront, "left_front"},
		{RightBehind, "right_behind"},
		{Limb(5), "limb(5)"},
	}
	for _, tt := range tests {
		if got := tt.limb.String(); got != tt.want {
			t.Errorf("Limb(%d).String() = %q, want %q", int(tt.limb), got, tt.want)
		}
	}
}
