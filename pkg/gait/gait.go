// Package gait holds the pose tables of the quadruped's motion primitives.
//
// A gait plays its table once per step, holding every pose for
// stepTime/len(Poses), and optionally settles back to the neutral pose.
// Tables are tuned on the real chassis; keep the values and their order.
package gait

import (
	"context"
	"fmt"
	"time"

	"github.com/gwillem/cyberdog/pkg/clock"
	"github.com/gwillem/cyberdog/pkg/motion"
)

// Trail is the pause after every gait.
const Trail = 10 * time.Millisecond

// Mover is the part of a motion group a gait drives.
type Mover interface {
	MoveServos(ctx context.Context, d time.Duration, target motion.Pose) error
}

// Name identifies a gait.
type Name string

// Gait names.
const (
	Forward   Name = "forward"
	Backward  Name = "backward"
	TurnLeft  Name = "turn-left"
	TurnRight Name = "turn-right"
	Sway      Name = "sway"
	Wave      Name = "wave"
	Sit       Name = "sit"
	Rest      Name = "rest"
)

// Gait is a named pose table.
type Gait struct {
	Name  Name
	Poses []motion.Pose

	// Steps and StepTime, when non-zero, replace the caller's values.
	Steps    int
	StepTime time.Duration

	// Settle ends the gait with a move to the neutral pose.
	Settle bool
}

var gaits = []Gait{
	{
		Name: Forward,
		Poses: []motion.Pose{
			{90, 130, 50, 90},
			{130, 130, 50, 50},
			{130, 90, 90, 50},
			{90, 90, 90, 90},
			{50, 90, 90, 130},
			{50, 50, 130, 130},
			{90, 50, 130, 90},
			{90, 90, 90, 90},
		},
		Settle: true,
	},
	{
		Name: Backward,
		Poses: []motion.Pose{
			{90, 50, 130, 90},
			{50, 50, 130, 130},
			{50, 90, 90, 130},
			{90, 90, 90, 90},
			{130, 90, 90, 50},
			{130, 130, 50, 50},
			{90, 130, 50, 90},
			{90, 90, 90, 90},
		},
		Settle: true,
	},
	{
		Name: TurnLeft,
		Poses: []motion.Pose{
			{130, 90, 90, 130},
			{130, 50, 50, 130},
			{90, 50, 90, 90},
			{90, 90, 90, 90},
		},
		Settle: true,
	},
	{
		Name: TurnRight,
		Poses: []motion.Pose{
			{90, 50, 50, 90},
			{130, 50, 50, 130},
			{130, 90, 90, 130},
			{90, 90, 90, 90},
		},
		Settle: true,
	},
	{
		Name: Sway,
		Poses: []motion.Pose{
			{30, 150, 30, 150},
			{90, 90, 90, 90},
			{150, 30, 150, 30},
			{90, 90, 90, 90},
		},
		Steps:    2,
		StepTime: 1000 * time.Millisecond,
		Settle:   true,
	},
	{
		Name: Wave,
		Poses: []motion.Pose{
			{90, 110, 90, 90},
			{90, 145, 90, 40},
			{90, 180, 90, 90},
			{90, 145, 90, 90},
		},
		Steps:    1,
		StepTime: 1000 * time.Millisecond,
		Settle:   true,
	},
	{
		Name:     Sit,
		Poses:    []motion.Pose{{90, 90, 0, 179}},
		Steps:    1,
		StepTime: 1000 * time.Millisecond,
	},
	{
		Name:     Rest,
		Poses:    []motion.Pose{{0, 180, 0, 180}},
		Steps:    1,
		StepTime: 1000 * time.Millisecond,
	},
}

// All returns every gait in table order.
func All() []Gait {
	out := make([]Gait, len(gaits))
	copy(out, gaits)
	return out
}

// Names returns the gait names in table order.
func Names() []Name {
	names := make([]Name, len(gaits))
	for i, g := range gaits {
		names[i] = g.Name
	}
	return names
}

// Lookup returns the gait called name.
func Lookup(name Name) (Gait, bool) {
	for _, g := range gaits {
		if g.Name == name {
			return g, true
		}
	}
	return Gait{}, false
}

// MustLookup is Lookup for names known at compile time.
func MustLookup(name Name) Gait {
	g, ok := Lookup(name)
	if !ok {
		panic(fmt.Sprintf("gait: unknown gait %q", name))
	}
	return g
}

// Hold returns how long each pose is held for the given step time.
func (g Gait) Hold(stepTime time.Duration) time.Duration {
	if g.StepTime > 0 {
		stepTime = g.StepTime
	}
	if len(g.Poses) == 0 {
		return 0
	}
	return (stepTime / time.Duration(len(g.Poses))).Truncate(time.Millisecond)
}

// Run plays the gait for steps steps of stepTime each. A canceled context
// stops it between poses.
func (g Gait) Run(ctx context.Context, m Mover, clk clock.Clock, steps int, stepTime time.Duration) error {
	if g.Steps > 0 {
		steps = g.Steps
	}
	hold := g.Hold(stepTime)

	for s := 0; s < steps; s++ {
		for _, pose := range g.Poses {
			if err := m.MoveServos(ctx, hold, pose); err != nil {
				return fmt.Errorf("%s step %d: %w", g.Name, s, err)
			}
		}
	}
	if g.Settle {
		if err := m.MoveServos(ctx, hold, motion.Neutral); err != nil {
			return fmt.Errorf("%s settle: %w", g.Name, err)
		}
	}
	return clk.Sleep(ctx, Trail)
}
