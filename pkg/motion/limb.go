package motion

import (
	"fmt"
	"time"
)

// Limb identifies one of the group's actuators.
type Limb int

// Limbs of the quadruped, in servo index order.
const (
	LeftFront Limb = iota
	RightFront
	LeftBehind
	RightBehind
)

// Count is the number of actuators in a group.
const Count = 4

// NeutralAngle is the rest angle of every limb.
const NeutralAngle = 90

// NoPin marks a limb without a connected servo.
const NoPin = -1

var limbNames = [Count]string{"left_front", "right_front", "left_behind", "right_behind"}

func (l Limb) String() string {
	if !l.Valid() {
		return fmt.Sprintf("limb(%d)", int(l))
	}
	return limbNames[l]
}

// Valid reports whether l names an actuator of the group.
func (l Limb) Valid() bool {
	return l >= 0 && l < Count
}

// Limbs returns all limbs in index order.
func Limbs() []Limb {
	return []Limb{LeftFront, RightFront, LeftBehind, RightBehind}
}

// Pose is one target angle per limb.
type Pose [Count]int

// Uniform returns a pose with every limb at angle.
func Uniform(angle int) Pose {
	var p Pose
	for i := range p {
		p[i] = angle
	}
	return p
}

// Neutral is the rest pose.
var Neutral = Uniform(NeutralAngle)

// At returns the angle of l.
func (p Pose) At(l Limb) int {
	return p[l]
}

// Waveform holds the sinusoid parameters of a multi-limb oscillation.
type Waveform struct {
	Amplitude [Count]int
	Offset    [Count]int
	Phase     [Count]float64
	Period    time.Duration
}
