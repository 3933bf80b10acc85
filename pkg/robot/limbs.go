// Package robot assembles the quadruped from its configuration.
package robot

import "github.com/gwillem/cyberdog/pkg/motion"

// LimbName identifies a leg in the configuration file.
type LimbName string

// Leg names, matching motion limb order.
const (
	LeftFront   LimbName = "left_front"
	RightFront  LimbName = "right_front"
	LeftBehind  LimbName = "left_behind"
	RightBehind LimbName = "right_behind"
)

// AllLimbs returns all leg names in servo index order.
func AllLimbs() []LimbName {
	return []LimbName{
		LeftFront,
		RightFront,
		LeftBehind,
		RightBehind,
	}
}

// Limb returns the motion limb for n.
func (n LimbName) Limb() (motion.Limb, bool) {
	for i, name := range AllLimbs() {
		if name == n {
			return motion.Limb(i), true
		}
	}
	return 0, false
}
