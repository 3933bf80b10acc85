package robot

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/gwillem/cyberdog/pkg/motion"
)

// MaxTrim bounds the calibration offset of a leg.
const MaxTrim = 90

// LimbCalibration holds wiring and calibration data for a single leg.
type LimbCalibration struct {
	Pin      int  `json:"pin"`
	Trim     int  `json:"trim"`
	Reversed bool `json:"reversed,omitempty"`
}

// Calibration holds calibration data for all legs, keyed by leg name.
type Calibration map[LimbName]LimbCalibration

// DefaultCalibration returns the reference wiring with zero trims.
func DefaultCalibration() Calibration {
	return Calibration{
		LeftFront:   {Pin: 17},
		RightFront:  {Pin: 18},
		LeftBehind:  {Pin: 8},
		RightBehind: {Pin: 9},
	}
}

// LoadCalibration loads calibration data from a JSON file.
func LoadCalibration(path string) (Calibration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read calibration file: %w", err)
	}

	var raw map[string]LimbCalibration
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse calibration JSON: %w", err)
	}

	cal := make(Calibration, len(raw))
	for name, lc := range raw {
		cal[LimbName(name)] = lc
	}
	return cal, cal.Validate()
}

// Validate rejects unknown legs, shared pins and trims beyond MaxTrim.
func (c Calibration) Validate() error {
	pins := make(map[int]LimbName, len(c))
	for name, lc := range c {
		if _, ok := name.Limb(); !ok {
			return fmt.Errorf("unknown leg %q", name)
		}
		if lc.Trim < -MaxTrim || lc.Trim > MaxTrim {
			return fmt.Errorf("%s: trim %d outside ±%d", name, lc.Trim, MaxTrim)
		}
		if lc.Pin == motion.NoPin {
			continue
		}
		if other, ok := pins[lc.Pin]; ok {
			return fmt.Errorf("%s and %s share pin %d", other, name, lc.Pin)
		}
		pins[lc.Pin] = name
	}
	return nil
}

// Pins returns the pin of every leg. Legs missing from c are unconnected.
func (c Calibration) Pins() [motion.Count]int {
	var pins [motion.Count]int
	for i, name := range AllLimbs() {
		pins[i] = motion.NoPin
		if lc, ok := c[name]; ok {
			pins[i] = lc.Pin
		}
	}
	return pins
}

// Trims returns the trim of every leg.
func (c Calibration) Trims() motion.Pose {
	var trims motion.Pose
	for i, name := range AllLimbs() {
		trims[i] = c[name].Trim
	}
	return trims
}

// ByPin returns the leg wired to pin.
func (c Calibration) ByPin(pin int) (LimbName, LimbCalibration, bool) {
	for name, lc := range c {
		if lc.Pin == pin {
			return name, lc, true
		}
	}
	return "", LimbCalibration{}, false
}
