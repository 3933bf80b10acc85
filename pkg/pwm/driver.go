package pwm

import "errors"

// Sentinel errors for the channel pool.
var (
	ErrExhausted   = errors.New("no free pwm channel")
	ErrInvalidPool = errors.New("invalid channel pool")
)

// Driver is the pulse-output backend. Implementations must be safe for
// concurrent use by several actuators.
type Driver interface {
	// Configure binds ch to an output pin and starts it with zero duty.
	Configure(ch Channel, pin int) error

	// SetDuty commits a duty value to ch.
	SetDuty(ch Channel, duty uint32) error

	// Stop drives ch idle and unbinds it from its pin.
	Stop(ch Channel) error
}

// Duty encoding of the reference board: 13-bit resolution at 50 Hz, with
// 0..180 degrees spanning a 0.5..2.5 ms pulse.
const (
	DutyResolution = 8191
	PeriodMs       = 20.0
	MinPulseMs     = 0.5
	MaxPulseMs     = 2.5
	MaxAngle       = 180
)

// DutyForAngle converts an angle in [0, MaxAngle] into a duty value. Angles
// outside the domain are clamped.
func DutyForAngle(angle int) uint32 {
	angle = min(max(angle, 0), MaxAngle)
	pulse := float64(angle)/MaxAngle*(MaxPulseMs-MinPulseMs) + MinPulseMs
	return uint32(pulse * DutyResolution / PeriodMs)
}

// AngleForDuty is the inverse of DutyForAngle, rounded to the nearest degree.
func AngleForDuty(duty uint32) int {
	pulse := float64(duty) * PeriodMs / DutyResolution
	angle := (pulse - MinPulseMs) / (MaxPulseMs - MinPulseMs) * MaxAngle
	a := int(angle + 0.5)
	return min(max(a, 0), MaxAngle)
}
