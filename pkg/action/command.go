// Package action serializes gait invocations on a motion group.
//
// Producers Enqueue commands onto a bounded FIFO; a single consumer goroutine,
// started on demand, plays them one at a time and exits after the queue has
// stayed empty for the idle timeout. Suspend cancels the consumer, drops all
// pending commands and homes the body.
package action

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/edaniels/golog"
	"github.com/google/uuid"

	"github.com/gwillem/cyberdog/pkg/gait"
)

// Kind selects the gait a command plays.
type Kind int

// Action kinds. The numeric values are the wire values accepted by producers.
const (
	Forward Kind = iota + 1
	Backward
	TurnLeft
	TurnRight
	Sway
	Wave
	Sit
	Rest

	// Stop is not queued: enqueuing it suspends the executor.
	Stop Kind = -1
)

// Parameter bounds. Out-of-range values are clamped, never rejected.
const (
	MinSteps     = 1
	MaxSteps     = 10
	DefaultSteps = 1

	MinSpeed     = 500
	MaxSpeed     = 1000
	DefaultSpeed = 1000
)

var kindGaits = map[Kind]gait.Name{
	Forward:   gait.Forward,
	Backward:  gait.Backward,
	TurnLeft:  gait.TurnLeft,
	TurnRight: gait.TurnRight,
	Sway:      gait.Sway,
	Wave:      gait.Wave,
	Sit:       gait.Sit,
	Rest:      gait.Rest,
}

func (k Kind) String() string {
	if k == Stop {
		return "stop"
	}
	if name, ok := kindGaits[k]; ok {
		return string(name)
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Gait returns the gait played for k.
func (k Kind) Gait() (gait.Gait, bool) {
	name, ok := kindGaits[k]
	if !ok {
		return gait.Gait{}, false
	}
	return gait.Lookup(name)
}

// Kinds returns the queueable kinds in wire order.
func Kinds() []Kind {
	return []Kind{Forward, Backward, TurnLeft, TurnRight, Sway, Wave, Sit, Rest}
}

// ParseKind accepts a gait name, "stop", or a wire number. Numbers are not
// range checked; the executor clamps them.
func ParseKind(s string) (Kind, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "stop" || s == "suspend" {
		return Stop, nil
	}
	for _, k := range Kinds() {
		if s == k.String() {
			return k, nil
		}
	}
	if n, err := strconv.Atoi(s); err == nil {
		return Kind(n), nil
	}
	return 0, fmt.Errorf("unknown action %q", s)
}

// Command is one queued gait invocation. Speed is the step time in
// milliseconds: lower is faster.
type Command struct {
	ID    uuid.UUID `json:"id"`
	Kind  Kind      `json:"action"`
	Steps int       `json:"steps"`
	Speed int       `json:"speed"`
}

// NewCommand creates a command with a fresh ID. Parameters are clamped when
// the command is enqueued.
func NewCommand(kind Kind, steps, speed int) Command {
	return Command{ID: uuid.New(), Kind: kind, Steps: steps, Speed: speed}
}

// StepTime returns Speed as a duration.
func (c Command) StepTime() time.Duration {
	return time.Duration(c.Speed) * time.Millisecond
}

// Clamp forces every field into its valid range, logging each adjustment.
func (c Command) Clamp(logger golog.Logger) Command {
	if c.Kind != Stop {
		c.Kind = Kind(clamp(logger, c.ID, "action", int(c.Kind), int(Forward), int(Rest)))
	}
	c.Steps = clamp(logger, c.ID, "steps", c.Steps, MinSteps, MaxSteps)
	c.Speed = clamp(logger, c.ID, "speed", c.Speed, MinSpeed, MaxSpeed)
	return c
}

func clamp(logger golog.Logger, id uuid.UUID, field string, v, lo, hi int) int {
	switch {
	case v < lo:
		logger.Warnw("parameter below minimum, clamped", "id", id, "field", field, "value", v, "min", lo)
		return lo
	case v > hi:
		logger.Warnw("parameter above maximum, clamped", "id", id, "field", field, "value", v, "max", hi)
		return hi
	}
	return v
}
