package servo

import (
	"fmt"

	"github.com/gwillem/cyberdog/pkg/pwm"
)

// WriteError is a failed duty write on a servo channel.
type WriteError struct {
	Servo   string
	Channel pwm.Channel
	Err     error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("servo %s channel %d write: %v", e.Servo, e.Channel, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}
