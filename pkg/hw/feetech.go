package hw

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hipsterbrown/feetech-servo/feetech"

	"github.com/gwillem/cyberdog/pkg/pwm"
)

// Goal positions of a Feetech STS servo span 4096 steps per turn. A hobby
// servo's 180 degree travel maps onto the half turn centred at 2048.
const (
	feetechCenter       = 2048
	feetechStepsPerTurn = 4096
)

// Feetech drives serial bus servos in place of PWM outputs. The pin a channel
// is configured with is the servo ID on the bus.
type Feetech struct {
	bus *feetech.Bus

	mu  sync.Mutex
	ids map[pwm.Channel]int
}

// NewFeetech wraps an open bus.
func NewFeetech(bus *feetech.Bus) *Feetech {
	return &Feetech{bus: bus, ids: make(map[pwm.Channel]int)}
}

// OpenFeetech opens the bus on a serial port.
func OpenFeetech(port string, baud int) (*Feetech, error) {
	bus, err := feetech.NewBus(feetech.BusConfig{
		Port:     port,
		BaudRate: baud,
		Protocol: feetech.ProtocolSTS,
		Timeout:  100 * time.Millisecond,
	})
	if err != nil {
		return nil, fmt.Errorf("open feetech bus on %s: %w", port, err)
	}
	return NewFeetech(bus), nil
}

// Configure binds ch to servo ID pin and enables its torque.
func (f *Feetech) Configure(ch pwm.Channel, pin int) error {
	if pin < 0 || pin > 253 {
		return fmt.Errorf("invalid servo id %d", pin)
	}
	if err := f.torque(pin, true); err != nil {
		return err
	}
	f.mu.Lock()
	f.ids[ch] = pin
	f.mu.Unlock()
	return nil
}

// SetDuty converts duty back to an angle and writes it as goal position.
func (f *Feetech) SetDuty(ch pwm.Channel, duty uint32) error {
	id, err := f.id(ch)
	if err != nil {
		return err
	}
	pos := GoalPosition(pwm.AngleForDuty(duty))
	data := map[int][]byte{id: f.bus.Protocol().EncodeWord(uint16(pos))}
	if err := f.bus.SyncWrite(context.Background(), feetech.RegGoalPosition.Address, feetech.RegGoalPosition.Size, data); err != nil {
		return fmt.Errorf("write goal position of servo %d: %w", id, err)
	}
	return nil
}

// Stop disables torque so the servo goes limp, and unbinds ch.
func (f *Feetech) Stop(ch pwm.Channel) error {
	id, err := f.id(ch)
	if err != nil {
		return err
	}
	f.mu.Lock()
	delete(f.ids, ch)
	f.mu.Unlock()
	return f.torque(id, false)
}

func (f *Feetech) Close() error {
	return f.bus.Close()
}

// GoalPosition maps an angle in [0, 180] to a raw goal position.
func GoalPosition(angle int) int {
	angle = min(max(angle, 0), pwm.MaxAngle)
	return feetechCenter + (angle-90)*feetechStepsPerTurn/360
}

func (f *Feetech) torque(id int, on bool) error {
	var v byte
	if on {
		v = 1
	}
	data := map[int][]byte{id: {v}}
	if err := f.bus.SyncWrite(context.Background(), feetech.RegTorqueEnable.Address, feetech.RegTorqueEnable.Size, data); err != nil {
		return fmt.Errorf("set torque of servo %d: %w", id, err)
	}
	return nil
}

func (f *Feetech) id(ch pwm.Channel) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.ids[ch]
	if !ok {
		return 0, fmt.Errorf("channel %d not configured", ch)
	}
	return id, nil
}
