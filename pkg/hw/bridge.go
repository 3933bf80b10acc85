package hw

import (
	"bufio"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/tarm/serial"

	"github.com/gwillem/cyberdog/pkg/pwm"
)

// DefaultBridgeBaud is the line speed of the PWM co-processor.
const DefaultBridgeBaud = 115200

// Bridge forwards channel commands to a PWM co-processor as text lines:
//
//	C <channel> <pin>    configure
//	D <channel> <duty>   set duty
//	S <channel>          stop
//
// The co-processor does not acknowledge; writes are fire and forget.
type Bridge struct {
	mu sync.Mutex
	w  *bufio.Writer
	c  io.Closer
}

// NewBridge speaks the bridge protocol over rw.
func NewBridge(rw io.WriteCloser) *Bridge {
	return &Bridge{w: bufio.NewWriter(rw), c: rw}
}

// OpenBridge opens the co-processor's serial port.
func OpenBridge(port string, baud int) (*Bridge, error) {
	if baud == 0 {
		baud = DefaultBridgeBaud
	}
	p, err := serial.OpenPort(&serial.Config{
		Name:        port,
		Baud:        baud,
		ReadTimeout: 100 * time.Millisecond,
	})
	if err != nil {
		return nil, fmt.Errorf("open bridge on %s: %w", port, err)
	}
	return NewBridge(p), nil
}

func (b *Bridge) Configure(ch pwm.Channel, pin int) error {
	return b.send("C %d %d", ch, pin)
}

func (b *Bridge) SetDuty(ch pwm.Channel, duty uint32) error {
	return b.send("D %d %d", ch, duty)
}

func (b *Bridge) Stop(ch pwm.Channel) error {
	return b.send("S %d", ch)
}

func (b *Bridge) Close() error {
	return b.c.Close()
}

func (b *Bridge) send(format string, args ...any) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, err := fmt.Fprintf(b.w, format+"\n", args...); err != nil {
		return fmt.Errorf("bridge write: %w", err)
	}
	if err := b.w.Flush(); err != nil {
		return fmt.Errorf("bridge flush: %w", err)
	}
	return nil
}
