// Package hw provides the pulse-output backends behind pwm.Driver: an
// in-memory simulator, a Feetech serial bus, and a serial bridge to a PWM
// co-processor.
package hw

import (
	"fmt"
	"io"
	"strings"

	"go.bug.st/serial"

	"github.com/gwillem/cyberdog/pkg/pwm"
)

// Backend kinds.
const (
	KindSim     = "sim"
	KindFeetech = "feetech"
	KindBridge  = "bridge"
)

// Config selects and parameterizes a backend.
type Config struct {
	Kind string `json:"kind"`
	Port string `json:"port,omitempty"`
	Baud int    `json:"baud,omitempty"`
}

// Backend is a driver that holds an OS resource.
type Backend interface {
	pwm.Driver
	io.Closer
}

// Open creates the backend described by cfg.
func Open(cfg Config) (Backend, error) {
	switch cfg.Kind {
	case "", KindSim:
		return NewSim(), nil
	case KindFeetech:
		if cfg.Port == "" {
			return nil, fmt.Errorf("feetech backend needs a port")
		}
		baud := cfg.Baud
		if baud == 0 {
			baud = 1_000_000
		}
		f, err := OpenFeetech(cfg.Port, baud)
		if err != nil {
			return nil, err
		}
		return f, nil
	case KindBridge:
		if cfg.Port == "" {
			return nil, fmt.Errorf("bridge backend needs a port")
		}
		b, err := OpenBridge(cfg.Port, cfg.Baud)
		if err != nil {
			return nil, err
		}
		return b, nil
	}
	return nil, fmt.Errorf("unknown backend %q", cfg.Kind)
}

// ListPorts returns the serial ports of the host, skipping Bluetooth ports.
func ListPorts() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("list serial ports: %w", err)
	}
	var out []string
	for _, p := range ports {
		if strings.Contains(p, "Bluetooth") {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}
