// Package cyberdog drives a four-legged servo robot through a library of
// gaits.
//
// Actions are queued from the keyboard, the command line or a WebSocket
// client and played one after another by a single executor. Each gait is
// a sequence of leg poses; the legs are hobby servos driven by PWM
// channels, a Feetech bus or a serial PWM bridge.
//
// # Installation
//
//	go install github.com/gwillem/cyberdog/cmd/cyberdog@latest
//
// # Usage
//
// First, run setup to choose the backend and wire the legs:
//
//	cyberdog setup
//
// Then drive the dog from the keyboard:
//
//	cyberdog run
//
// or play a few actions and exit:
//
//	cyberdog do forward turn-left sit --steps 3
//
// # Packages
//
// The module is organized into the following packages:
//
//   - cmd/cyberdog: CLI with setup, run, serve, do, ports and history commands
//   - pkg/pwm: PWM channel allocation and the driver contract
//   - pkg/servo: Oscillator, one servo with trim, speed limit and waveform
//   - pkg/motion: Motion group of four legs
//   - pkg/gait: Gait library
//   - pkg/action: Action queue and executor
//   - pkg/hw: Simulator, Feetech and serial bridge backends
//   - pkg/robot: Calibration, configuration and assembly
//   - pkg/monitor: Live state sampling for the terminal UI
//   - pkg/remote: WebSocket remote control
//   - pkg/journal: SQLite action history
package cyberdog
