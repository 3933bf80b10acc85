package robot

import (
	"context"
	"fmt"

	"github.com/edaniels/golog"
	"go.uber.org/multierr"

	"github.com/gwillem/cyberdog/pkg/action"
	"github.com/gwillem/cyberdog/pkg/clock"
	"github.com/gwillem/cyberdog/pkg/hw"
	"github.com/gwillem/cyberdog/pkg/motion"
	"github.com/gwillem/cyberdog/pkg/pwm"
)

// Dog wires a backend, the leg group and the action executor together.
type Dog struct {
	backend  hw.Backend
	group    *motion.Group
	executor *action.Executor
	logger   golog.Logger
}

// NewDog opens the configured backend and assembles the dog.
func NewDog(cfg *Config, logger golog.Logger) (*Dog, error) {
	backend, err := hw.Open(cfg.Backend)
	if err != nil {
		return nil, fmt.Errorf("open backend: %w", err)
	}
	return NewDogWith(cfg, backend, clock.Real{}, logger), nil
}

// NewDogWith assembles a dog on an already opened backend.
func NewDogWith(cfg *Config, backend hw.Backend, clk clock.Clock, logger golog.Logger) *Dog {
	if logger == nil {
		logger = golog.Global()
	}
	group := motion.New(motion.Config{
		Allocator:   pwm.NewServoAllocator(),
		Driver:      backend,
		Clock:       clk,
		Logger:      logger.Named("motion"),
		Interpolate: cfg.Interpolate,
	})
	for _, name := range AllLimbs() {
		l, _ := name.Limb()
		group.SetReversed(l, cfg.Calibration[name].Reversed)
	}
	group.Init(cfg.Calibration.Pins())
	group.SetTrims(cfg.Calibration.Trims())
	if cfg.SpeedLimit > 0 {
		group.EnableLimiter(cfg.SpeedLimit)
	}

	executor := action.New(action.Config{
		Body:          group,
		Clock:         clk,
		Logger:        logger.Named("action"),
		QueueSize:     cfg.QueueSize,
		IdleTimeout:   cfg.IdleTimeout(),
		Settle:        cfg.Settle(),
		HomeOnIdle:    cfg.HomeOnIdle,
		ReleaseOnIdle: cfg.ReleaseOnIdle,
	})

	return &Dog{
		backend:  backend,
		group:    group,
		executor: executor,
		logger:   logger,
	}
}

// Start centres every leg and homes the dog.
func (d *Dog) Start(ctx context.Context) error {
	if err := d.group.Zero(ctx); err != nil {
		return fmt.Errorf("zero servos: %w", err)
	}
	if err := d.group.Home(ctx); err != nil {
		return fmt.Errorf("home: %w", err)
	}
	d.logger.Infow("dog ready", "positions", d.group.Positions())
	return nil
}

// Enqueue queues a gait invocation.
func (d *Dog) Enqueue(ctx context.Context, cmd action.Command) (action.Command, error) {
	return d.executor.Enqueue(ctx, cmd)
}

// Suspend stops the current gait, drops queued ones and homes the dog.
func (d *Dog) Suspend(ctx context.Context) error {
	return d.executor.Suspend(ctx)
}

// IsResting reports whether the dog stands in its neutral pose.
func (d *Dog) IsResting() bool {
	return d.group.IsResting()
}

// Positions returns the logical angle of every leg.
func (d *Dog) Positions() motion.Pose {
	return d.group.Positions()
}

func (d *Dog) Executor() *action.Executor { return d.executor }
func (d *Dog) Group() *motion.Group       { return d.group }

// Close stops the executor, releases every channel and closes the backend.
func (d *Dog) Close() error {
	err := d.executor.Close()
	d.group.Detach()
	return multierr.Combine(err, d.backend.Close())
}
