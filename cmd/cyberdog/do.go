package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/gwillem/cyberdog/pkg/action"
)

type DoCommand struct {
	Steps int `long:"steps" default:"1" description:"Gait repetitions (1-10)"`
	Speed int `long:"speed" default:"1000" description:"Step time in milliseconds (500-1000)"`

	Args struct {
		Actions []string `positional-arg-name:"action" required:"1" description:"forward, backward, turn-left, turn-right, sway, wave, sit, rest or a number"`
	} `positional-args:"yes"`
}

func (c *DoCommand) Execute(args []string) error {
	var cmds []action.Command
	for _, name := range c.Args.Actions {
		kind, err := action.ParseKind(name)
		if err != nil {
			return err
		}
		cmds = append(cmds, action.NewCommand(kind, c.Steps, c.Speed))
	}

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	// A one-shot run has nothing to wait for once the queue drains.
	cfg.IdleTimeoutMs = 1
	cfg.RemoteAddr = ""

	logger, err := newLogger("")
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	s, err := openSession(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer s.Close()

	names := make([]string, len(cmds))
	for i, cmd := range cmds {
		cmd, err = s.dog.Enqueue(ctx, cmd)
		if err != nil {
			return err
		}
		names[i] = cmd.Kind.String()
	}
	fmt.Printf("Playing %s\n", strings.Join(names, ", "))

	if err := s.dog.Executor().Wait(ctx); err != nil {
		// Interrupted: bring the dog back to rest before exiting.
		if serr := s.dog.Suspend(context.Background()); serr != nil {
			logger.Warnw("suspend failed", "error", serr)
		}
		return err
	}
	return nil
}
