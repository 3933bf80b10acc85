package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

type ServeCommand struct {
	Addr string `long:"addr" description:"Listen address (overrides remote_addr)" default:""`
}

func (c *ServeCommand) Execute(args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if c.Addr != "" {
		cfg.RemoteAddr = c.Addr
	}
	if cfg.RemoteAddr == "" {
		cfg.RemoteAddr = ":7125"
	}

	logger, err := newLogger("")
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := openSession(ctx, cfg, logger)
	if err != nil {
		return err
	}
	logger.Infow("serving", "addr", cfg.RemoteAddr, "backend", cfg.Backend.Kind)

	<-ctx.Done()
	logger.Info("shutting down")
	return s.Close()
}
