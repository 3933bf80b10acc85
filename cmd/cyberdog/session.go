package main

import (
	"context"
	"fmt"

	"github.com/edaniels/golog"
	"go.uber.org/multierr"

	"github.com/gwillem/cyberdog/pkg/journal"
	"github.com/gwillem/cyberdog/pkg/remote"
	"github.com/gwillem/cyberdog/pkg/robot"
)

// session is a started dog plus the optional journal and remote server
// from the configuration.
type session struct {
	dog     *robot.Dog
	journal *journal.Journal
	server  *remote.Server
	logger  golog.Logger
}

func openSession(ctx context.Context, cfg *robot.Config, logger golog.Logger) (*session, error) {
	dog, err := robot.NewDog(cfg, logger)
	if err != nil {
		return nil, err
	}
	s := &session{dog: dog, logger: logger}

	if cfg.JournalPath != "" {
		j, err := journal.Open(ctx, cfg.JournalPath, logger.Named("journal"))
		if err != nil {
			dog.Close()
			return nil, fmt.Errorf("open journal: %w", err)
		}
		s.journal = j
		dog.Executor().Subscribe(j.Observe)
	}

	if err := dog.Start(ctx); err != nil {
		s.Close()
		return nil, err
	}

	if cfg.RemoteAddr != "" {
		s.server = remote.NewServer(cfg.RemoteAddr, dog, logger.Named("remote"))
		dog.Executor().Subscribe(s.server.Notify)
		go func() {
			if err := s.server.Start(); err != nil {
				logger.Errorw("remote server failed", "addr", cfg.RemoteAddr, "error", err)
			}
		}()
	}
	return s, nil
}

func (s *session) Close() error {
	var err error
	if s.server != nil {
		err = multierr.Append(err, s.server.Stop())
	}
	err = multierr.Append(err, s.dog.Close())
	if s.journal != nil {
		err = multierr.Append(err, s.journal.Close())
	}
	return err
}
