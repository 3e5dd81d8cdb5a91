// Package scheduler runs the periodic maintenance jobs: the nightly purge of
// expired refresh token rows and the hourly blacklist sweep. A failing job is
// logged and retried on the next tick, it never takes the process down.
package scheduler

import (
	"context"
	"errors"

	"github.com/robfig/cron/v3"

	"github.com/akarpov/tokenvault/internal/logger"
	"github.com/akarpov/tokenvault/internal/service/blacklist"
	"github.com/akarpov/tokenvault/internal/service/token"
)

const (
	cleanupSpec = "0 0 3 * * *" // daily at 03:00
	sweepSpec   = "0 0 * * * *" // hourly
)

type Scheduler struct {
	cron      *cron.Cron
	tokens    *token.Service
	blacklist blacklist.Blacklist
	logger    logger.Logger
}

func New(tokens *token.Service, bl blacklist.Blacklist, l logger.Logger) (*Scheduler, error) {
	if tokens == nil || bl == nil {
		return nil, errors.New("token service and blacklist must not be nil")
	}
	if l == nil {
		l = logger.NewNoOp()
	}

	s := &Scheduler{
		cron:      cron.New(cron.WithSeconds()),
		tokens:    tokens,
		blacklist: bl,
		logger:    l,
	}

	if _, err := s.cron.AddFunc(cleanupSpec, s.runCleanup); err != nil {
		return nil, err
	}
	if _, err := s.cron.AddFunc(sweepSpec, s.runSweep); err != nil {
		return nil, err
	}

	return s, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("scheduler started")
}

// Stop waits for running jobs to finish
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) runCleanup() {
	count, err := s.tokens.CleanupExpired(context.Background())
	if err != nil {
		s.logger.Error("expired token cleanup failed", "error", err.Error())
		return
	}

	s.logger.Info("expired token cleanup done", "deleted", count)
}

func (s *Scheduler) runSweep() {
	count, err := s.blacklist.Sweep(context.Background())
	if err != nil {
		s.logger.Error("blacklist sweep failed", "error", err.Error())
		return
	}

	s.logger.Info("blacklist sweep done", "removed", count)
}
