package services

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/pbelyaev/kinoscribe/internal/logger"
)

// Scheduler runs library scans on a cron schedule. The first scan
// fires immediately on Start so a fresh deployment enriches the
// library without waiting for the first tick.
type Scheduler struct {
	cron    *cron.Cron
	scanner *LibraryScanner
	spec    string

	mu      sync.Mutex
	entryID cron.EntryID
	started bool
}

func NewScheduler(scanner *LibraryScanner, spec string) *Scheduler {
	return &Scheduler{
		cron:    cron.New(),
		scanner: scanner,
		spec:    spec,
	}
}

// Start validates the schedule, runs an immediate first scan in the
// background and begins the recurring schedule.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return fmt.Errorf("scheduler already started")
	}

	if _, err := cron.ParseStandard(s.spec); err != nil {
		return fmt.Errorf("invalid scan schedule %q: %v", s.spec, err)
	}

	entryID, err := s.cron.AddFunc(s.spec, s.runOnce)
	if err != nil {
		return fmt.Errorf("failed to schedule scans: %v", err)
	}
	s.entryID = entryID
	s.started = true

	logger.Infof("Scheduler: scanning library on schedule %q", s.spec)
	go s.runOnce()
	s.cron.Start()
	return nil
}

func (s *Scheduler) runOnce() {
	if _, err := s.scanner.RunScan(context.Background()); err != nil {
		logger.Errorf("Scheduled scan failed: %v", err)
	}
}

// Stop halts the schedule and waits for a running cron job to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return
	}
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.started = false
	logger.Infof("Scheduler: stopped")
}
