package export

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Scheduler runs the archiver on a cron schedule.
type Scheduler struct {
	cron     *cron.Cron
	archiver *Archiver
	logger   logrus.FieldLogger
}

// NewScheduler validates spec (standard five-field cron or a descriptor such
// as "@daily") and registers the archive job.
func NewScheduler(spec string, archiver *Archiver, logger logrus.FieldLogger) (*Scheduler, error) {
	s := &Scheduler{
		cron:     cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		archiver: archiver,
		logger:   logger.WithField("component", "export.scheduler"),
	}
	if _, err := s.cron.AddFunc(spec, s.runOnce); err != nil {
		return nil, fmt.Errorf("invalid archive schedule %q: %w", spec, err)
	}
	return s, nil
}

func (s *Scheduler) runOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	if _, err := s.archiver.Archive(ctx); err != nil {
		s.logger.WithError(err).Error("scheduled archive failed")
	}
}

// Next returns the next planned run, or the zero time before Run starts.
func (s *Scheduler) Next() time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

// Run starts the schedule and blocks until ctx is cancelled, then waits for
// a running job to finish.
func (s *Scheduler) Run(ctx context.Context) error {
	s.cron.Start()
	s.logger.WithField("next", s.Next()).Info("archive scheduler started")
	<-ctx.Done()
	<-s.cron.Stop().Done()
	return nil
}
