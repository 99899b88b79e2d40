package scheduler

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Scheduler runs a check on a cron schedule, one at a time.
type Scheduler struct {
	cron     *cron.Cron
	spec     string
	location *time.Location
	logger   *zap.Logger
}

// New creates a Scheduler for a standard 5-field cron spec in the given
// timezone ("" or "Local" for the host zone).
func New(spec, timezone string, logger *zap.Logger) (*Scheduler, error) {
	loc := time.Local
	if timezone != "" && timezone != "Local" {
		var err error
		loc, err = time.LoadLocation(timezone)
		if err != nil {
			return nil, fmt.Errorf("loading timezone %q: %w", timezone, err)
		}
	}

	if _, err := cron.ParseStandard(spec); err != nil {
		return nil, fmt.Errorf("invalid cron spec %q: %w", spec, err)
	}

	c := cron.New(
		cron.WithLocation(loc),
		cron.WithChain(cron.SkipIfStillRunning(cronLogger{logger})),
	)
	return &Scheduler{cron: c, spec: spec, location: loc, logger: logger}, nil
}

// Schedule registers task. A tick is skipped while the previous one runs.
func (s *Scheduler) Schedule(task func()) error {
	if _, err := s.cron.AddFunc(s.spec, task); err != nil {
		return fmt.Errorf("adding cron entry: %w", err)
	}
	s.logger.Info("check scheduled", zap.String("cron", s.spec), zap.String("timezone", s.location.String()))
	return nil
}

// Next returns the next activation time, or zero if nothing is scheduled.
func (s *Scheduler) Next() time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

// Start begins the cron scheduler.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the scheduler and waits for a running check to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	l *zap.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Sugar().Debugw("cron: "+msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Sugar().Errorw("cron: "+msg, append(keysAndValues, "error", err)...)
}
