package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

const housekeepingJobTimeout = 30 * time.Second

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, append([]interface{}{"error", err}, keysAndValues...)...)
}

// Housekeeper runs periodic maintenance jobs such as throttle sweeps and
// dependency health probes.
type Housekeeper struct {
	c      *cron.Cron
	parser cron.Parser
	logger *slog.Logger
}

func NewHousekeeper(logger *slog.Logger) *Housekeeper {
	logger = logger.With("component", "housekeeper")
	parser := cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	return &Housekeeper{
		c: cron.New(
			cron.WithParser(parser),
			cron.WithLocation(time.UTC),
			cron.WithChain(cron.Recover(cronLogger{logger}), cron.SkipIfStillRunning(cronLogger{logger})),
		),
		parser: parser,
		logger: logger,
	}
}

// AddJob schedules fn. schedule accepts standard cron expressions, an optional
// seconds field and descriptors such as "@every 1m".
func (h *Housekeeper) AddJob(name, schedule string, fn func(ctx context.Context)) error {
	if _, err := h.parser.Parse(schedule); err != nil {
		return fmt.Errorf("invalid schedule %q for job %s: %w", schedule, name, err)
	}
	_, err := h.c.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), housekeepingJobTimeout)
		defer cancel()
		started := time.Now()
		fn(ctx)
		h.logger.Debug("Housekeeping job finished", "job", name, "duration", time.Since(started))
	})
	if err != nil {
		return fmt.Errorf("failed to schedule job %s: %w", name, err)
	}
	h.logger.Info("Scheduled housekeeping job", "job", name, "schedule", schedule)
	return nil
}

// Len returns the number of scheduled jobs.
func (h *Housekeeper) Len() int {
	return len(h.c.Entries())
}

func (h *Housekeeper) Start() {
	h.c.Start()
}

// Stop stops scheduling and waits for running jobs, or for ctx to end.
func (h *Housekeeper) Stop(ctx context.Context) error {
	select {
	case <-h.c.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
