// Package scheduler runs jobs on cron expressions in a fixed time zone.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"donation-subscription-bot/internal/domain"
	"donation-subscription-bot/internal/infra/metrics"
)

// Job is one run of a scheduled task.
type Job func(ctx context.Context) error

// Scheduler wraps a cron runner. Runs of the same job never overlap and every
// run gets its own timeout.
type Scheduler struct {
	cron    *cron.Cron
	timeout time.Duration
	log     *zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

// NewScheduler evaluates cron expressions in loc. timeout <= 0 disables the
// per-run timeout.
func NewScheduler(loc *time.Location, timeout time.Duration, logger *zerolog.Logger) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	compLog := logger.With().Str("component", "Scheduler").Logger()
	cl := cronLogger{log: &compLog}
	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		timeout: timeout,
		log:     &compLog,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Add registers job under name. spec is a standard 5-field cron expression
// or a descriptor such as "@daily".
func (s *Scheduler) Add(spec, name string, job Job) error {
	_, err := s.cron.AddFunc(spec, func() {
		_ = Run(s.ctx, s.log, name, s.timeout, job)
	})
	if err != nil {
		return fmt.Errorf("schedule %s %q: %w", name, spec, err)
	}
	s.log.Info().Str("job", name).Str("spec", spec).Msg("job scheduled")
	return nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop cancels running jobs and waits until they return.
func (s *Scheduler) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
	s.log.Info().Msg("scheduler stopped")
}

// Run executes job once under timeout, logs the outcome and records it in
// the job metrics. A run refused because another one holds the lock counts
// as skipped.
func Run(ctx context.Context, log *zerolog.Logger, name string, timeout time.Duration, job Job) (err error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job %s panicked: %v", name, r)
			log.Error().Str("job", name).Interface("panic", r).Msg("job panicked")
			metrics.ObserveJob(name, "panic", time.Since(start))
		}
	}()

	err = job(ctx)
	d := time.Since(start)
	switch {
	case err == nil:
		log.Debug().Str("job", name).Dur("duration", d).Msg("job finished")
		metrics.ObserveJob(name, "ok", d)
	case errors.Is(err, domain.ErrRunInProgress):
		log.Info().Str("job", name).Msg("job skipped, previous run still in progress")
		metrics.ObserveJob(name, "skipped", d)
	default:
		log.Error().Err(err).Str("job", name).Dur("duration", d).Msg("job failed")
		metrics.ObserveJob(name, "failed", d)
	}
	return err
}

// cronLogger routes cron's own messages to zerolog.
type cronLogger struct {
	log *zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
