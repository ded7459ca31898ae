// Package scheduler runs periodic maintenance and backup jobs (WAL
// checkpoints, disk-space checks, off-box snapshot uploads) on cron
// schedules, independent of the per-symbol grid cycle the coordinator
// drives directly.
package scheduler

import (
	"context"

	"github.com/LuizEdCard/binance-grid-bot-RL-sub001/internal/scheduler/base"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Job is one schedulable unit of work. Jobs embed base.JobBase to pick
// up progress-reporter plumbing for free, matching the teacher's job
// shape.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// FuncJob adapts a plain function into a Job, for jobs with no
// meaningful state of their own (a backup upload, a host-stat log
// line).
type FuncJob struct {
	base.JobBase
	JobName string
	Fn      func(ctx context.Context) error
}

func (f *FuncJob) Name() string                  { return f.JobName }
func (f *FuncJob) Run(ctx context.Context) error { return f.Fn(ctx) }

// Scheduler wraps a cron.Cron, logging each job's outcome and never
// letting a panicking job take down the process.
type Scheduler struct {
	cron *cron.Cron
	log  zerolog.Logger
}

// New builds a Scheduler. Jobs run with second-level precision off;
// standard 5-field cron expressions ("*/5 * * * *") are expected.
func New(log zerolog.Logger) *Scheduler {
	return &Scheduler{
		cron: cron.New(),
		log:  log.With().Str("component", "scheduler").Logger(),
	}
}

// Register schedules job to run on spec, a standard 5-field cron
// expression. Returns an error if spec doesn't parse.
func (s *Scheduler) Register(spec string, job Job) error {
	_, err := s.cron.AddFunc(spec, func() {
		log := s.log.With().Str("job", job.Name()).Logger()
		defer func() {
			if r := recover(); r != nil {
				log.Error().Interface("panic", r).Msg("scheduler: job panicked")
			}
		}()
		log.Debug().Msg("scheduler: job starting")
		if err := job.Run(context.Background()); err != nil {
			log.Error().Err(err).Msg("scheduler: job failed")
			return
		}
		log.Debug().Msg("scheduler: job completed")
	})
	return err
}

// Start begins running scheduled jobs in the background.
func (s *Scheduler) Start() { s.cron.Start() }

// Stop halts the scheduler, waiting for any in-flight job to finish.
func (s *Scheduler) Stop() { <-s.cron.Stop().Done() }
