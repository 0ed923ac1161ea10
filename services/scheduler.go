// services/scheduler.go
package services

import (
	"context"
	"fmt"
	"time"

	"dogpark-economy/metrics"

	"github.com/go-co-op/gocron/v2"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

const (
	JobSpawnGeneration = "spawn-generation"
	JobSpawnSweep      = "spawn-sweep"
	JobLedgerArchive   = "ledger-archive"
)

// Scheduler runs the periodic economy jobs on the shared clock.
type Scheduler struct {
	sched gocron.Scheduler
	clock clockwork.Clock
	log   *zap.Logger
	jobs  map[string]gocron.Job
}

func NewScheduler(clock clockwork.Clock, log *zap.Logger) (*Scheduler, error) {
	sched, err := gocron.NewScheduler(
		gocron.WithClock(clock),
		gocron.WithLocation(time.UTC),
	)
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}
	return &Scheduler{sched: sched, clock: clock, log: orNop(log), jobs: map[string]gocron.Job{}}, nil
}

func (s *Scheduler) add(name string, def gocron.JobDefinition, run func() error) error {
	job, err := s.sched.NewJob(def,
		gocron.NewTask(func() {
			err := run()
			metrics.RecordJobRun(name, err)
			if err != nil {
				s.log.Error("❌ scheduled job failed", zap.String("job", name), zap.Error(err))
			}
		}),
		gocron.WithName(name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("schedule %s: %w", name, err)
	}
	s.jobs[name] = job
	return nil
}

// ScheduleSpawns registers generation every spawnEvery and the expiry sweep
// every sweepEvery.
func (s *Scheduler) ScheduleSpawns(ctx context.Context, spawns *SpawnService, spawnEvery, sweepEvery time.Duration) error {
	if err := s.add(JobSpawnGeneration, gocron.DurationJob(spawnEvery), func() error {
		spawns.GenerateSpawns(ctx)
		return nil
	}); err != nil {
		return err
	}
	return s.add(JobSpawnSweep, gocron.DurationJob(sweepEvery), func() error {
		_, err := spawns.SweepExpired(ctx)
		return err
	})
}

// ScheduleLedgerArchive exports the previous UTC day every night at 00:15.
func (s *Scheduler) ScheduleLedgerArchive(ctx context.Context, archiver *LedgerArchiver) error {
	return s.add(JobLedgerArchive,
		gocron.DailyJob(1, gocron.NewAtTimes(gocron.NewAtTime(0, 15, 0))),
		func() error {
			_, err := archiver.ArchiveDay(ctx, s.clock.Now().UTC().AddDate(0, 0, -1))
			return err
		})
}

// RunNow triggers a registered job outside its schedule.
func (s *Scheduler) RunNow(name string) error {
	job, ok := s.jobs[name]
	if !ok {
		return fmt.Errorf("unknown job %q", name)
	}
	return job.RunNow()
}

func (s *Scheduler) Start() {
	s.sched.Start()
	s.log.Info("⏰ scheduler started", zap.Int("jobs", len(s.jobs)))
}

func (s *Scheduler) Shutdown() error {
	return s.sched.Shutdown()
}
