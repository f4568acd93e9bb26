package news

import (
	"context"
	"log/slog"
	"sync"

	"github.com/m-mizutani/goerr/v2"
	"github.com/robfig/cron/v3"

	"github.com/ethanbaker/ragchat/pkg/logging"
)

// Job ingests a fixed feed list, one run at a time
type Job struct {
	ingester *Ingester
	feeds    []Feed
	running  sync.Mutex
}

// NewJob creates a Job
func NewJob(ingester *Ingester, feeds []Feed) *Job {
	return &Job{ingester: ingester, feeds: feeds}
}

// Feeds returns the feed list
func (j *Job) Feeds() []Feed {
	return j.feeds
}

// RunNow performs one ingestion immediately. It reports false when a run is
// already in progress
func (j *Job) RunNow(ctx context.Context) (Stats, bool, error) {
	if !j.running.TryLock() {
		return Stats{}, false, nil
	}
	defer j.running.Unlock()

	stats, err := j.ingester.Ingest(ctx, j.feeds)
	return stats, true, err
}

// Scheduler runs a Job on a cron schedule
type Scheduler struct {
	job    *Job
	logger *slog.Logger
	cron   *cron.Cron

	ctx    context.Context
	cancel context.CancelFunc
}

// NewScheduler schedules job with a standard cron expression or a descriptor such
// as "@hourly"
func NewScheduler(job *Job, schedule string, logger *slog.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = logging.Default()
	}

	ctx, cancel := context.WithCancel(logging.With(context.Background(), logger))
	s := &Scheduler{
		job:    job,
		logger: logger,
		cron:   cron.New(),
		ctx:    ctx,
		cancel: cancel,
	}

	if _, err := s.cron.AddFunc(schedule, s.run); err != nil {
		cancel()
		return nil, goerr.Wrap(err, "invalid ingest schedule", goerr.V("schedule", schedule))
	}

	return s, nil
}

// Start begins running scheduled jobs in the background
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop cancels a run in progress and waits for it to return
func (s *Scheduler) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
}

func (s *Scheduler) run() {
	stats, ran, err := s.job.RunNow(s.ctx)
	switch {
	case !ran:
		s.logger.Info("skipping scheduled ingest, previous run still active")
	case err != nil:
		s.logger.Error("scheduled ingest failed", "error", err)
	default:
		s.logger.Info("scheduled ingest finished", "indexed", stats.Indexed, "failed_feeds", stats.FailedFeeds)
	}
}
