package schedule

import (
	"context"
	"sync/atomic"

	"github.com/go-logr/logr"
	"github.com/robfig/cron/v3"
	"golang.org/x/xerrors"
)

// Scheduler runs verification batches on a cron schedule. Each job is
// guarded against overlap: a tick firing while the previous run is
// still comparing is skipped rather than queued.
type Scheduler struct {
	cron *cron.Cron
	log  logr.Logger
}

func NewScheduler(log logr.Logger) *Scheduler {
	return &Scheduler{
		cron: cron.New(),
		log:  log,
	}
}

func (s *Scheduler) Add(spec string, name string, job func(ctx context.Context)) error {
	var running int32
	_, err := s.cron.AddFunc(spec, func() {
		if !atomic.CompareAndSwapInt32(&running, 0, 1) {
			s.log.Info("previous run still in progress, skipping", "job", name)
			return
		}
		defer atomic.StoreInt32(&running, 0)
		job(context.Background())
	})
	if err != nil {
		return xerrors.Errorf("failed to register job %s: %w", name, err)
	}
	return nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts scheduling and waits for in-flight jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}
