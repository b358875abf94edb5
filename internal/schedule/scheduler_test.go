package schedule_test

import (
	"context"
	"testing"

	"github.com/go-logr/logr"

	"docshot/internal/schedule"
)

func TestSchedulerAdd(t *testing.T) {
	t.Run("AcceptsStandardSpec", func(t *testing.T) {
		s := schedule.NewScheduler(logr.Discard())
		if err := s.Add("*/5 * * * *", "verify", func(ctx context.Context) {}); err != nil {
			t.Errorf("returned %+v, want nil", err)
		}
	})
	t.Run("RejectsMalformedSpec", func(t *testing.T) {
		s := schedule.NewScheduler(logr.Discard())
		if err := s.Add("not a cron spec", "verify", func(ctx context.Context) {}); err == nil {
			t.Errorf("returned nil, want error")
		}
	})
}

func TestSchedulerStopWaitsForIdle(t *testing.T) {
	s := schedule.NewScheduler(logr.Discard())
	s.Start()
	s.Stop() // must not hang with no jobs registered
}
