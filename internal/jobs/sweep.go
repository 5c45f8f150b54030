package jobs

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

type SweepMode string

const (
	SweepRequeue SweepMode = "requeue"
	SweepFail    SweepMode = "fail"
)

// Sweeper recovers jobs wedged in running after a worker died mid-attempt.
// A claim never expires on its own, so this periodic pass is the only path
// back for those rows. It only touches jobs whose locked_at is older than
// the threshold, which makes it safe to run next to live workers.
type Sweeper struct {
	DB   *gorm.DB
	Repo *Repo
	Log  *zap.Logger

	StuckAfter time.Duration
	Mode       SweepMode
}

// Sweep processes one pass and returns how many jobs were repaired.
func (s *Sweeper) Sweep() (int, error) {
	cutoff := time.Now().Add(-s.StuckAfter)

	var stuck []Job
	err := s.DB.
		Where("status = ? AND locked_at IS NOT NULL AND locked_at < ?", StatusRunning, cutoff).
		Find(&stuck).Error
	if err != nil {
		return 0, err
	}

	repaired := 0
	for i := range stuck {
		job := &stuck[i]
		attempts := job.Attempts + 1
		msg := fmt.Sprintf("stuck in running > %s", s.StuckAfter)

		var aErr error
		if s.Mode == SweepFail || attempts >= job.MaxAttempts {
			aErr = s.Repo.MarkDead(job.ID, attempts, msg)
		} else {
			aErr = s.Repo.RetryLater(job.ID, attempts, time.Now(), msg)
		}
		if aErr != nil {
			s.Log.Error("sweep writeback failed", zap.String("job_id", job.ID), zap.Error(aErr))
			continue
		}

		repaired++
		s.Log.Warn("swept stuck job",
			zap.String("job_id", job.ID),
			zap.String("tenant_id", job.TenantID),
			zap.String("mode", string(s.Mode)),
			zap.Int("attempts", attempts),
		)
	}
	return repaired, nil
}

// Run executes Sweep on a fixed interval until the context is cancelled.
func (s *Sweeper) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Sweep(); err != nil {
				s.Log.Error("sweep failed", zap.Error(err))
			}
		}
	}
}
