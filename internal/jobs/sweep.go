package jobs

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/your-org/facegate/internal/identity"
)

// TaskObservedSweep expires observed identities whose access window has passed.
const TaskObservedSweep = "observed:sweep"

func NewSweepTask() *asynq.Task {
	return asynq.NewTask(TaskObservedSweep, nil)
}

type sweeper interface {
	Sweep(ctx context.Context) (identity.SweepResult, error)
}

type SweepJob struct {
	sweeper sweeper
	logger  *slog.Logger
}

func NewSweepJob(s sweeper, logger *slog.Logger) *SweepJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &SweepJob{sweeper: s, logger: logger}
}

// Handle runs a sweep. A run skipped because another process holds the lock is a
// success; the next tick will try again.
func (j *SweepJob) Handle(ctx context.Context, _ *asynq.Task) error {
	res, err := j.sweeper.Sweep(ctx)
	if err != nil {
		return fmt.Errorf("observed sweep: %w", err)
	}
	j.logger.Info("observed sweep finished",
		slog.String("job", TaskObservedSweep),
		slog.Int64("expired", res.Expired),
		slog.Bool("skipped", res.Skipped),
	)
	return nil
}
