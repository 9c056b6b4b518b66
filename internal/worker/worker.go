// Package worker consumes batch-advance tasks from the Redis queue and runs
// them through the export controller. It also promotes delayed tasks on a
// ticker, the same loop shape as a standalone scheduler process.
package worker

import (
	"context"
	"time"

	"github.com/pkg/errors"
	r "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/you/qragasync/internal/queue"
)

// Advancer runs one batch of an export job.
type Advancer interface {
	Advance(ctx context.Context, jobID string, page int) error
}

const (
	dequeueBlock  = 5 * time.Second
	promoteEvery  = time.Second
	promoteBatch  = 200
	errorCooldown = time.Second
)

type Worker struct {
	q    *queue.RedisQ
	ctrl Advancer
	log  *zap.Logger
}

func New(q *queue.RedisQ, ctrl Advancer, log *zap.Logger) *Worker {
	return &Worker{q: q, ctrl: ctrl, log: log}
}

// Run blocks until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	go w.promoteLoop(ctx)

	for {
		task, err := w.q.Dequeue(ctx, dequeueBlock)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, r.Nil) {
			continue
		}
		if err != nil {
			w.log.Error("dequeue failed", zap.Error(err))
			time.Sleep(errorCooldown)
			continue
		}
		if err := w.ctrl.Advance(ctx, task.JobID, task.Page); err != nil {
			// Advance only errors on lock/storage plumbing; job-level
			// failures are already recorded on the job itself.
			w.log.Error("batch advance failed",
				zap.String("job_id", task.JobID),
				zap.Int("page", task.Page),
				zap.Error(err))
		}
	}
}

func (w *Worker) promoteLoop(ctx context.Context) {
	tick := time.NewTicker(promoteEvery)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			if err := w.q.MoveDue(ctx, time.Now().UTC().Unix(), promoteBatch); err != nil && ctx.Err() == nil {
				w.log.Error("promoting delayed tasks failed", zap.Error(err))
			}
		}
	}
}
