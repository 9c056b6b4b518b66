// Package queue is the Redis-backed work queue that drives batch advances.
// Tasks are serialized JSON on a list; not-yet-due tasks sit in a ZSET keyed
// by run time and are promoted by MoveDue. Delivery is at-least-once: a task
// may be handed to a consumer more than once, and consumers must tolerate
// duplicates.
package queue

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/pkg/errors"
	r "github.com/redis/go-redis/v9"
)

const (
	readyKey = "qraga:export:queue"
	delayKey = "qraga:export:delay"
)

// Task is one scheduled unit of work: advance a single page of a job.
type Task struct {
	JobID string `json:"job_id"`
	Page  int    `json:"page"`
}

type RedisQ struct{ rdb *r.Client }

func New(rdb *r.Client) *RedisQ { return &RedisQ{rdb} }

// Schedule enqueues a batch-advance task. Tasks due now go straight onto the
// ready list; future ones wait in the delay ZSET until MoveDue promotes them.
func (q *RedisQ) Schedule(ctx context.Context, t Task, runAt time.Time) error {
	body, err := json.Marshal(t)
	if err != nil {
		return errors.Wrap(err, "marshal task")
	}
	if time.Until(runAt) > 0 {
		return q.rdb.ZAdd(ctx, delayKey, r.Z{Score: float64(runAt.Unix()), Member: body}).Err()
	}
	return q.rdb.LPush(ctx, readyKey, body).Err()
}

// Dequeue blocks up to block for the next ready task. Returns r.Nil when the
// wait times out with nothing to do.
func (q *RedisQ) Dequeue(ctx context.Context, block time.Duration) (Task, error) {
	res, err := q.rdb.BRPop(ctx, block, readyKey).Result()
	if err != nil {
		return Task{}, err
	}
	var t Task
	if len(res) != 2 {
		return Task{}, errors.New("unexpected brpop reply")
	}
	if err := json.Unmarshal([]byte(res[1]), &t); err != nil {
		return Task{}, errors.Wrap(err, "unmarshal task")
	}
	return t, nil
}

// MoveDue promotes up to batch delayed tasks whose run time has passed.
func (q *RedisQ) MoveDue(ctx context.Context, now int64, batch int64) error {
	members, err := q.rdb.ZRangeByScore(ctx, delayKey, &r.ZRangeBy{
		Min: "-inf", Max: strconv.FormatInt(now, 10), Offset: 0, Count: batch,
	}).Result()
	if err != nil || len(members) == 0 {
		return err
	}
	pipe := q.rdb.TxPipeline()
	for _, m := range members {
		pipe.LPush(ctx, readyKey, m)
		pipe.ZRem(ctx, delayKey, m)
	}
	_, err = pipe.Exec(ctx)
	return err
}
