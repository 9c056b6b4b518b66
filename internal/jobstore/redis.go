// Package jobstore persists export job state in Redis. Records carry a
// bounded TTL, so an absent record means "unknown or expired", never "failed
// to load". The active-job pointer lives beside the records as a single key
// and may go stale relative to them; readers treat a stale pointer as
// recoverable.
package jobstore

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	r "github.com/redis/go-redis/v9"

	"github.com/you/qragasync/internal/domain"
)

const (
	jobKeyPrefix = "qraga:export:job:"
	activeKey    = "qraga:export:active_job"
	lockSuffix   = ":lock"
)

type Store struct {
	rdb *r.Client
	ttl time.Duration
}

func New(rdb *r.Client, ttl time.Duration) *Store {
	return &Store{rdb: rdb, ttl: ttl}
}

// Get loads a job record. A nil record with nil error means the record is
// absent: expired past its TTL or never created.
func (s *Store) Get(ctx context.Context, jobID string) (*domain.JobRecord, error) {
	body, err := s.rdb.Get(ctx, jobKeyPrefix+jobID).Bytes()
	if errors.Is(err, r.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "get job record")
	}
	var rec domain.JobRecord
	if err := json.Unmarshal(body, &rec); err != nil {
		return nil, errors.Wrap(err, "decode job record")
	}
	return &rec, nil
}

// Put writes the record and refreshes its expiry horizon.
func (s *Store) Put(ctx context.Context, rec *domain.JobRecord) error {
	body, err := json.Marshal(rec)
	if err != nil {
		return errors.Wrap(err, "encode job record")
	}
	return s.rdb.Set(ctx, jobKeyPrefix+rec.JobID, body, s.ttl).Err()
}

func (s *Store) Delete(ctx context.Context, jobID string) error {
	return s.rdb.Del(ctx, jobKeyPrefix+jobID).Err()
}

// ActiveJob returns the current active-job pointer, or "" when none is set.
func (s *Store) ActiveJob(ctx context.Context) (string, error) {
	id, err := s.rdb.Get(ctx, activeKey).Result()
	if errors.Is(err, r.Nil) {
		return "", nil
	}
	return id, err
}

func (s *Store) SetActiveJob(ctx context.Context, jobID string) error {
	return s.rdb.Set(ctx, activeKey, jobID, 0).Err()
}

func (s *Store) ClearActiveJob(ctx context.Context) error {
	return s.rdb.Del(ctx, activeKey).Err()
}

// TryLock takes the per-job advance lock. Advance invocations for one job are
// normally serialized by page order, but the queue is at-least-once, so two
// deliveries of the same page can race; the lock makes the read-modify-write
// of the record safe. Returns false when another invocation holds the lock.
func (s *Store) TryLock(ctx context.Context, jobID string, ttl time.Duration) (bool, error) {
	return s.rdb.SetNX(ctx, jobKeyPrefix+jobID+lockSuffix, 1, ttl).Result()
}

func (s *Store) Unlock(ctx context.Context, jobID string) error {
	return s.rdb.Del(ctx, jobKeyPrefix+jobID+lockSuffix).Err()
}
