// Package export orchestrates full-catalog export jobs: start, batch
// advance, and status queries. One job is active system-wide at a time,
// tracked by the active-job pointer in the job store. Batch advances run
// from queue tasks with at-least-once delivery; idempotency comes from the
// terminal-status check, the per-job lock, and the monotonic next_page
// counter on the record.
package export

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/you/qragasync/internal/domain"
	"github.com/you/qragasync/internal/metrics"
	"github.com/you/qragasync/internal/queue"
	"github.com/you/qragasync/internal/sink"
)

// ErrScheduling wraps failures to enqueue a batch-advance task.
var ErrScheduling = errors.New("failed to schedule export batch")

// CatalogSource pages through exportable products.
type CatalogSource interface {
	Count(ctx context.Context) (int, error)
	Page(ctx context.Context, page, size int) ([]domain.Product, error)
}

// BatchSink delivers one transformed batch in a single bulk call.
type BatchSink interface {
	SendBulk(ctx context.Context, batch []domain.ProductPayload) error
}

// Transformer maps one loaded product to its sink payload.
type Transformer interface {
	Product(p *domain.Product) (domain.ProductPayload, error)
}

// JobStore is the durable job state plus the active-job pointer and the
// per-job advance lock. Get returns (nil, nil) for absent records.
type JobStore interface {
	Get(ctx context.Context, jobID string) (*domain.JobRecord, error)
	Put(ctx context.Context, rec *domain.JobRecord) error
	Delete(ctx context.Context, jobID string) error
	ActiveJob(ctx context.Context) (string, error)
	SetActiveJob(ctx context.Context, jobID string) error
	ClearActiveJob(ctx context.Context) error
	TryLock(ctx context.Context, jobID string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, jobID string) error
}

// Scheduler enqueues batch-advance tasks.
type Scheduler interface {
	Schedule(ctx context.Context, t queue.Task, runAt time.Time) error
}

// Start outcome statuses surfaced to the HTTP layer.
const (
	StartQueued         = "queued"
	StartActiveJobFound = "active_job_found"
	StartComplete       = "complete"
)

// StartResult is the synchronous answer to a start trigger. The export
// itself runs in the background.
type StartResult struct {
	Status  string            `json:"status"`
	Message string            `json:"message"`
	JobID   string            `json:"job_id,omitempty"`
	Total   int               `json:"total_products"`
	Job     *domain.JobRecord `json:"job_details,omitempty"`
}

const advanceLockTTL = 2 * time.Minute

type Controller struct {
	catalog     CatalogSource
	sink        BatchSink
	transformer Transformer
	store       JobStore
	sched       Scheduler
	sinkCfg     sink.Config
	batchSize   int
	log         *zap.Logger
	now         func() time.Time
}

type Params struct {
	Catalog     CatalogSource
	Sink        BatchSink
	Transformer Transformer
	Store       JobStore
	Scheduler   Scheduler
	SinkConfig  sink.Config
	BatchSize   int
	Log         *zap.Logger
}

func New(p Params) *Controller {
	return &Controller{
		catalog:     p.Catalog,
		sink:        p.Sink,
		transformer: p.Transformer,
		store:       p.Store,
		sched:       p.Scheduler,
		sinkCfg:     p.SinkConfig,
		batchSize:   p.BatchSize,
		log:         p.Log,
		now:         time.Now,
	}
}

// Start triggers a full-catalog export. Re-triggering while a job is active
// returns the active job instead of starting a second one.
func (c *Controller) Start(ctx context.Context) (*StartResult, error) {
	activeID, err := c.store.ActiveJob(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "read active job pointer")
	}
	if activeID != "" {
		rec, err := c.store.Get(ctx, activeID)
		if err != nil {
			return nil, errors.Wrap(err, "load active job")
		}
		if rec != nil && rec.Status.Active() {
			return &StartResult{
				Status:  StartActiveJobFound,
				Message: "an export job is already " + string(rec.Status),
				JobID:   rec.JobID,
				Total:   rec.Total,
				Job:     rec,
			}, nil
		}
		// Stale pointer: record expired or reached a terminal state without
		// the pointer being cleared. Recoverable, not fatal.
		c.log.Info("clearing stale active job pointer", zap.String("job_id", activeID))
		if err := c.store.ClearActiveJob(ctx); err != nil {
			return nil, errors.Wrap(err, "clear stale active job pointer")
		}
	}

	if err := c.sinkCfg.Validate(); err != nil {
		return nil, err
	}

	total, err := c.catalog.Count(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "count products")
	}
	if total == 0 {
		return &StartResult{Status: StartComplete, Message: "no products found to sync"}, nil
	}

	jobID := "export_" + uuid.NewString()
	rec := domain.NewJobRecord(jobID, total, c.now())
	if err := c.store.Put(ctx, rec); err != nil {
		return nil, errors.Wrap(err, "persist job record")
	}

	if err := c.sched.Schedule(ctx, queue.Task{JobID: jobID, Page: 1}, c.now()); err != nil {
		// No orphaned queued jobs: the record goes away with the failure.
		if delErr := c.store.Delete(ctx, jobID); delErr != nil {
			c.log.Error("failed to delete job record after scheduling failure",
				zap.String("job_id", jobID), zap.Error(delErr))
		}
		return nil, errors.Wrapf(ErrScheduling, "first batch: %v", err)
	}

	if err := c.store.SetActiveJob(ctx, jobID); err != nil {
		return nil, errors.Wrap(err, "set active job pointer")
	}

	c.log.Info("export job queued", zap.String("job_id", jobID), zap.Int("total", total))
	return &StartResult{
		Status:  StartQueued,
		Message: "bulk synchronization job queued",
		JobID:   jobID,
		Total:   total,
		Job:     rec,
	}, nil
}

// Advance processes one page of an export job. It is invoked by the queue
// consumer, never by an HTTP caller; every failure except lock/storage
// plumbing becomes a job record mutation rather than a returned error.
func (c *Controller) Advance(ctx context.Context, jobID string, page int) error {
	log := c.log.With(zap.String("job_id", jobID), zap.Int("page", page))

	locked, err := c.store.TryLock(ctx, jobID, advanceLockTTL)
	if err != nil {
		return errors.Wrap(err, "acquire advance lock")
	}
	if !locked {
		log.Warn("advance already in flight, skipping duplicate delivery")
		return nil
	}
	defer func() {
		if err := c.store.Unlock(ctx, jobID); err != nil {
			log.Error("failed to release advance lock", zap.Error(err))
		}
	}()

	rec, err := c.store.Get(ctx, jobID)
	if err != nil {
		return errors.Wrap(err, "load job record")
	}
	if rec == nil {
		log.Warn("job record missing or expired, aborting batch")
		return nil
	}
	if rec.Status.Terminal() {
		log.Warn("job already terminal, ignoring batch", zap.String("status", string(rec.Status)))
		return nil
	}
	if page != rec.NextPage {
		log.Warn("stale or out-of-order batch, ignoring", zap.Int("next_page", rec.NextPage))
		return nil
	}

	products, err := c.catalog.Page(ctx, page, c.batchSize)
	if err != nil {
		c.failJob(ctx, rec, errors.Wrap(err, "fetch catalog page"))
		return nil
	}

	if len(products) == 0 {
		c.completeJob(ctx, rec)
		return nil
	}

	payloads := make([]domain.ProductPayload, 0, len(products))
	sentIDs := make([]int64, 0, len(products))
	failedTransforms := 0
	for i := range products {
		p := &products[i]
		payload, err := c.transformer.Product(p)
		if err != nil {
			log.Warn("product transform failed", zap.Int64("product_id", p.ID), zap.Error(err))
			rec.Errors = append(rec.Errors, domain.ErrorEntry{
				Timestamp: c.now(),
				ProductID: p.ID,
				Message:   "failed to transform product data: " + err.Error(),
			})
			rec.AddErrorIDs(p.ID)
			failedTransforms++
			continue
		}
		payloads = append(payloads, payload)
		sentIDs = append(sentIDs, p.ID)
	}
	metrics.ItemErrors(failedTransforms)

	var batchErrors []string
	if len(payloads) > 0 {
		if err := c.sink.SendBulk(ctx, payloads); err != nil {
			log.Warn("bulk send failed", zap.Int("items", len(payloads)), zap.Error(err))
			batchErrors = append(batchErrors, "bulk send failed: "+err.Error())
			// One bulk call is all-or-nothing; partial acceptance cannot be
			// distinguished, so every item in the call is marked.
			rec.AddErrorIDs(sentIDs...)
			metrics.ItemErrors(len(sentIDs))
			metrics.BatchAttempted("sink_error")
		} else {
			metrics.BatchAttempted("sent")
		}
	} else {
		metrics.BatchAttempted("empty")
	}

	// All queried items count as processed, sent or not: progress is driven
	// by the page cursor, not by per-item success.
	rec.Processed += len(products)
	rec.Batches++
	rec.NextPage = page + 1
	rec.Status = domain.Processing
	if len(batchErrors) > 0 {
		rec.Errors = append(rec.Errors, domain.ErrorEntry{
			Timestamp: c.now(),
			Batch:     page,
			Messages:  batchErrors,
		})
	}
	metrics.ItemsProcessed(len(products))

	if len(products) < c.batchSize {
		c.completeJob(ctx, rec)
		return nil
	}

	if err := c.store.Put(ctx, rec); err != nil {
		return errors.Wrap(err, "persist job record")
	}

	if err := c.sched.Schedule(ctx, queue.Task{JobID: jobID, Page: page + 1}, c.now()); err != nil {
		log.Error("failed to schedule next batch", zap.Error(err))
		rec.Errors = append(rec.Errors, domain.ErrorEntry{
			Timestamp: c.now(),
			Message:   "failed to schedule next batch, manual restart needed: " + err.Error(),
		})
		rec.Status = domain.ErrorSchedulingNext
		if err := c.store.Put(ctx, rec); err != nil {
			return errors.Wrap(err, "persist job record")
		}
		// The pointer stays set: the stuck job still owns the active slot
		// until an operator intervenes.
		metrics.JobFinished(string(domain.ErrorSchedulingNext))
	}
	return nil
}

// JobStatus returns the record for a job id, or nil when unknown/expired.
func (c *Controller) JobStatus(ctx context.Context, jobID string) (*domain.JobRecord, error) {
	return c.store.Get(ctx, jobID)
}

// CurrentActiveJob resolves the active-job pointer to a live record. It is
// called by polling clients; it never mutates progress, only self-heals a
// stale pointer.
func (c *Controller) CurrentActiveJob(ctx context.Context) (*domain.JobRecord, error) {
	activeID, err := c.store.ActiveJob(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "read active job pointer")
	}
	if activeID == "" {
		return nil, nil
	}
	rec, err := c.store.Get(ctx, activeID)
	if err != nil {
		return nil, errors.Wrap(err, "load active job")
	}
	if rec != nil && rec.JobID == activeID && rec.Status.Active() {
		return rec, nil
	}
	c.log.Info("active job pointer is stale, clearing", zap.String("job_id", activeID))
	if err := c.store.ClearActiveJob(ctx); err != nil {
		return nil, errors.Wrap(err, "clear stale active job pointer")
	}
	return nil, nil
}

func (c *Controller) completeJob(ctx context.Context, rec *domain.JobRecord) {
	rec.Finish(domain.Completed, c.now())
	if err := c.store.Put(ctx, rec); err != nil {
		c.log.Error("failed to persist completed job", zap.String("job_id", rec.JobID), zap.Error(err))
		return
	}
	c.clearActiveIf(ctx, rec.JobID)
	metrics.JobFinished(string(domain.Completed))
	c.log.Info("export job completed",
		zap.String("job_id", rec.JobID),
		zap.Int("processed", rec.Processed),
		zap.Int("batches", rec.Batches),
		zap.Int("errors", len(rec.ErrorIDs)))
}

func (c *Controller) failJob(ctx context.Context, rec *domain.JobRecord, cause error) {
	c.log.Error("export job failed", zap.String("job_id", rec.JobID), zap.Error(cause))
	rec.Errors = append(rec.Errors, domain.ErrorEntry{
		Timestamp: c.now(),
		Message:   "fatal error during batch processing: " + cause.Error(),
	})
	rec.Finish(domain.Failed, c.now())
	if err := c.store.Put(ctx, rec); err != nil {
		c.log.Error("failed to persist failed job", zap.String("job_id", rec.JobID), zap.Error(err))
	}
	c.clearActiveIf(ctx, rec.JobID)
	metrics.JobFinished(string(domain.Failed))
}

// clearActiveIf clears the pointer only when it still names this job, so a
// late-finishing job cannot clobber a newer export's slot.
func (c *Controller) clearActiveIf(ctx context.Context, jobID string) {
	activeID, err := c.store.ActiveJob(ctx)
	if err != nil {
		c.log.Error("failed to read active job pointer", zap.Error(err))
		return
	}
	if activeID != jobID {
		return
	}
	if err := c.store.ClearActiveJob(ctx); err != nil {
		c.log.Error("failed to clear active job pointer", zap.String("job_id", jobID), zap.Error(err))
	}
}
