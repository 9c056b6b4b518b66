package domain

import "time"

type Status string

const (
	Queued              Status = "queued"
	Processing          Status = "processing"
	Completed           Status = "completed"
	Failed              Status = "failed"
	ErrorSchedulingNext Status = "error_scheduling_next"
)

// Active reports whether a job in this status still owns the active-job slot.
// error_scheduling_next counts as active: the job is stuck and needs an
// operator, and a new export must not start underneath it.
func (s Status) Active() bool {
	return s == Queued || s == Processing || s == ErrorSchedulingNext
}

// Terminal reports whether no further batch work may mutate the record.
func (s Status) Terminal() bool {
	return s == Completed || s == Failed || s == ErrorSchedulingNext
}

// ErrorEntry is one appended error log line. Batch-level entries carry
// Batch+Messages, per-item entries carry ProductID+Message.
type ErrorEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Batch     int       `json:"batch,omitempty"`
	Messages  []string  `json:"messages,omitempty"`
	ProductID int64     `json:"product_id,omitempty"`
	Message   string    `json:"message,omitempty"`
}

// JobRecord is the durable state of one full-catalog export run. It is the
// only source of truth about progress; every advance step loads it, mutates
// it and writes it back before returning.
type JobRecord struct {
	JobID     string       `json:"job_id"`
	Status    Status       `json:"status"`
	Total     int          `json:"total"`
	Processed int          `json:"processed"`
	Batches   int          `json:"batches"`
	NextPage  int          `json:"next_page"`
	StartTime time.Time    `json:"start_time"`
	EndTime   *time.Time   `json:"end_time,omitempty"`
	Errors    []ErrorEntry `json:"errors"`
	ErrorIDs  []int64      `json:"error_ids"`
}

func NewJobRecord(jobID string, total int, now time.Time) *JobRecord {
	return &JobRecord{
		JobID:     jobID,
		Status:    Queued,
		Total:     total,
		NextPage:  1,
		StartTime: now,
		Errors:    []ErrorEntry{},
		ErrorIDs:  []int64{},
	}
}

// AddErrorIDs appends ids to the error set, keeping it deduplicated.
func (j *JobRecord) AddErrorIDs(ids ...int64) {
	seen := make(map[int64]struct{}, len(j.ErrorIDs))
	for _, id := range j.ErrorIDs {
		seen[id] = struct{}{}
	}
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		j.ErrorIDs = append(j.ErrorIDs, id)
	}
}

// Finish moves the record into a terminal status and stamps end_time.
func (j *JobRecord) Finish(s Status, now time.Time) {
	j.Status = s
	j.EndTime = &now
}
