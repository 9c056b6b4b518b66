package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusSets(t *testing.T) {
	active := []Status{Queued, Processing, ErrorSchedulingNext}
	for _, s := range active {
		assert.True(t, s.Active(), "%s should be active", s)
	}
	for _, s := range []Status{Completed, Failed} {
		assert.False(t, s.Active(), "%s should not be active", s)
	}

	terminal := []Status{Completed, Failed, ErrorSchedulingNext}
	for _, s := range terminal {
		assert.True(t, s.Terminal(), "%s should be terminal", s)
	}
	for _, s := range []Status{Queued, Processing} {
		assert.False(t, s.Terminal(), "%s should not be terminal", s)
	}
}

func TestNewJobRecord(t *testing.T) {
	now := time.Now()
	rec := NewJobRecord("export_abc", 120, now)

	assert.Equal(t, Queued, rec.Status)
	assert.Equal(t, 120, rec.Total)
	assert.Equal(t, 1, rec.NextPage)
	assert.Zero(t, rec.Processed)
	assert.NotNil(t, rec.Errors)
	assert.NotNil(t, rec.ErrorIDs)
	assert.Nil(t, rec.EndTime)
}

func TestFinishStampsEndTime(t *testing.T) {
	rec := NewJobRecord("export_abc", 1, time.Now())
	end := time.Now().Add(time.Minute)
	rec.Finish(Completed, end)

	assert.Equal(t, Completed, rec.Status)
	require.NotNil(t, rec.EndTime)
	assert.Equal(t, end, *rec.EndTime)
}

func TestAddErrorIDsDedupes(t *testing.T) {
	rec := NewJobRecord("export_abc", 10, time.Now())
	rec.AddErrorIDs(3, 1, 3)
	rec.AddErrorIDs(1, 2)
	assert.Equal(t, []int64{3, 1, 2}, rec.ErrorIDs)
}
