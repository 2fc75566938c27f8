package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stepClock advances one second per call.
func stepClock() func() time.Time {
	t := time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)
	return func() time.Time {
		t = t.Add(time.Second)
		return t
	}
}

func TestRegistryCreateAndGet(t *testing.T) {
	r := NewRegistry(10, stepClock())

	job := r.Create(JobKindTasks, 3, PrintOptions{TearDelaySeconds: 2}, "api")
	assert.Len(t, job.ID, 36)
	assert.Equal(t, JobStatusQueued, job.Status)
	assert.Equal(t, 3, job.Total)

	got, ok := r.Get(job.ID)
	require.True(t, ok)
	assert.Equal(t, job, got)

	_, ok = r.Get("missing")
	assert.False(t, ok)
}

func TestRegistryPrunesExactlyTheOldest(t *testing.T) {
	r := NewRegistry(3, stepClock())

	a := r.Create(JobKindTasks, 1, PrintOptions{}, "")
	b := r.Create(JobKindTasks, 1, PrintOptions{}, "")
	c := r.Create(JobKindTasks, 1, PrintOptions{}, "")
	d := r.Create(JobKindTasks, 1, PrintOptions{}, "")

	assert.Equal(t, 3, r.Len())
	_, ok := r.Get(a.ID)
	assert.False(t, ok)
	for _, id := range []string{b.ID, c.ID, d.ID} {
		_, ok := r.Get(id)
		assert.True(t, ok)
	}
}

func TestRegistryPruneTieBreaksOnInsertionOrder(t *testing.T) {
	fixed := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	r := NewRegistry(2, func() time.Time { return fixed })

	a := r.Create(JobKindTasks, 1, PrintOptions{}, "")
	b := r.Create(JobKindTasks, 1, PrintOptions{}, "")
	r.Create(JobKindTasks, 1, PrintOptions{}, "")

	_, ok := r.Get(a.ID)
	assert.False(t, ok)
	_, ok = r.Get(b.ID)
	assert.True(t, ok)
}

func TestRegistryListNewestFirst(t *testing.T) {
	r := NewRegistry(10, stepClock())
	a := r.Create(JobKindTasks, 1, PrintOptions{}, "")
	b := r.Create(JobKindTest, 2, PrintOptions{}, "")
	c := r.Create(JobKindTasks, 1, PrintOptions{}, "")

	jobs := r.List()
	require.Len(t, jobs, 3)
	assert.Equal(t, []string{c.ID, b.ID, a.ID}, []string{jobs[0].ID, jobs[1].ID, jobs[2].ID})
}

func TestRegistryUpdate(t *testing.T) {
	r := NewRegistry(10, stepClock())
	job := r.Create(JobKindTasks, 1, PrintOptions{}, "")

	r.Update(job.ID, func(j *Job) { j.Status = JobStatusRunning })
	got, _ := r.Get(job.ID)
	assert.Equal(t, JobStatusRunning, got.Status)
	assert.True(t, got.UpdatedAt.After(job.UpdatedAt))

	r.Update(job.ID, func(j *Job) { j.Status = JobStatusSuccess })
	r.Update(job.ID, func(j *Job) {
		j.Status = JobStatusQueued
		j.Error = "ignored status"
	})
	got, _ = r.Get(job.ID)
	assert.Equal(t, JobStatusSuccess, got.Status)
	assert.Equal(t, "ignored status", got.Error)

	r.Update(job.ID, func(j *Job) { j.Status = JobStatusError })
	got, _ = r.Get(job.ID)
	assert.Equal(t, JobStatusSuccess, got.Status)

	assert.NotPanics(t, func() {
		r.Update("unknown", func(j *Job) { j.Status = JobStatusError })
	})
}

func TestPrintOptionsNormalized(t *testing.T) {
	tests := []struct {
		in      float64
		want    float64
		tearOff bool
	}{
		{-5, 0, false},
		{0, 0, false},
		{2.5, 2.5, true},
		{60, 60, true},
		{120, 60, true},
	}
	for _, tt := range tests {
		o := PrintOptions{TearDelaySeconds: tt.in}
		assert.Equal(t, tt.want, o.Normalized().TearDelaySeconds)
		assert.Equal(t, tt.tearOff, o.TearOff())
	}
	assert.Equal(t, 2500*time.Millisecond, PrintOptions{TearDelaySeconds: 2.5}.Delay())
}
