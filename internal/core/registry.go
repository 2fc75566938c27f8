package core

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

const DefaultJobsMax = 200

// Registry holds job records in memory. It keeps at most max records and
// evicts the oldest when a new one would exceed that.
type Registry struct {
	mu   sync.Mutex
	jobs map[string]*Job
	max  int
	seq  uint64
	now  func() time.Time
}

func NewRegistry(max int, now func() time.Time) *Registry {
	if max < 1 {
		max = DefaultJobsMax
	}
	if now == nil {
		now = time.Now
	}
	return &Registry{
		jobs: make(map[string]*Job),
		max:  max,
		now:  now,
	}
}

func (r *Registry) Create(kind JobKind, total int, opts PrintOptions, origin string) Job {
	r.mu.Lock()
	defer r.mu.Unlock()

	for len(r.jobs) >= r.max {
		r.evictOldestLocked()
	}

	now := r.now()
	r.seq++
	job := &Job{
		ID:        uuid.NewString(),
		Kind:      kind,
		Status:    JobStatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
		Total:     total,
		Options:   opts,
		Origin:    origin,
		seq:       r.seq,
	}
	r.jobs[job.ID] = job
	return *job
}

func (r *Registry) evictOldestLocked() {
	var oldest *Job
	for _, j := range r.jobs {
		if oldest == nil || older(j, oldest) {
			oldest = j
		}
	}
	if oldest != nil {
		delete(r.jobs, oldest.ID)
	}
}

func older(a, b *Job) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.seq < b.seq
}

func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.jobs, id)
}

func (r *Registry) Get(id string) (Job, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	j, ok := r.jobs[id]
	if !ok {
		return Job{}, false
	}
	return *j, true
}

// List returns copies of all jobs, newest first.
func (r *Registry) List() []Job {
	r.mu.Lock()
	jobs := make([]*Job, 0, len(r.jobs))
	for _, j := range r.jobs {
		jobs = append(jobs, j)
	}
	sort.Slice(jobs, func(i, k int) bool { return older(jobs[k], jobs[i]) })
	out := make([]Job, len(jobs))
	for i, j := range jobs {
		out[i] = *j
	}
	r.mu.Unlock()
	return out
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.jobs)
}

// Update applies fn to the job and refreshes UpdatedAt. Unknown ids are
// ignored, and a status change that would move the job backwards is undone.
func (r *Registry) Update(id string, fn func(*Job)) {
	r.mu.Lock()
	defer r.mu.Unlock()

	j, ok := r.jobs[id]
	if !ok {
		return
	}

	prev := j.Status
	fn(j)
	j.ID = id
	if j.Status != prev && (j.Status.rank() <= prev.rank()) {
		j.Status = prev
	}
	j.UpdatedAt = r.now()
}
