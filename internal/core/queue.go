package core

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/orrn/taskprinter/internal/config"
)

const DefaultQueueSize = 1024

type QueueOptions struct {
	Size         int
	JobsMax      int
	ConfigSource ConfigSource
	Connector    Connector
	Renderers    RendererFactory
	Events       EventSender
	// Sleep pauses between tear-off items. Defaults to time.Sleep.
	Sleep  func(time.Duration)
	Now    func() time.Time
	Logger *slog.Logger
}

type queuedJob struct {
	id       string
	kind     JobKind
	items    []TaskItem
	options  PrintOptions
	override *config.PrinterConfig
}

// Queue accepts print jobs from any number of producers and prints them one
// at a time, in submission order, on a single worker goroutine.
type Queue struct {
	registry  *Registry
	jobCh     chan queuedJob
	configSrc ConfigSource
	connector Connector
	renderers RendererFactory
	events    EventSender
	sleep     func(time.Duration)
	now       func() time.Time
	logger    *slog.Logger

	mu      sync.Mutex
	started bool
	stopped bool
	done    chan struct{}
}

func NewQueue(opts QueueOptions) *Queue {
	if opts.Size < 1 {
		opts.Size = DefaultQueueSize
	}
	if opts.Sleep == nil {
		opts.Sleep = time.Sleep
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &Queue{
		registry:  NewRegistry(opts.JobsMax, opts.Now),
		jobCh:     make(chan queuedJob, opts.Size),
		configSrc: opts.ConfigSource,
		connector: opts.Connector,
		renderers: opts.Renderers,
		events:    opts.Events,
		sleep:     opts.Sleep,
		now:       opts.Now,
		logger:    opts.Logger.With("component", "queue"),
		done:      make(chan struct{}),
	}
}

// Enqueue records a tasks job and schedules it. It never blocks on printing.
func (q *Queue) Enqueue(items []TaskItem, opts PrintOptions) (string, error) {
	return q.EnqueueFrom(items, opts, "")
}

// EnqueueFrom is Enqueue with an origin label stored on the job.
func (q *Queue) EnqueueFrom(items []TaskItem, opts PrintOptions, origin string) (string, error) {
	copied := make([]TaskItem, len(items))
	for i, it := range items {
		copied[i] = it.clone()
	}
	opts = opts.Normalized()

	return q.submit(queuedJob{kind: JobKindTasks, items: copied, options: opts}, len(items), origin)
}

// EnqueueTest schedules the built-in test page. A non-nil override replaces
// the configured printer for this job only.
func (q *Queue) EnqueueTest(override *config.PrinterConfig, origin string) (string, error) {
	qj := queuedJob{kind: JobKindTest}
	if override != nil {
		o := *override
		qj.override = &o
	}
	return q.submit(qj, len(testItems(q.now())), origin)
}

func (q *Queue) submit(qj queuedJob, total int, origin string) (string, error) {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return "", ErrQueueStopped
	}

	job := q.registry.Create(qj.kind, total, qj.options, origin)
	qj.id = job.ID

	select {
	case q.jobCh <- qj:
	default:
		q.mu.Unlock()
		q.registry.Remove(job.ID)
		return "", ErrQueueFull
	}
	q.mu.Unlock()

	q.logger.Info("job queued", "job_id", job.ID, "type", job.Kind, "total", total)
	q.emit(EventJobQueued, job.ID)
	return job.ID, nil
}

func (q *Queue) GetJob(id string) (Job, bool) {
	return q.registry.Get(id)
}

func (q *Queue) ListJobs() []Job {
	return q.registry.List()
}

// EnsureWorker starts the worker goroutine on the first call. Later calls,
// and calls after Stop, do nothing.
func (q *Queue) EnsureWorker() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.started || q.stopped {
		return
	}
	q.started = true
	go q.run()
}

func (q *Queue) WorkerStatus() WorkerStatus {
	q.mu.Lock()
	started := q.started
	q.mu.Unlock()

	alive := false
	if started {
		select {
		case <-q.done:
		default:
			alive = true
		}
	}
	return WorkerStatus{Started: started, Alive: alive, QueueSize: len(q.jobCh)}
}

// Stop refuses new jobs and waits for the worker to finish what is already
// queued, or for ctx to end.
func (q *Queue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return nil
	}
	q.stopped = true
	started := q.started
	close(q.jobCh)
	q.mu.Unlock()

	if !started {
		return nil
	}

	select {
	case <-q.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *Queue) run() {
	defer close(q.done)

	q.logger.Info("worker started")
	for qj := range q.jobCh {
		q.processJob(qj)
	}
	q.logger.Info("worker stopped")
}

func (q *Queue) emit(event, id string) {
	if q.events == nil {
		return
	}
	job, ok := q.registry.Get(id)
	if !ok {
		return
	}
	if err := q.events.SendJobEvent(event, job); err != nil {
		q.logger.Warn("failed to send job event", "event", event, "job_id", id, "error", err)
	}
}
