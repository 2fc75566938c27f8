package core

import (
	"context"
	"errors"
	"image"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/font/gofont/goregular"

	"github.com/orrn/taskprinter/internal/config"
	"github.com/orrn/taskprinter/internal/render"
)

// recorder is a fake transport and event sink that logs every call.
type recorder struct {
	mu          sync.Mutex
	calls       []string
	texts       []string
	qrs         []string
	sleeps      []time.Duration
	connects    []config.PrinterConfig
	events      []string
	started     []string
	connectErrs []error
	rasterErr   error
	closeErr    error
	active      int
	maxActive   int
}

func (r *recorder) Connect(_ context.Context, cfg config.PrinterConfig) (Printer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.connects = append(r.connects, cfg)
	if len(r.connectErrs) > 0 {
		err := r.connectErrs[0]
		r.connectErrs = r.connectErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	r.active++
	if r.active > r.maxActive {
		r.maxActive = r.active
	}
	r.calls = append(r.calls, "connect")
	return &fakePrinter{rec: r}, nil
}

func (r *recorder) SendJobEvent(event string, job Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event+":"+job.ID)
	if event == EventJobStarted {
		r.started = append(r.started, job.ID)
	}
	return nil
}

func (r *recorder) sleep(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sleeps = append(r.sleeps, d)
	r.calls = append(r.calls, "sleep")
}

func (r *recorder) count(call string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.calls {
		if c == call {
			n++
		}
	}
	return n
}

type fakePrinter struct {
	rec *recorder
}

func (p *fakePrinter) WriteRaster(img *image.Gray) error {
	p.rec.mu.Lock()
	defer p.rec.mu.Unlock()
	if p.rec.rasterErr != nil {
		return p.rec.rasterErr
	}
	p.rec.calls = append(p.rec.calls, "raster")
	return nil
}

func (p *fakePrinter) WriteText(s string) error {
	p.rec.mu.Lock()
	defer p.rec.mu.Unlock()
	p.rec.texts = append(p.rec.texts, s)
	return nil
}

func (p *fakePrinter) QR(payload string) error {
	p.rec.mu.Lock()
	defer p.rec.mu.Unlock()
	if payload == "" {
		return errors.New("empty qr")
	}
	p.rec.qrs = append(p.rec.qrs, payload)
	p.rec.calls = append(p.rec.calls, "qr")
	return nil
}

func (p *fakePrinter) Cut() error {
	p.rec.mu.Lock()
	defer p.rec.mu.Unlock()
	p.rec.calls = append(p.rec.calls, "cut")
	return nil
}

func (p *fakePrinter) Close() error {
	p.rec.mu.Lock()
	defer p.rec.mu.Unlock()
	p.rec.active--
	p.rec.calls = append(p.rec.calls, "close")
	return p.rec.closeErr
}

func testRenderers(layout config.LayoutConfig) Renderer {
	return render.NewEngine(layout, render.NewResolver(nil, goregular.TTF), render.NewResolver(nil, nil), render.IconSet{}, nil)
}

func printerConfig() *config.Config {
	cfg := config.Default()
	cfg.Printer = config.PrinterConfig{Type: "network", NetworkIP: "10.0.0.5", NetworkPort: 9100}
	return cfg
}

func newTestQueue(t *testing.T, rec *recorder, mutate func(*QueueOptions)) *Queue {
	t.Helper()
	cfg := printerConfig()
	opts := QueueOptions{
		Size:         16,
		JobsMax:      50,
		ConfigSource: func() (*config.Config, error) { return cfg, nil },
		Connector:    rec,
		Renderers:    testRenderers,
		Events:       rec,
		Sleep:        rec.sleep,
	}
	if mutate != nil {
		mutate(&opts)
	}
	q := NewQueue(opts)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = q.Stop(ctx)
	})
	return q
}

func waitDone(t *testing.T, q *Queue, id string) Job {
	t.Helper()
	var job Job
	require.Eventually(t, func() bool {
		j, ok := q.GetJob(id)
		job = j
		return ok && j.Status.Terminal()
	}, 10*time.Second, 5*time.Millisecond)
	return job
}

func items(texts ...string) []TaskItem {
	out := make([]TaskItem, len(texts))
	for i, s := range texts {
		out[i] = TaskItem{Category: "Chores", Text: s}
	}
	return out
}

func TestEnqueueReportsQueued(t *testing.T) {
	q := newTestQueue(t, &recorder{}, nil)

	id, err := q.Enqueue(items("Buy milk"), PrintOptions{})
	require.NoError(t, err)

	job, ok := q.GetJob(id)
	require.True(t, ok)
	assert.Equal(t, JobStatusQueued, job.Status)
	assert.Equal(t, JobKindTasks, job.Kind)
	assert.Equal(t, 1, job.Total)

	id2, err := q.Enqueue(items("Walk dog"), PrintOptions{})
	require.NoError(t, err)
	assert.NotEqual(t, id, id2)
	assert.Len(t, q.ListJobs(), 2)
}

func TestJobsRunInSubmissionOrder(t *testing.T) {
	rec := &recorder{}
	q := newTestQueue(t, rec, nil)

	a, err := q.Enqueue(items("A"), PrintOptions{})
	require.NoError(t, err)
	b, err := q.Enqueue(items("B"), PrintOptions{})
	require.NoError(t, err)

	q.EnsureWorker()
	assert.Equal(t, JobStatusSuccess, waitDone(t, q, a).Status)
	assert.Equal(t, JobStatusSuccess, waitDone(t, q, b).Status)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, []string{a, b}, rec.started)
}

func TestTearOffLaw(t *testing.T) {
	tests := []struct {
		name   string
		opts   PrintOptions
		sleeps []time.Duration
		cuts   int
	}{
		{"tear off", PrintOptions{TearDelaySeconds: 3}, []time.Duration{3 * time.Second, 3 * time.Second}, 0},
		{"no delay", PrintOptions{}, nil, 3},
		{"negative delay cuts", PrintOptions{TearDelaySeconds: -1}, nil, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &recorder{}
			q := newTestQueue(t, rec, nil)
			q.EnsureWorker()

			id, err := q.Enqueue(items("A", "B", "C"), tt.opts)
			require.NoError(t, err)
			job := waitDone(t, q, id)

			assert.Equal(t, JobStatusSuccess, job.Status)
			assert.Equal(t, 3, job.Printed)
			assert.Equal(t, tt.cuts, rec.count("cut"))
			assert.Equal(t, 3, rec.count("raster"))
			rec.mu.Lock()
			assert.Equal(t, tt.sleeps, rec.sleeps)
			rec.mu.Unlock()
		})
	}
}

func TestTearOffSleepsOnlyBetweenItems(t *testing.T) {
	rec := &recorder{}
	q := newTestQueue(t, rec, nil)
	q.EnsureWorker()

	id, err := q.Enqueue(items("A", "B"), PrintOptions{TearDelaySeconds: 1})
	require.NoError(t, err)
	waitDone(t, q, id)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, []string{"connect", "raster", "sleep", "raster", "close"}, rec.calls)
}

func TestTearOffDoesNotSleepForBlankItems(t *testing.T) {
	rec := &recorder{}
	q := newTestQueue(t, rec, nil)
	q.EnsureWorker()

	id, err := q.Enqueue(items("A", "", "B", "  "), PrintOptions{TearDelaySeconds: 1})
	require.NoError(t, err)
	job := waitDone(t, q, id)

	assert.Equal(t, 4, job.Total)
	assert.Equal(t, 2, job.Printed)
	assert.Equal(t, 1, rec.count("sleep"))
	assert.Zero(t, rec.count("cut"))
}

func TestEmptyItemsAreSkipped(t *testing.T) {
	rec := &recorder{}
	q := newTestQueue(t, rec, nil)
	q.EnsureWorker()

	id, err := q.Enqueue(items("Buy milk", "   ", "Walk dog"), PrintOptions{})
	require.NoError(t, err)
	job := waitDone(t, q, id)

	assert.Equal(t, JobStatusSuccess, job.Status)
	assert.Equal(t, 3, job.Total)
	assert.Equal(t, 2, job.Printed)
	assert.Equal(t, 2, rec.count("raster"))
	assert.Equal(t, 2, rec.count("cut"))
}

func TestItemTextSequence(t *testing.T) {
	rec := &recorder{}
	q := newTestQueue(t, rec, nil)
	q.EnsureWorker()

	id, err := q.Enqueue([]TaskItem{{Category: "Kitchen", Text: "Wipe counters"}}, PrintOptions{})
	require.NoError(t, err)
	waitDone(t, q, id)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, []string{"\n\n", separatorLine, "Kitchen\n", separatorLine, "\n\n"}, rec.texts)
}

func TestConfigMissingFailsBeforeConnecting(t *testing.T) {
	tests := []struct {
		name   string
		source ConfigSource
	}{
		{"no printer type", func() (*config.Config, error) { return config.Default(), nil }},
		{"load error", func() (*config.Config, error) { return nil, errors.New("bad yaml") }},
		{"nil config", func() (*config.Config, error) { return nil, nil }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &recorder{}
			q := newTestQueue(t, rec, func(o *QueueOptions) { o.ConfigSource = tt.source })
			q.EnsureWorker()

			id, err := q.Enqueue(items("A"), PrintOptions{})
			require.NoError(t, err)
			job := waitDone(t, q, id)

			assert.Equal(t, JobStatusError, job.Status)
			assert.Contains(t, job.Error, ErrConfigMissing.Error())
			assert.Equal(t, 0, job.Printed)
			rec.mu.Lock()
			assert.Empty(t, rec.connects)
			rec.mu.Unlock()
		})
	}
}

func TestConnectErrorFailsJobAndWorkerContinues(t *testing.T) {
	rec := &recorder{connectErrs: []error{errors.New("no route to host")}}
	q := newTestQueue(t, rec, nil)
	q.EnsureWorker()

	bad, err := q.Enqueue(items("A", "B"), PrintOptions{})
	require.NoError(t, err)
	good, err := q.Enqueue(items("C"), PrintOptions{})
	require.NoError(t, err)

	badJob := waitDone(t, q, bad)
	assert.Equal(t, JobStatusError, badJob.Status)
	assert.Contains(t, badJob.Error, "no route to host")
	assert.Contains(t, badJob.Error, ErrTransportConnect.Error())
	assert.Equal(t, 0, badJob.Printed)

	assert.Equal(t, JobStatusSuccess, waitDone(t, q, good).Status)
}

func TestWriteErrorIsStageError(t *testing.T) {
	rec := &recorder{rasterErr: errors.New("broken pipe")}
	q := newTestQueue(t, rec, nil)
	q.EnsureWorker()

	id, err := q.Enqueue(items("A"), PrintOptions{})
	require.NoError(t, err)
	job := waitDone(t, q, id)

	assert.Equal(t, JobStatusError, job.Status)
	assert.Equal(t, "write failed on item 1: broken pipe", job.Error)
	assert.Equal(t, 1, rec.count("close"))
}

type panickingRenderer struct {
	Renderer
}

func (panickingRenderer) RenderTextWithFlair(string, image.Image) (*render.Canvas, error) {
	panic("font cache corrupted")
}

func TestPanicIsContainedAtJobBoundary(t *testing.T) {
	rec := &recorder{}
	var calls int
	var mu sync.Mutex
	q := newTestQueue(t, rec, func(o *QueueOptions) {
		o.Renderers = func(l config.LayoutConfig) Renderer {
			mu.Lock()
			defer mu.Unlock()
			calls++
			if calls == 1 {
				return panickingRenderer{testRenderers(l)}
			}
			return testRenderers(l)
		}
	})
	q.EnsureWorker()

	bad, err := q.Enqueue(items("A"), PrintOptions{})
	require.NoError(t, err)
	good, err := q.Enqueue(items("B"), PrintOptions{})
	require.NoError(t, err)

	badJob := waitDone(t, q, bad)
	assert.Equal(t, JobStatusError, badJob.Status)
	assert.Contains(t, badJob.Error, "font cache corrupted")
	assert.Equal(t, JobStatusSuccess, waitDone(t, q, good).Status)
	assert.Equal(t, 2, rec.count("close"))
}

type failingIcons struct {
	Renderer
}

func (failingIcons) IconRaster(string) (*image.Gray, error) {
	return nil, errors.New("icon decode failed")
}

func TestFlairFailureFallsBackToText(t *testing.T) {
	rec := &recorder{}
	q := newTestQueue(t, rec, func(o *QueueOptions) {
		o.Renderers = func(l config.LayoutConfig) Renderer { return failingIcons{testRenderers(l)} }
	})
	q.EnsureWorker()

	id, err := q.Enqueue([]TaskItem{
		{Text: "Water plants", Flair: Flair{Kind: FlairIcon, Value: "plant"}},
		{Text: "Scan me", Flair: Flair{Kind: FlairQR, Value: "https://example.com"}},
		{Text: "Bad qr", Flair: Flair{Kind: FlairQR}},
		{Text: "Mystery", Flair: Flair{Kind: "hologram"}},
		{Text: "Smile", Flair: Flair{Kind: FlairEmoji, Value: "✅"}},
	}, PrintOptions{})
	require.NoError(t, err)
	job := waitDone(t, q, id)

	assert.Equal(t, JobStatusSuccess, job.Status)
	assert.Equal(t, 5, job.Printed)
	assert.Equal(t, 5, rec.count("raster"))
	rec.mu.Lock()
	assert.Equal(t, []string{"https://example.com"}, rec.qrs)
	rec.mu.Unlock()
}

type imagePaths struct {
	Renderer
	mu    *sync.Mutex
	paths *[]string
}

func (r imagePaths) ImageRaster(data []byte, path string) (*image.Gray, error) {
	r.mu.Lock()
	*r.paths = append(*r.paths, path)
	r.mu.Unlock()
	return image.NewGray(image.Rect(0, 0, 32, 32)), nil
}

func TestImageFlairIsConfinedToUploadsDir(t *testing.T) {
	rec := &recorder{}
	uploads := t.TempDir()
	cfg := printerConfig()
	cfg.Uploads.Dir = uploads

	var (
		mu    sync.Mutex
		paths []string
	)
	q := newTestQueue(t, rec, func(o *QueueOptions) {
		o.ConfigSource = func() (*config.Config, error) { return cfg, nil }
		o.Renderers = func(l config.LayoutConfig) Renderer {
			return imagePaths{Renderer: testRenderers(l), mu: &mu, paths: &paths}
		}
	})
	q.EnsureWorker()

	id, err := q.Enqueue([]TaskItem{
		{Text: "Stored", Flair: Flair{Kind: FlairImage, Value: "a1b2.png"}},
		{Text: "Host file", Flair: Flair{Kind: FlairImage, Value: "/etc/shadow.png"}},
		{Text: "Escape", Flair: Flair{Kind: FlairImage, Value: "../../etc/x.png"}},
		{Text: "Inline", Flair: Flair{Kind: FlairImage, Data: []byte{1}}},
	}, PrintOptions{})
	require.NoError(t, err)
	job := waitDone(t, q, id)

	assert.Equal(t, JobStatusSuccess, job.Status)
	assert.Equal(t, 4, job.Printed)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{filepath.Join(uploads, "a1b2.png"), ""}, paths)
}

func TestMetadataPanelIsPrinted(t *testing.T) {
	rec := &recorder{}
	q := newTestQueue(t, rec, nil)
	q.EnsureWorker()

	id, err := q.Enqueue([]TaskItem{
		{Text: "Taxes", Metadata: &render.Metadata{Due: "2025-04-15", Priority: "urgent"}},
		{Text: "Nap", Metadata: &render.Metadata{}},
	}, PrintOptions{})
	require.NoError(t, err)
	waitDone(t, q, id)

	assert.Equal(t, 3, rec.count("raster"))
}

func TestEnsureWorkerIsIdempotent(t *testing.T) {
	rec := &recorder{}
	q := newTestQueue(t, rec, nil)

	assert.False(t, q.WorkerStatus().Started)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			q.EnsureWorker()
		}()
	}
	wg.Wait()

	var ids []string
	for i := 0; i < 5; i++ {
		id, err := q.Enqueue(items("task"), PrintOptions{})
		require.NoError(t, err)
		ids = append(ids, id)
	}
	for _, id := range ids {
		waitDone(t, q, id)
	}

	status := q.WorkerStatus()
	assert.True(t, status.Started)
	assert.True(t, status.Alive)
	rec.mu.Lock()
	assert.Equal(t, 1, rec.maxActive)
	rec.mu.Unlock()
}

func TestQueueFull(t *testing.T) {
	q := newTestQueue(t, &recorder{}, func(o *QueueOptions) { o.Size = 1 })

	_, err := q.Enqueue(items("A"), PrintOptions{})
	require.NoError(t, err)

	_, err = q.Enqueue(items("B"), PrintOptions{})
	assert.ErrorIs(t, err, ErrQueueFull)
	assert.Len(t, q.ListJobs(), 1)
	assert.Equal(t, 1, q.WorkerStatus().QueueSize)
}

func TestStop(t *testing.T) {
	rec := &recorder{}
	q := newTestQueue(t, rec, nil)
	q.EnsureWorker()

	id, err := q.Enqueue(items("A"), PrintOptions{})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, q.Stop(ctx))
	require.NoError(t, q.Stop(ctx))

	job, _ := q.GetJob(id)
	assert.Equal(t, JobStatusSuccess, job.Status)

	_, err = q.Enqueue(items("B"), PrintOptions{})
	assert.ErrorIs(t, err, ErrQueueStopped)

	q.EnsureWorker()
	assert.False(t, q.WorkerStatus().Alive)
}

func TestTestPrintUsesOverride(t *testing.T) {
	rec := &recorder{}
	now := time.Date(2025, 6, 1, 8, 30, 0, 0, time.UTC)
	q := newTestQueue(t, rec, func(o *QueueOptions) { o.Now = func() time.Time { return now } })
	q.EnsureWorker()

	override := &config.PrinterConfig{Type: "usb", DevicePath: "/dev/usb/lp1"}
	id, err := q.EnqueueTest(override, "settings")
	require.NoError(t, err)
	job := waitDone(t, q, id)

	assert.Equal(t, JobStatusSuccess, job.Status)
	assert.Equal(t, JobKindTest, job.Kind)
	assert.Equal(t, 2, job.Total)
	assert.Equal(t, "settings", job.Origin)
	assert.Equal(t, 2, rec.count("cut"))

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Len(t, rec.connects, 1)
	assert.Equal(t, *override, rec.connects[0])
	assert.Contains(t, rec.texts, "TEST\n")
	assert.Contains(t, rec.texts, "2025-06-01 08:30\n")
}

func TestJobEvents(t *testing.T) {
	rec := &recorder{}
	q := newTestQueue(t, rec, nil)
	q.EnsureWorker()

	id, err := q.Enqueue(items("A"), PrintOptions{})
	require.NoError(t, err)
	waitDone(t, q, id)

	require.Eventually(t, func() bool {
		rec.mu.Lock()
		defer rec.mu.Unlock()
		return len(rec.events) == 3
	}, 5*time.Second, 5*time.Millisecond)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, []string{
		EventJobQueued + ":" + id,
		EventJobStarted + ":" + id,
		EventJobCompleted + ":" + id,
	}, rec.events)
}

func TestCloseErrorDoesNotFailJob(t *testing.T) {
	rec := &recorder{closeErr: errors.New("already closed")}
	q := newTestQueue(t, rec, nil)
	q.EnsureWorker()

	id, err := q.Enqueue(items("A"), PrintOptions{})
	require.NoError(t, err)
	assert.Equal(t, JobStatusSuccess, waitDone(t, q, id).Status)
}

func TestEnqueueCopiesItems(t *testing.T) {
	rec := &recorder{}
	q := newTestQueue(t, rec, nil)

	in := []TaskItem{{Category: "Original", Text: "Keep me"}}
	id, err := q.Enqueue(in, PrintOptions{})
	require.NoError(t, err)
	in[0].Text = "   "
	in[0].Category = "Changed"

	q.EnsureWorker()
	job := waitDone(t, q, id)
	assert.Equal(t, 1, job.Printed)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.True(t, strings.Contains(strings.Join(rec.texts, ""), "Original"))
}
