package core

import (
	"context"
	"errors"
	"fmt"
	"image"
	"strings"
	"time"

	"github.com/orrn/taskprinter/internal/assets"
	"github.com/orrn/taskprinter/internal/config"
)

// separatorLine is the dashed rule printed around each task, sized for
// 48-column printers.
var separatorLine = strings.Repeat("-", 48) + "\n"

func testItems(now time.Time) []TaskItem {
	return []TaskItem{
		{Category: "TEST", Text: "Task Printer Test Page"},
		{Category: now.Format("2006-01-02 15:04"), Text: "Hello from Task Printer!"},
	}
}

func (q *Queue) processJob(qj queuedJob) {
	q.registry.Update(qj.id, func(j *Job) { j.Status = JobStatusRunning })
	q.emit(EventJobStarted, qj.id)

	start := time.Now()
	log := q.logger.With("job_id", qj.id, "type", qj.kind)
	log.Info("job started")

	if err := q.runJob(qj); err != nil {
		q.registry.Update(qj.id, func(j *Job) {
			j.Status = JobStatusError
			j.Error = err.Error()
		})
		log.Error("job failed", "error", err, "duration", time.Since(start))
		q.emit(EventJobFailed, qj.id)
		return
	}

	q.registry.Update(qj.id, func(j *Job) { j.Status = JobStatusSuccess })
	log.Info("job completed", "duration", time.Since(start))
	q.emit(EventJobCompleted, qj.id)
}

// runJob prints one job. A panic anywhere below is turned into an error so
// the worker loop keeps going.
func (q *Queue) runJob(qj queuedJob) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("worker panic: %v", r)
		}
	}()

	cfg, err := q.loadConfig()
	if err != nil {
		return err
	}

	printerCfg := cfg.Printer
	if qj.override != nil {
		printerCfg = *qj.override
	}
	if !printerCfg.Configured() {
		return ErrConfigMissing
	}

	items, opts := qj.items, qj.options
	if qj.kind == JobKindTest {
		items, opts = testItems(q.now()), PrintOptions{}
	}

	var printable []int
	for i, it := range items {
		if strings.TrimSpace(it.Text) != "" {
			printable = append(printable, i)
		}
	}

	renderer := q.renderers(cfg.Layout)

	conn, err := q.connector.Connect(context.Background(), printerCfg)
	if err != nil {
		return &StageError{Stage: StageConnect, Err: fmt.Errorf("%w: %w", ErrTransportConnect, err)}
	}
	defer q.closeBestEffort(conn, qj.id)

	tearOff := opts.TearOff()
	delay := opts.Delay()

	for n, idx := range printable {
		if err := q.printItem(conn, renderer, cfg, items[idx], idx+1, tearOff); err != nil {
			return err
		}
		q.registry.Update(qj.id, func(j *Job) { j.Printed++ })

		if tearOff && n < len(printable)-1 {
			q.sleep(delay)
		}
	}

	return nil
}

func (q *Queue) loadConfig() (*config.Config, error) {
	if q.configSrc == nil {
		return nil, ErrConfigMissing
	}
	cfg, err := q.configSrc()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfigMissing, err)
	}
	if cfg == nil {
		return nil, ErrConfigMissing
	}
	return cfg, nil
}

func (q *Queue) printItem(conn Printer, r Renderer, cfg *config.Config, item TaskItem, index int, tearOff bool) error {
	layout := cfg.Layout
	write := func(s string) error {
		if err := conn.WriteText(s); err != nil {
			return &StageError{Stage: StageWrite, Item: index, Err: err}
		}
		return nil
	}

	if err := write("\n\n"); err != nil {
		return err
	}
	if layout.PrintSeparators {
		if err := write(separatorLine); err != nil {
			return err
		}
	}
	if cat := strings.TrimSpace(item.Category); cat != "" {
		if err := write(cat + "\n"); err != nil {
			return err
		}
	}

	flair, err := q.rasterizeFlair(conn, r, cfg, item.Flair)
	if errors.Is(err, ErrFlairRender) {
		q.logger.Warn("flair failed, printing text only", "item", index, "flair", item.Flair.Kind, "error", err)
		flair = nil
	}

	text := strings.TrimSpace(item.Text)
	canvas, err := r.RenderTextWithFlair(text, flair)
	if err != nil {
		return &StageError{Stage: StageRender, Item: index, Err: err}
	}
	if err := conn.WriteRaster(canvas.Gray); err != nil {
		return &StageError{Stage: StageWrite, Item: index, Err: err}
	}

	if !item.Metadata.Empty() {
		meta, err := r.RenderMetadata(item.Metadata)
		switch {
		case err != nil:
			q.logger.Warn("metadata render failed, skipping panel", "item", index, "error", err)
		case meta != nil:
			if err := conn.WriteRaster(meta.Gray); err != nil {
				return &StageError{Stage: StageWrite, Item: index, Err: err}
			}
		}
	}

	if layout.PrintSeparators {
		if err := write(separatorLine); err != nil {
			return err
		}
	}

	feed := layout.CutFeedLines
	if tearOff {
		feed = layout.TearFeedLines
	}
	if feed > 0 {
		if err := write(strings.Repeat("\n", feed)); err != nil {
			return err
		}
	}

	if !tearOff {
		if err := conn.Cut(); err != nil {
			return &StageError{Stage: StageWrite, Item: index, Err: err}
		}
	}
	return nil
}

// rasterizeFlair returns the image to place beside the text, or nil. QR
// payloads are printed directly by the transport. Image paths are only read
// from inside the uploads directory. Every failure wraps ErrFlairRender.
func (q *Queue) rasterizeFlair(conn Printer, r Renderer, cfg *config.Config, f Flair) (image.Image, error) {
	var (
		img *image.Gray
		err error
	)

	switch f.Kind {
	case FlairNone:
		return nil, nil
	case FlairIcon:
		img, err = r.IconRaster(f.Value)
	case FlairImage:
		path := ""
		if len(f.Data) == 0 {
			if path, err = assets.ResolveUpload(cfg.Uploads.Dir, f.Value); err != nil {
				break
			}
		}
		img, err = r.ImageRaster(f.Data, path)
	case FlairEmoji:
		img, err = r.EmojiRaster(f.Value, cfg.Layout.FlairTargetHeight)
	case FlairQR:
		if err := conn.QR(f.Value); err != nil {
			return nil, fmt.Errorf("%w: qr: %v", ErrFlairRender, err)
		}
		return nil, nil
	default:
		return nil, fmt.Errorf("%w: unknown flair type %q", ErrFlairRender, f.Kind)
	}

	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrFlairRender, f.Kind, err)
	}
	if img == nil {
		return nil, nil
	}
	return img, nil
}

// closeBestEffort closes the transport; a failed close never fails the job.
func (q *Queue) closeBestEffort(conn Printer, jobID string) {
	if err := conn.Close(); err != nil {
		q.logger.Debug("printer close failed", "job_id", jobID, "error", err)
	}
}
