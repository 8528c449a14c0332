package thumbnail

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/sakif/codecanvas/internal/model"
)

// URLPrefix is where the server exposes the thumbnail directory.
const URLPrefix = "/thumbnails/"

// Defaults for NewWorker.
const (
	DefaultQueueSize     = 32
	DefaultRenderTimeout = 20 * time.Second
)

// ErrQueueFull is returned by Enqueue when the worker is saturated.
var ErrQueueFull = errors.New("thumbnail: queue full")

// ErrStopped is returned by Enqueue before Start or after Stop.
var ErrStopped = errors.New("thumbnail: worker not running")

// Setter stores a thumbnail reference on a pen.
type Setter interface {
	SetThumbnail(ctx context.Context, id int64, ref string) bool
}

// Job is one pen to render.
type Job struct {
	PenID    int64
	Document string
}

// Worker renders thumbnails one at a time from a bounded queue.
type Worker struct {
	renderer Renderer
	setter   Setter
	dir      string
	timeout  time.Duration
	logger   *slog.Logger

	queue chan Job

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewWorker creates a worker that writes images into dir.
func NewWorker(renderer Renderer, setter Setter, dir string, logger *slog.Logger) *Worker {
	return &Worker{
		renderer: renderer,
		setter:   setter,
		dir:      dir,
		timeout:  DefaultRenderTimeout,
		logger:   logger,
		queue:    make(chan Job, DefaultQueueSize),
	}
}

// Start creates the output directory and launches the worker goroutine.
// Calling Start on a running worker does nothing.
func (w *Worker) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return nil
	}
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("thumbnail: creating %s: %w", w.dir, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	w.running = true
	w.wg.Add(1)
	go w.loop(ctx)

	w.logger.Info("thumbnail worker started", slog.String("dir", w.dir))
	return nil
}

// Stop asks the worker to finish the job in hand and waits for it. Queued
// jobs that have not started are dropped. Stop is safe to call repeatedly.
func (w *Worker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.cancel()
	w.mu.Unlock()

	w.wg.Wait()

	for {
		select {
		case <-w.queue:
		default:
			w.logger.Info("thumbnail worker stopped")
			return
		}
	}
}

// Enqueue schedules a render without blocking.
func (w *Worker) Enqueue(job Job) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return ErrStopped
	}
	select {
	case w.queue <- job:
		return nil
	default:
		return ErrQueueFull
	}
}

// PenSaved is the PenService.OnSaved hook.
func (w *Worker) PenSaved(p *model.Pen) {
	if p == nil || p.ID <= 0 {
		return
	}
	if err := w.Enqueue(Job{PenID: p.ID, Document: p.Document()}); err != nil {
		w.logger.Warn("thumbnail not scheduled", slog.Int64("id", p.ID), slog.String("error", err.Error()))
	}
}

func (w *Worker) loop(ctx context.Context) {
	defer w.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case job := <-w.queue:
			if err := w.process(ctx, job); err != nil {
				w.logger.Error("thumbnail failed", slog.Int64("id", job.PenID), slog.String("error", err.Error()))
			}
		}
	}
}

func (w *Worker) process(ctx context.Context, job Job) error {
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	img, err := w.renderer.Render(ctx, job.Document)
	if err != nil {
		return err
	}

	name := strconv.FormatInt(job.PenID, 10) + ".png"
	if err := writeFileAtomic(filepath.Join(w.dir, name), img); err != nil {
		return err
	}

	if !w.setter.SetThumbnail(ctx, job.PenID, URLPrefix+name) {
		return fmt.Errorf("thumbnail: storing reference for pen %d", job.PenID)
	}
	w.logger.Debug("thumbnail rendered", slog.Int64("id", job.PenID), slog.Int("bytes", len(img)))
	return nil
}

// writeFileAtomic writes through a temp file so readers never see a half
// written image.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".thumb-*")
	if err != nil {
		return fmt.Errorf("thumbnail: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("thumbnail: writing %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("thumbnail: writing %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("thumbnail: %w", err)
	}
	return nil
}
