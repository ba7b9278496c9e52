// Package worker runs import batches: it copies picked files and
// directories into the sandbox, indexes audio metadata and reports progress
// as protocol events.
//
// Each batch emits Start, one DirectoriesProgress, a FilesProgress per file,
// and then exactly one closing event: Done on success, or Failed in its
// place when the batch stopped on an error. Consumers must treat both as
// the end of the batch.
package worker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/fruitsalade/mixtape/internal/explorer"
	"github.com/fruitsalade/mixtape/internal/ingest"
	"github.com/fruitsalade/mixtape/internal/logging"
	"github.com/fruitsalade/mixtape/internal/metadata"
	"github.com/fruitsalade/mixtape/internal/metrics"
	"github.com/fruitsalade/mixtape/internal/protocol"
	"github.com/fruitsalade/mixtape/internal/records"
)

// ErrStopped is returned by Submit once the worker is stopping.
var ErrStopped = errors.New("worker stopped")

// Options tunes a Worker.
type Options struct {
	QueueSize  int // pending batches, default 16
	EventQueue int // buffered events, default 64
}

// Worker processes batches one at a time, in submission order, with its
// own Explorer over the sandbox.
type Worker struct {
	provider  explorer.RootProvider
	store     records.MetadataStore
	extractor metadata.Extractor

	queue  chan protocol.Request
	events chan protocol.Event
	stop   chan struct{}

	explorer *explorer.Explorer
	cwd      string

	wg       sync.WaitGroup
	cancel   context.CancelFunc
	stopOnce sync.Once
}

// New creates a Worker. Call Start before submitting.
func New(provider explorer.RootProvider, store records.MetadataStore, extractor metadata.Extractor, opts Options) *Worker {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 16
	}
	if opts.EventQueue <= 0 {
		opts.EventQueue = 64
	}
	return &Worker{
		provider:  provider,
		store:     store,
		extractor: extractor,
		queue:     make(chan protocol.Request, opts.QueueSize),
		events:    make(chan protocol.Event, opts.EventQueue),
		stop:      make(chan struct{}),
	}
}

// Start opens the worker's Explorer and launches the processing goroutine.
func (w *Worker) Start(ctx context.Context) error {
	e, err := explorer.NewFromProvider(ctx, w.provider)
	if err != nil {
		return err
	}
	w.explorer = e
	w.cwd = "/"

	ctx, w.cancel = context.WithCancel(ctx)
	w.wg.Add(1)
	go w.run(ctx)
	logging.Info("import worker started", logging.Int("queue", cap(w.queue)))
	return nil
}

// Stop abandons queued batches, waits for the current one to end and
// closes the event stream.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() {
		close(w.stop)
		if w.cancel != nil {
			w.cancel()
		}
		w.wg.Wait()
		close(w.events)
		logging.Info("import worker stopped")
	})
}

// Submit queues a batch. It blocks while the queue is full.
func (w *Worker) Submit(ctx context.Context, req protocol.Request) error {
	select {
	case <-w.stop:
		return ErrStopped
	default:
	}
	select {
	case w.queue <- req:
		logging.Debug("batch queued", logging.String("batch", req.ID),
			logging.Int("files", len(req.Files)), logging.Int("directories", len(req.Directories)))
		return nil
	case <-w.stop:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Events returns the event stream. It is closed by Stop. Events are not
// dropped, so a consumer must keep reading or the worker stalls.
func (w *Worker) Events() <-chan protocol.Event {
	return w.events
}

func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-w.queue:
			w.handle(ctx, req)
		}
	}
}

func (w *Worker) handle(ctx context.Context, req protocol.Request) {
	start := time.Now()
	logging.Info("import batch started", logging.String("batch", req.ID),
		logging.Int("files", len(req.Files)), logging.Int("directories", len(req.Directories)))

	err := w.process(ctx, req)
	metrics.RecordBatch(time.Since(start), err == nil)
	if err != nil {
		logging.Warn("import batch failed", logging.String("batch", req.ID), logging.Err(err))
		w.reset(ctx)
		w.emit(ctx, protocol.Failed{ID: req.ID, Error: err.Error()})
		return
	}
	logging.Info("import batch done", logging.String("batch", req.ID), logging.Duration("duration", time.Since(start)))
	w.emit(ctx, protocol.Done{ID: req.ID})
}

func (w *Worker) process(ctx context.Context, req protocol.Request) error {
	w.emit(ctx, protocol.Start{ID: req.ID, FilesTotal: len(req.Files), DirectoriesTotal: len(req.Directories)})

	for _, d := range req.Directories {
		if err := w.enter(ctx, d.Parent); err != nil {
			return err
		}
		if _, err := w.explorer.CreateDirectory(ctx, d.Name); err != nil {
			return fmt.Errorf("create directory %s: %w", d.Path, err)
		}
	}
	w.emit(ctx, protocol.DirectoriesProgress{ID: req.ID, DirectoriesDone: len(req.Directories)})

	for i, f := range req.Files {
		if err := w.enter(ctx, f.Parent); err != nil {
			return err
		}
		if err := w.copyFile(ctx, f); err != nil {
			return err
		}
		w.emit(ctx, protocol.FilesProgress{ID: req.ID, FilesDone: i + 1})
	}

	if err := w.enter(ctx, ""); err != nil {
		return err
	}
	return ctx.Err()
}

// reset starts the next batch from a fresh Explorer at the sandbox root.
// When the root cannot be reopened the current Explorer is moved to its root.
func (w *Worker) reset(ctx context.Context) {
	e, err := explorer.NewFromProvider(ctx, w.provider)
	if err == nil {
		w.explorer = e
		w.cwd = "/"
		return
	}
	logging.Warn("reopen sandbox root failed", logging.Err(err))
	if err := w.explorer.ChangeDirectory(ctx, "/"); err != nil {
		logging.Error("reset to sandbox root failed", logging.Err(err))
	}
	w.cwd = w.explorer.PathString()
}

// enter moves to the sandbox directory of a relative parent path. An empty
// parent is the root.
func (w *Worker) enter(ctx context.Context, parent string) error {
	target := ingest.SandboxPath(parent)
	if target == w.cwd {
		return nil
	}
	if err := w.explorer.ChangeDirectory(ctx, target); err != nil {
		return err
	}
	w.cwd = target
	return nil
}

func (w *Worker) copyFile(ctx context.Context, f ingest.FileEntity) error {
	if f.Handle == nil {
		return fmt.Errorf("%s has no content", f.Path)
	}
	rc, err := f.Handle.Open(ctx)
	if err != nil {
		return fmt.Errorf("open %s: %w", f.Path, err)
	}
	content, err := io.ReadAll(rc)
	rc.Close()
	if err != nil {
		return fmt.Errorf("read %s: %w", f.Path, err)
	}

	if _, err := w.explorer.PutFile(ctx, f.Name, bytes.NewReader(content)); err != nil {
		return err
	}
	metrics.RecordFileCopied(int64(len(content)))

	audio, err := w.extractor.Extract(ctx, f.Name, bytes.NewReader(content))
	if err != nil {
		return fmt.Errorf("extract metadata of %s: %w", f.Path, err)
	}
	rec := &records.AudioMetadata{
		Source:      records.SourceLocal,
		Name:        f.Name,
		Path:        ingest.SandboxPath(f.Path),
		Extension:   audio.Extension,
		MIME:        audio.MIME,
		Genre:       audio.Genre,
		Artists:     audio.Artists,
		Album:       audio.Album,
		Title:       audio.Title,
		TrackNumber: audio.TrackNumber,
		TrackCount:  audio.TrackCount,
		Duration:    audio.Duration,
		Year:        audio.Year,
	}
	if err := w.store.PutAudio(ctx, rec); err != nil {
		return fmt.Errorf("store metadata of %s: %w", f.Path, err)
	}

	logging.Debug("imported file", logging.String("path", rec.Path), logging.Int64("bytes", int64(len(content))))
	return nil
}

// emit blocks until the event is taken or the worker is cancelled.
func (w *Worker) emit(ctx context.Context, e protocol.Event) {
	select {
	case w.events <- e:
	case <-ctx.Done():
	}
}
