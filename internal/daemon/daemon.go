// Package daemon assembles and supervises the long-running reel process:
// store, progress hub, pipeline dispatcher, and HTTP API, guarded by a
// single-instance file lock.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"reel/internal/artifact"
	"reel/internal/config"
	"reel/internal/logging"
	"reel/internal/media/ffprobe"
	"reel/internal/media/transcode"
	"reel/internal/pipeline"
	"reel/internal/progress"
	"reel/internal/server"
	"reel/internal/services/tagger"
	"reel/internal/services/transcriber"
	"reel/internal/video"
)

// Daemon owns the process-wide components and their lifecycle.
type Daemon struct {
	cfg    *config.Config
	logger *slog.Logger

	store      *video.Store
	artifacts  *artifact.Store
	hub        *progress.Hub
	dispatcher *pipeline.Dispatcher
	api        *server.Server

	lockPath string
	lock     *flock.Flock

	ctx     context.Context
	cancel  context.CancelFunc
	running atomic.Bool
}

// New wires a daemon from configuration. The store is opened here; Close
// releases it.
func New(cfg *config.Config, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil {
		return nil, errors.New("daemon requires config")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("prepare directories: %w", err)
	}

	store, err := video.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open video store: %w", err)
	}

	lockPath := filepath.Join(cfg.Paths.StateDir, "reel.lock")
	daemon := &Daemon{
		cfg:       cfg,
		logger:    logger,
		store:     store,
		artifacts: artifact.NewStore(cfg),
		hub:       progress.NewHub(cfg.Workflow.SubscriberBuffer),
		lockPath:  lockPath,
		lock:      flock.New(lockPath),
	}
	return daemon, nil
}

// Start acquires the instance lock, builds the pipeline, and begins
// serving the API.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another reel daemon instance is already running")
	}

	d.ctx, d.cancel = context.WithCancel(ctx)

	processor := pipeline.NewProcessor(pipeline.ProcessorOptions{
		Store:      d.store,
		Artifacts:  d.artifacts,
		Prober:     ffprobe.Prober{Binary: d.cfg.FFprobeBinary()},
		Transcoder: transcode.New(d.cfg.FFmpegBinary()),
		Transcriber: transcriber.NewClient(transcriber.Config{
			APIKey:         d.cfg.Transcriber.APIKey,
			BaseURL:        d.cfg.Transcriber.BaseURL,
			Model:          d.cfg.Transcriber.Model,
			TimeoutSeconds: d.cfg.Transcriber.TimeoutSeconds,
		}, transcriber.WithLogger(d.logger)),
		Tagger: tagger.NewClient(tagger.Config{
			APIKey:         d.cfg.LLM.APIKey,
			BaseURL:        d.cfg.LLM.BaseURL,
			Model:          d.cfg.LLM.Model,
			Referer:        d.cfg.LLM.Referer,
			Title:          d.cfg.LLM.Title,
			TimeoutSeconds: d.cfg.LLM.TimeoutSeconds,
		}),
		Hub:             d.hub,
		Logger:          d.logger.With(logging.String(logging.FieldComponent, "pipeline")),
		CompletionGrace: d.cfg.CompletionGrace(),
	})
	d.dispatcher = pipeline.NewDispatcher(d.ctx, d.store, processor,
		d.logger.With(logging.String(logging.FieldComponent, "dispatcher")))

	d.api = server.New(server.Options{
		Config:    d.cfg,
		Store:     d.store,
		Artifacts: d.artifacts,
		Hub:       d.hub,
		Starter:   d.dispatcher,
		Logger:    d.logger,
	})
	if err := d.api.Start(d.ctx); err != nil {
		_ = d.lock.Unlock()
		d.cancel()
		d.ctx = nil
		d.cancel = nil
		return err
	}

	d.running.Store(true)
	d.logger.Info("reel daemon started",
		logging.String("lock", d.lockPath),
		logging.String("address", d.api.Addr()))
	return nil
}

// Stop shuts the API down, waits for in-flight pipeline runs within the
// shutdown grace, and releases the lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	if d.api != nil {
		d.api.Stop()
	}
	if d.dispatcher != nil {
		d.waitForRuns()
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.ctx = nil
	d.running.Store(false)
	d.logger.Info("reel daemon stopped")
}

func (d *Daemon) waitForRuns() {
	done := make(chan struct{})
	go func() {
		d.dispatcher.Wait()
		close(done)
	}()
	grace := d.cfg.ShutdownGrace()
	if grace <= 0 {
		<-done
		return
	}
	select {
	case <-done:
	case <-time.After(grace):
		d.logger.Warn("pipeline runs still in flight at shutdown deadline")
	}
}

// Close stops the daemon and releases the store.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// Addr returns the API listener address once started.
func (d *Daemon) Addr() string {
	if d.api == nil {
		return ""
	}
	return d.api.Addr()
}

// Hub exposes the progress hub, mainly for tests and embedding callers.
func (d *Daemon) Hub() *progress.Hub {
	return d.hub
}

// Store exposes the video store.
func (d *Daemon) Store() *video.Store {
	return d.store
}
