package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"reel/internal/logging"
	"reel/internal/services"
	"reel/internal/video"
)

// Runner is the processing entrypoint the dispatcher spawns.
type Runner interface {
	Run(ctx context.Context, videoID string)
}

// Dispatcher starts processing runs, refusing to double-start a video that
// is already being processed, and tracks in-flight runs for shutdown.
type Dispatcher struct {
	store  Store
	runner Runner
	logger *slog.Logger

	// base is the long-lived context runs execute under, so a run
	// outlives the HTTP request that triggered it.
	base context.Context
	wg   sync.WaitGroup
}

// NewDispatcher builds a dispatcher whose spawned runs use base as their
// context.
func NewDispatcher(base context.Context, store Store, runner Runner, logger *slog.Logger) *Dispatcher {
	if base == nil {
		base = context.Background()
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Dispatcher{store: store, runner: runner, logger: logger, base: base}
}

// Start kicks off processing for a video. It returns (true, nil) without
// spawning when the video is already processing, and an error when the
// video does not exist or cannot be loaded.
//
// A concurrent Start can slip between the status check and the spawn; the
// window is accepted because the UI drives one start per click and a
// duplicate run converges on the same stored result.
func (d *Dispatcher) Start(ctx context.Context, videoID string) (bool, error) {
	vid, err := d.store.GetByID(ctx, videoID)
	if err != nil {
		return false, fmt.Errorf("dispatch %s: %w", videoID, err)
	}
	if vid == nil {
		return false, services.Wrap(services.ErrNotFound, "dispatcher", "start", fmt.Sprintf("video %s not found", videoID), nil)
	}
	if vid.Status == video.StatusProcessing {
		d.logger.Info("video already processing, skipping dispatch",
			logging.String(logging.FieldVideoID, videoID))
		return true, nil
	}

	runCtx := services.WithVideoID(d.base, videoID)
	if requestID, ok := services.RequestIDFromContext(ctx); ok {
		runCtx = services.WithRequestID(runCtx, requestID)
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.runner.Run(runCtx, videoID)
	}()
	return false, nil
}

// Wait blocks until every spawned run has returned.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
