// Package pipeline orchestrates the processing run for a single video:
// download, optional transcode, transcription, metadata generation, and
// progress publication.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"reel/internal/logging"
	"reel/internal/media/ffprobe"
	"reel/internal/media/transcode"
	"reel/internal/progress"
	"reel/internal/services"
	"reel/internal/services/tagger"
	"reel/internal/video"
)

// Store is the subset of the video repository the pipeline needs.
type Store interface {
	GetByID(ctx context.Context, id string) (*video.Video, error)
	Update(ctx context.Context, id string, update video.Update) (*video.Video, error)
	AllTags(ctx context.Context) ([]string, error)
}

// Artifacts moves video files between object storage and local scratch.
type Artifacts interface {
	Download(ctx context.Context, objectPath string) (string, error)
	Upload(ctx context.Context, localPath, objectPath string) error
}

// Prober inspects a local media file.
type Prober interface {
	Inspect(ctx context.Context, path string) (ffprobe.Probe, error)
}

// Transcoder re-encodes video and extracts audio.
type Transcoder interface {
	ToH264(ctx context.Context, source string) (string, error)
	ExtractAudio(ctx context.Context, source string) (string, error)
}

// Transcriber converts an audio file into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) (string, error)
}

// Tagger derives title, tags, and summary from a transcript.
type Tagger interface {
	GenerateSafe(ctx context.Context, transcript string, existingTags []string) tagger.Result
}

// Processor runs the full processing sequence for one video.
type Processor struct {
	store       Store
	artifacts   Artifacts
	prober      Prober
	transcoder  Transcoder
	transcriber Transcriber
	tagger      Tagger
	hub         *progress.Hub
	logger      *slog.Logger

	// completionGrace is how long the final progress record stays
	// observable before the hub entry is cleared.
	completionGrace time.Duration
}

// ProcessorOptions bundles the collaborators for NewProcessor.
type ProcessorOptions struct {
	Store           Store
	Artifacts       Artifacts
	Prober          Prober
	Transcoder      Transcoder
	Transcriber     Transcriber
	Tagger          Tagger
	Hub             *progress.Hub
	Logger          *slog.Logger
	CompletionGrace time.Duration
}

// NewProcessor wires a processor from its collaborators.
func NewProcessor(opts ProcessorOptions) *Processor {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Processor{
		store:           opts.Store,
		artifacts:       opts.Artifacts,
		prober:          opts.Prober,
		transcoder:      opts.Transcoder,
		transcriber:     opts.Transcriber,
		tagger:          opts.Tagger,
		hub:             opts.Hub,
		logger:          logger,
		completionGrace: opts.CompletionGrace,
	}
}

// Run processes a video end to end. Failures are published to the hub and
// persisted on the video record; Run itself never panics and returns only
// when the run has fully settled.
func (p *Processor) Run(ctx context.Context, videoID string) {
	ctx = services.WithVideoID(ctx, videoID)
	logger := p.logger.With(logging.String(logging.FieldVideoID, videoID))
	if requestID, ok := services.RequestIDFromContext(ctx); ok {
		logger = logger.With(logging.String(logging.FieldRequestID, requestID))
	}

	var scratch []string
	defer func() {
		for _, path := range scratch {
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				logger.Warn("remove scratch file", logging.String("path", path), logging.Error(err))
			}
		}
	}()

	publish := func(stage progress.Stage, message string, percent int) {
		p.hub.Publish(videoID, stage, message, percent)
		logger.Info("processing progress",
			logging.String(logging.FieldStage, string(stage)),
			logging.Int("percent", percent),
			logging.String("message", message))
	}

	publish(progress.StageQueued, "Starting processing...", 0)
	vid, err := p.store.GetByID(ctx, videoID)
	if err != nil {
		p.fail(ctx, logger, videoID, publish, fmt.Errorf("load video: %w", err))
		return
	}
	if vid == nil {
		logger.Warn("video not found, abandoning run")
		return
	}

	if err := p.process(ctx, logger, vid, &scratch, publish); err != nil {
		p.fail(ctx, logger, videoID, publish, err)
		return
	}

	publish(progress.StageComplete, "Processing complete!", 100)
	p.settle(ctx, videoID)
}

func (p *Processor) process(ctx context.Context, logger *slog.Logger, vid *video.Video, scratch *[]string, publish func(progress.Stage, string, int)) error {
	if _, err := p.store.Update(ctx, vid.ID, video.Update{Status: video.StatusPtr(video.StatusProcessing)}); err != nil {
		return fmt.Errorf("mark processing: %w", err)
	}

	publish(progress.StageDownloading, "Downloading video...", 10)
	ctx = services.WithStage(ctx, string(progress.StageDownloading))
	localPath, err := p.artifacts.Download(ctx, vid.StoragePath)
	if err != nil {
		return fmt.Errorf("download: %w", err)
	}
	*scratch = append(*scratch, localPath)

	info, err := p.prober.Inspect(ctx, localPath)
	if err != nil {
		return fmt.Errorf("probe source: %w", err)
	}
	logger.Debug("probed source artifact",
		logging.String("codec", info.VideoCodec),
		logging.Int("audio_streams", info.AudioStreams),
		logging.Float64("duration_seconds", info.DurationSeconds),
		logging.Int64("size_bytes", info.SizeBytes))

	ctx = services.WithStage(ctx, string(progress.StageTranscoding))
	if transcode.NeedsTranscode(info.VideoCodec) {
		publish(progress.StageTranscoding, "Converting video format...", 20)
		converted, err := p.transcoder.ToH264(ctx, localPath)
		if err != nil {
			return fmt.Errorf("transcode: %w", err)
		}
		*scratch = append(*scratch, converted)

		publish(progress.StageTranscoding, "Uploading converted video...", 40)
		if err := p.artifacts.Upload(ctx, converted, vid.StoragePath); err != nil {
			return fmt.Errorf("upload converted video: %w", err)
		}
		localPath = converted
	} else {
		publish(progress.StageTranscoding, "Video format OK, skipping conversion", 40)
	}

	ctx = services.WithStage(ctx, string(progress.StageTranscribing))
	var transcript string
	if info.AudioStreams == 0 {
		publish(progress.StageTranscribing, "No audio track, skipping transcription", 70)
	} else {
		publish(progress.StageTranscribing, "Transcribing audio...", 50)
		audioPath, err := p.transcoder.ExtractAudio(ctx, localPath)
		if err != nil {
			return fmt.Errorf("extract audio: %w", err)
		}
		*scratch = append(*scratch, audioPath)
		if transcript, err = p.transcriber.Transcribe(ctx, audioPath); err != nil {
			return fmt.Errorf("transcribe: %w", err)
		}
		publish(progress.StageTranscribing, "Transcription complete", 70)
	}

	existingTags, err := p.store.AllTags(ctx)
	if err != nil {
		return fmt.Errorf("load existing tags: %w", err)
	}

	ctx = services.WithStage(ctx, string(progress.StageGenerating))
	publish(progress.StageGenerating, "Generating title and tags...", 80)
	result := p.tagger.GenerateSafe(ctx, transcript, existingTags)
	publish(progress.StageGenerating, "AI analysis complete", 90)

	update := video.Update{
		Title:      video.StringPtr(result.Title),
		Tags:       video.TagsPtr(result.Tags),
		Transcript: video.StringPtr(transcript),
		Summary:    video.StringPtr(result.Summary),
		Status:     video.StatusPtr(video.StatusReady),
	}
	if vid.Duration == 0 && info.DurationSeconds > 0 {
		update.Duration = video.Float64Ptr(info.DurationSeconds)
	}
	if _, err := p.store.Update(ctx, vid.ID, update); err != nil {
		return fmt.Errorf("persist results: %w", err)
	}
	return nil
}

func (p *Processor) fail(ctx context.Context, logger *slog.Logger, videoID string, publish func(progress.Stage, string, int), cause error) {
	logger.Error("processing failed", logging.Error(cause))
	message := "Processing failed: " + services.Truncate(services.Message(cause), 100)
	publish(progress.StageFailed, message, 0)
	if _, err := p.store.Update(ctx, videoID, video.Update{Status: video.StatusPtr(video.StatusFailed)}); err != nil {
		logger.Error("persist failed status", logging.Error(err))
	}
}

// settle keeps the terminal record visible for the grace period, then
// clears the hub entry so late subscribers of a finished video start fresh.
func (p *Processor) settle(ctx context.Context, videoID string) {
	if p.completionGrace > 0 {
		timer := time.NewTimer(p.completionGrace)
		defer timer.Stop()
		select {
		case <-ctx.Done():
		case <-timer.C:
		}
	}
	p.hub.Clear(videoID)
}
