// Package transcode wraps the ffmpeg invocations the pipeline needs:
// re-encoding browser-hostile codecs to H.264 and pulling a compact
// audio track out for transcription.
package transcode

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"

	"reel/internal/services"
)

// browserHostileCodecs lists video codecs that browsers cannot be relied
// on to play back directly.
var browserHostileCodecs = map[string]struct{}{
	"hevc": {},
	"h265": {},
	"vp9":  {},
}

// NeedsTranscode reports whether a video codec requires re-encoding to
// H.264 before browser playback.
func NeedsTranscode(codec string) bool {
	_, hostile := browserHostileCodecs[strings.ToLower(strings.TrimSpace(codec))]
	return hostile
}

// Transcoder executes ffmpeg with fixed encoding profiles.
type Transcoder struct {
	binary        string
	commandRunner func(ctx context.Context, name string, args ...string) error
}

// New creates a transcoder using the given ffmpeg binary.
func New(binary string) *Transcoder {
	if strings.TrimSpace(binary) == "" {
		binary = "ffmpeg"
	}
	return &Transcoder{binary: binary}
}

// WithCommandRunner sets a custom command runner (for testing).
func (t *Transcoder) WithCommandRunner(runner func(ctx context.Context, name string, args ...string) error) {
	t.commandRunner = runner
}

func (t *Transcoder) run(ctx context.Context, op string, args []string) error {
	if t.commandRunner != nil {
		return t.commandRunner(ctx, t.binary, args...)
	}
	cmd := exec.CommandContext(ctx, t.binary, args...) //nolint:gosec
	if output, err := cmd.CombinedOutput(); err != nil {
		detail := fmt.Sprintf("ffmpeg %s: %s", op, strings.TrimSpace(string(output)))
		return services.Wrap(services.ErrExternalTool, "transcode", op, detail, err)
	}
	return nil
}

// ToH264 re-encodes source into an H.264 MP4 next to the pipeline's other
// scratch files and returns the output path.
func (t *Transcoder) ToH264(ctx context.Context, source string) (string, error) {
	if strings.TrimSpace(source) == "" {
		return "", services.Wrap(services.ErrValidation, "transcode", "to-h264", "source path required", nil)
	}
	dest := scratchSibling(source, ".h264.mp4")
	args := buildH264Args(source, dest)
	if err := t.run(ctx, "to-h264", args); err != nil {
		return "", err
	}
	return dest, nil
}

// ExtractAudio pulls a mono 16kHz 64kbps MP3 track out of source and
// returns the output path.
func (t *Transcoder) ExtractAudio(ctx context.Context, source string) (string, error) {
	if strings.TrimSpace(source) == "" {
		return "", services.Wrap(services.ErrValidation, "transcode", "extract-audio", "source path required", nil)
	}
	dest := scratchSibling(source, ".mp3")
	args := buildAudioArgs(source, dest)
	if err := t.run(ctx, "extract-audio", args); err != nil {
		return "", err
	}
	return dest, nil
}

func scratchSibling(source, suffix string) string {
	base := strings.TrimSuffix(filepath.Base(source), filepath.Ext(source))
	return filepath.Join(filepath.Dir(source), base+suffix)
}

func buildH264Args(source, dest string) []string {
	return []string{
		"-hide_banner",
		"-loglevel", "error",
		"-i", source,
		"-c:v", "libx264",
		"-preset", "fast",
		"-crf", "23",
		"-c:a", "aac",
		"-b:a", "128k",
		"-movflags", "+faststart",
		"-y",
		dest,
	}
}

func buildAudioArgs(source, dest string) []string {
	return []string{
		"-hide_banner",
		"-loglevel", "error",
		"-i", source,
		"-vn",
		"-acodec", "libmp3lame",
		"-ar", "16000",
		"-ac", "1",
		"-b:a", "64k",
		"-y",
		dest,
	}
}
