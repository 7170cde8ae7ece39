package transcode

import (
	"context"
	"strings"
	"testing"
)

func TestNeedsTranscode(t *testing.T) {
	cases := []struct {
		codec string
		want  bool
	}{
		{"hevc", true},
		{"HEVC", true},
		{" h265 ", true},
		{"vp9", true},
		{"h264", false},
		{"av1", false},
		{"", false},
	}
	for _, tc := range cases {
		if got := NeedsTranscode(tc.codec); got != tc.want {
			t.Fatalf("NeedsTranscode(%q) = %v, want %v", tc.codec, got, tc.want)
		}
	}
}

func TestToH264Args(t *testing.T) {
	transcoder := New("ffmpeg")
	var gotName string
	var gotArgs []string
	transcoder.WithCommandRunner(func(_ context.Context, name string, args ...string) error {
		gotName = name
		gotArgs = args
		return nil
	})

	dest, err := transcoder.ToH264(context.Background(), "/tmp/work/input.mov")
	if err != nil {
		t.Fatalf("ToH264 failed: %v", err)
	}
	if gotName != "ffmpeg" {
		t.Fatalf("unexpected binary %q", gotName)
	}
	if !strings.HasSuffix(dest, "input.h264.mp4") {
		t.Fatalf("unexpected dest %q", dest)
	}

	joined := strings.Join(gotArgs, " ")
	for _, want := range []string{
		"-i /tmp/work/input.mov",
		"-c:v libx264",
		"-preset fast",
		"-crf 23",
		"-c:a aac",
		"-b:a 128k",
		"-movflags +faststart",
	} {
		if !strings.Contains(joined, want) {
			t.Fatalf("args missing %q: %s", want, joined)
		}
	}
	if gotArgs[len(gotArgs)-1] != dest {
		t.Fatalf("dest must be last arg, got %v", gotArgs)
	}
}

func TestExtractAudioArgs(t *testing.T) {
	transcoder := New("")
	var gotArgs []string
	transcoder.WithCommandRunner(func(_ context.Context, name string, args ...string) error {
		if name != "ffmpeg" {
			t.Fatalf("empty binary must fall back to ffmpeg, got %q", name)
		}
		gotArgs = args
		return nil
	})

	dest, err := transcoder.ExtractAudio(context.Background(), "/tmp/work/input.mp4")
	if err != nil {
		t.Fatalf("ExtractAudio failed: %v", err)
	}
	if !strings.HasSuffix(dest, "input.mp3") {
		t.Fatalf("unexpected dest %q", dest)
	}

	joined := strings.Join(gotArgs, " ")
	for _, want := range []string{"-vn", "-acodec libmp3lame", "-ar 16000", "-ac 1", "-b:a 64k"} {
		if !strings.Contains(joined, want) {
			t.Fatalf("args missing %q: %s", want, joined)
		}
	}
}

func TestEmptySourceRejected(t *testing.T) {
	transcoder := New("ffmpeg")
	if _, err := transcoder.ToH264(context.Background(), " "); err == nil {
		t.Fatal("expected error for empty source")
	}
	if _, err := transcoder.ExtractAudio(context.Background(), ""); err == nil {
		t.Fatal("expected error for empty source")
	}
}
