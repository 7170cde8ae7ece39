package services_test

import (
	"errors"
	"strings"
	"testing"

	"reel/internal/services"
)

func TestWrapTagsSentinel(t *testing.T) {
	base := errors.New("ffmpeg exited with status 1")
	err := services.Wrap(services.ErrExternalTool, "transcoding", "transcode to h264", "conversion failed", base)

	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatal("expected error to match ErrExternalTool")
	}
	if !errors.Is(err, base) {
		t.Fatal("expected wrapped cause to survive")
	}
	if services.Classify(err) != services.KindExternalTool {
		t.Fatalf("unexpected classification: %s", services.Classify(err))
	}
}

func TestWrapNilMarkerDefaultsTransient(t *testing.T) {
	err := services.Wrap(nil, "transcribing", "", "", nil)
	if services.Classify(err) != services.KindTransient {
		t.Fatalf("expected transient classification, got %s", services.Classify(err))
	}
}

func TestMessageStripsSentinelPrefix(t *testing.T) {
	err := services.Wrap(services.ErrValidation, "generating", "parse payload", "bad json", nil)
	msg := services.Message(err)
	if strings.Contains(msg, "validation error") {
		t.Fatalf("sentinel prefix should be stripped: %q", msg)
	}
	if !strings.Contains(msg, "generating") {
		t.Fatalf("stage detail should remain: %q", msg)
	}
}

func TestTruncate(t *testing.T) {
	cases := []struct {
		input string
		limit int
		want  string
	}{
		{"short", 100, "short"},
		{strings.Repeat("a", 150), 100, strings.Repeat("a", 100)},
		{"  padded  ", 100, "padded"},
		{"no limit", 0, "no limit"},
	}
	for _, tc := range cases {
		if got := services.Truncate(tc.input, tc.limit); got != tc.want {
			t.Fatalf("Truncate(%q, %d) = %q, want %q", tc.input, tc.limit, got, tc.want)
		}
	}
}
