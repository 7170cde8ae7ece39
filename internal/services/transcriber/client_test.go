package transcriber

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"reel/internal/services"
)

func writeAudioFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "audio.mp3")
	if err := os.WriteFile(path, []byte("fake-mp3-bytes"), 0o644); err != nil {
		t.Fatalf("write audio file: %v", err)
	}
	return path
}

func TestTranscribeSendsMultipartRequest(t *testing.T) {
	var gotAuth, gotModel, gotFormat, gotFilename string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
		}
		gotModel = r.FormValue("model")
		gotFormat = r.FormValue("response_format")
		if headers := r.MultipartForm.File["file"]; len(headers) == 1 {
			gotFilename = headers[0].Filename
		}
		_, _ = w.Write([]byte("hello world\n"))
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "secret", BaseURL: server.URL})
	text, err := client.Transcribe(context.Background(), writeAudioFile(t))
	if err != nil {
		t.Fatalf("Transcribe failed: %v", err)
	}
	if text != "hello world" {
		t.Fatalf("expected trimmed transcript, got %q", text)
	}
	if gotAuth != "Bearer secret" {
		t.Fatalf("unexpected auth header %q", gotAuth)
	}
	if gotModel != "whisper-1" {
		t.Fatalf("unexpected model %q", gotModel)
	}
	if gotFormat != "text" {
		t.Fatalf("unexpected response format %q", gotFormat)
	}
	if gotFilename != "audio.mp3" {
		t.Fatalf("unexpected filename %q", gotFilename)
	}
}

func TestTranscribeRetriesOnServerError(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("second try"))
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "secret", BaseURL: server.URL},
		WithRetryBackoff(time.Millisecond, time.Millisecond),
		WithSleeper(func(time.Duration) {}))
	text, err := client.Transcribe(context.Background(), writeAudioFile(t))
	if err != nil {
		t.Fatalf("Transcribe failed: %v", err)
	}
	if text != "second try" {
		t.Fatalf("unexpected transcript %q", text)
	}
	if calls != 2 {
		t.Fatalf("expected 2 calls, got %d", calls)
	}
}

func TestTranscribeDoesNotRetryClientErrors(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte("bad audio"))
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "secret", BaseURL: server.URL},
		WithSleeper(func(time.Duration) {}))
	if _, err := client.Transcribe(context.Background(), writeAudioFile(t)); err == nil {
		t.Fatal("expected error for http 400")
	}
	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
}

func TestTranscribeRequiresAPIKey(t *testing.T) {
	client := NewClient(Config{})
	if _, err := client.Transcribe(context.Background(), writeAudioFile(t)); err == nil {
		t.Fatal("expected error without api key")
	}
}

func TestTranscribeMissingFile(t *testing.T) {
	client := NewClient(Config{APIKey: "secret"})
	if _, err := client.Transcribe(context.Background(), filepath.Join(t.TempDir(), "nope.mp3")); err == nil {
		t.Fatal("expected error for missing audio file")
	}
}

func TestTranscribeOversizeWarningCarriesRunAttrs(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	defer server.Close()

	path := filepath.Join(t.TempDir(), "big.mp3")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("write audio file: %v", err)
	}
	if err := os.Truncate(path, sizeWarnBytes+1); err != nil {
		t.Fatalf("grow audio file: %v", err)
	}

	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))
	client := NewClient(Config{APIKey: "secret", BaseURL: server.URL}, WithLogger(logger))

	ctx := services.WithStage(services.WithVideoID(context.Background(), "vid-1"), "transcribing")
	if _, err := client.Transcribe(ctx, path); err != nil {
		t.Fatalf("Transcribe failed: %v", err)
	}

	out := logs.String()
	if !strings.Contains(out, "video_id=vid-1") {
		t.Fatalf("warning missing video id: %s", out)
	}
	if !strings.Contains(out, "stage=transcribing") {
		t.Fatalf("warning missing stage: %s", out)
	}
}
