package pipeline_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"reel/internal/media/ffprobe"
	"reel/internal/pipeline"
	"reel/internal/progress"
	"reel/internal/services"
	"reel/internal/services/tagger"
	"reel/internal/video"
)

type fakeStore struct {
	mu      sync.Mutex
	videos  map[string]*video.Video
	tags    []string
	updates []video.Update
	getErr  error
}

func newFakeStore(videos ...*video.Video) *fakeStore {
	store := &fakeStore{videos: make(map[string]*video.Video)}
	for _, vid := range videos {
		store.videos[vid.ID] = vid
	}
	return store
}

func (s *fakeStore) GetByID(_ context.Context, id string) (*video.Video, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, s.getErr
	}
	vid, ok := s.videos[id]
	if !ok {
		return nil, nil
	}
	cp := *vid
	return &cp, nil
}

func (s *fakeStore) Update(_ context.Context, id string, update video.Update) (*video.Video, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	vid, ok := s.videos[id]
	if !ok {
		return nil, nil
	}
	s.updates = append(s.updates, update)
	if update.Status != nil {
		vid.Status = *update.Status
	}
	if update.Title != nil {
		vid.Title = *update.Title
	}
	if update.Tags != nil {
		vid.Tags = *update.Tags
	}
	if update.Transcript != nil {
		vid.Transcript = *update.Transcript
	}
	if update.Summary != nil {
		vid.Summary = *update.Summary
	}
	if update.Duration != nil {
		vid.Duration = *update.Duration
	}
	cp := *vid
	return &cp, nil
}

func (s *fakeStore) AllTags(context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tags, nil
}

func (s *fakeStore) statuses() []video.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []video.Status
	for _, update := range s.updates {
		if update.Status != nil {
			out = append(out, *update.Status)
		}
	}
	return out
}

type fakeArtifacts struct {
	mu        sync.Mutex
	dir       string
	downloads []string
	uploads   [][2]string
	downErr   error
}

func (a *fakeArtifacts) Download(_ context.Context, objectPath string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.downErr != nil {
		return "", a.downErr
	}
	a.downloads = append(a.downloads, objectPath)
	if a.dir == "" {
		return "/scratch/" + objectPath, nil
	}
	path := filepath.Join(a.dir, "download-"+filepath.Base(objectPath))
	if err := os.WriteFile(path, []byte("video-bytes"), 0o644); err != nil {
		return "", err
	}
	return path, nil
}

func (a *fakeArtifacts) Upload(_ context.Context, localPath, objectPath string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.uploads = append(a.uploads, [2]string{localPath, objectPath})
	return nil
}

type fakeProber struct {
	probe ffprobe.Probe
	err   error
}

func probeFor(codec string) *fakeProber {
	return &fakeProber{probe: ffprobe.Probe{VideoCodec: codec, AudioStreams: 1}}
}

func (p *fakeProber) Inspect(context.Context, string) (ffprobe.Probe, error) {
	return p.probe, p.err
}

type fakeTranscoder struct {
	mu        sync.Mutex
	touch     bool
	converted []string
	extracted []string
}

func (t *fakeTranscoder) emit(source, suffix string) (string, error) {
	out := source + suffix
	if t.touch {
		if err := os.WriteFile(out, []byte("derived"), 0o644); err != nil {
			return "", err
		}
	}
	return out, nil
}

func (t *fakeTranscoder) ToH264(_ context.Context, source string) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.converted = append(t.converted, source)
	return t.emit(source, ".h264.mp4")
}

func (t *fakeTranscoder) ExtractAudio(_ context.Context, source string) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.extracted = append(t.extracted, source)
	return t.emit(source, ".mp3")
}

type fakeTranscriber struct {
	mu     sync.Mutex
	text   string
	err    error
	calls  int
	gotCtx context.Context
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.gotCtx = ctx
	return f.text, f.err
}

type fakeTagger struct {
	result  tagger.Result
	gotTags []string
}

func (f *fakeTagger) GenerateSafe(_ context.Context, _ string, existingTags []string) tagger.Result {
	f.gotTags = existingTags
	return f.result
}

type capture struct {
	hub *progress.Hub
	sub *progress.Subscription
}

func watch(t *testing.T, hub *progress.Hub, videoID string) *capture {
	t.Helper()
	sub := hub.Subscribe(videoID)
	t.Cleanup(func() { hub.Unsubscribe(videoID, sub) })
	return &capture{hub: hub, sub: sub}
}

func (c *capture) records(t *testing.T) []progress.Record {
	t.Helper()
	var out []progress.Record
	for {
		select {
		case record := <-c.sub.C:
			out = append(out, record)
		case <-time.After(50 * time.Millisecond):
			return out
		}
	}
}

func newProcessor(store *fakeStore, artifacts *fakeArtifacts, prober *fakeProber, transcriber *fakeTranscriber, tag *fakeTagger, hub *progress.Hub) (*pipeline.Processor, *fakeTranscoder) {
	transcoder := &fakeTranscoder{}
	return pipeline.NewProcessor(pipeline.ProcessorOptions{
		Store:       store,
		Artifacts:   artifacts,
		Prober:      prober,
		Transcoder:  transcoder,
		Transcriber: transcriber,
		Tagger:      tag,
		Hub:         hub,
	}), transcoder
}

func stages(records []progress.Record) []string {
	var out []string
	for _, record := range records {
		out = append(out, string(record.Stage))
	}
	return out
}

func TestRunHappyPathWithoutTranscode(t *testing.T) {
	vid := &video.Video{ID: "v1", StoragePath: "videos/v1.mp4", Status: video.StatusPending}
	store := newFakeStore(vid)
	store.tags = []string{"calm"}
	artifacts := &fakeArtifacts{}
	tag := &fakeTagger{result: tagger.Result{Title: "Morning", Tags: []string{"calm", "soft", "slow"}, Summary: "sum"}}
	hub := progress.NewHub(progress.DefaultSubscriberBuffer)
	processor, transcoder := newProcessor(store, artifacts, probeFor("h264"), &fakeTranscriber{text: "the words"}, tag, hub)
	watcher := watch(t, hub, "v1")

	processor.Run(context.Background(), "v1")

	records := watcher.records(t)
	wantStages := []string{"queued", "downloading", "transcoding", "transcribing", "transcribing", "generating", "generating", "complete"}
	got := stages(records)
	if len(got) != len(wantStages) {
		t.Fatalf("unexpected stage sequence %v", got)
	}
	for i := range wantStages {
		if got[i] != wantStages[i] {
			t.Fatalf("stage %d: expected %s, got %s (%v)", i, wantStages[i], got[i], got)
		}
	}
	wantPercents := []int{0, 10, 40, 50, 70, 80, 90, 100}
	for i, record := range records {
		if record.Percent != wantPercents[i] {
			t.Fatalf("record %d: expected percent %d, got %d", i, wantPercents[i], record.Percent)
		}
	}

	if len(artifacts.uploads) != 0 {
		t.Fatalf("h264 source must not be re-uploaded: %v", artifacts.uploads)
	}
	if len(transcoder.converted) != 0 {
		t.Fatalf("h264 source must not be transcoded: %v", transcoder.converted)
	}
	if len(transcoder.extracted) != 1 || transcoder.extracted[0] != "/scratch/videos/v1.mp4" {
		t.Fatalf("audio must come from the downloaded file: %v", transcoder.extracted)
	}

	gotStatuses := store.statuses()
	if len(gotStatuses) != 2 || gotStatuses[0] != video.StatusProcessing || gotStatuses[1] != video.StatusReady {
		t.Fatalf("unexpected status transitions %v", gotStatuses)
	}
	if vid := store.videos["v1"]; vid.Title != "Morning" || vid.Transcript != "the words" || vid.Summary != "sum" {
		t.Fatalf("results not persisted: %#v", vid)
	}
	if len(tag.gotTags) != 1 || tag.gotTags[0] != "calm" {
		t.Fatalf("existing tags not passed to tagger: %v", tag.gotTags)
	}

	if _, ok := hub.Latest("v1"); ok {
		t.Fatal("completed run must clear its progress entry")
	}
}

func TestRunTranscodesHostileCodec(t *testing.T) {
	vid := &video.Video{ID: "v1", StoragePath: "videos/v1.mp4", Status: video.StatusPending}
	store := newFakeStore(vid)
	artifacts := &fakeArtifacts{}
	hub := progress.NewHub(progress.DefaultSubscriberBuffer)
	processor, transcoder := newProcessor(store, artifacts, probeFor("hevc"), &fakeTranscriber{text: "words"}, &fakeTagger{result: tagger.FallbackResult()}, hub)
	watcher := watch(t, hub, "v1")

	processor.Run(context.Background(), "v1")

	records := watcher.records(t)
	var transcoding []progress.Record
	for _, record := range records {
		if record.Stage == progress.StageTranscoding {
			transcoding = append(transcoding, record)
		}
	}
	if len(transcoding) != 2 || transcoding[0].Percent != 20 || transcoding[1].Percent != 40 {
		t.Fatalf("expected transcoding at 20 then 40, got %v", transcoding)
	}

	if len(transcoder.converted) != 1 {
		t.Fatalf("expected one transcode, got %v", transcoder.converted)
	}
	if len(artifacts.uploads) != 1 {
		t.Fatalf("expected converted file re-uploaded, got %v", artifacts.uploads)
	}
	if artifacts.uploads[0][1] != "videos/v1.mp4" {
		t.Fatalf("upload must target the original object path, got %v", artifacts.uploads[0])
	}
	if len(transcoder.extracted) != 1 || !strings.HasSuffix(transcoder.extracted[0], ".h264.mp4") {
		t.Fatalf("audio must come from the converted file: %v", transcoder.extracted)
	}
}

func TestRunMissingVideoAbandonsQuietly(t *testing.T) {
	store := newFakeStore()
	hub := progress.NewHub(progress.DefaultSubscriberBuffer)
	processor, _ := newProcessor(store, &fakeArtifacts{}, probeFor("h264"), &fakeTranscriber{}, &fakeTagger{}, hub)
	watcher := watch(t, hub, "ghost")

	processor.Run(context.Background(), "ghost")

	records := watcher.records(t)
	if len(records) != 1 || records[0].Stage != progress.StageQueued {
		t.Fatalf("expected only the queued record, got %v", records)
	}
	if len(store.updates) != 0 {
		t.Fatalf("missing video must not be updated: %v", store.updates)
	}
}

func TestRunFailurePublishesTruncatedMessage(t *testing.T) {
	vid := &video.Video{ID: "v1", StoragePath: "videos/v1.mp4", Status: video.StatusPending}
	store := newFakeStore(vid)
	hub := progress.NewHub(progress.DefaultSubscriberBuffer)
	longError := errors.New(strings.Repeat("x", 200))
	processor, _ := newProcessor(store, &fakeArtifacts{}, probeFor("h264"), &fakeTranscriber{err: longError}, &fakeTagger{}, hub)
	watcher := watch(t, hub, "v1")

	processor.Run(context.Background(), "v1")

	records := watcher.records(t)
	last := records[len(records)-1]
	if last.Stage != progress.StageFailed || last.Percent != 0 {
		t.Fatalf("expected failed@0, got %+v", last)
	}
	if !strings.HasPrefix(last.Message, "Processing failed: ") {
		t.Fatalf("unexpected failure message %q", last.Message)
	}
	detail := strings.TrimPrefix(last.Message, "Processing failed: ")
	if len([]rune(detail)) > 100 {
		t.Fatalf("failure detail must be capped at 100 chars, got %d", len([]rune(detail)))
	}

	gotStatuses := store.statuses()
	if gotStatuses[len(gotStatuses)-1] != video.StatusFailed {
		t.Fatalf("failed status not persisted: %v", gotStatuses)
	}

	if _, ok := hub.Latest("v1"); !ok {
		t.Fatal("failed run must keep its last record visible")
	}
}

func TestRunKeepsCompleteVisibleDuringGrace(t *testing.T) {
	vid := &video.Video{ID: "v1", StoragePath: "videos/v1.mp4", Status: video.StatusPending}
	store := newFakeStore(vid)
	hub := progress.NewHub(progress.DefaultSubscriberBuffer)
	processor := pipeline.NewProcessor(pipeline.ProcessorOptions{
		Store:           store,
		Artifacts:       &fakeArtifacts{},
		Prober:          probeFor("h264"),
		Transcoder:      &fakeTranscoder{},
		Transcriber:     &fakeTranscriber{text: "words"},
		Tagger:          &fakeTagger{result: tagger.FallbackResult()},
		Hub:             hub,
		CompletionGrace: 100 * time.Millisecond,
	})

	done := make(chan struct{})
	go func() {
		processor.Run(context.Background(), "v1")
		close(done)
	}()

	deadline := time.After(time.Second)
	for {
		if record, ok := hub.Latest("v1"); ok && record.Stage == progress.StageComplete {
			break
		}
		select {
		case <-deadline:
			t.Fatal("never observed the complete record")
		case <-time.After(5 * time.Millisecond):
		}
	}

	<-done
	if _, ok := hub.Latest("v1"); ok {
		t.Fatal("progress entry must be cleared after the grace period")
	}
}

func TestRunRemovesScratchFilesAfterSuccess(t *testing.T) {
	vid := &video.Video{ID: "v1", StoragePath: "videos/v1.mp4", Status: video.StatusPending}
	store := newFakeStore(vid)
	artifacts := &fakeArtifacts{dir: t.TempDir()}
	hub := progress.NewHub(progress.DefaultSubscriberBuffer)
	processor, transcoder := newProcessor(store, artifacts, probeFor("hevc"), &fakeTranscriber{text: "words"}, &fakeTagger{result: tagger.FallbackResult()}, hub)
	transcoder.touch = true

	processor.Run(context.Background(), "v1")

	if vid := store.videos["v1"]; vid.Status != video.StatusReady {
		t.Fatalf("expected ready status, got %s", vid.Status)
	}
	entries, err := os.ReadDir(artifacts.dir)
	if err != nil {
		t.Fatalf("read scratch dir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("scratch files left behind after success: %v", entries)
	}
}

func TestRunRemovesScratchFilesAfterFailure(t *testing.T) {
	vid := &video.Video{ID: "v1", StoragePath: "videos/v1.mp4", Status: video.StatusPending}
	store := newFakeStore(vid)
	artifacts := &fakeArtifacts{dir: t.TempDir()}
	hub := progress.NewHub(progress.DefaultSubscriberBuffer)
	processor, transcoder := newProcessor(store, artifacts, probeFor("h264"), &fakeTranscriber{err: errors.New("speech api down")}, &fakeTagger{}, hub)
	transcoder.touch = true

	processor.Run(context.Background(), "v1")

	if vid := store.videos["v1"]; vid.Status != video.StatusFailed {
		t.Fatalf("expected failed status, got %s", vid.Status)
	}
	entries, err := os.ReadDir(artifacts.dir)
	if err != nil {
		t.Fatalf("read scratch dir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("scratch files left behind after failure: %v", entries)
	}
}

func TestRunSkipsTranscriptionWithoutAudioTrack(t *testing.T) {
	vid := &video.Video{ID: "v1", StoragePath: "videos/v1.mp4", Status: video.StatusPending}
	store := newFakeStore(vid)
	hub := progress.NewHub(progress.DefaultSubscriberBuffer)
	prober := &fakeProber{probe: ffprobe.Probe{VideoCodec: "h264", AudioStreams: 0}}
	transcriber := &fakeTranscriber{text: "never"}
	processor, transcoder := newProcessor(store, &fakeArtifacts{}, prober, transcriber, &fakeTagger{result: tagger.FallbackResult()}, hub)
	watcher := watch(t, hub, "v1")

	processor.Run(context.Background(), "v1")

	if transcriber.calls != 0 {
		t.Fatalf("transcriber must not be called without audio, got %d calls", transcriber.calls)
	}
	if len(transcoder.extracted) != 0 {
		t.Fatalf("audio must not be extracted without audio streams: %v", transcoder.extracted)
	}

	var skip *progress.Record
	for _, record := range watcher.records(t) {
		if record.Stage == progress.StageTranscribing {
			cp := record
			skip = &cp
		}
	}
	if skip == nil || skip.Percent != 70 || !strings.Contains(skip.Message, "skipping transcription") {
		t.Fatalf("expected a single transcribing skip record at 70, got %+v", skip)
	}

	if vid := store.videos["v1"]; vid.Status != video.StatusReady || vid.Transcript != "" {
		t.Fatalf("expected ready with empty transcript, got %#v", vid)
	}
}

func TestRunBackfillsDurationFromProbe(t *testing.T) {
	vid := &video.Video{ID: "v1", StoragePath: "videos/v1.mp4", Status: video.StatusPending}
	store := newFakeStore(vid)
	hub := progress.NewHub(progress.DefaultSubscriberBuffer)
	prober := &fakeProber{probe: ffprobe.Probe{VideoCodec: "h264", AudioStreams: 1, DurationSeconds: 12.5}}
	processor, _ := newProcessor(store, &fakeArtifacts{}, prober, &fakeTranscriber{text: "words"}, &fakeTagger{result: tagger.FallbackResult()}, hub)

	processor.Run(context.Background(), "v1")

	if got := store.videos["v1"].Duration; got != 12.5 {
		t.Fatalf("expected probed duration persisted, got %v", got)
	}
}

func TestRunKeepsClientReportedDuration(t *testing.T) {
	vid := &video.Video{ID: "v1", StoragePath: "videos/v1.mp4", Duration: 33, Status: video.StatusPending}
	store := newFakeStore(vid)
	hub := progress.NewHub(progress.DefaultSubscriberBuffer)
	prober := &fakeProber{probe: ffprobe.Probe{VideoCodec: "h264", AudioStreams: 1, DurationSeconds: 12.5}}
	processor, _ := newProcessor(store, &fakeArtifacts{}, prober, &fakeTranscriber{text: "words"}, &fakeTagger{result: tagger.FallbackResult()}, hub)

	processor.Run(context.Background(), "v1")

	if got := store.videos["v1"].Duration; got != 33 {
		t.Fatalf("existing duration must not be overwritten, got %v", got)
	}
}

func TestRunAnnotatesCollaboratorContext(t *testing.T) {
	vid := &video.Video{ID: "v1", StoragePath: "videos/v1.mp4", Status: video.StatusPending}
	store := newFakeStore(vid)
	hub := progress.NewHub(progress.DefaultSubscriberBuffer)
	transcriber := &fakeTranscriber{text: "words"}
	processor, _ := newProcessor(store, &fakeArtifacts{}, probeFor("h264"), transcriber, &fakeTagger{result: tagger.FallbackResult()}, hub)

	ctx := services.WithRequestID(context.Background(), "req-7")
	processor.Run(ctx, "v1")

	if transcriber.gotCtx == nil {
		t.Fatal("transcriber never called")
	}
	if id, ok := services.VideoIDFromContext(transcriber.gotCtx); !ok || id != "v1" {
		t.Fatalf("expected video id on collaborator context, got %q", id)
	}
	if stage, ok := services.StageFromContext(transcriber.gotCtx); !ok || stage != string(progress.StageTranscribing) {
		t.Fatalf("expected transcribing stage on collaborator context, got %q", stage)
	}
	if id, ok := services.RequestIDFromContext(transcriber.gotCtx); !ok || id != "req-7" {
		t.Fatalf("expected request id on collaborator context, got %q", id)
	}
}
