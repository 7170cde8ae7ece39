package progress_test

import (
	"sync"
	"testing"
	"time"

	"reel/internal/progress"
)

func TestPublishWithoutSubscribersStoresLatest(t *testing.T) {
	hub := progress.NewHub(0)

	hub.Publish("vid-1", progress.StageQueued, "Starting processing...", 0)

	record, ok := hub.Latest("vid-1")
	if !ok {
		t.Fatal("expected latest record after publish")
	}
	if record.Stage != progress.StageQueued || record.Percent != 0 {
		t.Fatalf("unexpected record: %#v", record)
	}
	if record.VideoID != "vid-1" {
		t.Fatalf("expected video id carried on record, got %q", record.VideoID)
	}
}

func TestLateSubscriberReplaysLatest(t *testing.T) {
	hub := progress.NewHub(0)
	hub.Publish("vid-1", progress.StageGenerating, "Generating title and tags...", 80)

	sub := hub.Subscribe("vid-1")
	defer hub.Unsubscribe("vid-1", sub)

	select {
	case record := <-sub.C:
		if record.Stage != progress.StageGenerating || record.Percent != 80 {
			t.Fatalf("expected replay of latest record, got %#v", record)
		}
	default:
		t.Fatal("expected latest record queued at subscribe time")
	}
}

func TestSubscriberObservesPublishOrder(t *testing.T) {
	hub := progress.NewHub(0)
	sub := hub.Subscribe("vid-1")
	defer hub.Unsubscribe("vid-1", sub)

	stages := []struct {
		stage   progress.Stage
		percent int
	}{
		{progress.StageQueued, 0},
		{progress.StageDownloading, 10},
		{progress.StageTranscoding, 40},
		{progress.StageTranscribing, 70},
		{progress.StageComplete, 100},
	}
	for _, s := range stages {
		hub.Publish("vid-1", s.stage, "", s.percent)
	}

	for i, want := range stages {
		record := <-sub.C
		if record.Stage != want.stage || record.Percent != want.percent {
			t.Fatalf("record %d: expected %s@%d, got %s@%d",
				i, want.stage, want.percent, record.Stage, record.Percent)
		}
	}
}

func TestPublishDropsWhenSubscriberFull(t *testing.T) {
	hub := progress.NewHub(2)
	slow := hub.Subscribe("vid-1")
	defer hub.Unsubscribe("vid-1", slow)

	// Three publishes against capacity two; the third must be dropped
	// without blocking the publisher.
	hub.Publish("vid-1", progress.StageQueued, "", 0)
	hub.Publish("vid-1", progress.StageDownloading, "", 10)
	hub.Publish("vid-1", progress.StageTranscoding, "", 40)

	if got := len(slow.C); got != 2 {
		t.Fatalf("expected 2 buffered records, got %d", got)
	}
	latest, _ := hub.Latest("vid-1")
	if latest.Stage != progress.StageTranscoding {
		t.Fatalf("latest record should reflect the dropped publish, got %s", latest.Stage)
	}
}

func TestPublishIsolatedPerVideo(t *testing.T) {
	hub := progress.NewHub(0)
	subA := hub.Subscribe("vid-a")
	subB := hub.Subscribe("vid-b")
	defer hub.Unsubscribe("vid-a", subA)
	defer hub.Unsubscribe("vid-b", subB)

	hub.Publish("vid-a", progress.StageDownloading, "", 10)

	if len(subB.C) != 0 {
		t.Fatal("publish for vid-a must not reach vid-b subscribers")
	}
	if len(subA.C) != 1 {
		t.Fatalf("expected one record for vid-a subscriber, got %d", len(subA.C))
	}
}

func TestUnsubscribeIdempotent(t *testing.T) {
	hub := progress.NewHub(0)
	sub := hub.Subscribe("vid-1")

	hub.Unsubscribe("vid-1", sub)
	hub.Unsubscribe("vid-1", sub)

	if count := hub.SubscriberCount("vid-1"); count != 0 {
		t.Fatalf("expected empty subscriber set, got %d", count)
	}

	// A publish after teardown must not panic or deliver.
	hub.Publish("vid-1", progress.StageComplete, "done", 100)
	if len(sub.C) != 0 {
		t.Fatal("unsubscribed channel received a record")
	}
}

func TestClearIdempotent(t *testing.T) {
	hub := progress.NewHub(0)
	hub.Publish("vid-1", progress.StageComplete, "done", 100)

	hub.Clear("vid-1")
	if _, ok := hub.Latest("vid-1"); ok {
		t.Fatal("expected latest record removed")
	}
	hub.Clear("vid-1")
	hub.Clear("never-published")
}

func TestConcurrentPublishAndSubscribe(t *testing.T) {
	hub := progress.NewHub(0)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				hub.Publish("vid-1", progress.StageTranscribing, "working", 50)
			}
		}()
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				sub := hub.Subscribe("vid-1")
				hub.Unsubscribe("vid-1", sub)
			}
		}()
	}
	wg.Wait()

	if _, ok := hub.Latest("vid-1"); !ok {
		t.Fatal("expected a latest record to survive concurrent churn")
	}
	if count := hub.SubscriberCount("vid-1"); count != 0 {
		t.Fatalf("expected all transient subscribers removed, got %d", count)
	}
}

func TestParseStage(t *testing.T) {
	cases := []struct {
		input string
		want  progress.Stage
		ok    bool
	}{
		{"queued", progress.StageQueued, true},
		{" Complete ", progress.StageComplete, true},
		{"FAILED", progress.StageFailed, true},
		{"", "", false},
		{"ripping", "", false},
	}
	for _, tc := range cases {
		got, ok := progress.ParseStage(tc.input)
		if ok != tc.ok || got != tc.want {
			t.Fatalf("ParseStage(%q) = (%q, %v), want (%q, %v)", tc.input, got, ok, tc.want, tc.ok)
		}
	}
}

func TestIsTerminal(t *testing.T) {
	stages := []progress.Stage{
		progress.StageQueued,
		progress.StageDownloading,
		progress.StageTranscoding,
		progress.StageTranscribing,
		progress.StageGenerating,
		progress.StageComplete,
		progress.StageFailed,
	}
	for _, stage := range stages {
		terminal := stage == progress.StageComplete || stage == progress.StageFailed
		if stage.IsTerminal() != terminal {
			t.Fatalf("IsTerminal(%s) = %v", stage, stage.IsTerminal())
		}
	}
}

func TestSubscriberObservesMonotonicOrder(t *testing.T) {
	hub := progress.NewHub(128)

	var wg sync.WaitGroup
	start := make(chan struct{})

	wg.Add(1)
	go func() {
		defer wg.Done()
		<-start
		for percent := 0; percent <= 100; percent++ {
			hub.Publish("vid-1", progress.StageTranscoding, "working", percent)
		}
	}()

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			sub := hub.Subscribe("vid-1")
			defer hub.Unsubscribe("vid-1", sub)
			last := -1
			for {
				select {
				case record := <-sub.C:
					if record.Percent < last {
						t.Errorf("received percent %d after %d", record.Percent, last)
						return
					}
					last = record.Percent
					if record.Percent == 100 {
						return
					}
				case <-time.After(time.Second):
					t.Error("never received the final record")
					return
				}
			}
		}()
	}

	close(start)
	wg.Wait()
}
