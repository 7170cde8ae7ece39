package progress

import "strings"

// Stage identifies a phase of the processing pipeline for one video.
type Stage string

const (
	StageQueued       Stage = "queued"
	StageDownloading  Stage = "downloading"
	StageTranscoding  Stage = "transcoding"
	StageTranscribing Stage = "transcribing"
	StageGenerating   Stage = "generating"
	StageComplete     Stage = "complete"
	StageFailed       Stage = "failed"
)

var allStages = []Stage{
	StageQueued,
	StageDownloading,
	StageTranscoding,
	StageTranscribing,
	StageGenerating,
	StageComplete,
	StageFailed,
}

var stageSet = func() map[Stage]struct{} {
	set := make(map[Stage]struct{}, len(allStages))
	for _, stage := range allStages {
		set[stage] = struct{}{}
	}
	return set
}()

// ParseStage converts a string into a known Stage.
func ParseStage(value string) (Stage, bool) {
	normalized := Stage(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := stageSet[normalized]
	return normalized, ok
}

// IsTerminal reports whether no further records follow this stage.
func (s Stage) IsTerminal() bool {
	return s == StageComplete || s == StageFailed
}

// Record is the latest published state for one video. Records are immutable;
// a new publish replaces the prior record wholesale.
type Record struct {
	VideoID string `json:"video_id"`
	Stage   Stage  `json:"stage"`
	Message string `json:"message"`
	Percent int    `json:"percent"`
}
