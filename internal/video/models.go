package video

import (
	"strings"
	"time"
)

// Status represents the persisted lifecycle of a video.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusReady      Status = "ready"
	StatusFailed     Status = "failed"
)

var allStatuses = []Status{
	StatusPending,
	StatusProcessing,
	StatusReady,
	StatusFailed,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// Video represents one journal entry persisted in SQLite.
type Video struct {
	ID          string
	Filename    string
	StoragePath string
	Title       string
	Tags        []string
	Transcript  string
	Summary     string
	Duration    float64
	Status      Status
	CreatedAt   time.Time
	ProcessedAt *time.Time
}

// Update describes a partial update applied by Store.Update. Nil fields are
// left untouched.
type Update struct {
	Title      *string
	Tags       *[]string
	Transcript *string
	Summary    *string
	Duration   *float64
	Status     *Status
}

// StatusPtr is a convenience for building Update values.
func StatusPtr(status Status) *Status {
	return &status
}

// StringPtr is a convenience for building Update values.
func StringPtr(value string) *string {
	return &value
}

// TagsPtr is a convenience for building Update values.
func TagsPtr(tags []string) *[]string {
	return &tags
}

// Float64Ptr is a convenience for building Update values.
func Float64Ptr(value float64) *float64 {
	return &value
}
