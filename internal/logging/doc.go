// Package logging configures slog for reel and provides attribute helpers
// shared across the daemon, pipeline, and HTTP surfaces.
//
// Field name constants keep log correlation consistent: every record emitted
// while processing a video carries video_id, stage, and request_id attrs so
// one pipeline run can be traced end to end.
package logging
