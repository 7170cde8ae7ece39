// Package progress tracks in-flight processing state for videos and fans it
// out to live observers.
//
// The Hub keeps the latest Record per video plus a set of bounded subscriber
// channels. Publishing never blocks: a subscriber that falls behind simply
// misses records until it catches up. State lives in process memory only;
// a restart forgets everything, which is fine because the persisted video
// status remains the source of truth.
package progress
