// Package services holds helpers shared by reel's collaborator clients:
// sentinel error markers, stage-aware error wrapping, and context annotation
// for log correlation.
package services
