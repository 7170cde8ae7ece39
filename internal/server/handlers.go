package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"reel/internal/logging"
	"reel/internal/services"
	"reel/internal/video"
)

type videoPayload struct {
	ID          string     `json:"id"`
	Filename    string     `json:"filename"`
	StoragePath string     `json:"storage_path"`
	Title       string     `json:"title,omitempty"`
	Tags        []string   `json:"tags"`
	Transcript  string     `json:"transcript,omitempty"`
	Summary     string     `json:"summary,omitempty"`
	Duration    float64    `json:"duration"`
	Status      string     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
}

func toPayload(vid *video.Video, includeTranscript bool) videoPayload {
	payload := videoPayload{
		ID:          vid.ID,
		Filename:    vid.Filename,
		StoragePath: vid.StoragePath,
		Title:       vid.Title,
		Tags:        vid.Tags,
		Summary:     vid.Summary,
		Duration:    vid.Duration,
		Status:      string(vid.Status),
		CreatedAt:   vid.CreatedAt,
		ProcessedAt: vid.ProcessedAt,
	}
	if payload.Tags == nil {
		payload.Tags = []string{}
	}
	if includeTranscript {
		payload.Transcript = vid.Transcript
	}
	return payload
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	counts, err := s.store.CountByStatus(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	byStatus := make(map[string]int, len(counts))
	for status, count := range counts {
		byStatus[string(status)] = count
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"running":  true,
		"pid":      os.Getpid(),
		"database": s.store.Path(),
		"videos":   byStatus,
	})
}

func (s *Server) handleVideos(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleList(w, r)
	case http.MethodPost:
		s.handleCreate(w, r)
	default:
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	var status video.Status
	if raw := strings.TrimSpace(query.Get("status")); raw != "" {
		parsed, ok := video.ParseStatus(raw)
		if !ok {
			s.writeError(w, http.StatusBadRequest, "unknown status "+raw)
			return
		}
		status = parsed
	}
	limit := 0
	if raw := strings.TrimSpace(query.Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			s.writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = parsed
	}

	videos, err := s.store.List(r.Context(), status, query.Get("tag"), limit)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	items := make([]videoPayload, 0, len(videos))
	for _, vid := range videos {
		items = append(items, toPayload(vid, false))
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"videos": items, "total": len(items)})
}

type createRequest struct {
	Filename    string  `json:"filename"`
	StoragePath string  `json:"storage_path"`
	Duration    float64 `json:"duration"`
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	created, err := s.store.Create(r.Context(), req.Filename, req.StoragePath, req.Duration)
	if err != nil {
		if errors.Is(err, services.ErrValidation) {
			s.writeError(w, http.StatusBadRequest, services.Message(err))
			return
		}
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusCreated, toPayload(created, true))
}

// handleVideoSubtree routes /api/videos/{id}[/...] paths.
func (s *Server) handleVideoSubtree(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/videos/")
	if rest == "tags" {
		s.handleTags(w, r)
		return
	}
	parts := strings.Split(rest, "/")
	videoID := parts[0]
	if videoID == "" {
		s.writeError(w, http.StatusNotFound, "video not found")
		return
	}
	switch {
	case len(parts) == 1:
		s.handleVideo(w, r, videoID)
	case len(parts) == 2 && parts[1] == "process":
		s.handleProcess(w, r, videoID)
	case len(parts) == 2 && parts[1] == "progress":
		s.handleProgressStream(w, r, videoID)
	case len(parts) == 3 && parts[1] == "progress" && parts[2] == "current":
		s.handleProgressCurrent(w, r, videoID)
	case len(parts) == 2 && parts[1] == "content":
		s.handleContent(w, r, videoID)
	default:
		s.writeError(w, http.StatusNotFound, "not found")
	}
}

func (s *Server) handleTags(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	tags, err := s.store.AllTags(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if tags == nil {
		tags = []string{}
	}
	s.writeJSON(w, http.StatusOK, map[string][]string{"tags": tags})
}

func (s *Server) handleVideo(w http.ResponseWriter, r *http.Request, videoID string) {
	switch r.Method {
	case http.MethodGet:
		vid, err := s.store.GetByID(r.Context(), videoID)
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if vid == nil {
			s.writeError(w, http.StatusNotFound, "video not found")
			return
		}
		s.writeJSON(w, http.StatusOK, toPayload(vid, true))
	case http.MethodDelete:
		s.handleDelete(w, r, videoID)
	default:
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request, videoID string) {
	vid, err := s.store.GetByID(r.Context(), videoID)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if vid == nil {
		s.writeError(w, http.StatusNotFound, "video not found")
		return
	}
	// Storage removal is best-effort; a dangling file must not block the
	// record delete.
	if vid.StoragePath != "" {
		if err := s.artifacts.Remove(vid.StoragePath); err != nil {
			s.logger.Warn("remove stored artifact",
				logging.String(logging.FieldVideoID, videoID),
				logging.Error(err))
		}
	}
	deleted, err := s.store.Delete(r.Context(), videoID)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !deleted {
		s.writeError(w, http.StatusNotFound, "video not found")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"message": "Video deleted", "video_id": videoID})
}

func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request, videoID string) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	alreadyRunning, err := s.starter.Start(r.Context(), videoID)
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "video not found")
			return
		}
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	message := "Processing started"
	if alreadyRunning {
		message = "Video is already being processed"
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"message":         message,
		"video_id":        videoID,
		"already_running": alreadyRunning,
	})
}

func (s *Server) handleProgressCurrent(w http.ResponseWriter, r *http.Request, videoID string) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	record, ok := s.hub.Latest(videoID)
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	s.writeJSON(w, http.StatusOK, record)
}

func (s *Server) handleContent(w http.ResponseWriter, r *http.Request, videoID string) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	vid, err := s.store.GetByID(r.Context(), videoID)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if vid == nil {
		s.writeError(w, http.StatusNotFound, "video not found")
		return
	}
	reader, _, err := s.artifacts.Open(vid.StoragePath)
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "video content not found")
			return
		}
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer func() { _ = reader.Close() }()
	w.Header().Set("Content-Type", "video/mp4")
	http.ServeContent(w, r, vid.Filename, vid.CreatedAt, reader)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
