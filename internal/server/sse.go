package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"reel/internal/logging"
)

type sseEvent struct {
	Type    string `json:"type"`
	VideoID string `json:"video_id,omitempty"`
}

// sseProgressEvent always carries stage, message, and percent, even when
// a value is zero: observers key off percent for the failed@0 record.
type sseProgressEvent struct {
	Type    string `json:"type"`
	Stage   string `json:"stage"`
	Message string `json:"message"`
	Percent int    `json:"percent"`
}

// handleProgressStream streams progress records for one video as
// server-sent events. The subscription replays the latest record, then the
// stream follows live updates until a terminal stage, the client hanging
// up, or the hub being cleared underneath a keepalive-only connection.
func (s *Server) handleProgressStream(w http.ResponseWriter, r *http.Request, videoID string) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	sub := s.hub.Subscribe(videoID)
	defer s.hub.Unsubscribe(videoID, sub)

	writeEvent := func(event any) bool {
		encoded, err := json.Marshal(event)
		if err != nil {
			s.logger.Error("encode sse event", logging.Error(err))
			return false
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", encoded); err != nil {
			return false
		}
		flusher.Flush()
		return true
	}

	if !writeEvent(sseEvent{Type: "connected", VideoID: videoID}) {
		return
	}

	keepalive := time.NewTimer(s.keepalive)
	defer keepalive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case record := <-sub.C:
			if !writeEvent(sseProgressEvent{
				Type:    "progress",
				Stage:   string(record.Stage),
				Message: record.Message,
				Percent: record.Percent,
			}) {
				return
			}
			if record.Stage.IsTerminal() {
				return
			}
		case <-keepalive.C:
			if !writeEvent(sseEvent{Type: "keepalive"}) {
				return
			}
		}
		if !keepalive.Stop() {
			select {
			case <-keepalive.C:
			default:
			}
		}
		keepalive.Reset(s.keepalive)
	}
}
