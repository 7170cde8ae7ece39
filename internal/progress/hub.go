package progress

import "sync"

// DefaultSubscriberBuffer is the per-subscriber channel capacity when the
// caller does not override it.
const DefaultSubscriberBuffer = 10

// Subscription is a live observer registration for one video. Read records
// from C; hand the subscription back to Hub.Unsubscribe when done.
type Subscription struct {
	C chan Record

	videoID string
}

// VideoID reports which video this subscription observes.
func (s *Subscription) VideoID() string {
	if s == nil {
		return ""
	}
	return s.videoID
}

// Hub is the process-wide progress registry. The zero value is not usable;
// construct with NewHub and inject the instance wherever it is needed.
type Hub struct {
	mu          sync.Mutex
	buffer      int
	latest      map[string]Record
	subscribers map[string][]*Subscription
}

// NewHub constructs a Hub whose subscriber channels buffer the given number
// of pending records. Values below one fall back to DefaultSubscriberBuffer.
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = DefaultSubscriberBuffer
	}
	return &Hub{
		buffer:      buffer,
		latest:      make(map[string]Record),
		subscribers: make(map[string][]*Subscription),
	}
}

// Publish stores the record as the latest for the video and delivers it to
// every current subscriber. Delivery is best-effort: a full subscriber
// channel drops the record for that subscriber only. Publish never blocks.
func (h *Hub) Publish(videoID string, stage Stage, message string, percent int) {
	record := Record{
		VideoID: videoID,
		Stage:   stage,
		Message: message,
		Percent: percent,
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.latest[videoID] = record
	for _, sub := range h.subscribers[videoID] {
		select {
		case sub.C <- record:
		default:
		}
	}
}

// Latest returns the most recently published record for the video.
func (h *Hub) Latest(videoID string) (Record, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	record, ok := h.latest[videoID]
	return record, ok
}

// Clear removes the latest-record entry for the video. Clearing a video
// without a record is a no-op.
func (h *Hub) Clear(videoID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.latest, videoID)
}

// Subscribe registers a new observer for the video. When a latest record
// already exists it is queued immediately so late subscribers see current
// state without waiting for the next publish. The replay happens under the
// same lock as registration so a concurrent publish cannot land before it.
func (h *Hub) Subscribe(videoID string) *Subscription {
	sub := &Subscription{
		C:       make(chan Record, h.buffer),
		videoID: videoID,
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.subscribers[videoID] = append(h.subscribers[videoID], sub)
	if record, ok := h.latest[videoID]; ok {
		sub.C <- record
	}
	return sub
}

// Unsubscribe removes the subscription from the video's observer set and
// drops the set entirely once empty. Unsubscribing twice is a no-op.
func (h *Hub) Unsubscribe(videoID string, sub *Subscription) {
	if sub == nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	subs := h.subscribers[videoID]
	for i, candidate := range subs {
		if candidate == sub {
			subs = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	if len(subs) == 0 {
		delete(h.subscribers, videoID)
		return
	}
	h.subscribers[videoID] = subs
}

// SubscriberCount reports how many observers are registered for the video.
func (h *Hub) SubscriberCount(videoID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers[videoID])
}
