package assessment

import "sync"

// ProgressEvent is fanned out to websocket subscribers while a run is in
// flight.
type ProgressEvent struct {
	AssessmentID string `json:"assessment_id"`
	Processed    int    `json:"processed"`
	Total        int    `json:"total"`
	Progress     int    `json:"progress"`
	Status       string `json:"status"`
}

// ProgressHub is an in-process pub/sub for run progress. Slow subscribers
// lose intermediate events rather than blocking the run.
type ProgressHub struct {
	mu   sync.Mutex
	subs map[string]map[chan ProgressEvent]struct{}
}

func NewProgressHub() *ProgressHub {
	return &ProgressHub{
		subs: make(map[string]map[chan ProgressEvent]struct{}),
	}
}

func (h *ProgressHub) Subscribe(assessmentID string) chan ProgressEvent {
	ch := make(chan ProgressEvent, 16)
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subs[assessmentID] == nil {
		h.subs[assessmentID] = make(map[chan ProgressEvent]struct{})
	}
	h.subs[assessmentID][ch] = struct{}{}
	return ch
}

func (h *ProgressHub) Unsubscribe(assessmentID string, ch chan ProgressEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if set, ok := h.subs[assessmentID]; ok {
		delete(set, ch)
		if len(set) == 0 {
			delete(h.subs, assessmentID)
		}
	}
}

func (h *ProgressHub) Publish(event ProgressEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs[event.AssessmentID] {
		select {
		case ch <- event:
		default:
		}
	}
}
