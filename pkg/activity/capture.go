package activity

import (
	"context"
	"sync"
)

// CaptureHook keeps every event it sees. Tests read Events directly once the
// launch is done; Err, when set, is returned from each Notify.
type CaptureHook struct {
	mu     sync.Mutex
	Events []Event
	Err    error
}

// Notify stores a normalized copy of event.
func (h *CaptureHook) Notify(_ context.Context, event Event) error {
	h.mu.Lock()
	h.Events = append(h.Events, NormalizeEvent(event))
	err := h.Err
	h.mu.Unlock()
	return err
}

// Verbs lists the captured verbs in arrival order.
func (h *CaptureHook) Verbs() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, len(h.Events))
	for i := range h.Events {
		out[i] = h.Events[i].Verb
	}
	return out
}

// Find returns the first captured event with the given verb.
func (h *CaptureHook) Find(verb string) (Event, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, event := range h.Events {
		if event.Verb == verb {
			return event, true
		}
	}
	return Event{}, false
}
