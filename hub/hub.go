// Package hub fans transcript events out to any number of passive
// listeners. Publishing never blocks: a listener that cannot keep up is
// dropped from the registry instead of stalling the pipeline.
package hub

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
)

// Event is one transcript update on the wire. Partial and Final are
// pointers so an explicitly empty transcript still serializes, unlike an
// absent one.
type Event struct {
	TS      float64 `json:"ts"`
	Partial *string `json:"partial,omitempty"`
	Final   *string `json:"final,omitempty"`
	Status  string  `json:"status,omitempty"`
}

func now() float64 {
	return float64(time.Now().UnixNano()) / float64(time.Second)
}

// PartialEvent carries a fresh partial alongside the current final.
func PartialEvent(partial, final string) Event {
	return Event{TS: now(), Partial: &partial, Final: &final}
}

// FinalEvent carries only an updated final transcript.
func FinalEvent(final string) Event {
	return Event{TS: now(), Final: &final}
}

// StatusEvent carries a bare status marker.
func StatusEvent(status string) Event {
	return Event{TS: now(), Status: status}
}

// StartedEvent announces a fresh session with both transcripts cleared.
func StartedEvent() Event {
	empty := ""
	return Event{TS: now(), Status: "started", Partial: &empty, Final: &empty}
}

// listenerBuffer is the per-listener channel depth. A listener this far
// behind the publisher is considered dead.
const listenerBuffer = 64

type Listener struct {
	ID string
	C  chan []byte
}

type Hub struct {
	mu        sync.Mutex
	listeners map[string]*Listener
	logger    *log.Logger
}

func New(logger *log.Logger) *Hub {
	return &Hub{
		listeners: make(map[string]*Listener),
		logger:    logger,
	}
}

// Register creates a listener and adds it to the registry.
func (h *Hub) Register() *Listener {
	l := &Listener{
		ID: uuid.NewString(),
		C:  make(chan []byte, listenerBuffer),
	}
	h.mu.Lock()
	h.listeners[l.ID] = l
	h.mu.Unlock()
	h.logger.Debug("listener registered", "id", l.ID)
	return l
}

// Remove discards a listener. Safe to call more than once; only the first
// call finds anything to delete.
func (h *Hub) Remove(l *Listener) {
	h.mu.Lock()
	_, present := h.listeners[l.ID]
	delete(h.listeners, l.ID)
	h.mu.Unlock()
	if present {
		h.logger.Debug("listener removed", "id", l.ID)
	}
}

// Publish serializes the event once and pushes it to every listener. A
// listener with a full channel is pruned rather than waited on.
func (h *Hub) Publish(ev Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error("marshal event", "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for id, l := range h.listeners {
		select {
		case l.C <- payload:
		default:
			delete(h.listeners, id)
			h.logger.Warn("listener lagging, dropped", "id", id)
		}
	}
}

// Len reports the number of live listeners.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.listeners)
}
