package session

import (
	"sync"
	"time"
)

const streamBuffer = 128

type Event struct {
	Seq       int64
	Method    string
	Params    any
	Timestamp time.Time
}

// Hub is the outbound mailbox of one session. Events published while no
// stream is attached are held, up to limit, and handed over on the next
// Attach. An attached stream that falls more than streamBuffer events behind
// is detached; the event that overflowed goes back to the mailbox.
type Hub struct {
	mu      sync.Mutex
	nextSeq int64
	limit   int
	pending []Event
	dropped int
	stream  chan Event
	closed  bool
}

func NewHub(limit int) *Hub {
	if limit < 1 {
		limit = 1
	}
	return &Hub{limit: limit}
}

func (h *Hub) Publish(method string, params any) Event {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextSeq++
	event := Event{
		Seq:       h.nextSeq,
		Method:    method,
		Params:    params,
		Timestamp: time.Now().UTC(),
	}
	if h.closed {
		return event
	}
	if h.stream != nil {
		select {
		case h.stream <- event:
			return event
		default:
			close(h.stream)
			h.stream = nil
		}
	}
	h.hold(event)
	return event
}

func (h *Hub) hold(event Event) {
	h.pending = append(h.pending, event)
	if over := len(h.pending) - h.limit; over > 0 {
		h.pending = append([]Event(nil), h.pending[over:]...)
		h.dropped += over
	}
}

// Attach drains the mailbox and starts live delivery on the returned channel.
// The channel is closed by detach, by Close, or when the stream lags.
func (h *Hub) Attach() ([]Event, <-chan Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan Event, streamBuffer)
	backlog := h.pending
	h.pending = nil
	if h.closed {
		close(ch)
		return backlog, ch, func() {}
	}
	if h.stream != nil {
		close(h.stream)
	}
	h.stream = ch

	detach := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if h.stream == ch {
			close(ch)
			h.stream = nil
		}
	}
	return backlog, ch, detach
}

func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	h.pending = nil
	if h.stream != nil {
		close(h.stream)
		h.stream = nil
	}
}

// Pending reports events waiting for a stream and how many were discarded
// because the mailbox was full.
func (h *Hub) Pending() (waiting, dropped int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.pending), h.dropped
}
