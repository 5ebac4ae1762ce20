package session

import (
	"errors"
	"sync"
	"time"

	"todo-mcp/go-backend/internal/adapters/rpc"
)

type State string

const (
	StateOpen   State = "open"
	StateActive State = "active"
	StateClosed State = "closed"
)

var ErrStreamAttached = errors.New("stream already attached to session")

var ErrSessionClosed = errors.New("session closed")

// Session owns one dispatcher and one outbound notification hub.
type Session struct {
	id         string
	dispatcher *rpc.Dispatcher
	hub        *Hub
	createdAt  time.Time

	mu       sync.Mutex
	state    State
	lastSeen time.Time
	streams  int
}

func (s *Session) ID() string { return s.id }

func (s *Session) Dispatcher() *rpc.Dispatcher { return s.dispatcher }

func (s *Session) CreatedAt() time.Time { return s.createdAt }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) HasStream() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streams > 0
}

// AttachStream subscribes the single streaming consumer allowed per session
// and hands it the events held while no stream was attached. release must be
// called once the consumer is gone.
func (s *Session) AttachStream() ([]Event, <-chan Event, func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return nil, nil, nil, ErrSessionClosed
	}
	if s.streams > 0 {
		return nil, nil, nil, ErrStreamAttached
	}
	s.streams++
	backlog, ch, detach := s.hub.Attach()
	var once sync.Once
	release := func() {
		once.Do(func() {
			detach()
			s.mu.Lock()
			s.streams--
			s.mu.Unlock()
		})
	}
	return backlog, ch, release, nil
}

func (s *Session) Notify(method string, params any) {
	s.hub.Publish(method, params)
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if now.After(s.lastSeen) {
		s.lastSeen = now
	}
}

func (s *Session) markActive() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateOpen {
		s.state = StateActive
	}
}

func (s *Session) close() {
	s.mu.Lock()
	s.state = StateClosed
	s.mu.Unlock()
	s.hub.Close()
}

func (s *Session) idleSince(now time.Time, ttl time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streams == 0 && now.Sub(s.lastSeen) >= ttl
}
