// Package session tracks protocol sessions. Each session owns a dispatcher
// and operation registry of its own; the record service behind them is
// shared by all sessions.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"todo-mcp/go-backend/internal/adapters/rpc"
	"todo-mcp/go-backend/internal/domains/todo/registry"
	"todo-mcp/go-backend/internal/domains/todo/usecase"
	"todo-mcp/go-backend/internal/uisnapshot"
)

const (
	CloseReasonClient = "client"
	CloseReasonStream = "stream_closed"
	CloseReasonIdle   = "idle"
	CloseReasonStop   = "shutdown"
)

var ErrSessionExists = errors.New("session already exists")

var ErrInvalidSessionID = errors.New("invalid session id")

type Metrics interface {
	SessionOpened()
	SessionClosed(reason string)
	SessionRecovered()
}

type Config struct {
	ServerName      string
	ServerVersion   string
	AttachSnapshots bool
	// IdleTTL of zero disables reaping.
	IdleTTL    time.Duration
	HubBacklog int
	Logger     *slog.Logger
	Metrics    Metrics
	RPCMetrics rpc.Metrics
	Now        func() time.Time
}

type Manager struct {
	service  *usecase.Service
	renderer *uisnapshot.Renderer
	cfg      Config
	logger   *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewManager(service *usecase.Service, renderer *uisnapshot.Renderer, cfg Config) *Manager {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.HubBacklog <= 0 {
		cfg.HubBacklog = 64
	}
	return &Manager{
		service:  service,
		renderer: renderer,
		cfg:      cfg,
		logger:   cfg.Logger,
		sessions: make(map[string]*Session),
	}
}

// Open registers a session under id, or under a fresh id when id is empty.
func (m *Manager) Open(id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.openLocked(id)
}

func (m *Manager) openLocked(id string) (*Session, error) {
	if id == "" {
		fresh, err := m.freshIDLocked()
		if err != nil {
			return nil, err
		}
		id = fresh
	} else if !WellFormedID(id) {
		return nil, ErrInvalidSessionID
	}
	if _, exists := m.sessions[id]; exists {
		return nil, fmt.Errorf("%w: %s", ErrSessionExists, id)
	}

	now := m.cfg.Now()
	s := &Session{
		id:        id,
		hub:       NewHub(m.cfg.HubBacklog),
		createdAt: now,
		state:     StateOpen,
		lastSeen:  now,
	}
	s.dispatcher = rpc.NewDispatcher(m.NewRegistry(), rpc.Options{
		ServerName:    m.cfg.ServerName,
		ServerVersion: m.cfg.ServerVersion,
		SessionID:     id,
		Logger:        m.logger,
		Metrics:       m.cfg.RPCMetrics,
		Hooks: rpc.Hooks{
			OnInitialized: s.markActive,
			OnOperation:   func(string) { s.markActive() },
		},
	})
	m.sessions[id] = s
	if m.cfg.Metrics != nil {
		m.cfg.Metrics.SessionOpened()
	}
	m.logger.Info("session opened", "session_id", id)
	return s, nil
}

func (m *Manager) freshIDLocked() (string, error) {
	for {
		id, err := NewID()
		if err != nil {
			return "", fmt.Errorf("generate session id: %w", err)
		}
		if _, taken := m.sessions[id]; !taken {
			return id, nil
		}
	}
}

// Resolve maps a presented id to a session. A known id always returns its
// session. A handshake with an absent or unknown id starts a new session
// under a fresh id. Any other call with an unknown id is recovered by opening
// a session implicitly, bound to the presented id when it is well-formed.
// The boolean reports whether a session was created.
func (m *Manager) Resolve(id string, isHandshake bool) (*Session, bool, error) {
	now := m.cfg.Now()
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if ok {
		s.touch(now)
		return s, false, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok {
		s.touch(now)
		return s, false, nil
	}
	if isHandshake {
		s, err := m.openLocked("")
		return s, err == nil, err
	}

	bindTo := ""
	if WellFormedID(id) {
		bindTo = id
	}
	s, err := m.openLocked(bindTo)
	if err != nil {
		return nil, false, err
	}
	m.logger.Warn("transport error recovered", "reason", "unknown session", "session_id", s.id, "presented", id != "")
	if m.cfg.Metrics != nil {
		m.cfg.Metrics.SessionRecovered()
	}
	return s, true, nil
}

func (m *Manager) Lookup(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Close purges the session registered under id. It reports false for
// unknown ids.
func (m *Manager) Close(id, reason string) bool {
	s, ok := m.Lookup(id)
	if !ok {
		return false
	}
	return m.CloseSession(s, reason)
}

// CloseSession purges s only while it is still the session registered under
// its id. A stale handle whose id was since recovered into a new session
// leaves the new session alone and reports false.
func (m *Manager) CloseSession(s *Session, reason string) bool {
	m.mu.Lock()
	current, ok := m.sessions[s.id]
	if !ok || current != s {
		m.mu.Unlock()
		return false
	}
	delete(m.sessions, s.id)
	m.mu.Unlock()

	s.close()
	if m.cfg.Metrics != nil {
		m.cfg.Metrics.SessionClosed(reason)
	}
	m.logger.Info("session closed", "session_id", s.id, "reason", reason, "lifetime_ms", m.cfg.Now().Sub(s.CreatedAt()).Milliseconds())
	return true
}

func (m *Manager) CloseAll(reason string) {
	for _, s := range m.snapshot() {
		m.CloseSession(s, reason)
	}
}

// Broadcast publishes a notification to every registered session.
func (m *Manager) Broadcast(method string, params any) {
	for _, s := range m.snapshot() {
		s.Notify(method, params)
	}
}

// RecordCount reports the size of the record store shared by all sessions.
func (m *Manager) RecordCount() int {
	return m.service.Count()
}

func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// ReapIdle closes sessions without an attached stream whose last activity is
// older than the idle TTL. It returns the number of closed sessions.
func (m *Manager) ReapIdle(now time.Time) int {
	if m.cfg.IdleTTL <= 0 {
		return 0
	}
	reaped := 0
	for _, s := range m.snapshot() {
		if s.idleSince(now, m.cfg.IdleTTL) && m.CloseSession(s, CloseReasonIdle) {
			reaped++
		}
	}
	return reaped
}

// Run reaps idle sessions until ctx is done, then closes every session.
func (m *Manager) Run(ctx context.Context) error {
	defer m.CloseAll(CloseReasonStop)
	if m.cfg.IdleTTL <= 0 {
		<-ctx.Done()
		return nil
	}
	interval := m.cfg.IdleTTL / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if n := m.ReapIdle(m.cfg.Now()); n > 0 {
				m.logger.Info("idle sessions reaped", "count", n)
			}
		}
	}
}

// NewRegistry builds an operation registry over the shared service whose
// mutations are announced to every session.
func (m *Manager) NewRegistry() *registry.Registry {
	return registry.New(m.service, m.renderer, registry.Options{
		AttachSnapshots: m.cfg.AttachSnapshots,
		OnMutation:      m.NotifyMutation,
	})
}

// NotifyMutation broadcasts a resource update after a committed mutation.
func (m *Manager) NotifyMutation(operation string) {
	m.logger.Debug("records mutated", "operation", operation)
	m.Broadcast(rpc.MethodResourceUpdated, rpc.ResourceUpdatedParams{URI: uisnapshot.ResourceURI})
}

func (m *Manager) snapshot() []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	return out
}
