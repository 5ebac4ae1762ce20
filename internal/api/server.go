// Package api exposes the session manager over HTTP: a call/response binding
// and an event-stream binding on /mcp, a REST convenience binding on
// /api/tools, and health and metrics endpoints.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"todo-mcp/go-backend/internal/platform/metrics"
	"todo-mcp/go-backend/internal/platform/ratelimiter"
	"todo-mcp/go-backend/internal/session"

	"golang.org/x/sync/errgroup"
)

const (
	DefaultAddr = "127.0.0.1:3001"

	sessionHeader   = "Mcp-Session-Id"
	maxBodyBytes    = 1 << 20
	shutdownTimeout = 5 * time.Second
)

type RateLimitOptions struct {
	Enabled bool
	RPS     float64
	Burst   int
}

type Options struct {
	Addr               string
	AllowedOrigins     []string
	KeepaliveInterval  time.Duration
	StreamMaxGlobal    int
	StreamMaxPerClient int
	RateLimit          RateLimitOptions
	ServerName         string
	ServerVersion      string
	Logger             *slog.Logger
	// Metrics may be nil; /metrics is then not served.
	Metrics *metrics.Collector
	Now     func() time.Time
}

type Server struct {
	opts       Options
	sessions   *session.Manager
	httpServer *http.Server
	logger     *slog.Logger
	metrics    *metrics.Collector
	limiter    *ratelimiter.MapLimiter
	streams    *streamLimiter
	idem       *idempotencyCache

	baseCtx    context.Context
	cancelBase context.CancelFunc
}

func NewServer(sessions *session.Manager, opts Options) *Server {
	if opts.Addr == "" {
		opts.Addr = DefaultAddr
	}
	if opts.KeepaliveInterval <= 0 {
		opts.KeepaliveInterval = 30 * time.Second
	}
	if opts.StreamMaxGlobal <= 0 {
		opts.StreamMaxGlobal = 128
	}
	if opts.StreamMaxPerClient <= 0 {
		opts.StreamMaxPerClient = 8
	}
	if opts.ServerName == "" {
		opts.ServerName = "todo-mcp"
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		opts:     opts,
		sessions: sessions,
		logger:   logger,
		metrics:  opts.Metrics,
		streams:  newStreamLimiter(opts.StreamMaxGlobal, opts.StreamMaxPerClient),
		idem:     newIdempotencyCache(),
	}
	if opts.RateLimit.Enabled {
		s.limiter = ratelimiter.New(opts.RateLimit.RPS, opts.RateLimit.Burst, 10*time.Minute)
	}
	s.baseCtx, s.cancelBase = context.WithCancel(context.Background())
	s.httpServer = &http.Server{
		Addr:              opts.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return s.baseCtx },
	}
	return s
}

// Handler returns the route table. It is safe to mount in tests without Run.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/mcp", s.metrics.InstrumentHandler("/mcp", http.HandlerFunc(s.handleMCP)))
	mux.Handle("/api/tools", s.metrics.InstrumentHandler("/api/tools", http.HandlerFunc(s.handleToolList)))
	mux.Handle("/api/tools/", s.metrics.InstrumentHandler("/api/tools/{name}", http.HandlerFunc(s.handleToolCall)))
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/", s.handleRoot)
	if s.metrics != nil {
		mux.Handle("/metrics", s.metrics.Handler())
	}
	return mux
}

// Run serves HTTP and reaps idle sessions until ctx is cancelled, then shuts
// the listener down and closes every session.
func (s *Server) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("http listening", "addr", s.opts.Addr)
		err := s.httpServer.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-gctx.Done()
		s.cancelBase()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		return s.sessions.Run(gctx)
	})
	return g.Wait()
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if s.preflight(w, r) {
		return
	}
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"name":    s.opts.ServerName,
		"version": s.opts.ServerVersion,
		"status":  "running",
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.preflight(w, r) {
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": s.opts.Now().UTC().Format(time.RFC3339Nano),
		"sessions":  s.sessions.Count(),
		"records":   s.sessions.RecordCount(),
	})
}

// allow applies the per-client rate limit and writes 429 when exceeded.
func (s *Server) allow(w http.ResponseWriter, r *http.Request, route string) bool {
	ok, retryAfter := s.limiter.Allow(clientKey(r), s.opts.Now())
	if ok {
		return true
	}
	s.metrics.RateLimited(route)
	secs := int(retryAfter.Round(time.Second) / time.Second)
	if secs < 1 {
		secs = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(secs))
	http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
	return false
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
