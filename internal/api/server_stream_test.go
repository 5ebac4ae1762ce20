package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"todo-mcp/go-backend/internal/adapters/rpc"
	"todo-mcp/go-backend/internal/uisnapshot"

	"go.uber.org/goleak"
)

func TestStreamWritesKeepaliveComments(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	e := newTestEnv(t, func(o *Options) { o.KeepaliveInterval = 20 * time.Millisecond })
	ts := httptest.NewServer(e.server.Handler())
	defer ts.Close()

	resp := openStream(t, ts.Client(), ts.URL, "")
	defer closeResponseBody(t, resp)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("unexpected content type %q", ct)
	}
	if resp.Header.Get(sessionHeader) == "" {
		t.Fatal("stream must carry a session id")
	}

	line, err := readSSELine(resp.Body, 2*time.Second, func(l string) bool { return l == ": keepalive" })
	if err != nil {
		t.Fatalf("keepalive not received: %v", err)
	}
	if line != ": keepalive" {
		t.Fatalf("unexpected line %q", line)
	}
}

func TestStreamDisconnectClosesSession(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	e := newTestEnv(t, func(o *Options) { o.KeepaliveInterval = 10 * time.Millisecond })
	ts := httptest.NewServer(e.server.Handler())
	defer ts.Close()

	id := e.handshake(t)
	resp := openStream(t, ts.Client(), ts.URL, id)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	waitFor(t, func() bool {
		sess, ok := e.sessions.Lookup(id)
		return ok && sess.HasStream()
	})

	closeResponseBody(t, resp)
	waitFor(t, func() bool {
		_, ok := e.sessions.Lookup(id)
		return !ok
	})
}

func TestSecondStreamOnSessionIsRejected(t *testing.T) {
	e := newTestEnv(t, nil)
	ts := httptest.NewServer(e.server.Handler())
	defer ts.Close()

	id := e.handshake(t)
	first := openStream(t, ts.Client(), ts.URL, id)
	defer closeResponseBody(t, first)
	waitFor(t, func() bool {
		sess, ok := e.sessions.Lookup(id)
		return ok && sess.HasStream()
	})

	second := openStream(t, ts.Client(), ts.URL, id)
	defer closeResponseBody(t, second)
	if second.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d", second.StatusCode)
	}
}

func TestStreamForwardsResourceUpdates(t *testing.T) {
	e := newTestEnv(t, nil)
	ts := httptest.NewServer(e.server.Handler())
	defer ts.Close()

	watcher := e.handshake(t)
	resp := openStream(t, ts.Client(), ts.URL, watcher)
	defer closeResponseBody(t, resp)
	waitFor(t, func() bool {
		sess, ok := e.sessions.Lookup(watcher)
		return ok && sess.HasStream()
	})

	writer := e.handshake(t)
	e.post(t, writer, `{"jsonrpc":"2.0","id":1,"method":"create_record","params":{"title":"pushed"}}`)

	line, err := readSSELine(resp.Body, 2*time.Second, isDataLine)
	if err != nil {
		t.Fatalf("read sse failed: %v", err)
	}
	var notification struct {
		JSONRPC string                    `json:"jsonrpc"`
		Method  string                    `json:"method"`
		Params  rpc.ResourceUpdatedParams `json:"params"`
	}
	if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &notification); err != nil {
		t.Fatalf("decode notification failed: %v", err)
	}
	if notification.Method != rpc.MethodResourceUpdated || notification.Params.URI != uisnapshot.ResourceURI {
		t.Fatalf("unexpected notification %+v", notification)
	}
}

func TestStreamLimiterCapsPerClient(t *testing.T) {
	e := newTestEnv(t, func(o *Options) { o.StreamMaxPerClient = 1 })
	ts := httptest.NewServer(e.server.Handler())
	defer ts.Close()

	first := openStream(t, ts.Client(), ts.URL, "")
	defer closeResponseBody(t, first)
	if first.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", first.StatusCode)
	}
	second := openStream(t, ts.Client(), ts.URL, "")
	defer closeResponseBody(t, second)
	if second.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", second.StatusCode)
	}
}

// stallingWriter blocks the first body write until release is closed.
type stallingWriter struct {
	header  http.Header
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func newStallingWriter() *stallingWriter {
	return &stallingWriter{
		header:  make(http.Header),
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
}

func (w *stallingWriter) Header() http.Header { return w.header }

func (w *stallingWriter) WriteHeader(int) {}

func (w *stallingWriter) Write(p []byte) (int, error) {
	w.once.Do(func() { close(w.entered) })
	<-w.release
	return len(p), nil
}

func (w *stallingWriter) Flush() {}

func TestLaggingStreamDetachesWithoutClosingSession(t *testing.T) {
	e := newTestEnv(t, nil)
	id := e.handshake(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/mcp", nil).WithContext(ctx)
	req.Header.Set(sessionHeader, id)
	w := newStallingWriter()
	done := make(chan struct{})
	go func() {
		defer close(done)
		e.server.Handler().ServeHTTP(w, req)
	}()

	sess, ok := e.sessions.Lookup(id)
	if !ok {
		t.Fatal("session missing")
	}
	waitFor(t, sess.HasStream)
	sess.Notify("first", nil)
	<-w.entered
	for i := 0; i < 200; i++ {
		sess.Notify("flood", i)
	}
	close(w.release)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("lagging stream was not detached")
	}
	current, ok := e.sessions.Lookup(id)
	if !ok || current != sess {
		t.Fatal("server-side detach must keep the session registered")
	}
	if sess.HasStream() {
		t.Fatal("stream must be released")
	}
	if sess.State() == "closed" {
		t.Fatal("session must stay usable")
	}
}

func TestStaleStreamDoesNotCloseRecoveredSession(t *testing.T) {
	e := newTestEnv(t, nil)
	ts := httptest.NewServer(e.server.Handler())
	defer ts.Close()

	id := e.handshake(t)
	resp := openStream(t, ts.Client(), ts.URL, id)
	defer closeResponseBody(t, resp)
	old, _ := e.sessions.Lookup(id)
	waitFor(t, old.HasStream)

	del := httptest.NewRequest(http.MethodDelete, "/mcp", nil)
	del.Header.Set(sessionHeader, id)
	rec := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rec, del)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	e.post(t, id, `{"jsonrpc":"2.0","id":1,"method":"ping"}`)
	recovered, ok := e.sessions.Lookup(id)
	if !ok || recovered == old {
		t.Fatal("expected a recovered session under the same id")
	}

	closeResponseBody(t, resp)
	waitFor(t, func() bool { return !old.HasStream() })
	time.Sleep(20 * time.Millisecond)
	current, ok := e.sessions.Lookup(id)
	if !ok || current != recovered {
		t.Fatal("stale stream cleanup must leave the recovered session registered")
	}
}
