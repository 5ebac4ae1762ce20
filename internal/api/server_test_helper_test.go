package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"todo-mcp/go-backend/internal/domains/rpckit"
	"todo-mcp/go-backend/internal/domains/todo/usecase"
	"todo-mcp/go-backend/internal/platform/metrics"
	"todo-mcp/go-backend/internal/session"
	"todo-mcp/go-backend/internal/storage"
	"todo-mcp/go-backend/internal/uisnapshot"
)

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *rpckit.Error   `json:"error"`
}

type testEnv struct {
	server   *Server
	sessions *session.Manager
	metrics  *metrics.Collector
}

func newTestEnv(t *testing.T, mutate func(*Options)) *testEnv {
	t.Helper()
	svc := usecase.NewService(usecase.ServiceDeps{Store: storage.NewRecordStore()})
	collector := metrics.NewCollector("test")
	mgr := session.NewManager(svc, uisnapshot.NewRenderer(), session.Config{
		ServerName:      "todo-mcp",
		ServerVersion:   "test",
		AttachSnapshots: true,
		Metrics:         collector,
		RPCMetrics:      collector,
	})
	opts := Options{
		ServerName:        "todo-mcp",
		ServerVersion:     "test",
		KeepaliveInterval: time.Hour,
		Metrics:           collector,
	}
	if mutate != nil {
		mutate(&opts)
	}
	return &testEnv{server: NewServer(mgr, opts), sessions: mgr, metrics: collector}
}

func (e *testEnv) post(t *testing.T, sessionID, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/mcp", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	if sessionID != "" {
		req.Header.Set(sessionHeader, sessionID)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) handshake(t *testing.T) string {
	t.Helper()
	rec := e.post(t, "", `{"jsonrpc":"2.0","id":0,"method":"initialize","params":{"protocolVersion":"2025-03-26"}}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("initialize: expected 200, got %d", rec.Code)
	}
	id := rec.Header().Get(sessionHeader)
	if id == "" {
		t.Fatal("initialize did not return a session id")
	}
	return id
}

func decodeRPCResponse(t *testing.T, rec *httptest.ResponseRecorder) rpcResponse {
	t.Helper()
	var resp rpcResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode rpc response %q: %v", rec.Body.String(), err)
	}
	return resp
}

func openStream(t *testing.T, client *http.Client, baseURL, sessionID string) *http.Response {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/mcp", nil)
	if err != nil {
		t.Fatalf("new request failed: %v", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	if sessionID != "" {
		req.Header.Set(sessionHeader, sessionID)
	}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("stream request failed: %v", err)
	}
	return resp
}

func closeResponseBody(t *testing.T, resp *http.Response) {
	t.Helper()
	if resp == nil || resp.Body == nil {
		return
	}
	if err := resp.Body.Close(); err != nil {
		t.Errorf("close response body failed: %v", err)
	}
}

// readSSELine returns the first line accepted by match.
func readSSELine(body io.Reader, timeout time.Duration, match func(string) bool) (string, error) {
	result := make(chan string, 1)
	errCh := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(body)
		for scanner.Scan() {
			if line := scanner.Text(); match(line) {
				result <- line
				return
			}
		}
		if err := scanner.Err(); err != nil {
			errCh <- err
			return
		}
		errCh <- io.EOF
	}()
	select {
	case out := <-result:
		return out, nil
	case err := <-errCh:
		return "", err
	case <-time.After(timeout):
		return "", context.DeadlineExceeded
	}
}

func isDataLine(line string) bool { return strings.HasPrefix(line, "data: ") }

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}
