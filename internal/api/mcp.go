package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"todo-mcp/go-backend/internal/adapters/rpc"
	"todo-mcp/go-backend/internal/domains/rpckit"
	"todo-mcp/go-backend/internal/session"
)

func (s *Server) handleMCP(w http.ResponseWriter, r *http.Request) {
	if s.preflight(w, r) {
		return
	}
	switch r.Method {
	case http.MethodPost:
		s.handleCall(w, r)
	case http.MethodGet:
		s.handleStream(w, r)
	case http.MethodDelete:
		s.handleTerminate(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleCall is the call/response binding: one JSON-RPC payload in, one
// payload out, correlated by the session header.
func (s *Server) handleCall(w http.ResponseWriter, r *http.Request) {
	if !s.allow(w, r, "/mcp") {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, "read request body failed", http.StatusBadRequest)
		return
	}

	presented := strings.TrimSpace(r.Header.Get(sessionHeader))
	if !json.Valid(body) {
		if presented != "" {
			w.Header().Set(sessionHeader, presented)
		}
		writeRPCPayload(w, encodeProtocolError(rpckit.ParseError()))
		return
	}

	sess, _, err := s.sessions.Resolve(presented, rpc.ContainsHandshake(body))
	if err != nil {
		s.logger.Error("session resolve failed", "error", err)
		http.Error(w, "session unavailable", http.StatusInternalServerError)
		return
	}
	w.Header().Set(sessionHeader, sess.ID())

	cacheKey := idempotencyCacheKey(sess.ID(), r.Header.Get(idempotencyHeader))
	if cacheKey != "" {
		entry, claimed, conflict := s.idem.claim(cacheKey, hashBody(body), s.opts.Now())
		if conflict {
			http.Error(w, "idempotency key reused with a different body", http.StatusConflict)
			return
		}
		if !claimed {
			select {
			case <-entry.done:
			case <-r.Context().Done():
				return
			}
			w.Header().Set("Idempotent-Replay", "true")
			writeCallResponse(w, entry.status, entry.response)
			return
		}
		out, status := s.dispatch(r, sess, body)
		s.idem.settle(entry, status, out)
		writeCallResponse(w, status, out)
		return
	}

	out, status := s.dispatch(r, sess, body)
	writeCallResponse(w, status, out)
}

func (s *Server) dispatch(r *http.Request, sess *session.Session, body []byte) ([]byte, int) {
	out, hasResponse := sess.Dispatcher().HandlePayload(r.Context(), body)
	if !hasResponse {
		return nil, http.StatusAccepted
	}
	return out, http.StatusOK
}

func writeCallResponse(w http.ResponseWriter, status int, payload []byte) {
	if status == http.StatusAccepted {
		w.WriteHeader(http.StatusAccepted)
		return
	}
	writeRPCPayload(w, payload)
}

// handleStream is the event-stream binding. A client disconnect ends the
// session. A stream the server drops for lagging, or one whose session was
// terminated, only detaches; the client may attach again.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming is not supported", http.StatusInternalServerError)
		return
	}
	release, allowed := s.streams.acquire(clientKey(r))
	if !allowed {
		http.Error(w, "too many stream subscriptions", http.StatusTooManyRequests)
		return
	}
	defer release()

	presented := strings.TrimSpace(r.Header.Get(sessionHeader))
	sess, _, err := s.sessions.Resolve(presented, presented == "")
	if err != nil {
		s.logger.Error("session resolve failed", "error", err)
		http.Error(w, "session unavailable", http.StatusInternalServerError)
		return
	}
	backlog, events, detach, err := sess.AttachStream()
	switch {
	case errors.Is(err, session.ErrStreamAttached):
		http.Error(w, "session already has an attached stream", http.StatusConflict)
		return
	case err != nil:
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	s.metrics.StreamOpened()
	clientGone := true
	defer func() {
		detach()
		s.metrics.StreamClosed()
		if clientGone {
			s.sessions.CloseSession(sess, session.CloseReasonStream)
		}
	}()

	w.Header().Set(sessionHeader, sess.ID())
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
	s.logger.Info("stream attached", "session_id", sess.ID(), "backlog", len(backlog))

	for _, evt := range backlog {
		if err := writeSSEEvent(w, evt); err != nil {
			return
		}
	}
	flusher.Flush()

	keepalive := time.NewTicker(s.opts.KeepaliveInterval)
	defer keepalive.Stop()
	for {
		select {
		case <-r.Context().Done():
			s.logger.Info("stream disconnected", "session_id", sess.ID())
			return
		case evt, ok := <-events:
			if !ok {
				clientGone = false
				s.logger.Warn("stream detached", "session_id", sess.ID(), "session_state", string(sess.State()))
				return
			}
			if err := writeSSEEvent(w, evt); err != nil {
				return
			}
			flusher.Flush()
		case <-keepalive.C:
			if _, err := io.WriteString(w, ": keepalive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func (s *Server) handleTerminate(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.Header.Get(sessionHeader))
	if id == "" {
		http.Error(w, "missing "+sessionHeader+" header", http.StatusBadRequest)
		return
	}
	if !s.sessions.Close(id, session.CloseReasonClient) {
		http.Error(w, "unknown session", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeSSEEvent(w io.Writer, evt session.Event) error {
	data, err := json.Marshal(struct {
		JSONRPC string `json:"jsonrpc"`
		Method  string `json:"method"`
		Params  any    `json:"params,omitempty"`
	}{JSONRPC: "2.0", Method: evt.Method, Params: evt.Params})
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "id: %d\ndata: %s\n\n", evt.Seq, data)
	return err
}

func writeRPCPayload(w http.ResponseWriter, payload []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(payload)
}

func encodeProtocolError(rpcErr *rpckit.Error) []byte {
	raw, _ := json.Marshal(rpc.ErrorResponse(nil, rpcErr))
	return raw
}
