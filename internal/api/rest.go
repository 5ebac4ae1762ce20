package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"todo-mcp/go-backend/internal/adapters/rpc"
	"todo-mcp/go-backend/internal/domains/todo/registry"
	"todo-mcp/go-backend/internal/domains/todo/usecase"
)

func (s *Server) handleToolList(w http.ResponseWriter, r *http.Request) {
	if s.preflight(w, r) {
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tools": s.sessions.NewRegistry().List()})
}

// handleToolCall invokes one operation outside any session. The request body
// is the argument object.
func (s *Server) handleToolCall(w http.ResponseWriter, r *http.Request) {
	if s.preflight(w, r) {
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	name := strings.TrimSpace(strings.TrimPrefix(r.URL.Path, "/api/tools/"))
	if name == "" || strings.Contains(name, "/") {
		http.Error(w, "invalid tool name", http.StatusBadRequest)
		return
	}
	if !s.allow(w, r, "/api/tools/{name}") {
		return
	}

	reg := s.sessions.NewRegistry()
	if !reg.Has(name) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Unknown tool: " + name})
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	args, err := io.ReadAll(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, "read request body failed", http.StatusBadRequest)
		return
	}
	if len(bytes.TrimSpace(args)) > 0 && !json.Valid(args) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "request body is not valid JSON"})
		return
	}

	res, err := reg.Invoke(r.Context(), name, args)
	switch {
	case err == nil:
	case usecase.IsBusinessFailure(err):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	case errors.Is(err, registry.ErrUnknownOperation):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Unknown tool: " + name})
		return
	default:
		s.logger.Error("tool call failed", "tool", name, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}
	out, err := rpc.NewCallResult(res)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}
	writeJSON(w, http.StatusOK, out)
}
