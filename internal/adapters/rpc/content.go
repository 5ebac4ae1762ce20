package rpc

import (
	"encoding/json"
	"fmt"

	"todo-mcp/go-backend/internal/domains/rpckit"
	"todo-mcp/go-backend/internal/domains/todo/registry"
	"todo-mcp/go-backend/internal/uisnapshot"
)

const (
	ContentTypeText     = "text"
	ContentTypeResource = "resource"
)

type ContentPart struct {
	Type     string               `json:"type"`
	Text     string               `json:"text,omitempty"`
	Resource *uisnapshot.Snapshot `json:"resource,omitempty"`
}

// CallResult is the result object of an operation call. A business failure is
// still a successful envelope; IsError and Error mark it.
type CallResult struct {
	Content []ContentPart `json:"content"`
	IsError bool          `json:"isError,omitempty"`
	Error   *rpckit.Error `json:"error,omitempty"`
}

// NewCallResult renders the operation data as indented JSON text and appends
// the UI snapshot as a resource part when present.
func NewCallResult(res registry.Result) (CallResult, error) {
	text, err := json.MarshalIndent(res.Data, "", "  ")
	if err != nil {
		return CallResult{}, fmt.Errorf("encode operation result: %w", err)
	}
	out := CallResult{Content: []ContentPart{{Type: ContentTypeText, Text: string(text)}}}
	if res.Snapshot != nil {
		snap := *res.Snapshot
		out.Content = append(out.Content, ContentPart{Type: ContentTypeResource, Resource: &snap})
	}
	return out, nil
}

func NewFailureResult(err error) CallResult {
	msg := err.Error()
	return CallResult{
		Content: []ContentPart{{Type: ContentTypeText, Text: "Error: " + msg}},
		IsError: true,
		Error:   &rpckit.Error{Code: rpckit.CodeInternalError, Message: msg},
	}
}
