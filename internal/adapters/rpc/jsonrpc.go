package rpc

import (
	"bytes"
	"encoding/json"

	"todo-mcp/go-backend/internal/domains/rpckit"
)

const jsonRPCVersion = "2.0"

// Request is a request or, when ID is absent, a notification.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

func (r Request) IsNotification() bool {
	return len(r.ID) == 0
}

// Response always carries an id; a nil ID marshals as null.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *rpckit.Error   `json:"error,omitempty"`
}

func resultResponse(id json.RawMessage, result any) Response {
	return Response{JSONRPC: jsonRPCVersion, ID: id, Result: result}
}

func errorResponse(id json.RawMessage, rpcErr *rpckit.Error) Response {
	return Response{JSONRPC: jsonRPCVersion, ID: id, Error: rpcErr}
}

// ErrorResponse builds a protocol-level failure envelope for callers outside
// the dispatcher, e.g. a transport that rejects a body before dispatch.
func ErrorResponse(id json.RawMessage, rpcErr *rpckit.Error) Response {
	return errorResponse(id, rpcErr)
}

// validID reports whether raw is a string, number or null.
func validID(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return true
	}
	switch c := trimmed[0]; {
	case c == '"', c == '-', c >= '0' && c <= '9':
		return true
	case bytes.Equal(trimmed, []byte("null")):
		return true
	default:
		return false
	}
}

func isBatch(body []byte) bool {
	trimmed := bytes.TrimSpace(body)
	return len(trimmed) > 0 && trimmed[0] == '['
}

// decodeEnvelopes splits a payload into requests. A parse failure of the whole
// payload returns a non-nil error object; a malformed element inside a batch
// is reported per element through the invalid slice.
func decodeEnvelopes(body []byte) (reqs []Request, invalid []Response, batch bool, rpcErr *rpckit.Error) {
	if !json.Valid(body) {
		return nil, nil, false, rpckit.ParseError()
	}
	if !isBatch(body) {
		req, bad := decodeEnvelope(body)
		if bad != nil {
			return nil, []Response{*bad}, false, nil
		}
		return []Request{req}, nil, false, nil
	}
	var elems []json.RawMessage
	if err := json.Unmarshal(body, &elems); err != nil {
		return nil, nil, true, rpckit.ParseError()
	}
	if len(elems) == 0 {
		return nil, nil, true, rpckit.InvalidRequest()
	}
	for _, elem := range elems {
		req, bad := decodeEnvelope(elem)
		if bad != nil {
			invalid = append(invalid, *bad)
			continue
		}
		reqs = append(reqs, req)
	}
	return reqs, invalid, true, nil
}

func decodeEnvelope(raw json.RawMessage) (Request, *Response) {
	var req Request
	if err := json.Unmarshal(raw, &req); err != nil {
		resp := errorResponse(recoverID(raw), rpckit.InvalidRequest())
		return Request{}, &resp
	}
	if !validID(req.ID) {
		resp := errorResponse(nil, rpckit.InvalidRequest())
		return Request{}, &resp
	}
	if req.JSONRPC != jsonRPCVersion || req.Method == "" {
		resp := errorResponse(req.ID, rpckit.InvalidRequest())
		return Request{}, &resp
	}
	return req, nil
}

// recoverID extracts a usable id from an object that failed full decoding.
func recoverID(raw json.RawMessage) json.RawMessage {
	var probe struct {
		ID json.RawMessage `json:"id"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil || !validID(probe.ID) {
		return nil
	}
	return probe.ID
}

// ContainsHandshake reports whether the payload carries an initialize request.
func ContainsHandshake(body []byte) bool {
	type probe struct {
		Method string `json:"method"`
	}
	if isBatch(body) {
		var elems []probe
		if err := json.Unmarshal(body, &elems); err != nil {
			return false
		}
		for _, e := range elems {
			if e.Method == MethodInitialize {
				return true
			}
		}
		return false
	}
	var p probe
	if err := json.Unmarshal(body, &p); err != nil {
		return false
	}
	return p.Method == MethodInitialize
}
