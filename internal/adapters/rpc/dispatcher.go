package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"todo-mcp/go-backend/internal/domains/rpckit"
	"todo-mcp/go-backend/internal/domains/todo/registry"
	"todo-mcp/go-backend/internal/domains/todo/usecase"
	"todo-mcp/go-backend/internal/uisnapshot"
)

// Outcome labels reported to Metrics.
const (
	OutcomeOK            = "ok"
	OutcomeBusinessError = "business_error"
	OutcomeError         = "error"
)

type Metrics interface {
	ObserveRPC(method, outcome string, elapsed time.Duration)
}

type Hooks struct {
	OnInitialized func()
	OnOperation   func(name string)
}

type Options struct {
	ServerName    string
	ServerVersion string
	SessionID     string
	Logger        *slog.Logger
	Metrics       Metrics
	Hooks         Hooks
}

// Dispatcher routes JSON-RPC envelopes to lifecycle handlers or registry
// operations. Payloads are handled one at a time in arrival order.
type Dispatcher struct {
	mu       sync.Mutex
	registry *registry.Registry
	opts     Options
	logger   *slog.Logger
}

func NewDispatcher(reg *registry.Registry, opts Options) *Dispatcher {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.ServerName == "" {
		opts.ServerName = "todo-mcp"
	}
	if opts.ServerVersion == "" {
		opts.ServerVersion = "dev"
	}
	return &Dispatcher{registry: reg, opts: opts, logger: logger}
}

// HandlePayload processes a raw single or batch payload. The boolean is false
// when nothing must be written back, i.e. the payload held only notifications.
func (d *Dispatcher) HandlePayload(ctx context.Context, body []byte) ([]byte, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	reqs, invalid, batch, rpcErr := decodeEnvelopes(body)
	if rpcErr != nil {
		d.logger.Warn("rpc rejected", "session_id", d.opts.SessionID, "rpc_code", rpcErr.Code)
		return encodeResponses([]Response{errorResponse(nil, rpcErr)}, false), true
	}
	responses := append([]Response(nil), invalid...)
	for _, req := range reqs {
		if resp, ok := d.handle(ctx, req); ok {
			responses = append(responses, resp)
		}
	}
	if len(responses) == 0 {
		return nil, false
	}
	return encodeResponses(responses, batch), true
}

func (d *Dispatcher) handle(ctx context.Context, req Request) (resp Response, ok bool) {
	reqID := fmt.Sprintf("rpc_%d", time.Now().UnixNano())
	started := time.Now()
	d.logger.Info("rpc request", "request_id", reqID, "session_id", d.opts.SessionID, "method", req.Method, "rpc_id", string(req.ID))

	var (
		result  any
		rpcErr  *rpckit.Error
		outcome = OutcomeOK
	)
	func() {
		defer func() {
			if p := recover(); p != nil {
				d.logger.Error("rpc panic recovered", "request_id", reqID, "method", req.Method, "panic", fmt.Sprint(p))
				result, rpcErr = nil, rpckit.Internal(fmt.Errorf("internal error: %v", p))
			}
		}()
		result, rpcErr = d.dispatch(ctx, req)
	}()

	elapsed := time.Since(started)
	switch {
	case rpcErr != nil:
		outcome = OutcomeError
		d.logger.Error("rpc failed", "request_id", reqID, "session_id", d.opts.SessionID, "method", req.Method, "rpc_code", rpcErr.Code, "latency_ms", elapsed.Milliseconds())
	default:
		if cr, isCall := result.(CallResult); isCall && cr.IsError {
			outcome = OutcomeBusinessError
		}
		d.logger.Info("rpc response", "request_id", reqID, "session_id", d.opts.SessionID, "method", req.Method, "outcome", outcome, "latency_ms", elapsed.Milliseconds())
	}
	if d.opts.Metrics != nil {
		d.opts.Metrics.ObserveRPC(req.Method, outcome, elapsed)
	}

	if req.IsNotification() {
		return Response{}, false
	}
	if rpcErr != nil {
		return errorResponse(req.ID, rpcErr), true
	}
	return resultResponse(req.ID, result), true
}

func (d *Dispatcher) dispatch(ctx context.Context, req Request) (any, *rpckit.Error) {
	switch req.Method {
	case MethodInitialize:
		var p initializeParams
		_ = unmarshalParams(req.Params, &p)
		version := NegotiateProtocolVersion(p.ProtocolVersion)
		if p.ProtocolVersion != "" && version != p.ProtocolVersion {
			d.logger.Warn("protocol version downgraded", "session_id", d.opts.SessionID, "requested", p.ProtocolVersion, "negotiated", version, "supported", SupportedProtocolVersions())
		}
		return initializeResult{
			ProtocolVersion: version,
			Capabilities: map[string]any{
				"tools":     map[string]any{"listChanged": false},
				"resources": map[string]any{"subscribe": false, "listChanged": false},
			},
			ServerInfo: serverInfo{Name: d.opts.ServerName, Version: d.opts.ServerVersion},
		}, nil
	case MethodInitialized:
		if d.opts.Hooks.OnInitialized != nil {
			d.opts.Hooks.OnInitialized()
		}
		return struct{}{}, nil
	case MethodPing:
		return struct{}{}, nil
	case MethodToolsList:
		return map[string]any{"tools": d.registry.List()}, nil
	case MethodToolsCall:
		var p toolsCallParams
		if err := unmarshalParams(req.Params, &p); err != nil {
			return nil, rpckit.InvalidParams(err.Error())
		}
		if p.Name == "" {
			return nil, rpckit.InvalidParams("tool name is required")
		}
		return d.callOperation(ctx, p.Name, p.Arguments)
	case MethodResourcesList:
		return map[string]any{"resources": []resourceDescriptor{{
			URI:      uisnapshot.ResourceURI,
			Name:     "Todo App",
			MimeType: uisnapshot.MimeType,
		}}}, nil
	case MethodResourcesRead:
		var p resourcesReadParams
		if err := unmarshalParams(req.Params, &p); err != nil {
			return nil, rpckit.InvalidParams(err.Error())
		}
		if p.URI != uisnapshot.ResourceURI {
			return nil, rpckit.InvalidParams("unknown resource: " + p.URI)
		}
		res, err := d.registry.Invoke(ctx, registry.OpRenderUI, nil)
		if err != nil {
			return nil, rpckit.Internal(err)
		}
		return map[string]any{"contents": []uisnapshot.Snapshot{*res.Snapshot}}, nil
	}
	if d.registry.Has(req.Method) {
		return d.callOperation(ctx, req.Method, req.Params)
	}
	if req.IsNotification() {
		d.logger.Debug("rpc notification ignored", "method", req.Method)
		return nil, nil
	}
	return nil, rpckit.MethodNotFound(req.Method)
}

func (d *Dispatcher) callOperation(ctx context.Context, name string, args json.RawMessage) (any, *rpckit.Error) {
	if !d.registry.Has(name) {
		return nil, rpckit.MethodNotFound(name)
	}
	if d.opts.Hooks.OnOperation != nil {
		d.opts.Hooks.OnOperation(name)
	}
	res, err := d.registry.Invoke(ctx, name, args)
	if err != nil {
		if usecase.IsBusinessFailure(err) {
			return NewFailureResult(err), nil
		}
		if errors.Is(err, registry.ErrUnknownOperation) {
			return nil, rpckit.MethodNotFound(name)
		}
		return nil, rpckit.Internal(err)
	}
	out, err := NewCallResult(res)
	if err != nil {
		return nil, rpckit.Internal(err)
	}
	return out, nil
}

// unmarshalParams treats absent and null params as an empty object.
func unmarshalParams(raw json.RawMessage, out any) error {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	return json.Unmarshal(trimmed, out)
}

func encodeResponses(responses []Response, batch bool) []byte {
	var (
		raw []byte
		err error
	)
	if batch {
		raw, err = json.Marshal(responses)
	} else {
		raw, err = json.Marshal(responses[0])
	}
	if err != nil {
		fallback, _ := json.Marshal(errorResponse(nil, rpckit.Internal(err)))
		return fallback
	}
	return raw
}
