// Package registry declares the fixed set of todo operations and maps each
// name to a typed handler. A registry is built once per session; the record
// store behind it is shared.
package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"todo-mcp/go-backend/internal/domains/todo/usecase"
	"todo-mcp/go-backend/internal/uisnapshot"
	"todo-mcp/go-backend/pkg/models"
)

const (
	OpListRecords  = "list_records"
	OpCreateRecord = "create_record"
	OpUpdateRecord = "update_record"
	OpDeleteRecord = "delete_record"
	OpRenderUI     = "render_ui"
)

var ErrUnknownOperation = errors.New("unknown operation")

// Result is an operation outcome. Snapshot is set for render_ui and, when
// enabled, for mutations; it always reflects the store after the mutation.
type Result struct {
	Data     any
	Snapshot *uisnapshot.Snapshot
}

type Handler func(ctx context.Context, args json.RawMessage) (Result, error)

type Descriptor struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

type Options struct {
	AttachSnapshots bool
	OnMutation      func(operation string)
}

type operation struct {
	desc     Descriptor
	handler  Handler
	mutating bool
}

type Registry struct {
	service  *usecase.Service
	renderer *uisnapshot.Renderer
	opts     Options
	ops      map[string]operation
	order    []string
}

func New(service *usecase.Service, renderer *uisnapshot.Renderer, opts Options) *Registry {
	r := &Registry{
		service:  service,
		renderer: renderer,
		opts:     opts,
		ops:      make(map[string]operation),
	}
	r.register(OpListRecords, "List all todos, newest first. Optionally filter by completion status.", listRecordsSchema, false, r.listRecords)
	r.register(OpCreateRecord, "Create a new todo item.", createRecordSchema, true, r.createRecord)
	r.register(OpUpdateRecord, "Update a todo item. Only the supplied fields are changed.", updateRecordSchema, true, r.updateRecord)
	r.register(OpDeleteRecord, "Delete a todo item.", deleteRecordSchema, true, r.deleteRecord)
	r.register(OpRenderUI, "Display the interactive todo UI.", renderUISchema, false, r.renderUI)
	return r
}

func (r *Registry) register(name, description string, schema json.RawMessage, mutating bool, h Handler) {
	r.ops[name] = operation{
		desc:     Descriptor{Name: name, Description: description, InputSchema: schema},
		handler:  h,
		mutating: mutating,
	}
	r.order = append(r.order, name)
}

// List returns descriptors in registration order.
func (r *Registry) List() []Descriptor {
	out := make([]Descriptor, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.ops[name].desc)
	}
	return out
}

func (r *Registry) Has(name string) bool {
	_, ok := r.ops[name]
	return ok
}

func (r *Registry) Invoke(ctx context.Context, name string, args json.RawMessage) (Result, error) {
	op, ok := r.ops[name]
	if !ok {
		return Result{}, fmt.Errorf("%w: %s", ErrUnknownOperation, name)
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	res, err := op.handler(ctx, args)
	if err != nil {
		return Result{}, err
	}
	if !op.mutating {
		return res, nil
	}
	if r.opts.OnMutation != nil {
		r.opts.OnMutation(name)
	}
	if r.opts.AttachSnapshots {
		snap, err := r.snapshot()
		if err != nil {
			return Result{}, err
		}
		res.Snapshot = &snap
	}
	return res, nil
}

func (r *Registry) snapshot() (uisnapshot.Snapshot, error) {
	return r.renderer.Render(r.service.List(nil))
}

type listArgs struct {
	Completed *bool `json:"completed"`
}

type createArgs struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

type updateArgs struct {
	ID          string  `json:"id"`
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Completed   *bool   `json:"completed"`
}

type deleteArgs struct {
	ID string `json:"id"`
}

type uiSummary struct {
	Total     int `json:"total"`
	Active    int `json:"active"`
	Completed int `json:"completed"`
}

func decodeArgs[T any](raw json.RawMessage) (T, error) {
	var out T
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return out, nil
	}
	if err := json.Unmarshal(trimmed, &out); err != nil {
		return out, usecase.InvalidArguments(err)
	}
	return out, nil
}

func (r *Registry) listRecords(_ context.Context, raw json.RawMessage) (Result, error) {
	args, err := decodeArgs[listArgs](raw)
	if err != nil {
		// Listing never fails; a malformed filter means "no filter".
		args = listArgs{}
	}
	return Result{Data: r.service.List(args.Completed)}, nil
}

func (r *Registry) createRecord(_ context.Context, raw json.RawMessage) (Result, error) {
	args, err := decodeArgs[createArgs](raw)
	if err != nil {
		return Result{}, err
	}
	rec, err := r.service.Create(args.Title, args.Description)
	if err != nil {
		return Result{}, err
	}
	return Result{Data: rec}, nil
}

func (r *Registry) updateRecord(_ context.Context, raw json.RawMessage) (Result, error) {
	args, err := decodeArgs[updateArgs](raw)
	if err != nil {
		return Result{}, err
	}
	rec, err := r.service.Update(args.ID, models.RecordPatch{
		Title:       args.Title,
		Description: args.Description,
		Completed:   args.Completed,
	})
	if err != nil {
		return Result{}, err
	}
	return Result{Data: rec}, nil
}

func (r *Registry) deleteRecord(_ context.Context, raw json.RawMessage) (Result, error) {
	args, err := decodeArgs[deleteArgs](raw)
	if err != nil {
		return Result{}, err
	}
	res, err := r.service.Delete(args.ID)
	if err != nil {
		return Result{}, err
	}
	return Result{Data: res}, nil
}

func (r *Registry) renderUI(_ context.Context, _ json.RawMessage) (Result, error) {
	records := r.service.List(nil)
	snap, err := r.renderer.Render(records)
	if err != nil {
		return Result{}, err
	}
	summary := uiSummary{Total: len(records)}
	for _, rec := range records {
		if rec.Completed {
			summary.Completed++
		} else {
			summary.Active++
		}
	}
	return Result{Data: summary, Snapshot: &snap}, nil
}
