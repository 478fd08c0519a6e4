// Copyright (C) 2025 memory-palace contributors
// SPDX-License-Identifier: LGPL-3.0-or-later

package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/memory-palace/core/graph"
	"github.com/memory-palace/core/handoff"
	"github.com/memory-palace/core/memory"
	"github.com/memory-palace/core/modelserver"
	"github.com/memory-palace/core/reflection"
)

// Dispatcher bundles the domain operations the tool surface fronts. All
// fields are optional from the zero value's perspective except Store,
// which every memory_* tool needs; callers that never dispatch a
// handoff_* or memory_reflect tool may leave Handoff/Client nil.
type Dispatcher struct {
	Store   *memory.Store
	Graph   *graph.Graph
	Handoff *handoff.Bus
	Client  *modelserver.Client
}

// New constructs a Dispatcher.
func New(store *memory.Store, g *graph.Graph, bus *handoff.Bus, client *modelserver.Client) *Dispatcher {
	return &Dispatcher{Store: store, Graph: g, Handoff: bus, Client: client}
}

// ErrorResult is the failure shape every dispatched tool returns in
// place of a naked Go error.
type ErrorResult struct {
	Error string `json:"error"`
}

// UnmarshalParams decodes an untyped RPC argument map into a typed
// params struct via a JSON round trip, so the field's declared type
// (int64, *int64, []string, ...) governs conversion rather than the
// map's raw `interface{}` values.
func UnmarshalParams(args map[string]interface{}, v interface{}) error {
	data, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("tools: marshal params: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("tools: unmarshal params: %w", err)
	}
	return nil
}

// Dispatch routes a tool call by name to its domain operation and
// returns the §4 success shape on success or an ErrorResult on
// failure. It never returns a Go error: an unknown tool name is itself
// reported as an ErrorResult, since the caller sits at a serialization
// boundary (RPC/HTTP) with no Go error channel to use.
func (d *Dispatcher) Dispatch(ctx context.Context, name string, args map[string]interface{}) interface{} {
	switch name {
	case "memory_remember":
		return dispatch(args, d.memoryRemember(ctx))
	case "memory_recall":
		return dispatch(args, d.memoryRecall(ctx))
	case "memory_forget":
		return dispatch(args, d.memoryForget(ctx))
	case "memory_get":
		return dispatch(args, d.memoryGet(ctx))
	case "memory_link":
		return dispatch(args, d.memoryLink(ctx))
	case "memory_supersede":
		return dispatch(args, d.memorySupersede(ctx))
	case "memory_stats":
		return dispatch(args, d.memoryStats(ctx))
	case "handoff_send":
		return dispatch(args, d.handoffSend(ctx))
	case "handoff_get":
		return dispatch(args, d.handoffGet(ctx))
	case "handoff_mark_read":
		return dispatch(args, d.handoffMarkRead(ctx))
	case "memory_reflect":
		return dispatch(args, d.memoryReflect(ctx))
	case "memory_backfill":
		return dispatch(args, d.memoryBackfill(ctx))
	default:
		return ErrorResult{Error: fmt.Sprintf("unknown tool %q", name)}
	}
}

// handlerFunc decodes args into a typed struct, invokes the domain
// operation, and returns either the success value or an error.
type handlerFunc func(args map[string]interface{}) (interface{}, error)

func dispatch(args map[string]interface{}, h handlerFunc) interface{} {
	out, err := h(args)
	if err != nil {
		return ErrorResult{Error: err.Error()}
	}
	return out
}

func (d *Dispatcher) memoryRemember(ctx context.Context) handlerFunc {
	return func(args map[string]interface{}) (interface{}, error) {
		var p memory.RememberParams
		if err := UnmarshalParams(args, &p); err != nil {
			return nil, err
		}
		return d.Store.Remember(ctx, p)
	}
}

func (d *Dispatcher) memoryRecall(ctx context.Context) handlerFunc {
	return func(args map[string]interface{}) (interface{}, error) {
		p := memory.RecallParams{Limit: 20, Synthesize: true}
		if err := UnmarshalParams(args, &p); err != nil {
			return nil, err
		}
		return d.Store.Recall(ctx, p)
	}
}

// ForgetParams are the arguments to the memory_forget tool.
type ForgetParams struct {
	MemoryID int64  `json:"memory_id"`
	Reason   string `json:"reason,omitempty"`
}

type successResult struct {
	Success bool `json:"success"`
}

func (d *Dispatcher) memoryForget(ctx context.Context) handlerFunc {
	return func(args map[string]interface{}) (interface{}, error) {
		var p ForgetParams
		if err := UnmarshalParams(args, &p); err != nil {
			return nil, err
		}
		if err := d.Store.Forget(ctx, p.MemoryID, p.Reason); err != nil {
			return nil, err
		}
		return successResult{Success: true}, nil
	}
}

// GetParams are the arguments to the memory_get tool: ID for a single
// fetch, IDs for a batch fetch. ID takes precedence when both are set.
type GetParams struct {
	ID  *int64  `json:"id,omitempty"`
	IDs []int64 `json:"ids,omitempty"`
}

// GetResult is the return value of the memory_get tool, covering both
// the single- and batch-fetch shapes from spec.md 4.3.
type GetResult struct {
	Memories []memory.Memory `json:"memories"`
	NotFound []int64         `json:"not_found,omitempty"`
}

func (d *Dispatcher) memoryGet(ctx context.Context) handlerFunc {
	return func(args map[string]interface{}) (interface{}, error) {
		var p GetParams
		if err := UnmarshalParams(args, &p); err != nil {
			return nil, err
		}
		if p.ID != nil {
			m, err := d.Store.GetByID(ctx, *p.ID)
			if err != nil {
				return nil, err
			}
			return GetResult{Memories: []memory.Memory{*m}}, nil
		}
		found, notFound, err := d.Store.GetMemoriesByIDs(ctx, p.IDs)
		if err != nil {
			return nil, err
		}
		return GetResult{Memories: found, NotFound: notFound}, nil
	}
}

func (d *Dispatcher) memoryLink(ctx context.Context) handlerFunc {
	return func(args map[string]interface{}) (interface{}, error) {
		var p graph.LinkParams
		if err := UnmarshalParams(args, &p); err != nil {
			return nil, err
		}
		return d.Graph.LinkMemories(ctx, p)
	}
}

// SupersedeParams are the arguments to the memory_supersede tool.
type SupersedeParams struct {
	NewID      int64  `json:"new_id"`
	OldID      int64  `json:"old_id"`
	ArchiveOld bool   `json:"archive_old"`
	CreatedBy  string `json:"created_by,omitempty"`
}

func (d *Dispatcher) memorySupersede(ctx context.Context) handlerFunc {
	return func(args map[string]interface{}) (interface{}, error) {
		p := SupersedeParams{ArchiveOld: true}
		if err := UnmarshalParams(args, &p); err != nil {
			return nil, err
		}
		return d.Graph.SupersedeMemory(ctx, p.NewID, p.OldID, p.ArchiveOld, p.CreatedBy)
	}
}

func (d *Dispatcher) memoryStats(ctx context.Context) handlerFunc {
	return func(args map[string]interface{}) (interface{}, error) {
		return d.Store.GetStats(ctx)
	}
}

func (d *Dispatcher) handoffSend(ctx context.Context) handlerFunc {
	return func(args map[string]interface{}) (interface{}, error) {
		var p handoff.SendParams
		if err := UnmarshalParams(args, &p); err != nil {
			return nil, err
		}
		res, err := d.Handoff.SendHandoff(ctx, p)
		if err != nil {
			return nil, err
		}
		return struct {
			Success bool `json:"success"`
			*handoff.SendResult
		}{Success: true, SendResult: res}, nil
	}
}

func (d *Dispatcher) handoffGet(ctx context.Context) handlerFunc {
	return func(args map[string]interface{}) (interface{}, error) {
		p := handoff.GetParams{UnreadOnly: true, Limit: 50}
		if err := UnmarshalParams(args, &p); err != nil {
			return nil, err
		}
		return d.Handoff.GetHandoffs(ctx, p)
	}
}

// MarkReadParams are the arguments to the handoff_mark_read tool.
type MarkReadParams struct {
	MessageID int64  `json:"message_id"`
	ReadBy    string `json:"read_by"`
}

func (d *Dispatcher) handoffMarkRead(ctx context.Context) handlerFunc {
	return func(args map[string]interface{}) (interface{}, error) {
		var p MarkReadParams
		if err := UnmarshalParams(args, &p); err != nil {
			return nil, err
		}
		if err := d.Handoff.MarkHandoffRead(ctx, p.MessageID, p.ReadBy); err != nil {
			return nil, err
		}
		return successResult{Success: true}, nil
	}
}

func (d *Dispatcher) memoryReflect(ctx context.Context) handlerFunc {
	return func(args map[string]interface{}) (interface{}, error) {
		var p reflection.Params
		if err := UnmarshalParams(args, &p); err != nil {
			return nil, err
		}
		return reflection.Reflect(ctx, d.Store, d.Client, p)
	}
}

func (d *Dispatcher) memoryBackfill(ctx context.Context) handlerFunc {
	return func(args map[string]interface{}) (interface{}, error) {
		return d.Store.BackfillEmbeddings(ctx)
	}
}
