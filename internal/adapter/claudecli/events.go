package claudecli

import (
	"context"
	"encoding/json"
	"regexp"

	"github.com/google/uuid"

	"github.com/Strob0t/AgentMesh/internal/domain/permission"
	"github.com/Strob0t/AgentMesh/internal/domain/state"
	"github.com/Strob0t/AgentMesh/internal/port/eventbus"
	"github.com/Strob0t/AgentMesh/internal/stream"
)

// permissionRefusalRe recognizes tool_result errors that are really the CLI
// asking for approval rather than reporting a tool failure.
var permissionRefusalRe = regexp.MustCompile(
	`(?i)(requires approval|permission (denied|required)|has not been granted|requested permissions)`)

// handleEvent maps one parsed stream event onto state machine input, the
// event bus, and the permission flow. Called only from the read loop, so
// e.tools needs no locking here beyond the executor's own mutex for shared
// fields.
func (e *Executor) handleEvent(ev stream.Event) {
	ctx := context.Background()

	switch ev.Type {
	case stream.TypeSystem:
		if ev.Subtype == "init" {
			e.mu.Lock()
			if e.sessionID == "" && ev.SessionID != "" {
				e.sessionID = ev.SessionID
			}
			e.mu.Unlock()
			e.cfg.Log.Info("claude session initialized",
				"session_id", ev.SessionID, "model", ev.Model, "tools", len(ev.Tools))
			e.applyAndBroadcast(ctx, state.Initialized())
			return
		}
		e.cfg.Log.Debug("system event", "subtype", ev.Subtype)

	case stream.TypeAssistant:
		if ev.Text != "" {
			e.cfg.Bus.Publish(ctx, eventbus.TopicOutput, eventbus.OutputEvent{
				SessionID: e.SessionID(),
				Content:   ev.Text,
			})
		}
		// Some CLI builds inline tool_use blocks instead of emitting
		// top-level records.
		for _, use := range stream.AssistantToolUses(ev.Raw) {
			e.handleToolUse(ctx, use)
		}

	case stream.TypeToolUse:
		e.handleToolUse(ctx, ev)

	case stream.TypeToolResult:
		e.handleToolResult(ctx, ev)

	case stream.TypeResult:
		e.cfg.Log.Info("task result",
			"subtype", ev.Subtype,
			"is_error", ev.IsError,
			"cost_usd", ev.CostUSD,
			"duration_ms", ev.DurationMS,
			"num_turns", ev.NumTurns,
			"permission_denials", ev.PermissionDenials,
		)
		if ev.IsError || ev.Subtype == "error" {
			e.applyAndBroadcast(ctx, state.ErrorOccurred(resultMessage(ev), true))
			return
		}
		e.applyAndBroadcast(ctx, state.TaskCompleted(ev.Result))

	case stream.TypeError:
		switch ev.ErrTag {
		case stream.ErrTagParse, stream.ErrTagUnknownType, stream.ErrTagLineTooLong:
			// One bad line must not poison the session.
			e.cfg.Log.Warn("stream parse problem", "tag", ev.ErrTag, "detail", ev.Detail)
		default:
			e.applyAndBroadcast(ctx, state.ErrorOccurred(ev.Detail, false))
		}
	}
}

// handleToolUse records the open tool call and moves the machine into it.
func (e *Executor) handleToolUse(ctx context.Context, ev stream.Event) {
	if ev.ToolID != "" {
		e.tools[ev.ToolID] = openTool{name: ev.ToolName, input: ev.ToolInput}
	}
	e.applyAndBroadcast(ctx, state.ToolUseStarted(ev.ToolName))
}

// handleToolResult closes the correlated tool call. An error result whose
// content matches the permission-refusal signature is reinterpreted as a
// permission request and routed through the manager.
func (e *Executor) handleToolResult(ctx context.Context, ev stream.Event) {
	use, known := e.tools[ev.ToolUseID]
	delete(e.tools, ev.ToolUseID)

	if ev.IsError && permissionRefusalRe.MatchString(ev.Content) {
		e.resolvePermission(ctx, use, known)
		return
	}

	name := use.name
	if !known {
		name = "unknown"
	}
	e.applyAndBroadcast(ctx, state.ToolUseCompleted(name, !ev.IsError))
	if ev.IsError {
		e.cfg.Log.Warn("tool failed", "tool", name, "content", truncate(ev.Content, 200))
	}
}

// resolvePermission classifies the refused tool call and either answers the
// CLI immediately or escalates to a human.
func (e *Executor) resolvePermission(ctx context.Context, use openTool, known bool) {
	toolName := use.name
	if !known {
		toolName = "unknown"
	}
	requestID := uuid.NewString()

	// The request always passes through WaitingForPermission so observers
	// see a consistent trajectory, even when policy answers instantly.
	e.applyAndBroadcast(ctx, state.PermissionRequired(toolName, use.input, requestID))

	decision := e.cfg.Permissions.Classify(toolName, use.input, requestID)
	switch decision.Kind {
	case permission.DecisionAllow:
		e.mu.Lock()
		stdin := e.stdin
		e.mu.Unlock()
		token := tokenGrant
		if decision.Always {
			token = tokenGrantAlways
		}
		if err := e.writeToken(stdin, token); err != nil {
			e.cfg.Log.Error("grant write failed", "tool", toolName, "error", err)
		}
		e.applyAndBroadcast(ctx, state.PermissionGranted(requestID))
		e.cfg.Log.Info("permission auto-granted", "tool", toolName, "always", decision.Always)

	case permission.DecisionDeny:
		e.mu.Lock()
		stdin := e.stdin
		e.mu.Unlock()
		if err := e.writeToken(stdin, tokenDeny); err != nil {
			e.cfg.Log.Error("deny write failed", "tool", toolName, "error", err)
		}
		e.applyAndBroadcast(ctx, state.PermissionDenied(requestID, decision.Reason))
		e.cfg.Log.Info("permission auto-denied", "tool", toolName, "reason", decision.Reason)

	case permission.DecisionRequireHuman:
		e.mu.Lock()
		e.pending[requestID] = pendingPermission{toolName: toolName, toolInput: use.input}
		e.mu.Unlock()

		e.cfg.Bus.Publish(ctx, eventbus.TopicPermissionRequired, eventbus.PermissionRequiredEvent{
			SessionID: e.SessionID(),
			RequestID: requestID,
			ToolName:  toolName,
			ToolInput: rawOrNil(use.input),
		})
		e.cfg.Log.Info("permission escalated to human", "tool", toolName, "request_id", requestID)
	}
}

// applyAndBroadcast applies a state event and mirrors the transition onto
// the event bus.
func (e *Executor) applyAndBroadcast(ctx context.Context, ev state.Event) {
	old := e.machine.Current()
	next := e.machine.Apply(ev)
	e.cfg.Bus.Publish(ctx, eventbus.TopicStateChanged, eventbus.StateChangedEvent{
		SessionID: e.SessionID(),
		OldState:  old,
		NewState:  next,
	})
}

// resultMessage picks the most useful error text from a result record.
func resultMessage(ev stream.Event) string {
	if ev.Result != "" {
		return ev.Result
	}
	return "task failed (subtype " + ev.Subtype + ")"
}

// rawOrNil converts raw JSON to any for bus payloads.
func rawOrNil(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return raw
}

// truncate bounds a string for log output.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
