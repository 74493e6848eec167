// Package permission implements the policy-driven decision engine for tool
// use. Each requested tool call is classified as auto-approve, auto-deny, or
// human-escalated under one of four selectable policies, with remembered
// decisions consulted first.
package permission

import "encoding/json"

// DecisionKind discriminates the outcome of a classification.
type DecisionKind string

const (
	DecisionAllow        DecisionKind = "allow"
	DecisionDeny         DecisionKind = "deny"
	DecisionRequireHuman DecisionKind = "require_human"
)

// Decision is the result of classifying one tool call.
type Decision struct {
	Kind DecisionKind `json:"type"`

	// Allow
	Always bool `json:"always,omitempty"`

	// Deny
	Reason string `json:"reason,omitempty"`

	// RequireHuman
	RequestID string          `json:"request_id,omitempty"`
	ToolName  string          `json:"tool_name,omitempty"`
	ToolInput json.RawMessage `json:"tool_input,omitempty"`
	Options   []string        `json:"options,omitempty"`
}

// Allow builds an allow decision.
func Allow(always bool) Decision {
	return Decision{Kind: DecisionAllow, Always: always}
}

// Deny builds a deny decision.
func Deny(reason string) Decision {
	return Decision{Kind: DecisionDeny, Reason: reason}
}

// RequireHuman builds a human-escalation decision.
func RequireHuman(requestID, toolName string, toolInput json.RawMessage) Decision {
	return Decision{
		Kind:      DecisionRequireHuman,
		RequestID: requestID,
		ToolName:  toolName,
		ToolInput: toolInput,
		Options:   []string{"Allow", "Allow always", "Deny"},
	}
}
