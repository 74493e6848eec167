// Package stream splits the CLI assistant's stdout byte stream into NDJSON
// records and decodes each into a typed event. The parser tolerates
// arbitrary chunk boundaries; one malformed line never corrupts the next.
package stream

import "encoding/json"

// Type discriminates parsed stream events.
type Type string

const (
	TypeSystem     Type = "system"
	TypeAssistant  Type = "assistant"
	TypeToolUse    Type = "tool_use"
	TypeToolResult Type = "tool_result"
	TypeResult     Type = "result"
	TypeError      Type = "error"
)

// Error tags carried by TypeError events.
const (
	ErrTagUnknownType = "unknown_event_type"
	ErrTagParse       = "parse_error"
	ErrTagLineTooLong = "line_too_long"
)

// Event is one parsed NDJSON record. Type selects which field group is
// populated; Raw always holds the original line for re-serialization.
type Event struct {
	Type Type
	Raw  []byte

	// System
	Subtype        string
	SessionID      string
	Model          string
	Cwd            string
	Tools          []string
	PermissionMode string

	// Assistant
	Text string

	// ToolUse
	ToolID    string
	ToolName  string
	ToolInput json.RawMessage

	// ToolResult
	ToolUseID string
	Content   string
	IsError   bool

	// Result
	Result            string
	CostUSD           float64
	DurationMS        int64
	NumTurns          int
	PermissionDenials int

	// Error
	ErrTag string
	Detail string
}
