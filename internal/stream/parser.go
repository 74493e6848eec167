package stream

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// DefaultMaxLineBytes is the safety cap on a single NDJSON line.
const DefaultMaxLineBytes = 4 << 20

// Parser is a push parser over one byte stream. Feed it chunks as they
// arrive; it buffers the trailing partial line between calls. A Parser is
// bound to one stream and is not safe for concurrent use.
type Parser struct {
	buf        bytes.Buffer
	maxLine    int
	discarding bool // inside an oversized line, dropping bytes until newline
}

// NewParser returns a Parser with the default line cap.
func NewParser() *Parser {
	return NewParserWithLimit(DefaultMaxLineBytes)
}

// NewParserWithLimit returns a Parser capping lines at maxLine bytes.
func NewParserWithLimit(maxLine int) *Parser {
	return &Parser{maxLine: maxLine}
}

// Feed appends a chunk and returns every event completed by it, in stream
// order. Blank lines are skipped; a line past the cap yields exactly one
// error event and is dropped without desynchronizing the stream.
func (p *Parser) Feed(chunk []byte) []Event {
	var events []Event
	for len(chunk) > 0 {
		nl := bytes.IndexByte(chunk, '\n')
		if nl < 0 {
			if p.discarding {
				break
			}
			p.buf.Write(chunk)
			if p.buf.Len() > p.maxLine {
				events = append(events, p.overflow())
			}
			break
		}

		if p.discarding {
			p.discarding = false
		} else {
			p.buf.Write(chunk[:nl])
			if p.buf.Len() > p.maxLine {
				events = append(events, p.overflow())
				p.discarding = false
			} else if ev, ok := p.takeLine(); ok {
				events = append(events, ev)
			}
		}
		chunk = chunk[nl+1:]
	}
	return events
}

// Close flushes a trailing unterminated line, returning its event if any.
func (p *Parser) Close() []Event {
	if p.discarding {
		p.discarding = false
		return nil
	}
	if ev, ok := p.takeLine(); ok {
		return []Event{ev}
	}
	return nil
}

// overflow resets the buffer, enters discard mode, and returns the error
// event for an oversized line.
func (p *Parser) overflow() Event {
	n := p.buf.Len()
	p.buf.Reset()
	p.discarding = true
	return Event{
		Type:   TypeError,
		ErrTag: ErrTagLineTooLong,
		Detail: fmt.Sprintf("line exceeds %d bytes (%d buffered); dropped", p.maxLine, n),
	}
}

// takeLine consumes the buffered line and parses it. ok is false for blank
// lines.
func (p *Parser) takeLine() (Event, bool) {
	line := bytes.TrimSpace(p.buf.Bytes())
	if len(line) == 0 {
		p.buf.Reset()
		return Event{}, false
	}
	raw := make([]byte, len(line))
	copy(raw, line)
	p.buf.Reset()
	return ParseLine(raw), true
}

// envelope is the superset of fields across all record types.
type envelope struct {
	Type    string `json:"type"`
	Subtype string `json:"subtype"`

	SessionID      string   `json:"session_id"`
	Model          string   `json:"model"`
	Cwd            string   `json:"cwd"`
	Tools          []string `json:"tools"`
	PermissionMode string   `json:"permission_mode"`

	Message json.RawMessage `json:"message"`

	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`

	ToolUseID string          `json:"tool_use_id"`
	Content   json.RawMessage `json:"content"`
	IsError   bool            `json:"is_error"`

	Result            string            `json:"result"`
	CostUSD           float64           `json:"cost_usd"`
	DurationMS        int64             `json:"duration_ms"`
	NumTurns          int               `json:"num_turns"`
	PermissionDenials []json.RawMessage `json:"permission_denials"`

	Error *errorDetail `json:"error"`
}

type errorDetail struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// contentBlock is one element of an assistant message's content array.
type contentBlock struct {
	Type  string          `json:"type"`
	Text  string          `json:"text"`
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

// ParseLine decodes one non-blank line into an Event. Malformed JSON and
// unknown type tags become error events carrying the raw line.
func ParseLine(raw []byte) Event {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Event{Type: TypeError, Raw: raw, ErrTag: ErrTagParse, Detail: err.Error()}
	}

	switch env.Type {
	case "system":
		return Event{
			Type:           TypeSystem,
			Raw:            raw,
			Subtype:        env.Subtype,
			SessionID:      env.SessionID,
			Model:          env.Model,
			Cwd:            env.Cwd,
			Tools:          env.Tools,
			PermissionMode: env.PermissionMode,
		}

	case "assistant":
		ev := Event{Type: TypeAssistant, Raw: raw}
		ev.Text = assistantText(env.Message)
		return ev

	case "user":
		// The CLI echoes the prompt back; nothing to act on, but keep the
		// record typed so re-serialization stays faithful.
		return Event{Type: TypeAssistant, Raw: raw}

	case "tool_use":
		return Event{Type: TypeToolUse, Raw: raw, ToolID: env.ID, ToolName: env.Name, ToolInput: env.Input}

	case "tool_result":
		return Event{
			Type:      TypeToolResult,
			Raw:       raw,
			ToolUseID: env.ToolUseID,
			Content:   flattenContent(env.Content),
			IsError:   env.IsError,
		}

	case "result":
		return Event{
			Type:              TypeResult,
			Raw:               raw,
			Subtype:           env.Subtype,
			SessionID:         env.SessionID,
			Result:            env.Result,
			IsError:           env.IsError,
			CostUSD:           env.CostUSD,
			DurationMS:        env.DurationMS,
			NumTurns:          env.NumTurns,
			PermissionDenials: len(env.PermissionDenials),
		}

	case "error":
		ev := Event{Type: TypeError, Raw: raw, ErrTag: "cli_error"}
		if env.Error != nil {
			ev.Detail = env.Error.Message
			if env.Error.Type != "" {
				ev.ErrTag = env.Error.Type
			}
		}
		return ev

	default:
		return Event{
			Type:   TypeError,
			Raw:    raw,
			ErrTag: ErrTagUnknownType,
			Detail: fmt.Sprintf("unknown event type %q", env.Type),
		}
	}
}

// assistantText extracts the concatenated text of an assistant message.
// The content field is either a plain string or an array of typed blocks.
func assistantText(message json.RawMessage) string {
	if len(message) == 0 {
		return ""
	}
	var wrapper struct {
		Content json.RawMessage `json:"content"`
	}
	if err := json.Unmarshal(message, &wrapper); err != nil {
		return ""
	}
	return flattenContent(wrapper.Content)
}

// flattenContent renders a content value (string or block array) as text.
// Thinking and tool blocks are skipped.
func flattenContent(content json.RawMessage) string {
	if len(content) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(content, &s); err == nil {
		return s
	}
	var blocks []contentBlock
	if err := json.Unmarshal(content, &blocks); err != nil {
		return ""
	}
	var b bytes.Buffer
	for _, blk := range blocks {
		if blk.Type == "text" || (blk.Type == "" && blk.Text != "") {
			b.WriteString(blk.Text)
		}
	}
	return b.String()
}

// AssistantToolUses returns tool_use blocks embedded in an assistant
// message's content array, for CLIs that inline them rather than emitting
// top-level tool_use records.
func AssistantToolUses(raw []byte) []Event {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil || len(env.Message) == 0 {
		return nil
	}
	var wrapper struct {
		Content []contentBlock `json:"content"`
	}
	if err := json.Unmarshal(env.Message, &wrapper); err != nil {
		return nil
	}
	var uses []Event
	for _, blk := range wrapper.Content {
		if blk.Type == "tool_use" {
			uses = append(uses, Event{
				Type:      TypeToolUse,
				Raw:       raw,
				ToolID:    blk.ID,
				ToolName:  blk.Name,
				ToolInput: blk.Input,
			})
		}
	}
	return uses
}
