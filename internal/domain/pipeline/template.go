package pipeline

import (
	"bytes"
	"encoding/json"
	"strings"
)

// ResolveInput renders a stage's input from its template, the initial
// pipeline input, and the prior-stage outputs.
//
// Placeholders: `{{input}}` is the initial input; `{{stage.NAME}}` is the
// output of stage NAME. A placeholder standing alone substitutes the JSON
// value itself; inside surrounding text each placeholder is spliced in as
// text (string outputs unquoted, others compact JSON). An empty template
// yields prev verbatim — the prior stage's output, or the initial input for
// the first stage.
func ResolveInput(tmpl string, initial, prev json.RawMessage, outputs map[string]json.RawMessage) json.RawMessage {
	if tmpl == "" {
		if prev != nil {
			return prev
		}
		return initial
	}

	trimmed := strings.TrimSpace(tmpl)
	if val, ok := lookup(trimmed, initial, outputs); ok && placeholderOnly(trimmed) {
		return val
	}

	var b strings.Builder
	rest := tmpl
	for {
		open := strings.Index(rest, "{{")
		if open < 0 {
			b.WriteString(rest)
			break
		}
		closing := strings.Index(rest[open:], "}}")
		if closing < 0 {
			b.WriteString(rest)
			break
		}
		b.WriteString(rest[:open])
		key := "{{" + strings.TrimSpace(rest[open+2:open+closing]) + "}}"
		if val, ok := lookup(key, initial, outputs); ok {
			b.WriteString(asText(val))
		}
		rest = rest[open+closing+2:]
	}
	return toJSON(b.String())
}

// placeholderOnly reports whether s is exactly one `{{...}}` placeholder.
func placeholderOnly(s string) bool {
	return strings.HasPrefix(s, "{{") && strings.HasSuffix(s, "}}") &&
		strings.Count(s, "{{") == 1
}

// lookup resolves one `{{...}}` placeholder to its JSON value.
func lookup(placeholder string, initial json.RawMessage, outputs map[string]json.RawMessage) (json.RawMessage, bool) {
	if !strings.HasPrefix(placeholder, "{{") || !strings.HasSuffix(placeholder, "}}") {
		return nil, false
	}
	key := strings.TrimSpace(placeholder[2 : len(placeholder)-2])
	if key == "input" {
		return initial, true
	}
	if name, ok := strings.CutPrefix(key, "stage."); ok {
		out, found := outputs[name]
		return out, found
	}
	return nil, false
}

// asText renders a JSON value for splicing into surrounding text.
func asText(val json.RawMessage) string {
	var s string
	if err := json.Unmarshal(val, &s); err == nil {
		return s
	}
	var b bytes.Buffer
	if err := json.Compact(&b, val); err == nil {
		return b.String()
	}
	return string(val)
}

// toJSON wraps rendered text back into a JSON value: valid JSON passes
// through, anything else becomes a JSON string.
func toJSON(s string) json.RawMessage {
	trimmed := strings.TrimSpace(s)
	if trimmed != "" && json.Valid([]byte(trimmed)) {
		return json.RawMessage(trimmed)
	}
	quoted, _ := json.Marshal(s)
	return quoted
}
