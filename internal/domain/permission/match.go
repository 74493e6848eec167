package permission

import (
	"encoding/json"
	"strings"
)

// Specifier builds the canonical call form for a tool request: `Base` for
// tools without an argument segment, `Base(cmd:rest)` for Bash-style tools
// whose input carries a command string. `Bash` with command "ls -la /tmp"
// becomes `Bash(ls:-la /tmp)`.
func Specifier(toolName string, toolInput json.RawMessage) string {
	cmd := commandField(toolInput)
	if cmd == "" {
		return toolName
	}
	word, rest, _ := strings.Cut(cmd, " ")
	// Multi-word git subcommands keep their verb pair, matching the
	// `Bash(git status:*)` pattern shape.
	if word == "git" {
		sub, tail, ok := strings.Cut(rest, " ")
		if sub != "" {
			if !ok {
				return toolName + "(git " + sub + ")"
			}
			return toolName + "(git " + sub + ":" + tail + ")"
		}
	}
	if rest == "" {
		return toolName + "(" + word + ")"
	}
	return toolName + "(" + word + ":" + rest + ")"
}

// commandField extracts the "command" string from a tool input object.
func commandField(input json.RawMessage) string {
	if len(input) == 0 {
		return ""
	}
	var fields struct {
		Command string `json:"command"`
	}
	if err := json.Unmarshal(input, &fields); err != nil {
		return ""
	}
	return strings.TrimSpace(fields.Command)
}

// Match reports whether a policy pattern matches a call specifier.
//
// Patterns are `Base` or `Base(args)` where a trailing `*` in the args
// segment matches any suffix: `Bash(ls:*)` matches `Bash(ls:-la /tmp)`.
// A bare `*` pattern matches every call.
func Match(pattern, spec string) bool {
	if pattern == "*" || pattern == spec {
		return true
	}

	patBase, patArgs, patHasArgs := splitSpec(pattern)
	specBase, specArgs, _ := splitSpec(spec)

	if patBase != specBase {
		return false
	}
	if !patHasArgs {
		// `Bash` alone covers every Bash invocation.
		return true
	}
	if prefix, ok := strings.CutSuffix(patArgs, "*"); ok {
		// `ls:*` also covers a bare `ls` with no further arguments.
		if bare, colon := strings.CutSuffix(prefix, ":"); colon && specArgs == bare {
			return true
		}
		return strings.HasPrefix(specArgs, prefix)
	}
	return patArgs == specArgs
}

// matchAny reports whether any pattern in the list matches the specifier.
func matchAny(patterns []string, spec string) bool {
	for _, p := range patterns {
		if Match(p, spec) {
			return true
		}
	}
	return false
}

// splitSpec splits `Base(args)` into its base and argument segment.
func splitSpec(s string) (base, args string, hasArgs bool) {
	open := strings.IndexByte(s, '(')
	if open < 0 || !strings.HasSuffix(s, ")") {
		return s, "", false
	}
	return s[:open], s[open+1 : len(s)-1], true
}
