package permission

import (
	"encoding/json"
	"reflect"
	"testing"
)

func bashInput(cmd string) json.RawMessage {
	b, _ := json.Marshal(map[string]string{"command": cmd})
	return b
}

func TestSpecifier(t *testing.T) {
	tests := []struct {
		tool  string
		input json.RawMessage
		want  string
	}{
		{"Read", nil, "Read"},
		{"Read", []byte(`{"path":"/tmp/x"}`), "Read"},
		{"Bash", bashInput("ls -la /tmp"), "Bash(ls:-la /tmp)"},
		{"Bash", bashInput("pwd"), "Bash(pwd)"},
		{"Bash", bashInput("git status --short"), "Bash(git status:--short)"},
		{"Bash", bashInput("git status"), "Bash(git status)"},
	}
	for _, tt := range tests {
		if got := Specifier(tt.tool, tt.input); got != tt.want {
			t.Errorf("Specifier(%s, %s) = %q, want %q", tt.tool, tt.input, got, tt.want)
		}
	}
}

func TestMatch(t *testing.T) {
	tests := []struct {
		pattern string
		spec    string
		want    bool
	}{
		{"*", "Write", true},
		{"Read", "Read", true},
		{"Read", "Write", false},
		{"Bash(ls:*)", "Bash(ls:-la /tmp)", true},
		{"Bash(ls:*)", "Bash(ls)", true},
		{"Bash(ls:*)", "Bash(rm:-rf /)", false},
		{"Bash(git status:*)", "Bash(git status)", true},
		{"Bash(git status:*)", "Bash(git status:--short)", true},
		{"Bash(git status:*)", "Bash(git commit:-m x)", false},
		{"Bash", "Bash(anything:at all)", true},
		{"Bash(pwd)", "Bash(pwd)", true},
		{"Bash(pwd)", "Bash(pwd:-P)", false},
	}
	for _, tt := range tests {
		if got := Match(tt.pattern, tt.spec); got != tt.want {
			t.Errorf("Match(%q, %q) = %v, want %v", tt.pattern, tt.spec, got, tt.want)
		}
	}
}

func TestReadOnlyPolicy(t *testing.T) {
	m := NewManager()
	m.SetPolicy(PolicyReadOnly)

	if d := m.Classify("Read", nil, "R1"); d.Kind != DecisionAllow || d.Always {
		t.Errorf("Read should auto-approve (not always), got %+v", d)
	}
	if d := m.Classify("Bash", bashInput("ls -la"), "R2"); d.Kind != DecisionAllow {
		t.Errorf("Bash(ls) should auto-approve, got %+v", d)
	}
	if d := m.Classify("Write", nil, "R3"); d.Kind != DecisionDeny {
		t.Errorf("Write should deny under read-only, got %+v", d)
	}
	if d := m.Classify("Write", nil, "R3"); d.Reason == "" {
		t.Errorf("deny should carry a reason, got %+v", d)
	}
}

func TestStandardPolicy(t *testing.T) {
	m := NewManager()

	if d := m.Classify("Grep", nil, "R1"); d.Kind != DecisionAllow {
		t.Errorf("Grep should auto-approve, got %+v", d)
	}
	d := m.Classify("Write", []byte(`{"path":"/etc/hosts"}`), "R2")
	if d.Kind != DecisionRequireHuman {
		t.Fatalf("Write should escalate, got %+v", d)
	}
	if d.RequestID != "R2" || d.ToolName != "Write" {
		t.Errorf("escalation should carry request id and tool, got %+v", d)
	}
	if len(d.Options) == 0 {
		t.Error("escalation should offer answer options")
	}
	// Unlisted tool falls to the Human default.
	if d := m.Classify("WebFetch", nil, "R3"); d.Kind != DecisionRequireHuman {
		t.Errorf("unknown tool should escalate under standard, got %+v", d)
	}
}

func TestStrictPolicy(t *testing.T) {
	m := NewManager()
	m.SetPolicy(PolicyStrict)

	for _, tool := range []string{"Read", "Write", "Bash"} {
		if d := m.Classify(tool, nil, "R"); d.Kind != DecisionRequireHuman {
			t.Errorf("%s should escalate under strict, got %+v", tool, d)
		}
	}
}

func TestPermissivePolicy(t *testing.T) {
	m := NewManager()
	m.SetPolicy(PolicyPermissive)

	for _, tool := range []string{"Read", "Write", "Bash"} {
		if d := m.Classify(tool, bashInput("rm -rf /"), "R"); d.Kind != DecisionAllow {
			t.Errorf("%s should allow under permissive, got %+v", tool, d)
		}
	}
}

func TestRememberOverridesPolicy(t *testing.T) {
	m := NewManager()

	if d := m.Classify("Write", nil, "R1"); d.Kind != DecisionRequireHuman {
		t.Fatalf("precondition: Write escalates, got %+v", d)
	}

	m.Remember("Write", true)
	if d := m.Classify("Write", nil, "R2"); d.Kind != DecisionAllow || !d.Always {
		t.Errorf("remembered tool should allow always, got %+v", d)
	}

	m.Remember("Write", false)
	if d := m.Classify("Write", nil, "R3"); d.Kind != DecisionDeny {
		t.Errorf("remembered denial should deny, got %+v", d)
	}

	m.Forget("Write")
	if d := m.Classify("Write", nil, "R4"); d.Kind != DecisionRequireHuman {
		t.Errorf("forgotten tool should escalate again, got %+v", d)
	}
}

func TestClassifyIsDeterministic(t *testing.T) {
	m := NewManager()
	in := bashInput("npm install leftpad")

	first := m.Classify("Bash", in, "R1")
	second := m.Classify("Bash", in, "R1")
	if !reflect.DeepEqual(first, second) {
		t.Errorf("classify should be deterministic: %+v vs %+v", first, second)
	}
}

func TestAllowedToolsArgs(t *testing.T) {
	m := NewManager()
	m.PreApprove("Bash(make:*)")

	args := m.AllowedToolsArgs()
	if len(args) != 2 || args[0] != "--allowedTools" {
		t.Fatalf("expected [--allowedTools, list], got %v", args)
	}
	for _, want := range []string{"Read", "Grep", "Bash(make:*)", "Bash(ls:*)"} {
		if !containsTool(args[1], want) {
			t.Errorf("allow list should contain %s, got %s", want, args[1])
		}
	}
}

func TestAllowedToolsArgsPermissiveHasNoStar(t *testing.T) {
	m := NewManager()
	m.SetPolicy(PolicyPermissive)
	for _, a := range m.AllowedToolsArgs() {
		if a == "*" {
			t.Error("the bare wildcard must not leak into CLI args")
		}
	}
}

func containsTool(list, tool string) bool {
	for _, item := range splitComma(list) {
		if item == tool {
			return true
		}
	}
	return false
}

func splitComma(s string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	return out
}
