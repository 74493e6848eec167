package card

import "testing"

func boolPtr(b bool) *bool { return &b }

func transportPtr(t Transport) *Transport { return &t }

func TestKeyFallsBackToName(t *testing.T) {
	c := AgentCard{Name: "reviewer"}
	if c.Key() != "reviewer" {
		t.Errorf("expected name as key, got %q", c.Key())
	}
	c.ID = "agent-1"
	if c.Key() != "agent-1" {
		t.Errorf("expected id as key, got %q", c.Key())
	}
}

func TestClaudeCodeCard(t *testing.T) {
	c := ClaudeCode("a1", "acp://localhost/a1")
	if c.ProtocolVersion != ProtocolVersion {
		t.Errorf("card must pin the protocol version, got %q", c.ProtocolVersion)
	}
	if !c.HasSkill("code-review") {
		t.Error("claude-code card should declare code-review")
	}
	if !c.Capabilities.Streaming {
		t.Error("claude-code card should stream")
	}
}

func TestDiscoveryQueryMatches(t *testing.T) {
	c := ClaudeCode("a1", "acp://localhost/a1")

	tests := []struct {
		name  string
		query DiscoveryQuery
		want  bool
	}{
		{"empty query matches", DiscoveryQuery{}, true},
		{"all capabilities present", DiscoveryQuery{Capabilities: []string{"code-review", "analysis"}}, true},
		{"missing capability", DiscoveryQuery{Capabilities: []string{"code-review", "juggling"}}, false},
		{"any tag suffices", DiscoveryQuery{Tags: []string{"nonexistent", "review"}}, true},
		{"disjoint tags", DiscoveryQuery{Tags: []string{"nonexistent"}}, false},
		{"transport equality", DiscoveryQuery{Transport: transportPtr(TransportStdio)}, true},
		{"transport mismatch", DiscoveryQuery{Transport: transportPtr(TransportHTTP)}, false},
		{"streaming equality", DiscoveryQuery{Streaming: boolPtr(true)}, true},
		{"streaming mismatch", DiscoveryQuery{Streaming: boolPtr(false)}, false},
		{
			"conjunctive across categories",
			DiscoveryQuery{Capabilities: []string{"translation"}, Tags: []string{"coding"}, Streaming: boolPtr(false)},
			false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.query.Matches(&c); got != tt.want {
				t.Errorf("Matches = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSkillTagsDeduplicates(t *testing.T) {
	c := AgentCard{Skills: []Skill{
		{ID: "a", Tags: []string{"x", "y"}},
		{ID: "b", Tags: []string{"y", "z"}},
	}}
	tags := c.SkillTags()
	if len(tags) != 3 {
		t.Errorf("expected 3 unique tags, got %v", tags)
	}
}
