package permission

import (
	"encoding/json"
	"sort"
	"strings"
	"sync"
)

// Manager classifies tool calls under the active policy, consulting
// remembered decisions first. It is shared between the executor and the
// command surface: reads take a shared lock, writes an exclusive lock, and
// Classify never blocks on I/O.
type Manager struct {
	mu sync.RWMutex

	policy Policy

	// preApproved holds patterns passed to the CLI's own allow-list flag at
	// startup; calls matching them never round-trip through us.
	preApproved map[string]struct{}

	// alwaysAllow and alwaysDeny are the memo tables fed by "always"
	// answers from humans.
	alwaysAllow map[string]struct{}
	alwaysDeny  map[string]struct{}
}

// NewManager returns a Manager with the Standard policy.
func NewManager() *Manager {
	return &Manager{
		policy:      PolicyStandard,
		preApproved: make(map[string]struct{}),
		alwaysAllow: make(map[string]struct{}),
		alwaysDeny:  make(map[string]struct{}),
	}
}

// Policy returns the active policy.
func (m *Manager) Policy() Policy {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.policy
}

// SetPolicy switches the active policy. Memo tables are unaffected.
func (m *Manager) SetPolicy(p Policy) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.policy = p
}

// PreApprove adds a tool pattern to the pre-approved set.
func (m *Manager) PreApprove(pattern string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.preApproved[pattern] = struct{}{}
}

// Remember records a human "always" answer for the given tool name.
func (m *Manager) Remember(tool string, allow bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if allow {
		m.alwaysAllow[tool] = struct{}{}
		delete(m.alwaysDeny, tool)
	} else {
		m.alwaysDeny[tool] = struct{}{}
		delete(m.alwaysAllow, tool)
	}
}

// Forget drops a tool name from both memo tables.
func (m *Manager) Forget(tool string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.alwaysAllow, tool)
	delete(m.alwaysDeny, tool)
}

// AllowedToolsArgs renders the pre-approved set plus the policy's
// auto-approve list as CLI arguments for the child's own allow-list flag,
// avoiding a round-trip for tools the policy would grant anyway.
func (m *Manager) AllowedToolsArgs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	set := make(map[string]struct{}, len(m.preApproved))
	for p := range m.preApproved {
		set[p] = struct{}{}
	}
	for _, p := range policies[m.policy].autoApprove {
		if p == "*" {
			continue
		}
		set[p] = struct{}{}
	}
	if len(set) == 0 {
		return nil
	}

	tools := make([]string, 0, len(set))
	for p := range set {
		tools = append(tools, p)
	}
	sort.Strings(tools)
	return []string{"--allowedTools", strings.Join(tools, ",")}
}

// Classify decides what to do with a requested tool call. requestID is the
// identifier a human escalation would carry; the same inputs always produce
// the same decision.
func (m *Manager) Classify(toolName string, toolInput json.RawMessage, requestID string) Decision {
	m.mu.RLock()
	defer m.mu.RUnlock()

	spec := Specifier(toolName, toolInput)
	rules := policies[m.policy]

	for pattern := range m.alwaysAllow {
		if Match(pattern, spec) || pattern == toolName {
			return Allow(true)
		}
	}
	for pattern := range m.alwaysDeny {
		if Match(pattern, spec) || pattern == toolName {
			return Deny("remembered denial for " + pattern)
		}
	}
	if matchAny(mapKeys(m.preApproved), spec) {
		return Allow(true)
	}
	if matchAny(rules.autoApprove, spec) {
		return Allow(false)
	}
	if matchAny(rules.humanConfirm, spec) || rules.fallback == defaultHuman {
		return RequireHuman(requestID, toolName, toolInput)
	}
	if rules.fallback == defaultDeny {
		return Deny(string(m.policy) + " policy")
	}
	return Allow(false)
}

func mapKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	return keys
}
