package card

// DiscoveryQuery filters registered cards. Constraints are conjunctive
// across categories and disjunctive within Tags: every listed capability
// (skill id) must be present, any one tag suffices, and the remaining
// fields are equality constraints when set.
type DiscoveryQuery struct {
	Capabilities      []string   `json:"capabilities,omitempty"`
	Tags              []string   `json:"tags,omitempty"`
	Transport         *Transport `json:"transport,omitempty"`
	Streaming         *bool      `json:"streaming,omitempty"`
	PushNotifications *bool      `json:"push_notifications,omitempty"`
}

// Matches reports whether the card satisfies every constraint of the query.
func (q *DiscoveryQuery) Matches(c *AgentCard) bool {
	if q.Transport != nil && c.Transport != *q.Transport {
		return false
	}
	for _, skill := range q.Capabilities {
		if !c.HasSkill(skill) {
			return false
		}
	}
	if len(q.Tags) > 0 && !anyTagMatch(q.Tags, c.SkillTags()) {
		return false
	}
	if q.Streaming != nil && c.Capabilities.Streaming != *q.Streaming {
		return false
	}
	if q.PushNotifications != nil && c.Capabilities.PushNotifications != *q.PushNotifications {
		return false
	}
	return true
}

func anyTagMatch(want, have []string) bool {
	for _, w := range want {
		for _, h := range have {
			if w == h {
				return true
			}
		}
	}
	return false
}
