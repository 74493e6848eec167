// Package card defines the agent identity document and capability discovery
// model, shaped after the A2A v0.3 Agent Card.
package card

// ProtocolVersion is the pinned protocol version tag stamped on every card.
// Immutable once a card is published.
const ProtocolVersion = "0.3.0"

// Transport identifies how an agent is reached.
type Transport string

const (
	TransportStdio     Transport = "stdio"
	TransportWebSocket Transport = "websocket"
	TransportHTTP      Transport = "http"
)

// Provider identifies the organization behind an agent.
type Provider struct {
	Organization string `json:"organization"`
	URL          string `json:"url,omitempty"`
}

// Capabilities declares optional protocol features an agent supports.
type Capabilities struct {
	Streaming              bool `json:"streaming"`
	PushNotifications      bool `json:"pushNotifications"`
	StateTransitionHistory bool `json:"stateTransitionHistory"`
}

// Skill is a named task the agent can perform; the unit of capability
// discovery. Skills live inside their card — editing one means republishing
// the card.
type Skill struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	Examples    []string `json:"examples,omitempty"`
	InputModes  []string `json:"inputModes,omitempty"`
	OutputModes []string `json:"outputModes,omitempty"`
}

// AgentCard is the identity document for a reachable agent. Its JSON form is
// what would be served at <base-url>/.well-known/agent.json once an HTTP
// transport exists; the in-process registry stores the same object verbatim.
type AgentCard struct {
	Name               string       `json:"name"`
	Description        string       `json:"description,omitempty"`
	URL                string       `json:"url"`
	Version            string       `json:"version"`
	ProtocolVersion    string       `json:"protocolVersion"`
	Provider           *Provider    `json:"provider,omitempty"`
	Capabilities       Capabilities `json:"capabilities"`
	SecuritySchemes    []string     `json:"securitySchemes,omitempty"`
	DefaultInputModes  []string     `json:"defaultInputModes,omitempty"`
	DefaultOutputModes []string     `json:"defaultOutputModes,omitempty"`
	Skills             []Skill      `json:"skills,omitempty"`

	// ID is the registry key; the name stands in when it is absent.
	ID        string    `json:"id,omitempty"`
	Transport Transport `json:"transport,omitempty"`
}

// Key returns the identifier the registry stores the card under.
func (c *AgentCard) Key() string {
	if c.ID != "" {
		return c.ID
	}
	return c.Name
}

// HasSkill reports whether the card declares a skill with the given id.
func (c *AgentCard) HasSkill(id string) bool {
	for _, s := range c.Skills {
		if s.ID == id {
			return true
		}
	}
	return false
}

// SkillTags returns the union of all skill tags on the card.
func (c *AgentCard) SkillTags() []string {
	seen := make(map[string]struct{})
	var tags []string
	for _, s := range c.Skills {
		for _, t := range s.Tags {
			if _, ok := seen[t]; ok {
				continue
			}
			seen[t] = struct{}{}
			tags = append(tags, t)
		}
	}
	return tags
}

// ClaudeCode returns the card for a local Claude Code session with its
// default skill set.
func ClaudeCode(instanceID, url string) AgentCard {
	return AgentCard{
		Name:            "claude-code-" + instanceID,
		Description:     "Claude Code CLI session",
		URL:             url,
		Version:         "1.0.0",
		ProtocolVersion: ProtocolVersion,
		Capabilities:    Capabilities{Streaming: true},
		DefaultInputModes:  []string{"text"},
		DefaultOutputModes: []string{"text"},
		Skills: []Skill{
			{ID: "code-generation", Name: "Code Generation", Tags: []string{"coding"}},
			{ID: "code-review", Name: "Code Review", Tags: []string{"coding", "review"}},
			{ID: "translation", Name: "Translation", Tags: []string{"multilingual"}},
			{ID: "analysis", Name: "Analysis"},
			{ID: "writing", Name: "Writing"},
			{ID: "summarization", Name: "Summarization"},
		},
		ID:        "claude-code-" + instanceID,
		Transport: TransportStdio,
	}
}
