package pipeline

import (
	"encoding/json"
	"testing"
)

func TestResolveInputEmptyTemplate(t *testing.T) {
	initial := json.RawMessage(`"hello"`)
	prev := json.RawMessage(`{"x":2}`)

	if got := ResolveInput("", initial, nil, nil); string(got) != `"hello"` {
		t.Errorf("first stage should get the initial input, got %s", got)
	}
	if got := ResolveInput("", initial, prev, nil); string(got) != `{"x":2}` {
		t.Errorf("later stage should get the previous output, got %s", got)
	}
}

func TestResolveInputLonePlaceholderKeepsJSON(t *testing.T) {
	outputs := map[string]json.RawMessage{"first": json.RawMessage(`{"x":2}`)}

	got := ResolveInput("{{stage.first}}", nil, nil, outputs)
	if string(got) != `{"x":2}` {
		t.Errorf("lone placeholder should pass the JSON value through, got %s", got)
	}

	got = ResolveInput("{{input}}", json.RawMessage(`[1,2]`), nil, nil)
	if string(got) != `[1,2]` {
		t.Errorf("lone input placeholder should pass through, got %s", got)
	}
}

func TestResolveInputSplicesText(t *testing.T) {
	outputs := map[string]json.RawMessage{"translate": json.RawMessage(`"bonjour"`)}

	got := ResolveInput("Summarize: {{stage.translate}}", nil, nil, outputs)
	var s string
	if err := json.Unmarshal(got, &s); err != nil {
		t.Fatalf("spliced template should be a JSON string, got %s", got)
	}
	if s != "Summarize: bonjour" {
		t.Errorf("string outputs splice unquoted, got %q", s)
	}
}

func TestResolveInputSplicesObjectAsJSON(t *testing.T) {
	outputs := map[string]json.RawMessage{"scan": json.RawMessage(`{"hits":3}`)}

	got := ResolveInput("Results were {{stage.scan}} today", nil, nil, outputs)
	var s string
	if err := json.Unmarshal(got, &s); err != nil {
		t.Fatalf("expected JSON string, got %s", got)
	}
	if s != `Results were {"hits":3} today` {
		t.Errorf("object outputs splice as compact JSON, got %q", s)
	}
}

func TestResolveInputMissingStageResolvesEmpty(t *testing.T) {
	got := ResolveInput("before {{stage.absent}} after", nil, nil, nil)
	var s string
	if err := json.Unmarshal(got, &s); err != nil {
		t.Fatalf("expected JSON string, got %s", got)
	}
	if s != "before  after" {
		t.Errorf("missing stage should resolve to empty text, got %q", s)
	}
}

func TestResolveInputMultiplePlaceholders(t *testing.T) {
	outputs := map[string]json.RawMessage{
		"a": json.RawMessage(`"one"`),
		"b": json.RawMessage(`"two"`),
	}
	got := ResolveInput("{{stage.a}} and {{stage.b}}", nil, nil, outputs)
	var s string
	if err := json.Unmarshal(got, &s); err != nil {
		t.Fatal(err)
	}
	if s != "one and two" {
		t.Errorf("got %q", s)
	}
}
