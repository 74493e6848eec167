package pipeline

// BuiltinDefinitions returns the pipeline definitions registered at startup.
// CliAgent stages in presets name the agent id "default"; the orchestrator
// looks that id up as a runtime session when the stage runs, so they execute
// only when a live session has that id.
func BuiltinDefinitions() []Definition {
	return []Definition{
		translateAndSummarize(),
		reviewChain(),
	}
}

// translateAndSummarize runs one agent over two prompts: translate, then
// summarize the translation.
func translateAndSummarize() Definition {
	return Definition{
		ID:          "translate-summarize",
		Name:        "Translate and Summarize",
		Description: "Translate the input text, then summarize the translation.",
		Builtin:     true,
		Stages: []Stage{
			{
				Name:          "translate",
				Kind:          KindCliAgent,
				AgentID:       "default",
				InputTemplate: "Translate the following to English:\n\n{{input}}",
			},
			{
				Name:          "summarize",
				Kind:          KindCliAgent,
				AgentID:       "default",
				InputTemplate: "Summarize the following in three sentences:\n\n{{stage.translate}}",
			},
		},
	}
}

// reviewChain generates code with one prompt and reviews it with a second.
func reviewChain() Definition {
	return Definition{
		ID:          "generate-review",
		Name:        "Generate and Review",
		Description: "Generate code for the request, then review the generated code.",
		Builtin:     true,
		Stages: []Stage{
			{
				Name:          "generate",
				Kind:          KindCliAgent,
				AgentID:       "default",
				InputTemplate: "{{input}}",
			},
			{
				Name:          "review",
				Kind:          KindCliAgent,
				AgentID:       "default",
				InputTemplate: "Review the following change for correctness and style:\n\n{{stage.generate}}",
			},
		},
	}
}
