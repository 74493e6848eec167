package otel

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "agentmesh"

// Metrics holds all AgentMesh metric instruments.
type Metrics struct {
	SessionsStarted   metric.Int64Counter
	PromptsExecuted   metric.Int64Counter
	PromptsFailed     metric.Int64Counter
	ToolCalls         metric.Int64Counter
	PermissionAnswers metric.Int64Counter
	Escalations       metric.Int64Counter
	PipelinesStarted  metric.Int64Counter
	PipelinesFailed   metric.Int64Counter
	StageDuration     metric.Float64Histogram
}

// NewMetrics creates all metric instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.SessionsStarted, err = meter.Int64Counter("agentmesh.sessions.started",
		metric.WithDescription("Number of executor sessions started"))
	if err != nil {
		return nil, err
	}

	m.PromptsExecuted, err = meter.Int64Counter("agentmesh.prompts.executed",
		metric.WithDescription("Number of prompts sent to agents"))
	if err != nil {
		return nil, err
	}

	m.PromptsFailed, err = meter.Int64Counter("agentmesh.prompts.failed",
		metric.WithDescription("Number of prompts that ended in error"))
	if err != nil {
		return nil, err
	}

	m.ToolCalls, err = meter.Int64Counter("agentmesh.toolcalls",
		metric.WithDescription("Number of tool calls observed"))
	if err != nil {
		return nil, err
	}

	m.PermissionAnswers, err = meter.Int64Counter("agentmesh.permissions.answers",
		metric.WithDescription("Number of human permission answers submitted"))
	if err != nil {
		return nil, err
	}

	m.Escalations, err = meter.Int64Counter("agentmesh.permissions.escalations",
		metric.WithDescription("Number of tool calls escalated to a human"))
	if err != nil {
		return nil, err
	}

	m.PipelinesStarted, err = meter.Int64Counter("agentmesh.pipelines.started",
		metric.WithDescription("Number of pipeline executions started"))
	if err != nil {
		return nil, err
	}

	m.PipelinesFailed, err = meter.Int64Counter("agentmesh.pipelines.failed",
		metric.WithDescription("Number of pipeline executions that failed"))
	if err != nil {
		return nil, err
	}

	m.StageDuration, err = meter.Float64Histogram("agentmesh.stage.duration_seconds",
		metric.WithDescription("Pipeline stage duration in seconds"))
	if err != nil {
		return nil, err
	}

	return m, nil
}
