package http

import (
	"encoding/json"
	"net/http"

	"github.com/Strob0t/AgentMesh/internal/domain/card"
	"github.com/Strob0t/AgentMesh/internal/domain/permission"
	"github.com/Strob0t/AgentMesh/internal/domain/pipeline"
	"github.com/Strob0t/AgentMesh/internal/port/agentbackend"
	"github.com/Strob0t/AgentMesh/internal/service"
)

// Handlers holds the HTTP handler dependencies.
type Handlers struct {
	Runtime      *service.RuntimeService
	Registry     *service.RegistryService
	Pipelines    *service.PipelineService
	Orchestrator *service.OrchestratorService
}

// --- Executor commands ---

type startRequest struct {
	WorkingDir   string   `json:"working_dir,omitempty"`
	AllowedTools []string `json:"allowed_tools,omitempty"`
	SessionID    string   `json:"session_id,omitempty"`
}

type startResponse struct {
	SessionID string `json:"session_id"`
}

// StartExecutor launches a new executor session.
func (h *Handlers) StartExecutor(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[startRequest](w, r)
	if !ok {
		return
	}
	sessionID, err := h.Runtime.Start(r.Context(), agentbackend.Options{
		WorkingDir:   req.WorkingDir,
		AllowedTools: req.AllowedTools,
		SessionID:    req.SessionID,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, startResponse{SessionID: sessionID})
}

type executeRequest struct {
	Prompt string `json:"prompt"`
}

type executeResponse struct {
	Output string `json:"output"`
}

// Execute runs one prompt on a session and returns the final output.
func (h *Handlers) Execute(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[executeRequest](w, r)
	if !ok {
		return
	}
	if !requireField(w, req.Prompt, "prompt") {
		return
	}
	output, err := h.Runtime.Execute(r.Context(), urlParam(r, "session_id"), req.Prompt)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, executeResponse{Output: output})
}

type permissionRequest struct {
	RequestID string `json:"request_id"`
	Allow     bool   `json:"allow"`
	Always    bool   `json:"always"`
}

// SubmitPermission resolves a pending permission request.
func (h *Handlers) SubmitPermission(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[permissionRequest](w, r)
	if !ok {
		return
	}
	if !requireField(w, req.RequestID, "request_id") {
		return
	}
	if err := h.Runtime.SubmitPermission(r.Context(), urlParam(r, "session_id"), req.RequestID, req.Allow, req.Always); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// StopExecutor ends a session.
func (h *Handlers) StopExecutor(w http.ResponseWriter, r *http.Request) {
	if err := h.Runtime.Stop(r.Context(), urlParam(r, "session_id")); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetState returns the agent state snapshot for a session.
func (h *Handlers) GetState(w http.ResponseWriter, r *http.Request) {
	st, err := h.Runtime.State(urlParam(r, "session_id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

type runningResponse struct {
	Running bool `json:"running"`
}

// IsRunning reports whether a session's child is alive.
func (h *Handlers) IsRunning(w http.ResponseWriter, r *http.Request) {
	running, err := h.Runtime.IsRunning(urlParam(r, "session_id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, runningResponse{Running: running})
}

// ListSessions returns the live session ids.
func (h *Handlers) ListSessions(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.Runtime.Sessions())
}

type policyRequest struct {
	Policy string `json:"policy"`
}

// SetPolicy switches the shared permission policy.
func (h *Handlers) SetPolicy(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[policyRequest](w, r)
	if !ok {
		return
	}
	p, err := permission.ParsePolicy(req.Policy)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.Runtime.Permissions().SetPolicy(p)
	w.WriteHeader(http.StatusNoContent)
}

// --- Registry commands ---

type registerResponse struct {
	ID string `json:"id"`
}

// RegisterAgent stores an agent card.
func (h *Handlers) RegisterAgent(w http.ResponseWriter, r *http.Request) {
	c, ok := readJSON[card.AgentCard](w, r)
	if !ok {
		return
	}
	if !requireField(w, c.Name, "name") {
		return
	}
	id, err := h.Registry.Register(c)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, registerResponse{ID: id})
}

// UnregisterAgent removes an agent card.
func (h *Handlers) UnregisterAgent(w http.ResponseWriter, r *http.Request) {
	if err := h.Registry.Unregister(urlParam(r, "id")); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetAgent returns one card by id.
func (h *Handlers) GetAgent(w http.ResponseWriter, r *http.Request) {
	c, err := h.Registry.Get(urlParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// ListAgents returns all live cards.
func (h *Handlers) ListAgents(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.Registry.List())
}

// DiscoverAgents returns live cards matching the query.
func (h *Handlers) DiscoverAgents(w http.ResponseWriter, r *http.Request) {
	q, ok := readJSON[card.DiscoveryQuery](w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, h.Registry.Discover(r.Context(), q))
}

// HeartbeatAgent refreshes an agent's liveness.
func (h *Handlers) HeartbeatAgent(w http.ResponseWriter, r *http.Request) {
	if err := h.Registry.Heartbeat(urlParam(r, "id")); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Pipeline commands ---

type defineResponse struct {
	PipelineID string `json:"pipeline_id"`
}

// DefinePipeline registers a pipeline definition.
func (h *Handlers) DefinePipeline(w http.ResponseWriter, r *http.Request) {
	d, ok := readJSON[pipeline.Definition](w, r)
	if !ok {
		return
	}
	id, err := h.Pipelines.Define(&d)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, defineResponse{PipelineID: id})
}

// ListPipelines returns all registered definitions.
func (h *Handlers) ListPipelines(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.Pipelines.List())
}

type executePipelineRequest struct {
	InitialInput json.RawMessage `json:"initial_input,omitempty"`
}

type executePipelineResponse struct {
	ExecutionID string `json:"execution_id"`
}

// ExecutePipeline starts a pipeline run.
func (h *Handlers) ExecutePipeline(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[executePipelineRequest](w, r)
	if !ok {
		return
	}
	execID, err := h.Orchestrator.Execute(urlParam(r, "id"), req.InitialInput)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, executePipelineResponse{ExecutionID: execID})
}

// GetExecution returns the execution state.
func (h *Handlers) GetExecution(w http.ResponseWriter, r *http.Request) {
	e, err := h.Orchestrator.Status(urlParam(r, "execution_id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// CancelExecution flags an execution for cancellation.
func (h *Handlers) CancelExecution(w http.ResponseWriter, r *http.Request) {
	if err := h.Orchestrator.Cancel(urlParam(r, "execution_id")); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListActiveExecutions returns the ids of running executions.
func (h *Handlers) ListActiveExecutions(w http.ResponseWriter, _ *http.Request) {
	ids := h.Orchestrator.ListActive()
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, ids)
}
