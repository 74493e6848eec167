package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Strob0t/AgentMesh/internal/domain/card"
	"github.com/Strob0t/AgentMesh/internal/domain/pipeline"
	"github.com/Strob0t/AgentMesh/internal/service"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	pipelines := service.NewPipelineService(32)
	registry := service.NewRegistryService(time.Minute, time.Minute, nil, 0)
	orch := service.NewOrchestratorService(pipelines, nil, nil, nil, time.Hour)

	h := &Handlers{
		Registry:     registry,
		Pipelines:    pipelines,
		Orchestrator: orch,
	}

	r := chi.NewRouter()
	MountRoutes(r, h)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, method, url string, body string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body == "" {
		reader = bytes.NewReader([]byte("{}"))
	} else {
		reader = bytes.NewReader([]byte(body))
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		t.Fatal(err)
	}
	return resp, buf.Bytes()
}

func TestRegistryEndpoints(t *testing.T) {
	srv := newTestServer(t)

	cardJSON := `{"name":"reviewer","url":"acp://localhost/reviewer","version":"1.0.0",` +
		`"skills":[{"id":"code-review","name":"Code Review","tags":["coding"]}]}`

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/v1/agents", cardJSON)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register: expected 201, got %d: %s", resp.StatusCode, body)
	}
	var reg struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &reg); err != nil || reg.ID != "reviewer" {
		t.Fatalf("bad register response: %s", body)
	}

	// Duplicate registration conflicts.
	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/api/v1/agents", cardJSON)
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("duplicate register: expected 409, got %d", resp.StatusCode)
	}

	resp, body = doJSON(t, http.MethodGet, srv.URL+"/api/v1/agents/reviewer", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get: expected 200, got %d", resp.StatusCode)
	}
	var got card.AgentCard
	if err := json.Unmarshal(body, &got); err != nil || got.ProtocolVersion != card.ProtocolVersion {
		t.Errorf("card should carry the pinned protocol version: %s", body)
	}

	resp, body = doJSON(t, http.MethodPost, srv.URL+"/api/v1/agents/discover",
		`{"capabilities":["code-review"]}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("discover: expected 200, got %d", resp.StatusCode)
	}
	var cards []card.AgentCard
	if err := json.Unmarshal(body, &cards); err != nil || len(cards) != 1 {
		t.Errorf("discover should find the reviewer: %s", body)
	}

	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/api/v1/agents/reviewer/heartbeat", "")
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("heartbeat: expected 204, got %d", resp.StatusCode)
	}

	resp, _ = doJSON(t, http.MethodDelete, srv.URL+"/api/v1/agents/reviewer", "")
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("unregister: expected 204, got %d", resp.StatusCode)
	}
	resp, _ = doJSON(t, http.MethodGet, srv.URL+"/api/v1/agents/reviewer", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("get after unregister: expected 404, got %d", resp.StatusCode)
	}
}

func TestPipelineEndpoints(t *testing.T) {
	srv := newTestServer(t)

	defJSON := `{"name":"noop","stages":[{"name":"only","kind":"native","callable":"missing"}]}`
	resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/v1/pipelines", defJSON)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("define: expected 201, got %d: %s", resp.StatusCode, body)
	}
	var def struct {
		PipelineID string `json:"pipeline_id"`
	}
	if err := json.Unmarshal(body, &def); err != nil || def.PipelineID == "" {
		t.Fatalf("bad define response: %s", body)
	}

	// Validation failures are client errors.
	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/api/v1/pipelines", `{"name":"empty","stages":[]}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("empty stages: expected 400, got %d", resp.StatusCode)
	}

	resp, body = doJSON(t, http.MethodGet, srv.URL+"/api/v1/pipelines", "")
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), def.PipelineID) {
		t.Errorf("list should contain the new definition: %s", body)
	}

	// Execute returns promptly with an execution id; the run itself fails
	// on the unregistered callable.
	resp, body = doJSON(t, http.MethodPost, srv.URL+"/api/v1/pipelines/"+def.PipelineID+"/execute", "{}")
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("execute: expected 202, got %d: %s", resp.StatusCode, body)
	}
	var run struct {
		ExecutionID string `json:"execution_id"`
	}
	if err := json.Unmarshal(body, &run); err != nil || run.ExecutionID == "" {
		t.Fatalf("bad execute response: %s", body)
	}

	deadline := time.Now().Add(2 * time.Second)
	var exec pipeline.Execution
	for time.Now().Before(deadline) {
		resp, body = doJSON(t, http.MethodGet, srv.URL+"/api/v1/executions/"+run.ExecutionID, "")
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status: expected 200, got %d", resp.StatusCode)
		}
		if err := json.Unmarshal(body, &exec); err != nil {
			t.Fatal(err)
		}
		if exec.Status.Terminal() {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if exec.Status != pipeline.StatusFailed {
		t.Errorf("expected failed run (missing callable), got %v", exec.Status)
	}

	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/api/v1/executions/ghost/cancel", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("cancel unknown execution: expected 404, got %d", resp.StatusCode)
	}
}

func TestExecutePipelineUnknownID(t *testing.T) {
	srv := newTestServer(t)
	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/api/v1/pipelines/ghost/execute", "{}")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404, got %d", resp.StatusCode)
	}
}

func TestVersionEndpoint(t *testing.T) {
	srv := newTestServer(t)
	resp, body := doJSON(t, http.MethodGet, srv.URL+"/api/v1/", "")
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), "version") {
		t.Errorf("version endpoint broken: %d %s", resp.StatusCode, body)
	}
}
