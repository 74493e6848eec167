package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// MountRoutes registers all API routes on the given chi router.
func MountRoutes(r chi.Router, h *Handlers) {
	r.Route("/api/v1", func(r chi.Router) {
		// Version
		r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"version":"0.1.0"}`))
		})

		// Executors
		r.Post("/executors", h.StartExecutor)
		r.Get("/executors", h.ListSessions)
		r.Post("/executors/{session_id}/execute", h.Execute)
		r.Post("/executors/{session_id}/permission", h.SubmitPermission)
		r.Get("/executors/{session_id}/state", h.GetState)
		r.Get("/executors/{session_id}/running", h.IsRunning)
		r.Delete("/executors/{session_id}", h.StopExecutor)

		// Permission policy
		r.Put("/permissions/policy", h.SetPolicy)

		// Agent registry
		r.Post("/agents", h.RegisterAgent)
		r.Get("/agents", h.ListAgents)
		r.Post("/agents/discover", h.DiscoverAgents)
		r.Get("/agents/{id}", h.GetAgent)
		r.Post("/agents/{id}/heartbeat", h.HeartbeatAgent)
		r.Delete("/agents/{id}", h.UnregisterAgent)

		// Pipelines
		r.Post("/pipelines", h.DefinePipeline)
		r.Get("/pipelines", h.ListPipelines)
		r.Post("/pipelines/{id}/execute", h.ExecutePipeline)
		r.Get("/executions", h.ListActiveExecutions)
		r.Get("/executions/{execution_id}", h.GetExecution)
		r.Post("/executions/{execution_id}/cancel", h.CancelExecution)
	})
}
