package web

import (
	"net/http"

	"turnstile/internal/api"
	"turnstile/internal/engine"
	"turnstile/internal/logging"
)

// healthResponse reports the state of the daemon's dependencies. The HTTP
// status is always 200; probes read the status field.
type healthResponse struct {
	Success    bool               `json:"success"`
	Status     string             `json:"status"`
	Database   api.DatabaseHealth `json:"database"`
	FaceEngine string             `json:"faceEngine"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	health, err := s.store.CheckHealth(ctx)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	resp := healthResponse{
		Success:    true,
		Status:     "ok",
		Database:   api.FromDatabaseHealth(health),
		FaceEngine: "ok",
	}
	if err := s.faces.Health(ctx); err != nil {
		resp.FaceEngine = "unreachable"
		resp.Status = "degraded"
		s.logger.Debug("face engine health check failed", logging.Error(err))
	}
	if !health.IntegrityCheck || health.Error != "" || len(health.MissingTables) > 0 {
		resp.Status = "degraded"
	}
	writeJSON(w, http.StatusOK, resp)
}

type statusResponse struct {
	Success bool `json:"success"`
	api.DaemonStatus
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	var engineStatus engine.Status
	if s.engine != nil {
		engineStatus = s.engine.Status()
	}
	writeJSON(w, http.StatusOK, statusResponse{
		Success:      true,
		DaemonStatus: api.BuildDaemonStatus(s.cfg, engineStatus, s.info),
	})
}
