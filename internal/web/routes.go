package web

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (s *Server) setupRoutes() {
	// Health stays reachable without a token so probes keep working when
	// auth is on.
	s.router.Get("/api/v1/health", s.handleHealth)
	if s.engine != nil {
		s.router.Method(http.MethodGet, "/metrics", s.engine.Metrics().Handler())
	}

	s.router.Route("/api/v1", func(r chi.Router) {
		if s.cfg.Web.AuthSecret != "" {
			r.Use(s.requireAuth)
		}

		r.Get("/status", s.handleStatus)
		r.Get("/events", s.handleEvents)

		r.Get("/attendance/today", s.handleAttendanceToday)
		r.Get("/attendance", s.handleAttendanceRange)
		r.Get("/attendance/export", s.handleAttendanceExport)
		r.Get("/stats/today", s.handleStatsToday)

		r.Get("/staff", s.handleStaffList)
		r.Post("/staff", s.handleStaffUpsert)
		r.Get("/staff/{id}", s.handleStaffGet)
		r.Post("/staff/{id}/deactivate", s.handleStaffDeactivate)

		r.Get("/unknown-entries", s.handleUnknownList)
		r.Get("/unknown-entries/stats", s.handleUnknownStats)
		r.Get("/unknown-entries/{id}", s.handleUnknownGet)
		r.Get("/unknown-entries/{id}/image", s.handleUnknownImage)
		r.Post("/unknown-entries/{id}/mark-processed", s.handleUnknownMarkProcessed)
		r.Post("/unknown-entries/{id}/recheck-staff", s.handleUnknownRecheck)
		r.Delete("/unknown-entries/{id}", s.handleUnknownDelete)
	})
}
