package api

import (
	"net/http"

	"github.com/capmd/capmd/pkg/models"
)

// handleHealth is the liveness probe.
func (s *handlers) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeData(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// handleReady is the readiness probe: the process is ready once the
// database answers.
func (s *handlers) handleReady(w http.ResponseWriter, r *http.Request) {
	db, err := s.svc.Store.DB().DB()
	if err == nil {
		err = db.PingContext(r.Context())
	}
	if err != nil {
		writeCodeError(w, http.StatusServiceUnavailable, models.CodeServerError, "database unavailable")
		return
	}
	writeData(w, http.StatusOK, map[string]string{"status": "ready"})
}
