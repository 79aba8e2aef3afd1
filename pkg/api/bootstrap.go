package api

import (
	"net/http"

	"github.com/capmd/capmd/internal/logger"
	"github.com/capmd/capmd/pkg/clientip"
	"github.com/capmd/capmd/pkg/models"
)

type bootstrapRequest struct {
	WorkspaceName string `json:"workspaceName"`
}

type bootstrapResponse struct {
	WorkspaceID string    `json:"workspaceId"`
	Keys        keyTriple `json:"keys"`
	URLs        keyTriple `json:"urls"`
}

// handleBootstrap creates a workspace and returns its root key triple. The
// keys appear in this response and nowhere else.
func (s *handlers) handleBootstrap(w http.ResponseWriter, r *http.Request) {
	ip := clientip.Unknown
	if lc := logger.FromContext(r.Context()); lc != nil {
		ip = lc.ClientIP
	}
	if !s.allow(w, r, ip, "bootstrap") {
		return
	}

	var req bootstrapRequest
	if r.ContentLength != 0 {
		if err := decodeJSONBody(w, r, &req); err != nil {
			writeError(w, r, err)
			return
		}
	}

	res, err := s.svc.Workspace.Bootstrap(r.Context(), req.WorkspaceName)
	if err != nil {
		writeError(w, r, err)
		return
	}

	s.recordAudit(r, &models.AuditEntry{
		WorkspaceID:  res.Workspace.ID,
		Action:       models.AuditWorkspaceCreated,
		ResourceType: "workspace",
		ResourceID:   res.Workspace.ID,
		ActorType:    "anonymous",
	})

	kd := s.keysToData(&res.Keys)
	writeData(w, http.StatusCreated, bootstrapResponse{
		WorkspaceID: res.Workspace.ID,
		Keys:        kd.Keys,
		URLs:        kd.URLs,
	})
}
