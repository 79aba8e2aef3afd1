package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/capmd/capmd/pkg/keys"
	"github.com/capmd/capmd/pkg/models"
	"github.com/capmd/capmd/pkg/orchestration"
)

// requireOwnedWorkspace loads the workspace named in the URL and checks it
// belongs to the session owner. A workspace that exists but belongs to
// someone else is reported exactly like one that does not exist.
func (s *handlers) requireOwnedWorkspace(w http.ResponseWriter, r *http.Request) (string, bool) {
	workspaceID := chi.URLParam(r, "workspaceID")
	session := sessionFromContext(r.Context())
	if session == nil {
		writeCodeError(w, http.StatusUnauthorized, models.CodeUnauthorized, "owner session required")
		return "", false
	}

	ws, err := s.svc.Store.GetWorkspace(r.Context(), workspaceID)
	if err != nil {
		writeError(w, r, err)
		return "", false
	}
	if !ws.Claimed() || *ws.OwnerID != session.OwnerID {
		writeCodeError(w, http.StatusNotFound, models.CodeWorkspaceNotFound, "workspace not found")
		return "", false
	}
	return workspaceID, true
}

type claimOpRequest struct {
	ExpiresInSeconds int    `json:"expiresInSeconds,omitempty"`
	Content          string `json:"content,omitempty"`
	Reason           string `json:"reason,omitempty"`
}

type claimOpData struct {
	Claim    *models.Append `json:"claim"`
	AppendID string         `json:"appendId"`
}

// handleClaimOp serves the four owner claim operators:
// POST /workspaces/{id}/orchestration/claims/{claimID}/{renew|complete|cancel|block}.
func (s *handlers) handleClaimOp(w http.ResponseWriter, r *http.Request) {
	workspaceID, ok := s.requireOwnedWorkspace(w, r)
	if !ok {
		return
	}
	claimID := chi.URLParam(r, "claimID")
	op := chi.URLParam(r, "op")

	var req claimOpRequest
	if r.ContentLength > 0 {
		if err := decodeJSONBody(w, r, &req); err != nil {
			writeError(w, r, err)
			return
		}
	}

	var (
		res *orchestration.ClaimResult
		err error
		act models.AuditAction
	)
	switch op {
	case "renew":
		res, err = s.svc.Orchestration.Renew(r.Context(), workspaceID, claimID, req.ExpiresInSeconds)
		act = models.AuditClaimRenewed
	case "complete":
		res, err = s.svc.Orchestration.Complete(r.Context(), workspaceID, claimID, req.Content)
		act = models.AuditClaimCompleted
	case "cancel":
		res, err = s.svc.Orchestration.Cancel(r.Context(), workspaceID, claimID, req.Reason)
		act = models.AuditClaimCancelled
	case "block":
		res, err = s.svc.Orchestration.Block(r.Context(), workspaceID, claimID, req.Reason)
		act = models.AuditClaimBlocked
	default:
		writeCodeError(w, http.StatusNotFound, models.CodeNotFound, "unknown claim operation")
		return
	}
	if err != nil {
		writeError(w, r, err)
		return
	}

	session := sessionFromContext(r.Context())
	s.recordAudit(r, &models.AuditEntry{
		WorkspaceID:  workspaceID,
		Action:       act,
		ResourceType: "claim",
		ResourceID:   claimID,
		Actor:        session.Email,
		ActorType:    "owner",
	})

	writeData(w, http.StatusOK, claimOpData{Claim: res.Claim, AppendID: res.AppendID})
}

// handleTasks serves GET /workspaces/{id}/orchestration/tasks: the derived
// task board, filterable by state, priority, agent, and location.
func (s *handlers) handleTasks(w http.ResponseWriter, r *http.Request) {
	workspaceID, ok := s.requireOwnedWorkspace(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	filter := orchestration.Filter{
		Agent:  q.Get("agent"),
		File:   q.Get("file"),
		Folder: q.Get("folder"),
		Limit:  queryInt(r, "limit", 0),
		Cursor: q.Get("cursor"),
	}
	for _, st := range splitCSV(q.Get("status")) {
		filter.States = append(filter.States, orchestration.TaskState(st))
	}
	for _, p := range splitCSV(q.Get("priority")) {
		filter.Priorities = append(filter.Priorities, models.Priority(p))
	}

	page, err := s.svc.Orchestration.Tasks(r.Context(), workspaceID, filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, map[string]any{
		"tasks":      page.Tasks,
		"total":      page.Total,
		"nextCursor": page.NextCursor,
	})
}

type apiKeyCreateRequest struct {
	Scopes []string `json:"scopes"`
	Live   bool     `json:"live,omitempty"`
}

type apiKeyCreateData struct {
	// Token is returned exactly once, at creation.
	Token string         `json:"token"`
	Key   *models.APIKey `json:"key"`
}

// handleAPIKeyCreate serves POST /workspaces/{id}/api-keys: mint an sk_
// admin key for an owned workspace.
func (s *handlers) handleAPIKeyCreate(w http.ResponseWriter, r *http.Request) {
	workspaceID, ok := s.requireOwnedWorkspace(w, r)
	if !ok {
		return
	}

	var req apiKeyCreateRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	scopes := "*"
	if len(req.Scopes) > 0 {
		scopes = strings.Join(req.Scopes, ",")
	}

	token := keys.GenerateAPI(req.Live)
	key := &models.APIKey{
		WorkspaceID: workspaceID,
		Prefix:      keys.Prefix(token),
		Hash:        keys.Hash(token),
		Scopes:      scopes,
		Live:        req.Live,
	}
	if _, err := s.svc.Store.CreateAPIKey(r.Context(), key); err != nil {
		writeError(w, r, err)
		return
	}

	writeData(w, http.StatusCreated, apiKeyCreateData{Token: token, Key: key})
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
