package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/capmd/capmd/pkg/keys"
	"github.com/capmd/capmd/pkg/models"
	"github.com/capmd/capmd/pkg/pathutil"
	"github.com/capmd/capmd/pkg/ssrf"
)

type webhookCreateRequest struct {
	URL        string   `json:"url"`
	Events     []string `json:"events"`
	FolderPath string   `json:"folderPath,omitempty"`
	Secret     string   `json:"secret,omitempty"`
}

type webhookCreateData struct {
	*models.WebhookSubscription
	// Secret is returned exactly once, at creation.
	Secret string `json:"secret"`
}

// handleWebhookCreate serves POST /w/{key}/webhooks. The target URL is
// vetted against the SSRF filter before the subscription exists; delivery
// re-checks at send time because DNS can change underneath us.
func (s *handlers) handleWebhookCreate(w http.ResponseWriter, r *http.Request) {
	auth, err := s.resolveKey(r, models.PermissionWrite, "")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !s.allow(w, r, auth.KeyHash, "subscribe") {
		return
	}

	var req webhookCreateRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.URL == "" {
		writeCodeError(w, http.StatusBadRequest, models.CodeInvalidRequest, "url is required")
		return
	}
	if _, err := ssrf.Check(r.Context(), req.URL, s.cfg.WebhookSSRF); err != nil {
		writeCodeError(w, http.StatusBadRequest, models.CodeInvalidRequest, "webhook url rejected: "+err.Error())
		return
	}

	events := "*"
	if len(req.Events) > 0 {
		events = strings.Join(req.Events, ",")
	}
	folder := ""
	if req.FolderPath != "" {
		folder, err = pathutil.NormalizeFolder(req.FolderPath)
		if err != nil {
			writeError(w, r, err)
			return
		}
	}
	secret := req.Secret
	if secret == "" {
		secret = keys.Generate(32)
	}

	sub := &models.WebhookSubscription{
		WorkspaceID: auth.WorkspaceID,
		URL:         req.URL,
		Events:      events,
		Secret:      secret,
		FolderPath:  folder,
	}
	if _, err := s.svc.Store.CreateWebhookSubscription(r.Context(), sub); err != nil {
		writeError(w, r, err)
		return
	}

	s.recordAudit(r, &models.AuditEntry{
		WorkspaceID:  auth.WorkspaceID,
		Action:       models.AuditWebhookCreated,
		ResourceType: "webhook",
		ResourceID:   sub.ID,
		Actor:        auth.Prefix,
		ActorType:    "key",
	})

	writeData(w, http.StatusCreated, webhookCreateData{WebhookSubscription: sub, Secret: secret})
}

// handleWebhookList serves GET /w/{key}/webhooks.
func (s *handlers) handleWebhookList(w http.ResponseWriter, r *http.Request) {
	auth, err := s.resolveKey(r, models.PermissionWrite, "")
	if err != nil {
		writeError(w, r, err)
		return
	}

	subs, err := s.svc.Store.ListWebhookSubscriptions(r.Context(), auth.WorkspaceID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if subs == nil {
		subs = []*models.WebhookSubscription{}
	}
	writeData(w, http.StatusOK, map[string]any{"webhooks": subs})
}

// handleWebhookDelete serves DELETE /w/{key}/webhooks/{webhookID}.
func (s *handlers) handleWebhookDelete(w http.ResponseWriter, r *http.Request) {
	auth, err := s.resolveKey(r, models.PermissionWrite, "")
	if err != nil {
		writeError(w, r, err)
		return
	}

	id := chi.URLParam(r, "webhookID")
	if err := s.svc.Store.DeleteWebhookSubscription(r.Context(), auth.WorkspaceID, id); err != nil {
		writeError(w, r, err)
		return
	}

	s.recordAudit(r, &models.AuditEntry{
		WorkspaceID:  auth.WorkspaceID,
		Action:       models.AuditWebhookDeleted,
		ResourceType: "webhook",
		ResourceID:   id,
		Actor:        auth.Prefix,
		ActorType:    "key",
	})

	writeData(w, http.StatusOK, map[string]bool{"deleted": true})
}
