package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/capmd/capmd/pkg/appendlog"
	"github.com/capmd/capmd/pkg/models"
	"github.com/capmd/capmd/pkg/webhook"
)

// maxBulkFiles caps one bulk create request.
const maxBulkFiles = 100

type appendRequest struct {
	Author           string     `json:"author"`
	Type             string     `json:"type"`
	Status           string     `json:"status,omitempty"`
	Priority         string     `json:"priority,omitempty"`
	Labels           []string   `json:"labels,omitempty"`
	Ref              string     `json:"ref,omitempty"`
	Content          string     `json:"content"`
	ExpiresInSeconds int        `json:"expiresInSeconds,omitempty"`
	ExpiresAt        *time.Time `json:"expiresAt,omitempty"`
	DueAt            *time.Time `json:"dueAt,omitempty"`
}

// handleAppend serves POST /a/{key}/*: append one entry to the file's log.
func (s *handlers) handleAppend(w http.ResponseWriter, r *http.Request) {
	path, err := wildcardPath(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	auth, err := s.resolveKey(r, models.PermissionAppend, path)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req appendRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	entry, err := s.svc.Appends.Append(r.Context(), auth.WorkspaceID, path, appendlog.Input{
		Author:           req.Author,
		Type:             models.AppendType(req.Type),
		Status:           req.Status,
		Priority:         models.Priority(req.Priority),
		Labels:           req.Labels,
		Ref:              req.Ref,
		Content:          req.Content,
		ExpiresAt:        req.ExpiresAt,
		ExpiresInSeconds: req.ExpiresInSeconds,
		DueAt:            req.DueAt,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	s.recordAudit(r, &models.AuditEntry{
		WorkspaceID:  auth.WorkspaceID,
		Action:       models.AuditAppendCreated,
		ResourceType: "append",
		ResourceID:   entry.PublicID,
		ResourcePath: path,
		Actor:        req.Author,
		ActorType:    "key",
	})
	s.emitEvent(r, webhook.Event{
		Type:        webhook.EventAppendCreated,
		WorkspaceID: auth.WorkspaceID,
		Path:        path,
		Data:        map[string]any{"id": entry.PublicID, "type": string(entry.Type), "author": entry.Author},
	})

	writeData(w, http.StatusCreated, entry)
}

// appendPageData is one page of a file's append log.
type appendPageData struct {
	Path       string           `json:"path"`
	Entries    []*models.Append `json:"entries"`
	Total      int64            `json:"total"`
	NextCursor string           `json:"nextCursor,omitempty"`
}

// handleAppendRead serves GET /a/{key}/*: the file's append log, or a
// folder listing when the tail targets a folder.
func (s *handlers) handleAppendRead(w http.ResponseWriter, r *http.Request) {
	if isFolderRequest(r) {
		s.listFolder(w, r, models.PermissionAppend)
		return
	}

	path, err := wildcardPath(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	auth, err := s.resolveKey(r, models.PermissionAppend, path)
	if err != nil {
		writeError(w, r, err)
		return
	}

	page, err := s.svc.Appends.List(r.Context(), auth.WorkspaceID, path,
		r.URL.Query().Get("since"), queryInt(r, "limit", 0))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, appendPageData{
		Path:       path,
		Entries:    page.Entries,
		Total:      page.Total,
		NextCursor: page.NextCursor,
	})
}

// handleClaims serves GET /a/{key}/claims: governing claims on open tasks
// under the key's scope.
func (s *handlers) handleClaims(w http.ResponseWriter, r *http.Request) {
	auth, err := s.resolveKey(r, models.PermissionAppend, "")
	if err != nil {
		writeError(w, r, err)
		return
	}

	prefix := ""
	if auth.ScopeType == models.ScopeFolder {
		prefix = auth.ScopePath
	}
	claims, err := s.svc.Orchestration.Claims(r.Context(), auth.WorkspaceID, prefix)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, map[string]any{"claims": claims})
}

type bulkRequest struct {
	Files []bulkFile `json:"files"`
}

type bulkFile struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

type bulkResult struct {
	Path   string `json:"path"`
	Status string `json:"status"`
	ETag   string `json:"etag,omitempty"`
}

// handleBulk serves POST /a/{key}/bulk: create many files in one request.
// Existing files are reported and left untouched; the append tier never
// overwrites content.
func (s *handlers) handleBulk(w http.ResponseWriter, r *http.Request) {
	var req bulkRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if len(req.Files) == 0 || len(req.Files) > maxBulkFiles {
		writeCodeError(w, http.StatusBadRequest, models.CodeInvalidRequest, "files must contain between 1 and 100 entries")
		return
	}

	// Authorize every target before touching any of them.
	type target struct {
		path    string
		content string
	}
	targets := make([]target, 0, len(req.Files))
	var workspaceID string
	for _, f := range req.Files {
		auth, err := s.resolveKeyPath(r, models.PermissionAppend, f.Path)
		if err != nil {
			writeError(w, r, err)
			return
		}
		workspaceID = auth.WorkspaceID
		targets = append(targets, target{path: auth.path, content: f.Content})
	}

	results := make([]bulkResult, 0, len(targets))
	for _, t := range targets {
		if _, err := s.svc.Store.FindFileByPath(r.Context(), workspaceID, t.path); err == nil {
			results = append(results, bulkResult{Path: t.path, Status: "exists"})
			continue
		} else if !errors.Is(err, models.ErrFileNotFound) {
			writeError(w, r, err)
			return
		}
		res, err := s.svc.Workspace.Upsert(r.Context(), workspaceID, t.path, t.content, "")
		if err != nil {
			writeError(w, r, err)
			return
		}
		results = append(results, bulkResult{Path: t.path, Status: "created", ETag: res.File.ETag()})
		s.recordAudit(r, &models.AuditEntry{
			WorkspaceID:  workspaceID,
			Action:       models.AuditFileCreated,
			ResourceType: "file",
			ResourceID:   res.File.ID,
			ResourcePath: t.path,
			ActorType:    "key",
		})
		s.emitEvent(r, webhook.Event{
			Type:        webhook.EventFileCreated,
			WorkspaceID: workspaceID,
			Path:        t.path,
			Data:        map[string]any{"etag": res.File.ETag(), "size": res.File.SizeBytes},
		})
	}

	writeData(w, http.StatusAccepted, map[string]any{"results": results})
}

type copyRequest struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// handleCopy serves POST /a/{key}/copy: duplicate a file to a new path
// inside the key's scope. The destination must not exist.
func (s *handlers) handleCopy(w http.ResponseWriter, r *http.Request) {
	var req copyRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	src, err := s.resolveKeyPath(r, models.PermissionAppend, req.From)
	if err != nil {
		writeError(w, r, err)
		return
	}
	dst, err := s.resolveKeyPath(r, models.PermissionAppend, req.To)
	if err != nil {
		writeError(w, r, err)
		return
	}

	source, err := s.svc.Store.FindFileByPath(r.Context(), src.WorkspaceID, src.path)
	if err != nil {
		if errors.Is(err, models.ErrFileNotFound) {
			err = models.ErrSourceNotFound
		}
		writeError(w, r, err)
		return
	}
	if _, err := s.svc.Store.FindFileByPath(r.Context(), dst.WorkspaceID, dst.path); err == nil {
		writeError(w, r, models.ErrDestinationExists)
		return
	} else if !errors.Is(err, models.ErrFileNotFound) {
		writeError(w, r, err)
		return
	}

	res, err := s.svc.Workspace.Upsert(r.Context(), dst.WorkspaceID, dst.path, source.Content, "")
	if err != nil {
		writeError(w, r, err)
		return
	}

	s.recordAudit(r, &models.AuditEntry{
		WorkspaceID:  dst.WorkspaceID,
		Action:       models.AuditFileCreated,
		ResourceType: "file",
		ResourceID:   res.File.ID,
		ResourcePath: dst.path,
		ActorType:    "key",
		Metadata:     models.JSONMap{"copiedFrom": src.path},
	})
	s.emitEvent(r, webhook.Event{
		Type:        webhook.EventFileCreated,
		WorkspaceID: dst.WorkspaceID,
		Path:        dst.path,
		Data:        map[string]any{"copiedFrom": src.path},
	})

	writeData(w, http.StatusCreated, fileToData(res.File, false))
}
