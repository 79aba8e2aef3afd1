package api

import (
	"net/http"
	"time"

	"github.com/capmd/capmd/pkg/models"
	"github.com/capmd/capmd/pkg/pathutil"
	"github.com/capmd/capmd/pkg/webhook"
)

type upsertRequest struct {
	Content  string         `json:"content"`
	Settings models.JSONMap `json:"settings,omitempty"`
}

type upsertData struct {
	fileData
	Created      bool  `json:"created"`
	AppendsStale int64 `json:"appendsStale,omitempty"`
}

// handlePut serves PUT /w/{key}/*: create or update a file, or create a
// folder when the tail carries a trailing slash. If-Match makes the update
// conditional; Idempotency-Key makes it replayable.
func (s *handlers) handlePut(w http.ResponseWriter, r *http.Request) {
	if isFolderRequest(r) {
		s.putFolder(w, r)
		return
	}

	path, err := wildcardPath(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	auth, err := s.resolveKey(r, models.PermissionWrite, path)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req upsertRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	s.idempotent(w, r, auth.WorkspaceID, auth.KeyID, func() response {
		res, err := s.svc.Workspace.Upsert(r.Context(), auth.WorkspaceID, path, req.Content, r.Header.Get("If-Match"))
		if err != nil {
			return errorResponse(err)
		}
		if len(req.Settings) > 0 {
			f, err := s.svc.Workspace.UpdateSettings(r.Context(), auth.WorkspaceID, path, req.Settings)
			if err != nil {
				return errorResponse(err)
			}
			res.File = f
		}

		action := models.AuditFileUpdated
		event := webhook.EventFileUpdated
		status := http.StatusOK
		if res.Created {
			action = models.AuditFileCreated
			event = webhook.EventFileCreated
			status = http.StatusCreated
		}
		s.recordAudit(r, &models.AuditEntry{
			WorkspaceID:  auth.WorkspaceID,
			Action:       action,
			ResourceType: "file",
			ResourceID:   res.File.ID,
			ResourcePath: path,
			Actor:        auth.Prefix,
			ActorType:    "key",
		})
		s.emitEvent(r, webhook.Event{
			Type:        event,
			WorkspaceID: auth.WorkspaceID,
			Path:        path,
			Data:        map[string]any{"etag": res.File.ETag(), "size": res.File.SizeBytes},
		})

		return response{
			status: status,
			data: upsertData{
				fileData:     fileToData(res.File, false),
				Created:      res.Created,
				AppendsStale: res.AppendsStale,
			},
			etag: res.File.ETag(),
		}
	})
}

type folderRequest struct {
	Settings models.JSONMap `json:"settings,omitempty"`
}

func (s *handlers) putFolder(w http.ResponseWriter, r *http.Request) {
	tail := chiTrimmedTail(r)
	if tail == "" {
		writeCodeError(w, http.StatusBadRequest, models.CodeInvalidPath, "folder path required")
		return
	}
	folder, err := pathutil.NormalizeFolder("/" + tail)
	if err != nil {
		writeError(w, r, err)
		return
	}
	auth, err := s.resolveKey(r, models.PermissionWrite, folder[:len(folder)-1])
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req folderRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	f, err := s.svc.Workspace.CreateFolder(r.Context(), auth.WorkspaceID, folder, req.Settings)
	if err != nil {
		writeError(w, r, err)
		return
	}

	s.recordAudit(r, &models.AuditEntry{
		WorkspaceID:  auth.WorkspaceID,
		Action:       models.AuditFolderCreated,
		ResourceType: "folder",
		ResourceID:   f.ID,
		ResourcePath: folder,
		Actor:        auth.Prefix,
		ActorType:    "key",
	})
	s.emitEvent(r, webhook.Event{
		Type:        webhook.EventFolderCreated,
		WorkspaceID: auth.WorkspaceID,
		Path:        folder,
	})

	writeData(w, http.StatusCreated, f)
}

type patchRequest struct {
	NewName  string         `json:"newName,omitempty"`
	Settings models.JSONMap `json:"settings,omitempty"`
}

// handlePatch serves PATCH /w/{key}/*: rename a file in place or replace
// its settings.
func (s *handlers) handlePatch(w http.ResponseWriter, r *http.Request) {
	path, err := wildcardPath(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	auth, err := s.resolveKey(r, models.PermissionWrite, path)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req patchRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	var f *models.File
	switch {
	case req.NewName != "":
		f, err = s.svc.Workspace.Rename(r.Context(), auth.WorkspaceID, path, req.NewName)
		if err == nil {
			s.recordAudit(r, &models.AuditEntry{
				WorkspaceID:  auth.WorkspaceID,
				Action:       models.AuditFileRenamed,
				ResourceType: "file",
				ResourceID:   f.ID,
				ResourcePath: f.Path,
				Actor:        auth.Prefix,
				ActorType:    "key",
				Metadata:     models.JSONMap{"oldPath": path},
			})
			s.emitEvent(r, webhook.Event{
				Type:        webhook.EventFileMoved,
				WorkspaceID: auth.WorkspaceID,
				Path:        f.Path,
				Data:        map[string]any{"from": path},
			})
		}
	case req.Settings != nil:
		f, err = s.svc.Workspace.UpdateSettings(r.Context(), auth.WorkspaceID, path, req.Settings)
	default:
		writeCodeError(w, http.StatusBadRequest, models.CodeInvalidRequest, "newName or settings required")
		return
	}
	if err != nil {
		writeError(w, r, err)
		return
	}

	w.Header().Set("ETag", f.ETag())
	writeData(w, http.StatusOK, fileToData(f, false))
}

type deleteData struct {
	Recoverable bool       `json:"recoverable"`
	ExpiresAt   *time.Time `json:"recoveryExpiresAt,omitempty"`
}

// handleDelete serves DELETE /w/{key}/*: soft-delete a file (recoverable
// for the recovery window), hard-delete with ?permanent=true, or delete an
// empty folder when the tail carries a trailing slash.
func (s *handlers) handleDelete(w http.ResponseWriter, r *http.Request) {
	if isFolderRequest(r) {
		s.deleteFolder(w, r)
		return
	}

	path, err := wildcardPath(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	auth, err := s.resolveKey(r, models.PermissionWrite, path)
	if err != nil {
		writeError(w, r, err)
		return
	}

	permanent := r.URL.Query().Get("permanent") == "true"
	res, err := s.svc.Workspace.Delete(r.Context(), auth.WorkspaceID, path, permanent)
	if err != nil {
		writeError(w, r, err)
		return
	}

	s.recordAudit(r, &models.AuditEntry{
		WorkspaceID:  auth.WorkspaceID,
		Action:       models.AuditFileDeleted,
		ResourceType: "file",
		ResourcePath: path,
		Actor:        auth.Prefix,
		ActorType:    "key",
		Metadata:     models.JSONMap{"permanent": permanent},
	})
	s.emitEvent(r, webhook.Event{
		Type:        webhook.EventFileDeleted,
		WorkspaceID: auth.WorkspaceID,
		Path:        path,
		Data:        map[string]any{"permanent": permanent},
	})

	data := deleteData{Recoverable: res.Recoverable}
	if res.Recoverable {
		data.ExpiresAt = &res.ExpiresAt
	}
	writeData(w, http.StatusOK, data)
}

func (s *handlers) deleteFolder(w http.ResponseWriter, r *http.Request) {
	tail := chiTrimmedTail(r)
	if tail == "" {
		writeCodeError(w, http.StatusBadRequest, models.CodeInvalidPath, "folder path required")
		return
	}
	folder, err := pathutil.NormalizeFolder("/" + tail)
	if err != nil {
		writeError(w, r, err)
		return
	}
	auth, err := s.resolveKey(r, models.PermissionWrite, folder[:len(folder)-1])
	if err != nil {
		writeError(w, r, err)
		return
	}

	if err := s.svc.Workspace.DeleteFolder(r.Context(), auth.WorkspaceID, folder); err != nil {
		writeError(w, r, err)
		return
	}

	s.recordAudit(r, &models.AuditEntry{
		WorkspaceID:  auth.WorkspaceID,
		Action:       models.AuditFolderDeleted,
		ResourceType: "folder",
		ResourcePath: folder,
		Actor:        auth.Prefix,
		ActorType:    "key",
	})
	s.emitEvent(r, webhook.Event{
		Type:        webhook.EventFolderDeleted,
		WorkspaceID: auth.WorkspaceID,
		Path:        folder,
	})

	writeData(w, http.StatusOK, map[string]bool{"deleted": true})
}

type recoverRequest struct {
	Path       string `json:"path"`
	RotateKeys bool   `json:"rotateKeys,omitempty"`
}

type recoverData struct {
	fileData
	Keys *keysData `json:"keys,omitempty"`
}

// handleRecover serves POST /w/{key}/recover: restore a soft-deleted file,
// optionally rotating its capability keys in the same operation.
func (s *handlers) handleRecover(w http.ResponseWriter, r *http.Request) {
	var req recoverRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	auth, err := s.resolveKeyPath(r, models.PermissionWrite, req.Path)
	if err != nil {
		writeError(w, r, err)
		return
	}

	res, err := s.svc.Workspace.Recover(r.Context(), auth.WorkspaceID, auth.path, req.RotateKeys)
	if err != nil {
		writeError(w, r, err)
		return
	}

	s.recordAudit(r, &models.AuditEntry{
		WorkspaceID:  auth.WorkspaceID,
		Action:       models.AuditFileRecovered,
		ResourceType: "file",
		ResourceID:   res.File.ID,
		ResourcePath: auth.path,
		Actor:        auth.Prefix,
		ActorType:    "key",
	})
	s.emitEvent(r, webhook.Event{
		Type:        webhook.EventFileRecovered,
		WorkspaceID: auth.WorkspaceID,
		Path:        auth.path,
	})

	data := recoverData{fileData: fileToData(res.File, false)}
	if res.Keys != nil {
		kd := s.keysToData(res.Keys)
		data.Keys = &kd
	}
	writeData(w, http.StatusOK, data)
}

type moveRequest struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// handleMove serves POST /w/{key}/move: relocate a file. Keys scoped to the
// old path follow it.
func (s *handlers) handleMove(w http.ResponseWriter, r *http.Request) {
	var req moveRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	src, err := s.resolveKeyPath(r, models.PermissionWrite, req.From)
	if err != nil {
		writeError(w, r, err)
		return
	}
	dst, err := s.resolveKeyPath(r, models.PermissionWrite, req.To)
	if err != nil {
		writeError(w, r, err)
		return
	}

	f, err := s.svc.Workspace.Move(r.Context(), src.WorkspaceID, src.path, dst.path)
	if err != nil {
		writeError(w, r, err)
		return
	}

	s.recordAudit(r, &models.AuditEntry{
		WorkspaceID:  src.WorkspaceID,
		Action:       models.AuditFileMoved,
		ResourceType: "file",
		ResourceID:   f.ID,
		ResourcePath: dst.path,
		Actor:        src.Prefix,
		ActorType:    "key",
		Metadata:     models.JSONMap{"from": src.path},
	})
	s.emitEvent(r, webhook.Event{
		Type:        webhook.EventFileMoved,
		WorkspaceID: src.WorkspaceID,
		Path:        dst.path,
		Data:        map[string]any{"from": src.path},
	})

	writeData(w, http.StatusOK, fileToData(f, false))
}

type rotateRequest struct {
	Path string `json:"path"`
}

// handleRotate serves POST /w/{key}/rotate: revoke every key scoped to the
// file and mint a fresh triple. The rotation is audited synchronously; the
// trail must show it even if the process dies right after.
func (s *handlers) handleRotate(w http.ResponseWriter, r *http.Request) {
	var req rotateRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	auth, err := s.resolveKeyPath(r, models.PermissionWrite, req.Path)
	if err != nil {
		writeError(w, r, err)
		return
	}

	triple, err := s.svc.Workspace.RotateFileKeys(r.Context(), auth.WorkspaceID, auth.path)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if s.svc.Audit != nil {
		_ = s.svc.Audit.RecordSync(r.Context(), &models.AuditEntry{
			WorkspaceID:  auth.WorkspaceID,
			Action:       models.AuditKeysRotated,
			ResourceType: "file",
			ResourcePath: auth.path,
			Actor:        auth.Prefix,
			ActorType:    "key",
		})
	}

	writeData(w, http.StatusOK, s.keysToData(triple))
}

// handleClaimWorkspace serves POST /w/{key}/claim: bind the workspace
// behind the write key to the authenticated owner. Requires both the write
// key and an owner session.
func (s *handlers) handleClaimWorkspace(w http.ResponseWriter, r *http.Request) {
	auth, err := s.resolveKey(r, models.PermissionWrite, "")
	if err != nil {
		writeError(w, r, err)
		return
	}
	session := sessionFromContext(r.Context())
	if session == nil {
		writeCodeError(w, http.StatusUnauthorized, models.CodeUnauthorized, "owner session required")
		return
	}

	if err := s.svc.Store.ClaimWorkspace(r.Context(), auth.WorkspaceID, session.OwnerID); err != nil {
		writeError(w, r, err)
		return
	}

	s.recordAudit(r, &models.AuditEntry{
		WorkspaceID:  auth.WorkspaceID,
		Action:       models.AuditWorkspaceClaimed,
		ResourceType: "workspace",
		ResourceID:   auth.WorkspaceID,
		Actor:        session.Email,
		ActorType:    "owner",
	})

	writeData(w, http.StatusOK, map[string]string{
		"workspaceId": auth.WorkspaceID,
		"ownerId":     session.OwnerID,
	})
}
