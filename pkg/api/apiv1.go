package api

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/capmd/capmd/pkg/export"
	"github.com/capmd/capmd/pkg/models"
	"github.com/capmd/capmd/pkg/pathutil"
	"github.com/capmd/capmd/pkg/search"
)

// handleSearch serves GET /api/v1/search: ranked full-text search over file
// content and append previews.
func (s *handlers) handleSearch(w http.ResponseWriter, r *http.Request) {
	key := apiKeyFromContext(r.Context())
	q := r.URL.Query()

	res, err := s.svc.Search.Search(r.Context(), key.WorkspaceID, search.Query{
		Text:   q.Get("q"),
		Folder: q.Get("folder"),
		Type:   q.Get("type"),
		Status: q.Get("status"),
		Author: q.Get("author"),
		Limit:  queryInt(r, "limit", 0),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, res)
}

// handleExport serves GET /api/v1/export: the workspace (or a folder
// subtree) as a zip or tar.gz archive. With ?offload=true and S3
// configured, the archive is uploaded and its location returned instead of
// the bytes.
func (s *handlers) handleExport(w http.ResponseWriter, r *http.Request) {
	key := apiKeyFromContext(r.Context())
	q := r.URL.Query()

	format, err := export.ParseFormat(q.Get("format"))
	if err != nil {
		writeCodeError(w, http.StatusBadRequest, models.CodeInvalidRequest, err.Error())
		return
	}
	folder := ""
	if f := q.Get("folder"); f != "" {
		folder, err = pathutil.NormalizeFolder(f)
		if err != nil {
			writeError(w, r, err)
			return
		}
	}

	archive, err := s.svc.Export.Export(r.Context(), key.WorkspaceID, folder, format)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if q.Get("offload") == "true" {
		location, err := s.svc.Export.Offload(r.Context(), key.WorkspaceID, archive)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeData(w, http.StatusOK, map[string]any{
			"location": location,
			"name":     archive.Name,
			"checksum": archive.Checksum,
			"size":     len(archive.Data),
		})
		return
	}

	w.Header().Set("Content-Type", archive.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", archive.Name))
	w.Header().Set("X-Export-Checksum", archive.Checksum)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(archive.Data)
}

// handleStats serves GET /api/v1/stats: file, folder, size, and task-state
// aggregates for the workspace or a folder subtree.
func (s *handlers) handleStats(w http.ResponseWriter, r *http.Request) {
	key := apiKeyFromContext(r.Context())

	folder := ""
	if f := r.URL.Query().Get("folder"); f != "" {
		var err error
		folder, err = pathutil.NormalizeFolder(f)
		if err != nil {
			writeError(w, r, err)
			return
		}
	}

	stats, err := s.svc.Search.WorkspaceStats(r.Context(), key.WorkspaceID, folder)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, stats)
}

// handleAudit serves GET /api/v1/audit: the most recent audit entries for
// the key's workspace.
func (s *handlers) handleAudit(w http.ResponseWriter, r *http.Request) {
	key := apiKeyFromContext(r.Context())

	entries, err := s.svc.Store.ListAuditEntries(r.Context(), key.WorkspaceID, queryInt(r, "limit", 100))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if entries == nil {
		entries = []*models.AuditEntry{}
	}
	writeData(w, http.StatusOK, map[string]any{"entries": entries})
}

type registerRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"displayName,omitempty"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type sessionData struct {
	Owner  *models.Owner `json:"owner"`
	Tokens *TokenPair    `json:"tokens"`
}

// handleRegister serves POST /api/v1/auth/register.
func (s *handlers) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" || !strings.Contains(req.Email, "@") {
		writeCodeError(w, http.StatusBadRequest, models.CodeInvalidRequest, "a valid email is required")
		return
	}
	if len(req.Password) < 8 {
		writeCodeError(w, http.StatusBadRequest, models.CodeInvalidRequest, "password must be at least 8 characters")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		writeError(w, r, err)
		return
	}

	owner := &models.Owner{
		Email:        req.Email,
		PasswordHash: string(hash),
		DisplayName:  req.DisplayName,
	}
	if _, err := s.svc.Store.CreateOwner(r.Context(), owner); err != nil {
		writeError(w, r, err)
		return
	}

	tokens, err := s.svc.JWT.GenerateTokenPair(owner)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, sessionData{Owner: owner, Tokens: tokens})
}

// handleLogin serves POST /api/v1/auth/login.
func (s *handlers) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	owner, err := s.svc.Store.GetOwnerByEmail(r.Context(), req.Email)
	if err != nil {
		// Same response for unknown email and wrong password.
		writeError(w, r, models.ErrInvalidCredentials)
		return
	}
	if bcrypt.CompareHashAndPassword([]byte(owner.PasswordHash), []byte(req.Password)) != nil {
		writeError(w, r, models.ErrInvalidCredentials)
		return
	}

	now := time.Now().UTC()
	if err := s.svc.Store.UpdateOwnerLastLogin(r.Context(), owner.ID, now); err == nil {
		owner.LastLogin = &now
	}

	tokens, err := s.svc.JWT.GenerateTokenPair(owner)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, sessionData{Owner: owner, Tokens: tokens})
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// handleRefresh serves POST /api/v1/auth/refresh: trade a refresh token for
// a fresh pair.
func (s *handlers) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	claims, err := s.svc.JWT.ValidateRefreshToken(req.RefreshToken)
	if err != nil {
		writeCodeError(w, http.StatusUnauthorized, models.CodeUnauthorized, "invalid or expired refresh token")
		return
	}
	owner, err := s.svc.Store.GetOwner(r.Context(), claims.OwnerID)
	if err != nil {
		writeCodeError(w, http.StatusUnauthorized, models.CodeUnauthorized, "invalid or expired refresh token")
		return
	}

	tokens, err := s.svc.JWT.GenerateTokenPair(owner)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, sessionData{Owner: owner, Tokens: tokens})
}
