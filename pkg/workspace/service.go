// Package workspace implements file mutations: upsert under optimistic
// concurrency, soft deletion with a recovery window, move/rename, and
// capability key rotation. All invariants (path uniqueness, the storage
// counter) live in the store; this layer sequences the checks and classifies
// races.
package workspace

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/capmd/capmd/pkg/models"
	"github.com/capmd/capmd/pkg/pathutil"
	"github.com/capmd/capmd/pkg/store"
)

// Config bounds file sizes and workspace storage.
type Config struct {
	MaxFileSize int64
	MaxStorage  int64
}

// ApplyDefaults fills in missing limits.
func (c *Config) ApplyDefaults() {
	if c.MaxFileSize <= 0 {
		c.MaxFileSize = models.DefaultMaxFileSize
	}
	if c.MaxStorage <= 0 {
		c.MaxStorage = models.DefaultMaxWorkspaceStorage
	}
}

// Service is the file mutation engine.
type Service struct {
	store *store.Store
	cfg   Config
	now   func() time.Time
}

// NewService creates a Service over the given store.
func NewService(s *store.Store, cfg Config) *Service {
	cfg.ApplyDefaults()
	return &Service{store: s, cfg: cfg, now: time.Now}
}

// Store exposes the underlying store for read paths that need no mutation
// sequencing.
func (s *Service) Store() *store.Store {
	return s.store
}

// UpsertResult is the outcome of a Put.
type UpsertResult struct {
	File         *models.File
	Created      bool
	AppendsStale int64
}

// Upsert creates the file at path or updates it in place.
//
// ifMatch, when non-empty, is the client's If-Match precondition: "*" means
// "the file must exist", anything else must equal the stored ETag. A
// concurrent create racing on the path uniqueness constraint re-reads the
// winning row and applies this content as an update, so both writers observe
// success and exactly one live row remains.
func (s *Service) Upsert(ctx context.Context, workspaceID, path, content, ifMatch string) (*UpsertResult, error) {
	p, err := pathutil.Normalize(path)
	if err != nil {
		return nil, err
	}
	size := int64(len(content))
	if size > s.cfg.MaxFileSize {
		return nil, models.ErrPayloadTooLarge
	}
	hash := contentHash(content)

	existing, err := s.store.FindFileByPath(ctx, workspaceID, p)
	switch {
	case err == nil:
		return s.update(ctx, existing, content, hash, size, ifMatch)
	case errors.Is(err, models.ErrFileNotFound):
		// fallthrough to create
	default:
		return nil, err
	}

	if ifMatch != "" {
		return nil, models.ErrETagMismatch
	}
	if err := s.checkQuota(ctx, workspaceID, size); err != nil {
		return nil, err
	}

	f := &models.File{
		WorkspaceID: workspaceID,
		Path:        p,
		Content:     content,
		SizeBytes:   size,
		ContentHash: hash,
	}
	_, err = s.store.CreateFile(ctx, f)
	if errors.Is(err, models.ErrFileExists) {
		// Lost the insert race; the winner's row is the file now.
		winner, rerr := s.store.FindFileByPath(ctx, workspaceID, p)
		if rerr != nil {
			return nil, rerr
		}
		return s.update(ctx, winner, content, hash, size, ifMatch)
	}
	if err != nil {
		return nil, err
	}
	if err := s.store.AddWorkspaceStorage(ctx, workspaceID, size); err != nil {
		return nil, err
	}
	return &UpsertResult{File: f, Created: true}, nil
}

func (s *Service) update(ctx context.Context, f *models.File, content, hash string, size int64, ifMatch string) (*UpsertResult, error) {
	if ifMatch != "" && ifMatch != "*" && ifMatch != f.ETag() {
		return nil, models.ErrETagMismatch
	}
	delta := size - f.SizeBytes
	if delta > 0 {
		if err := s.checkQuota(ctx, f.WorkspaceID, delta); err != nil {
			return nil, err
		}
	}
	if err := s.store.UpdateFileContent(ctx, f, content, hash, size); err != nil {
		return nil, err
	}
	if delta != 0 {
		if err := s.store.AddWorkspaceStorage(ctx, f.WorkspaceID, delta); err != nil {
			return nil, err
		}
	}
	stale, err := s.store.CountStaleAppends(ctx, f.ID, hash)
	if err != nil {
		return nil, err
	}
	return &UpsertResult{File: f, AppendsStale: stale}, nil
}

// UpdateSettings replaces the settings object of the file at path.
func (s *Service) UpdateSettings(ctx context.Context, workspaceID, path string, settings models.JSONMap) (*models.File, error) {
	f, err := s.find(ctx, workspaceID, path)
	if err != nil {
		return nil, err
	}
	if err := s.store.UpdateFileSettings(ctx, f.ID, settings); err != nil {
		return nil, err
	}
	f.Settings = settings
	return f, nil
}

// DeleteResult conveys recovery information for a soft delete.
type DeleteResult struct {
	Recoverable bool
	ExpiresAt   time.Time
}

// Delete removes the file at path. Soft deletion keeps the row for the
// recovery window; permanent deletion removes it and its append log at once.
// Storage is credited back either way.
func (s *Service) Delete(ctx context.Context, workspaceID, path string, permanent bool) (*DeleteResult, error) {
	f, err := s.find(ctx, workspaceID, path)
	if err != nil {
		return nil, err
	}
	if permanent {
		if err := s.store.HardDeleteFile(ctx, f.ID); err != nil {
			return nil, err
		}
		if err := s.store.AddWorkspaceStorage(ctx, workspaceID, -f.SizeBytes); err != nil {
			return nil, err
		}
		return &DeleteResult{}, nil
	}
	now := s.now().UTC()
	if err := s.store.SoftDeleteFile(ctx, f.ID, now); err != nil {
		return nil, err
	}
	if err := s.store.AddWorkspaceStorage(ctx, workspaceID, -f.SizeBytes); err != nil {
		return nil, err
	}
	return &DeleteResult{
		Recoverable: true,
		ExpiresAt:   now.Add(models.RecoveryWindow),
	}, nil
}

// RecoverResult is the outcome of a recovery.
type RecoverResult struct {
	File *models.File
	// Keys is set when the caller asked for rotation alongside recovery.
	Keys *KeyTriple
}

// Recover restores the most recently soft-deleted file at path. Past the
// recovery window the file is gone for good and recovery reports not-found
// semantics via ErrRecoveryExpired. rotate additionally revokes the file's
// capability keys and mints a fresh triple.
func (s *Service) Recover(ctx context.Context, workspaceID, path string, rotate bool) (*RecoverResult, error) {
	p, err := pathutil.Normalize(path)
	if err != nil {
		return nil, err
	}
	f, err := s.store.FindDeletedFileByPath(ctx, workspaceID, p)
	if err != nil {
		return nil, err
	}
	if !f.Recoverable(s.now().UTC()) {
		return nil, models.ErrRecoveryExpired
	}
	recovered, err := s.store.RecoverFile(ctx, f.ID)
	if err != nil {
		return nil, err
	}
	if err := s.store.AddWorkspaceStorage(ctx, workspaceID, recovered.SizeBytes); err != nil {
		return nil, err
	}
	res := &RecoverResult{File: recovered}
	if rotate {
		keys, err := s.RotateFileKeys(ctx, workspaceID, p)
		if err != nil {
			return nil, err
		}
		res.Keys = keys
	}
	return res, nil
}

// Move relocates the file at src to dst. The destination must be free among
// live files; folder- and file-scoped keys pointing at the old path are
// repointed so existing capability URLs keep working.
func (s *Service) Move(ctx context.Context, workspaceID, src, dst string) (*models.File, error) {
	from, err := pathutil.Normalize(src)
	if err != nil {
		return nil, err
	}
	to, err := pathutil.Normalize(dst)
	if err != nil {
		return nil, err
	}
	f, err := s.store.FindFileByPath(ctx, workspaceID, from)
	if errors.Is(err, models.ErrFileNotFound) {
		return nil, models.ErrSourceNotFound
	}
	if err != nil {
		return nil, err
	}
	if to == from {
		return f, nil
	}
	if err := s.store.UpdateFilePath(ctx, f.ID, to); err != nil {
		return nil, err
	}
	if err := s.store.UpdateCapabilityKeyScopePath(ctx, workspaceID, models.ScopeFile, from, to); err != nil {
		return nil, err
	}
	f.Path = to
	return f, nil
}

// Rename changes the file name portion of path, keeping its parent folder.
func (s *Service) Rename(ctx context.Context, workspaceID, path, newName string) (*models.File, error) {
	if newName == "" || containsSlash(newName) {
		return nil, models.ErrInvalidPath
	}
	p, err := pathutil.Normalize(path)
	if err != nil {
		return nil, err
	}
	dst := pathutil.Parent(p) + newName
	return s.Move(ctx, workspaceID, p, dst)
}

func (s *Service) find(ctx context.Context, workspaceID, path string) (*models.File, error) {
	p, err := pathutil.Normalize(path)
	if err != nil {
		return nil, err
	}
	return s.store.FindFileByPath(ctx, workspaceID, p)
}

// checkQuota rejects a mutation that would push usage past the workspace
// storage limit by delta additional bytes.
func (s *Service) checkQuota(ctx context.Context, workspaceID string, delta int64) error {
	ws, err := s.store.GetWorkspace(ctx, workspaceID)
	if err != nil {
		return err
	}
	if ws.StorageUsedBytes+delta > s.cfg.MaxStorage {
		return models.ErrQuotaExceeded
	}
	return nil
}

func contentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

func containsSlash(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] == '/' {
			return true
		}
	}
	return false
}
