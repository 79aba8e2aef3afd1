package workspace

import (
	"context"
	"time"

	"github.com/capmd/capmd/pkg/keys"
	"github.com/capmd/capmd/pkg/models"
	"github.com/capmd/capmd/pkg/pathutil"
)

// KeyTriple holds freshly minted plaintext capability tokens. Plaintext
// exists only in this value; the store keeps hashes.
type KeyTriple struct {
	Read   string
	Append string
	Write  string
}

// BootstrapResult is returned once, at workspace creation.
type BootstrapResult struct {
	Workspace *models.Workspace
	Keys      KeyTriple
}

// Bootstrap creates a workspace and mints its initial workspace-scoped key
// triple. The plaintext keys are shown exactly once.
func (s *Service) Bootstrap(ctx context.Context, name string) (*BootstrapResult, error) {
	ws := &models.Workspace{Name: name}
	if _, err := s.store.CreateWorkspace(ctx, ws); err != nil {
		return nil, err
	}
	triple, err := s.mintTriple(ctx, ws.ID, models.ScopeWorkspace, "")
	if err != nil {
		return nil, err
	}
	return &BootstrapResult{Workspace: ws, Keys: *triple}, nil
}

// RotateFileKeys revokes every capability key scoped to the file at path and
// mints a replacement triple. Returns the new plaintext tokens.
func (s *Service) RotateFileKeys(ctx context.Context, workspaceID, path string) (*KeyTriple, error) {
	p, err := pathutil.Normalize(path)
	if err != nil {
		return nil, err
	}
	if _, err := s.store.RevokeCapabilityKeysByScope(ctx, workspaceID, models.ScopeFile, p, s.now().UTC()); err != nil {
		return nil, err
	}
	return s.mintTriple(ctx, workspaceID, models.ScopeFile, p)
}

// MintFileKeys issues a capability triple for a file without revoking
// anything. Used when sharing a file for the first time.
func (s *Service) MintFileKeys(ctx context.Context, workspaceID, path string) (*KeyTriple, error) {
	p, err := pathutil.Normalize(path)
	if err != nil {
		return nil, err
	}
	return s.mintTriple(ctx, workspaceID, models.ScopeFile, p)
}

// MintFolderKeys issues a capability triple scoped to a folder subtree.
func (s *Service) MintFolderKeys(ctx context.Context, workspaceID, folderPath string) (*KeyTriple, error) {
	p, err := pathutil.Normalize(folderPath)
	if err != nil {
		return nil, err
	}
	return s.mintTriple(ctx, workspaceID, models.ScopeFolder, p)
}

func (s *Service) mintTriple(ctx context.Context, workspaceID string, scopeType models.ScopeType, scopePath string) (*KeyTriple, error) {
	triple := &KeyTriple{
		Read:   keys.GenerateScoped(models.PermissionRead),
		Append: keys.GenerateScoped(models.PermissionAppend),
		Write:  keys.GenerateScoped(models.PermissionWrite),
	}
	for _, k := range []struct {
		token string
		perm  models.Permission
	}{
		{triple.Read, models.PermissionRead},
		{triple.Append, models.PermissionAppend},
		{triple.Write, models.PermissionWrite},
	} {
		record := &models.CapabilityKey{
			WorkspaceID: workspaceID,
			Prefix:      keys.Prefix(k.token),
			Hash:        keys.Hash(k.token),
			Permission:  k.perm,
			ScopeType:   scopeType,
			ScopePath:   scopePath,
			CreatedAt:   time.Now().UTC(),
		}
		if _, err := s.store.CreateCapabilityKey(ctx, record); err != nil {
			return nil, err
		}
	}
	return triple, nil
}
