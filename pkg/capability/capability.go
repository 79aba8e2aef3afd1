// Package capability resolves bearer tokens into workspace authorizations.
//
// Resolution deliberately collapses most failure modes into "not found":
// an attacker probing with a syntactically valid token learns nothing about
// whether it ever existed, expired, or lacks the tier for the route it hit.
// Revocation is the one distinguishable state, so honest clients holding a
// rotated key get a definitive signal to stop retrying.
package capability

import (
	"context"
	"time"

	"github.com/capmd/capmd/pkg/keys"
	"github.com/capmd/capmd/pkg/models"
	"github.com/capmd/capmd/pkg/pathutil"
	"github.com/capmd/capmd/pkg/store"
)

// Authorization is the outcome of a successful token resolution.
type Authorization struct {
	KeyID       string
	WorkspaceID string
	Permission  models.Permission
	ScopeType   models.ScopeType
	ScopePath   string
	// KeyHash keys per-key bookkeeping such as rate-limit buckets.
	KeyHash string
	// Prefix identifies the key in logs and audit entries without
	// exposing the token.
	Prefix string
}

// Resolver checks capability tokens against the key store.
type Resolver struct {
	store *store.Store
	now   func() time.Time
}

// NewResolver creates a Resolver backed by the given store.
func NewResolver(s *store.Store) *Resolver {
	return &Resolver{store: s, now: time.Now}
}

// Resolve authorizes a capability token for an operation requiring the given
// permission tier on the given workspace path. path is the already-normalized
// target; pass "" for operations without a path target (e.g. listings rooted
// at the key's own scope).
//
// Errors: ErrKeyRevoked for revoked keys; ErrKeyNotFound for every other
// failure (unknown token, expired, insufficient tier, out-of-scope path).
// ErrKeyExpired and ErrScopeDenied are wrapped inside ErrKeyNotFound chains
// so handlers map them all to the same response while logs keep the cause.
func (r *Resolver) Resolve(ctx context.Context, token string, required models.Permission, path string) (*Authorization, error) {
	if !keys.Valid(token) {
		return nil, models.ErrKeyNotFound
	}

	k, err := r.store.FindCapabilityKeyByHash(ctx, keys.Hash(token))
	if err != nil {
		return nil, err
	}

	if k.Revoked() {
		return nil, models.ErrKeyRevoked
	}
	if k.Expired(r.now()) {
		return nil, wrapNotFound(models.ErrKeyExpired)
	}

	// Scoped tokens carry their tier in the prefix; a mismatch with the
	// stored record means a forged or mangled token.
	if p, ok := keys.PermissionOf(token); !ok || p != k.Permission {
		return nil, models.ErrKeyNotFound
	}

	if !k.Permission.Covers(required) {
		return nil, wrapNotFound(models.ErrScopeDenied)
	}

	if path != "" && !r.inScope(k, path) {
		return nil, wrapNotFound(models.ErrScopeDenied)
	}

	return &Authorization{
		KeyID:       k.ID,
		WorkspaceID: k.WorkspaceID,
		Permission:  k.Permission,
		ScopeType:   k.ScopeType,
		ScopePath:   k.ScopePath,
		Prefix:      k.Prefix,
		KeyHash:     k.Hash,
	}, nil
}

// ResolveAPIKey authorizes an sk_ admin key for the named scope.
func (r *Resolver) ResolveAPIKey(ctx context.Context, token, scope string) (*models.APIKey, error) {
	if !keys.ValidAPI(token) {
		return nil, models.ErrKeyNotFound
	}
	k, err := r.store.FindAPIKeyByHash(ctx, keys.Hash(token))
	if err != nil {
		return nil, err
	}
	if k.RevokedAt != nil {
		return nil, models.ErrKeyRevoked
	}
	if k.ExpiresAt != nil && !k.ExpiresAt.After(r.now()) {
		return nil, wrapNotFound(models.ErrKeyExpired)
	}
	if scope != "" && !k.HasScope(scope) {
		return nil, wrapNotFound(models.ErrScopeDenied)
	}
	return k, nil
}

// Root reports whether the authorization covers the whole workspace.
func (a *Authorization) Root() bool {
	return a.ScopeType == models.ScopeWorkspace
}

func (r *Resolver) inScope(k *models.CapabilityKey, path string) bool {
	switch k.ScopeType {
	case models.ScopeWorkspace:
		return true
	case models.ScopeFolder:
		return pathutil.WithinScope(path, k.ScopePath)
	case models.ScopeFile:
		return path == k.ScopePath
	}
	return false
}

func wrapNotFound(cause error) error {
	return &notFoundError{cause: cause}
}

// notFoundError carries the real denial reason while matching
// models.ErrKeyNotFound through errors.Is.
type notFoundError struct {
	cause error
}

func (e *notFoundError) Error() string { return e.cause.Error() }
func (e *notFoundError) Unwrap() error { return e.cause }

// Is matches both the hidden public identity and the wrapped cause.
func (e *notFoundError) Is(target error) bool {
	return target == models.ErrKeyNotFound || target == e.cause
}
