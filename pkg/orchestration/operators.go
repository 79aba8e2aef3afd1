package orchestration

import (
	"context"
	"time"

	"github.com/capmd/capmd/pkg/models"
)

// ClaimResult is returned by every claim operator: the claim acted upon and
// the public id of the log entry the operation appended.
type ClaimResult struct {
	Claim    *models.Append
	AppendID string
}

// Renew extends the lease on a claim by expiresInSeconds (default 1800). A
// non-positive value is applied as-is, which expires the lease immediately;
// tests and takeover tooling rely on that.
func (s *Service) Renew(ctx context.Context, workspaceID, claimID string, expiresInSeconds int) (*ClaimResult, error) {
	claim, err := s.findClaim(ctx, workspaceID, claimID)
	if err != nil {
		return nil, err
	}
	if expiresInSeconds == 0 {
		expiresInSeconds = DefaultLeaseSeconds
	}
	expires := s.now().UTC().Add(time.Duration(expiresInSeconds) * time.Second)

	entry := &models.Append{
		FileID:      claim.FileID,
		WorkspaceID: workspaceID,
		Author:      claim.Author,
		Type:        models.AppendRenew,
		Ref:         claim.PublicID,
		ExpiresAt:   &expires,
	}
	if err := s.store.InsertAppend(ctx, entry); err != nil {
		return nil, err
	}
	if err := s.store.UpdateClaimExpiry(ctx, claim.Seq, expires); err != nil {
		return nil, err
	}
	claim.ExpiresAt = &expires
	return &ClaimResult{Claim: claim, AppendID: entry.PublicID}, nil
}

// Complete appends a response referencing the claimed task; projections mark
// the task completed from then on.
func (s *Service) Complete(ctx context.Context, workspaceID, claimID, content string) (*ClaimResult, error) {
	claim, err := s.findClaim(ctx, workspaceID, claimID)
	if err != nil {
		return nil, err
	}
	if claim.Ref == "" {
		return nil, models.ErrInvalidRequest
	}
	entry := &models.Append{
		FileID:      claim.FileID,
		WorkspaceID: workspaceID,
		Author:      claim.Author,
		Type:        models.AppendResponse,
		Ref:         claim.Ref,
		Preview:     truncatePreview(content),
	}
	if err := s.store.InsertAppend(ctx, entry); err != nil {
		return nil, err
	}
	return &ClaimResult{Claim: claim, AppendID: entry.PublicID}, nil
}

// Cancel releases a claim, returning its task to the pending pool. The
// reason is optional.
func (s *Service) Cancel(ctx context.Context, workspaceID, claimID, reason string) (*ClaimResult, error) {
	claim, err := s.findClaim(ctx, workspaceID, claimID)
	if err != nil {
		return nil, err
	}
	entry := &models.Append{
		FileID:      claim.FileID,
		WorkspaceID: workspaceID,
		Author:      claim.Author,
		Type:        models.AppendCancel,
		Ref:         claim.PublicID,
		Preview:     truncatePreview(reason),
	}
	if err := s.store.InsertAppend(ctx, entry); err != nil {
		return nil, err
	}
	return &ClaimResult{Claim: claim, AppendID: entry.PublicID}, nil
}

// Block marks the claimed task as blocked. The reason is required.
func (s *Service) Block(ctx context.Context, workspaceID, claimID, reason string) (*ClaimResult, error) {
	if reason == "" {
		return nil, models.ErrInvalidRequest
	}
	claim, err := s.findClaim(ctx, workspaceID, claimID)
	if err != nil {
		return nil, err
	}
	if claim.Ref == "" {
		return nil, models.ErrInvalidRequest
	}
	entry := &models.Append{
		FileID:      claim.FileID,
		WorkspaceID: workspaceID,
		Author:      claim.Author,
		Type:        models.AppendBlocked,
		Ref:         claim.Ref,
		Preview:     truncatePreview(reason),
	}
	if err := s.store.InsertAppend(ctx, entry); err != nil {
		return nil, err
	}
	return &ClaimResult{Claim: claim, AppendID: entry.PublicID}, nil
}

func (s *Service) findClaim(ctx context.Context, workspaceID, claimID string) (*models.Append, error) {
	if !models.ValidAppendID(claimID) {
		return nil, models.ErrInvalidAppendID
	}
	return s.store.FindClaimByPublicID(ctx, workspaceID, claimID)
}

const previewLimit = 200

func truncatePreview(s string) string {
	runes := []rune(s)
	if len(runes) <= previewLimit {
		return s
	}
	return string(runes[:previewLimit])
}
