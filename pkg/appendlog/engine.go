// Package appendlog manages the per-file ordered append log: validated
// insertion of typed entries, cursor-based listing, and task statistics.
package appendlog

import (
	"context"
	"encoding/base64"
	"errors"
	"regexp"
	"strconv"
	"time"

	"github.com/capmd/capmd/pkg/models"
	"github.com/capmd/capmd/pkg/orchestration"
	"github.com/capmd/capmd/pkg/pathutil"
	"github.com/capmd/capmd/pkg/store"
)

// DefaultClaimSeconds is the claim lease applied when the client supplies
// neither expiresAt nor expiresInSeconds.
const DefaultClaimSeconds = 1800

// previewLimit bounds the stored content preview, in runes.
const previewLimit = 200

// authorPattern screens author strings. Covers human names, bot slugs, and
// email-shaped identifiers; rejects control characters and delimiters that
// would leak into logs or headers.
var authorPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9 ._@+-]{0,127}$`)

// Engine validates and inserts append entries.
type Engine struct {
	store *store.Store
	now   func() time.Time
}

// NewEngine creates an Engine over the given store.
func NewEngine(s *store.Store) *Engine {
	return &Engine{store: s, now: time.Now}
}

// Input is a client append request.
type Input struct {
	Author           string
	Type             models.AppendType
	Status           string
	Priority         models.Priority
	Labels           []string
	Ref              string
	Content          string
	ExpiresAt        *time.Time
	ExpiresInSeconds int
	DueAt            *time.Time
}

// Append validates the input and inserts an entry on the file at path.
//
// Claims must reference an existing task in the same file and receive a
// lease of now + expiresInSeconds (default 1800) unless the client supplied
// an explicit expiry. The entry records the parent file's content hash so
// later content changes can be detected as staleness.
func (e *Engine) Append(ctx context.Context, workspaceID, path string, in Input) (*models.Append, error) {
	p, err := pathutil.Normalize(path)
	if err != nil {
		return nil, err
	}
	if !authorPattern.MatchString(in.Author) {
		return nil, models.ErrInvalidAuthor
	}
	if !in.Type.IsValid() {
		return nil, models.ErrInvalidRequest
	}
	if in.Priority != "" && !in.Priority.IsValid() {
		return nil, models.ErrInvalidRequest
	}
	if in.Ref != "" && !models.ValidAppendID(in.Ref) {
		return nil, models.ErrInvalidAppendID
	}

	f, err := e.store.FindFileByPath(ctx, workspaceID, p)
	if err != nil {
		return nil, err
	}

	entry := &models.Append{
		FileID:      f.ID,
		WorkspaceID: workspaceID,
		Author:      in.Author,
		Type:        in.Type,
		Status:      in.Status,
		Priority:    in.Priority,
		Labels:      in.Labels,
		Ref:         in.Ref,
		Preview:     truncatePreview(in.Content),
		ContentHash: f.ContentHash,
		ExpiresAt:   in.ExpiresAt,
		DueAt:       in.DueAt,
	}

	switch in.Type {
	case models.AppendClaim:
		if err := e.prepareClaim(ctx, f.ID, entry, in); err != nil {
			return nil, err
		}
	default:
		if in.Ref != "" {
			if _, err := e.store.GetAppendByPublicID(ctx, f.ID, in.Ref); err != nil {
				if errors.Is(err, models.ErrAppendNotFound) {
					return nil, models.ErrInvalidRef
				}
				return nil, err
			}
		}
	}

	if err := e.store.InsertAppend(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// prepareClaim enforces claim shape: a ref naming an existing task in the
// same file and a lease expiry.
func (e *Engine) prepareClaim(ctx context.Context, fileID string, entry *models.Append, in Input) error {
	if in.Ref == "" {
		return models.ErrInvalidRequest
	}
	target, err := e.store.GetAppendByPublicID(ctx, fileID, in.Ref)
	if errors.Is(err, models.ErrAppendNotFound) {
		return models.ErrInvalidRef
	}
	if err != nil {
		return err
	}
	if target.Type != models.AppendTask {
		return models.ErrInvalidRef
	}
	if entry.Status == "" {
		entry.Status = models.ClaimStatusActive
	}
	if entry.ExpiresAt == nil {
		secs := in.ExpiresInSeconds
		if secs == 0 {
			secs = DefaultClaimSeconds
		}
		expires := e.now().UTC().Add(time.Duration(secs) * time.Second)
		entry.ExpiresAt = &expires
	}
	return nil
}

// Page is one slice of a file's append log in insertion order.
type Page struct {
	Entries    []*models.Append
	Total      int64
	NextCursor string
}

// List returns entries of the file at path after the cursor. limit>0 returns
// only the most recent limit entries. The cursor encodes the internal
// ordering position; a reader polling with the returned cursor sees strictly
// newer entries.
func (e *Engine) List(ctx context.Context, workspaceID, path, cursor string, limit int) (*Page, error) {
	p, err := pathutil.Normalize(path)
	if err != nil {
		return nil, err
	}
	f, err := e.store.FindFileByPath(ctx, workspaceID, p)
	if err != nil {
		return nil, err
	}

	since := decodeCursor(cursor)
	entries, err := e.store.ListAppends(ctx, f.ID, since, limit)
	if err != nil {
		return nil, err
	}
	total, err := e.store.CountAppends(ctx, f.ID)
	if err != nil {
		return nil, err
	}

	page := &Page{Entries: entries, Total: total}
	if len(entries) > 0 {
		page.NextCursor = encodeCursor(entries[len(entries)-1].Seq)
	} else if cursor != "" {
		page.NextCursor = cursor
	}
	return page, nil
}

// Get fetches a single entry by public id, scoped to the file at path.
func (e *Engine) Get(ctx context.Context, workspaceID, path, appendID string) (*models.Append, error) {
	if !models.ValidAppendID(appendID) {
		return nil, models.ErrInvalidAppendID
	}
	p, err := pathutil.Normalize(path)
	if err != nil {
		return nil, err
	}
	f, err := e.store.FindFileByPath(ctx, workspaceID, p)
	if err != nil {
		return nil, err
	}
	return e.store.GetAppendByPublicID(ctx, f.ID, appendID)
}

// TaskStats summarizes a file's tasks for stats responses.
type TaskStats struct {
	Pending      int `json:"pending"`
	Claimed      int `json:"claimed"`
	Completed    int `json:"completed"`
	Stalled      int `json:"stalled"`
	ActiveClaims int `json:"activeClaims"`
}

// Stats derives task statistics for the file at path.
func (e *Engine) Stats(ctx context.Context, workspaceID, path string) (*TaskStats, error) {
	p, err := pathutil.Normalize(path)
	if err != nil {
		return nil, err
	}
	f, err := e.store.FindFileByPath(ctx, workspaceID, p)
	if err != nil {
		return nil, err
	}
	entries, err := e.store.ListAppends(ctx, f.ID, 0, 0)
	if err != nil {
		return nil, err
	}
	return deriveStats(entries, e.now().UTC()), nil
}

func deriveStats(entries []*models.Append, now time.Time) *TaskStats {
	stats := &TaskStats{}
	for _, task := range orchestration.Project(entries, now) {
		switch task.State {
		case orchestration.StatePending:
			stats.Pending++
		case orchestration.StateClaimed:
			stats.Claimed++
			stats.ActiveClaims++
		case orchestration.StateCompleted:
			stats.Completed++
		case orchestration.StateStalled:
			stats.Stalled++
		}
	}
	return stats
}

func truncatePreview(s string) string {
	runes := []rune(s)
	if len(runes) <= previewLimit {
		return s
	}
	return string(runes[:previewLimit])
}

func encodeCursor(seq uint64) string {
	return base64.URLEncoding.EncodeToString([]byte(strconv.FormatUint(seq, 10)))
}

func decodeCursor(cursor string) uint64 {
	if cursor == "" {
		return 0
	}
	raw, err := base64.URLEncoding.DecodeString(cursor)
	if err != nil {
		return 0
	}
	n, err := strconv.ParseUint(string(raw), 10, 64)
	if err != nil {
		return 0
	}
	return n
}
