// Package search exposes the full-text surface over file content and append
// previews, plus workspace statistics.
package search

import (
	"context"
	"time"

	"github.com/capmd/capmd/pkg/models"
	"github.com/capmd/capmd/pkg/orchestration"
	"github.com/capmd/capmd/pkg/pathutil"
	"github.com/capmd/capmd/pkg/store"
)

const (
	// maxQueryLen bounds the raw query string before it reaches the index.
	maxQueryLen = 256

	// maxScopeFiles caps how many files a single query may fan out over.
	maxScopeFiles = 1000

	defaultLimit = 20
	maxLimit     = 100

	queryTimeout = 30 * time.Second
)

// Service answers search and stats queries against the store.
type Service struct {
	store *store.Store
	now   func() time.Time
}

// NewService creates a search Service.
func NewService(s *store.Store) *Service {
	return &Service{store: s, now: time.Now}
}

// Query scopes and paginates a search.
type Query struct {
	Text   string
	Folder string // optional subtree scope
	Type   string // append filter
	Status string // append filter
	Author string // append filter
	Limit  int
}

// Result is a ranked search response. Truncated reports that more hits
// existed than the limit allowed.
type Result struct {
	Files     []store.FileHit   `json:"files"`
	Appends   []store.AppendHit `json:"appends"`
	Truncated bool              `json:"truncated"`
}

// Search runs a ranked query over file content and append previews inside
// the workspace, optionally narrowed to a folder subtree.
func (s *Service) Search(ctx context.Context, workspaceID string, q Query) (*Result, error) {
	if len(q.Text) > maxQueryLen {
		return nil, models.ErrQueryTooLong
	}
	folder, err := scopePrefix(q.Folder)
	if err != nil {
		return nil, err
	}
	limit := q.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	// The fan-out cap is checked before the ranked query runs so an
	// over-broad scope fails fast instead of timing out.
	n, err := s.store.CountFilesByPrefix(ctx, workspaceID, folder)
	if err != nil {
		return nil, err
	}
	if n > maxScopeFiles {
		return nil, models.ErrQueryTooBroad
	}

	// Fetch one extra row per table to detect truncation.
	files, err := s.store.SearchFiles(ctx, workspaceID, q.Text, folder, limit+1)
	if err != nil {
		return nil, err
	}
	appends, err := s.store.SearchAppends(ctx, workspaceID, q.Text, folder, q.Type, q.Status, q.Author, limit+1)
	if err != nil {
		return nil, err
	}

	res := &Result{Files: files, Appends: appends}
	if len(res.Files) > limit {
		res.Files = res.Files[:limit]
		res.Truncated = true
	}
	if len(res.Appends) > limit {
		res.Appends = res.Appends[:limit]
		res.Truncated = true
	}
	if res.Files == nil {
		res.Files = []store.FileHit{}
	}
	if res.Appends == nil {
		res.Appends = []store.AppendHit{}
	}
	return res, nil
}

// TaskStats summarizes orchestration state over a file set.
type TaskStats struct {
	Pending      int `json:"pending"`
	Claimed      int `json:"claimed"`
	Completed    int `json:"completed"`
	Stalled      int `json:"stalled"`
	ActiveClaims int `json:"activeClaims"`
}

// Stats is the aggregate view of a workspace or folder subtree.
type Stats struct {
	FileCount   int        `json:"fileCount"`
	FolderCount int        `json:"folderCount"`
	TotalSize   int64      `json:"totalSize"`
	UpdatedAt   *time.Time `json:"updatedAt,omitempty"`
	TaskStats   TaskStats  `json:"taskStats"`
}

// WorkspaceStats reduces the files under folder (or the whole workspace
// when folder is empty) to counts, total size, last update, and task state
// tallies.
func (s *Service) WorkspaceStats(ctx context.Context, workspaceID, folder string) (*Stats, error) {
	prefix, err := scopePrefix(folder)
	if err != nil {
		return nil, err
	}

	files, err := s.store.ListFilesByPrefix(ctx, workspaceID, prefix, true)
	if err != nil {
		return nil, err
	}

	stats := &Stats{FileCount: len(files)}
	folders := map[string]struct{}{}
	for _, f := range files {
		stats.TotalSize += f.SizeBytes
		if stats.UpdatedAt == nil || f.UpdatedAt.After(*stats.UpdatedAt) {
			t := f.UpdatedAt
			stats.UpdatedAt = &t
		}
		for _, dir := range ancestorFolders(f.Path, prefix) {
			folders[dir] = struct{}{}
		}
	}

	// Explicit folder records count even when empty.
	recorded, err := s.store.ListFolders(ctx, workspaceID, prefix)
	if err != nil {
		return nil, err
	}
	for _, f := range recorded {
		folders[f.Path] = struct{}{}
	}
	stats.FolderCount = len(folders)

	appends, err := s.store.ListAppendsByWorkspace(ctx, workspaceID, prefix)
	if err != nil {
		return nil, err
	}
	tasks := orchestration.Project(appends, s.now().UTC())
	for _, task := range tasks {
		switch task.State {
		case orchestration.StatePending:
			stats.TaskStats.Pending++
		case orchestration.StateClaimed:
			stats.TaskStats.Claimed++
		case orchestration.StateCompleted:
			stats.TaskStats.Completed++
		case orchestration.StateStalled:
			stats.TaskStats.Stalled++
		}
		if task.Claim != nil && task.Claim.Active(s.now().UTC()) {
			stats.TaskStats.ActiveClaims++
		}
	}
	return stats, nil
}

// scopePrefix normalizes an optional folder scope to the "/folder/" form the
// store's prefix queries expect.
func scopePrefix(folder string) (string, error) {
	if folder == "" || folder == "/" {
		return "", nil
	}
	p, err := pathutil.NormalizeFolder(folder)
	if err != nil {
		return "", err
	}
	if p == "/" {
		return "", nil
	}
	return p, nil
}

// ancestorFolders lists every folder between prefix and the file, e.g.
// "/a/b/c.md" yields "/a" and "/a/b".
func ancestorFolders(path, prefix string) []string {
	var out []string
	for i := len(prefix); i < len(path); i++ {
		if path[i] == '/' && i > 0 {
			out = append(out, path[:i])
		}
	}
	return out
}
