package orchestration

import (
	"context"
	"encoding/base64"
	"strconv"
	"time"

	"github.com/capmd/capmd/pkg/models"
	"github.com/capmd/capmd/pkg/pathutil"
	"github.com/capmd/capmd/pkg/store"
)

// DefaultLeaseSeconds is the claim lease applied when a renew or claim does
// not specify one.
const DefaultLeaseSeconds = 1800

// Service projects orchestration views and applies claim operators.
type Service struct {
	store *store.Store
	now   func() time.Time
}

// NewService creates a Service over the given store.
func NewService(s *store.Store) *Service {
	return &Service{store: s, now: time.Now}
}

// Filter narrows a task listing.
type Filter struct {
	// States and Priorities are OR sets; empty means any.
	States     []TaskState
	Priorities []models.Priority
	// Agent matches the governing claim's author.
	Agent string
	// File restricts to one file path; Folder to a subtree prefix.
	File   string
	Folder string

	Limit  int
	Cursor string
}

// TaskPage is one page of derived tasks.
type TaskPage struct {
	Tasks      []*TaskView
	Total      int
	NextCursor string
}

// TaskView pairs a derived task with its file path.
type TaskView struct {
	*Task
	Path string
}

// Tasks projects the workspace's append log and returns the filtered,
// paginated task list, newest first.
func (s *Service) Tasks(ctx context.Context, workspaceID string, f Filter) (*TaskPage, error) {
	folder := f.Folder
	if f.File != "" {
		p, err := pathutil.Normalize(f.File)
		if err != nil {
			return nil, err
		}
		f.File = p
	}
	if folder != "" {
		p, err := pathutil.NormalizeFolder(folder)
		if err != nil {
			return nil, err
		}
		folder = p
	}

	views, err := s.project(ctx, workspaceID, folder)
	if err != nil {
		return nil, err
	}

	filtered := views[:0:0]
	for _, v := range views {
		if !matchState(v.Task, f.States) {
			continue
		}
		if !matchPriority(v.Task, f.Priorities) {
			continue
		}
		if f.Agent != "" && (v.Claim == nil || v.Claim.Author != f.Agent) {
			continue
		}
		if f.File != "" && v.Path != f.File {
			continue
		}
		filtered = append(filtered, v)
	}

	page := &TaskPage{Total: len(filtered)}
	offset := decodeCursor(f.Cursor)
	if offset > len(filtered) {
		offset = len(filtered)
	}
	filtered = filtered[offset:]
	if f.Limit > 0 && len(filtered) > f.Limit {
		filtered = filtered[:f.Limit]
		page.NextCursor = encodeCursor(offset + f.Limit)
	}
	page.Tasks = filtered
	return page, nil
}

// ClaimView is one row of the folder claims listing.
type ClaimView struct {
	TaskID           string     `json:"taskId"`
	ClaimID          string     `json:"claimId"`
	File             string     `json:"file"`
	TaskContent      string     `json:"taskContent"`
	Status           string     `json:"status"`
	ExpiresAt        *time.Time `json:"expiresAt,omitempty"`
	ExpiresInSeconds int64      `json:"expiresInSeconds"`
}

// Claims lists every governing claim on tasks under the folder subtree,
// active and expired alike. Completed tasks drop out of the view.
func (s *Service) Claims(ctx context.Context, workspaceID, folderPrefix string) ([]*ClaimView, error) {
	folder := folderPrefix
	if folder != "" {
		p, err := pathutil.NormalizeFolder(folder)
		if err != nil {
			return nil, err
		}
		folder = p
	}
	views, err := s.project(ctx, workspaceID, folder)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	out := make([]*ClaimView, 0)
	for _, v := range views {
		if v.State != StateClaimed && v.State != StateStalled {
			continue
		}
		c := v.Claim
		cv := &ClaimView{
			TaskID:      v.ID,
			ClaimID:     c.ID,
			File:        v.Path,
			TaskContent: v.Content,
			Status:      "expired",
			ExpiresAt:   c.ExpiresAt,
		}
		if c.Active(now) {
			cv.Status = "active"
			cv.ExpiresInSeconds = int64(c.ExpiresAt.Sub(now).Seconds())
		}
		out = append(out, cv)
	}
	return out, nil
}

// project loads the scoped append log plus file paths and derives tasks.
func (s *Service) project(ctx context.Context, workspaceID, folderPrefix string) ([]*TaskView, error) {
	appends, err := s.store.ListAppendsByWorkspace(ctx, workspaceID, folderPrefix)
	if err != nil {
		return nil, err
	}
	files, err := s.store.ListFilesByPrefix(ctx, workspaceID, folderPrefix, true)
	if err != nil {
		return nil, err
	}
	paths := make(map[string]string, len(files))
	for _, f := range files {
		paths[f.ID] = f.Path
	}

	tasks := Project(appends, s.now().UTC())
	SortTasks(tasks)
	views := make([]*TaskView, 0, len(tasks))
	for _, t := range tasks {
		views = append(views, &TaskView{Task: t, Path: paths[t.FileID]})
	}
	return views, nil
}

func matchState(t *Task, states []TaskState) bool {
	if len(states) == 0 {
		return true
	}
	for _, st := range states {
		if t.State == st {
			return true
		}
	}
	return false
}

func matchPriority(t *Task, priorities []models.Priority) bool {
	if len(priorities) == 0 {
		return true
	}
	for _, p := range priorities {
		if t.Priority == p {
			return true
		}
	}
	return false
}

func encodeCursor(offset int) string {
	return base64.URLEncoding.EncodeToString([]byte(strconv.Itoa(offset)))
}

func decodeCursor(cursor string) int {
	if cursor == "" {
		return 0
	}
	raw, err := base64.URLEncoding.DecodeString(cursor)
	if err != nil {
		return 0
	}
	n, err := strconv.Atoi(string(raw))
	if err != nil || n < 0 {
		return 0
	}
	return n
}
