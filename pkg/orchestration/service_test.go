package orchestration

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capmd/capmd/pkg/models"
	"github.com/capmd/capmd/pkg/store"
)

type fixture struct {
	store *store.Store
	svc   *Service
	ws    *models.Workspace
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s, err := store.New(&store.Config{
		Type:   store.DatabaseTypeSQLite,
		SQLite: store.SQLiteConfig{Path: ":memory:"},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	ws := &models.Workspace{Name: "test"}
	_, err = s.CreateWorkspace(context.Background(), ws)
	require.NoError(t, err)

	return &fixture{store: s, svc: NewService(s), ws: ws}
}

func (f *fixture) file(t *testing.T, path string) *models.File {
	t.Helper()
	doc := &models.File{WorkspaceID: f.ws.ID, Path: path, Content: "# Tasks", ContentHash: "h"}
	_, err := f.store.CreateFile(context.Background(), doc)
	require.NoError(t, err)
	return doc
}

func (f *fixture) task(t *testing.T, fileID, content string, priority models.Priority) string {
	t.Helper()
	a := &models.Append{
		FileID:      fileID,
		WorkspaceID: f.ws.ID,
		Author:      "alice",
		Type:        models.AppendTask,
		Priority:    priority,
		Preview:     content,
	}
	require.NoError(t, f.store.InsertAppend(context.Background(), a))
	return a.PublicID
}

func (f *fixture) claim(t *testing.T, fileID, taskID, author string, ttl time.Duration) string {
	t.Helper()
	expires := time.Now().UTC().Add(ttl)
	a := &models.Append{
		FileID:      fileID,
		WorkspaceID: f.ws.ID,
		Author:      author,
		Type:        models.AppendClaim,
		Status:      models.ClaimStatusActive,
		Ref:         taskID,
		ExpiresAt:   &expires,
	}
	require.NoError(t, f.store.InsertAppend(context.Background(), a))
	return a.PublicID
}

func TestTaskLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	doc := f.file(t, "/todo.md")

	taskID := f.task(t, doc.ID, "do the thing", models.PriorityHigh)
	assert.Equal(t, "a1", taskID)

	state := func() TaskState {
		page, err := f.svc.Tasks(ctx, f.ws.ID, Filter{})
		require.NoError(t, err)
		require.Len(t, page.Tasks, 1)
		return page.Tasks[0].State
	}

	assert.Equal(t, StatePending, state())

	claimID := f.claim(t, doc.ID, taskID, "worker-1", 30*time.Minute)
	assert.Equal(t, StateClaimed, state())

	t.Run("negative renew stalls the task", func(t *testing.T) {
		_, err := f.svc.Renew(ctx, f.ws.ID, claimID, -60)
		require.NoError(t, err)
		assert.Equal(t, StateStalled, state())
	})

	t.Run("renew moves stalled back to claimed", func(t *testing.T) {
		res, err := f.svc.Renew(ctx, f.ws.ID, claimID, 0)
		require.NoError(t, err)
		assert.WithinDuration(t,
			time.Now().UTC().Add(DefaultLeaseSeconds*time.Second),
			*res.Claim.ExpiresAt, 5*time.Second)
		assert.Equal(t, StateClaimed, state())
	})

	t.Run("complete wins over claims", func(t *testing.T) {
		res, err := f.svc.Complete(ctx, f.ws.ID, claimID, "done, see PR")
		require.NoError(t, err)
		assert.NotEmpty(t, res.AppendID)
		assert.Equal(t, StateCompleted, state())
	})
}

func TestCancelAndBlock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	doc := f.file(t, "/todo.md")

	taskID := f.task(t, doc.ID, "task", "")
	claimID := f.claim(t, doc.ID, taskID, "worker-1", 30*time.Minute)

	t.Run("block requires a reason", func(t *testing.T) {
		_, err := f.svc.Block(ctx, f.ws.ID, claimID, "")
		assert.ErrorIs(t, err, models.ErrInvalidRequest)
	})

	t.Run("block flags the task", func(t *testing.T) {
		_, err := f.svc.Block(ctx, f.ws.ID, claimID, "waiting on credentials")
		require.NoError(t, err)

		page, err := f.svc.Tasks(ctx, f.ws.ID, Filter{})
		require.NoError(t, err)
		require.Len(t, page.Tasks, 1)
		assert.True(t, page.Tasks[0].Blocked)
	})

	t.Run("cancel returns task to pending", func(t *testing.T) {
		_, err := f.svc.Cancel(ctx, f.ws.ID, claimID, "out of scope")
		require.NoError(t, err)

		page, err := f.svc.Tasks(ctx, f.ws.ID, Filter{})
		require.NoError(t, err)
		require.Len(t, page.Tasks, 1)
		assert.Equal(t, StatePending, page.Tasks[0].State)
	})

	t.Run("unknown claim id", func(t *testing.T) {
		_, err := f.svc.Renew(ctx, f.ws.ID, "a99", 0)
		assert.ErrorIs(t, err, models.ErrAppendNotFound)
	})

	t.Run("malformed claim id", func(t *testing.T) {
		_, err := f.svc.Renew(ctx, f.ws.ID, "not-an-id", 0)
		assert.ErrorIs(t, err, models.ErrInvalidAppendID)
	})
}

func TestTaskFilters(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	docs := f.file(t, "/docs/work.md")
	misc := f.file(t, "/misc/other.md")

	t1 := f.task(t, docs.ID, "urgent work", models.PriorityCritical)
	f.claim(t, docs.ID, t1, "worker-1", 30*time.Minute)
	f.task(t, docs.ID, "later work", models.PriorityLow)
	f.task(t, misc.ID, "misc task", models.PriorityLow)

	t.Run("by state", func(t *testing.T) {
		page, err := f.svc.Tasks(ctx, f.ws.ID, Filter{States: []TaskState{StateClaimed}})
		require.NoError(t, err)
		require.Len(t, page.Tasks, 1)
		assert.Equal(t, "urgent work", page.Tasks[0].Content)
	})

	t.Run("by priority", func(t *testing.T) {
		page, err := f.svc.Tasks(ctx, f.ws.ID, Filter{Priorities: []models.Priority{models.PriorityLow}})
		require.NoError(t, err)
		assert.Len(t, page.Tasks, 2)
	})

	t.Run("by agent", func(t *testing.T) {
		page, err := f.svc.Tasks(ctx, f.ws.ID, Filter{Agent: "worker-1"})
		require.NoError(t, err)
		require.Len(t, page.Tasks, 1)
		assert.Equal(t, t1, page.Tasks[0].ID)
	})

	t.Run("by folder", func(t *testing.T) {
		page, err := f.svc.Tasks(ctx, f.ws.ID, Filter{Folder: "/docs/"})
		require.NoError(t, err)
		assert.Len(t, page.Tasks, 2)
	})

	t.Run("by file", func(t *testing.T) {
		page, err := f.svc.Tasks(ctx, f.ws.ID, Filter{File: "/misc/other.md"})
		require.NoError(t, err)
		require.Len(t, page.Tasks, 1)
		assert.Equal(t, "misc task", page.Tasks[0].Content)
	})

	t.Run("pagination newest first", func(t *testing.T) {
		page, err := f.svc.Tasks(ctx, f.ws.ID, Filter{Limit: 2})
		require.NoError(t, err)
		require.Len(t, page.Tasks, 2)
		assert.Equal(t, 3, page.Total)
		assert.Equal(t, "misc task", page.Tasks[0].Content)
		require.NotEmpty(t, page.NextCursor)

		rest, err := f.svc.Tasks(ctx, f.ws.ID, Filter{Limit: 2, Cursor: page.NextCursor})
		require.NoError(t, err)
		require.Len(t, rest.Tasks, 1)
		assert.Equal(t, "urgent work", rest.Tasks[0].Content)
	})
}

func TestClaimsView(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	doc := f.file(t, "/docs/work.md")

	t1 := f.task(t, doc.ID, "active one", "")
	f.claim(t, doc.ID, t1, "worker-1", 30*time.Minute)

	t2 := f.task(t, doc.ID, "stalled one", "")
	f.claim(t, doc.ID, t2, "worker-2", -time.Minute)

	t3 := f.task(t, doc.ID, "completed one", "")
	c3 := f.claim(t, doc.ID, t3, "worker-3", 30*time.Minute)
	_, err := f.svc.Complete(ctx, f.ws.ID, c3, "done")
	require.NoError(t, err)

	claims, err := f.svc.Claims(ctx, f.ws.ID, "/docs/")
	require.NoError(t, err)
	require.Len(t, claims, 2)

	byTask := map[string]*ClaimView{}
	for _, c := range claims {
		byTask[c.TaskID] = c
	}

	active := byTask[t1]
	require.NotNil(t, active)
	assert.Equal(t, "active", active.Status)
	assert.Equal(t, "/docs/work.md", active.File)
	assert.InDelta(t, 1800, active.ExpiresInSeconds, 5)

	stalled := byTask[t2]
	require.NotNil(t, stalled)
	assert.Equal(t, "expired", stalled.Status)
	assert.Zero(t, stalled.ExpiresInSeconds)
}
