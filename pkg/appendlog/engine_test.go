package appendlog

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capmd/capmd/pkg/models"
	"github.com/capmd/capmd/pkg/store"
)

func newTestEngine(t *testing.T) (*Engine, *models.Workspace, *store.Store) {
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

	f := &models.File{WorkspaceID: ws.ID, Path: "/todo.md", Content: "# Todo", ContentHash: "hash-v1"}
	_, err = s.CreateFile(context.Background(), f)
	require.NoError(t, err)

	return NewEngine(s), ws, s
}

func TestAppend(t *testing.T) {
	e, ws, _ := newTestEngine(t)
	ctx := context.Background()

	t.Run("task entry", func(t *testing.T) {
		a, err := e.Append(ctx, ws.ID, "/todo.md", Input{
			Author:   "alice",
			Type:     models.AppendTask,
			Priority: models.PriorityHigh,
			Labels:   []string{"infra", "urgent"},
			Content:  "rotate the certificates",
		})
		require.NoError(t, err)
		assert.Equal(t, "a1", a.PublicID)
		assert.Equal(t, "hash-v1", a.ContentHash)
		assert.Equal(t, models.Labels{"infra", "urgent"}, a.Labels)
	})

	t.Run("claim defaults its lease", func(t *testing.T) {
		a, err := e.Append(ctx, ws.ID, "/todo.md", Input{
			Author: "worker-1",
			Type:   models.AppendClaim,
			Ref:    "a1",
		})
		require.NoError(t, err)
		assert.Equal(t, models.ClaimStatusActive, a.Status)
		require.NotNil(t, a.ExpiresAt)
		assert.WithinDuration(t,
			time.Now().UTC().Add(DefaultClaimSeconds*time.Second),
			*a.ExpiresAt, 5*time.Second)
	})

	t.Run("claim without ref rejected", func(t *testing.T) {
		_, err := e.Append(ctx, ws.ID, "/todo.md", Input{
			Author: "worker-1",
			Type:   models.AppendClaim,
		})
		assert.ErrorIs(t, err, models.ErrInvalidRequest)
	})

	t.Run("claim must reference a task", func(t *testing.T) {
		// a2 is the claim itself, not a task.
		_, err := e.Append(ctx, ws.ID, "/todo.md", Input{
			Author: "worker-2",
			Type:   models.AppendClaim,
			Ref:    "a2",
		})
		assert.ErrorIs(t, err, models.ErrInvalidRef)
	})

	t.Run("ref must resolve in the same file", func(t *testing.T) {
		_, err := e.Append(ctx, ws.ID, "/todo.md", Input{
			Author: "worker-1",
			Type:   models.AppendResponse,
			Ref:    "a9",
		})
		assert.ErrorIs(t, err, models.ErrInvalidRef)
	})

	t.Run("author validation", func(t *testing.T) {
		for _, author := range []string{"", " leading", "has\nnewline", "a:b", strings.Repeat("x", 200)} {
			_, err := e.Append(ctx, ws.ID, "/todo.md", Input{Author: author, Type: models.AppendComment})
			assert.ErrorIs(t, err, models.ErrInvalidAuthor, "author %q", author)
		}
		for _, author := range []string{"alice", "worker-1", "bob@example.com", "Jane Doe"} {
			_, err := e.Append(ctx, ws.ID, "/todo.md", Input{Author: author, Type: models.AppendComment})
			assert.NoError(t, err, "author %q", author)
		}
	})

	t.Run("unknown type rejected", func(t *testing.T) {
		_, err := e.Append(ctx, ws.ID, "/todo.md", Input{Author: "alice", Type: "promote"})
		assert.ErrorIs(t, err, models.ErrInvalidRequest)
	})

	t.Run("preview truncated to 200 runes", func(t *testing.T) {
		a, err := e.Append(ctx, ws.ID, "/todo.md", Input{
			Author:  "alice",
			Type:    models.AppendComment,
			Content: strings.Repeat("é", 300),
		})
		require.NoError(t, err)
		assert.Equal(t, 200, len([]rune(a.Preview)))
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := e.Append(ctx, ws.ID, "/absent.md", Input{Author: "alice", Type: models.AppendComment})
		assert.ErrorIs(t, err, models.ErrFileNotFound)
	})
}

func TestListWithCursor(t *testing.T) {
	e, ws, _ := newTestEngine(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := e.Append(ctx, ws.ID, "/todo.md", Input{Author: "alice", Type: models.AppendComment, Content: "c"})
		require.NoError(t, err)
	}

	first, err := e.List(ctx, ws.ID, "/todo.md", "", 0)
	require.NoError(t, err)
	require.Len(t, first.Entries, 5)
	assert.Equal(t, int64(5), first.Total)
	assert.Equal(t, "a1", first.Entries[0].PublicID)
	require.NotEmpty(t, first.NextCursor)

	t.Run("cursor yields only strictly newer entries", func(t *testing.T) {
		empty, err := e.List(ctx, ws.ID, "/todo.md", first.NextCursor, 0)
		require.NoError(t, err)
		assert.Empty(t, empty.Entries)

		_, err = e.Append(ctx, ws.ID, "/todo.md", Input{Author: "alice", Type: models.AppendComment, Content: "new"})
		require.NoError(t, err)

		tail, err := e.List(ctx, ws.ID, "/todo.md", first.NextCursor, 0)
		require.NoError(t, err)
		require.Len(t, tail.Entries, 1)
		assert.Equal(t, "a6", tail.Entries[0].PublicID)
	})

	t.Run("limit returns most recent in insertion order", func(t *testing.T) {
		page, err := e.List(ctx, ws.ID, "/todo.md", "", 2)
		require.NoError(t, err)
		require.Len(t, page.Entries, 2)
		assert.Equal(t, "a5", page.Entries[0].PublicID)
		assert.Equal(t, "a6", page.Entries[1].PublicID)
	})

	t.Run("garbage cursor reads from the beginning", func(t *testing.T) {
		page, err := e.List(ctx, ws.ID, "/todo.md", "!!!", 0)
		require.NoError(t, err)
		assert.Len(t, page.Entries, 6)
	})
}

func TestGet(t *testing.T) {
	e, ws, _ := newTestEngine(t)
	ctx := context.Background()

	a, err := e.Append(ctx, ws.ID, "/todo.md", Input{Author: "alice", Type: models.AppendComment, Content: "hi"})
	require.NoError(t, err)

	got, err := e.Get(ctx, ws.ID, "/todo.md", a.PublicID)
	require.NoError(t, err)
	assert.Equal(t, "hi", got.Preview)

	_, err = e.Get(ctx, ws.ID, "/todo.md", "a42")
	assert.ErrorIs(t, err, models.ErrAppendNotFound)

	_, err = e.Get(ctx, ws.ID, "/todo.md", "42")
	assert.ErrorIs(t, err, models.ErrInvalidAppendID)
}

func TestStats(t *testing.T) {
	e, ws, _ := newTestEngine(t)
	ctx := context.Background()

	mk := func(in Input) *models.Append {
		a, err := e.Append(ctx, ws.ID, "/todo.md", in)
		require.NoError(t, err)
		return a
	}

	t1 := mk(Input{Author: "alice", Type: models.AppendTask, Content: "one"})
	mk(Input{Author: "w1", Type: models.AppendClaim, Ref: t1.PublicID})

	t2 := mk(Input{Author: "alice", Type: models.AppendTask, Content: "two"})
	mk(Input{Author: "w2", Type: models.AppendClaim, Ref: t2.PublicID, ExpiresInSeconds: -60})

	t3 := mk(Input{Author: "alice", Type: models.AppendTask, Content: "three"})
	mk(Input{Author: "w3", Type: models.AppendResponse, Ref: t3.PublicID})

	mk(Input{Author: "alice", Type: models.AppendTask, Content: "four"})

	stats, err := e.Stats(ctx, ws.ID, "/todo.md")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Pending)
	assert.Equal(t, 1, stats.Claimed)
	assert.Equal(t, 1, stats.Completed)
	assert.Equal(t, 1, stats.Stalled)
	assert.Equal(t, 1, stats.ActiveClaims)
}
