package workspace

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capmd/capmd/pkg/keys"
	"github.com/capmd/capmd/pkg/models"
	"github.com/capmd/capmd/pkg/store"
)

func newTestService(t *testing.T, cfg Config) (*Service, *models.Workspace) {
	t.Helper()
	s, err := store.New(&store.Config{
		Type:   store.DatabaseTypeSQLite,
		SQLite: store.SQLiteConfig{Path: ":memory:"},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	svc := NewService(s, cfg)
	ws := &models.Workspace{Name: "test"}
	_, err = s.CreateWorkspace(context.Background(), ws)
	require.NoError(t, err)
	return svc, ws
}

func TestUpsert(t *testing.T) {
	svc, ws := newTestService(t, Config{})
	ctx := context.Background()

	t.Run("create", func(t *testing.T) {
		res, err := svc.Upsert(ctx, ws.ID, "/hello.md", "hi", "")
		require.NoError(t, err)
		assert.True(t, res.Created)
		assert.Equal(t, int64(2), res.File.SizeBytes)
		assert.NotEmpty(t, res.File.ETag())

		got, err := svc.Store().GetWorkspace(ctx, ws.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(2), got.StorageUsedBytes)
	})

	t.Run("identical content yields identical etag", func(t *testing.T) {
		a, err := svc.Upsert(ctx, ws.ID, "/x.md", "same", "")
		require.NoError(t, err)
		b, err := svc.Upsert(ctx, ws.ID, "/y.md", "same", "")
		require.NoError(t, err)
		assert.Equal(t, a.File.ETag(), b.File.ETag())
	})

	t.Run("update adjusts storage by delta", func(t *testing.T) {
		res, err := svc.Upsert(ctx, ws.ID, "/hello.md", "hello world", "")
		require.NoError(t, err)
		assert.False(t, res.Created)

		got, err := svc.Store().GetWorkspace(ctx, ws.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(11+8), got.StorageUsedBytes)
	})

	t.Run("if-match honored", func(t *testing.T) {
		cur, err := svc.Store().FindFileByPath(ctx, ws.ID, "/hello.md")
		require.NoError(t, err)

		res, err := svc.Upsert(ctx, ws.ID, "/hello.md", "ho", cur.ETag())
		require.NoError(t, err)

		// The old tag no longer matches.
		_, err = svc.Upsert(ctx, ws.ID, "/hello.md", "hey", cur.ETag())
		assert.ErrorIs(t, err, models.ErrETagMismatch)

		got, err := svc.Store().GetFile(ctx, res.File.ID)
		require.NoError(t, err)
		assert.Equal(t, "ho", got.Content)
	})

	t.Run("if-match star requires existence", func(t *testing.T) {
		_, err := svc.Upsert(ctx, ws.ID, "/hello.md", "z", "*")
		assert.NoError(t, err)

		_, err = svc.Upsert(ctx, ws.ID, "/never-created.md", "z", "*")
		assert.ErrorIs(t, err, models.ErrETagMismatch)
	})

	t.Run("invalid path", func(t *testing.T) {
		_, err := svc.Upsert(ctx, ws.ID, "/a/../b.md", "x", "")
		assert.ErrorIs(t, err, models.ErrInvalidPath)
	})
}

func TestUpsertLimits(t *testing.T) {
	svc, ws := newTestService(t, Config{MaxFileSize: 20, MaxStorage: 25})
	ctx := context.Background()

	t.Run("payload too large", func(t *testing.T) {
		_, err := svc.Upsert(ctx, ws.ID, "/big.md", strings.Repeat("x", 21), "")
		assert.ErrorIs(t, err, models.ErrPayloadTooLarge)
	})

	t.Run("quota on create", func(t *testing.T) {
		_, err := svc.Upsert(ctx, ws.ID, "/a.md", strings.Repeat("x", 10), "")
		require.NoError(t, err)
		_, err = svc.Upsert(ctx, ws.ID, "/b.md", strings.Repeat("x", 10), "")
		require.NoError(t, err)

		_, err = svc.Upsert(ctx, ws.ID, "/c.md", strings.Repeat("x", 10), "")
		assert.ErrorIs(t, err, models.ErrQuotaExceeded)
	})

	t.Run("quota on growth counts only the delta", func(t *testing.T) {
		// 20 of 25 used; growing a.md from 10 to 15 lands exactly on the cap.
		_, err := svc.Upsert(ctx, ws.ID, "/a.md", strings.Repeat("y", 15), "")
		assert.NoError(t, err)

		// Any further growth tips over.
		_, err = svc.Upsert(ctx, ws.ID, "/b.md", strings.Repeat("y", 12), "")
		assert.ErrorIs(t, err, models.ErrQuotaExceeded)
	})

	t.Run("shrinking always allowed", func(t *testing.T) {
		_, err := svc.Upsert(ctx, ws.ID, "/b.md", "y", "")
		assert.NoError(t, err)

		got, err := svc.Store().GetWorkspace(ctx, ws.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(16), got.StorageUsedBytes)
	})
}

func TestDeleteAndRecover(t *testing.T) {
	svc, ws := newTestService(t, Config{})
	ctx := context.Background()

	_, err := svc.Upsert(ctx, ws.ID, "/doc.md", "body", "")
	require.NoError(t, err)

	t.Run("soft delete credits storage and reports window", func(t *testing.T) {
		res, err := svc.Delete(ctx, ws.ID, "/doc.md", false)
		require.NoError(t, err)
		assert.True(t, res.Recoverable)
		assert.WithinDuration(t, time.Now().Add(models.RecoveryWindow), res.ExpiresAt, time.Minute)

		got, err := svc.Store().GetWorkspace(ctx, ws.ID)
		require.NoError(t, err)
		assert.Zero(t, got.StorageUsedBytes)
	})

	t.Run("recover restores file and storage", func(t *testing.T) {
		res, err := svc.Recover(ctx, ws.ID, "/doc.md", false)
		require.NoError(t, err)
		assert.Equal(t, "/doc.md", res.File.Path)
		assert.Nil(t, res.Keys)

		got, err := svc.Store().GetWorkspace(ctx, ws.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(4), got.StorageUsedBytes)
	})

	t.Run("recover past window fails", func(t *testing.T) {
		_, err := svc.Delete(ctx, ws.ID, "/doc.md", false)
		require.NoError(t, err)

		svc.now = func() time.Time { return time.Now().Add(models.RecoveryWindow + time.Hour) }
		defer func() { svc.now = time.Now }()

		_, err = svc.Recover(ctx, ws.ID, "/doc.md", false)
		assert.ErrorIs(t, err, models.ErrRecoveryExpired)
	})

	t.Run("permanent delete leaves nothing to recover", func(t *testing.T) {
		_, err := svc.Upsert(ctx, ws.ID, "/gone.md", "x", "")
		require.NoError(t, err)
		_, err = svc.Delete(ctx, ws.ID, "/gone.md", true)
		require.NoError(t, err)

		_, err = svc.Recover(ctx, ws.ID, "/gone.md", false)
		assert.ErrorIs(t, err, models.ErrFileNotFound)
	})

	t.Run("recover with rotation mints keys", func(t *testing.T) {
		_, err := svc.Upsert(ctx, ws.ID, "/rot.md", "x", "")
		require.NoError(t, err)
		_, err = svc.Delete(ctx, ws.ID, "/rot.md", false)
		require.NoError(t, err)

		res, err := svc.Recover(ctx, ws.ID, "/rot.md", true)
		require.NoError(t, err)
		require.NotNil(t, res.Keys)
		assert.True(t, keys.ValidScoped(res.Keys.Read))
		assert.True(t, keys.ValidScoped(res.Keys.Write))
	})
}

func TestMoveAndRename(t *testing.T) {
	svc, ws := newTestService(t, Config{})
	ctx := context.Background()

	_, err := svc.Upsert(ctx, ws.ID, "/docs/a.md", "a", "")
	require.NoError(t, err)
	_, err = svc.Upsert(ctx, ws.ID, "/docs/b.md", "b", "")
	require.NoError(t, err)

	t.Run("move repoints file keys", func(t *testing.T) {
		triple, err := svc.MintFileKeys(ctx, ws.ID, "/docs/a.md")
		require.NoError(t, err)

		f, err := svc.Move(ctx, ws.ID, "/docs/a.md", "/archive/a.md")
		require.NoError(t, err)
		assert.Equal(t, "/archive/a.md", f.Path)

		k, err := svc.Store().FindCapabilityKeyByHash(ctx, keys.Hash(triple.Read))
		require.NoError(t, err)
		assert.Equal(t, "/archive/a.md", k.ScopePath)
	})

	t.Run("move onto occupied path rejected", func(t *testing.T) {
		_, err := svc.Move(ctx, ws.ID, "/archive/a.md", "/docs/b.md")
		assert.ErrorIs(t, err, models.ErrDestinationExists)
	})

	t.Run("missing source", func(t *testing.T) {
		_, err := svc.Move(ctx, ws.ID, "/nope.md", "/dest.md")
		assert.ErrorIs(t, err, models.ErrSourceNotFound)
	})

	t.Run("rename keeps parent", func(t *testing.T) {
		f, err := svc.Rename(ctx, ws.ID, "/docs/b.md", "c.md")
		require.NoError(t, err)
		assert.Equal(t, "/docs/c.md", f.Path)
	})

	t.Run("rename rejects slashes", func(t *testing.T) {
		_, err := svc.Rename(ctx, ws.ID, "/docs/c.md", "sub/d.md")
		assert.ErrorIs(t, err, models.ErrInvalidPath)
	})
}

func TestRotateFileKeys(t *testing.T) {
	svc, ws := newTestService(t, Config{})
	ctx := context.Background()

	_, err := svc.Upsert(ctx, ws.ID, "/doc.md", "x", "")
	require.NoError(t, err)

	old, err := svc.MintFileKeys(ctx, ws.ID, "/doc.md")
	require.NoError(t, err)

	fresh, err := svc.RotateFileKeys(ctx, ws.ID, "/doc.md")
	require.NoError(t, err)
	assert.NotEqual(t, old.Read, fresh.Read)

	revoked, err := svc.Store().FindCapabilityKeyByHash(ctx, keys.Hash(old.Write))
	require.NoError(t, err)
	assert.True(t, revoked.Revoked())

	live, err := svc.Store().FindCapabilityKeyByHash(ctx, keys.Hash(fresh.Write))
	require.NoError(t, err)
	assert.False(t, live.Revoked())
	assert.Equal(t, models.ScopeFile, live.ScopeType)
	assert.Equal(t, "/doc.md", live.ScopePath)
}

func TestBootstrap(t *testing.T) {
	svc, _ := newTestService(t, Config{})
	ctx := context.Background()

	res, err := svc.Bootstrap(ctx, "fresh")
	require.NoError(t, err)
	assert.NotEmpty(t, res.Workspace.ID)
	assert.True(t, strings.HasPrefix(res.Keys.Read, "r_"))
	assert.True(t, strings.HasPrefix(res.Keys.Append, "a_"))
	assert.True(t, strings.HasPrefix(res.Keys.Write, "w_"))

	k, err := svc.Store().FindCapabilityKeyByHash(ctx, keys.Hash(res.Keys.Write))
	require.NoError(t, err)
	assert.Equal(t, res.Workspace.ID, k.WorkspaceID)
	assert.Equal(t, models.ScopeWorkspace, k.ScopeType)
}

func TestFolders(t *testing.T) {
	svc, ws := newTestService(t, Config{})
	ctx := context.Background()

	t.Run("explicit folder", func(t *testing.T) {
		f, err := svc.CreateFolder(ctx, ws.ID, "/projects/", models.JSONMap{"color": "blue"})
		require.NoError(t, err)
		assert.Equal(t, "/projects", f.Path)

		ok, err := svc.FolderExists(ctx, ws.ID, "/projects")
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("virtual folder implied by files", func(t *testing.T) {
		_, err := svc.Upsert(ctx, ws.ID, "/notes/today.md", "x", "")
		require.NoError(t, err)

		ok, err := svc.FolderExists(ctx, ws.ID, "/notes")
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = svc.FolderExists(ctx, ws.ID, "/absent")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("delete refuses non-empty", func(t *testing.T) {
		_, err := svc.Upsert(ctx, ws.ID, "/projects/readme.md", "x", "")
		require.NoError(t, err)

		err = svc.DeleteFolder(ctx, ws.ID, "/projects")
		assert.ErrorIs(t, err, models.ErrFolderNotEmpty)

		_, err = svc.Delete(ctx, ws.ID, "/projects/readme.md", true)
		require.NoError(t, err)
		assert.NoError(t, svc.DeleteFolder(ctx, ws.ID, "/projects"))
	})
}

func TestListFolder(t *testing.T) {
	svc, ws := newTestService(t, Config{})
	ctx := context.Background()

	for _, p := range []string{"/docs/b.md", "/docs/a.md", "/docs/sub/deep.md", "/top.md"} {
		_, err := svc.Upsert(ctx, ws.ID, p, "x", "")
		require.NoError(t, err)
	}

	t.Run("non-recursive surfaces subfolders", func(t *testing.T) {
		l, err := svc.ListFolder(ctx, ws.ID, "/docs/", ListOptions{})
		require.NoError(t, err)
		assert.Equal(t, []string{"/docs/sub/"}, l.Folders)
		require.Len(t, l.Files, 2)
		assert.Equal(t, "/docs/a.md", l.Files[0].Path)
	})

	t.Run("recursive", func(t *testing.T) {
		l, err := svc.ListFolder(ctx, ws.ID, "/docs/", ListOptions{Recursive: true})
		require.NoError(t, err)
		assert.Len(t, l.Files, 3)
		assert.Empty(t, l.Folders)
	})

	t.Run("pagination", func(t *testing.T) {
		l, err := svc.ListFolder(ctx, ws.ID, "/", ListOptions{Recursive: true, Limit: 2})
		require.NoError(t, err)
		require.Len(t, l.Files, 2)
		require.NotEmpty(t, l.NextCursor)
		assert.Equal(t, 4, l.Total)

		next, err := svc.ListFolder(ctx, ws.ID, "/", ListOptions{Recursive: true, Limit: 2, Cursor: l.NextCursor})
		require.NoError(t, err)
		assert.Len(t, next.Files, 2)
		assert.Empty(t, next.NextCursor)
	})

	t.Run("sort by size desc", func(t *testing.T) {
		_, err := svc.Upsert(ctx, ws.ID, "/docs/large.md", "xxxxxxxx", "")
		require.NoError(t, err)

		l, err := svc.ListFolder(ctx, ws.ID, "/docs/", ListOptions{Recursive: true, Sort: SortBySize, Desc: true})
		require.NoError(t, err)
		assert.Equal(t, "/docs/large.md", l.Files[0].Path)
	})
}
