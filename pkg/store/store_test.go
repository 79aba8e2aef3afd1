package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capmd/capmd/pkg/models"
)

func createTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(&Config{
		Type:   DatabaseTypeSQLite,
		SQLite: SQLiteConfig{Path: ":memory:"},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func createTestWorkspace(t *testing.T, s *Store) *models.Workspace {
	t.Helper()
	ws := &models.Workspace{Name: "test"}
	_, err := s.CreateWorkspace(context.Background(), ws)
	require.NoError(t, err)
	return ws
}

func hashOf(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

func createTestFile(t *testing.T, s *Store, workspaceID, path, content string) *models.File {
	t.Helper()
	f := &models.File{
		WorkspaceID: workspaceID,
		Path:        path,
		Content:     content,
		SizeBytes:   int64(len(content)),
		ContentHash: hashOf(content),
	}
	_, err := s.CreateFile(context.Background(), f)
	require.NoError(t, err)
	return f
}

func TestFileLifecycle(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	ws := createTestWorkspace(t, s)

	t.Run("create and find by path", func(t *testing.T) {
		f := createTestFile(t, s, ws.ID, "/notes/hello.md", "# Hello")

		found, err := s.FindFileByPath(ctx, ws.ID, "/notes/hello.md")
		require.NoError(t, err)
		assert.Equal(t, f.ID, found.ID)
		assert.Equal(t, "# Hello", found.Content)
	})

	t.Run("duplicate path rejected", func(t *testing.T) {
		dup := &models.File{
			WorkspaceID: ws.ID,
			Path:        "/notes/hello.md",
			Content:     "other",
			ContentHash: hashOf("other"),
		}
		_, err := s.CreateFile(ctx, dup)
		assert.ErrorIs(t, err, models.ErrFileExists)
	})

	t.Run("update content", func(t *testing.T) {
		f, err := s.FindFileByPath(ctx, ws.ID, "/notes/hello.md")
		require.NoError(t, err)

		next := "# Hello\n\nUpdated."
		require.NoError(t, s.UpdateFileContent(ctx, f, next, hashOf(next), int64(len(next))))

		got, err := s.GetFile(ctx, f.ID)
		require.NoError(t, err)
		assert.Equal(t, next, got.Content)
		assert.Equal(t, hashOf(next), got.ContentHash)
		assert.Equal(t, int64(len(next)), got.SizeBytes)
	})

	t.Run("missing path", func(t *testing.T) {
		_, err := s.FindFileByPath(ctx, ws.ID, "/nope.md")
		assert.ErrorIs(t, err, models.ErrFileNotFound)
	})
}

func TestFileSoftDeleteAndRecover(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	ws := createTestWorkspace(t, s)

	f := createTestFile(t, s, ws.ID, "/doc.md", "body")
	require.NoError(t, s.SoftDeleteFile(ctx, f.ID, time.Now().UTC()))

	t.Run("hidden from live lookups", func(t *testing.T) {
		_, err := s.FindFileByPath(ctx, ws.ID, "/doc.md")
		assert.ErrorIs(t, err, models.ErrFileNotFound)
	})

	t.Run("visible to deleted lookup", func(t *testing.T) {
		del, err := s.FindDeletedFileByPath(ctx, ws.ID, "/doc.md")
		require.NoError(t, err)
		assert.Equal(t, f.ID, del.ID)
		assert.True(t, del.Deleted())
	})

	t.Run("double delete fails", func(t *testing.T) {
		err := s.SoftDeleteFile(ctx, f.ID, time.Now().UTC())
		assert.ErrorIs(t, err, models.ErrFileNotFound)
	})

	t.Run("path reusable while deleted", func(t *testing.T) {
		replacement := createTestFile(t, s, ws.ID, "/doc.md", "replacement")

		// Recovering the original must now collide with the replacement.
		_, err := s.RecoverFile(ctx, f.ID)
		assert.ErrorIs(t, err, models.ErrDestinationExists)

		require.NoError(t, s.SoftDeleteFile(ctx, replacement.ID, time.Now().UTC()))
	})

	t.Run("recover restores live lookup", func(t *testing.T) {
		recovered, err := s.RecoverFile(ctx, f.ID)
		require.NoError(t, err)
		assert.False(t, recovered.Deleted())

		found, err := s.FindFileByPath(ctx, ws.ID, "/doc.md")
		require.NoError(t, err)
		assert.Equal(t, f.ID, found.ID)
	})
}

func TestHardDeleteRemovesAppends(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	ws := createTestWorkspace(t, s)

	f := createTestFile(t, s, ws.ID, "/tasks.md", "# Tasks")
	require.NoError(t, s.InsertAppend(ctx, &models.Append{
		FileID: f.ID, WorkspaceID: ws.ID, Author: "alice", Type: models.AppendComment, Preview: "hi",
	}))

	require.NoError(t, s.HardDeleteFile(ctx, f.ID))

	_, err := s.GetFile(ctx, f.ID)
	assert.ErrorIs(t, err, models.ErrFileNotFound)

	n, err := s.CountAppends(ctx, f.ID)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestListFilesByPrefix(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	ws := createTestWorkspace(t, s)

	for _, p := range []string{
		"/readme.md",
		"/docs/a.md",
		"/docs/b.md",
		"/docs/deep/c.md",
		"/docs-backup/d.md",
	} {
		createTestFile(t, s, ws.ID, p, "x")
	}

	t.Run("recursive", func(t *testing.T) {
		files, err := s.ListFilesByPrefix(ctx, ws.ID, "/docs/", true)
		require.NoError(t, err)
		paths := filePaths(files)
		assert.Equal(t, []string{"/docs/a.md", "/docs/b.md", "/docs/deep/c.md"}, paths)
	})

	t.Run("direct children only", func(t *testing.T) {
		files, err := s.ListFilesByPrefix(ctx, ws.ID, "/docs/", false)
		require.NoError(t, err)
		assert.Equal(t, []string{"/docs/a.md", "/docs/b.md"}, filePaths(files))
	})

	t.Run("sibling folder with shared name prefix excluded", func(t *testing.T) {
		files, err := s.ListFilesByPrefix(ctx, ws.ID, "/docs/", true)
		require.NoError(t, err)
		assert.NotContains(t, filePaths(files), "/docs-backup/d.md")
	})

	t.Run("root lists everything", func(t *testing.T) {
		files, err := s.ListFilesByPrefix(ctx, ws.ID, "/", true)
		require.NoError(t, err)
		assert.Len(t, files, 5)
	})

	t.Run("like wildcards in prefix are literal", func(t *testing.T) {
		createTestFile(t, s, ws.ID, "/a_b/x.md", "x")
		createTestFile(t, s, ws.ID, "/aXb/y.md", "y")

		files, err := s.ListFilesByPrefix(ctx, ws.ID, "/a_b/", true)
		require.NoError(t, err)
		assert.Equal(t, []string{"/a_b/x.md"}, filePaths(files))
	})
}

func filePaths(files []*models.File) []string {
	out := make([]string, 0, len(files))
	for _, f := range files {
		out = append(out, f.Path)
	}
	return out
}

func TestAppendLog(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	ws := createTestWorkspace(t, s)
	f := createTestFile(t, s, ws.ID, "/tasks.md", "# Tasks")

	for i := 1; i <= 5; i++ {
		err := s.InsertAppend(ctx, &models.Append{
			FileID:      f.ID,
			WorkspaceID: ws.ID,
			Author:      "alice",
			Type:        models.AppendComment,
			Preview:     fmt.Sprintf("comment %d", i),
		})
		require.NoError(t, err)
	}

	t.Run("dense public ids", func(t *testing.T) {
		all, err := s.ListAppends(ctx, f.ID, 0, 0)
		require.NoError(t, err)
		require.Len(t, all, 5)
		for i, a := range all {
			assert.Equal(t, fmt.Sprintf("a%d", i+1), a.PublicID)
		}
	})

	t.Run("since cursor", func(t *testing.T) {
		all, err := s.ListAppends(ctx, f.ID, 0, 0)
		require.NoError(t, err)

		tail, err := s.ListAppends(ctx, f.ID, all[2].Seq, 0)
		require.NoError(t, err)
		require.Len(t, tail, 2)
		assert.Equal(t, "a4", tail[0].PublicID)
		assert.Equal(t, "a5", tail[1].PublicID)
	})

	t.Run("limit returns most recent in insertion order", func(t *testing.T) {
		last, err := s.ListAppends(ctx, f.ID, 0, 2)
		require.NoError(t, err)
		require.Len(t, last, 2)
		assert.Equal(t, "a4", last[0].PublicID)
		assert.Equal(t, "a5", last[1].PublicID)
	})

	t.Run("get by public id", func(t *testing.T) {
		a, err := s.GetAppendByPublicID(ctx, f.ID, "a3")
		require.NoError(t, err)
		assert.Equal(t, "comment 3", a.Preview)

		_, err = s.GetAppendByPublicID(ctx, f.ID, "a99")
		assert.ErrorIs(t, err, models.ErrAppendNotFound)
	})

	t.Run("ids independent per file", func(t *testing.T) {
		other := createTestFile(t, s, ws.ID, "/other.md", "x")
		a := &models.Append{FileID: other.ID, WorkspaceID: ws.ID, Author: "bob", Type: models.AppendComment, Preview: "first"}
		require.NoError(t, s.InsertAppend(ctx, a))
		assert.Equal(t, "a1", a.PublicID)
	})
}

func TestClaims(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	ws := createTestWorkspace(t, s)
	f := createTestFile(t, s, ws.ID, "/tasks.md", "# Tasks")

	require.NoError(t, s.InsertAppend(ctx, &models.Append{
		FileID: f.ID, WorkspaceID: ws.ID, Author: "alice", Type: models.AppendTask, Preview: "do the thing",
	}))

	expires := time.Now().UTC().Add(30 * time.Minute)
	claim := &models.Append{
		FileID:      f.ID,
		WorkspaceID: ws.ID,
		Author:      "worker-1",
		Type:        models.AppendClaim,
		Status:      models.ClaimStatusActive,
		Ref:         "a1",
		ExpiresAt:   &expires,
	}
	require.NoError(t, s.InsertAppend(ctx, claim))

	t.Run("find claim workspace-wide", func(t *testing.T) {
		got, err := s.FindClaimByPublicID(ctx, ws.ID, "a2")
		require.NoError(t, err)
		assert.Equal(t, claim.Seq, got.Seq)
		assert.True(t, got.ActiveClaim(time.Now().UTC()))
	})

	t.Run("task public id is not a claim", func(t *testing.T) {
		_, err := s.FindClaimByPublicID(ctx, ws.ID, "a1")
		assert.ErrorIs(t, err, models.ErrAppendNotFound)
	})

	t.Run("renew extends the lease", func(t *testing.T) {
		next := expires.Add(30 * time.Minute)
		require.NoError(t, s.UpdateClaimExpiry(ctx, claim.Seq, next))

		got, err := s.FindClaimByPublicID(ctx, ws.ID, "a2")
		require.NoError(t, err)
		require.NotNil(t, got.ExpiresAt)
		assert.WithinDuration(t, next, *got.ExpiresAt, time.Second)
	})
}

func TestWorkspaceStorageCounter(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	ws := createTestWorkspace(t, s)

	require.NoError(t, s.AddWorkspaceStorage(ctx, ws.ID, 1000))
	require.NoError(t, s.AddWorkspaceStorage(ctx, ws.ID, -400))

	got, err := s.GetWorkspace(ctx, ws.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(600), got.StorageUsedBytes)

	t.Run("clamps at zero", func(t *testing.T) {
		require.NoError(t, s.AddWorkspaceStorage(ctx, ws.ID, -5000))
		got, err := s.GetWorkspace(ctx, ws.ID)
		require.NoError(t, err)
		assert.Zero(t, got.StorageUsedBytes)
	})

	t.Run("unknown workspace", func(t *testing.T) {
		err := s.AddWorkspaceStorage(ctx, "missing", 1)
		assert.ErrorIs(t, err, models.ErrWorkspaceNotFound)
	})
}

func TestClaimWorkspace(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	ws := createTestWorkspace(t, s)

	alice := &models.Owner{Email: "alice@example.com", PasswordHash: "x"}
	_, err := s.CreateOwner(ctx, alice)
	require.NoError(t, err)
	bob := &models.Owner{Email: "bob@example.com", PasswordHash: "x"}
	_, err = s.CreateOwner(ctx, bob)
	require.NoError(t, err)

	require.NoError(t, s.ClaimWorkspace(ctx, ws.ID, alice.ID))

	got, err := s.GetWorkspace(ctx, ws.ID)
	require.NoError(t, err)
	require.True(t, got.Claimed())
	assert.Equal(t, alice.ID, *got.OwnerID)

	t.Run("same owner may reclaim", func(t *testing.T) {
		assert.NoError(t, s.ClaimWorkspace(ctx, ws.ID, alice.ID))
	})

	t.Run("different owner rejected", func(t *testing.T) {
		assert.ErrorIs(t, s.ClaimWorkspace(ctx, ws.ID, bob.ID), models.ErrInvalidRequest)
	})
}

func TestCapabilityKeys(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	ws := createTestWorkspace(t, s)

	mk := func(perm models.Permission, scopeType models.ScopeType, scopePath, hash string) *models.CapabilityKey {
		k := &models.CapabilityKey{
			WorkspaceID: ws.ID,
			Prefix:      hash[:4],
			Hash:        hash,
			Permission:  perm,
			ScopeType:   scopeType,
			ScopePath:   scopePath,
		}
		_, err := s.CreateCapabilityKey(ctx, k)
		require.NoError(t, err)
		return k
	}

	root := mk(models.PermissionWrite, models.ScopeWorkspace, "", hashOf("root"))
	fileR := mk(models.PermissionRead, models.ScopeFile, "/doc.md", hashOf("file-r"))
	fileW := mk(models.PermissionWrite, models.ScopeFile, "/doc.md", hashOf("file-w"))

	t.Run("lookup by hash", func(t *testing.T) {
		got, err := s.FindCapabilityKeyByHash(ctx, root.Hash)
		require.NoError(t, err)
		assert.Equal(t, root.ID, got.ID)

		_, err = s.FindCapabilityKeyByHash(ctx, hashOf("unknown"))
		assert.ErrorIs(t, err, models.ErrKeyNotFound)
	})

	t.Run("revoke by scope", func(t *testing.T) {
		n, err := s.RevokeCapabilityKeysByScope(ctx, ws.ID, models.ScopeFile, "/doc.md", time.Now().UTC())
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)

		for _, k := range []*models.CapabilityKey{fileR, fileW} {
			got, err := s.FindCapabilityKeyByHash(ctx, k.Hash)
			require.NoError(t, err)
			assert.True(t, got.Revoked())
		}

		got, err := s.FindCapabilityKeyByHash(ctx, root.Hash)
		require.NoError(t, err)
		assert.False(t, got.Revoked())
	})

	t.Run("revoked keys not revoked twice", func(t *testing.T) {
		n, err := s.RevokeCapabilityKeysByScope(ctx, ws.ID, models.ScopeFile, "/doc.md", time.Now().UTC())
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("scope path repointed after move", func(t *testing.T) {
		live := mk(models.PermissionAppend, models.ScopeFile, "/old.md", hashOf("live"))
		require.NoError(t, s.UpdateCapabilityKeyScopePath(ctx, ws.ID, models.ScopeFile, "/old.md", "/new.md"))

		got, err := s.FindCapabilityKeyByHash(ctx, live.Hash)
		require.NoError(t, err)
		assert.Equal(t, "/new.md", got.ScopePath)
	})
}

func TestIdempotencyRecords(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	ws := createTestWorkspace(t, s)

	first := &models.IdempotencyRecord{
		WorkspaceID: ws.ID,
		KeyID:       "k1",
		Token:       "tok-1",
		Status:      201,
		Body:        `{"ok":true}`,
	}
	stored, err := s.InsertIdempotencyIfAbsent(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, first.ID, stored.ID)

	t.Run("second insert returns the winner", func(t *testing.T) {
		loser := &models.IdempotencyRecord{
			WorkspaceID: ws.ID,
			KeyID:       "k1",
			Token:       "tok-1",
			Status:      500,
			Body:        `{"ok":false}`,
		}
		got, err := s.InsertIdempotencyIfAbsent(ctx, loser)
		require.NoError(t, err)
		assert.Equal(t, first.ID, got.ID)
		assert.Equal(t, 201, got.Status)
	})

	t.Run("purge removes old records", func(t *testing.T) {
		n, err := s.PurgeIdempotencyRecords(ctx, time.Now().UTC().Add(time.Minute))
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		_, err = s.GetIdempotencyRecord(ctx, "tok-1")
		assert.Error(t, err)
	})
}

func TestSearchFiles(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	ws := createTestWorkspace(t, s)

	createTestFile(t, s, ws.ID, "/docs/deploy.md", "# Deploying\n\nUse the blue-green rollout procedure.")
	createTestFile(t, s, ws.ID, "/docs/testing.md", "# Testing\n\nRun the suite before every rollout.")
	createTestFile(t, s, ws.ID, "/misc/poem.md", "roses are red")

	t.Run("matches ranked content", func(t *testing.T) {
		hits, err := s.SearchFiles(ctx, ws.ID, "rollout", "", 10)
		require.NoError(t, err)
		require.Len(t, hits, 2)
	})

	t.Run("folder filter", func(t *testing.T) {
		hits, err := s.SearchFiles(ctx, ws.ID, "rollout", "/misc/", 10)
		require.NoError(t, err)
		assert.Empty(t, hits)
	})

	t.Run("deleted files excluded", func(t *testing.T) {
		f, err := s.FindFileByPath(ctx, ws.ID, "/docs/deploy.md")
		require.NoError(t, err)
		require.NoError(t, s.SoftDeleteFile(ctx, f.ID, time.Now().UTC()))

		hits, err := s.SearchFiles(ctx, ws.ID, "rollout", "", 10)
		require.NoError(t, err)
		require.Len(t, hits, 1)
		assert.Equal(t, "/docs/testing.md", hits[0].Path)
	})

	t.Run("query operators neutralized", func(t *testing.T) {
		_, err := s.SearchFiles(ctx, ws.ID, `rollout AND "unclosed`, "", 10)
		assert.NoError(t, err)
	})
}

func TestSearchAppends(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	ws := createTestWorkspace(t, s)
	f := createTestFile(t, s, ws.ID, "/tasks.md", "# Tasks")

	require.NoError(t, s.InsertAppend(ctx, &models.Append{
		FileID: f.ID, WorkspaceID: ws.ID, Author: "alice", Type: models.AppendTask,
		Status: "pending", Preview: "investigate flaky pipeline",
	}))
	require.NoError(t, s.InsertAppend(ctx, &models.Append{
		FileID: f.ID, WorkspaceID: ws.ID, Author: "bob", Type: models.AppendComment,
		Preview: "pipeline looks fine to me",
	}))

	t.Run("matches across types", func(t *testing.T) {
		hits, err := s.SearchAppends(ctx, ws.ID, "pipeline", "", "", "", "", 10)
		require.NoError(t, err)
		assert.Len(t, hits, 2)
	})

	t.Run("type filter", func(t *testing.T) {
		hits, err := s.SearchAppends(ctx, ws.ID, "pipeline", "", string(models.AppendTask), "", "", 10)
		require.NoError(t, err)
		require.Len(t, hits, 1)
		assert.Equal(t, "alice", hits[0].Author)
	})

	t.Run("author filter", func(t *testing.T) {
		hits, err := s.SearchAppends(ctx, ws.ID, "pipeline", "", "", "", "bob", 10)
		require.NoError(t, err)
		require.Len(t, hits, 1)
		assert.Equal(t, "a2", hits[0].PublicID)
	})
}

func TestSweep(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	ws := createTestWorkspace(t, s)

	old := createTestFile(t, s, ws.ID, "/old.md", "old")
	recent := createTestFile(t, s, ws.ID, "/recent.md", "recent")

	now := time.Now().UTC()
	require.NoError(t, s.SoftDeleteFile(ctx, old.ID, now.Add(-models.RecoveryWindow-time.Hour)))
	require.NoError(t, s.SoftDeleteFile(ctx, recent.ID, now.Add(-time.Hour)))

	stale := &models.IdempotencyRecord{WorkspaceID: ws.ID, Token: "stale", Status: 200, Body: "{}"}
	_, err := s.InsertIdempotencyIfAbsent(ctx, stale)
	require.NoError(t, err)
	require.NoError(t, s.db.Model(stale).Update("created_at", now.Add(-2*models.IdempotencyTTL)).Error)

	res, err := s.Sweep(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 1, res.FilesPurged)
	assert.Equal(t, int64(1), res.IdempotencyPurged)

	_, err = s.GetFile(ctx, old.ID)
	assert.ErrorIs(t, err, models.ErrFileNotFound)

	still, err := s.GetFile(ctx, recent.ID)
	require.NoError(t, err)
	assert.True(t, still.Deleted())
}

func TestFolders(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	ws := createTestWorkspace(t, s)

	f := &models.Folder{WorkspaceID: ws.ID, Path: "/projects/capmd"}
	_, err := s.CreateFolder(ctx, f)
	require.NoError(t, err)

	got, err := s.FindFolderByPath(ctx, ws.ID, "/projects/capmd")
	require.NoError(t, err)
	assert.Equal(t, f.ID, got.ID)

	t.Run("duplicate rejected", func(t *testing.T) {
		_, err := s.CreateFolder(ctx, &models.Folder{WorkspaceID: ws.ID, Path: "/projects/capmd"})
		assert.ErrorIs(t, err, models.ErrFolderExists)
	})

	t.Run("list under prefix", func(t *testing.T) {
		_, err := s.CreateFolder(ctx, &models.Folder{WorkspaceID: ws.ID, Path: "/projects/other"})
		require.NoError(t, err)

		folders, err := s.ListFolders(ctx, ws.ID, "/projects/")
		require.NoError(t, err)
		assert.Len(t, folders, 2)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, s.DeleteFolder(ctx, f.ID))
		_, err := s.FindFolderByPath(ctx, ws.ID, "/projects/capmd")
		assert.ErrorIs(t, err, models.ErrFolderNotFound)
	})
}

func TestWebhookSubscriptions(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	ws := createTestWorkspace(t, s)

	sub := &models.WebhookSubscription{
		WorkspaceID: ws.ID,
		URL:         "https://example.com/hook",
		Events:      "file.updated,append.created",
		Secret:      "shh",
	}
	_, err := s.CreateWebhookSubscription(ctx, sub)
	require.NoError(t, err)

	subs, err := s.ListWebhookSubscriptions(ctx, ws.ID)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.True(t, subs[0].Matches("file.updated"))
	assert.False(t, subs[0].Matches("file.deleted"))

	t.Run("delete scoped to workspace", func(t *testing.T) {
		err := s.DeleteWebhookSubscription(ctx, "other-ws", sub.ID)
		assert.ErrorIs(t, err, models.ErrWebhookNotFound)

		require.NoError(t, s.DeleteWebhookSubscription(ctx, ws.ID, sub.ID))
		_, err = s.GetWebhookSubscription(ctx, sub.ID)
		assert.ErrorIs(t, err, models.ErrWebhookNotFound)
	})
}

func TestAuditEntries(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	ws := createTestWorkspace(t, s)

	batch := []*models.AuditEntry{
		{WorkspaceID: ws.ID, Action: models.AuditFileCreated, ResourcePath: "/a.md", Actor: "abcd", IP: "1.2.3.4", CreatedAt: time.Now().UTC().Add(-2 * time.Second)},
		{WorkspaceID: ws.ID, Action: models.AuditFileUpdated, ResourcePath: "/a.md", Actor: "abcd", IP: "1.2.3.4", CreatedAt: time.Now().UTC().Add(-time.Second)},
	}
	require.NoError(t, s.InsertAuditEntries(ctx, batch))
	require.NoError(t, s.InsertAuditEntry(ctx, &models.AuditEntry{
		WorkspaceID: ws.ID, Action: models.AuditKeysRotated, ResourcePath: "/a.md", Actor: "abcd", IP: "1.2.3.4", CreatedAt: time.Now().UTC(),
	}))

	entries, err := s.ListAuditEntries(ctx, ws.ID, 10)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, models.AuditKeysRotated, entries[0].Action)
}
