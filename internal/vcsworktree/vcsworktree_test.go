package vcsworktree

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func initRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	run := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		out, err := cmd.CombinedOutput()
		require.NoError(t, err, string(out))
	}
	run("init", "-q", "-b", "main")
	run("config", "user.email", "test@example.com")
	run("config", "user.name", "Test")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("hi"), 0o644))
	run("add", ".")
	run("commit", "-q", "-m", "init")
	return dir
}

func TestIsRepoTrueAndFalse(t *testing.T) {
	ctx := context.Background()
	repo := initRepo(t)
	require.True(t, IsRepo(ctx, repo))
	require.False(t, IsRepo(ctx, t.TempDir()))
}

func TestCurrentBranch(t *testing.T) {
	repo := initRepo(t)
	require.Equal(t, "main", CurrentBranch(repo))
}

func TestValidateBranchNameRejectsBadNames(t *testing.T) {
	bad := []string{"", "@", "foo..bar", "/leading", "trailing/", "trailing.", "a.lock", "has space", "has~tilde", "has^caret", "has:colon"}
	for _, name := range bad {
		require.Error(t, ValidateBranchName(name), "expected error for %q", name)
	}
}

func TestValidateBranchNameAcceptsGoodNames(t *testing.T) {
	good := []string{"main", "feature/x", "bugfix-123", "release/1.0"}
	for _, name := range good {
		require.NoError(t, ValidateBranchName(name), "expected no error for %q", name)
	}
}

func TestManagerCreateListRemove(t *testing.T) {
	ctx := context.Background()
	repo := initRepo(t)
	base := t.TempDir()
	mgr := NewManager(base)

	info, err := mgr.Create(ctx, repo, "sess-1", "feature/new")
	require.NoError(t, err)
	require.DirExists(t, info.WorktreePath)
	require.Equal(t, "feature/new", info.Branch)

	entries, err := mgr.List(ctx, repo)
	require.NoError(t, err)
	require.Len(t, entries, 2) // main checkout + new worktree

	require.NoError(t, mgr.Remove(ctx, repo, info.WorktreePath, false))

	entries, err = mgr.List(ctx, repo)
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestManagerSwitchReusesExistingWorktree(t *testing.T) {
	ctx := context.Background()
	repo := initRepo(t)
	mgr := NewManager(t.TempDir())

	info1, existed, err := mgr.Switch(ctx, repo, "sess-1", "feature/x")
	require.NoError(t, err)
	require.False(t, existed)

	info2, existed, err := mgr.Switch(ctx, repo, "sess-2", "feature/x")
	require.NoError(t, err)
	require.True(t, existed)
	require.Equal(t, info1.WorktreePath, info2.WorktreePath)
}

func TestIsCleanDetectsDirtyWorktree(t *testing.T) {
	ctx := context.Background()
	repo := initRepo(t)

	clean, err := IsClean(ctx, repo)
	require.NoError(t, err)
	require.True(t, clean)

	require.NoError(t, os.WriteFile(filepath.Join(repo, "dirty.txt"), []byte("x"), 0o644))

	clean, err = IsClean(ctx, repo)
	require.NoError(t, err)
	require.False(t, clean)
}

func TestBranchWatcherDetectsCheckout(t *testing.T) {
	ctx := context.Background()
	repo := initRepo(t)

	cmd := exec.Command("git", "checkout", "-q", "-b", "other")
	cmd.Dir = repo
	require.NoError(t, cmd.Run())
	cmd = exec.Command("git", "checkout", "-q", "main")
	cmd.Dir = repo
	require.NoError(t, cmd.Run())

	changed := make(chan string, 4)
	w, err := NewBranchWatcher(repo, func(b string) { changed <- b })
	require.NoError(t, err)
	require.NotNil(t, w)
	defer w.Stop()
	w.Start()

	cmd = exec.Command("git", "checkout", "-q", "other")
	cmd.Dir = repo
	require.NoError(t, cmd.Run())

	select {
	case b := <-changed:
		require.Equal(t, "other", b)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for branch change notification")
	}
	_ = ctx
}
