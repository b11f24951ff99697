package vcsworktree

import (
	"context"
	"fmt"
	"path/filepath"
)

// Manager backs the `!worktree` command table (spec.md §4.C9) with the git
// CLI calls of §6's Git contract.
type Manager struct {
	baseDir string // root directory under which new worktrees are created
}

// NewManager returns a Manager that creates worktrees under baseDir.
func NewManager(baseDir string) *Manager {
	return &Manager{baseDir: baseDir}
}

// Create adds a new worktree for repoRoot on branch, naming the directory
// after the session so concurrent sessions never collide on path.
func (m *Manager) Create(ctx context.Context, repoRoot, sessionID, branch string) (Info, error) {
	if !IsRepo(ctx, repoRoot) {
		return Info{}, fmt.Errorf("vcsworktree: %s is not a git repository", repoRoot)
	}
	path := filepath.Join(m.baseDir, sessionID)
	if err := AddWorktree(ctx, repoRoot, path, branch); err != nil {
		return Info{}, err
	}
	return Info{RepoRoot: repoRoot, WorktreePath: path, Branch: branch}, nil
}

// List returns the worktrees currently registered against repoRoot.
func (m *Manager) List(ctx context.Context, repoRoot string) ([]Entry, error) {
	return ListWorktrees(ctx, repoRoot)
}

// Remove deletes the worktree at path. force mirrors `git worktree remove
// --force`, used when the worktree has uncommitted changes the caller has
// already confirmed discarding.
func (m *Manager) Remove(ctx context.Context, repoRoot, path string, force bool) error {
	return RemoveWorktree(ctx, repoRoot, path, force)
}

// Switch is Create when branch doesn't yet have a worktree, otherwise it
// resolves the existing worktree's path for that branch.
func (m *Manager) Switch(ctx context.Context, repoRoot, sessionID, branch string) (Info, bool, error) {
	entries, err := ListWorktrees(ctx, repoRoot)
	if err != nil {
		return Info{}, false, err
	}
	for _, e := range entries {
		if e.Branch == branch {
			return Info{RepoRoot: repoRoot, WorktreePath: e.Path, Branch: branch}, true, nil
		}
	}
	info, err := m.Create(ctx, repoRoot, sessionID, branch)
	return info, false, err
}
