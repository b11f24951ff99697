package bridge

import (
	"context"
	"fmt"

	"github.com/opencode-ai/chatbridge/internal/chatutil"
	"github.com/opencode-ai/chatbridge/internal/model"
	"github.com/opencode-ai/chatbridge/internal/vcsworktree"
)

// offerWorktreePrompt implements spec.md §5's "mitigated by the
// worktree-prompt flow, not by locking" note: a brand new session whose
// working directory is a git repo already in use gets offered an isolated
// worktree instead of silently sharing a checkout with another session.
func (m *Manager) offerWorktreePrompt(ctx context.Context, pr *platformRuntime, bundle *sessionBundle) {
	if m.worktrees == nil {
		return
	}
	session := bundle.controller.Session()
	session.Lock()
	workingDir := session.WorkingDir
	threadID := session.ThreadID
	session.Unlock()

	repoRoot, err := vcsworktree.RepoRoot(ctx, workingDir)
	if err != nil {
		return
	}

	if m.hasOtherSessionOnRepo(session.SessionID, repoRoot) {
		m.openWorktreeCreatePrompt(ctx, pr, session, repoRoot, threadID)
		return
	}

	entries, err := m.worktrees.List(ctx, repoRoot)
	if err != nil || len(entries) == 0 {
		return
	}
	m.openExistingWorktreePrompt(ctx, pr, session, entries[0], threadID)
}

func (m *Manager) hasOtherSessionOnRepo(self model.SessionID, repoRoot string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, b := range m.sessions {
		if id == self {
			continue
		}
		other := b.controller.Session()
		other.Lock()
		root := other.WorkingDir
		if other.WorktreeInfo != nil {
			root = other.WorktreeInfo.RepoRoot
		}
		other.Unlock()
		if root == repoRoot {
			return true
		}
	}
	return false
}

func (m *Manager) openWorktreeCreatePrompt(ctx context.Context, pr *platformRuntime, session *model.Session, repoRoot, threadID string) {
	branch := "session-" + string(session.SessionID)
	message := fmt.Sprintf("Another session is already working in `%s`. Create an isolated worktree on branch `%s`?\n👍 create · 👎 share the directory", repoRoot, branch)
	post, err := pr.client.CreateInteractivePost(ctx, message, []string{"+1", "-1"}, threadID)
	if err != nil {
		m.log.Warn().Err(err).Msg("failed to open worktree-create prompt")
		return
	}
	session.Lock()
	session.PendingWorktreePrompt = &model.PendingWorktreePrompt{
		PostID:          post.ID,
		RepoRoot:        repoRoot,
		SuggestedBranch: branch,
	}
	session.Unlock()
	m.postIndex.Register(post.ID, session.SessionID)
}

func (m *Manager) openExistingWorktreePrompt(ctx context.Context, pr *platformRuntime, session *model.Session, entry vcsworktree.Entry, threadID string) {
	message := fmt.Sprintf("Found an existing worktree at `%s` (branch `%s`). Join it?\n👍 join · 👎 stay in the main checkout", entry.Path, entry.Branch)
	post, err := pr.client.CreateInteractivePost(ctx, message, []string{"+1", "-1"}, threadID)
	if err != nil {
		m.log.Warn().Err(err).Msg("failed to open existing-worktree prompt")
		return
	}
	session.Lock()
	session.PendingExistingWorktreePrompt = &model.PendingExistingWorktreePrompt{
		PostID:       post.ID,
		WorktreePath: entry.Path,
		Branch:       entry.Branch,
	}
	session.Unlock()
	m.postIndex.Register(post.ID, session.SessionID)
}

// resolveWorktreeCreate is called once an owner reacts to a
// PendingWorktreePrompt. A thumbs-up creates and restarts into the
// suggested worktree; anything else dismisses it and leaves the session in
// its original directory.
func (m *Manager) resolveWorktreeCreate(ctx context.Context, bundle *sessionBundle, session *model.Session, emoji string) {
	session.Lock()
	pending := session.PendingWorktreePrompt
	session.PendingWorktreePrompt = nil
	forceInteractive := session.ForceInteractivePermissions
	session.Unlock()
	if pending == nil {
		return
	}

	if !chatutil.IsApproval(emoji) {
		m.postToSession(ctx, bundle.platformID, session, "Staying in the shared directory.")
		return
	}

	info, err := m.worktrees.Create(ctx, pending.RepoRoot, string(session.SessionID), pending.SuggestedBranch)
	if err != nil {
		m.postToSession(ctx, bundle.platformID, session, "Failed to create worktree: "+err.Error())
		return
	}
	if err := bundle.controller.Restart(ctx, info.WorktreePath, forceInteractive); err != nil {
		m.postToSession(ctx, bundle.platformID, session, fmt.Sprintf("Failed to restart into worktree: %v", err))
		return
	}
	session.Lock()
	session.WorktreeInfo = &model.WorktreeInfo{RepoRoot: info.RepoRoot, WorktreePath: info.WorktreePath, Branch: info.Branch}
	session.NeedsContextPrompt = true
	session.Unlock()
	m.postToSession(ctx, bundle.platformID, session, fmt.Sprintf("Now working in `%s` (branch `%s`).", info.WorktreePath, info.Branch))
}

// resolveExistingWorktreeJoin is called once an owner reacts to a
// PendingExistingWorktreePrompt. A thumbs-up restarts the session into the
// existing worktree; anything else dismisses it.
func (m *Manager) resolveExistingWorktreeJoin(ctx context.Context, bundle *sessionBundle, session *model.Session, emoji string) {
	session.Lock()
	pending := session.PendingExistingWorktreePrompt
	session.PendingExistingWorktreePrompt = nil
	workingDir := session.WorkingDir
	forceInteractive := session.ForceInteractivePermissions
	session.Unlock()
	if pending == nil {
		return
	}

	if !chatutil.IsApproval(emoji) {
		m.postToSession(ctx, bundle.platformID, session, "Staying in the main checkout.")
		return
	}

	repoRoot, err := vcsworktree.RepoRoot(ctx, workingDir)
	if err != nil {
		repoRoot = workingDir
	}
	if err := bundle.controller.Restart(ctx, pending.WorktreePath, forceInteractive); err != nil {
		m.postToSession(ctx, bundle.platformID, session, fmt.Sprintf("Failed to restart into worktree: %v", err))
		return
	}
	session.Lock()
	session.WorktreeInfo = &model.WorktreeInfo{RepoRoot: repoRoot, WorktreePath: pending.WorktreePath, Branch: pending.Branch}
	session.NeedsContextPrompt = true
	session.Unlock()
	m.postToSession(ctx, bundle.platformID, session, fmt.Sprintf("Joined worktree `%s` (branch `%s`).", pending.WorktreePath, pending.Branch))
}
