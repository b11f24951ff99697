package cmddispatch

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/opencode-ai/chatbridge/internal/bridgesession"
	"github.com/opencode-ai/chatbridge/internal/model"
	"github.com/opencode-ai/chatbridge/internal/vcsworktree"
)

const helpText = `**Bridge commands**

| Command | Effect |
|---|---|
| ` + "`!help`" + ` | Show this table |
| ` + "`!invite @user`" + ` | Owner/admin: add a user to this session |
| ` + "`!kick @user`" + ` | Owner/admin: remove a user from this session |
| ` + "`!permissions interactive`" + ` | Owner/admin: require interactive tool approval |
| ` + "`!cd <path>`" + ` | Owner/admin: restart the agent in a different directory |
| ` + "`!worktree create\\|switch\\|list\\|remove\\|off> ...`" + ` | Owner/admin: git worktree operations |
| ` + "`!stop` / `!cancel`" + ` | End the session |
| ` + "`!escape`" + ` | Interrupt the current turn, keep the session alive |
`

func cmdHelp(ctx context.Context, d *Dispatcher, session *model.Session, username, args string) error {
	return d.post(ctx, session, helpText)
}

func cmdInvite(ctx context.Context, d *Dispatcher, session *model.Session, username, args string) error {
	if !d.isOwnerOrAdmin(session, username) {
		return d.post(ctx, session, "Only the session owner or an admin can invite users.")
	}
	target := stripMention(args)
	if target == "" {
		return d.post(ctx, session, "Usage: `!invite @username`")
	}

	session.Lock()
	session.AllowUser(target)
	session.Unlock()

	if d.refreshHeader != nil {
		d.refreshHeader(ctx, session)
	}
	return d.post(ctx, session, "Invited @"+target+" to this session.")
}

func cmdKick(ctx context.Context, d *Dispatcher, session *model.Session, username, args string) error {
	if !d.isOwnerOrAdmin(session, username) {
		return d.post(ctx, session, "Only the session owner or an admin can remove users.")
	}
	target := stripMention(args)
	if target == "" {
		return d.post(ctx, session, "Usage: `!kick @username`")
	}
	if d.adminUsers[target] {
		return d.post(ctx, session, "@"+target+" is globally allowed and can't be kicked from this session.")
	}

	session.Lock()
	removed := session.RemoveUser(target)
	session.Unlock()

	if !removed {
		return d.post(ctx, session, "Can't remove the session owner.")
	}
	if d.refreshHeader != nil {
		d.refreshHeader(ctx, session)
	}
	return d.post(ctx, session, "Removed @"+target+" from this session.")
}

func cmdPermissions(ctx context.Context, d *Dispatcher, session *model.Session, username, args string) error {
	if !d.isOwnerOrAdmin(session, username) {
		return d.post(ctx, session, "Only the session owner or an admin can change permission mode.")
	}
	if strings.TrimSpace(args) != "interactive" {
		return d.post(ctx, session, "Usage: `!permissions interactive`")
	}

	session.Lock()
	already := session.ForceInteractivePermissions
	session.Unlock()
	if already {
		return d.post(ctx, session, "Already running with interactive permissions.")
	}

	if err := d.controller.SwitchToInteractivePermissions(ctx); err != nil {
		return d.post(ctx, session, fmt.Sprintf("Failed to switch permission mode: %v", err))
	}
	return d.post(ctx, session, "Switched to interactive permissions. The agent will now ask before running tools.")
}

func cmdCd(ctx context.Context, d *Dispatcher, session *model.Session, username, args string) error {
	if !d.isOwnerOrAdmin(session, username) {
		return d.post(ctx, session, "Only the session owner or an admin can change the working directory.")
	}
	path := strings.TrimSpace(args)
	if path == "" {
		return d.post(ctx, session, "Usage: `!cd <path>`")
	}
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return d.post(ctx, session, "`"+path+"` is not a directory on this machine.")
	}

	session.Lock()
	forceInteractive := session.ForceInteractivePermissions
	session.Unlock()

	if err := d.controller.Restart(ctx, path, forceInteractive); err != nil {
		return d.post(ctx, session, fmt.Sprintf("Failed to restart in %s: %v", path, err))
	}

	session.Lock()
	session.NeedsContextPrompt = true
	session.Unlock()
	return d.post(ctx, session, "Restarted in `"+path+"`.")
}

func cmdStop(ctx context.Context, d *Dispatcher, session *model.Session, username, args string) error {
	if err := d.controller.Kill(bridgesession.EndReasonStop); err != nil {
		d.log.Warn().Err(err).Msg("error killing session on !stop")
	}
	return d.post(ctx, session, "Session stopped.")
}

func cmdEscape(ctx context.Context, d *Dispatcher, session *model.Session, username, args string) error {
	session.Lock()
	allowed := session.IsAllowed(username)
	session.Unlock()
	if !allowed {
		return nil
	}
	if err := d.controller.Interrupt(); err != nil {
		d.log.Warn().Err(err).Msg("error interrupting session on !escape")
	}
	return d.post(ctx, session, "Interrupted. The session is still running.")
}

func cmdWorktree(ctx context.Context, d *Dispatcher, session *model.Session, username, args string) error {
	if !d.isOwnerOrAdmin(session, username) {
		return d.post(ctx, session, "Only the session owner or an admin can manage worktrees.")
	}
	if d.worktrees == nil {
		return d.post(ctx, session, "Worktree management is not configured on this bridge.")
	}

	sub, rest := splitFirstWord(args)
	switch strings.ToLower(sub) {
	case "create":
		return d.worktreeCreate(ctx, session, rest)
	case "switch":
		return d.worktreeSwitch(ctx, session, rest)
	case "list":
		return d.worktreeList(ctx, session)
	case "remove":
		return d.worktreeRemove(ctx, session, rest)
	case "off":
		return d.worktreeOff(ctx, session)
	default:
		return d.post(ctx, session, "Usage: `!worktree <create|switch|list|remove|off> ...`")
	}
}

func (d *Dispatcher) repoRoot(ctx context.Context, session *model.Session) (string, error) {
	if session.WorktreeInfo != nil {
		return session.WorktreeInfo.RepoRoot, nil
	}
	return vcsworktree.RepoRoot(ctx, session.WorkingDir)
}

func (d *Dispatcher) worktreeCreate(ctx context.Context, session *model.Session, branch string) error {
	branch = strings.TrimSpace(branch)
	if branch == "" {
		return d.post(ctx, session, "Usage: `!worktree create <branch>`")
	}
	repoRoot, err := d.repoRoot(ctx, session)
	if err != nil {
		return d.post(ctx, session, "Not a git repository: "+err.Error())
	}
	info, err := d.worktrees.Create(ctx, repoRoot, string(session.SessionID), branch)
	if err != nil {
		return d.post(ctx, session, "Failed to create worktree: "+err.Error())
	}
	return d.switchInto(ctx, session, info)
}

func (d *Dispatcher) worktreeSwitch(ctx context.Context, session *model.Session, branch string) error {
	branch = strings.TrimSpace(branch)
	if branch == "" {
		return d.post(ctx, session, "Usage: `!worktree switch <branch>`")
	}
	repoRoot, err := d.repoRoot(ctx, session)
	if err != nil {
		return d.post(ctx, session, "Not a git repository: "+err.Error())
	}
	info, _, err := d.worktrees.Switch(ctx, repoRoot, string(session.SessionID), branch)
	if err != nil {
		return d.post(ctx, session, "Failed to switch worktree: "+err.Error())
	}
	return d.switchInto(ctx, session, info)
}

func (d *Dispatcher) switchInto(ctx context.Context, session *model.Session, info vcsworktree.Info) error {
	session.Lock()
	forceInteractive := session.ForceInteractivePermissions
	session.Unlock()

	if err := d.controller.Restart(ctx, info.WorktreePath, forceInteractive); err != nil {
		return d.post(ctx, session, fmt.Sprintf("Failed to restart into worktree: %v", err))
	}

	session.Lock()
	session.WorktreeInfo = &model.WorktreeInfo{RepoRoot: info.RepoRoot, WorktreePath: info.WorktreePath, Branch: info.Branch}
	session.NeedsContextPrompt = true
	session.Unlock()
	return d.post(ctx, session, fmt.Sprintf("Now working in `%s` (branch `%s`).", info.WorktreePath, info.Branch))
}

func (d *Dispatcher) worktreeList(ctx context.Context, session *model.Session) error {
	repoRoot, err := d.repoRoot(ctx, session)
	if err != nil {
		return d.post(ctx, session, "Not a git repository: "+err.Error())
	}
	entries, err := d.worktrees.List(ctx, repoRoot)
	if err != nil {
		return d.post(ctx, session, "Failed to list worktrees: "+err.Error())
	}
	if len(entries) == 0 {
		return d.post(ctx, session, "No worktrees registered for this repository.")
	}
	var b strings.Builder
	b.WriteString("**Worktrees**\n\n")
	for _, e := range entries {
		b.WriteString(fmt.Sprintf("- `%s` — `%s`\n", e.Path, e.Branch))
	}
	return d.post(ctx, session, b.String())
}

func (d *Dispatcher) worktreeRemove(ctx context.Context, session *model.Session, path string) error {
	path = strings.TrimSpace(path)
	if path == "" && session.WorktreeInfo != nil {
		path = session.WorktreeInfo.WorktreePath
	}
	if path == "" {
		return d.post(ctx, session, "Usage: `!worktree remove <path>`")
	}
	repoRoot, err := d.repoRoot(ctx, session)
	if err != nil {
		return d.post(ctx, session, "Not a git repository: "+err.Error())
	}
	if err := d.worktrees.Remove(ctx, repoRoot, path, false); err != nil {
		return d.post(ctx, session, "Failed to remove worktree: "+err.Error())
	}
	return d.post(ctx, session, "Removed worktree `"+path+"`.")
}

func (d *Dispatcher) worktreeOff(ctx context.Context, session *model.Session) error {
	session.Lock()
	info := session.WorktreeInfo
	session.Unlock()
	if info == nil {
		return d.post(ctx, session, "This session isn't pinned to a worktree.")
	}

	session.Lock()
	forceInteractive := session.ForceInteractivePermissions
	session.Unlock()

	if err := d.controller.Restart(ctx, info.RepoRoot, forceInteractive); err != nil {
		return d.post(ctx, session, fmt.Sprintf("Failed to restart in %s: %v", info.RepoRoot, err))
	}

	session.Lock()
	session.WorktreeInfo = nil
	session.NeedsContextPrompt = true
	session.Unlock()
	return d.post(ctx, session, "Back to `"+info.RepoRoot+"`.")
}
