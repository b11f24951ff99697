// Package vcsworktree administers git worktrees for sessions that want to
// run an agent against an isolated checkout instead of the shared repo
// directory, and watches each active worktree's HEAD for out-of-band branch
// switches.
//
// The command surface (is-repo, rev-parse --show-toplevel, status
// --porcelain, worktree list/add/remove) is a thin wrapper over the `git`
// binary, grounded on the teacher's internal/vcs/watcher.go findGitDir and
// getCurrentBranch helpers. Branch-name validation follows the posix
// git-check-ref-format rules by hand, since no example repo in the pack
// carries a ref-format validation library.
package vcsworktree
