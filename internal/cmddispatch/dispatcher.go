package cmddispatch

import (
	"context"
	"fmt"
	"strings"

	"github.com/agnivade/levenshtein"
	"github.com/rs/zerolog"

	"github.com/opencode-ai/chatbridge/internal/bridgesession"
	"github.com/opencode-ai/chatbridge/internal/chatplatform"
	"github.com/opencode-ai/chatbridge/internal/logging"
	"github.com/opencode-ai/chatbridge/internal/model"
	"github.com/opencode-ai/chatbridge/internal/vcsworktree"
)

// suggestMaxDistance bounds how close a mistyped command name must be to a
// known one before Handle offers it as a "did you mean" suggestion.
const suggestMaxDistance = 2

// legacyBareWords are recognized without a leading "!", matching older
// bridge conventions some admins still type out of habit.
var legacyBareWords = map[string]bool{"stop": true, "cancel": true, "escape": true}

type handlerFunc func(ctx context.Context, d *Dispatcher, session *model.Session, username, args string) error

// Dispatcher owns the command table for one session.
// AdminUsers is that platform's config-level allow-list (spec.md's
// "globally-allowed" users) — distinct from a session's own
// SessionAllowedUsers.
type Dispatcher struct {
	controller    *bridgesession.Controller
	client        chatplatform.Client
	worktrees     *vcsworktree.Manager
	adminUsers    map[string]bool
	refreshHeader func(ctx context.Context, session *model.Session)
	registerPost  func(postID string, sessionID model.SessionID)
	log           zerolog.Logger

	table map[string]handlerFunc
}

// New returns a Dispatcher bound to one session's controller. refreshHeader
// may be nil. registerPost is called for every interactive post this
// package creates (PendingMessageApproval) so internal/reaction's
// PostIndex can route a reaction back to this session; it must not be nil
// outside of tests that never exercise the reaction path.
func New(ctrl *bridgesession.Controller, client chatplatform.Client, worktrees *vcsworktree.Manager, adminUsers map[string]bool, refreshHeader func(ctx context.Context, session *model.Session), registerPost func(postID string, sessionID model.SessionID)) *Dispatcher {
	d := &Dispatcher{
		controller:    ctrl,
		client:        client,
		worktrees:     worktrees,
		adminUsers:    adminUsers,
		refreshHeader: refreshHeader,
		registerPost:  registerPost,
		log:           logging.ForSession("cmddispatch", string(ctrl.Session().SessionID)),
	}
	d.table = map[string]handlerFunc{
		"help":        cmdHelp,
		"invite":      cmdInvite,
		"kick":        cmdKick,
		"permissions": cmdPermissions,
		"cd":          cmdCd,
		"worktree":    cmdWorktree,
		"stop":        cmdStop,
		"cancel":      cmdStop,
		"escape":      cmdEscape,
	}
	return d
}

// Handle parses one in-thread message from username and either executes a
// command, forwards it to the agent (authorized users), or opens a
// PendingMessageApproval (unauthorized users).
func (d *Dispatcher) Handle(ctx context.Context, username, text string) error {
	session := d.controller.Session()

	if name, args, ok := parseCommand(text); ok {
		handler, known := d.table[name]
		if !known {
			msg := "Unknown command `!" + name + "`. Try `!help`."
			if suggestion := d.nearestCommand(name); suggestion != "" {
				msg = fmt.Sprintf("Unknown command `!%s` — did you mean `!%s`? Try `!help`.", name, suggestion)
			}
			return d.post(ctx, session, msg)
		}
		return handler(ctx, d, session, username, args)
	}

	session.Lock()
	allowed := session.IsAllowed(username)
	session.Unlock()

	if !allowed {
		return d.openMessageApproval(ctx, session, username, text)
	}

	d.controller.BeginProcessing()
	adapter := d.controller.CurrentAdapter()
	if adapter == nil {
		return nil
	}
	return adapter.SendMessage(text)
}

// parseCommand recognizes "!name rest..." or one of the legacy bare words.
func parseCommand(text string) (name, args string, ok bool) {
	trimmed := strings.TrimSpace(text)
	if strings.HasPrefix(trimmed, "!") {
		rest := strings.TrimSpace(trimmed[1:])
		name, args = splitFirstWord(rest)
		return strings.ToLower(name), args, true
	}
	if legacyBareWords[strings.ToLower(trimmed)] {
		return strings.ToLower(trimmed), "", true
	}
	return "", "", false
}

func splitFirstWord(s string) (first, rest string) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return "", ""
	}
	idx := strings.Index(s, fields[0]) + len(fields[0])
	return fields[0], strings.TrimSpace(s[idx:])
}

// nearestCommand returns the closest known command name to name by edit
// distance, or "" if nothing in the table is close enough to be a plausible
// typo rather than an unrelated word.
func (d *Dispatcher) nearestCommand(name string) string {
	best := ""
	bestDist := suggestMaxDistance + 1
	for candidate := range d.table {
		dist := levenshtein.ComputeDistance(name, candidate)
		if dist < bestDist {
			best, bestDist = candidate, dist
		}
	}
	if bestDist > suggestMaxDistance {
		return ""
	}
	return best
}

func (d *Dispatcher) isOwnerOrAdmin(session *model.Session, username string) bool {
	return username == session.StartedBy || d.adminUsers[username]
}

func (d *Dispatcher) post(ctx context.Context, session *model.Session, message string) error {
	_, err := d.client.CreatePost(ctx, message, session.ThreadID)
	return err
}

// register records postID as belonging to sessionID in the shared
// PostIndex, a no-op if this Dispatcher was constructed without a
// registerPost callback (tests that drive these methods directly,
// bypassing Router).
func (d *Dispatcher) register(postID string, sessionID model.SessionID) {
	if d.registerPost != nil {
		d.registerPost(postID, sessionID)
	}
}

func stripMention(s string) string {
	return strings.TrimPrefix(strings.TrimSpace(s), "@")
}
