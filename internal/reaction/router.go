package reaction

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/opencode-ai/chatbridge/internal/chatplatform"
	"github.com/opencode-ai/chatbridge/internal/chatutil"
	"github.com/opencode-ai/chatbridge/internal/logging"
	"github.com/opencode-ai/chatbridge/internal/model"
	"github.com/opencode-ai/chatbridge/internal/store"
)

// SessionLookup resolves a live session by id, and resolves a timed-out
// session from its persisted form when a reaction lands on a surviving
// anchor post after the in-memory PostIndex entry is gone.
type SessionLookup interface {
	Get(id model.SessionID) (*model.Session, bool)
	Resume(persisted *model.PersistedSession) (*model.Session, bool)
}

// Handler receives a reaction once the router has determined which pending
// interaction (if any) it answers. Implemented by internal/bridge, which
// has the controller/dispatcher/interpreter trio needed to act on each
// case; kept as an interface so the router is testable standalone.
type Handler interface {
	InterruptOrKill(ctx context.Context, session *model.Session, username, emojiName string)
	ContextPromptReaction(ctx context.Context, session *model.Session, username, emojiName string)
	QuestionReaction(ctx context.Context, session *model.Session, username, emojiName string)
	PlanApprovalReaction(ctx context.Context, session *model.Session, username, emojiName string)
	MessageApprovalReaction(ctx context.Context, session *model.Session, username, emojiName string)
	WorktreeSkipReaction(ctx context.Context, session *model.Session, username, emojiName string)
	ExistingWorktreeJoinReaction(ctx context.Context, session *model.Session, username, emojiName string)
}

// Router implements spec.md §4.C6's reaction dispatch.
type Router struct {
	platformID string
	botUserID  string
	index      *PostIndex
	store      *store.Store
	sessions   SessionLookup
	handler    Handler
	log        zerolog.Logger
}

// New returns a Router for one platform instance.
func New(platformID, botUserID string, index *PostIndex, st *store.Store, sessions SessionLookup, handler Handler) *Router {
	return &Router{
		platformID: platformID,
		botUserID:  botUserID,
		index:      index,
		store:      st,
		sessions:   sessions,
		handler:    handler,
		log:        logging.Component("reaction"),
	}
}

// Route implements the three-step algorithm: ignore the bot's own
// reactions, resolve the owning session (falling back to persisted state),
// then dispatch in fixed precedence order. The matching pending* field is
// inspected under session's lock, but the Handler call itself happens after
// the lock is released.
func (r *Router) Route(ctx context.Context, reactionEvent chatplatform.ReactionEvent) {
	reactionData := reactionEvent.Reaction
	if reactionData.UserID == r.botUserID || (reactionEvent.User != nil && reactionEvent.User.IsBot) {
		return
	}

	session, ok := r.resolveSession(reactionData.PostID)
	if !ok {
		r.log.Debug().Str("postId", reactionData.PostID).Msg("reaction on unknown post, dropped")
		return
	}

	username := reactionData.UserID
	if reactionEvent.User != nil {
		username = reactionEvent.User.Username
	}
	emoji := normalizeEmoji(reactionData.EmojiName)

	// The lock's job is to inspect which pending interaction (if any) this
	// reaction answers and decide that atomically with everything else that
	// might be mutating session state concurrently — not to serialize the
	// handler's own side effects. Handler methods (internal/eventinterp,
	// internal/bridgesession) take the lock themselves for the spans they
	// need; holding it across the dispatch call below would deadlock them.
	session.Lock()
	isCancelOrEscape := chatutil.IsCancel(emoji) || chatutil.IsEscape(emoji)
	allowed := session.IsAllowed(username)
	var dispatch func()
	switch {
	case isCancelOrEscape:
		if allowed {
			dispatch = func() { r.handler.InterruptOrKill(ctx, session, username, emoji) }
		}
	case session.PendingContextPrompt != nil && session.PendingContextPrompt.PostID == reactionData.PostID:
		dispatch = func() { r.handler.ContextPromptReaction(ctx, session, username, emoji) }
	case session.PendingQuestionSet != nil:
		if q := session.PendingQuestionSet.ActiveQuestion(); q != nil && q.PostID == reactionData.PostID {
			dispatch = func() { r.handler.QuestionReaction(ctx, session, username, emoji) }
		}
	case session.PendingApproval != nil && session.PendingApproval.PostID == reactionData.PostID:
		dispatch = func() { r.handler.PlanApprovalReaction(ctx, session, username, emoji) }
	case session.PendingMessageApproval != nil && session.PendingMessageApproval.PostID == reactionData.PostID:
		dispatch = func() { r.handler.MessageApprovalReaction(ctx, session, username, emoji) }
	case session.PendingWorktreePrompt != nil && session.PendingWorktreePrompt.PostID == reactionData.PostID:
		dispatch = func() { r.handler.WorktreeSkipReaction(ctx, session, username, emoji) }
	case session.PendingExistingWorktreePrompt != nil && session.PendingExistingWorktreePrompt.PostID == reactionData.PostID:
		dispatch = func() { r.handler.ExistingWorktreeJoinReaction(ctx, session, username, emoji) }
	default:
		// no matching pending interaction; ignore
	}
	session.Unlock()

	if dispatch != nil {
		dispatch()
	}
}

// resolveSession looks up postID's owning session in the live PostIndex,
// falling back to persisted state for a timed-out session reacted to on a
// surviving lifecycle post.
func (r *Router) resolveSession(postID string) (*model.Session, bool) {
	if sessionID, ok := r.index.Lookup(postID); ok {
		return r.sessions.Get(sessionID)
	}
	if r.store == nil {
		return nil, false
	}
	persisted := r.store.FindByPostID(r.platformID, postID)
	if persisted == nil {
		return nil, false
	}
	return r.sessions.Resume(persisted)
}

// normalizeEmoji strips a leading/trailing colon some platforms include in
// reaction payloads ("white_check_mark" vs ":white_check_mark:").
func normalizeEmoji(name string) string {
	if len(name) >= 2 && name[0] == ':' && name[len(name)-1] == ':' {
		return name[1 : len(name)-1]
	}
	return name
}
