package bridge

import (
	"context"
	"strconv"
	"strings"

	"github.com/opencode-ai/chatbridge/internal/bridgesession"
	"github.com/opencode-ai/chatbridge/internal/chatplatform"
	"github.com/opencode-ai/chatbridge/internal/chatutil"
	"github.com/opencode-ai/chatbridge/internal/model"
)

// reactionHandler implements reaction.Handler by fanning each case out to
// the sessionBundle already wired for that session: the controller for
// interrupt/kill, the interpreter for plan/question resolution, and the
// dispatcher for message-approval resolution. Router has already released
// session's lock before calling any of these.
type reactionHandler struct {
	mgr *Manager
}

func (h *reactionHandler) bundle(session *model.Session) *sessionBundle {
	h.mgr.mu.Lock()
	defer h.mgr.mu.Unlock()
	return h.mgr.sessions[session.SessionID]
}

// InterruptOrKill implements the cancel/escape precedence case: cancel
// kills the session (spec.md's "!stop / cancel emoji"), escape interrupts
// the current turn and keeps it alive.
func (h *reactionHandler) InterruptOrKill(ctx context.Context, session *model.Session, username, emojiName string) {
	b := h.bundle(session)
	if b == nil {
		return
	}
	if chatutil.IsCancel(emojiName) {
		if err := b.controller.Kill(bridgesession.EndReasonStop); err != nil {
			h.mgr.log.Warn().Err(err).Msg("error killing session on cancel reaction")
		}
		h.mgr.postToSession(ctx, b.platformID, session, "Session stopped.")
		return
	}
	if err := b.controller.Interrupt(); err != nil {
		h.mgr.log.Warn().Err(err).Msg("error interrupting session on escape reaction")
	}
	h.mgr.postToSession(ctx, b.platformID, session, "Interrupted. The session is still running.")
}

// ContextPromptReaction resolves the "include last N thread messages?"
// choice opened after a directory/worktree change, then forwards the
// originally queued message (optionally prefixed with recent thread
// history) into the agent.
func (h *reactionHandler) ContextPromptReaction(ctx context.Context, session *model.Session, username, emojiName string) {
	b := h.bundle(session)
	if b == nil {
		return
	}

	session.Lock()
	pending := session.PendingContextPrompt
	session.PendingContextPrompt = nil
	session.Unlock()
	if pending == nil {
		return
	}

	choice, ok := chatutil.NumberChoice(emojiName)
	if !ok || choice < 0 || choice >= len(pending.AvailableOptions) {
		choice = 0
	}

	text := pending.QueuedPrompt
	if pending.AvailableOptions[choice] != "0" {
		if history := h.mgr.recentHistory(ctx, b, session, pending.AvailableOptions[choice]); history != "" {
			text = history + "\n\n" + text
		}
	}

	b.controller.BeginProcessing()
	if adapter := b.controller.CurrentAdapter(); adapter != nil {
		if err := adapter.SendMessage(text); err != nil {
			h.mgr.log.Warn().Err(err).Msg("failed to forward queued message after context prompt")
		}
	}
}

// QuestionReaction resolves the currently active AskUserQuestion option.
func (h *reactionHandler) QuestionReaction(ctx context.Context, session *model.Session, username, emojiName string) {
	b := h.bundle(session)
	if b == nil {
		return
	}
	choice, ok := chatutil.NumberChoice(emojiName)
	if !ok {
		return
	}
	if adapter := b.controller.CurrentAdapter(); adapter != nil {
		b.interpreter.AnswerActiveQuestion(ctx, session, adapter, choice)
	}
}

// PlanApprovalReaction resolves an open ExitPlanMode approval.
func (h *reactionHandler) PlanApprovalReaction(ctx context.Context, session *model.Session, username, emojiName string) {
	b := h.bundle(session)
	if b == nil {
		return
	}
	if adapter := b.controller.CurrentAdapter(); adapter != nil {
		b.interpreter.ResolvePlanApproval(ctx, session, adapter, chatutil.IsApproval(emojiName))
	}
}

// MessageApprovalReaction resolves a PendingMessageApproval opened for an
// unauthorized user's message.
func (h *reactionHandler) MessageApprovalReaction(ctx context.Context, session *model.Session, username, emojiName string) {
	b := h.bundle(session)
	if b == nil {
		return
	}
	allow := chatutil.IsApproval(emojiName) || chatutil.IsAllowAll(emojiName)
	invite := chatutil.IsAllowAll(emojiName)
	if err := b.dispatcher.ResolveMessageApproval(ctx, allow, invite); err != nil {
		h.mgr.log.Warn().Err(err).Msg("failed to resolve message approval")
	}
}

// WorktreeSkipReaction resolves a PendingWorktreePrompt.
func (h *reactionHandler) WorktreeSkipReaction(ctx context.Context, session *model.Session, username, emojiName string) {
	b := h.bundle(session)
	if b == nil {
		return
	}
	h.mgr.resolveWorktreeCreate(ctx, b, session, emojiName)
}

// ExistingWorktreeJoinReaction resolves a PendingExistingWorktreePrompt.
func (h *reactionHandler) ExistingWorktreeJoinReaction(ctx context.Context, session *model.Session, username, emojiName string) {
	b := h.bundle(session)
	if b == nil {
		return
	}
	h.mgr.resolveExistingWorktreeJoin(ctx, b, session, emojiName)
}

// recentHistory renders the last N thread messages as quoted context,
// where option is one of the context-prompt's offered counts ("5", "20").
func (m *Manager) recentHistory(ctx context.Context, b *sessionBundle, session *model.Session, option string) string {
	n, err := strconv.Atoi(option)
	if err != nil || n <= 0 {
		return ""
	}
	pr, ok := m.platforms[b.platformID]
	if !ok {
		return ""
	}
	session.Lock()
	threadID := session.ThreadID
	session.Unlock()

	posts, err := pr.client.GetThreadHistory(ctx, threadID, chatplatform.ThreadHistoryOptions{Limit: n, ExcludeBotMessages: true})
	if err != nil || len(posts) == 0 {
		return ""
	}
	var b2 strings.Builder
	b2.WriteString("Recent thread context:")
	for _, p := range posts {
		b2.WriteString("\n> " + p.Message)
	}
	return b2.String()
}
