package bridge

import (
	"context"
	"fmt"

	"github.com/opencode-ai/chatbridge/internal/agentcli"
	"github.com/opencode-ai/chatbridge/internal/bridgesession"
	"github.com/opencode-ai/chatbridge/internal/chatutil"
	"github.com/opencode-ai/chatbridge/internal/cmddispatch"
	"github.com/opencode-ai/chatbridge/internal/eventinterp"
	"github.com/opencode-ai/chatbridge/internal/model"
)

// sessionDefaults projects this bridge's configured tunables into the
// bridgesession.Defaults shape the controller needs. MCPConfigJSON is
// filled in per-session by startSession, since it embeds that session's
// thread id and allow-list.
func (m *Manager) sessionDefaults() bridgesession.Defaults {
	d := m.cfg.SessionDefaults
	return bridgesession.Defaults{
		BinaryPath:           m.cfg.AgentCLI.BinaryPath,
		ExtraArgs:            m.cfg.AgentCLI.ExtraArgs,
		AppendSystemPrompt:   m.cfg.AgentCLI.AppendSystemPrompt,
		ChromeAutomation:     m.cfg.AgentCLI.ChromeAutomation,
		PermissionPromptTool: "permission_prompt",
		IdleLimit:            d.IdleLimit.Dur(),
		Grace:                d.Grace.Dur(),
		UpdateCoalesce:       d.UpdateCoalesce.Dur(),
		ResumeRetries:        d.ResumeRetries,
	}
}

// startSession wires a Controller, Dispatcher, and Interpreter around
// session and either starts it fresh or resumes it, then launches its
// event-pump goroutine. Caller registers the returned bundle into
// m.sessions.
func (m *Manager) startSession(ctx context.Context, pr *platformRuntime, session *model.Session, resume bool) (*sessionBundle, error) {
	cfg := m.sessionDefaults()
	cfg.MCPConfigJSON = m.permissionMCPConfig(pr, session)
	ctrl := bridgesession.New(session, pr.client, pr.stream, m.adapterFactory, cfg)

	pumpCtx, cancel := context.WithCancel(ctx)
	bundle := &sessionBundle{platformID: pr.platformID, controller: ctrl, cancelPump: cancel}
	bundle.interpreter = eventinterp.New(pr.client, pr.stream, m.refreshHeader, m.postIndex.Register, m.cfg.Rendering.MutedDiffPatterns)
	bundle.dispatcher = cmddispatch.New(ctrl, pr.client, m.worktrees, pr.adminUsers, m.refreshHeader, m.postIndex.Register)

	var err error
	if resume {
		err = ctrl.Resume(ctx)
	} else {
		err = ctrl.Start(ctx)
	}
	if err != nil {
		cancel()
		return nil, fmt.Errorf("bridge: start session %s: %w", session.SessionID, err)
	}

	if session.SessionStartPostID != "" {
		m.postIndex.Register(session.SessionStartPostID, session.SessionID)
	}
	go m.eventPump(pumpCtx, bundle)
	return bundle, nil
}

// createSession implements the "new Session" branch of spec.md §4.C10's
// message algorithm: enforce MAX_SESSIONS, post a session-start anchor, and
// start the agent. The caller (tryCreateFromMention) authorizes the sender.
func (m *Manager) createSession(ctx context.Context, pr *platformRuntime, threadRoot, startedBy, workingDir string) (*sessionBundle, error) {
	m.mu.Lock()
	if len(m.sessions) >= m.cfg.SessionDefaults.MaxSessions {
		m.mu.Unlock()
		return nil, fmt.Errorf("bridge: at session capacity (%d)", m.cfg.SessionDefaults.MaxSessions)
	}
	m.mu.Unlock()

	id := model.MakeSessionID(pr.platformID, threadRoot)
	session := model.NewSession(id, pr.platformID, threadRoot, startedBy, workingDir)

	startPost, err := pr.client.CreatePost(ctx, sessionStartMessage(session), threadRoot)
	if err != nil {
		return nil, fmt.Errorf("bridge: post session start: %w", err)
	}
	session.SessionStartPostID = startPost.ID

	bundle, err := m.startSession(ctx, pr, session, false)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.sessions[id] = bundle
	m.mu.Unlock()
	return bundle, nil
}

func sessionStartMessage(session *model.Session) string {
	return fmt.Sprintf("Session started by @%s in `%s`.", session.StartedBy, session.WorkingDir)
}

// eventPump is the per-session goroutine that drains one agent adapter's
// Events()/Exit() channels into the interpreter and the controller's exit
// classifier, matching the teacher's one-goroutine-per-active-subprocess
// idiom (internal/session/service.go's ActiveSession bookkeeping).
func (m *Manager) eventPump(ctx context.Context, bundle *sessionBundle) {
	for {
		adapter := bundle.controller.CurrentAdapter()
		if adapter == nil {
			return
		}
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-adapter.Events():
			if !ok {
				continue
			}
			m.publishEvent(bundle.controller.Session().SessionID, ev)
			bundle.interpreter.HandleEvent(ctx, bundle.controller, adapter, ev)
		case exit, ok := <-adapter.Exit():
			if !ok {
				continue
			}
			if m.handleExit(ctx, bundle, adapter, exit) {
				// Old adapter retired by Restart/SwitchToInteractivePermissions;
				// loop around and pick up the adapter those methods already
				// installed as CurrentAdapter(), rather than exiting the pump.
				continue
			}
			return
		}
	}
}

// handleExit classifies one adapter's exit and reports whether it was
// swallowed (a Restart/SwitchToInteractivePermissions retiring its old
// adapter) — the caller's pump loop continues in that case instead of
// exiting.
func (m *Manager) handleExit(ctx context.Context, bundle *sessionBundle, adapter bridgesession.AgentAdapter, exit agentcli.ExitInfo) bool {
	action := bundle.controller.HandleExit(adapter, exit)
	if action.Swallow {
		return true
	}

	session := bundle.controller.Session()
	bundle.interpreter.StopHeaderTimer(session.SessionID)

	if action.PostLifecycle {
		session.Lock()
		threadID := session.ThreadID
		session.Unlock()
		pr := m.platforms[bundle.platformID]
		if pr != nil {
			post, err := pr.client.CreatePost(ctx, "Session timed out. React with "+chatutil.OptionEmoji(0)+" to resume.", threadID)
			if err == nil {
				session.Lock()
				session.LifecyclePostID = post.ID
				session.Unlock()
				m.postIndex.Register(post.ID, session.SessionID)
			}
		}
	}

	m.mu.Lock()
	delete(m.sessions, session.SessionID)
	m.mu.Unlock()

	if action.Persist {
		session.Lock()
		persisted := session.ToPersisted()
		session.Unlock()
		if err := m.store.Save(session.SessionID, persisted); err != nil {
			m.log.Warn().Err(err).Str("sessionId", string(session.SessionID)).Msg("failed to persist session on exit")
		}
	} else {
		if err := m.store.Remove(session.SessionID); err != nil {
			m.log.Warn().Err(err).Str("sessionId", string(session.SessionID)).Msg("failed to remove session from store")
		}
	}
	return false
}

// refreshHeader rewrites the session-start anchor post with a short status
// line: allowed users and, once available, usage stats. Failures are
// logged and otherwise ignored — a stale header is user-visible but never
// fatal to the session.
func (m *Manager) refreshHeader(ctx context.Context, session *model.Session) {
	session.Lock()
	postID := session.SessionStartPostID
	platformID := session.PlatformID
	message := headerMessage(session)
	session.Unlock()

	if postID == "" {
		return
	}
	pr, ok := m.platforms[platformID]
	if !ok {
		return
	}
	if err := pr.client.UpdatePost(ctx, postID, message); err != nil {
		m.log.Warn().Err(err).Str("sessionId", string(session.SessionID)).Msg("failed to refresh session header")
	}
}

func headerMessage(session *model.Session) string {
	msg := fmt.Sprintf("Session started by @%s in `%s`.", session.StartedBy, session.WorkingDir)
	if session.UsageStats != nil {
		msg += fmt.Sprintf("\n%s · %d tokens · $%.2f", session.UsageStats.ModelDisplayName, session.UsageStats.TotalTokensUsed, session.UsageStats.TotalCostUSD)
	}
	return msg
}
