package bridge

import (
	"context"
	"strings"

	"github.com/opencode-ai/chatbridge/internal/chatplatform"
	"github.com/opencode-ai/chatbridge/internal/chatutil"
	"github.com/opencode-ai/chatbridge/internal/model"
)

// handleMessage implements spec.md §4.C10's message algorithm: route an
// in-thread message to its existing session, or authorize and create a new
// one.
func (m *Manager) handleMessage(ctx context.Context, pr *platformRuntime, ev chatplatform.MessageEvent) {
	m.mu.Lock()
	shuttingDown := m.shuttingDown
	m.mu.Unlock()
	if shuttingDown {
		return
	}
	if ev.User != nil && ev.User.IsBot {
		return
	}

	threadRoot := ev.Post.ThreadID
	if threadRoot == "" {
		threadRoot = ev.Post.ID
	}
	sessionID := model.MakeSessionID(pr.platformID, threadRoot)

	m.mu.Lock()
	bundle, exists := m.sessions[sessionID]
	m.mu.Unlock()

	username := ev.Post.UserID
	if ev.User != nil {
		username = ev.User.Username
	}

	if exists {
		m.routeInThread(ctx, pr, bundle, username, ev.Post.Message)
		return
	}

	m.tryCreateFromMention(ctx, pr, ev, threadRoot, username)
}

// routeInThread implements the "sessionId already exists" branch: drop
// side-conversation replies addressed to someone other than the bot,
// otherwise hand off to the command dispatcher (which itself decides
// between a command, a forwarded message, and an unauthorized-message
// approval).
func (m *Manager) routeInThread(ctx context.Context, pr *platformRuntime, bundle *sessionBundle, username, text string) {
	if mention, ok := addressedMention(text); ok && !strings.EqualFold(mention, pr.client.BotName()) {
		return
	}

	session := bundle.controller.Session()
	session.Lock()
	needsPrompt := session.NeedsContextPrompt
	session.NeedsContextPrompt = false
	session.Unlock()

	if needsPrompt {
		m.openContextPrompt(ctx, pr, session, text)
		return
	}

	if err := bundle.dispatcher.Handle(ctx, username, text); err != nil {
		m.log.Warn().Err(err).Str("sessionId", string(session.SessionID)).Msg("dispatcher error handling message")
	}
}

// addressedMention reports whether text opens with "@someone", the
// side-conversation marker spec.md §4.C10 says to drop unless it names the
// bot.
func addressedMention(text string) (string, bool) {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "@") {
		return "", false
	}
	fields := strings.Fields(trimmed)
	return strings.TrimPrefix(fields[0], "@"), true
}

// tryCreateFromMention implements the "no existing session" branch:
// require an @bot mention, authorize the sender against the platform's
// allow-list, and create a session rooted at the directory named after the
// mention (e.g. "@bridge /path/to/repo").
func (m *Manager) tryCreateFromMention(ctx context.Context, pr *platformRuntime, ev chatplatform.MessageEvent, threadRoot, username string) {
	mention, ok := addressedMention(ev.Post.Message)
	if !ok || !strings.EqualFold(mention, pr.client.BotName()) {
		return
	}

	platformCfg := m.platformConfig(pr.platformID)
	if !pr.client.IsUserAllowed(username, pr.adminUsers) {
		pr.client.CreatePost(ctx, "@"+username+" is not allowed to start sessions on this platform.", threadRoot)
		return
	}

	workingDir := platformCfg.URL // placeholder default; real deployments set a per-platform base checkout.
	if wd := strings.TrimSpace(strings.TrimPrefix(ev.Post.Message, "@"+pr.client.BotName())); wd != "" {
		workingDir = wd
	}

	bundle, err := m.createSession(ctx, pr, threadRoot, username, workingDir)
	if err != nil {
		m.log.Warn().Err(err).Str("threadId", threadRoot).Msg("failed to create session")
		pr.client.CreatePost(ctx, "Couldn't start a session: "+err.Error(), threadRoot)
		return
	}
	m.offerWorktreePrompt(ctx, pr, bundle)
}

// openContextPrompt offers the "include last N thread messages" choice
// spec.md's NeedsContextPrompt flag promises exactly once after a
// directory/worktree change. The queued message is sent once a choice
// comes back via ContextPromptReaction; choosing "0" sends it immediately
// with no extra context attached.
func (m *Manager) openContextPrompt(ctx context.Context, pr *platformRuntime, session *model.Session, queuedPrompt string) {
	options := []string{"0", "5", "20"}
	message := "Starting fresh in the new directory. Include recent thread messages as context?\n"
	for i, opt := range options {
		message += chatutil.OptionEmoji(i) + " last " + opt + "\n"
	}
	post, err := pr.client.CreateInteractivePost(ctx, message, emojiList(len(options)), session.ThreadID)
	if err != nil {
		m.log.Warn().Err(err).Msg("failed to open context prompt")
		return
	}

	session.Lock()
	session.PendingContextPrompt = &model.PendingContextPrompt{
		PostID:           post.ID,
		QueuedPrompt:     queuedPrompt,
		AvailableOptions: options,
	}
	session.Unlock()
	m.postIndex.Register(post.ID, session.SessionID)
}

func emojiList(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = chatutil.OptionEmoji(i)
	}
	return out
}
