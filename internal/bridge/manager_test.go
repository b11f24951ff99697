package bridge

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/opencode-ai/chatbridge/internal/agentcli"
	"github.com/opencode-ai/chatbridge/internal/bridgesession"
	"github.com/opencode-ai/chatbridge/internal/chatplatform"
	"github.com/opencode-ai/chatbridge/internal/chatplatform/fake"
	"github.com/opencode-ai/chatbridge/internal/config"
	"github.com/opencode-ai/chatbridge/internal/store"
)

type stubAdapter struct {
	sent        []string
	killed      bool
	interrupted bool
}

func (s *stubAdapter) Start(ctx context.Context, spawn agentcli.Spawn) error { return nil }
func (s *stubAdapter) Events() <-chan agentcli.Event                        { return nil }
func (s *stubAdapter) Exit() <-chan agentcli.ExitInfo                       { return nil }
func (s *stubAdapter) SendMessage(text string) error                        { s.sent = append(s.sent, text); return nil }
func (s *stubAdapter) SendMessageBlocks(b []agentcli.ContentBlock) error     { return nil }
func (s *stubAdapter) SendToolResult(id string, payload any) error          { return nil }
func (s *stubAdapter) Interrupt() error                                     { s.interrupted = true; return nil }
func (s *stubAdapter) Kill() error                                          { s.killed = true; return nil }
func (s *stubAdapter) IsRunning() bool                                      { return !s.killed }

func testManager(t *testing.T, maxSessions int) (*Manager, *fake.Client) {
	t.Helper()
	client := fake.New("bot-id", "bridge")
	client.RegisterUser(chatplatform.User{ID: "alice", Username: "alice"})
	client.RegisterUser(chatplatform.User{ID: "mallory", Username: "mallory"})

	st, err := store.Open(filepath.Join(t.TempDir(), "sessions.json"))
	require.NoError(t, err)

	cfg := &config.Config{
		Platforms: []config.PlatformConfig{
			{PlatformID: "team", Kind: "fake", AllowedUsers: []string{"alice"}},
		},
		AgentCLI:        config.AgentCLIConfig{BinaryPath: "claude"},
		SessionDefaults: config.SessionDefaults{MaxSessions: maxSessions, IdleLimit: config.Duration(10 * time.Minute), Grace: config.Duration(5 * time.Minute)},
	}
	m := New(cfg, map[string]chatplatform.Client{"team": client}, st)
	m.adapterFactory = func(sessionID string) bridgesession.AgentAdapter { return &stubAdapter{} }
	return m, client
}

func TestTryCreateFromMentionStartsSessionForAllowedUser(t *testing.T) {
	m, client := testManager(t, 10)
	ctx := context.Background()

	ev := chatplatform.MessageEvent{
		Post: chatplatform.Post{ID: "post-thread", Message: "@bridge /tmp/work"},
		User: &chatplatform.User{ID: "alice", Username: "alice"},
	}
	m.handleMessage(ctx, m.platforms["team"], ev)

	require.Len(t, m.sessions, 1)
	require.Contains(t, client.SentSnapshot(), "create:post-1")
}

func TestTryCreateFromMentionRejectsUnauthorizedUser(t *testing.T) {
	m, client := testManager(t, 10)
	ctx := context.Background()

	ev := chatplatform.MessageEvent{
		Post: chatplatform.Post{ID: "post-thread", Message: "@bridge /tmp/work"},
		User: &chatplatform.User{ID: "mallory", Username: "mallory"},
	}
	m.handleMessage(ctx, m.platforms["team"], ev)

	require.Empty(t, m.sessions)
	msg, _ := client.PostMessage("post-1")
	require.Contains(t, msg, "not allowed")
}

func TestTryCreateFromMentionIgnoresMessageWithoutMention(t *testing.T) {
	m, _ := testManager(t, 10)
	ctx := context.Background()

	ev := chatplatform.MessageEvent{
		Post: chatplatform.Post{ID: "post-thread", Message: "hello there"},
		User: &chatplatform.User{ID: "alice", Username: "alice"},
	}
	m.handleMessage(ctx, m.platforms["team"], ev)
	require.Empty(t, m.sessions)
}

func TestCreateSessionEnforcesMaxSessions(t *testing.T) {
	m, _ := testManager(t, 1)
	ctx := context.Background()
	pr := m.platforms["team"]

	_, err := m.createSession(ctx, pr, "t1", "alice", "/tmp/work1")
	require.NoError(t, err)

	_, err = m.createSession(ctx, pr, "t2", "alice", "/tmp/work2")
	require.Error(t, err)
	require.Contains(t, err.Error(), "capacity")
}

func TestRouteInThreadDropsSideConversation(t *testing.T) {
	m, _ := testManager(t, 10)
	ctx := context.Background()
	pr := m.platforms["team"]

	bundle, err := m.createSession(ctx, pr, "t1", "alice", "/tmp/work")
	require.NoError(t, err)
	adapter := bundle.controller.CurrentAdapter().(*stubAdapter)

	m.routeInThread(ctx, pr, bundle, "alice", "@someone-else just chatting")
	require.Empty(t, adapter.sent)
}

func TestRouteInThreadForwardsAddressedMessage(t *testing.T) {
	m, _ := testManager(t, 10)
	ctx := context.Background()
	pr := m.platforms["team"]

	bundle, err := m.createSession(ctx, pr, "t1", "alice", "/tmp/work")
	require.NoError(t, err)

	adapter := bundle.controller.CurrentAdapter().(*stubAdapter)
	m.routeInThread(ctx, pr, bundle, "alice", "do the thing")
	require.Equal(t, []string{"do the thing"}, adapter.sent)
}

func TestOpenContextPromptGatesNextMessage(t *testing.T) {
	m, client := testManager(t, 10)
	ctx := context.Background()
	pr := m.platforms["team"]

	bundle, err := m.createSession(ctx, pr, "t1", "alice", "/tmp/work")
	require.NoError(t, err)

	session := bundle.controller.Session()
	session.Lock()
	session.NeedsContextPrompt = true
	session.Unlock()

	m.routeInThread(ctx, pr, bundle, "alice", "continue please")

	session.Lock()
	pending := session.PendingContextPrompt
	session.Unlock()
	require.NotNil(t, pending)
	require.Equal(t, "continue please", pending.QueuedPrompt)
	require.Contains(t, client.SentSnapshot(), "create:"+pending.PostID)
}

func TestSweepIdleWarnsThenEnds(t *testing.T) {
	m, client := testManager(t, 10)
	ctx := context.Background()
	pr := m.platforms["team"]

	bundle, err := m.createSession(ctx, pr, "t1", "alice", "/tmp/work")
	require.NoError(t, err)
	session := bundle.controller.Session()

	beforeWarn := len(client.SentSnapshot())

	session.Lock()
	session.LastActivityAt = time.Now().Add(-7 * time.Minute)
	session.Unlock()

	m.sweepIdle(ctx, time.Now())
	require.Greater(t, len(client.SentSnapshot()), beforeWarn)

	session.Lock()
	session.LastActivityAt = time.Now().Add(-20 * time.Minute)
	session.Unlock()
	m.sweepIdle(ctx, time.Now())

	// Kill() only signals the adapter; the pump goroutine normally reacts
	// to Exit() and calls handleExit. Simulate that reaction directly
	// rather than racing the stub adapter's (nil) Exit() channel.
	adapter := bundle.controller.CurrentAdapter().(*stubAdapter)
	require.True(t, adapter.killed)
	m.handleExit(ctx, bundle, adapter, agentcli.ExitInfo{})

	m.mu.Lock()
	_, stillLive := m.sessions[session.SessionID]
	m.mu.Unlock()
	require.False(t, stillLive)
}

func TestShutdownPersistsLiveSessions(t *testing.T) {
	m, _ := testManager(t, 10)
	ctx := context.Background()
	pr := m.platforms["team"]

	bundle, err := m.createSession(ctx, pr, "t1", "alice", "/tmp/work")
	require.NoError(t, err)
	sessionID := bundle.controller.Session().SessionID

	require.NoError(t, m.Shutdown(ctx))

	persisted := m.store.Load()
	_, ok := persisted[sessionID]
	require.True(t, ok)
}

func TestReactionHandlerCancelKillsSession(t *testing.T) {
	m, client := testManager(t, 10)
	ctx := context.Background()
	pr := m.platforms["team"]

	bundle, err := m.createSession(ctx, pr, "t1", "alice", "/tmp/work")
	require.NoError(t, err)
	session := bundle.controller.Session()
	adapter := bundle.controller.CurrentAdapter().(*stubAdapter)

	pr.router.Route(ctx, chatplatform.ReactionEvent{
		Reaction: chatplatform.Reaction{PostID: session.SessionStartPostID, UserID: "alice", EmojiName: "x"},
		User:     &chatplatform.User{ID: "alice", Username: "alice"},
	})

	require.True(t, adapter.killed)
	_ = client
}

func TestReactionHandlerEscapeInterruptsOnly(t *testing.T) {
	m, _ := testManager(t, 10)
	ctx := context.Background()
	pr := m.platforms["team"]

	bundle, err := m.createSession(ctx, pr, "t1", "alice", "/tmp/work")
	require.NoError(t, err)
	session := bundle.controller.Session()
	adapter := bundle.controller.CurrentAdapter().(*stubAdapter)

	pr.router.Route(ctx, chatplatform.ReactionEvent{
		Reaction: chatplatform.Reaction{PostID: session.SessionStartPostID, UserID: "alice", EmojiName: "double_vertical_bar"},
		User:     &chatplatform.User{ID: "alice", Username: "alice"},
	})

	require.True(t, adapter.interrupted)
	require.False(t, adapter.killed)
}
