package cmddispatch

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/opencode-ai/chatbridge/internal/agentcli"
	"github.com/opencode-ai/chatbridge/internal/bridgesession"
	"github.com/opencode-ai/chatbridge/internal/chatplatform/fake"
	"github.com/opencode-ai/chatbridge/internal/model"
	"github.com/opencode-ai/chatbridge/internal/poststream"
	"github.com/opencode-ai/chatbridge/internal/reaction"
)

type stubAdapter struct {
	sent    []string
	killed  bool
	interrupted bool
}

func (s *stubAdapter) Start(ctx context.Context, spawn agentcli.Spawn) error { return nil }
func (s *stubAdapter) Events() <-chan agentcli.Event                        { return nil }
func (s *stubAdapter) Exit() <-chan agentcli.ExitInfo                       { return nil }
func (s *stubAdapter) SendMessage(text string) error                        { s.sent = append(s.sent, text); return nil }
func (s *stubAdapter) SendMessageBlocks(b []agentcli.ContentBlock) error    { return nil }
func (s *stubAdapter) SendToolResult(id string, payload any) error          { return nil }
func (s *stubAdapter) Interrupt() error                                     { s.interrupted = true; return nil }
func (s *stubAdapter) Kill() error                                          { s.killed = true; return nil }
func (s *stubAdapter) IsRunning() bool                                      { return !s.killed }

func testDispatcher(t *testing.T, adminUsers map[string]bool) (*Dispatcher, *bridgesession.Controller, *stubAdapter, *fake.Client) {
	d, ctrl, adapter, client, _ := testDispatcherWithPostIndex(t, adminUsers)
	return d, ctrl, adapter, client
}

func testDispatcherWithPostIndex(t *testing.T, adminUsers map[string]bool) (*Dispatcher, *bridgesession.Controller, *stubAdapter, *fake.Client, *reaction.PostIndex) {
	t.Helper()
	session := model.NewSession(model.MakeSessionID("team", "t1"), "team", "t1", "alice", "/work")
	client := fake.New("bot-1", "bridge")
	stream := poststream.New(client)

	var adapter *stubAdapter
	factory := func(sessionID string) bridgesession.AgentAdapter {
		adapter = &stubAdapter{}
		return adapter
	}
	ctrl := bridgesession.New(session, client, stream, factory, bridgesession.Defaults{BinaryPath: "claude"})
	require.NoError(t, ctrl.Start(context.Background()))

	index := reaction.NewPostIndex()
	d := New(ctrl, client, nil, adminUsers, nil, index.Register)
	return d, ctrl, adapter, client, index
}

func TestHandleForwardsPlainMessageFromAllowedUser(t *testing.T) {
	d, ctrl, adapter, _ := testDispatcher(t, nil)
	require.NoError(t, d.Handle(context.Background(), "alice", "please fix the bug"))
	require.Equal(t, []string{"please fix the bug"}, adapter.sent)
	require.True(t, ctrl.Session().IsProcessing)
}

func TestHandleOpensApprovalForUnauthorizedUser(t *testing.T) {
	d, ctrl, adapter, client := testDispatcher(t, nil)
	require.NoError(t, d.Handle(context.Background(), "mallory", "do something"))
	require.Empty(t, adapter.sent)
	require.NotNil(t, ctrl.Session().PendingMessageApproval)
	require.Equal(t, "mallory", ctrl.Session().PendingMessageApproval.Username)
	require.NotEmpty(t, client.Sent)
}

func TestHandleRegistersMessageApprovalPostInPostIndex(t *testing.T) {
	d, ctrl, _, _, index := testDispatcherWithPostIndex(t, nil)
	require.NoError(t, d.Handle(context.Background(), "mallory", "do something"))

	postID := ctrl.Session().PendingMessageApproval.PostID
	sessionID, ok := index.Lookup(postID)
	require.True(t, ok)
	require.Equal(t, ctrl.Session().SessionID, sessionID)
}

func TestResolveMessageApprovalAllowSendsText(t *testing.T) {
	d, ctrl, adapter, _ := testDispatcher(t, nil)
	require.NoError(t, d.Handle(context.Background(), "mallory", "hello there"))
	require.NoError(t, d.ResolveMessageApproval(context.Background(), true, false))
	require.Equal(t, []string{"hello there"}, adapter.sent)
	require.Nil(t, ctrl.Session().PendingMessageApproval)
	require.False(t, ctrl.Session().IsAllowed("mallory"))
}

func TestResolveMessageApprovalInviteAddsToAllowList(t *testing.T) {
	d, ctrl, adapter, _ := testDispatcher(t, nil)
	require.NoError(t, d.Handle(context.Background(), "mallory", "hello there"))
	require.NoError(t, d.ResolveMessageApproval(context.Background(), false, true))
	require.Equal(t, []string{"hello there"}, adapter.sent)
	require.True(t, ctrl.Session().IsAllowed("mallory"))
}

func TestResolveMessageApprovalDenyDropsText(t *testing.T) {
	d, _, adapter, _ := testDispatcher(t, nil)
	require.NoError(t, d.Handle(context.Background(), "mallory", "hello there"))
	require.NoError(t, d.ResolveMessageApproval(context.Background(), false, false))
	require.Empty(t, adapter.sent)
}

func TestInviteRequiresOwnerOrAdmin(t *testing.T) {
	d, ctrl, _, _ := testDispatcher(t, nil)
	require.NoError(t, d.Handle(context.Background(), "mallory", "!invite @bob"))
	require.False(t, ctrl.Session().IsAllowed("bob"))

	require.NoError(t, d.Handle(context.Background(), "alice", "!invite @bob"))
	require.True(t, ctrl.Session().IsAllowed("bob"))
}

func TestAdminCanInviteEvenIfNotOwner(t *testing.T) {
	d, ctrl, _, _ := testDispatcher(t, map[string]bool{"root-admin": true})
	require.NoError(t, d.Handle(context.Background(), "root-admin", "!invite @bob"))
	require.True(t, ctrl.Session().IsAllowed("bob"))
}

func TestKickCannotRemoveOwner(t *testing.T) {
	d, ctrl, _, _ := testDispatcher(t, nil)
	require.NoError(t, d.Handle(context.Background(), "alice", "!kick @alice"))
	require.True(t, ctrl.Session().IsAllowed("alice"))
}

func TestKickCannotRemoveGloballyAllowedUser(t *testing.T) {
	d, ctrl, _, _ := testDispatcher(t, map[string]bool{"root-admin": true})
	ctrl.Session().AllowUser("root-admin")
	require.NoError(t, d.Handle(context.Background(), "alice", "!kick @root-admin"))
	require.True(t, ctrl.Session().IsAllowed("root-admin"))
}

func TestStopKillsSessionAndCancelIsAnAlias(t *testing.T) {
	d, _, adapter, _ := testDispatcher(t, nil)
	require.NoError(t, d.Handle(context.Background(), "alice", "!stop"))
	require.True(t, adapter.killed)

	d2, _, adapter2, _ := testDispatcher(t, nil)
	require.NoError(t, d2.Handle(context.Background(), "alice", "cancel")) // legacy bare word
	require.True(t, adapter2.killed)
}

func TestEscapeInterruptsWithoutKilling(t *testing.T) {
	d, _, adapter, _ := testDispatcher(t, nil)
	require.NoError(t, d.Handle(context.Background(), "alice", "!escape"))
	require.True(t, adapter.interrupted)
	require.False(t, adapter.killed)
}

func TestPermissionsInteractiveRequiresExactArgument(t *testing.T) {
	d, ctrl, _, client := testDispatcher(t, nil)
	require.NoError(t, d.Handle(context.Background(), "alice", "!permissions"))
	require.False(t, ctrl.Session().ForceInteractivePermissions)

	sentBefore := len(client.Sent)
	require.NoError(t, d.Handle(context.Background(), "alice", "!permissions interactive"))
	require.True(t, ctrl.Session().ForceInteractivePermissions)
	require.Greater(t, len(client.Sent), sentBefore)
}

func TestCdRejectsNonDirectory(t *testing.T) {
	d, ctrl, _, _ := testDispatcher(t, nil)
	require.NoError(t, d.Handle(context.Background(), "alice", "!cd /no/such/path/at/all"))
	require.Equal(t, "/work", ctrl.Session().WorkingDir)
}

func TestCdRestartsIntoValidDirectory(t *testing.T) {
	d, ctrl, adapter, _ := testDispatcher(t, nil)
	require.NoError(t, d.Handle(context.Background(), "alice", "!cd /tmp"))
	require.Equal(t, "/tmp", ctrl.Session().WorkingDir)
	require.True(t, ctrl.Session().NeedsContextPrompt)
	require.True(t, adapter.killed, "old adapter killed on directory restart")
}

func TestUnknownCommandPostsHint(t *testing.T) {
	d, _, _, client := testDispatcher(t, nil)
	require.NoError(t, d.Handle(context.Background(), "alice", "!bogus"))
	require.Contains(t, client.Sent[len(client.Sent)-1], "create:")
}

func TestWorktreeWithoutManagerConfiguredRepliesGracefully(t *testing.T) {
	d, _, _, client := testDispatcher(t, nil)
	require.NoError(t, d.Handle(context.Background(), "alice", "!worktree list"))
	require.NotEmpty(t, client.Sent)
}
