package bridgesession

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/opencode-ai/chatbridge/internal/agentcli"
	"github.com/opencode-ai/chatbridge/internal/chatplatform/fake"
	"github.com/opencode-ai/chatbridge/internal/model"
	"github.com/opencode-ai/chatbridge/internal/poststream"
)

type fakeAdapter struct {
	started    bool
	startErr   error
	killed     bool
	interrupted bool
	lastSpawn  agentcli.Spawn
	events     chan agentcli.Event
	exit       chan agentcli.ExitInfo
}

func newFakeAdapter() *fakeAdapter {
	return &fakeAdapter{events: make(chan agentcli.Event, 8), exit: make(chan agentcli.ExitInfo, 1)}
}

func (f *fakeAdapter) Start(ctx context.Context, spawn agentcli.Spawn) error {
	f.lastSpawn = spawn
	if f.startErr != nil {
		return f.startErr
	}
	f.started = true
	return nil
}
func (f *fakeAdapter) Events() <-chan agentcli.Event     { return f.events }
func (f *fakeAdapter) Exit() <-chan agentcli.ExitInfo    { return f.exit }
func (f *fakeAdapter) SendMessage(text string) error     { return nil }
func (f *fakeAdapter) SendMessageBlocks(b []agentcli.ContentBlock) error { return nil }
func (f *fakeAdapter) SendToolResult(id string, payload any) error      { return nil }
func (f *fakeAdapter) Interrupt() error                  { f.interrupted = true; return nil }
func (f *fakeAdapter) Kill() error                       { f.killed = true; return nil }
func (f *fakeAdapter) IsRunning() bool                   { return f.started && !f.killed }

func testController(t *testing.T) (*Controller, *fakeAdapter) {
	t.Helper()
	session := model.NewSession(model.MakeSessionID("team", "t1"), "team", "t1", "alice", "/work")
	client := fake.New("bot-1", "bridge")
	stream := poststream.New(client)

	var lastAdapter *fakeAdapter
	factory := func(sessionID string) AgentAdapter {
		lastAdapter = newFakeAdapter()
		return lastAdapter
	}

	cfg := Defaults{BinaryPath: "claude", IdleLimit: 30 * time.Minute, Grace: 5 * time.Minute, ResumeRetries: 3}
	c := New(session, client, stream, factory, cfg)
	require.NoError(t, c.Start(context.Background()))
	return c, lastAdapter
}

func TestStartSpawnsFreshSessionID(t *testing.T) {
	c, adapter := testController(t)
	require.True(t, adapter.started)
	require.NotEmpty(t, c.Session().AgentSessionID)
	require.Equal(t, c.Session().AgentSessionID, adapter.lastSpawn.SessionID)
	require.Empty(t, adapter.lastSpawn.ResumeSessionID)
	require.True(t, adapter.lastSpawn.SkipPermissions, "default permission mode is skip-permissions")
}

func TestOnAssistantRespondedSetsFlag(t *testing.T) {
	c, _ := testController(t)
	require.False(t, c.Session().HasAgentResponded)
	c.OnAssistantResponded()
	require.True(t, c.Session().HasAgentResponded)
}

func TestBeginEndProcessingTogglesAndBumpsActivity(t *testing.T) {
	c, _ := testController(t)
	before := c.Session().LastActivityAt
	time.Sleep(time.Millisecond)

	c.BeginProcessing()
	require.True(t, c.Session().IsProcessing)
	require.True(t, c.Session().LastActivityAt.After(before))

	c.EndProcessing()
	require.False(t, c.Session().IsProcessing)
}

func TestInterruptSendsSignalAndMarksInterrupted(t *testing.T) {
	c, adapter := testController(t)
	require.NoError(t, c.Interrupt())
	require.True(t, adapter.interrupted)
	require.True(t, c.Session().WasInterrupted)
}

func TestRestartKillsOldAdapterAndSpawnsFreshSessionID(t *testing.T) {
	c, oldAdapter := testController(t)
	oldSessionID := c.Session().AgentSessionID
	c.Session().PendingContent = "in flight text"

	require.NoError(t, c.Restart(context.Background(), "/new/dir", false))

	require.True(t, oldAdapter.killed)
	require.Equal(t, "/new/dir", c.Session().WorkingDir)
	require.NotEqual(t, oldSessionID, c.Session().AgentSessionID)
	require.Empty(t, c.Session().CurrentPostID)

	newAdapter := c.CurrentAdapter().(*fakeAdapter)
	require.True(t, newAdapter.started)
	require.NotSame(t, oldAdapter, newAdapter)
}

func TestRestartForceInteractiveIsSticky(t *testing.T) {
	c, _ := testController(t)
	require.NoError(t, c.Restart(context.Background(), "/new/dir", true))
	require.True(t, c.Session().ForceInteractivePermissions)

	newAdapter := c.CurrentAdapter().(*fakeAdapter)
	require.False(t, newAdapter.lastSpawn.SkipPermissions)

	require.NoError(t, c.Restart(context.Background(), "/other/dir", false))
	require.True(t, c.Session().ForceInteractivePermissions)
}

func TestHandleExitSwallowsRetiringAdapterAndClearsIsRestarting(t *testing.T) {
	c, oldAdapter := testController(t)
	require.NoError(t, c.Restart(context.Background(), "/new/dir", false))
	require.True(t, c.Session().IsRestarting)

	action := c.HandleExit(oldAdapter, agentcli.ExitInfo{Code: 0, Forced: true})
	require.True(t, action.Swallow)
	require.False(t, c.Session().IsRestarting)
}

func TestHandleExitAfterStopDoesNotPersist(t *testing.T) {
	c, adapter := testController(t)
	require.NoError(t, c.Kill(EndReasonStop))
	require.True(t, adapter.killed)

	action := c.HandleExit(adapter, agentcli.ExitInfo{Code: -1})
	require.False(t, action.Persist)
	require.False(t, action.Swallow)
}

func TestHandleExitAfterTimeoutPersistsWithLifecycle(t *testing.T) {
	c, adapter := testController(t)
	require.NoError(t, c.Kill(EndReasonTimeout))

	action := c.HandleExit(adapter, agentcli.ExitInfo{Code: -1})
	require.True(t, action.Persist)
	require.True(t, action.PostLifecycle)
}

func TestHandleExitSpontaneousKeepsPersistenceWhenInterrupted(t *testing.T) {
	c, adapter := testController(t)
	c.Session().WasInterrupted = true

	action := c.HandleExit(adapter, agentcli.ExitInfo{Code: 1})
	require.True(t, action.Persist)
	require.False(t, action.Swallow)
}

func TestHandleExitSpontaneousUnpersistsWhenNotInterrupted(t *testing.T) {
	c, adapter := testController(t)

	action := c.HandleExit(adapter, agentcli.ExitInfo{Code: 1})
	require.False(t, action.Persist)
}

func TestCheckIdleWarnsThenEnds(t *testing.T) {
	c, _ := testController(t)
	c.Session().LastActivityAt = time.Now().Add(-26 * time.Minute) // within [IdleLimit-Grace, IdleLimit)

	require.Equal(t, IdleActionWarn, c.CheckIdle(time.Now()))
	require.True(t, c.Session().TimeoutWarningPosted)

	require.Equal(t, IdleActionNone, c.CheckIdle(time.Now()), "warning already posted, no repeat")

	c.Session().LastActivityAt = time.Now().Add(-31 * time.Minute)
	require.Equal(t, IdleActionEnd, c.CheckIdle(time.Now()))
}

func TestMarkActivityClearsTimeoutWarning(t *testing.T) {
	c, _ := testController(t)
	c.Session().TimeoutWarningPosted = true
	c.MarkActivity()
	require.False(t, c.Session().TimeoutWarningPosted)
}

func TestResumeUsesResumeSessionIDAndFailureIncrementsCount(t *testing.T) {
	session := model.NewSession(model.MakeSessionID("team", "t1"), "team", "t1", "alice", "/work")
	session.AgentSessionID = "agent-uuid-1"
	client := fake.New("bot-1", "bridge")
	stream := poststream.New(client)

	failing := newFakeAdapter()
	failing.startErr = require.AnError
	factory := func(sessionID string) AgentAdapter { return failing }

	c := New(session, client, stream, factory, Defaults{BinaryPath: "claude", ResumeRetries: 3})
	err := c.Resume(context.Background())
	require.Error(t, err)
	require.Equal(t, 1, session.ResumeFailCount)
	require.Equal(t, "agent-uuid-1", failing.lastSpawn.ResumeSessionID)
}
