package eventinterp

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/opencode-ai/chatbridge/internal/agentcli"
	"github.com/opencode-ai/chatbridge/internal/bridgesession"
	"github.com/opencode-ai/chatbridge/internal/chatplatform/fake"
	"github.com/opencode-ai/chatbridge/internal/model"
	"github.com/opencode-ai/chatbridge/internal/poststream"
	"github.com/opencode-ai/chatbridge/internal/reaction"
)

type stubAdapter struct {
	events        chan agentcli.Event
	exit          chan agentcli.ExitInfo
	sentResults   []string
	resultPayload []any
}

func newStubAdapter() *stubAdapter {
	return &stubAdapter{events: make(chan agentcli.Event, 8), exit: make(chan agentcli.ExitInfo, 1)}
}

func (s *stubAdapter) Start(ctx context.Context, spawn agentcli.Spawn) error { return nil }
func (s *stubAdapter) Events() <-chan agentcli.Event                        { return s.events }
func (s *stubAdapter) Exit() <-chan agentcli.ExitInfo                       { return s.exit }
func (s *stubAdapter) SendMessage(text string) error                        { return nil }
func (s *stubAdapter) SendMessageBlocks(b []agentcli.ContentBlock) error    { return nil }
func (s *stubAdapter) SendToolResult(id string, payload any) error {
	s.sentResults = append(s.sentResults, id)
	s.resultPayload = append(s.resultPayload, payload)
	return nil
}
func (s *stubAdapter) Interrupt() error { return nil }
func (s *stubAdapter) Kill() error      { return nil }
func (s *stubAdapter) IsRunning() bool  { return true }

func testFixture(t *testing.T) (*Interpreter, *bridgesession.Controller, *stubAdapter, *fake.Client) {
	t.Helper()
	return testFixtureWithMutedDiffPatterns(t, nil)
}

func testFixtureWithMutedDiffPatterns(t *testing.T, mutedDiffPatterns []string) (*Interpreter, *bridgesession.Controller, *stubAdapter, *fake.Client) {
	t.Helper()
	interp, ctrl, adapter, client, _ := testFixtureWithPostIndex(t, mutedDiffPatterns)
	return interp, ctrl, adapter, client
}

func testFixtureWithPostIndex(t *testing.T, mutedDiffPatterns []string) (*Interpreter, *bridgesession.Controller, *stubAdapter, *fake.Client, *reaction.PostIndex) {
	t.Helper()
	session := model.NewSession(model.MakeSessionID("team", "t1"), "team", "t1", "alice", "/work")
	client := fake.New("bot-1", "bridge")
	stream := poststream.New(client)

	var adapter *stubAdapter
	factory := func(sessionID string) bridgesession.AgentAdapter {
		adapter = newStubAdapter()
		return adapter
	}
	ctrl := bridgesession.New(session, client, stream, factory, bridgesession.Defaults{BinaryPath: "claude"})
	require.NoError(t, ctrl.Start(context.Background()))

	index := reaction.NewPostIndex()
	interp := New(client, stream, nil, index.Register, mutedDiffPatterns)
	return interp, ctrl, adapter, client, index
}

func TestHandleAssistantTextAppendsPendingAndSchedulesFlush(t *testing.T) {
	interp, ctrl, adapter, client := testFixture(t)
	ev := agentcli.Event{Type: "assistant", Raw: []byte(`{"message":{"content":[{"type":"text","text":"hello world"}]}}`)}

	interp.HandleEvent(context.Background(), ctrl, adapter, ev)
	require.True(t, ctrl.Session().HasAgentResponded)

	require.Eventually(t, func() bool {
		return len(client.Sent) > 0
	}, time.Second, 5*time.Millisecond)
}

func TestHandleAssistantToolUseRendersOneLiner(t *testing.T) {
	interp, ctrl, adapter, _ := testFixture(t)
	ev := agentcli.Event{Type: "assistant", Raw: []byte(`{"message":{"content":[{"type":"tool_use","id":"tu1","name":"Bash","input":{"command":"go test ./..."}}]}}`)}

	interp.HandleEvent(context.Background(), ctrl, adapter, ev)
	require.Contains(t, ctrl.Session().PendingContent, "go test ./...")
}

func TestHandleTodoWriteCreatesThenUpdatesTaskPost(t *testing.T) {
	interp, ctrl, adapter, client := testFixture(t)
	session := ctrl.Session()

	first := agentcli.Event{Type: "assistant", Raw: []byte(`{"message":{"content":[{"type":"tool_use","id":"tu1","name":"TodoWrite","input":{"todos":[{"content":"write tests","status":"pending"},{"content":"ship it","status":"pending"}]}}]}}`)}
	interp.HandleEvent(context.Background(), ctrl, adapter, first)
	require.NotEmpty(t, session.TasksPostID)
	require.Contains(t, session.LastTasksContent, "0/2")
	require.False(t, session.TasksCompleted)
	firstPostID := session.TasksPostID

	second := agentcli.Event{Type: "assistant", Raw: []byte(`{"message":{"content":[{"type":"tool_use","id":"tu2","name":"TodoWrite","input":{"todos":[{"content":"write tests","status":"completed"},{"content":"ship it","status":"completed"}]}}]}}`)}
	interp.HandleEvent(context.Background(), ctrl, adapter, second)
	require.Equal(t, firstPostID, session.TasksPostID, "task post is updated in place, not recreated")
	require.True(t, session.TasksCompleted)
	require.Contains(t, session.LastTasksContent, "2/2")

	post, err := client.GetPost(context.Background(), firstPostID)
	require.NoError(t, err)
	require.Contains(t, post.Message, "2/2")
}

func TestHandleExitPlanModeOpensApprovalThenAutoContinues(t *testing.T) {
	interp, ctrl, adapter, _ := testFixture(t)
	session := ctrl.Session()

	ev := agentcli.Event{Type: "assistant", Raw: []byte(`{"message":{"content":[{"type":"tool_use","id":"tu1","name":"ExitPlanMode","input":{"plan":"do the thing"}}]}}`)}
	interp.HandleEvent(context.Background(), ctrl, adapter, ev)
	require.NotNil(t, session.PendingApproval)
	require.Equal(t, "tu1", session.PendingApproval.ToolUseID)

	interp.ResolvePlanApproval(context.Background(), session, adapter, true)
	require.Nil(t, session.PendingApproval)
	require.True(t, session.PlanApproved)
	require.Contains(t, adapter.sentResults, "tu1")

	again := agentcli.Event{Type: "assistant", Raw: []byte(`{"message":{"content":[{"type":"tool_use","id":"tu2","name":"ExitPlanMode","input":{"plan":"do more"}}]}}`)}
	interp.HandleEvent(context.Background(), ctrl, adapter, again)
	require.Nil(t, session.PendingApproval, "approval already granted once: no new approval is opened")
	require.Contains(t, adapter.sentResults, "tu2")
}

func TestHandleExitPlanModeRegistersApprovalPostInPostIndex(t *testing.T) {
	interp, ctrl, adapter, _, index := testFixtureWithPostIndex(t, nil)
	session := ctrl.Session()

	ev := agentcli.Event{Type: "assistant", Raw: []byte(`{"message":{"content":[{"type":"tool_use","id":"tu1","name":"ExitPlanMode","input":{"plan":"do the thing"}}]}}`)}
	interp.HandleEvent(context.Background(), ctrl, adapter, ev)
	require.NotNil(t, session.PendingApproval)

	sessionID, ok := index.Lookup(session.PendingApproval.PostID)
	require.True(t, ok)
	require.Equal(t, session.SessionID, sessionID)
}

func TestHandleExitPlanModeDenialDoesNotStickAndReopensNextTime(t *testing.T) {
	interp, ctrl, adapter, _ := testFixture(t)
	session := ctrl.Session()

	ev := agentcli.Event{Type: "assistant", Raw: []byte(`{"message":{"content":[{"type":"tool_use","id":"tu1","name":"ExitPlanMode","input":{"plan":"do the thing"}}]}}`)}
	interp.HandleEvent(context.Background(), ctrl, adapter, ev)
	interp.ResolvePlanApproval(context.Background(), session, adapter, false)
	require.False(t, session.PlanApproved)

	again := agentcli.Event{Type: "assistant", Raw: []byte(`{"message":{"content":[{"type":"tool_use","id":"tu2","name":"ExitPlanMode","input":{"plan":"revised"}}]}}`)}
	interp.HandleEvent(context.Background(), ctrl, adapter, again)
	require.NotNil(t, session.PendingApproval, "a denial does not auto-continue future ExitPlanMode calls")
}

func TestAskUserQuestionPostsOneAtATimeThenSendsAggregatedResult(t *testing.T) {
	interp, ctrl, adapter, _ := testFixture(t)
	session := ctrl.Session()

	input := `{"questions":[
		{"header":"Scope","question":"Which dirs?","options":[{"label":"all","description":"everything"},{"label":"src","description":"src only"}]},
		{"header":"Tests","question":"Run tests?","options":[{"label":"yes","description":""},{"label":"no","description":""}]}
	]}`
	ev := agentcli.Event{Type: "assistant", Raw: []byte(`{"message":{"content":[{"type":"tool_use","id":"tu1","name":"AskUserQuestion","input":` + input + `}]}}`)}
	interp.HandleEvent(context.Background(), ctrl, adapter, ev)

	require.NotNil(t, session.PendingQuestionSet)
	require.Equal(t, 0, session.PendingQuestionSet.Current)
	require.NotEmpty(t, session.PendingQuestionSet.Questions[0].PostID)
	require.Empty(t, session.PendingQuestionSet.Questions[1].PostID, "second question not posted yet")

	interp.AnswerActiveQuestion(context.Background(), session, adapter, 1) // "src"
	require.NotNil(t, session.PendingQuestionSet, "set stays open until every question answered")
	require.Equal(t, 1, session.PendingQuestionSet.Current)
	require.NotEmpty(t, session.PendingQuestionSet.Questions[1].PostID)
	require.Empty(t, adapter.sentResults)

	interp.AnswerActiveQuestion(context.Background(), session, adapter, 0) // "yes"
	require.Nil(t, session.PendingQuestionSet)
	require.Contains(t, adapter.sentResults, "tu1")
}

func TestAskUserQuestionRegistersEachQuestionPostInPostIndex(t *testing.T) {
	interp, ctrl, adapter, _, index := testFixtureWithPostIndex(t, nil)
	session := ctrl.Session()

	input := `{"questions":[
		{"header":"Scope","question":"Which dirs?","options":[{"label":"all","description":"everything"},{"label":"src","description":"src only"}]},
		{"header":"Tests","question":"Run tests?","options":[{"label":"yes","description":""},{"label":"no","description":""}]}
	]}`
	ev := agentcli.Event{Type: "assistant", Raw: []byte(`{"message":{"content":[{"type":"tool_use","id":"tu1","name":"AskUserQuestion","input":` + input + `}]}}`)}
	interp.HandleEvent(context.Background(), ctrl, adapter, ev)

	firstPostID := session.PendingQuestionSet.Questions[0].PostID
	require.NotEmpty(t, firstPostID)
	sessionID, ok := index.Lookup(firstPostID)
	require.True(t, ok)
	require.Equal(t, session.SessionID, sessionID)

	interp.AnswerActiveQuestion(context.Background(), session, adapter, 1) // "src"
	secondPostID := session.PendingQuestionSet.Questions[1].PostID
	require.NotEmpty(t, secondPostID)
	sessionID, ok = index.Lookup(secondPostID)
	require.True(t, ok)
	require.Equal(t, session.SessionID, sessionID)
}

func TestHandleToolResultRendersDiffForEditWrite(t *testing.T) {
	interp, ctrl, adapter, _ := testFixture(t)
	ev := agentcli.Event{Type: "tool_result", Raw: []byte(`{"tool_use_id":"tu1","tool_name":"Edit","diff":{"before":"line one\nline two\n","after":"line one\nline changed\n","path":"main.go"}}`)}

	interp.HandleEvent(context.Background(), ctrl, adapter, ev)
	require.Contains(t, ctrl.Session().PendingContent, "main.go")
	require.Contains(t, ctrl.Session().PendingContent, "```diff")
}

func TestHandleToolResultSuppressesBodyForMutedDiffPath(t *testing.T) {
	interp, ctrl, adapter, _ := testFixtureWithMutedDiffPatterns(t, []string{"**/*.lock"})
	ev := agentcli.Event{Type: "tool_result", Raw: []byte(`{"tool_use_id":"tu1","tool_name":"Edit","diff":{"before":"a\n","after":"b\n","path":"vendor/package.lock"}}`)}

	interp.HandleEvent(context.Background(), ctrl, adapter, ev)
	require.Contains(t, ctrl.Session().PendingContent, "vendor/package.lock")
	require.NotContains(t, ctrl.Session().PendingContent, "```diff")
}

func TestHandleToolResultIgnoresNonDiffResults(t *testing.T) {
	interp, ctrl, adapter, _ := testFixture(t)
	ev := agentcli.Event{Type: "tool_result", Raw: []byte(`{"tool_use_id":"tu1","tool_name":"Bash","output":"ok"}`)}

	interp.HandleEvent(context.Background(), ctrl, adapter, ev)
	require.Empty(t, ctrl.Session().PendingContent)
}

func TestHandleResultComputesUsageAndPrimaryModel(t *testing.T) {
	interp, ctrl, adapter, _ := testFixture(t)
	raw := []byte(`{"total_cost_usd":0.42,"usage":{"input_tokens":100,"cache_creation_input_tokens":10,"cache_read_input_tokens":5},
		"modelUsage":{
			"claude-opus-4-5-20260101":{"inputTokens":100,"outputTokens":50,"costUSD":0.40,"contextWindowSize":200000},
			"claude-haiku-3-5-20260101":{"inputTokens":20,"outputTokens":10,"costUSD":0.02,"contextWindowSize":200000}
		}}`)
	ev := agentcli.Event{Type: "result", Raw: raw}

	interp.HandleEvent(context.Background(), ctrl, adapter, ev)
	stats := ctrl.Session().UsageStats
	require.NotNil(t, stats)
	require.Equal(t, "claude-opus-4-5-20260101", stats.PrimaryModel)
	require.Equal(t, "Opus 4.5", stats.ModelDisplayName)
	require.Equal(t, int64(115), stats.ContextTokens)
	require.Equal(t, int64(180), stats.TotalTokensUsed)
	require.InDelta(t, 0.42, stats.TotalCostUSD, 0.0001)
}

func TestHandleResultStartsHeaderTimerOnlyOnce(t *testing.T) {
	var refreshes int
	session := model.NewSession(model.MakeSessionID("team", "t1"), "team", "t1", "alice", "/work")
	client := fake.New("bot-1", "bridge")
	stream := poststream.New(client)
	factory := func(sessionID string) bridgesession.AgentAdapter { return newStubAdapter() }
	ctrl := bridgesession.New(session, client, stream, factory, bridgesession.Defaults{BinaryPath: "claude"})
	require.NoError(t, ctrl.Start(context.Background()))

	interp := New(client, stream, func(ctx context.Context, s *model.Session) { refreshes++ }, nil, nil)
	adapter := ctrl.CurrentAdapter()

	ev := agentcli.Event{Type: "result", Raw: []byte(`{"total_cost_usd":0.1}`)}
	interp.HandleEvent(context.Background(), ctrl, adapter, ev)
	interp.HandleEvent(context.Background(), ctrl, adapter, ev)

	interp.mu.Lock()
	n := len(interp.tickers)
	interp.mu.Unlock()
	require.Equal(t, 1, n)
	require.Equal(t, 2, refreshes)

	interp.StopHeaderTimer(session.SessionID)
	interp.mu.Lock()
	n = len(interp.tickers)
	interp.mu.Unlock()
	require.Equal(t, 0, n)
}
