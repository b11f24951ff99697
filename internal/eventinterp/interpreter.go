package eventinterp

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/rs/zerolog"

	"github.com/opencode-ai/chatbridge/internal/agentcli"
	"github.com/opencode-ai/chatbridge/internal/bridgesession"
	"github.com/opencode-ai/chatbridge/internal/chatplatform"
	"github.com/opencode-ai/chatbridge/internal/chatutil"
	"github.com/opencode-ai/chatbridge/internal/logging"
	"github.com/opencode-ai/chatbridge/internal/model"
	"github.com/opencode-ai/chatbridge/internal/poststream"
)

const headerRefreshInterval = 30 * time.Second

// Interpreter consumes one session's agent event stream and drives C5
// (streaming buffer), session fields (usage stats, pending interactions),
// and outbound tool results.
type Interpreter struct {
	client            chatplatform.Client
	stream            *poststream.Engine
	refreshHeader     func(ctx context.Context, session *model.Session)
	registerPost      func(postID string, sessionID model.SessionID)
	mutedDiffPatterns []string
	log               zerolog.Logger

	mu      sync.Mutex
	tickers map[model.SessionID]*time.Ticker
}

// New returns an Interpreter. refreshHeader may be nil (tests, or a bridge
// that doesn't render a header post); it is invoked once per result event
// and then on a periodic ticker once the first result has arrived.
// registerPost is called for every interactive post this package creates
// (plan approval, each AskUserQuestion question) so internal/reaction's
// PostIndex can route a reaction back to this session; it must not be nil
// outside of tests that never exercise the reaction path.
// mutedDiffPatterns are doublestar glob patterns matched against a diff's
// file path; a match still gets its "+N -M" summary line but not the full
// diff body.
func New(client chatplatform.Client, stream *poststream.Engine, refreshHeader func(ctx context.Context, session *model.Session), registerPost func(postID string, sessionID model.SessionID), mutedDiffPatterns []string) *Interpreter {
	return &Interpreter{
		client:            client,
		stream:            stream,
		refreshHeader:     refreshHeader,
		registerPost:      registerPost,
		mutedDiffPatterns: mutedDiffPatterns,
		log:               logging.Component("eventinterp"),
		tickers:           make(map[model.SessionID]*time.Ticker),
	}
}

// register records postID as belonging to session in the shared PostIndex,
// a no-op if this Interpreter was constructed without a registerPost
// callback (tests that drive these methods directly, bypassing Router).
func (e *Interpreter) register(postID string, sessionID model.SessionID) {
	if e.registerPost != nil {
		e.registerPost(postID, sessionID)
	}
}

// isMutedDiffPath reports whether path matches one of the configured
// mutedDiffPatterns, grounded on the teacher's internal/agent.matchWildcard
// use of doublestar for glob-style pattern matching.
func (e *Interpreter) isMutedDiffPath(path string) bool {
	for _, pattern := range e.mutedDiffPatterns {
		if matched, _ := doublestar.Match(pattern, path); matched {
			return true
		}
	}
	return false
}

// HandleEvent dispatches one decoded agent event. ctrl owns the session and
// its OnAssistantResponded/EndProcessing transitions; adapter is the same
// controller's current adapter, passed explicitly so a caller iterating a
// channel doesn't need a second lookup.
func (e *Interpreter) HandleEvent(ctx context.Context, ctrl *bridgesession.Controller, adapter bridgesession.AgentAdapter, ev agentcli.Event) {
	session := ctrl.Session()

	switch ev.Type {
	case "system":
		e.handleSystem(ctx, session, ev.Raw)
	case "assistant":
		ctrl.OnAssistantResponded()
		e.handleAssistant(ctx, session, adapter, ev.Raw)
	case "tool_result":
		e.handleToolResult(ctx, session, ev.Raw)
	case "result":
		ctrl.EndProcessing()
		e.handleResult(ctx, session, ev.Raw)
	default:
		e.log.Debug().Str("type", ev.Type).Msg("unhandled agent event type")
	}
}

func (e *Interpreter) handleSystem(ctx context.Context, session *model.Session, raw json.RawMessage) {
	var ev systemEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		e.log.Warn().Err(err).Msg("malformed system event")
		return
	}

	switch ev.Subtype {
	case "status":
		if ev.Status == "compacting" {
			e.appendPending(session, "*Compacting context…*\n\n")
		}
	case "compact_boundary":
		trigger := "auto"
		var preTokens int64
		if ev.CompactMetadata != nil {
			if ev.CompactMetadata.Trigger != "" {
				trigger = ev.CompactMetadata.Trigger
			}
			preTokens = ev.CompactMetadata.PreTokens
		}
		e.appendPending(session, fmt.Sprintf("*Context compacted (%s, %dk tokens)*\n\n", trigger, preTokens/1000))
	case "error":
		e.appendPending(session, "❌ "+ev.Error+"\n\n")
	}
	e.stream.ScheduleUpdate(ctx, session)
}

func (e *Interpreter) handleAssistant(ctx context.Context, session *model.Session, adapter bridgesession.AgentAdapter, raw json.RawMessage) {
	var ev assistantEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		e.log.Warn().Err(err).Msg("malformed assistant event")
		return
	}

	scheduled := false
	for _, block := range ev.Message.Content {
		switch block.Type {
		case "text":
			if block.Text == "" {
				continue
			}
			e.appendPending(session, block.Text)
			scheduled = true
		case "tool_use":
			e.dispatchTool(ctx, session, adapter, block)
		}
	}
	if scheduled {
		e.stream.ScheduleUpdate(ctx, session)
	}
}

func (e *Interpreter) dispatchTool(ctx context.Context, session *model.Session, adapter bridgesession.AgentAdapter, block contentBlock) {
	switch block.Name {
	case "TodoWrite":
		e.handleTodoWrite(ctx, session, block.Input)
	case "ExitPlanMode":
		e.handleExitPlanMode(ctx, session, adapter, block.ID, block.Input)
	case "AskUserQuestion":
		e.handleAskUserQuestion(ctx, session, block.ID, block.Input)
	default:
		session.Lock()
		workDir := session.WorkingDir
		session.Unlock()
		e.appendPending(session, renderToolUse(block.Name, block.Input, workDir))
		e.stream.ScheduleUpdate(ctx, session)
	}
}

func (e *Interpreter) handleTodoWrite(ctx context.Context, session *model.Session, input json.RawMessage) {
	var payload todoWriteInput
	if err := json.Unmarshal(input, &payload); err != nil {
		e.log.Warn().Err(err).Msg("malformed TodoWrite input")
		return
	}
	content, completed := renderTaskList(payload.Todos)

	session.Lock()
	session.LastTasksContent = content
	session.TasksCompleted = completed
	postID := session.TasksPostID
	threadID := session.ThreadID
	session.Unlock()

	if content == "" {
		return
	}

	if postID == "" {
		post, err := e.client.CreatePost(ctx, content, threadID)
		if err != nil {
			e.log.Warn().Err(err).Msg("failed to create task post")
			return
		}
		session.Lock()
		session.TasksPostID = post.ID
		session.Unlock()
		return
	}

	if err := e.client.UpdatePost(ctx, postID, content); err != nil {
		e.log.Warn().Err(err).Msg("failed to update task post")
	}
}

func (e *Interpreter) handleExitPlanMode(ctx context.Context, session *model.Session, adapter bridgesession.AgentAdapter, toolUseID string, input json.RawMessage) {
	session.Lock()
	approved := session.PlanApproved
	threadID := session.ThreadID
	session.Unlock()

	if approved {
		if err := adapter.SendToolResult(toolUseID, map[string]string{"result": "Continue"}); err != nil {
			e.log.Warn().Err(err).Msg("failed to auto-continue after prior plan approval")
		}
		return
	}

	var payload exitPlanModeInput
	_ = json.Unmarshal(input, &payload)
	message := "**Plan ready for review**\n\n" + payload.Plan

	post, err := e.client.CreateInteractivePost(ctx, message, []string{"+1", "-1"}, threadID)
	if err != nil {
		e.log.Warn().Err(err).Msg("failed to post plan approval")
		return
	}

	session.Lock()
	session.PendingApproval = &model.PendingApproval{
		PostID:    post.ID,
		Type:      "plan",
		ToolUseID: toolUseID,
		OpenedAt:  time.Now(),
	}
	sessionID := session.SessionID
	session.Unlock()
	e.register(post.ID, sessionID)
}

// ResolvePlanApproval is called by the reaction dispatch glue (C10) once a
// thumbs-up/thumbs-down lands on the open plan-approval post. It records the
// (sticky) approval, replies to the agent with the matching tool_result, and
// clears the pending interaction.
func (e *Interpreter) ResolvePlanApproval(ctx context.Context, session *model.Session, adapter bridgesession.AgentAdapter, approved bool) {
	session.Lock()
	pending := session.PendingApproval
	if pending == nil {
		session.Unlock()
		return
	}
	session.PendingApproval = nil
	if approved {
		session.PlanApproved = true
	}
	toolUseID := pending.ToolUseID
	postID := pending.PostID
	session.Unlock()

	result := "Continue"
	status := "Approved"
	if !approved {
		result = "The plan was not approved. Ask how the user would like to proceed."
		status = "Denied"
	}
	if err := adapter.SendToolResult(toolUseID, map[string]string{"result": result}); err != nil {
		e.log.Warn().Err(err).Msg("failed to send plan approval tool result")
	}
	if err := e.client.UpdatePost(ctx, postID, "**Plan review: "+status+"**"); err != nil {
		e.log.Warn().Err(err).Msg("failed to update plan approval post")
	}
}

func (e *Interpreter) handleAskUserQuestion(ctx context.Context, session *model.Session, toolUseID string, input json.RawMessage) {
	var payload askUserQuestionInput
	if err := json.Unmarshal(input, &payload); err != nil || len(payload.Questions) == 0 {
		e.log.Warn().Err(err).Msg("malformed AskUserQuestion input")
		return
	}

	qs := &model.PendingQuestionSet{ToolUseID: toolUseID, OpenedAt: time.Now()}
	for _, q := range payload.Questions {
		pq := model.PendingQuestion{Header: q.Header, Question: q.Question}
		for _, opt := range q.Options {
			pq.Options = append(pq.Options, model.QuestionOption{Label: opt.Label, Description: opt.Description})
		}
		qs.Questions = append(qs.Questions, pq)
	}

	session.Lock()
	threadID := session.ThreadID
	sessionID := session.SessionID
	session.Unlock()

	if err := e.postActiveQuestion(ctx, threadID, sessionID, qs); err != nil {
		e.log.Warn().Err(err).Msg("failed to post question")
		return
	}

	session.Lock()
	session.PendingQuestionSet = qs
	session.Unlock()
}

func (e *Interpreter) postActiveQuestion(ctx context.Context, threadID string, sessionID model.SessionID, qs *model.PendingQuestionSet) error {
	q := qs.ActiveQuestion()
	if q == nil {
		return nil
	}
	message := formatQuestion(q)
	emojis := make([]string, 0, len(q.Options))
	for i := range q.Options {
		if name := chatutil.OptionEmoji(i); name != "" {
			emojis = append(emojis, name)
		}
	}
	post, err := e.client.CreateInteractivePost(ctx, message, emojis, threadID)
	if err != nil {
		return err
	}
	q.PostID = post.ID
	e.register(post.ID, sessionID)
	return nil
}

func formatQuestion(q *model.PendingQuestion) string {
	msg := fmt.Sprintf("**%s**\n\n%s\n\n", q.Header, q.Question)
	for i, opt := range q.Options {
		msg += fmt.Sprintf("%d. **%s** — %s\n", i+1, opt.Label, opt.Description)
	}
	return msg
}

// AnswerActiveQuestion is called by the reaction dispatch glue (C10) when a
// numbered-choice reaction lands on the currently active question post. It
// records the answer, advances to the next question, and — once every
// question in the set has an answer — sends the aggregated answers back to
// the agent as a single tool_result and clears the pending interaction.
func (e *Interpreter) AnswerActiveQuestion(ctx context.Context, session *model.Session, adapter bridgesession.AgentAdapter, optionIndex int) {
	session.Lock()
	qs := session.PendingQuestionSet
	if qs == nil {
		session.Unlock()
		return
	}
	q := qs.ActiveQuestion()
	if q == nil || optionIndex < 0 || optionIndex >= len(q.Options) {
		session.Unlock()
		return
	}
	q.Answer = q.Options[optionIndex].Label
	qs.Current++
	done := qs.AllAnswered() || qs.Current >= len(qs.Questions)
	threadID := session.ThreadID
	sessionID := session.SessionID
	session.Unlock()

	if !done {
		if err := e.postActiveQuestion(ctx, threadID, sessionID, qs); err != nil {
			e.log.Warn().Err(err).Msg("failed to post next question")
		}
		return
	}

	answers := make(map[string]string, len(qs.Questions))
	for _, question := range qs.Questions {
		answers[question.Header] = question.Answer
	}
	if err := adapter.SendToolResult(qs.ToolUseID, answers); err != nil {
		e.log.Warn().Err(err).Msg("failed to send aggregated question answers")
	}

	session.Lock()
	session.PendingQuestionSet = nil
	session.Unlock()
}

func (e *Interpreter) handleToolResult(ctx context.Context, session *model.Session, raw json.RawMessage) {
	var ev toolResultEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		e.log.Warn().Err(err).Msg("malformed tool_result event")
		return
	}
	if ev.Diff == nil {
		return // only diff-shaped results (Edit/Write previews) are rendered, per spec
	}

	text, additions, deletions := diffSummary(ev.Diff.Before, ev.Diff.After)
	displayName := splitMCPToolName(ev.ToolName)
	summary := fmt.Sprintf("%s `%s` (+%d -%d)\n", displayName, ev.Diff.Path, additions, deletions)
	if text != "" && !e.isMutedDiffPath(ev.Diff.Path) {
		summary += "```diff\n" + text + "```\n"
	}
	e.appendPending(session, summary)
	e.stream.ScheduleUpdate(ctx, session)
}

func (e *Interpreter) handleResult(ctx context.Context, session *model.Session, raw json.RawMessage) {
	var ev resultEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		e.log.Warn().Err(err).Msg("malformed result event")
		return
	}
	stats := computeUsageStats(ev)

	session.Lock()
	first := session.UsageStats == nil
	session.UsageStats = stats
	session.Unlock()

	if e.refreshHeader != nil {
		e.refreshHeader(ctx, session)
	}
	if first {
		e.startHeaderTimer(session)
	}
}

func (e *Interpreter) startHeaderTimer(session *model.Session) {
	if e.refreshHeader == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.tickers[session.SessionID]; exists {
		return
	}
	ticker := time.NewTicker(headerRefreshInterval)
	e.tickers[session.SessionID] = ticker
	go func() {
		for range ticker.C {
			e.refreshHeader(context.Background(), session)
		}
	}()
}

// StopHeaderTimer stops a session's periodic header refresh, called when
// the session ends.
func (e *Interpreter) StopHeaderTimer(sessionID model.SessionID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if ticker, ok := e.tickers[sessionID]; ok {
		ticker.Stop()
		delete(e.tickers, sessionID)
	}
}

func (e *Interpreter) appendPending(session *model.Session, text string) {
	session.Lock()
	session.PendingContent += text
	session.Unlock()
}
