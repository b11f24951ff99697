package poststream

import (
	"context"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/opencode-ai/chatbridge/internal/chatplatform"
	"github.com/opencode-ai/chatbridge/internal/logging"
	"github.com/opencode-ai/chatbridge/internal/model"
)

// HardCap and SplitThreshold bound a single chat post's length, kept below
// typical platform post limits with margin.
const (
	HardCap         = 16000
	SplitThreshold  = 14000
	splitWasteLimit = 0.30 // if the last newline before SplitThreshold would waste ≥30% of budget, split at the raw index instead
)

const updateCoalesceWindow = 500 * time.Millisecond

var runsOfNewlines = regexp.MustCompile(`\n{3,}`)

// Engine reconciles Session.PendingContent with chat posts.
type Engine struct {
	client chatplatform.Client
	log    zerolog.Logger

	mu     sync.Mutex
	timers map[model.SessionID]*time.Timer
}

// New returns an Engine that posts/updates through client.
func New(client chatplatform.Client) *Engine {
	return &Engine{
		client: client,
		log:    logging.Component("poststream"),
		timers: make(map[model.SessionID]*time.Timer),
	}
}

// ScheduleUpdate enqueues a flush after the coalescing window. Overlapping
// calls while a timer is already pending are idempotent.
func (e *Engine) ScheduleUpdate(ctx context.Context, session *model.Session) {
	e.mu.Lock()
	if _, pending := e.timers[session.SessionID]; pending {
		e.mu.Unlock()
		return
	}
	e.timers[session.SessionID] = time.AfterFunc(updateCoalesceWindow, func() {
		e.mu.Lock()
		delete(e.timers, session.SessionID)
		e.mu.Unlock()
		if err := e.Flush(ctx, session); err != nil {
			e.log.Error().Err(err).Str("session", string(session.SessionID)).Msg("flush failed")
		}
	})
	e.mu.Unlock()
}

// CancelScheduled drops any pending coalesced flush for session, e.g. on
// session teardown.
func (e *Engine) CancelScheduled(session *model.Session) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if t, ok := e.timers[session.SessionID]; ok {
		t.Stop()
		delete(e.timers, session.SessionID)
	}
}

// Flush reconciles session.PendingContent with chat posts per the 5-step
// algorithm: normalize, split if over threshold, truncate as a safety net,
// update the open post, or create one honoring the sticky-tasks rule.
// A single in-flight flush per session is enforced by holding the session
// lock for the duration of the REST calls below.
func (e *Engine) Flush(ctx context.Context, session *model.Session) error {
	session.Lock()
	defer session.Unlock()
	return e.flushLocked(ctx, session)
}

func (e *Engine) flushLocked(ctx context.Context, session *model.Session) error {
	content := normalize(session.PendingContent)

	if len(content) > SplitThreshold && session.CurrentPostID != "" {
		return e.split(ctx, session, content)
	}
	if len(content) > HardCap {
		content = content[:HardCap-50] + "\n\n*... (truncated)*"
	}

	if session.CurrentPostID != "" {
		if err := e.client.UpdatePost(ctx, session.CurrentPostID, content); err != nil {
			return err
		}
		session.PendingContent = content
		return nil
	}

	return e.createOrRepurpose(ctx, session, content)
}

// split implements step 2: cut at the last newline before SplitThreshold
// (falling back to the raw index if that wastes too much of the budget),
// update the current post with the prefix, and open a continuation post
// with the remainder.
func (e *Engine) split(ctx context.Context, session *model.Session, content string) error {
	cut := strings.LastIndex(content[:SplitThreshold], "\n")
	if cut < 0 || float64(SplitThreshold-cut)/float64(SplitThreshold) >= splitWasteLimit {
		cut = SplitThreshold
	}
	prefix := content[:cut]
	remainder := strings.TrimLeft(content[cut:], "\n")

	if err := e.client.UpdatePost(ctx, session.CurrentPostID, prefix+"\n\n*... (continued below)*"); err != nil {
		return err
	}
	session.CurrentPostID = ""
	session.PendingContent = remainder

	return e.createOrRepurpose(ctx, session, "*(continued)*\n\n"+remainder)
}

// createOrRepurpose implements steps 4/5's "no open post" branch: the
// sticky-tasks rule repurposes an open, non-completed task post for the new
// content and re-creates the task summary below it; otherwise a fresh post
// is created.
func (e *Engine) createOrRepurpose(ctx context.Context, session *model.Session, content string) error {
	if session.TasksPostID != "" && session.LastTasksContent != "" && !session.TasksCompleted {
		if err := e.client.UpdatePost(ctx, session.TasksPostID, content); err != nil {
			return err
		}
		session.CurrentPostID = session.TasksPostID
		session.PendingContent = content

		tasksPost, err := e.client.CreatePost(ctx, session.LastTasksContent, session.ThreadID)
		if err != nil {
			return err
		}
		session.TasksPostID = tasksPost.ID
		return nil
	}

	post, err := e.client.CreatePost(ctx, content, session.ThreadID)
	if err != nil {
		return err
	}
	session.CurrentPostID = post.ID
	session.PendingContent = content
	return nil
}

// BumpTasksToBottom deletes and re-creates the open task post so it trails
// a newly arrived user message, per the sticky-tasks rationale: chat
// clients render the most recent post at the bottom.
func (e *Engine) BumpTasksToBottom(ctx context.Context, session *model.Session) error {
	session.Lock()
	defer session.Unlock()

	if session.TasksPostID == "" || session.TasksCompleted {
		return nil
	}
	if err := e.client.DeletePost(ctx, session.TasksPostID); err != nil {
		return err
	}
	post, err := e.client.CreatePost(ctx, session.LastTasksContent, session.ThreadID)
	if err != nil {
		return err
	}
	session.TasksPostID = post.ID
	return nil
}

// normalize collapses runs of 3+ newlines to two and trims surrounding
// whitespace.
func normalize(content string) string {
	return strings.TrimSpace(runsOfNewlines.ReplaceAllString(content, "\n\n"))
}
