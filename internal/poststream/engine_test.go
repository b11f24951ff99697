package poststream

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/opencode-ai/chatbridge/internal/chatplatform/fake"
	"github.com/opencode-ai/chatbridge/internal/model"
)

func newTestSession() *model.Session {
	return model.NewSession(model.MakeSessionID("team", "thread-1"), "team", "thread-1", "alice", "/work")
}

func TestFlushCreatesPostOnFirstCall(t *testing.T) {
	client := fake.New("bot-1", "bridge")
	e := New(client)
	session := newTestSession()
	session.PendingContent = "hello world"

	require.NoError(t, e.Flush(context.Background(), session))
	require.NotEmpty(t, session.CurrentPostID)

	post, err := client.GetPost(context.Background(), session.CurrentPostID)
	require.NoError(t, err)
	require.Equal(t, "hello world", post.Message)
}

func TestFlushUpdatesExistingPost(t *testing.T) {
	client := fake.New("bot-1", "bridge")
	e := New(client)
	session := newTestSession()
	session.PendingContent = "first"
	require.NoError(t, e.Flush(context.Background(), session))
	firstID := session.CurrentPostID

	session.PendingContent = "first\n\n\n\nsecond"
	require.NoError(t, e.Flush(context.Background(), session))
	require.Equal(t, firstID, session.CurrentPostID)

	post, err := client.GetPost(context.Background(), firstID)
	require.NoError(t, err)
	require.Equal(t, "first\n\nsecond", post.Message) // runs of 3+ newlines collapsed
}

func TestFlushSplitsAtThreshold(t *testing.T) {
	client := fake.New("bot-1", "bridge")
	e := New(client)
	session := newTestSession()

	// build content with a newline near the threshold so the split lands cleanly
	prefix := strings.Repeat("a", SplitThreshold-100) + "\n"
	body := prefix + strings.Repeat("b", 500)
	session.PendingContent = body
	require.NoError(t, e.Flush(context.Background(), session))
	firstID := session.CurrentPostID

	// grow past SplitThreshold with the post already open
	session.PendingContent = body + strings.Repeat("c", SplitThreshold)
	require.NoError(t, e.Flush(context.Background(), session))

	require.NotEqual(t, firstID, session.CurrentPostID, "split should open a continuation post")

	original, err := client.GetPost(context.Background(), firstID)
	require.NoError(t, err)
	require.True(t, strings.HasSuffix(original.Message, "*... (continued below)*"))

	continuation, err := client.GetPost(context.Background(), session.CurrentPostID)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(continuation.Message, "*(continued)*"))
	require.LessOrEqual(t, len(original.Message), HardCap)
	require.LessOrEqual(t, len(continuation.Message), HardCap)
}

func TestFlushTruncatesOversizedSinglePost(t *testing.T) {
	client := fake.New("bot-1", "bridge")
	e := New(client)
	session := newTestSession()
	session.PendingContent = strings.Repeat("x", HardCap+1000)

	require.NoError(t, e.Flush(context.Background(), session))

	post, err := client.GetPost(context.Background(), session.CurrentPostID)
	require.NoError(t, err)
	require.LessOrEqual(t, len(post.Message), HardCap)
	require.True(t, strings.HasSuffix(post.Message, "*... (truncated)*"))
}

func TestFlushRepurposesTaskPostViaStickyRule(t *testing.T) {
	client := fake.New("bot-1", "bridge")
	e := New(client)
	session := newTestSession()

	tasksPost, err := client.CreatePost(context.Background(), "- [ ] do the thing", session.ThreadID)
	require.NoError(t, err)
	session.TasksPostID = tasksPost.ID
	session.LastTasksContent = "- [ ] do the thing"
	session.TasksCompleted = false

	session.PendingContent = "working on it..."
	require.NoError(t, e.Flush(context.Background(), session))

	require.Equal(t, tasksPost.ID, session.CurrentPostID, "the old task post should be repurposed for new content")
	require.NotEqual(t, tasksPost.ID, session.TasksPostID, "a fresh task post should be created at the bottom")

	repurposed, err := client.GetPost(context.Background(), tasksPost.ID)
	require.NoError(t, err)
	require.Equal(t, "working on it...", repurposed.Message)

	newTasksPost, err := client.GetPost(context.Background(), session.TasksPostID)
	require.NoError(t, err)
	require.Equal(t, "- [ ] do the thing", newTasksPost.Message)
}

func TestFlushSkipsStickyRuleWhenTasksCompleted(t *testing.T) {
	client := fake.New("bot-1", "bridge")
	e := New(client)
	session := newTestSession()

	tasksPost, err := client.CreatePost(context.Background(), "- [x] done", session.ThreadID)
	require.NoError(t, err)
	session.TasksPostID = tasksPost.ID
	session.LastTasksContent = "- [x] done"
	session.TasksCompleted = true

	session.PendingContent = "wrapping up"
	require.NoError(t, e.Flush(context.Background(), session))

	require.NotEqual(t, tasksPost.ID, session.CurrentPostID, "completed task post must not be repurposed")
}

func TestBumpTasksToBottomRecreatesPost(t *testing.T) {
	client := fake.New("bot-1", "bridge")
	e := New(client)
	session := newTestSession()

	tasksPost, err := client.CreatePost(context.Background(), "- [ ] task", session.ThreadID)
	require.NoError(t, err)
	session.TasksPostID = tasksPost.ID
	session.LastTasksContent = "- [ ] task"

	require.NoError(t, e.BumpTasksToBottom(context.Background(), session))
	require.NotEqual(t, tasksPost.ID, session.TasksPostID)

	_, err = client.GetPost(context.Background(), tasksPost.ID)
	require.Error(t, err, "old task post should be deleted")
}

func TestBumpTasksToBottomNoOpWhenNoOpenTaskPost(t *testing.T) {
	client := fake.New("bot-1", "bridge")
	e := New(client)
	session := newTestSession()

	require.NoError(t, e.BumpTasksToBottom(context.Background(), session))
	require.Empty(t, session.TasksPostID)
}

func TestScheduleUpdateCoalescesOverlappingCalls(t *testing.T) {
	client := fake.New("bot-1", "bridge")
	e := New(client)
	session := newTestSession()

	session.PendingContent = "a"
	e.ScheduleUpdate(context.Background(), session)
	e.ScheduleUpdate(context.Background(), session) // idempotent: second call must not add a timer

	e.mu.Lock()
	_, pending := e.timers[session.SessionID]
	e.mu.Unlock()
	require.True(t, pending)

	e.CancelScheduled(session)
	e.mu.Lock()
	_, stillPending := e.timers[session.SessionID]
	e.mu.Unlock()
	require.False(t, stillPending)
}
