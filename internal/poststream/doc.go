// Package poststream reconciles a session's streaming text buffer with chat
// posts: batched flush, length-based splitting, and the sticky-task-list
// invariant that keeps the most recent task summary pinned below the
// newest content.
//
// Grounded on the teacher's internal/session/stream.go (accumulate-then-
// flush buffering discipline) and internal/server/sse.go (explicit flush
// idiom), both retargeted from an SSE push model to REST create/update-post
// calls against internal/chatplatform.Client.
package poststream
