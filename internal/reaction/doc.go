// Package reaction dispatches incoming chat reaction events to the pending
// interaction they answer: cancel/escape, context-prompt, question,
// plan-approval, message-approval, worktree-skip, and existing-worktree-
// join, in that fixed precedence order.
//
// Grounded on the teacher's internal/event.Bus subscribe/publish shape — a
// single typed subscriber fed a narrow event struct rather than a router
// parsing free-form payloads. Unlike the teacher's in-process bus, reaction
// events here arrive from a real chat platform's websocket feed, so the
// Router is driven by a plain method call (Route) from
// internal/bridge's per-platform reaction loop rather than event.Subscribe; the
// Handler interface is what keeps the dispatch testable without the rest
// of the bridge wired in.
package reaction
