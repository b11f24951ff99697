// Package eventinterp consumes the agent CLI's decoded JSON event stream
// (internal/agentcli.Event) and translates each event into the session
// mutations and chat actions spec.md §4.C8 names: text deltas append to
// the session's streaming buffer, tool_use blocks dispatch to a per-tool
// render/open-interaction table, and result events update usage
// accounting and the periodic header refresh timer.
//
// Grounded on the teacher's internal/session/stream.go (part accumulation
// into a running buffer), internal/session/tools.go (per-tool dispatch
// shape and the diffmatchpatch-based diff summary, generalized from tool
// *execution* to tool-result *rendering* since tools run inside the agent
// subprocess here, not in this process), and internal/session/todo.go
// (TodoWrite completion bookkeeping). Diff previews use
// github.com/sergi/go-diff/diffmatchpatch, a teacher dependency.
package eventinterp
