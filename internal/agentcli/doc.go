// Package agentcli adapts one external agent CLI subprocess per session:
// newline-delimited JSON in both directions, typed spawn arguments, and
// interrupt/kill escalation. It is grounded on the teacher's
// internal/mcp.StdioTransport (exec.CommandContext + StdinPipe/StdoutPipe +
// a buffered line-reading goroutine), generalized from JSON-RPC
// request/response correlation to a one-way event stream: the agent CLI
// never replies to a specific stdin write, it just emits events as they
// happen.
package agentcli
