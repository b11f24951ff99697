// Package permbroker implements the permission broker: a standalone process
// invoked by the agent CLI over its MCP stdio mechanism, exposing exactly
// one tool, permission_prompt. It posts an interactive chat message and
// blocks on a reaction from an allowed user before answering allow or deny.
//
// It is grounded on the teacher's internal/permission package: bash command
// parsing and the doom-loop detector are adapted into this package (the
// broker runs as its own OS process, so neither can share state with the
// main bridge's in-process equivalents); the ask/allow/deny Checker and its
// watermill event-bus wiring are not carried forward, since the broker's
// prompt loop talks to chat reactions directly rather than an in-process
// subscriber.
package permbroker
