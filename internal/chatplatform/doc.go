// Package chatplatform defines the Client interface every chat backend
// adapter implements, plus the event and entity types shared across
// adapters. The interface shape follows the teacher's internal/mcp.Client
// (context-aware calls returning typed results and wrapped errors), widened
// to the operations spec.md §6 names: identity, posts, reactions, typing,
// files, formatting, and an event stream.
package chatplatform
