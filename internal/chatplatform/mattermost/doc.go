// Package mattermost implements chatplatform.Client against the Mattermost
// REST API (v4) and its WebSocket event feed. Request/response shape and
// error wrapping follow the teacher's internal/mcp.Client (context-aware
// calls, typed results, wrapped errors); the WebSocket event loop uses
// github.com/gorilla/websocket, the same library the rest of the pack
// reaches for when it needs a push-event feed.
package mattermost
