// Package httpapi is a small chi-routed, read-only operational surface:
// health, a session listing, and a per-session SSE event stream for
// debugging a stuck session without joining its chat thread. Grounded on
// the teacher's internal/server package (middleware setup, response
// helpers, SSE writer), narrowed to the handful of endpoints an operator
// needs rather than the teacher's full session/provider/tool API.
package httpapi
