// Package bridge implements spec.md §4.C10, the top-level session manager:
// the exclusive owner of every live Session, every configured chat
// platform connection, and the persistence store. It authorizes and
// creates sessions from chat `message` events, routes `reaction` events
// through internal/reaction, runs the per-minute idle-timeout sweep, and
// drives graceful shutdown (flush, persist, disconnect).
//
// Grounded on the teacher's internal/session/service.go (a mutex-guarded
// map of active things, generalized here from one process's in-flight
// sessions to every chat platform's sessions) and
// internal/server/server.go's "one goroutine per event source, fan in to
// typed handlers" wiring shape, generalized from one HTTP server to N
// independently-connected chat platforms.
package bridge
