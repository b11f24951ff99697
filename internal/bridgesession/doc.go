// Package bridgesession implements the per-thread session state machine:
// New → Starting → Active ↔ Idle → {Restarting, Interrupted, TimingOut,
// Ended}. States are tracked implicitly via field combinations on
// model.Session rather than an explicit enum, matching spec.md §4.C7.
//
// Grounded on the teacher's internal/session/service.go active
// map[string]*ActiveSession + abortChs pattern, generalized from a single
// in-process LLM completion loop per session to an externally-spawned
// agent subprocess (internal/agentcli) per session. ResumeBackoff defines a
// resume spacing policy on github.com/cenkalti/backoff/v4; nothing calls it,
// and startup makes a single resume attempt per persisted session.
package bridgesession
