package bridge

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/opencode-ai/chatbridge/internal/agentcli"
	"github.com/opencode-ai/chatbridge/internal/model"
)

// SessionSummary is the read-only projection of a Session that C15's HTTP
// surface exposes, live or persisted. It never carries the lock or any
// internal bookkeeping field.
type SessionSummary struct {
	SessionID      model.SessionID `json:"sessionId"`
	PlatformID     string          `json:"platformId"`
	ThreadID       string          `json:"threadId"`
	StartedBy      string          `json:"startedBy"`
	WorkingDir     string          `json:"workingDir"`
	Live           bool            `json:"live"`
	LastActivityAt time.Time       `json:"lastActivityAt"`
}

// Snapshot lists every session this Manager knows about — live in memory
// plus whatever the store still has persisted from a prior run that hasn't
// been resumed — for C15's GET /sessions. redactPaths replaces WorkingDir
// with a short content hash so an operator's dashboard screenshot can't
// leak a repo layout.
func (m *Manager) Snapshot(redactPaths bool) []SessionSummary {
	m.mu.Lock()
	out := make([]SessionSummary, 0, len(m.sessions))
	live := make(map[model.SessionID]bool, len(m.sessions))
	for id, b := range m.sessions {
		live[id] = true
		session := b.controller.Session()
		session.Lock()
		summary := SessionSummary{
			SessionID:      session.SessionID,
			PlatformID:     session.PlatformID,
			ThreadID:       session.ThreadID,
			StartedBy:      session.StartedBy,
			WorkingDir:     session.WorkingDir,
			Live:           true,
			LastActivityAt: session.LastActivityAt,
		}
		session.Unlock()
		out = append(out, summary)
	}
	m.mu.Unlock()

	for id, persisted := range m.store.Load() {
		if live[id] {
			continue
		}
		out = append(out, SessionSummary{
			SessionID:  id,
			PlatformID: persisted.PlatformID,
			ThreadID:   persisted.ThreadID,
			StartedBy:  persisted.StartedBy,
			WorkingDir: persisted.WorkingDir,
			Live:       false,
		})
	}

	if redactPaths {
		for i := range out {
			out[i].WorkingDir = redactPath(out[i].WorkingDir)
		}
	}
	return out
}

// redactPath replaces a filesystem path with a short, stable, non-reversible
// hash — enough to tell two sessions apart in an operator dashboard without
// disclosing the repo layout it's redacting.
func redactPath(path string) string {
	sum := sha256.Sum256([]byte(path))
	return "sha256:" + hex.EncodeToString(sum[:])[:12]
}

// SetEventSink installs fn to receive a copy of every decoded agent event
// for every live session, in addition to the normal eventinterp dispatch —
// C15's per-session SSE stream is the only current consumer. Pass nil to
// detach.
func (m *Manager) SetEventSink(fn func(id model.SessionID, ev agentcli.Event)) {
	m.mu.Lock()
	m.eventSink = fn
	m.mu.Unlock()
}

func (m *Manager) publishEvent(id model.SessionID, ev agentcli.Event) {
	m.mu.Lock()
	sink := m.eventSink
	m.mu.Unlock()
	if sink != nil {
		sink(id, ev)
	}
}
