package model

import "time"

// PersistedSession is the JSON-serializable projection of a Session: no
// timers, no live subprocess handle, no in-flight pending-interaction
// state (a reaction on a surviving anchor post re-derives what's needed via
// findByPostID instead of round-tripping transient UI state).
type PersistedSession struct {
	SessionID      SessionID     `json:"sessionId"`
	PlatformID     string        `json:"platformId"`
	ThreadID       string        `json:"threadId"`
	AgentSessionID string        `json:"agentSessionId"`
	StartedBy      string        `json:"startedBy"`
	StartedAt      time.Time     `json:"startedAt"`
	LastActivityAt time.Time     `json:"lastActivityAt"`
	SessionNumber  int           `json:"sessionNumber"`
	WorkingDir     string        `json:"workingDir"`
	WorktreeInfo   *WorktreeInfo `json:"worktreeInfo,omitempty"`

	WasInterrupted bool `json:"wasInterrupted"`

	ForceInteractivePermissions bool            `json:"forceInteractivePermissions"`
	SessionAllowedUsers         map[string]bool `json:"sessionAllowedUsers"`

	UsageStats *UsageStats `json:"usageStats,omitempty"`

	SessionStartPostID string `json:"sessionStartPostId,omitempty"`
	LifecyclePostID    string `json:"lifecyclePostId,omitempty"`
	CompactionPostID   string `json:"compactionPostId,omitempty"`

	MessageCount int `json:"messageCount"`
}

// ToPersisted projects a live Session into its durable form. Caller must
// hold the session's lock.
func (s *Session) ToPersisted() *PersistedSession {
	allowed := make(map[string]bool, len(s.SessionAllowedUsers))
	for k, v := range s.SessionAllowedUsers {
		allowed[k] = v
	}
	return &PersistedSession{
		SessionID:                   s.SessionID,
		PlatformID:                  s.PlatformID,
		ThreadID:                    s.ThreadID,
		AgentSessionID:              s.AgentSessionID,
		StartedBy:                   s.StartedBy,
		StartedAt:                   s.StartedAt,
		LastActivityAt:              s.LastActivityAt,
		SessionNumber:               s.SessionNumber,
		WorkingDir:                  s.WorkingDir,
		WorktreeInfo:                s.WorktreeInfo,
		WasInterrupted:              s.WasInterrupted,
		ForceInteractivePermissions: s.ForceInteractivePermissions,
		SessionAllowedUsers:         allowed,
		UsageStats:                  s.UsageStats,
		SessionStartPostID:          s.SessionStartPostID,
		LifecyclePostID:             s.LifecyclePostID,
		CompactionPostID:            s.CompactionPostID,
		MessageCount:                s.MessageCount,
	}
}

// FromPersisted rebuilds a live Session shell from its durable projection.
// The caller (internal/bridgesession, on resume) still needs to spawn the
// agent adapter and re-attach timers; this only restores the fields that
// round-trip.
func FromPersisted(p *PersistedSession) *Session {
	allowed := make(map[string]bool, len(p.SessionAllowedUsers))
	for k, v := range p.SessionAllowedUsers {
		allowed[k] = v
	}
	if p.StartedBy != "" {
		allowed[p.StartedBy] = true // re-assert invariant I4 across a migration
	}
	return &Session{
		SessionID:                   p.SessionID,
		PlatformID:                  p.PlatformID,
		ThreadID:                    p.ThreadID,
		AgentSessionID:              p.AgentSessionID,
		StartedBy:                   p.StartedBy,
		StartedAt:                   p.StartedAt,
		LastActivityAt:              p.LastActivityAt,
		SessionNumber:               p.SessionNumber,
		WorkingDir:                  p.WorkingDir,
		WorktreeInfo:                p.WorktreeInfo,
		WasInterrupted:              p.WasInterrupted,
		ForceInteractivePermissions: p.ForceInteractivePermissions,
		SessionAllowedUsers:         allowed,
		UsageStats:                  p.UsageStats,
		SessionStartPostID:          p.SessionStartPostID,
		LifecyclePostID:             p.LifecyclePostID,
		CompactionPostID:            p.CompactionPostID,
		MessageCount:                p.MessageCount,
		IsResumed:                   true,
	}
}
