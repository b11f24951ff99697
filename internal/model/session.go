package model

import (
	"sync"
	"time"
)

// PlatformInstance identifies one configured chat backend. Immutable at
// runtime.
type PlatformInstance struct {
	PlatformID  string
	Kind        string // e.g. "mattermost"
	DisplayName string
}

// WorktreeInfo describes an auxiliary git checkout a session is pinned to.
type WorktreeInfo struct {
	RepoRoot     string
	WorktreePath string
	Branch       string
}

// PerModelUsage is the usage/cost breakdown for a single model within a
// turn's result event.
type PerModelUsage struct {
	ModelID               string
	DisplayName           string
	InputTokens           int64
	OutputTokens          int64
	CacheReadInputTokens  int64
	CacheCreationTokens   int64
	CostUSD               float64
}

// UsageStats aggregates token/cost accounting reported by the agent CLI's
// `result` events.
type UsageStats struct {
	PrimaryModel      string
	ModelDisplayName  string
	ContextWindowSize int64
	ContextTokens     int64
	TotalTokensUsed   int64
	TotalCostUSD      float64
	PerModel          map[string]*PerModelUsage
}

// SessionID is the composite key "platformId:threadId".
type SessionID string

// Make builds a SessionID from its parts.
func MakeSessionID(platformID, threadID string) SessionID {
	return SessionID(platformID + ":" + threadID)
}

// Session is the central aggregate: one live agent subprocess tied to one
// chat thread. It is owned exclusively by the session manager
// (internal/bridge); other components may mutate only the fields
// documented on them (see each field's comment).
type Session struct {
	mu sync.Mutex

	// Identity
	SessionID      SessionID
	PlatformID     string
	ThreadID       string
	AgentSessionID string // UUID used to --resume; regenerated on directory change (I6)
	StartedBy      string
	StartedAt      time.Time
	LastActivityAt time.Time
	SessionNumber  int

	// Working state
	WorkingDir   string
	WorktreeInfo *WorktreeInfo

	// Lifecycle flags
	IsRestarting          bool
	IsResumed             bool
	WasInterrupted        bool
	HasAgentResponded     bool
	ResumeFailCount       int
	IsProcessing          bool
	TimeoutWarningPosted  bool
	NeedsContextPrompt    bool // offer "include last N messages" once after a !cd/worktree switch

	// Streaming buffer (owned by internal/poststream)
	PendingContent string
	CurrentPostID  string // "" means nil
	UpdateDeadline time.Time

	// Sticky tasks (owned by internal/poststream + internal/eventinterp)
	TasksPostID      string
	LastTasksContent string
	TasksCompleted   bool
	TasksMinimized   bool

	// Pending interactions — at most one of each is non-nil (invariant I1).
	// Modeled as separate fields per the specification's literal data
	// model (see DESIGN.md for why the single-tagged-variant redesign note
	// was not adopted at this level: collapsing to one field would make
	// "at most one pending interaction total" true, which is a strictly
	// stronger constraint than the per-category invariant I1 actually
	// states). Each value type still shares the PendingKind tag so
	// internal/reaction can dispatch generically.
	PendingApproval               *PendingApproval
	PendingQuestionSet            *PendingQuestionSet
	PendingMessageApproval        *PendingMessageApproval
	PendingContextPrompt          *PendingContextPrompt
	PendingWorktreePrompt         *PendingWorktreePrompt
	PendingExistingWorktreePrompt *PendingExistingWorktreePrompt

	// Permission policy
	ForceInteractivePermissions bool
	PermissionAllowAllLatch     bool // session-scoped, mirrors the broker's own latch for local checks
	PlanApproved                bool // set once an ExitPlanMode approval is granted; never reset, so later ExitPlanMode calls auto-continue

	// Collaboration
	SessionAllowedUsers map[string]bool

	// Usage
	UsageStats *UsageStats

	// Anchor posts
	SessionStartPostID string
	LifecyclePostID    string
	CompactionPostID   string

	// Counters
	MessageCount int
}

// NewSession constructs a Session with invariant I4 already satisfied
// (SessionAllowedUsers contains StartedBy).
func NewSession(id SessionID, platformID, threadID, startedBy, workingDir string) *Session {
	now := time.Now()
	return &Session{
		SessionID:           id,
		PlatformID:          platformID,
		ThreadID:            threadID,
		StartedBy:           startedBy,
		StartedAt:           now,
		LastActivityAt:      now,
		WorkingDir:          workingDir,
		SessionAllowedUsers: map[string]bool{startedBy: true},
	}
}

// Lock/Unlock expose the per-session mutex. A session is touched from
// several goroutines (the bridge's per-platform message and reaction loops,
// its per-session event pump, and post-stream timers), and each takes this
// lock around reads and writes of the session's fields.
func (s *Session) Lock()   { s.mu.Lock() }
func (s *Session) Unlock() { s.mu.Unlock() }

// AllowUser adds a user to the allow-list, preserving invariant I4 (it never
// removes StartedBy).
func (s *Session) AllowUser(username string) {
	if s.SessionAllowedUsers == nil {
		s.SessionAllowedUsers = make(map[string]bool)
	}
	s.SessionAllowedUsers[username] = true
}

// RemoveUser removes a user unless doing so would violate invariant I4.
func (s *Session) RemoveUser(username string) bool {
	if username == s.StartedBy {
		return false
	}
	delete(s.SessionAllowedUsers, username)
	return true
}

// IsAllowed reports whether a user may interact with this session.
func (s *Session) IsAllowed(username string) bool {
	return s.SessionAllowedUsers[username]
}

// HasAnyPending reports whether any pending interaction is open.
func (s *Session) HasAnyPending() bool {
	return s.PendingApproval != nil ||
		s.PendingQuestionSet != nil ||
		s.PendingMessageApproval != nil ||
		s.PendingContextPrompt != nil ||
		s.PendingWorktreePrompt != nil ||
		s.PendingExistingWorktreePrompt != nil
}

// ClearAllPending nulls every pending-interaction field, used on kill/interrupt.
func (s *Session) ClearAllPending() {
	s.PendingApproval = nil
	s.PendingQuestionSet = nil
	s.PendingMessageApproval = nil
	s.PendingContextPrompt = nil
	s.PendingWorktreePrompt = nil
	s.PendingExistingWorktreePrompt = nil
}
