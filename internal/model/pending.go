package model

import "time"

// PendingKind tags the category of an open interaction, letting
// internal/reaction dispatch generically without a type switch over six
// unrelated struct types.
type PendingKind string

const (
	PendingKindApproval               PendingKind = "plan_approval"
	PendingKindQuestionSet            PendingKind = "question_set"
	PendingKindMessageApproval        PendingKind = "message_approval"
	PendingKindContextPrompt          PendingKind = "context_prompt"
	PendingKindWorktreePrompt         PendingKind = "worktree_prompt"
	PendingKindExistingWorktreePrompt PendingKind = "existing_worktree_prompt"
)

// PendingApproval is an open ExitPlanMode (or future approval-shaped tool)
// awaiting a thumbs-up/thumbs-down reaction.
type PendingApproval struct {
	PostID    string
	Type      string // "plan" today; left open for future approval-shaped tools
	ToolUseID string
	OpenedAt  time.Time
}

func (*PendingApproval) Kind() PendingKind { return PendingKindApproval }

// QuestionOption is one multiple-choice option.
type QuestionOption struct {
	Label       string
	Description string
}

// PendingQuestion is a single question within a PendingQuestionSet.
type PendingQuestion struct {
	Header   string
	Question string
	Options  []QuestionOption
	Answer   string // set once answered
	PostID   string
}

// PendingQuestionSet is an ordered list of multiple-choice questions raised
// by a single AskUserQuestion tool call.
type PendingQuestionSet struct {
	ToolUseID string
	Questions []PendingQuestion
	Current   int
	OpenedAt  time.Time
}

func (*PendingQuestionSet) Kind() PendingKind { return PendingKindQuestionSet }

// ActiveQuestion returns the question currently awaiting an answer, or nil
// if the set is exhausted.
func (p *PendingQuestionSet) ActiveQuestion() *PendingQuestion {
	if p.Current < 0 || p.Current >= len(p.Questions) {
		return nil
	}
	return &p.Questions[p.Current]
}

// AllAnswered reports whether every question in the set has an answer.
func (p *PendingQuestionSet) AllAnswered() bool {
	for _, q := range p.Questions {
		if q.Answer == "" {
			return false
		}
	}
	return true
}

// PendingMessageApproval gates a message from an unauthorized user, opened
// per spec.md §4.C9's "unrecognized messages from unauthorized users" rule.
type PendingMessageApproval struct {
	PostID   string
	Username string
	Text     string
	OpenedAt time.Time
}

func (*PendingMessageApproval) Kind() PendingKind { return PendingKindMessageApproval }

// PendingContextPrompt offers "include last N thread messages" once after a
// directory/worktree change regenerates the agent session.
type PendingContextPrompt struct {
	PostID               string
	QueuedPrompt         string
	ThreadMessageCount   int
	AvailableOptions     []string
	Deadline             time.Time
}

func (*PendingContextPrompt) Kind() PendingKind { return PendingKindContextPrompt }

// PendingWorktreePrompt asks whether to create a new worktree for a
// concurrent session touching the same repo.
type PendingWorktreePrompt struct {
	PostID     string
	RepoRoot   string
	SuggestedBranch string
	Deadline   time.Time
}

func (*PendingWorktreePrompt) Kind() PendingKind { return PendingKindWorktreePrompt }

// PendingExistingWorktreePrompt offers to join an already-existing worktree
// instead of creating a new one.
type PendingExistingWorktreePrompt struct {
	PostID        string
	WorktreePath  string
	Branch        string
	Deadline      time.Time
}

func (*PendingExistingWorktreePrompt) Kind() PendingKind { return PendingKindExistingWorktreePrompt }
