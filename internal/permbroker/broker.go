package permbroker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"github.com/opencode-ai/chatbridge/internal/chatplatform"
	"github.com/opencode-ai/chatbridge/internal/chatutil"
	"github.com/opencode-ai/chatbridge/internal/logging"
)

// PermissionTimeout bounds how long the broker waits for a reaction before
// answering deny, per spec.md §8 testable property 6.
const PermissionTimeout = 2 * time.Minute

// Behavior is the permission_prompt RPC's answer.
type Behavior string

const (
	BehaviorAllow Behavior = "allow"
	BehaviorDeny  Behavior = "deny"
)

// Result is the permission_prompt RPC's full response shape.
type Result struct {
	Behavior     Behavior        `json:"behavior"`
	UpdatedInput json.RawMessage `json:"updatedInput,omitempty"`
	Message      string          `json:"message,omitempty"`
}

const (
	optionAllow    = "+1"
	optionAllowAll = "white_check_mark"
	optionDeny     = "-1"
)

// Broker answers permission_prompt calls for one session by posting an
// interactive message and waiting on a reaction.
type Broker struct {
	client     chatplatform.Client
	cfg        Config
	doomLoop   *doomLoopDetector
	workingDir string
	log        zerolog.Logger

	allowAllLatch bool
}

// New builds a broker bound to one already-connected chat client.
func New(client chatplatform.Client, cfg Config, workingDir string) *Broker {
	return &Broker{
		client:     client,
		cfg:        cfg,
		doomLoop:   newDoomLoopDetector(),
		workingDir: workingDir,
		log:        logging.Component("permbroker"),
	}
}

// PermissionPrompt implements the permission_prompt RPC, per spec.md §4.C4's
// six-step algorithm.
func (b *Broker) PermissionPrompt(ctx context.Context, toolName string, input json.RawMessage) Result {
	if b.allowAllLatch {
		return Result{Behavior: BehaviorAllow}
	}

	var parsedInput any
	_ = json.Unmarshal(input, &parsedInput)
	looped := b.doomLoop.Check(toolName, parsedInput)

	descriptor := formatDescriptor(toolName, input, b.workingDir)
	if looped {
		descriptor += "\n\n⚠️ this tool+input has repeated 3×"
	}

	post, err := b.client.CreateInteractivePost(ctx, descriptor, []string{optionAllow, optionAllowAll, optionDeny}, b.cfg.ThreadID)
	if err != nil {
		b.log.Warn().Err(err).Msg("failed to post permission prompt, denying")
		return Result{Behavior: BehaviorDeny, Message: "failed to reach chat platform"}
	}

	action, user, timedOut := b.waitForDecision(ctx, post.ID)

	switch {
	case timedOut:
		_ = b.client.UpdatePost(ctx, post.ID, descriptor+"\n\n**Timed out – denied**")
		return Result{Behavior: BehaviorDeny, Message: "permission request timed out"}
	case action == optionDeny:
		_ = b.client.UpdatePost(ctx, post.ID, descriptor+"\n\n**Denied by @"+user+"**")
		return Result{Behavior: BehaviorDeny, Message: "denied by " + user}
	case action == optionAllowAll:
		b.allowAllLatch = true
		_ = b.client.UpdatePost(ctx, post.ID, descriptor+"\n\n**Allowed (all) by @"+user+"**")
		return Result{Behavior: BehaviorAllow}
	case action == optionAllow:
		_ = b.client.UpdatePost(ctx, post.ID, descriptor+"\n\n**Allowed by @"+user+"**")
		return Result{Behavior: BehaviorAllow}
	default:
		// context canceled before any reaction arrived.
		return Result{Behavior: BehaviorDeny, Message: "broker shutting down"}
	}
}

// waitForDecision blocks until an allowed, non-bot user reacts to postID
// with one of the three option emoji, PermissionTimeout elapses, or ctx is
// canceled.
func (b *Broker) waitForDecision(ctx context.Context, postID string) (emoji string, username string, timedOut bool) {
	deadline := time.NewTimer(PermissionTimeout)
	defer deadline.Stop()

	bot := b.client.BotUser()

	for {
		select {
		case <-ctx.Done():
			return "", "", false
		case <-deadline.C:
			return "", "", true
		case evt, ok := <-b.client.Reactions():
			if !ok {
				return "", "", true
			}
			if evt.Reaction.PostID != postID {
				continue
			}
			if evt.Reaction.UserID == bot.ID {
				continue
			}
			if evt.User == nil || !b.cfg.AllowedUsers[evt.User.Username] {
				continue
			}
			name := normalizeDecisionEmoji(evt.Reaction.EmojiName)
			if name == "" {
				continue
			}
			return name, evt.User.Username, false
		}
	}
}

// normalizeDecisionEmoji maps any accepted synonym to the canonical option
// emoji, using the same vocabulary tables internal/chatutil classifies chat
// reactions with.
func normalizeDecisionEmoji(name string) string {
	switch {
	case chatutil.IsAllowAll(name):
		return optionAllowAll
	case chatutil.IsApproval(name):
		return optionAllow
	case chatutil.IsDenial(name):
		return optionDeny
	default:
		return ""
	}
}
