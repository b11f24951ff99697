package bridgesession

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/opencode-ai/chatbridge/internal/agentcli"
	"github.com/opencode-ai/chatbridge/internal/chatplatform"
	"github.com/opencode-ai/chatbridge/internal/logging"
	"github.com/opencode-ai/chatbridge/internal/model"
	"github.com/opencode-ai/chatbridge/internal/poststream"
)

// Defaults carries spec.md §4.C7's tunables plus the spawn options shared
// by every session against one agent CLI binary.
type Defaults struct {
	BinaryPath           string
	MCPConfigJSON        string
	PermissionPromptTool string
	ExtraArgs            []string
	AppendSystemPrompt   string
	ChromeAutomation     bool

	IdleLimit      time.Duration // default 30m
	Grace          time.Duration // default 5m
	UpdateCoalesce time.Duration // default 500ms
	ResumeRetries  int           // default 3
}

// EndReason is why Kill was invoked, distinguishing the three "Ended(kill)"
// / "Ended(timeout)" flavors from a spontaneous "Ended(exit)".
type EndReason string

const (
	EndReasonStop     EndReason = "stop"     // !stop / cancel emoji: unpersist
	EndReasonTimeout  EndReason = "timeout"  // idle past IdleLimit: persist + lifecycle post
	EndReasonShutdown EndReason = "shutdown" // bridge shutdown: persist for resume
)

// EndAction tells the caller (internal/bridge) what to do once an adapter's
// exit has been classified.
type EndAction struct {
	Swallow       bool // isRestarting absorbed this exit; take no further action
	Persist       bool // keep the session in the store
	PostLifecycle bool // post a resumable lifecycle message (timeout case)
}

// IdleAction is CheckIdle's verdict.
type IdleAction int

const (
	IdleActionNone IdleAction = iota
	IdleActionWarn
	IdleActionEnd
)

// Controller drives one Session's state machine and owns its current agent
// subprocess handle.
type Controller struct {
	session    *model.Session
	client     chatplatform.Client
	stream     *poststream.Engine
	newAdapter AdapterFactory
	cfg        Defaults
	log        zerolog.Logger

	mu       sync.Mutex
	adapter  AgentAdapter
	retiring AgentAdapter // the adapter being killed by an in-flight Restart
	endReason EndReason
}

// New returns a Controller for session, not yet started.
func New(session *model.Session, client chatplatform.Client, stream *poststream.Engine, newAdapter AdapterFactory, cfg Defaults) *Controller {
	return &Controller{
		session:    session,
		client:     client,
		stream:     stream,
		newAdapter: newAdapter,
		cfg:        cfg,
		log:        logging.ForSession("bridgesession", string(session.SessionID)),
	}
}

// Session returns the controlled session.
func (c *Controller) Session() *model.Session { return c.session }

// CurrentAdapter returns the live adapter instance, for wiring its Events()
// and Exit() channels into internal/eventinterp's event loop.
func (c *Controller) CurrentAdapter() AgentAdapter {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.adapter
}

// Start implements New → Starting: allocates a fresh agentSessionId and
// spawns the adapter. The caller (internal/bridge's createSession) posts the
// session-start post before calling Start and offers a worktree prompt
// afterward.
func (c *Controller) Start(ctx context.Context) error {
	c.session.Lock()
	c.session.AgentSessionID = uuid.New().String()
	spawn := c.buildSpawn(false)
	c.session.Unlock()

	adapter := c.newAdapter(string(c.session.SessionID))
	if err := adapter.Start(ctx, spawn); err != nil {
		return fmt.Errorf("bridgesession: start: %w", err)
	}

	c.mu.Lock()
	c.adapter = adapter
	c.mu.Unlock()
	return nil
}

// Resume attempts one `--resume agentSessionId` spawn (Any → Active via a
// resumed Starting); a failed spawn increments session.ResumeFailCount. The
// caller (internal/bridge's startup sweep) calls it once per persisted
// session, logs a failure and leaves the session in the store; it does not
// retry, does not use ResumeBackoff, and does not compare ResumeFailCount
// with Defaults.ResumeRetries.
func (c *Controller) Resume(ctx context.Context) error {
	c.session.Lock()
	spawn := c.buildSpawn(true)
	c.session.Unlock()

	adapter := c.newAdapter(string(c.session.SessionID))
	if err := adapter.Start(ctx, spawn); err != nil {
		c.session.Lock()
		c.session.ResumeFailCount++
		c.session.Unlock()
		return fmt.Errorf("bridgesession: resume: %w", err)
	}

	c.mu.Lock()
	c.adapter = adapter
	c.mu.Unlock()

	c.session.Lock()
	c.session.IsResumed = true
	c.session.Unlock()
	return nil
}

func (c *Controller) buildSpawn(resume bool) agentcli.Spawn {
	spawn := agentcli.Spawn{
		BinaryPath:         c.cfg.BinaryPath,
		WorkingDir:         c.session.WorkingDir,
		ExtraArgs:          c.cfg.ExtraArgs,
		AppendSystemPrompt: c.cfg.AppendSystemPrompt,
		ChromeAutomation:   c.cfg.ChromeAutomation,
	}
	if resume {
		spawn.ResumeSessionID = c.session.AgentSessionID
	} else {
		spawn.SessionID = c.session.AgentSessionID
	}
	if c.session.ForceInteractivePermissions {
		spawn.MCPConfigJSON = c.cfg.MCPConfigJSON
		spawn.PermissionPromptTool = c.cfg.PermissionPromptTool
	} else {
		spawn.SkipPermissions = true
	}
	return spawn
}

// OnAssistantResponded implements Starting → Active: the first assistant
// event flips hasAgentResponded.
func (c *Controller) OnAssistantResponded() {
	c.session.Lock()
	defer c.session.Unlock()
	c.session.HasAgentResponded = true
}

// BeginProcessing / EndProcessing implement the Active ↔ Idle toggle around
// a user message / agent result boundary, and bump LastActivityAt.
func (c *Controller) BeginProcessing() {
	c.session.Lock()
	defer c.session.Unlock()
	c.session.IsProcessing = true
	c.session.LastActivityAt = time.Now()
	c.session.TimeoutWarningPosted = false
}

func (c *Controller) EndProcessing() {
	c.session.Lock()
	defer c.session.Unlock()
	c.session.IsProcessing = false
	c.session.LastActivityAt = time.Now()
}

// MarkActivity records activity without a processing-state change (e.g. a
// reaction), clearing any posted timeout warning.
func (c *Controller) MarkActivity() {
	c.session.Lock()
	defer c.session.Unlock()
	c.session.LastActivityAt = time.Now()
	c.session.TimeoutWarningPosted = false
}

// Interrupt implements Active/Idle → Interrupted: SIGINT to the adapter,
// session stays alive.
func (c *Controller) Interrupt() error {
	c.session.Lock()
	c.session.WasInterrupted = true
	c.session.Unlock()

	adapter := c.CurrentAdapter()
	if adapter == nil {
		return nil
	}
	return adapter.Interrupt()
}

// Restart implements Active/Idle → Restarting: kill the current adapter,
// flush the streaming buffer, regenerate agentSessionId (fresh, never
// resumed — directory changes break --resume per invariant I6), and
// re-spawn with newWorkingDir. forceInteractive, once true, is sticky
// (never downgraded back to skip-permissions).
func (c *Controller) Restart(ctx context.Context, newWorkingDir string, forceInteractive bool) error {
	c.session.Lock()
	c.session.IsRestarting = true
	c.session.WorkingDir = newWorkingDir
	if forceInteractive {
		c.session.ForceInteractivePermissions = true
	}
	c.session.Unlock()

	c.mu.Lock()
	old := c.adapter
	c.retiring = old
	c.mu.Unlock()

	if old != nil {
		if err := old.Kill(); err != nil {
			c.log.Warn().Err(err).Msg("error killing adapter during restart")
		}
	}

	if err := c.stream.Flush(ctx, c.session); err != nil {
		c.log.Warn().Err(err).Msg("flush during restart failed")
	}

	c.session.Lock()
	c.session.AgentSessionID = uuid.New().String()
	c.session.CurrentPostID = "" // new agent context; don't keep appending to the pre-restart post
	c.session.PendingContent = ""
	spawn := c.buildSpawn(false)
	c.session.Unlock()

	newAdapter := c.newAdapter(string(c.session.SessionID))
	if err := newAdapter.Start(ctx, spawn); err != nil {
		return fmt.Errorf("bridgesession: restart respawn: %w", err)
	}

	c.mu.Lock()
	c.adapter = newAdapter
	c.mu.Unlock()
	return nil
}

// SwitchToInteractivePermissions implements the `!permissions interactive`
// downgrade: unlike Restart, the working directory and agentSessionId are
// unchanged, so the respawn uses --resume rather than a fresh session id.
// ForceInteractivePermissions is sticky and this method never un-sets it.
func (c *Controller) SwitchToInteractivePermissions(ctx context.Context) error {
	c.session.Lock()
	c.session.IsRestarting = true
	c.session.ForceInteractivePermissions = true
	c.session.Unlock()

	c.mu.Lock()
	old := c.adapter
	c.retiring = old
	c.mu.Unlock()

	if old != nil {
		if err := old.Kill(); err != nil {
			c.log.Warn().Err(err).Msg("error killing adapter during permission switch")
		}
	}

	if err := c.stream.Flush(ctx, c.session); err != nil {
		c.log.Warn().Err(err).Msg("flush during permission switch failed")
	}

	c.session.Lock()
	spawn := c.buildSpawn(true)
	c.session.Unlock()

	newAdapter := c.newAdapter(string(c.session.SessionID))
	if err := newAdapter.Start(ctx, spawn); err != nil {
		return fmt.Errorf("bridgesession: permission switch respawn: %w", err)
	}

	c.mu.Lock()
	c.adapter = newAdapter
	c.mu.Unlock()
	return nil
}

// Flush forces the streaming buffer out immediately, used by the session
// manager (internal/bridge) before persisting on shutdown.
func (c *Controller) Flush(ctx context.Context) error {
	return c.stream.Flush(ctx, c.session)
}

// Kill implements Any → Ended(kill) / Any → Ended(timeout): signals the
// adapter and records why, so the eventual Exit() is classified correctly
// by HandleExit.
func (c *Controller) Kill(reason EndReason) error {
	c.mu.Lock()
	c.endReason = reason
	adapter := c.adapter
	c.mu.Unlock()

	if adapter == nil {
		return nil
	}
	return adapter.Kill()
}

// HandleExit classifies an adapter's Exit() signal per spec.md §4.C7's
// "Any → Ended(exit)" rule, matching the reporting adapter instance
// against the one this controller is (or was) actively running.
func (c *Controller) HandleExit(exitingAdapter AgentAdapter, exit agentcli.ExitInfo) EndAction {
	c.mu.Lock()
	if exitingAdapter == c.retiring {
		c.retiring = nil
		c.mu.Unlock()
		c.session.Lock()
		c.session.IsRestarting = false
		c.session.Unlock()
		return EndAction{Swallow: true}
	}
	reason := c.endReason
	c.endReason = ""
	c.mu.Unlock()

	c.session.Lock()
	defer c.session.Unlock()

	switch reason {
	case EndReasonShutdown:
		return EndAction{Persist: true}
	case EndReasonTimeout:
		return EndAction{Persist: true, PostLifecycle: true}
	case EndReasonStop:
		return EndAction{Persist: false}
	default:
		if c.session.WasInterrupted {
			return EndAction{Persist: true}
		}
		return EndAction{Persist: false}
	}
}

// CheckIdle implements Active/Idle → TimingOut → Ended(timeout): a warning
// fires once past IdleLimit-Grace, and the session ends once past
// IdleLimit. Activity resuming (MarkActivity/BeginProcessing/EndProcessing)
// clears the warning flag so the cycle can repeat.
func (c *Controller) CheckIdle(now time.Time) IdleAction {
	c.session.Lock()
	defer c.session.Unlock()

	idle := now.Sub(c.session.LastActivityAt)
	if idle > c.cfg.IdleLimit {
		return IdleActionEnd
	}
	if idle > c.cfg.IdleLimit-c.cfg.Grace && !c.session.TimeoutWarningPosted {
		c.session.TimeoutWarningPosted = true
		return IdleActionWarn
	}
	return IdleActionNone
}
