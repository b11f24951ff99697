package agentcli

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/opencode-ai/chatbridge/internal/logging"
)

// Spawn carries the arguments the specification's §4.C3 contract names.
// Exactly one of SkipPermissions or (MCPConfigJSON + PermissionPromptTool)
// must be set.
type Spawn struct {
	BinaryPath           string
	WorkingDir           string
	SessionID            string // fresh start: --session-id <uuid>
	ResumeSessionID       string // resume: --resume <uuid>; mutually exclusive with SessionID
	SkipPermissions      bool
	MCPConfigJSON        string
	PermissionPromptTool string
	ChromeAutomation     bool
	AppendSystemPrompt   string
	ExtraArgs            []string
	Env                  map[string]string
}

func (s Spawn) args() []string {
	args := []string{
		"--input-format", "stream-json",
		"--output-format", "stream-json",
		"--verbose",
	}
	if s.SkipPermissions {
		args = append(args, "--dangerously-skip-permissions")
	} else {
		args = append(args, "--mcp-config", s.MCPConfigJSON, "--permission-prompt-tool", s.PermissionPromptTool)
	}
	if s.ResumeSessionID != "" {
		args = append(args, "--resume", s.ResumeSessionID)
	} else if s.SessionID != "" {
		args = append(args, "--session-id", s.SessionID)
	}
	if s.ChromeAutomation {
		args = append(args, "--chrome")
	}
	if s.AppendSystemPrompt != "" {
		args = append(args, "--append-system-prompt", s.AppendSystemPrompt)
	}
	return append(args, s.ExtraArgs...)
}

// Event is one raw JSON object emitted on the agent's stdout, kept
// undecoded beyond its `type` discriminator — the adapter does not
// interpret event semantics, that is internal/eventinterp's job.
type Event struct {
	Type string
	Raw  json.RawMessage
}

// ExitInfo reports how the subprocess terminated.
type ExitInfo struct {
	Code  int
	Err   error
	Forced bool // true if the exit followed a call to Kill
}

// Adapter owns one agent subprocess.
type Adapter struct {
	log zerolog.Logger

	mu      sync.Mutex
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	running bool

	events chan Event
	exit   chan ExitInfo

	pendingLine []byte // a partial trailing line retained across reads
}

// New creates an unstarted adapter.
func New(sessionID string) *Adapter {
	return &Adapter{
		log:    logging.ForSession("agentcli", sessionID),
		events: make(chan Event, 64),
		exit:   make(chan ExitInfo, 1),
	}
}

// Events returns the channel of decoded stdout lines.
func (a *Adapter) Events() <-chan Event { return a.events }

// Exit returns a one-shot channel signaled when the subprocess terminates.
func (a *Adapter) Exit() <-chan ExitInfo { return a.exit }

// Start spawns the subprocess and begins reading its stdout.
func (a *Adapter) Start(ctx context.Context, spawn Spawn) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.running {
		return fmt.Errorf("agentcli: already running")
	}

	cmd := exec.CommandContext(ctx, spawn.BinaryPath, spawn.args()...)
	cmd.Dir = spawn.WorkingDir
	cmd.Env = os.Environ()
	for k, v := range spawn.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}
	// Put the child in its own process group so Interrupt/Kill can signal
	// the whole tree, not just the immediate process.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("agentcli: stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("agentcli: stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("agentcli: stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("agentcli: start: %w", err)
	}

	a.cmd = cmd
	a.stdin = stdin
	a.running = true

	go a.readLoop(bufio.NewReaderSize(stdout, 64*1024))
	go a.drainStderr(stderr)
	go a.waitLoop()

	a.log.Info().Str("binary", spawn.BinaryPath).Str("workingDir", spawn.WorkingDir).Msg("agent subprocess started")
	return nil
}

func (a *Adapter) readLoop(r *bufio.Reader) {
	for {
		line, err := r.ReadBytes('\n')
		if len(line) > 0 {
			trimmed := trimNewline(line)
			if len(trimmed) == 0 {
				// nothing
			} else {
				var discrim struct {
					Type string `json:"type"`
				}
				if jsonErr := json.Unmarshal(trimmed, &discrim); jsonErr != nil {
					a.log.Warn().Err(jsonErr).Msg("malformed JSON on agent stdout, skipping line")
				} else {
					a.events <- Event{Type: discrim.Type, Raw: json.RawMessage(append([]byte(nil), trimmed...))}
				}
			}
		}
		if err != nil {
			if err != io.EOF {
				a.log.Warn().Err(err).Msg("agent stdout read error")
			}
			return
		}
	}
}

func (a *Adapter) drainStderr(r io.ReadCloser) {
	defer r.Close()
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), 1<<20)
	for scanner.Scan() {
		a.log.Debug().Str("stderr", scanner.Text()).Msg("agent stderr")
	}
}

func (a *Adapter) waitLoop() {
	err := a.cmd.Wait()
	code := 0
	if a.cmd.ProcessState != nil {
		code = a.cmd.ProcessState.ExitCode()
	}

	a.mu.Lock()
	forced := !a.running // already marked not-running by Kill
	a.running = false
	a.mu.Unlock()

	close(a.events)
	a.exit <- ExitInfo{Code: code, Err: err, Forced: forced}
	close(a.exit)
}

func trimNewline(b []byte) []byte {
	n := len(b)
	for n > 0 && (b[n-1] == '\n' || b[n-1] == '\r') {
		n--
	}
	return b[:n]
}

// userMessage / toolResult mirror the wire shapes from spec §4.C3.
type userMessage struct {
	Type    string  `json:"type"`
	Message message `json:"message"`
}

type message struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type toolResultBlock struct {
	Type      string `json:"type"`
	ToolUseID string `json:"tool_use_id"`
	Content   any    `json:"content"`
}

// SendMessage writes a plain-text user message.
func (a *Adapter) SendMessage(text string) error {
	return a.write(userMessage{Type: "user", Message: message{Role: "user", Content: text}})
}

// ContentBlock is one element of a multi-part user message (e.g. text +
// embedded image).
type ContentBlock struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	Source   any    `json:"source,omitempty"`
}

// SendMessageBlocks writes a multi-block user message (used for image
// attachments downloaded from chat).
func (a *Adapter) SendMessageBlocks(blocks []ContentBlock) error {
	return a.write(userMessage{Type: "user", Message: message{Role: "user", Content: blocks}})
}

// SendToolResult answers a pending tool_use with its result payload.
func (a *Adapter) SendToolResult(toolUseID string, payload any) error {
	return a.write(userMessage{
		Type: "user",
		Message: message{
			Role:    "user",
			Content: []toolResultBlock{{Type: "tool_result", ToolUseID: toolUseID, Content: payload}},
		},
	})
}

func (a *Adapter) write(v any) error {
	a.mu.Lock()
	stdin := a.stdin
	running := a.running
	a.mu.Unlock()

	if !running || stdin == nil {
		return fmt.Errorf("agentcli: not running")
	}

	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	data = append(data, '\n')
	_, err = stdin.Write(data)
	return err
}

// IsRunning reports whether the subprocess is currently alive.
func (a *Adapter) IsRunning() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.running
}

// Interrupt sends SIGINT to the process group, stopping the current turn
// without tearing the subprocess down.
func (a *Adapter) Interrupt() error {
	a.mu.Lock()
	cmd := a.cmd
	running := a.running
	a.mu.Unlock()

	if !running || cmd == nil || cmd.Process == nil {
		return nil
	}
	a.log.Info().Msg("interrupting agent subprocess")
	return syscall.Kill(-cmd.Process.Pid, syscall.SIGINT)
}

// Kill terminates the subprocess, escalating to SIGKILL if it does not exit
// within the grace period.
func (a *Adapter) Kill() error {
	a.mu.Lock()
	cmd := a.cmd
	running := a.running
	if running {
		a.running = false
	}
	a.mu.Unlock()

	if !running || cmd == nil || cmd.Process == nil {
		return nil
	}

	a.log.Info().Msg("killing agent subprocess")
	_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGTERM)

	// waitLoop (started in Start) owns the only legitimate cmd.Wait() call
	// and signals a.exit when it returns; cmd.Wait is documented to error
	// if called a second time, so Kill waits on that channel instead of
	// its own cmd.Wait().
	select {
	case <-a.exit:
	case <-time.After(5 * time.Second):
		_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	return nil
}
