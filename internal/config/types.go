package config

import (
	"encoding/json"
	"fmt"
	"time"
)

// Duration wraps time.Duration so config files can write human-readable
// strings ("30m", "90s") instead of raw nanosecond counts.
type Duration time.Duration

func (d Duration) Dur() time.Duration { return time.Duration(d) }

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("config: invalid duration %q: %w", s, err)
		}
		*d = Duration(parsed)
		return nil
	}
	var ns int64
	if err := json.Unmarshal(data, &ns); err != nil {
		return fmt.Errorf("config: duration must be a string or number of nanoseconds: %w", err)
	}
	*d = Duration(ns)
	return nil
}

// PlatformConfig configures one chat backend instance.
type PlatformConfig struct {
	PlatformID   string   `json:"platformId"`
	Kind         string   `json:"kind"` // "mattermost"
	URL          string   `json:"url"`
	Token        string   `json:"token"`
	AllowedUsers []string `json:"allowedUsers"`
}

// AgentCLIConfig configures how the agent subprocess is spawned.
type AgentCLIConfig struct {
	BinaryPath         string   `json:"binaryPath"`
	ExtraArgs          []string `json:"extraArgs"`
	AppendSystemPrompt string   `json:"appendSystemPrompt"`
	ChromeAutomation   bool     `json:"chromeAutomation"`
}

// SessionDefaults configures per-session lifecycle limits.
type SessionDefaults struct {
	MaxSessions    int      `json:"maxSessions"`
	IdleLimit      Duration `json:"idleLimit"`
	Grace          Duration `json:"grace"`
	UpdateCoalesce Duration `json:"updateCoalesce"`
	ResumeRetries  int      `json:"resumeRetries"`
}

// StorageConfig configures the persistence store.
type StorageConfig struct {
	Path string `json:"path"`
}

// LoggingConfig configures internal/logging.
type LoggingConfig struct {
	Level  string `json:"level"`
	Pretty bool   `json:"pretty"`
	File   string `json:"file"`
}

// WorktreeConfig configures internal/vcsworktree.
type WorktreeConfig struct {
	BaseDir string `json:"baseDir"`
}

// HTTPConfig configures internal/httpapi.
type HTTPConfig struct {
	Addr string `json:"addr"`
}

// RenderingConfig configures how internal/eventinterp turns raw tool
// activity into chat posts.
type RenderingConfig struct {
	// MutedDiffPatterns are doublestar glob patterns (e.g. "**/*.lock",
	// "**/dist/**") matched against a tool_result diff's path. A matching
	// file still gets its one-line "+N -M" summary, but the full unified
	// diff body is suppressed, keeping generated/vendored noise out of the
	// thread.
	MutedDiffPatterns []string `json:"mutedDiffPatterns"`
}

// Config is the top-level configuration document, loaded as JSONC with
// environment-variable overrides applied last.
type Config struct {
	Platforms       []PlatformConfig `json:"platforms"`
	AgentCLI        AgentCLIConfig   `json:"agentCLI"`
	SessionDefaults SessionDefaults  `json:"sessionDefaults"`
	Storage         StorageConfig    `json:"storage"`
	Logging         LoggingConfig    `json:"logging"`
	Worktree        WorktreeConfig   `json:"worktree"`
	HTTP            HTTPConfig       `json:"http"`
	Rendering       RenderingConfig  `json:"rendering"`
}

// defaultConfig returns the baseline configuration before any file or
// environment override is applied.
func defaultConfig() *Config {
	return &Config{
		AgentCLI: AgentCLIConfig{BinaryPath: "claude"},
		SessionDefaults: SessionDefaults{
			MaxSessions:    20,
			IdleLimit:      Duration(30 * time.Minute),
			Grace:          Duration(5 * time.Minute),
			UpdateCoalesce: Duration(500 * time.Millisecond),
			ResumeRetries:  3,
		},
		Storage: StorageConfig{Path: GlobalStatePath()},
		Logging: LoggingConfig{Level: "info"},
		Worktree: WorktreeConfig{
			BaseDir: "",
		},
		HTTP: HTTPConfig{Addr: "127.0.0.1:8787"},
		Rendering: RenderingConfig{
			MutedDiffPatterns: []string{"**/*.lock", "**/go.sum"},
		},
	}
}
