package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/tidwall/jsonc"
)

// Load loads configuration from multiple sources in priority order:
//  1. baked-in defaults
//  2. global config (~/.config/chatbridge/chatbridge.jsonc)
//  3. project config (<directory>/.chatbridge/chatbridge.jsonc)
//  4. a .env file in directory (if present), then process environment
func Load(directory string) (*Config, error) {
	cfg := defaultConfig()

	if err := loadConfigFile(GlobalConfigPath(), cfg); err != nil {
		return nil, err
	}
	if directory != "" {
		if err := loadConfigFile(ProjectConfigPath(directory), cfg); err != nil {
			return nil, err
		}
	}

	loadDotEnv(directory)
	applyEnvOverrides(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadDotEnv loads a .env file from directory into the process environment,
// without overriding variables already set. A missing file is not an error.
func loadDotEnv(directory string) {
	if directory == "" {
		return
	}
	_ = godotenv.Load(filepath.Join(directory, ".env"))
}

// loadConfigFile reads one JSONC file and merges it into cfg. A missing file
// is not an error; a malformed one is.
func loadConfigFile(path string, cfg *Config) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("config: read %s: %w", path, err)
	}

	var fileCfg Config
	if err := json.Unmarshal(jsonc.ToJSON(raw), &fileCfg); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	mergeConfig(cfg, &fileCfg)
	return nil
}

// mergeConfig overlays non-zero fields of source onto target.
func mergeConfig(target, source *Config) {
	if len(source.Platforms) > 0 {
		target.Platforms = append(target.Platforms, source.Platforms...)
	}
	if source.AgentCLI.BinaryPath != "" {
		target.AgentCLI.BinaryPath = source.AgentCLI.BinaryPath
	}
	if len(source.AgentCLI.ExtraArgs) > 0 {
		target.AgentCLI.ExtraArgs = source.AgentCLI.ExtraArgs
	}
	if source.AgentCLI.AppendSystemPrompt != "" {
		target.AgentCLI.AppendSystemPrompt = source.AgentCLI.AppendSystemPrompt
	}
	if source.AgentCLI.ChromeAutomation {
		target.AgentCLI.ChromeAutomation = true
	}
	if source.SessionDefaults.MaxSessions != 0 {
		target.SessionDefaults.MaxSessions = source.SessionDefaults.MaxSessions
	}
	if source.SessionDefaults.IdleLimit != 0 {
		target.SessionDefaults.IdleLimit = source.SessionDefaults.IdleLimit
	}
	if source.SessionDefaults.Grace != 0 {
		target.SessionDefaults.Grace = source.SessionDefaults.Grace
	}
	if source.SessionDefaults.UpdateCoalesce != 0 {
		target.SessionDefaults.UpdateCoalesce = source.SessionDefaults.UpdateCoalesce
	}
	if source.SessionDefaults.ResumeRetries != 0 {
		target.SessionDefaults.ResumeRetries = source.SessionDefaults.ResumeRetries
	}
	if source.Storage.Path != "" {
		target.Storage.Path = source.Storage.Path
	}
	if source.Logging.Level != "" {
		target.Logging.Level = source.Logging.Level
	}
	if source.Logging.Pretty {
		target.Logging.Pretty = true
	}
	if source.Logging.File != "" {
		target.Logging.File = source.Logging.File
	}
	if source.Worktree.BaseDir != "" {
		target.Worktree.BaseDir = source.Worktree.BaseDir
	}
	if source.HTTP.Addr != "" {
		target.HTTP.Addr = source.HTTP.Addr
	}
}

// applyEnvOverrides applies the highest-precedence environment variable
// overrides, primarily platform secrets that should never live in a
// checked-in config file.
func applyEnvOverrides(cfg *Config) {
	if level := os.Getenv("CHATBRIDGE_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
	if addr := os.Getenv("CHATBRIDGE_HTTP_ADDR"); addr != "" {
		cfg.HTTP.Addr = addr
	}
	if path := os.Getenv("CHATBRIDGE_STORAGE_PATH"); path != "" {
		cfg.Storage.Path = path
	}

	for i := range cfg.Platforms {
		p := &cfg.Platforms[i]
		envKey := "CHATBRIDGE_TOKEN_" + strings.ToUpper(p.PlatformID)
		if tok := os.Getenv(envKey); tok != "" {
			p.Token = tok
		}
	}
}

func (c *Config) validate() error {
	seen := map[string]bool{}
	for _, p := range c.Platforms {
		if p.PlatformID == "" {
			return fmt.Errorf("config: platform entry missing platformId")
		}
		if seen[p.PlatformID] {
			return fmt.Errorf("config: duplicate platformId %q", p.PlatformID)
		}
		seen[p.PlatformID] = true
		if p.URL == "" {
			return fmt.Errorf("config: platform %q missing url", p.PlatformID)
		}
	}
	if c.AgentCLI.BinaryPath == "" {
		return fmt.Errorf("config: agentCLI.binaryPath is required")
	}
	return nil
}

// Save writes cfg as indented JSON to path, creating parent directories.
func Save(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
