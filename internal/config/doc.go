// Package config loads chatbridge's configuration: platforms, agent CLI
// spawn options, session defaults, storage/logging/worktree/HTTP settings.
//
// Sources are merged in priority order, lowest first:
//
//  1. baked-in defaults
//  2. the global file (~/.config/chatbridge/chatbridge.jsonc)
//  3. the project-local file (<directory>/.chatbridge/chatbridge.jsonc)
//  4. a .env file in directory, loaded via joho/godotenv
//  5. process environment variables (CHATBRIDGE_*), which always win
//
// Config files are JSONC (JSON with // and /* */ comments and trailing
// commas), converted to strict JSON via tidwall/jsonc before unmarshaling.
//
// Paths follow the XDG Base Directory layout; see Paths and GetPaths.
package config
