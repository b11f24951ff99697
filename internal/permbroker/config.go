package permbroker

import (
	"fmt"
	"os"
	"strings"
)

// Config is read entirely from the environment the agent CLI sets when it
// spawns the broker, per spec.md §6's "Permission broker RPC" entry.
type Config struct {
	PlatformType  string
	PlatformURL   string
	PlatformToken string
	ChannelID     string
	ThreadID      string
	AllowedUsers  map[string]bool
	Debug         bool
}

// LoadConfigFromEnv builds a Config from PLATFORM_TYPE, PLATFORM_URL,
// PLATFORM_TOKEN, PLATFORM_CHANNEL_ID, PLATFORM_THREAD_ID, ALLOWED_USERS
// (comma-separated), and DEBUG.
func LoadConfigFromEnv() (Config, error) {
	cfg := Config{
		PlatformType:  os.Getenv("PLATFORM_TYPE"),
		PlatformURL:   os.Getenv("PLATFORM_URL"),
		PlatformToken: os.Getenv("PLATFORM_TOKEN"),
		ChannelID:     os.Getenv("PLATFORM_CHANNEL_ID"),
		ThreadID:      os.Getenv("PLATFORM_THREAD_ID"),
		AllowedUsers:  map[string]bool{},
		Debug:         os.Getenv("DEBUG") != "",
	}

	for _, u := range strings.Split(os.Getenv("ALLOWED_USERS"), ",") {
		u = strings.TrimSpace(u)
		if u != "" {
			cfg.AllowedUsers[u] = true
		}
	}

	if cfg.PlatformType == "" || cfg.PlatformURL == "" || cfg.ThreadID == "" {
		return cfg, fmt.Errorf("permbroker: PLATFORM_TYPE, PLATFORM_URL and PLATFORM_THREAD_ID are required")
	}
	return cfg, nil
}
