package chatutil

import (
	"path/filepath"
	"strings"
)

// ShortenPath shortens a file path for display in a permission descriptor or
// tool-result one-liner: paths under the given base directory are
// relativized, and anything still longer than maxLen is abbreviated to
// ".../<tail>" keeping the basename intact.
func ShortenPath(path, baseDir string, maxLen int) string {
	shown := path
	if baseDir != "" {
		if rel, err := filepath.Rel(baseDir, path); err == nil && !strings.HasPrefix(rel, "..") {
			shown = rel
		}
	}
	if maxLen <= 0 || len(shown) <= maxLen {
		return shown
	}

	base := filepath.Base(shown)
	if len(base)+4 >= maxLen {
		// Even the basename doesn't fit; truncate it directly.
		if len(base) > maxLen {
			return base[:maxLen]
		}
		return base
	}
	return ".../" + base
}

// TruncateCommand truncates a shell command string for compact display,
// preferring to cut at a word boundary.
func TruncateCommand(cmd string, maxLen int) string {
	cmd = strings.TrimSpace(cmd)
	if maxLen <= 0 || len(cmd) <= maxLen {
		return cmd
	}
	cut := cmd[:maxLen]
	if idx := strings.LastIndexByte(cut, ' '); idx > maxLen/2 {
		cut = cut[:idx]
	}
	return cut + "…"
}
