package vcsworktree

import (
	"fmt"
	"strings"
)

// ValidateBranchName applies the posix git-check-ref-format rules by hand:
// no ASCII control characters, space, ~^:?*[, no "..", no leading/trailing
// "/" or ".", no trailing ".lock", no consecutive slashes, not "@", no "@{".
func ValidateBranchName(name string) error {
	if name == "" {
		return fmt.Errorf("vcsworktree: branch name must not be empty")
	}
	if name == "@" {
		return fmt.Errorf("vcsworktree: branch name must not be %q", name)
	}
	if strings.Contains(name, "..") || strings.Contains(name, "@{") || strings.Contains(name, "//") {
		return fmt.Errorf("vcsworktree: branch name %q contains a forbidden sequence", name)
	}
	if strings.HasPrefix(name, "/") || strings.HasSuffix(name, "/") || strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".") {
		return fmt.Errorf("vcsworktree: branch name %q has a forbidden leading or trailing character", name)
	}
	if strings.HasSuffix(name, ".lock") {
		return fmt.Errorf("vcsworktree: branch name %q must not end in .lock", name)
	}
	for _, r := range name {
		switch {
		case r < 0x20 || r == 0x7f:
			return fmt.Errorf("vcsworktree: branch name %q contains a control character", name)
		case strings.ContainsRune(" ~^:?*[\\", r):
			return fmt.Errorf("vcsworktree: branch name %q contains forbidden character %q", name, r)
		}
	}
	for _, component := range strings.Split(name, "/") {
		if component == "" || component == "." {
			return fmt.Errorf("vcsworktree: branch name %q has an empty or %q path component", name, ".")
		}
	}
	return nil
}
