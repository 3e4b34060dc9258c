// Package scm abstracts operations on various tools like git
package scm

import (
	"os/exec"
	"strings"

	"github.com/cargoworks/cargo/internal/turbopath"
)

// GetCurrentBranch returns the name of the current git branch checked out in dir.
// Returns an empty string if the branch cannot be determined (e.g. not a git repo).
func GetCurrentBranch(dir turbopath.AbsoluteSystemPath) string {
	cmd := exec.Command("git", "branch", "--show-current")
	cmd.Dir = dir.ToString()
	out, err := cmd.Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}

// GetCurrentSha returns the sha of the current commit checked out in dir.
// Returns an empty string if the sha cannot be determined (e.g. no commits yet).
func GetCurrentSha(dir turbopath.AbsoluteSystemPath) string {
	cmd := exec.Command("git", "rev-parse", "HEAD")
	cmd.Dir = dir.ToString()
	out, err := cmd.Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}
