package fs

import (
	"github.com/adrg/xdg"
	"github.com/cargoworks/cargo/internal/turbopath"
)

// GetUserConfigDir returns the platform-specific directory where cargo
// stores user-level (non-repo-specific) configuration.
func GetUserConfigDir() turbopath.AbsoluteSystemPath {
	configHome := turbopath.AbsoluteSystemPathFromUpstream(xdg.ConfigHome)
	return configHome.UntypedJoin("turborepo")
}
