//go:build rust
// +build rust

package fs

import (
	"github.com/cargoworks/cargo/internal/ffi"
	"github.com/cargoworks/cargo/internal/turbopath"
)

// RecursiveCopy copies either a single file or a directory.
func RecursiveCopy(from turbopath.AbsoluteSystemPath, to turbopath.AbsoluteSystemPath) error {
	return ffi.RecursiveCopy(from.ToString(), to.ToString())
}
