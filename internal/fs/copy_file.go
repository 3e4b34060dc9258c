// Adapted from https://github.com/thought-machine/please
// Copyright Thought Machine, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0
package fs

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/karrick/godirwalk"
)

// openFileMaxAttempts bounds how many times we'll try an open that fails with
// EMFILE before giving up and surfacing the error to the caller.
const openFileMaxAttempts = 10

// openFileWithRetry opens a file, retrying with exponential backoff if the
// open fails because the process has hit its open file descriptor limit.
// Prune and cache restore can copy thousands of files in a tight loop, and
// on some platforms (and ulimit configurations) that's enough to transiently
// exhaust descriptors mid-walk even though the process isn't actually leaking
// them; a short backoff lets the OS reclaim descriptors closed by other
// goroutines without failing the whole copy.
func openFileWithRetry(open func() (*os.File, error)) (*os.File, error) {
	var file *os.File
	operation := func() error {
		f, err := open()
		if err != nil {
			if errors.Is(err, syscall.EMFILE) {
				return err
			}
			return backoff.Permanent(err)
		}
		file = f
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 10 * time.Millisecond
	policy.Multiplier = 2
	policy.MaxInterval = time.Second
	policy.MaxElapsedTime = 0

	if err := backoff.Retry(operation, backoff.WithMaxRetries(policy, openFileMaxAttempts-1)); err != nil {
		return nil, err
	}
	return file, nil
}

// CopyFile copies the contents of the file at from to the path to, preserving its mode.
// If from is a symlink (even a broken one), an equivalent symlink is created at to instead
// of copying the link's contents.
func CopyFile(from *LstatCachedFile, to string) error {
	fromMode, err := from.GetMode()
	if err != nil {
		return err
	}
	if (fromMode & os.ModeSymlink) != 0 {
		dest, err := from.Path.Readlink()
		if err != nil {
			return err
		}
		if err := os.Remove(to); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
		return os.Symlink(dest, to)
	}

	fromFile, err := openFileWithRetry(func() (*os.File, error) {
		return os.Open(from.Path.ToString())
	})
	if err != nil {
		return err
	}
	defer fromFile.Close()

	if dir := filepath.Dir(to); dir != "" {
		if err := os.MkdirAll(dir, DirPermissions); err != nil {
			return err
		}
	}

	toFile, err := openFileWithRetry(func() (*os.File, error) {
		return os.OpenFile(to, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, fromMode.Perm())
	})
	if err != nil {
		return err
	}
	if _, err := io.Copy(toFile, fromFile); err != nil {
		toFile.Close()
		os.Remove(to)
		return err
	}
	return toFile.Close()
}

// CopyOrLinkFile either copies or hardlinks a file based on the link argument.
// Falls back to a copy if link fails and fallback is true.
func CopyOrLinkFile(from *LstatCachedFile, to string, link bool, fallback bool) error {
	fromMode, err := from.GetMode()
	if err != nil {
		return err
	}
	if (fromMode & os.ModeSymlink) != 0 {
		// Create an equivalent symlink in the new location.
		dest, err := from.Path.Readlink()
		if err != nil {
			return err
		}
		// Make sure the link we're about to create doesn't already exist
		if err := os.Remove(to); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
		return os.Symlink(dest, to)
	}
	if link {
		if err := from.Path.Link(to); err == nil || !fallback {
			return err
		}
	}
	return CopyFile(from, to)
}

// Walk implements an equivalent to filepath.Walk.
// It's implemented over github.com/karrick/godirwalk but the provided interface doesn't use that
// to make it a little easier to handle.
func Walk(rootPath string, callback func(name string, isDir bool) error) error {
	return WalkMode(rootPath, func(name string, isDir bool, mode os.FileMode) error {
		return callback(name, isDir)
	})
}

// WalkMode is like Walk but the callback receives an additional type specifying the file mode type.
// N.B. This only includes the bits of the mode that determine the mode type, not the permissions.
func WalkMode(rootPath string, callback func(name string, isDir bool, mode os.FileMode) error) error {
	return godirwalk.Walk(rootPath, &godirwalk.Options{
		Callback: func(name string, info *godirwalk.Dirent) error {
			// currently we support symlinked files, but not symlinked directories:
			// For copying, we Mkdir and bail if we encounter a symlink to a directoy
			// For finding packages, we enumerate the symlink, but don't follow inside
			isDir, err := info.IsDirOrSymlinkToDir()
			if err != nil {
				pathErr := &os.PathError{}
				if errors.As(err, &pathErr) {
					// If we have a broken link, skip this entry
					return godirwalk.SkipThis
				}
				return err
			}
			return callback(name, isDir, info.ModeType())
		},
		ErrorCallback: func(pathname string, err error) godirwalk.ErrorAction {
			pathErr := &os.PathError{}
			if errors.As(err, &pathErr) {
				return godirwalk.SkipNode
			}
			return godirwalk.Halt
		},
		Unsorted:            true,
		AllowNonDirectory:   true,
		FollowSymbolicLinks: false,
	})
}

// SameFile returns true if the two given paths refer to the same physical
// file on disk, using the unique file identifiers from the underlying
// operating system. For example, on Unix systems this checks whether the
// two files are on the same device and have the same inode.
func SameFile(a string, b string) (bool, error) {
	if a == b {
		return true, nil
	}

	aInfo, err := os.Lstat(a)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}

	bInfo, err := os.Lstat(b)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}

	return os.SameFile(aInfo, bInfo), nil
}
