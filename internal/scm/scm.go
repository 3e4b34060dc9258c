// Package scm abstracts operations on various tools like git
// Currently, only git is supported.

// Adapted from https://github.com/thought-machine/please/tree/master/src/scm
// Copyright Thought Machine, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0
package scm

import (
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/cargoworks/cargo/internal/fs"
	"github.com/cargoworks/cargo/internal/turbopath"
)

var ErrFallback = errors.New("cannot find a .git folder. Falling back to manual file hashing (which may be slower). If you are running this build in a pruned directory, you can ignore this message. Otherwise, please initialize a git repository in the root of your monorepo")

// An SCM represents an SCM implementation that we can ask for various things.
type SCM interface {
	// ChangedFiles returns a list of modified files since the given commit, including untracked files, relative to relativeTo.
	ChangedFiles(fromCommit string, toCommit string, relativeTo string) ([]string, error)
}

// New returns a new SCM instance for this repo root.
// It returns nil if there is no known implementation there.
func New(repoRoot turbopath.AbsoluteSystemPath) SCM {
	if fs.PathExists(filepath.Join(repoRoot.ToString(), ".git")) {
		return &git{repoRoot: repoRoot}
	}
	return nil
}

// NewFallback returns a new SCM instance for this repo root.
// If there is no known implementation it returns a stub.
func NewFallback(repoRoot turbopath.AbsoluteSystemPath) (SCM, error) {
	if scm := New(repoRoot); scm != nil {
		return scm, nil
	}

	return &stub{}, ErrFallback
}

// FromInRepo locates the repo root by walking up from cwd looking for a .git
// directory, and returns an SCM rooted there.
func FromInRepo(cwd turbopath.AbsoluteSystemPath) (SCM, error) {
	dotGitDir, err := turbopath.FindupFrom(".git", cwd.ToString())
	if err != nil {
		return nil, err
	}
	repoRoot, err := turbopath.CheckedToAbsoluteSystemPath(filepath.Dir(dotGitDir))
	if err != nil {
		return nil, err
	}
	return NewFallback(repoRoot)
}
