package turbopath

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/pflag"
)

// UnsafeToAbsoluteSystemPath directly converts a string to an AbsoluteSystemPath without
// checking that it is actually an absolute path. Callers must have already verified this.
func UnsafeToAbsoluteSystemPath(s string) AbsoluteSystemPath {
	return AbsoluteSystemPath(s)
}

// CheckedToAbsoluteSystemPath verifies that the given string is an absolute path before
// converting it to an AbsoluteSystemPath.
func CheckedToAbsoluteSystemPath(s string) (AbsoluteSystemPath, error) {
	if filepath.IsAbs(s) {
		return AbsoluteSystemPath(s), nil
	}
	return "", fmt.Errorf("Path is not absolute: %v", s)
}

// UntypedJoin appends path segments, given as plain strings, to this AbsoluteSystemPath.
func (p AbsoluteSystemPath) UntypedJoin(args ...string) AbsoluteSystemPath {
	return AbsoluteSystemPath(filepath.Join(p.ToString(), filepath.Join(args...)))
}

// ToStringDuringMigration returns the string value of this path, for use in
// codepaths that have not yet been converted to use AbsoluteSystemPath end-to-end.
func (p AbsoluteSystemPath) ToStringDuringMigration() string {
	return p.ToString()
}

// Findup walks up from p, inclusive, looking for an entry named fileName.
// It returns the absolute path to the first match, or a wrapped os.ErrNotExist
// once it reaches the filesystem root without finding one.
func (p AbsoluteSystemPath) Findup(fileName RelativeSystemPath) (AbsoluteSystemPath, error) {
	dir := p
	for {
		candidate := dir.UntypedJoin(fileName.ToString())
		if candidate.Exists() {
			return candidate, nil
		}
		parent := dir.Dir()
		if parent == dir {
			return "", fmt.Errorf("%s: %w", fileName, os.ErrNotExist)
		}
		dir = parent
	}
}

// Dir returns the directory containing this path.
func (p AbsoluteSystemPath) Dir() AbsoluteSystemPath {
	return AbsoluteSystemPath(filepath.Dir(p.ToString()))
}

// Base returns the last element of this path.
func (p AbsoluteSystemPath) Base() string {
	return filepath.Base(p.ToString())
}

// Ext returns this path's file extension.
func (p AbsoluteSystemPath) Ext() string {
	return filepath.Ext(p.ToString())
}

// Lstat is the AbsoluteSystemPath wrapper for os.Lstat.
func (p AbsoluteSystemPath) Lstat() (fs.FileInfo, error) {
	return os.Lstat(p.ToString())
}

// Stat is the AbsoluteSystemPath wrapper for os.Stat.
func (p AbsoluteSystemPath) Stat() (fs.FileInfo, error) {
	return os.Stat(p.ToString())
}

// FileExists returns true if the path exists and is not a directory.
func (p AbsoluteSystemPath) FileExists() bool {
	info, err := p.Lstat()
	return err == nil && !info.IsDir()
}

// DirExists returns true if the path exists and is a directory.
func (p AbsoluteSystemPath) DirExists() bool {
	info, err := p.Lstat()
	return err == nil && info.IsDir()
}

// Exists returns true if the path exists, as either a file or a directory.
func (p AbsoluteSystemPath) Exists() bool {
	_, err := p.Lstat()
	return err == nil
}

// Create is the AbsoluteSystemPath wrapper for os.Create.
func (p AbsoluteSystemPath) Create() (*os.File, error) {
	return os.Create(p.ToString())
}

// Open is the AbsoluteSystemPath wrapper for os.Open.
func (p AbsoluteSystemPath) Open() (*os.File, error) {
	return os.Open(p.ToString())
}

// OpenFile is the AbsoluteSystemPath wrapper for os.OpenFile.
func (p AbsoluteSystemPath) OpenFile(flag int, perm os.FileMode) (*os.File, error) {
	return os.OpenFile(p.ToString(), flag, perm)
}

// ReadFile reads the contents of the file at this path.
func (p AbsoluteSystemPath) ReadFile() ([]byte, error) {
	return os.ReadFile(p.ToString())
}

// WriteFile writes the given contents to this path.
func (p AbsoluteSystemPath) WriteFile(contents []byte, mode os.FileMode) error {
	return os.WriteFile(p.ToString(), contents, mode)
}

// Remove removes the file or empty directory at this path.
func (p AbsoluteSystemPath) Remove() error {
	return os.Remove(p.ToString())
}

// RemoveAll removes the path and any children it contains.
func (p AbsoluteSystemPath) RemoveAll() error {
	return os.RemoveAll(p.ToString())
}

// MkdirAll creates this path, and any parents that are missing, as directories.
func (p AbsoluteSystemPath) MkdirAll(mode os.FileMode) error {
	return os.MkdirAll(p.ToString(), mode)
}

// EnsureDir ensures that the directory containing this path has been created.
func (p AbsoluteSystemPath) EnsureDir() error {
	return EnsureDir(p.ToString())
}

// Symlink is the AbsoluteSystemPath wrapper for os.Symlink. target is used verbatim,
// it is not resolved relative to p.
func (p AbsoluteSystemPath) Symlink(target string) error {
	return os.Symlink(target, p.ToString())
}

// Readlink is the AbsoluteSystemPath wrapper for os.Readlink.
func (p AbsoluteSystemPath) Readlink() (string, error) {
	return os.Readlink(p.ToString())
}

// Link creates a hard link at p pointing at the existing file target.
func (p AbsoluteSystemPath) Link(target string) error {
	return os.Link(p.ToString(), target)
}

// Chmod is the AbsoluteSystemPath wrapper for os.Chmod.
func (p AbsoluteSystemPath) Chmod(mode os.FileMode) error {
	return os.Chmod(p.ToString(), mode)
}

// Glob returns the paths matching the given pattern, rooted at this path.
func (p AbsoluteSystemPath) Glob(pattern string) ([]string, error) {
	return filepath.Glob(filepath.Join(p.ToString(), pattern))
}

// EvalSymlinks returns p with any symlink elements resolved.
func (p AbsoluteSystemPath) EvalSymlinks() (AbsoluteSystemPath, error) {
	resolved, err := filepath.EvalSymlinks(p.ToString())
	if err != nil {
		return "", err
	}
	return AbsoluteSystemPath(resolved), nil
}

// GetCwd returns the current working directory, with symlinks resolved.
func GetCwd() (AbsoluteSystemPath, error) {
	cwdRaw, err := os.Getwd()
	if err != nil {
		return "", err
	}
	cwd, err := CheckedToAbsoluteSystemPath(cwdRaw)
	if err != nil {
		return "", fmt.Errorf("cwd is not an absolute path %v: %v", cwdRaw, err)
	}
	return cwd.EvalSymlinks()
}

// ResolveUnknownPath returns unknown if it is an absolute path, otherwise it
// assumes unknown is a path relative to the given root.
func ResolveUnknownPath(root AbsoluteSystemPath, unknown string) AbsoluteSystemPath {
	if filepath.IsAbs(unknown) {
		return AbsoluteSystemPath(unknown)
	}
	return root.UntypedJoin(unknown)
}

type pathValue struct {
	base     AbsoluteSystemPath
	current  *AbsoluteSystemPath
	defValue string
}

func (pv *pathValue) String() string {
	if *pv.current == "" {
		return ResolveUnknownPath(pv.base, pv.defValue).ToString()
	}
	return pv.current.ToString()
}

func (pv *pathValue) Set(value string) error {
	*pv.current = ResolveUnknownPath(pv.base, value)
	return nil
}

func (pv *pathValue) Type() string {
	return "path"
}

var _ pflag.Value = &pathValue{}

// AbsoluteSystemPathVar registers a pflag that resolves relative to root into an AbsoluteSystemPath.
func AbsoluteSystemPathVar(flags *pflag.FlagSet, target *AbsoluteSystemPath, name string, root AbsoluteSystemPath, usage string, defValue string) {
	value := &pathValue{
		base:     root,
		current:  target,
		defValue: defValue,
	}
	flags.Var(value, name, usage)
}

// EnsureDir ensures that the directory of the given file has been created.
func EnsureDir(filename string) error {
	dir := filepath.Dir(filename)
	return os.MkdirAll(dir, os.ModeDir|0775)
}
