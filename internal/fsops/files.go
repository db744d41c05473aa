package fsops

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/siriusu/siriusu/internal/apperr"
	"github.com/siriusu/siriusu/internal/sandbox"
)

// Files performs filesystem operations on raw path strings, passing every
// path through a sandbox.Guard first. Files holds no mutable state, so
// concurrent calls are independent.
type Files struct {
	guard  *sandbox.Guard
	copier *Copier
}

// NewFiles returns a Files bound to guard.
func NewFiles(guard *sandbox.Guard) *Files {
	return &Files{guard: guard, copier: NewCopier()}
}

// Root returns the sandbox root.
func (f *Files) Root() string { return f.guard.Root() }

// SandboxEnabled reports whether paths are confined to Root.
func (f *Files) SandboxEnabled() bool { return f.guard.Enabled() }

// Resolve returns the canonical absolute form of path.
func (f *Files) Resolve(path string) (string, error) {
	return f.guard.Resolve(path)
}

// ReadFile returns the contents of the file at path.
func (f *Files) ReadFile(path string) ([]byte, error) {
	resolved, err := f.guard.Resolve(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(resolved)
	if err != nil {
		return nil, apperr.New(apperr.IoError, "read", resolved, err)
	}
	return data, nil
}

// WriteFile writes data to path, creating parent directories as needed and
// replacing any existing file.
func (f *Files) WriteFile(path string, data []byte) error {
	resolved, err := f.guard.ResolveTarget(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return apperr.New(apperr.IoError, "write", filepath.Dir(resolved), err)
	}
	if err := os.WriteFile(resolved, data, 0o644); err != nil {
		return apperr.New(apperr.IoError, "write", resolved, err)
	}
	return nil
}

// DeleteFile removes the file at path. Directories are refused; use RemoveDir.
func (f *Files) DeleteFile(path string) error {
	resolved, err := f.guard.Resolve(path)
	if err != nil {
		return err
	}
	info, err := os.Lstat(resolved)
	if err != nil {
		return apperr.New(apperr.IoError, "delete", resolved, err)
	}
	if info.IsDir() {
		return apperr.New(apperr.IoError, "delete", resolved, errors.New("is a directory"))
	}
	if err := os.Remove(resolved); err != nil {
		return apperr.New(apperr.IoError, "delete", resolved, err)
	}
	return nil
}

// Exists reports whether path resolves to an existing entry. Paths that
// cannot be resolved report false; paths outside the sandbox are an error.
func (f *Files) Exists(path string) (bool, error) {
	_, err := f.stat(path)
	if apperr.IsKind(err, apperr.InvalidPath) {
		return false, nil
	}
	return err == nil, err
}

// IsFile reports whether path resolves to a regular file.
func (f *Files) IsFile(path string) (bool, error) {
	info, err := f.stat(path)
	if apperr.IsKind(err, apperr.InvalidPath) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return info.Mode().IsRegular(), nil
}

// IsDir reports whether path resolves to a directory.
func (f *Files) IsDir(path string) (bool, error) {
	info, err := f.stat(path)
	if apperr.IsKind(err, apperr.InvalidPath) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return info.IsDir(), nil
}

// Mkdir creates the directory at path along with any missing ancestors.
func (f *Files) Mkdir(path string) error {
	resolved, err := f.guard.ResolveTarget(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(resolved, 0o755); err != nil {
		return apperr.New(apperr.IoError, "mkdir", resolved, err)
	}
	return nil
}

// List returns the names of the immediate entries of the directory at path,
// sorted by name.
func (f *Files) List(path string) ([]string, error) {
	resolved, err := f.guard.Resolve(path)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(resolved)
	if err != nil {
		return nil, apperr.New(apperr.IoError, "list", resolved, err)
	}
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name()
	}
	return names, nil
}

// RemoveDir removes the directory at path and everything beneath it. The
// sandbox root itself cannot be removed.
func (f *Files) RemoveDir(path string) error {
	resolved, err := f.guard.Resolve(path)
	if err != nil {
		return err
	}
	if resolved == f.guard.Root() {
		return apperr.New(apperr.InvalidRequest, "rmdir", resolved, errors.New("refusing to remove the sandbox root"))
	}
	info, err := os.Lstat(resolved)
	if err != nil {
		return apperr.New(apperr.IoError, "rmdir", resolved, err)
	}
	if !info.IsDir() {
		return apperr.New(apperr.IoError, "rmdir", resolved, errors.New("not a directory"))
	}
	if err := os.RemoveAll(resolved); err != nil {
		return apperr.New(apperr.IoError, "rmdir", resolved, err)
	}
	return nil
}

// Copy copies the file or directory tree at src to dest.
func (f *Files) Copy(src, dest string) error {
	from, err := f.guard.Resolve(src)
	if err != nil {
		return fmt.Errorf("copy source: %w", err)
	}
	to, err := f.guard.ResolveTarget(dest)
	if err != nil {
		return fmt.Errorf("copy destination: %w", err)
	}
	return f.copier.Copy(from, to)
}

func (f *Files) stat(path string) (os.FileInfo, error) {
	resolved, err := f.guard.Resolve(path)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(resolved)
	if err != nil {
		return nil, apperr.New(apperr.IoError, "stat", resolved, err)
	}
	return info, nil
}
