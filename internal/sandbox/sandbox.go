// Package sandbox confines user-supplied filesystem paths to a root directory.
package sandbox

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/siriusu/siriusu/internal/apperr"
)

// Guard resolves path strings to canonical absolute paths and rejects any
// that fall outside its root. A Guard is immutable and safe for concurrent use.
//
// Symlink swaps between Resolve and the caller's subsequent use of the path
// are not detected.
type Guard struct {
	root    string
	enabled bool
}

// NewGuard returns a Guard rooted at root. The root is canonicalized once
// here and must name an existing directory. When enabled is false, paths
// are still canonicalized but never rejected for leaving the root.
func NewGuard(root string, enabled bool) (*Guard, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("sandbox root %q: %w", root, err)
	}
	canonical, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("sandbox root %q: %w", root, err)
	}
	info, err := os.Stat(canonical)
	if err != nil {
		return nil, fmt.Errorf("sandbox root %q: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("sandbox root %q is not a directory", root)
	}
	return &Guard{root: canonical, enabled: enabled}, nil
}

// Root returns the canonical sandbox root.
func (g *Guard) Root() string { return g.root }

// Enabled reports whether containment is enforced.
func (g *Guard) Enabled() bool { return g.enabled }

// Resolve canonicalizes candidate, following symlinks and collapsing "." and
// ".." segments. Relative candidates are taken relative to the root. The path
// must exist. The result is always absolute and, when the guard is enabled,
// equal to or beneath the root.
func (g *Guard) Resolve(candidate string) (string, error) {
	abs, err := g.absolute(candidate)
	if err != nil {
		return "", err
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", apperr.New(apperr.InvalidPath, "resolve", candidate, err)
	}
	if err := g.check(candidate, resolved); err != nil {
		return "", err
	}
	return resolved, nil
}

// ResolveTarget is Resolve for paths that are about to be created. Components
// are resolved one at a time from the filesystem root, so ".." is applied to
// the canonical parent and never collapsed lexically through a symlink. Once
// a component does not exist, the rest is appended as-is; a ".." there, or a
// missing component that is actually a dangling symlink, is rejected.
func (g *Guard) ResolveTarget(candidate string) (string, error) {
	abs, err := g.absolute(candidate)
	if err != nil {
		return "", err
	}

	vol := filepath.VolumeName(abs)
	resolved := vol + string(filepath.Separator)
	missing := false
	for _, part := range strings.Split(abs[len(vol):], string(filepath.Separator)) {
		switch {
		case part == "" || part == ".":
			continue
		case part == "..":
			if missing {
				return "", apperr.New(apperr.InvalidPath, "resolve", candidate,
					errors.New("\"..\" follows a component that does not exist"))
			}
			resolved = filepath.Dir(resolved)
			continue
		case missing:
			resolved = filepath.Join(resolved, part)
			continue
		}

		next := filepath.Join(resolved, part)
		canonical, err := filepath.EvalSymlinks(next)
		if err == nil {
			resolved = canonical
			continue
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", apperr.New(apperr.InvalidPath, "resolve", candidate, err)
		}
		if _, lerr := os.Lstat(next); lerr == nil {
			return "", apperr.New(apperr.InvalidPath, "resolve", candidate,
				fmt.Errorf("%s is a dangling symlink", next))
		}
		missing = true
		resolved = next
	}

	if err := g.check(candidate, resolved); err != nil {
		return "", err
	}
	return resolved, nil
}

// Contains reports whether the canonical path p is the root or beneath it.
func (g *Guard) Contains(p string) bool {
	return Within(g.root, p)
}

func (g *Guard) absolute(candidate string) (string, error) {
	if strings.ContainsRune(candidate, '\x00') {
		return "", apperr.New(apperr.InvalidPath, "resolve", strings.ReplaceAll(candidate, "\x00", ""),
			errors.New("path contains a null byte"))
	}
	if candidate == "" {
		return g.root, nil
	}
	if filepath.IsAbs(candidate) {
		return candidate, nil
	}
	// Not filepath.Join: cleaning before symlink resolution would collapse
	// "link/.." lexically instead of through the link target.
	return g.root + string(filepath.Separator) + candidate, nil
}

func (g *Guard) check(candidate, resolved string) error {
	if g.enabled && !Within(g.root, resolved) {
		return apperr.New(apperr.PathEscapesSandbox, "resolve", candidate,
			fmt.Errorf("%s is outside %s", resolved, g.root))
	}
	return nil
}

// Within reports whether p equals root or has root as a proper ancestor.
// Both arguments must be clean absolute paths.
func Within(root, p string) bool {
	if p == root {
		return true
	}
	if root == string(filepath.Separator) {
		return strings.HasPrefix(p, root)
	}
	return strings.HasPrefix(p, root+string(filepath.Separator))
}
