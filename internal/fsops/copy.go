// Package fsops implements the filesystem operations exposed to the route
// layer, including recursive copy.
package fsops

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/siriusu/siriusu/internal/apperr"
	"github.com/siriusu/siriusu/internal/sandbox"
)

// copyTask is one pending (source, destination) pair.
type copyTask struct {
	src  string
	dest string
}

// Copier copies files and directory trees. The zero value is not usable;
// construct one with NewCopier.
type Copier struct {
	open func(name string) (*os.File, error)
}

// NewCopier returns a Copier that reads through the real filesystem.
func NewCopier() *Copier {
	return &Copier{open: os.Open}
}

// Copy copies src to dest. A regular file is written to dest, replacing any
// existing file and creating missing parent directories. A directory is
// recreated at dest and its entries copied depth-first in lexical order.
// Symlinks, devices, sockets and other special entries fail with
// UnsupportedSourceType.
//
// Copy stops at the first error and leaves everything copied so far in
// place. src and dest must not contain one another.
func (c *Copier) Copy(src, dest string) error {
	src = filepath.Clean(src)
	dest = filepath.Clean(dest)
	if sandbox.Within(src, dest) || sandbox.Within(dest, src) {
		return apperr.New(apperr.OverlappingPaths, "copy", dest,
			fmt.Errorf("source %s and destination overlap", src))
	}

	pending := []copyTask{{src: src, dest: dest}}
	for len(pending) > 0 {
		task := pending[len(pending)-1]
		pending = pending[:len(pending)-1]

		info, err := os.Lstat(task.src)
		if err != nil {
			return apperr.New(apperr.SourceMissing, "copy", task.src, err)
		}

		switch {
		case info.Mode().IsRegular():
			if err := c.copyFile(task.src, task.dest); err != nil {
				return err
			}

		case info.IsDir():
			if err := os.MkdirAll(task.dest, 0o755); err != nil {
				return apperr.New(apperr.IoError, "copy", task.dest, err)
			}
			// ReadDir sorts by name; push in reverse so entries pop in order.
			entries, err := os.ReadDir(task.src)
			if err != nil {
				return apperr.New(apperr.IoError, "copy", task.src, err)
			}
			for i := len(entries) - 1; i >= 0; i-- {
				name := entries[i].Name()
				pending = append(pending, copyTask{
					src:  filepath.Join(task.src, name),
					dest: filepath.Join(task.dest, name),
				})
			}

		default:
			return apperr.New(apperr.UnsupportedSourceType, "copy", task.src,
				fmt.Errorf("file mode %s", info.Mode().Type()))
		}
	}
	return nil
}

func (c *Copier) copyFile(src, dest string) (err error) {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return apperr.New(apperr.IoError, "copy", filepath.Dir(dest), err)
	}

	in, err := c.open(src)
	if err != nil {
		return apperr.New(apperr.IoError, "copy", src, err)
	}
	defer func() { _ = in.Close() }()

	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return apperr.New(apperr.IoError, "copy", dest, err)
	}
	defer func() {
		if cerr := out.Close(); cerr != nil && err == nil {
			err = apperr.New(apperr.IoError, "copy", dest, cerr)
		}
	}()

	if _, err := io.Copy(out, in); err != nil {
		var pathErr *os.PathError
		if errors.As(err, &pathErr) {
			return apperr.New(apperr.IoError, "copy", pathErr.Path, pathErr.Err)
		}
		return apperr.New(apperr.IoError, "copy", src, err)
	}
	return nil
}
