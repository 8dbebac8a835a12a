// Package atomicfile writes files through temporary siblings so that a final
// name never holds a partial file.
package atomicfile

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Write creates or replaces path with whatever write produces.
func Write(path string, write func(io.Writer) error) error {
	var s Staging
	defer s.Discard()
	if err := s.Stage(path, write); err != nil {
		return err
	}
	return s.Commit()
}

// WriteBytes is Write for content already in memory.
func WriteBytes(path string, data []byte) error {
	return Write(path, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	})
}

// Staging collects files under temporary names until Commit moves all of
// them into place. Discard removes whatever is still staged.
type Staging struct {
	files []staged
}

type staged struct {
	tmp  string
	path string
}

// Stage writes the content of path to a temporary sibling.
func (s *Staging) Stage(path string, write func(io.Writer) error) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("atomicfile: create %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("atomicfile: create temp for %s: %w", path, err)
	}
	if err := write(tmp); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("atomicfile: write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("atomicfile: write %s: %w", path, err)
	}
	s.files = append(s.files, staged{tmp: tmp.Name(), path: path})
	return nil
}

// Len returns the number of staged files.
func (s *Staging) Len() int {
	return len(s.files)
}

// Commit renames every staged file over its final name, in staging order.
// Files that could not be moved are removed.
func (s *Staging) Commit() error {
	var errs []error
	for _, f := range s.files {
		if len(errs) > 0 {
			os.Remove(f.tmp)
			continue
		}
		if err := os.Rename(f.tmp, f.path); err != nil {
			os.Remove(f.tmp)
			errs = append(errs, fmt.Errorf("atomicfile: replace %s: %w", f.path, err))
		}
	}
	s.files = nil
	return errors.Join(errs...)
}

// Discard removes every staged file. It is a no-op after Commit.
func (s *Staging) Discard() {
	for _, f := range s.files {
		os.Remove(f.tmp)
	}
	s.files = nil
}
