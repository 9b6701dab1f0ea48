package grp

// grpar
//
// Copyright (C) Thomas Habets <thomas@habets.se> 2015
// https://github.com/ThomasHabets/grpar
//
//   This program is free software; you can redistribute it and/or modify
//   it under the terms of the GNU General Public License as published by
//   the Free Software Foundation; either version 2 of the License, or
//   (at your option) any later version.
//
//   This program is distributed in the hope that it will be useful,
//   but WITHOUT ANY WARRANTY; without even the implied warranty of
//   MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
//   GNU General Public License for more details.
//
//   You should have received a copy of the GNU General Public License along
//   with this program; if not, write to the Free Software Foundation, Inc.,
//   51 Franklin Street, Fifth Floor, Boston, MA 02110-1301 USA.

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
)

const copyBufferSize = 32 << 10

// Destination is where extracted files are written.
type Destination interface {
	// Validate checks that the destination can receive files.
	Validate() error

	// Join returns the destination path for an archive member.
	Join(name string) string

	// Create opens path for writing, replacing any existing content.
	// Data is not guaranteed to be persisted until Close returns nil.
	Create(path string) (io.WriteCloser, error)
}

// LocalDir is a directory on the local filesystem.
type LocalDir string

func (d LocalDir) Validate() error {
	st, err := os.Stat(string(d))
	if err != nil {
		return fmt.Errorf("%w %q: %w", ErrInvalidDestinationDirectory, string(d), err)
	}
	if !st.IsDir() {
		return fmt.Errorf("%w %q: not a directory", ErrInvalidDestinationDirectory, string(d))
	}
	return nil
}

func (d LocalDir) Join(name string) string {
	return filepath.Join(string(d), name)
}

func (LocalDir) Create(path string) (io.WriteCloser, error) {
	return os.Create(path)
}

// ExtractAllError is returned when one or more files failed to extract.
type ExtractAllError struct {
	Total  int
	Errors []error
}

func (e *ExtractAllError) Error() string {
	return fmt.Sprintf("%v: %d of %d failed", ErrPartialExtraction, len(e.Errors), e.Total)
}

func (e *ExtractAllError) Unwrap() []error {
	return append([]error{ErrPartialExtraction}, e.Errors...)
}

// Extract copies the first file named name to destPath on the local filesystem.
func (a *Archive) Extract(name, destPath string) error {
	return a.ExtractTo(LocalDir(""), name, destPath)
}

// ExtractTo copies the first file named name to destPath in dst.
//
// The destination is not touched if name is not in the archive. If the copy
// fails after the destination was created, the partial file is left behind.
func (a *Archive) ExtractTo(dst Destination, name, destPath string) error {
	rec, err := a.Lookup(name)
	if err != nil {
		return err
	}
	return a.extract(dst, rec, destPath)
}

func (a *Archive) extract(dst Destination, rec *FileRecord, destPath string) (err error) {
	w, err := dst.Create(destPath)
	if err != nil {
		return fmt.Errorf("%w %q: %w", ErrCreateDestination, destPath, err)
	}
	defer func() {
		if e := w.Close(); e != nil && err == nil {
			err = fmt.Errorf("%w: closing %q: %w", ErrIncompleteTransfer, destPath, e)
		}
	}()

	if _, err := a.file.Seek(rec.Offset, io.SeekStart); err != nil {
		return fmt.Errorf("%w: seeking to %q: %w", ErrIncompleteTransfer, rec.Name, err)
	}
	return copyN(w, a.file, rec.Size, rec.Name, destPath)
}

// copyN copies exactly size bytes from r to w through a fixed buffer.
func copyN(w io.Writer, r io.Reader, size int64, src, dst string) error {
	buf := make([]byte, min(size, copyBufferSize))
	remaining := size
	for remaining > 0 {
		chunk := buf[:min(remaining, int64(len(buf)))]
		n, err := io.ReadFull(r, chunk)
		if n != len(chunk) {
			return fmt.Errorf("%w: incomplete read from source file %q after %d of %d bytes: %w", ErrIncompleteTransfer, src, size-remaining+int64(n), size, err)
		}
		m, err := w.Write(chunk)
		if m != len(chunk) || err != nil {
			if err == nil {
				err = io.ErrShortWrite
			}
			return fmt.Errorf("%w: incomplete write to destination file %q: %w", ErrIncompleteTransfer, dst, err)
		}
		remaining -= int64(n)
	}
	return nil
}

// ExtractAll extracts every file into destDir on the local filesystem.
func (a *Archive) ExtractAll(destDir string) error {
	return a.ExtractAllTo(LocalDir(destDir))
}

// ExtractAllTo extracts every file, in archive order, into dst.
//
// A failing file is logged and skipped; the error returned at the end is an
// *ExtractAllError listing every failure.
func (a *Archive) ExtractAllTo(dst Destination) error {
	if err := dst.Validate(); err != nil {
		return err
	}
	var errs []error
	for i := range a.files {
		rec := &a.files[i]
		destPath := dst.Join(rec.Name)
		ll := log.WithFields(log.Fields{
			"file":  rec.Name,
			"index": rec.Index,
		})

		var err error
		if !filepath.IsLocal(rec.Name) {
			err = fmt.Errorf("%w: %q", ErrUnsafeName, rec.Name)
		} else {
			// Same as extracting by name: duplicates get the first match.
			err = a.ExtractTo(dst, rec.Name, destPath)
		}
		if err != nil {
			ll.Error(err)
			errs = append(errs, err)
			continue
		}
		ll.Debugf("Extracted %d bytes to %s", rec.Size, destPath)
	}
	if len(errs) > 0 {
		return &ExtractAllError{
			Total:  len(a.files),
			Errors: errs,
		}
	}
	return nil
}
