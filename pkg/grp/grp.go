// Package grp loads Build engine GRP archives.
//
// grpar
//
// Copyright (C) Thomas Habets <thomas@habets.se> 2015
// https://github.com/ThomasHabets/grpar
//
// Based on grpar, (c) 2010 - Ganael LAPLANCHE, http://contribs.martymac.org
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
//
package grp

// Format, see http://advsys.net/ken/build.htm
//
//   12 bytes: "KenSilverman"
//    4 bytes: number of files (little-endian)
//   then for each file:
//   12 bytes: file name (zero-filled)
//    4 bytes: file size (little-endian)
//   then the file data, in directory order.

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	log "github.com/sirupsen/logrus"
)

const (
	// Magic is the signature every GRP archive starts with.
	Magic = "KenSilverman"

	// NameSize is the width of the on-disk name field.
	NameSize = 12

	headerSize = 16
	entrySize  = 16
)

var (
	ErrOpen                        = errors.New("grp: cannot open group archive")
	ErrTruncated                   = errors.New("grp: group archive header truncated")
	ErrBadMagic                    = errors.New("grp: unrecognized group archive")
	ErrAllocation                  = errors.New("grp: cannot allocate directory")
	ErrNotFound                    = errors.New("grp: not found in group archive")
	ErrCreateDestination           = errors.New("grp: cannot create destination file")
	ErrIncompleteTransfer          = errors.New("grp: incomplete transfer")
	ErrInvalidDestinationDirectory = errors.New("grp: invalid destination directory")
	ErrUnsafeName                  = errors.New("grp: unsafe file name")
	ErrPartialExtraction           = errors.New("grp: files extracted, with error(s)")
)

type header struct {
	Magic [NameSize]byte
	Count uint32
}

type dirEntry struct {
	NameBytes [NameSize]byte
	Size      uint32
}

// FileRecord describes one file stored in the archive.
type FileRecord struct {
	// name is always terminated, even when the on-disk field is full.
	name [NameSize + 1]byte

	Name   string
	Size   int64
	Offset int64
	Index  int // 1-based.
}

func newFileRecord(e *dirEntry, index int, offset int64) FileRecord {
	r := FileRecord{
		Size:   int64(e.Size),
		Offset: offset,
		Index:  index,
	}
	copy(r.name[:NameSize], e.NameBytes[:])
	r.name[NameSize] = 0
	n := 0
	for n < NameSize && r.name[n] != 0 {
		n++
	}
	r.Name = string(r.name[:n])
	return r
}

// matches compares lookup against the record name the way a fixed-width
// field compare would: up to the field width plus terminator, stopping at
// the first difference or the first terminator.
func (r *FileRecord) matches(lookup string) bool {
	for i := 0; i < len(r.name); i++ {
		var c byte
		if i < len(lookup) {
			c = lookup[i]
		}
		if c != r.name[i] {
			return false
		}
		if c == 0 {
			return true
		}
	}
	return true
}

// Archive is an open GRP file and its table of contents.
type Archive struct {
	path  string
	file  *os.File
	files []FileRecord
}

// DataStart returns the offset of the first data byte for an archive holding count files.
func DataStart(count uint32) int64 {
	return headerSize + int64(count)*entrySize
}

// Open opens the archive at fn and reads its table of contents.
// The returned Archive owns the file handle until Close.
func Open(fn string) (*Archive, error) {
	f, err := os.Open(fn)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %w", ErrOpen, fn, err)
	}
	files, err := readTOC(f, fn)
	if err != nil {
		f.Close()
		return nil, err
	}
	return &Archive{
		path:  fn,
		file:  f,
		files: files,
	}, nil
}

func readTOC(f *os.File, fn string) ([]FileRecord, error) {
	st, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("%w %q: %w", ErrOpen, fn, err)
	}
	r := bufio.NewReader(f)

	var h header
	if err := binary.Read(r, binary.LittleEndian, &h); err != nil {
		return nil, fmt.Errorf("%w: %q: %w", ErrTruncated, fn, err)
	}
	if string(h.Magic[:]) != Magic {
		return nil, fmt.Errorf("%w: %q", ErrBadMagic, fn)
	}

	if uint64(h.Count) > uint64(math.MaxInt)/entrySize {
		return nil, fmt.Errorf("%w: %d entries in %q", ErrAllocation, h.Count, fn)
	}
	// Don't trust the count for preallocation; the directory can't be
	// bigger than the file.
	capacity := int64(h.Count)
	if avail := (st.Size() - headerSize) / entrySize; avail < capacity {
		capacity = max(avail, 0)
	}
	files := make([]FileRecord, 0, capacity)

	offset := DataStart(h.Count)
	var e dirEntry
	for i := uint32(0); i < h.Count; i++ {
		if err := binary.Read(r, binary.LittleEndian, &e); err != nil {
			return nil, fmt.Errorf("%w: %q entry %d of %d: %w", ErrTruncated, fn, i+1, h.Count, err)
		}
		files = append(files, newFileRecord(&e, int(i)+1, offset))
		offset += int64(e.Size)
	}

	if offset > st.Size() {
		log.WithField("archive", fn).Warnf("Data ends at byte %d but file is %d bytes", offset, st.Size())
	}
	return files, nil
}

// Path returns the file name the archive was opened with.
func (a *Archive) Path() string { return a.path }

// Files returns the table of contents in archive order.
// The slice must not be modified.
func (a *Archive) Files() []FileRecord { return a.files }

// Lookup returns the first record in archive order whose name matches name.
func (a *Archive) Lookup(name string) (*FileRecord, error) {
	for i := range a.files {
		if a.files[i].matches(name) {
			return &a.files[i], nil
		}
	}
	return nil, fmt.Errorf("%q: %w", name, ErrNotFound)
}

// Open returns a reader over the data of the named file. Reading past the
// end of the archive before the whole file was read is an ErrIncompleteTransfer.
func (a *Archive) Open(name string) (io.Reader, error) {
	rec, err := a.Lookup(name)
	if err != nil {
		return nil, err
	}
	return &memberReader{
		r:    io.NewSectionReader(a.file, rec.Offset, rec.Size),
		name: rec.Name,
		size: rec.Size,
	}, nil
}

type memberReader struct {
	r    *io.SectionReader
	name string
	size int64
	done int64
}

func (m *memberReader) Read(p []byte) (int, error) {
	n, err := m.r.Read(p)
	m.done += int64(n)
	if err == io.EOF && m.done < m.size {
		err = fmt.Errorf("%w: incomplete read from source file %q after %d of %d bytes: %w", ErrIncompleteTransfer, m.name, m.done, m.size, io.ErrUnexpectedEOF)
	}
	return n, err
}

// Close releases the archive file handle.
func (a *Archive) Close() error {
	return a.file.Close()
}
