// Package mp4 removes metadata boxes from MP4/M4A files. A Stripper
// reads the box tree, soft-deletes every box in its strip set, and
// rewrites the chunk offset tables so sample data referenced through
// "stco" stays addressable after the removed bytes shift the rest of
// the file backward.
package mp4

import (
	"errors"
	"fmt"
	"io"

	"github.com/jblebrun/mpeg4mudex/format/mp4/mp4io"
	"github.com/jblebrun/mpeg4mudex/utils/bits/pio"
)

var (
	ErrMissingOffsetTable = errors.New("mp4: bytes removed before mdat but no stco table to patch")
	ErrBadChunkTable      = errors.New("mp4: stco entry count exceeds its payload")
)

// OffsetUnderflowError reports a chunk offset smaller than the number
// of bytes removed ahead of it. Such a file cannot be corrected.
type OffsetUnderflowError struct {
	Entry   int
	Offset  uint32
	Deficit uint32
}

func (e *OffsetUnderflowError) Error() string {
	return fmt.Sprintf("mp4: stco entry %d offset %d underflows deficit %d", e.Entry, e.Offset, e.Deficit)
}

type Stripper struct {
	// StripTags is the set of boxes to remove. NewStripper seeds it
	// with "meta" only.
	StripTags []mp4io.Tag

	root    *mp4io.Atom
	tables  []*mp4io.Atom
	deficit uint32
}

func NewStripper() *Stripper {
	return &Stripper{
		StripTags: []mp4io.Tag{mp4io.META},
	}
}

func (s *Stripper) ReadFrom(r io.Reader) (err error) {
	s.root, err = mp4io.ReadTree(r)
	return
}

// Tree exposes the decoded atom tree, for dumping and for tests.
func (s *Stripper) Tree() *mp4io.Atom {
	return s.root
}

// Strip deactivates every atom whose tag is in the strip set, then
// patches each recorded chunk offset table by the byte deficit the
// removal opened up ahead of the media data. Offsets are absolute file
// positions, so only boxes removed before "mdat" in file order count
// toward the deficit; boxes removed after it shift nothing the tables
// point at. The deficit is returned.
func (s *Stripper) Strip() (uint32, error) {
	s.tables = s.tables[:0]
	s.deficit = 0
	accumulating := true
	for _, atom := range s.root.Children {
		accumulating = s.visit(atom, accumulating)
	}

	if s.deficit > 0 && len(s.tables) == 0 {
		return 0, ErrMissingOffsetTable
	}
	for _, table := range s.tables {
		if err := PatchChunkOffsets(table, s.deficit); err != nil {
			return 0, err
		}
	}
	return s.deficit, nil
}

// visit walks one atom in pre-order. The accumulating flag travels by
// value and is returned, so flipping it at "mdat" affects everything
// later in file order regardless of nesting, and nothing earlier.
func (s *Stripper) visit(a *mp4io.Atom, accumulating bool) bool {
	switch {
	case a.Tag == mp4io.MDAT:
		accumulating = false
	case a.Tag == mp4io.STCO && a.Active:
		s.tables = append(s.tables, a)
	}

	if a.Active && s.shouldStrip(a.Tag) {
		if accumulating {
			s.deficit += a.Size
		}
		a.Deactivate()
		// The subtree's bytes are already counted through a.Size;
		// keep walking it only to classify what follows, without
		// accumulating twice.
		for _, child := range a.Children {
			s.visit(child, false)
		}
		return accumulating
	}

	for _, child := range a.Children {
		accumulating = s.visit(child, accumulating)
	}
	return accumulating
}

func (s *Stripper) shouldStrip(tag mp4io.Tag) bool {
	for _, t := range s.StripTags {
		if t == tag {
			return true
		}
	}
	return false
}

func (s *Stripper) WriteTo(w io.Writer) error {
	return mp4io.WriteTree(w, s.root)
}

// PatchChunkOffsets rewrites an stco payload in place, reducing every
// entry by deficit. Layout: 4 bytes version/flags, 4-byte big-endian
// entry count, then one 4-byte big-endian absolute offset per entry.
// Version and flags are left untouched.
func PatchChunkOffsets(stco *mp4io.Atom, deficit uint32) error {
	data := stco.Data
	if len(data) < 8 {
		return ErrBadChunkTable
	}
	count := pio.U32BE(data[4:8])
	if int64(len(data)) < 8+4*int64(count) {
		return ErrBadChunkTable
	}
	if deficit == 0 {
		return nil
	}
	for i := 0; i < int(count); i++ {
		entry := data[8+4*i:]
		offset := pio.U32BE(entry)
		if offset < deficit {
			return &OffsetUnderflowError{Entry: i, Offset: offset, Deficit: deficit}
		}
		pio.PutU32BE(entry, offset-deficit)
	}
	return nil
}
