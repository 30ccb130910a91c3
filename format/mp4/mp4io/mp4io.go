// Package mp4io decodes and re-encodes the box ("atom") structure of
// ISO base media files. Boxes are read into an in-memory tree that can
// be edited (atoms deactivated, payloads rewritten in place) and then
// serialized back out byte-for-byte compatible with the source layout.
//
// Extended 64-bit box sizes and co64 offset tables are not supported.
package mp4io

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/jblebrun/mpeg4mudex/utils/bits/pio"
)

// HeaderSize is the byte length of a box header: a 4-byte big-endian
// total length followed by a 4-byte tag.
const HeaderSize = 8

var (
	ErrMalformedHeader  = errors.New("mp4io: malformed box header")
	ErrTruncatedPayload = errors.New("mp4io: truncated box payload")
)

// ContainerOverrunError reports a container whose children consumed
// more bytes than the container's declared payload size.
type ContainerOverrunError struct {
	Tag Tag
}

func (e *ContainerOverrunError) Error() string {
	return fmt.Sprintf("mp4io: children overrun container %q", e.Tag)
}

type Tag uint32

func (t Tag) String() string {
	var b [4]byte
	pio.PutU32BE(b[:], uint32(t))
	for i := 0; i < 4; i++ {
		if b[i] == 0 {
			b[i] = ' '
		}
	}
	return string(b[:])
}

func StringToTag(tag string) Tag {
	var b [4]byte
	copy(b[:], tag)
	return Tag(pio.U32BE(b[:]))
}

// Atom is one box instance. Containers hold their bytes as Children,
// leaves as an opaque Data payload. The synthetic root returned by
// ReadTree has a zero Tag and Size and is never serialized.
type Atom struct {
	Tag      Tag
	Size     uint32 // total box length, header included
	Data     []byte // leaf payload; nil for containers
	Children []*Atom
	Active   bool // false excludes the atom and its subtree from output

	parent    *Atom
	remaining int64 // payload bytes still to decode while building
}

func (a *Atom) PayloadSize() uint32 {
	return a.Size - HeaderSize
}

// Deactivate soft-deletes the atom: the whole subtree is flagged
// inactive and every surviving ancestor's declared size shrinks by the
// atom's total length, keeping parent size accounting valid for the
// bytes that will actually be emitted. Calling it again is a no-op.
func (a *Atom) Deactivate() {
	if !a.Active {
		return
	}
	for p := a.parent; p != nil && p.parent != nil; p = p.parent {
		p.Size -= a.Size
	}
	a.markInactive()
}

func (a *Atom) markInactive() {
	a.Active = false
	for _, child := range a.Children {
		child.markInactive()
	}
}

// FindChildren returns the first atom in the subtree with the given
// tag, in depth-first pre-order, or nil.
func FindChildren(root *Atom, tag Tag) *Atom {
	if root.Tag == tag {
		return root
	}
	for _, child := range root.Children {
		if r := FindChildren(child, tag); r != nil {
			return r
		}
	}
	return nil
}

func FprintTree(out io.Writer, root *Atom) {
	for _, child := range root.Children {
		printAtom(out, child, 0)
	}
}

func printAtom(out io.Writer, a *Atom, depth int) {
	fmt.Fprintf(out, "%s%v size=%d", strings.Repeat("  ", depth), a.Tag, a.Size)
	if !a.Active {
		fmt.Fprint(out, " (removed)")
	}
	fmt.Fprintln(out)
	for _, child := range a.Children {
		printAtom(out, child, depth+1)
	}
}
