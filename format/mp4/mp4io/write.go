package mp4io

import (
	"io"

	"github.com/jblebrun/mpeg4mudex/utils/bits/pio"
)

// WriteTree emits the active atoms of the tree depth-first, preserving
// the sibling order the file was parsed in. Inactive atoms and their
// subtrees produce no bytes at all.
func WriteTree(w io.Writer, root *Atom) error {
	for _, child := range root.Children {
		if err := writeAtom(w, child); err != nil {
			return err
		}
	}
	return nil
}

func writeAtom(w io.Writer, a *Atom) error {
	if !a.Active {
		return nil
	}
	var hdr [HeaderSize]byte
	pio.PutU32BE(hdr[0:4], a.Size)
	pio.PutU32BE(hdr[4:8], uint32(a.Tag))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	if len(a.Data) > 0 {
		if _, err := w.Write(a.Data); err != nil {
			return err
		}
	}
	for _, child := range a.Children {
		if err := writeAtom(w, child); err != nil {
			return err
		}
	}
	return nil
}
