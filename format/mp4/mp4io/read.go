package mp4io

import (
	"fmt"
	"io"

	"github.com/jblebrun/mpeg4mudex/utils/bits/pio"
)

// ReadTree decodes a box sequence into a tree owned by a synthetic
// root atom. Decoding is sequential: container boxes are never read as
// a blob, instead the reader tracks how many payload bytes each open
// container still owes and pops back up once a container is exactly
// consumed. The sequence ends at end-of-stream or a zero-length
// header; every box read earlier, "meta" included, lands in the tree.
func ReadTree(r io.Reader) (*Atom, error) {
	root := &Atom{Active: true}
	parent := root
	var hdr [HeaderSize]byte

	for {
		if _, err := io.ReadFull(r, hdr[:]); err != nil {
			if err == io.EOF {
				break
			}
			return nil, fmt.Errorf("%w: stream ends inside a box header", ErrTruncatedPayload)
		}

		size := pio.U32BE(hdr[0:4])
		tag := Tag(pio.U32BE(hdr[4:8]))
		if size == 0 {
			// Zero-length header terminates the sequence.
			break
		}
		if size == 1 {
			return nil, fmt.Errorf("%w: box %q uses unsupported 64-bit size", ErrMalformedHeader, tag)
		}
		if size < HeaderSize {
			return nil, fmt.Errorf("%w: box %q declares size %d", ErrMalformedHeader, tag, size)
		}

		atom := &Atom{
			Tag:    tag,
			Size:   size,
			Active: true,
			parent: parent,
		}
		payload := size - HeaderSize
		if !tag.IsContainer() {
			atom.Data = make([]byte, payload)
			if _, err := io.ReadFull(r, atom.Data); err != nil {
				return nil, fmt.Errorf("%w: box %q wants %d payload bytes", ErrTruncatedPayload, tag, payload)
			}
		}
		parent.Children = append(parent.Children, atom)

		// The root has no declared size, so it is exempt from the
		// remaining-byte accounting.
		if parent != root {
			parent.remaining -= int64(size)
			if parent.remaining < 0 {
				return nil, &ContainerOverrunError{Tag: parent.Tag}
			}
		}

		// A container with a zero payload closes on the spot; one
		// with payload becomes the open parent for what follows.
		if tag.IsContainer() && payload > 0 {
			atom.remaining = int64(payload)
			parent = atom
		}
		for parent != root && parent.remaining == 0 {
			parent = parent.parent
		}
	}

	if parent != root {
		return nil, fmt.Errorf("%w: container %q left open at end of stream", ErrTruncatedPayload, parent.Tag)
	}
	return root, nil
}
