package mp4

import (
	"bufio"
	"io"

	"github.com/jblebrun/mpeg4mudex/format/mp4/mp4io"
)

// ScanForTag searches the raw byte stream for the first occurrence of
// the 4-byte tag, with no regard for box structure. It exists purely
// as a before/after diagnostic: a hit in arbitrary payload bytes can
// be a false positive. Returns the byte offset of the match.
func ScanForTag(r io.Reader, tag mp4io.Tag) (pos int64, found bool, err error) {
	br := bufio.NewReader(r)
	var window uint32
	var n int64
	for {
		c, err := br.ReadByte()
		if err == io.EOF {
			return 0, false, nil
		}
		if err != nil {
			return 0, false, err
		}
		n++
		window = window<<8 | uint32(c)
		if n >= 4 && window == uint32(tag) {
			return n - 4, true, nil
		}
	}
}
