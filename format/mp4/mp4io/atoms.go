package mp4io

const MOOV = Tag(0x6d6f6f76)

const UDTA = Tag(0x75647461)

const TRAK = Tag(0x7472616b)

const MDIA = Tag(0x6d646961)

const MINF = Tag(0x6d696e66)

const STBL = Tag(0x7374626c)

const META = Tag(0x6d657461)

const MDAT = Tag(0x6d646174)

const STCO = Tag(0x7374636f)

const FTYP = Tag(0x66747970)

const FREE = Tag(0x66726565)

// IsContainer reports whether the tag belongs to the closed set of
// boxes whose payload is decoded as a child box sequence. "meta" is
// deliberately absent: it can nest boxes of its own, but this codec
// only ever removes it whole, so its bytes stay an opaque blob.
func (t Tag) IsContainer() bool {
	switch t {
	case MOOV, UDTA, TRAK, MDIA, MINF, STBL:
		return true
	}
	return false
}
