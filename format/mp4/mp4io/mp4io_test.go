package mp4io

import (
	"bytes"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/jblebrun/mpeg4mudex/utils/bits/pio"
)

func leaf(tag string, payload []byte) []byte {
	b := make([]byte, HeaderSize+len(payload))
	pio.PutU32BE(b, uint32(len(b)))
	copy(b[4:8], tag)
	copy(b[8:], payload)
	return b
}

func con(tag string, children ...[]byte) []byte {
	return leaf(tag, bytes.Join(children, nil))
}

func sampleFile() []byte {
	stco := make([]byte, 12)
	pio.PutU32BE(stco[4:], 1)
	pio.PutU32BE(stco[8:], 200)
	return bytes.Join([][]byte{
		leaf("ftyp", []byte("M4A mp42")),
		con("moov",
			con("udta", leaf("titl", []byte("title"))),
			con("trak",
				con("mdia",
					con("minf",
						con("stbl", leaf("stco", stco)))))),
		leaf("mdat", bytes.Repeat([]byte{0xab}, 100)),
	}, nil)
}

func checkSizes(t *testing.T, a *Atom) {
	t.Helper()
	if len(a.Children) == 0 {
		return
	}
	var sum uint32
	for _, child := range a.Children {
		sum += child.Size
		checkSizes(t, child)
	}
	if a.parent != nil && sum != a.PayloadSize() {
		t.Fatalf("container %v: children sum %d, declared payload %d", a.Tag, sum, a.PayloadSize())
	}
}

func TestReadTreeRoundTrip(t *testing.T) {
	file := sampleFile()
	root, err := ReadTree(bytes.NewReader(file))
	if err != nil {
		t.Fatal(err)
	}
	checkSizes(t, root)

	var out bytes.Buffer
	if err := WriteTree(&out, root); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(out.Bytes(), file) {
		t.Fatalf("round trip mismatch: got %d bytes, want %d", out.Len(), len(file))
	}

	again, err := ReadTree(bytes.NewReader(out.Bytes()))
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(root, again, cmpopts.IgnoreUnexported(Atom{})); diff != "" {
		t.Fatalf("reparsed tree differs (-first +second):\n%s", diff)
	}
}

func TestReadTreeZeroHeaderEndsSequence(t *testing.T) {
	file := append(leaf("free", []byte{1, 2, 3, 4}), make([]byte, HeaderSize)...)
	file = append(file, 0xde, 0xad)
	root, err := ReadTree(bytes.NewReader(file))
	if err != nil {
		t.Fatal(err)
	}
	if len(root.Children) != 1 || root.Children[0].Tag != FREE {
		t.Fatalf("unexpected tree: %+v", root.Children)
	}
}

func TestReadTreeZeroPayloadContainer(t *testing.T) {
	file := append(con("moov"), leaf("free", []byte{1, 2})...)
	root, err := ReadTree(bytes.NewReader(file))
	if err != nil {
		t.Fatal(err)
	}
	if len(root.Children) != 2 {
		t.Fatalf("want 2 top-level atoms, got %d", len(root.Children))
	}
	if len(root.Children[0].Children) != 0 {
		t.Fatal("empty container must not adopt the following box")
	}
}

func TestReadTreeMalformedHeader(t *testing.T) {
	for _, size := range []uint32{1, 4, 7} {
		b := make([]byte, HeaderSize)
		pio.PutU32BE(b, size)
		copy(b[4:], "ftyp")
		if _, err := ReadTree(bytes.NewReader(b)); !errors.Is(err, ErrMalformedHeader) {
			t.Fatalf("size %d: want ErrMalformedHeader, got %v", size, err)
		}
	}
}

func TestReadTreeTruncatedPayload(t *testing.T) {
	b := leaf("mdat", bytes.Repeat([]byte{0}, 50))
	if _, err := ReadTree(bytes.NewReader(b[:20])); !errors.Is(err, ErrTruncatedPayload) {
		t.Fatalf("want ErrTruncatedPayload, got %v", err)
	}

	// A container still open when the stream ends is also truncation.
	open := make([]byte, HeaderSize)
	pio.PutU32BE(open, 100)
	copy(open[4:], "moov")
	open = append(open, leaf("free", []byte{1, 2})...)
	if _, err := ReadTree(bytes.NewReader(open)); !errors.Is(err, ErrTruncatedPayload) {
		t.Fatalf("want ErrTruncatedPayload for open container, got %v", err)
	}
}

func TestReadTreeContainerOverrun(t *testing.T) {
	b := make([]byte, HeaderSize)
	pio.PutU32BE(b, HeaderSize+10) // room for 10 payload bytes
	copy(b[4:], "moov")
	b = append(b, leaf("free", bytes.Repeat([]byte{0}, 8))...) // 16-byte child

	_, err := ReadTree(bytes.NewReader(b))
	var overrun *ContainerOverrunError
	if !errors.As(err, &overrun) {
		t.Fatalf("want ContainerOverrunError, got %v", err)
	}
	if overrun.Tag != MOOV {
		t.Fatalf("overrun names %v, want moov", overrun.Tag)
	}
}

func TestDeactivateAdjustsAncestors(t *testing.T) {
	file := con("moov", con("udta", leaf("meta", bytes.Repeat([]byte{0}, 8))))
	root, err := ReadTree(bytes.NewReader(file))
	if err != nil {
		t.Fatal(err)
	}
	moov := root.Children[0]
	udta := moov.Children[0]
	meta := udta.Children[0]

	moovSize, udtaSize := moov.Size, udta.Size
	meta.Deactivate()
	meta.Deactivate() // second call must change nothing
	if meta.Active {
		t.Fatal("meta still active")
	}
	if moov.Size != moovSize-meta.Size || udta.Size != udtaSize-meta.Size {
		t.Fatalf("ancestor sizes not adjusted: moov=%d udta=%d", moov.Size, udta.Size)
	}

	var out bytes.Buffer
	if err := WriteTree(&out, root); err != nil {
		t.Fatal(err)
	}
	if bytes.Contains(out.Bytes(), []byte("meta")) {
		t.Fatal("inactive subtree still serialized")
	}
	if _, err := ReadTree(bytes.NewReader(out.Bytes())); err != nil {
		t.Fatalf("output no longer parses: %v", err)
	}
}

func TestFindChildren(t *testing.T) {
	root, err := ReadTree(bytes.NewReader(sampleFile()))
	if err != nil {
		t.Fatal(err)
	}
	stco := FindChildren(root, STCO)
	if stco == nil || stco.Tag != STCO {
		t.Fatal("stco not found")
	}
	if FindChildren(root, StringToTag("zzzz")) != nil {
		t.Fatal("found a tag that is not there")
	}
}

func TestTagString(t *testing.T) {
	if got := MOOV.String(); got != "moov" {
		t.Fatalf("got %q", got)
	}
	if StringToTag("stco") != STCO {
		t.Fatal("StringToTag mismatch")
	}
}
