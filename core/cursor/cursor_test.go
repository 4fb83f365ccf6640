package cursor

import (
	"bytes"
	"errors"
	"testing"

	rlerr "github.com/FocuswithJustin/RetroLink/core/errors"
)

// TestReadFixedWidth tests fixed-width reads in both byte orders over the
// same buffer.
func TestReadFixedWidth(t *testing.T) {
	data := []byte{0x12, 0x34, 0x56, 0x78, 0xDE, 0xAD, 0xBE, 0xEF}

	r := NewReader(data)
	be16, err := r.Uint16(BigEndian, "be16")
	if err != nil {
		t.Fatalf("Uint16: %v", err)
	}
	if be16 != 0x1234 {
		t.Errorf("big-endian u16: got %#x, want 0x1234", be16)
	}

	if err := r.Seek(0); err != nil {
		t.Fatalf("Seek: %v", err)
	}
	le32, err := r.Uint32(LittleEndian, "le32")
	if err != nil {
		t.Fatalf("Uint32: %v", err)
	}
	if le32 != 0x78563412 {
		t.Errorf("little-endian u32: got %#x, want 0x78563412", le32)
	}

	if err := r.Seek(0); err != nil {
		t.Fatalf("Seek: %v", err)
	}
	be64, err := r.Uint64(BigEndian, "be64")
	if err != nil {
		t.Fatalf("Uint64: %v", err)
	}
	if be64 != 0x12345678DEADBEEF {
		t.Errorf("big-endian u64: got %#x", be64)
	}
	if r.Remaining() != 0 {
		t.Errorf("expected empty remainder, have %d", r.Remaining())
	}
}

// TestSignedReads tests that signed reads sign-extend correctly.
func TestSignedReads(t *testing.T) {
	r := NewReader([]byte{0xFF, 0xFE, 0xFF, 0xFF, 0xFF, 0xFC})
	i16, err := r.Int16(BigEndian, "i16")
	if err != nil {
		t.Fatalf("Int16: %v", err)
	}
	if i16 != -2 {
		t.Errorf("got %d, want -2", i16)
	}
	i32, err := r.Int32(BigEndian, "i32")
	if err != nil {
		t.Fatalf("Int32: %v", err)
	}
	if i32 != -4 {
		t.Errorf("got %d, want -4", i32)
	}
}

// TestTruncatedReads tests that every read type fails with the truncation
// sentinel when it would cross the buffer end, at every starting offset.
func TestTruncatedReads(t *testing.T) {
	data := []byte{1, 2, 3, 4, 5, 6, 7}

	reads := []struct {
		name  string
		width int
		read  func(r *Reader) error
	}{
		{"u8", 1, func(r *Reader) error { _, err := r.Uint8("u8"); return err }},
		{"u16", 2, func(r *Reader) error { _, err := r.Uint16(BigEndian, "u16"); return err }},
		{"u32", 4, func(r *Reader) error { _, err := r.Uint32(LittleEndian, "u32"); return err }},
		{"u64", 8, func(r *Reader) error { _, err := r.Uint64(BigEndian, "u64"); return err }},
		{"bytes", 4, func(r *Reader) error { _, err := r.Bytes(4, "bytes"); return err }},
	}

	for _, tt := range reads {
		t.Run(tt.name, func(t *testing.T) {
			// Cut the buffer at every length that leaves fewer than width bytes.
			for cut := 0; cut < tt.width; cut++ {
				r := NewReader(data[:cut])
				err := tt.read(r)
				if err == nil {
					t.Fatalf("read of %d bytes from %d-byte buffer succeeded", tt.width, cut)
				}
				if !errors.Is(err, rlerr.ErrTruncatedInput) {
					t.Errorf("expected truncation sentinel, got %v", err)
				}
			}
		})
	}
}

// TestSeekBounds tests that seeks past the end fail with the out-of-bounds
// sentinel and leave the cursor untouched.
func TestSeekBounds(t *testing.T) {
	r := NewReader([]byte{1, 2, 3})

	if err := r.Seek(3); err != nil {
		t.Errorf("seek to exact end should succeed: %v", err)
	}
	if err := r.Seek(4); !errors.Is(err, rlerr.ErrOutOfBounds) {
		t.Errorf("expected out-of-bounds, got %v", err)
	}
	if err := r.Seek(-1); !errors.Is(err, rlerr.ErrOutOfBounds) {
		t.Errorf("expected out-of-bounds for negative seek, got %v", err)
	}
	if r.Offset() != 3 {
		t.Errorf("failed seek moved cursor to %d", r.Offset())
	}
}

// TestCString tests NUL-terminated string reads, including the missing
// terminator case.
func TestCString(t *testing.T) {
	r := NewReader([]byte("add\x00helper\x00tail"))

	s, err := r.CString("name")
	if err != nil || s != "add" {
		t.Fatalf("got %q, %v", s, err)
	}
	s, err = r.CString("name")
	if err != nil || s != "helper" {
		t.Fatalf("got %q, %v", s, err)
	}
	_, err = r.CString("name")
	if !errors.Is(err, rlerr.ErrTruncatedInput) {
		t.Errorf("unterminated string should be truncation, got %v", err)
	}
}

// TestPString tests length-prefixed string reads.
func TestPString(t *testing.T) {
	r := NewReader([]byte{3, 'a', 'd', 'd', 5, 'x'})
	s, err := r.PString("name")
	if err != nil || s != "add" {
		t.Fatalf("got %q, %v", s, err)
	}
	_, err = r.PString("name")
	if !errors.Is(err, rlerr.ErrTruncatedInput) {
		t.Errorf("short pstring should be truncation, got %v", err)
	}
}

// TestBytesReturnsCopy tests that Bytes does not alias the input buffer.
func TestBytesReturnsCopy(t *testing.T) {
	data := []byte{1, 2, 3, 4}
	r := NewReader(data)
	b, err := r.Bytes(4, "content")
	if err != nil {
		t.Fatalf("Bytes: %v", err)
	}
	data[0] = 99
	if b[0] != 1 {
		t.Error("Bytes aliases the input buffer")
	}
}

// TestWriterRoundTrip tests that values written in each width and order
// read back identically.
func TestWriterRoundTrip(t *testing.T) {
	w := NewWriter()
	w.Uint8(0xAB)
	w.Uint16(BigEndian, 0x1234)
	w.Uint32(LittleEndian, 0xDEADBEEF)
	w.Uint64(BigEndian, 0x0102030405060708)
	w.CString("main")
	w.Write([]byte{9, 9})

	r := NewReader(w.Bytes())
	if v, _ := r.Uint8("u8"); v != 0xAB {
		t.Errorf("u8: got %#x", v)
	}
	if v, _ := r.Uint16(BigEndian, "u16"); v != 0x1234 {
		t.Errorf("u16: got %#x", v)
	}
	if v, _ := r.Uint32(LittleEndian, "u32"); v != 0xDEADBEEF {
		t.Errorf("u32: got %#x", v)
	}
	if v, _ := r.Uint64(BigEndian, "u64"); v != 0x0102030405060708 {
		t.Errorf("u64: got %#x", v)
	}
	if s, _ := r.CString("name"); s != "main" {
		t.Errorf("cstring: got %q", s)
	}
	tail, _ := r.Bytes(2, "tail")
	if !bytes.Equal(tail, []byte{9, 9}) {
		t.Errorf("tail: got %v", tail)
	}
	if r.Remaining() != 0 {
		t.Errorf("unexpected trailing bytes: %d", r.Remaining())
	}
}

// TestWriterAlign tests that alignment padding is zero-filled and a no-op
// when already aligned.
func TestWriterAlign(t *testing.T) {
	w := NewWriter()
	w.Write([]byte{1, 2, 3})
	w.Align(4)
	if w.Len() != 4 {
		t.Fatalf("expected length 4, got %d", w.Len())
	}
	if w.Bytes()[3] != 0 {
		t.Errorf("padding byte not zero: %v", w.Bytes())
	}
	w.Align(4)
	if w.Len() != 4 {
		t.Errorf("aligning an aligned buffer grew it to %d", w.Len())
	}
	w.Align(1)
	w.Align(0)
	if w.Len() != 4 {
		t.Errorf("degenerate alignment grew buffer to %d", w.Len())
	}
}

// TestWriterPatch tests offset patching after layout, including bounds.
func TestWriterPatch(t *testing.T) {
	w := NewWriter()
	w.Uint32(BigEndian, 0) // reserved offset field
	w.Write([]byte("content"))

	if err := w.PatchUint32(BigEndian, 0, uint32(w.Len())); err != nil {
		t.Fatalf("PatchUint32: %v", err)
	}
	r := NewReader(w.Bytes())
	if v, _ := r.Uint32(BigEndian, "patched"); v != uint32(len("content"))+4 {
		t.Errorf("patched value: got %d", v)
	}

	if err := w.PatchUint32(BigEndian, w.Len()-2, 1); !errors.Is(err, rlerr.ErrOutOfBounds) {
		t.Errorf("expected out-of-bounds patch error, got %v", err)
	}
	if err := w.PatchUint16(BigEndian, -1, 1); !errors.Is(err, rlerr.ErrOutOfBounds) {
		t.Errorf("expected out-of-bounds patch error, got %v", err)
	}
}
