// Package cursor provides bounds-checked, endianness-aware reading and
// writing over in-memory byte buffers.
//
// Every format-specific parser in RetroLink obtains its bounds safety from
// this package: reads fail with a truncation error instead of crossing the
// buffer end, absolute seeks fail instead of wrapping, and writes grow the
// output buffer instead of truncating. Byte order is selected per call
// because the two object formats disagree on it.
package cursor

import (
	"encoding/binary"

	"github.com/FocuswithJustin/RetroLink/core/errors"
)

// Byte orders re-exported so codec packages do not import encoding/binary
// just to pick an endianness.
var (
	// BigEndian reads and writes most-significant byte first.
	BigEndian = binary.BigEndian

	// LittleEndian reads and writes least-significant byte first.
	LittleEndian = binary.LittleEndian
)

// Reader is a read cursor over a byte buffer. The zero value reads from an
// empty buffer; create readers with NewReader.
type Reader struct {
	data []byte
	off  int
}

// NewReader creates a Reader positioned at the start of data.
func NewReader(data []byte) *Reader {
	return &Reader{data: data}
}

// Offset returns the current read position.
func (r *Reader) Offset() int {
	return r.off
}

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int {
	return len(r.data) - r.off
}

// Len returns the total buffer length.
func (r *Reader) Len() int {
	return len(r.data)
}

// Seek moves the cursor to an absolute offset. Seeking past the buffer end
// fails; seeking exactly to the end is allowed.
func (r *Reader) Seek(off int) error {
	if off < 0 || off > len(r.data) {
		return errors.Wrapf(errors.ErrOutOfBounds, "seek to %d in buffer of %d bytes", off, len(r.data))
	}
	r.off = off
	return nil
}

// Skip advances the cursor n bytes.
func (r *Reader) Skip(n int) error {
	return r.Seek(r.off + n)
}

// take checks that n bytes are available and returns them, advancing the
// cursor. This is the single bounds check all reads go through.
func (r *Reader) take(what string, n int) ([]byte, error) {
	if n < 0 || r.off+n > len(r.data) {
		return nil, errors.NewTruncated(what, r.off, n, len(r.data)-r.off)
	}
	b := r.data[r.off : r.off+n]
	r.off += n
	return b, nil
}

// Uint8 reads one byte.
func (r *Reader) Uint8(what string) (uint8, error) {
	b, err := r.take(what, 1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// Uint16 reads a 16-bit unsigned integer in the given byte order.
func (r *Reader) Uint16(order binary.ByteOrder, what string) (uint16, error) {
	b, err := r.take(what, 2)
	if err != nil {
		return 0, err
	}
	return order.Uint16(b), nil
}

// Uint32 reads a 32-bit unsigned integer in the given byte order.
func (r *Reader) Uint32(order binary.ByteOrder, what string) (uint32, error) {
	b, err := r.take(what, 4)
	if err != nil {
		return 0, err
	}
	return order.Uint32(b), nil
}

// Uint64 reads a 64-bit unsigned integer in the given byte order.
func (r *Reader) Uint64(order binary.ByteOrder, what string) (uint64, error) {
	b, err := r.take(what, 8)
	if err != nil {
		return 0, err
	}
	return order.Uint64(b), nil
}

// Int16 reads a 16-bit signed integer in the given byte order.
func (r *Reader) Int16(order binary.ByteOrder, what string) (int16, error) {
	v, err := r.Uint16(order, what)
	return int16(v), err
}

// Int32 reads a 32-bit signed integer in the given byte order.
func (r *Reader) Int32(order binary.ByteOrder, what string) (int32, error) {
	v, err := r.Uint32(order, what)
	return int32(v), err
}

// Bytes reads n raw bytes and returns a copy, so IR entities never alias
// the input buffer.
func (r *Reader) Bytes(n int, what string) ([]byte, error) {
	b, err := r.take(what, n)
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), b...), nil
}

// CString reads a NUL-terminated string, consuming the terminator. It fails
// with a truncation error when no terminator exists before the buffer end.
func (r *Reader) CString(what string) (string, error) {
	start := r.off
	for i := r.off; i < len(r.data); i++ {
		if r.data[i] == 0 {
			s := string(r.data[start:i])
			r.off = i + 1
			return s, nil
		}
	}
	return "", errors.NewTruncated(what, start, len(r.data)-start+1, len(r.data)-start)
}

// PString reads a length-prefixed string: a one-byte length followed by
// that many bytes (the classic Mac toolchain convention).
func (r *Reader) PString(what string) (string, error) {
	n, err := r.Uint8(what)
	if err != nil {
		return "", err
	}
	b, err := r.take(what, int(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Writer is an auto-growing write cursor. The zero value is ready to use.
type Writer struct {
	buf []byte
}

// NewWriter creates an empty Writer.
func NewWriter() *Writer {
	return &Writer{}
}

// Len returns the number of bytes written so far.
func (w *Writer) Len() int {
	return len(w.buf)
}

// Bytes returns the accumulated buffer. The returned slice is owned by the
// Writer until the Writer is discarded.
func (w *Writer) Bytes() []byte {
	return w.buf
}

// Uint8 appends one byte.
func (w *Writer) Uint8(v uint8) {
	w.buf = append(w.buf, v)
}

// Uint16 appends a 16-bit unsigned integer in the given byte order.
func (w *Writer) Uint16(order binary.ByteOrder, v uint16) {
	var b [2]byte
	order.PutUint16(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

// Uint32 appends a 32-bit unsigned integer in the given byte order.
func (w *Writer) Uint32(order binary.ByteOrder, v uint32) {
	var b [4]byte
	order.PutUint32(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

// Uint64 appends a 64-bit unsigned integer in the given byte order.
func (w *Writer) Uint64(order binary.ByteOrder, v uint64) {
	var b [8]byte
	order.PutUint64(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

// Int16 appends a 16-bit signed integer in the given byte order.
func (w *Writer) Int16(order binary.ByteOrder, v int16) {
	w.Uint16(order, uint16(v))
}

// Int32 appends a 32-bit signed integer in the given byte order.
func (w *Writer) Int32(order binary.ByteOrder, v int32) {
	w.Uint32(order, uint32(v))
}

// Write appends raw bytes.
func (w *Writer) Write(b []byte) {
	w.buf = append(w.buf, b...)
}

// CString appends a string followed by a NUL terminator.
func (w *Writer) CString(s string) {
	w.buf = append(w.buf, s...)
	w.buf = append(w.buf, 0)
}

// Zero appends n zero bytes.
func (w *Writer) Zero(n int) {
	for i := 0; i < n; i++ {
		w.buf = append(w.buf, 0)
	}
}

// Align pads with zero bytes until the length is a multiple of n.
// Alignment padding is always zero-filled, never garbage.
func (w *Writer) Align(n int) {
	if n <= 1 {
		return
	}
	rem := len(w.buf) % n
	if rem != 0 {
		w.Zero(n - rem)
	}
}

// PatchUint16 overwrites a previously written 16-bit field at an absolute
// offset. Patching past the written length fails.
func (w *Writer) PatchUint16(order binary.ByteOrder, off int, v uint16) error {
	if off < 0 || off+2 > len(w.buf) {
		return errors.Wrapf(errors.ErrOutOfBounds, "patch at %d in buffer of %d bytes", off, len(w.buf))
	}
	order.PutUint16(w.buf[off:], v)
	return nil
}

// PatchUint32 overwrites a previously written 32-bit field at an absolute
// offset. Layout fields (table offsets, sizes) are patched after content
// is sized, so emitters reserve them and patch here.
func (w *Writer) PatchUint32(order binary.ByteOrder, off int, v uint32) error {
	if off < 0 || off+4 > len(w.buf) {
		return errors.Wrapf(errors.ErrOutOfBounds, "patch at %d in buffer of %d bytes", off, len(w.buf))
	}
	order.PutUint32(w.buf[off:], v)
	return nil
}
