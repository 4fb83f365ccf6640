// Package archive provides transparent decompression of object and
// library buffers. Legacy toolchain artifacts are commonly shipped as
// .xz or .gz files; the codecs consume raw bytes only, so the driver
// routes every input through here first.
package archive

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ulikunitz/xz"
)

// Compression magic numbers.
var (
	xzMagic   = []byte{0xFD, '7', 'z', 'X', 'Z', 0x00}
	gzipMagic = []byte{0x1F, 0x8B}
)

// IsXZ reports whether the buffer starts with the xz stream magic.
func IsXZ(data []byte) bool {
	return bytes.HasPrefix(data, xzMagic)
}

// IsGzip reports whether the buffer starts with the gzip magic.
func IsGzip(data []byte) bool {
	return bytes.HasPrefix(data, gzipMagic)
}

// Decompress returns the buffer's uncompressed content. Buffers without
// a recognized compression magic pass through unchanged.
func Decompress(data []byte) ([]byte, error) {
	switch {
	case IsXZ(data):
		r, err := xz.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("xz reader: %w", err)
		}
		out, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("xz decompress: %w", err)
		}
		return out, nil
	case IsGzip(data):
		r, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("gzip reader: %w", err)
		}
		defer r.Close()
		out, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("gzip decompress: %w", err)
		}
		return out, nil
	default:
		return data, nil
	}
}

// Compress encodes the buffer as an xz stream.
func Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := xz.NewWriter(&buf)
	if err != nil {
		return nil, fmt.Errorf("xz writer: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return nil, fmt.Errorf("xz compress: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("xz close: %w", err)
	}
	return buf.Bytes(), nil
}

// ReadFile reads a file and transparently decompresses it.
func ReadFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Decompress(data)
}

// WriteFile writes a buffer to a file, compressing when the path carries
// an .xz suffix.
func WriteFile(path string, data []byte) error {
	if strings.HasSuffix(path, ".xz") {
		var err error
		if data, err = Compress(data); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, 0644)
}
