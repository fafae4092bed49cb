package media

import (
	"bytes"
	"errors"
	"io"
)

// headerLen is how much of the stream the sniffer inspects. Every signature
// in the table fits comfortably inside it.
const headerLen = 4096

// signature matches sig at a byte offset. The table is fixed; the catalog of
// accepted kinds is closed.
type signature struct {
	offset int
	sig    []byte
	kind   Kind
}

var signatures = []signature{
	{0, []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}, KindPNG},
	{0, []byte{0xff, 0xd8, 0xff}, KindJPG},
	{0, []byte("GIF87a"), KindGIF},
	{0, []byte("GIF89a"), KindGIF},
	{4, []byte("ftyp"), KindMP4},
	{0, []byte{0x1a, 0x45, 0xdf, 0xa3}, KindWEBM},
}

// Classify inspects raw header bytes and returns the concrete kind, or
// KindUnknown when no signature matches. It only pattern-matches bytes and
// never errors, so it is safe to run on arbitrary untrusted input before any
// heavier parsing. First match wins.
func Classify(head []byte) Kind {
	// WEBP is RIFF....WEBP: two windows, checked together.
	if matchAt(head, 0, []byte("RIFF")) && matchAt(head, 8, []byte("WEBP")) {
		return KindWEBP
	}
	for _, s := range signatures {
		if matchAt(head, s.offset, s.sig) {
			return s.kind
		}
	}
	return KindUnknown
}

func matchAt(head []byte, offset int, sig []byte) bool {
	if len(head) < offset+len(sig) {
		return false
	}
	return bytes.Equal(head[offset:offset+len(sig)], sig)
}

// ReadHeader reads up to headerLen bytes and rewinds the stream, so the same
// bytes can be re-read downstream.
func ReadHeader(rs io.ReadSeeker) ([]byte, error) {
	buf := make([]byte, headerLen)
	n, err := io.ReadFull(rs, buf)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, err
	}
	if _, err := rs.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	return buf[:n], nil
}
