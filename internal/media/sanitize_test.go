package media

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodePNG(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x % 256), G: uint8(y % 256), B: 0x40, A: 0xff})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func encodeJPEG(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}))
	return buf.Bytes()
}

// pngChunk appends one chunk with a correct CRC, the way the format demands.
func pngChunk(buf *bytes.Buffer, typ string, data []byte) {
	_ = binary.Write(buf, binary.BigEndian, uint32(len(data)))
	buf.WriteString(typ)
	buf.Write(data)
	crc := crc32.NewIEEE()
	crc.Write([]byte(typ))
	crc.Write(data)
	_ = binary.Write(buf, binary.BigEndian, crc.Sum32())
}

// bombPNG builds a structurally valid PNG prefix whose IHDR declares an
// enormous resolution. Only the header exists; decoding the raster would
// require the full pixel buffer.
func bombPNG(width, height uint32) []byte {
	var buf bytes.Buffer
	buf.Write([]byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'})
	ihdr := make([]byte, 13)
	binary.BigEndian.PutUint32(ihdr[0:4], width)
	binary.BigEndian.PutUint32(ihdr[4:8], height)
	ihdr[8] = 8 // bit depth
	ihdr[9] = 2 // truecolor
	pngChunk(&buf, "IHDR", ihdr)
	return buf.Bytes()
}

// exifJPEG splices a minimal EXIF APP1 segment (orientation tag set) into an
// encoder-produced JPEG.
func exifJPEG(t *testing.T, width, height int, orientation uint16) []byte {
	t.Helper()
	plain := encodeJPEG(t, width, height)

	tiff := make([]byte, 0, 26)
	tiff = append(tiff, 'I', 'I', '*', 0x00)             // little-endian TIFF
	tiff = append(tiff, 0x08, 0x00, 0x00, 0x00)          // IFD0 offset
	tiff = append(tiff, 0x01, 0x00)                      // one entry
	tiff = append(tiff, 0x12, 0x01)                      // tag 0x0112 orientation
	tiff = append(tiff, 0x03, 0x00)                      // type SHORT
	tiff = append(tiff, 0x01, 0x00, 0x00, 0x00)          // count 1
	tiff = append(tiff, byte(orientation), 0x00, 0, 0)   // value
	tiff = append(tiff, 0x00, 0x00, 0x00, 0x00)          // no next IFD

	app1Data := append([]byte("Exif\x00\x00"), tiff...)
	var buf bytes.Buffer
	buf.Write([]byte{0xff, 0xd8, 0xff, 0xe1})
	_ = binary.Write(&buf, binary.BigEndian, uint16(len(app1Data)+2))
	buf.Write(app1Data)
	buf.Write(plain[2:]) // everything after the SOI marker
	return buf.Bytes()
}

func newTestSanitizer() *Sanitizer {
	return NewSanitizer(20_000_000, 4000)
}

func TestSanitize_AcceptsNormalJPEG(t *testing.T) {
	s := newTestSanitizer()
	out, err := s.Sanitize(bytes.NewReader(encodeJPEG(t, 2000, 1500)), KindJPG)
	require.NoError(t, err)
	assert.Equal(t, KindJPG, out.Kind)
	assert.Equal(t, 2000, out.Width)
	assert.Equal(t, 1500, out.Height)
	assert.NotEmpty(t, out.Data)

	// Output must decode cleanly.
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(out.Data))
	require.NoError(t, err)
	assert.Equal(t, 2000, cfg.Width)
}

func TestSanitize_RejectsDeclaredBombBeforeDecode(t *testing.T) {
	s := newTestSanitizer()
	// A few hundred bytes on the wire, 10 gigapixels declared.
	bomb := bombPNG(100_000, 100_000)
	_, err := s.Sanitize(bytes.NewReader(bomb), KindPNG)
	require.ErrorIs(t, err, ErrImageTooLarge)
}

func TestSanitize_RejectsMalformed(t *testing.T) {
	s := newTestSanitizer()

	_, err := s.Sanitize(bytes.NewReader([]byte("not an image at all")), KindPNG)
	assert.ErrorIs(t, err, ErrImageMalformed)

	// Valid header, truncated body: passes the config check, fails the full
	// structural parse.
	truncated := encodePNG(t, 50, 50)[:60]
	_, err = s.Sanitize(bytes.NewReader(truncated), KindPNG)
	assert.ErrorIs(t, err, ErrImageMalformed)
}

func TestSanitize_StripsEXIF(t *testing.T) {
	s := newTestSanitizer()
	src := exifJPEG(t, 40, 20, 1)
	require.True(t, bytes.Contains(src, []byte("Exif")), "fixture must carry EXIF")

	out, err := s.Sanitize(bytes.NewReader(src), KindJPG)
	require.NoError(t, err)
	assert.False(t, bytes.Contains(out.Data, []byte("Exif")), "re-encoded bytes must carry no EXIF")
}

func TestSanitize_NormalizesOrientation(t *testing.T) {
	s := newTestSanitizer()
	// Orientation 6 means the raster is stored rotated; normalization swaps
	// the visible dimensions.
	src := exifJPEG(t, 40, 20, 6)
	out, err := s.Sanitize(bytes.NewReader(src), KindJPG)
	require.NoError(t, err)
	assert.Equal(t, 20, out.Width)
	assert.Equal(t, 40, out.Height)
}

func TestSanitize_DownscalesOversizedDimension(t *testing.T) {
	s := NewSanitizer(20_000_000, 100)
	out, err := s.Sanitize(bytes.NewReader(encodePNG(t, 300, 150)), KindPNG)
	require.NoError(t, err)
	assert.Equal(t, 100, out.Width)
	assert.Equal(t, 50, out.Height)
}

func TestSanitize_WebpOutputIsPNG(t *testing.T) {
	// No pure-Go webp encoder exists; sanitized webp input is stored as png.
	// Exercise the kind mapping through the png input path plus the declared
	// output contract.
	s := newTestSanitizer()
	out, err := s.Sanitize(bytes.NewReader(encodePNG(t, 10, 10)), KindPNG)
	require.NoError(t, err)
	assert.Equal(t, KindPNG, out.Kind)
}

func TestSanitize_RefusesNonImageKind(t *testing.T) {
	s := newTestSanitizer()
	_, err := s.Sanitize(bytes.NewReader(nil), KindMP4)
	assert.Error(t, err)
}

func TestSanitize_PNGKeepsAlpha(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	img.Set(1, 1, color.NRGBA{R: 0xff, A: 0x80})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))

	s := newTestSanitizer()
	out, err := s.Sanitize(bytes.NewReader(buf.Bytes()), KindPNG)
	require.NoError(t, err)

	decoded, err := png.Decode(bytes.NewReader(out.Data))
	require.NoError(t, err)
	_, _, _, a := decoded.At(1, 1).RGBA()
	assert.Less(t, a, uint32(0xffff), "alpha must survive png re-encode")
}
