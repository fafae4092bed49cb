package media

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		head []byte
		want Kind
	}{
		{"png", []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0}, KindPNG},
		{"jpeg", []byte{0xff, 0xd8, 0xff, 0xe0, 0x00, 0x10}, KindJPG},
		{"gif87a", []byte("GIF87a...."), KindGIF},
		{"gif89a", []byte("GIF89a...."), KindGIF},
		{"webp", []byte("RIFF\x24\x00\x00\x00WEBPVP8 "), KindWEBP},
		{"mp4", []byte{0, 0, 0, 0x18, 'f', 't', 'y', 'p', 'i', 's', 'o', 'm'}, KindMP4},
		{"webm", []byte{0x1a, 0x45, 0xdf, 0xa3, 0x01, 0x00}, KindWEBM},
		{"empty", nil, KindUnknown},
		{"text", []byte("hello world, definitely not media"), KindUnknown},
		{"truncated png", []byte{0x89, 'P', 'N'}, KindUnknown},
		{"riff without webp", []byte("RIFF\x24\x00\x00\x00WAVEfmt "), KindUnknown},
		{"ftyp at wrong offset", []byte("ftypisom"), KindUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.head))
		})
	}
}

func TestKindCategory(t *testing.T) {
	assert.Equal(t, CategoryImage, KindPNG.Category())
	assert.Equal(t, CategoryImage, KindJPG.Category())
	assert.Equal(t, CategoryImage, KindWEBP.Category())
	assert.Equal(t, CategoryGIF, KindGIF.Category())
	assert.Equal(t, CategoryVideo, KindMP4.Category())
	assert.Equal(t, CategoryVideo, KindWEBM.Category())
	assert.Equal(t, Category(""), KindUnknown.Category())
}

func TestReadHeader_RewindsStream(t *testing.T) {
	payload := append([]byte("GIF89a"), bytes.Repeat([]byte{0xab}, 100)...)
	rs := bytes.NewReader(payload)

	head, err := ReadHeader(rs)
	require.NoError(t, err)
	assert.Equal(t, KindGIF, Classify(head))

	// The stream is rewound: a full re-read sees every byte again.
	rest, err := io.ReadAll(rs)
	require.NoError(t, err)
	assert.Equal(t, payload, rest)
}

func TestReadHeader_CapsAtWindow(t *testing.T) {
	payload := bytes.Repeat([]byte{0x01}, headerLen*2)
	head, err := ReadHeader(bytes.NewReader(payload))
	require.NoError(t, err)
	assert.Len(t, head, headerLen)
}

func TestReadHeader_ShortStream(t *testing.T) {
	head, err := ReadHeader(bytes.NewReader([]byte{0xff, 0xd8, 0xff}))
	require.NoError(t, err)
	assert.Equal(t, KindJPG, Classify(head))
}
