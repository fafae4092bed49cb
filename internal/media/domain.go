// Package media implements the hardened upload pipeline: signature sniffing,
// image sanitization, and collision-free storage of user-supplied files.
package media

import (
	"errors"
	"fmt"
)

// Kind is the closed set of accepted file formats, determined by byte
// signature rather than filename.
type Kind string

const (
	KindUnknown Kind = ""
	KindPNG     Kind = "png"
	KindJPG     Kind = "jpg"
	KindGIF     Kind = "gif"
	KindWEBP    Kind = "webp"
	KindMP4     Kind = "mp4"
	KindWEBM    Kind = "webm"
)

// Category groups kinds by how the pipeline treats them: images are decoded
// and re-encoded, gif and video are stored verbatim.
type Category string

const (
	CategoryImage Category = "image"
	CategoryGIF   Category = "gif"
	CategoryVideo Category = "video"
)

// Category maps a kind onto its media category.
func (k Kind) Category() Category {
	switch k {
	case KindPNG, KindJPG, KindWEBP:
		return CategoryImage
	case KindGIF:
		return CategoryGIF
	case KindMP4, KindWEBM:
		return CategoryVideo
	}
	return ""
}

// Artifact describes a stored upload. Created once by Pipeline.Ingest and
// immutable afterward. OriginalFilename is untrusted and kept for display
// only; StorageName is the only value ever used to address the file.
type Artifact struct {
	Kind             Kind
	Category         Category
	StorageName      string
	OriginalFilename string
	SizeBytes        int64
}

// ErrRejected is the base error for every ingestion refusal. All gates wrap
// it, so callers can match the whole family with errors.Is.
var ErrRejected = errors.New("media: rejected")

var (
	ErrEmptyFilename       = fmt.Errorf("%w: empty filename", ErrRejected)
	ErrNoExtension         = fmt.Errorf("%w: filename has no extension", ErrRejected)
	ErrExtensionNotAllowed = fmt.Errorf("%w: extension not allowed", ErrRejected)
	ErrUnknownSignature    = fmt.Errorf("%w: unrecognized file signature", ErrRejected)
	ErrKindMismatch        = fmt.Errorf("%w: file content does not match its extension", ErrRejected)
	ErrImageTooLarge       = fmt.Errorf("%w: image exceeds the pixel ceiling", ErrRejected)
	ErrImageMalformed      = fmt.Errorf("%w: image failed structural validation", ErrRejected)
)

// AllowList holds the accepted extensions per category. Extensions are
// lower-case without the leading dot.
type AllowList struct {
	Image map[string]struct{}
	GIF   map[string]struct{}
	Video map[string]struct{}
}

// DefaultAllowList mirrors the closed kind enum, with "jpeg" accepted as a
// spelling of jpg.
func DefaultAllowList() AllowList {
	return AllowList{
		Image: set("png", "jpg", "jpeg", "webp"),
		GIF:   set("gif"),
		Video: set("mp4", "webm"),
	}
}

// CategoryOf returns the category claimed by an extension, or false when the
// extension is not allowed at all.
func (a AllowList) CategoryOf(ext string) (Category, bool) {
	if _, ok := a.Image[ext]; ok {
		return CategoryImage, true
	}
	if _, ok := a.GIF[ext]; ok {
		return CategoryGIF, true
	}
	if _, ok := a.Video[ext]; ok {
		return CategoryVideo, true
	}
	return "", false
}

func set(keys ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		m[k] = struct{}{}
	}
	return m
}
