package media

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"io"
	"log/slog"
	"strings"
)

const maxBaseNameLen = 40

// Pipeline orchestrates extension/signature cross-validation, storage-name
// allocation and dispatch to sanitization or pass-through storage. Every
// gate short-circuits to a rejection with zero writes; exactly one file is
// written on success.
type Pipeline struct {
	store     BlobStore
	sanitizer *Sanitizer
	allow     AllowList
	logger    *slog.Logger
}

// NewPipeline constructs a Pipeline with the default allow-list.
func NewPipeline(store BlobStore, sanitizer *Sanitizer, logger *slog.Logger) *Pipeline {
	return &Pipeline{store: store, sanitizer: sanitizer, allow: DefaultAllowList(), logger: logger}
}

// Ingest validates and stores one upload. declaredFilename is untrusted: it
// is used for the extension pre-check and, sanitized, as a display prefix in
// the storage name, never as a path. The outer byte cap is the caller's
// responsibility (http.MaxBytesReader); everything after that is enforced
// here.
func (p *Pipeline) Ingest(ctx context.Context, rs io.ReadSeeker, declaredFilename string) (*Artifact, error) {
	declared := strings.TrimSpace(declaredFilename)
	if declared == "" {
		return nil, ErrEmptyFilename
	}

	base, ext, ok := splitExtension(declared)
	if !ok {
		return nil, ErrNoExtension
	}
	extCategory, ok := p.allow.CategoryOf(ext)
	if !ok {
		return nil, ErrExtensionNotAllowed
	}

	head, err := ReadHeader(rs)
	if err != nil {
		return nil, err
	}
	kind := Classify(head)
	if kind == KindUnknown {
		return nil, ErrUnknownSignature
	}

	// Extension and content must agree on category: a .png file whose bytes
	// are an MP4 container is rejected even though both are individually
	// allowed.
	if kind.Category() != extCategory {
		return nil, ErrKindMismatch
	}

	storedKind := kind
	var content io.Reader = rs
	if kind.Category() == CategoryImage {
		sanitized, err := p.sanitizer.Sanitize(rs, kind)
		if err != nil {
			return nil, err
		}
		storedKind = sanitized.Kind
		content = bytes.NewReader(sanitized.Data)
	}

	name, err := allocateName(base, storedKind)
	if err != nil {
		return nil, err
	}

	size, err := p.store.Write(name, content)
	if err != nil {
		return nil, err
	}

	artifact := &Artifact{
		Kind:             storedKind,
		Category:         storedKind.Category(),
		StorageName:      name,
		OriginalFilename: declared,
		SizeBytes:        size,
	}
	if p.logger != nil {
		p.logger.Info("upload stored",
			slog.String("kind", string(artifact.Kind)),
			slog.String("name", artifact.StorageName),
			slog.Int64("bytes", artifact.SizeBytes),
		)
	}
	return artifact, nil
}

// splitExtension separates the declared name into base and lower-cased
// extension, stripping any path components a hostile client supplied.
func splitExtension(declared string) (base, ext string, ok bool) {
	// Keep only the last path segment, tolerating both separator styles.
	if idx := strings.LastIndexAny(declared, `/\`); idx >= 0 {
		declared = declared[idx+1:]
	}
	idx := strings.LastIndex(declared, ".")
	if idx <= 0 || idx == len(declared)-1 {
		return "", "", false
	}
	return declared[:idx], strings.ToLower(declared[idx+1:]), true
}

// allocateName builds `<sanitizedBase>_<32 hex chars>.<ext>`. The random
// token makes collisions and guessing impractical; the base is display sugar
// with every path and metacharacter removed.
func allocateName(base string, kind Kind) (string, error) {
	token := make([]byte, 16)
	if _, err := rand.Read(token); err != nil {
		return "", err
	}
	return sanitizeBaseName(base) + "_" + hex.EncodeToString(token) + "." + string(kind), nil
}

func sanitizeBaseName(base string) string {
	var b strings.Builder
	for _, r := range base {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		case r == ' ' || r == '.':
			b.WriteByte('_')
		}
	}
	clean := strings.Trim(b.String(), "_")
	if len(clean) > maxBaseNameLen {
		clean = clean[:maxBaseNameLen]
	}
	if clean == "" {
		return "upload"
	}
	return clean
}
