// Package validation decides whether an uploaded file may enter the secure
// store. Checks run cheapest first and stop at the first failure:
// extension, size, declared MIME type, magic bytes.
package validation

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dmitrijs2005/cytoguard/internal/audit"
)

// DefaultMaxSize is the upload ceiling (10 MiB).
const DefaultMaxSize int64 = 10 * 1024 * 1024

// signatureProbeLen is the minimum payload length the signature check accepts.
const signatureProbeLen = 8

var (
	ErrEmptyUpload          = errors.New("no file selected")
	ErrUnsupportedExtension = errors.New("unsupported extension")
	ErrFileTooLarge         = errors.New("file too large")
	ErrUnsupportedMimeType  = errors.New("unsupported mime type")
	ErrSignatureMismatch    = errors.New("signature mismatch")
)

// DefaultExtensions lists the accepted file extensions.
var DefaultExtensions = []string{".png", ".jpg", ".jpeg", ".bmp"}

// DefaultMimeTypes lists the accepted declared MIME types.
var DefaultMimeTypes = []string{"image/png", "image/jpeg", "image/jpg", "image/bmp"}

var signatures = map[string][][]byte{
	".png":  {[]byte("\x89PNG\r\n\x1a\n")},
	".jpg":  {{0xFF, 0xD8}},
	".jpeg": {{0xFF, 0xD8}},
	".bmp":  {[]byte("BM")},
}

// Upload is an inbound file as received from the UI layer. MIME is optional.
type Upload struct {
	Data     []byte
	Filename string
	MIME     string
}

// Ext returns the lower-cased extension of the declared filename.
func (u Upload) Ext() string {
	return strings.ToLower(filepath.Ext(u.Filename))
}

// Rejection explains why an upload was refused. errors.Is matches it against
// the Err* sentinel of its kind.
type Rejection struct {
	Kind     error
	Filename string
	// Detail is the discriminating value: extension, size, MIME type or "signature".
	Detail string
	// Message is suitable for showing to the user.
	Message string
}

func (r *Rejection) Error() string {
	return fmt.Sprintf("%s: %s (%s)", r.Filename, r.Kind, r.Detail)
}

func (r *Rejection) Unwrap() error {
	return r.Kind
}

// Validator holds the allow-lists and the audit recorder. It is immutable and
// safe for concurrent use.
type Validator struct {
	maxSize    int64
	extensions map[string]struct{}
	mimeTypes  map[string]struct{}
	rec        audit.Recorder
}

// Option configures a Validator.
type Option func(*Validator)

// WithMaxSize overrides DefaultMaxSize. Non-positive values are ignored.
func WithMaxSize(n int64) Option {
	return func(v *Validator) {
		if n > 0 {
			v.maxSize = n
		}
	}
}

func New(rec audit.Recorder, opts ...Option) *Validator {
	v := &Validator{
		maxSize:    DefaultMaxSize,
		extensions: toSet(DefaultExtensions),
		mimeTypes:  toSet(DefaultMimeTypes),
		rec:        rec,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// For returns a copy of v that records to rec.
func (v *Validator) For(rec audit.Recorder) *Validator {
	c := *v
	c.rec = rec
	return &c
}

// MaxSize reports the configured ceiling in bytes.
func (v *Validator) MaxSize() int64 {
	return v.maxSize
}

// Validate returns nil when u may be stored, or a *Rejection. Every outcome
// is recorded.
func (v *Validator) Validate(ctx context.Context, u Upload) error {
	if u.Filename == "" {
		v.record(ctx, audit.ActionFileRejectedEmpty, map[string]any{"filename": u.Filename})
		return &Rejection{Kind: ErrEmptyUpload, Detail: "filename", Message: "No file selected"}
	}

	ext := u.Ext()
	if !CheckExtension(ext, v.extensions) {
		v.record(ctx, audit.ActionFileRejectedExtension, map[string]any{
			"filename":  u.Filename,
			"extension": ext,
		})
		return &Rejection{
			Kind:     ErrUnsupportedExtension,
			Filename: u.Filename,
			Detail:   ext,
			Message:  "Extension not allowed. Accepted extensions: " + strings.Join(sortedKeys(v.extensions), ", "),
		}
	}

	size := int64(len(u.Data))
	if !CheckSize(size, v.maxSize) {
		v.record(ctx, audit.ActionFileRejectedSize, map[string]any{
			"filename": u.Filename,
			"size":     size,
		})
		return &Rejection{
			Kind:     ErrFileTooLarge,
			Filename: u.Filename,
			Detail:   fmt.Sprintf("%d", size),
			Message:  fmt.Sprintf("File too large. Maximum size: %dMB", v.maxSize/(1024*1024)),
		}
	}

	if u.MIME != "" && !CheckMIME(u.MIME, v.mimeTypes) {
		v.record(ctx, audit.ActionFileRejectedMime, map[string]any{
			"filename":  u.Filename,
			"mime_type": u.MIME,
		})
		return &Rejection{
			Kind:     ErrUnsupportedMimeType,
			Filename: u.Filename,
			Detail:   u.MIME,
			Message:  "File type not allowed: " + u.MIME,
		}
	}

	if !CheckSignature(u.Data, ext) {
		v.record(ctx, audit.ActionFileRejectedSignature, map[string]any{
			"filename": u.Filename,
			"check":    "signature",
		})
		return &Rejection{
			Kind:     ErrSignatureMismatch,
			Filename: u.Filename,
			Detail:   "signature",
			Message:  "Corrupted file or invalid format",
		}
	}

	v.record(ctx, audit.ActionFileValidated, map[string]any{
		"filename":  u.Filename,
		"size":      size,
		"extension": ext,
	})
	return nil
}

func (v *Validator) record(ctx context.Context, action string, details map[string]any) {
	if v.rec != nil {
		v.rec.Record(ctx, action, details)
	}
}

// CheckExtension reports whether ext (lower-cased, with dot) is allowed.
func CheckExtension(ext string, allowed map[string]struct{}) bool {
	_, ok := allowed[ext]
	return ok
}

// CheckSize reports whether size fits under limit.
func CheckSize(size, limit int64) bool {
	return size <= limit
}

// CheckMIME reports whether the declared MIME type is allowed.
func CheckMIME(mime string, allowed map[string]struct{}) bool {
	_, ok := allowed[strings.ToLower(mime)]
	return ok
}

// CheckSignature reports whether data starts with a magic sequence known for
// ext. Payloads shorter than 8 bytes never pass.
func CheckSignature(data []byte, ext string) bool {
	if len(data) < signatureProbeLen {
		return false
	}
	sigs, ok := signatures[ext]
	if !ok {
		return false
	}
	for _, sig := range sigs {
		if bytes.HasPrefix(data, sig) {
			return true
		}
	}
	return false
}

func toSet(items []string) map[string]struct{} {
	m := make(map[string]struct{}, len(items))
	for _, it := range items {
		m[it] = struct{}{}
	}
	return m
}

func sortedKeys(m map[string]struct{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
