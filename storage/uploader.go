// Package storage handles puppy photo uploads: local validation, object
// naming, and the inline fallback used when the blob store is unavailable.
package storage

import (
	"context"
	"encoding/base64"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"example.com/puppylog/domain"
	"example.com/puppylog/observability"
)

// Backend is the slice of the remote client the uploader consumes.
type Backend interface {
	UploadBlob(ctx context.Context, path string, data []byte, contentType string) (string, error)
	DeleteBlob(ctx context.Context, path string) error
}

// allowedImageTypes mirrors the bucket's MIME allow-list on the hosted side.
var allowedImageTypes = map[string]string{
	"image/jpeg": "jpg",
	"image/png":  "png",
	"image/gif":  "gif",
	"image/webp": "webp",
}

// Uploader validates and stores photos.
type Uploader struct {
	backend  Backend
	logger   *log.Logger
	maxBytes int64
	nowMilli func() int64
}

// Option configures optional behaviour for the Uploader.
type Option func(*Uploader)

// WithLogger overrides the logger used to report degraded uploads.
func WithLogger(logger *log.Logger) Option {
	return func(u *Uploader) {
		u.logger = logger
	}
}

// WithMaxBytes overrides the local size cap.
func WithMaxBytes(n int64) Option {
	return func(u *Uploader) {
		u.maxBytes = n
	}
}

// New constructs an Uploader with the default 5 MiB cap.
func New(b Backend, opts ...Option) *Uploader {
	u := &Uploader{
		backend:  b,
		logger:   log.New(log.Writer(), "[storage] ", log.LstdFlags),
		maxBytes: 5 * 1024 * 1024,
		nowMilli: func() int64 { return time.Now().UnixMilli() },
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// Result describes where an uploaded photo ended up.
type Result struct {
	// URL is either the public object URL or, when Inline is set, a data:
	// URL embedding the image.
	URL string
	// Path is the object key within the bucket, empty for inline results.
	Path string
	// Inline marks the graceful-degradation path: the blob store rejected
	// the upload and the image is carried inline instead.
	Inline bool
}

// Upload validates data locally, then stores it under a key scoped to the
// owning user. Validation failures are returned before any network call.
// A blob-store failure degrades to an inline data URL rather than failing
// the whole operation; the degradation is logged and counted, never silent.
func (u *Uploader) Upload(ctx context.Context, userID string, data []byte) (Result, error) {
	contentType, err := u.validate(data)
	if err != nil {
		return Result{}, err
	}

	path := fmt.Sprintf("%s/%d-%s.%s", userID, u.nowMilli(), uuid.NewString(), allowedImageTypes[contentType])
	url, err := u.backend.UploadBlob(ctx, path, data, contentType)
	if err != nil {
		u.logger.Printf("blob upload failed, falling back to inline photo: %v", err)
		observability.RecordUploadFallback()
		return Result{URL: inlineURL(contentType, data), Inline: true}, nil
	}
	return Result{URL: url, Path: path}, nil
}

// Delete removes a previously uploaded photo given its public URL. Inline
// photos have nothing to remove. Best effort: callers typically ignore the
// error beyond logging.
func (u *Uploader) Delete(ctx context.Context, photoURL string) error {
	if strings.HasPrefix(photoURL, "data:") {
		return nil
	}
	const marker = "/storage/v1/object/public/"
	idx := strings.Index(photoURL, marker)
	if idx < 0 {
		return fmt.Errorf("%w: unrecognized photo URL", domain.ErrValidation)
	}
	rest := photoURL[idx+len(marker):]
	// rest is "<bucket>/<object path>"; the client already knows its bucket.
	slash := strings.IndexByte(rest, '/')
	if slash < 0 {
		return fmt.Errorf("%w: unrecognized photo URL", domain.ErrValidation)
	}
	return u.backend.DeleteBlob(ctx, rest[slash+1:])
}

// validate enforces the size cap and the image allow-list before any bytes
// leave the process.
func (u *Uploader) validate(data []byte) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("%w: empty file", domain.ErrValidation)
	}
	if int64(len(data)) > u.maxBytes {
		return "", fmt.Errorf("%w: file size %d exceeds limit %d", domain.ErrValidation, len(data), u.maxBytes)
	}
	contentType := http.DetectContentType(data)
	if _, ok := allowedImageTypes[contentType]; !ok {
		return "", fmt.Errorf("%w: unsupported content type %s", domain.ErrValidation, contentType)
	}
	return contentType, nil
}

func inlineURL(contentType string, data []byte) string {
	return "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(data)
}
