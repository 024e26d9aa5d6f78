package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/geocoder89/backoffice/internal/storage"
	"github.com/gin-gonic/gin"
)

// UploadMetrics is implemented by *observability.Prom.
type UploadMetrics interface {
	Upload(bucket, result string)
}

// Uploader turns a multipart "file" field into a stored object. Screens that
// own an image column share it.
type Uploader struct {
	store   storage.Store
	metrics UploadMetrics
}

func NewUploader(store storage.Store, metrics UploadMetrics) *Uploader {
	return &Uploader{store: store, metrics: metrics}
}

func (u *Uploader) observe(bucket, result string) {
	if u.metrics != nil {
		u.metrics.Upload(bucket, result)
	}
}

// receive stores the uploaded file and writes the error response itself
// when it fails.
func (u *Uploader) receive(ctx *gin.Context, bucket string) (storage.Object, bool) {
	fh, err := ctx.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			u.observe(bucket, "too_large")
			RespondError(ctx, http.StatusRequestEntityTooLarge, "payload_too_large", "File is too large", nil)
			return storage.Object{}, false
		}
		u.observe(bucket, "invalid")
		RespondBadRequest(ctx, "Multipart field \"file\" is required", nil)
		return storage.Object{}, false
	}

	f, err := fh.Open()
	if err != nil {
		RespondInternal(ctx, "Could not read upload")
		return storage.Object{}, false
	}
	defer f.Close()

	cctx, cancel := withTimeout(ctx, 30*time.Second)
	defer cancel()

	obj, err := u.store.Put(cctx, bucket, f)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrTooLarge):
			u.observe(bucket, "too_large")
			RespondError(ctx, http.StatusRequestEntityTooLarge, "payload_too_large", "File is too large", nil)
		case errors.Is(err, storage.ErrUnsupportedContent):
			u.observe(bucket, "unsupported")
			RespondError(ctx, http.StatusUnsupportedMediaType, "unsupported_media_type", "Only PNG, JPEG, WebP and GIF images are accepted", nil)
		default:
			u.observe(bucket, "error")
			RespondInternal(ctx, "Could not store file")
		}
		return storage.Object{}, false
	}

	u.observe(bucket, "ok")
	return obj, true
}

// discard removes an object by its public URL. Used for the previous image
// after a replacement and for a new upload whose row update failed.
func (u *Uploader) discard(ctx context.Context, bucket, url string) {
	if url == "" {
		return
	}
	key, ok := u.store.KeyFromURL(bucket, url)
	if !ok {
		return
	}
	err := u.store.Delete(context.WithoutCancel(ctx), bucket, key)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		slog.WarnContext(ctx, "delete stored object", "bucket", bucket, "key", key, "err", err)
	}
}

type FilesHandler struct {
	store storage.Store
}

func NewFilesHandler(store storage.Store) *FilesHandler {
	return &FilesHandler{store: store}
}

// GET /files/:bucket/*key
func (h *FilesHandler) Get(ctx *gin.Context) {
	bucket := ctx.Param("bucket")
	key := strings.TrimPrefix(ctx.Param("key"), "/")

	rc, obj, err := h.store.Open(ctx.Request.Context(), bucket, key)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrNotFound),
			errors.Is(err, storage.ErrUnknownBucket),
			errors.Is(err, storage.ErrInvalidKey):
			RespondNotFound(ctx, "File not found")
		default:
			RespondInternal(ctx, "Could not read file")
		}
		return
	}
	defer rc.Close()

	// keys are never reused, so objects are immutable
	ctx.DataFromReader(http.StatusOK, obj.Size, obj.ContentType, rc, map[string]string{
		"Cache-Control": "public, max-age=31536000, immutable",
	})
}
