// Package storage keeps uploaded images in named buckets and hands out
// public URLs for them.
package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

const (
	BucketProducts = "products"
	BucketServices = "services"
	BucketAvatars  = "avatars"
)

var (
	ErrUnknownBucket      = errors.New("unknown bucket")
	ErrInvalidKey         = errors.New("invalid object key")
	ErrNotFound           = errors.New("object not found")
	ErrTooLarge           = errors.New("object too large")
	ErrUnsupportedContent = errors.New("unsupported content type")
)

type Object struct {
	Bucket      string    `json:"bucket"`
	Key         string    `json:"key"`
	ContentType string    `json:"contentType"`
	Size        int64     `json:"size"`
	URL         string    `json:"url"`
	CreatedAt   time.Time `json:"createdAt"`
}

type Store interface {
	// Put stores r under a fresh key derived from its sniffed content type.
	Put(ctx context.Context, bucket string, r io.Reader) (Object, error)
	Open(ctx context.Context, bucket, key string) (io.ReadCloser, Object, error)
	Delete(ctx context.Context, bucket, key string) error
	PublicURL(bucket, key string) string
	// KeyFromURL reverses PublicURL; ok is false for foreign URLs.
	KeyFromURL(bucket, url string) (key string, ok bool)
}
