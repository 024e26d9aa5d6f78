package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

// Images are the only content the console uploads.
var allowedTypes = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/webp": ".webp",
	"image/gif":  ".gif",
}

// FSStore keeps objects at <root>/<bucket>/<key>.
type FSStore struct {
	root      string
	publicURL string
	maxBytes  int64
	buckets   map[string]struct{}
	now       func() time.Time
}

func NewFSStore(root, publicURL string, maxBytes int64, buckets ...string) (*FSStore, error) {
	if len(buckets) == 0 {
		buckets = []string{BucketProducts, BucketServices, BucketAvatars}
	}

	s := &FSStore{
		root:      root,
		publicURL: strings.TrimRight(publicURL, "/"),
		maxBytes:  maxBytes,
		buckets:   make(map[string]struct{}, len(buckets)),
		now:       time.Now,
	}

	for _, b := range buckets {
		if err := os.MkdirAll(filepath.Join(root, b), 0o755); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", b, err)
		}
		s.buckets[b] = struct{}{}
	}

	return s, nil
}

func (s *FSStore) Put(ctx context.Context, bucket string, r io.Reader) (Object, error) {
	if _, ok := s.buckets[bucket]; !ok {
		return Object{}, ErrUnknownBucket
	}

	// sniff from the head, then stream head+rest to disk
	head := make([]byte, 3072)
	n, err := io.ReadFull(r, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return Object{}, err
	}
	head = head[:n]

	mt := mimetype.Detect(head)
	ct := baseType(mt.String())
	ext, ok := allowedTypes[ct]
	if !ok {
		return Object{}, fmt.Errorf("%w: %s", ErrUnsupportedContent, ct)
	}

	key := uuid.NewString() + ext
	final := filepath.Join(s.root, bucket, key)

	tmp, err := os.CreateTemp(filepath.Join(s.root, bucket), ".upload-*")
	if err != nil {
		return Object{}, err
	}
	defer os.Remove(tmp.Name())

	src := io.MultiReader(bytes.NewReader(head), r)
	if s.maxBytes > 0 {
		src = io.LimitReader(src, s.maxBytes+1)
	}

	size, err := io.Copy(tmp, readerWithContext(ctx, src))
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return Object{}, err
	}
	if s.maxBytes > 0 && size > s.maxBytes {
		return Object{}, ErrTooLarge
	}

	if err := os.Rename(tmp.Name(), final); err != nil {
		return Object{}, err
	}

	return Object{
		Bucket:      bucket,
		Key:         key,
		ContentType: ct,
		Size:        size,
		URL:         s.PublicURL(bucket, key),
		CreatedAt:   s.now().UTC(),
	}, nil
}

func (s *FSStore) Open(ctx context.Context, bucket, key string) (io.ReadCloser, Object, error) {
	p, err := s.objectPath(bucket, key)
	if err != nil {
		return nil, Object{}, err
	}

	f, err := os.Open(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, Object{}, ErrNotFound
		}
		return nil, Object{}, err
	}

	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, Object{}, err
	}

	ct := mime.TypeByExtension(path.Ext(key))
	if ct == "" {
		ct = "application/octet-stream"
	}

	return f, Object{
		Bucket:      bucket,
		Key:         key,
		ContentType: ct,
		Size:        st.Size(),
		URL:         s.PublicURL(bucket, key),
		CreatedAt:   st.ModTime().UTC(),
	}, nil
}

func (s *FSStore) Delete(ctx context.Context, bucket, key string) error {
	p, err := s.objectPath(bucket, key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ErrNotFound
		}
		return err
	}
	return nil
}

func (s *FSStore) PublicURL(bucket, key string) string {
	return s.publicURL + "/" + bucket + "/" + key
}

// KeyFromURL extracts the key of an object previously returned by
// PublicURL, so replaced images can be removed.
func (s *FSStore) KeyFromURL(bucket, url string) (string, bool) {
	prefix := s.publicURL + "/" + bucket + "/"
	if !strings.HasPrefix(url, prefix) {
		return "", false
	}
	key := strings.TrimPrefix(url, prefix)
	if validKey(key) != nil {
		return "", false
	}
	return key, true
}

func (s *FSStore) objectPath(bucket, key string) (string, error) {
	if _, ok := s.buckets[bucket]; !ok {
		return "", ErrUnknownBucket
	}
	if err := validKey(key); err != nil {
		return "", err
	}
	return filepath.Join(s.root, bucket, key), nil
}

// validKey accepts only flat names; keys we issue are "<uuid>.<ext>".
func validKey(key string) error {
	if key == "" || strings.HasPrefix(key, ".") || strings.ContainsAny(key, `/\`) || strings.Contains(key, "..") {
		return ErrInvalidKey
	}
	return nil
}

func baseType(ct string) string {
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	return strings.TrimSpace(ct)
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

func readerWithContext(ctx context.Context, r io.Reader) io.Reader {
	return ctxReader{ctx: ctx, r: r}
}
