// Package storage holds the blob store used for raw track logs and photos.
//
// Blobs are written once, read many times and deleted exactly once. A blob
// id is an opaque string handed back by Upload; callers must not derive
// meaning from it.
package storage

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"
)

var (
	ErrUnavailable = errors.New("blob storage unavailable")
	ErrWrite       = errors.New("blob write failed")
	ErrDelete      = errors.New("blob delete failed")
	ErrNotFound    = errors.New("blob not found")
)

// ChunkSize is the read size used by Download.Next.
const ChunkSize = 255 * 1024

// BlobStore is safe for concurrent use by multiple goroutines.
type BlobStore interface {
	// Upload streams r into a new blob and returns its id.
	Upload(ctx context.Context, r io.Reader, filename, contentType string, metadata map[string]string) (string, error)
	// Download opens a stream over an existing blob. The caller must Close it.
	Download(ctx context.Context, id string) (*Download, error)
	// Delete removes a blob. Deleting a missing blob is not an error.
	Delete(ctx context.Context, id string) error
	Exists(ctx context.Context, id string) (bool, error)
}

// BlobInfo describes a stored blob.
type BlobInfo struct {
	ID          string
	Filename    string
	ContentType string
	Size        int64
	Metadata    map[string]string
	UploadedAt  time.Time
}

// Get returns the metadata value stored under key. Keys match without
// regard to case, since S3 lowercases user metadata.
func (i BlobInfo) Get(key string) string {
	if v, ok := i.Metadata[key]; ok {
		return v
	}
	for k, v := range i.Metadata {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return ""
}

// Download is an open stream over a blob's content. It can be consumed
// through io.Reader or chunk by chunk with Next, and may be closed before
// the end is reached.
type Download struct {
	info BlobInfo
	rc   io.ReadCloser
	buf  []byte
}

func NewDownload(info BlobInfo, rc io.ReadCloser) *Download {
	return &Download{info: info, rc: rc}
}

func (d *Download) Info() BlobInfo { return d.info }

func (d *Download) Read(p []byte) (int, error) { return d.rc.Read(p) }

func (d *Download) Close() error { return d.rc.Close() }

// Next returns the next chunk of content, or io.EOF once the blob is
// exhausted. The returned slice is only valid until the following call.
func (d *Download) Next() ([]byte, error) {
	if d.buf == nil {
		d.buf = make([]byte, ChunkSize)
	}
	for {
		n, err := d.rc.Read(d.buf)
		if n > 0 {
			return d.buf[:n], nil
		}
		if err != nil {
			return nil, err
		}
	}
}

// sizeOf reports the length of r when it is cheaply known, or -1.
func sizeOf(r io.Reader) int64 {
	if l, ok := r.(interface{ Len() int }); ok {
		return int64(l.Len())
	}
	return -1
}

func copyMetadata(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
