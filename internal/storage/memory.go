package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
)

type memoryBlob struct {
	info BlobInfo
	data []byte
}

// MemoryStore keeps blobs in process memory. It backs local development
// (BLOB_BACKEND=memory) and tests.
type MemoryStore struct {
	mu    sync.RWMutex
	blobs map[string]memoryBlob
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blobs: make(map[string]memoryBlob)}
}

func (m *MemoryStore) Upload(ctx context.Context, r io.Reader, filename, contentType string, metadata map[string]string) (string, error) {
	if m == nil || m.blobs == nil {
		return "", ErrUnavailable
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		return "", fmt.Errorf("%w: %w", ErrWrite, err)
	}
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: %w", ErrWrite, err)
	}

	id := uuid.NewString()
	m.mu.Lock()
	m.blobs[id] = memoryBlob{
		info: BlobInfo{
			ID:          id,
			Filename:    filename,
			ContentType: contentType,
			Size:        int64(buf.Len()),
			Metadata:    copyMetadata(metadata),
			UploadedAt:  time.Now().UTC(),
		},
		data: buf.Bytes(),
	}
	m.mu.Unlock()
	return id, nil
}

func (m *MemoryStore) Download(_ context.Context, id string) (*Download, error) {
	m.mu.RLock()
	b, ok := m.blobs[id]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return NewDownload(b.info, io.NopCloser(bytes.NewReader(b.data))), nil
}

func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	delete(m.blobs, id)
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Exists(_ context.Context, id string) (bool, error) {
	m.mu.RLock()
	_, ok := m.blobs[id]
	m.mu.RUnlock()
	return ok, nil
}

// Len returns the number of stored blobs.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.blobs)
}
