// Package blobstore stores follow-up attachments. It defines the BlobStore
// interface and an in-memory implementation suitable for testing and
// single-node deployments.
package blobstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	ErrBlobNotFound       = errors.New("blob not found")
	ErrFileTooLarge       = errors.New("file exceeds maximum allowed size")
	ErrInvalidContentType = errors.New("content type is not allowed")
	ErrMissingFileName    = errors.New("file name is required")
)

// MaxFileSize is the maximum allowed attachment size in bytes (10 MB).
const MaxFileSize = 10 * 1024 * 1024

// AllowedContentTypes lists the MIME types accepted for follow-up
// attachments.
var AllowedContentTypes = map[string]bool{
	"image/png":          true,
	"image/jpeg":         true,
	"image/gif":          true,
	"application/pdf":    true,
	"text/plain":         true,
	"text/csv":           true,
	"application/msword": true,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": true,
}

// BlobMetadata describes a stored attachment.
type BlobMetadata struct {
	ID          string    `json:"id"`
	FileName    string    `json:"file_name"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	FollowUpID  string    `json:"follow_up_id,omitempty"`
	Hash        string    `json:"hash"`
	CreatedAt   time.Time `json:"created_at"`
	CreatedBy   string    `json:"created_by"`
}

// BlobStore defines the contract for attachment storage backends.
type BlobStore interface {
	Upload(ctx context.Context, meta BlobMetadata, content io.Reader) (*BlobMetadata, error)
	Download(ctx context.Context, id string) (io.ReadCloser, *BlobMetadata, error)
	Delete(ctx context.Context, id string) error
	GetMetadata(ctx context.Context, id string) (*BlobMetadata, error)
	ListByFollowUp(ctx context.Context, followUpID string) ([]*BlobMetadata, error)
}

type storedBlob struct {
	metadata BlobMetadata
	content  []byte
}

// InMemoryBlobStore is a thread-safe, in-memory BlobStore.
type InMemoryBlobStore struct {
	mu    sync.RWMutex
	blobs map[string]*storedBlob
}

// NewInMemoryBlobStore returns a ready-to-use InMemoryBlobStore.
func NewInMemoryBlobStore() *InMemoryBlobStore {
	return &InMemoryBlobStore{
		blobs: make(map[string]*storedBlob),
	}
}

// Upload validates inputs, reads the content, computes a SHA-256 hash, and
// stores the blob in memory.
func (s *InMemoryBlobStore) Upload(_ context.Context, meta BlobMetadata, content io.Reader) (*BlobMetadata, error) {
	if meta.FileName == "" {
		return nil, ErrMissingFileName
	}
	if meta.ContentType != "" && !AllowedContentTypes[meta.ContentType] {
		return nil, ErrInvalidContentType
	}

	// Read content into memory so we can measure size and compute hash.
	data, err := io.ReadAll(io.LimitReader(content, MaxFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("reading content: %w", err)
	}
	if int64(len(data)) > MaxFileSize {
		return nil, ErrFileTooLarge
	}

	h := sha256.Sum256(data)

	meta.ID = uuid.New().String()
	meta.Size = int64(len(data))
	meta.Hash = fmt.Sprintf("%x", h)
	meta.CreatedAt = time.Now().UTC()

	s.mu.Lock()
	s.blobs[meta.ID] = &storedBlob{
		metadata: meta,
		content:  data,
	}
	s.mu.Unlock()

	out := meta // copy
	return &out, nil
}

// Download returns an io.ReadCloser over the blob content and its metadata.
func (s *InMemoryBlobStore) Download(_ context.Context, id string) (io.ReadCloser, *BlobMetadata, error) {
	s.mu.RLock()
	blob, ok := s.blobs[id]
	s.mu.RUnlock()

	if !ok {
		return nil, nil, ErrBlobNotFound
	}

	meta := blob.metadata // copy
	return io.NopCloser(bytes.NewReader(blob.content)), &meta, nil
}

// Delete removes a blob by ID.
func (s *InMemoryBlobStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.blobs[id]; !ok {
		return ErrBlobNotFound
	}
	delete(s.blobs, id)
	return nil
}

// GetMetadata returns blob metadata without content.
func (s *InMemoryBlobStore) GetMetadata(_ context.Context, id string) (*BlobMetadata, error) {
	s.mu.RLock()
	blob, ok := s.blobs[id]
	s.mu.RUnlock()

	if !ok {
		return nil, ErrBlobNotFound
	}

	meta := blob.metadata // copy
	return &meta, nil
}

// ListByFollowUp returns all attachments for a given follow-up.
func (s *InMemoryBlobStore) ListByFollowUp(_ context.Context, followUpID string) ([]*BlobMetadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*BlobMetadata
	for _, b := range s.blobs {
		if b.metadata.FollowUpID != followUpID {
			continue
		}
		m := b.metadata // copy
		matched = append(matched, &m)
	}
	return matched, nil
}
