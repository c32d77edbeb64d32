package blobsvc

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/malipo/core"
)

// memoryStore keeps blobs in memory behind opaque references. Proof uploads in
// Debug mode and tests go through here.
type memoryStore struct {
	mu    sync.RWMutex
	blobs map[core.BlobRef]blob
}

type blob struct {
	content     []byte
	contentType string
}

var _ core.BlobStore = (*memoryStore)(nil)

func NewMemoryStore() *memoryStore {
	return &memoryStore{blobs: make(map[core.BlobRef]blob)}
}

func (svc *memoryStore) Store(ctx context.Context, content []byte, contentType string) (core.BlobRef, error) {
	ref := core.BlobRef("blob-" + uuid.New().String())
	cp := make([]byte, len(content))
	copy(cp, content)

	svc.mu.Lock()
	svc.blobs[ref] = blob{content: cp, contentType: contentType}
	svc.mu.Unlock()
	return ref, nil
}

func (svc *memoryStore) Fetch(ctx context.Context, ref core.BlobRef) ([]byte, error) {
	svc.mu.RLock()
	b, ok := svc.blobs[ref]
	svc.mu.RUnlock()
	if !ok {
		return nil, errors.Errorf("blob %q not found", ref)
	}
	return b.content, nil
}
