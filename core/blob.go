package core

import "context"

// BlobRef is an opaque reference to a stored blob.
type BlobRef string

// BlobStore is any service that can persist opaque blobs (payment proofs).
type BlobStore interface {
	Store(ctx context.Context, content []byte, contentType string) (BlobRef, error)
	Fetch(ctx context.Context, ref BlobRef) ([]byte, error)
}
