// Package proof holds the image bytes behind proof artifacts.
package proof

import (
	"context"
	"fmt"
)

// BlobStore keeps proof images out of the document store.
// Get returns (nil, nil) when no object exists under key.
type BlobStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

// ObjectKey names the blob for one chore day of a household week.
func ObjectKey(household, week, choreKey string, day int) string {
	return fmt.Sprintf("households/%s/weeks/%s/proofs/%s-%d", household, week, choreKey, day)
}
