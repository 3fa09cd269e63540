package objstore

import (
	"context"
)

// Store is the object storage collaborator. Uploads are same-key PUTs,
// so callers may safely retry them.
type Store interface {
	// Upload persists data under key and returns its public URL.
	Upload(ctx context.Context, key string, data []byte, contentType string) (string, error)

	// Fetch retrieves a previously stored object by its reference.
	Fetch(ctx context.Context, ref string) ([]byte, error)
}
