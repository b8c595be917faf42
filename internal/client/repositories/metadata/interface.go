// Package metadata is the durable key/value store of the client. The only
// state kept there is the session credential.
package metadata

import (
	"context"
)

// Repository is a small key/value store. Get returns (nil, nil) for a key
// that does not exist.
type Repository interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Clear(ctx context.Context) error
}
