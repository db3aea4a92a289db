// Package sink defines the durable result store contract for batch
// dispatch. A sink receives normalized outcome records keyed by correlation
// key and reports which keys a collection already holds, which is what makes
// resuming a partially completed batch possible.
package sink

import "context"

// Sink is implemented by result stores. Writes are append-only, keyed, and
// must be safe under concurrent writers from multiple tasks; a write for a
// key that already exists must be tolerated as an idempotent no-op, since
// retried tasks and resumed batches can replay writes.
type Sink interface {
	// Write stores one outcome record under collection/key.
	Write(ctx context.Context, collection, key string, record map[string]any) error

	// Keys returns the correlation keys already present in a collection.
	Keys(ctx context.Context, collection string) ([]string, error)
}
