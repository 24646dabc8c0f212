package port

import "context"

type IdempotencyFence interface {
	// Reserve claims a request key, returning false if the key was
	// already claimed by an earlier submission.
	Reserve(ctx context.Context, key string) (bool, error)
}
