package port

import "context"

type KeyLocker interface {
	// Lock acquires mutation ownership of the given keys in the order
	// given; callers must pass keys in the fixed global order so two
	// multi-key transactions cannot circular-wait. The returned release
	// function unlocks in reverse order.
	Lock(ctx context.Context, keys []string) (release func(), err error)
}
