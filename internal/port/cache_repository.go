package port

import "context"

type CacheRepository interface {
	// SetIdempotency claims key for token, returns false if it is already claimed
	SetIdempotency(ctx context.Context, key, token string) (bool, error)

	// ReleaseIdempotency drops the claim if it is still held by token
	ReleaseIdempotency(ctx context.Context, key, token string) error
}
