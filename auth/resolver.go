package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/taskwarden/taskwarden/storage"
)

// Resolver maps a bearer token to a user identity. It delegates token
// verification to the codec, then performs exactly one store lookup per call;
// there is no caching, so a deleted user is rejected on the next request even
// if their token is still within its TTL.
type Resolver struct {
	codec *TokenCodec
	users storage.UserStore
}

// NewResolver creates an identity resolver over the given codec and user
// store.
func NewResolver(codec *TokenCodec, users storage.UserStore) *Resolver {
	return &Resolver{codec: codec, users: users}
}

// Resolve verifies the token, extracts its subject, and looks up the user.
// Invalid or expired tokens, and tokens whose subject no longer exists, fail
// with ErrUnauthenticated. Store faults other than a missing user are
// returned as-is so callers can surface them as internal errors.
func (r *Resolver) Resolve(ctx context.Context, token string) (*storage.User, error) {
	claims, err := r.codec.Verify(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}

	user, err := r.users.FindByUsername(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: unknown subject", ErrUnauthenticated)
		}
		return nil, fmt.Errorf("resolve user %q: %w", claims.Subject, err)
	}
	return user, nil
}
