package remote

import (
	"context"

	"softspot/internal/identity"
)

// TokenSource yields the bearer token for one request. It is consulted
// before every call and its result is never cached, so an expired session
// token is never replayed.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// TokenFunc adapts a function to TokenSource.
type TokenFunc func(ctx context.Context) (string, error)

func (f TokenFunc) Token(ctx context.Context) (string, error) { return f(ctx) }

// AnonToken always returns the project's anon key.
func AnonToken(anonKey string) TokenSource {
	return TokenFunc(func(context.Context) (string, error) { return anonKey, nil })
}

// StaticToken always returns key. The outbox worker uses it with the service key.
func StaticToken(key string) TokenSource {
	return TokenFunc(func(context.Context) (string, error) { return key, nil })
}

// ContextToken returns the identity-provider token carried by the request
// context and falls back to the anon key for anonymous reads.
func ContextToken(anonKey string) TokenSource {
	return TokenFunc(func(ctx context.Context) (string, error) {
		if token, ok := identity.Token(ctx); ok && token != "" {
			return token, nil
		}
		return anonKey, nil
	})
}
