// Package identity carries the resolved caller identity through a request
// context.
package identity

import "context"

type ctxKey int

const (
	identityKey ctxKey = iota
	tokenKey
)

// Identity is a caller resolved from an identity-provider token.
type Identity struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
}

// Empty reports whether no user is resolved.
func (i Identity) Empty() bool { return i.UserID == "" }

// With returns a copy of ctx carrying id.
func With(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// From returns the identity carried by ctx, if any.
func From(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	if !ok || id.Empty() {
		return Identity{}, false
	}
	return id, true
}

// WithToken stores the raw bearer token for just-in-time forwarding.
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey, token)
}

// Token returns the raw bearer token stored by WithToken.
func Token(ctx context.Context) (string, bool) {
	t, ok := ctx.Value(tokenKey).(string)
	return t, ok && t != ""
}
