package localstore

import (
	"context"
	"encoding/json"

	"softspot/internal/identity"
)

// SignIn records id in the identity slots.
func (s *Shim) SignIn(ctx context.Context, id identity.Identity) Result {
	if res := s.setString(ctx, KindCurrentUserID, id.UserID); !res.Success {
		return res
	}
	return s.setString(ctx, KindCurrentUsername, id.Username)
}

// CurrentIdentity reads the identity slots.
func (s *Shim) CurrentIdentity(ctx context.Context) (identity.Identity, bool) {
	userID := s.getString(ctx, KindCurrentUserID)
	if userID == "" {
		return identity.Identity{}, false
	}
	return identity.Identity{UserID: userID, Username: s.getString(ctx, KindCurrentUsername)}, true
}

// SignOut clears currentUserId and currentUsername.
func (s *Shim) SignOut(ctx context.Context) Result {
	if res := s.Clear(ctx, KindCurrentUserID); !res.Success {
		return res
	}
	return s.Clear(ctx, KindCurrentUsername)
}

func (s *Shim) setString(ctx context.Context, kind Kind, v string) Result {
	data, err := json.Marshal(v)
	if err != nil {
		return failed("set", kind, err)
	}
	if err := s.backend.Set(ctx, s.key(kind), data); err != nil {
		return failed("set", kind, err)
	}
	return ok()
}

func (s *Shim) getString(ctx context.Context, kind Kind) string {
	data, found, err := s.backend.Get(ctx, s.key(kind))
	if err != nil || !found {
		return ""
	}
	var v string
	if err := json.Unmarshal(data, &v); err != nil {
		return ""
	}
	return v
}
