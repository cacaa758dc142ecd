package cache

import (
	"context"
	"fmt"
	"time"
)

const (
	UserKeyPrefix        = "softspot:user:%s"
	ProfileKeyPrefix     = "softspot:profile:%s"
	BadgeLedgerKeyPrefix = "softspot:badges:%s"
	ListingKeyPrefix     = "softspot:listing:%s"
)

const (
	UserTTL        = 5 * time.Minute
	ProfileTTL     = 10 * time.Minute
	BadgeLedgerTTL = 30 * time.Minute
	ListingTTL     = time.Minute
)

// UserKey caches the synced user row by identity-provider id.
func UserKey(clerkID string) string {
	return fmt.Sprintf(UserKeyPrefix, clerkID)
}

func ProfileKey(userID string) string {
	return fmt.Sprintf(ProfileKeyPrefix, userID)
}

func BadgeLedgerKey(userID string) string {
	return fmt.Sprintf(BadgeLedgerKeyPrefix, userID)
}

func ListingKey(listingID string) string {
	return fmt.Sprintf(ListingKeyPrefix, listingID)
}

// Invalidate deletes key. It is a no-op without Redis.
func Invalidate(ctx context.Context, key string) {
	if client != nil {
		client.Del(ctx, key)
	}
}

func InvalidateProfile(ctx context.Context, userID string) {
	Invalidate(ctx, ProfileKey(userID))
}

func InvalidateBadgeLedger(ctx context.Context, userID string) {
	Invalidate(ctx, BadgeLedgerKey(userID))
}
