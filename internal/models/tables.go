package models

// Remote table names.
const (
	TableUsers         = "users"
	TablePosts         = "posts"
	TablePostLikes     = "post_likes"
	TableProfiles      = "profiles"
	TableNotifications = "notifications"
	TableTradeRequests = "trade_requests"
	TableListingBids   = "listing_bids"
	TableComments      = "comments"
	TableWishlistItems = "wishlist_items"
	TableBadgeEvents   = "badge_events"
)

// RemoteModels lists every model stored in the remote relational store, in
// migration order.
func RemoteModels() []any {
	return []any{
		&User{},
		&Profile{},
		&Post{},
		&PostLike{},
		&Comment{},
		&ListingBid{},
		&WishlistItem{},
		&BadgeEvent{},
		&Notification{},
		&TradeRequest{},
	}
}

// LocalModels lists the tables owned by the local store.
func LocalModels() []any {
	return []any{
		&LocalSlot{},
		&OutboxEvent{},
		&DLQEntry{},
	}
}

// NewRemoteModel returns a fresh pointer to the model stored in table.
func NewRemoteModel(table string) (any, bool) {
	switch table {
	case TableUsers:
		return &User{}, true
	case TableProfiles:
		return &Profile{}, true
	case TablePosts:
		return &Post{}, true
	case TablePostLikes:
		return &PostLike{}, true
	case TableComments:
		return &Comment{}, true
	case TableListingBids:
		return &ListingBid{}, true
	case TableWishlistItems:
		return &WishlistItem{}, true
	case TableBadgeEvents:
		return &BadgeEvent{}, true
	case TableNotifications:
		return &Notification{}, true
	case TableTradeRequests:
		return &TradeRequest{}, true
	default:
		return nil, false
	}
}
