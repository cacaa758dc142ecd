package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"strings"
	"time"

	"softspot/internal/featureflags"
	"softspot/internal/forms"
	"softspot/internal/identity"
	"softspot/internal/localstore"
	"softspot/internal/middleware"
	"softspot/internal/models"
	"softspot/internal/outbox"
	"softspot/internal/remote"
	"softspot/internal/repository"

	"gorm.io/gorm"
)

// PostService orchestrates posts and listings: local slots and an outbox
// intent on write, remote rows with the pending overlay on read.
type PostService struct {
	posts    repository.PostRepository
	local    *Local
	flags    *featureflags.Manager
	notifier Notifier
	now      func() time.Time
}

// PostInput is the editable part of a post. A for-sale post is validated with
// the sell-item form, any other post with the post-draft form.
type PostInput struct {
	Title          string   `json:"title"`
	Description    string   `json:"description"`
	Content        string   `json:"content"`
	Image          string   `json:"image"`
	Tags           []string `json:"tags"`
	Price          float64  `json:"price"`
	ForSale        bool     `json:"for_sale"`
	Condition      string   `json:"condition"`
	Brand          string   `json:"brand"`
	Material       string   `json:"material"`
	Color          string   `json:"color"`
	Species        string   `json:"species"`
	Size           string   `json:"size"`
	DeliveryMethod string   `json:"delivery_method"`
	DeliveryCost   float64  `json:"delivery_cost"`
}

func (in PostInput) schema() forms.Schema {
	if in.ForSale {
		return forms.SellItem
	}
	return forms.PostDraft
}

func (in PostInput) apply(p *models.Post) {
	p.Title = strings.TrimSpace(in.Title)
	p.Description = in.Description
	p.Content = in.Content
	p.Image = in.Image
	p.Tags = append([]string{}, in.Tags...)
	p.Price = in.Price
	p.ForSale = in.ForSale
	p.Condition = in.Condition
	p.Brand = in.Brand
	p.Material = in.Material
	p.Color = in.Color
	p.Species = strings.ToLower(strings.TrimSpace(in.Species))
	p.Size = in.Size
	p.DeliveryMethod = in.DeliveryMethod
	p.DeliveryCost = in.DeliveryCost
}

// editableValues are the columns an edit writes. The counters are left to
// adjust_post_counter.
func editableValues(p models.Post) map[string]any {
	return map[string]any{
		"title":           p.Title,
		"description":     p.Description,
		"content":         p.Content,
		"image":           p.Image,
		"tags":            []string(p.Tags),
		"price":           p.Price,
		"for_sale":        p.ForSale,
		"condition":       p.Condition,
		"brand":           p.Brand,
		"material":        p.Material,
		"color":           p.Color,
		"species":         p.Species,
		"size":            p.Size,
		"delivery_method": p.DeliveryMethod,
		"delivery_cost":   p.DeliveryCost,
		"sold":            p.Sold,
		"updated_at":      p.UpdatedAt,
	}
}

// PostPage is a read result. Stale is set when the remote store could not be
// reached and the local slots were served instead.
type PostPage struct {
	Posts []models.Post `json:"posts"`
	Stale bool          `json:"stale"`
}

// LikeResult is the state after a like toggle.
type LikeResult struct {
	Liked bool `json:"liked"`
	Likes int  `json:"likes"`
}

func NewPostService(
	posts repository.PostRepository,
	local *Local,
	flags *featureflags.Manager,
	notifier Notifier,
) *PostService {
	return &PostService{
		posts:    posts,
		local:    local,
		flags:    flags,
		notifier: notifier,
		now:      utcNow,
	}
}

func postID(p models.Post) string { return p.ID }

func sortNewestFirst(posts []models.Post) {
	sort.SliceStable(posts, func(i, j int) bool {
		if posts[i].CreatedAt.Equal(posts[j].CreatedAt) {
			return posts[i].ID > posts[j].ID
		}
		return posts[i].CreatedAt.After(posts[j].CreatedAt)
	})
}

func postIntent(p models.Post) outbox.Intent {
	return outbox.Intent{Table: models.TablePosts, Op: models.OpUpsert, EntityID: p.ID, Payload: p}
}

// writePostSlots stores p in the posts slot and keeps the listings slot in
// step with ForSale.
func writePostSlots(ctx context.Context, shim *localstore.Shim, p models.Post) error {
	if err := shim.Upsert(ctx, localstore.KindPosts, p.ID, p, true).Err(); err != nil {
		return err
	}
	if p.IsListing() {
		return shim.Upsert(ctx, localstore.KindMarketplaceListings, p.ID, p, true).Err()
	}
	return shim.DeleteByID(ctx, localstore.KindMarketplaceListings, p.ID).Err()
}

// AddPost creates a post for the signed-in user and returns it immediately.
// The remote write happens in the background.
func (s *PostService) AddPost(ctx context.Context, in PostInput) (*models.Post, error) {
	id, err := requireSession(ctx, s.local)
	if err != nil {
		return nil, err
	}
	if err := in.schema().Check(in); err != nil {
		return nil, err
	}

	now := s.now()
	post := models.Post{
		ID:        newID(),
		UserID:    id.UserID,
		Username:  id.Username,
		CreatedAt: now,
		UpdatedAt: now,
	}
	in.apply(&post)

	err = s.local.Write(ctx, func(tx *gorm.DB, shim *localstore.Shim) error {
		if err := outbox.Enqueue(tx, postIntent(post)); err != nil {
			return err
		}
		return writePostSlots(ctx, shim, post)
	})
	if err != nil {
		return nil, err
	}

	middleware.Logger.InfoContext(ctx, "Post created",
		slog.String("post_id", post.ID),
		slog.Bool("for_sale", post.ForSale),
	)
	return &post, nil
}

// GetPosts reads posts from the remote store with pending local writes laid
// over them.
func (s *PostService) GetPosts(ctx context.Context, f repository.PostFilter) (*PostPage, error) {
	rows, err := s.posts.List(ctx, f)
	if err != nil {
		return s.fallback(ctx, f, err)
	}

	merged := overlay(rows, s.local.Pending(ctx, models.TablePosts), postID, f.Offset == 0)
	out := make([]models.Post, 0, len(merged))
	for _, p := range merged {
		if f.Matches(p) {
			out = append(out, p)
		}
	}
	sortNewestFirst(out)
	limit, _ := pageBounds(f.Limit, 0)
	if len(out) > limit {
		out = out[:limit]
	}
	return &PostPage{Posts: out}, nil
}

// GetMarketplaceListings is GetPosts restricted to for-sale posts.
func (s *PostService) GetMarketplaceListings(ctx context.Context, f repository.PostFilter) (*PostPage, error) {
	f.ListingsOnly = true
	return s.GetPosts(ctx, f)
}

func (s *PostService) fallbackEnabled(ctx context.Context) bool {
	id, _ := identity.From(ctx)
	return s.flags.Enabled(featureflags.OfflineFallback, id.UserID)
}

func (s *PostService) fallback(ctx context.Context, f repository.PostFilter, cause error) (*PostPage, error) {
	if !s.fallbackEnabled(ctx) || !isRemoteFailure(cause) {
		return nil, cause
	}
	middleware.Logger.WarnContext(ctx, "Remote read failed, serving local posts",
		slog.String("error", cause.Error()),
	)

	kind := localstore.KindPosts
	if f.ListingsOnly {
		kind = localstore.KindMarketplaceListings
	}
	local, _ := localstore.Load[models.Post](ctx, s.local.Shim(), kind)
	out := make([]models.Post, 0, len(local))
	for _, p := range local {
		if f.Matches(p) {
			out = append(out, p)
		}
	}
	sortNewestFirst(out)
	limit, offset := pageBounds(f.Limit, f.Offset)
	if offset >= len(out) {
		out = []models.Post{}
	} else {
		out = out[offset:min(offset+limit, len(out))]
	}
	return &PostPage{Posts: out, Stale: true}, nil
}

// GetPost returns one post, including one that is still waiting in the outbox.
func (s *PostService) GetPost(ctx context.Context, id string) (*models.Post, error) {
	var rows []models.Post
	p, err := s.posts.GetByID(ctx, id)
	switch {
	case err == nil:
		rows = []models.Post{*p}
	case models.HasCode(err, models.CodeNotFound):
	default:
		if s.fallbackEnabled(ctx) && isRemoteFailure(err) {
			if local, ok := localstore.Find[models.Post](ctx, s.local.Shim(), localstore.KindPosts, id); ok {
				return &local, nil
			}
		}
		return nil, err
	}

	for _, candidate := range overlay(rows, s.local.Pending(ctx, models.TablePosts), postID, true) {
		if candidate.ID == id {
			return &candidate, nil
		}
	}
	return nil, models.NewNotFoundError("Post", id)
}

func (s *PostService) owned(ctx context.Context, postID string) (identity.Identity, *models.Post, error) {
	id, err := requireSession(ctx, s.local)
	if err != nil {
		return id, nil, err
	}
	post, err := s.GetPost(ctx, postID)
	if err != nil {
		return id, nil, err
	}
	if post.UserID != id.UserID {
		return id, nil, models.NewUnauthorizedError("You can only change your own posts")
	}
	return id, post, nil
}

// hasBids reports whether any bid references the listing.
func (s *PostService) hasBids(ctx context.Context, listingID string) (bool, error) {
	n, err := s.posts.CountBids(ctx, listingID)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// UpdatePost edits the owner's post. A listing with bids cannot be edited.
func (s *PostService) UpdatePost(ctx context.Context, postID string, in PostInput) (*models.Post, error) {
	_, current, err := s.owned(ctx, postID)
	if err != nil {
		return nil, err
	}
	if current.IsListing() {
		blocked, err := s.hasBids(ctx, postID)
		if err != nil {
			return nil, err
		}
		if blocked {
			return nil, models.NewListingHasBidsError(postID)
		}
	}
	if err := in.schema().Check(in); err != nil {
		return nil, err
	}

	updated := *current
	in.apply(&updated)
	updated.UpdatedAt = s.now()

	err = s.local.Write(ctx, func(tx *gorm.DB, shim *localstore.Shim) error {
		if err := outbox.Enqueue(tx, outbox.Intent{
			Table:    models.TablePosts,
			Op:       models.OpUpdate,
			EntityID: postID,
			Payload:  editableValues(updated),
			Match:    map[string]any{"id": postID},
		}); err != nil {
			return err
		}
		return writePostSlots(ctx, shim, updated)
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// MarkSold flags the owner's listing as sold. Bids do not block this.
func (s *PostService) MarkSold(ctx context.Context, postID string) (*models.Post, error) {
	id, current, err := s.owned(ctx, postID)
	if err != nil {
		return nil, err
	}
	if !current.IsListing() {
		return nil, models.NewValidationError("Only marketplace listings can be marked sold")
	}

	updated := *current
	updated.Sold = true
	updated.UpdatedAt = s.now()

	err = s.local.Write(ctx, func(tx *gorm.DB, shim *localstore.Shim) error {
		if err := outbox.Enqueue(tx, outbox.Intent{
			Table:    models.TablePosts,
			Op:       models.OpUpdate,
			EntityID: postID,
			Payload:  map[string]any{"sold": true, "updated_at": updated.UpdatedAt},
			Match:    map[string]any{"id": postID, "user_id": id.UserID},
		}); err != nil {
			return err
		}
		return writePostSlots(ctx, shim, updated)
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// DeletePost removes the owner's post with its comments and likes.
func (s *PostService) DeletePost(ctx context.Context, postID string) error {
	id, _, err := s.owned(ctx, postID)
	if err != nil {
		return err
	}

	return s.local.Write(ctx, func(tx *gorm.DB, shim *localstore.Shim) error {
		if err := outbox.EnqueueAll(tx,
			outbox.Intent{Table: models.TableComments, Op: models.OpDelete, EntityID: postID, Match: map[string]any{"post_id": postID}},
			outbox.Intent{Table: models.TablePostLikes, Op: models.OpDelete, EntityID: postID, Match: map[string]any{"post_id": postID}},
			outbox.Intent{Table: models.TablePosts, Op: models.OpDelete, EntityID: postID},
		); err != nil {
			return err
		}

		if err := shim.DeleteByID(ctx, localstore.KindPosts, postID).Err(); err != nil {
			return err
		}
		if err := shim.DeleteByID(ctx, localstore.KindMarketplaceListings, postID).Err(); err != nil {
			return err
		}
		if err := shim.DeleteWhere(ctx, localstore.KindComments, commentOfPost(postID)).Err(); err != nil {
			return err
		}
		return shim.Namespace("user:"+id.UserID).DeleteByID(ctx, localstore.KindLikedPosts, postID).Err()
	})
}

// ToggleLike flips the caller's like on a post and moves the counter with it.
func (s *PostService) ToggleLike(ctx context.Context, postID string) (*LikeResult, error) {
	id, err := requireSession(ctx, s.local)
	if err != nil {
		return nil, err
	}
	post, err := s.GetPost(ctx, postID)
	if err != nil {
		return nil, err
	}

	liked := s.likeState(ctx, id.UserID, postID)

	delta := 1
	likeIntent := outbox.Intent{
		Table:      models.TablePostLikes,
		Op:         models.OpUpsert,
		EntityID:   postID,
		Payload:    models.PostLike{UserID: id.UserID, PostID: postID, CreatedAt: s.now()},
		OnConflict: []string{"user_id", "post_id"},
	}
	if liked {
		delta = -1
		likeIntent = outbox.Intent{
			Table:    models.TablePostLikes,
			Op:       models.OpDelete,
			EntityID: postID,
			Match:    map[string]any{"user_id": id.UserID, "post_id": postID},
		}
	}

	err = s.local.Write(ctx, func(tx *gorm.DB, shim *localstore.Shim) error {
		if err := outbox.EnqueueAll(tx, likeIntent, counterIntent(postID, remote.CounterLikes, delta)); err != nil {
			return err
		}
		userShim := shim.Namespace("user:" + id.UserID)
		if liked {
			if err := userShim.DeleteByID(ctx, localstore.KindLikedPosts, postID).Err(); err != nil {
				return err
			}
		} else if err := userShim.Upsert(ctx, localstore.KindLikedPosts, postID, postID, false).Err(); err != nil {
			return err
		}
		return adjustSlotCounter(ctx, shim, postID, remote.CounterLikes, delta)
	})
	if err != nil {
		return nil, err
	}

	if !liked && post.UserID != id.UserID {
		notify(ctx, s.notifier, post.UserID, models.NotifyLike,
			"New like", id.Username+" liked "+post.Title, postID)
	}
	return &LikeResult{Liked: !liked, Likes: max(post.Likes+delta, 0)}, nil
}

// likeState reports whether userID likes postID. The newest pending intent
// wins, since the remote row lags until the outbox drains. Without one the
// device slot, then the remote row, decides.
func (s *PostService) likeState(ctx context.Context, userID, postID string) bool {
	mine := models.PostLike{UserID: userID, PostID: postID}
	liked, pending := false, false
	for _, e := range s.local.Pending(ctx, models.TablePostLikes) {
		if e.EntityID != postID {
			continue
		}
		switch e.Op {
		case models.OpUpsert:
			var like models.PostLike
			if err := json.Unmarshal(e.Payload, &like); err != nil || like.UserID != userID {
				continue
			}
			liked, pending = true, true
		case models.OpDelete:
			if matches(mine, eventMatch(e)) {
				liked, pending = false, true
			}
		}
	}
	if pending {
		return liked
	}

	if s.likedLocally(ctx, userID, postID) {
		return true
	}
	// The slot only knows this device's likes.
	remoteLiked, err := s.posts.IsLiked(ctx, userID, postID)
	return err == nil && remoteLiked
}

func (s *PostService) likedLocally(ctx context.Context, userID, postID string) bool {
	_, ok := localstore.Find[string](ctx, s.local.UserShim(userID), localstore.KindLikedPosts, postID)
	return ok
}

// LikedPostIDs returns the caller's likes recorded on this device.
func (s *PostService) LikedPostIDs(ctx context.Context) ([]string, error) {
	id, err := requireIdentity(ctx)
	if err != nil {
		return nil, err
	}
	ids, _ := localstore.Load[string](ctx, s.local.UserShim(id.UserID), localstore.KindLikedPosts)
	return ids, nil
}

// BidInput is the bid form.
type BidInput struct {
	Amount float64 `json:"amount"`
}

// PlaceBid records a bid on a listing. The bid is written to the remote store
// directly and from then on the listing cannot be edited.
func (s *PostService) PlaceBid(ctx context.Context, listingID string, in BidInput) (*models.ListingBid, error) {
	id, err := requireSession(ctx, s.local)
	if err != nil {
		return nil, err
	}
	if err := forms.Bid.Check(in); err != nil {
		return nil, err
	}

	listing, err := s.GetPost(ctx, listingID)
	if err != nil {
		return nil, err
	}
	if !listing.IsListing() || listing.Sold {
		return nil, models.NewValidationError("This plushie is not for sale")
	}
	if listing.UserID == id.UserID {
		return nil, models.NewValidationError("You cannot bid on your own listing")
	}
	if in.Amount < listing.Price {
		return nil, models.NewFieldValidationError(map[string]string{"amount": "Bid must be at least the asking price"})
	}
	highest, err := s.posts.HighestBid(ctx, listingID)
	if err != nil {
		return nil, err
	}
	if in.Amount <= highest {
		return nil, models.NewFieldValidationError(map[string]string{"amount": "Bid must be higher than the current highest bid"})
	}

	bid := &models.ListingBid{
		ID:        newID(),
		ListingID: listingID,
		BidderID:  id.UserID,
		Amount:    in.Amount,
		CreatedAt: s.now(),
	}
	if err := s.posts.InsertBid(ctx, bid); err != nil {
		return nil, err
	}

	notify(ctx, s.notifier, listing.UserID, models.NotifyBid,
		"New bid", id.Username+" bid on "+listing.Title, listingID)
	return bid, nil
}

func pageBounds(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	return limit, max(offset, 0)
}
