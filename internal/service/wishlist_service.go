package service

import (
	"context"
	"sort"
	"strings"
	"time"

	"softspot/internal/featureflags"
	"softspot/internal/forms"
	"softspot/internal/localstore"
	"softspot/internal/models"
	"softspot/internal/outbox"
	"softspot/internal/repository"

	"gorm.io/gorm"
)

// WishlistService keeps the caller's wishlist. The userWishlist slot is
// private to the user's namespace.
type WishlistService struct {
	items repository.WishlistRepository
	local *Local
	flags *featureflags.Manager
	now   func() time.Time
}

type WishlistInput struct {
	PlushieID string  `json:"plushie_id"`
	Title     string  `json:"title"`
	Image     string  `json:"image"`
	Price     float64 `json:"price"`
	Brand     string  `json:"brand"`
	Species   string  `json:"species"`
	Priority  string  `json:"priority"`
}

type WishlistPage struct {
	Items []models.WishlistItem `json:"items"`
	Stale bool                  `json:"stale"`
}

func NewWishlistService(items repository.WishlistRepository, local *Local, flags *featureflags.Manager) *WishlistService {
	return &WishlistService{items: items, local: local, flags: flags, now: utcNow}
}

func wishlistID(w models.WishlistItem) string { return w.ID }

func (s *WishlistService) Add(ctx context.Context, in WishlistInput) (*models.WishlistItem, error) {
	id, err := requireSession(ctx, s.local)
	if err != nil {
		return nil, err
	}
	if err := forms.Wishlist.Check(in); err != nil {
		return nil, err
	}

	item := models.WishlistItem{
		ID:        newID(),
		UserID:    id.UserID,
		PlushieID: in.PlushieID,
		Title:     strings.TrimSpace(in.Title),
		Image:     in.Image,
		Price:     in.Price,
		Brand:     in.Brand,
		Species:   strings.ToLower(strings.TrimSpace(in.Species)),
		Priority:  in.Priority,
		Status:    models.WishlistWanted,
		CreatedAt: s.now(),
	}
	if item.Priority == "" {
		item.Priority = models.PriorityMedium
	}

	err = s.local.Write(ctx, func(tx *gorm.DB, shim *localstore.Shim) error {
		if err := outbox.Enqueue(tx, outbox.Intent{
			Table:    models.TableWishlistItems,
			Op:       models.OpUpsert,
			EntityID: item.ID,
			Payload:  item,
		}); err != nil {
			return err
		}
		return shim.Namespace("user:"+id.UserID).Add(ctx, localstore.KindUserWishlist, item, true).Err()
	})
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// List returns the caller's wishlist, newest first.
func (s *WishlistService) List(ctx context.Context) (*WishlistPage, error) {
	id, err := requireIdentity(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := s.items.ListByUser(ctx, id.UserID)
	if err != nil {
		if !s.flags.Enabled(featureflags.OfflineFallback, id.UserID) || !isRemoteFailure(err) {
			return nil, err
		}
		local, _ := localstore.Load[models.WishlistItem](ctx, s.local.UserShim(id.UserID), localstore.KindUserWishlist)
		sortWishlist(local)
		return &WishlistPage{Items: local, Stale: true}, nil
	}

	merged := overlay(rows, s.local.Pending(ctx, models.TableWishlistItems), wishlistID, true)
	out := make([]models.WishlistItem, 0, len(merged))
	for _, w := range merged {
		if w.UserID == id.UserID {
			out = append(out, w)
		}
	}
	sortWishlist(out)
	return &WishlistPage{Items: out}, nil
}

func sortWishlist(items []models.WishlistItem) {
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})
}

func (s *WishlistService) owned(ctx context.Context, itemID string) (string, *models.WishlistItem, error) {
	id, err := requireSession(ctx, s.local)
	if err != nil {
		return "", nil, err
	}
	var rows []models.WishlistItem
	item, err := s.items.GetByID(ctx, itemID)
	switch {
	case err == nil:
		rows = []models.WishlistItem{*item}
	case models.HasCode(err, models.CodeNotFound):
	default:
		return "", nil, err
	}
	for _, w := range overlay(rows, s.local.Pending(ctx, models.TableWishlistItems), wishlistID, true) {
		if w.ID != itemID {
			continue
		}
		if w.UserID != id.UserID {
			return "", nil, models.NewUnauthorizedError("You can only change your own wishlist")
		}
		return id.UserID, &w, nil
	}
	return "", nil, models.NewNotFoundError("Wishlist item", itemID)
}

func (s *WishlistService) update(ctx context.Context, itemID string, values map[string]any, mutate func(*models.WishlistItem)) (*models.WishlistItem, error) {
	userID, item, err := s.owned(ctx, itemID)
	if err != nil {
		return nil, err
	}
	mutate(item)

	err = s.local.Write(ctx, func(tx *gorm.DB, shim *localstore.Shim) error {
		if err := outbox.Enqueue(tx, outbox.Intent{
			Table:    models.TableWishlistItems,
			Op:       models.OpUpdate,
			EntityID: itemID,
			Payload:  values,
			Match:    map[string]any{"id": itemID},
		}); err != nil {
			return err
		}
		return shim.Namespace("user:"+userID).Upsert(ctx, localstore.KindUserWishlist, itemID, item, true).Err()
	})
	if err != nil {
		return nil, err
	}
	return item, nil
}

func (s *WishlistService) UpdatePriority(ctx context.Context, itemID, priority string) (*models.WishlistItem, error) {
	if !models.ValidPriority(priority) {
		return nil, models.NewFieldValidationError(map[string]string{"priority": "Priority must be one of: low, medium, high"})
	}
	return s.update(ctx, itemID, map[string]any{"priority": priority}, func(w *models.WishlistItem) {
		w.Priority = priority
	})
}

func (s *WishlistService) UpdateStatus(ctx context.Context, itemID, status string) (*models.WishlistItem, error) {
	if !models.ValidWishlistStatus(status) {
		return nil, models.NewFieldValidationError(map[string]string{"status": "Status must be one of: wanted, acquired, given_up"})
	}
	return s.update(ctx, itemID, map[string]any{"status": status}, func(w *models.WishlistItem) {
		w.Status = status
	})
}

func (s *WishlistService) Remove(ctx context.Context, itemID string) error {
	userID, _, err := s.owned(ctx, itemID)
	if err != nil {
		return err
	}
	return s.local.Write(ctx, func(tx *gorm.DB, shim *localstore.Shim) error {
		if err := outbox.Enqueue(tx, outbox.Intent{
			Table:    models.TableWishlistItems,
			Op:       models.OpDelete,
			EntityID: itemID,
		}); err != nil {
			return err
		}
		return shim.Namespace("user:"+userID).DeleteByID(ctx, localstore.KindUserWishlist, itemID).Err()
	})
}
