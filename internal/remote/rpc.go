package remote

import (
	"context"
	"errors"
	"fmt"
	"time"

	"softspot/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Counters adjustable through adjust_post_counter.
const (
	CounterLikes    = "likes"
	CounterComments = "comments"
)

func createUserSafe(_ context.Context, db *gorm.DB, args map[string]any) (any, error) {
	clerkID := stringArg(args, "p_clerk_id")
	if clerkID == "" {
		return nil, &Error{Status: 400, Code: "22023", Message: "p_clerk_id is required"}
	}
	user := models.User{
		ID:        uuid.New(),
		ClerkID:   clerkID,
		Username:  stringArg(args, "p_username"),
		Email:     stringArg(args, "p_email"),
		AvatarURL: stringArg(args, "p_avatar_url"),
		CreatedAt: time.Now().UTC(),
	}
	err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "clerk_id"}},
		DoNothing: true,
	}).Create(&user).Error
	return nil, err
}

func adjustPostCounter(_ context.Context, db *gorm.DB, args map[string]any) (any, error) {
	postID := stringArg(args, "p_post_id")
	counter := stringArg(args, "p_counter")
	if counter != CounterLikes && counter != CounterComments {
		return nil, &Error{Status: 400, Code: "P0001", Message: fmt.Sprintf("unknown counter %s", counter)}
	}
	delta, err := intArg(args, "p_delta")
	if err != nil {
		return nil, &Error{Status: 400, Code: "22023", Message: err.Error()}
	}
	// Clamped at zero like the SQL function.
	expr := gorm.Expr(fmt.Sprintf("CASE WHEN %[1]s + ? < 0 THEN 0 ELSE %[1]s + ? END", counter), delta, delta)
	err = db.Model(&models.Post{}).Where("id = ?", postID).UpdateColumn(counter, expr).Error
	return nil, err
}

// setCommentLike adds or removes one user in a comment's like-set. A missing
// comment is not an error.
func setCommentLike(_ context.Context, db *gorm.DB, args map[string]any) (any, error) {
	commentID := stringArg(args, "p_comment_id")
	userID := stringArg(args, "p_user_id")
	if commentID == "" || userID == "" {
		return nil, &Error{Status: 400, Code: "22023", Message: "p_comment_id and p_user_id are required"}
	}
	liked, ok := args["p_liked"].(bool)
	if !ok {
		return nil, &Error{Status: 400, Code: "22023", Message: "p_liked must be a boolean"}
	}

	err := db.Transaction(func(tx *gorm.DB) error {
		q := tx.Where("id = ?", commentID)
		if tx.Dialector.Name() == "postgres" {
			q = q.Clauses(clause.Locking{Strength: "UPDATE"})
		}
		var c models.Comment
		if err := q.Take(&c).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}
		if c.LikedBy(userID) == liked {
			return nil
		}
		c.ToggleLike(userID)
		return tx.Model(&models.Comment{}).Where("id = ?", commentID).Update("likes", c.Likes).Error
	})
	return nil, err
}

func stringArg(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return s
}

func intArg(args map[string]any, key string) (int64, error) {
	switch v := args[key].(type) {
	case int:
		return int64(v), nil
	case int64:
		return v, nil
	case float64:
		return int64(v), nil
	default:
		return 0, fmt.Errorf("%s must be an integer", key)
	}
}
