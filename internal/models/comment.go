package models

import (
	"time"

	"gorm.io/datatypes"
)

// CommentLike is a member of a comment's like-set.
type CommentLike struct {
	UserID string `json:"user_id"`
}

// Comment is a reply on a post. PostID is a reference by convention only.
type Comment struct {
	ID        string                           `gorm:"primaryKey;size:64" json:"id"`
	PostID    string                           `gorm:"not null;index;size:64" json:"post_id"`
	UserID    string                           `gorm:"not null;size:128" json:"user_id"`
	Username  string                           `json:"username"`
	Content   string                           `gorm:"type:text;not null" json:"content"`
	Likes     datatypes.JSONSlice[CommentLike] `json:"likes"`
	CreatedAt time.Time                        `json:"created_at"`
}

func (Comment) TableName() string { return TableComments }

func (c Comment) RecordID() string { return c.ID }

// LikedBy reports whether userID is in the like-set.
func (c Comment) LikedBy(userID string) bool {
	for _, l := range c.Likes {
		if l.UserID == userID {
			return true
		}
	}
	return false
}

// ToggleLike adds userID to the like-set, or removes it when already present.
// It returns true when the user now likes the comment.
func (c *Comment) ToggleLike(userID string) bool {
	out := make(datatypes.JSONSlice[CommentLike], 0, len(c.Likes)+1)
	removed := false
	for _, l := range c.Likes {
		if l.UserID == userID {
			removed = true
			continue
		}
		out = append(out, l)
	}
	if !removed {
		out = append(out, CommentLike{UserID: userID})
	}
	c.Likes = out
	return !removed
}
