package domain

import (
	"context"
	"time"
)

// CommentMaxLength is the maximum number of characters of a comment.
const CommentMaxLength = 200

// Comment is a short reply to a Post. Deleting either the post or the author deletes it.
type Comment struct {
	ID       int    `json:"id"`
	PostID   int    `json:"post_id" gorm:"notNull;index"`
	Post     *Post  `json:"-" gorm:"constraint:OnDelete:CASCADE"`
	AuthorID int    `json:"-" gorm:"notNull;index"`
	Author   User   `json:"author" gorm:"constraint:OnDelete:CASCADE"`
	Text     string `json:"text" gorm:"size:200;notNull"`

	CreatedAt time.Time `json:"created"`
	UpdatedAt time.Time `json:"-"`
}

// CommentForm holds the fields of a Comment as submitted by a user.
type CommentForm struct {
	Text string `json:"text"`
}

// CommentService is a set of methods to manipulate and work with the Comment model.
type CommentService interface {
	Create(ctx context.Context, author *User, post *Post, form CommentForm) (*Comment, error)
	ByPost(ctx context.Context, postID int) ([]Comment, error)
}
