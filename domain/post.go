package domain

import (
	"context"
	"time"
)

// Post is a text entry written by an Author, optionally published in a Group and
// illustrated by an Image. CreatedAt is the publication date and never changes.
// Author is a strong reference (deleting the user deletes the post), Group is a
// weak one (deleting the group clears GroupID).
type Post struct {
	ID       int    `json:"id"`
	Text     string `json:"text" gorm:"type:text;notNull"`
	AuthorID int    `json:"-" gorm:"notNull;index"`
	Author   User   `json:"author" gorm:"constraint:OnDelete:CASCADE"`
	GroupID  *int   `json:"-" gorm:"index"`
	Group    *Group `json:"group,omitempty" gorm:"constraint:OnDelete:SET NULL"`
	Image    string `json:"-"`

	// ImageURL and CommentCount are filled in for views and never stored.
	ImageURL     string `json:"image,omitempty" gorm:"-"`
	CommentCount int    `json:"comment_count" gorm:"->;-:migration"`

	CreatedAt time.Time `json:"pub_date" gorm:"index"`
	UpdatedAt time.Time `json:"-"`
}

// PostForm holds the editable fields of a Post as submitted by a user.
// Author is deliberately absent: it is always the acting user.
type PostForm struct {
	Text       string  `json:"text"`
	GroupID    *int    `json:"group"`
	Image      *Upload `json:"-"`
	ClearImage bool    `json:"clear_image,omitempty"`
}

// PostView is the single post page: the post, its author and its comments.
type PostView struct {
	Post     *Post     `json:"post"`
	Author   *User     `json:"author"`
	Comments []Comment `json:"comments"`
}

// PostService is a set of methods to manipulate and work with the Post model.
type PostService interface {
	Create(ctx context.Context, author *User, form PostForm) (*Post, error)
	Update(ctx context.Context, actor *User, post *Post, form PostForm) (*Post, error)
	ByAuthorAndID(ctx context.Context, username string, id int) (*Post, error)
}
