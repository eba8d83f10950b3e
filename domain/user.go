package domain

import (
	"context"
	"time"
)

// User is an author and reader of posts. Username is the public handle used in urls.
// Password and Remember only live in memory: the database stores their hashes.
type User struct {
	ID           int    `json:"id"`
	Username     string `json:"username" gorm:"size:150;notNull;uniqueIndex"`
	Email        string `json:"-" gorm:"size:254;index"`
	Password     string `json:"-" gorm:"-"`
	PasswordHash string `json:"-" gorm:"notNull"`
	Remember     string `json:"-" gorm:"-"`
	RememberHash string `json:"-" gorm:"notNull;uniqueIndex"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"-"`
}

// Profile is the author page view: the author, their feed page and follow counts.
// Following tells whether the viewing user is subscribed to the author.
type Profile struct {
	Author         *User `json:"author"`
	Page           *Page `json:"page"`
	FollowerCount  int   `json:"follower_count"`
	FollowingCount int   `json:"following_count"`
	Following      bool  `json:"following"`
}

// UserService is a set of methods to manipulate and work with the User model.
type UserService interface {
	Create(ctx context.Context, user *User) error
	Update(ctx context.Context, user *User) error
	Authenticate(ctx context.Context, username, password string) (*User, error)
	MakeRememberToken() (string, error)
	ByID(ctx context.Context, id int) (*User, error)
	ByUsername(ctx context.Context, username string) (*User, error)
	ByRemember(token string) (*User, error)
}
