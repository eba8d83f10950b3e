package domain

import (
	"context"
	"time"
)

// Group is a community posts can be published in. Deleting a group keeps its posts.
type Group struct {
	ID          int    `json:"id"`
	Title       string `json:"title" gorm:"size:200;notNull"`
	Slug        string `json:"slug" gorm:"size:200;notNull;uniqueIndex"`
	Description string `json:"description" gorm:"size:200"`

	CreatedAt time.Time `json:"-"`
	UpdatedAt time.Time `json:"-"`
}

// GroupService is a set of methods to manipulate and work with the Group model.
type GroupService interface {
	Create(ctx context.Context, group *Group) error
	ByID(ctx context.Context, id int) (*Group, error)
	BySlug(ctx context.Context, slug string) (*Group, error)
	All(ctx context.Context) ([]Group, error)
	Delete(ctx context.Context, slug string) error
}
