package domain

import (
	"context"
	"time"
)

// Follow is a directed edge from a following User to the Author they follow.
// The pair is unique and a user never follows themselves; both rules are
// enforced by the database as well.
type Follow struct {
	ID       int  `json:"id"`
	UserID   int  `json:"-" gorm:"notNull;uniqueIndex:idx_follows_pair;check:chk_follows_not_self,user_id <> author_id"`
	User     User `json:"user" gorm:"constraint:OnDelete:CASCADE"`
	AuthorID int  `json:"-" gorm:"notNull;uniqueIndex:idx_follows_pair;index"`
	Author   User `json:"author" gorm:"constraint:OnDelete:CASCADE"`

	CreatedAt time.Time `json:"created_at"`
}

// FollowOutcome describes what a subscribe or unsubscribe request did.
type FollowOutcome int

const (
	// FollowCreated means a new edge was stored.
	FollowCreated FollowOutcome = iota
	// FollowSelf means the user tried to follow themselves; nothing was stored.
	FollowSelf
	// FollowExists means the edge was already there; nothing was stored.
	FollowExists
	// UnfollowDeleted means an existing edge was removed.
	UnfollowDeleted
	// UnfollowNoop means there was no edge to remove.
	UnfollowNoop
)

// Changed reports whether the outcome modified the user's subscriptions.
func (o FollowOutcome) Changed() bool {
	return o == FollowCreated || o == UnfollowDeleted
}

func (o FollowOutcome) String() string {
	switch o {
	case FollowCreated:
		return "created"
	case FollowSelf:
		return "self"
	case FollowExists:
		return "exists"
	case UnfollowDeleted:
		return "deleted"
	case UnfollowNoop:
		return "noop"
	}
	return "unknown"
}

// FollowService is a set of methods to manipulate and work with the Follow model.
type FollowService interface {
	Follow(ctx context.Context, user *User, username string) (FollowOutcome, error)
	Unfollow(ctx context.Context, user *User, username string) (FollowOutcome, error)
	IsFollowing(ctx context.Context, user *User, author *User) (bool, error)
	CountFollowers(ctx context.Context, authorID int) (int, error)
	CountFollowing(ctx context.Context, userID int) (int, error)
}
