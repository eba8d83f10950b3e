package domain

import "context"

// ScopeKind selects which posts a feed shows.
type ScopeKind int

const (
	ScopeAll ScopeKind = iota
	ScopeGroup
	ScopeAuthor
	ScopeFollowed
)

// Scope is the filter of a feed. Slug is set for ScopeGroup, Username for
// ScopeAuthor and Viewer for ScopeFollowed.
type Scope struct {
	Kind     ScopeKind
	Slug     string
	Username string
	Viewer   *User
}

// AllPosts is the global feed.
func AllPosts() Scope {
	return Scope{Kind: ScopeAll}
}

// GroupPosts is the feed of the group with the given slug.
func GroupPosts(slug string) Scope {
	return Scope{Kind: ScopeGroup, Slug: slug}
}

// AuthorPosts is the feed of the user with the given username.
func AuthorPosts(username string) Scope {
	return Scope{Kind: ScopeAuthor, Username: username}
}

// FollowedPosts is the feed of all authors the viewer follows.
func FollowedPosts(viewer *User) Scope {
	return Scope{Kind: ScopeFollowed, Viewer: viewer}
}

// GroupFeed is the group page view.
type GroupFeed struct {
	Group *Group `json:"group"`
	Page  *Page  `json:"page"`
}

// FeedService composes paginated feeds.
type FeedService interface {
	Compose(ctx context.Context, scope Scope, page string) (*Page, error)
}
