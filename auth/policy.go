package auth

import "microblog/domain"

// Action names something a user can do on the site.
type Action string

const (
	ActionViewFeed       Action = "view_feed"
	ActionViewGroup      Action = "view_group"
	ActionViewProfile    Action = "view_profile"
	ActionViewPost       Action = "view_post"
	ActionCreatePost     Action = "create_post"
	ActionEditPost       Action = "edit_post"
	ActionCreateComment  Action = "create_comment"
	ActionFollow         Action = "follow"
	ActionUnfollow       Action = "unfollow"
	ActionViewFollowFeed Action = "view_follow_feed"
	ActionSignup         Action = "signup"
	ActionLogin          Action = "login"
	ActionLogout         Action = "logout"
)

var protected = map[Action]bool{
	ActionCreatePost:     true,
	ActionEditPost:       true,
	ActionCreateComment:  true,
	ActionFollow:         true,
	ActionUnfollow:       true,
	ActionViewFollowFeed: true,
	ActionLogout:         true,
}

// RequiresAuth reports whether an action needs a signed-in user.
// Reading posts, feeds and profiles is public.
func RequiresAuth(action Action) bool {
	return protected[action]
}

// CanEdit reports whether actor may change post. Only the author can.
func CanEdit(actor *domain.User, post *domain.Post) bool {
	if actor == nil || post == nil {
		return false
	}
	return actor.ID == post.AuthorID
}

// CanViewEdit reports whether actor may open the edit form of post.
func CanViewEdit(actor *domain.User, post *domain.Post) bool {
	return CanEdit(actor, post)
}
