package auth

import (
	"context"

	"microblog/domain"
)

const (
	userKey privateKey = "user"
)

type privateKey string

// SetUser returns a copy of ctx carrying the signed-in user.
func SetUser(ctx context.Context, user *domain.User) context.Context {
	return context.WithValue(ctx, userKey, user)
}

// GetUser returns the signed-in user of ctx, or nil for anonymous requests.
func GetUser(ctx context.Context) *domain.User {
	if temp := ctx.Value(userKey); temp != nil {
		if user, ok := temp.(*domain.User); ok {
			return user
		}
	}
	return nil
}
