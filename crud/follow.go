package crud

import (
	"context"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"microblog/domain"
	"microblog/errs"
)

// FollowService manages the Follow relationships between Users.
// It implements the domain.FollowService interface.
type FollowService struct {
	db  *gorm.DB
	log *logrus.Entry
}

// NewFollowService returns an instance of FollowService.
func NewFollowService(db *gorm.DB, log *logrus.Entry) *FollowService {
	return &FollowService{
		db:  db,
		log: log,
	}
}

// Ensure the FollowService struct properly implements the domain.FollowService interface.
var _ domain.FollowService = &FollowService{}

// Follow subscribes user to the author with the given username. Following yourself
// and following someone twice are not errors, they just don't store anything.
func (fs *FollowService) Follow(ctx context.Context, user *domain.User, username string) (domain.FollowOutcome, error) {
	if user == nil {
		return 0, errs.Errorf(errs.EUNAUTHORIZED, errs.LoginRequired)
	}
	author, err := fs.author(ctx, username)
	if err != nil {
		return 0, err
	}
	if author.ID == user.ID {
		return domain.FollowSelf, nil
	}

	// The unique index on the pair settles concurrent duplicates.
	follow := domain.Follow{UserID: user.ID, AuthorID: author.ID}
	res := fs.db.WithContext(ctx).
		Omit(clause.Associations).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&follow)
	if res.Error != nil {
		return 0, errors.Wrap(res.Error, "create follow")
	}
	if res.RowsAffected == 0 {
		return domain.FollowExists, nil
	}
	fs.log.WithFields(logrus.Fields{"user": user.Username, "author": author.Username}).Info("follow created")
	return domain.FollowCreated, nil
}

// Unfollow removes the subscription of user to the author with the given username,
// if there is one. Unknown usernames are a no-op.
func (fs *FollowService) Unfollow(ctx context.Context, user *domain.User, username string) (domain.FollowOutcome, error) {
	if user == nil {
		return 0, errs.Errorf(errs.EUNAUTHORIZED, errs.LoginRequired)
	}
	author, err := fs.author(ctx, username)
	if errs.Is(err, errs.ENOTFOUND) {
		return domain.UnfollowNoop, nil
	}
	if err != nil {
		return 0, err
	}
	res := fs.db.WithContext(ctx).
		Where("user_id = ? AND author_id = ?", user.ID, author.ID).
		Delete(&domain.Follow{})
	if res.Error != nil {
		return 0, errors.Wrap(res.Error, "delete follow")
	}
	if res.RowsAffected == 0 {
		return domain.UnfollowNoop, nil
	}
	fs.log.WithFields(logrus.Fields{"user": user.Username, "author": author.Username}).Info("follow deleted")
	return domain.UnfollowDeleted, nil
}

// IsFollowing reports whether user follows author. Anonymous users follow nobody.
func (fs *FollowService) IsFollowing(ctx context.Context, user *domain.User, author *domain.User) (bool, error) {
	if user == nil || author == nil {
		return false, nil
	}
	var count int64
	err := fs.db.WithContext(ctx).
		Model(&domain.Follow{}).
		Where("user_id = ? AND author_id = ?", user.ID, author.ID).
		Count(&count).Error
	if err != nil {
		return false, errors.Wrap(err, "check follow")
	}
	return count > 0, nil
}

// CountFollowers returns how many users follow the author.
func (fs *FollowService) CountFollowers(ctx context.Context, authorID int) (int, error) {
	return fs.count(ctx, "author_id = ?", authorID)
}

// CountFollowing returns how many authors the user follows.
func (fs *FollowService) CountFollowing(ctx context.Context, userID int) (int, error) {
	return fs.count(ctx, "user_id = ?", userID)
}

func (fs *FollowService) count(ctx context.Context, query string, id int) (int, error) {
	var count int64
	err := fs.db.WithContext(ctx).Model(&domain.Follow{}).Where(query, id).Count(&count).Error
	if err != nil {
		return 0, errors.Wrap(err, "count follows")
	}
	return int(count), nil
}

func (fs *FollowService) author(ctx context.Context, username string) (*domain.User, error) {
	var author domain.User
	err := first(fs.db.WithContext(ctx).Where("username = ?", username), &author)
	if errs.Is(err, errs.ENOTFOUND) {
		return nil, errs.Errorf(errs.ENOTFOUND, "The user %q does not exist.", username)
	}
	if err != nil {
		return nil, err
	}
	return &author, nil
}
