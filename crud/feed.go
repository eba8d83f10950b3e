package crud

import (
	"context"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"microblog/domain"
	"microblog/errs"
)

// commentCount selects every post column plus its number of comments.
const commentCount = "posts.*, (SELECT COUNT(*) FROM comments WHERE comments.post_id = posts.id) AS comment_count"

// FeedService composes paginated, newest-first feeds of posts.
// It implements the domain.FeedService interface.
type FeedService struct {
	db     *gorm.DB
	images domain.ImageService
}

// NewFeedService returns an instance of FeedService.
func NewFeedService(db *gorm.DB, images domain.ImageService) *FeedService {
	return &FeedService{
		db:     db,
		images: images,
	}
}

var _ domain.FeedService = &FeedService{}

// Compose returns the requested page of the posts matching scope. Requests for pages
// past the end, or below 1, get the last page; unreadable page numbers get the first.
func (fs *FeedService) Compose(ctx context.Context, scope domain.Scope, requested string) (*domain.Page, error) {
	filter, err := fs.filter(ctx, scope)
	if err != nil {
		return nil, err
	}

	var total int64
	if err := fs.db.WithContext(ctx).Model(&domain.Post{}).Scopes(filter).Count(&total).Error; err != nil {
		return nil, errors.Wrap(err, "count feed")
	}
	page := domain.NewPage(int(total), requested, domain.PageSize)

	err = fs.db.WithContext(ctx).
		Model(&domain.Post{}).
		Scopes(filter).
		Select(commentCount).
		Preload("Author").
		Preload("Group").
		Order("posts.created_at desc, posts.id desc").
		Offset(page.Offset(domain.PageSize)).
		Limit(domain.PageSize).
		Find(&page.Posts).Error
	if err != nil {
		return nil, errors.Wrap(err, "load feed")
	}
	for i := range page.Posts {
		withImageURLs(fs.images, &page.Posts[i])
	}
	return page, nil
}

// filter resolves the scope to a query condition. Unknown groups and authors are
// not found, the followed feed needs a viewer.
func (fs *FeedService) filter(ctx context.Context, scope domain.Scope) (func(*gorm.DB) *gorm.DB, error) {
	switch scope.Kind {
	case domain.ScopeAll:
		return func(db *gorm.DB) *gorm.DB { return db }, nil

	case domain.ScopeGroup:
		var group domain.Group
		err := first(fs.db.WithContext(ctx).Where("slug = ?", scope.Slug), &group)
		if errs.Is(err, errs.ENOTFOUND) {
			return nil, errs.Errorf(errs.ENOTFOUND, "The group %q does not exist.", scope.Slug)
		} else if err != nil {
			return nil, err
		}
		return func(db *gorm.DB) *gorm.DB { return db.Where("posts.group_id = ?", group.ID) }, nil

	case domain.ScopeAuthor:
		var author domain.User
		err := first(fs.db.WithContext(ctx).Where("username = ?", scope.Username), &author)
		if errs.Is(err, errs.ENOTFOUND) {
			return nil, errs.Errorf(errs.ENOTFOUND, "The user %q does not exist.", scope.Username)
		} else if err != nil {
			return nil, err
		}
		return func(db *gorm.DB) *gorm.DB { return db.Where("posts.author_id = ?", author.ID) }, nil

	case domain.ScopeFollowed:
		if scope.Viewer == nil {
			return nil, errs.Errorf(errs.EUNAUTHORIZED, errs.LoginRequired)
		}
		viewerID := scope.Viewer.ID
		return func(db *gorm.DB) *gorm.DB {
			followed := fs.db.Model(&domain.Follow{}).Select("author_id").Where("user_id = ?", viewerID)
			return db.Where("posts.author_id IN (?)", followed)
		}, nil
	}
	return nil, errs.Errorf(errs.EINVALID, "Unknown feed.")
}
