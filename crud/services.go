package crud

import (
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"microblog/domain"
)

// A ServicesConfig is any function that takes in a pointer to a Services
// object and returns an error. It wraps the constructor of a crud service so
// that main.go can pick the services it needs using functional options.
type ServicesConfig func(*Services) error

// Services is a container object holding pointers to all the crud services.
// The crud services all share the database connection provided by Services.
type Services struct {
	db      *gorm.DB
	log     *logrus.Entry
	User    *UserService
	Group   *GroupService
	Post    *PostService
	Comment *CommentService
	Follow  *FollowService
	Feed    *FeedService
	Image   *ImageService
}

// NewServices returns a new Services object, containing any crud services
// it's told to create by one of the passed in ServicesConfig functions.
// Options run in order, so WithLogger and WithImage go before the services using them.
func NewServices(db *gorm.DB, cfgs ...ServicesConfig) (*Services, error) {
	s := Services{
		db:  db,
		log: logrus.NewEntry(logrus.StandardLogger()),
	}
	for _, cfg := range cfgs {
		if err := cfg(&s); err != nil {
			return nil, err
		}
	}
	return &s, nil
}

// WithLogger sets the logger the services report mutations to.
func WithLogger(log *logrus.Entry) ServicesConfig {
	return func(s *Services) error {
		s.log = log
		return nil
	}
}

// WithUser wraps the constructor of UserService, NewUserService.
func WithUser(pepper, hmacKey string) ServicesConfig {
	return func(s *Services) error {
		s.User = NewUserService(s.db, pepper, hmacKey)
		return nil
	}
}

// WithGroup wraps the constructor of GroupService, NewGroupService.
func WithGroup() ServicesConfig {
	return func(s *Services) error {
		s.Group = NewGroupService(s.db, s.log)
		return nil
	}
}

// WithImage wraps the constructor of ImageService, NewImageService.
func WithImage(store domain.AssetStore) ServicesConfig {
	return func(s *Services) error {
		s.Image = NewImageService(store)
		return nil
	}
}

// WithPost wraps the constructor of PostService, NewPostService.
func WithPost() ServicesConfig {
	return func(s *Services) error {
		s.Post = NewPostService(s.db, s.images(), s.log)
		return nil
	}
}

// WithComment wraps the constructor of CommentService, NewCommentService.
func WithComment() ServicesConfig {
	return func(s *Services) error {
		s.Comment = NewCommentService(s.db, s.log)
		return nil
	}
}

// WithFollow wraps the constructor of FollowService, NewFollowService.
func WithFollow() ServicesConfig {
	return func(s *Services) error {
		s.Follow = NewFollowService(s.db, s.log)
		return nil
	}
}

// WithFeed wraps the constructor of FeedService, NewFeedService.
func WithFeed() ServicesConfig {
	return func(s *Services) error {
		s.Feed = NewFeedService(s.db, s.images())
		return nil
	}
}

// images returns the image service as an interface value, nil if there is none.
func (s *Services) images() domain.ImageService {
	if s.Image == nil {
		return nil
	}
	return s.Image
}
