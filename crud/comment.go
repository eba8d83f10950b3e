package crud

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"microblog/domain"
	"microblog/errs"
)

// CommentService manages Comments. It implements the domain.CommentService interface.
type CommentService struct {
	db  *gorm.DB
	log *logrus.Entry
}

// NewCommentService returns an instance of CommentService.
func NewCommentService(db *gorm.DB, log *logrus.Entry) *CommentService {
	return &CommentService{
		db:  db,
		log: log,
	}
}

var _ domain.CommentService = &CommentService{}

// Create stores form as a comment of author on post. Post and author are always
// taken from the caller, never from the form.
func (cs *CommentService) Create(ctx context.Context, author *domain.User, post *domain.Post, form domain.CommentForm) (*domain.Comment, error) {
	if author == nil {
		return nil, errs.Errorf(errs.EUNAUTHORIZED, errs.LoginRequired)
	}
	if post == nil {
		return nil, errs.Errorf(errs.ENOTFOUND, "The post does not exist.")
	}
	text := strings.TrimSpace(form.Text)
	if text == "" {
		return nil, errs.FieldError("text", errs.FieldRequired)
	}
	if n := utf8.RuneCountInString(text); n > domain.CommentMaxLength {
		return nil, errs.FieldError("text", fmt.Sprintf("Ensure this value has at most %d characters (it has %d).", domain.CommentMaxLength, n))
	}

	comment := &domain.Comment{
		PostID:   post.ID,
		AuthorID: author.ID,
		Text:     text,
	}
	if err := cs.db.WithContext(ctx).Omit(clause.Associations).Create(comment).Error; err != nil {
		return nil, errors.Wrap(err, "create comment")
	}
	comment.Author = *author
	cs.log.WithFields(logrus.Fields{"post": post.ID, "author": author.Username}).Info("comment created")
	return comment, nil
}

// ByPost returns the comments of a post, newest first.
func (cs *CommentService) ByPost(ctx context.Context, postID int) ([]domain.Comment, error) {
	var comments []domain.Comment
	err := cs.db.WithContext(ctx).
		Preload("Author").
		Where("post_id = ?", postID).
		Order("created_at desc, id desc").
		Find(&comments).Error
	if err != nil {
		return nil, errors.Wrap(err, "list comments")
	}
	return comments, nil
}
