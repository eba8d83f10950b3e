package crud

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"microblog/auth"
	"microblog/domain"
	"microblog/errs"
)

// PostService manages Posts. The author of a post is always the acting user and
// only the author may change it afterwards. It implements the domain.PostService interface.
type PostService struct {
	postValidator
	log *logrus.Entry
}

// postValidator runs validations on submitted post forms.
// On success, it passes the data on to postGorm.
type postValidator struct {
	images domain.ImageService
	postGorm
}

// postGorm runs CRUD operations on the database using validated Post data.
type postGorm struct {
	db *gorm.DB
}

// NewPostService returns an instance of PostService. images may be nil, in which
// case posts can't carry images.
func NewPostService(db *gorm.DB, images domain.ImageService, log *logrus.Entry) *PostService {
	return &PostService{
		postValidator: postValidator{
			images:   images,
			postGorm: postGorm{db: db},
		},
		log: log,
	}
}

var _ domain.PostService = &PostService{}

// Create validates form and stores it as a new post of author.
func (ps *PostService) Create(ctx context.Context, author *domain.User, form domain.PostForm) (*domain.Post, error) {
	if author == nil {
		return nil, errs.Errorf(errs.EUNAUTHORIZED, errs.LoginRequired)
	}
	if err := ps.validate(ctx, &form); err != nil {
		return nil, err
	}

	post := &domain.Post{
		Text:     form.Text,
		AuthorID: author.ID,
		GroupID:  form.GroupID,
	}
	if form.Image != nil {
		key, err := ps.images.Store(ctx, form.Image)
		if err != nil {
			return nil, err
		}
		post.Image = key
	}
	if err := ps.postGorm.Create(ctx, post); err != nil {
		ps.dropImage(ctx, post.Image)
		return nil, err
	}
	ps.log.WithFields(logrus.Fields{"post": post.ID, "author": author.Username}).Info("post created")
	return ps.ByID(ctx, post.ID)
}

// Update overwrites the text, group and image of post with form. A new upload
// replaces the image, ClearImage removes it, and otherwise the image is kept.
// The author and publication date never change.
func (ps *PostService) Update(ctx context.Context, actor *domain.User, post *domain.Post, form domain.PostForm) (*domain.Post, error) {
	if actor == nil {
		return nil, errs.Errorf(errs.EUNAUTHORIZED, errs.LoginRequired)
	}
	if post == nil {
		return nil, errs.Errorf(errs.ENOTFOUND, "The post does not exist.")
	}
	if !auth.CanEdit(actor, post) {
		return nil, errs.Errorf(errs.EFORBIDDEN, "Only the author can edit this post.")
	}
	if err := ps.validate(ctx, &form); err != nil {
		return nil, err
	}

	oldImage := post.Image
	image := oldImage
	if form.Image != nil {
		key, err := ps.images.Store(ctx, form.Image)
		if err != nil {
			return nil, err
		}
		image = key
	} else if form.ClearImage {
		image = ""
	}

	updated := *post
	updated.Text = form.Text
	updated.GroupID = form.GroupID
	updated.Image = image
	if err := ps.postGorm.Update(ctx, &updated); err != nil {
		if image != oldImage {
			ps.dropImage(ctx, image)
		}
		return nil, err
	}
	if image != oldImage {
		ps.dropImage(ctx, oldImage)
	}
	ps.log.WithFields(logrus.Fields{"post": post.ID, "author": actor.Username}).Info("post updated")
	return ps.ByID(ctx, post.ID)
}

// ByID retrieves a post with its author and group.
func (ps *PostService) ByID(ctx context.Context, id int) (*domain.Post, error) {
	post, err := ps.postGorm.ByID(ctx, id)
	if err != nil {
		return nil, err
	}
	withImageURLs(ps.images, post)
	return post, nil
}

// ByAuthorAndID retrieves a post by id, but only if username wrote it.
func (ps *PostService) ByAuthorAndID(ctx context.Context, username string, id int) (*domain.Post, error) {
	post, err := ps.postGorm.ByAuthorAndID(ctx, username, id)
	if err != nil {
		return nil, err
	}
	withImageURLs(ps.images, post)
	return post, nil
}

// dropImage deletes an image that is no longer referenced. Failures only leave an
// orphaned file behind, so they are logged and ignored.
func (ps *PostService) dropImage(ctx context.Context, key string) {
	if key == "" || ps.images == nil {
		return
	}
	if err := ps.images.Delete(ctx, key); err != nil {
		ps.log.WithError(err).WithField("key", key).Warn("could not delete image")
	}
}

// validate normalizes form and checks every field, reporting all invalid fields at once.
func (pv *postValidator) validate(ctx context.Context, form *domain.PostForm) error {
	return runPostValFns(form,
		pv.textNormalize,
		pv.textRequired,
		pv.groupExists(ctx),
		pv.imageValid)
}

// runPostValFns runs every validation and merges the field errors they report.
// Any other kind of error stops the run.
func runPostValFns(form *domain.PostForm, fns ...postValFn) error {
	var invalid *errs.Error
	for _, fn := range fns {
		err := fn(form)
		if err == nil {
			continue
		}
		fields := errs.ErrorFields(err)
		if errs.ErrorCode(err) != errs.EINVALID || len(fields) == 0 {
			return err
		}
		if invalid == nil {
			invalid = &errs.Error{Code: errs.EINVALID, Message: errs.ErrorMessage(err), Fields: map[string]string{}}
		}
		for field, msg := range fields {
			if _, ok := invalid.Fields[field]; !ok {
				invalid.Fields[field] = msg
			}
		}
	}
	if invalid != nil {
		return invalid
	}
	return nil
}

// A postValFn is any function that takes in a pointer to a domain.PostForm object and returns an error.
type postValFn func(form *domain.PostForm) error

func (pv *postValidator) textNormalize(form *domain.PostForm) error {
	form.Text = strings.TrimSpace(form.Text)
	return nil
}

func (pv *postValidator) textRequired(form *domain.PostForm) error {
	if form.Text == "" {
		return errs.FieldError("text", errs.FieldRequired)
	}
	return nil
}

// groupExists makes sure that the chosen group, if any, exists.
func (pv *postValidator) groupExists(ctx context.Context) postValFn {
	return func(form *domain.PostForm) error {
		if form.GroupID == nil {
			return nil
		}
		var count int64
		err := pv.db.WithContext(ctx).Model(&domain.Group{}).Where("id = ?", *form.GroupID).Count(&count).Error
		if err != nil {
			return errors.Wrap(err, "check group")
		}
		if count == 0 {
			return errs.FieldError("group", "Select a valid choice. That choice is not one of the available choices.")
		}
		return nil
	}
}

func (pv *postValidator) imageValid(form *domain.PostForm) error {
	if form.Image == nil {
		return nil
	}
	if pv.images == nil {
		return errs.FieldError("image", "Image uploads are not available.")
	}
	return pv.images.Validate(form.Image)
}

func (pg *postGorm) Create(ctx context.Context, post *domain.Post) error {
	return errors.Wrap(pg.db.WithContext(ctx).Omit(clause.Associations).Create(post).Error, "create post")
}

// Update writes the editable columns of post.
func (pg *postGorm) Update(ctx context.Context, post *domain.Post) error {
	err := pg.db.WithContext(ctx).Model(&domain.Post{ID: post.ID}).Updates(map[string]interface{}{
		"text":     post.Text,
		"group_id": post.GroupID,
		"image":    post.Image,
	}).Error
	return errors.Wrap(err, "update post")
}

func (pg *postGorm) ByID(ctx context.Context, id int) (*domain.Post, error) {
	var post domain.Post
	err := first(pg.db.WithContext(ctx).Preload("Author").Preload("Group").Where("id = ?", id), &post)
	if errs.Is(err, errs.ENOTFOUND) {
		return nil, errs.Errorf(errs.ENOTFOUND, "The post does not exist.")
	}
	if err != nil {
		return nil, err
	}
	return &post, nil
}

func (pg *postGorm) ByAuthorAndID(ctx context.Context, username string, id int) (*domain.Post, error) {
	var post domain.Post
	authors := pg.db.Model(&domain.User{}).Select("id").Where("username = ?", username)
	db := pg.db.WithContext(ctx).
		Preload("Author").
		Preload("Group").
		Where("id = ? AND author_id IN (?)", id, authors)
	err := first(db, &post)
	if errs.Is(err, errs.ENOTFOUND) {
		return nil, errs.Errorf(errs.ENOTFOUND, "The post does not exist.")
	}
	if err != nil {
		return nil, err
	}
	return &post, nil
}

// withImageURLs resolves the public image url of every post.
func withImageURLs(images domain.ImageService, posts ...*domain.Post) {
	if images == nil {
		return
	}
	for _, p := range posts {
		p.ImageURL = images.URL(p.Image)
	}
}
