package crud

import (
	"context"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"microblog/domain"
	"microblog/errs"
)

// GroupService manages Groups. Groups are created by operators through the command
// line, users only pick one for their posts.
type GroupService struct {
	groupValidator
	log *logrus.Entry
}

type groupValidator struct {
	slugRegex *regexp.Regexp
	groupGorm
}

type groupGorm struct {
	db *gorm.DB
}

// NewGroupService returns an instance of GroupService.
func NewGroupService(db *gorm.DB, log *logrus.Entry) *GroupService {
	return &GroupService{
		groupValidator: groupValidator{
			slugRegex: regexp.MustCompile(`^[-a-zA-Z0-9_]+$`),
			groupGorm: groupGorm{db: db},
		},
		log: log,
	}
}

var _ domain.GroupService = &GroupService{}

// Create validates and stores a new group.
func (gs *GroupService) Create(ctx context.Context, group *domain.Group) error {
	err := runGroupValFns(group,
		gs.normalize,
		gs.titleValid,
		gs.slugValid,
		gs.slugIsAvail(ctx),
		gs.descriptionValid)
	if err != nil {
		return err
	}
	if err := gs.groupGorm.Create(ctx, group); err != nil {
		return err
	}
	gs.log.WithField("slug", group.Slug).Info("group created")
	return nil
}

// Delete removes the group with the given slug. Its posts are kept without a group.
func (gs *GroupService) Delete(ctx context.Context, slug string) error {
	res := gs.db.WithContext(ctx).Where("slug = ?", slug).Delete(&domain.Group{})
	if res.Error != nil {
		return errors.Wrap(res.Error, "delete group")
	}
	if res.RowsAffected == 0 {
		return errs.Errorf(errs.ENOTFOUND, "The group %q does not exist.", slug)
	}
	gs.log.WithField("slug", slug).Info("group deleted")
	return nil
}

func runGroupValFns(group *domain.Group, fns ...groupValFn) error {
	for _, fn := range fns {
		if err := fn(group); err != nil {
			return err
		}
	}
	return nil
}

type groupValFn func(group *domain.Group) error

func (gv *groupValidator) normalize(group *domain.Group) error {
	group.Title = strings.TrimSpace(group.Title)
	group.Slug = strings.TrimSpace(group.Slug)
	group.Description = strings.TrimSpace(group.Description)
	return nil
}

func (gv *groupValidator) titleValid(group *domain.Group) error {
	if group.Title == "" {
		return errs.FieldError("title", errs.FieldRequired)
	}
	if utf8.RuneCountInString(group.Title) > 200 {
		return errs.FieldError("title", "Ensure this value has at most 200 characters.")
	}
	return nil
}

func (gv *groupValidator) slugValid(group *domain.Group) error {
	if group.Slug == "" {
		return errs.FieldError("slug", errs.FieldRequired)
	}
	if utf8.RuneCountInString(group.Slug) > 200 || !gv.slugRegex.MatchString(group.Slug) {
		return errs.FieldError("slug", "Enter a valid slug consisting of letters, numbers, underscores or hyphens.")
	}
	return nil
}

func (gv *groupValidator) slugIsAvail(ctx context.Context) groupValFn {
	return func(group *domain.Group) error {
		_, err := gv.BySlug(ctx, group.Slug)
		if errs.Is(err, errs.ENOTFOUND) {
			return nil
		}
		if err != nil {
			return err
		}
		return errs.FieldError("slug", "A group with this slug already exists.")
	}
}

func (gv *groupValidator) descriptionValid(group *domain.Group) error {
	if utf8.RuneCountInString(group.Description) > 200 {
		return errs.FieldError("description", "Ensure this value has at most 200 characters.")
	}
	return nil
}

// ByID retrieves a Group by ID.
func (gg *groupGorm) ByID(ctx context.Context, id int) (*domain.Group, error) {
	var group domain.Group
	if err := first(gg.db.WithContext(ctx).Where("id = ?", id), &group); err != nil {
		return nil, err
	}
	return &group, nil
}

// BySlug retrieves a Group by its slug.
func (gg *groupGorm) BySlug(ctx context.Context, slug string) (*domain.Group, error) {
	var group domain.Group
	err := first(gg.db.WithContext(ctx).Where("slug = ?", slug), &group)
	if errs.Is(err, errs.ENOTFOUND) {
		return nil, errs.Errorf(errs.ENOTFOUND, "The group %q does not exist.", slug)
	}
	if err != nil {
		return nil, err
	}
	return &group, nil
}

// All returns every group ordered by title.
func (gg *groupGorm) All(ctx context.Context) ([]domain.Group, error) {
	var groups []domain.Group
	err := gg.db.WithContext(ctx).Order("title, id").Find(&groups).Error
	return groups, errors.Wrap(err, "list groups")
}

func (gg *groupGorm) Create(ctx context.Context, group *domain.Group) error {
	return errors.Wrap(gg.db.WithContext(ctx).Create(group).Error, "create group")
}
