package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"microblog/domain"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(Config{Dialect: "sqlite"}, true)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.AutoMigrate())
	return db
}

func TestConnectionInfo(t *testing.T) {
	pg := DefaultConfig()
	assert.Equal(t, "host=localhost port=5432 user=postgres dbname=microblog sslmode=disable", pg.ConnectionInfo())
	pg.Password = "pw"
	assert.Contains(t, pg.ConnectionInfo(), "password=pw")

	lite := Config{Dialect: "sqlite", Path: "dev.db"}
	assert.Equal(t, "file:dev.db?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", lite.ConnectionInfo())
}

func TestOpenRejectsUnknownDialect(t *testing.T) {
	_, err := Open(Config{Dialect: "oracle"}, true)
	assert.Error(t, err)
}

func TestSelfFollowRejectedByStorage(t *testing.T) {
	db := openTestDB(t)
	user := domain.User{Username: "leo", PasswordHash: "x", RememberHash: "r1"}
	require.NoError(t, db.Gorm.Create(&user).Error)

	err := db.Gorm.Create(&domain.Follow{UserID: user.ID, AuthorID: user.ID}).Error
	assert.Error(t, err)
}

func TestDuplicateFollowRejectedByStorage(t *testing.T) {
	db := openTestDB(t)
	a := domain.User{Username: "a", PasswordHash: "x", RememberHash: "r1"}
	b := domain.User{Username: "b", PasswordHash: "x", RememberHash: "r2"}
	require.NoError(t, db.Gorm.Create(&a).Error)
	require.NoError(t, db.Gorm.Create(&b).Error)

	require.NoError(t, db.Gorm.Create(&domain.Follow{UserID: a.ID, AuthorID: b.ID}).Error)
	assert.Error(t, db.Gorm.Create(&domain.Follow{UserID: a.ID, AuthorID: b.ID}).Error)
}

func TestDeletingGroupKeepsPosts(t *testing.T) {
	db := openTestDB(t)
	user := domain.User{Username: "leo", PasswordHash: "x", RememberHash: "r1"}
	require.NoError(t, db.Gorm.Create(&user).Error)
	group := domain.Group{Title: "Cats", Slug: "cats"}
	require.NoError(t, db.Gorm.Create(&group).Error)
	post := domain.Post{Text: "meow", AuthorID: user.ID, GroupID: &group.ID}
	require.NoError(t, db.Gorm.Omit("Author", "Group").Create(&post).Error)

	require.NoError(t, db.Gorm.Delete(&group).Error)

	var got domain.Post
	require.NoError(t, db.Gorm.First(&got, post.ID).Error)
	assert.Nil(t, got.GroupID)
}

func TestDeletingAuthorDeletesPosts(t *testing.T) {
	db := openTestDB(t)
	user := domain.User{Username: "leo", PasswordHash: "x", RememberHash: "r1"}
	require.NoError(t, db.Gorm.Create(&user).Error)
	post := domain.Post{Text: "hi", AuthorID: user.ID}
	require.NoError(t, db.Gorm.Omit("Author", "Group").Create(&post).Error)

	require.NoError(t, db.Gorm.Delete(&user).Error)

	var count int64
	require.NoError(t, db.Gorm.Model(&domain.Post{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestDestructiveReset(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.Gorm.Create(&domain.Group{Title: "Cats", Slug: "cats"}).Error)
	require.NoError(t, db.DestructiveReset())

	var count int64
	require.NoError(t, db.Gorm.Model(&domain.Group{}).Count(&count).Error)
	assert.Zero(t, count)
}
