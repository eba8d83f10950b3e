package crud

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"microblog/domain"
	"microblog/errs"
)

func TestFollowOutcomes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	leo := f.user(t, "leo")
	f.user(t, "tolstoy")

	outcome, err := f.Follow.Follow(ctx, leo, "leo")
	require.NoError(t, err)
	assert.Equal(t, domain.FollowSelf, outcome)

	outcome, err = f.Follow.Follow(ctx, leo, "tolstoy")
	require.NoError(t, err)
	assert.Equal(t, domain.FollowCreated, outcome)

	outcome, err = f.Follow.Follow(ctx, leo, "tolstoy")
	require.NoError(t, err)
	assert.Equal(t, domain.FollowExists, outcome)

	var count int64
	require.NoError(t, f.db.Gorm.Model(&domain.Follow{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)

	_, err = f.Follow.Follow(ctx, leo, "nobody")
	assert.Equal(t, errs.ENOTFOUND, errs.ErrorCode(err))

	_, err = f.Follow.Follow(ctx, nil, "tolstoy")
	assert.Equal(t, errs.EUNAUTHORIZED, errs.ErrorCode(err))
}

func TestUnfollow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	leo := f.user(t, "leo")
	f.user(t, "tolstoy")

	_, err := f.Follow.Follow(ctx, leo, "tolstoy")
	require.NoError(t, err)

	outcome, err := f.Follow.Unfollow(ctx, leo, "tolstoy")
	require.NoError(t, err)
	assert.Equal(t, domain.UnfollowDeleted, outcome)

	outcome, err = f.Follow.Unfollow(ctx, leo, "tolstoy")
	require.NoError(t, err)
	assert.Equal(t, domain.UnfollowNoop, outcome)

	outcome, err = f.Follow.Unfollow(ctx, leo, "nobody")
	require.NoError(t, err)
	assert.Equal(t, domain.UnfollowNoop, outcome)

	_, err = f.Follow.Unfollow(ctx, nil, "tolstoy")
	assert.Equal(t, errs.EUNAUTHORIZED, errs.ErrorCode(err))
}

func TestFollowCounts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, b, c := f.user(t, "a"), f.user(t, "b"), f.user(t, "c")
	for _, pair := range []struct {
		user   *domain.User
		author string
	}{{a, "c"}, {b, "c"}, {c, "a"}} {
		_, err := f.Follow.Follow(ctx, pair.user, pair.author)
		require.NoError(t, err)
	}

	followers, err := f.Follow.CountFollowers(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, followers)

	following, err := f.Follow.CountFollowing(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, following)

	yes, err := f.Follow.IsFollowing(ctx, a, c)
	require.NoError(t, err)
	assert.True(t, yes)
	no, err := f.Follow.IsFollowing(ctx, c, b)
	require.NoError(t, err)
	assert.False(t, no)
	anon, err := f.Follow.IsFollowing(ctx, nil, c)
	require.NoError(t, err)
	assert.False(t, anon)
}

func TestConcurrentFollowStoresOneEdge(t *testing.T) {
	f := newFixture(t)
	leo := f.user(t, "leo")
	f.user(t, "tolstoy")

	var wg sync.WaitGroup
	outcomes := make([]domain.FollowOutcome, 8)
	for i := range outcomes {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			o, err := f.Follow.Follow(context.Background(), leo, "tolstoy")
			assert.NoError(t, err)
			outcomes[i] = o
		}(i)
	}
	wg.Wait()

	created := 0
	for _, o := range outcomes {
		if o == domain.FollowCreated {
			created++
		} else {
			assert.Equal(t, domain.FollowExists, o)
		}
	}
	assert.Equal(t, 1, created)
}
