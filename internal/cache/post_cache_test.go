package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/d60-Lab/blogpost/internal/repository"
	"github.com/d60-Lab/blogpost/internal/testutil"
)

var base = time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)

func setup(t *testing.T) (*PostCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	repo := repository.NewPostRepository(testutil.NewTestDB(t))
	return NewPostCache(repo, rdb, time.Minute), mr
}

func TestPostCache_GetReadsThrough(t *testing.T) {
	c, mr := setup(t)
	ctx := context.Background()

	p := testutil.NewPost("p1", "u1", "cached", base)
	p.Poll = testutil.NewPoll("p1", "Q", map[string]int64{"A": 2}, "A", "B")
	require.NoError(t, c.Insert(ctx, p))

	first, err := c.Get(ctx, "p1")
	require.NoError(t, err)
	assert.True(t, mr.Exists("post:p1"))

	second, err := c.Get(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, first.Title, second.Title)
	assert.Equal(t, int64(2), second.Poll.Options[0].Votes)
	assert.Equal(t, Stats{Hits: 1, Misses: 1}, c.Stats())

	mr.FastForward(2 * time.Minute)
	assert.False(t, mr.Exists("post:p1"))
}

func TestPostCache_MissingIsNotCached(t *testing.T) {
	c, mr := setup(t)

	_, err := c.Get(context.Background(), "ghost")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
	assert.False(t, mr.Exists("post:ghost"))
}

func TestPostCache_WritesInvalidate(t *testing.T) {
	c, mr := setup(t)
	ctx := context.Background()

	p := testutil.NewPost("p1", "u1", "v1", base)
	p.Poll = testutil.NewPoll("p1", "Q", nil, "A")
	require.NoError(t, c.Insert(ctx, p))

	_, err := c.Get(ctx, "p1")
	require.NoError(t, err)
	list, err := c.List(ctx, repository.PostFilter{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.True(t, mr.Exists(feedKey))

	ok, err := c.IncrementVote(ctx, "p1", 0, base.Add(time.Minute))
	require.NoError(t, err)
	require.True(t, ok)
	assert.False(t, mr.Exists("post:p1"))
	assert.False(t, mr.Exists(feedKey))

	got, err := c.Get(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.Poll.Options[0].Votes)

	got.Title = "v2"
	require.NoError(t, c.Update(ctx, got))
	got, err = c.Get(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "v2", got.Title)

	require.NoError(t, c.Delete(ctx, "p1"))
	_, err = c.Get(ctx, "p1")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestPostCache_ListPerFilter(t *testing.T) {
	c, _ := setup(t)
	ctx := context.Background()

	require.NoError(t, c.Insert(ctx, testutil.NewPost("p1", "u1", "a", base)))
	require.NoError(t, c.Insert(ctx, testutil.NewPost("p2", "u2", "b", base.Add(time.Minute))))

	all, err := c.List(ctx, repository.PostFilter{})
	require.NoError(t, err)
	mine, err := c.List(ctx, repository.PostFilter{AuthorID: "u1"})
	require.NoError(t, err)
	assert.Len(t, all, 2)
	assert.Len(t, mine, 1)

	c.ResetStats()
	again, err := c.List(ctx, repository.PostFilter{AuthorID: "u1"})
	require.NoError(t, err)
	assert.Len(t, again, 1)
	assert.Equal(t, Stats{Hits: 1}, c.Stats())
}

func TestPostCache_RedisDownFallsBack(t *testing.T) {
	c, mr := setup(t)
	ctx := context.Background()
	require.NoError(t, c.Insert(ctx, testutil.NewPost("p1", "u1", "a", base)))

	mr.Close()

	got, err := c.Get(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "a", got.Title)
}
