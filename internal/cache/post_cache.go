// Package cache 文章仓储的 redis 读穿缓存
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/d60-Lab/blogpost/internal/model"
	"github.com/d60-Lab/blogpost/internal/repository"
	"github.com/d60-Lab/blogpost/pkg/logger"
)

// feedKey 列表缓存放在一个 hash 里，field 为过滤条件，写入时整体删除
const feedKey = "posts:feed"

func postKey(id string) string { return fmt.Sprintf("post:%s", id) }

func feedField(f repository.PostFilter) string {
	return fmt.Sprintf("author=%s|category=%s", f.AuthorID, f.CategoryID)
}

// PostCache 包装 PostRepository：读走 redis，写成功后失效相关 key。
// 失效与并发回填之间存在竞争，最坏情况下旧数据在 TTL 内可见。
type PostCache struct {
	next  repository.PostRepository
	cache *redis.Client
	ttl   time.Duration

	hits   atomic.Int64
	misses atomic.Int64
}

// NewPostCache ttl <= 0 时取 5 分钟
func NewPostCache(next repository.PostRepository, cache *redis.Client, ttl time.Duration) *PostCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &PostCache{next: next, cache: cache, ttl: ttl}
}

var _ repository.PostRepository = (*PostCache)(nil)

func (c *PostCache) Get(ctx context.Context, id string) (*model.Post, error) {
	key := postKey(id)
	if data, err := c.cache.Get(ctx, key).Bytes(); err == nil {
		var post model.Post
		if uErr := json.Unmarshal(data, &post); uErr == nil {
			c.hits.Add(1)
			return &post, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		logger.Warn("post cache get failed", zap.String("key", key), zap.Error(err))
	}

	c.misses.Add(1)
	post, err := c.next.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if payload, err := json.Marshal(post); err == nil {
		_ = c.cache.Set(ctx, key, payload, c.ttl).Err()
	}
	return post, nil
}

func (c *PostCache) List(ctx context.Context, filter repository.PostFilter) ([]*model.Post, error) {
	field := feedField(filter)
	if data, err := c.cache.HGet(ctx, feedKey, field).Bytes(); err == nil {
		var posts []*model.Post
		if uErr := json.Unmarshal(data, &posts); uErr == nil {
			c.hits.Add(1)
			return posts, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		logger.Warn("feed cache get failed", zap.String("field", field), zap.Error(err))
	}

	c.misses.Add(1)
	posts, err := c.next.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	if payload, err := json.Marshal(posts); err == nil {
		pipe := c.cache.Pipeline()
		pipe.HSet(ctx, feedKey, field, payload)
		pipe.Expire(ctx, feedKey, c.ttl)
		_, _ = pipe.Exec(ctx)
	}
	return posts, nil
}

func (c *PostCache) Insert(ctx context.Context, post *model.Post) error {
	if err := c.next.Insert(ctx, post); err != nil {
		return err
	}
	c.invalidate(ctx, post.ID)
	return nil
}

func (c *PostCache) Update(ctx context.Context, post *model.Post) error {
	if err := c.next.Update(ctx, post); err != nil {
		return err
	}
	c.invalidate(ctx, post.ID)
	return nil
}

func (c *PostCache) Delete(ctx context.Context, id string) error {
	if err := c.next.Delete(ctx, id); err != nil {
		return err
	}
	c.invalidate(ctx, id)
	return nil
}

func (c *PostCache) IncrementVote(ctx context.Context, postID string, optionIndex int, at time.Time) (bool, error) {
	applied, err := c.next.IncrementVote(ctx, postID, optionIndex, at)
	if err != nil || !applied {
		return applied, err
	}
	c.invalidate(ctx, postID)
	return true, nil
}

func (c *PostCache) invalidate(ctx context.Context, id string) {
	if err := c.cache.Del(ctx, postKey(id), feedKey).Err(); err != nil {
		logger.Warn("post cache invalidate failed", zap.String("post_id", id), zap.Error(err))
	}
}

// Stats 命中/回源次数
func (c *PostCache) Stats() Stats {
	return Stats{Hits: c.hits.Load(), Misses: c.misses.Load()}
}

// ResetStats 清零计数
func (c *PostCache) ResetStats() {
	c.hits.Store(0)
	c.misses.Store(0)
}

// Stats summarises cache hits and store loads during a run.
type Stats struct {
	Hits   int64
	Misses int64
}
