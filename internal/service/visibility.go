package service

import (
	"time"

	"github.com/d60-Lab/blogpost/internal/model"
)

// IsVisible 读者是否可见：已发布，且没有定时或定时已到
func IsVisible(post *model.Post, now time.Time) bool {
	if post == nil || !post.Published {
		return false
	}
	return post.ScheduledAt == nil || !post.ScheduledAt.After(now)
}

// FilterVisible 保持原顺序过滤出可见文章
func FilterVisible(posts []*model.Post, now time.Time) []*model.Post {
	out := make([]*model.Post, 0, len(posts))
	for _, p := range posts {
		if IsVisible(p, now) {
			out = append(out, p)
		}
	}
	return out
}
