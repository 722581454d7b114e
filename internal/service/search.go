package service

import (
	"strings"

	"github.com/d60-Lab/blogpost/internal/model"
)

// SearchTargets 搜索字段；都为 false 时同时搜标题和正文
type SearchTargets struct {
	Title   bool
	Content bool
}

func (t SearchTargets) any() bool { return t.Title || t.Content }

// MatchesQuery 大小写不敏感的子串匹配；空白查询视为不过滤
func MatchesQuery(post *model.Post, q string, targets SearchTargets) bool {
	q = strings.ToLower(strings.TrimSpace(q))
	if q == "" {
		return true
	}
	if !targets.any() {
		targets = SearchTargets{Title: true, Content: true}
	}
	if targets.Title && strings.Contains(strings.ToLower(post.Title), q) {
		return true
	}
	return targets.Content && strings.Contains(strings.ToLower(post.Content), q)
}

// FilterByQuery 必须在 FilterVisible 之后调用
func FilterByQuery(posts []*model.Post, q string, targets SearchTargets) []*model.Post {
	if strings.TrimSpace(q) == "" {
		return posts
	}
	out := make([]*model.Post, 0, len(posts))
	for _, p := range posts {
		if MatchesQuery(p, q, targets) {
			out = append(out, p)
		}
	}
	return out
}

// HasTag 话题精确匹配，忽略大小写和前导 #
func HasTag(post *model.Post, tag string) bool {
	tag = normalizeTag(tag)
	if tag == "" {
		return true
	}
	for _, h := range post.Hashtags {
		if strings.EqualFold(normalizeTag(h), tag) {
			return true
		}
	}
	return false
}

func filterByTag(posts []*model.Post, tag string) []*model.Post {
	if normalizeTag(tag) == "" {
		return posts
	}
	out := make([]*model.Post, 0, len(posts))
	for _, p := range posts {
		if HasTag(p, tag) {
			out = append(out, p)
		}
	}
	return out
}

func normalizeTag(tag string) string {
	return strings.TrimPrefix(strings.TrimSpace(tag), "#")
}

// normalizeHashtags 去空白、去 #、忽略大小写去重，保留首次出现的写法
func normalizeHashtags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		t = normalizeTag(t)
		if t == "" {
			continue
		}
		key := strings.ToLower(t)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, t)
	}
	return out
}
