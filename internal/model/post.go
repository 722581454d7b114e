package model

import (
	"time"
)

// UntitledPost 标题为空时的占位
const UntitledPost = "Untitled Post"

// 文章对读者的状态（派生值，不落库）
const (
	PostStatusDraft     = "draft"
	PostStatusScheduled = "scheduled"
	PostStatusPublished = "published"
)

// Post 文章主体；投票数据在 Poll/PollOption 子表
type Post struct {
	ID           string     `json:"id" gorm:"primaryKey;type:varchar(36)"`
	AuthorID     string     `json:"author_id" gorm:"type:varchar(36);index:idx_post_author;not null"`
	Title        string     `json:"title" gorm:"type:varchar(255);not null"`
	Content      string     `json:"content" gorm:"type:text;not null"`
	CW           *string    `json:"cw,omitempty" gorm:"column:cw;type:varchar(255)"`
	Attachments  []string   `json:"attachments" gorm:"type:text;serializer:json"`
	ThumbnailURL *string    `json:"thumbnail_url,omitempty" gorm:"type:text"`
	Hashtags     []string   `json:"hashtags,omitempty" gorm:"type:text;serializer:json"`
	CategoryID   *string    `json:"category_id,omitempty" gorm:"type:varchar(36);index:idx_post_category"`
	Published    bool       `json:"published" gorm:"not null"`
	ScheduledAt  *time.Time `json:"scheduled_at,omitempty" gorm:"index"`
	Poll         *Poll      `json:"poll,omitempty" gorm:"foreignKey:PostID;references:ID"`
	CreatedAt    time.Time  `json:"created_at" gorm:"index"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

func (Post) TableName() string { return "posts" }

// Status 给作者/管理后台展示的状态
func (p *Post) Status(now time.Time) string {
	switch {
	case !p.Published:
		return PostStatusDraft
	case p.ScheduledAt != nil && p.ScheduledAt.After(now):
		return PostStatusScheduled
	default:
		return PostStatusPublished
	}
}

// CanBeModifiedBy 作者本人或管理员
func (p *Post) CanBeModifiedBy(c *Caller) bool {
	if c == nil {
		return false
	}
	return c.IsAdmin() || (c.ID != "" && c.ID == p.AuthorID)
}
