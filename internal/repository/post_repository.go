package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/d60-Lab/blogpost/internal/model"
)

// PostFilter 列表过滤条件，零值表示不过滤
type PostFilter struct {
	AuthorID   string
	CategoryID string
}

// PostRepository 文章仓储接口
type PostRepository interface {
	// Get 按 ID 查询，附带投票；不存在返回 gorm.ErrRecordNotFound
	Get(ctx context.Context, id string) (*model.Post, error)

	// List 按创建时间倒序
	List(ctx context.Context, filter PostFilter) ([]*model.Post, error)

	// Insert 在一个事务内写入文章与投票
	Insert(ctx context.Context, post *model.Post) error

	// Update 整体替换可编辑字段并同步投票选项（保留库中票数）。
	// updated_at 按 post.UpdatedAt 原样写入
	Update(ctx context.Context, post *model.Post) error

	// Delete 删除文章及其投票
	Delete(ctx context.Context, id string) error

	// IncrementVote 原子地给第 optionIndex 个选项加一票并把文章 updated_at 置为 at；
	// 选项不存在时返回 false
	IncrementVote(ctx context.Context, postID string, optionIndex int, at time.Time) (bool, error)
}

// 编辑时允许覆盖的列；id、author_id、created_at 不在其中
var updatableColumns = []string{
	"title", "content", "cw", "attachments", "thumbnail_url", "hashtags",
	"category_id", "published", "scheduled_at", "updated_at",
}

type postRepository struct {
	db *gorm.DB
}

func NewPostRepository(db *gorm.DB) PostRepository { return &postRepository{db: db} }

func withPoll(db *gorm.DB) *gorm.DB {
	return db.Preload("Poll").Preload("Poll.Options", func(tx *gorm.DB) *gorm.DB {
		return tx.Order("position ASC")
	})
}

func (r *postRepository) Get(ctx context.Context, id string) (*model.Post, error) {
	var post model.Post
	if err := withPoll(r.db.WithContext(ctx)).Where("id = ?", id).First(&post).Error; err != nil {
		return nil, err
	}
	return &post, nil
}

func (r *postRepository) List(ctx context.Context, filter PostFilter) ([]*model.Post, error) {
	query := r.db.WithContext(ctx).Model(&model.Post{})
	if filter.AuthorID != "" {
		query = query.Where("author_id = ?", filter.AuthorID)
	}
	if filter.CategoryID != "" {
		query = query.Where("category_id = ?", filter.CategoryID)
	}

	var posts []*model.Post
	if err := withPoll(query).Order("created_at DESC").Find(&posts).Error; err != nil {
		return nil, err
	}
	return posts, nil
}

func (r *postRepository) Insert(ctx context.Context, post *model.Post) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(post).Error; err != nil {
			return err
		}
		if post.Poll == nil {
			return nil
		}
		post.Poll.PostID = post.ID
		if err := tx.Omit(clause.Associations).Create(post.Poll).Error; err != nil {
			return err
		}
		if len(post.Poll.Options) == 0 {
			return nil
		}
		for i := range post.Poll.Options {
			post.Poll.Options[i].PostID = post.ID
			post.Poll.Options[i].Position = i
		}
		return tx.Create(&post.Poll.Options).Error
	})
}

func (r *postRepository) Update(ctx context.Context, post *model.Post) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.Post{}).
			Where("id = ?", post.ID).
			Select(updatableColumns).
			Omit(clause.Associations).
			UpdateColumns(post)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return syncPoll(tx, post.ID, post.Poll)
	})
}

// syncPoll 让库中投票与 poll 一致。已存在的选项只改文案和顺序，
// votes 列保持库中的值，编辑期间并发落地的投票不会被覆盖。
func syncPoll(tx *gorm.DB, postID string, poll *model.Poll) error {
	if poll == nil || len(poll.Options) == 0 {
		if err := tx.Where("post_id = ?", postID).Delete(&model.PollOption{}).Error; err != nil {
			return err
		}
		return tx.Where("post_id = ?", postID).Delete(&model.Poll{}).Error
	}

	poll.PostID = postID
	if err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "post_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"question"}),
	}).Omit(clause.Associations).Create(poll).Error; err != nil {
		return err
	}

	keep := make([]string, len(poll.Options))
	for i := range poll.Options {
		poll.Options[i].PostID = postID
		poll.Options[i].Position = i
		keep[i] = poll.Options[i].ID
	}
	if err := tx.Where("post_id = ? AND id NOT IN ?", postID, keep).Delete(&model.PollOption{}).Error; err != nil {
		return err
	}

	var existing []string
	if err := tx.Model(&model.PollOption{}).Where("post_id = ?", postID).Pluck("id", &existing).Error; err != nil {
		return err
	}
	stored := make(map[string]bool, len(existing))
	for _, id := range existing {
		stored[id] = true
	}

	for i := range poll.Options {
		opt := &poll.Options[i]
		if stored[opt.ID] {
			if err := tx.Model(&model.PollOption{}).
				Where("id = ? AND post_id = ?", opt.ID, postID).
				Updates(map[string]interface{}{"text": opt.Text, "position": opt.Position}).Error; err != nil {
				return err
			}
			continue
		}
		if err := tx.Create(opt).Error; err != nil {
			return err
		}
	}
	return nil
}

func (r *postRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("post_id = ?", id).Delete(&model.PollOption{}).Error; err != nil {
			return err
		}
		if err := tx.Where("post_id = ?", id).Delete(&model.Poll{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", id).Delete(&model.Post{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}

// IncrementVote 单条 UPDATE ... SET votes = votes + 1，由数据库保证并发安全
func (r *postRepository) IncrementVote(ctx context.Context, postID string, optionIndex int, at time.Time) (bool, error) {
	if optionIndex < 0 {
		return false, nil
	}
	var applied bool
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.PollOption{}).
			Where("post_id = ? AND position = ?", postID, optionIndex).
			UpdateColumn("votes", gorm.Expr("votes + ?", 1))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		applied = true
		return tx.Model(&model.Post{}).Where("id = ?", postID).UpdateColumn("updated_at", at).Error
	})
	return applied, err
}
