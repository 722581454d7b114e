// Package testutil 测试公共方法：sqlite 测试库、签发 JWT、构造文章
package testutil

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/d60-Lab/blogpost/internal/model"
	"github.com/d60-Lab/blogpost/pkg/database"
)

// TestJWTSecret 测试用签名密钥
const TestJWTSecret = "test-secret"

// NewTestDB 每个测试一个独立的 sqlite 文件库，已建表
func NewTestDB(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), "blog.db")
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// SignToken 签发与 middleware.Auth 兼容的 HS256 token
func SignToken(t testing.TB, userID, role string) string {
	t.Helper()

	claims := jwt.MapClaims{
		"sub":  userID,
		"role": role,
		"exp":  time.Now().Add(time.Hour).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(TestJWTSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

// NewPost 构造一篇可直接写库的文章
func NewPost(id, authorID, title string, createdAt time.Time) *model.Post {
	return &model.Post{
		ID:          id,
		AuthorID:    authorID,
		Title:       title,
		Content:     "content of " + title,
		Attachments: []string{},
		Published:   true,
		CreatedAt:   createdAt,
		UpdatedAt:   createdAt,
	}
}

// NewPoll 按文案构造投票，选项 ID 为 <postID>-<序号>
func NewPoll(postID, question string, votes map[string]int64, texts ...string) *model.Poll {
	opts := make([]model.PollOption, len(texts))
	for i, text := range texts {
		opts[i] = model.PollOption{
			ID:    postID + "-" + string(rune('a'+i)),
			Text:  text,
			Votes: votes[text],
		}
	}
	return &model.Poll{Question: question, Options: opts}
}
