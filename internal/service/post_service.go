package service

import (
	"context"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/d60-Lab/blogpost/internal/model"
	"github.com/d60-Lab/blogpost/internal/repository"
	"github.com/d60-Lab/blogpost/pkg/logger"
)

var tracer = otel.Tracer("github.com/d60-Lab/blogpost/internal/service")

// CreatePostInput 创建文章的提交
type CreatePostInput struct {
	Title          string `validate:"max=255"`
	Content        string `validate:"required"`
	CW             string `validate:"max=255"`
	ScheduledAt    *time.Time
	Published      *bool    // nil 表示发布
	CategoryID     string   `validate:"omitempty,max=36"`
	Hashtags       []string `validate:"dive,max=64"`
	AttachmentURLs []string
	Uploads        []Upload
	Poll           *PollSubmission
}

// EditPostInput 编辑文章的提交；指针或切片为 nil 的字段保持不变。
// CW、CategoryID 指向空串表示清除。
// 附件例外：编辑后的附件总是 KeptAttachments ++ Uploads，没列在 KeptAttachments 里的旧附件被移除。
type EditPostInput struct {
	Title           *string `validate:"omitempty,max=255"`
	Content         *string
	CW              *string `validate:"omitempty,max=255"`
	ScheduledAt     *time.Time
	ClearSchedule   bool
	Published       *bool
	CategoryID      *string  `validate:"omitempty,max=36"`
	Hashtags        []string `validate:"omitempty,dive,max=64"`
	KeptAttachments []string
	Uploads         []Upload
	Poll            *PollSubmission
}

// FeedQuery 公开列表的过滤条件
type FeedQuery struct {
	Query      string
	Targets    SearchTargets
	CategoryID string
	Tag        string
}

// SaveResult 创建或编辑后的文章，以及被丢弃的上传
type SaveResult struct {
	Post          *model.Post
	FailedUploads []UploadFailure
}

// PostService 文章发布核心
type PostService interface {
	CreatePost(ctx context.Context, caller *model.Caller, in CreatePostInput) (*SaveResult, error)
	EditPost(ctx context.Context, caller *model.Caller, id string, in EditPostInput) (*SaveResult, error)
	DeletePost(ctx context.Context, caller *model.Caller, id string) error

	// GetPost 读者只能看到可见文章；作者本人和管理员不受限制
	GetPost(ctx context.Context, caller *model.Caller, id string, now time.Time) (*model.Post, error)
	ListVisiblePosts(ctx context.Context, now time.Time, q FeedQuery) ([]*model.Post, error)
	ListAuthorPosts(ctx context.Context, caller *model.Caller) ([]*model.Post, error)
	ListAllPosts(ctx context.Context, caller *model.Caller, categoryID string) ([]*model.Post, error)

	// CastVote 选项不存在时静默忽略
	CastVote(ctx context.Context, postID string, optionIndex int) error
	UploadImage(ctx context.Context, caller *model.Caller, upload *Upload) (string, error)
}

type postService struct {
	repo     repository.PostRepository
	blobs    BlobStore
	now      func() time.Time
	validate *validator.Validate
}

// NewPostService now 为 nil 时使用 time.Now
func NewPostService(repo repository.PostRepository, blobs BlobStore, now func() time.Time) PostService {
	if now == nil {
		now = time.Now
	}
	return &postService{repo: repo, blobs: blobs, now: now, validate: validator.New()}
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func (s *postService) check(in interface{}) error {
	if err := s.validate.Struct(in); err != nil {
		return validationError("%v", err)
	}
	return nil
}

func (s *postService) CreatePost(ctx context.Context, caller *model.Caller, in CreatePostInput) (_ *SaveResult, err error) {
	ctx, span := tracer.Start(ctx, "PostService.CreatePost")
	defer func() { endSpan(span, err) }()

	if caller == nil || caller.ID == "" {
		return nil, ErrUnauthorized
	}
	if strings.TrimSpace(in.Content) == "" {
		return nil, validationError("content is required")
	}
	if err := s.check(in); err != nil {
		return nil, err
	}

	poll := ReconcilePoll(nil, in.Poll, true)
	att := CollectAttachments(ctx, s.blobs, in.AttachmentURLs, in.Uploads)

	now := s.now()
	post := &model.Post{
		ID:           uuid.NewString(),
		AuthorID:     caller.ID,
		Title:        titleOrDefault(in.Title),
		Content:      in.Content,
		CW:           optionalString(in.CW),
		Attachments:  att.Attachments,
		ThumbnailURL: att.Thumbnail,
		Hashtags:     normalizeHashtags(in.Hashtags),
		CategoryID:   optionalString(in.CategoryID),
		Published:    in.Published == nil || *in.Published,
		ScheduledAt:  in.ScheduledAt,
		Poll:         poll,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	span.SetAttributes(attribute.String("post.id", post.ID))

	if err := s.repo.Insert(ctx, post); err != nil {
		return nil, storeError(err)
	}
	logger.Info("post created",
		zap.String("post_id", post.ID),
		zap.String("author_id", post.AuthorID),
		zap.String("status", post.Status(now)),
	)
	return &SaveResult{Post: post, FailedUploads: att.Failed}, nil
}

func (s *postService) EditPost(ctx context.Context, caller *model.Caller, id string, in EditPostInput) (_ *SaveResult, err error) {
	ctx, span := tracer.Start(ctx, "PostService.EditPost", trace.WithAttributes(attribute.String("post.id", id)))
	defer func() { endSpan(span, err) }()

	if caller == nil {
		return nil, ErrUnauthorized
	}
	if err := s.check(in); err != nil {
		return nil, err
	}
	if in.Content != nil && strings.TrimSpace(*in.Content) == "" {
		return nil, validationError("content is required")
	}

	post, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, storeError(err)
	}
	if !post.CanBeModifiedBy(caller) {
		return nil, ErrForbidden
	}

	poll := ReconcilePoll(post.Poll, in.Poll, false)
	att := ReconcileAttachments(ctx, s.blobs, in.KeptAttachments, in.Uploads)
	post.Attachments = att.Attachments
	post.ThumbnailURL = att.Thumbnail

	if in.Title != nil {
		post.Title = titleOrDefault(*in.Title)
	}
	if in.Content != nil {
		post.Content = *in.Content
	}
	if in.CW != nil {
		post.CW = optionalString(*in.CW)
	}
	switch {
	case in.ClearSchedule:
		post.ScheduledAt = nil
	case in.ScheduledAt != nil:
		post.ScheduledAt = in.ScheduledAt
	}
	if in.Published != nil {
		post.Published = *in.Published
	}
	if in.CategoryID != nil {
		post.CategoryID = optionalString(*in.CategoryID)
	}
	if in.Hashtags != nil {
		post.Hashtags = normalizeHashtags(in.Hashtags)
	}
	post.Poll = poll
	post.UpdatedAt = s.now()

	if err := s.repo.Update(ctx, post); err != nil {
		return nil, storeError(err)
	}
	logger.Info("post updated", zap.String("post_id", post.ID), zap.String("editor_id", caller.ID))
	return &SaveResult{Post: post, FailedUploads: att.Failed}, nil
}

func (s *postService) DeletePost(ctx context.Context, caller *model.Caller, id string) (err error) {
	ctx, span := tracer.Start(ctx, "PostService.DeletePost", trace.WithAttributes(attribute.String("post.id", id)))
	defer func() { endSpan(span, err) }()

	if caller == nil {
		return ErrUnauthorized
	}
	post, err := s.repo.Get(ctx, id)
	if err != nil {
		return storeError(err)
	}
	if !post.CanBeModifiedBy(caller) {
		return ErrForbidden
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return storeError(err)
	}
	logger.Info("post deleted", zap.String("post_id", id), zap.String("caller_id", caller.ID))
	return nil
}

func (s *postService) GetPost(ctx context.Context, caller *model.Caller, id string, now time.Time) (_ *model.Post, err error) {
	ctx, span := tracer.Start(ctx, "PostService.GetPost", trace.WithAttributes(attribute.String("post.id", id)))
	defer func() { endSpan(span, err) }()

	post, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, storeError(err)
	}
	if !IsVisible(post, now) && !post.CanBeModifiedBy(caller) {
		return nil, ErrNotFound
	}
	return post, nil
}

func (s *postService) ListVisiblePosts(ctx context.Context, now time.Time, q FeedQuery) (_ []*model.Post, err error) {
	ctx, span := tracer.Start(ctx, "PostService.ListVisiblePosts")
	defer func() { endSpan(span, err) }()

	posts, err := s.repo.List(ctx, repository.PostFilter{CategoryID: q.CategoryID})
	if err != nil {
		return nil, storeError(err)
	}
	posts = FilterVisible(posts, now)
	posts = FilterByQuery(posts, q.Query, q.Targets)
	posts = filterByTag(posts, q.Tag)
	span.SetAttributes(attribute.Int("posts.count", len(posts)))
	return posts, nil
}

func (s *postService) ListAuthorPosts(ctx context.Context, caller *model.Caller) (_ []*model.Post, err error) {
	ctx, span := tracer.Start(ctx, "PostService.ListAuthorPosts")
	defer func() { endSpan(span, err) }()

	if caller == nil || caller.ID == "" {
		return nil, ErrUnauthorized
	}
	posts, err := s.repo.List(ctx, repository.PostFilter{AuthorID: caller.ID})
	if err != nil {
		return nil, storeError(err)
	}
	return posts, nil
}

func (s *postService) ListAllPosts(ctx context.Context, caller *model.Caller, categoryID string) (_ []*model.Post, err error) {
	ctx, span := tracer.Start(ctx, "PostService.ListAllPosts")
	defer func() { endSpan(span, err) }()

	if caller == nil {
		return nil, ErrUnauthorized
	}
	if !caller.IsAdmin() {
		return nil, ErrForbidden
	}
	posts, err := s.repo.List(ctx, repository.PostFilter{CategoryID: categoryID})
	if err != nil {
		return nil, storeError(err)
	}
	return posts, nil
}

func (s *postService) CastVote(ctx context.Context, postID string, optionIndex int) (err error) {
	ctx, span := tracer.Start(ctx, "PostService.CastVote", trace.WithAttributes(
		attribute.String("post.id", postID),
		attribute.Int("poll.option_index", optionIndex),
	))
	defer func() { endSpan(span, err) }()

	applied, err := s.repo.IncrementVote(ctx, postID, optionIndex, s.now())
	if err != nil {
		return storeError(err)
	}
	if !applied {
		logger.Debug("vote ignored", zap.String("post_id", postID), zap.Int("option_index", optionIndex))
	}
	return nil
}

func (s *postService) UploadImage(ctx context.Context, caller *model.Caller, upload *Upload) (_ string, err error) {
	ctx, span := tracer.Start(ctx, "PostService.UploadImage")
	defer func() { endSpan(span, err) }()

	if caller == nil {
		return "", ErrUnauthorized
	}
	return uploadSingle(ctx, s.blobs, upload)
}

func titleOrDefault(title string) string {
	if t := strings.TrimSpace(title); t != "" {
		return t
	}
	return model.UntitledPost
}

func optionalString(s string) *string {
	if s = strings.TrimSpace(s); s == "" {
		return nil
	}
	return &s
}
