package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/d60-Lab/blogpost/pkg/logger"
)

// BlobStore 媒体存储协作方：保存文件并返回稳定 URL
type BlobStore interface {
	Put(ctx context.Context, filename, contentType string, r io.Reader) (string, error)
}

// Upload 一个待上传文件；Open 每次调用返回新的读取器
type Upload struct {
	Filename    string
	ContentType string
	Size        int64
	Open        func() (io.ReadCloser, error)
}

// UploadFailure 单个文件上传失败，不影响其它文件
type UploadFailure struct {
	Filename string `json:"filename"`
	Err      error  `json:"-"`
}

func (f UploadFailure) Error() string { return fmt.Sprintf("%s: %v", f.Filename, f.Err) }

// AttachmentResult 附件合并结果
type AttachmentResult struct {
	Attachments []string
	Thumbnail   *string
	Failed      []UploadFailure
}

var imageTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
	"image/gif":  true,
}

// ReconcileAttachments 编辑时的最终附件 = 客户端回传保留的 kept ++ 本次新上传成功的 URL。
// kept 里没有的旧附件即被移除。
// 上传并发进行、按提交顺序归位；零字节文件跳过，失败的文件记录在 Failed 中。
func ReconcileAttachments(ctx context.Context, store BlobStore, kept []string, uploads []Upload) AttachmentResult {
	urls, failed := storeUploads(ctx, store, uploads)
	return newAttachmentResult(append(cleanRefs(kept), urls...), failed)
}

// CollectAttachments 创建时的附件：先放新上传的文件，再接表单里直接给出的 URL
func CollectAttachments(ctx context.Context, store BlobStore, refs []string, uploads []Upload) AttachmentResult {
	urls, failed := storeUploads(ctx, store, uploads)
	return newAttachmentResult(append(urls, cleanRefs(refs)...), failed)
}

func newAttachmentResult(attachments []string, failed []UploadFailure) AttachmentResult {
	res := AttachmentResult{Attachments: attachments, Failed: failed}
	if len(attachments) > 0 {
		thumb := attachments[0]
		res.Thumbnail = &thumb
	}
	return res
}

func cleanRefs(refs []string) []string {
	out := make([]string, 0, len(refs))
	for _, u := range refs {
		if u = strings.TrimSpace(u); u != "" {
			out = append(out, u)
		}
	}
	return out
}

// storeUploads 并发上传，返回成功的 URL（按提交顺序）和失败列表
func storeUploads(ctx context.Context, store BlobStore, uploads []Upload) ([]string, []UploadFailure) {
	urls := make([]string, len(uploads))
	errs := make([]error, len(uploads))
	var wg sync.WaitGroup
	for i := range uploads {
		if uploads[i].Size <= 0 {
			continue
		}
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			urls[i], errs[i] = putUpload(ctx, store, uploads[i])
		}(i)
	}
	wg.Wait()

	stored := make([]string, 0, len(uploads))
	var failed []UploadFailure
	for i, u := range uploads {
		if u.Size <= 0 {
			continue
		}
		if errs[i] != nil {
			logger.Warn("attachment upload failed", zap.String("filename", u.Filename), zap.Error(errs[i]))
			failed = append(failed, UploadFailure{Filename: u.Filename, Err: errs[i]})
			continue
		}
		stored = append(stored, urls[i])
	}
	return stored, failed
}

func putUpload(ctx context.Context, store BlobStore, u Upload) (string, error) {
	if store == nil {
		return "", errors.New("no blob store configured")
	}
	if u.Open == nil {
		return "", errors.New("upload has no content")
	}
	rc, err := u.Open()
	if err != nil {
		return "", err
	}
	defer rc.Close()
	return store.Put(ctx, u.Filename, u.ContentType, rc)
}

// uploadSingle 独立的图片上传：必须恰好提供一个非空文件
func uploadSingle(ctx context.Context, store BlobStore, u *Upload) (string, error) {
	if u == nil || u.Size <= 0 {
		return "", validationError("no file uploaded")
	}
	logger.Info("processing upload",
		zap.String("filename", u.Filename),
		zap.String("content_type", u.ContentType),
		zap.Int64("size", u.Size),
	)
	if !imageTypes[u.ContentType] {
		logger.Warn("uploading non-image file", zap.String("content_type", u.ContentType))
	}
	url, err := putUpload(ctx, store, *u)
	if err != nil {
		logger.Error("image upload failed", zap.String("filename", u.Filename), zap.Error(err))
		return "", fmt.Errorf("%w: %w", ErrUpload, err)
	}
	return url, nil
}
