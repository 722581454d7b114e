package handler

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/blogpost/internal/service"
)

// datetime-local 输入框的格式
const localMinuteLayout = "2006-01-02T15:04"

func parseTime(v string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation(localMinuteLayout, v, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: invalid scheduled_at %q", service.ErrValidation, v)
	}
	return t, nil
}

func parseBool(v string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "on", "yes":
		return true, nil
	case "off", "no", "":
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%w: invalid published %q", service.ErrValidation, v)
	}
	return b, nil
}

func optionalForm(c *gin.Context, key string) *string {
	if v, ok := c.GetPostForm(key); ok {
		return &v
	}
	return nil
}

func optionalFormArray(c *gin.Context, key string) []string {
	if vs, ok := c.GetPostFormArray(key); ok {
		return append([]string{}, vs...)
	}
	return nil
}

// pollFromForm 表单里既没有 poll_question 也没有 poll_option 时返回 nil
func pollFromForm(c *gin.Context) *service.PollSubmission {
	question, hasQuestion := c.GetPostForm("poll_question")
	options, hasOptions := c.GetPostFormArray("poll_option")
	if !hasQuestion && !hasOptions {
		return nil
	}
	ids := c.PostFormArray("poll_option_id")
	sub := &service.PollSubmission{Question: question, Options: make([]service.PollOptionInput, len(options))}
	for i, text := range options {
		sub.Options[i].Text = text
		if i < len(ids) {
			sub.Options[i].ID = ids[i]
		}
	}
	return sub
}

func toUpload(fh *multipart.FileHeader) service.Upload {
	return service.Upload{
		Filename:    fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Size:        fh.Size,
		Open: func() (io.ReadCloser, error) {
			return fh.Open()
		},
	}
}

func uploadsFromForm(c *gin.Context) ([]service.Upload, error) {
	form, err := c.MultipartForm()
	if err != nil {
		if errors.Is(err, http.ErrNotMultipart) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", service.ErrValidation, err)
	}
	files := form.File["file"]
	out := make([]service.Upload, len(files))
	for i, fh := range files {
		out[i] = toUpload(fh)
	}
	return out, nil
}

func createInputFromForm(c *gin.Context) (service.CreatePostInput, error) {
	in := service.CreatePostInput{
		Title:          c.PostForm("title"),
		Content:        c.PostForm("content"),
		CW:             c.PostForm("cw"),
		CategoryID:     c.PostForm("category_id"),
		Hashtags:       c.PostFormArray("hashtags"),
		AttachmentURLs: c.PostFormArray("attachment_urls"),
		Poll:           pollFromForm(c),
	}
	if v := strings.TrimSpace(c.PostForm("scheduled_at")); v != "" {
		t, err := parseTime(v)
		if err != nil {
			return in, err
		}
		in.ScheduledAt = &t
	}
	if v, ok := c.GetPostForm("published"); ok {
		b, err := parseBool(v)
		if err != nil {
			return in, err
		}
		in.Published = &b
	}
	uploads, err := uploadsFromForm(c)
	if err != nil {
		return in, err
	}
	in.Uploads = uploads
	return in, nil
}

// editInputFromForm 只有表单里出现的字段才会被修改。
// 例外是 attachment_urls 和 scheduled_at：编辑表单只为保留的附件和已设置的定时回传这两个字段，
// 缺省即表示全部附件被移除、定时被取消。
func editInputFromForm(c *gin.Context) (service.EditPostInput, error) {
	in := service.EditPostInput{
		Title:           optionalForm(c, "title"),
		Content:         optionalForm(c, "content"),
		CW:              optionalForm(c, "cw"),
		CategoryID:      optionalForm(c, "category_id"),
		Hashtags:        optionalFormArray(c, "hashtags"),
		KeptAttachments: c.PostFormArray("attachment_urls"),
		Poll:            pollFromForm(c),
	}
	if v := strings.TrimSpace(c.PostForm("scheduled_at")); v == "" {
		in.ClearSchedule = true
	} else {
		t, err := parseTime(v)
		if err != nil {
			return in, err
		}
		in.ScheduledAt = &t
	}
	if v, ok := c.GetPostForm("published"); ok {
		b, err := parseBool(v)
		if err != nil {
			return in, err
		}
		in.Published = &b
	}
	uploads, err := uploadsFromForm(c)
	if err != nil {
		return in, err
	}
	in.Uploads = uploads
	return in, nil
}
