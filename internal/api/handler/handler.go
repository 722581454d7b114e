package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/blogpost/internal/service"
	"github.com/d60-Lab/blogpost/pkg/response"
)

// Handler HTTP 入口
type Handler struct {
	posts service.PostService
	now   func() time.Time
	ping  func(ctx context.Context) error
}

// NewHandler ping 用于健康检查，可为 nil
func NewHandler(posts service.PostService, ping func(ctx context.Context) error) *Handler {
	return &Handler{posts: posts, now: time.Now, ping: ping}
}

// fail 把服务层错误映射为 HTTP 状态码
func (h *Handler) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrNotFound):
		response.NotFound(c, err.Error())
	case errors.Is(err, service.ErrUnauthorized):
		response.Unauthorized(c, err.Error())
	case errors.Is(err, service.ErrForbidden):
		response.Forbidden(c, err.Error())
	case errors.Is(err, service.ErrValidation):
		response.BadRequest(c, err.Error())
	case errors.Is(err, service.ErrUpload):
		response.BadGateway(c, err)
	default:
		response.InternalError(c, err)
	}
}

// Health 健康检查
// @Summary 健康检查
// @Tags 系统
// @Produce json
// @Success 200 {object} response.Response
// @Failure 503 {object} response.Response
// @Router /health [get]
func (h *Handler) Health(c *gin.Context) {
	if h.ping != nil {
		if err := h.ping(c.Request.Context()); err != nil {
			response.Error(c, http.StatusServiceUnavailable, err.Error())
			return
		}
	}
	response.Success(c, gin.H{"status": "ok"})
}
