// Package api 组装 gin 路由
package api

import (
	"strings"

	sentrygin "github.com/getsentry/sentry-go/gin"
	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/d60-Lab/blogpost/config"
	_ "github.com/d60-Lab/blogpost/docs"
	"github.com/d60-Lab/blogpost/internal/api/handler"
	"github.com/d60-Lab/blogpost/internal/api/middleware"
)

// NewRouter
// @title Blog Post API
// @version 1.0
// @description 博客文章发布：定时可见、附件与投票合并、投票计数、搜索
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func NewRouter(cfg *config.Config, h *handler.Handler, auth *middleware.Auth, voteLimiter *middleware.RateLimiter) *gin.Engine {
	gin.SetMode(cfg.Server.Mode)

	r := gin.New()
	r.MaxMultipartMemory = cfg.Upload.MaxBytes
	r.Use(
		gin.Recovery(),
		sentrygin.New(sentrygin.Options{Repanic: true}),
		otelgin.Middleware(cfg.Tracing.ServiceName),
		middleware.Logger(),
		cors.New(corsConfig(cfg.Server.AllowOrigins)),
		gzip.Gzip(gzip.DefaultCompression),
	)

	r.GET("/health", h.Health)
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	if strings.HasPrefix(cfg.Upload.BaseURL, "/") {
		r.Static(cfg.Upload.BaseURL, cfg.Upload.Dir)
	}

	v1 := r.Group("/api/v1")
	{
		posts := v1.Group("/posts")
		posts.GET("", auth.Optional(), h.ListPosts)
		posts.GET("/:id", auth.Optional(), h.GetPost)
		posts.POST("", auth.Required(), h.CreatePost)
		posts.PUT("/:id", auth.Required(), h.EditPost)
		posts.DELETE("/:id", auth.Required(), h.DeletePost)
		posts.POST("/:id/votes", voteLimiter.Handler(), h.CastVote)

		v1.POST("/uploads", auth.Required(), h.UploadImage)
		v1.GET("/me/posts", auth.Required(), h.ListMyPosts)
		v1.GET("/admin/posts", auth.Required(), auth.Admin(), h.ListAllPosts)
	}
	return r
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.DefaultConfig()
	cfg.AllowHeaders = append(cfg.AllowHeaders, "Authorization")
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
		return cfg
	}
	for _, o := range origins {
		if o == "*" {
			cfg.AllowAllOrigins = true
			return cfg
		}
	}
	cfg.AllowOrigins = origins
	cfg.AllowCredentials = true
	return cfg
}
