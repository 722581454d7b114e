package handler

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/blogpost/internal/api/middleware"
	"github.com/d60-Lab/blogpost/internal/model"
	"github.com/d60-Lab/blogpost/internal/service"
	"github.com/d60-Lab/blogpost/pkg/response"
)

// PostView 文章 + 派生状态 + 投票占比
type PostView struct {
	*model.Post
	Status          string `json:"status"`
	TotalVotes      int64  `json:"total_votes"`
	PollPercentages []int  `json:"poll_percentages,omitempty"`
}

func newPostView(p *model.Post, now time.Time) PostView {
	v := PostView{Post: p, Status: p.Status(now)}
	if p.Poll != nil {
		v.TotalVotes = p.Poll.TotalVotes()
		v.PollPercentages = p.Poll.Percentages()
	}
	return v
}

func newPostViews(posts []*model.Post, now time.Time) []PostView {
	out := make([]PostView, len(posts))
	for i, p := range posts {
		out[i] = newPostView(p, now)
	}
	return out
}

type saveResponse struct {
	Post          PostView `json:"post"`
	FailedUploads []string `json:"failed_uploads,omitempty"`
}

func newSaveResponse(res *service.SaveResult, now time.Time) saveResponse {
	out := saveResponse{Post: newPostView(res.Post, now)}
	for _, f := range res.FailedUploads {
		out.FailedUploads = append(out.FailedUploads, f.Filename)
	}
	return out
}

type voteRequest struct {
	OptionIndex *int `json:"option_index" binding:"required"`
}

// ListPosts 公开文章列表
// @Summary 文章列表（仅可见文章）
// @Tags 文章
// @Produce json
// @Param q query string false "搜索关键字"
// @Param t_title query string false "搜索标题（1）"
// @Param t_content query string false "搜索正文（1）"
// @Param category_id query string false "分类ID"
// @Param tag query string false "话题"
// @Success 200 {object} response.Response{data=[]PostView}
// @Failure 500 {object} response.Response
// @Router /api/v1/posts [get]
func (h *Handler) ListPosts(c *gin.Context) {
	now := h.now()
	posts, err := h.posts.ListVisiblePosts(c.Request.Context(), now, service.FeedQuery{
		Query: c.Query("q"),
		Targets: service.SearchTargets{
			Title:   c.Query("t_title") == "1",
			Content: c.Query("t_content") == "1",
		},
		CategoryID: c.Query("category_id"),
		Tag:        c.Query("tag"),
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, newPostViews(posts, now))
}

// GetPost 文章详情
// @Summary 文章详情（作者和管理员可看未发布文章）
// @Tags 文章
// @Produce json
// @Param id path string true "文章ID"
// @Success 200 {object} response.Response{data=PostView}
// @Failure 404 {object} response.Response
// @Router /api/v1/posts/{id} [get]
func (h *Handler) GetPost(c *gin.Context) {
	now := h.now()
	post, err := h.posts.GetPost(c.Request.Context(), middleware.CallerFrom(c), c.Param("id"), now)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, newPostView(post, now))
}

// CreatePost 发布文章
// @Summary 发布文章
// @Tags 文章
// @Accept multipart/form-data
// @Produce json
// @Security BearerAuth
// @Param title formData string false "标题"
// @Param content formData string true "正文"
// @Param cw formData string false "内容警告"
// @Param scheduled_at formData string false "定时发布（RFC3339 或 2006-01-02T15:04）"
// @Param published formData bool false "是否发布，默认 true"
// @Param category_id formData string false "分类ID"
// @Param hashtags formData []string false "话题" collectionFormat(multi)
// @Param attachment_urls formData []string false "已有附件 URL" collectionFormat(multi)
// @Param file formData file false "新附件"
// @Param poll_question formData string false "投票问题"
// @Param poll_option formData []string false "投票选项" collectionFormat(multi)
// @Success 201 {object} response.Response{data=saveResponse}
// @Failure 400 {object} response.Response
// @Failure 401 {object} response.Response
// @Failure 500 {object} response.Response
// @Router /api/v1/posts [post]
func (h *Handler) CreatePost(c *gin.Context) {
	in, err := createInputFromForm(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	res, err := h.posts.CreatePost(c.Request.Context(), middleware.CallerFrom(c), in)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Created(c, newSaveResponse(res, h.now()))
}

// EditPost 编辑文章
// @Summary 编辑文章（只修改提交了的字段，投票按选项 ID 保留票数）
// @Tags 文章
// @Accept multipart/form-data
// @Produce json
// @Security BearerAuth
// @Param id path string true "文章ID"
// @Param title formData string false "标题"
// @Param content formData string false "正文"
// @Param cw formData string false "内容警告，空值清除"
// @Param scheduled_at formData string false "定时发布，缺省或空值取消定时"
// @Param published formData bool false "是否发布"
// @Param attachment_urls formData []string false "保留的附件 URL，缺省表示全部移除" collectionFormat(multi)
// @Param file formData file false "新附件"
// @Param poll_question formData string false "投票问题，为空时保持原投票不变"
// @Param poll_option formData []string false "投票选项" collectionFormat(multi)
// @Param poll_option_id formData []string false "投票选项ID，与 poll_option 一一对应" collectionFormat(multi)
// @Success 200 {object} response.Response{data=saveResponse}
// @Failure 400 {object} response.Response
// @Failure 403 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /api/v1/posts/{id} [put]
func (h *Handler) EditPost(c *gin.Context) {
	in, err := editInputFromForm(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	res, err := h.posts.EditPost(c.Request.Context(), middleware.CallerFrom(c), c.Param("id"), in)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, newSaveResponse(res, h.now()))
}

// DeletePost 删除文章
// @Summary 删除文章
// @Tags 文章
// @Produce json
// @Security BearerAuth
// @Param id path string true "文章ID"
// @Success 200 {object} response.Response
// @Failure 403 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /api/v1/posts/{id} [delete]
func (h *Handler) DeletePost(c *gin.Context) {
	if err := h.posts.DeletePost(c.Request.Context(), middleware.CallerFrom(c), c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, nil)
}

// CastVote 投票
// @Summary 给投票选项加一票（选项不存在时忽略）
// @Tags 投票
// @Accept json
// @Produce json
// @Param id path string true "文章ID"
// @Param request body voteRequest true "选项下标，从 0 开始"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.Response
// @Failure 429 {object} response.Response
// @Router /api/v1/posts/{id}/votes [post]
func (h *Handler) CastVote(c *gin.Context) {
	var req voteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if err := h.posts.CastVote(c.Request.Context(), c.Param("id"), *req.OptionIndex); err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, nil)
}

// UploadImage 上传单张图片
// @Summary 上传图片
// @Tags 文章
// @Accept multipart/form-data
// @Produce json
// @Security BearerAuth
// @Param file formData file true "图片"
// @Success 201 {object} response.Response{data=map[string]string}
// @Failure 400 {object} response.Response
// @Failure 502 {object} response.Response
// @Router /api/v1/uploads [post]
func (h *Handler) UploadImage(c *gin.Context) {
	var upload *service.Upload
	if fh, err := c.FormFile("file"); err == nil {
		u := toUpload(fh)
		upload = &u
	}
	url, err := h.posts.UploadImage(c.Request.Context(), middleware.CallerFrom(c), upload)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Created(c, gin.H{"url": url})
}

// ListMyPosts 作者后台
// @Summary 我的文章（含草稿和定时文章）
// @Tags 后台
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Response{data=[]PostView}
// @Failure 401 {object} response.Response
// @Router /api/v1/me/posts [get]
func (h *Handler) ListMyPosts(c *gin.Context) {
	posts, err := h.posts.ListAuthorPosts(c.Request.Context(), middleware.CallerFrom(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, newPostViews(posts, h.now()))
}

// ListAllPosts 管理后台
// @Summary 全部文章（管理员）
// @Tags 后台
// @Produce json
// @Security BearerAuth
// @Param category_id query string false "分类ID"
// @Success 200 {object} response.Response{data=[]PostView}
// @Failure 403 {object} response.Response
// @Router /api/v1/admin/posts [get]
func (h *Handler) ListAllPosts(c *gin.Context) {
	posts, err := h.posts.ListAllPosts(c.Request.Context(), middleware.CallerFrom(c), c.Query("category_id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, newPostViews(posts, h.now()))
}
