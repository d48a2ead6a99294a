// Package handler 提供 HTTP 请求处理器
package handler

import (
	"github.com/gin-gonic/gin"

	"novelforge-api/internal/application/generation"
	"novelforge-api/internal/interfaces/http/dto"
	"novelforge-api/internal/interfaces/sse"
)

// StreamHandler 流式生成处理器。
// 编排器在独立 goroutine 中执行并通过 Emitter 推送事件，
// 请求 goroutine 负责把事件写入 SSE 响应，客户端断开即取消生成。
type StreamHandler struct {
	chapters *generation.ChapterGenerator
	outlines *generation.OutlineContinuer
}

// NewStreamHandler 创建流式生成处理器
func NewStreamHandler(chapters *generation.ChapterGenerator, outlines *generation.OutlineContinuer) *StreamHandler {
	return &StreamHandler{chapters: chapters, outlines: outlines}
}

// GenerateChapter 流式生成章节正文
// @Summary 流式生成章节
// @Tags Generation
// @Accept json
// @Produce text/event-stream
// @Param cid path string true "章节 ID"
// @Param request body dto.GenerateChapterRequest true "生成请求"
// @Success 200 {string} string "SSE 事件流"
// @Router /v1/chapters/{cid}/generate [post]
func (h *StreamHandler) GenerateChapter(c *gin.Context) {
	tenantID, ok := requireTenant(c)
	if !ok {
		return
	}
	chapterID := dto.BindChapterID(c)
	if !requireParam(c, chapterID, "cid") {
		return
	}
	var req dto.GenerateChapterRequest
	if !bindJSON(c, &req) {
		return
	}

	in := &generation.ChapterGenerateInput{
		TenantID:     tenantID,
		ChapterID:    chapterID,
		StyleID:      req.StyleID,
		TargetWords:  req.TargetWords,
		EnableTools:  req.EnableTools,
		Requirements: req.Requirements,
		Provider:     req.Provider,
		RequestID:    c.GetString("request_id"),
	}

	emitter := sse.NewEmitter(c.Request.Context())
	go func() {
		defer emitter.Close()
		h.chapters.GenerateStream(c.Request.Context(), in, emitter)
	}()
	sse.Stream(c, emitter.Events())
}

// GenerateOutline 流式生成大纲（新建或续写）
// @Summary 流式生成大纲
// @Tags Generation
// @Accept json
// @Produce text/event-stream
// @Param pid path string true "项目 ID"
// @Param request body dto.GenerateOutlineRequest true "生成请求"
// @Success 200 {string} string "SSE 事件流"
// @Router /v1/projects/{pid}/outlines/generate [post]
func (h *StreamHandler) GenerateOutline(c *gin.Context) {
	tenantID, ok := requireTenant(c)
	if !ok {
		return
	}
	projectID := dto.BindProjectID(c)
	if !requireParam(c, projectID, "pid") {
		return
	}
	var req dto.GenerateOutlineRequest
	if !bindJSON(c, &req) {
		return
	}

	in := &generation.OutlineContinueInput{
		TenantID:       tenantID,
		ProjectID:      projectID,
		Mode:           req.Mode,
		TotalChapters:  req.TotalChapters,
		PlotStage:      req.PlotStage,
		StoryDirection: req.StoryDirection,
		Requirements:   req.Requirements,
		EnableTools:    req.EnableTools,
		Provider:       req.Provider,
		RequestID:      c.GetString("request_id"),
	}

	emitter := sse.NewEmitter(c.Request.Context())
	go func() {
		defer emitter.Close()
		h.outlines.GenerateStream(c.Request.Context(), in, emitter)
	}()
	sse.Stream(c, emitter.Events())
}
