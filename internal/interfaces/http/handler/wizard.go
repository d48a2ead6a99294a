// Package handler 提供 HTTP 请求处理器
package handler

import (
	"github.com/gin-gonic/gin"

	"novelforge-api/internal/application/generation"
	"novelforge-api/internal/interfaces/http/dto"
	"novelforge-api/internal/interfaces/sse"
)

// WizardHandler 项目创建向导处理器，三个阶段均为 SSE 流式接口
type WizardHandler struct {
	wizard *generation.Wizard
}

// NewWizardHandler 创建向导处理器
func NewWizardHandler(wizard *generation.Wizard) *WizardHandler {
	return &WizardHandler{wizard: wizard}
}

// GenerateWorld 向导第一步：创建项目并流式生成世界观
// @Summary 向导生成世界观
// @Tags Wizard
// @Accept json
// @Produce text/event-stream
// @Param request body dto.WizardWorldRequest true "世界观生成请求"
// @Success 200 {string} string "SSE 事件流"
// @Router /v1/wizard/world [post]
func (h *WizardHandler) GenerateWorld(c *gin.Context) {
	tenantID, ok := requireTenant(c)
	if !ok {
		return
	}
	var req dto.WizardWorldRequest
	if !bindJSON(c, &req) {
		return
	}

	in := &generation.WizardWorldInput{
		TenantID:             tenantID,
		Title:                req.Title,
		Description:          req.Description,
		Theme:                req.Theme,
		Genre:                req.Genre,
		NarrativePerspective: req.NarrativePerspective,
		TargetWords:          req.TargetWords,
		ChapterCount:         req.ChapterCount,
		CharacterCount:       req.CharacterCount,
		Requirements:         req.Requirements,
		Provider:             req.Provider,
		RequestID:            c.GetString("request_id"),
	}

	emitter := sse.NewEmitter(c.Request.Context())
	go func() {
		defer emitter.Close()
		h.wizard.GenerateWorld(c.Request.Context(), in, emitter)
	}()
	sse.Stream(c, emitter.Events())
}

// GenerateCharacters 向导第二步：批量流式生成角色
// @Summary 向导生成角色
// @Tags Wizard
// @Accept json
// @Produce text/event-stream
// @Param pid path string true "项目 ID"
// @Param request body dto.WizardCharactersRequest true "角色生成请求"
// @Success 200 {string} string "SSE 事件流"
// @Router /v1/wizard/{pid}/characters [post]
func (h *WizardHandler) GenerateCharacters(c *gin.Context) {
	tenantID, ok := requireTenant(c)
	if !ok {
		return
	}
	projectID := dto.BindProjectID(c)
	if !requireParam(c, projectID, "pid") {
		return
	}
	var req dto.WizardCharactersRequest
	if !bindJSON(c, &req) {
		return
	}

	in := &generation.WizardCharactersInput{
		TenantID:     tenantID,
		ProjectID:    projectID,
		Count:        req.Count,
		Requirements: req.Requirements,
		Provider:     req.Provider,
		RequestID:    c.GetString("request_id"),
	}

	emitter := sse.NewEmitter(c.Request.Context())
	go func() {
		defer emitter.Close()
		h.wizard.GenerateCharacters(c.Request.Context(), in, emitter)
	}()
	sse.Stream(c, emitter.Events())
}

// GenerateOutline 向导第三步：流式生成开局大纲与配对章节
// @Summary 向导生成开局大纲
// @Tags Wizard
// @Accept json
// @Produce text/event-stream
// @Param pid path string true "项目 ID"
// @Param request body dto.WizardOutlineRequest true "大纲生成请求"
// @Success 200 {string} string "SSE 事件流"
// @Router /v1/wizard/{pid}/outline [post]
func (h *WizardHandler) GenerateOutline(c *gin.Context) {
	tenantID, ok := requireTenant(c)
	if !ok {
		return
	}
	projectID := dto.BindProjectID(c)
	if !requireParam(c, projectID, "pid") {
		return
	}
	var req dto.WizardOutlineRequest
	if !bindJSON(c, &req) {
		return
	}

	in := &generation.WizardOutlineInput{
		TenantID:             tenantID,
		ProjectID:            projectID,
		NarrativePerspective: req.NarrativePerspective,
		TargetWords:          req.TargetWords,
		Requirements:         req.Requirements,
		Provider:             req.Provider,
		RequestID:            c.GetString("request_id"),
	}

	emitter := sse.NewEmitter(c.Request.Context())
	go func() {
		defer emitter.Close()
		h.wizard.GenerateOutline(c.Request.Context(), in, emitter)
	}()
	sse.Stream(c, emitter.Events())
}

// Cleanup 清理向导中途失败的半成品项目数据
// @Summary 清理向导残留数据
// @Tags Wizard
// @Produce text/event-stream
// @Param pid path string true "项目 ID"
// @Success 200 {string} string "SSE 事件流"
// @Router /v1/wizard/{pid}/cleanup [post]
func (h *WizardHandler) Cleanup(c *gin.Context) {
	tenantID, ok := requireTenant(c)
	if !ok {
		return
	}
	projectID := dto.BindProjectID(c)
	if !requireParam(c, projectID, "pid") {
		return
	}

	emitter := sse.NewEmitter(c.Request.Context())
	go func() {
		defer emitter.Close()
		h.wizard.Cleanup(c.Request.Context(), tenantID, projectID, emitter)
	}()
	sse.Stream(c, emitter.Events())
}
