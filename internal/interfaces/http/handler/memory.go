// Package handler 提供 HTTP 请求处理器
package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"novelforge-api/internal/application/memory"
	"novelforge-api/internal/domain/entity"
	"novelforge-api/internal/domain/repository"
	"novelforge-api/internal/interfaces/http/dto"
	apperrors "novelforge-api/pkg/errors"
)

// MemoryHandler 记忆片段处理器
type MemoryHandler struct {
	scope     Scope
	projects  repository.ProjectRepository
	chapters  repository.ChapterRepository
	fragments repository.MemoryFragmentRepository
	memories  *memory.Service
}

// NewMemoryHandler 创建记忆片段处理器
func NewMemoryHandler(
	scope Scope,
	projects repository.ProjectRepository,
	chapters repository.ChapterRepository,
	fragments repository.MemoryFragmentRepository,
	memories *memory.Service,
) *MemoryHandler {
	return &MemoryHandler{
		scope:     scope,
		projects:  projects,
		chapters:  chapters,
		fragments: fragments,
		memories:  memories,
	}
}

// SearchMemories 语义检索项目记忆片段
// @Summary 检索记忆片段
// @Tags Memories
// @Accept json
// @Produce json
// @Param pid path string true "项目 ID"
// @Param request body dto.SearchMemoryRequest true "检索请求"
// @Success 200 {object} dto.Response[dto.SearchMemoryResponse]
// @Failure 404 {object} dto.ErrorResponse
// @Router /v1/projects/{pid}/memories/search [post]
func (h *MemoryHandler) SearchMemories(c *gin.Context) {
	tenantID, ok := requireTenant(c)
	if !ok {
		return
	}
	projectID := dto.BindProjectID(c)
	if !requireParam(c, projectID, "pid") {
		return
	}
	var req dto.SearchMemoryRequest
	if !bindJSON(c, &req) {
		return
	}

	memoryTypes := make([]entity.MemoryType, 0, len(req.MemoryTypes))
	for _, t := range req.MemoryTypes {
		memoryTypes = append(memoryTypes, entity.MemoryType(t))
	}

	var out *memory.SearchOutput
	err := h.scope.Read(c.Request.Context(), tenantID, func(ctx context.Context) error {
		project, err := h.projects.GetByID(ctx, projectID)
		if err != nil {
			return err
		}
		if project == nil {
			return apperrors.ErrProjectNotFound
		}
		out, err = h.memories.Search(ctx, memory.SearchInput{
			TenantID:       tenantID,
			ProjectID:      projectID,
			Query:          req.Query,
			TopK:           req.TopK,
			BeforeTimeline: req.BeforeTimeline,
			MemoryTypes:    memoryTypes,
		})
		return err
	})
	if err != nil {
		dto.Fail(c, err)
		return
	}
	dto.Success(c, &dto.SearchMemoryResponse{
		Fragments:      dto.ToMemoryFragmentResponses(out.Fragments, out.Scores),
		DisabledReason: out.DisabledReason,
	})
}

// BuildContext 组装目标章节的记忆上下文
// @Summary 组装记忆上下文
// @Tags Memories
// @Accept json
// @Produce json
// @Param pid path string true "项目 ID"
// @Param request body dto.BuildContextRequest true "组装请求"
// @Success 200 {object} dto.Response[memory.ContextBundle]
// @Failure 404 {object} dto.ErrorResponse
// @Router /v1/projects/{pid}/memories/context [post]
func (h *MemoryHandler) BuildContext(c *gin.Context) {
	tenantID, ok := requireTenant(c)
	if !ok {
		return
	}
	projectID := dto.BindProjectID(c)
	if !requireParam(c, projectID, "pid") {
		return
	}
	var req dto.BuildContextRequest
	if !bindJSON(c, &req) {
		return
	}

	var bundle *memory.ContextBundle
	err := h.scope.Read(c.Request.Context(), tenantID, func(ctx context.Context) error {
		project, err := h.projects.GetByID(ctx, projectID)
		if err != nil {
			return err
		}
		if project == nil {
			return apperrors.ErrProjectNotFound
		}
		bundle, err = h.memories.BuildContext(ctx, memory.BuildContextInput{
			TenantID:       tenantID,
			ProjectID:      projectID,
			CurrentChapter: req.CurrentChapter,
			ChapterOutline: req.ChapterOutline,
			CharacterNames: req.CharacterNames,
		})
		return err
	})
	if err != nil {
		dto.Fail(c, err)
		return
	}
	dto.Success(c, bundle)
}

// ListChapterMemories 获取章节全部记忆片段
// @Summary 获取章节记忆片段
// @Tags Memories
// @Produce json
// @Param pid path string true "项目 ID"
// @Param cid path string true "章节 ID"
// @Success 200 {object} dto.Response[dto.MemoryListResponse]
// @Failure 404 {object} dto.ErrorResponse
// @Router /v1/projects/{pid}/chapters/{cid}/memories [get]
func (h *MemoryHandler) ListChapterMemories(c *gin.Context) {
	tenantID, ok := requireTenant(c)
	if !ok {
		return
	}
	projectID := dto.BindProjectID(c)
	if !requireParam(c, projectID, "pid") {
		return
	}
	chapterID := dto.BindChapterID(c)
	if !requireParam(c, chapterID, "cid") {
		return
	}

	var fragments []*entity.MemoryFragment
	err := h.scope.Read(c.Request.Context(), tenantID, func(ctx context.Context) error {
		chapter, err := h.chapters.GetByID(ctx, chapterID)
		if err != nil {
			return err
		}
		if chapter == nil || chapter.ProjectID != projectID {
			return apperrors.ErrChapterNotFound
		}
		fragments, err = h.fragments.ListByChapter(ctx, projectID, chapterID)
		return err
	})
	if err != nil {
		dto.Fail(c, err)
		return
	}
	dto.Success(c, &dto.MemoryListResponse{
		Fragments: dto.ToMemoryFragmentResponses(fragments, nil),
	})
}

// DeleteChapterMemories 删除章节全部记忆片段（含向量索引），幂等
// @Summary 删除章节记忆片段
// @Tags Memories
// @Produce json
// @Param pid path string true "项目 ID"
// @Param cid path string true "章节 ID"
// @Success 200 {object} dto.Response[dto.DeletedResponse]
// @Failure 404 {object} dto.ErrorResponse
// @Router /v1/projects/{pid}/chapters/{cid}/memories [delete]
func (h *MemoryHandler) DeleteChapterMemories(c *gin.Context) {
	tenantID, ok := requireTenant(c)
	if !ok {
		return
	}
	projectID := dto.BindProjectID(c)
	if !requireParam(c, projectID, "pid") {
		return
	}
	chapterID := dto.BindChapterID(c)
	if !requireParam(c, chapterID, "cid") {
		return
	}

	var deleted int64
	err := h.scope.Write(c.Request.Context(), tenantID, func(ctx context.Context) error {
		chapter, err := h.chapters.GetByID(ctx, chapterID)
		if err != nil {
			return err
		}
		if chapter == nil || chapter.ProjectID != projectID {
			return apperrors.ErrChapterNotFound
		}
		deleted, err = h.memories.DeleteByChapter(ctx, tenantID, projectID, chapterID)
		return err
	})
	if err != nil {
		dto.Fail(c, err)
		return
	}
	dto.Success(c, &dto.DeletedResponse{Deleted: map[string]int64{"memories": deleted}})
}
