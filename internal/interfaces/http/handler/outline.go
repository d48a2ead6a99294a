// Package handler 提供 HTTP 请求处理器
package handler

import (
	"context"
	"fmt"
	"sort"

	"github.com/gin-gonic/gin"

	"novelforge-api/internal/domain/entity"
	"novelforge-api/internal/domain/repository"
	"novelforge-api/internal/interfaces/http/dto"
	apperrors "novelforge-api/pkg/errors"
)

// OutlineHandler 大纲处理器。
// 大纲节点与同号章节配对：创建大纲时补建草稿章节，重排时同步改写章节号，
// 删除时对后续节点做 -1 重排，保证 order_index 始终为连续的 1..N。
type OutlineHandler struct {
	scope    Scope
	projects repository.ProjectRepository
	outlines repository.OutlineRepository
	chapters repository.ChapterRepository
}

// NewOutlineHandler 创建大纲处理器
func NewOutlineHandler(
	scope Scope,
	projects repository.ProjectRepository,
	outlines repository.OutlineRepository,
	chapters repository.ChapterRepository,
) *OutlineHandler {
	return &OutlineHandler{
		scope:    scope,
		projects: projects,
		outlines: outlines,
		chapters: chapters,
	}
}

// CreateOutline 创建大纲节点并补建配对草稿章节
// @Summary 创建大纲节点
// @Tags Outlines
// @Accept json
// @Produce json
// @Param pid path string true "项目 ID"
// @Param request body dto.CreateOutlineRequest true "创建大纲请求"
// @Success 201 {object} dto.Response[dto.OutlineResponse]
// @Failure 404 {object} dto.ErrorResponse
// @Router /v1/projects/{pid}/outlines [post]
func (h *OutlineHandler) CreateOutline(c *gin.Context) {
	tenantID, ok := requireTenant(c)
	if !ok {
		return
	}
	projectID := dto.BindProjectID(c)
	if !requireParam(c, projectID, "pid") {
		return
	}
	var req dto.CreateOutlineRequest
	if !bindJSON(c, &req) {
		return
	}

	var outline *entity.Outline
	err := h.scope.Write(c.Request.Context(), tenantID, func(ctx context.Context) error {
		project, err := h.projects.GetByID(ctx, projectID)
		if err != nil {
			return err
		}
		if project == nil {
			return apperrors.ErrProjectNotFound
		}

		maxIndex, err := h.outlines.MaxOrderIndex(ctx, projectID)
		if err != nil {
			return err
		}
		orderIndex := req.OrderIndex
		if orderIndex <= 0 || orderIndex > maxIndex {
			orderIndex = maxIndex + 1
		} else {
			// 插入已有位置，后续节点与同号章节整体后移
			if err := h.outlines.ShiftOrderAfter(ctx, projectID, orderIndex-1, 1); err != nil {
				return err
			}
			if err := h.chapters.ShiftNumbersAfter(ctx, projectID, orderIndex-1, 1); err != nil {
				return err
			}
		}

		outline = req.ToOutlineEntity(projectID, orderIndex)
		if err := h.outlines.Create(ctx, outline); err != nil {
			return err
		}

		existing, err := h.chapters.GetByProjectAndNumber(ctx, projectID, orderIndex)
		if err != nil {
			return err
		}
		if existing == nil {
			chapter := entity.NewChapter(projectID, orderIndex, outline.Title, outline.SummaryPrefix(200))
			if err := h.chapters.Create(ctx, chapter); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		dto.Fail(c, err)
		return
	}
	dto.Created(c, dto.ToOutlineResponse(outline))
}

// ListOutlines 获取项目大纲列表
// @Summary 获取大纲列表
// @Tags Outlines
// @Produce json
// @Param pid path string true "项目 ID"
// @Success 200 {object} dto.Response[dto.OutlineListResponse]
// @Router /v1/projects/{pid}/outlines [get]
func (h *OutlineHandler) ListOutlines(c *gin.Context) {
	tenantID, ok := requireTenant(c)
	if !ok {
		return
	}
	projectID := dto.BindProjectID(c)
	if !requireParam(c, projectID, "pid") {
		return
	}

	var outlines []*entity.Outline
	err := h.scope.Read(c.Request.Context(), tenantID, func(ctx context.Context) error {
		var err error
		outlines, err = h.outlines.ListByProject(ctx, projectID)
		return err
	})
	if err != nil {
		dto.Fail(c, apperrors.Wrap(err, apperrors.CodeDatabaseError, "查询大纲列表失败"))
		return
	}
	dto.Success(c, dto.ToOutlineListResponse(outlines))
}

// GetOutline 获取大纲节点详情
// @Summary 获取大纲节点
// @Tags Outlines
// @Produce json
// @Param oid path string true "大纲 ID"
// @Success 200 {object} dto.Response[dto.OutlineResponse]
// @Failure 404 {object} dto.ErrorResponse
// @Router /v1/outlines/{oid} [get]
func (h *OutlineHandler) GetOutline(c *gin.Context) {
	tenantID, ok := requireTenant(c)
	if !ok {
		return
	}
	outlineID := dto.BindOutlineID(c)
	if !requireParam(c, outlineID, "oid") {
		return
	}

	var outline *entity.Outline
	err := h.scope.Read(c.Request.Context(), tenantID, func(ctx context.Context) error {
		var err error
		outline, err = h.outlines.GetByID(ctx, outlineID)
		return err
	})
	if err != nil {
		dto.Fail(c, apperrors.Wrap(err, apperrors.CodeDatabaseError, "查询大纲失败"))
		return
	}
	if outline == nil {
		dto.Fail(c, apperrors.ErrOutlineNotFound)
		return
	}
	dto.Success(c, dto.ToOutlineResponse(outline))
}

// UpdateOutline 更新大纲节点，并同步配对章节的标题与概要
// @Summary 更新大纲节点
// @Tags Outlines
// @Accept json
// @Produce json
// @Param oid path string true "大纲 ID"
// @Param request body dto.UpdateOutlineRequest true "更新大纲请求"
// @Success 200 {object} dto.Response[dto.OutlineResponse]
// @Failure 404 {object} dto.ErrorResponse
// @Router /v1/outlines/{oid} [put]
func (h *OutlineHandler) UpdateOutline(c *gin.Context) {
	tenantID, ok := requireTenant(c)
	if !ok {
		return
	}
	outlineID := dto.BindOutlineID(c)
	if !requireParam(c, outlineID, "oid") {
		return
	}
	var req dto.UpdateOutlineRequest
	if !bindJSON(c, &req) {
		return
	}

	var outline *entity.Outline
	err := h.scope.Write(c.Request.Context(), tenantID, func(ctx context.Context) error {
		var err error
		outline, err = h.outlines.GetByID(ctx, outlineID)
		if err != nil {
			return err
		}
		if outline == nil {
			return apperrors.ErrOutlineNotFound
		}
		req.ApplyToOutline(outline)
		if err := h.outlines.Update(ctx, outline); err != nil {
			return err
		}

		// 配对章节仍处草稿态时同步标题与概要
		chapter, err := h.chapters.GetByProjectAndNumber(ctx, outline.ProjectID, outline.OrderIndex)
		if err != nil {
			return err
		}
		if chapter != nil && !chapter.HasContent() {
			chapter.Title = outline.Title
			chapter.Summary = outline.SummaryPrefix(200)
			return h.chapters.Update(ctx, chapter)
		}
		return nil
	})
	if err != nil {
		dto.Fail(c, err)
		return
	}
	dto.Success(c, dto.ToOutlineResponse(outline))
}

// DeleteOutline 删除大纲节点并对后续节点做 -1 重排
// @Summary 删除大纲节点
// @Tags Outlines
// @Produce json
// @Param oid path string true "大纲 ID"
// @Success 200 {object} dto.Response[dto.DeletedResponse]
// @Failure 409 {object} dto.ErrorResponse
// @Router /v1/outlines/{oid} [delete]
func (h *OutlineHandler) DeleteOutline(c *gin.Context) {
	tenantID, ok := requireTenant(c)
	if !ok {
		return
	}
	outlineID := dto.BindOutlineID(c)
	if !requireParam(c, outlineID, "oid") {
		return
	}

	deleted := map[string]int64{}
	err := h.scope.Write(c.Request.Context(), tenantID, func(ctx context.Context) error {
		outline, err := h.outlines.GetByID(ctx, outlineID)
		if err != nil {
			return err
		}
		if outline == nil {
			return apperrors.ErrOutlineNotFound
		}

		chapter, err := h.chapters.GetByProjectAndNumber(ctx, outline.ProjectID, outline.OrderIndex)
		if err != nil {
			return err
		}
		if chapter != nil {
			if chapter.HasContent() {
				return apperrors.ErrConflict.WithDetail("配对章节已有正文，请先删除章节")
			}
			if err := h.chapters.Delete(ctx, chapter.ID); err != nil {
				return err
			}
			deleted["chapters"] = 1
		}

		if err := h.outlines.Delete(ctx, outlineID); err != nil {
			return err
		}
		deleted["outlines"] = 1

		if err := h.outlines.ShiftOrderAfter(ctx, outline.ProjectID, outline.OrderIndex, -1); err != nil {
			return err
		}
		return h.chapters.ShiftNumbersAfter(ctx, outline.ProjectID, outline.OrderIndex, -1)
	})
	if err != nil {
		dto.Fail(c, err)
		return
	}
	dto.Success(c, dto.DeletedResponse{Deleted: deleted})
}

// ReorderOutlines 批量重排大纲，配对章节号随之改写。
// 采用先收集后提交策略：校验目标序号构成 1..N 的排列后，
// 先整体偏移避开唯一约束冲突，再写入最终序号。
// @Summary 重排大纲
// @Tags Outlines
// @Accept json
// @Produce json
// @Param pid path string true "项目 ID"
// @Param request body dto.ReorderOutlinesRequest true "重排请求"
// @Success 200 {object} dto.Response[dto.OutlineListResponse]
// @Failure 400 {object} dto.ErrorResponse
// @Router /v1/projects/{pid}/outlines/reorder [post]
func (h *OutlineHandler) ReorderOutlines(c *gin.Context) {
	tenantID, ok := requireTenant(c)
	if !ok {
		return
	}
	projectID := dto.BindProjectID(c)
	if !requireParam(c, projectID, "pid") {
		return
	}
	var req dto.ReorderOutlinesRequest
	if !bindJSON(c, &req) {
		return
	}

	var outlines []*entity.Outline
	err := h.scope.Write(c.Request.Context(), tenantID, func(ctx context.Context) error {
		existing, err := h.outlines.ListByProject(ctx, projectID)
		if err != nil {
			return err
		}
		if len(existing) == 0 {
			return apperrors.ErrOutlineNotFound
		}
		if len(req.Orders) != len(existing) {
			return apperrors.ErrValidationFailed.WithDetail(
				fmt.Sprintf("orders must cover all %d outlines", len(existing)))
		}

		byID := make(map[string]*entity.Outline, len(existing))
		for _, o := range existing {
			byID[o.ID] = o
		}
		target := make(map[string]int, len(req.Orders))
		seen := make(map[int]bool, len(req.Orders))
		for _, order := range req.Orders {
			if _, ok := byID[order.OutlineID]; !ok {
				return apperrors.ErrValidationFailed.WithDetail("unknown outline: " + order.OutlineID)
			}
			if order.OrderIndex < 1 || order.OrderIndex > len(existing) {
				return apperrors.ErrValidationFailed.WithDetail(
					fmt.Sprintf("order_index %d out of range 1..%d", order.OrderIndex, len(existing)))
			}
			if seen[order.OrderIndex] {
				return apperrors.ErrValidationFailed.WithDetail(
					fmt.Sprintf("duplicate order_index %d", order.OrderIndex))
			}
			if _, dup := target[order.OutlineID]; dup {
				return apperrors.ErrValidationFailed.WithDetail("duplicate outline: " + order.OutlineID)
			}
			seen[order.OrderIndex] = true
			target[order.OutlineID] = order.OrderIndex
		}

		allChapters, err := h.chapters.ListByProject(ctx, projectID)
		if err != nil {
			return err
		}
		chapterByNumber := make(map[int]*entity.Chapter, len(allChapters))
		for _, ch := range allChapters {
			chapterByNumber[ch.ChapterNumber] = ch
		}
		// 按重排前的序号确定配对章节
		paired := make(map[string]*entity.Chapter, len(existing))
		for _, o := range existing {
			if ch, ok := chapterByNumber[o.OrderIndex]; ok {
				paired[o.ID] = ch
			}
		}

		// 第一阶段：整体偏移，避开 (project, order_index) 唯一约束
		offset := len(existing) + 1
		for _, o := range existing {
			o.OrderIndex = target[o.ID] + offset
			if err := h.outlines.Update(ctx, o); err != nil {
				return err
			}
			if ch := paired[o.ID]; ch != nil {
				ch.ChapterNumber = target[o.ID] + offset
				if err := h.chapters.Update(ctx, ch); err != nil {
					return err
				}
			}
		}

		// 第二阶段：写入最终序号
		for _, o := range existing {
			o.OrderIndex = target[o.ID]
			if err := h.outlines.Update(ctx, o); err != nil {
				return err
			}
			if ch := paired[o.ID]; ch != nil {
				ch.ChapterNumber = target[o.ID]
				if err := h.chapters.Update(ctx, ch); err != nil {
					return err
				}
			}
		}

		outlines = existing
		sort.Slice(outlines, func(i, j int) bool {
			return outlines[i].OrderIndex < outlines[j].OrderIndex
		})
		return nil
	})
	if err != nil {
		dto.Fail(c, err)
		return
	}
	dto.Success(c, dto.ToOutlineListResponse(outlines))
}
