// Package handler 提供 HTTP 请求处理器
package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"novelforge-api/internal/domain/entity"
	"novelforge-api/internal/domain/repository"
	"novelforge-api/internal/interfaces/http/dto"
	apperrors "novelforge-api/pkg/errors"
)

// StyleHandler 写作风格处理器。
// 预置风格为租户级全局只读数据，自定义风格挂在项目下。
type StyleHandler struct {
	scope         Scope
	projects      repository.ProjectRepository
	styles        repository.WritingStyleRepository
	defaultStyles repository.ProjectDefaultStyleRepository
}

// NewStyleHandler 创建写作风格处理器
func NewStyleHandler(
	scope Scope,
	projects repository.ProjectRepository,
	styles repository.WritingStyleRepository,
	defaultStyles repository.ProjectDefaultStyleRepository,
) *StyleHandler {
	return &StyleHandler{
		scope:         scope,
		projects:      projects,
		styles:        styles,
		defaultStyles: defaultStyles,
	}
}

// ListStyles 获取项目可用风格（全局预置 + 项目自定义）
// @Summary 获取写作风格列表
// @Tags Styles
// @Produce json
// @Param pid path string true "项目 ID"
// @Success 200 {object} dto.Response[dto.StyleListResponse]
// @Router /v1/projects/{pid}/styles [get]
func (h *StyleHandler) ListStyles(c *gin.Context) {
	tenantID, ok := requireTenant(c)
	if !ok {
		return
	}
	projectID := dto.BindProjectID(c)
	if !requireParam(c, projectID, "pid") {
		return
	}

	var (
		styles    []*entity.WritingStyle
		defaultID string
	)
	err := h.scope.Read(c.Request.Context(), tenantID, func(ctx context.Context) error {
		var err error
		styles, err = h.styles.ListForProject(ctx, projectID)
		if err != nil {
			return err
		}
		def, err := h.defaultStyles.GetByProject(ctx, projectID)
		if err != nil {
			return err
		}
		if def != nil {
			defaultID = def.StyleID
		}
		return nil
	})
	if err != nil {
		dto.Fail(c, apperrors.Wrap(err, apperrors.CodeDatabaseError, "查询风格列表失败"))
		return
	}
	dto.Success(c, dto.ToStyleListResponse(styles, defaultID))
}

// CreateStyle 创建项目自定义风格
// @Summary 创建写作风格
// @Tags Styles
// @Accept json
// @Produce json
// @Param pid path string true "项目 ID"
// @Param request body dto.CreateStyleRequest true "创建风格请求"
// @Success 201 {object} dto.Response[dto.StyleResponse]
// @Failure 404 {object} dto.ErrorResponse
// @Router /v1/projects/{pid}/styles [post]
func (h *StyleHandler) CreateStyle(c *gin.Context) {
	tenantID, ok := requireTenant(c)
	if !ok {
		return
	}
	projectID := dto.BindProjectID(c)
	if !requireParam(c, projectID, "pid") {
		return
	}
	var req dto.CreateStyleRequest
	if !bindJSON(c, &req) {
		return
	}

	style := &entity.WritingStyle{
		TenantID:    tenantID,
		ProjectID:   &projectID,
		Name:        req.Name,
		Description: req.Description,
		Tone:        req.Tone,
		PromptHint:  req.PromptHint,
		OrderIndex:  req.OrderIndex,
	}
	err := h.scope.Write(c.Request.Context(), tenantID, func(ctx context.Context) error {
		project, err := h.projects.GetByID(ctx, projectID)
		if err != nil {
			return err
		}
		if project == nil {
			return apperrors.ErrProjectNotFound
		}
		return h.styles.Create(ctx, style)
	})
	if err != nil {
		dto.Fail(c, err)
		return
	}
	dto.Created(c, dto.ToStyleResponse(style))
}

// UpdateStyle 更新自定义风格；预置风格只读
// @Summary 更新写作风格
// @Tags Styles
// @Accept json
// @Produce json
// @Param sid path string true "风格 ID"
// @Param request body dto.UpdateStyleRequest true "更新风格请求"
// @Success 200 {object} dto.Response[dto.StyleResponse]
// @Failure 403 {object} dto.ErrorResponse
// @Router /v1/styles/{sid} [put]
func (h *StyleHandler) UpdateStyle(c *gin.Context) {
	tenantID, ok := requireTenant(c)
	if !ok {
		return
	}
	styleID := dto.BindStyleID(c)
	if !requireParam(c, styleID, "sid") {
		return
	}
	var req dto.UpdateStyleRequest
	if !bindJSON(c, &req) {
		return
	}

	var style *entity.WritingStyle
	err := h.scope.Write(c.Request.Context(), tenantID, func(ctx context.Context) error {
		var err error
		style, err = h.styles.GetByID(ctx, styleID)
		if err != nil {
			return err
		}
		if style == nil {
			return apperrors.ErrStyleNotFound
		}
		if style.IsPreset {
			return apperrors.ErrForbidden.WithDetail("预置风格不可修改")
		}
		req.ApplyToStyle(style)
		return h.styles.Update(ctx, style)
	})
	if err != nil {
		dto.Fail(c, err)
		return
	}
	dto.Success(c, dto.ToStyleResponse(style))
}

// DeleteStyle 删除自定义风格；预置风格与作为项目默认的风格不可删除
// @Summary 删除写作风格
// @Tags Styles
// @Produce json
// @Param sid path string true "风格 ID"
// @Success 204
// @Failure 403 {object} dto.ErrorResponse
// @Router /v1/styles/{sid} [delete]
func (h *StyleHandler) DeleteStyle(c *gin.Context) {
	tenantID, ok := requireTenant(c)
	if !ok {
		return
	}
	styleID := dto.BindStyleID(c)
	if !requireParam(c, styleID, "sid") {
		return
	}

	err := h.scope.Write(c.Request.Context(), tenantID, func(ctx context.Context) error {
		style, err := h.styles.GetByID(ctx, styleID)
		if err != nil {
			return err
		}
		if style == nil {
			return apperrors.ErrStyleNotFound
		}
		if style.IsPreset {
			return apperrors.ErrForbidden.WithDetail("预置风格不可删除")
		}
		if style.ProjectID != nil {
			def, err := h.defaultStyles.GetByProject(ctx, *style.ProjectID)
			if err != nil {
				return err
			}
			if def != nil && def.StyleID == styleID {
				return apperrors.ErrConflict.WithDetail("该风格是项目默认风格，请先更换默认风格")
			}
		}
		return h.styles.Delete(ctx, styleID)
	})
	if err != nil {
		dto.Fail(c, err)
		return
	}
	dto.NoContent(c)
}

// SetDefaultStyle 设置项目默认风格；风格必须是全局预置或该项目自有
// @Summary 设置项目默认风格
// @Tags Styles
// @Accept json
// @Produce json
// @Param pid path string true "项目 ID"
// @Param request body dto.SetDefaultStyleRequest true "默认风格请求"
// @Success 200 {object} dto.Response[dto.StyleResponse]
// @Failure 400 {object} dto.ErrorResponse
// @Router /v1/projects/{pid}/default-style [put]
func (h *StyleHandler) SetDefaultStyle(c *gin.Context) {
	tenantID, ok := requireTenant(c)
	if !ok {
		return
	}
	projectID := dto.BindProjectID(c)
	if !requireParam(c, projectID, "pid") {
		return
	}
	var req dto.SetDefaultStyleRequest
	if !bindJSON(c, &req) {
		return
	}

	var style *entity.WritingStyle
	err := h.scope.Write(c.Request.Context(), tenantID, func(ctx context.Context) error {
		project, err := h.projects.GetByID(ctx, projectID)
		if err != nil {
			return err
		}
		if project == nil {
			return apperrors.ErrProjectNotFound
		}
		style, err = h.styles.GetByID(ctx, req.StyleID)
		if err != nil {
			return err
		}
		if style == nil {
			return apperrors.ErrStyleNotFound
		}
		if !style.IsGlobal() && (style.ProjectID == nil || *style.ProjectID != projectID) {
			return apperrors.ErrValidationFailed.WithDetail("风格不属于该项目")
		}
		return h.defaultStyles.Upsert(ctx, &entity.ProjectDefaultStyle{
			ProjectID: projectID,
			StyleID:   req.StyleID,
		})
	})
	if err != nil {
		dto.Fail(c, err)
		return
	}
	dto.Success(c, dto.ToStyleResponse(style))
}
