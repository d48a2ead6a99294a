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

// HistoryHandler 生成历史处理器
type HistoryHandler struct {
	scope     Scope
	projects  repository.ProjectRepository
	histories repository.GenerationHistoryRepository
}

// NewHistoryHandler 创建生成历史处理器
func NewHistoryHandler(scope Scope, projects repository.ProjectRepository, histories repository.GenerationHistoryRepository) *HistoryHandler {
	return &HistoryHandler{scope: scope, projects: projects, histories: histories}
}

// ListHistories 按时间倒序分页获取项目生成历史
// @Summary 获取生成历史列表
// @Tags Histories
// @Produce json
// @Param pid path string true "项目 ID"
// @Param generation_type query string false "生成类型"
// @Param page query int false "页码"
// @Param page_size query int false "每页数量"
// @Success 200 {object} dto.Response[dto.HistoryListResponse]
// @Failure 404 {object} dto.ErrorResponse
// @Router /v1/projects/{pid}/histories [get]
func (h *HistoryHandler) ListHistories(c *gin.Context) {
	tenantID, ok := requireTenant(c)
	if !ok {
		return
	}
	projectID := dto.BindProjectID(c)
	if !requireParam(c, projectID, "pid") {
		return
	}
	page := dto.BindPage(c)
	genType := entity.GenerationType(c.Query("generation_type"))

	var result *repository.PagedResult[*entity.GenerationHistory]
	err := h.scope.Read(c.Request.Context(), tenantID, func(ctx context.Context) error {
		project, err := h.projects.GetByID(ctx, projectID)
		if err != nil {
			return err
		}
		if project == nil {
			return apperrors.ErrProjectNotFound
		}
		result, err = h.histories.ListByProject(ctx, projectID, genType, repository.NewPagination(page.Page, page.PageSize))
		return err
	})
	if err != nil {
		dto.Fail(c, err)
		return
	}
	dto.SuccessWithPage(c, dto.ToHistoryListResponse(result.Items),
		dto.NewPageMeta(result.Page, result.PageSize, int(result.Total)))
}
