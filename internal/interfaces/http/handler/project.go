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
	"novelforge-api/pkg/logger"
)

// ProjectHandler 项目处理器
type ProjectHandler struct {
	scope         Scope
	projects      repository.ProjectRepository
	chapters      repository.ChapterRepository
	outlines      repository.OutlineRepository
	characters    repository.CharacterRepository
	relationships repository.CharacterRelationshipRepository
	organizations repository.OrganizationRepository
	orgMembers    repository.OrganizationMemberRepository
	styles        repository.WritingStyleRepository
	defaultStyles repository.ProjectDefaultStyleRepository
	histories     repository.GenerationHistoryRepository
	memories      *memory.Service
}

// NewProjectHandler 创建项目处理器
func NewProjectHandler(
	scope Scope,
	projects repository.ProjectRepository,
	chapters repository.ChapterRepository,
	outlines repository.OutlineRepository,
	characters repository.CharacterRepository,
	relationships repository.CharacterRelationshipRepository,
	organizations repository.OrganizationRepository,
	orgMembers repository.OrganizationMemberRepository,
	styles repository.WritingStyleRepository,
	defaultStyles repository.ProjectDefaultStyleRepository,
	histories repository.GenerationHistoryRepository,
	memories *memory.Service,
) *ProjectHandler {
	return &ProjectHandler{
		scope:         scope,
		projects:      projects,
		chapters:      chapters,
		outlines:      outlines,
		characters:    characters,
		relationships: relationships,
		organizations: organizations,
		orgMembers:    orgMembers,
		styles:        styles,
		defaultStyles: defaultStyles,
		histories:     histories,
		memories:      memories,
	}
}

// CreateProject 创建项目
// @Summary 创建项目
// @Tags Projects
// @Accept json
// @Produce json
// @Param request body dto.CreateProjectRequest true "创建项目请求"
// @Success 201 {object} dto.Response[dto.ProjectResponse]
// @Failure 400 {object} dto.ErrorResponse
// @Router /v1/projects [post]
func (h *ProjectHandler) CreateProject(c *gin.Context) {
	tenantID, ok := requireTenant(c)
	if !ok {
		return
	}
	var req dto.CreateProjectRequest
	if !bindJSON(c, &req) {
		return
	}

	project := req.ToProjectEntity(tenantID)
	err := h.scope.Write(c.Request.Context(), tenantID, func(ctx context.Context) error {
		return h.projects.Create(ctx, project)
	})
	if err != nil {
		dto.Fail(c, apperrors.Wrap(err, apperrors.CodeDatabaseError, "创建项目失败"))
		return
	}
	dto.Created(c, dto.ToProjectResponse(project))
}

// GetProject 获取项目详情
// @Summary 获取项目详情
// @Tags Projects
// @Produce json
// @Param pid path string true "项目 ID"
// @Success 200 {object} dto.Response[dto.ProjectResponse]
// @Failure 404 {object} dto.ErrorResponse
// @Router /v1/projects/{pid} [get]
func (h *ProjectHandler) GetProject(c *gin.Context) {
	tenantID, ok := requireTenant(c)
	if !ok {
		return
	}
	projectID := dto.BindProjectID(c)
	if !requireParam(c, projectID, "pid") {
		return
	}

	var project *entity.Project
	err := h.scope.Read(c.Request.Context(), tenantID, func(ctx context.Context) error {
		var err error
		project, err = h.projects.GetByID(ctx, projectID)
		return err
	})
	if err != nil {
		dto.Fail(c, apperrors.Wrap(err, apperrors.CodeDatabaseError, "查询项目失败"))
		return
	}
	if project == nil {
		dto.Fail(c, apperrors.ErrProjectNotFound)
		return
	}
	dto.Success(c, dto.ToProjectResponse(project))
}

// ListProjects 分页获取项目列表
// @Summary 获取项目列表
// @Tags Projects
// @Produce json
// @Param page query int false "页码" default(1)
// @Param page_size query int false "每页条数" default(20)
// @Param status query string false "项目状态"
// @Success 200 {object} dto.Response[dto.ProjectListResponse]
// @Failure 500 {object} dto.ErrorResponse
// @Router /v1/projects [get]
func (h *ProjectHandler) ListProjects(c *gin.Context) {
	tenantID, ok := requireTenant(c)
	if !ok {
		return
	}
	page := dto.BindPage(c)
	filter := &repository.ProjectFilter{
		Status: entity.ProjectStatus(c.Query("status")),
		Genre:  c.Query("genre"),
	}

	var result *repository.PagedResult[*entity.Project]
	err := h.scope.Read(c.Request.Context(), tenantID, func(ctx context.Context) error {
		var err error
		result, err = h.projects.List(ctx, filter, repository.NewPagination(page.Page, page.PageSize))
		return err
	})
	if err != nil {
		dto.Fail(c, apperrors.Wrap(err, apperrors.CodeDatabaseError, "查询项目列表失败"))
		return
	}
	dto.SuccessWithPage(c, dto.ToProjectListResponse(result.Items),
		dto.NewPageMeta(result.Page, result.PageSize, int(result.Total)))
}

// UpdateProject 更新项目
// @Summary 更新项目
// @Tags Projects
// @Accept json
// @Produce json
// @Param pid path string true "项目 ID"
// @Param request body dto.UpdateProjectRequest true "更新项目请求"
// @Success 200 {object} dto.Response[dto.ProjectResponse]
// @Failure 404 {object} dto.ErrorResponse
// @Router /v1/projects/{pid} [put]
func (h *ProjectHandler) UpdateProject(c *gin.Context) {
	tenantID, ok := requireTenant(c)
	if !ok {
		return
	}
	projectID := dto.BindProjectID(c)
	if !requireParam(c, projectID, "pid") {
		return
	}
	var req dto.UpdateProjectRequest
	if !bindJSON(c, &req) {
		return
	}

	var project *entity.Project
	err := h.scope.Write(c.Request.Context(), tenantID, func(ctx context.Context) error {
		var err error
		project, err = h.projects.GetByID(ctx, projectID)
		if err != nil {
			return err
		}
		if project == nil {
			return apperrors.ErrProjectNotFound
		}
		req.ApplyToProject(project)
		return h.projects.Update(ctx, project)
	})
	if err != nil {
		dto.Fail(c, err)
		return
	}
	dto.Success(c, dto.ToProjectResponse(project))
}

// DeleteProject 删除项目及其全部关联数据
// @Summary 删除项目
// @Tags Projects
// @Produce json
// @Param pid path string true "项目 ID"
// @Success 200 {object} dto.Response[dto.DeletedResponse]
// @Failure 404 {object} dto.ErrorResponse
// @Router /v1/projects/{pid} [delete]
func (h *ProjectHandler) DeleteProject(c *gin.Context) {
	tenantID, ok := requireTenant(c)
	if !ok {
		return
	}
	projectID := dto.BindProjectID(c)
	if !requireParam(c, projectID, "pid") {
		return
	}

	deleted := map[string]int64{}
	err := h.scope.Write(c.Request.Context(), tenantID, func(ctx context.Context) error {
		project, err := h.projects.GetByID(ctx, projectID)
		if err != nil {
			return err
		}
		if project == nil {
			return apperrors.ErrProjectNotFound
		}

		// 先删子表再删项目；记忆服务同时清理向量分区
		n, err := h.memories.DeleteByProject(ctx, tenantID, projectID)
		if err != nil {
			return err
		}
		deleted["memories"] = n

		if n, err = h.relationships.DeleteByProject(ctx, projectID); err != nil {
			return err
		}
		deleted["relationships"] = n

		orgs, err := h.organizations.ListByProject(ctx, projectID)
		if err != nil {
			return err
		}
		var members int64
		for _, org := range orgs {
			m, err := h.orgMembers.DeleteByOrganization(ctx, org.ID)
			if err != nil {
				return err
			}
			members += m
		}
		deleted["organization_members"] = members
		if n, err = h.organizations.DeleteByProject(ctx, projectID); err != nil {
			return err
		}
		deleted["organizations"] = n

		if n, err = h.characters.DeleteByProject(ctx, projectID); err != nil {
			return err
		}
		deleted["characters"] = n

		if n, err = h.chapters.DeleteByProject(ctx, projectID); err != nil {
			return err
		}
		deleted["chapters"] = n

		if n, err = h.outlines.DeleteByProject(ctx, projectID); err != nil {
			return err
		}
		deleted["outlines"] = n

		if n, err = h.histories.DeleteByProject(ctx, projectID); err != nil {
			return err
		}
		deleted["histories"] = n

		if err := h.defaultStyles.DeleteByProject(ctx, projectID); err != nil {
			return err
		}
		projectStyles, err := h.styles.ListForProject(ctx, projectID)
		if err != nil {
			return err
		}
		var styleCount int64
		for _, s := range projectStyles {
			if s.IsGlobal() || s.IsPreset {
				continue
			}
			if err := h.styles.Delete(ctx, s.ID); err != nil {
				return err
			}
			styleCount++
		}
		deleted["styles"] = styleCount

		if err := h.projects.Delete(ctx, projectID); err != nil {
			return err
		}
		deleted["projects"] = 1
		return nil
	})
	if err != nil {
		if apperrors.IsAppError(err) {
			dto.Fail(c, err)
			return
		}
		logger.Error(c.Request.Context(), "failed to delete project", err, "project_id", projectID)
		dto.Fail(c, apperrors.Wrap(err, apperrors.CodeDatabaseError, "删除项目失败"))
		return
	}
	dto.Success(c, dto.DeletedResponse{Deleted: deleted})
}

// GetProjectStats 获取项目统计信息
// @Summary 获取项目统计
// @Tags Projects
// @Produce json
// @Param pid path string true "项目 ID"
// @Success 200 {object} dto.Response[dto.ProjectStatsResponse]
// @Failure 404 {object} dto.ErrorResponse
// @Router /v1/projects/{pid}/stats [get]
func (h *ProjectHandler) GetProjectStats(c *gin.Context) {
	tenantID, ok := requireTenant(c)
	if !ok {
		return
	}
	projectID := dto.BindProjectID(c)
	if !requireParam(c, projectID, "pid") {
		return
	}

	var stats *repository.ProjectStats
	err := h.scope.Read(c.Request.Context(), tenantID, func(ctx context.Context) error {
		project, err := h.projects.GetByID(ctx, projectID)
		if err != nil {
			return err
		}
		if project == nil {
			return apperrors.ErrProjectNotFound
		}
		stats, err = h.projects.GetStats(ctx, projectID)
		return err
	})
	if err != nil {
		dto.Fail(c, err)
		return
	}
	dto.Success(c, dto.ToProjectStatsResponse(stats))
}
