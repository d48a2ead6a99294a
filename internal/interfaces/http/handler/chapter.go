// Package handler 提供 HTTP 请求处理器
package handler

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	"novelforge-api/internal/application/generation"
	"novelforge-api/internal/application/memory"
	"novelforge-api/internal/domain/entity"
	"novelforge-api/internal/domain/repository"
	"novelforge-api/internal/interfaces/http/dto"
	apperrors "novelforge-api/pkg/errors"
	"novelforge-api/pkg/logger"
)

// ChapterHandler 章节处理器
type ChapterHandler struct {
	scope    Scope
	projects repository.ProjectRepository
	chapters repository.ChapterRepository
	analyses repository.ChapterAnalysisRepository
	tasks    repository.AnalysisTaskRepository
	memories *memory.Service
	analyzer *generation.Analyzer
	queue    generation.AnalysisQueue
}

// NewChapterHandler 创建章节处理器；queue 可为 nil（手动分析降级为进程内执行）
func NewChapterHandler(
	scope Scope,
	projects repository.ProjectRepository,
	chapters repository.ChapterRepository,
	analyses repository.ChapterAnalysisRepository,
	tasks repository.AnalysisTaskRepository,
	memories *memory.Service,
	analyzer *generation.Analyzer,
	queue generation.AnalysisQueue,
) *ChapterHandler {
	return &ChapterHandler{
		scope:    scope,
		projects: projects,
		chapters: chapters,
		analyses: analyses,
		tasks:    tasks,
		memories: memories,
		analyzer: analyzer,
		queue:    queue,
	}
}

// CreateChapter 创建章节
// @Summary 创建章节
// @Tags Chapters
// @Accept json
// @Produce json
// @Param pid path string true "项目 ID"
// @Param request body dto.CreateChapterRequest true "创建章节请求"
// @Success 201 {object} dto.Response[dto.ChapterResponse]
// @Failure 409 {object} dto.ErrorResponse
// @Router /v1/projects/{pid}/chapters [post]
func (h *ChapterHandler) CreateChapter(c *gin.Context) {
	tenantID, ok := requireTenant(c)
	if !ok {
		return
	}
	projectID := dto.BindProjectID(c)
	if !requireParam(c, projectID, "pid") {
		return
	}
	var req dto.CreateChapterRequest
	if !bindJSON(c, &req) {
		return
	}

	var chapter *entity.Chapter
	err := h.scope.Write(c.Request.Context(), tenantID, func(ctx context.Context) error {
		project, err := h.projects.GetByID(ctx, projectID)
		if err != nil {
			return err
		}
		if project == nil {
			return apperrors.ErrProjectNotFound
		}

		number := req.ChapterNumber
		if number <= 0 {
			// 追加到当前最大章节号之后
			existing, err := h.chapters.ListByProject(ctx, projectID)
			if err != nil {
				return err
			}
			for _, ch := range existing {
				if ch.ChapterNumber >= number {
					number = ch.ChapterNumber
				}
			}
			number++
		} else {
			dup, err := h.chapters.GetByProjectAndNumber(ctx, projectID, number)
			if err != nil {
				return err
			}
			if dup != nil {
				return apperrors.ErrConflict.WithDetail("chapter number already exists")
			}
		}

		chapter = entity.NewChapter(projectID, number, req.Title, req.Summary)
		if req.Content != "" {
			chapter.SetContent(req.Content)
		}
		return h.chapters.Create(ctx, chapter)
	})
	if err != nil {
		dto.Fail(c, err)
		return
	}
	dto.Created(c, dto.ToChapterResponse(chapter))
}

// ListChapters 获取项目章节列表（不含正文）
// @Summary 获取章节列表
// @Tags Chapters
// @Produce json
// @Param pid path string true "项目 ID"
// @Success 200 {object} dto.Response[dto.ChapterListResponse]
// @Router /v1/projects/{pid}/chapters [get]
func (h *ChapterHandler) ListChapters(c *gin.Context) {
	tenantID, ok := requireTenant(c)
	if !ok {
		return
	}
	projectID := dto.BindProjectID(c)
	if !requireParam(c, projectID, "pid") {
		return
	}

	var chapters []*entity.Chapter
	err := h.scope.Read(c.Request.Context(), tenantID, func(ctx context.Context) error {
		var err error
		chapters, err = h.chapters.ListByProject(ctx, projectID)
		return err
	})
	if err != nil {
		dto.Fail(c, apperrors.Wrap(err, apperrors.CodeDatabaseError, "查询章节列表失败"))
		return
	}
	dto.Success(c, dto.ToChapterListResponse(chapters))
}

// GetChapter 获取章节详情
// @Summary 获取章节详情
// @Tags Chapters
// @Produce json
// @Param cid path string true "章节 ID"
// @Success 200 {object} dto.Response[dto.ChapterResponse]
// @Failure 404 {object} dto.ErrorResponse
// @Router /v1/chapters/{cid} [get]
func (h *ChapterHandler) GetChapter(c *gin.Context) {
	tenantID, ok := requireTenant(c)
	if !ok {
		return
	}
	chapterID := dto.BindChapterID(c)
	if !requireParam(c, chapterID, "cid") {
		return
	}

	var chapter *entity.Chapter
	err := h.scope.Read(c.Request.Context(), tenantID, func(ctx context.Context) error {
		var err error
		chapter, err = h.chapters.GetByID(ctx, chapterID)
		return err
	})
	if err != nil {
		dto.Fail(c, apperrors.Wrap(err, apperrors.CodeDatabaseError, "查询章节失败"))
		return
	}
	if chapter == nil {
		dto.Fail(c, apperrors.ErrChapterNotFound)
		return
	}
	dto.Success(c, dto.ToChapterResponse(chapter))
}

// UpdateChapter 更新章节；正文变化时同步项目累计字数
// @Summary 更新章节
// @Tags Chapters
// @Accept json
// @Produce json
// @Param cid path string true "章节 ID"
// @Param request body dto.UpdateChapterRequest true "更新章节请求"
// @Success 200 {object} dto.Response[dto.ChapterResponse]
// @Failure 404 {object} dto.ErrorResponse
// @Router /v1/chapters/{cid} [put]
func (h *ChapterHandler) UpdateChapter(c *gin.Context) {
	tenantID, ok := requireTenant(c)
	if !ok {
		return
	}
	chapterID := dto.BindChapterID(c)
	if !requireParam(c, chapterID, "cid") {
		return
	}
	var req dto.UpdateChapterRequest
	if !bindJSON(c, &req) {
		return
	}

	var chapter *entity.Chapter
	err := h.scope.Write(c.Request.Context(), tenantID, func(ctx context.Context) error {
		var err error
		chapter, err = h.chapters.GetByID(ctx, chapterID)
		if err != nil {
			return err
		}
		if chapter == nil {
			return apperrors.ErrChapterNotFound
		}
		before := chapter.WordCount
		req.ApplyToChapter(chapter)
		if err := h.chapters.Update(ctx, chapter); err != nil {
			return err
		}
		if delta := chapter.WordCount - before; delta != 0 {
			return h.projects.UpdateWordCount(ctx, chapter.ProjectID, delta)
		}
		return nil
	})
	if err != nil {
		dto.Fail(c, err)
		return
	}
	dto.Success(c, dto.ToChapterResponse(chapter))
}

// DeleteChapter 删除章节及其记忆与分析结果
// @Summary 删除章节
// @Tags Chapters
// @Produce json
// @Param cid path string true "章节 ID"
// @Success 200 {object} dto.Response[dto.DeletedResponse]
// @Failure 404 {object} dto.ErrorResponse
// @Router /v1/chapters/{cid} [delete]
func (h *ChapterHandler) DeleteChapter(c *gin.Context) {
	tenantID, ok := requireTenant(c)
	if !ok {
		return
	}
	chapterID := dto.BindChapterID(c)
	if !requireParam(c, chapterID, "cid") {
		return
	}

	deleted := map[string]int64{}
	err := h.scope.Write(c.Request.Context(), tenantID, func(ctx context.Context) error {
		chapter, err := h.chapters.GetByID(ctx, chapterID)
		if err != nil {
			return err
		}
		if chapter == nil {
			return apperrors.ErrChapterNotFound
		}

		n, err := h.memories.DeleteByChapter(ctx, tenantID, chapter.ProjectID, chapterID)
		if err != nil {
			return err
		}
		deleted["memories"] = n

		if err := h.analyses.DeleteByChapter(ctx, chapterID); err != nil {
			return err
		}
		if err := h.chapters.Delete(ctx, chapterID); err != nil {
			return err
		}
		deleted["chapters"] = 1

		if chapter.WordCount > 0 {
			if err := h.projects.UpdateWordCount(ctx, chapter.ProjectID, -chapter.WordCount); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		dto.Fail(c, err)
		return
	}
	dto.Success(c, dto.DeletedResponse{Deleted: deleted})
}

// CanGenerate 章节生成前置探测
// @Summary 章节生成前置探测
// @Description 检查目标章节之前是否存在无正文的前置章节
// @Tags Chapters
// @Produce json
// @Param cid path string true "章节 ID"
// @Success 200 {object} dto.Response[dto.CanGenerateResponse]
// @Failure 404 {object} dto.ErrorResponse
// @Router /v1/chapters/{cid}/can-generate [get]
func (h *ChapterHandler) CanGenerate(c *gin.Context) {
	tenantID, ok := requireTenant(c)
	if !ok {
		return
	}
	chapterID := dto.BindChapterID(c)
	if !requireParam(c, chapterID, "cid") {
		return
	}

	var missing []int
	err := h.scope.Read(c.Request.Context(), tenantID, func(ctx context.Context) error {
		chapter, err := h.chapters.GetByID(ctx, chapterID)
		if err != nil {
			return err
		}
		if chapter == nil {
			return apperrors.ErrChapterNotFound
		}
		missing, err = h.chapters.ListMissingPrerequisites(ctx, chapter.ProjectID, chapter.ChapterNumber)
		return err
	})
	if err != nil {
		dto.Fail(c, err)
		return
	}

	resp := dto.CanGenerateResponse{CanGenerate: len(missing) == 0}
	if len(missing) > 0 {
		resp.MissingChapters = missing
		resp.Reason = generation.MissingPrerequisiteMessage(missing)
	}
	dto.Success(c, resp)
}

// GetAnalysis 获取章节分析状态与结果
// @Summary 获取章节分析状态
// @Description 返回最近一次分析任务状态，顺带应用卡死任务自动恢复；任务完成时附带分析结果
// @Tags Analysis
// @Produce json
// @Param cid path string true "章节 ID"
// @Success 200 {object} dto.Response[dto.AnalysisStatusResponse]
// @Failure 404 {object} dto.ErrorResponse
// @Router /v1/chapters/{cid}/analysis [get]
func (h *ChapterHandler) GetAnalysis(c *gin.Context) {
	tenantID, ok := requireTenant(c)
	if !ok {
		return
	}
	chapterID := dto.BindChapterID(c)
	if !requireParam(c, chapterID, "cid") {
		return
	}

	var (
		task     *entity.AnalysisTask
		analysis *entity.ChapterAnalysis
	)
	err := h.scope.Read(c.Request.Context(), tenantID, func(ctx context.Context) error {
		chapter, err := h.chapters.GetByID(ctx, chapterID)
		if err != nil {
			return err
		}
		if chapter == nil {
			return apperrors.ErrChapterNotFound
		}
		task, err = h.tasks.GetLatestByChapter(ctx, chapterID)
		if err != nil {
			return err
		}
		analysis, err = h.analyses.GetByChapterID(ctx, chapterID)
		return err
	})
	if err != nil {
		dto.Fail(c, err)
		return
	}

	// 非终态任务经由 ResolveStatus 应用超时自动恢复
	if task != nil && !task.IsTerminal() {
		resolved, err := h.analyzer.ResolveStatus(c.Request.Context(), tenantID, task.ID)
		if err == nil && resolved != nil {
			task = resolved
		}
	}

	resp := dto.AnalysisStatusResponse{
		Task: dto.ToAnalysisTaskResponse(task),
	}
	if task == nil || task.Status == entity.AnalysisTaskStatusCompleted {
		resp.Analysis = dto.ToChapterAnalysisResponse(analysis)
	}
	dto.Success(c, resp)
}

// Analyze 手动触发章节分析
// @Summary 手动触发章节分析
// @Description 为已有正文的章节创建分析任务；队列不可用时降级为进程内执行
// @Tags Analysis
// @Produce json
// @Param cid path string true "章节 ID"
// @Success 202 {object} dto.Response[dto.AnalysisTaskResponse]
// @Failure 404 {object} dto.ErrorResponse
// @Router /v1/chapters/{cid}/analyze [post]
func (h *ChapterHandler) Analyze(c *gin.Context) {
	tenantID, ok := requireTenant(c)
	if !ok {
		return
	}
	chapterID := dto.BindChapterID(c)
	if !requireParam(c, chapterID, "cid") {
		return
	}

	var task *entity.AnalysisTask
	err := h.scope.Write(c.Request.Context(), tenantID, func(ctx context.Context) error {
		chapter, err := h.chapters.GetByID(ctx, chapterID)
		if err != nil {
			return err
		}
		if chapter == nil {
			return apperrors.ErrChapterNotFound
		}
		if !chapter.HasContent() {
			return apperrors.ErrValidationFailed.WithDetail("章节尚无正文，无法分析")
		}

		// 已有进行中的任务则直接返回，避免重复分析
		latest, err := h.tasks.GetLatestByChapter(ctx, chapterID)
		if err != nil {
			return err
		}
		if latest != nil && !latest.IsTerminal() {
			task = latest
			return nil
		}

		task = entity.NewAnalysisTask(tenantID, chapter.ProjectID, chapterID)
		return h.tasks.Create(ctx, task)
	})
	if err != nil {
		dto.Fail(c, err)
		return
	}

	h.dispatchAnalysis(c.Request.Context(), tenantID, task)
	dto.Accepted(c, dto.ToAnalysisTaskResponse(task))
}

// dispatchAnalysis 投递分析任务；入队失败时进程内兜底执行
func (h *ChapterHandler) dispatchAnalysis(ctx context.Context, tenantID string, task *entity.AnalysisTask) {
	if task == nil || task.Status != entity.AnalysisTaskStatusPending {
		return
	}
	if h.queue != nil {
		_, err := h.queue.EnqueueAnalysis(ctx, &generation.AnalysisJob{
			TaskID:    task.ID,
			TenantID:  tenantID,
			ProjectID: task.ProjectID,
			ChapterID: task.ChapterID,
		})
		if err == nil {
			return
		}
		logger.Warn(ctx, "failed to enqueue analysis task, falling back to in-process run",
			"task_id", task.ID,
			"error", err.Error(),
		)
	}
	if h.analyzer == nil {
		return
	}
	go func() {
		runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Minute)
		defer cancel()
		if err := h.analyzer.Run(runCtx, tenantID, task.ID); err != nil {
			logger.Error(runCtx, "in-process analysis failed", err, "task_id", task.ID)
		}
	}()
}
