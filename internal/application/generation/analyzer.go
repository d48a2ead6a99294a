package generation

import (
	"context"
	"errors"
	"strings"
	"time"

	"novelforge-api/internal/domain/entity"
	einoobs "novelforge-api/internal/observability/eino"
	workflowprompt "novelforge-api/internal/workflow/prompt"
	errs "novelforge-api/pkg/errors"
	"novelforge-api/pkg/logger"
	"novelforge-api/pkg/metrics"
)

const (
	// 卡死任务自动恢复的提示语
	recoverRunningMessage = "任务超时（超过1分钟未完成，已自动恢复）"
	recoverPendingMessage = "任务启动超时（超过2分钟未启动，已自动恢复）"

	defaultAnalysisContentLimit = 8000
	defaultRunningTimeout       = time.Minute
	defaultPendingTimeout       = 2 * time.Minute
)

// Analyzer 后台章节分析执行器。
// 由 Redis Stream worker 消费任务后调用，队列不可用时由生成编排器进程内降级调用；
// 对同一任务幂等，终态任务的重复投递直接丢弃。
type Analyzer struct {
	deps *Deps
}

// NewAnalyzer 创建分析执行器
func NewAnalyzer(deps *Deps) *Analyzer {
	return &Analyzer{deps: deps}
}

// Run 执行一次分析任务，进度推进 10 -> 60 -> 80 -> 100。
// 记忆索引刷新失败不影响任务完成，仅记录警告。
func (a *Analyzer) Run(ctx context.Context, tenantID, taskID string) error {
	d := a.deps
	ctx = einoobs.WithWorkflowProvider(ctx, "chapter_analyze", "")
	start := time.Now()

	var task *entity.AnalysisTask
	err := d.Scope.Write(ctx, tenantID, func(ctx context.Context) error {
		var err error
		task, err = d.Tasks.GetByID(ctx, taskID)
		if err != nil {
			return errs.Wrap(err, errs.CodeDatabaseError, "查询分析任务失败")
		}
		if task == nil {
			return errs.ErrTaskNotFound
		}
		if task.IsTerminal() {
			return nil
		}
		task.Start()
		task.Progress = 10
		return d.Tasks.Update(ctx, task)
	})
	if err != nil {
		return err
	}
	if task.IsTerminal() {
		logger.Debug(ctx, "analysis task already terminal, dropping",
			"task_id", taskID,
			"status", string(task.Status),
		)
		return nil
	}

	var chapter *entity.Chapter
	err = d.Scope.Read(ctx, tenantID, func(ctx context.Context) error {
		var err error
		chapter, err = d.Chapters.GetByID(ctx, task.ChapterID)
		if err != nil {
			return errs.Wrap(err, errs.CodeDatabaseError, "查询章节失败")
		}
		return nil
	})
	if err != nil {
		return a.fail(ctx, tenantID, task, err)
	}
	if chapter == nil || strings.TrimSpace(chapter.Content) == "" {
		return a.fail(ctx, tenantID, task, errs.ErrChapterNotFound.WithMessage("章节不存在或无正文"))
	}

	analysisCfg := d.analysisConfig()
	contentLimit := analysisCfg.ContentLimit
	if contentLimit <= 0 {
		contentLimit = defaultAnalysisContentLimit
	}
	system, user, err := formatPrompt(ctx, workflowprompt.PromptChapterAnalysisV1, map[string]any{
		"chapter_number":  chapter.ChapterNumber,
		"chapter_title":   chapter.Title,
		"chapter_content": truncateRunes(chapter.Content, contentLimit),
	})
	if err != nil {
		return a.fail(ctx, tenantID, task, errs.Wrap(err, errs.CodeInternalError, "提示词渲染失败"))
	}

	req := &LLMRequest{System: system, Prompt: user}
	if analysisCfg.Temperature > 0 {
		t := float32(analysisCfg.Temperature)
		req.Temperature = &t
	}
	out, err := d.LLM.Generate(ctx, req)
	if err != nil {
		return a.fail(ctx, tenantID, task, err)
	}
	a.progress(ctx, tenantID, taskID, 60)

	payload, err := parseAnalysisPayload(out.Content)
	if err != nil {
		return a.fail(ctx, tenantID, task, err)
	}

	analysis := buildChapterAnalysis(tenantID, chapter, payload)
	err = d.Scope.Write(ctx, tenantID, func(ctx context.Context) error {
		if err := d.Analyses.Upsert(ctx, analysis); err != nil {
			return errs.Wrap(err, errs.CodeDatabaseError, "保存分析结果失败")
		}
		history := entity.NewGenerationHistory(tenantID, chapter.ProjectID, entity.GenerationTypeAnalysis, user, out.Content, d.historyPromptLimit())
		if err := d.Histories.Create(ctx, history); err != nil {
			return errs.Wrap(err, errs.CodeDatabaseError, "写入生成历史失败")
		}
		return nil
	})
	if err != nil {
		return a.fail(ctx, tenantID, task, err)
	}
	a.progress(ctx, tenantID, taskID, 80)

	fragments := deriveFragments(tenantID, chapter, payload)
	if err := a.replaceMemories(ctx, tenantID, chapter, fragments); err != nil {
		// 分析结果已提交，仅记忆索引不一致
		logger.Warn(ctx, "memory index update failed after analysis",
			"task_id", taskID,
			"chapter_id", chapter.ID,
			"error", err.Error(),
		)
	}

	err = d.Scope.Write(ctx, tenantID, func(ctx context.Context) error {
		fresh, err := d.Tasks.GetByID(ctx, taskID)
		if err != nil {
			return errs.Wrap(err, errs.CodeDatabaseError, "查询分析任务失败")
		}
		if fresh == nil {
			return errs.ErrTaskNotFound
		}
		if fresh.IsTerminal() {
			return nil
		}
		fresh.Complete()
		return d.Tasks.Update(ctx, fresh)
	})
	if err != nil {
		return err
	}

	metrics.AnalysisTaskTotal.WithLabelValues("completed").Inc()
	metrics.AnalysisDuration.WithLabelValues(tenantID).Observe(time.Since(start).Seconds())
	logger.Info(ctx, "chapter analysis completed",
		"task_id", taskID,
		"chapter_id", chapter.ID,
		"fragments", len(fragments),
	)
	return nil
}

// ResolveStatus 查询任务状态，顺带把卡死任务转为失败态（自动恢复）
func (a *Analyzer) ResolveStatus(ctx context.Context, tenantID, taskID string) (*entity.AnalysisTask, error) {
	d := a.deps
	var task *entity.AnalysisTask
	err := d.Scope.Read(ctx, tenantID, func(ctx context.Context) error {
		var err error
		task, err = d.Tasks.GetByID(ctx, taskID)
		if err != nil {
			return errs.Wrap(err, errs.CodeDatabaseError, "查询分析任务失败")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, errs.ErrTaskNotFound
	}

	running, pending := a.timeouts()
	if !task.ShouldAutoRecover(time.Now(), running, pending) {
		return task, nil
	}
	message := recoverPendingMessage
	if task.Status == entity.AnalysisTaskStatusRunning {
		message = recoverRunningMessage
	}

	recovered := false
	err = d.Scope.Write(ctx, tenantID, func(ctx context.Context) error {
		fresh, err := d.Tasks.GetByID(ctx, taskID)
		if err != nil {
			return errs.Wrap(err, errs.CodeDatabaseError, "查询分析任务失败")
		}
		if fresh == nil {
			return errs.ErrTaskNotFound
		}
		task = fresh
		if fresh.IsTerminal() {
			return nil
		}
		fresh.AutoRecover(message)
		if err := d.Tasks.Update(ctx, fresh); err != nil {
			return errs.Wrap(err, errs.CodeDatabaseError, "保存分析任务失败")
		}
		recovered = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	if recovered {
		metrics.AnalysisTaskTotal.WithLabelValues("recovered").Inc()
		logger.Warn(ctx, "analysis task auto-recovered",
			"task_id", taskID,
			"message", message,
		)
	}
	return task, nil
}

// RecoverStuck 扫描并恢复卡死任务，返回恢复数量。
// 扫描为跨租户管理查询，恢复落库逐任务进入其所属租户作用域。
func (a *Analyzer) RecoverStuck(ctx context.Context, limit int) (int, error) {
	d := a.deps
	if limit <= 0 {
		limit = 50
	}
	running, pending := a.timeouts()
	now := time.Now()
	stuck, err := d.Tasks.ListStuck(ctx, now.Add(-running), now.Add(-pending), limit)
	if err != nil {
		return 0, errs.Wrap(err, errs.CodeDatabaseError, "查询卡死任务失败")
	}

	recovered := 0
	for _, t := range stuck {
		message := recoverPendingMessage
		if t.Status == entity.AnalysisTaskStatusRunning {
			message = recoverRunningMessage
		}
		err := d.Scope.Write(ctx, t.TenantID, func(ctx context.Context) error {
			fresh, err := d.Tasks.GetByID(ctx, t.ID)
			if err != nil {
				return err
			}
			if fresh == nil || fresh.IsTerminal() {
				return nil
			}
			if !fresh.ShouldAutoRecover(time.Now(), running, pending) {
				return nil
			}
			fresh.AutoRecover(message)
			if err := d.Tasks.Update(ctx, fresh); err != nil {
				return err
			}
			recovered++
			return nil
		})
		if err != nil {
			logger.Warn(ctx, "failed to recover stuck analysis task",
				"task_id", t.ID,
				"error", err.Error(),
			)
		}
	}
	if recovered > 0 {
		metrics.AnalysisTaskTotal.WithLabelValues("recovered").Add(float64(recovered))
		logger.Info(ctx, "stuck analysis tasks recovered", "count", recovered)
	}
	return recovered, nil
}

// replaceMemories 以删后写方式刷新章节记忆，提交失败按固定退避重试
func (a *Analyzer) replaceMemories(ctx context.Context, tenantID string, chapter *entity.Chapter, fragments []*entity.MemoryFragment) error {
	d := a.deps
	if d.MemoryWriter == nil {
		return nil
	}
	cfg := d.generationConfig()
	retries := cfg.CommitRetries
	if retries <= 0 {
		retries = 3
	}
	backoff := cfg.CommitBackoff
	if backoff <= 0 {
		backoff = 100 * time.Millisecond
	}

	var lastErr error
	for attempt := 1; attempt <= retries; attempt++ {
		lastErr = d.Scope.Write(ctx, tenantID, func(ctx context.Context) error {
			if _, err := d.MemoryWriter.DeleteByChapter(ctx, tenantID, chapter.ProjectID, chapter.ID); err != nil {
				return err
			}
			_, err := d.MemoryWriter.AddBatch(ctx, tenantID, chapter.ProjectID, fragments)
			return err
		})
		if lastErr == nil {
			return nil
		}
		if attempt < retries {
			select {
			case <-ctx.Done():
				return lastErr
			case <-time.After(backoff):
			}
		}
	}
	return lastErr
}

// fail 将任务标记为失败。执行被取消时不落终态，留给自动恢复处理。
func (a *Analyzer) fail(ctx context.Context, tenantID string, task *entity.AnalysisTask, cause error) error {
	if errs.IsCode(cause, errs.CodeCancelled) || errors.Is(cause, context.Canceled) {
		logger.Warn(ctx, "analysis interrupted, leaving task for auto recovery", "task_id", task.ID)
		return cause
	}

	appErr := errs.AsAppError(cause)
	markCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	err := a.deps.Scope.Write(markCtx, tenantID, func(ctx context.Context) error {
		fresh, err := a.deps.Tasks.GetByID(ctx, task.ID)
		if err != nil || fresh == nil {
			return err
		}
		if fresh.IsTerminal() {
			return nil
		}
		fresh.Fail(appErr.Message)
		return a.deps.Tasks.Update(ctx, fresh)
	})
	if err != nil {
		logger.Error(markCtx, "failed to mark analysis task failed", err, "task_id", task.ID)
	}

	metrics.AnalysisTaskTotal.WithLabelValues("failed").Inc()
	logger.Error(ctx, "chapter analysis failed", cause, "task_id", task.ID)
	return cause
}

// progress 尽力推进任务进度，失败不影响主流程
func (a *Analyzer) progress(ctx context.Context, tenantID, taskID string, value int) {
	err := a.deps.Scope.Write(ctx, tenantID, func(ctx context.Context) error {
		return a.deps.Tasks.UpdateProgress(ctx, taskID, value)
	})
	if err != nil {
		logger.Warn(ctx, "failed to update analysis progress",
			"task_id", taskID,
			"progress", value,
			"error", err.Error(),
		)
	}
}

func (a *Analyzer) timeouts() (time.Duration, time.Duration) {
	cfg := a.deps.analysisConfig()
	running := cfg.RunningTimeout
	if running <= 0 {
		running = defaultRunningTimeout
	}
	pending := cfg.PendingTimeout
	if pending <= 0 {
		pending = defaultPendingTimeout
	}
	return running, pending
}
