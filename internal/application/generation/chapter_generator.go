package generation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"novelforge-api/internal/application/memory"
	"novelforge-api/internal/config"
	"novelforge-api/internal/domain/entity"
	einoobs "novelforge-api/internal/observability/eino"
	workflowprompt "novelforge-api/internal/workflow/prompt"
	errs "novelforge-api/pkg/errors"
	"novelforge-api/pkg/logger"
	"novelforge-api/pkg/metrics"
)

const (
	// 流式生成的事件节奏：每 5 个片段报一次进度，每 20 个片段发一次心跳
	progressEveryChunks  = 5
	heartbeatEveryChunks = 20

	// 提交阶段使用独立超时，不随请求取消中断
	commitTimeout = 30 * time.Second
)

// ChapterGenerateInput 章节生成请求
type ChapterGenerateInput struct {
	TenantID     string
	ChapterID    string
	StyleID      string
	TargetWords  int
	EnableTools  bool
	Requirements string
	Provider     string
	RequestID    string
}

// ChapterGenerateResult 终态 result 事件载荷
type ChapterGenerateResult struct {
	ChapterID      string `json:"chapter_id"`
	WordCount      int    `json:"word_count"`
	AnalysisTaskID string `json:"analysis_task_id,omitempty"`
}

// ChapterGenerator 章节生成编排器。
// 前置章节全部有正文才允许生成；正文流式推送，完成后在租户写作用域内
// 一次提交章节内容、项目字数增量、生成历史与分析任务行。
type ChapterGenerator struct {
	deps     *Deps
	analyzer *Analyzer
}

// NewChapterGenerator 创建章节生成编排器；analyzer 用于队列不可用时的进程内降级，可为 nil。
func NewChapterGenerator(deps *Deps, analyzer *Analyzer) *ChapterGenerator {
	return &ChapterGenerator{deps: deps, analyzer: analyzer}
}

// GenerateStream 执行章节生成并通过 sink 推送事件。
// 事件流以 error 或 done 终止；客户端断开时停止生成并回滚章节状态，
// 被取消的生成不创建分析任务。
func (g *ChapterGenerator) GenerateStream(ctx context.Context, in *ChapterGenerateInput, sink EventSink) {
	if in == nil || strings.TrimSpace(in.ChapterID) == "" {
		_ = sink.Error(string(errs.CodeInvalidParam), "chapter_id 不能为空")
		return
	}
	tenantID := strings.TrimSpace(in.TenantID)
	if tenantID == "" {
		_ = sink.Error(string(errs.CodeTenantMissing), errs.ErrTenantMissing.Message)
		return
	}

	ctx = einoobs.WithWorkflowProvider(ctx, "chapter_generate", strings.TrimSpace(in.Provider))

	start := time.Now()
	metrics.ActiveGenerations.Inc()
	defer metrics.ActiveGenerations.Dec()

	err := g.run(ctx, in, sink)
	if err == nil {
		metrics.GenerationTotal.WithLabelValues(tenantID, "chapter", "success").Inc()
		metrics.GenerationDuration.WithLabelValues(tenantID, "chapter").Observe(time.Since(start).Seconds())
		return
	}

	appErr := errs.AsAppError(err)
	if appErr.Code == errs.CodeCancelled {
		// 客户端已离开，不再推送事件
		logger.Info(ctx, "chapter generation cancelled",
			"tenant_id", tenantID,
			"chapter_id", in.ChapterID,
		)
		metrics.GenerationTotal.WithLabelValues(tenantID, "chapter", "cancelled").Inc()
		return
	}

	logger.Error(ctx, "chapter generation failed", err,
		"tenant_id", tenantID,
		"chapter_id", in.ChapterID,
	)
	metrics.GenerationTotal.WithLabelValues(tenantID, "chapter", "failure").Inc()
	if sendErr := sink.Error(string(appErr.Code), appErr.Message); sendErr != nil {
		logger.Warn(ctx, "failed to emit error event", "error", sendErr.Error())
	}
}

func (g *ChapterGenerator) run(ctx context.Context, in *ChapterGenerateInput, sink EventSink) error {
	d := g.deps
	tenantID := strings.TrimSpace(in.TenantID)
	targetWords := clampTargetWords(in.TargetWords, d.generationConfig())

	// 加载章节、项目与提示词素材
	var (
		chapter        *entity.Chapter
		project        *entity.Project
		style          *entity.WritingStyle
		chapterOutline string
		involvedNames  []string
		charactersInfo string
	)
	err := d.Scope.Read(ctx, tenantID, func(ctx context.Context) error {
		var err error
		chapter, err = d.Chapters.GetByID(ctx, in.ChapterID)
		if err != nil {
			return errs.Wrap(err, errs.CodeDatabaseError, "查询章节失败")
		}
		if chapter == nil {
			return errs.ErrChapterNotFound
		}

		project, err = d.Projects.GetByID(ctx, chapter.ProjectID)
		if err != nil {
			return errs.Wrap(err, errs.CodeDatabaseError, "查询项目失败")
		}
		if project == nil {
			return errs.ErrProjectNotFound
		}

		missing, err := d.Chapters.ListMissingPrerequisites(ctx, chapter.ProjectID, chapter.ChapterNumber)
		if err != nil {
			return errs.Wrap(err, errs.CodeDatabaseError, "校验前置章节失败")
		}
		if len(missing) > 0 {
			return errs.ErrPrerequisiteMissing.WithMessage(MissingPrerequisiteMessage(missing))
		}

		style, err = g.resolveStyle(ctx, project.ID, in.StyleID)
		if err != nil {
			return err
		}

		outline, err := d.Outlines.GetByProjectAndOrder(ctx, chapter.ProjectID, chapter.ChapterNumber)
		if err != nil {
			return errs.Wrap(err, errs.CodeDatabaseError, "查询章节大纲失败")
		}
		chapterOutline, involvedNames = outlineMaterial(outline, chapter)

		chars, err := d.Characters.ListByProject(ctx, chapter.ProjectID, nil)
		if err != nil {
			return errs.Wrap(err, errs.CodeDatabaseError, "查询角色失败")
		}
		charactersInfo = buildCharactersInfo(chars)
		if len(involvedNames) == 0 {
			involvedNames = characterNames(chars)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if err := sink.Progress("正在准备生成", 5, ""); err != nil {
		return errs.ErrCancelled.WithError(err)
	}

	// 标记生成中，后续失败路径恢复先前状态
	prevStatus := chapter.Status
	if err := g.setChapterStatus(ctx, tenantID, chapter.ID, entity.ChapterStatusGenerating); err != nil {
		return err
	}
	restore := func() { g.restoreChapterStatus(ctx, tenantID, chapter.ID, prevStatus) }

	if err := sink.Progress("组装记忆上下文", 10, ""); err != nil {
		restore()
		return errs.ErrCancelled.WithError(err)
	}
	contextSections := g.buildMemorySections(ctx, tenantID, project.ID, chapter.ChapterNumber, chapterOutline, involvedNames, sink)

	var toolReference string
	if in.EnableTools && d.Tools != nil {
		if err := sink.Progress("收集外部参考资料", 15, ""); err != nil {
			restore()
			return errs.ErrCancelled.WithError(err)
		}
		ref, prepassErr := g.toolPrePass(ctx, tenantID, project, chapter, chapterOutline, in.Provider)
		switch {
		case prepassErr == nil:
			toolReference = ref
		case errs.IsCode(prepassErr, errs.CodeCancelled):
			restore()
			return prepassErr
		default:
			// 工具不可用不阻塞生成
			logger.Warn(ctx, "tool pre-pass skipped",
				"chapter_id", chapter.ID,
				"error", prepassErr.Error(),
			)
			if err := sink.Progress("外部工具暂不可用，已跳过参考资料", 18, "warning"); err != nil {
				restore()
				return errs.ErrCancelled.WithError(err)
			}
		}
	}

	vars := map[string]any{
		"title":            strings.TrimSpace(project.Title),
		"genre":            workflowprompt.Fallback(project.Genre, workflowprompt.DefaultGenre),
		"style_guidance":   buildStyleGuidance(style),
		"target_words":     targetWords,
		"chapter_number":   chapter.ChapterNumber,
		"chapter_title":    strings.TrimSpace(chapter.Title),
		"chapter_outline":  chapterOutline,
		"characters_info":  charactersInfo,
		"requirements":     strings.TrimSpace(in.Requirements),
		"context_sections": contextSections,
		"tool_reference":   toolReference,
	}
	promptID := workflowprompt.PromptChapterGenV1
	if contextSections != "" || toolReference != "" {
		promptID = workflowprompt.PromptChapterGenContextV1
	}
	system, user, err := formatPrompt(ctx, promptID, vars)
	if err != nil {
		restore()
		return errs.Wrap(err, errs.CodeInternalError, "提示词渲染失败")
	}

	if err := sink.Progress("开始生成正文", 20, ""); err != nil {
		restore()
		return errs.ErrCancelled.WithError(err)
	}

	reader, err := d.LLM.Stream(ctx, &LLMRequest{Provider: in.Provider, System: system, Prompt: user})
	if err != nil {
		restore()
		return err
	}
	defer reader.Close()

	meta := &entity.GenerationMetadata{
		Provider:    providerLabelOf(in.Provider),
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
	}
	var (
		buf       strings.Builder
		chunks    int
		runeCount int
	)
	for {
		msg, recvErr := reader.Recv()
		if recvErr == io.EOF {
			break
		}
		if recvErr != nil {
			restore()
			if errors.Is(recvErr, context.Canceled) || ctx.Err() != nil {
				return errs.ErrCancelled.WithError(recvErr)
			}
			return errs.ErrLLMCallFailed.WithMessage("生成流中断").WithError(recvErr)
		}
		if msg == nil {
			continue
		}
		if msg.ResponseMeta != nil && msg.ResponseMeta.Usage != nil {
			meta.PromptTokens = msg.ResponseMeta.Usage.PromptTokens
			meta.CompletionTokens = msg.ResponseMeta.Usage.CompletionTokens
		}
		if msg.Content == "" {
			continue
		}

		buf.WriteString(msg.Content)
		runeCount += utf8.RuneCountInString(msg.Content)
		chunks++
		if err := sink.Chunk(msg.Content); err != nil {
			restore()
			return errs.ErrCancelled.WithError(err)
		}
		if chunks%progressEveryChunks == 0 {
			if err := sink.Progress(fmt.Sprintf("已生成 %d 字", runeCount), streamPercent(runeCount, targetWords), ""); err != nil {
				restore()
				return errs.ErrCancelled.WithError(err)
			}
		}
		if chunks%heartbeatEveryChunks == 0 {
			if err := sink.Heartbeat(); err != nil {
				restore()
				return errs.ErrCancelled.WithError(err)
			}
		}
	}

	content := strings.TrimSpace(buf.String())
	if content == "" {
		restore()
		return errs.ErrLLMInvalidResponse.WithMessage("生成内容为空")
	}
	if ctx.Err() != nil {
		restore()
		return errs.ErrCancelled.WithError(ctx.Err())
	}

	if err := sink.Progress("正在保存章节", 92, ""); err != nil {
		restore()
		return errs.ErrCancelled.WithError(err)
	}

	commitCtx, cancelCommit := context.WithTimeout(context.WithoutCancel(ctx), commitTimeout)
	defer cancelCommit()

	wordCount, task, err := g.commit(commitCtx, tenantID, project.ID, chapter.ID, content, meta, user)
	if err != nil {
		restore()
		return err
	}
	metrics.GenerationWordCount.WithLabelValues(tenantID).Observe(float64(wordCount))

	var taskID string
	if task != nil {
		taskID = task.ID
		g.scheduleAnalysis(commitCtx, task, in.RequestID)
	}

	result := &ChapterGenerateResult{ChapterID: chapter.ID, WordCount: wordCount, AnalysisTaskID: taskID}
	if err := sink.Result(result); err != nil {
		// 内容已提交、分析已排队，客户端只是没收到结果
		logger.Warn(ctx, "client gone before result event", "chapter_id", chapter.ID)
		return nil
	}
	if taskID != "" {
		if err := sink.AnalysisStarted(taskID); err != nil {
			return nil
		}
	}
	_ = sink.Done()
	return nil
}

// commit 在租户写作用域内完成落库：章节内容、项目字数增量、生成历史与分析任务行。
// 分析任务行先于 worker 投递提交。
func (g *ChapterGenerator) commit(ctx context.Context, tenantID, projectID, chapterID, content string, meta *entity.GenerationMetadata, prompt string) (int, *entity.AnalysisTask, error) {
	d := g.deps
	historyLimit := d.historyPromptLimit()

	var (
		wordCount int
		task      *entity.AnalysisTask
	)
	err := d.Scope.Write(ctx, tenantID, func(ctx context.Context) error {
		fresh, err := d.Chapters.GetByID(ctx, chapterID)
		if err != nil {
			return errs.Wrap(err, errs.CodeDatabaseError, "查询章节失败")
		}
		if fresh == nil {
			return errs.ErrChapterNotFound
		}

		oldWords := fresh.WordCount
		fresh.SetContent(content)
		fresh.GenerationMetadata = meta
		fresh.MarkCompleted()
		if err := d.Chapters.Update(ctx, fresh); err != nil {
			return errs.Wrap(err, errs.CodeDatabaseError, "保存章节失败")
		}
		wordCount = fresh.WordCount

		if err := d.Projects.UpdateWordCount(ctx, projectID, fresh.WordCount-oldWords); err != nil {
			return errs.Wrap(err, errs.CodeDatabaseError, "更新项目字数失败")
		}

		history := entity.NewGenerationHistory(tenantID, projectID, entity.GenerationTypeChapter, prompt, content, historyLimit)
		if err := d.Histories.Create(ctx, history); err != nil {
			return errs.Wrap(err, errs.CodeDatabaseError, "写入生成历史失败")
		}

		if d.analysisConfig().Enabled && d.Tasks != nil {
			task = entity.NewAnalysisTask(tenantID, projectID, chapterID)
			if err := d.Tasks.Create(ctx, task); err != nil {
				return errs.Wrap(err, errs.CodeDatabaseError, "创建分析任务失败")
			}
		}
		return nil
	})
	if err != nil {
		return 0, nil, err
	}
	return wordCount, task, nil
}

// scheduleAnalysis 投递后台分析：优先入队，失败降级为进程内执行
func (g *ChapterGenerator) scheduleAnalysis(ctx context.Context, task *entity.AnalysisTask, requestID string) {
	job := &AnalysisJob{
		TaskID:    task.ID,
		TenantID:  task.TenantID,
		ProjectID: task.ProjectID,
		ChapterID: task.ChapterID,
		RequestID: requestID,
	}

	if g.deps.Queue != nil {
		if _, err := g.deps.Queue.EnqueueAnalysis(ctx, job); err == nil {
			return
		} else {
			logger.Warn(ctx, "failed to enqueue analysis task, running in-process",
				"task_id", job.TaskID,
				"error", err.Error(),
			)
		}
	}
	if g.analyzer == nil {
		logger.Warn(ctx, "no analysis executor available, task left pending", "task_id", job.TaskID)
		return
	}

	go func() {
		runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Minute)
		defer cancel()
		if err := g.analyzer.Run(runCtx, job.TenantID, job.TaskID); err != nil {
			logger.Error(runCtx, "in-process analysis failed", err, "task_id", job.TaskID)
		}
	}()
}

// buildMemorySections 组装记忆上下文；失败仅降级为无上下文生成
func (g *ChapterGenerator) buildMemorySections(ctx context.Context, tenantID, projectID string, chapterNumber int, outline string, names []string, sink EventSink) string {
	if g.deps.Memory == nil {
		return ""
	}

	var bundle *memory.ContextBundle
	err := g.deps.Scope.Read(ctx, tenantID, func(ctx context.Context) error {
		var err error
		bundle, err = g.deps.Memory.BuildContext(ctx, memory.BuildContextInput{
			TenantID:       tenantID,
			ProjectID:      projectID,
			CurrentChapter: chapterNumber,
			ChapterOutline: outline,
			CharacterNames: names,
		})
		return err
	})
	if err != nil {
		logger.Warn(ctx, "memory context degraded",
			"project_id", projectID,
			"chapter", chapterNumber,
			"error", err.Error(),
		)
		_ = sink.Progress("记忆上下文组装失败，本次生成不携带前文记忆", 12, "warning")
		return ""
	}
	if bundle.DisabledReason != "" {
		logger.Debug(ctx, "memory vector search degraded", "reason", bundle.DisabledReason)
	}
	return bundle.RenderSections()
}

// toolPrePass 为本章收集外部参考资料，未配置插件或模型未用上工具时返回空
func (g *ChapterGenerator) toolPrePass(ctx context.Context, tenantID string, project *entity.Project, chapter *entity.Chapter, outline, provider string) (string, error) {
	request := fmt.Sprintf(
		"请结合可用工具，为小说《%s》第 %d 章收集写作参考资料。\n章节大纲：\n%s",
		strings.TrimSpace(project.Title), chapter.ChapterNumber, outline,
	)
	return collectToolReference(ctx, g.deps, tenantID, provider, request)
}

// resolveStyle 解析写作风格：显式指定时校验归属，否则取项目默认；均无则不带风格
func (g *ChapterGenerator) resolveStyle(ctx context.Context, projectID, styleID string) (*entity.WritingStyle, error) {
	d := g.deps
	if id := strings.TrimSpace(styleID); id != "" {
		style, err := d.Styles.GetByID(ctx, id)
		if err != nil {
			return nil, errs.Wrap(err, errs.CodeDatabaseError, "查询写作风格失败")
		}
		if style == nil {
			return nil, errs.ErrStyleNotFound
		}
		if !style.IsGlobal() && style.ProjectID != nil && *style.ProjectID != projectID {
			return nil, errs.ErrStyleNotFound.WithDetail("style belongs to another project")
		}
		return style, nil
	}

	if d.DefaultStyles == nil {
		return nil, nil
	}
	def, err := d.DefaultStyles.GetByProject(ctx, projectID)
	if err != nil {
		return nil, errs.Wrap(err, errs.CodeDatabaseError, "查询默认风格失败")
	}
	if def == nil {
		return nil, nil
	}
	style, err := d.Styles.GetByID(ctx, def.StyleID)
	if err != nil {
		return nil, errs.Wrap(err, errs.CodeDatabaseError, "查询写作风格失败")
	}
	return style, nil
}

func (g *ChapterGenerator) setChapterStatus(ctx context.Context, tenantID, chapterID string, status entity.ChapterStatus) error {
	err := g.deps.Scope.Write(ctx, tenantID, func(ctx context.Context) error {
		fresh, err := g.deps.Chapters.GetByID(ctx, chapterID)
		if err != nil {
			return err
		}
		if fresh == nil {
			return errs.ErrChapterNotFound
		}
		fresh.Status = status
		fresh.UpdatedAt = time.Now()
		return g.deps.Chapters.Update(ctx, fresh)
	})
	if err != nil {
		if errs.IsAppError(err) {
			return err
		}
		return errs.Wrap(err, errs.CodeDatabaseError, "更新章节状态失败")
	}
	return nil
}

// restoreChapterStatus 失败或取消后的状态回滚，使用独立上下文执行
func (g *ChapterGenerator) restoreChapterStatus(ctx context.Context, tenantID, chapterID string, status entity.ChapterStatus) {
	restoreCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := g.setChapterStatus(restoreCtx, tenantID, chapterID, status); err != nil {
		logger.Error(restoreCtx, "failed to restore chapter status", err,
			"chapter_id", chapterID,
			"status", string(status),
		)
	}
}

// outlineMaterial 提取章节大纲文本与涉及角色，无大纲时退回章节摘要
func outlineMaterial(outline *entity.Outline, chapter *entity.Chapter) (string, []string) {
	if outline == nil {
		return strings.TrimSpace(chapter.Summary), nil
	}
	text := strings.TrimSpace(outline.Content)
	var names []string
	if outline.Structure != nil {
		if c := strings.TrimSpace(outline.Structure.Content); c != "" {
			text = c
		}
		names = outline.Structure.CharactersInvolved
	}
	if text == "" {
		text = strings.TrimSpace(chapter.Summary)
	}
	return text, names
}

func characterNames(characters []*entity.Character) []string {
	names := make([]string, 0, len(characters))
	for _, ch := range characters {
		if ch == nil || ch.IsOrganization {
			continue
		}
		if name := strings.TrimSpace(ch.Name); name != "" {
			names = append(names, name)
		}
	}
	return names
}

// clampTargetWords 将目标字数钳制到配置范围，未指定时取默认值
func clampTargetWords(words int, cfg *config.GenerationConfig) int {
	def, min, max := 3000, 500, 10000
	if cfg != nil {
		if cfg.DefaultWordCount > 0 {
			def = cfg.DefaultWordCount
		}
		if cfg.MinWordCount > 0 {
			min = cfg.MinWordCount
		}
		if cfg.MaxWordCount > 0 {
			max = cfg.MaxWordCount
		}
	}
	if words <= 0 {
		return def
	}
	if words < min {
		return min
	}
	if words > max {
		return max
	}
	return words
}

// streamPercent 将已生成字数映射到 20-90 的进度区间
func streamPercent(runeCount, targetWords int) int {
	if targetWords <= 0 {
		return 50
	}
	p := 20 + runeCount*70/targetWords
	if p > 90 {
		p = 90
	}
	return p
}

// MissingPrerequisiteMessage 渲染缺失前置章节提示，如「需要先完成前置章节：第 1 章、第 3 章」
func MissingPrerequisiteMessage(numbers []int) string {
	parts := make([]string, 0, len(numbers))
	for _, n := range numbers {
		parts = append(parts, fmt.Sprintf("第 %d 章", n))
	}
	return "需要先完成前置章节：" + strings.Join(parts, "、")
}
