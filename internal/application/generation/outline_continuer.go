package generation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"novelforge-api/internal/application/memory"
	"novelforge-api/internal/domain/entity"
	einoobs "novelforge-api/internal/observability/eino"
	workflowprompt "novelforge-api/internal/workflow/prompt"
	errs "novelforge-api/pkg/errors"
	"novelforge-api/pkg/logger"
	"novelforge-api/pkg/metrics"
)

// 大纲生成模式
const (
	OutlineModeAuto     = "auto"
	OutlineModeNew      = "new"
	OutlineModeContinue = "continue"
)

// OutlineContinueInput 大纲生成请求
type OutlineContinueInput struct {
	TenantID       string
	ProjectID      string
	Mode           string
	TotalChapters  int
	PlotStage      string
	StoryDirection string
	Requirements   string
	EnableTools    bool
	Provider       string
	RequestID      string
}

// OutlineContinueResult 终态 result 事件载荷。
// TotalChapters 为提交后项目的大纲总数，Outlines 仅含本次新生成的节点。
type OutlineContinueResult struct {
	TotalChapters int               `json:"total_chapters"`
	Outlines      []*entity.Outline `json:"outlines"`
}

// outlinePayload 模型输出的单章大纲
type outlinePayload struct {
	ChapterNumber      int      `json:"chapter_number"`
	Title              string   `json:"title"`
	Content            string   `json:"content"`
	KeyEvents          []string `json:"key_events"`
	CharactersInvolved []string `json:"characters_involved"`
}

// OutlineContinuer 大纲生成编排器。
// new 模式清空旧大纲与章节后一次生成全量；continue 模式按批续写并逐批提交，
// 每个大纲节点同步创建同号草稿章节。中途失败时已提交的批次保留。
type OutlineContinuer struct {
	deps *Deps
}

// NewOutlineContinuer 创建大纲生成编排器
func NewOutlineContinuer(deps *Deps) *OutlineContinuer {
	return &OutlineContinuer{deps: deps}
}

// GenerateStream 执行大纲生成并通过 sink 推送事件
func (o *OutlineContinuer) GenerateStream(ctx context.Context, in *OutlineContinueInput, sink EventSink) {
	if in == nil || strings.TrimSpace(in.ProjectID) == "" {
		_ = sink.Error(string(errs.CodeInvalidParam), "project_id 不能为空")
		return
	}
	tenantID := strings.TrimSpace(in.TenantID)
	if tenantID == "" {
		_ = sink.Error(string(errs.CodeTenantMissing), errs.ErrTenantMissing.Message)
		return
	}
	if in.TotalChapters <= 0 {
		_ = sink.Error(string(errs.CodeInvalidParam), "章节数必须大于 0")
		return
	}

	ctx = einoobs.WithWorkflowProvider(ctx, "outline_generate", strings.TrimSpace(in.Provider))

	start := time.Now()
	metrics.ActiveGenerations.Inc()
	defer metrics.ActiveGenerations.Dec()

	err := o.run(ctx, in, sink)
	if err == nil {
		metrics.GenerationTotal.WithLabelValues(tenantID, "outline", "success").Inc()
		metrics.GenerationDuration.WithLabelValues(tenantID, "outline").Observe(time.Since(start).Seconds())
		return
	}

	appErr := errs.AsAppError(err)
	if appErr.Code == errs.CodeCancelled {
		logger.Info(ctx, "outline generation cancelled",
			"tenant_id", tenantID,
			"project_id", in.ProjectID,
		)
		metrics.GenerationTotal.WithLabelValues(tenantID, "outline", "cancelled").Inc()
		return
	}

	logger.Error(ctx, "outline generation failed", err,
		"tenant_id", tenantID,
		"project_id", in.ProjectID,
	)
	metrics.GenerationTotal.WithLabelValues(tenantID, "outline", "failure").Inc()
	if sendErr := sink.Error(string(appErr.Code), appErr.Message); sendErr != nil {
		logger.Warn(ctx, "failed to emit error event", "error", sendErr.Error())
	}
}

func (o *OutlineContinuer) run(ctx context.Context, in *OutlineContinueInput, sink EventSink) error {
	d := o.deps
	tenantID := strings.TrimSpace(in.TenantID)

	if err := sink.Progress("开始规划大纲", 5, ""); err != nil {
		return errs.ErrCancelled.WithError(err)
	}

	var (
		project        *entity.Project
		existing       []*entity.Outline
		charactersInfo string
		charNames      []string
	)
	err := d.Scope.Read(ctx, tenantID, func(ctx context.Context) error {
		var err error
		project, err = d.Projects.GetByID(ctx, in.ProjectID)
		if err != nil {
			return errs.Wrap(err, errs.CodeDatabaseError, "查询项目失败")
		}
		if project == nil {
			return errs.ErrProjectNotFound
		}

		existing, err = d.Outlines.ListByProject(ctx, in.ProjectID)
		if err != nil {
			return errs.Wrap(err, errs.CodeDatabaseError, "查询大纲失败")
		}

		chars, err := d.Characters.ListByProject(ctx, in.ProjectID, nil)
		if err != nil {
			return errs.Wrap(err, errs.CodeDatabaseError, "查询角色失败")
		}
		charactersInfo = buildCharactersInfo(chars)
		charNames = characterNames(chars)
		return nil
	})
	if err != nil {
		return err
	}

	mode, err := resolveOutlineMode(in.Mode, len(existing))
	if err != nil {
		return err
	}

	if mode == OutlineModeNew {
		return o.runNew(ctx, in, project, charactersInfo, sink)
	}
	return o.runContinue(ctx, in, project, existing, charactersInfo, charNames, sink)
}

// runNew 清空旧数据后一次生成整部大纲
func (o *OutlineContinuer) runNew(ctx context.Context, in *OutlineContinueInput, project *entity.Project, charactersInfo string, sink EventSink) error {
	d := o.deps
	tenantID := strings.TrimSpace(in.TenantID)

	err := d.Scope.Write(ctx, tenantID, func(ctx context.Context) error {
		outlines, err := d.Outlines.DeleteByProject(ctx, project.ID)
		if err != nil {
			return errs.Wrap(err, errs.CodeDatabaseError, "清空旧大纲失败")
		}
		chapters, err := d.Chapters.DeleteByProject(ctx, project.ID)
		if err != nil {
			return errs.Wrap(err, errs.CodeDatabaseError, "清空旧章节失败")
		}
		if outlines > 0 || chapters > 0 {
			logger.Info(ctx, "cleared project outline tree",
				"project_id", project.ID,
				"outlines", outlines,
				"chapters", chapters,
			)
			fresh, err := d.Projects.GetByID(ctx, project.ID)
			if err != nil {
				return errs.Wrap(err, errs.CodeDatabaseError, "查询项目失败")
			}
			if fresh == nil {
				return errs.ErrProjectNotFound
			}
			fresh.ChapterCount = 0
			fresh.CurrentWords = 0
			fresh.UpdatedAt = time.Now()
			if err := d.Projects.Update(ctx, fresh); err != nil {
				return errs.Wrap(err, errs.CodeDatabaseError, "更新项目失败")
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	if err := sink.Progress(fmt.Sprintf("准备生成 %d 章大纲", in.TotalChapters), 10, ""); err != nil {
		return errs.ErrCancelled.WithError(err)
	}

	var created []*entity.Outline
	runner := NewBatchRunner("outline", d.generationConfig())
	specs := []BatchSpec{{Index: 0, Start: 0, Count: in.TotalChapters}}
	err = runner.Run(ctx, specs, func(ctx context.Context, spec BatchSpec, attempt int) error {
		vars := map[string]any{
			"title":           strings.TrimSpace(project.Title),
			"genre":           workflowprompt.Fallback(project.Genre, workflowprompt.DefaultGenre),
			"world_context":   buildWorldContext(project),
			"characters_info": charactersInfo,
			"total_chapters":  spec.Count,
			"plot_stage":      workflowprompt.Fallback(in.PlotStage, workflowprompt.DefaultUnset),
			"story_direction": workflowprompt.Fallback(in.StoryDirection, workflowprompt.DefaultUnset),
			"requirements":    strings.TrimSpace(in.Requirements),
		}
		if attempt > 1 {
			vars["requirements"] = strings.TrimSpace(in.Requirements + "\n" + escalationHint(attempt, spec.Count))
		}
		system, user, err := formatPrompt(ctx, workflowprompt.PromptOutlineCompleteV1, vars)
		if err != nil {
			return errs.Wrap(err, errs.CodeInternalError, "提示词渲染失败")
		}

		out, err := d.LLM.Generate(ctx, &LLMRequest{Provider: in.Provider, System: system, Prompt: user})
		if err != nil {
			return err
		}
		payloads, err := parseOutlinePayloads(out.Content, spec.Count)
		if err != nil {
			return err
		}

		batch, err := o.commitBatch(ctx, tenantID, project.ID, 1, payloads, user, out.Content)
		if err != nil {
			return err
		}
		created = batch
		return nil
	})
	if err != nil {
		return err
	}

	if err := sink.Progress("大纲已保存", 90, ""); err != nil {
		return errs.ErrCancelled.WithError(err)
	}
	return o.finish(ctx, tenantID, project.ID, created, sink)
}

// runContinue 在既有大纲末尾按批续写
func (o *OutlineContinuer) runContinue(ctx context.Context, in *OutlineContinueInput, project *entity.Project, existing []*entity.Outline, charactersInfo string, charNames []string, sink EventSink) error {
	d := o.deps
	tenantID := strings.TrimSpace(in.TenantID)

	startChapter := 1
	if n := len(existing); n > 0 {
		startChapter = existing[n-1].OrderIndex + 1
	}

	batchSize := d.generationConfig().OutlineBatchSize
	if batchSize <= 0 {
		batchSize = 5
	}
	specs := PlanBatches(in.TotalChapters, batchSize)
	runner := NewBatchRunner("outline", d.generationConfig())

	if err := sink.Progress(fmt.Sprintf("从第 %d 章开始续写 %d 章，共 %d 批", startChapter, in.TotalChapters, len(specs)), 10, ""); err != nil {
		return errs.ErrCancelled.WithError(err)
	}

	var (
		created []*entity.Outline
		done    int
	)
	err := runner.Run(ctx, specs, func(ctx context.Context, spec BatchSpec, attempt int) error {
		batchStart := startChapter + spec.Start

		contextSections := o.buildMemorySections(ctx, in, existing, batchStart, charNames)

		var toolReference string
		if in.EnableTools && d.Tools != nil {
			request := fmt.Sprintf(
				"请结合可用工具，为小说《%s》从第 %d 章开始的 %d 章剧情规划收集参考资料。\n剧情走向：%s",
				strings.TrimSpace(project.Title), batchStart, spec.Count,
				workflowprompt.Fallback(in.StoryDirection, workflowprompt.DefaultUnset),
			)
			ref, err := collectToolReference(ctx, d, tenantID, in.Provider, request)
			switch {
			case err == nil:
				toolReference = ref
			case errs.IsCode(err, errs.CodeCancelled):
				return err
			default:
				logger.Warn(ctx, "tool pre-pass skipped",
					"project_id", project.ID,
					"batch", spec.Index,
					"error", err.Error(),
				)
			}
		}

		vars := map[string]any{
			"title":                strings.TrimSpace(project.Title),
			"genre":                workflowprompt.Fallback(project.Genre, workflowprompt.DefaultGenre),
			"continuation_context": workflowprompt.BuildContinuationContext(existing),
			"context_sections":     contextSections,
			"tool_reference":       toolReference,
			"characters_info":      charactersInfo,
			"start_chapter":        batchStart,
			"batch_count":          spec.Count,
			"plot_stage":           workflowprompt.Fallback(in.PlotStage, workflowprompt.DefaultUnset),
			"story_direction":      workflowprompt.Fallback(in.StoryDirection, workflowprompt.DefaultUnset),
			"escalation":           escalationHint(attempt, spec.Count),
		}
		system, user, err := formatPrompt(ctx, workflowprompt.PromptOutlineContinueV1, vars)
		if err != nil {
			return errs.Wrap(err, errs.CodeInternalError, "提示词渲染失败")
		}

		out, err := d.LLM.Generate(ctx, &LLMRequest{Provider: in.Provider, System: system, Prompt: user})
		if err != nil {
			return err
		}
		payloads, err := parseOutlinePayloads(out.Content, spec.Count)
		if err != nil {
			return err
		}

		batch, err := o.commitBatch(ctx, tenantID, project.ID, batchStart, payloads, user, out.Content)
		if err != nil {
			return err
		}

		// 已提交批次进入下一批的续写上下文
		existing = append(existing, batch...)
		created = append(created, batch...)
		done += spec.Count

		percent := 10 + done*80/in.TotalChapters
		if err := sink.Progress(fmt.Sprintf("已生成 %d/%d 章大纲", done, in.TotalChapters), percent, ""); err != nil {
			return errs.ErrCancelled.WithError(err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	return o.finish(ctx, tenantID, project.ID, created, sink)
}

// commitBatch 在租户写作用域内落库一批大纲、同号草稿章节与生成历史
func (o *OutlineContinuer) commitBatch(ctx context.Context, tenantID, projectID string, batchStart int, payloads []outlinePayload, prompt, raw string) ([]*entity.Outline, error) {
	d := o.deps

	outlines := make([]*entity.Outline, 0, len(payloads))
	chapters := make([]*entity.Chapter, 0, len(payloads))
	for i, p := range payloads {
		outline, chapter := buildOutlinePair(projectID, batchStart+i, p)
		outlines = append(outlines, outline)
		chapters = append(chapters, chapter)
	}

	err := d.Scope.Write(ctx, tenantID, func(ctx context.Context) error {
		if err := d.Outlines.CreateBatch(ctx, outlines); err != nil {
			return errs.Wrap(err, errs.CodeDatabaseError, "保存大纲失败")
		}
		if err := d.Chapters.CreateBatch(ctx, chapters); err != nil {
			return errs.Wrap(err, errs.CodeDatabaseError, "保存章节失败")
		}

		history := entity.NewGenerationHistory(tenantID, projectID, entity.GenerationTypeOutline, prompt, raw, d.historyPromptLimit())
		if err := d.Histories.Create(ctx, history); err != nil {
			return errs.Wrap(err, errs.CodeDatabaseError, "写入生成历史失败")
		}

		fresh, err := d.Projects.GetByID(ctx, projectID)
		if err != nil {
			return errs.Wrap(err, errs.CodeDatabaseError, "查询项目失败")
		}
		if fresh == nil {
			return errs.ErrProjectNotFound
		}
		fresh.ChapterCount += len(chapters)
		fresh.UpdatedAt = time.Now()
		if err := d.Projects.Update(ctx, fresh); err != nil {
			return errs.Wrap(err, errs.CodeDatabaseError, "更新项目失败")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return outlines, nil
}

// finish 统计项目大纲总数并发送终态事件
func (o *OutlineContinuer) finish(ctx context.Context, tenantID, projectID string, created []*entity.Outline, sink EventSink) error {
	d := o.deps
	total := int64(len(created))
	err := d.Scope.Read(ctx, tenantID, func(ctx context.Context) error {
		var err error
		total, err = d.Outlines.CountByProject(ctx, projectID)
		return err
	})
	if err != nil {
		logger.Warn(ctx, "failed to count outlines after commit",
			"project_id", projectID,
			"error", err.Error(),
		)
		total = int64(len(created))
	}

	result := &OutlineContinueResult{TotalChapters: int(total), Outlines: created}
	if err := sink.Result(result); err != nil {
		logger.Warn(ctx, "client gone before result event", "project_id", projectID)
		return nil
	}
	_ = sink.Done()
	return nil
}

// buildMemorySections 为续写批次组装记忆上下文，失败仅降级
func (o *OutlineContinuer) buildMemorySections(ctx context.Context, in *OutlineContinueInput, existing []*entity.Outline, batchStart int, characterNames []string) string {
	d := o.deps
	if d.Memory == nil {
		return ""
	}

	query := strings.TrimSpace(in.StoryDirection)
	if query == "" && len(existing) > 0 {
		query = existing[len(existing)-1].Content
	}
	if query == "" {
		return ""
	}

	var bundle *memory.ContextBundle
	err := d.Scope.Read(ctx, strings.TrimSpace(in.TenantID), func(ctx context.Context) error {
		var err error
		bundle, err = d.Memory.BuildContext(ctx, memory.BuildContextInput{
			TenantID:       strings.TrimSpace(in.TenantID),
			ProjectID:      in.ProjectID,
			CurrentChapter: batchStart,
			ChapterOutline: query,
			CharacterNames: characterNames,
		})
		return err
	})
	if err != nil {
		logger.Warn(ctx, "memory context degraded",
			"project_id", in.ProjectID,
			"batch_start", batchStart,
			"error", err.Error(),
		)
		return ""
	}
	return bundle.RenderSections()
}

// resolveOutlineMode 解析生成模式，auto 在无大纲时取 new，否则 continue
func resolveOutlineMode(mode string, existingCount int) (string, error) {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "", OutlineModeAuto:
		if existingCount == 0 {
			return OutlineModeNew, nil
		}
		return OutlineModeContinue, nil
	case OutlineModeNew:
		return OutlineModeNew, nil
	case OutlineModeContinue:
		return OutlineModeContinue, nil
	default:
		return "", errs.ErrInvalidParam.WithMessage("mode 必须是 auto、new 或 continue")
	}
}

// parseOutlinePayloads 解析大纲 JSON 数组并校验条数
func parseOutlinePayloads(raw string, want int) ([]outlinePayload, error) {
	cleaned := CleanJSONPayload(raw)
	if cleaned == "" {
		return nil, errs.ErrLLMInvalidResponse.WithDetail("no JSON payload in outline output")
	}
	var payloads []outlinePayload
	if err := json.Unmarshal([]byte(cleaned), &payloads); err != nil {
		return nil, errs.ErrLLMInvalidResponse.WithError(err)
	}
	return FitCount(payloads, want)
}

// buildOutlinePair 由模型输出构建大纲节点与同号草稿章节。
// 章节摘要取合并后内容的前 500 字，状态为草稿。
func buildOutlinePair(projectID string, number int, p outlinePayload) (*entity.Outline, *entity.Chapter) {
	title := strings.TrimSpace(p.Title)
	if title == "" {
		title = fmt.Sprintf("第%d章", number)
	}
	content := mergeOutlineContent(p)

	outline := entity.NewOutline(projectID, number, title, content)
	outline.Structure = &entity.OutlineStructure{
		Title:              title,
		Summary:            strings.TrimSpace(p.Content),
		Content:            strings.TrimSpace(p.Content),
		KeyEvents:          p.KeyEvents,
		CharactersInvolved: p.CharactersInvolved,
	}
	chapter := entity.NewChapter(projectID, number, title, truncateRunes(content, 500))
	return outline, chapter
}

// mergeOutlineContent 将关键事件与出场角色并入大纲内容
func mergeOutlineContent(p outlinePayload) string {
	content := strings.TrimSpace(p.Content)
	if len(p.KeyEvents) > 0 {
		content += "\n\n关键事件：" + strings.Join(p.KeyEvents, "、")
	}
	if len(p.CharactersInvolved) > 0 {
		content += "\n涉及角色：" + strings.Join(p.CharactersInvolved, "、")
	}
	return content
}

