package generation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"novelforge-api/internal/domain/entity"
	einoobs "novelforge-api/internal/observability/eino"
	workflowprompt "novelforge-api/internal/workflow/prompt"
	errs "novelforge-api/pkg/errors"
	"novelforge-api/pkg/logger"
	"novelforge-api/pkg/metrics"
)

// 向导第三步的开局大纲约束，沿用补充要求注入提示词
const wizardOutlineBrief = "这是小说的开局部分，请重点关注：\n" +
	"1. 引入主要角色和世界观设定\n" +
	"2. 建立主线冲突和故事钩子\n" +
	"3. 展开初期情节，为后续发展埋下伏笔\n" +
	"4. 不要试图完结故事，这只是开始部分"

// WizardWorldInput 向导第一步：世界观生成请求
type WizardWorldInput struct {
	TenantID             string
	Title                string
	Description          string
	Theme                string
	Genre                string
	NarrativePerspective string
	TargetWords          int
	ChapterCount         int
	CharacterCount       int
	Requirements         string
	Provider             string
	RequestID            string
}

// WizardWorldResult 第一步 result 事件载荷
type WizardWorldResult struct {
	ProjectID  string `json:"project_id"`
	TimePeriod string `json:"time_period"`
	Location   string `json:"location"`
	Atmosphere string `json:"atmosphere"`
	WorldRules string `json:"world_rules"`
}

// WizardCharactersInput 向导第二步：角色批量生成请求
type WizardCharactersInput struct {
	TenantID     string
	ProjectID    string
	Count        int
	Requirements string
	Provider     string
	RequestID    string
}

// WizardCharactersResult 第二步 result 事件载荷
type WizardCharactersResult struct {
	Count      int                 `json:"count"`
	Batches    int                 `json:"batches"`
	Characters []*entity.Character `json:"characters"`
}

// WizardOutlineInput 向导第三步：开局大纲生成请求
type WizardOutlineInput struct {
	TenantID             string
	ProjectID            string
	NarrativePerspective string
	TargetWords          int
	Requirements         string
	Provider             string
	RequestID            string
}

// WizardOutlineResult 第三步 result 事件载荷
type WizardOutlineResult struct {
	Count    int               `json:"count"`
	Outlines []*entity.Outline `json:"outlines"`
}

// WizardCleanupResult 清理操作 result 事件载荷，按表统计删除行数
type WizardCleanupResult struct {
	Deleted map[string]int64 `json:"deleted"`
}

// worldPayload 模型输出的世界观四要素
type worldPayload struct {
	TimePeriod string `json:"time_period"`
	Location   string `json:"location"`
	Atmosphere string `json:"atmosphere"`
	WorldRules string `json:"world_rules"`
}

// characterPayload 模型输出的单个角色
type characterPayload struct {
	Name             string              `json:"name"`
	CharacterType    string              `json:"character_type"`
	Age              int                 `json:"age"`
	Gender           string              `json:"gender"`
	Personality      string              `json:"personality"`
	Background       string              `json:"background"`
	Appearance       string              `json:"appearance"`
	Motivation       string              `json:"motivation"`
	IsOrganization   bool                `json:"is_organization"`
	OrganizationType string              `json:"organization_type"`
	Relationships    []relationPayload   `json:"relationships"`
	Memberships      []membershipPayload `json:"memberships"`
}

type relationPayload struct {
	Target      string `json:"target"`
	Type        string `json:"type"`
	Description string `json:"description"`
	Intimacy    int    `json:"intimacy"`
}

type membershipPayload struct {
	Organization string `json:"organization"`
	Position     string `json:"position"`
}

// Wizard 项目创建向导编排器，三步依次产出项目、角色谱系与开局大纲。
// 第二步的关系与成员引用只认本批产物，批外名字一律丢弃后再落库。
type Wizard struct {
	deps *Deps
}

// NewWizard 创建向导编排器
func NewWizard(deps *Deps) *Wizard {
	return &Wizard{deps: deps}
}

// GenerateWorld 向导第一步：生成世界观四要素并创建项目
func (w *Wizard) GenerateWorld(ctx context.Context, in *WizardWorldInput, sink EventSink) {
	if in == nil || strings.TrimSpace(in.Title) == "" {
		_ = sink.Error(string(errs.CodeInvalidParam), "title 不能为空")
		return
	}
	if strings.TrimSpace(in.Theme) == "" || strings.TrimSpace(in.Genre) == "" {
		_ = sink.Error(string(errs.CodeInvalidParam), "theme 和 genre 不能为空")
		return
	}
	ctx = einoobs.WithWorkflowProvider(ctx, "wizard_world", strings.TrimSpace(in.Provider))
	w.dispatch(ctx, "wizard_world", strings.TrimSpace(in.TenantID), sink, func() error {
		return w.runWorld(ctx, in, sink)
	})
}

// GenerateCharacters 向导第二步：按批生成角色与组织并构建关系网络
func (w *Wizard) GenerateCharacters(ctx context.Context, in *WizardCharactersInput, sink EventSink) {
	if in == nil || strings.TrimSpace(in.ProjectID) == "" {
		_ = sink.Error(string(errs.CodeInvalidParam), "project_id 不能为空")
		return
	}
	ctx = einoobs.WithWorkflowProvider(ctx, "wizard_characters", strings.TrimSpace(in.Provider))
	w.dispatch(ctx, "wizard_characters", strings.TrimSpace(in.TenantID), sink, func() error {
		return w.runCharacters(ctx, in, sink)
	})
}

// GenerateOutline 向导第三步：生成固定章数的开局大纲并完成向导
func (w *Wizard) GenerateOutline(ctx context.Context, in *WizardOutlineInput, sink EventSink) {
	if in == nil || strings.TrimSpace(in.ProjectID) == "" {
		_ = sink.Error(string(errs.CodeInvalidParam), "project_id 不能为空")
		return
	}
	ctx = einoobs.WithWorkflowProvider(ctx, "wizard_outline", strings.TrimSpace(in.Provider))
	w.dispatch(ctx, "wizard_outline", strings.TrimSpace(in.TenantID), sink, func() error {
		return w.runOutline(ctx, in, sink)
	})
}

// Cleanup 删除向导过程创建的项目及全部关联数据，用于回退重来
func (w *Wizard) Cleanup(ctx context.Context, tenantID, projectID string, sink EventSink) {
	if strings.TrimSpace(projectID) == "" {
		_ = sink.Error(string(errs.CodeInvalidParam), "project_id 不能为空")
		return
	}
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		_ = sink.Error(string(errs.CodeTenantMissing), errs.ErrTenantMissing.Message)
		return
	}

	err := w.runCleanup(ctx, tenantID, projectID, sink)
	if err == nil {
		return
	}
	appErr := errs.AsAppError(err)
	if appErr.Code == errs.CodeCancelled {
		logger.Info(ctx, "wizard cleanup cancelled", "tenant_id", tenantID, "project_id", projectID)
		return
	}
	logger.Error(ctx, "wizard cleanup failed", err, "tenant_id", tenantID, "project_id", projectID)
	if sendErr := sink.Error(string(appErr.Code), appErr.Message); sendErr != nil {
		logger.Warn(ctx, "failed to emit error event", "error", sendErr.Error())
	}
}

// dispatch 统一处理向导阶段的指标与终态错误事件
func (w *Wizard) dispatch(ctx context.Context, kind, tenantID string, sink EventSink, fn func() error) {
	if tenantID == "" {
		_ = sink.Error(string(errs.CodeTenantMissing), errs.ErrTenantMissing.Message)
		return
	}

	start := time.Now()
	metrics.ActiveGenerations.Inc()
	defer metrics.ActiveGenerations.Dec()

	err := fn()
	if err == nil {
		metrics.GenerationTotal.WithLabelValues(tenantID, kind, "success").Inc()
		metrics.GenerationDuration.WithLabelValues(tenantID, kind).Observe(time.Since(start).Seconds())
		return
	}

	appErr := errs.AsAppError(err)
	if appErr.Code == errs.CodeCancelled {
		logger.Info(ctx, "wizard stage cancelled", "kind", kind, "tenant_id", tenantID)
		metrics.GenerationTotal.WithLabelValues(tenantID, kind, "cancelled").Inc()
		return
	}

	logger.Error(ctx, "wizard stage failed", err, "kind", kind, "tenant_id", tenantID)
	metrics.GenerationTotal.WithLabelValues(tenantID, kind, "failure").Inc()
	if sendErr := sink.Error(string(appErr.Code), appErr.Message); sendErr != nil {
		logger.Warn(ctx, "failed to emit error event", "error", sendErr.Error())
	}
}

func (w *Wizard) runWorld(ctx context.Context, in *WizardWorldInput, sink EventSink) error {
	d := w.deps
	tenantID := strings.TrimSpace(in.TenantID)

	if err := sink.Progress("开始生成世界观", 10, ""); err != nil {
		return errs.ErrCancelled.WithError(err)
	}

	vars := map[string]any{
		"title":        strings.TrimSpace(in.Title),
		"genre":        strings.TrimSpace(in.Genre),
		"theme":        strings.TrimSpace(in.Theme),
		"description":  workflowprompt.Fallback(in.Description, "暂无"),
		"requirements": strings.TrimSpace(in.Requirements),
	}
	system, user, err := formatPrompt(ctx, workflowprompt.PromptWorldV1, vars)
	if err != nil {
		return errs.Wrap(err, errs.CodeInternalError, "提示词渲染失败")
	}

	if err := sink.Progress("正在调用模型生成", 30, ""); err != nil {
		return errs.ErrCancelled.WithError(err)
	}
	raw, err := streamText(ctx, d, &LLMRequest{Provider: in.Provider, System: system, Prompt: user}, sink, true)
	if err != nil {
		return err
	}

	if err := sink.Progress("解析生成结果", 80, ""); err != nil {
		return errs.ErrCancelled.WithError(err)
	}
	world, err := parseWorldPayload(raw)
	if err != nil {
		return err
	}

	if err := sink.Progress("正在创建项目", 90, ""); err != nil {
		return errs.ErrCancelled.WithError(err)
	}

	var project *entity.Project
	err = d.Scope.Write(ctx, tenantID, func(ctx context.Context) error {
		project = entity.NewProject(tenantID, strings.TrimSpace(in.Title))
		project.Description = strings.TrimSpace(in.Description)
		project.Theme = strings.TrimSpace(in.Theme)
		project.Genre = strings.TrimSpace(in.Genre)
		project.NarrativePerspective = strings.TrimSpace(in.NarrativePerspective)
		project.TargetWords = in.TargetWords
		project.ChapterCount = 0
		project.CharacterCount = in.CharacterCount
		project.ApplyWorldBuilding(world.TimePeriod, world.Location, world.Atmosphere, world.WorldRules)
		project.WizardStep = 1
		if err := d.Projects.Create(ctx, project); err != nil {
			return errs.Wrap(err, errs.CodeDatabaseError, "创建项目失败")
		}

		history := entity.NewGenerationHistory(tenantID, project.ID, entity.GenerationTypeWorld, user, raw, d.historyPromptLimit())
		if err := d.Histories.Create(ctx, history); err != nil {
			return errs.Wrap(err, errs.CodeDatabaseError, "写入生成历史失败")
		}

		// 默认风格取第一个全局预置，缺失或失败不影响项目创建
		preset, err := d.Styles.GetFirstPreset(ctx)
		if err != nil || preset == nil {
			logger.Warn(ctx, "no preset style available for new project", "project_id", project.ID)
			return nil
		}
		if err := d.DefaultStyles.Upsert(ctx, &entity.ProjectDefaultStyle{ProjectID: project.ID, StyleID: preset.ID}); err != nil {
			logger.Warn(ctx, "failed to assign default style",
				"project_id", project.ID,
				"style_id", preset.ID,
				"error", err.Error(),
			)
		}
		return nil
	})
	if err != nil {
		return mapCancelled(ctx, err)
	}

	logger.Info(ctx, "wizard project created",
		"tenant_id", tenantID,
		"project_id", project.ID,
		"title", project.Title,
	)

	result := &WizardWorldResult{
		ProjectID:  project.ID,
		TimePeriod: world.TimePeriod,
		Location:   world.Location,
		Atmosphere: world.Atmosphere,
		WorldRules: world.WorldRules,
	}
	return finishWizardStage(ctx, sink, result)
}

func (w *Wizard) runCharacters(ctx context.Context, in *WizardCharactersInput, sink EventSink) error {
	d := w.deps
	tenantID := strings.TrimSpace(in.TenantID)

	count := in.Count
	if count <= 0 {
		count = 5
	}

	if err := sink.Progress("开始生成角色", 5, ""); err != nil {
		return errs.ErrCancelled.WithError(err)
	}

	var project *entity.Project
	err := d.Scope.Read(ctx, tenantID, func(ctx context.Context) error {
		var err error
		project, err = d.Projects.GetByID(ctx, in.ProjectID)
		if err != nil {
			return errs.Wrap(err, errs.CodeDatabaseError, "查询项目失败")
		}
		if project == nil {
			return errs.ErrProjectNotFound
		}
		return nil
	})
	if err != nil {
		return err
	}

	batchSize := d.generationConfig().CharacterBatchSize
	if batchSize <= 0 {
		batchSize = 3
	}
	specs := PlanBatches(count, batchSize)
	runner := NewBatchRunner("characters", d.generationConfig())
	worldContext := buildWorldContext(project)

	var (
		payloads []characterPayload
		traces   []generationTrace
	)
	err = runner.Run(ctx, specs, func(ctx context.Context, spec BatchSpec, attempt int) error {
		msg := fmt.Sprintf("生成第 %d/%d 批角色（%d 个）", spec.Index+1, len(specs), spec.Count)
		if attempt > 1 {
			msg += fmt.Sprintf("，第 %d 次重试", attempt-1)
		}
		percent := 15 + spec.Index*60/len(specs)
		if err := sink.Progress(msg, percent, ""); err != nil {
			return errs.ErrCancelled.WithError(err)
		}

		vars := map[string]any{
			"title":               strings.TrimSpace(project.Title),
			"genre":               workflowprompt.Fallback(project.Genre, workflowprompt.DefaultGenre),
			"world_context":       worldContext,
			"existing_characters": wizardExistingCharacters(payloads),
			"batch_count":         spec.Count,
			"batch_index":         spec.Index + 1,
			"total_batches":       len(specs),
			"requirements":        wizardBatchRequirements(in.Requirements, spec, len(specs)),
			"escalation":          escalationHint(attempt, spec.Count),
		}
		system, user, err := formatPrompt(ctx, workflowprompt.PromptCharactersBatchV1, vars)
		if err != nil {
			return errs.Wrap(err, errs.CodeInternalError, "提示词渲染失败")
		}

		raw, err := streamText(ctx, d, &LLMRequest{Provider: in.Provider, System: system, Prompt: user}, sink, false)
		if err != nil {
			return err
		}

		batch, err := parseCharacterPayloads(raw, spec.Count)
		if err != nil {
			return err
		}
		payloads = append(payloads, batch...)
		traces = append(traces, generationTrace{prompt: user, raw: raw})
		return nil
	})
	if err != nil {
		return err
	}

	if err := sink.Progress("校验角色数据", 82, ""); err != nil {
		return errs.ErrCancelled.WithError(err)
	}
	if dropped := filterHallucinatedRefs(payloads); dropped > 0 {
		logger.Info(ctx, "dropped hallucinated references",
			"project_id", in.ProjectID,
			"dropped", dropped,
		)
		if err := sink.Progress(fmt.Sprintf("已清理 %d 个无效引用", dropped), 84, ""); err != nil {
			return errs.ErrCancelled.WithError(err)
		}
	}

	if err := sink.Progress("保存角色到数据库", 85, ""); err != nil {
		return errs.ErrCancelled.WithError(err)
	}
	characters, err := w.persistCharacters(ctx, tenantID, in.ProjectID, payloads, traces)
	if err != nil {
		return mapCancelled(ctx, err)
	}

	result := &WizardCharactersResult{Count: len(characters), Batches: len(specs), Characters: characters}
	return finishWizardStage(ctx, sink, result)
}

// persistCharacters 两阶段落库：先批量写入角色行建立名称映射，
// 再创建组织、关系边与成员关系，最后更新项目角色数。
func (w *Wizard) persistCharacters(ctx context.Context, tenantID, projectID string, payloads []characterPayload, traces []generationTrace) ([]*entity.Character, error) {
	d := w.deps

	characters := make([]*entity.Character, 0, len(payloads))
	for _, p := range payloads {
		name := strings.TrimSpace(p.Name)
		if name == "" {
			name = "未命名角色"
		}
		ch := entity.NewCharacter(projectID, name, parseCharacterType(p.CharacterType))
		ch.Gender = strings.TrimSpace(p.Gender)
		ch.Personality = strings.TrimSpace(p.Personality)
		ch.Background = strings.TrimSpace(p.Background)
		ch.Appearance = strings.TrimSpace(p.Appearance)
		ch.Motivation = strings.TrimSpace(p.Motivation)
		ch.IsOrganization = p.IsOrganization
		if p.Age > 0 && !p.IsOrganization {
			ch.Age = p.Age
		}
		if p.IsOrganization {
			ch.OrganizationType = strings.TrimSpace(p.OrganizationType)
			ch.Gender = ""
		}
		ch.Relationships = relationshipsSummary(p.Relationships)
		characters = append(characters, ch)
	}

	var edges, members int
	err := d.Scope.Write(ctx, tenantID, func(ctx context.Context) error {
		if err := d.Characters.CreateBatch(ctx, characters); err != nil {
			return errs.Wrap(err, errs.CodeDatabaseError, "保存角色失败")
		}

		byName := make(map[string]*entity.Character, len(characters))
		for _, ch := range characters {
			byName[ch.Name] = ch
		}

		orgByName := make(map[string]*entity.Organization)
		for _, ch := range characters {
			if !ch.IsOrganization {
				continue
			}
			org := &entity.Organization{
				ProjectID:        projectID,
				CharacterID:      ch.ID,
				Name:             ch.Name,
				OrganizationType: ch.OrganizationType,
			}
			if err := d.Organizations.Create(ctx, org); err != nil {
				return errs.Wrap(err, errs.CodeDatabaseError, "创建组织失败")
			}
			orgByName[ch.Name] = org
		}

		for i, p := range payloads {
			from := characters[i]
			if from.IsOrganization {
				continue
			}
			for _, rel := range p.Relationships {
				target := byName[strings.TrimSpace(rel.Target)]
				if target == nil || target.ID == from.ID {
					continue
				}
				edge := &entity.CharacterRelationship{
					ProjectID:       projectID,
					FromCharacterID: from.ID,
					ToCharacterID:   target.ID,
					TypeName:        workflowprompt.Fallback(rel.Type, "未知关系"),
					Description:     strings.TrimSpace(rel.Description),
					Intimacy:        clampIntimacy(rel.Intimacy),
					Source:          entity.RelationshipSourceAI,
					Status:          "active",
				}
				if rt, err := d.RelationTypes.GetByName(ctx, rel.Type); err == nil && rt != nil {
					edge.RelationshipTypeID = &rt.ID
				}
				if err := d.Relationships.Upsert(ctx, edge); err != nil {
					logger.Warn(ctx, "failed to create relationship edge",
						"from", from.Name,
						"to", target.Name,
						"error", err.Error(),
					)
					continue
				}
				edges++
			}
		}

		for i, p := range payloads {
			ch := characters[i]
			if ch.IsOrganization {
				continue
			}
			for _, m := range p.Memberships {
				org := orgByName[strings.TrimSpace(m.Organization)]
				if org == nil {
					continue
				}
				member := &entity.OrganizationMember{
					OrganizationID: org.ID,
					CharacterID:    ch.ID,
					Position:       workflowprompt.Fallback(m.Position, "成员"),
					Loyalty:        50,
					Status:         "active",
				}
				if err := d.OrgMembers.Create(ctx, member); err != nil {
					logger.Warn(ctx, "failed to create organization member",
						"character", ch.Name,
						"organization", org.Name,
						"error", err.Error(),
					)
					continue
				}
				org.MemberCount++
				members++
			}
		}
		for _, org := range orgByName {
			if err := d.Organizations.Update(ctx, org); err != nil {
				return errs.Wrap(err, errs.CodeDatabaseError, "更新组织成员数失败")
			}
		}

		for _, trace := range traces {
			history := entity.NewGenerationHistory(tenantID, projectID, entity.GenerationTypeCharacters, trace.prompt, trace.raw, d.historyPromptLimit())
			if err := d.Histories.Create(ctx, history); err != nil {
				return errs.Wrap(err, errs.CodeDatabaseError, "写入生成历史失败")
			}
		}

		fresh, err := d.Projects.GetByID(ctx, projectID)
		if err != nil {
			return errs.Wrap(err, errs.CodeDatabaseError, "查询项目失败")
		}
		if fresh == nil {
			return errs.ErrProjectNotFound
		}
		fresh.CharacterCount = len(characters)
		fresh.WizardStep = 2
		fresh.UpdatedAt = time.Now()
		if err := d.Projects.Update(ctx, fresh); err != nil {
			return errs.Wrap(err, errs.CodeDatabaseError, "更新项目失败")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "wizard characters persisted",
		"project_id", projectID,
		"characters", len(characters),
		"relationships", edges,
		"members", members,
	)
	return characters, nil
}

func (w *Wizard) runOutline(ctx context.Context, in *WizardOutlineInput, sink EventSink) error {
	d := w.deps
	tenantID := strings.TrimSpace(in.TenantID)

	if err := sink.Progress("开始生成开局大纲", 5, ""); err != nil {
		return errs.ErrCancelled.WithError(err)
	}

	var (
		project        *entity.Project
		charactersInfo string
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
		chars, err := d.Characters.ListByProject(ctx, in.ProjectID, nil)
		if err != nil {
			return errs.Wrap(err, errs.CodeDatabaseError, "查询角色失败")
		}
		charactersInfo = buildCharactersInfo(chars)
		return nil
	})
	if err != nil {
		return err
	}

	chapters := d.generationConfig().WizardOutlineChapters
	if chapters <= 0 {
		chapters = 5
	}

	requirements := wizardOutlineBrief
	if base := strings.TrimSpace(in.Requirements); base != "" {
		requirements = base + "\n\n" + wizardOutlineBrief
	}

	var created []*entity.Outline
	runner := NewBatchRunner("outline", d.generationConfig())
	specs := []BatchSpec{{Index: 0, Start: 0, Count: chapters}}
	err = runner.Run(ctx, specs, func(ctx context.Context, spec BatchSpec, attempt int) error {
		msg := fmt.Sprintf("生成第 1-%d 章开局大纲", chapters)
		if attempt > 1 {
			msg += fmt.Sprintf("，第 %d 次重试", attempt-1)
		}
		if err := sink.Progress(msg, 20, ""); err != nil {
			return errs.ErrCancelled.WithError(err)
		}

		vars := map[string]any{
			"title":           strings.TrimSpace(project.Title),
			"genre":           workflowprompt.Fallback(project.Genre, workflowprompt.DefaultGenre),
			"world_context":   buildWorldContext(project),
			"characters_info": charactersInfo,
			"total_chapters":  spec.Count,
			"plot_stage":      "development",
			"story_direction": workflowprompt.DefaultUnset,
			"requirements":    requirements,
		}
		system, user, err := formatPrompt(ctx, workflowprompt.PromptOutlineCompleteV1, vars)
		if err != nil {
			return errs.Wrap(err, errs.CodeInternalError, "提示词渲染失败")
		}

		raw, err := streamText(ctx, d, &LLMRequest{Provider: in.Provider, System: system, Prompt: user}, sink, false)
		if err != nil {
			return err
		}
		payloads, err := parseOutlinePayloads(raw, spec.Count)
		if err != nil {
			return err
		}

		if err := sink.Progress("保存大纲到数据库", 90, ""); err != nil {
			return errs.ErrCancelled.WithError(err)
		}
		created, err = w.persistWizardOutline(ctx, tenantID, in, payloads, user, raw)
		return err
	})
	if err != nil {
		return mapCancelled(ctx, err)
	}

	result := &WizardOutlineResult{Count: len(created), Outlines: created}
	return finishWizardStage(ctx, sink, result)
}

// persistWizardOutline 落库开局大纲与同号草稿章节，并把项目推进到写作阶段
func (w *Wizard) persistWizardOutline(ctx context.Context, tenantID string, in *WizardOutlineInput, payloads []outlinePayload, prompt, raw string) ([]*entity.Outline, error) {
	d := w.deps

	outlines := make([]*entity.Outline, 0, len(payloads))
	chapters := make([]*entity.Chapter, 0, len(payloads))
	for i, p := range payloads {
		outline, chapter := buildOutlinePair(in.ProjectID, i+1, p)
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

		history := entity.NewGenerationHistory(tenantID, in.ProjectID, entity.GenerationTypeOutline, prompt, raw, d.historyPromptLimit())
		if err := d.Histories.Create(ctx, history); err != nil {
			return errs.Wrap(err, errs.CodeDatabaseError, "写入生成历史失败")
		}

		fresh, err := d.Projects.GetByID(ctx, in.ProjectID)
		if err != nil {
			return errs.Wrap(err, errs.CodeDatabaseError, "查询项目失败")
		}
		if fresh == nil {
			return errs.ErrProjectNotFound
		}
		fresh.ChapterCount = len(chapters)
		if v := strings.TrimSpace(in.NarrativePerspective); v != "" {
			fresh.NarrativePerspective = v
		}
		if in.TargetWords > 0 {
			fresh.TargetWords = in.TargetWords
		}
		fresh.CompleteWizard()
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

func (w *Wizard) runCleanup(ctx context.Context, tenantID, projectID string, sink EventSink) error {
	d := w.deps

	if err := sink.Progress("开始清理向导数据", 10, ""); err != nil {
		return errs.ErrCancelled.WithError(err)
	}

	deleted := make(map[string]int64)
	err := d.Scope.Write(ctx, tenantID, func(ctx context.Context) error {
		project, err := d.Projects.GetByID(ctx, projectID)
		if err != nil {
			return errs.Wrap(err, errs.CodeDatabaseError, "查询项目失败")
		}
		if project == nil {
			return errs.ErrProjectNotFound
		}

		if err := sink.Progress("删除角色数据", 30, ""); err != nil {
			return errs.ErrCancelled.WithError(err)
		}
		orgs, err := d.Organizations.ListByProject(ctx, projectID)
		if err != nil {
			return errs.Wrap(err, errs.CodeDatabaseError, "查询组织失败")
		}
		for _, org := range orgs {
			n, err := d.OrgMembers.DeleteByOrganization(ctx, org.ID)
			if err != nil {
				return errs.Wrap(err, errs.CodeDatabaseError, "删除组织成员失败")
			}
			deleted["organization_members"] += n
		}
		if deleted["organizations"], err = d.Organizations.DeleteByProject(ctx, projectID); err != nil {
			return errs.Wrap(err, errs.CodeDatabaseError, "删除组织失败")
		}
		if deleted["relationships"], err = d.Relationships.DeleteByProject(ctx, projectID); err != nil {
			return errs.Wrap(err, errs.CodeDatabaseError, "删除角色关系失败")
		}
		if deleted["characters"], err = d.Characters.DeleteByProject(ctx, projectID); err != nil {
			return errs.Wrap(err, errs.CodeDatabaseError, "删除角色失败")
		}

		if err := sink.Progress("删除大纲数据", 50, ""); err != nil {
			return errs.ErrCancelled.WithError(err)
		}
		if deleted["outlines"], err = d.Outlines.DeleteByProject(ctx, projectID); err != nil {
			return errs.Wrap(err, errs.CodeDatabaseError, "删除大纲失败")
		}

		if err := sink.Progress("删除章节数据", 70, ""); err != nil {
			return errs.ErrCancelled.WithError(err)
		}
		if deleted["chapters"], err = d.Chapters.DeleteByProject(ctx, projectID); err != nil {
			return errs.Wrap(err, errs.CodeDatabaseError, "删除章节失败")
		}
		if deleted["histories"], err = d.Histories.DeleteByProject(ctx, projectID); err != nil {
			return errs.Wrap(err, errs.CodeDatabaseError, "删除生成历史失败")
		}
		if d.MemoryWriter != nil {
			if deleted["memories"], err = d.MemoryWriter.DeleteByProject(ctx, tenantID, projectID); err != nil {
				return errs.Wrap(err, errs.CodeDatabaseError, "删除记忆片段失败")
			}
		}
		if err := d.DefaultStyles.DeleteByProject(ctx, projectID); err != nil {
			return errs.Wrap(err, errs.CodeDatabaseError, "清除默认风格失败")
		}

		if err := sink.Progress("删除项目", 85, ""); err != nil {
			return errs.ErrCancelled.WithError(err)
		}
		if err := d.Projects.Delete(ctx, projectID); err != nil {
			return errs.Wrap(err, errs.CodeDatabaseError, "删除项目失败")
		}
		return nil
	})
	if err != nil {
		return mapCancelled(ctx, err)
	}

	logger.Info(ctx, "wizard project cleaned up",
		"tenant_id", tenantID,
		"project_id", projectID,
		"characters", deleted["characters"],
		"outlines", deleted["outlines"],
		"chapters", deleted["chapters"],
	)
	return finishWizardStage(ctx, sink, &WizardCleanupResult{Deleted: deleted})
}

// generationTrace 单次模型调用的提示词与原始输出，用于生成历史
type generationTrace struct {
	prompt string
	raw    string
}

// finishWizardStage 发送终态事件：result、完成进度与 done
func finishWizardStage(ctx context.Context, sink EventSink, payload any) error {
	if err := sink.Result(payload); err != nil {
		logger.Warn(ctx, "client gone before result event")
		return nil
	}
	_ = sink.Progress("完成", 100, "success")
	_ = sink.Done()
	return nil
}

// streamText 消费 LLM 流，逐块推送给客户端并返回累积全文。
// cadence 开启时每 5 个片段报一次进度、每 20 个片段发一次心跳。
func streamText(ctx context.Context, d *Deps, req *LLMRequest, sink EventSink, cadence bool) (string, error) {
	reader, err := d.LLM.Stream(ctx, req)
	if err != nil {
		return "", err
	}
	defer reader.Close()

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
			if errors.Is(recvErr, context.Canceled) || ctx.Err() != nil {
				return "", errs.ErrCancelled.WithError(recvErr)
			}
			return "", errs.ErrLLMCallFailed.WithMessage("生成流中断").WithError(recvErr)
		}
		if msg == nil || msg.Content == "" {
			continue
		}

		buf.WriteString(msg.Content)
		runeCount += utf8.RuneCountInString(msg.Content)
		chunks++
		if err := sink.Chunk(msg.Content); err != nil {
			return "", errs.ErrCancelled.WithError(err)
		}
		if !cadence {
			continue
		}
		if chunks%progressEveryChunks == 0 {
			percent := 30 + chunks/progressEveryChunks
			if percent > 70 {
				percent = 70
			}
			if err := sink.Progress(fmt.Sprintf("生成中（已输出 %d 字）", runeCount), percent, ""); err != nil {
				return "", errs.ErrCancelled.WithError(err)
			}
		}
		if chunks%heartbeatEveryChunks == 0 {
			if err := sink.Heartbeat(); err != nil {
				return "", errs.ErrCancelled.WithError(err)
			}
		}
	}
	if ctx.Err() != nil {
		return "", errs.ErrCancelled.WithError(ctx.Err())
	}
	return strings.TrimSpace(buf.String()), nil
}

// parseWorldPayload 解析世界观 JSON，四要素全空视为无效输出
func parseWorldPayload(raw string) (*worldPayload, error) {
	cleaned := CleanJSONPayload(raw)
	if cleaned == "" {
		return nil, errs.ErrLLMInvalidResponse.WithDetail("no JSON object in world output")
	}
	var world worldPayload
	if err := json.Unmarshal([]byte(cleaned), &world); err != nil {
		return nil, errs.ErrLLMInvalidResponse.WithError(err)
	}
	world.TimePeriod = strings.TrimSpace(world.TimePeriod)
	world.Location = strings.TrimSpace(world.Location)
	world.Atmosphere = strings.TrimSpace(world.Atmosphere)
	world.WorldRules = strings.TrimSpace(world.WorldRules)
	if world.TimePeriod == "" && world.Location == "" && world.Atmosphere == "" && world.WorldRules == "" {
		return nil, errs.ErrLLMInvalidResponse.WithMessage("世界观生成内容为空")
	}
	return &world, nil
}

// parseCharacterPayloads 解析角色 JSON 数组，条数必须精确匹配
func parseCharacterPayloads(raw string, want int) ([]characterPayload, error) {
	cleaned := CleanJSONPayload(raw)
	if cleaned == "" {
		return nil, errs.ErrLLMInvalidResponse.WithDetail("no JSON payload in characters output")
	}
	var payloads []characterPayload
	if err := json.Unmarshal([]byte(cleaned), &payloads); err != nil {
		return nil, errs.ErrLLMInvalidResponse.WithError(err)
	}
	if len(payloads) != want {
		return nil, errs.ErrValidationFailed.
			WithMessage(fmt.Sprintf("期望生成 %d 个角色，实际返回 %d 个", want, len(payloads)))
	}
	return payloads, nil
}

// filterHallucinatedRefs 丢弃引用批外实体的关系与组织成员条目，返回丢弃数。
// 关系目标允许是批内任意实体，组织成员只允许引用批内 is_organization 实体。
func filterHallucinatedRefs(payloads []characterPayload) int {
	names := make(map[string]struct{}, len(payloads))
	orgNames := make(map[string]struct{})
	for _, p := range payloads {
		name := strings.TrimSpace(p.Name)
		if name == "" {
			continue
		}
		names[name] = struct{}{}
		if p.IsOrganization {
			orgNames[name] = struct{}{}
		}
	}

	dropped := 0
	for i := range payloads {
		kept := payloads[i].Relationships[:0]
		for _, rel := range payloads[i].Relationships {
			if _, ok := names[strings.TrimSpace(rel.Target)]; ok {
				kept = append(kept, rel)
			} else {
				dropped++
			}
		}
		payloads[i].Relationships = kept

		keptM := payloads[i].Memberships[:0]
		for _, m := range payloads[i].Memberships {
			if _, ok := orgNames[strings.TrimSpace(m.Organization)]; ok {
				keptM = append(keptM, m)
			} else {
				dropped++
			}
		}
		payloads[i].Memberships = keptM
	}
	return dropped
}

// wizardExistingCharacters 渲染已生成角色清单供后续批次保持设定连贯
func wizardExistingCharacters(payloads []characterPayload) string {
	if len(payloads) == 0 {
		return "暂无"
	}
	var b strings.Builder
	for _, p := range payloads {
		kind := p.CharacterType
		if p.IsOrganization {
			kind = "组织"
		}
		b.WriteString(fmt.Sprintf("- %s（%s）：%s\n", p.Name, workflowprompt.Fallback(kind, "未知"), truncateRunes(p.Personality, 50)))
	}
	return strings.TrimRight(b.String(), "\n")
}

// wizardBatchRequirements 按批次位置组合角色构成要求：
// 首批含主角，末批可含组织与反派，中间批以配角和反派为主
func wizardBatchRequirements(base string, spec BatchSpec, totalBatches int) string {
	var parts []string
	if s := strings.TrimSpace(base); s != "" {
		parts = append(parts, s)
	}
	switch {
	case spec.Index == 0 && spec.Count == 1:
		parts = append(parts, "请生成 1 个主角（protagonist）。")
	case spec.Index == 0:
		parts = append(parts, fmt.Sprintf("包含 1 个主角（protagonist），其余 %d 个为核心配角（supporting）。", spec.Count-1))
	case spec.Index == totalBatches-1:
		parts = append(parts, "以配角（supporting）为主，可以包含组织实体或反派（antagonist）。", "新角色需与已有角色形成合理的关系网络。")
	default:
		parts = append(parts, "以配角（supporting）和反派（antagonist）为主。", "新角色需与已有角色形成合理的关系网络。")
	}
	return strings.Join(parts, "\n")
}

// relationshipsSummary 把结构化关系压成可读文本存入角色行
func relationshipsSummary(rels []relationPayload) string {
	if len(rels) == 0 {
		return ""
	}
	parts := make([]string, 0, len(rels))
	for _, rel := range rels {
		target := strings.TrimSpace(rel.Target)
		if target == "" {
			continue
		}
		piece := fmt.Sprintf("%s（%s）", target, workflowprompt.Fallback(rel.Type, "未知关系"))
		if desc := strings.TrimSpace(rel.Description); desc != "" {
			piece += "：" + desc
		}
		parts = append(parts, piece)
	}
	return strings.Join(parts, "；")
}

func parseCharacterType(s string) entity.CharacterType {
	switch entity.CharacterType(strings.ToLower(strings.TrimSpace(s))) {
	case entity.CharacterTypeProtagonist:
		return entity.CharacterTypeProtagonist
	case entity.CharacterTypeAntagonist:
		return entity.CharacterTypeAntagonist
	default:
		return entity.CharacterTypeSupporting
	}
}

func clampIntimacy(v int) int {
	if v <= 0 {
		return 50
	}
	if v > 100 {
		return 100
	}
	return v
}

// mapCancelled 提交阶段因请求取消失败时归一为取消错误
func mapCancelled(ctx context.Context, err error) error {
	if err == nil || ctx.Err() == nil {
		return err
	}
	if errs.IsCode(err, errs.CodeCancelled) {
		return err
	}
	return errs.ErrCancelled.WithError(err)
}
