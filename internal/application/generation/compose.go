package generation

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/schema"

	"novelforge-api/internal/domain/entity"
	workflowprompt "novelforge-api/internal/workflow/prompt"
)

var defaultPromptRegistry = workflowprompt.NewRegistry()

// formatPrompt 渲染指定模板并拆分为 system/user 两段文本。
// 模板变量必须全量传入，缺失变量会在 Format 阶段报错。
func formatPrompt(ctx context.Context, id workflowprompt.PromptID, vars map[string]any) (system, user string, err error) {
	tpl, err := defaultPromptRegistry.ChatTemplate(id)
	if err != nil {
		return "", "", err
	}
	msgs, err := tpl.Format(ctx, vars)
	if err != nil {
		return "", "", fmt.Errorf("failed to format prompt %s: %w", id, err)
	}
	for _, m := range msgs {
		if m == nil {
			continue
		}
		switch m.Role {
		case schema.System:
			system = m.Content
		case schema.User:
			user = m.Content
		}
	}
	if strings.TrimSpace(user) == "" {
		return "", "", fmt.Errorf("prompt %s produced empty user message", id)
	}
	return system, user, nil
}

func characterTypeLabel(t entity.CharacterType) string {
	switch t {
	case entity.CharacterTypeProtagonist:
		return "主角"
	case entity.CharacterTypeAntagonist:
		return "反派"
	default:
		return "配角"
	}
}

// buildCharactersInfo 渲染角色清单供提示词引用，组织行以（组织）标注。
func buildCharactersInfo(characters []*entity.Character) string {
	var sb strings.Builder
	for _, ch := range characters {
		if ch == nil || strings.TrimSpace(ch.Name) == "" {
			continue
		}
		label := characterTypeLabel(ch.CharacterType)
		if ch.IsOrganization {
			label = "组织"
		}
		fmt.Fprintf(&sb, "- %s（%s）", ch.Name, label)

		details := make([]string, 0, 3)
		if p := strings.TrimSpace(ch.Personality); p != "" {
			details = append(details, "性格："+truncateRunes(p, 60))
		}
		if m := strings.TrimSpace(ch.Motivation); m != "" {
			details = append(details, "动机："+truncateRunes(m, 60))
		}
		if b := strings.TrimSpace(ch.Background); b != "" {
			details = append(details, "背景："+truncateRunes(b, 60))
		}
		if len(details) > 0 {
			sb.WriteString("：")
			sb.WriteString(strings.Join(details, "；"))
		}
		sb.WriteString("\n")
	}

	out := strings.TrimRight(sb.String(), "\n")
	if out == "" {
		return workflowprompt.DefaultCharacters
	}
	return out
}

// buildWorldContext 渲染项目世界观四要素供提示词引用
func buildWorldContext(project *entity.Project) string {
	lines := []string{
		"时间背景：" + workflowprompt.Fallback(project.TimePeriod, workflowprompt.DefaultUnset),
		"地理位置：" + workflowprompt.Fallback(project.Location, workflowprompt.DefaultUnset),
		"氛围基调：" + workflowprompt.Fallback(project.Atmosphere, workflowprompt.DefaultUnset),
		"世界规则：" + workflowprompt.Fallback(project.WorldRules, workflowprompt.DefaultUnset),
	}
	return strings.Join(lines, "\n")
}

// collectToolReference 带工具轮次收集参考资料。
// 没有可用插件或模型没有实际用上工具时返回空串，调用方据此省略参考资料段。
func collectToolReference(ctx context.Context, d *Deps, tenantID, provider, request string) (string, error) {
	bound, err := d.Tools.ListActiveTools(ctx, tenantID)
	if err != nil {
		return "", err
	}
	if len(bound) == 0 {
		return "", nil
	}

	prompt := request + "\n\n把查到的设定、事实或素材整理成要点清单；查不到就输出空内容。"
	out, err := d.LLM.GenerateWithTools(ctx, tenantID, &LLMRequest{Provider: provider, Prompt: prompt}, true, d.toolConfig().MaxToolRounds)
	if err != nil {
		return "", err
	}

	succeeded := 0
	for _, record := range out.Records {
		if record.Error == "" {
			succeeded++
		}
	}
	if out.ToolCallsMade == 0 || succeeded == 0 {
		return "", nil
	}
	return strings.TrimSpace(out.Content), nil
}

// buildStyleGuidance 将写作风格实体渲染为提示词片段
func buildStyleGuidance(style *entity.WritingStyle) string {
	if style == nil {
		return ""
	}
	parts := make([]string, 0, 3)
	if n := strings.TrimSpace(style.Name); n != "" {
		parts = append(parts, "风格："+n)
	}
	if t := strings.TrimSpace(style.Tone); t != "" {
		parts = append(parts, "基调："+t)
	}
	if h := strings.TrimSpace(style.PromptHint); h != "" {
		parts = append(parts, h)
	}
	return strings.Join(parts, "\n")
}

// escalationHint 批次重试时注入的强约束提示，首轮为空
func escalationHint(attempt, want int) string {
	if attempt <= 1 {
		return ""
	}
	return fmt.Sprintf("注意：这是第 %d 次重试，上一次输出不符合要求。请严格输出 %d 个条目，不多不少，且只输出 JSON。", attempt, want)
}

// truncateRunes 按 rune 截断，避免截断多字节字符
func truncateRunes(s string, limit int) string {
	if limit <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
