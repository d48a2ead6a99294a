// Package prompt 管理生成任务的提示词模板
package prompt

import (
	"embed"
	"fmt"
	"strings"
	"sync"

	einoprompt "github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
)

//go:embed templates/*.txt
var templatesFS embed.FS

type PromptID string

const (
	// PromptWorldV1 向导第一步：世界观四要素
	PromptWorldV1 PromptID = "world_v1"
	// PromptCharactersBatchV1 向导第二步：角色分批生成
	PromptCharactersBatchV1 PromptID = "characters_batch_v1"
	// PromptOutlineCompleteV1 全量大纲一次生成
	PromptOutlineCompleteV1 PromptID = "outline_complete_v1"
	// PromptOutlineContinueV1 大纲分批续写
	PromptOutlineContinueV1 PromptID = "outline_continue_v1"
	// PromptChapterGenV1 章节正文生成
	PromptChapterGenV1 PromptID = "chapter_generate_v1"
	// PromptChapterGenContextV1 携带记忆上下文的章节正文生成
	PromptChapterGenContextV1 PromptID = "chapter_generate_with_context_v1"
	// PromptChapterAnalysisV1 章节结构化分析
	PromptChapterAnalysisV1 PromptID = "chapter_analysis_v1"
)

type Registry struct {
	mu    sync.RWMutex
	cache map[PromptID]einoprompt.ChatTemplate
}

func NewRegistry() *Registry {
	return &Registry{
		cache: make(map[PromptID]einoprompt.ChatTemplate),
	}
}

func (r *Registry) ChatTemplate(id PromptID) (einoprompt.ChatTemplate, error) {
	if r == nil {
		return nil, fmt.Errorf("prompt registry is nil")
	}

	r.mu.RLock()
	if tpl, ok := r.cache[id]; ok {
		r.mu.RUnlock()
		return tpl, nil
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	if tpl, ok := r.cache[id]; ok {
		return tpl, nil
	}

	systemPath, userPath, err := resolvePromptFiles(id)
	if err != nil {
		return nil, err
	}
	system, err := readEmbeddedText(systemPath)
	if err != nil {
		return nil, err
	}
	user, err := readEmbeddedText(userPath)
	if err != nil {
		return nil, err
	}

	tpl := einoprompt.FromMessages(
		schema.FString,
		schema.SystemMessage(system),
		schema.UserMessage(user),
	)
	r.cache[id] = tpl
	return tpl, nil
}

func resolvePromptFiles(id PromptID) (systemFile string, userFile string, err error) {
	switch id {
	case PromptWorldV1,
		PromptCharactersBatchV1,
		PromptOutlineCompleteV1,
		PromptOutlineContinueV1,
		PromptChapterGenV1,
		PromptChapterGenContextV1,
		PromptChapterAnalysisV1:
		base := "templates/" + string(id)
		return base + ".system.txt", base + ".user.txt", nil
	default:
		return "", "", fmt.Errorf("unknown prompt id: %s", id)
	}
}

func readEmbeddedText(path string) (string, error) {
	b, err := templatesFS.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}
