package prompt

import (
	"fmt"
	"strings"

	"novelforge-api/internal/domain/entity"
)

// 续写上下文的三层采样参数
const (
	// skeletonStride 骨架采样步长：第 1 节起每隔 50 节取标题
	skeletonStride = 50
	// recentSummaryCount 近期概要条数
	recentSummaryCount = 20
	// recentSummaryRunes 单条概要截断长度
	recentSummaryRunes = 50
	// recentFullCount 末尾全文条数
	recentFullCount = 2
)

// BuildContinuationContext 组装大纲续写的前文上下文
//
// 三层采样控制提示词长度：全量骨架（每 50 节取标题）、最近 20 节的
// 50 字概要、最后 2 节全文。骨架仅在节点数超出近期窗口时输出。
func BuildContinuationContext(outlines []*entity.Outline) string {
	if len(outlines) == 0 {
		return ""
	}

	var b strings.Builder

	if len(outlines) > recentSummaryCount {
		b.WriteString("【整体骨架】\n")
		for i, o := range outlines {
			if i%skeletonStride != 0 {
				continue
			}
			b.WriteString(fmt.Sprintf("- 第%d章 %s\n", o.OrderIndex, o.Title))
		}
		b.WriteString("\n")
	}

	fullStart := len(outlines) - recentFullCount
	if fullStart < 0 {
		fullStart = 0
	}
	summaryStart := len(outlines) - recentSummaryCount
	if summaryStart < 0 {
		summaryStart = 0
	}

	if summaryStart < fullStart {
		b.WriteString("【近期章节概要】\n")
		for _, o := range outlines[summaryStart:fullStart] {
			b.WriteString(fmt.Sprintf("- 第%d章 %s：%s\n", o.OrderIndex, o.Title, o.SummaryPrefix(recentSummaryRunes)))
		}
		b.WriteString("\n")
	}

	b.WriteString("【最近章节大纲全文】\n")
	for _, o := range outlines[fullStart:] {
		b.WriteString(fmt.Sprintf("第%d章 %s\n%s\n\n", o.OrderIndex, o.Title, o.Content))
	}

	return strings.TrimRight(b.String(), "\n")
}
