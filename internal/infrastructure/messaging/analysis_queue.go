// Package messaging 提供消息队列实现
package messaging

import (
	"context"
	"fmt"
	"strings"

	"novelforge-api/internal/application/generation"
)

var _ generation.AnalysisQueue = (*AnalysisQueue)(nil)

// AnalysisQueue 把章节分析任务发布到 Redis Stream，实现编排层的队列依赖
type AnalysisQueue struct {
	producer *Producer
	stream   Stream
}

// NewAnalysisQueue 创建分析任务队列，stream 为空时使用默认流名
func NewAnalysisQueue(producer *Producer, stream string) *AnalysisQueue {
	s := StreamChapterAnalysis
	if v := strings.TrimSpace(stream); v != "" {
		s = Stream(v)
	}
	return &AnalysisQueue{producer: producer, stream: s}
}

// EnqueueAnalysis 入队分析任务，返回流消息 ID
func (q *AnalysisQueue) EnqueueAnalysis(ctx context.Context, job *generation.AnalysisJob) (string, error) {
	if job == nil {
		return "", fmt.Errorf("nil analysis job")
	}
	return q.producer.PublishAnalysisTask(ctx, q.stream, &AnalysisTaskMessage{
		TaskID:    job.TaskID,
		TenantID:  job.TenantID,
		ProjectID: job.ProjectID,
		ChapterID: job.ChapterID,
		RequestID: job.RequestID,
	})
}
