package generation

import (
	"context"

	"novelforge-api/internal/application/memory"
	"novelforge-api/internal/domain/entity"
)

// TenantScope 编排层对租户存储的最小依赖（port）。
// 每次进入作用域都会确保租户初始化完成，并在短事务内绑定租户上下文；
// Write 额外持有租户写锁，同租户写操作彼此串行。
type TenantScope interface {
	Read(ctx context.Context, tenantID string, fn func(ctx context.Context) error) error
	Write(ctx context.Context, tenantID string, fn func(ctx context.Context) error) error
}

// ContextBuilder 章节与大纲生成对记忆服务的最小依赖（port）。
type ContextBuilder interface {
	BuildContext(ctx context.Context, in memory.BuildContextInput) (*memory.ContextBundle, error)
}

// MemoryWriter 分析落库对记忆服务的最小依赖（port）。
type MemoryWriter interface {
	DeleteByChapter(ctx context.Context, tenantID, projectID, chapterID string) (int64, error)
	AddBatch(ctx context.Context, tenantID, projectID string, fragments []*entity.MemoryFragment) (int, error)
	DeleteByProject(ctx context.Context, tenantID, projectID string) (int64, error)
}

// AnalysisJob 投递给后台 worker 的分析任务描述
type AnalysisJob struct {
	TaskID    string `json:"task_id"`
	TenantID  string `json:"tenant_id"`
	ProjectID string `json:"project_id"`
	ChapterID string `json:"chapter_id"`
	RequestID string `json:"request_id,omitempty"`
}

// AnalysisQueue 分析任务队列（port），由 Redis Stream 生产者实现。
// 入队失败时编排器降级为进程内执行。
type AnalysisQueue interface {
	EnqueueAnalysis(ctx context.Context, job *AnalysisJob) (string, error)
}

// EventSink 编排器的事件出口（port），由 SSE 发送端实现。
// 任一方法返回错误表示消费端已断开，编排器应停止生成并回滚。
// level 传空串表示 info。
type EventSink interface {
	Progress(message string, percent int, level string) error
	Chunk(content string) error
	Heartbeat() error
	Result(payload any) error
	AnalysisStarted(taskID string) error
	Error(code, message string) error
	Done() error
}
