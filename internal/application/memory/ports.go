package memory

import "context"

// VectorStore 定义应用层对"向量存储/检索"的最小依赖（port）。
// 由基础设施层提供具体实现（例如 Milvus）。
type VectorStore interface {
	EnsureCollection(ctx context.Context) error
	Insert(ctx context.Context, tenantID, projectID string, fragments []*VectorFragment) error
	Search(ctx context.Context, params *VectorSearchParams) ([]*VectorSearchResult, error)
	DeleteByChapter(ctx context.Context, tenantID, projectID, chapterID string) error
	DeleteByIDs(ctx context.Context, tenantID, projectID string, ids []string) error
	DropProject(ctx context.Context, tenantID, projectID string) error
}

// Embedder 定义应用层对文本向量化的最小依赖（port）。
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

type VectorFragment struct {
	ID            string
	ChapterID     string
	MemoryType    string
	StoryTimeline int64
	Importance    float32
	Content       string
	Vector        []float32
}

type VectorSearchParams struct {
	TenantID       string
	ProjectID      string
	QueryVector    []float32
	BeforeTimeline int64
	TopK           int
	MemoryTypes    []string
	MinImportance  float64
}

type VectorSearchResult struct {
	ID            string
	Score         float32
	Content       string
	ChapterID     string
	MemoryType    string
	StoryTimeline int64
}
