// Package memory 实现故事记忆的写入、检索与上下文组装
package memory

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"novelforge-api/internal/config"
	"novelforge-api/internal/domain/entity"
	"novelforge-api/internal/domain/repository"
	"novelforge-api/pkg/logger"
	"novelforge-api/pkg/metrics"
)

// Service 记忆服务：关系库为主存储，向量库为可降级的检索索引。
type Service struct {
	fragments repository.MemoryFragmentRepository
	chapters  repository.ChapterRepository
	embedder  Embedder
	vector    VectorStore
	cfg       *config.MemoryConfig
}

func NewService(
	fragments repository.MemoryFragmentRepository,
	chapters repository.ChapterRepository,
	embedder Embedder,
	vector VectorStore,
	cfg *config.MemoryConfig,
) *Service {
	return &Service{
		fragments: fragments,
		chapters:  chapters,
		embedder:  embedder,
		vector:    vector,
		cfg:       cfg,
	}
}

// VectorEnabled 向量索引是否可用（Embedder 与向量库都已配置）。
func (s *Service) VectorEnabled() bool {
	return s != nil && s.embedder != nil && s.vector != nil
}

func (s *Service) ensureReady(ctx context.Context) error {
	if s == nil || s.vector == nil {
		return ErrVectorDisabled
	}
	return s.vector.EnsureCollection(ctx)
}

// AddBatch 批量写入记忆片段：
//   - 丢弃空内容片段；
//   - 按 (chapter_id, memory_type, content) 去重，保留首个；
//   - 先落关系库，再批量向量化写入向量库；
//   - 向量写入失败仅降级（行保留、vector_id 为空），不影响主流程。
//
// 返回实际写入的片段数。
func (s *Service) AddBatch(ctx context.Context, tenantID, projectID string, fragments []*entity.MemoryFragment) (int, error) {
	if strings.TrimSpace(tenantID) == "" || strings.TrimSpace(projectID) == "" {
		return 0, fmt.Errorf("tenant_id and project_id are required")
	}
	if len(fragments) == 0 {
		return 0, nil
	}

	accepted := make([]*entity.MemoryFragment, 0, len(fragments))
	seen := make(map[string]struct{}, len(fragments))
	for _, frag := range fragments {
		if frag == nil {
			continue
		}
		frag.Content = strings.TrimSpace(frag.Content)
		if frag.Content == "" {
			continue
		}

		chapterID := ""
		if frag.ChapterID != nil {
			chapterID = *frag.ChapterID
		}
		key := chapterID + "|" + string(frag.MemoryType) + "|" + frag.Content
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}

		frag.TenantID = tenantID
		frag.ProjectID = projectID
		frag.ClampImportance()
		if frag.ID == "" {
			frag.ID = uuid.NewString()
		}
		accepted = append(accepted, frag)
	}
	if len(accepted) == 0 {
		return 0, nil
	}

	if s.VectorEnabled() {
		if err := s.indexVectors(ctx, tenantID, projectID, accepted); err != nil {
			// 降级：向量索引失败不阻塞主存储，后续检索自动退回按时间召回
			logger.Warn(ctx, "memory vector indexing degraded",
				"project_id", projectID,
				"fragments", len(accepted),
				"error", err.Error(),
			)
			for _, frag := range accepted {
				frag.VectorID = ""
			}
		}
	}

	if err := s.fragments.CreateBatch(ctx, accepted); err != nil {
		return 0, fmt.Errorf("failed to create memory fragments: %w", err)
	}

	for _, frag := range accepted {
		metrics.MemoryFragmentsExtracted.WithLabelValues(string(frag.MemoryType)).Inc()
	}
	return len(accepted), nil
}

// indexVectors 批量向量化并写入向量库，成功后回填 VectorID。
func (s *Service) indexVectors(ctx context.Context, tenantID, projectID string, fragments []*entity.MemoryFragment) error {
	if err := s.ensureReady(ctx); err != nil {
		return err
	}

	texts := make([]string, 0, len(fragments))
	for _, frag := range fragments {
		text := frag.Content
		if t := strings.TrimSpace(frag.Title); t != "" {
			text = t + "\n" + text
		}
		texts = append(texts, text)
	}

	vectors, err := s.embedder.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("failed to embed fragments: %w", err)
	}
	if len(vectors) != len(fragments) {
		return fmt.Errorf("embedding count mismatch: got %d, want %d", len(vectors), len(fragments))
	}

	rows := make([]*VectorFragment, 0, len(fragments))
	for i, frag := range fragments {
		chapterID := ""
		if frag.ChapterID != nil {
			chapterID = *frag.ChapterID
		}
		rows = append(rows, &VectorFragment{
			ID:            uuid.NewString(),
			ChapterID:     chapterID,
			MemoryType:    string(frag.MemoryType),
			StoryTimeline: int64(frag.StoryTimeline),
			Importance:    float32(frag.Importance),
			Content:       truncateRunes(frag.Content, 2000),
			Vector:        vectors[i],
		})
	}
	if err := s.vector.Insert(ctx, tenantID, projectID, rows); err != nil {
		return fmt.Errorf("failed to insert vectors: %w", err)
	}
	for i, frag := range fragments {
		frag.VectorID = rows[i].ID
	}
	return nil
}

// DeleteByChapter 幂等清除章节相关记忆（行 + 向量）。
func (s *Service) DeleteByChapter(ctx context.Context, tenantID, projectID, chapterID string) (int64, error) {
	deleted, err := s.fragments.DeleteByChapter(ctx, projectID, chapterID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete memory fragments: %w", err)
	}

	if s.vector != nil {
		if err := s.vector.DeleteByChapter(ctx, tenantID, projectID, chapterID); err != nil {
			logger.Warn(ctx, "failed to delete chapter vectors",
				"project_id", projectID,
				"chapter_id", chapterID,
				"error", err.Error(),
			)
		}
	}
	return deleted, nil
}

// DeleteByProject 清除项目全部记忆，并释放该项目的向量分区。
func (s *Service) DeleteByProject(ctx context.Context, tenantID, projectID string) (int64, error) {
	deleted, err := s.fragments.DeleteByProject(ctx, projectID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete project memories: %w", err)
	}

	if s.vector != nil {
		if err := s.vector.DropProject(ctx, tenantID, projectID); err != nil {
			logger.Warn(ctx, "failed to drop project vector partition",
				"project_id", projectID,
				"error", err.Error(),
			)
		}
	}
	return deleted, nil
}

// SearchResult 语义检索结果；向量库不可用时 DisabledReason 说明降级原因。
type SearchInput struct {
	TenantID       string
	ProjectID      string
	Query          string
	TopK           int
	BeforeTimeline int
	MemoryTypes    []entity.MemoryType
}

type SearchOutput struct {
	Fragments      []*entity.MemoryFragment
	Scores         map[string]float32
	DisabledReason string
}

// Search 语义检索记忆片段。向量召回失败时降级为按时间线倒序召回，
// 并在 DisabledReason 中说明原因。
func (s *Service) Search(ctx context.Context, in SearchInput) (*SearchOutput, error) {
	in.Query = strings.TrimSpace(in.Query)
	in.TenantID = strings.TrimSpace(in.TenantID)
	in.ProjectID = strings.TrimSpace(in.ProjectID)
	if in.TenantID == "" || in.ProjectID == "" {
		return nil, fmt.Errorf("tenant_id and project_id are required")
	}
	if in.Query == "" {
		return nil, fmt.Errorf("query is required")
	}
	if in.TopK <= 0 {
		in.TopK = s.cfg.SearchTopK
	}
	if in.TopK <= 0 {
		in.TopK = 10
	}
	if in.TopK > 50 {
		in.TopK = 50
	}

	out := &SearchOutput{}

	if s.VectorEnabled() {
		fragments, err := s.vectorSearch(ctx, in)
		if err != nil {
			out.DisabledReason = err.Error()
		} else {
			out.Fragments = fragments.Fragments
			out.Scores = fragments.Scores
			metrics.MemorySearchTotal.WithLabelValues("vector", "success").Inc()
			return out, nil
		}
	} else {
		out.DisabledReason = ErrVectorDisabled.Error()
	}

	// 降级：按时间线倒序 + 重要度召回
	before := in.BeforeTimeline
	if before <= 0 {
		before = int(^uint(0) >> 1)
	}
	recent, err := s.fragments.ListRecent(ctx, in.ProjectID, before, in.TopK)
	if err != nil {
		metrics.MemorySearchTotal.WithLabelValues("recency", "error").Inc()
		return nil, fmt.Errorf("failed to list recent memories: %w", err)
	}
	out.Fragments = recent
	metrics.MemorySearchTotal.WithLabelValues("recency", "success").Inc()
	return out, nil
}

func (s *Service) vectorSearch(ctx context.Context, in SearchInput) (*SearchOutput, error) {
	if err := s.ensureReady(ctx); err != nil {
		return nil, err
	}

	vecs, err := s.embedder.Embed(ctx, []string{in.Query})
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	if len(vecs) == 0 || len(vecs[0]) == 0 {
		return nil, fmt.Errorf("empty embedding result")
	}

	types := make([]string, 0, len(in.MemoryTypes))
	for _, t := range in.MemoryTypes {
		types = append(types, string(t))
	}
	beforeTimeline := int64(0)
	if in.BeforeTimeline > 0 {
		beforeTimeline = int64(in.BeforeTimeline)
	}

	results, err := s.vector.Search(ctx, &VectorSearchParams{
		TenantID:       in.TenantID,
		ProjectID:      in.ProjectID,
		QueryVector:    vecs[0],
		BeforeTimeline: beforeTimeline,
		TopK:           in.TopK,
		MemoryTypes:    types,
		MinImportance:  s.cfg.MinImportance,
	})
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return &SearchOutput{}, nil
	}

	ids := make([]string, 0, len(results))
	scores := make(map[string]float32, len(results))
	for _, r := range results {
		if r == nil || r.ID == "" {
			continue
		}
		ids = append(ids, r.ID)
		// COSINE 距离转换为相似度
		scores[r.ID] = 1 - r.Score
	}

	rows, err := s.hydrateByVectorIDs(ctx, in.ProjectID, ids)
	if err != nil {
		return nil, err
	}

	out := &SearchOutput{Fragments: rows, Scores: make(map[string]float32, len(rows))}
	for _, row := range rows {
		if sc, ok := scores[row.VectorID]; ok {
			out.Scores[row.ID] = sc
		}
	}
	return out, nil
}

// hydrateByVectorIDs 按向量 ID 回查关系库行，保持检索顺序。
func (s *Service) hydrateByVectorIDs(ctx context.Context, projectID string, vectorIDs []string) ([]*entity.MemoryFragment, error) {
	if len(vectorIDs) == 0 {
		return nil, nil
	}
	rows, err := s.fragments.ListByVectorIDs(ctx, projectID, vectorIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to hydrate fragments: %w", err)
	}
	return rows, nil
}

// truncateRunes 按 rune 截断，避免截断多字节字符。
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
