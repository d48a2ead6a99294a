package milvus

import (
	"context"

	"novelforge-api/internal/application/memory"
)

// MemoryVectorStore 将 Milvus 仓储适配为记忆服务的向量存储 port。
type MemoryVectorStore struct {
	repo *Repository
}

func NewMemoryVectorStore(repo *Repository) *MemoryVectorStore {
	return &MemoryVectorStore{repo: repo}
}

var _ memory.VectorStore = (*MemoryVectorStore)(nil)

func (s *MemoryVectorStore) EnsureCollection(ctx context.Context) error {
	if s == nil || s.repo == nil {
		return memory.ErrVectorDisabled
	}
	return s.repo.EnsureMemoryVectorsCollection(ctx)
}

func (s *MemoryVectorStore) Insert(ctx context.Context, tenantID, projectID string, fragments []*memory.VectorFragment) error {
	if s == nil || s.repo == nil {
		return memory.ErrVectorDisabled
	}
	if len(fragments) == 0 {
		return nil
	}

	rows := make([]*MemoryVector, 0, len(fragments))
	for i := range fragments {
		f := fragments[i]
		if f == nil {
			continue
		}
		rows = append(rows, &MemoryVector{
			ID:            f.ID,
			Vector:        f.Vector,
			TenantID:      tenantID,
			ProjectID:     projectID,
			ChapterID:     f.ChapterID,
			MemoryType:    f.MemoryType,
			StoryTimeline: f.StoryTimeline,
			Importance:    f.Importance,
			Content:       f.Content,
		})
	}
	return s.repo.InsertVectors(ctx, tenantID, projectID, rows)
}

func (s *MemoryVectorStore) Search(ctx context.Context, params *memory.VectorSearchParams) ([]*memory.VectorSearchResult, error) {
	if s == nil || s.repo == nil {
		return nil, memory.ErrVectorDisabled
	}
	if params == nil {
		return nil, nil
	}

	out, err := s.repo.Search(ctx, &SearchParams{
		TenantID:       params.TenantID,
		ProjectID:      params.ProjectID,
		QueryVector:    params.QueryVector,
		BeforeTimeline: params.BeforeTimeline,
		TopK:           params.TopK,
		MemoryTypes:    params.MemoryTypes,
		MinImportance:  float32(params.MinImportance),
	})
	if err != nil {
		return nil, err
	}

	results := make([]*memory.VectorSearchResult, 0, len(out))
	for i := range out {
		v := out[i]
		if v == nil {
			continue
		}
		results = append(results, &memory.VectorSearchResult{
			ID:            v.ID,
			Score:         v.Score,
			Content:       v.Content,
			ChapterID:     v.ChapterID,
			MemoryType:    v.MemoryType,
			StoryTimeline: v.StoryTimeline,
		})
	}
	return results, nil
}

func (s *MemoryVectorStore) DeleteByChapter(ctx context.Context, tenantID, projectID, chapterID string) error {
	if s == nil || s.repo == nil {
		return memory.ErrVectorDisabled
	}
	return s.repo.DeleteByChapter(ctx, tenantID, projectID, chapterID)
}

func (s *MemoryVectorStore) DeleteByIDs(ctx context.Context, tenantID, projectID string, ids []string) error {
	if s == nil || s.repo == nil {
		return memory.ErrVectorDisabled
	}
	return s.repo.DeleteByIDs(ctx, tenantID, projectID, ids)
}

func (s *MemoryVectorStore) DropProject(ctx context.Context, tenantID, projectID string) error {
	if s == nil || s.repo == nil {
		return memory.ErrVectorDisabled
	}
	return s.repo.DropProjectPartition(ctx, tenantID, projectID)
}
