// Package milvus 提供 Milvus 向量数据库访问层实现
package milvus

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"novelforge-api/pkg/metrics"
)

// Repository 记忆向量仓储
type Repository struct {
	client *Client
}

// NewRepository 创建记忆向量仓储
func NewRepository(client *Client) *Repository {
	return &Repository{client: client}
}

// SearchParams 检索参数
type SearchParams struct {
	TenantID       string
	ProjectID      string
	QueryVector    []float32
	BeforeTimeline int64
	TopK           int
	MemoryTypes    []string
	MinImportance  float32
}

// SearchResult 检索结果
type SearchResult struct {
	ID            string
	Score         float32
	Content       string
	ChapterID     string
	MemoryType    string
	StoryTimeline int64
}

// CreateCollection 创建集合
func (r *Repository) CreateCollection(ctx context.Context, schema *entity.Schema) error {
	if r == nil || r.client == nil || r.client.milvus == nil {
		return fmt.Errorf("milvus client not configured")
	}
	ctx, span := tracer.Start(ctx, "milvus.CreateCollection",
		trace.WithAttributes(attribute.String("collection", schema.CollectionName)))
	defer span.End()

	collName := r.client.CollectionName(schema.CollectionName)
	schema.CollectionName = collName

	err := r.client.milvus.CreateCollection(ctx, schema, entity.DefaultShardNumber)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create collection: %w", err)
	}

	return nil
}

// CreateIndex 创建 HNSW 索引
func (r *Repository) CreateIndex(ctx context.Context, collection string) error {
	if r == nil || r.client == nil || r.client.milvus == nil {
		return fmt.Errorf("milvus client not configured")
	}
	ctx, span := tracer.Start(ctx, "milvus.CreateIndex",
		trace.WithAttributes(attribute.String("collection", collection)))
	defer span.End()

	collName := r.client.CollectionName(collection)

	idx, err := entity.NewIndexHNSW(
		entity.COSINE,
		r.client.config.HNSWM,
		r.client.config.HNSWEfConstruction,
	)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create index: %w", err)
	}

	err = r.client.milvus.CreateIndex(ctx, collName, "vector", idx, false)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create index: %w", err)
	}

	return nil
}

// CreatePartition 创建分区
func (r *Repository) CreatePartition(ctx context.Context, collection, tenantID, projectID string) error {
	if r == nil || r.client == nil || r.client.milvus == nil {
		return fmt.Errorf("milvus client not configured")
	}
	ctx, span := tracer.Start(ctx, "milvus.CreatePartition",
		trace.WithAttributes(
			attribute.String("collection", collection),
			attribute.String("partition", PartitionName(tenantID, projectID)),
		))
	defer span.End()

	collName := r.client.CollectionName(collection)
	partitionName := PartitionName(tenantID, projectID)

	return r.client.milvus.CreatePartition(ctx, collName, partitionName)
}

// Search 检索记忆片段向量
func (r *Repository) Search(ctx context.Context, params *SearchParams) ([]*SearchResult, error) {
	if r == nil || r.client == nil || r.client.milvus == nil {
		return nil, fmt.Errorf("milvus client not configured")
	}
	ctx, span := tracer.Start(ctx, "milvus.Search",
		trace.WithAttributes(
			attribute.String("tenant_id", params.TenantID),
			attribute.String("project_id", params.ProjectID),
			attribute.Int("top_k", params.TopK),
		))
	defer span.End()

	start := time.Now()
	defer func() {
		metrics.MilvusSearchDuration.WithLabelValues(CollectionMemoryVectors).
			Observe(time.Since(start).Seconds())
	}()

	collName := r.client.CollectionName(CollectionMemoryVectors)
	partitionName := PartitionName(params.TenantID, params.ProjectID)

	// 分区尚未创建（例如新项目）时直接返回空结果，避免 Milvus 报 partition not found。
	if has, err := r.client.milvus.HasPartition(ctx, collName, partitionName); err != nil {
		span.RecordError(err)
		metrics.MilvusSearchTotal.WithLabelValues(CollectionMemoryVectors, "error").Inc()
		return nil, fmt.Errorf("failed to check partition: %w", err)
	} else if !has {
		metrics.MilvusSearchTotal.WithLabelValues(CollectionMemoryVectors, "empty").Inc()
		return []*SearchResult{}, nil
	}

	// 构建过滤表达式
	filter := fmt.Sprintf(
		`tenant_id == "%s" && project_id == "%s"`,
		params.TenantID, params.ProjectID,
	)

	// 时间线过滤（排除未来章节的记忆）
	if params.BeforeTimeline > 0 {
		filter += fmt.Sprintf(` && story_timeline < %d`, params.BeforeTimeline)
	}

	// 重要度过滤
	if params.MinImportance > 0 {
		filter += fmt.Sprintf(` && importance >= %f`, params.MinImportance)
	}

	// 类型过滤，使用 OR 条件构建（避免依赖 IN 语法差异）。
	if len(params.MemoryTypes) > 0 {
		var parts []string
		for _, mt := range params.MemoryTypes {
			mt = strings.TrimSpace(mt)
			if mt == "" {
				continue
			}
			parts = append(parts, fmt.Sprintf(`memory_type == "%s"`, mt))
		}
		if len(parts) > 0 {
			filter += " && (" + strings.Join(parts, " || ") + ")"
		}
	}

	// 搜索参数
	sp, err := entity.NewIndexHNSWSearchParam(128)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to create search param: %w", err)
	}

	// 执行搜索
	results, err := r.client.milvus.Search(ctx,
		collName,
		[]string{partitionName},
		filter,
		[]string{"id", "content", "chapter_id", "memory_type", "story_timeline"},
		[]entity.Vector{entity.FloatVector(params.QueryVector)},
		"vector",
		entity.COSINE,
		params.TopK,
		sp,
	)
	if err != nil {
		span.RecordError(err)
		metrics.MilvusSearchTotal.WithLabelValues(CollectionMemoryVectors, "error").Inc()
		return nil, fmt.Errorf("failed to search: %w", err)
	}

	// 解析结果
	var searchResults []*SearchResult
	for _, result := range results {
		for i := 0; i < result.ResultCount; i++ {
			sr := &SearchResult{
				Score: result.Scores[i],
			}

			if idCol, ok := result.Fields.GetColumn("id").(*entity.ColumnVarChar); ok {
				sr.ID = idCol.Data()[i]
			}
			if contentCol, ok := result.Fields.GetColumn("content").(*entity.ColumnVarChar); ok {
				sr.Content = contentCol.Data()[i]
			}
			if chapterCol, ok := result.Fields.GetColumn("chapter_id").(*entity.ColumnVarChar); ok {
				sr.ChapterID = chapterCol.Data()[i]
			}
			if typeCol, ok := result.Fields.GetColumn("memory_type").(*entity.ColumnVarChar); ok {
				sr.MemoryType = typeCol.Data()[i]
			}
			if timeCol, ok := result.Fields.GetColumn("story_timeline").(*entity.ColumnInt64); ok {
				sr.StoryTimeline = timeCol.Data()[i]
			}

			searchResults = append(searchResults, sr)
		}
	}

	span.SetAttributes(attribute.Int("result_count", len(searchResults)))
	metrics.MilvusSearchTotal.WithLabelValues(CollectionMemoryVectors, "success").Inc()
	return searchResults, nil
}

// InsertVectors 插入记忆片段向量
func (r *Repository) InsertVectors(ctx context.Context, tenantID, projectID string, vectors []*MemoryVector) error {
	if r == nil || r.client == nil || r.client.milvus == nil {
		return fmt.Errorf("milvus client not configured")
	}
	ctx, span := tracer.Start(ctx, "milvus.InsertVectors",
		trace.WithAttributes(
			attribute.String("tenant_id", tenantID),
			attribute.String("project_id", projectID),
			attribute.Int("count", len(vectors)),
		))
	defer span.End()

	if len(vectors) == 0 {
		return nil
	}

	collName := r.client.CollectionName(CollectionMemoryVectors)
	partitionName := PartitionName(tenantID, projectID)

	// 确保分区存在
	has, _ := r.client.milvus.HasPartition(ctx, collName, partitionName)
	if !has {
		if err := r.CreatePartition(ctx, CollectionMemoryVectors, tenantID, projectID); err != nil {
			return err
		}
	}

	// 准备数据
	ids := make([]string, len(vectors))
	embeddings := make([][]float32, len(vectors))
	tenantIDs := make([]string, len(vectors))
	projectIDs := make([]string, len(vectors))
	chapterIDs := make([]string, len(vectors))
	memoryTypes := make([]string, len(vectors))
	timelines := make([]int64, len(vectors))
	importances := make([]float32, len(vectors))
	contents := make([]string, len(vectors))

	for i, v := range vectors {
		ids[i] = v.ID
		embeddings[i] = v.Vector
		tenantIDs[i] = v.TenantID
		projectIDs[i] = v.ProjectID
		chapterIDs[i] = v.ChapterID
		memoryTypes[i] = v.MemoryType
		timelines[i] = v.StoryTimeline
		importances[i] = v.Importance
		contents[i] = v.Content
	}

	// 构建列
	idCol := entity.NewColumnVarChar("id", ids)
	vectorCol := entity.NewColumnFloatVector("vector", VectorDimension, embeddings)
	tenantCol := entity.NewColumnVarChar("tenant_id", tenantIDs)
	projectCol := entity.NewColumnVarChar("project_id", projectIDs)
	chapterCol := entity.NewColumnVarChar("chapter_id", chapterIDs)
	typeCol := entity.NewColumnVarChar("memory_type", memoryTypes)
	timelineCol := entity.NewColumnInt64("story_timeline", timelines)
	importanceCol := entity.NewColumnFloat("importance", importances)
	contentCol := entity.NewColumnVarChar("content", contents)

	// 插入
	_, err := r.client.milvus.Insert(ctx, collName, partitionName,
		idCol, vectorCol, tenantCol, projectCol, chapterCol, typeCol, timelineCol, importanceCol, contentCol)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to insert vectors: %w", err)
	}

	return nil
}

// DeleteByChapter 删除章节的全部向量
func (r *Repository) DeleteByChapter(ctx context.Context, tenantID, projectID, chapterID string) error {
	if r == nil || r.client == nil || r.client.milvus == nil {
		return fmt.Errorf("milvus client not configured")
	}
	ctx, span := tracer.Start(ctx, "milvus.DeleteByChapter",
		trace.WithAttributes(
			attribute.String("chapter_id", chapterID),
		))
	defer span.End()

	collName := r.client.CollectionName(CollectionMemoryVectors)
	partitionName := PartitionName(tenantID, projectID)

	if has, err := r.client.milvus.HasPartition(ctx, collName, partitionName); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to check partition: %w", err)
	} else if !has {
		return nil
	}

	filter := fmt.Sprintf(`chapter_id == "%s"`, chapterID)

	err := r.client.milvus.Delete(ctx, collName, partitionName, filter)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to delete vectors: %w", err)
	}

	return nil
}

// DeleteByIDs 按 ID 删除向量
func (r *Repository) DeleteByIDs(ctx context.Context, tenantID, projectID string, ids []string) error {
	if r == nil || r.client == nil || r.client.milvus == nil {
		return fmt.Errorf("milvus client not configured")
	}
	if len(ids) == 0 {
		return nil
	}
	ctx, span := tracer.Start(ctx, "milvus.DeleteByIDs",
		trace.WithAttributes(attribute.Int("count", len(ids))))
	defer span.End()

	collName := r.client.CollectionName(CollectionMemoryVectors)
	partitionName := PartitionName(tenantID, projectID)

	if has, err := r.client.milvus.HasPartition(ctx, collName, partitionName); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to check partition: %w", err)
	} else if !has {
		return nil
	}

	quoted := make([]string, len(ids))
	for i, id := range ids {
		quoted[i] = fmt.Sprintf(`"%s"`, id)
	}
	filter := fmt.Sprintf(`id in [%s]`, strings.Join(quoted, ", "))

	if err := r.client.milvus.Delete(ctx, collName, partitionName, filter); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to delete vectors by ids: %w", err)
	}
	return nil
}

// DropProjectPartition 删除项目分区（项目级联删除时调用）
func (r *Repository) DropProjectPartition(ctx context.Context, tenantID, projectID string) error {
	if r == nil || r.client == nil || r.client.milvus == nil {
		return fmt.Errorf("milvus client not configured")
	}
	ctx, span := tracer.Start(ctx, "milvus.DropProjectPartition",
		trace.WithAttributes(
			attribute.String("tenant_id", tenantID),
			attribute.String("project_id", projectID),
		))
	defer span.End()

	collName := r.client.CollectionName(CollectionMemoryVectors)
	partitionName := PartitionName(tenantID, projectID)

	if has, err := r.client.milvus.HasPartition(ctx, collName, partitionName); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to check partition: %w", err)
	} else if !has {
		return nil
	}

	if err := r.client.milvus.ReleasePartitions(ctx, collName, []string{partitionName}); err != nil {
		span.RecordError(err)
	}
	if err := r.client.milvus.DropPartition(ctx, collName, partitionName); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to drop partition: %w", err)
	}
	return nil
}

// EnsureMemoryVectorsCollection 确保 memory_vectors 集合与索引可用（不存在则创建）。
// 约束：不会做 drop/rebuild 等破坏性操作。
func (r *Repository) EnsureMemoryVectorsCollection(ctx context.Context) error {
	if r == nil || r.client == nil || r.client.milvus == nil {
		return fmt.Errorf("milvus client not configured")
	}

	exists, err := r.client.HasCollection(ctx, CollectionMemoryVectors)
	if err != nil {
		return err
	}
	if !exists {
		if err := r.CreateCollection(ctx, MemoryVectorsSchema()); err != nil {
			return err
		}
		// 新建集合时创建索引；若失败，允许后续由运维介入。
		_ = r.CreateIndex(ctx, CollectionMemoryVectors)
	}

	// 尝试确保集合已加载（若已加载，Milvus 会返回成功）
	return r.client.LoadCollection(ctx, CollectionMemoryVectors)
}
