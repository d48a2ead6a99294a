// Package milvus 提供 Milvus 向量数据库访问层实现
package milvus

import (
	"strings"

	"github.com/milvus-io/milvus-sdk-go/v2/entity"
)

const (
	// CollectionMemoryVectors 记忆片段向量集合
	CollectionMemoryVectors = "memory_vectors"

	// VectorDimension 向量维度
	VectorDimension = 1024
)

// MemoryVectorsSchema 记忆片段 Collection Schema
// id 与 PostgreSQL memory_fragments 行共享同一 UUID
func MemoryVectorsSchema() *entity.Schema {
	return &entity.Schema{
		CollectionName: CollectionMemoryVectors,
		Description:    "Story memory fragments for semantic retrieval",
		Fields: []*entity.Field{
			{
				Name:       "id",
				DataType:   entity.FieldTypeVarChar,
				PrimaryKey: true,
				AutoID:     false,
				TypeParams: map[string]string{
					"max_length": "64",
				},
			},
			{
				Name:     "vector",
				DataType: entity.FieldTypeFloatVector,
				TypeParams: map[string]string{
					"dim": "1024",
				},
			},
			{
				Name:     "tenant_id",
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "64",
				},
			},
			{
				Name:     "project_id",
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "64",
				},
			},
			{
				Name:     "chapter_id",
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "64",
				},
			},
			{
				Name:     "memory_type",
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "32",
				},
			},
			{
				Name:     "story_timeline",
				DataType: entity.FieldTypeInt64,
			},
			{
				Name:     "importance",
				DataType: entity.FieldTypeFloat,
			},
			{
				Name:     "content",
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "65535",
				},
			},
		},
	}
}

// MemoryVector 记忆片段向量数据结构
type MemoryVector struct {
	ID            string    `json:"id"`
	Vector        []float32 `json:"vector"`
	TenantID      string    `json:"tenant_id"`
	ProjectID     string    `json:"project_id"`
	ChapterID     string    `json:"chapter_id"`
	MemoryType    string    `json:"memory_type"`
	StoryTimeline int64     `json:"story_timeline"`
	Importance    float32   `json:"importance"`
	Content       string    `json:"content"`
}

// PartitionName 生成分区名称
// Milvus 分区名只允许字母数字下划线，UUID 中的连字符需替换
func PartitionName(tenantID, projectID string) string {
	replacer := strings.NewReplacer("-", "_")
	return "tenant_" + replacer.Replace(tenantID) + "_proj_" + replacer.Replace(projectID)
}
