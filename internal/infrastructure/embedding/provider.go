// Package embedding 提供 Embedding 服务客户端
package embedding

import (
	"context"
	"fmt"

	einoembedding "github.com/cloudwego/eino/components/embedding"

	"novelforge-api/internal/config"
)

// Embedder 文本向量化接口
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// NewEmbedder 根据配置创建 Embedder
// provider 为 openai 时走 Eino 的 OpenAI 兼容适配器，否则走自建 embed 服务
func NewEmbedder(ctx context.Context, cfg *config.EmbeddingConfig) (Embedder, error) {
	switch cfg.Provider {
	case "openai":
		inner, err := NewEinoEmbedder(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return &einoAdapter{inner: inner, batchSize: cfg.BatchSize}, nil
	case "", "custom", "http":
		return NewClient(cfg), nil
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", cfg.Provider)
	}
}

// einoAdapter 将 Eino Embedder 适配为 [][]float32 接口
type einoAdapter struct {
	inner     einoembedding.Embedder
	batchSize int
}

func (a *einoAdapter) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	batchSize := a.batchSize
	if batchSize <= 0 {
		batchSize = 16
	}

	var all [][]float32
	for i := 0; i < len(texts); i += batchSize {
		end := i + batchSize
		if end > len(texts) {
			end = len(texts)
		}

		vectors, err := a.inner.EmbedStrings(ctx, texts[i:end])
		if err != nil {
			return nil, fmt.Errorf("failed to embed texts: %w", err)
		}
		for _, vec := range vectors {
			converted := make([]float32, len(vec))
			for j, v := range vec {
				converted[j] = float32(v)
			}
			all = append(all, converted)
		}
	}

	return all, nil
}
