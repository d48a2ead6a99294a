package generation

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"novelforge-api/internal/config"
	errs "novelforge-api/pkg/errors"
	"novelforge-api/pkg/logger"
	"novelforge-api/pkg/metrics"
)

const (
	defaultBatchRetries    = 3
	defaultBatchBaseDelay  = time.Second
	defaultBatchMaxDelay   = 10 * time.Second
	defaultBatchMultiplier = 2.0
)

// BatchSpec 单个批次
type BatchSpec struct {
	// Index 批次序号，从 0 开始
	Index int
	// Start 批内首条在整体中的偏移
	Start int
	// Count 本批期望条数
	Count int
}

// PlanBatches 把 total 均分为 batchSize 大小的批次，末批承接余数
func PlanBatches(total, batchSize int) []BatchSpec {
	if total <= 0 || batchSize <= 0 {
		return nil
	}
	specs := make([]BatchSpec, 0, (total+batchSize-1)/batchSize)
	for start := 0; start < total; start += batchSize {
		count := batchSize
		if start+count > total {
			count = total - start
		}
		specs = append(specs, BatchSpec{Index: len(specs), Start: start, Count: count})
	}
	return specs
}

// BatchFunc 执行单个批次
//
// attempt 从 1 开始，重试时递增，回调可据此升级提示词约束。
// 批次成功返回后由回调自行提交，下一批重建上下文。
type BatchFunc func(ctx context.Context, spec BatchSpec, attempt int) error

// BatchRunner 顺序批次执行器，单批失败时按退避重试
type BatchRunner struct {
	kind       string
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
	multiplier float64
}

// NewBatchRunner 创建批次执行器，kind 用于指标维度
func NewBatchRunner(kind string, cfg *config.GenerationConfig) *BatchRunner {
	r := &BatchRunner{
		kind:       kind,
		maxRetries: defaultBatchRetries,
		baseDelay:  defaultBatchBaseDelay,
		maxDelay:   defaultBatchMaxDelay,
		multiplier: defaultBatchMultiplier,
	}
	if cfg != nil {
		if cfg.MaxRetries > 0 {
			r.maxRetries = cfg.MaxRetries
		}
		if cfg.RetryBackoff.Initial > 0 {
			r.baseDelay = cfg.RetryBackoff.Initial
		}
		if cfg.RetryBackoff.Max > 0 {
			r.maxDelay = cfg.RetryBackoff.Max
		}
		if cfg.RetryBackoff.Multiplier > 0 {
			r.multiplier = cfg.RetryBackoff.Multiplier
		}
	}
	return r
}

// Run 顺序执行全部批次，任一批次重试耗尽即终止
func (r *BatchRunner) Run(ctx context.Context, specs []BatchSpec, fn BatchFunc) error {
	for _, spec := range specs {
		if err := r.runOne(ctx, spec, fn); err != nil {
			return err
		}
	}
	return nil
}

func (r *BatchRunner) runOne(ctx context.Context, spec BatchSpec, fn BatchFunc) error {
	var lastErr error
	for attempt := 1; attempt <= r.maxRetries; attempt++ {
		if attempt > 1 {
			metrics.GenerationBatchRetries.WithLabelValues(r.kind).Inc()
			select {
			case <-ctx.Done():
				return errs.ErrCancelled.WithError(ctx.Err())
			case <-time.After(r.delay(attempt - 1)):
			}
		}

		err := fn(ctx, spec, attempt)
		if err == nil {
			return nil
		}
		if !isRetryableBatchError(err) {
			return err
		}

		lastErr = err
		logger.Warn(ctx, "generation batch failed",
			"kind", r.kind,
			"batch", spec.Index,
			"attempt", attempt,
			"error", err.Error(),
		)
	}

	return errs.ErrGenerationFailed.
		WithMessage(fmt.Sprintf("第 %d 批连续 %d 次失败", spec.Index+1, r.maxRetries)).
		WithError(lastErr)
}

func (r *BatchRunner) delay(retry int) time.Duration {
	d := time.Duration(float64(r.baseDelay) * math.Pow(r.multiplier, float64(retry-1)))
	if d > r.maxDelay {
		d = r.maxDelay
	}
	return d
}

// isRetryableBatchError 取消不重试，其余失败（LLM、解析、条数不符）重试
func isRetryableBatchError(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	var appErr *errs.AppError
	if errors.As(err, &appErr) && appErr.Code == errs.CodeCancelled {
		return false
	}
	return true
}

// FitCount 校验批次条数：超出截断，不足返回错误触发重试
func FitCount[T any](items []T, want int) ([]T, error) {
	if len(items) > want {
		return items[:want], nil
	}
	if len(items) < want {
		return nil, errs.ErrValidationFailed.
			WithMessage(fmt.Sprintf("期望生成 %d 条，实际返回 %d 条", want, len(items)))
	}
	return items, nil
}

// CleanJSONPayload 清理模型返回的 JSON 载荷
//
// 先剥离 Markdown 代码围栏，再截取最大 JSON 子串兜底。
func CleanJSONPayload(raw string) string {
	return extractJSONValue(stripCodeFence(strings.TrimSpace(raw)))
}

func stripCodeFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.Index(s, "\n"); i >= 0 {
		s = s[i+1:]
	}
	if i := strings.LastIndex(s, "```"); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}
