package generation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"novelforge-api/internal/config"
	errs "novelforge-api/pkg/errors"
)

func TestPlanBatches(t *testing.T) {
	tests := []struct {
		name      string
		total     int
		batchSize int
		want      []BatchSpec
	}{
		{
			name: "整除", total: 6, batchSize: 3,
			want: []BatchSpec{{0, 0, 3}, {1, 3, 3}},
		},
		{
			name: "末批承接余数", total: 7, batchSize: 3,
			want: []BatchSpec{{0, 0, 3}, {1, 3, 3}, {2, 6, 1}},
		},
		{
			name: "单批", total: 2, batchSize: 5,
			want: []BatchSpec{{0, 0, 2}},
		},
		{name: "total 为零", total: 0, batchSize: 3, want: nil},
		{name: "batchSize 非法", total: 3, batchSize: 0, want: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, PlanBatches(tt.total, tt.batchSize))
		})
	}
}

func fastBatchConfig() *config.GenerationConfig {
	return &config.GenerationConfig{
		MaxRetries: 3,
		RetryBackoff: config.BackoffConfig{
			Initial:    time.Millisecond,
			Max:        5 * time.Millisecond,
			Multiplier: 2,
		},
	}
}

func TestBatchRunnerRetriesThenSucceeds(t *testing.T) {
	r := NewBatchRunner("test", fastBatchConfig())

	attempts := make(map[int][]int)
	err := r.Run(context.Background(), PlanBatches(4, 2), func(_ context.Context, spec BatchSpec, attempt int) error {
		attempts[spec.Index] = append(attempts[spec.Index], attempt)
		if spec.Index == 1 && attempt < 3 {
			return errors.New("transient")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, []int{1}, attempts[0])
	assert.Equal(t, []int{1, 2, 3}, attempts[1], "重试时 attempt 应递增")
}

func TestBatchRunnerExhaustsRetries(t *testing.T) {
	r := NewBatchRunner("test", fastBatchConfig())

	calls := 0
	err := r.Run(context.Background(), PlanBatches(2, 2), func(context.Context, BatchSpec, int) error {
		calls++
		return errors.New("always fails")
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, errs.CodeGenerationFailed, errs.AsAppError(err).Code)
}

func TestBatchRunnerStopsOnCancel(t *testing.T) {
	r := NewBatchRunner("test", fastBatchConfig())

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := r.Run(ctx, PlanBatches(2, 2), func(context.Context, BatchSpec, int) error {
		calls++
		cancel()
		return errors.New("fail after cancel")
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls, "取消后不应再重试")
	assert.Equal(t, errs.CodeCancelled, errs.AsAppError(err).Code)
}

func TestBatchRunnerCancelledErrorNotRetried(t *testing.T) {
	r := NewBatchRunner("test", fastBatchConfig())

	calls := 0
	err := r.Run(context.Background(), PlanBatches(2, 2), func(context.Context, BatchSpec, int) error {
		calls++
		return errs.ErrCancelled
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestFitCount(t *testing.T) {
	got, err := FitCount([]int{1, 2, 3, 4}, 3)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, got, "超出应截断")

	got, err = FitCount([]int{1, 2, 3}, 3)
	require.NoError(t, err)
	assert.Len(t, got, 3)

	_, err = FitCount([]int{1}, 3)
	require.Error(t, err)
	assert.Equal(t, errs.CodeValidationFailed, errs.AsAppError(err).Code)
}

func TestCleanJSONPayload(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "纯 JSON 原样返回",
			in:   `{"a":1}`,
			want: `{"a":1}`,
		},
		{
			name: "剥离代码围栏",
			in:   "```json\n{\"a\":1}\n```",
			want: `{"a":1}`,
		},
		{
			name: "截取夹杂文本中的对象",
			in:   "好的，以下是结果：{\"a\":1} 希望有帮助",
			want: `{"a":1}`,
		},
		{
			name: "截取数组",
			in:   "结果如下 [1,2,3] 完毕",
			want: `[1,2,3]`,
		},
		{
			name: "无围栏语言标注",
			in:   "```\n[{\"b\":2}]\n```",
			want: `[{"b":2}]`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CleanJSONPayload(tt.in))
		})
	}
}
