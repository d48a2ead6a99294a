package memory

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"novelforge-api/internal/config"
	"novelforge-api/internal/domain/entity"
	"novelforge-api/internal/domain/repository"
)

// fakeFragments 只实现测试用到的方法，其余方法走嵌入的 nil 接口（调用即 panic）
type fakeFragments struct {
	repository.MemoryFragmentRepository

	created   []*entity.MemoryFragment
	createErr error

	recent       []*entity.MemoryFragment
	byVectorIDs  []*entity.MemoryFragment
	foreshadows  []*entity.MemoryFragment
	charEvents   []*entity.MemoryFragment
	plotPoints   []*entity.MemoryFragment
	deletedCount int64
}

func (f *fakeFragments) CreateBatch(_ context.Context, fragments []*entity.MemoryFragment) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.created = append(f.created, fragments...)
	return nil
}

func (f *fakeFragments) ListRecent(_ context.Context, _ string, _, _ int) ([]*entity.MemoryFragment, error) {
	return f.recent, nil
}

func (f *fakeFragments) ListByVectorIDs(_ context.Context, _ string, _ []string) ([]*entity.MemoryFragment, error) {
	return f.byVectorIDs, nil
}

func (f *fakeFragments) ListPlantedForeshadows(_ context.Context, _ string, _ int) ([]*entity.MemoryFragment, error) {
	return f.foreshadows, nil
}

func (f *fakeFragments) ListLatestCharacterEvents(_ context.Context, _ string, _ int, _ []string) ([]*entity.MemoryFragment, error) {
	return f.charEvents, nil
}

func (f *fakeFragments) ListTopPlotPoints(_ context.Context, _ string, _, _, _ int) ([]*entity.MemoryFragment, error) {
	return f.plotPoints, nil
}

func (f *fakeFragments) DeleteByChapter(context.Context, string, string) (int64, error) {
	return f.deletedCount, nil
}

type fakeChapters struct {
	repository.ChapterRepository

	recent []*entity.Chapter
}

func (f *fakeChapters) ListRecentWithContent(_ context.Context, _ string, _, _ int) ([]*entity.Chapter, error) {
	return f.recent, nil
}

type fakeEmbedder struct {
	vectors [][]float32
	err     error
	calls   int
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if f.vectors != nil {
		return f.vectors, nil
	}
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = []float32{0.1, 0.2}
	}
	return out, nil
}

type fakeVectorStore struct {
	inserted      []*VectorFragment
	insertErr     error
	searchResults []*VectorSearchResult
	searchParams  *VectorSearchParams
}

func (f *fakeVectorStore) EnsureCollection(context.Context) error { return nil }

func (f *fakeVectorStore) Insert(_ context.Context, _, _ string, fragments []*VectorFragment) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	f.inserted = append(f.inserted, fragments...)
	return nil
}

func (f *fakeVectorStore) Search(_ context.Context, params *VectorSearchParams) ([]*VectorSearchResult, error) {
	f.searchParams = params
	return f.searchResults, nil
}

func (f *fakeVectorStore) DeleteByChapter(context.Context, string, string, string) error { return nil }
func (f *fakeVectorStore) DeleteByIDs(context.Context, string, string, []string) error  { return nil }
func (f *fakeVectorStore) DropProject(context.Context, string, string) error            { return nil }

func testMemoryConfig() *config.MemoryConfig {
	return &config.MemoryConfig{
		RecentChapterCount: 3,
		SearchTopK:         10,
		MinImportance:      0.3,
		PlotPointWindow:    10,
		ContextMaxChars:    6000,
	}
}

func strPtr(s string) *string { return &s }

func TestAddBatchDedupAndNormalize(t *testing.T) {
	frags := &fakeFragments{}
	svc := NewService(frags, &fakeChapters{}, nil, nil, testMemoryConfig())

	count, err := svc.AddBatch(context.Background(), "t-1", "p-1", []*entity.MemoryFragment{
		{ChapterID: strPtr("ch-1"), MemoryType: entity.MemoryTypeHook, Content: " 悬念一 ", Importance: 1.5},
		{ChapterID: strPtr("ch-1"), MemoryType: entity.MemoryTypeHook, Content: "悬念一"}, // 重复
		{ChapterID: strPtr("ch-1"), MemoryType: entity.MemoryTypePlotPoint, Content: "  "}, // 空内容
		nil,
		{ChapterID: strPtr("ch-1"), MemoryType: entity.MemoryTypePlotPoint, Content: "转折", Importance: -0.2},
	})

	require.NoError(t, err)
	assert.Equal(t, 2, count)
	require.Len(t, frags.created, 2)
	for _, f := range frags.created {
		assert.Equal(t, "t-1", f.TenantID)
		assert.Equal(t, "p-1", f.ProjectID)
		assert.NotEmpty(t, f.ID)
	}
	assert.InDelta(t, 1.0, frags.created[0].Importance, 1e-9, "重要度钳制到上限")
	assert.Zero(t, frags.created[1].Importance, "重要度钳制到下限")
}

func TestAddBatchRequiresScope(t *testing.T) {
	svc := NewService(&fakeFragments{}, &fakeChapters{}, nil, nil, testMemoryConfig())

	_, err := svc.AddBatch(context.Background(), "", "p-1", []*entity.MemoryFragment{{Content: "x"}})
	require.Error(t, err)
	_, err = svc.AddBatch(context.Background(), "t-1", " ", []*entity.MemoryFragment{{Content: "x"}})
	require.Error(t, err)
}

func TestAddBatchVectorIndexing(t *testing.T) {
	frags := &fakeFragments{}
	store := &fakeVectorStore{}
	svc := NewService(frags, &fakeChapters{}, &fakeEmbedder{}, store, testMemoryConfig())
	require.True(t, svc.VectorEnabled())

	count, err := svc.AddBatch(context.Background(), "t-1", "p-1", []*entity.MemoryFragment{
		{ChapterID: strPtr("ch-1"), MemoryType: entity.MemoryTypeChapterSummary, Content: "概要", StoryTimeline: 3},
	})

	require.NoError(t, err)
	assert.Equal(t, 1, count)
	require.Len(t, store.inserted, 1)
	assert.Equal(t, "ch-1", store.inserted[0].ChapterID)
	assert.Equal(t, int64(3), store.inserted[0].StoryTimeline)
	assert.Equal(t, store.inserted[0].ID, frags.created[0].VectorID, "向量 ID 应回填")
}

func TestAddBatchVectorDegradation(t *testing.T) {
	frags := &fakeFragments{}
	svc := NewService(frags, &fakeChapters{}, &fakeEmbedder{err: errors.New("embedding down")}, &fakeVectorStore{}, testMemoryConfig())

	count, err := svc.AddBatch(context.Background(), "t-1", "p-1", []*entity.MemoryFragment{
		{MemoryType: entity.MemoryTypeHook, Content: "悬念"},
	})

	require.NoError(t, err, "向量索引失败不应阻塞主存储")
	assert.Equal(t, 1, count)
	require.Len(t, frags.created, 1)
	assert.Empty(t, frags.created[0].VectorID)
}

func TestSearchDegradesToRecency(t *testing.T) {
	frags := &fakeFragments{
		recent: []*entity.MemoryFragment{{ID: "m-1", Content: "最近记忆"}},
	}
	svc := NewService(frags, &fakeChapters{}, nil, nil, testMemoryConfig())

	out, err := svc.Search(context.Background(), SearchInput{
		TenantID:  "t-1",
		ProjectID: "p-1",
		Query:     "主角的伏笔",
	})

	require.NoError(t, err)
	assert.Equal(t, ErrVectorDisabled.Error(), out.DisabledReason)
	require.Len(t, out.Fragments, 1)
	assert.Equal(t, "m-1", out.Fragments[0].ID)
}

func TestSearchVectorPath(t *testing.T) {
	frags := &fakeFragments{
		byVectorIDs: []*entity.MemoryFragment{
			{ID: "m-1", VectorID: "v-1", Content: "相关记忆"},
		},
	}
	store := &fakeVectorStore{
		searchResults: []*VectorSearchResult{{ID: "v-1", Score: 0.25}},
	}
	svc := NewService(frags, &fakeChapters{}, &fakeEmbedder{}, store, testMemoryConfig())

	out, err := svc.Search(context.Background(), SearchInput{
		TenantID:       "t-1",
		ProjectID:      "p-1",
		Query:          "主角的伏笔",
		BeforeTimeline: 5,
		MemoryTypes:    []entity.MemoryType{entity.MemoryTypeForeshadow},
	})

	require.NoError(t, err)
	assert.Empty(t, out.DisabledReason)
	require.Len(t, out.Fragments, 1)
	assert.InDelta(t, 0.75, out.Scores["m-1"], 1e-6, "COSINE 距离应转为相似度")

	require.NotNil(t, store.searchParams)
	assert.Equal(t, int64(5), store.searchParams.BeforeTimeline)
	assert.Equal(t, []string{"foreshadow"}, store.searchParams.MemoryTypes)
	assert.InDelta(t, 0.3, store.searchParams.MinImportance, 1e-9)
}

func TestSearchValidatesInput(t *testing.T) {
	svc := NewService(&fakeFragments{}, &fakeChapters{}, nil, nil, testMemoryConfig())

	_, err := svc.Search(context.Background(), SearchInput{TenantID: "t-1", ProjectID: "p-1"})
	require.Error(t, err, "缺少查询词")

	_, err = svc.Search(context.Background(), SearchInput{Query: "q", ProjectID: "p-1"})
	require.Error(t, err, "缺少租户")
}

func TestBuildContextAssemblesSlices(t *testing.T) {
	frags := &fakeFragments{
		foreshadows: []*entity.MemoryFragment{
			{Content: "信的来历", IsForeshadow: entity.ForeshadowPlanted, StoryTimeline: 2},
		},
		charEvents: []*entity.MemoryFragment{
			{Content: "林远：平静 → 警觉", RelatedCharacters: []string{"林远"}},
		},
		plotPoints: []*entity.MemoryFragment{
			{Content: "收到匿名信", Importance: 0.8},
		},
	}
	chapters := &fakeChapters{
		// 仓储按章节号倒序返回
		recent: []*entity.Chapter{
			{ChapterNumber: 4, Title: "追查", Content: "第四章全文"},
			{ChapterNumber: 3, Title: "雪夜", Content: "第三章全文"},
			{ChapterNumber: 2, Title: "开端", Content: strings.Repeat("早", 300), Summary: ""},
		},
	}
	svc := NewService(frags, chapters, nil, nil, testMemoryConfig())

	bundle, err := svc.BuildContext(context.Background(), BuildContextInput{
		TenantID:       "t-1",
		ProjectID:      "p-1",
		CurrentChapter: 5,
		CharacterNames: []string{"林远"},
	})

	require.NoError(t, err)
	require.Len(t, bundle.RecentContext, 3)
	// 节选按章节号正序；末两章全文，更早章节截断摘要
	assert.Equal(t, 2, bundle.RecentContext[0].ChapterNumber)
	assert.False(t, bundle.RecentContext[0].Full)
	assert.Len(t, []rune(bundle.RecentContext[0].Content), 200)
	assert.True(t, bundle.RecentContext[1].Full)
	assert.True(t, bundle.RecentContext[2].Full)
	assert.Equal(t, 4, bundle.RecentContext[2].ChapterNumber)

	assert.Len(t, bundle.Foreshadows, 1)
	assert.Len(t, bundle.CharacterStates, 1)
	assert.Len(t, bundle.PlotPoints, 1)
	assert.Empty(t, bundle.RelevantMemories, "未提供大纲时不做语义检索")

	assert.Equal(t, 3, bundle.Stats.RecentContext.Count)
	assert.Equal(t, 1, bundle.Stats.PlotPoints.Count)
	assert.Positive(t, bundle.Stats.TotalChars)
}

func TestBuildContextValidatesChapterNumber(t *testing.T) {
	svc := NewService(&fakeFragments{}, &fakeChapters{}, nil, nil, testMemoryConfig())
	_, err := svc.BuildContext(context.Background(), BuildContextInput{
		TenantID:       "t-1",
		ProjectID:      "p-1",
		CurrentChapter: 0,
	})
	require.Error(t, err)
}

func TestApplyBudgetCompressesFullChapters(t *testing.T) {
	cfg := testMemoryConfig()
	cfg.ContextMaxChars = 900
	svc := NewService(&fakeFragments{}, &fakeChapters{}, nil, nil, cfg)

	bundle := &ContextBundle{
		RecentContext: []ChapterExcerpt{
			{ChapterNumber: 3, Content: strings.Repeat("甲", 1000), Full: true},
			{ChapterNumber: 4, Content: strings.Repeat("乙", 1000), Full: true},
		},
	}
	svc.applyBudget(bundle)

	for _, excerpt := range bundle.RecentContext {
		assert.False(t, excerpt.Full, "超预算后全文应压缩")
		assert.LessOrEqual(t, len([]rune(excerpt.Content)), 450)
		assert.GreaterOrEqual(t, len([]rune(excerpt.Content)), 200, "压缩下限为摘要长度")
	}
}

func TestRenderSections(t *testing.T) {
	bundle := &ContextBundle{
		RecentContext: []ChapterExcerpt{
			{ChapterNumber: 2, Title: "开端", Content: "概要内容"},
			{ChapterNumber: 3, Title: "雪夜", Content: "全文内容", Full: true},
		},
		Foreshadows: []*entity.MemoryFragment{
			{Content: "信的来历", StoryTimeline: 2},
		},
		CharacterStates: []*entity.MemoryFragment{
			{Content: "平静 → 警觉", RelatedCharacters: []string{"林远"}},
		},
	}

	got := bundle.RenderSections()
	assert.Contains(t, got, "【前文回顾】")
	assert.Contains(t, got, "第2章《开端》概要：概要内容")
	assert.Contains(t, got, "第3章《雪夜》全文：")
	assert.Contains(t, got, "【未回收伏笔】")
	assert.Contains(t, got, "(第2章埋设) 信的来历")
	assert.Contains(t, got, "- 林远：平静 → 警觉")
	assert.NotContains(t, got, "【相关记忆】", "空切片不输出")
	assert.NotContains(t, got, "【近期关键情节】")

	var empty *ContextBundle
	assert.Empty(t, empty.RenderSections())
}
