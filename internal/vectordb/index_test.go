package vectordb

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/fyerfyer/advisor-rag/internal/document"
	"github.com/fyerfyer/advisor-rag/internal/embedding"
	"github.com/fyerfyer/advisor-rag/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var productChunks = []document.Chunk{
	{Ordinal: 0, Text: "AXA Retirement Builder provides guaranteed lifetime pension income after retirement"},
	{Ordinal: 1, Text: "Education Fund plan saves tuition money for children attending university"},
	{Ordinal: 2, Text: "Health Shield covers hospital confinement, surgery and critical illness emergencies"},
	{Ordinal: 3, Text: "Wealth Accelerator invests premiums in equity funds for aggressive growth"},
}

func newLocalEmbedder(t *testing.T) embedding.Client {
	client, err := embedding.NewLocalClient(embedding.WithDimensions(512))
	require.NoError(t, err)
	return client
}

func TestBuildAndQuerySelfRetrieval(t *testing.T) {
	ctx := context.Background()
	embedder := newLocalEmbedder(t)

	idx, err := Build(ctx, embedder, productChunks, WithLogger(logger.Discard()), WithConcurrency(2), WithBatchSize(3))
	require.NoError(t, err)
	defer idx.Close()

	stats := idx.Stats()
	assert.Equal(t, 4, stats.Chunks)
	assert.Equal(t, 0, stats.Failed)
	assert.Equal(t, 512, stats.Dimension)
	assert.Equal(t, "memory", stats.Backend)
	assert.Equal(t, "local-hash", stats.Model)

	for _, c := range productChunks {
		hits, err := idx.Query(ctx, c.Text, 1)
		require.NoError(t, err)
		require.Len(t, hits, 1)
		assert.Equal(t, c.Ordinal, hits[0].Chunk.Ordinal)
		assert.InDelta(t, 1.0, hits[0].Score, 1e-4)
	}

	hits, err := idx.Query(ctx, "hospital surgery coverage", 4)
	require.NoError(t, err)
	require.Len(t, hits, 4)
	assert.Equal(t, 2, hits[0].Chunk.Ordinal)
	for i := 1; i < len(hits); i++ {
		assert.GreaterOrEqual(t, hits[i-1].Score, hits[i].Score)
	}

	// k大于片段数时返回全部
	hits, err = idx.Query(ctx, "retirement", 20)
	require.NoError(t, err)
	assert.Len(t, hits, 4)

	_, err = idx.Query(ctx, "retirement", 0)
	assert.Error(t, err)
}

func TestQueryIsDeterministic(t *testing.T) {
	ctx := context.Background()
	idx, err := Build(ctx, newLocalEmbedder(t), productChunks, WithLogger(logger.Discard()))
	require.NoError(t, err)

	first, err := idx.Query(ctx, "growth funds for my children", 3)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := idx.Query(ctx, "growth funds for my children", 3)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestBuildSkipsFailedChunks(t *testing.T) {
	ctx := context.Background()
	local := newLocalEmbedder(t)

	m := embedding.NewMockClient(t)
	m.EXPECT().Name().Return("mock").Maybe()
	m.EXPECT().EmbedBatch(mock.Anything, mock.Anything).RunAndReturn(
		func(ctx context.Context, texts []string) ([][]float32, error) {
			for _, text := range texts {
				if strings.Contains(text, "Health") {
					return nil, embedding.NewEmbeddingError(embedding.ErrCodeServerError, "boom")
				}
			}
			return local.EmbedBatch(ctx, texts)
		})
	m.EXPECT().Embed(mock.Anything, mock.Anything).RunAndReturn(
		func(ctx context.Context, text string) ([]float32, error) {
			if strings.Contains(text, "Health") {
				return nil, embedding.NewEmbeddingError(embedding.ErrCodeInvalidRequest, "rejected")
			}
			return local.Embed(ctx, text)
		}).Maybe()

	idx, err := Build(ctx, m, productChunks, WithLogger(logger.Discard()), WithBatchSize(2), WithConcurrency(1))
	require.NoError(t, err)

	stats := idx.Stats()
	assert.Equal(t, 3, stats.Chunks)
	assert.Equal(t, 1, stats.Failed)

	hits, err := idx.Query(ctx, "hospital confinement surgery", 4)
	require.NoError(t, err)
	for _, h := range hits {
		assert.NotEqual(t, 2, h.Chunk.Ordinal)
	}

	// 查询嵌入失败直接返回错误
	_, err = idx.Query(ctx, "Health", 1)
	assert.True(t, errors.Is(err, embedding.ErrEmbeddingFailure))
}

func TestBuildEmpty(t *testing.T) {
	ctx := context.Background()

	_, err := Build(ctx, newLocalEmbedder(t), nil, WithLogger(logger.Discard()))
	assert.ErrorIs(t, err, ErrIndexEmpty)

	m := embedding.NewMockClient(t)
	m.EXPECT().Name().Return("mock").Maybe()
	m.EXPECT().EmbedBatch(mock.Anything, mock.Anything).Return(nil, errors.New("down"))
	m.EXPECT().Embed(mock.Anything, mock.Anything).Return(nil,
		embedding.NewEmbeddingError(embedding.ErrCodeNetworkError, "down"))

	_, err = Build(ctx, m, productChunks[:2], WithLogger(logger.Discard()))
	assert.ErrorIs(t, err, ErrIndexEmpty)
	assert.True(t, IsEmpty(err))
}

func TestBuildRejectsWrongDimension(t *testing.T) {
	ctx := context.Background()

	m := embedding.NewMockClient(t)
	m.EXPECT().Name().Return("mock").Maybe()
	m.EXPECT().EmbedBatch(mock.Anything, mock.Anything).Return([][]float32{{1, 0}, {0, 1, 0}}, nil)

	idx, err := Build(ctx, m, productChunks[:2], WithLogger(logger.Discard()))
	require.NoError(t, err)
	assert.Equal(t, 1, idx.Stats().Chunks)
	assert.Equal(t, 1, idx.Stats().Failed)
	assert.Equal(t, 2, idx.Stats().Dimension)
}

func TestFromEntries(t *testing.T) {
	ctx := context.Background()
	embedder := newLocalEmbedder(t)

	built, err := Build(ctx, embedder, productChunks, WithLogger(logger.Discard()))
	require.NoError(t, err)

	restored, err := FromEntries(ctx, embedder, built.Entries(), WithLogger(logger.Discard()))
	require.NoError(t, err)

	want, err := built.Query(ctx, "tuition for university", 2)
	require.NoError(t, err)
	got, err := restored.Query(ctx, "tuition for university", 2)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	_, err = FromEntries(ctx, embedder, nil)
	assert.ErrorIs(t, err, ErrIndexEmpty)
}

func TestHolderSwap(t *testing.T) {
	ctx := context.Background()
	embedder := newLocalEmbedder(t)

	h := NewHolder(nil)
	assert.False(t, h.Ready())
	assert.Nil(t, h.Load())

	first, err := Build(ctx, embedder, productChunks[:2], WithLogger(logger.Discard()))
	require.NoError(t, err)
	second, err := Build(ctx, embedder, productChunks, WithLogger(logger.Discard()))
	require.NoError(t, err)

	assert.Nil(t, h.Swap(first))
	assert.True(t, h.Ready())
	assert.Same(t, first, h.Load())

	old := h.Swap(second)
	assert.Same(t, first, old)
	assert.Equal(t, 4, h.Load().Stats().Chunks)
	assert.NoError(t, old.Close())
}

// trackingRepository 包装内存仓库，记录关闭状态，并列得分按序号倒序返回
type trackingRepository struct {
	Repository
	closed atomic.Bool
}

var lastTracking *trackingRepository

func newTrackingRepository(config Config) (Repository, error) {
	inner, err := NewMemoryRepository(config)
	if err != nil {
		return nil, err
	}
	lastTracking = &trackingRepository{Repository: inner}
	return lastTracking, nil
}

func (r *trackingRepository) Search(ctx context.Context, vector []float32, k int) ([]SearchResult, error) {
	if r.closed.Load() {
		return nil, errors.New("repository closed")
	}
	total, err := r.Count()
	if err != nil {
		return nil, err
	}
	results, err := r.Repository.Search(ctx, vector, total)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Document.Ordinal > results[j].Document.Ordinal
	})
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

func (r *trackingRepository) Close() error {
	r.closed.Store(true)
	return r.Repository.Close()
}

func init() {
	RegisterRepository("tracking", newTrackingRepository)
}

func buildTracking(t *testing.T, chunks []document.Chunk) (*Index, *trackingRepository) {
	idx, err := Build(context.Background(), newLocalEmbedder(t), chunks,
		WithLogger(logger.Discard()),
		WithRepositoryConfig(Config{Type: "tracking", DistanceType: Cosine}))
	require.NoError(t, err)
	return idx, lastTracking
}

func TestQueryTiesOrderedByOrdinal(t *testing.T) {
	chunks := make([]document.Chunk, 10)
	for i := range chunks {
		chunks[i] = document.Chunk{Ordinal: i, Text: "Product A pays a monthly pension"}
	}
	idx, _ := buildTracking(t, chunks)
	defer idx.Close()

	hits, err := idx.Query(context.Background(), "Product A pays a monthly pension", 3)
	require.NoError(t, err)
	require.Len(t, hits, 3)
	for i, h := range hits {
		assert.Equal(t, i, h.Chunk.Ordinal)
	}
}

func TestRetireWaitsForInFlightQueries(t *testing.T) {
	ctx := context.Background()
	old, repo := buildTracking(t, productChunks)
	h := NewHolder(old)

	pinned := h.Acquire()
	require.Same(t, old, pinned)

	next, err := Build(ctx, newLocalEmbedder(t), productChunks[:2], WithLogger(logger.Discard()))
	require.NoError(t, err)
	require.NoError(t, h.Swap(next).Retire())

	// 退役后已持有的引用仍可查询
	assert.False(t, repo.closed.Load())
	hits, err := pinned.Query(ctx, productChunks[2].Text, 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, 2, hits[0].Chunk.Ordinal)

	// 新的引用只能拿到替换后的索引
	assert.False(t, old.Acquire())
	current := h.Acquire()
	assert.Same(t, next, current)
	current.Release()

	pinned.Release()
	assert.True(t, repo.closed.Load())
	_, err = pinned.Query(ctx, productChunks[2].Text, 1)
	assert.ErrorIs(t, err, ErrIndexClosed)
}

func TestRetireWithoutReadersClosesImmediately(t *testing.T) {
	idx, repo := buildTracking(t, productChunks)

	require.NoError(t, idx.Retire())
	assert.True(t, repo.closed.Load())
	assert.NoError(t, idx.Close())

	_, err := idx.Query(context.Background(), "pension", 1)
	assert.ErrorIs(t, err, ErrIndexClosed)

	h := NewHolder(idx)
	assert.Nil(t, h.Acquire())
}
