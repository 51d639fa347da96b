package vectordb

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// createTestDoc 创建用于测试的文档
func createTestDoc(ordinal int, vector []float32) Document {
	return Document{
		ID:      "chunk-" + strconv.Itoa(ordinal),
		Ordinal: ordinal,
		Text:    "测试片段 " + strconv.Itoa(ordinal),
		Vector:  vector,
	}
}

// testRepository 各后端共享的行为测试
func testRepository(t *testing.T, repo Repository) {
	ctx := context.Background()

	docs := []Document{
		createTestDoc(0, []float32{1, 0, 0, 0}),
		createTestDoc(1, []float32{0, 1, 0, 0}),
		createTestDoc(2, []float32{0.9, 0.1, 0, 0}),
		createTestDoc(3, []float32{0, 0, 1, 0}),
	}
	require.NoError(t, repo.AddBatch(ctx, docs))

	count, err := repo.Count()
	require.NoError(t, err)
	assert.Equal(t, 4, count)
	assert.Equal(t, 4, repo.GetDimension())

	results, err := repo.Search(ctx, []float32{1, 0, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, 0, results[0].Document.Ordinal)
	assert.Equal(t, 2, results[1].Document.Ordinal)
	assert.InDelta(t, 1.0, results[0].Score, 1e-4)
	assert.Greater(t, results[0].Score, results[1].Score)
	assert.Equal(t, "测试片段 0", results[0].Document.Text)

	// k大于文档数时返回全部
	results, err = repo.Search(ctx, []float32{0, 0, 1, 0}, 10)
	require.NoError(t, err)
	assert.Len(t, results, 4)
	assert.Equal(t, 3, results[0].Document.Ordinal)

	_, err = repo.Search(ctx, []float32{1, 0}, 2)
	assert.ErrorIs(t, err, ErrInvalidDimension)

	err = repo.AddBatch(ctx, []Document{createTestDoc(9, nil)})
	assert.ErrorIs(t, err, ErrEmptyVector)
}

func TestMemoryRepository(t *testing.T) {
	repo, err := NewRepository(Config{Type: "memory", Dimension: 4, DistanceType: Cosine})
	require.NoError(t, err)
	defer repo.Close()

	testRepository(t, repo)
}

func TestMemoryRepositoryTieBreak(t *testing.T) {
	repo, err := NewMemoryRepository(Config{Dimension: 2})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, repo.AddBatch(ctx, []Document{
		createTestDoc(5, []float32{1, 0}),
		createTestDoc(1, []float32{1, 0}),
		createTestDoc(3, []float32{1, 0}),
	}))

	results, err := repo.Search(ctx, []float32{1, 0}, 3)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, []int{1, 3, 5}, []int{
		results[0].Document.Ordinal,
		results[1].Document.Ordinal,
		results[2].Document.Ordinal,
	})
}

func TestNewRepositoryFallsBackToMemory(t *testing.T) {
	repo, err := NewRepository(Config{Type: "unknown", Dimension: 3})
	require.NoError(t, err)
	_, ok := repo.(*MemoryRepository)
	assert.True(t, ok)

	_, err = NewRepository(Config{Type: "memory"})
	assert.Error(t, err)
}

func TestFaissRepository(t *testing.T) {
	indexPath := filepath.Join(t.TempDir(), "faiss", "index.bin")

	repo, err := NewRepository(Config{
		Type:         "faiss",
		Path:         indexPath,
		Dimension:    4,
		DistanceType: Cosine,
	})
	require.NoError(t, err)

	testRepository(t, repo)

	require.NoError(t, repo.Close())
	_, err = os.Stat(indexPath)
	assert.NoError(t, err, "index file should be written on close")
	_, err = os.Stat(indexPath + ".meta.json")
	assert.NoError(t, err, "metadata file should be written on close")

	_, err = repo.Search(context.Background(), []float32{1, 0, 0, 0}, 1)
	assert.Error(t, err)
}

func TestFaissRepositoryEuclidean(t *testing.T) {
	repo, err := NewFaissRepository(Config{Dimension: 2, DistanceType: Euclidean})
	require.NoError(t, err)
	defer repo.Close()

	ctx := context.Background()
	require.NoError(t, repo.AddBatch(ctx, []Document{
		createTestDoc(0, []float32{0, 0}),
		createTestDoc(1, []float32{3, 4}),
	}))

	results, err := repo.Search(ctx, []float32{3, 4}, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, 1, results[0].Document.Ordinal)
	assert.InDelta(t, 1.0, results[0].Score, 1e-4)
}

func TestDistanceHelpers(t *testing.T) {
	d, err := ComputeDistance([]float32{1, 0}, []float32{0, 1}, Cosine)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, d, 1e-6)

	d, err = ComputeDistance([]float32{0, 0}, []float32{3, 4}, Euclidean)
	require.NoError(t, err)
	assert.InDelta(t, 5.0, d, 1e-6)

	_, err = ComputeDistance([]float32{1}, []float32{1, 2}, Cosine)
	assert.Error(t, err)

	_, err = ComputeDistance([]float32{1}, []float32{1}, "manhattan")
	assert.Error(t, err)

	assert.Equal(t, []float32{0.6, 0.8}, normalizeVector([]float32{3, 4}))
	assert.Equal(t, Cosine, normalizeDistance("bogus"))
}
