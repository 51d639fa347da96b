package vectordb

import (
	"context"
	"os"
	"testing"

	"github.com/fyerfyer/advisor-rag/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckpointKey(t *testing.T) {
	base := CheckpointKey("corpus", 10000, 100, "text-embedding-3-small")
	assert.Len(t, base, 64)
	assert.Equal(t, base, CheckpointKey("corpus", 10000, 100, "text-embedding-3-small"))

	assert.NotEqual(t, base, CheckpointKey("corpus!", 10000, 100, "text-embedding-3-small"))
	assert.NotEqual(t, base, CheckpointKey("corpus", 9000, 100, "text-embedding-3-small"))
	assert.NotEqual(t, base, CheckpointKey("corpus", 10000, 50, "text-embedding-3-small"))
	assert.NotEqual(t, base, CheckpointKey("corpus", 10000, 100, "text-embedding-v3"))
}

func TestCheckpointRoundTrip(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	embedder := newLocalEmbedder(t)

	_, err := LoadCheckpoint(dir)
	assert.True(t, os.IsNotExist(err))

	idx, err := Build(ctx, embedder, productChunks, WithLogger(logger.Discard()))
	require.NoError(t, err)

	key := CheckpointKey("corpus", 10000, 100, embedder.Name())
	require.NoError(t, SaveCheckpoint(dir, NewCheckpoint(key, idx)))

	cp, err := LoadCheckpoint(dir)
	require.NoError(t, err)
	assert.Equal(t, key, cp.Key)
	assert.Equal(t, "local-hash", cp.Model)
	assert.Equal(t, 512, cp.Dimension)
	require.Len(t, cp.Entries, 4)

	restored, err := FromEntries(ctx, embedder, cp.IndexEntries(), WithLogger(logger.Discard()))
	require.NoError(t, err)
	assert.Equal(t, productChunks[1], restored.Entries()[1].Chunk)

	hits, err := restored.Query(ctx, productChunks[3].Text, 1)
	require.NoError(t, err)
	assert.Equal(t, 3, hits[0].Chunk.Ordinal)
}

func TestLoadCheckpointCorrupt(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(dir+"/"+CheckpointFile, []byte("{not json"), 0644))

	_, err := LoadCheckpoint(dir)
	assert.Error(t, err)
	assert.False(t, os.IsNotExist(err))
}
