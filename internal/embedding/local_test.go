package embedding

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalClient(t *testing.T) {
	client, err := NewClient("local", WithDimensions(64))
	require.NoError(t, err)
	ctx := context.Background()

	a, err := client.Embed(ctx, "Life insurance for families")
	require.NoError(t, err)
	require.Len(t, a, 64)

	b, err := client.Embed(ctx, "life INSURANCE for families!")
	require.NoError(t, err)
	assert.Equal(t, a, b)

	var norm float64
	for _, v := range a {
		norm += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-5)

	_, err = client.Embed(ctx, "   ...   ")
	assert.Equal(t, ErrCodeEmptyInput, errorCode(err))

	vectors, err := client.EmbedBatch(ctx, []string{"alpha beta gamma", "delta epsilon"})
	require.NoError(t, err)
	assert.Len(t, vectors, 2)
	assert.NotEqual(t, vectors[0], vectors[1])
}
