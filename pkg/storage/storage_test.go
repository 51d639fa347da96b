package storage

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestLocalSource 测试本地目录来源
func TestLocalSource(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	src := NewLocalSource(LocalConfig{Path: dir})

	t.Run("Put", func(t *testing.T) {
		for _, name := range []string{"b.pdf", "a.PDF", "notes.txt"} {
			info, err := src.Put(ctx, name, bytes.NewBufferString("content of "+name), -1)
			require.NoError(t, err)
			assert.Equal(t, name, info.Name)
			assert.FileExists(t, filepath.Join(dir, name))
		}
		require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.pdf"), 0755))
	})

	t.Run("ListSortedAndSkipsDirs", func(t *testing.T) {
		files, err := src.List(ctx)
		require.NoError(t, err)
		require.Len(t, files, 3)
		assert.Equal(t, "a.PDF", files[0].Name)
		assert.Equal(t, "b.pdf", files[1].Name)
		assert.Equal(t, "notes.txt", files[2].Name)
	})

	t.Run("Fetch", func(t *testing.T) {
		files, err := src.List(ctx)
		require.NoError(t, err)

		p, cleanup, err := src.Fetch(ctx, files[1])
		require.NoError(t, err)
		defer cleanup()

		data, err := os.ReadFile(p)
		require.NoError(t, err)
		assert.Equal(t, "content of b.pdf", string(data))
	})
}

func TestLocalSourceMissing(t *testing.T) {
	src := NewLocalSource(LocalConfig{Path: filepath.Join(t.TempDir(), "nope")})
	_, err := src.List(context.Background())
	assert.True(t, errors.Is(err, ErrSourceNotFound))
}

func TestHasExt(t *testing.T) {
	assert.True(t, HasExt("report.PDF", ".pdf"))
	assert.True(t, HasExt("report.pdf", ".pdf"))
	assert.False(t, HasExt("report.pdf.txt", ".pdf"))
}

func TestNewSource(t *testing.T) {
	src, err := NewSource(Config{Type: "local", Local: LocalConfig{Path: "x"}})
	require.NoError(t, err)
	assert.Equal(t, "x", src.Location())

	_, err = NewSource(Config{Type: "ftp"})
	assert.Error(t, err)
}

// TestMinioSource 需要运行中的MinIO，设置 MINIO_ENDPOINT 后执行
func TestMinioSource(t *testing.T) {
	endpoint := os.Getenv("MINIO_ENDPOINT")
	if endpoint == "" {
		t.Skip("MINIO_ENDPOINT not set")
	}

	src, err := NewMinioSource(MinioConfig{
		Endpoint:  endpoint,
		AccessKey: os.Getenv("MINIO_ACCESS_KEY"),
		SecretKey: os.Getenv("MINIO_SECRET_KEY"),
		Bucket:    "advisor-test",
		Prefix:    "pdfs/",
	})
	require.NoError(t, err)

	ctx := context.Background()
	payload := []byte("minio content")
	_, err = src.Put(ctx, "doc.pdf", bytes.NewReader(payload), int64(len(payload)))
	require.NoError(t, err)

	files, err := src.List(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, files)

	p, cleanup, err := src.Fetch(ctx, files[0])
	require.NoError(t, err)
	defer cleanup()
	data, err := os.ReadFile(p)
	require.NoError(t, err)
	assert.Equal(t, payload, data)
}
