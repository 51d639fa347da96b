package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWhenFileMissing(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 10000, cfg.Chunk.MaxChars)
	assert.Equal(t, 100, cfg.Chunk.Overlap)
	assert.Equal(t, 4, cfg.Retrieval.TopK)
	assert.Equal(t, 10, cfg.History.Window)
	assert.Equal(t, "memory", cfg.VectorDB.Type)
	assert.Equal(t, "local", cfg.Corpus.Source)
}

func TestLoadFromFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
retrieval:
  top_k: 6
history:
  window: 3
llm:
  api_key: ${ADVISOR_TEST_KEY}
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	t.Setenv("ADVISOR_TEST_KEY", "sk-test")
	t.Setenv("CHUNK_MAX_CHARS", "500")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 6, cfg.Retrieval.TopK)
	assert.Equal(t, 3, cfg.History.Window)
	assert.Equal(t, "sk-test", cfg.LLM.APIKey)
	assert.Equal(t, 500, cfg.Chunk.MaxChars)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			Chunk:     ChunkConfig{MaxChars: 100, Overlap: 10},
			Retrieval: RetrievalConfig{TopK: 4},
			History:   HistoryConfig{Window: 10},
			Corpus:    CorpusConfig{Source: "local"},
		}
	}

	assert.NoError(t, base().Validate())

	cfg := base()
	cfg.Chunk.Overlap = 100
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.Retrieval.TopK = 0
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.History.Window = 0
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.Corpus.Source = "ftp"
	assert.Error(t, cfg.Validate())
}

func TestWriteDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "config.yaml")
	require.NoError(t, WriteDefault(path))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
}
