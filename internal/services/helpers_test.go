package services

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fyerfyer/advisor-rag/internal/document"
	"github.com/fyerfyer/advisor-rag/internal/embedding"
	"github.com/fyerfyer/advisor-rag/internal/llm"
	"github.com/fyerfyer/advisor-rag/internal/vectordb"
	"github.com/fyerfyer/advisor-rag/pkg/logger"
	"github.com/stretchr/testify/require"
)

// newTestEmbedder 本地哈希嵌入，维度足够大以避免测试语料中的冲突
func newTestEmbedder(t *testing.T) embedding.Client {
	client, err := embedding.NewLocalClient(embedding.WithDimensions(512))
	require.NoError(t, err)
	return client
}

// newTestHolder 用给定语料构建索引
func newTestHolder(t *testing.T, corpus string) *vectordb.Holder {
	chunks, err := document.Split(corpus, 10000, 100)
	require.NoError(t, err)

	index, err := vectordb.Build(context.Background(), newTestEmbedder(t), chunks,
		vectordb.WithLogger(logger.Discard()))
	require.NoError(t, err)
	t.Cleanup(func() { index.Close() })
	return vectordb.NewHolder(index)
}

// writeCSV 写入只含 content 列的抓取结果
func writeCSV(t *testing.T, dir string, rows ...string) string {
	path := filepath.Join(dir, "scraped.csv")
	var sb strings.Builder
	sb.WriteString("url,content\n")
	for i, r := range rows {
		sb.WriteString("https://example.com/p")
		sb.WriteString(string(rune('0' + i)))
		sb.WriteString(",\"")
		sb.WriteString(strings.ReplaceAll(r, `"`, `""`))
		sb.WriteString("\"\n")
	}
	require.NoError(t, os.WriteFile(path, []byte(sb.String()), 0644))
	return path
}

// isExtraction 判断请求是否为画像抽取
func isExtraction(messages []llm.Message) bool {
	return len(messages) > 0 && messages[0].Content == "You are a helpful assistant."
}
