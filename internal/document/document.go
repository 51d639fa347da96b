package document

import (
	"errors"
	"fmt"
)

var (
	// ErrExtractionFailure 单个文档提取失败，调用方记录日志后以空文本继续
	ErrExtractionFailure = errors.New("extraction failure")

	// ErrSourceMissing CSV文件或PDF目录不存在
	ErrSourceMissing = errors.New("source missing")
)

// SourceKind 文档来源类型
type SourceKind string

const (
	// SourceCSV 抓取结果CSV中的一行
	SourceCSV SourceKind = "csv"
	// SourcePDF PDF文件
	SourcePDF SourceKind = "pdf"
)

// Document 提取后的文档，创建后不再修改
type Document struct {
	SourceID string     // CSV行号或PDF文件名
	Kind     SourceKind // 来源类型
	Text     string     // 提取出的文本，失败时为空
}

// Corpus 由所有文档按顺序拼接而成的语料
type Corpus struct {
	Text        string     // 拼接后的完整文本
	Documents   []Document // 参与拼接的文档
	Diagnostics []error    // 非致命问题，如来源缺失
}

// Chunk 语料中的一个连续片段
type Chunk struct {
	Text    string // 片段文本，非空
	Ordinal int    // 片段序号，从0开始连续
	Start   int    // 在语料中的起始rune偏移
	End     int    // 在语料中的结束rune偏移（不含）
}

// MarkerPrefix 与 MarkerSuffix 包围PDF来源标记
const (
	MarkerPrefix = "=== Extracted from "
	MarkerSuffix = " ==="
)

// Marker 返回文件名对应的来源标记
func Marker(file string) string {
	return fmt.Sprintf("%s%s%s", MarkerPrefix, file, MarkerSuffix)
}
