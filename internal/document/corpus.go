package document

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/fyerfyer/advisor-rag/pkg/storage"
	"github.com/sirupsen/logrus"
)

// ContentColumn CSV中保存抓取正文的列名
const ContentColumn = "content"

// Extractor 单个PDF文件的文本提取器
type Extractor interface {
	Extract(ctx context.Context, path string) string
}

// Loader 语料加载器，按固定顺序聚合CSV与PDF文本
type Loader struct {
	extractor Extractor
	logger    *logrus.Logger
}

// LoaderOption 加载器配置选项
type LoaderOption func(*Loader)

// WithLoaderLogger 设置加载器日志记录器
func WithLoaderLogger(logger *logrus.Logger) LoaderOption {
	return func(l *Loader) {
		l.logger = logger
	}
}

// NewLoader 创建语料加载器
func NewLoader(extractor Extractor, opts ...LoaderOption) *Loader {
	l := &Loader{
		extractor: extractor,
		logger:    logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// LoadCorpus 读取CSV与PDF来源并拼接为语料
// 来源缺失不是致命错误，记录在 Corpus.Diagnostics 中；只有上下文取消时返回错误
func (l *Loader) LoadCorpus(ctx context.Context, csvPath string, pdfSource storage.Source) (Corpus, error) {
	var corpus Corpus

	rows, csvOK, err := l.loadCSV(csvPath)
	if err != nil {
		corpus.Diagnostics = append(corpus.Diagnostics, err)
		l.logger.WithField("path", csvPath).WithError(err).Warn("CSV source skipped")
	}
	corpus.Documents = append(corpus.Documents, rows...)

	pdfs, pdfText, err := l.loadPDFs(ctx, pdfSource)
	if ctx.Err() != nil {
		return Corpus{}, ctx.Err()
	}
	if err != nil {
		corpus.Diagnostics = append(corpus.Diagnostics, err)
		l.logger.WithError(err).Warn("PDF source skipped")
	}
	corpus.Documents = append(corpus.Documents, pdfs...)

	var sb strings.Builder
	if csvOK {
		texts := make([]string, 0, len(rows))
		for _, d := range rows {
			texts = append(texts, d.Text)
		}
		sb.WriteString(strings.Join(texts, "\n"))
		sb.WriteString("\n")
	}
	sb.WriteString(pdfText)
	corpus.Text = strings.TrimSpace(sb.String())

	l.logger.WithFields(logrus.Fields{
		"csv_rows":    len(rows),
		"pdfs":        len(pdfs),
		"chars":       len([]rune(corpus.Text)),
		"diagnostics": len(corpus.Diagnostics),
	}).Info("Corpus loaded")

	return corpus, nil
}

// loadCSV 读取 content 列，丢弃空值并保持行顺序
// 第二个返回值表示CSV存在且包含 content 列
func (l *Loader) loadCSV(path string) ([]Document, bool, error) {
	if path == "" {
		return nil, false, fmt.Errorf("%w: csv path not configured", ErrSourceMissing)
	}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, fmt.Errorf("%w: %s", ErrSourceMissing, path)
		}
		return nil, false, fmt.Errorf("failed to open csv: %v", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	header, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, false, fmt.Errorf("csv %s has no %q column", path, ContentColumn)
		}
		return nil, false, fmt.Errorf("failed to read csv header: %v", err)
	}

	col := -1
	for i, name := range header {
		if strings.TrimPrefix(strings.TrimSpace(name), "\ufeff") == ContentColumn {
			col = i
			break
		}
	}
	if col < 0 {
		return nil, false, fmt.Errorf("csv %s has no %q column", path, ContentColumn)
	}

	var docs []Document
	for row := 1; ; row++ {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			l.logger.WithFields(logrus.Fields{
				"path": path,
				"row":  row,
			}).WithError(err).Warn("Skipping malformed csv row")
			continue
		}
		if col >= len(record) {
			continue
		}
		text := ExtractCell(record[col])
		if text == "" {
			continue
		}
		docs = append(docs, Document{
			SourceID: strconv.Itoa(row),
			Kind:     SourceCSV,
			Text:     text,
		})
	}

	return docs, true, nil
}

// loadPDFs 按文件名顺序提取所有PDF，并生成带来源标记的文本
func (l *Loader) loadPDFs(ctx context.Context, src storage.Source) ([]Document, string, error) {
	if src == nil {
		return nil, "", fmt.Errorf("%w: pdf source not configured", ErrSourceMissing)
	}

	files, err := src.List(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrSourceNotFound) {
			return nil, "", fmt.Errorf("%w: %v", ErrSourceMissing, err)
		}
		return nil, "", fmt.Errorf("failed to list pdf source: %v", err)
	}

	var (
		docs []Document
		sb   strings.Builder
	)
	for _, file := range files {
		if !storage.HasExt(file.Name, ".pdf") {
			continue
		}
		if err := ctx.Err(); err != nil {
			return docs, "", err
		}

		text := l.extractOne(ctx, src, file)
		docs = append(docs, Document{
			SourceID: file.Name,
			Kind:     SourcePDF,
			Text:     text,
		})
		if text == "" {
			continue
		}
		fmt.Fprintf(&sb, "\n\n%s\n\n%s", Marker(file.Name), text)
	}

	if len(docs) == 0 {
		l.logger.WithField("source", src.Location()).Info("No PDF files found")
	}
	return docs, strings.TrimSpace(sb.String()), nil
}

func (l *Loader) extractOne(ctx context.Context, src storage.Source, file storage.FileInfo) string {
	path, cleanup, err := src.Fetch(ctx, file)
	if err != nil {
		l.logger.WithFields(logrus.Fields{
			"file": file.Name,
		}).WithError(err).Warn("Failed to fetch PDF")
		return ""
	}
	defer cleanup()

	l.logger.WithField("file", file.Name).Debug("Reading PDF")
	return l.extractor.Extract(ctx, path)
}
