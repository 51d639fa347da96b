package document

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/gen2brain/go-fitz"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/sirupsen/logrus"
)

// PageReader 读取PDF每一页的文本层
type PageReader interface {
	// PageTexts 返回按页顺序排列的文本，下标i对应第i+1页
	PageTexts(ctx context.Context, path string) ([]string, error)
}

// Rasterizer 将PDF页面渲染为PNG图像
type Rasterizer interface {
	// RenderPage 渲染第page页（从0开始）
	RenderPage(ctx context.Context, path string, page int) ([]byte, error)
}

// OCREngine 对图像做文字识别
type OCREngine interface {
	Recognize(ctx context.Context, image []byte) (string, error)
}

// PDFExtractor PDF文本提取器
// 优先使用文本层，空白页回退到OCR
type PDFExtractor struct {
	pages  PageReader
	raster Rasterizer
	ocr    OCREngine
	logger *logrus.Logger
}

// PDFOption PDF提取器配置选项
type PDFOption func(*PDFExtractor)

// WithPageReader 设置文本层读取器
func WithPageReader(r PageReader) PDFOption {
	return func(e *PDFExtractor) {
		e.pages = r
	}
}

// WithOCR 设置OCR回退所需的栅格化器与识别引擎
func WithOCR(r Rasterizer, engine OCREngine) PDFOption {
	return func(e *PDFExtractor) {
		e.raster = r
		e.ocr = engine
	}
}

// WithLogger 设置日志记录器
func WithLogger(logger *logrus.Logger) PDFOption {
	return func(e *PDFExtractor) {
		e.logger = logger
	}
}

// NewPDFExtractor 创建PDF提取器，默认使用 TextLayerReader 且不启用OCR
func NewPDFExtractor(opts ...PDFOption) *PDFExtractor {
	e := &PDFExtractor{
		logger: logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.pages == nil {
		e.pages = NewTextLayerReader(e.logger)
	}
	return e
}

// Extract 提取PDF文本，任何失败都记录日志并返回空字符串
func (e *PDFExtractor) Extract(ctx context.Context, path string) string {
	text, err := e.ExtractText(ctx, path)
	if err != nil {
		e.logger.WithFields(logrus.Fields{
			"path": path,
		}).WithError(err).Warn("Failed to extract PDF text")
		return ""
	}
	return text
}

// ExtractText 提取PDF文本并返回错误，错误均包装 ErrExtractionFailure
func (e *PDFExtractor) ExtractText(ctx context.Context, path string) (string, error) {
	pages, err := e.pages.PageTexts(ctx, path)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrExtractionFailure, err)
	}

	var sb strings.Builder
	ocrPages := 0
	for i, text := range pages {
		if err := ctx.Err(); err != nil {
			return "", fmt.Errorf("%w: %v", ErrExtractionFailure, err)
		}

		if strings.TrimSpace(text) == "" && e.ocr != nil && e.raster != nil {
			img, err := e.raster.RenderPage(ctx, path, i)
			if err != nil {
				return "", fmt.Errorf("%w: render page %d: %v", ErrExtractionFailure, i+1, err)
			}
			text, err = e.ocr.Recognize(ctx, img)
			if err != nil {
				return "", fmt.Errorf("%w: ocr page %d: %v", ErrExtractionFailure, i+1, err)
			}
			ocrPages++
		}

		if strings.TrimSpace(text) == "" {
			continue
		}
		sb.WriteString(text)
		if !strings.HasSuffix(text, "\n") {
			sb.WriteByte('\n')
		}
	}

	e.logger.WithFields(logrus.Fields{
		"path":      path,
		"pages":     len(pages),
		"ocr_pages": ocrPages,
	}).Debug("PDF extracted")

	return strings.TrimSpace(sb.String()), nil
}

// TextLayerReader 文本层读取器
// pdfcpu负责结构校验与页数，MuPDF负责按字体编码解码文本
type TextLayerReader struct {
	conf   *model.Configuration
	logger *logrus.Logger
}

// NewTextLayerReader 创建文本层读取器
func NewTextLayerReader(logger *logrus.Logger) *TextLayerReader {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return &TextLayerReader{conf: conf, logger: logger}
}

// PageTexts 读取每一页文本
func (r *TextLayerReader) PageTexts(ctx context.Context, path string) ([]string, error) {
	expected, verr := r.pageCount(path)
	if verr != nil {
		// MuPDF能修复部分pdfcpu拒绝的文件，校验失败只记录
		r.logger.WithFields(logrus.Fields{
			"path": path,
		}).WithError(verr).Debug("PDF failed structural validation")
	}

	doc, err := fitz.New(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %v", err)
	}
	defer doc.Close()

	pages := make([]string, doc.NumPage())
	if verr == nil && expected != len(pages) {
		r.logger.WithFields(logrus.Fields{
			"path":     path,
			"expected": expected,
			"read":     len(pages),
		}).Warn("PDF page count mismatch")
	}

	for i := range pages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		text, err := doc.Text(i)
		if err != nil {
			return nil, fmt.Errorf("failed to read page %d: %v", i+1, err)
		}
		pages[i] = text
	}
	return pages, nil
}

// pageCount 使用pdfcpu校验文件结构并返回页数
func (r *TextLayerReader) pageCount(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return api.PageCount(f, r.conf)
}
