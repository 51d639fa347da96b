// Package ocr 为扫描页提供栅格化与文字识别
package ocr

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/gen2brain/go-fitz"
	"github.com/otiai10/gosseract/v2"
)

// FitzRasterizer 基于MuPDF的页面栅格化器
type FitzRasterizer struct {
	dpi float64
}

// NewFitzRasterizer 创建栅格化器，dpi<=0 时使用150
func NewFitzRasterizer(dpi int) *FitzRasterizer {
	if dpi <= 0 {
		dpi = 150
	}
	return &FitzRasterizer{dpi: float64(dpi)}
}

// RenderPage 渲染单页为PNG
func (r *FitzRasterizer) RenderPage(ctx context.Context, path string, page int) ([]byte, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %v", err)
	}
	defer doc.Close()

	if page < 0 || page >= doc.NumPage() {
		return nil, fmt.Errorf("page %d out of range", page+1)
	}
	return doc.ImagePNG(page, r.dpi)
}

// TesseractEngine 基于tesseract的OCR引擎
// gosseract客户端不是并发安全的，这里串行化调用
type TesseractEngine struct {
	mu       sync.Mutex
	language string
}

// NewTesseractEngine 创建OCR引擎，language 为空时使用 eng
func NewTesseractEngine(language string) *TesseractEngine {
	if language == "" {
		language = "eng"
	}
	return &TesseractEngine{language: language}
}

// Recognize 识别PNG图像中的文字
func (e *TesseractEngine) Recognize(ctx context.Context, image []byte) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetLanguage(strings.Split(e.language, "+")...); err != nil {
		return "", fmt.Errorf("failed to set OCR language: %v", err)
	}
	if err := client.SetImageFromBytes(image); err != nil {
		return "", fmt.Errorf("failed to load image: %v", err)
	}
	text, err := client.Text()
	if err != nil {
		return "", fmt.Errorf("ocr failed: %v", err)
	}
	return text, nil
}
