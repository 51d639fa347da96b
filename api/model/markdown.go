package model

import (
	"strings"

	"github.com/gomarkdown/markdown"
	mdhtml "github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
)

// RenderReply 将助手的Markdown回复渲染为HTML
// 回复中的原始HTML会被丢弃，链接添加 noopener
func RenderReply(reply string) string {
	if strings.TrimSpace(reply) == "" {
		return ""
	}

	p := parser.NewWithExtensions(parser.CommonExtensions)
	renderer := mdhtml.NewRenderer(mdhtml.RendererOptions{
		Flags: mdhtml.CommonFlags | mdhtml.SkipHTML | mdhtml.Safelink | mdhtml.NoopenerLinks | mdhtml.HrefTargetBlank,
	})
	return strings.TrimSpace(string(markdown.Render(p.Parse([]byte(reply)), renderer)))
}
