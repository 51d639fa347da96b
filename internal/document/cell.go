package document

import "strings"

// ExtractCell 返回CSV内容单元格的文本，原样保留并去除首尾空白
// 空白单元格返回空字符串
func ExtractCell(cell string) string {
	return strings.TrimSpace(cell)
}
