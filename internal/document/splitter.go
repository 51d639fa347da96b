package document

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	// DefaultMaxChars 默认每块最大字符数
	DefaultMaxChars = 10000
	// DefaultOverlap 默认相邻块重叠字符数
	DefaultOverlap = 100
)

var markerRe = regexp.MustCompile(regexp.QuoteMeta(MarkerPrefix) + `[^\n]*?` + regexp.QuoteMeta(MarkerSuffix))

// CharacterSplitter 按字符数切分语料的分块器
type CharacterSplitter struct {
	MaxChars int // 每块最大字符数（按rune计）
	Overlap  int // 相邻块重叠字符数
}

// NewCharacterSplitter 创建分块器，参数非法时返回错误
func NewCharacterSplitter(maxChars, overlap int) (*CharacterSplitter, error) {
	if err := validateSplit(maxChars, overlap); err != nil {
		return nil, err
	}
	return &CharacterSplitter{MaxChars: maxChars, Overlap: overlap}, nil
}

// Split 使用分块器的配置切分文本
func (s *CharacterSplitter) Split(text string) ([]Chunk, error) {
	return Split(text, s.MaxChars, s.Overlap)
}

func validateSplit(maxChars, overlap int) error {
	if maxChars <= 0 {
		return fmt.Errorf("max chars must be positive, got %d", maxChars)
	}
	if overlap < 0 || overlap >= maxChars {
		return fmt.Errorf("overlap must be in [0, %d), got %d", maxChars, overlap)
	}
	return nil
}

// Split 将文本切分为至多 maxChars 个字符的窗口，相邻窗口重叠 overlap 个字符
// 窗口边界不会落在来源标记内部（只要调整后仍能向前推进），纯空白窗口被丢弃
func Split(text string, maxChars, overlap int) ([]Chunk, error) {
	if err := validateSplit(maxChars, overlap); err != nil {
		return nil, err
	}
	if text == "" {
		return []Chunk{}, nil
	}

	runes := []rune(text)
	markers := markerSpans(text)
	n := len(runes)

	chunks := []Chunk{}
	start := 0
	for start < n {
		end := start + maxChars
		if end > n {
			end = n
		}
		if end < n {
			if ms, ok := insideMarker(markers, end); ok && ms-overlap > start {
				end = ms
			}
		}

		window := string(runes[start:end])
		if strings.TrimFunc(window, unicode.IsSpace) != "" {
			chunks = append(chunks, Chunk{
				Text:    window,
				Ordinal: len(chunks),
				Start:   start,
				End:     end,
			})
		}
		if end == n {
			break
		}

		next := end - overlap
		if ms, ok := insideMarker(markers, next); ok && ms > start {
			next = ms
		}
		start = next
	}

	return chunks, nil
}

// markerSpans 返回所有来源标记的rune区间 [start, end)
func markerSpans(text string) [][2]int {
	locs := markerRe.FindAllStringIndex(text, -1)
	if len(locs) == 0 {
		return nil
	}

	spans := make([][2]int, 0, len(locs))
	for _, loc := range locs {
		spans = append(spans, [2]int{
			utf8.RuneCountInString(text[:loc[0]]),
			utf8.RuneCountInString(text[:loc[1]]),
		})
	}
	return spans
}

// insideMarker 判断偏移是否严格落在某个标记内部，返回该标记起点
func insideMarker(spans [][2]int, pos int) (int, bool) {
	for _, sp := range spans {
		if pos > sp[0] && pos < sp[1] {
			return sp[0], true
		}
		if sp[0] >= pos {
			break
		}
	}
	return 0, false
}
