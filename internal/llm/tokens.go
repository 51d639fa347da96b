package llm

import (
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

// TokenCounter 使用 tiktoken 统计提示词的Token数
// 编码表不可用时（例如离线环境）按每3个字符1个Token估算
type TokenCounter struct {
	encoding *tiktoken.Tiktoken
}

var (
	defaultCounter     *TokenCounter
	defaultCounterOnce sync.Once
)

// NewTokenCounter 创建基于 cl100k_base 编码的计数器
func NewTokenCounter() *TokenCounter {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return &TokenCounter{}
	}
	return &TokenCounter{encoding: enc}
}

// DefaultTokenCounter 返回进程级计数器
func DefaultTokenCounter() *TokenCounter {
	defaultCounterOnce.Do(func() {
		defaultCounter = NewTokenCounter()
	})
	return defaultCounter
}

// Count 统计文本的Token数
func (t *TokenCounter) Count(text string) int {
	if text == "" {
		return 0
	}
	if t == nil || t.encoding == nil {
		return (utf8.RuneCountInString(text) + 2) / 3
	}
	return len(t.encoding.Encode(text, nil, nil))
}

// CountMessages 统计消息列表的Token数
func (t *TokenCounter) CountMessages(messages []Message) int {
	total := 0
	for _, m := range messages {
		// 每条消息约有4个Token的角色与分隔开销
		total += t.Count(m.Content) + 4
	}
	return total
}
