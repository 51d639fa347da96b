package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/fyerfyer/advisor-rag/internal/llm"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
)

// ErrInvalidProfile 模型返回的画像无法解析或未通过校验
var ErrInvalidProfile = errors.New("invalid profile output")

// Profile 从对话中抽取的客户画像
type Profile struct {
	Name           string `json:"name" validate:"max=200"`
	Age            string `json:"age" validate:"max=32"`
	Gender         string `json:"gender" validate:"max=64"`
	Employment     string `json:"employment" validate:"max=200"`
	FinancialGoals string `json:"financial_goals" validate:"max=2000"`
	Contact        string `json:"contact" validate:"max=500"`
	Recommendation string `json:"recommendation" validate:"max=4000"`
}

// Merge 用另一份画像中的非空字段覆盖当前字段
func (p Profile) Merge(other Profile) Profile {
	pick := func(cur, next string) string {
		if strings.TrimSpace(next) != "" {
			return strings.TrimSpace(next)
		}
		return cur
	}
	return Profile{
		Name:           pick(p.Name, other.Name),
		Age:            pick(p.Age, other.Age),
		Gender:         pick(p.Gender, other.Gender),
		Employment:     pick(p.Employment, other.Employment),
		FinancialGoals: pick(p.FinancialGoals, other.FinancialGoals),
		Contact:        pick(p.Contact, other.Contact),
		Recommendation: pick(p.Recommendation, other.Recommendation),
	}
}

// IsZero 是否没有任何字段
func (p Profile) IsZero() bool {
	return p == Profile{}
}

// profileWire 模型输出的线上格式，值可以是字符串、数字、列表或null
type profileWire struct {
	Name           flexString `json:"name"`
	Age            flexString `json:"age"`
	Gender         flexString `json:"gender"`
	Employment     flexString `json:"employment"`
	FinancialGoals flexString `json:"financial_goals"`
	Contact        flexString `json:"contact"`
	Recommendation flexString `json:"recommendation"`
}

// flexString 接受字符串、数字、布尔、字符串列表与null
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*f = ""
		return nil
	}

	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(s)
	case '[':
		var items []flexString
		if err := json.Unmarshal(data, &items); err != nil {
			return err
		}
		parts := make([]string, 0, len(items))
		for _, it := range items {
			if s := strings.TrimSpace(string(it)); s != "" {
				parts = append(parts, s)
			}
		}
		*f = flexString(strings.Join(parts, ", "))
	case '{':
		return fmt.Errorf("unexpected object value")
	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err == nil {
			*f = flexString(n.String())
			return nil
		}
		var b bool
		if err := json.Unmarshal(data, &b); err != nil {
			return err
		}
		*f = flexString(strconv.FormatBool(b))
	}
	return nil
}

// ParseProfile 严格解析模型输出：只允许约定的键，不允许尾随内容
func ParseProfile(output string) (Profile, error) {
	text := stripCodeFence(strings.TrimSpace(output))

	dec := json.NewDecoder(strings.NewReader(text))
	dec.DisallowUnknownFields()

	var wire profileWire
	if err := dec.Decode(&wire); err != nil {
		return Profile{}, fmt.Errorf("%w: %v", ErrInvalidProfile, err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return Profile{}, fmt.Errorf("%w: trailing data after JSON object", ErrInvalidProfile)
	}

	p := Profile{
		Name:           strings.TrimSpace(string(wire.Name)),
		Age:            strings.TrimSpace(string(wire.Age)),
		Gender:         strings.TrimSpace(string(wire.Gender)),
		Employment:     strings.TrimSpace(string(wire.Employment)),
		FinancialGoals: strings.TrimSpace(string(wire.FinancialGoals)),
		Contact:        strings.TrimSpace(string(wire.Contact)),
		Recommendation: strings.TrimSpace(string(wire.Recommendation)),
	}
	if err := profileValidator.Struct(p); err != nil {
		return Profile{}, fmt.Errorf("%w: %v", ErrInvalidProfile, err)
	}
	return p, nil
}

var profileValidator = validator.New()

// stripCodeFence 去掉Markdown代码块包裹
func stripCodeFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

const profilePrompt = `Extract the following structured information from the conversation:
- Name
- Age
- Gender
- Employment Type
- Financial Goals and Priorities
- Contact Details
- Product Recommendation

If any detail is missing, leave it blank.

Conversation:
%s

Output in JSON format:
{
    "name": "",
    "age": "",
    "gender": "",
    "employment": "",
    "financial_goals": "",
    "contact": "",
    "recommendation": ""
}`

// ProfileExtractor 调用模型从对话中抽取客户画像
type ProfileExtractor struct {
	llm    llm.Client
	logger *logrus.Logger
}

// NewProfileExtractor 创建画像抽取器
func NewProfileExtractor(client llm.Client, logger *logrus.Logger) *ProfileExtractor {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &ProfileExtractor{llm: client, logger: logger}
}

// Extract 以温度0、JSON模式请求模型并严格解析结果
func (e *ProfileExtractor) Extract(ctx context.Context, turns []llm.Message) (Profile, error) {
	if len(turns) == 0 {
		return Profile{}, nil
	}

	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: "You are a helpful assistant."},
		{Role: llm.RoleUser, Content: fmt.Sprintf(profilePrompt, llm.FormatHistory(turns))},
	}

	resp, err := e.llm.Chat(ctx, messages, llm.WithChatTemperature(0), llm.WithJSONMode())
	if err != nil {
		return Profile{}, err
	}

	profile, err := ParseProfile(resp.Text)
	if err != nil {
		e.logger.WithFields(logrus.Fields{
			"model":  e.llm.Name(),
			"output": truncate(resp.Text, 200),
		}).WithError(err).Warn("Failed to parse extracted profile")
		return Profile{}, err
	}
	return profile, nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
