package llm

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
)

// SystemMessage 对话请求中固定的系统消息
const SystemMessage = "You are a helpful product recommendation assistant."

// FallbackReply 补全失败或回复为空时返回给用户的文本
const FallbackReply = "I'm sorry, I couldn't generate a response. Please try again."

// Prompt 一次补全请求的提示词
type Prompt struct {
	System string
	User   string
}

// Messages 转换为消息列表
func (p Prompt) Messages() []Message {
	return []Message{
		{Role: RoleSystem, Content: p.System},
		{Role: RoleUser, Content: p.User},
	}
}

// PromptData 模板变量
type PromptData struct {
	Context string // 检索到的上下文
	History string // 窗口内的历史对话
	Input   string // 当前用户输入
}

const advisorTemplate = `You are a financial consultant expert for AXA Philippines. Your task is to recommend the best financial product based on the client’s profile, priorities, budget, and risk appetite. Make the conversation natural and engaging while remembering the details the client shares for future reference. Build on the information provided to make the conversation feel personal and tailored. Start by asking the following questions:

Do not ask multiple questions at once that will confuse the user.

Client Profile:

    What is your name?

    What is your age?

    What is your gender (if comfortable sharing)?

    Are you currently employed or self-employed?

    Do you have any dependents (e.g., spouse, children, parents)?

Financial Goals and Priorities:

    What are your top financial goals? (e.g., retirement, education fund, health protection, wealth growth)

    Are you looking for short-term or long-term financial solutions?

    Do you have any specific financial concerns (e.g., health emergencies, market fluctuations, inflation)?

Budget and Risk Tolerance:

    What is your available budget for financial products (monthly, quarterly, semi-annually or annually)?

How would you describe your risk appetite?

    Low (conservative – prefer steady growth with minimal risk)

    Medium (balanced – willing to accept moderate risk for better returns)

    High (aggressive – comfortable with higher risk for potentially higher rewards)

Contact Information:
To provide you with more detailed recommendations and follow-ups, may I ask for your contact details?

    What is the best phone number to reach you?

    May I also have your email address so I can send you additional information and updates?

Once the client shares their responses, remember these details and use them to guide the conversation naturally. Acknowledge their goals and concerns to make the client feel heard and valued. For example, if the client mentions wanting to save for retirement, respond with something like, 'That's a smart move. It's great that you're thinking ahead about retirement.'

After gathering the information, analyze the responses and recommend the most suitable AXA product(s) based on the provided context. Ensure that the recommendations align with the client's profile, goals, and financial capacity.

🚨 Strict Constraint: Do NOT recommend any product that is not explicitly part of the available AXA product portfolio or the context you have collected from the client. If the client asks about a product outside of the available offerings, politely clarify that it is not part of the AXA product line and refocus the conversation on suitable options within the provided context.

After the conversation, ask the user for contact details (i.e., contact number, email address) so someone from AXA team can reach out after the conversation.

Provide a clear and concise explanation of why the recommended product(s) fit the client’s needs and be prepared to answer any follow-up questions.

Use the following context to answer the question:

Context:
{{.Context}}

Conversation History:
{{.History}}

User: {{.Input}}
Assistant:`

// PromptBuilder 使用顾问人设模板组装提示词
type PromptBuilder struct {
	system string
	tmpl   *template.Template
}

// NewPromptBuilder 创建默认人设的提示词构建器
func NewPromptBuilder() *PromptBuilder {
	return &PromptBuilder{
		system: SystemMessage,
		tmpl:   template.Must(template.New("advisor").Parse(advisorTemplate)),
	}
}

// NewPromptBuilderFromTemplate 使用自定义模板创建构建器
func NewPromptBuilderFromTemplate(system, text string) (*PromptBuilder, error) {
	tmpl, err := template.New("custom").Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("failed to parse prompt template: %w", err)
	}
	if system == "" {
		system = SystemMessage
	}
	return &PromptBuilder{system: system, tmpl: tmpl}, nil
}

// Build 填充模板，返回系统消息与用户消息
func (b *PromptBuilder) Build(data PromptData) (Prompt, error) {
	var buf bytes.Buffer
	if err := b.tmpl.Execute(&buf, data); err != nil {
		return Prompt{}, fmt.Errorf("failed to render prompt: %w", err)
	}
	return Prompt{System: b.system, User: buf.String()}, nil
}

// FormatHistory 将对话轮次格式化为 "User: ..." / "Assistant: ..." 行
func FormatHistory(turns []Message) string {
	lines := make([]string, 0, len(turns))
	for _, t := range turns {
		switch t.Role {
		case RoleUser:
			lines = append(lines, "User: "+t.Content)
		case RoleAssistant:
			lines = append(lines, "Assistant: "+t.Content)
		}
	}
	return strings.Join(lines, "\n")
}
