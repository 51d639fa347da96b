package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/fyerfyer/advisor-rag/internal/llm"
	"github.com/fyerfyer/advisor-rag/internal/vectordb"
	"github.com/fyerfyer/advisor-rag/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const axaCorpus = "AXA offers Product A for retirement, Product B for health."

func TestConversationEndToEnd(t *testing.T) {
	retriever := NewRetriever(newTestHolder(t, axaCorpus), WithRetrieverLogger(logger.Discard()))

	text, hits, err := retriever.Retrieve(context.Background(), "I want to save for retirement")
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Contains(t, text, "Product A")

	var prompts []string
	m := llm.NewMockClient(t)
	m.EXPECT().Name().Return("mock").Maybe()
	m.EXPECT().Chat(mock.Anything, mock.Anything).RunAndReturn(
		func(ctx context.Context, messages []llm.Message) (*llm.Response, error) {
			prompts = append(prompts, messages[1].Content)
			if len(prompts) == 1 {
				return &llm.Response{Text: "Product A suits your retirement goal."}, nil
			}
			return nil, llm.NewLLMError(llm.ErrCodeServerError, "down")
		})

	conv := NewConversation(retriever, m, WithConversationLogger(logger.Discard()))
	assert.Equal(t, StateIdle, conv.State())

	reply, err := conv.Reply(context.Background(), "I want to save for retirement")
	require.NoError(t, err)
	assert.Equal(t, "Product A suits your retirement goal.", reply)
	assert.Contains(t, prompts[0], "Product A")
	assert.Contains(t, prompts[0], "User: I want to save for retirement")
	assert.Equal(t, StateActive, conv.State())

	reply, err = conv.Reply(context.Background(), "What about health?")
	require.NoError(t, err)
	assert.Equal(t, llm.FallbackReply, reply)
	assert.Len(t, conv.History(), 4)
	assert.Contains(t, prompts[1], "Assistant: Product A suits your retirement goal.")
}

func TestConversationHistoryAndWindow(t *testing.T) {
	var last []llm.Message
	m := llm.NewMockClient(t)
	m.EXPECT().Name().Return("mock").Maybe()
	m.EXPECT().Chat(mock.Anything, mock.Anything).RunAndReturn(
		func(ctx context.Context, messages []llm.Message) (*llm.Response, error) {
			last = messages
			return &llm.Response{Text: "ok"}, nil
		})

	retriever := NewRetriever(newTestHolder(t, axaCorpus), WithRetrieverLogger(logger.Discard()))
	conv := NewConversation(retriever, m, WithWindow(2), WithConversationLogger(logger.Discard()))

	const turns = 5
	for i := 0; i < turns; i++ {
		_, err := conv.Reply(context.Background(), fmt.Sprintf("question %d", i))
		require.NoError(t, err)
	}

	history := conv.History()
	require.Len(t, history, 2*turns)
	for i, msg := range history {
		if i%2 == 0 {
			assert.Equal(t, llm.RoleUser, msg.Role)
			assert.Equal(t, fmt.Sprintf("question %d", i/2), msg.Content)
		} else {
			assert.Equal(t, llm.RoleAssistant, msg.Role)
		}
	}

	window := conv.Window()
	require.Len(t, window, 4)
	assert.Equal(t, "question 3", window[0].Content)

	// 最后一次请求的窗口只包含第2、3轮
	prompt := last[1].Content
	assert.NotContains(t, prompt, "User: question 1")
	assert.Contains(t, prompt, "User: question 2")
	assert.Contains(t, prompt, "User: question 3")

	history[0].Content = "changed"
	assert.Equal(t, "question 0", conv.History()[0].Content)
}

func TestConversationDegradesWithoutIndex(t *testing.T) {
	m := llm.NewMockClient(t)
	m.EXPECT().Name().Return("mock").Maybe()
	m.EXPECT().Chat(mock.Anything, mock.Anything).Return(&llm.Response{Text: "   "}, nil)

	retriever := NewRetriever(vectordb.NewHolder(nil))
	_, _, err := retriever.Retrieve(context.Background(), "hello")
	assert.True(t, errors.Is(err, vectordb.ErrIndexNotReady))

	conv := NewConversation(retriever, m, WithConversationLogger(logger.Discard()))
	reply, err := conv.Reply(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, llm.FallbackReply, reply)
	assert.Len(t, conv.History(), 2)
}

func TestConversationInputAndEnd(t *testing.T) {
	m := llm.NewMockClient(t)
	conv := NewConversation(NewRetriever(vectordb.NewHolder(nil)), m,
		WithConversationID("fixed-id"), WithConversationLogger(logger.Discard()))

	_, err := conv.Reply(context.Background(), "   ")
	assert.True(t, errors.Is(err, ErrEmptyInput))

	transcript, err := conv.End()
	require.NoError(t, err)
	assert.Equal(t, "fixed-id", transcript.ID)
	assert.Empty(t, transcript.Turns)
	assert.Equal(t, StateEnded, conv.State())

	_, err = conv.End()
	assert.True(t, errors.Is(err, ErrConversationEnded))
	_, err = conv.Reply(context.Background(), "hello")
	assert.True(t, errors.Is(err, ErrConversationEnded))
}

func TestConversationMergesProfile(t *testing.T) {
	m := llm.NewMockClient(t)
	m.EXPECT().Name().Return("mock").Maybe()
	m.EXPECT().Chat(mock.Anything, mock.Anything).RunAndReturn(
		func(ctx context.Context, messages []llm.Message) (*llm.Response, error) {
			if !isExtraction(messages) {
				return &llm.Response{Text: "Noted."}, nil
			}
			if strings.Contains(messages[1].Content, "I am 34") {
				return &llm.Response{Text: `{"age":"34"}`}, nil
			}
			if strings.Contains(messages[1].Content, "Ana") {
				return &llm.Response{Text: `{"name":"Ana"}`}, nil
			}
			return &llm.Response{Text: "not json"}, nil
		})

	extractor := NewProfileExtractor(m, logger.Discard())
	conv := NewConversation(NewRetriever(newTestHolder(t, axaCorpus)), m,
		WithProfileExtractor(extractor), WithConversationLogger(logger.Discard()))

	_, err := conv.Reply(context.Background(), "I'm Ana")
	require.NoError(t, err)
	assert.Equal(t, "Ana", conv.Profile().Name)

	_, err = conv.Reply(context.Background(), "I am 34")
	require.NoError(t, err)
	assert.Equal(t, Profile{Name: "Ana", Age: "34"}, conv.Profile())
}
