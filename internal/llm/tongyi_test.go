package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/fyerfyer/advisor-rag/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTongyiClientChat(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// 第一次返回500以验证重试时请求体被完整重发
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		var req TongyiRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, ModelQwenPlus, req.Model)
		require.Len(t, req.Input.Messages, 2)
		require.NotNil(t, req.Parameters)
		assert.Equal(t, "message", req.Parameters.ResultFormat)
		require.NotNil(t, req.Parameters.MaxTokens)
		assert.Equal(t, 256, *req.Parameters.MaxTokens)
		require.NotNil(t, req.Parameters.ResponseFormat)
		assert.Equal(t, "json_object", req.Parameters.ResponseFormat.Type)

		json.NewEncoder(w).Encode(TongyiResponse{
			Output: TongyiOutput{Choices: []TongyiChoice{{
				FinishReason: "stop",
				Message:      Message{Role: RoleAssistant, Content: "你好"},
			}}},
			Usage:     TongyiUsage{TotalTokens: 12},
			RequestID: "req-1",
		})
	}))
	defer srv.Close()

	client, err := NewClient("tongyi",
		WithAPIKey("sk-test"),
		WithBaseURL(srv.URL),
		WithModel(ModelQwenPlus),
		WithMaxTokens(256),
		WithMaxRetries(2),
		WithLogger(logger.Discard()),
	)
	require.NoError(t, err)

	resp, err := client.Chat(context.Background(), Prompt{System: "s", User: "u"}.Messages(), WithJSONMode())
	require.NoError(t, err)
	assert.Equal(t, "你好", resp.Text)
	assert.Equal(t, 12, resp.TokenCount)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestTongyiClientErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"code":"InvalidApiKey","message":"Invalid API-key provided."}`))
	}))
	defer srv.Close()

	client, err := NewTongyiClient(WithAPIKey("bad"), WithBaseURL(srv.URL), WithLogger(logger.Discard()))
	require.NoError(t, err)

	_, err = client.Chat(context.Background(), []Message{{Role: RoleUser, Content: "hi"}})
	assert.Equal(t, ErrCodeInvalidAPIKey, ErrorCode(err))
	assert.Contains(t, err.Error(), "InvalidApiKey")
	// 客户端错误不重试
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	_, err = NewTongyiClient()
	assert.Equal(t, ErrCodeInvalidAPIKey, ErrorCode(err))

	_, err = NewClient("unknown")
	assert.Equal(t, ErrCodeInvalidRequest, ErrorCode(err))
}

func TestTongyiClientEmptyOutput(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"output":{},"usage":{"total_tokens":1},"request_id":"r"}`))
	}))
	defer srv.Close()

	client, err := NewTongyiClient(WithAPIKey("k"), WithBaseURL(srv.URL), WithLogger(logger.Discard()))
	require.NoError(t, err)

	_, err = client.Chat(context.Background(), []Message{{Role: RoleUser, Content: "hi"}})
	assert.Equal(t, ErrCodeEmptyResponse, ErrorCode(err))
}
