package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/fyerfyer/advisor-rag/api/handler"
	"github.com/fyerfyer/advisor-rag/api/middleware"
	"github.com/fyerfyer/advisor-rag/api/model"
	"github.com/fyerfyer/advisor-rag/internal/document"
	"github.com/fyerfyer/advisor-rag/internal/embedding"
	"github.com/fyerfyer/advisor-rag/internal/llm"
	"github.com/fyerfyer/advisor-rag/internal/models"
	"github.com/fyerfyer/advisor-rag/internal/repository"
	"github.com/fyerfyer/advisor-rag/internal/services"
	"github.com/fyerfyer/advisor-rag/internal/vectordb"
	"github.com/fyerfyer/advisor-rag/pkg/logger"
	"github.com/fyerfyer/advisor-rag/pkg/storage"
	"github.com/fyerfyer/advisor-rag/pkg/taskqueue"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// testEnv API测试环境
type testEnv struct {
	Router   *gin.Engine
	LLM      *llm.MockClient
	Indexer  *services.Indexer
	Sessions *services.SessionManager
	Repo     repository.ConversationRepository
}

func setupTestEnv(t *testing.T) *testEnv {
	gin.SetMode(gin.TestMode)
	log := logger.Discard()
	middleware.SetLogger(log)

	dsn := fmt.Sprintf("file:memdb_api_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Conversation{}, &models.ConversationTurn{}))
	repo := repository.NewConversationRepositoryWithDB(db)

	dir := t.TempDir()
	csvPath := filepath.Join(dir, "scraped.csv")
	require.NoError(t, os.WriteFile(csvPath,
		[]byte("url,content\nhttps://axa.example/a,\"AXA offers Product A for retirement, Product B for health.\"\n"), 0644))

	embedder, err := embedding.NewLocalClient(embedding.WithDimensions(512))
	require.NoError(t, err)

	loader := document.NewLoader(document.NewPDFExtractor(document.WithLogger(log)), document.WithLoaderLogger(log))
	indexer := services.NewIndexer(services.IndexerConfig{
		CSVPath:      csvPath,
		MaxChars:     1000,
		Overlap:      100,
		BuildOptions: []vectordb.BuildOption{vectordb.WithLogger(log)},
	}, loader, storage.NewLocalSource(storage.LocalConfig{Path: filepath.Join(dir, "pdfs")}),
		embedder, vectordb.NewHolder(nil), nil, log)

	mockLLM := llm.NewMockClient(t)
	mockLLM.EXPECT().Name().Return("mock-llm").Maybe()

	retriever := services.NewRetriever(indexer.Holder(), services.WithRetrieverLogger(log))
	factory := func(opts ...services.ConversationOption) *services.Conversation {
		opts = append(opts, services.WithConversationLogger(log))
		return services.NewConversation(retriever, mockLLM, opts...)
	}
	sessions := services.NewSessionManager(factory, services.NewArchiver(repo, log), log)

	router := SetupRouter(
		handler.NewSessionHandler(sessions),
		handler.NewIndexHandler(indexer, nil, sessions),
	)

	return &testEnv{
		Router:   router,
		LLM:      mockLLM,
		Indexer:  indexer,
		Sessions: sessions,
		Repo:     repo,
	}
}

// doRequest 发送请求并解析统一响应
func (e *testEnv) doRequest(t *testing.T, method, path string, body interface{}) (*httptest.ResponseRecorder, model.Response) {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.Router.ServeHTTP(w, req)

	var resp model.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return w, resp
}

// decodeData 将响应中的data解码为目标结构
func decodeData(t *testing.T, resp model.Response, v interface{}) {
	data, err := json.Marshal(resp.Data)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, v))
}

func TestSessionLifecycle(t *testing.T) {
	env := setupTestEnv(t)
	_, err := env.Indexer.Rebuild(context.Background())
	require.NoError(t, err)

	env.LLM.EXPECT().Chat(mock.Anything, mock.Anything).RunAndReturn(
		func(ctx context.Context, messages []llm.Message) (*llm.Response, error) {
			if !assert.Contains(t, messages[1].Content, "Product A") {
				return nil, fmt.Errorf("missing context")
			}
			return &llm.Response{Text: "Product A fits your retirement plan."}, nil
		})

	w, resp := env.doRequest(t, http.MethodPost, "/api/sessions", nil)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.NotEmpty(t, w.Header().Get(middleware.TraceIDHeader))
	var created model.SessionCreateResponse
	decodeData(t, resp, &created)
	require.NotEmpty(t, created.SessionID)

	w, resp = env.doRequest(t, http.MethodPost, "/api/sessions/"+created.SessionID+"/messages",
		model.MessageRequest{Message: "I want to save for retirement"})
	require.Equal(t, http.StatusOK, w.Code)
	var msg model.MessageResponse
	decodeData(t, resp, &msg)
	assert.Equal(t, "Product A fits your retirement plan.", msg.Reply)
	assert.Equal(t, "<p>Product A fits your retirement plan.</p>", msg.ReplyHTML)

	w, resp = env.doRequest(t, http.MethodGet, "/api/sessions/"+created.SessionID+"/history", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var history model.HistoryResponse
	decodeData(t, resp, &history)
	require.Len(t, history.Messages, 2)
	assert.Equal(t, "user", history.Messages[0].Role)
	assert.Equal(t, "assistant", history.Messages[1].Role)

	w, resp = env.doRequest(t, http.MethodPost, "/api/sessions/"+created.SessionID+"/end", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var ended model.SessionEndResponse
	decodeData(t, resp, &ended)
	assert.Equal(t, 2, ended.Messages)

	saved, err := env.Repo.GetByID(created.SessionID)
	require.NoError(t, err)
	assert.Len(t, saved.Turns, 2)

	w, resp = env.doRequest(t, http.MethodPost, "/api/sessions/"+created.SessionID+"/end", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, http.StatusNotFound, resp.Code)
	assert.NotEmpty(t, resp.TraceID)
}

func TestSessionValidation(t *testing.T) {
	env := setupTestEnv(t)

	w, _ := env.doRequest(t, http.MethodPost, "/api/sessions/not-a-uuid/messages",
		model.MessageRequest{Message: "hello"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	id := env.Sessions.Create()
	w, _ = env.doRequest(t, http.MethodPost, "/api/sessions/"+id+"/messages", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = env.doRequest(t, http.MethodPost, "/api/sessions/"+id+"/messages",
		model.MessageRequest{Message: "   "})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = env.doRequest(t, http.MethodGet, "/api/sessions/00000000-0000-0000-0000-000000000000/history", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestIndexEndpoints(t *testing.T) {
	env := setupTestEnv(t)

	w, resp := env.doRequest(t, http.MethodGet, "/api/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var health model.HealthResponse
	decodeData(t, resp, &health)
	assert.Equal(t, "degraded", health.Status)
	assert.False(t, health.IndexReady)

	w, resp = env.doRequest(t, http.MethodPost, "/api/index/rebuild", nil)
	require.Equal(t, http.StatusAccepted, w.Code)
	var rebuild model.IndexRebuildResponse
	decodeData(t, resp, &rebuild)
	assert.Equal(t, "background", rebuild.Mode)

	require.Eventually(t, func() bool {
		return env.Indexer.Status().State == services.IndexReady
	}, 5*time.Second, 20*time.Millisecond)

	w, resp = env.doRequest(t, http.MethodGet, "/api/index/status", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var status model.IndexStatusResponse
	decodeData(t, resp, &status)
	assert.Equal(t, "ready", status.State)
	assert.True(t, status.Ready)
	assert.Equal(t, 1, status.Stats.Chunks)
	assert.Equal(t, "local-hash", status.Stats.Model)

	w, resp = env.doRequest(t, http.MethodGet, "/api/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	decodeData(t, resp, &health)
	assert.Equal(t, "ok", health.Status)
}

func TestIndexRebuildQueued(t *testing.T) {
	env := setupTestEnv(t)
	mr := miniredis.RunT(t)

	cfg := taskqueue.DefaultConfig()
	cfg.RedisAddr = mr.Addr()
	cfg.Logger = logger.Discard()
	queue, err := taskqueue.NewRedisQueue(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { queue.Close() })

	env.Router = SetupRouter(
		handler.NewSessionHandler(env.Sessions),
		handler.NewIndexHandler(env.Indexer, queue, env.Sessions),
	)

	w, resp := env.doRequest(t, http.MethodPost, "/api/index/rebuild", model.IndexRebuildRequest{Reason: "corpus refreshed"})
	require.Equal(t, http.StatusAccepted, w.Code)
	var rebuild model.IndexRebuildResponse
	decodeData(t, resp, &rebuild)
	assert.Equal(t, "queued", rebuild.Mode)
	require.NotEmpty(t, rebuild.TaskID)

	w, resp = env.doRequest(t, http.MethodGet, "/api/index/tasks/"+rebuild.TaskID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var info taskqueue.TaskInfo
	decodeData(t, resp, &info)
	assert.Equal(t, taskqueue.TaskIndexRebuild, info.Type)
	assert.Equal(t, taskqueue.StatusPending, info.Status)

	task, err := queue.GetTask(context.Background(), rebuild.TaskID)
	require.NoError(t, err)
	var payload taskqueue.IndexRebuildPayload
	require.NoError(t, taskqueue.UnmarshalPayload(task.Payload, &payload))
	assert.Equal(t, "corpus refreshed", payload.Reason)

	w, _ = env.doRequest(t, http.MethodGet, "/api/index/tasks/00000000-0000-0000-0000-000000000000", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = env.doRequest(t, http.MethodGet, "/api/index/tasks/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestIndexRebuildScheduled(t *testing.T) {
	env := setupTestEnv(t)
	mr := miniredis.RunT(t)

	cfg := taskqueue.DefaultConfig()
	cfg.RedisAddr = mr.Addr()
	cfg.Logger = logger.Discard()
	queue, err := taskqueue.NewRedisQueue(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { queue.Close() })

	env.Router = SetupRouter(
		handler.NewSessionHandler(env.Sessions),
		handler.NewIndexHandler(env.Indexer, queue, env.Sessions),
	)

	before := time.Now()
	w, resp := env.doRequest(t, http.MethodPost, "/api/index/rebuild",
		model.IndexRebuildRequest{Reason: "nightly", DelaySeconds: 3600})
	require.Equal(t, http.StatusAccepted, w.Code)
	var rebuild model.IndexRebuildResponse
	decodeData(t, resp, &rebuild)
	assert.Equal(t, "scheduled", rebuild.Mode)
	require.NotEmpty(t, rebuild.TaskID)
	require.NotNil(t, rebuild.ProcessAt)
	assert.True(t, rebuild.ProcessAt.After(before.Add(59*time.Minute)))

	w, resp = env.doRequest(t, http.MethodGet, "/api/index/tasks/"+rebuild.TaskID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var info taskqueue.TaskInfo
	decodeData(t, resp, &info)
	assert.Equal(t, taskqueue.StatusPending, info.Status)
	require.NotNil(t, info.ProcessAt)

	w, _ = env.doRequest(t, http.MethodPost, "/api/index/rebuild",
		model.IndexRebuildRequest{DelaySeconds: 90000})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestIndexRebuildDelayRequiresQueue(t *testing.T) {
	env := setupTestEnv(t)

	w, _ := env.doRequest(t, http.MethodPost, "/api/index/rebuild", model.IndexRebuildRequest{DelaySeconds: 60})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTaskEndpointWithoutQueue(t *testing.T) {
	env := setupTestEnv(t)

	w, _ := env.doRequest(t, http.MethodGet, "/api/index/tasks/00000000-0000-0000-0000-000000000000", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRenderReply(t *testing.T) {
	html := model.RenderReply("**Product A** suits you.\n\n- Retirement\n- Health\n\n<script>alert(1)</script>")
	assert.Contains(t, html, "<strong>Product A</strong>")
	assert.Contains(t, html, "<li>Retirement</li>")
	assert.NotContains(t, html, "<script>")

	assert.Equal(t, "", model.RenderReply("  "))
}
