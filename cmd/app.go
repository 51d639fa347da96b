package main

import (
	"context"
	"fmt"
	"time"

	"github.com/fyerfyer/advisor-rag/config"
	"github.com/fyerfyer/advisor-rag/internal/cache"
	"github.com/fyerfyer/advisor-rag/internal/database"
	"github.com/fyerfyer/advisor-rag/internal/document"
	"github.com/fyerfyer/advisor-rag/internal/document/ocr"
	"github.com/fyerfyer/advisor-rag/internal/embedding"
	"github.com/fyerfyer/advisor-rag/internal/llm"
	"github.com/fyerfyer/advisor-rag/internal/repository"
	"github.com/fyerfyer/advisor-rag/internal/services"
	"github.com/fyerfyer/advisor-rag/internal/vectordb"
	"github.com/fyerfyer/advisor-rag/pkg/logger"
	"github.com/fyerfyer/advisor-rag/pkg/storage"
	"github.com/sirupsen/logrus"
)

// app 进程内共享的组件
type app struct {
	cfg       *config.Config
	logger    *logrus.Logger
	embedder  embedding.Client
	llm       llm.Client
	indexer   *services.Indexer
	retriever *services.Retriever
	archiver  *services.Archiver
	closers   []func() error
}

// appOptions 组件装配选项
type appOptions struct {
	needIndex    bool // 是否需要语料与索引
	needLLM      bool // 是否需要对话模型
	needDatabase bool // 是否需要归档数据库
	persistIndex bool // 关闭时是否把向量后端写入 vectordb.path
}

// newApp 加载配置并装配组件
func newApp(configPath string, opts appOptions) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	log := logger.Setup(logger.Config{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})

	a := &app{cfg: cfg, logger: log}

	if opts.needIndex {
		if err := a.setupIndexing(opts.persistIndex); err != nil {
			a.Close()
			return nil, err
		}
	}

	if opts.needLLM {
		a.llm, err = llm.NewClient(cfg.LLM.Provider,
			llm.WithAPIKey(cfg.LLM.APIKey),
			llm.WithBaseURL(cfg.LLM.Endpoint),
			llm.WithModel(cfg.LLM.Model),
			llm.WithMaxTokens(cfg.LLM.MaxTokens),
			llm.WithTemperature(cfg.LLM.Temperature),
			llm.WithTimeout(cfg.LLM.Timeout),
			llm.WithLogger(log),
		)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to initialize llm client: %w", err)
		}
	}

	if opts.needDatabase {
		dbCfg := database.DefaultConfig()
		dbCfg.Type = cfg.Database.Type
		dbCfg.DSN = cfg.Database.DSN
		if err := database.Setup(dbCfg, log); err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		a.closers = append(a.closers, database.Close)
		a.archiver = services.NewArchiver(repository.NewConversationRepository(), log)
	}

	return a, nil
}

// setupIndexing 创建嵌入客户端、语料来源、索引器与检索器
func (a *app) setupIndexing(persist bool) error {
	embedder, err := a.setupEmbedding()
	if err != nil {
		return fmt.Errorf("failed to initialize embedding client: %w", err)
	}
	a.embedder = embedder

	source, err := a.setupSource()
	if err != nil {
		return fmt.Errorf("failed to initialize corpus source: %w", err)
	}

	repoCfg := vectordb.Config{
		Type:         a.cfg.VectorDB.Type,
		DistanceType: vectordb.DistanceType(a.cfg.VectorDB.Distance),
		QdrantHost:   a.cfg.VectorDB.QdrantHost,
		QdrantPort:   a.cfg.VectorDB.QdrantPort,
		Collection:   a.cfg.VectorDB.Collection,
	}
	if persist {
		repoCfg.Path = a.cfg.VectorDB.Path
	}

	a.indexer = services.NewIndexer(services.IndexerConfig{
		CSVPath:       a.cfg.Corpus.CSVPath,
		MaxChars:      a.cfg.Chunk.MaxChars,
		Overlap:       a.cfg.Chunk.Overlap,
		CheckpointDir: a.cfg.Index.CheckpointDir,
		BuildOptions: []vectordb.BuildOption{
			vectordb.WithRepositoryConfig(repoCfg),
			vectordb.WithBatchSize(a.cfg.Embed.BatchSize),
			vectordb.WithConcurrency(a.cfg.Embed.Concurrency),
			vectordb.WithDimensions(a.cfg.Embed.Dimensions),
			vectordb.WithLogger(a.logger),
		},
	}, a.setupLoader(), source, a.embedder, vectordb.NewHolder(nil), services.NewIndexStatusManager(a.logger), a.logger)
	a.closers = append(a.closers, a.closeIndex)

	a.retriever = services.NewRetriever(a.indexer.Holder(),
		services.WithTopK(a.cfg.Retrieval.TopK),
		services.WithSeparator(a.cfg.Retrieval.Separator),
		services.WithRetrieverLogger(a.logger),
	)
	return nil
}

// setupEmbedding 创建嵌入客户端，启用缓存时包装一层缓存
func (a *app) setupEmbedding() (embedding.Client, error) {
	cfg := a.cfg.Embed
	client, err := embedding.NewClient(cfg.Provider,
		embedding.WithAPIKey(cfg.APIKey),
		embedding.WithBaseURL(cfg.Endpoint),
		embedding.WithModel(cfg.Model),
		embedding.WithDimensions(cfg.Dimensions),
		embedding.WithBatchSize(cfg.BatchSize),
		embedding.WithTimeout(cfg.Timeout),
		embedding.WithLogger(a.logger),
	)
	if err != nil {
		return nil, err
	}
	if !a.cfg.Cache.Enable {
		return client, nil
	}

	cacheCfg := cache.DefaultConfig()
	cacheCfg.Type = a.cfg.Cache.Type
	cacheCfg.RedisAddr = a.cfg.Cache.Address
	cacheCfg.RedisPassword = a.cfg.Cache.Password
	cacheCfg.RedisDB = a.cfg.Cache.DB
	ttl := time.Duration(a.cfg.Cache.TTL) * time.Second
	if ttl > 0 {
		cacheCfg.DefaultTTL = ttl
	}

	c, err := cache.NewCache(cacheCfg)
	if err != nil {
		a.logger.WithError(err).Warn("Embedding cache unavailable, continuing without cache")
		return client, nil
	}
	if closer, ok := c.(interface{ Close() error }); ok {
		a.closers = append(a.closers, closer.Close)
	}
	return embedding.NewCachedClient(client, c, cacheCfg.DefaultTTL, a.logger), nil
}

// setupSource 创建PDF来源
func (a *app) setupSource() (storage.Source, error) {
	return storage.NewSource(storage.Config{
		Type:  a.cfg.Corpus.Source,
		Local: storage.LocalConfig{Path: a.cfg.Corpus.PDFDir},
		Minio: storage.MinioConfig{
			Endpoint:  a.cfg.Storage.Endpoint,
			AccessKey: a.cfg.Storage.AccessKey,
			SecretKey: a.cfg.Storage.SecretKey,
			UseSSL:    a.cfg.Storage.UseSSL,
			Bucket:    a.cfg.Storage.Bucket,
			Prefix:    a.cfg.Storage.Prefix,
		},
	})
}

// setupLoader 创建语料加载器，按配置启用OCR回退
func (a *app) setupLoader() *document.Loader {
	pdfOpts := []document.PDFOption{document.WithLogger(a.logger)}
	if a.cfg.OCR.Enabled {
		pdfOpts = append(pdfOpts, document.WithOCR(
			ocr.NewFitzRasterizer(a.cfg.OCR.DPI),
			ocr.NewTesseractEngine(a.cfg.OCR.Language),
		))
	}
	return document.NewLoader(document.NewPDFExtractor(pdfOpts...), document.WithLoaderLogger(a.logger))
}

// buildIndex 同步构建索引，语料为空时返回 vectordb.ErrIndexEmpty
func (a *app) buildIndex(ctx context.Context) (vectordb.Stats, error) {
	return a.indexer.Rebuild(ctx)
}

// newConversation 创建一个新对话
func (a *app) newConversation(opts ...services.ConversationOption) *services.Conversation {
	base := []services.ConversationOption{
		services.WithWindow(a.cfg.History.Window),
		services.WithCompletionTimeout(a.cfg.LLM.Timeout),
		services.WithProfileExtractor(services.NewProfileExtractor(a.llm, a.logger)),
		services.WithTokenCounter(llm.DefaultTokenCounter()),
		services.WithConversationLogger(a.logger),
	}
	return services.NewConversation(a.retriever, a.llm, append(base, opts...)...)
}

func (a *app) closeIndex() error {
	if old := a.indexer.Holder().Swap(nil); old != nil {
		return old.Retire()
	}
	return nil
}

// Close 按创建的逆序释放资源
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.WithError(err).Warn("Failed to release resource")
		}
	}
	a.closers = nil
}
