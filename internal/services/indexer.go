package services

import (
	"context"
	"errors"
	"os"
	"sync"

	"github.com/fyerfyer/advisor-rag/internal/document"
	"github.com/fyerfyer/advisor-rag/internal/embedding"
	"github.com/fyerfyer/advisor-rag/internal/vectordb"
	"github.com/fyerfyer/advisor-rag/pkg/storage"
	"github.com/sirupsen/logrus"
)

// ErrRebuildInProgress 已有重建任务在执行
var ErrRebuildInProgress = errors.New("index rebuild already in progress")

// IndexerConfig 索引流水线参数
type IndexerConfig struct {
	CSVPath       string // 抓取结果CSV路径
	MaxChars      int    // 分块最大字符数
	Overlap       int    // 分块重叠字符数
	CheckpointDir string // 检查点目录，为空则不持久化
	BuildOptions  []vectordb.BuildOption
}

// Indexer 语料加载、分块、嵌入并替换当前索引
type Indexer struct {
	cfg      IndexerConfig
	loader   *document.Loader
	source   storage.Source
	embedder embedding.Client
	holder   *vectordb.Holder
	status   *IndexStatusManager
	logger   *logrus.Logger
	building sync.Mutex
}

// NewIndexer 创建索引服务
// source 可以为nil，此时只使用CSV语料
func NewIndexer(cfg IndexerConfig, loader *document.Loader, source storage.Source, embedder embedding.Client,
	holder *vectordb.Holder, status *IndexStatusManager, logger *logrus.Logger) *Indexer {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if status == nil {
		status = NewIndexStatusManager(logger)
	}
	return &Indexer{
		cfg:      cfg,
		loader:   loader,
		source:   source,
		embedder: embedder,
		holder:   holder,
		status:   status,
		logger:   logger,
	}
}

// Holder 当前索引的持有者
func (ix *Indexer) Holder() *vectordb.Holder {
	return ix.holder
}

// Status 索引状态
func (ix *Indexer) Status() IndexStatus {
	return ix.status.Status()
}

// Rebuild 重建索引并原子替换，同一时刻只允许一个重建
// 构建失败时保留旧索引
func (ix *Indexer) Rebuild(ctx context.Context) (vectordb.Stats, error) {
	if !ix.building.TryLock() {
		return vectordb.Stats{}, ErrRebuildInProgress
	}
	defer ix.building.Unlock()

	if err := ix.status.MarkBuilding(); err != nil {
		return vectordb.Stats{}, err
	}

	index, fromCheckpoint, err := ix.build(ctx)
	if err != nil {
		ix.status.MarkFailed(err)
		return vectordb.Stats{}, err
	}

	if old := ix.holder.Swap(index); old != nil {
		if err := old.Retire(); err != nil {
			ix.logger.WithError(err).Warn("Failed to close previous index")
		}
	}

	stats := index.Stats()
	ix.status.MarkReady(stats, fromCheckpoint)
	return stats, nil
}

// build 加载语料并构建索引，检查点匹配时跳过嵌入
func (ix *Indexer) build(ctx context.Context) (*vectordb.Index, bool, error) {
	corpus, err := ix.loader.LoadCorpus(ctx, ix.cfg.CSVPath, ix.source)
	if err != nil {
		return nil, false, err
	}
	for _, d := range corpus.Diagnostics {
		ix.logger.WithError(d).Warn("Corpus diagnostic")
	}

	chunks, err := document.Split(corpus.Text, ix.cfg.MaxChars, ix.cfg.Overlap)
	if err != nil {
		return nil, false, err
	}
	if len(chunks) == 0 {
		return nil, false, vectordb.ErrIndexEmpty
	}

	key := vectordb.CheckpointKey(corpus.Text, ix.cfg.MaxChars, ix.cfg.Overlap, ix.embedder.Name())
	if index, ok := ix.fromCheckpoint(ctx, key); ok {
		return index, true, nil
	}

	ix.logger.WithFields(logrus.Fields{
		"documents": len(corpus.Documents),
		"chunks":    len(chunks),
		"model":     ix.embedder.Name(),
	}).Info("Building index")

	index, err := vectordb.Build(ctx, ix.embedder, chunks, ix.cfg.BuildOptions...)
	if err != nil {
		return nil, false, err
	}

	if ix.cfg.CheckpointDir != "" {
		if err := vectordb.SaveCheckpoint(ix.cfg.CheckpointDir, vectordb.NewCheckpoint(key, index)); err != nil {
			ix.logger.WithError(err).Warn("Failed to save index checkpoint")
		}
	}
	return index, false, nil
}

// fromCheckpoint 读取匹配的检查点，任何问题都退回完整构建
func (ix *Indexer) fromCheckpoint(ctx context.Context, key string) (*vectordb.Index, bool) {
	if ix.cfg.CheckpointDir == "" {
		return nil, false
	}

	cp, err := vectordb.LoadCheckpoint(ix.cfg.CheckpointDir)
	if err != nil {
		if !os.IsNotExist(err) {
			ix.logger.WithError(err).Warn("Failed to load index checkpoint")
		}
		return nil, false
	}
	if cp.Key != key {
		ix.logger.Info("Index checkpoint is stale, rebuilding")
		return nil, false
	}

	index, err := vectordb.FromEntries(ctx, ix.embedder, cp.IndexEntries(), ix.cfg.BuildOptions...)
	if err != nil {
		ix.logger.WithError(err).Warn("Failed to restore index from checkpoint")
		return nil, false
	}
	ix.logger.WithField("chunks", len(cp.Entries)).Info("Index restored from checkpoint")
	return index, true
}
