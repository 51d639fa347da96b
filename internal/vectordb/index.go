package vectordb

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fyerfyer/advisor-rag/internal/document"
	"github.com/fyerfyer/advisor-rag/internal/embedding"
	"github.com/sirupsen/logrus"
)

// Hit 一条检索结果
type Hit struct {
	Chunk document.Chunk
	Score float32
}

// Entry 片段及其向量，用于检查点持久化
type Entry struct {
	Chunk  document.Chunk
	Vector []float32
}

// Stats 索引统计信息
type Stats struct {
	Chunks    int       `json:"chunks"`    // 已索引片段数
	Failed    int       `json:"failed"`    // 嵌入失败被跳过的片段数
	Dimension int       `json:"dimension"` // 向量维度
	Model     string    `json:"model"`     // 嵌入模型
	Backend   string    `json:"backend"`   // 向量后端
	BuiltAt   time.Time `json:"built_at"`  // 构建时间
}

// Index 构建完成后只读的向量索引，可并发查询
// 被替换的索引先退役，最后一个引用释放后才关闭后端
type Index struct {
	repo     Repository
	embedder embedding.Client
	chunks   map[int]document.Chunk
	entries  []Entry
	stats    Stats
	logger   *logrus.Logger

	mu      sync.Mutex
	refs    int
	retired bool
	closed  bool
}

// buildOptions 构建选项
type buildOptions struct {
	repoConfig  Config
	batchSize   int
	concurrency int
	dimensions  int
	logger      *logrus.Logger
}

// BuildOption 构建选项函数类型
type BuildOption func(*buildOptions)

// WithRepositoryConfig 设置向量后端配置，维度由嵌入结果决定
func WithRepositoryConfig(cfg Config) BuildOption {
	return func(o *buildOptions) {
		o.repoConfig = cfg
	}
}

// WithBatchSize 设置嵌入批次大小
func WithBatchSize(n int) BuildOption {
	return func(o *buildOptions) {
		o.batchSize = n
	}
}

// WithConcurrency 设置嵌入并发数
func WithConcurrency(n int) BuildOption {
	return func(o *buildOptions) {
		o.concurrency = n
	}
}

// WithDimensions 设置期望的向量维度
func WithDimensions(dim int) BuildOption {
	return func(o *buildOptions) {
		o.dimensions = dim
	}
}

// WithLogger 设置日志记录器
func WithLogger(logger *logrus.Logger) BuildOption {
	return func(o *buildOptions) {
		o.logger = logger
	}
}

func newBuildOptions(opts []BuildOption) *buildOptions {
	o := &buildOptions{
		repoConfig:  Config{Type: "memory", DistanceType: Cosine},
		batchSize:   16,
		concurrency: 4,
		logger:      logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Build 嵌入全部片段并建立索引
// 单个片段嵌入失败只记录日志并跳过，全部失败时返回 ErrIndexEmpty
func Build(ctx context.Context, embedder embedding.Client, chunks []document.Chunk, opts ...BuildOption) (*Index, error) {
	o := newBuildOptions(opts)
	if len(chunks) == 0 {
		return nil, ErrIndexEmpty
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	processor := embedding.NewBatchProcessor(embedder, o.batchSize, o.concurrency,
		embedding.WithExpectedDimensions(o.dimensions),
		embedding.WithBatchLogger(o.logger),
	)
	results := processor.Process(ctx, texts)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	dimension := o.dimensions
	entries := make([]Entry, 0, len(chunks))
	failed := 0
	for _, r := range results {
		chunk := chunks[r.Index]
		err := r.Err
		if err == nil && dimension == 0 {
			dimension = len(r.Vector)
		}
		if err == nil && len(r.Vector) != dimension {
			err = embedding.NewEmbeddingError(embedding.ErrCodeDimension,
				fmt.Sprintf("expected %d dimensions, got %d", dimension, len(r.Vector)))
		}
		if err != nil {
			failed++
			o.logger.WithFields(logrus.Fields{
				"ordinal": chunk.Ordinal,
				"start":   chunk.Start,
			}).WithError(err).Warn("Skipping chunk that failed to embed")
			continue
		}
		entries = append(entries, Entry{Chunk: chunk, Vector: r.Vector})
	}

	idx, err := fromEntries(ctx, embedder, entries, o)
	if err != nil {
		return nil, err
	}
	idx.stats.Failed = failed

	o.logger.WithFields(logrus.Fields{
		"chunks":    len(entries),
		"failed":    failed,
		"dimension": dimension,
		"model":     embedder.Name(),
		"backend":   idx.stats.Backend,
	}).Info("Vector index built")

	return idx, nil
}

// FromEntries 使用已有向量建立索引，不调用嵌入服务
func FromEntries(ctx context.Context, embedder embedding.Client, entries []Entry, opts ...BuildOption) (*Index, error) {
	return fromEntries(ctx, embedder, entries, newBuildOptions(opts))
}

func fromEntries(ctx context.Context, embedder embedding.Client, entries []Entry, o *buildOptions) (*Index, error) {
	if len(entries) == 0 {
		return nil, ErrIndexEmpty
	}

	cfg := o.repoConfig
	cfg.Dimension = len(entries[0].Vector)
	repo, err := NewRepository(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create vector repository: %w", err)
	}

	docs := make([]Document, len(entries))
	chunks := make(map[int]document.Chunk, len(entries))
	for i, e := range entries {
		docs[i] = Document{
			ID:      fmt.Sprintf("chunk-%d", e.Chunk.Ordinal),
			Ordinal: e.Chunk.Ordinal,
			Text:    e.Chunk.Text,
			Vector:  e.Vector,
		}
		chunks[e.Chunk.Ordinal] = e.Chunk
	}
	if err := repo.AddBatch(ctx, docs); err != nil {
		repo.Close()
		return nil, fmt.Errorf("failed to store vectors: %w", err)
	}

	backend := cfg.Type
	if _, ok := RepositoryRegistry[backend]; !ok {
		backend = "memory"
	}

	return &Index{
		repo:     repo,
		embedder: embedder,
		chunks:   chunks,
		entries:  entries,
		logger:   o.logger,
		stats: Stats{
			Chunks:    len(entries),
			Dimension: cfg.Dimension,
			Model:     embedder.Name(),
			Backend:   backend,
			BuiltAt:   time.Now(),
		},
	}, nil
}

// Query 返回与文本最相似的至多k个片段，按得分降序、序号升序排列
func (ix *Index) Query(ctx context.Context, text string, k int) ([]Hit, error) {
	if k <= 0 {
		return nil, fmt.Errorf("k must be positive, got %d", k)
	}
	if ix.isClosed() {
		return nil, ErrIndexClosed
	}

	vector, err := ix.embedder.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	if len(vector) != ix.stats.Dimension {
		return nil, embedding.NewEmbeddingError(embedding.ErrCodeDimension,
			fmt.Sprintf("expected %d dimensions, got %d", ix.stats.Dimension, len(vector)))
	}

	candidates, err := ix.repo.Search(ctx, vector, ix.candidateLimit(k))
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}
	SortSearchResults(candidates)
	if len(candidates) > k {
		candidates = candidates[:k]
	}

	hits := make([]Hit, 0, len(candidates))
	for _, c := range candidates {
		chunk, ok := ix.chunks[c.Document.Ordinal]
		if !ok {
			chunk = document.Chunk{Text: c.Document.Text, Ordinal: c.Document.Ordinal}
		}
		hits = append(hits, Hit{Chunk: chunk, Score: c.Score})
	}
	return hits, nil
}

// exhaustiveLimit 不超过该规模的索引取回全部候选
const exhaustiveLimit = 4096

// candidateLimit 计算向后端请求的候选数
// 小索引取回全部片段，得分并列时的序号顺序总是确定的；
// 大索引取 k 的两倍，超过 2k 个并列候选时只保证返回的得分正确
func (ix *Index) candidateLimit(k int) int {
	total := len(ix.entries)
	if total <= exhaustiveLimit {
		if total < k {
			return k
		}
		return total
	}
	return k * 2
}

// Stats 返回索引统计信息
func (ix *Index) Stats() Stats {
	return ix.stats
}

// Entries 返回全部片段与向量
func (ix *Index) Entries() []Entry {
	return ix.entries
}

// Acquire 为查询持有一个引用，索引已退役或关闭时返回 false
func (ix *Index) Acquire() bool {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ix.retired || ix.closed {
		return false
	}
	ix.refs++
	return true
}

// Release 释放 Acquire 持有的引用
func (ix *Index) Release() {
	ix.mu.Lock()
	if ix.refs > 0 {
		ix.refs--
	}
	drained := ix.retired && ix.refs == 0
	ix.mu.Unlock()

	if drained {
		if err := ix.Close(); err != nil {
			ix.logger.WithError(err).Warn("Failed to close retired index")
		}
	}
}

// Retire 标记索引退役，不再接受新的引用
// 没有进行中的查询时立即关闭，否则由最后一次 Release 关闭
func (ix *Index) Retire() error {
	if ix == nil {
		return nil
	}
	ix.mu.Lock()
	ix.retired = true
	inFlight := ix.refs
	ix.mu.Unlock()

	if inFlight > 0 {
		ix.logger.WithField("in_flight", inFlight).Debug("Index retired, closing after queries drain")
		return nil
	}
	return ix.Close()
}

// Close 立即释放向量后端，重复调用无副作用
func (ix *Index) Close() error {
	if ix == nil {
		return nil
	}
	ix.mu.Lock()
	if ix.closed || ix.repo == nil {
		ix.closed = true
		ix.mu.Unlock()
		return nil
	}
	ix.closed = true
	ix.mu.Unlock()
	return ix.repo.Close()
}

func (ix *Index) isClosed() bool {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.closed
}

// IsEmpty 判断错误是否为空索引
func IsEmpty(err error) bool {
	return errors.Is(err, ErrIndexEmpty)
}
