package embedding

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/gammazero/workerpool"
	"github.com/sirupsen/logrus"
)

// Result 单条文本的嵌入结果，失败时 Err 非空
type Result struct {
	Index  int       // 在输入中的位置
	Vector []float32 // 嵌入向量
	Err    error     // 嵌入错误
}

// BatchProcessor 批处理器
// 将大量文本分批并行处理，批次失败时逐条重试，使失败只影响单条文本
type BatchProcessor struct {
	client     Client
	batchSize  int
	maxWorkers int
	dimensions int
	logger     *logrus.Logger
}

// BatchOption 批处理器配置选项
type BatchOption func(*BatchProcessor)

// WithExpectedDimensions 设置期望维度，维度不符的向量视为失败
func WithExpectedDimensions(dim int) BatchOption {
	return func(p *BatchProcessor) {
		p.dimensions = dim
	}
}

// WithBatchLogger 设置日志记录器
func WithBatchLogger(logger *logrus.Logger) BatchOption {
	return func(p *BatchProcessor) {
		p.logger = logger
	}
}

// NewBatchProcessor 创建新的批处理器
func NewBatchProcessor(client Client, batchSize int, maxWorkers int, opts ...BatchOption) *BatchProcessor {
	if batchSize <= 0 {
		batchSize = 16
	}
	if maxWorkers <= 0 {
		maxWorkers = 4
	}

	p := &BatchProcessor{
		client:     client,
		batchSize:  batchSize,
		maxWorkers: maxWorkers,
		logger:     logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process 处理全部文本，结果与输入一一对应
func (p *BatchProcessor) Process(ctx context.Context, texts []string) []Result {
	results := make([]Result, len(texts))
	var pending []int
	for i, text := range texts {
		results[i].Index = i
		if strings.TrimSpace(text) == "" {
			results[i].Err = NewEmbeddingError(ErrCodeEmptyInput, ErrMsgEmptyInput)
			continue
		}
		pending = append(pending, i)
	}

	wp := workerpool.New(p.maxWorkers)
	var mu sync.Mutex

	for start := 0; start < len(pending); start += p.batchSize {
		end := start + p.batchSize
		if end > len(pending) {
			end = len(pending)
		}
		batch := pending[start:end]

		wp.Submit(func() {
			out := p.processBatch(ctx, texts, batch)
			mu.Lock()
			defer mu.Unlock()
			for _, r := range out {
				results[r.Index] = r
			}
		})
	}
	wp.StopWait()

	return results
}

// processBatch 处理一个批次，批量调用失败时回退到逐条调用
func (p *BatchProcessor) processBatch(ctx context.Context, texts []string, indices []int) []Result {
	out := make([]Result, len(indices))
	if err := ctx.Err(); err != nil {
		for i, idx := range indices {
			out[i] = Result{Index: idx, Err: NewEmbeddingError(ErrCodeTimeout, err.Error())}
		}
		return out
	}

	batch := make([]string, len(indices))
	for i, idx := range indices {
		batch[i] = texts[idx]
	}

	vectors, err := p.client.EmbedBatch(ctx, batch)
	if err == nil && len(vectors) == len(batch) {
		for i, idx := range indices {
			out[i] = p.check(idx, vectors[i], nil)
		}
		return out
	}

	p.logger.WithFields(logrus.Fields{
		"size":  len(batch),
		"code":  errorCode(err),
		"model": p.client.Name(),
	}).WithError(err).Warn("Batch embedding failed, falling back to single requests")

	for i, idx := range indices {
		vec, err := p.client.Embed(ctx, texts[idx])
		out[i] = p.check(idx, vec, err)
	}
	return out
}

func (p *BatchProcessor) check(idx int, vec []float32, err error) Result {
	if err != nil {
		return Result{Index: idx, Err: err}
	}
	if len(vec) == 0 {
		return Result{Index: idx, Err: NewEmbeddingError(ErrCodeServerError, "empty embedding vector")}
	}
	if p.dimensions > 0 && len(vec) != p.dimensions {
		return Result{Index: idx, Err: NewEmbeddingError(ErrCodeDimension,
			fmt.Sprintf("expected %d dimensions, got %d", p.dimensions, len(vec)))}
	}
	return Result{Index: idx, Vector: vec}
}
